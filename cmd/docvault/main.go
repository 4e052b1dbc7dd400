// Command docvault encrypts, decrypts and securely erases document containers.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/absfs/docvault"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

const passphraseEnv = "DOCVAULT_PASSPHRASE"

const usage = `usage: docvault [-config FILE] [-keyfile PATH|URL] [-v] <command> [args]

commands:
  encrypt -in FILE -out FILE [-type MIME]
  decrypt -in FILE [-out FILE]
  info    FILE
  erase   FILE...
`

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	if err := run(os.Args[1:], log); err != nil {
		switch {
		case docvault.IsCancelled(err):
			log.Warn("cancelled")
			os.Exit(2)
		case docvault.IsSecurityError(err), docvault.IsCorruptionError(err):
			log.WithError(err).Error("cannot open document: wrong passphrase or corrupted document")
			os.Exit(3)
		default:
			log.WithError(err).Error("docvault failed")
			os.Exit(1)
		}
	}
}

func run(args []string, log *logrus.Logger) error {
	global := flag.NewFlagSet("docvault", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	configPath := global.String("config", "", "YAML configuration file")
	keyFile := global.String("keyfile", "", "key file path or URL")
	verbose := global.Bool("v", false, "verbose logging")
	if err := global.Parse(args); err != nil {
		return err
	}
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	fs := osFS{}
	cfg := docvault.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = docvault.LoadConfig(fs, *configPath); err != nil {
			return err
		}
	}
	if *keyFile != "" {
		cfg.KeyFile = *keyFile
	}

	v, err := docvault.New(fs, cfg, docvault.WithLogger(log))
	if err != nil {
		return err
	}
	defer v.Close()

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "encrypt":
		return runEncrypt(v, rest)
	case "decrypt":
		return runDecrypt(v, rest)
	case "info":
		return runInfo(v, rest)
	case "erase":
		for _, name := range rest {
			if err := v.SecureDelete(name); err != nil {
				return err
			}
		}
		return nil
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// requirePassphrase cancels when no passphrase could be obtained
func requirePassphrase(stage docvault.Stage, err error) bool {
	return stage == docvault.StagePreflight && err != nil
}

func loadPassphrase(v *docvault.Vault) error {
	if p := os.Getenv(passphraseEnv); p != "" {
		v.SetPassphrase(docvault.NewPassphraseString(p))
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	fmt.Fprint(os.Stderr, "Passphrase: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read passphrase: %w", err)
	}
	v.SetPassphrase(docvault.NewPassphraseBytes(b))
	return nil
}

func runEncrypt(v *docvault.Vault, args []string) error {
	fset := flag.NewFlagSet("encrypt", flag.ContinueOnError)
	in := fset.String("in", "", "plaintext input file")
	out := fset.String("out", "", "container output file")
	contentType := fset.String("type", "", "MIME type (default: from input extension)")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return errors.New("encrypt needs -in and -out")
	}
	if *contentType == "" {
		*contentType = mime.TypeByExtension(filepath.Ext(*in))
		if *contentType == "" {
			*contentType = "application/octet-stream"
		}
	}

	f, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	if err := loadPassphrase(v); err != nil {
		return err
	}
	return v.EncryptReader(f, info.Size(), *contentType, *out, requirePassphrase)
}

func runDecrypt(v *docvault.Vault, args []string) error {
	fset := flag.NewFlagSet("decrypt", flag.ContinueOnError)
	in := fset.String("in", "", "container input file")
	out := fset.String("out", "", "plaintext output file (default: stdout)")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("decrypt needs -in")
	}

	if err := loadPassphrase(v); err != nil {
		return err
	}
	h, body, err := v.Decrypt(*in, requirePassphrase)
	if err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("%s: no such document", *in)
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.OpenFile(*out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	_, err = w.Write(body)
	return err
}

func runInfo(v *docvault.Vault, args []string) error {
	if len(args) != 1 {
		return errors.New("info needs exactly one file")
	}
	if err := loadPassphrase(v); err != nil {
		return err
	}

	doc, err := v.DecryptToDocument(args[0], requirePassphrase)
	if err != nil {
		return err
	}
	switch d := doc.(type) {
	case nil:
		fmt.Printf("%s: no such document\n", args[0])
	case *docvault.TextDocument:
		fmt.Printf("text: %s, charset %s, %d characters\n", d.MIME, d.Charset, len([]rune(d.Text)))
	case *docvault.ImageDocument:
		b := d.Image.Bounds()
		fmt.Printf("image: %s, %s, %dx%d\n", d.MIME, d.Format, b.Dx(), b.Dy())
	case *docvault.OpaqueDocument:
		fmt.Printf("binary: %s, %q, %d bytes\n", d.MIME, d.Title, len(d.Data))
	}
	return nil
}
