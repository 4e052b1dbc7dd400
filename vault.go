package docvault

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/absfs/absfs"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Stage identifies the point at which a CancelHook is consulted
type Stage uint8

const (
	// StagePreflight runs before any key derivation or file access
	StagePreflight Stage = iota
	// StageSecurity runs after the cipher reported a *SecurityError
	StageSecurity
)

// String returns the string representation of the stage
func (s Stage) String() string {
	switch s {
	case StagePreflight:
		return "preflight"
	case StageSecurity:
		return "security"
	default:
		return "unknown"
	}
}

// CancelHook decides whether an operation should stop. At StagePreflight err
// is ErrNoPassphrase when no passphrase is set and nil otherwise; at
// StageSecurity it is the security failure. Returning true cancels: at
// preflight the operation returns ErrCancelled, after a security failure the
// error is dropped and the operation yields an empty result.
//
// Encryption consults the hook at StagePreflight only. CBC encryption has no
// integrity check to fail, so only decryption reaches StageSecurity.
type CancelHook func(stage Stage, err error) bool

// Option configures a Vault
type Option func(*Vault)

// WithLogger sets the logger; the default is logrus.StandardLogger()
func WithLogger(log logrus.FieldLogger) Option {
	return func(v *Vault) { v.log = log }
}

// WithMetrics records operation outcomes into m
func WithMetrics(m *Metrics) Option {
	return func(v *Vault) { v.metrics = m }
}

// WithHTTPClient sets the client used to fetch http(s) key files
func WithHTTPClient(c *http.Client) Option {
	return func(v *Vault) { v.client = c }
}

// Vault encrypts documents into container files on a filesystem and
// decrypts them back. It owns the session passphrase and key-file reference.
type Vault struct {
	fs      absfs.FileSystem
	config  *Config
	deriver *KeyDeriver
	salts   *SaltProvider
	log     logrus.FieldLogger
	metrics *Metrics
	client  *http.Client

	mu         sync.Mutex
	passphrase *Passphrase
	keyFile    string
}

// New creates a vault storing container files in fs
func New(fs absfs.FileSystem, config *Config, opts ...Option) (*Vault, error) {
	if fs == nil {
		return nil, ErrNilFileSystem
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	deriver, err := NewKeyDeriver(config.KDF)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	v := &Vault{
		fs:      fs,
		config:  config,
		deriver: deriver,
		log:     logrus.StandardLogger(),
		keyFile: config.KeyFile,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.client == nil {
		v.client = NewProxyClient(config.HTTPTimeout)
	}

	v.salts = NewSaltProvider(NewFileHasher(fs, v.client, config.BufferSize), v.log)
	return v, nil
}

// Config returns the vault configuration
func (v *Vault) Config() *Config {
	return v.config
}

// SetPassphrase replaces the session passphrase and wipes the previous one
func (v *Vault) SetPassphrase(p *Passphrase) {
	v.mu.Lock()
	old := v.passphrase
	v.passphrase = p
	v.mu.Unlock()

	if old != nil && old != p {
		old.Wipe()
	}
}

// HasPassphrase reports whether a non-empty passphrase is set
func (v *Vault) HasPassphrase() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.passphrase.IsEmpty()
}

// SetKeyFile changes the key-file reference. Cached key-file digests are
// dropped when the reference changes.
func (v *Vault) SetKeyFile(ref string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if ref == v.keyFile {
		return
	}
	v.keyFile = ref
	v.salts.Invalidate()
}

// KeyFile returns the current key-file reference
func (v *Vault) KeyFile() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.keyFile
}

// Close wipes the session passphrase
func (v *Vault) Close() error {
	v.SetPassphrase(nil)
	return nil
}

func (v *Vault) credentials() (*Passphrase, string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.passphrase, v.keyFile
}

// preflight consults hook before any key derivation or I/O
func (v *Vault) preflight(op string, hook CancelHook) (*Passphrase, string, error) {
	pass, keyFile := v.credentials()

	var cause error
	if pass.IsEmpty() {
		cause = ErrNoPassphrase
	}
	if hook != nil && hook(StagePreflight, cause) {
		v.log.WithField("op", op).Debug("operation cancelled at preflight")
		return nil, "", ErrCancelled
	}
	if cause != nil {
		return nil, "", &ValidationError{
			Field:   "passphrase",
			Message: "a passphrase is required",
			Err:     ErrNoPassphrase,
		}
	}
	return pass, keyFile, nil
}

// deriveKey derives a fresh key for this call; keys are never cached
func (v *Vault) deriveKey(op string, pass *Passphrase, keyFile string) ([]byte, error) {
	salt := v.salts.SaltFor(keyFile)
	key, err := v.deriver.Derive(pass.Bytes(), salt)
	if err != nil {
		if errors.Is(err, ErrNoPassphrase) {
			return nil, &ValidationError{Field: "passphrase", Message: "a passphrase is required", Err: err}
		}
		if IsEnvironmentError(err) {
			v.log.WithError(err).WithField("op", op).Error("key derivation unavailable")
		}
		return nil, err
	}
	return key, nil
}

// Encrypt frames payload with mime and writes it encrypted to dest
func (v *Vault) Encrypt(payload []byte, mime, dest string, hook CancelHook) error {
	return v.EncryptReader(bytes.NewReader(payload), int64(len(payload)), mime, dest, hook)
}

// EncryptReader is Encrypt for a payload of length bytes read from r. The
// container is written to a temporary file next to dest and renamed over it
// once complete.
func (v *Vault) EncryptReader(r io.Reader, length int64, mime, dest string, hook CancelHook) error {
	start := time.Now()
	err := v.encrypt(r, length, mime, dest, hook)
	v.metrics.observe(OpEncrypt, start, err)
	return err
}

func (v *Vault) encrypt(r io.Reader, length int64, mime, dest string, hook CancelHook) (err error) {
	if err := ValidateFilePath(dest); err != nil {
		return err
	}
	if err := ValidateMIMEType(mime); err != nil {
		return err
	}
	if length < 0 {
		return NewValidationError("length", length, "length cannot be negative")
	}

	pass, keyFile, err := v.preflight(OpEncrypt, hook)
	if err != nil {
		return err
	}
	key, err := v.deriveKey(OpEncrypt, pass, keyFile)
	if err != nil {
		return err
	}
	defer clear(key)

	tmp := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+"."+uuid.NewString()+".tmp")
	f, err := v.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return NewIOError("create", tmp, err)
	}

	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			f.Close()
		}
		if rerr := v.fs.Remove(tmp); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			v.log.WithError(rerr).WithField("path", tmp).Warn("failed to remove temporary file")
		}
	}()

	if err := v.writeContainer(f, key, r, length, mime); err != nil {
		return withPath(err, dest)
	}

	if err := f.Sync(); err != nil {
		return NewIOError("sync", tmp, err)
	}
	closed = true
	if err := f.Close(); err != nil {
		return NewIOError("close", tmp, err)
	}
	if err := v.fs.Rename(tmp, dest); err != nil {
		return NewIOError("rename", dest, err)
	}

	v.log.WithFields(logrus.Fields{"op": OpEncrypt, "path": dest, "content_type": mime, "bytes": length}).Debug("document encrypted")
	return nil
}

// writeContainer streams IV, header and body through the cipher into w
func (v *Vault) writeContainer(w io.Writer, key []byte, r io.Reader, length int64, mime string) error {
	ew, err := NewEncryptWriter(key, w, v.config.BufferSize)
	if err != nil {
		return err
	}
	if _, err := WriteHeader(ew, mime, length); err != nil {
		return classifyCopyError(err, "write")
	}

	buf := make([]byte, chunkSize(v.config.BufferSize))
	n, err := io.CopyBuffer(ew, onlyReader{io.LimitReader(r, length)}, buf)
	if err != nil {
		return classifyCopyError(err, "read")
	}
	if n != length {
		return NewValidationError("length", length, fmt.Sprintf("payload ended after %d of %d bytes", n, length))
	}
	return ew.Close()
}

// DecryptToDocument decrypts src and reinterprets it by content type. A
// missing src yields a nil document and no error.
func (v *Vault) DecryptToDocument(src string, hook CancelHook) (Document, error) {
	h, body, err := v.Decrypt(src, hook)
	if err != nil || h == nil {
		return nil, err
	}

	doc, err := DecodeDocument(h, body, v.config.DefaultCharset, documentTitle(src))
	if err != nil {
		return nil, withPath(err, src)
	}
	return doc, nil
}

// Decrypt decrypts src and returns its header and body. A missing src
// yields a nil header and no error; so does a hook that cancels after a
// security failure.
func (v *Vault) Decrypt(src string, hook CancelHook) (*Header, []byte, error) {
	start := time.Now()
	h, body, err := v.decrypt(src, hook)
	switch {
	case err == nil && h == nil:
		v.metrics.observeOutcome(OpDecrypt, start, OutcomeMissing)
		return nil, nil, nil
	case IsSecurityError(err) && hook != nil && hook(StageSecurity, err):
		v.log.WithFields(logrus.Fields{"op": OpDecrypt, "path": src}).Info("decryption abandoned after security failure")
		v.metrics.observeOutcome(OpDecrypt, start, OutcomeCancelled)
		return nil, nil, nil
	}
	v.metrics.observe(OpDecrypt, start, err)
	if err != nil {
		return nil, nil, err
	}
	return h, body, nil
}

func (v *Vault) decrypt(src string, hook CancelHook) (*Header, []byte, error) {
	if err := ValidateFilePath(src); err != nil {
		return nil, nil, err
	}

	pass, keyFile, err := v.preflight(OpDecrypt, hook)
	if err != nil {
		return nil, nil, err
	}

	info, err := v.fs.Stat(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			v.log.WithField("path", src).Debug("document does not exist")
			return nil, nil, nil
		}
		return nil, nil, NewIOError("stat", src, err)
	}

	key, err := v.deriveKey(OpDecrypt, pass, keyFile)
	if err != nil {
		return nil, nil, err
	}
	defer clear(key)

	f, err := v.fs.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, NewIOError("open", src, err)
	}
	defer f.Close()

	h, body, err := v.readContainer(f, key, info.Size())
	if err != nil {
		return nil, nil, withPath(err, src)
	}

	v.log.WithFields(logrus.Fields{"op": OpDecrypt, "path": src, "content_type": h.Get(HeaderContentType), "bytes": len(body)}).Debug("document decrypted")
	return h, body, nil
}

// readContainer decrypts r and splits it into header and body. A header that
// does not parse is only reported as malformed if the cipher also finishes
// cleanly; otherwise the security failure wins.
func (v *Vault) readContainer(r io.Reader, key []byte, fileSize int64) (*Header, []byte, error) {
	dr, err := NewDecryptReader(key, r, v.config.BufferSize)
	if err != nil {
		return nil, nil, err
	}
	br := bufio.NewReaderSize(dr, chunkSize(v.config.BufferSize))

	h, length, herr := readContainerHeader(br, fileSize)
	if herr != nil {
		if _, derr := io.Copy(io.Discard, br); derr != nil && (IsSecurityError(derr) || IsIOError(derr)) {
			return nil, nil, derr
		}
		return nil, nil, herr
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(br, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil, NewCorruptionError("", fmt.Sprintf("body shorter than content-length %d", length))
		}
		return nil, nil, err
	}

	extra, err := io.Copy(io.Discard, br)
	if err != nil {
		return nil, nil, err
	}
	if extra > 0 {
		return nil, nil, NewCorruptionError("", fmt.Sprintf("%d bytes follow the declared body", extra))
	}
	return h, body, nil
}

func readContainerHeader(br *bufio.Reader, fileSize int64) (*Header, int64, error) {
	h, _, err := ReadHeader(br)
	if err != nil {
		return nil, 0, err
	}
	if _, err := h.ContentType(); err != nil {
		return nil, 0, err
	}
	length, err := h.ContentLength()
	if err != nil {
		return nil, 0, err
	}
	if length > fileSize {
		return nil, 0, NewCorruptionError("", fmt.Sprintf("content-length %d exceeds file size %d", length, fileSize))
	}
	return h, length, nil
}

// SecureDelete overwrites name with random data and removes it
func (v *Vault) SecureDelete(name string) error {
	start := time.Now()
	err := SecureErase(v.fs, name, v.config.BufferSize)
	v.metrics.observe(OpErase, start, err)
	if err != nil {
		v.log.WithError(err).WithField("path", name).Warn("secure delete failed")
		return err
	}
	v.log.WithFields(logrus.Fields{"op": OpErase, "path": name}).Debug("document erased")
	return nil
}

// Rekey re-encrypts name under a new passphrase and key file and makes them
// the vault's credentials. On failure the previous credentials stay active
// and the file is unchanged.
func (v *Vault) Rekey(name string, newPass *Passphrase, newKeyFile string) (err error) {
	start := time.Now()
	defer func() { v.metrics.observe(OpRekey, start, err) }()

	if newPass.IsEmpty() {
		return &ValidationError{Field: "passphrase", Message: "new passphrase cannot be empty", Err: ErrNoPassphrase}
	}

	h, body, err := v.decrypt(name, nil)
	if err != nil {
		return err
	}
	if h == nil {
		return NewIOError("open", name, os.ErrNotExist)
	}
	defer clear(body)
	mime, _ := h.ContentType()

	v.mu.Lock()
	oldPass, oldKeyFile := v.passphrase, v.keyFile
	v.passphrase, v.keyFile = newPass, newKeyFile
	if oldKeyFile != newKeyFile {
		v.salts.Invalidate()
	}
	v.mu.Unlock()

	if err := v.encrypt(bytes.NewReader(body), int64(len(body)), mime, name, nil); err != nil {
		v.mu.Lock()
		v.passphrase, v.keyFile = oldPass, oldKeyFile
		if oldKeyFile != newKeyFile {
			v.salts.Invalidate()
		}
		v.mu.Unlock()
		return err
	}

	if oldPass != nil && oldPass != newPass {
		oldPass.Wipe()
	}
	v.log.WithFields(logrus.Fields{"op": OpRekey, "path": name}).Info("document re-encrypted with new credentials")
	return nil
}

// documentTitle names an opaque document after its file
func documentTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
