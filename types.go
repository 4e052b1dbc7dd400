package docvault

import (
	"fmt"
	"io"
	"time"

	"github.com/absfs/absfs"
	"gopkg.in/yaml.v3"
)

// KDFAlgorithm selects the password-based key derivation function
type KDFAlgorithm string

const (
	// KDFPBKDF2 is PBKDF2 and the only choice readable by other implementations
	KDFPBKDF2 KDFAlgorithm = "pbkdf2"
	// KDFArgon2id is memory-hard and suited to vaults that never leave this implementation
	KDFArgon2id KDFAlgorithm = "argon2id"
)

// HashFunc represents hash function types for PBKDF2
type HashFunc string

const (
	// SHA1 hash function (interoperable default)
	SHA1 HashFunc = "sha1"
	// SHA256 hash function
	SHA256 HashFunc = "sha256"
	// SHA512 hash function
	SHA512 HashFunc = "sha512"
)

const (
	// DefaultIterations is the PBKDF2 iteration count existing documents were written with
	DefaultIterations = 45522

	// DefaultKeyBits is the AES key length
	DefaultKeyBits = 128

	// DefaultBufferSize is the transfer chunk size shared by hashing, cipher and erase
	DefaultBufferSize = 32 * 1024

	// DefaultCharset decodes text documents whose content-type names no charset
	DefaultCharset = "UTF-8"

	// DefaultHTTPTimeout bounds fetching a remote key file
	DefaultHTTPTimeout = 30 * time.Second

	// MinBufferSize keeps the transfer buffer at least one cipher block
	MinBufferSize = 16

	// MaxBufferSize is the largest transfer buffer accepted (16 MB)
	MaxBufferSize = 16 * 1024 * 1024
)

// KDFParams contains parameters for key derivation
type KDFParams struct {
	Algorithm  KDFAlgorithm `yaml:"algorithm"`
	Iterations int          `yaml:"iterations"` // PBKDF2 iterations or Argon2id time cost
	KeyBits    int          `yaml:"key_bits"`   // 128, 192 or 256
	Hash       HashFunc     `yaml:"hash"`       // PBKDF2 only

	// Argon2id only
	MemoryKiB   uint32 `yaml:"memory_kib"`
	Parallelism uint8  `yaml:"parallelism"`
}

// Config contains configuration for a document vault
type Config struct {
	// KDF controls how passphrase and salt become a key
	KDF KDFParams `yaml:"kdf"`

	// BufferSize is the chunk size for streaming I/O
	BufferSize int `yaml:"buffer_size"`

	// DefaultCharset is used for text documents without a charset parameter
	DefaultCharset string `yaml:"default_charset"`

	// KeyFile is an optional path or URL whose digest salts the key
	KeyFile string `yaml:"key_file"`

	// HTTPTimeout bounds fetching an http(s) key file
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// DefaultConfig returns the configuration compatible with existing documents
func DefaultConfig() *Config {
	return &Config{
		KDF: KDFParams{
			Algorithm:  KDFPBKDF2,
			Iterations: DefaultIterations,
			KeyBits:    DefaultKeyBits,
			Hash:       SHA1,
		},
		BufferSize:     DefaultBufferSize,
		DefaultCharset: DefaultCharset,
		HTTPTimeout:    DefaultHTTPTimeout,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if err := c.KDF.Validate(); err != nil {
		return err
	}
	if err := ValidateSize(c.BufferSize, "buffer_size", MinBufferSize, MaxBufferSize); err != nil {
		return err
	}
	if c.DefaultCharset == "" {
		return NewValidationError("default_charset", c.DefaultCharset, "default charset cannot be empty")
	}
	if c.HTTPTimeout < 0 {
		return NewValidationError("http_timeout", c.HTTPTimeout, "timeout cannot be negative")
	}
	return nil
}

// Validate checks the key derivation parameters
func (p *KDFParams) Validate() error {
	if err := ValidateKeyBits(p.KeyBits); err != nil {
		return err
	}
	if p.Iterations <= 0 {
		return NewValidationError("kdf.iterations", p.Iterations, "iterations must be positive")
	}
	switch p.Algorithm {
	case KDFPBKDF2:
		switch p.Hash {
		case SHA1, SHA256, SHA512:
		default:
			return NewValidationError("kdf.hash", p.Hash, "unsupported hash function")
		}
	case KDFArgon2id:
		if p.MemoryKiB == 0 {
			return NewValidationError("kdf.memory_kib", p.MemoryKiB, "argon2id memory must be positive")
		}
		if p.Parallelism == 0 {
			return NewValidationError("kdf.parallelism", p.Parallelism, "argon2id parallelism must be positive")
		}
	default:
		return NewValidationError("kdf.algorithm", p.Algorithm, "unsupported key derivation function")
	}
	return nil
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
// Fields absent from the file keep their defaults.
func LoadConfig(fs absfs.FileSystem, path string) (*Config, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, NewIOError("open", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, NewIOError("read", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ValidationError{
			Field:   "config",
			Value:   path,
			Message: fmt.Sprintf("failed to parse config: %v", err),
			Err:     err,
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
