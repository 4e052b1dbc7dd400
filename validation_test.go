package docvault

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// TestConfig_Validate tests the Config validation
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		nilCfg  bool
		wantErr bool
		errMsg  string
	}{
		{
			name:    "nil config",
			nilCfg:  true,
			wantErr: true,
			errMsg:  "config cannot be nil",
		},
		{
			name:   "defaults",
			modify: func(*Config) {},
		},
		{
			name:    "bad key bits",
			modify:  func(c *Config) { c.KDF.KeyBits = 64 },
			wantErr: true,
			errMsg:  "invalid key length",
		},
		{
			name:    "zero iterations",
			modify:  func(c *Config) { c.KDF.Iterations = 0 },
			wantErr: true,
			errMsg:  "iterations must be positive",
		},
		{
			name:    "unknown hash",
			modify:  func(c *Config) { c.KDF.Hash = "md5" },
			wantErr: true,
			errMsg:  "unsupported hash function",
		},
		{
			name:    "unknown algorithm",
			modify:  func(c *Config) { c.KDF.Algorithm = "scrypt" },
			wantErr: true,
			errMsg:  "unsupported key derivation function",
		},
		{
			name: "argon2id without memory",
			modify: func(c *Config) {
				c.KDF.Algorithm = KDFArgon2id
				c.KDF.Parallelism = 1
			},
			wantErr: true,
			errMsg:  "memory must be positive",
		},
		{
			name: "argon2id valid",
			modify: func(c *Config) {
				c.KDF = KDFParams{Algorithm: KDFArgon2id, Iterations: 1, KeyBits: 256, MemoryKiB: 64, Parallelism: 1}
			},
		},
		{
			name:    "buffer too small",
			modify:  func(c *Config) { c.BufferSize = 8 },
			wantErr: true,
			errMsg:  "size too small",
		},
		{
			name:    "buffer too large",
			modify:  func(c *Config) { c.BufferSize = MaxBufferSize + 1 },
			wantErr: true,
			errMsg:  "size too large",
		},
		{
			name:    "empty charset",
			modify:  func(c *Config) { c.DefaultCharset = "" },
			wantErr: true,
			errMsg:  "default charset cannot be empty",
		},
		{
			name:    "negative timeout",
			modify:  func(c *Config) { c.HTTPTimeout = -time.Second },
			wantErr: true,
			errMsg:  "timeout cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg *Config
			if !tt.nilCfg {
				cfg = DefaultConfig()
				tt.modify(cfg)
			}
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestValidateSize(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		min     int
		max     int
		wantErr bool
	}{
		{"in range", 64, 16, 1024, false},
		{"at minimum", 16, 16, 1024, false},
		{"at maximum", 1024, 16, 1024, false},
		{"negative", -1, 0, 0, true},
		{"below minimum", 15, 16, 1024, true},
		{"above maximum", 1025, 16, 1024, true},
		{"no maximum", 1 << 30, 16, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSize(tt.size, "size", tt.min, tt.max)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSize(%d) error = %v, wantErr %v", tt.size, err, tt.wantErr)
			}
			if err != nil && !IsValidationError(err) {
				t.Errorf("ValidateSize returned %T, want *ValidationError", err)
			}
		})
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{"nil", nil, true},
		{"empty", []byte{}, true},
		{"AES-128", make([]byte, 16), false},
		{"AES-192", make([]byte, 24), false},
		{"AES-256", make([]byte, 32), false},
		{"odd length", make([]byte, 20), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidKey) {
				t.Errorf("ValidateKey error should wrap ErrInvalidKey: %v", err)
			}
		})
	}
}

func TestValidateIV(t *testing.T) {
	if err := ValidateIV(make([]byte, IVSize)); err != nil {
		t.Errorf("ValidateIV(16 bytes) = %v", err)
	}
	if err := ValidateIV(make([]byte, 12)); err == nil {
		t.Error("ValidateIV(12 bytes) should fail")
	}
}

func TestValidateFilePath(t *testing.T) {
	if err := ValidateFilePath(""); err == nil {
		t.Error("empty path should fail")
	}
	if err := ValidateFilePath("/a/b.dv"); err != nil {
		t.Errorf("ValidateFilePath = %v", err)
	}
}

func TestValidateMIMEType(t *testing.T) {
	tests := []struct {
		mime    string
		wantErr bool
	}{
		{"text/plain", false},
		{"text/plain; charset=UTF-8", false},
		{"", true},
		{"text/plain\r\nX-Injected: 1", true},
		{"image/png\n", true},
	}

	for _, tt := range tests {
		err := ValidateMIMEType(tt.mime)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateMIMEType(%q) error = %v, wantErr %v", tt.mime, err, tt.wantErr)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	fs := newTestFS(t)
	writeTestFile(t, fs, "/docvault.yaml", []byte(`
kdf:
  iterations: 100000
  key_bits: 256
buffer_size: 4096
default_charset: ISO-8859-1
key_file: https://keys.example.com/token.bin
http_timeout: 5s
`), time.Time{})

	cfg, err := LoadConfig(fs, "/docvault.yaml")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.KDF.Algorithm != KDFPBKDF2 || cfg.KDF.Hash != SHA1 {
		t.Errorf("unset KDF fields lost their defaults: %+v", cfg.KDF)
	}
	if cfg.KDF.Iterations != 100000 || cfg.KDF.KeyBits != 256 {
		t.Errorf("KDF = %+v", cfg.KDF)
	}
	if cfg.BufferSize != 4096 {
		t.Errorf("BufferSize = %d", cfg.BufferSize)
	}
	if cfg.DefaultCharset != "ISO-8859-1" {
		t.Errorf("DefaultCharset = %q", cfg.DefaultCharset)
	}
	if cfg.KeyFile != "https://keys.example.com/token.bin" {
		t.Errorf("KeyFile = %q", cfg.KeyFile)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	fs := newTestFS(t)
	writeTestFile(t, fs, "/bad.yaml", []byte("kdf: [not, a, map]\n"), time.Time{})
	writeTestFile(t, fs, "/invalid.yaml", []byte("kdf:\n  key_bits: 100\n"), time.Time{})

	if _, err := LoadConfig(fs, "/missing.yaml"); !IsIOError(err) {
		t.Errorf("missing file error = %v, want IOError", err)
	}
	if _, err := LoadConfig(fs, "/bad.yaml"); !IsValidationError(err) {
		t.Errorf("unparsable file error = %v, want ValidationError", err)
	}
	if _, err := LoadConfig(fs, "/invalid.yaml"); !IsValidationError(err) {
		t.Errorf("invalid values error = %v, want ValidationError", err)
	}
}
