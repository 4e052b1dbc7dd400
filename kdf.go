package docvault

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// DeriveKey derives an AES key of keyBits bits from passphrase and salt using
// PBKDF2 with HMAC-SHA1, the combination existing documents were written with.
//
// An empty passphrase, a nil salt or out-of-range parameters are programming
// errors and panic.
func DeriveKey(passphrase, salt []byte, iterations, keyBits int) []byte {
	return deriveKey(passphrase, salt, KDFParams{
		Algorithm:  KDFPBKDF2,
		Iterations: iterations,
		KeyBits:    keyBits,
		Hash:       SHA1,
	})
}

// KeyDeriver turns a passphrase and salt into a key using configured parameters.
// Keys are recomputed on every call and never retained.
type KeyDeriver struct {
	params KDFParams
}

// NewKeyDeriver creates a key deriver after validating params
func NewKeyDeriver(params KDFParams) (*KeyDeriver, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &KeyDeriver{params: params}, nil
}

// Params returns the derivation parameters
func (d *KeyDeriver) Params() KDFParams {
	return d.params
}

// Derive derives a key from passphrase and salt. Unlike DeriveKey it reports
// a missing passphrase as ErrNoPassphrase, since the vault checks for that
// before calling.
func (d *KeyDeriver) Derive(passphrase, salt []byte) (key []byte, err error) {
	if len(passphrase) == 0 {
		return nil, ErrNoPassphrase
	}
	if salt == nil {
		return nil, NewValidationError("salt", nil, "salt cannot be nil")
	}

	defer func() {
		if r := recover(); r != nil {
			key = nil
			err = NewEnvironmentError(string(d.params.Algorithm), fmt.Errorf("key derivation failed: %v", r))
		}
	}()
	return deriveKey(passphrase, salt, d.params), nil
}

func deriveKey(passphrase, salt []byte, p KDFParams) []byte {
	if len(passphrase) == 0 {
		panic("docvault: passphrase cannot be empty")
	}
	if salt == nil {
		panic("docvault: salt cannot be nil")
	}
	if p.Iterations <= 0 {
		panic(fmt.Sprintf("docvault: iterations must be positive, got %d", p.Iterations))
	}
	if ValidateKeyBits(p.KeyBits) != nil {
		panic(fmt.Sprintf("docvault: unsupported key length %d bits", p.KeyBits))
	}
	keyLen := p.KeyBits / 8

	if p.Algorithm == KDFArgon2id {
		return argon2.IDKey(passphrase, salt, uint32(p.Iterations), p.MemoryKiB, p.Parallelism, uint32(keyLen))
	}

	return pbkdf2.Key(passphrase, salt, p.Iterations, keyLen, hashFor(p.Hash))
}

// hashFor converts HashFunc to a hash constructor
func hashFor(hf HashFunc) func() hash.Hash {
	switch hf {
	case SHA256:
		return sha256.New
	case SHA512:
		return sha512.New
	case SHA1, "":
		return sha1.New
	default:
		panic(fmt.Sprintf("docvault: unsupported hash function %q", hf))
	}
}
