package docvault

import (
	"github.com/sirupsen/logrus"
)

// defaultSalt salts the key when no key file is configured or it cannot be read
var defaultSalt = [8]byte{0xBB, 0x68, 0x7E, 0x14, 0x0D, 0x2D, 0x97, 0x8C}

// MinSaltSize is the shortest salt ever returned
const MinSaltSize = len(defaultSalt)

// DefaultSalt returns a copy of the fixed salt used without a key file
func DefaultSalt() []byte {
	s := defaultSalt
	return s[:]
}

// SaltProvider turns an optional key-file reference into salt bytes.
// Hashing failures are logged and replaced by the default salt so that a
// missing or unreachable key file never blocks encryption.
type SaltProvider struct {
	hasher *FileHasher
	log    logrus.FieldLogger
}

// NewSaltProvider creates a salt provider backed by hasher
func NewSaltProvider(hasher *FileHasher, log logrus.FieldLogger) *SaltProvider {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SaltProvider{hasher: hasher, log: log}
}

// SaltFor returns the salt for keyFile, never nil and never shorter than MinSaltSize
func (s *SaltProvider) SaltFor(keyFile string) []byte {
	if keyFile == "" {
		return DefaultSalt()
	}

	sum, err := s.hasher.Hash(keyFile)
	if err != nil {
		s.log.WithError(err).WithField("key_file", keyFile).Warn("key file unavailable, using default salt")
		return DefaultSalt()
	}
	if len(sum) < MinSaltSize {
		return DefaultSalt()
	}
	return sum
}

// Invalidate drops all cached key-file digests. Call it whenever the active
// key-file reference changes.
func (s *SaltProvider) Invalidate() {
	s.hasher.Clear()
}
