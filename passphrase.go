package docvault

import (
	"crypto/subtle"
	"sync"
	"unicode/utf8"
)

// Passphrase holds a secret as UTF-8 bytes in a buffer that is locked in
// memory where the platform allows it and overwritten by Wipe.
type Passphrase struct {
	mu     sync.Mutex
	buf    []byte
	locked bool
}

// NewPassphrase copies runes into a new passphrase buffer. The caller should
// clear its own copy afterwards.
func NewPassphrase(runes []rune) *Passphrase {
	n := 0
	for _, r := range runes {
		n += utf8.RuneLen(r)
	}
	buf := make([]byte, 0, n)
	for _, r := range runes {
		buf = utf8.AppendRune(buf, r)
	}
	return newPassphraseBuffer(buf)
}

// NewPassphraseBytes takes ownership of b, which must hold UTF-8 text.
func NewPassphraseBytes(b []byte) *Passphrase {
	return newPassphraseBuffer(b)
}

// NewPassphraseString creates a passphrase from s. Go strings cannot be
// wiped, so prefer NewPassphrase or NewPassphraseBytes for user input.
func NewPassphraseString(s string) *Passphrase {
	return newPassphraseBuffer([]byte(s))
}

func newPassphraseBuffer(buf []byte) *Passphrase {
	p := &Passphrase{buf: buf}
	if len(buf) > 0 {
		p.locked = lockMemory(buf) == nil
	}
	return p
}

// IsEmpty reports whether the passphrase is nil, wiped or zero-length
func (p *Passphrase) IsEmpty() bool {
	if p == nil {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf) == 0
}

// Bytes returns the live buffer. It is meant only as direct KDF input and
// must not be retained.
func (p *Passphrase) Bytes() []byte {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf
}

// Wipe overwrites the buffer with zeros and releases it
func (p *Passphrase) Wipe() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, p.buf, make([]byte, len(p.buf)))
	if p.locked {
		_ = unlockMemory(p.buf)
		p.locked = false
	}
	p.buf = nil
}
