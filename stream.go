package docvault

import (
	"errors"
	"fmt"
	"io"
)

var errWriterClosed = errors.New("encrypt writer already closed")

// chunkSize rounds a transfer buffer size down to whole cipher blocks
func chunkSize(bufSize int) int {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	n := bufSize - bufSize%BlockSize
	if n < BlockSize {
		n = BlockSize
	}
	return n
}

// encryptWriter encrypts everything written to it in CBC mode. At most one
// partial block is held between writes; Close pads and flushes it.
type encryptWriter struct {
	w       io.Writer
	engine  blockEngine
	pending []byte // trailing bytes that do not yet form a block
	scratch []byte // ciphertext staging, a whole number of blocks
	closed  bool
	err     error
}

// NewEncryptWriter writes a fresh random IV to w and returns a writer that
// encrypts plaintext into w. Close must be called to write the final padded
// block; it does not close w.
func NewEncryptWriter(key []byte, w io.Writer, bufSize int) (io.WriteCloser, error) {
	iv, err := GenerateIV()
	if err != nil {
		return nil, err
	}

	engine, err := newBlockEngine(key, iv, true)
	if err != nil {
		return nil, err
	}

	if _, err := w.Write(iv); err != nil {
		return nil, NewIOError("write", "", fmt.Errorf("failed to write IV: %w", err))
	}

	return &encryptWriter{
		w:       w,
		engine:  engine,
		pending: make([]byte, 0, BlockSize),
		scratch: make([]byte, chunkSize(bufSize)),
	}, nil
}

// Write encrypts all complete blocks in p and keeps the remainder pending
func (ew *encryptWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, ew.err
	}
	if ew.closed {
		return 0, errWriterClosed
	}

	written := len(p)

	if len(ew.pending) > 0 {
		n := copy(ew.pending[len(ew.pending):BlockSize], p)
		ew.pending = ew.pending[:len(ew.pending)+n]
		p = p[n:]
		if len(ew.pending) < BlockSize {
			return written, nil
		}
		if err := ew.emit(ew.pending); err != nil {
			return 0, err
		}
		ew.pending = ew.pending[:0]
	}

	full := len(p) - len(p)%BlockSize
	if err := ew.emit(p[:full]); err != nil {
		return 0, err
	}
	ew.pending = append(ew.pending, p[full:]...)

	return written, nil
}

// emit encrypts src (a whole number of blocks) through the scratch buffer
func (ew *encryptWriter) emit(src []byte) error {
	for len(src) > 0 {
		n := min(len(src), len(ew.scratch))
		ew.engine.CryptBlocks(ew.scratch[:n], src[:n])
		if _, err := ew.w.Write(ew.scratch[:n]); err != nil {
			ew.err = NewIOError("write", "", err)
			return ew.err
		}
		src = src[n:]
	}
	return nil
}

// Close writes the padded final block
func (ew *encryptWriter) Close() error {
	if ew.closed {
		return ew.err
	}
	ew.closed = true
	if ew.err != nil {
		return ew.err
	}
	return ew.emit(pkcs7Pad(ew.pending))
}

// decryptReader decrypts a CBC ciphertext stream. The last decrypted block is
// withheld until end of input so padding can be checked before it is released.
type decryptReader struct {
	r      io.Reader
	engine blockEngine
	in     []byte // ciphertext chunk, decrypted in place
	outBuf []byte
	out    []byte // plaintext ready for the caller
	held   [BlockSize]byte
	nHeld  int
	err    error
}

// NewDecryptReader reads the IV from r and returns a reader over the
// decrypted plaintext. A padding failure at end of input is reported as a
// *SecurityError; a stream too short to hold an IV as a *CorruptionError.
func NewDecryptReader(key []byte, r io.Reader, bufSize int) (io.Reader, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(r, iv); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &CorruptionError{
				Message: "stream too short to contain an IV",
				Err:     ErrInvalidCiphertext,
			}
		}
		return nil, NewIOError("read", "", fmt.Errorf("failed to read IV: %w", err))
	}

	engine, err := newBlockEngine(key, iv, false)
	if err != nil {
		return nil, err
	}

	n := chunkSize(bufSize)
	return &decryptReader{
		r:      r,
		engine: engine,
		in:     make([]byte, n),
		outBuf: make([]byte, 0, n+BlockSize),
	}, nil
}

func (dr *decryptReader) Read(p []byte) (int, error) {
	for len(dr.out) == 0 {
		if dr.err != nil {
			return 0, dr.err
		}
		dr.fill()
	}
	n := copy(p, dr.out)
	dr.out = dr.out[n:]
	return n, nil
}

// fill decrypts the next ciphertext chunk into out
func (dr *decryptReader) fill() {
	n, err := io.ReadFull(dr.r, dr.in)
	final := false
	switch {
	case err == nil:
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		final = true
	default:
		dr.err = NewIOError("read", "", err)
		return
	}

	if n%BlockSize != 0 {
		dr.err = NewSecurityError("", fmt.Errorf("ciphertext is not a whole number of blocks: %w", ErrIntegrity))
		return
	}

	chunk := dr.in[:n]
	dr.engine.CryptBlocks(chunk, chunk)

	out := append(dr.outBuf[:0], dr.held[:dr.nHeld]...)
	if !final {
		out = append(out, chunk[:n-BlockSize]...)
		dr.nHeld = copy(dr.held[:], chunk[n-BlockSize:])
		dr.out = out
		return
	}

	out = append(out, chunk...)
	dr.nHeld = 0
	dr.err = io.EOF
	if len(out) == 0 {
		return
	}

	plain, perr := pkcs7Unpad(out)
	if perr != nil {
		dr.err = NewSecurityError("", perr)
		return
	}
	dr.out = plain
}

// EncryptStream encrypts src into dst, prefixed by a fresh IV, copying through
// a buffer of bufSize bytes. It returns the number of plaintext bytes read.
func EncryptStream(key []byte, dst io.Writer, src io.Reader, bufSize int) (int64, error) {
	ew, err := NewEncryptWriter(key, dst, bufSize)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, chunkSize(bufSize))
	n, err := io.CopyBuffer(ew, onlyReader{src}, buf)
	if err != nil {
		return n, classifyCopyError(err, "read")
	}
	if err := ew.Close(); err != nil {
		return n, err
	}
	return n, nil
}

// DecryptStream decrypts an IV-prefixed ciphertext from src into dst and
// returns the number of plaintext bytes written.
func DecryptStream(key []byte, dst io.Writer, src io.Reader, bufSize int) (int64, error) {
	dr, err := NewDecryptReader(key, src, bufSize)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, chunkSize(bufSize))
	n, err := io.CopyBuffer(onlyWriter{dst}, dr, buf)
	if err != nil {
		return n, classifyCopyError(err, "write")
	}
	return n, nil
}

// classifyCopyError keeps typed errors and wraps anything else as an I/O
// failure of the side that is not ours.
func classifyCopyError(err error, op string) error {
	if IsSecurityError(err) || IsCorruptionError(err) || IsIOError(err) ||
		IsValidationError(err) || IsEnvironmentError(err) {
		return err
	}
	return NewIOError(op, "", err)
}

// onlyReader and onlyWriter hide ReaderFrom/WriterTo so io.CopyBuffer uses
// the fixed transfer buffer.
type onlyReader struct{ io.Reader }

type onlyWriter struct{ io.Writer }
