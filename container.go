package docvault

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Container layout (the plaintext handed to the cipher):
//
//	Content-Type: <mime>\r\n
//	Content-Length: <N>\r\n
//	\r\n
//	<N body bytes>

const (
	// HeaderContentType names the MIME type header
	HeaderContentType = "content-type"

	// HeaderContentLength names the body length header
	HeaderContentLength = "content-length"

	// MaxHeaderSize bounds the header block; anything longer is not a container
	MaxHeaderSize = 64 * 1024
)

// Header is an ordered mapping of lower-cased header names to trimmed values
type Header struct {
	names  []string
	values map[string]string
}

// NewHeader creates an empty header
func NewHeader() *Header {
	return &Header{values: make(map[string]string)}
}

// Set stores value under the lower-cased name, keeping the position of an
// earlier entry with the same name
func (h *Header) Set(name, value string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if h.values == nil {
		h.values = make(map[string]string)
	}
	if _, ok := h.values[name]; !ok {
		h.names = append(h.names, name)
	}
	h.values[name] = strings.TrimSpace(value)
}

// Get returns the value for name, or "" if absent
func (h *Header) Get(name string) string {
	v, _ := h.Lookup(name)
	return v
}

// Lookup returns the value for name and whether it was present
func (h *Header) Lookup(name string) (string, bool) {
	if h == nil || h.values == nil {
		return "", false
	}
	v, ok := h.values[strings.ToLower(name)]
	return v, ok
}

// Names returns header names in the order they were first seen
func (h *Header) Names() []string {
	if h == nil {
		return nil
	}
	return append([]string(nil), h.names...)
}

// Len returns the number of headers
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.names)
}

// ContentType returns the content-type value; it must be present and non-empty
func (h *Header) ContentType() (string, error) {
	v, ok := h.Lookup(HeaderContentType)
	if !ok || v == "" {
		return "", NewCorruptionError("", "missing content-type header")
	}
	return v, nil
}

// ContentLength returns the decimal content-length value
func (h *Header) ContentLength() (int64, error) {
	v, ok := h.Lookup(HeaderContentLength)
	if !ok {
		return 0, NewCorruptionError("", "missing content-length header")
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, NewCorruptionError("", fmt.Sprintf("invalid content-length %q", v))
	}
	return n, nil
}

// MediaType returns the lower-cased content type without parameters
func (h *Header) MediaType() string {
	mt, _, _ := strings.Cut(h.Get(HeaderContentType), ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// Charset returns the charset parameter of the content type, or ""
func (h *Header) Charset() string {
	_, params, ok := strings.Cut(h.Get(HeaderContentType), ";")
	if !ok {
		return ""
	}
	for _, param := range strings.Split(params, ";") {
		key, value, ok := strings.Cut(param, "=")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(key), "charset") {
			return strings.Trim(strings.TrimSpace(value), `"`)
		}
	}
	return ""
}

// WriteHeader writes the container header for a body of length bytes
func WriteHeader(w io.Writer, mime string, length int64) (int64, error) {
	if err := ValidateMIMEType(mime); err != nil {
		return 0, err
	}
	if length < 0 {
		return 0, NewValidationError("content_length", length, "length cannot be negative")
	}

	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "Content-Type: %s\r\n", mime)
	fmt.Fprintf(buf, "Content-Length: %d\r\n", length)
	buf.WriteString("\r\n")

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// Frame returns header and payload as one container byte slice
func Frame(payload []byte, mime string) ([]byte, error) {
	buf := new(bytes.Buffer)
	if _, err := WriteHeader(buf, mime, int64(len(payload))); err != nil {
		return nil, err
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

// Unframe parses the header block at the start of data and returns it with
// the offset at which the body begins
func Unframe(data []byte) (*Header, int, error) {
	return ReadHeader(bytes.NewReader(data))
}

// ParseContainer splits data into header and body, checking that the header
// names a content type and a content length equal to the body size
func ParseContainer(data []byte) (*Header, []byte, error) {
	h, off, err := Unframe(data)
	if err != nil {
		return nil, nil, err
	}
	if _, err := h.ContentType(); err != nil {
		return nil, nil, err
	}
	n, err := h.ContentLength()
	if err != nil {
		return nil, nil, err
	}
	if n != int64(len(data)-off) {
		return nil, nil, NewCorruptionError("", fmt.Sprintf("content-length %d does not match body size %d", n, len(data)-off))
	}
	return h, data[off:], nil
}

// ReadHeader scans header lines one byte at a time until the blank line
// that ends the block and returns the header with the number of bytes
// consumed. Carriage returns are dropped; lines starting with a space or tab
// continue the previous line.
func ReadHeader(r io.ByteReader) (*Header, int, error) {
	h := NewHeader()

	var (
		line     []byte
		logical  strings.Builder
		have     bool
		consumed int
	)

	flush := func() {
		if !have {
			return
		}
		if name, value, ok := strings.Cut(logical.String(), ":"); ok {
			h.Set(name, value)
		}
		logical.Reset()
		have = false
	}

	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, consumed, NewCorruptionError("", "unexpected end of data in header")
			}
			return nil, consumed, classifyCopyError(err, "read")
		}
		consumed++
		if consumed > MaxHeaderSize {
			return nil, consumed, NewCorruptionError("", "header block too large")
		}

		switch b {
		case '\r':
			continue
		case '\n':
		default:
			line = append(line, b)
			continue
		}

		if len(line) == 0 {
			flush()
			return h, consumed, nil
		}
		if line[0] == ' ' || line[0] == '\t' {
			if have {
				logical.WriteByte(' ')
				logical.WriteString(strings.TrimSpace(string(line)))
			}
		} else {
			flush()
			logical.Write(line)
			have = true
		}
		line = line[:0]
	}
}
