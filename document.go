package docvault

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// Document is the result of decrypting a container. It is exactly one of
// *TextDocument, *ImageDocument or *OpaqueDocument.
type Document interface {
	// ContentType returns the content-type header the document was stored with
	ContentType() string

	document()
}

// TextDocument is a text/* payload decoded with Charset
type TextDocument struct {
	MIME    string
	Charset string // charset actually used to decode
	Text    string
}

// ImageDocument is an image/* payload decoded to a bitmap
type ImageDocument struct {
	MIME   string
	Format string // decoder name reported by image.Decode
	Image  image.Image
}

// OpaqueDocument is any other payload, returned unchanged
type OpaqueDocument struct {
	MIME  string
	Title string
	Data  []byte
}

func (d *TextDocument) ContentType() string   { return d.MIME }
func (d *ImageDocument) ContentType() string  { return d.MIME }
func (d *OpaqueDocument) ContentType() string { return d.MIME }

func (*TextDocument) document()   {}
func (*ImageDocument) document()  {}
func (*OpaqueDocument) document() {}

// DecodeDocument reinterprets body according to the header's content type.
// Text without a charset parameter is decoded with defaultCharset; title
// names opaque documents.
func DecodeDocument(h *Header, body []byte, defaultCharset, title string) (Document, error) {
	mime, err := h.ContentType()
	if err != nil {
		return nil, err
	}

	switch mt := h.MediaType(); {
	case strings.HasPrefix(mt, "text/"):
		charset := h.Charset()
		if charset == "" {
			charset = defaultCharset
		}
		text, err := DecodeText(body, charset)
		if err != nil {
			return nil, err
		}
		return &TextDocument{MIME: mime, Charset: charset, Text: text}, nil

	case strings.HasPrefix(mt, "image/"):
		img, format, err := image.Decode(bytes.NewReader(body))
		if err != nil {
			return nil, &CorruptionError{
				Message: fmt.Sprintf("cannot decode %s image: %v", mt, err),
				Err:     err,
			}
		}
		return &ImageDocument{MIME: mime, Format: format, Image: img}, nil

	default:
		return &OpaqueDocument{MIME: mime, Title: title, Data: body}, nil
	}
}

// DecodeText converts body from the named charset to a Go string. Names are
// resolved against the IANA registry, then against the WHATWG labels for
// aliases such as "utf8" that IANA does not list.
func DecodeText(body []byte, charset string) (string, error) {
	enc, err := lookupCharset(charset)
	if err != nil {
		return "", &ValidationError{
			Field:   "charset",
			Value:   charset,
			Message: fmt.Sprintf("unsupported charset %q", charset),
			Err:     err,
		}
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", &CorruptionError{
			Message: fmt.Sprintf("cannot decode text as %s: %v", charset, err),
			Err:     err,
		}
	}
	return string(out), nil
}

func lookupCharset(name string) (encoding.Encoding, error) {
	// a nil encoding with a nil error means registered but unsupported
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc, nil
	}
	return htmlindex.Get(name)
}
