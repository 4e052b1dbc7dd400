package docvault

import (
	"fmt"
)

// Input validation helpers

// ValidateSize checks if a size parameter is within [minSize, maxSize]
func ValidateSize(size int, name string, minSize, maxSize int) error {
	if size < 0 {
		return &ValidationError{
			Field:   name,
			Value:   size,
			Message: "size cannot be negative",
		}
	}
	if minSize >= 0 && size < minSize {
		return &ValidationError{
			Field:   name,
			Value:   size,
			Message: fmt.Sprintf("size too small: got %d, minimum is %d", size, minSize),
		}
	}
	if maxSize > 0 && size > maxSize {
		return &ValidationError{
			Field:   name,
			Value:   size,
			Message: fmt.Sprintf("size too large: got %d, maximum is %d", size, maxSize),
		}
	}
	return nil
}

// ValidateKeyBits checks that bits names an AES key length
func ValidateKeyBits(bits int) error {
	switch bits {
	case 128, 192, 256:
		return nil
	}
	return &ValidationError{
		Field:   "key_bits",
		Value:   bits,
		Message: fmt.Sprintf("invalid key length: got %d bits, expected 128, 192 or 256", bits),
	}
}

// ValidateKey checks that a key can be used directly as an AES key
func ValidateKey(key []byte) error {
	if key == nil {
		return &ValidationError{
			Field:   "key",
			Message: "key cannot be nil",
			Err:     ErrInvalidKey,
		}
	}
	if err := ValidateKeyBits(len(key) * 8); err != nil {
		return &ValidationError{
			Field:   "key",
			Value:   len(key),
			Message: fmt.Sprintf("invalid key size: got %d bytes, expected 16, 24 or 32 bytes", len(key)),
			Err:     ErrInvalidKey,
		}
	}
	return nil
}

// ValidateIV checks that an IV is exactly one cipher block
func ValidateIV(iv []byte) error {
	if len(iv) != IVSize {
		return &ValidationError{
			Field:   "iv",
			Value:   len(iv),
			Message: fmt.Sprintf("invalid IV size: got %d bytes, expected %d bytes", len(iv), IVSize),
		}
	}
	return nil
}

// ValidateFilePath checks if a file path is valid (not empty)
func ValidateFilePath(path string) error {
	if path == "" {
		return &ValidationError{
			Field:   "path",
			Message: "file path cannot be empty",
		}
	}
	return nil
}

// ValidateMIMEType checks that a content type can be written as a header value
func ValidateMIMEType(mime string) error {
	if mime == "" {
		return &ValidationError{
			Field:   "content_type",
			Message: "content type cannot be empty",
		}
	}
	for i := 0; i < len(mime); i++ {
		if mime[i] == '\r' || mime[i] == '\n' {
			return &ValidationError{
				Field:   "content_type",
				Value:   mime,
				Message: "content type cannot contain line breaks",
			}
		}
	}
	return nil
}
