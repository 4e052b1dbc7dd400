package docvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

const (
	// BlockSize is the AES block size
	BlockSize = aes.BlockSize

	// IVSize is the length of the IV stored at the start of every container file
	IVSize = aes.BlockSize
)

// blockEngine performs CBC transforms over whole blocks
type blockEngine interface {
	// CryptBlocks transforms src into dst; len(src) must be a multiple of BlockSize
	CryptBlocks(dst, src []byte)

	// BlockSize returns the size of a cipher block in bytes
	BlockSize() int
}

// newBlockEngine creates a CBC encrypter or decrypter for the given key and IV
func newBlockEngine(key, iv []byte, encrypt bool) (blockEngine, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ValidateIV(iv); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, NewEnvironmentError("aes", fmt.Errorf("failed to create AES cipher: %w", err))
	}

	if encrypt {
		return cipher.NewCBCEncrypter(block, iv), nil
	}
	return cipher.NewCBCDecrypter(block, iv), nil
}

// GenerateIV generates a random IV for one container file
func GenerateIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, NewEnvironmentError("rand", fmt.Errorf("failed to generate IV: %w", err))
	}
	return iv, nil
}

// pkcs7Pad returns the final padded block(s) for a trailing partial block
func pkcs7Pad(tail []byte) []byte {
	n := BlockSize - len(tail)%BlockSize
	out := make([]byte, len(tail)+n)
	copy(out, tail)
	for i := len(tail); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

// pkcs7Unpad strips padding from the final decrypted block
func pkcs7Unpad(block []byte) ([]byte, error) {
	if len(block) == 0 || len(block)%BlockSize != 0 {
		return nil, ErrIntegrity
	}
	n := int(block[len(block)-1])
	if n == 0 || n > BlockSize {
		return nil, ErrIntegrity
	}
	for _, b := range block[len(block)-n:] {
		if int(b) != n {
			return nil, ErrIntegrity
		}
	}
	return block[:len(block)-n], nil
}
