package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
)

// Crypter encrypts secrets stored at rest (OAuth tokens)
type Crypter struct {
	key []byte
}

// NewCrypter returns nil when no key is configured; a nil Crypter stores
// values in plain text.
func NewCrypter(key string) *Crypter {
	if key == "" {
		return nil
	}
	return &Crypter{key: []byte(key)}
}

func (cr *Crypter) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || cr == nil {
		return plaintext, nil
	}

	block, err := aes.NewCipher(cr.key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(plaintext))
	iv := ciphertext[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], []byte(plaintext))

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

func (cr *Crypter) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" || cr == nil {
		return ciphertext, nil
	}

	block, err := aes.NewCipher(cr.key)
	if err != nil {
		return "", err
	}

	decoded, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	if len(decoded) < aes.BlockSize {
		return "", errors.New("ciphertext too short")
	}

	iv := decoded[:aes.BlockSize]
	decoded = decoded[aes.BlockSize:]

	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(decoded, decoded)

	return string(decoded), nil
}

// GenerateSecureToken returns n random bytes hex encoded
func GenerateSecureToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
