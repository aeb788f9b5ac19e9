package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const saltSize = 16

// ErrWrongPassphrase is returned when sealed data cannot be opened.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted data")

// Box seals small secrets, such as identity keys, with a passphrase. A nil
// Box passes data through unchanged.
type Box struct {
	passphrase []byte
}

// NewBox returns a Box for passphrase, or nil when passphrase is empty.
func NewBox(passphrase string) *Box {
	if passphrase == "" {
		return nil
	}
	return &Box{passphrase: []byte(passphrase)}
}

// Enabled reports whether b actually encrypts.
func (b *Box) Enabled() bool {
	return b != nil
}

func (b *Box) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(b.passphrase, salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext. The output is salt || nonce || ciphertext; every
// call uses a fresh salt and nonce.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	if b == nil {
		return plaintext, nil
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	gcm, err := b.aead(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Open reverses Seal.
func (b *Box) Open(sealed []byte) ([]byte, error) {
	if b == nil {
		return sealed, nil
	}
	if len(sealed) < saltSize {
		return nil, fmt.Errorf("%w: sealed data too short", ErrWrongPassphrase)
	}
	gcm, err := b.aead(sealed[:saltSize])
	if err != nil {
		return nil, err
	}
	rest := sealed[saltSize:]
	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: sealed data too short", ErrWrongPassphrase)
	}
	plaintext, err := gcm.Open(nil, rest[:gcm.NonceSize()], rest[gcm.NonceSize():], nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}
