package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// PayloadKeySize is the AES-128 key length used for message bodies.
	PayloadKeySize = 16
	// IVSize is the GCM nonce length.
	IVSize = 12
	// TagSize is the GCM authentication tag length appended to payloads.
	TagSize = 16
)

var (
	// ErrPayloadKeySize is returned for keys that are not PayloadKeySize long.
	ErrPayloadKeySize = errors.New("payload key must be 16 bytes")
	// ErrIVSize is returned for IVs that are not IVSize long.
	ErrIVSize = errors.New("iv must be 12 bytes")
	// ErrTagSize is returned for tags that are not TagSize long.
	ErrTagSize = errors.New("tag must be 16 bytes")
)

// GeneratePayloadKey returns a fresh random message key.
func GeneratePayloadKey() ([]byte, error) {
	key := make([]byte, PayloadKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateIV returns a fresh random nonce.
func GenerateIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	return iv, nil
}

// SealPayload encrypts plaintext and returns the ciphertext and tag separately.
func SealPayload(key, iv, plaintext []byte) (ciphertext, tag []byte, err error) {
	aead, err := payloadAEAD(key, iv)
	if err != nil {
		return nil, nil, err
	}
	sealed := aead.Seal(nil, iv, plaintext, nil)
	n := len(sealed) - TagSize
	return sealed[:n], sealed[n:], nil
}

// OpenPayload authenticates and decrypts ciphertext with its detached tag.
func OpenPayload(key, iv, ciphertext, tag []byte) ([]byte, error) {
	if len(tag) != TagSize {
		return nil, ErrTagSize
	}
	aead, err := payloadAEAD(key, iv)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	pt, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	return pt, nil
}

// SplitPayload separates a combined ciphertext ‖ tag blob.
func SplitPayload(payload []byte) (ciphertext, tag []byte, err error) {
	if len(payload) < TagSize {
		return nil, nil, ErrTagSize
	}
	n := len(payload) - TagSize
	return payload[:n], payload[n:], nil
}

func payloadAEAD(key, iv []byte) (cipher.AEAD, error) {
	if len(key) != PayloadKeySize {
		return nil, ErrPayloadKeySize
	}
	if len(iv) != IVSize {
		return nil, ErrIVSize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
