package store

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	keystoreFormat  = "omemo-keystore"
	keystoreVersion = 2
	saltSize        = 16
)

var (
	// ErrWrongPassphrase is returned when a keystore does not open with the
	// given passphrase, or its contents were modified.
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted keystore")
	// ErrKeystoreFormat is returned for files that are not a keystore this
	// build can read.
	ErrKeystoreFormat = errors.New("unreadable keystore")
)

type kdfParams struct {
	N int `json:"n"`
	R int `json:"r"`
	P int `json:"p"`
}

var (
	defaultKDF = kdfParams{N: 1 << 15, R: 8, P: 1}
	// maxKDF caps the work a keystore file can ask for.
	maxKDF = kdfParams{N: 1 << 20, R: 16, P: 4}
)

func (k kdfParams) valid() bool {
	return k.N > 1 && k.N&(k.N-1) == 0 && k.N <= maxKDF.N &&
		k.R > 0 && k.R <= maxKDF.R &&
		k.P > 0 && k.P <= maxKDF.P
}

// keystoreFile is the on-disk form of a passphrase-sealed secret.
type keystoreFile struct {
	Format  string    `json:"format"`
	Version int       `json:"version"`
	Purpose string    `json:"purpose"`
	KDF     kdfParams `json:"kdf"`
	Salt    []byte    `json:"salt"`
	Nonce   []byte    `json:"nonce"`
	Sealed  []byte    `json:"sealed"`
}

// header is authenticated with the sealed bytes so the purpose and KDF
// cost cannot be swapped without the passphrase.
func (f *keystoreFile) header() []byte {
	return fmt.Appendf(nil, "%s/%d/%s/%d/%d/%d/%x",
		f.Format, f.Version, f.Purpose, f.KDF.N, f.KDF.R, f.KDF.P, f.Salt)
}

func (f *keystoreFile) aead(passphrase string) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), f.Salt, f.KDF.N, f.KDF.R, f.KDF.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	return chacha20poly1305.NewX(key)
}

// sealKeystore encrypts plaintext under passphrase for one purpose, such as
// "identity". The result opens only with the same purpose.
func sealKeystore(purpose, passphrase string, plaintext []byte) ([]byte, error) {
	f := keystoreFile{
		Format:  keystoreFormat,
		Version: keystoreVersion,
		Purpose: purpose,
		KDF:     defaultKDF,
		Salt:    make([]byte, saltSize),
		Nonce:   make([]byte, chacha20poly1305.NonceSizeX),
	}
	if _, err := rand.Read(f.Salt); err != nil {
		return nil, err
	}
	if _, err := rand.Read(f.Nonce); err != nil {
		return nil, err
	}
	aead, err := f.aead(passphrase)
	if err != nil {
		return nil, err
	}
	f.Sealed = aead.Seal(nil, f.Nonce, plaintext, f.header())
	return json.MarshalIndent(f, "", "  ")
}

func openKeystore(purpose, passphrase string, data []byte) ([]byte, error) {
	var f keystoreFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeystoreFormat, err)
	}
	switch {
	case f.Format != keystoreFormat:
		return nil, fmt.Errorf("%w: format %q", ErrKeystoreFormat, f.Format)
	case f.Version != keystoreVersion:
		return nil, fmt.Errorf("%w: version %d", ErrKeystoreFormat, f.Version)
	case f.Purpose != purpose:
		return nil, fmt.Errorf("%w: holds %q, want %q", ErrKeystoreFormat, f.Purpose, purpose)
	case !f.KDF.valid():
		return nil, fmt.Errorf("%w: scrypt parameters out of range", ErrKeystoreFormat)
	case len(f.Salt) != saltSize || len(f.Nonce) != chacha20poly1305.NonceSizeX:
		return nil, fmt.Errorf("%w: bad salt or nonce", ErrKeystoreFormat)
	}

	aead, err := f.aead(passphrase)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, f.Nonce, f.Sealed, f.header())
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}
