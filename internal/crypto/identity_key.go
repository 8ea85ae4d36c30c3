package crypto

import (
	"errors"

	"omemo/internal/domain"
)

// IdentityKeySize is the length of a wire identity key.
const IdentityKeySize = 64

// ErrBadIdentityKey is returned for identity keys of the wrong length.
var ErrBadIdentityKey = errors.New("identity key must be 64 bytes")

// IdentityKey encodes the public halves of id as X25519 ‖ Ed25519.
func IdentityKey(id domain.Identity) []byte {
	out := make([]byte, 0, IdentityKeySize)
	out = append(out, id.XPub[:]...)
	return append(out, id.EdPub[:]...)
}

// ParseIdentityKey splits a wire identity key.
func ParseIdentityKey(b []byte) (x domain.X25519Public, ed domain.Ed25519Public, err error) {
	if len(b) != IdentityKeySize {
		return x, ed, ErrBadIdentityKey
	}
	if x, err = domain.X25519PublicFrom(b[:32]); err != nil {
		return x, ed, err
	}
	ed, err = domain.Ed25519PublicFrom(b[32:])
	return x, ed, err
}
