package types

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrKeyLength is returned when a wire key has the wrong number of bytes.
var ErrKeyLength = errors.New("key has wrong length")

// X25519Public is a Curve25519 public key as carried in bundles, pre-key
// messages and ratchet headers.
type X25519Public [32]byte

// X25519PublicFrom copies a 32-byte wire key.
func X25519PublicFrom(b []byte) (X25519Public, error) {
	var k X25519Public
	if len(b) != len(k) {
		return k, fmt.Errorf("x25519 public: %w (%d bytes)", ErrKeyLength, len(b))
	}
	copy(k[:], b)
	return k, nil
}

func (p X25519Public) Slice() []byte  { return p[:] }
func (p X25519Public) String() string { return hex.EncodeToString(p[:]) }

// X25519Private never prints its bytes.
type X25519Private [32]byte

func (k X25519Private) Slice() []byte  { return k[:] }
func (X25519Private) String() string   { return "x25519-private(redacted)" }
func (X25519Private) GoString() string { return "x25519-private(redacted)" }

// Ed25519Public is the signing half of a wire identity key.
type Ed25519Public [32]byte

// Ed25519PublicFrom copies a 32-byte wire key.
func Ed25519PublicFrom(b []byte) (Ed25519Public, error) {
	var k Ed25519Public
	if len(b) != len(k) {
		return k, fmt.Errorf("ed25519 public: %w (%d bytes)", ErrKeyLength, len(b))
	}
	copy(k[:], b)
	return k, nil
}

func (p Ed25519Public) Slice() []byte  { return p[:] }
func (p Ed25519Public) String() string { return hex.EncodeToString(p[:]) }

// Ed25519Private is the seed and public key, as crypto/ed25519 lays it out.
// Like X25519Private it never prints its bytes.
type Ed25519Private [64]byte

func (k Ed25519Private) Slice() []byte  { return k[:] }
func (Ed25519Private) String() string   { return "ed25519-private(redacted)" }
func (Ed25519Private) GoString() string { return "ed25519-private(redacted)" }
