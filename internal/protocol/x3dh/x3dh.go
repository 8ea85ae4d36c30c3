package x3dh

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"omemo/internal/crypto"
	"omemo/internal/domain"
	"omemo/internal/util/memzero"
)

var (
	// ErrBadSPK is returned when a signed pre-key fails verification.
	ErrBadSPK = errors.New("x3dh: bad signed pre-key signature")
	// ErrBadKey is returned when a bundle carries a malformed public key.
	ErrBadKey = errors.New("x3dh: malformed public key")
)

var info = []byte("omemo-x3dh")

// InitiatorRoot derives the root key for a session with the device that
// published b. It returns the root key, the peer's X25519 identity and the
// ephemeral public key the responder needs.
func InitiatorRoot(id domain.Identity, b domain.IncomingBundle) (rootKey []byte, peerIdentity, ephemeral domain.X25519Public, err error) {
	peerX, peerEd, err := crypto.ParseIdentityKey(b.IdentityKey)
	if err != nil {
		return nil, peerIdentity, ephemeral, err
	}
	spk, err := toX25519(b.SignedPreKey)
	if err != nil {
		return nil, peerIdentity, ephemeral, err
	}
	if !crypto.VerifyEd25519(peerEd, spk.Slice(), b.SignedPreKeySignature) {
		return nil, peerIdentity, ephemeral, ErrBadSPK
	}

	var opk *domain.X25519Public
	if len(b.PreKey) > 0 {
		k, err := toX25519(b.PreKey)
		if err != nil {
			return nil, peerIdentity, ephemeral, err
		}
		opk = &k
	}

	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, peerIdentity, ephemeral, err
	}
	defer memzero.Zero(ephPriv[:])

	dh1, err := crypto.DH(id.XPriv, spk) // DH(IKA, SPKB)
	if err != nil {
		return nil, peerIdentity, ephemeral, err
	}
	dh2, err := crypto.DH(ephPriv, peerX) // DH(EKA, IKB)
	if err != nil {
		return nil, peerIdentity, ephemeral, err
	}
	dh3, err := crypto.DH(ephPriv, spk) // DH(EKA, SPKB)
	if err != nil {
		return nil, peerIdentity, ephemeral, err
	}
	transcript := concat(dh1, dh2, dh3)
	memzero.All(dh1[:], dh2[:], dh3[:])
	if opk != nil {
		dh4, err := crypto.DH(ephPriv, *opk) // DH(EKA, OPKB)
		if err != nil {
			return nil, peerIdentity, ephemeral, err
		}
		transcript = append(transcript, dh4[:]...)
	}

	rootKey, err = derive(transcript)
	memzero.Zero(transcript)
	if err != nil {
		return nil, peerIdentity, ephemeral, err
	}
	return rootKey, peerX, ephPub, nil
}

// ResponderRoot recomputes the initiator's root key from the pre-key
// message. opkPriv is nil when the initiator used no one-time pre-key.
func ResponderRoot(id domain.Identity, spkPriv domain.X25519Private, opkPriv *domain.X25519Private, pm domain.PreKeyMessage) ([]byte, error) {
	dh1, err := crypto.DH(spkPriv, pm.InitiatorIdentityKey) // DH(SPKB, IKA)
	if err != nil {
		return nil, err
	}
	dh2, err := crypto.DH(id.XPriv, pm.EphemeralKey) // DH(IKB, EKA)
	if err != nil {
		return nil, err
	}
	dh3, err := crypto.DH(spkPriv, pm.EphemeralKey) // DH(SPKB, EKA)
	if err != nil {
		return nil, err
	}
	transcript := concat(dh1, dh2, dh3)
	memzero.All(dh1[:], dh2[:], dh3[:])
	if opkPriv != nil {
		dh4, err := crypto.DH(*opkPriv, pm.EphemeralKey) // DH(OPKB, EKA)
		if err != nil {
			return nil, err
		}
		transcript = append(transcript, dh4[:]...)
	}

	rootKey, err := derive(transcript)
	memzero.Zero(transcript)
	return rootKey, err
}

func derive(transcript []byte) ([]byte, error) {
	out := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, transcript, nil, info), out); err != nil {
		return nil, fmt.Errorf("x3dh: derive root key: %w", err)
	}
	return out, nil
}

func concat(parts ...[32]byte) []byte {
	out := make([]byte, 0, 32*(len(parts)+1))
	for _, p := range parts {
		out = append(out, p[:]...)
	}
	return out
}

func toX25519(b []byte) (domain.X25519Public, error) {
	k, err := domain.X25519PublicFrom(b)
	if err != nil {
		return k, fmt.Errorf("%w: %w", ErrBadKey, err)
	}
	return k, nil
}

