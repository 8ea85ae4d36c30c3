package prekey

import (
	"errors"

	"omemo/internal/crypto"
	"omemo/internal/domain"
)

var errNoSignedPreKey = errors.New("no signed pre-key available")

// Service manages pre-key pairs and builds the public bundle of the local
// device.
type Service struct {
	id domain.Identity
	ps domain.PreKeyStore
}

// New returns a pre-key service signing with id.
func New(id domain.Identity, ps domain.PreKeyStore) *Service {
	return &Service{id: id, ps: ps}
}

// LoadOwnBundle builds the bundle from the current signed pre-key and the
// unconsumed one-time pre-keys. ok is false until GenerateOwnBundle has run.
func (s *Service) LoadOwnBundle() (domain.Bundle, bool, error) {
	spkID, ok, err := s.ps.CurrentSignedPreKeyID()
	if err != nil || !ok {
		return domain.Bundle{}, false, err
	}
	spk, found, err := s.ps.LoadSignedPreKey(spkID)
	if err != nil {
		return domain.Bundle{}, false, err
	}
	if !found {
		return domain.Bundle{}, false, errNoSignedPreKey
	}
	pairs, err := s.ps.ListOneTimePreKeys()
	if err != nil {
		return domain.Bundle{}, false, err
	}

	b := domain.Bundle{
		DeviceID:    s.id.RegistrationID,
		IdentityKey: crypto.IdentityKey(s.id),
		SignedPreKey: domain.SignedPreKey{
			ID:        spk.ID,
			PublicKey: spk.Pub.Slice(),
			Signature: spk.Signature,
		},
		PreKeys: make([]domain.PreKey, 0, len(pairs)),
	}
	for _, p := range pairs {
		b.PreKeys = append(b.PreKeys, domain.PreKey{ID: p.ID, PublicKey: p.Pub.Slice()})
	}
	return b, true, nil
}

// GenerateOwnBundle rotates in a fresh signed pre-key, adds preKeyCount
// one-time pre-keys after the highest id ever issued, and returns the
// resulting bundle.
func (s *Service) GenerateOwnBundle(preKeyCount int) (domain.Bundle, error) {
	var spkID domain.SignedPreKeyID = 1
	if cur, ok, err := s.ps.CurrentSignedPreKeyID(); err != nil {
		return domain.Bundle{}, err
	} else if ok {
		spkID = cur + 1
	}

	spkPriv, spkPub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.Bundle{}, err
	}
	pair := domain.SignedPreKeyPair{
		ID:        spkID,
		Priv:      spkPriv,
		Pub:       spkPub,
		Signature: crypto.SignEd25519(s.id.EdPriv, spkPub[:]),
	}
	if err := s.ps.SaveSignedPreKey(pair); err != nil {
		return domain.Bundle{}, err
	}
	if err := s.ps.SetCurrentSignedPreKeyID(spkID); err != nil {
		return domain.Bundle{}, err
	}

	start, err := s.nextPreKeyID()
	if err != nil {
		return domain.Bundle{}, err
	}
	if _, err := s.GeneratePreKeys(start, preKeyCount); err != nil {
		return domain.Bundle{}, err
	}

	b, _, err := s.LoadOwnBundle()
	return b, err
}

// GeneratePreKeys creates count one-time pre-keys numbered from start,
// stores them and returns their public halves.
func (s *Service) GeneratePreKeys(start domain.PreKeyID, count int) ([]domain.PreKey, error) {
	if count <= 0 {
		return nil, nil
	}
	pairs := make([]domain.OneTimePreKeyPair, 0, count)
	out := make([]domain.PreKey, 0, count)
	for i := 0; i < count; i++ {
		priv, pub, err := crypto.GenerateX25519()
		if err != nil {
			return nil, err
		}
		id := start + domain.PreKeyID(i)
		pairs = append(pairs, domain.OneTimePreKeyPair{ID: id, Priv: priv, Pub: pub})
		out = append(out, domain.PreKey{ID: id, PublicKey: pub.Slice()})
	}
	if err := s.ps.SaveOneTimePreKeys(pairs); err != nil {
		return nil, err
	}
	return out, nil
}

// MaxPreKeyID returns the highest one-time pre-key id ever issued.
func (s *Service) MaxPreKeyID() (domain.PreKeyID, bool, error) {
	return s.ps.MaxPreKeyID()
}

func (s *Service) nextPreKeyID() (domain.PreKeyID, error) {
	high, ok, err := s.ps.MaxPreKeyID()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	return high + 1, nil
}

// Compile-time assertion that Service implements domain.PreKeyService.
var _ domain.PreKeyService = (*Service)(nil)
