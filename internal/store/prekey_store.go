package store

import (
	"path/filepath"
	"sort"
	"sync"

	"omemo/internal/domain"
)

const (
	spkPairsFile   = "spk_pairs.json"
	opkPairsFile   = "opk_pairs.json"
	prekeyMetaFile = "prekey_meta.json"
)

// PreKeyFileStore persists signed and one-time pre-key state to disk.
type PreKeyFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewPreKeyFileStore returns a PreKeyFileStore rooted at dir.
func NewPreKeyFileStore(dir string) *PreKeyFileStore {
	return &PreKeyFileStore{dir: dir}
}

// prekeyMeta tracks state that must survive consumption of every
// one-time pre-key: ids are never reused.
type prekeyMeta struct {
	CurrentSignedPreKeyID *domain.SignedPreKeyID `json:"current_signed_pre_key_id,omitempty"`
	MaxPreKeyID           *domain.PreKeyID       `json:"max_pre_key_id,omitempty"`
}

// SaveSignedPreKey stores a signed pre-key by id.
func (s *PreKeyFileStore) SaveSignedPreKey(pair domain.SignedPreKeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return updateMap(filepath.Join(s.dir, spkPairsFile), func(m map[domain.SignedPreKeyID]domain.SignedPreKeyPair) (bool, error) {
		m[pair.ID] = pair
		return true, nil
	})
}

// LoadSignedPreKey retrieves a signed pre-key by id.
func (s *PreKeyFileStore) LoadSignedPreKey(id domain.SignedPreKeyID) (domain.SignedPreKeyPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := map[domain.SignedPreKeyID]domain.SignedPreKeyPair{}
	if err := loadJSON(filepath.Join(s.dir, spkPairsFile), &m); err != nil {
		return domain.SignedPreKeyPair{}, false, err
	}
	p, ok := m[id]
	return p, ok, nil
}

// SetCurrentSignedPreKeyID records which signed pre-key id is current.
func (s *PreKeyFileStore) SetCurrentSignedPreKeyID(id domain.SignedPreKeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMeta()
	if err != nil {
		return err
	}
	meta.CurrentSignedPreKeyID = &id
	return s.writeMeta(meta)
}

// CurrentSignedPreKeyID returns the recorded current signed pre-key id.
func (s *PreKeyFileStore) CurrentSignedPreKeyID() (domain.SignedPreKeyID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMeta()
	if err != nil || meta.CurrentSignedPreKeyID == nil {
		return 0, false, err
	}
	return *meta.CurrentSignedPreKeyID, true, nil
}

// SaveOneTimePreKeys merges the provided one-time pre-key pairs into the
// store and advances the highest id ever issued.
func (s *PreKeyFileStore) SaveOneTimePreKeys(pairs []domain.OneTimePreKeyPair) error {
	if len(pairs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMeta()
	if err != nil {
		return err
	}
	err = updateMap(filepath.Join(s.dir, opkPairsFile), func(m map[domain.PreKeyID]domain.OneTimePreKeyPair) (bool, error) {
		for _, p := range pairs {
			m[p.ID] = p
			if meta.MaxPreKeyID == nil || p.ID > *meta.MaxPreKeyID {
				id := p.ID
				meta.MaxPreKeyID = &id
			}
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	return s.writeMeta(meta)
}

// ConsumeOneTimePreKey removes and returns a single one-time pre-key by id.
func (s *PreKeyFileStore) ConsumeOneTimePreKey(id domain.PreKeyID) (domain.OneTimePreKeyPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		pair  domain.OneTimePreKeyPair
		found bool
	)
	err := updateMap(filepath.Join(s.dir, opkPairsFile), func(m map[domain.PreKeyID]domain.OneTimePreKeyPair) (bool, error) {
		pair, found = m[id]
		delete(m, id)
		return found, nil
	})
	if err != nil || !found {
		return domain.OneTimePreKeyPair{}, false, err
	}
	return pair, true, nil
}

// ListOneTimePreKeys returns the unconsumed one-time pre-keys ordered by id.
func (s *PreKeyFileStore) ListOneTimePreKeys() ([]domain.OneTimePreKeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := map[domain.PreKeyID]domain.OneTimePreKeyPair{}
	if err := loadJSON(filepath.Join(s.dir, opkPairsFile), &m); err != nil {
		return nil, err
	}
	out := make([]domain.OneTimePreKeyPair, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MaxPreKeyID returns the highest one-time pre-key id ever saved, consumed
// or not.
func (s *PreKeyFileStore) MaxPreKeyID() (domain.PreKeyID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMeta()
	if err != nil || meta.MaxPreKeyID == nil {
		return 0, false, err
	}
	return *meta.MaxPreKeyID, true, nil
}

func (s *PreKeyFileStore) readMeta() (prekeyMeta, error) {
	var meta prekeyMeta
	err := loadJSON(filepath.Join(s.dir, prekeyMetaFile), &meta)
	return meta, err
}

func (s *PreKeyFileStore) writeMeta(meta prekeyMeta) error {
	return saveJSON(filepath.Join(s.dir, prekeyMetaFile), meta)
}

// Compile-time assertion that PreKeyFileStore implements domain.PreKeyStore.
var _ domain.PreKeyStore = (*PreKeyFileStore)(nil)
