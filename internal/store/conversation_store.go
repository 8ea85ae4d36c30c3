package store

import (
	"path/filepath"
	"sync"

	"omemo/internal/domain"
)

const convFilename = "conversations.json"

// ConversationFileStore persists per-device Double-Ratchet state to disk,
// keyed by "name.device".
type ConversationFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewConversationFileStore returns a ConversationFileStore rooted at dir.
func NewConversationFileStore(dir string) *ConversationFileStore {
	return &ConversationFileStore{dir: dir}
}

// SaveConversation writes the Conversation for conv.Peer.
func (s *ConversationFileStore) SaveConversation(conv domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return updateMap(s.path(), func(m map[string]domain.Conversation) (bool, error) {
		m[conv.Peer.String()] = conv
		return true, nil
	})
}

// LoadConversation retrieves the Conversation for peer.
func (s *ConversationFileStore) LoadConversation(peer domain.Address) (domain.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := map[string]domain.Conversation{}
	if err := loadJSON(s.path(), &m); err != nil {
		return domain.Conversation{}, false, err
	}
	c, ok := m[peer.String()]
	return c, ok, nil
}

// DeleteConversation forgets the state for peer. Missing entries are not an error.
func (s *ConversationFileStore) DeleteConversation(peer domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return updateMap(s.path(), func(m map[string]domain.Conversation) (bool, error) {
		if _, ok := m[peer.String()]; !ok {
			return false, nil
		}
		delete(m, peer.String())
		return true, nil
	})
}

func (s *ConversationFileStore) path() string { return filepath.Join(s.dir, convFilename) }

// Compile-time assertion that ConversationFileStore implements domain.ConversationStore.
var _ domain.ConversationStore = (*ConversationFileStore)(nil)
