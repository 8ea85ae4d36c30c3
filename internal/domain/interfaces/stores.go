package interfaces

import domaintypes "omemo/internal/domain/types"

// IdentityStore persists your long-term identity keys.
type IdentityStore interface {
	SaveIdentity(passphrase string, id domaintypes.Identity) error
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
}

// PreKeyStore manages signed and one-time pre-keys on disk.
type PreKeyStore interface {
	// Signed pre-key
	SaveSignedPreKey(pair domaintypes.SignedPreKeyPair) error
	LoadSignedPreKey(id domaintypes.SignedPreKeyID) (domaintypes.SignedPreKeyPair, bool, error)
	SetCurrentSignedPreKeyID(id domaintypes.SignedPreKeyID) error
	CurrentSignedPreKeyID() (domaintypes.SignedPreKeyID, bool, error)

	// One-time pre-keys
	SaveOneTimePreKeys(pairs []domaintypes.OneTimePreKeyPair) error
	ConsumeOneTimePreKey(id domaintypes.PreKeyID) (domaintypes.OneTimePreKeyPair, bool, error)
	ListOneTimePreKeys() ([]domaintypes.OneTimePreKeyPair, error)
	MaxPreKeyID() (domaintypes.PreKeyID, bool, error)
}

// ConversationStore keeps per-device Double-Ratchet state.
type ConversationStore interface {
	SaveConversation(conversation domaintypes.Conversation) error
	LoadConversation(peer domaintypes.Address) (domaintypes.Conversation, bool, error)
	DeleteConversation(peer domaintypes.Address) error
}

// Store is the transactional record store: accounts, buddies, devices and
// messages. Transactions are short and synchronous.
type Store interface {
	View(fn func(tx ReadTx) error) error
	Update(fn func(tx WriteTx) error) error
}

// ReadTx exposes lookups inside a transaction.
type ReadTx interface {
	Account(id string) (domaintypes.Account, bool, error)
	AccountByUsername(username domaintypes.Username) (domaintypes.Account, bool, error)
	Buddy(id string) (domaintypes.Buddy, bool, error)
	BuddyByUsername(accountID string, username domaintypes.Username) (domaintypes.Buddy, bool, error)
	Buddies(accountID string) ([]domaintypes.Buddy, error)
	Username(key string, collection domaintypes.Collection) (domaintypes.Username, bool, error)
	Devices(parentKey string, collection domaintypes.Collection) ([]domaintypes.Device, error)
	Device(parentKey string, collection domaintypes.Collection, id domaintypes.DeviceID) (domaintypes.Device, bool, error)
	Messages(buddyID string, limit int) ([]domaintypes.Message, error)
}

// WriteTx adds mutations to ReadTx.
type WriteTx interface {
	ReadTx
	SaveAccount(account domaintypes.Account) error
	SaveBuddy(buddy domaintypes.Buddy) error
	SaveDevice(device domaintypes.Device) error
	RemoveDevice(parentKey string, collection domaintypes.Collection, id domaintypes.DeviceID) error
	SaveMessage(message domaintypes.Message) error
	MarkDelivered(buddyID, messageID string) (bool, error)
}
