package interfaces

import domaintypes "omemo/internal/domain/types"

// IdentityService creates, retrieves, and inspects your identity keys.
type IdentityService interface {
	GenerateIdentity(passphrase string) (
		domaintypes.Identity,
		domaintypes.Fingerprint,
		error,
	)
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
	FingerprintIdentity(passphrase string) (domaintypes.Fingerprint, error)
}

// PreKeyService generates and assembles your pre-key bundles.
type PreKeyService interface {
	LoadOwnBundle() (domaintypes.Bundle, bool, error)
	GenerateOwnBundle(preKeyCount int) (domaintypes.Bundle, error)
	GeneratePreKeys(start domaintypes.PreKeyID, count int) ([]domaintypes.PreKey, error)
	MaxPreKeyID() (domaintypes.PreKeyID, bool, error)
}

// SessionEngine owns per-device session state. The coordinator only asks
// whether a session exists and wraps or unwraps payload keys with it.
type SessionEngine interface {
	PreKeyService

	RegistrationID() domaintypes.DeviceID
	SessionExists(peer domaintypes.Address) (bool, error)
	WrapKey(peer domaintypes.Address, key []byte) ([]byte, error)
	// UnwrapKey returns the payload key and the peer's wire identity key.
	// A non-empty pinned key refuses new sessions from any other identity.
	UnwrapKey(peer domaintypes.Address, pinned, wrapped []byte) (key, identityKey []byte, err error)
	ConsumeIncomingBundle(peer domaintypes.Username, bundle domaintypes.IncomingBundle) error
}

// Notifier shows a new message to the user. It is fire-and-forget.
type Notifier interface {
	Notify(message domaintypes.Message)
}
