package types

import "time"

// TrustLevel records how far a device's identity key has been verified.
type TrustLevel int

const (
	// TrustUntrusted is an explicitly distrusted device.
	TrustUntrusted TrustLevel = iota
	// TrustUntrustedNew is a device seen after the first device list.
	TrustUntrustedNew
	// TrustTrustedTofu is a device accepted on first use.
	TrustTrustedTofu
	// TrustTrustedUser is a device the user verified.
	TrustTrustedUser
	// TrustRemoved is a device no longer announced by its owner.
	TrustRemoved
)

// Trusted reports whether messages may be encrypted to the device.
func (t TrustLevel) Trusted() bool {
	return t == TrustTrustedTofu || t == TrustTrustedUser
}

// String returns a short name for the trust level.
func (t TrustLevel) String() string {
	switch t {
	case TrustUntrusted:
		return "untrusted"
	case TrustUntrustedNew:
		return "untrusted-new"
	case TrustTrustedTofu:
		return "trusted-tofu"
	case TrustTrustedUser:
		return "trusted"
	case TrustRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Device is one known device of an account or buddy.
type Device struct {
	ParentKey        string     `json:"parent_key"`
	ParentCollection Collection `json:"parent_collection"`
	ID               DeviceID   `json:"id"`
	Trust            TrustLevel `json:"trust"`
	LastSeen         time.Time  `json:"last_seen"`
	IdentityKey      []byte     `json:"identity_key,omitempty"`
}

// Account is the local identity as stored in the database.
type Account struct {
	ID       string   `json:"id"`
	Username Username `json:"username"`
}

// Buddy is a contact of an account.
type Buddy struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"account_id"`
	Username      Username  `json:"username"`
	LastMessageAt time.Time `json:"last_message_at"`
}
