package types

// RatchetHeader is sent alongside every ciphertext.
type RatchetHeader struct {
	DiffieHellmanPublicKey []byte `json:"dh_pub"`
	PreviousChainLength    uint32 `json:"pn"`
	MessageIndex           uint32 `json:"n"`
}

// RatchetState contains all fields the Double Ratchet needs to track.
type RatchetState struct {
	RootKey                 []byte            `json:"root_key"`
	DiffieHellmanPrivate    X25519Private     `json:"dh_priv"`
	DiffieHellmanPublic     X25519Public      `json:"dh_pub"`
	PeerDiffieHellmanPublic X25519Public      `json:"peer_dh_pub"`
	SendChainKey            []byte            `json:"send_ck,omitempty"`
	ReceiveChainKey         []byte            `json:"recv_ck,omitempty"`
	SendMessageIndex        uint32            `json:"ns"`
	ReceiveMessageIndex     uint32            `json:"nr"`
	PreviousChainLength     uint32            `json:"pn"`
	SkippedKeys             map[string][]byte `json:"skipped_keys"`
}

// Conversation persists the ratchet state for one remote device.
//
// PeerIdentityKey is the peer's wire identity key (X25519 then Ed25519).
// PreKey is set on the initiator side and echoed with every wrapped key
// until the first message from the peer proves it holds the session.
type Conversation struct {
	Peer            Address        `json:"peer"`
	State           RatchetState   `json:"state"`
	PeerIdentity    X25519Public   `json:"peer_identity"`
	PeerIdentityKey []byte         `json:"peer_identity_key,omitempty"`
	PreKey          *PreKeyMessage `json:"pre_key,omitempty"`
	CreatedUnixSec  int64          `json:"created"`
}
