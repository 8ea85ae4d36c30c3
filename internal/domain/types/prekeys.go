package types

// SignedPreKeyPair is the locally stored signed pre-key.
type SignedPreKeyPair struct {
	ID        SignedPreKeyID `json:"id"`
	Priv      X25519Private  `json:"priv"`
	Pub       X25519Public   `json:"pub"`
	Signature []byte         `json:"sig"`
}

// OneTimePreKeyPair is the full (private+public) one-time pre-key stored locally.
type OneTimePreKeyPair struct {
	ID   PreKeyID      `json:"id"`
	Priv X25519Private `json:"priv"`
	Pub  X25519Public  `json:"pub"`
}

// SignedPreKey is the public half of a signed pre-key as published.
type SignedPreKey struct {
	ID        SignedPreKeyID `json:"id"`
	PublicKey []byte         `json:"publicKey"`
	Signature []byte         `json:"signature"`
}

// PreKey is a published one-time pre-key.
type PreKey struct {
	ID        PreKeyID `json:"id"`
	PublicKey []byte   `json:"publicKey"`
}

// Bundle is the pre-key material a device publishes so peers can start a
// session with it without a handshake.
type Bundle struct {
	DeviceID     DeviceID     `json:"deviceId"`
	IdentityKey  []byte       `json:"identityKey"`
	SignedPreKey SignedPreKey `json:"signedPreKey"`
	PreKeys      []PreKey     `json:"preKeys"`
}

// IncomingBundle is a fetched bundle reduced to the one pre-key chosen for
// session setup.
type IncomingBundle struct {
	DeviceID              DeviceID
	IdentityKey           []byte
	SignedPreKeyID        SignedPreKeyID
	SignedPreKey          []byte
	SignedPreKeySignature []byte
	PreKeyID              PreKeyID
	PreKey                []byte
}

// PreKeyMessage carries the X3DH handshake parameters alongside wrapped keys
// until the responder answers.
type PreKeyMessage struct {
	InitiatorIdentityKey X25519Public   `json:"initiator_identity_key"`
	InitiatorSigningKey  Ed25519Public  `json:"initiator_signing_key"`
	EphemeralKey         X25519Public   `json:"ephemeral_key"`
	SignedPreKeyID       SignedPreKeyID `json:"signed_pre_key_id"`
	PreKeyID             PreKeyID       `json:"pre_key_id"`
}
