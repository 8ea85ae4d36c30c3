package types

import "time"

// KeyData is the payload key wrapped for one device.
type KeyData struct {
	DeviceID DeviceID `json:"deviceId"`
	Data     []byte   `json:"data"`
}

// Envelope is the encrypted part of one message: a shared ciphertext plus
// the payload key wrapped for every recipient device.
//
// Payload is the AEAD ciphertext followed by its 16-byte tag.
type Envelope struct {
	IV      []byte    `json:"iv"`
	Keys    []KeyData `json:"keys"`
	Payload []byte    `json:"payload"`
}

// StanzaKind tells what a relayed stanza carries.
type StanzaKind string

const (
	// StanzaMessage carries an Envelope.
	StanzaMessage StanzaKind = "message"
	// StanzaReceipt acknowledges delivery of MessageID.
	StanzaReceipt StanzaKind = "receipt"
)

// Stanza is the unit the relay stores and forwards.
type Stanza struct {
	Kind       StanzaKind `json:"kind"`
	From       Username   `json:"from"`
	FromDevice DeviceID   `json:"from_device"`
	To         Username   `json:"to"`
	MessageID  string     `json:"message_id"`
	Envelope   *Envelope  `json:"envelope,omitempty"`
	Timestamp  int64      `json:"timestamp"`
}

// Security names how a stored message was protected.
type Security string

// SecurityOMEMO marks messages encrypted with per-device sessions.
const SecurityOMEMO Security = "omemo"

// Message is a stored conversation record.
type Message struct {
	ID        string    `json:"id"`
	BuddyID   string    `json:"buddy_id"`
	Incoming  bool      `json:"incoming"`
	Text      string    `json:"text"`
	Security  Security  `json:"security"`
	MessageID string    `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
	Delivered bool      `json:"delivered"`
}
