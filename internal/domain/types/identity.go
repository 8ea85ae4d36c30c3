package types

// Identity holds your long-term X25519 and Ed25519 keys and the
// registration id that names this device.
type Identity struct {
	XPub           X25519Public   `json:"xpub"`
	XPriv          X25519Private  `json:"xpriv"`
	EdPub          Ed25519Public  `json:"edpub"`
	EdPriv         Ed25519Private `json:"edpriv"`
	RegistrationID DeviceID       `json:"registration_id"`
}
