// Package x3dh derives the root key that starts a Double Ratchet session
// with a remote device.
//
// The initiator works from the device's IncomingBundle. Its wire identity
// key is X25519 followed by Ed25519, and the Ed25519 half must verify the
// signed pre-key before anything else happens. The DH transcript is
//
//	IKa·SPKb, EKa·IKb, EKa·SPKb[, EKa·OPKb]
//
// and HKDF-SHA256 turns it into the 32-byte root key. The responder rebuilds
// the same transcript from the PreKeyMessage and its own signed and one-time
// pre-keys.
//
// DH outputs are wiped once hashed. Malformed keys fail with ErrBadKey and
// bad signatures with ErrBadSPK.
package x3dh
