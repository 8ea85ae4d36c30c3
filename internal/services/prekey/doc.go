// Package prekey manages signed pre-keys and one-time pre-keys for X3DH
// bootstrap.
//
// One-time pre-key ids are uint32 and never reused: new keys always start
// after the highest id ever issued, even when earlier keys were consumed.
package prekey
