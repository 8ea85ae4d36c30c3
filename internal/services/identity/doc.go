// Package identity creates and unlocks this device's long-term keys.
//
// An identity is an X25519 key pair, an Ed25519 signing pair and the random
// registration id that names the device in device lists. It is sealed under
// the user's passphrase through domain.IdentityStore. Fingerprint renders the
// wire identity key the way peers see it.
package identity
