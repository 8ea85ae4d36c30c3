// Package relay is the store-and-forward side of omemo: an in-memory HTTP
// relay server, a JSON client for it, and a Transport that turns relay
// calls into coordinator events.
//
// HTTP API (all under /v1):
//
//	PUT  /devices/{user}                 publish a device list
//	GET  /devices/{user}                 fetch a device list
//	PUT  /bundles/{user}/{device}        publish one device's bundle
//	GET  /bundles/{user}/{device}        fetch one device's bundle
//	POST /stanzas/{user}                 queue a stanza for every device of user
//	GET  /inbox/{user}/{device}?limit=N  read queued stanzas
//	POST /inbox/{user}/{device}/ack      drop the first N queued stanzas
//
// Message stanzas are also copied to the sender's other devices, which is
// how a user's devices see what the others sent.
//
// The relay never sees plaintext or private keys. Non-2xx responses carry
// a short JSON error and surface in the client as *StatusError.
package relay
