// Package main runs the in-memory HTTP relay that stores device lists and
// bundles and queues stanzas per device until they are fetched.
//
// HTTP API (all under /v1)
//
//	PUT  /devices/{user}                   replace a user's device list
//	GET  /devices/{user}                   fetch a device list
//	PUT  /bundles/{user}/{device}          publish a device bundle
//	GET  /bundles/{user}/{device}          fetch a device bundle
//	POST /stanzas/{user}                   fan a stanza out to every device of {user}
//	GET  /inbox/{user}/{device}?limit=N    read queued stanzas
//	POST /inbox/{user}/{device}/ack        drop the first {"count": N} stanzas
//
// Messages sent to another user are copied to the sender's other devices as
// carbons. Receipts are not.
//
// All state is held in memory and lost on exit. The relay never sees
// plaintext or private keys.
//
// Flags: --config (same file as the omemo CLI) and --listen. SIGINT and
// SIGTERM trigger a graceful shutdown.
package main
