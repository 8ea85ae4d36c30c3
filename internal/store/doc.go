// Package store provides persistence for the messaging core.
//
// Key material lives in small JSON files under the user's home directory,
// written atomically via temp-file-and-rename and guarded by a mutex:
//   - Identity keys, sealed with a passphrase (IdentityFileStore)
//   - Signed and one-time pre-keys (PreKeyFileStore)
//   - Double Ratchet state per remote device (ConversationFileStore)
//
// Accounts, buddies, devices and messages live in SQLite (DB) and are only
// touched inside View and Update transactions.
package store
