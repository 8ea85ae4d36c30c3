// Package commands defines the omemo CLI.
//
// Commands
//
//   - init            Create the local identity and this device's id
//   - fingerprint     Print the identity fingerprint
//   - publish         Publish this device's bundle and the own device list
//   - buddy add|list  Manage contacts
//   - devices         Show a device list with trust, session state and fingerprints
//   - trust           Change the trust level of a device
//   - verify          Trust a device after comparing its fingerprint
//   - start-session   Establish sessions with every device of a contact
//   - send            Encrypt and fan a message out to a contact's devices
//   - recv            Fetch and decrypt queued messages (-f to keep polling)
//   - remove-device   Drop own devices from the published list
//
// The root command loads the config, sets up logging and builds the
// dependency graph before any subcommand runs. Subcommands that talk to the
// relay open the App, which unlocks the identity and starts the coordinator.
package commands
