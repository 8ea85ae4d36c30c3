// Package app wires application dependencies for the CLI.
//
// NewWire builds the stores and relay client from config. Open unlocks
// the identity and starts a coordinator with a relay transport attached,
// exposing blocking helpers for commands to use.
package app
