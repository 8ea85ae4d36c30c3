// Package session implements the per-device session engine.
//
// It performs the X3DH handshake on fetched bundles, keeps one Double
// Ratchet conversation per remote device, and wraps or unwraps the payload
// keys the coordinator hands it. Callers never see ratchet state.
package session
