// Package ratchet is the Double Ratchet that wraps per-message payload keys.
//
// A RatchetState carries the root key, the send and receive chains and the
// message keys skipped by out-of-order delivery. Skipped keys are bounded
// per step; a header that would exceed the bound fails with
// ErrTooManySkipped before any key is derived. The state is plain data that
// the conversation store saves as JSON after every successful step.
//
// RatchetState is not safe for concurrent use; the session engine owns it.
package ratchet
