// Package memzero wipes key material once it is no longer needed.
package memzero

// Zero overwrites b with zeros.
func Zero(b []byte) {
	clear(b)
}

// All zeroes every buffer in bufs.
func All(bufs ...[]byte) {
	for _, b := range bufs {
		clear(b)
	}
}
