package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const fingerprintGroup = 8

// Fingerprint renders a wire identity key for comparison out of band: the
// SHA-256 of the key as eight space-separated groups of eight hex digits.
//
// Both halves of the key are covered, so a device that swaps only its
// signing key still shows a different fingerprint.
func Fingerprint(identityKey []byte) string {
	sum := sha256.Sum256(identityKey)
	digits := hex.EncodeToString(sum[:])

	var b strings.Builder
	for i := 0; i < len(digits); i += fingerprintGroup {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(digits[i : i+fingerprintGroup])
	}
	return b.String()
}

// MatchFingerprint reports whether typed, as read out by the other party,
// is the fingerprint of identityKey. Case and whitespace are ignored.
func MatchFingerprint(identityKey []byte, typed string) bool {
	got := strings.ToLower(strings.Join(strings.Fields(typed), ""))
	want := strings.ReplaceAll(Fingerprint(identityKey), " ", "")
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
