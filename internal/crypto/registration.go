package crypto

import (
	"crypto/rand"
	"encoding/binary"

	"omemo/internal/domain"
)

// maxRegistrationID bounds registration ids to 31 bits so they survive
// signed encodings.
const maxRegistrationID = 1<<31 - 1

// GenerateRegistrationID returns a random device id in [1, 2^31-1].
func GenerateRegistrationID() (domain.DeviceID, error) {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		v := binary.BigEndian.Uint32(b[:]) & maxRegistrationID
		if v != 0 {
			return domain.DeviceID(v), nil
		}
	}
}
