package types

import (
	"fmt"
	"strconv"
)

// Username represents a relay-registered identity.
type Username string

// String returns the string form of the username.
func (u Username) String() string { return string(u) }

// Fingerprint is the grouped digest of a wire identity key, compared by
// users out of band.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// DeviceID identifies one device of an identity. It doubles as the
// registration id of the local device.
type DeviceID uint32

// String returns the decimal form of the device id.
func (id DeviceID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseDeviceID parses a decimal device id.
func ParseDeviceID(s string) (DeviceID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse device id %q: %w", s, err)
	}
	return DeviceID(v), nil
}

// SignedPreKeyID uniquely identifies a signed pre-key.
type SignedPreKeyID uint32

// PreKeyID uniquely identifies a one-time pre-key.
type PreKeyID uint32

// Address names one device of one identity.
type Address struct {
	Name   Username `json:"name"`
	Device DeviceID `json:"device"`
}

// String returns "name.device", the key used for per-device state.
func (a Address) String() string { return a.Name.String() + "." + a.Device.String() }

// Collection tells which kind of record owns a device.
type Collection string

const (
	// CollectionAccount marks devices belonging to the local account.
	CollectionAccount Collection = "account"
	// CollectionBuddy marks devices belonging to a contact.
	CollectionBuddy Collection = "buddy"
)
