package coordinator

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"omemo/internal/domain"
)

func (c *Coordinator) handleDeviceList(ev domain.DeviceListUpdated) {
	log := c.log.WithFields(logrus.Fields{"owner": ev.Owner, "devices": ev.DeviceIDs})

	err := c.store.Update(func(tx domain.WriteTx) error {
		parentKey, collection, ok, err := c.ownerOf(tx, ev.Owner)
		if err != nil {
			return err
		}
		if !ok {
			log.Debug("device list for unknown buddy")
			return nil
		}
		return storeDeviceIDs(tx, parentKey, collection, ev.DeviceIDs, c.now())
	})
	if err != nil {
		log.WithError(err).Error("store device list")
	} else {
		log.Debug("device list stored")
	}
	if ev.Token != "" {
		c.corr.Resolve(ev.Token, err == nil)
	}
}

// storeDeviceIDs reconciles the stored devices of an owner with an
// announced list. New devices are trusted on first use only when the owner
// had no devices yet; devices missing from the list are marked removed.
func storeDeviceIDs(tx domain.WriteTx, parentKey string, collection domain.Collection, ids []domain.DeviceID, now time.Time) error {
	existing, err := tx.Devices(parentKey, collection)
	if err != nil {
		return err
	}
	known := make(map[domain.DeviceID]domain.Device, len(existing))
	for _, d := range existing {
		known[d.ID] = d
	}
	trust := domain.TrustUntrustedNew
	if len(existing) == 0 {
		trust = domain.TrustTrustedTofu
	}

	announced := make(map[domain.DeviceID]bool, len(ids))
	for _, id := range ids {
		announced[id] = true
		d, ok := known[id]
		switch {
		case !ok:
			d = domain.Device{
				ParentKey:        parentKey,
				ParentCollection: collection,
				ID:               id,
				Trust:            trust,
				LastSeen:         now,
			}
		case d.Trust == domain.TrustRemoved:
			d.Trust = domain.TrustUntrustedNew
		default:
			continue
		}
		if err := tx.SaveDevice(d); err != nil {
			return err
		}
	}

	for _, d := range existing {
		if announced[d.ID] || d.Trust == domain.TrustRemoved {
			continue
		}
		d.Trust = domain.TrustRemoved
		if err := tx.SaveDevice(d); err != nil {
			return err
		}
	}
	return nil
}

// ownerOf resolves username to the key and collection its devices are
// stored under. ok is false for an unknown buddy.
func (c *Coordinator) ownerOf(tx domain.ReadTx, username domain.Username) (string, domain.Collection, bool, error) {
	if username == c.username {
		return c.accountID, domain.CollectionAccount, true, nil
	}
	buddy, ok, err := tx.BuddyByUsername(c.accountID, username)
	if err != nil || !ok {
		return "", "", false, err
	}
	return buddy.ID, domain.CollectionBuddy, true, nil
}

// pinnedIdentity returns the identity key recorded for a device, or nil.
func (c *Coordinator) pinnedIdentity(owner domain.Username, id domain.DeviceID) ([]byte, error) {
	var key []byte
	err := c.store.View(func(tx domain.ReadTx) error {
		parentKey, collection, ok, err := c.ownerOf(tx, owner)
		if err != nil || !ok {
			return err
		}
		d, ok, err := tx.Device(parentKey, collection, id)
		if err != nil || !ok {
			return err
		}
		key = d.IdentityKey
		return nil
	})
	return key, err
}

// pinIdentity records key on a known device that has none yet.
func pinIdentity(tx domain.WriteTx, d domain.Device, key []byte) error {
	if len(d.IdentityKey) > 0 || len(key) == 0 {
		return nil
	}
	d.IdentityKey = append([]byte(nil), key...)
	return tx.SaveDevice(d)
}

// BuddySupportsOMEMO reports whether the buddy has at least one trusted device.
func (c *Coordinator) BuddySupportsOMEMO(buddyKey string) (bool, error) {
	var trusted bool
	err := c.store.View(func(tx domain.ReadTx) error {
		devices, err := tx.Devices(buddyKey, domain.CollectionBuddy)
		if err != nil {
			return err
		}
		for _, d := range devices {
			if d.Trust.Trusted() {
				trusted = true
				break
			}
		}
		return nil
	})
	return trusted, err
}

// DeviceIDs returns the device ids stored for username, which may be the
// account's own username or a buddy's. Removed devices are left out.
func (c *Coordinator) DeviceIDs(username domain.Username) ([]domain.DeviceID, error) {
	var ids []domain.DeviceID
	err := c.store.View(func(tx domain.ReadTx) error {
		parentKey, collection, ok, err := c.ownerOf(tx, username)
		if err != nil || !ok {
			return err
		}
		devices, err := tx.Devices(parentKey, collection)
		if err != nil {
			return err
		}
		for _, d := range devices {
			if d.Trust != domain.TrustRemoved {
				ids = append(ids, d.ID)
			}
		}
		return nil
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}

// IsSessionValid reports whether a session with the device exists.
func (c *Coordinator) IsSessionValid(username domain.Username, deviceID domain.DeviceID) (bool, error) {
	return c.engine.SessionExists(domain.Address{Name: username, Device: deviceID})
}

// RequestDeviceList asks the transport for the current device list of
// owner. done reports whether a list arrived and was stored.
func (c *Coordinator) RequestDeviceList(owner domain.Username, done func(bool)) {
	reply := func(ok bool) { c.complete(func() { done(ok) }) }
	if !c.post(func() {
		if c.closing.Load() {
			reply(false)
			return
		}
		c.request(reply, func(token string) error {
			return c.transport.FetchDeviceList(c.ctx, owner, token)
		})
	}) {
		reply(false)
	}
}

// RemoveDevices removes the account's devices ids from the published
// device list. On success their records are deleted.
func (c *Coordinator) RemoveDevices(ids []domain.DeviceID, done func(bool)) {
	reply := func(ok bool) { c.complete(func() { done(ok) }) }
	if !c.post(func() {
		if c.closing.Load() {
			reply(false)
			return
		}
		c.request(func(ok bool) {
			if ok {
				ok = c.deleteOwnDevices(ids)
			}
			reply(ok)
		}, func(token string) error {
			return c.transport.RemoveDevices(c.ctx, ids, token)
		})
	}) {
		reply(false)
	}
}

func (c *Coordinator) deleteOwnDevices(ids []domain.DeviceID) bool {
	err := c.store.Update(func(tx domain.WriteTx) error {
		for _, id := range ids {
			if err := tx.RemoveDevice(c.accountID, domain.CollectionAccount, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.log.WithError(err).WithField("devices", ids).Error("delete removed devices")
		return false
	}
	return true
}
