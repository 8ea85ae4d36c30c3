package coordinator

import (
	"github.com/sirupsen/logrus"

	"omemo/internal/domain"
)

// PrepareSession makes sure a session exists with every device of the
// owner identified by (ownerKey, collection), fetching bundles for the
// devices that lack one. done reports true only if every fetch succeeded;
// it reports false when the owner has no devices that are not removed.
// Removed devices are never contacted.
func (c *Coordinator) PrepareSession(ownerKey string, collection domain.Collection, done func(bool)) {
	reply := func(ok bool) { c.complete(func() { done(ok) }) }
	if !c.post(func() {
		if c.closing.Load() {
			reply(false)
			return
		}
		c.prepareSession(ownerKey, collection, reply)
	}) {
		reply(false)
	}
}

// PrepareSessionForBuddy prepares sessions with every device of a buddy.
func (c *Coordinator) PrepareSessionForBuddy(buddyKey string, done func(bool)) {
	c.PrepareSession(buddyKey, domain.CollectionBuddy, done)
}

// PrepareSessionWithOurDevices prepares sessions with the account's other
// devices.
func (c *Coordinator) PrepareSessionWithOurDevices(done func(bool)) {
	c.PrepareSession(c.accountID, domain.CollectionAccount, done)
}

// prepareSession runs on the work queue and calls done there.
func (c *Coordinator) prepareSession(ownerKey string, collection domain.Collection, done func(bool)) {
	log := c.log.WithFields(logrus.Fields{"owner": ownerKey, "collection": collection})

	var (
		devices  []domain.Device
		username domain.Username
		found    bool
	)
	err := c.store.View(func(tx domain.ReadTx) error {
		var err error
		if devices, err = tx.Devices(ownerKey, collection); err != nil {
			return err
		}
		username, found, err = tx.Username(ownerKey, collection)
		return err
	})
	if err != nil {
		log.WithError(err).Error("load devices")
		done(false)
		return
	}
	active := devices[:0]
	for _, d := range devices {
		if d.Trust != domain.TrustRemoved {
			active = append(active, d)
		}
	}
	devices = active
	if len(devices) == 0 || !found {
		log.Debug("no devices to prepare")
		done(false)
		return
	}

	local := c.engine.RegistrationID()
	j := newJoin(done)
	for _, d := range devices {
		if d.ID == local {
			continue
		}
		addr := domain.Address{Name: username, Device: d.ID}
		exists, err := c.engine.SessionExists(addr)
		if err != nil {
			log.WithError(err).WithField("peer", addr).Error("check session")
			j.add()(false)
			continue
		}
		if exists {
			continue
		}
		c.request(j.add(), func(token string) error {
			log.WithFields(logrus.Fields{"peer": addr, "token": token}).Debug("fetching bundle")
			return c.transport.FetchBundle(c.ctx, addr, token)
		})
	}
	j.seal()
}
