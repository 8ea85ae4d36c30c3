package coordinator

import (
	"bytes"
	"crypto/rand"
	"math/big"

	"github.com/sirupsen/logrus"

	"omemo/internal/domain"
)

func (c *Coordinator) handleBundleFetched(ev domain.BundleFetched) {
	log := c.log.WithFields(logrus.Fields{"from": ev.From, "peer_device": ev.Bundle.DeviceID, "token": ev.Token})

	if ev.From == c.username && ev.Bundle.DeviceID == c.engine.RegistrationID() {
		c.checkPublishedBundle(ev.Bundle)
		return
	}

	if len(ev.Bundle.PreKeys) == 0 {
		log.Debug("bundle has no pre-keys")
		c.corr.Resolve(ev.Token, false)
		return
	}
	pinned, err := c.pinnedIdentity(ev.From, ev.Bundle.DeviceID)
	if err != nil {
		log.WithError(err).Error("load device identity")
		c.corr.Resolve(ev.Token, false)
		return
	}
	if len(pinned) > 0 && !bytes.Equal(pinned, ev.Bundle.IdentityKey) {
		log.Warn("bundle identity key differs from the recorded one")
		c.corr.Resolve(ev.Token, false)
		return
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(ev.Bundle.PreKeys))))
	if err != nil {
		log.WithError(err).Error("pick pre-key")
		c.corr.Resolve(ev.Token, false)
		return
	}
	pk := ev.Bundle.PreKeys[n.Int64()]

	in := domain.IncomingBundle{
		DeviceID:              ev.Bundle.DeviceID,
		IdentityKey:           ev.Bundle.IdentityKey,
		SignedPreKeyID:        ev.Bundle.SignedPreKey.ID,
		SignedPreKey:          ev.Bundle.SignedPreKey.PublicKey,
		SignedPreKeySignature: ev.Bundle.SignedPreKey.Signature,
		PreKeyID:              pk.ID,
		PreKey:                pk.PublicKey,
	}
	if err := c.engine.ConsumeIncomingBundle(ev.From, in); err != nil {
		log.WithError(err).Warn("rejected bundle")
		c.corr.Resolve(ev.Token, false)
		return
	}
	if len(pinned) == 0 {
		err = c.store.Update(func(tx domain.WriteTx) error {
			parentKey, collection, ok, err := c.ownerOf(tx, ev.From)
			if err != nil || !ok {
				return err
			}
			d, ok, err := tx.Device(parentKey, collection, ev.Bundle.DeviceID)
			if err != nil || !ok {
				return err
			}
			return pinIdentity(tx, d, ev.Bundle.IdentityKey)
		})
		if err != nil {
			log.WithError(err).Error("record device identity")
		}
	}
	log.Debug("session established")
	c.corr.Resolve(ev.Token, true)
}

// CheckPublishedBundle fetches this device's bundle from the relay. When it
// carries a foreign identity key the local bundle is republished. No
// request is registered, so the answer never resolves a token.
func (c *Coordinator) CheckPublishedBundle() {
	c.post(func() {
		if c.closing.Load() {
			return
		}
		self := domain.Address{Name: c.username, Device: c.engine.RegistrationID()}
		if err := c.transport.FetchBundle(c.ctx, self, ""); err != nil {
			c.log.WithError(err).Warn("fetch own bundle")
		}
	})
}

func (c *Coordinator) handleBundleFetchFailed(ev domain.BundleFetchFailed) {
	c.log.WithError(ev.Err).WithFields(logrus.Fields{
		"from":        ev.From,
		"peer_device": ev.DeviceID,
		"token":       ev.Token,
	}).Debug("bundle fetch failed")
	c.corr.Resolve(ev.Token, false)
}

// checkPublishedBundle republishes the local bundle when the relay holds
// one with a different identity key.
func (c *Coordinator) checkPublishedBundle(published domain.Bundle) {
	own, err := c.OwnBundle()
	if err != nil {
		c.log.WithError(err).Error("load own bundle")
		return
	}
	if bytes.Equal(own.IdentityKey, published.IdentityKey) {
		return
	}
	c.log.Warn("published bundle has a foreign identity key; republishing")
	if err := c.transport.PublishBundle(c.ctx, own); err != nil {
		c.log.WithError(err).Warn("republish bundle")
	}
}
