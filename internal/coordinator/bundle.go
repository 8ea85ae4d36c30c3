package coordinator

import (
	"context"
	"fmt"

	"omemo/internal/domain"
)

// OwnBundle returns the local bundle, generating it on first use and
// topping the one-time pre-keys back up to the configured count.
func (c *Coordinator) OwnBundle() (domain.Bundle, error) {
	c.bundleMu.Lock()
	defer c.bundleMu.Unlock()

	b, ok, err := c.engine.LoadOwnBundle()
	if err != nil {
		return domain.Bundle{}, fmt.Errorf("load own bundle: %w", err)
	}
	if !ok {
		c.log.WithField("pre_keys", c.preKeyCount).Info("generating own bundle")
		return c.engine.GenerateOwnBundle(c.preKeyCount)
	}

	missing := c.preKeyCount - len(b.PreKeys)
	if missing <= 0 {
		return b, nil
	}
	high, _, err := c.engine.MaxPreKeyID()
	if err != nil {
		return domain.Bundle{}, fmt.Errorf("max pre-key id: %w", err)
	}
	more, err := c.engine.GeneratePreKeys(high+1, missing)
	if err != nil {
		return domain.Bundle{}, fmt.Errorf("generate pre-keys: %w", err)
	}
	c.log.WithField("pre_keys", missing).Debug("topped up one-time pre-keys")
	b.PreKeys = append(b.PreKeys, more...)
	return b, nil
}

// PublishOwnBundle publishes the local bundle and the account's device list
// with this device on it.
func (c *Coordinator) PublishOwnBundle(ctx context.Context) error {
	if c.closing.Load() {
		return ErrClosed
	}
	b, err := c.OwnBundle()
	if err != nil {
		return err
	}
	if err := c.transport.PublishBundle(ctx, b); err != nil {
		return fmt.Errorf("publish bundle: %w", err)
	}

	local := c.engine.RegistrationID()
	ids := []domain.DeviceID{local}
	err = c.store.View(func(tx domain.ReadTx) error {
		devices, err := tx.Devices(c.accountID, domain.CollectionAccount)
		if err != nil {
			return err
		}
		for _, d := range devices {
			if d.ID != local && d.Trust != domain.TrustRemoved {
				ids = append(ids, d.ID)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load own devices: %w", err)
	}
	if err := c.transport.PublishDeviceList(ctx, ids); err != nil {
		return fmt.Errorf("publish device list: %w", err)
	}
	c.log.WithField("devices", ids).Info("published bundle and device list")
	return nil
}
