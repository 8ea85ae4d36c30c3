package coordinator

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"omemo/internal/crypto"
	"omemo/internal/domain"
)

func (c *Coordinator) handleKeyData(ev domain.KeyDataReceived) {
	log := c.log.WithFields(logrus.Fields{
		"from":        ev.From,
		"peer_device": ev.SenderDevice,
		"message_id":  ev.MessageID,
	})

	if len(ev.Envelope.Payload) <= crypto.TagSize {
		log.Debug("dropping message: payload too short")
		return
	}

	// Only the first entry addressed to this device is tried.
	local := c.engine.RegistrationID()
	var (
		wrapped []byte
		found   bool
	)
	for _, k := range ev.Envelope.Keys {
		if k.DeviceID == local {
			wrapped, found = k.Data, true
			break
		}
	}
	if !found {
		log.Debug("dropping message: no key for this device")
		return
	}

	pinned, err := c.pinnedIdentity(ev.From, ev.SenderDevice)
	if err != nil {
		log.WithError(err).Error("load device identity")
		return
	}
	key, identityKey, err := c.engine.UnwrapKey(domain.Address{Name: ev.From, Device: ev.SenderDevice}, pinned, wrapped)
	if err != nil {
		log.WithError(err).Debug("dropping message: unwrap key")
		return
	}
	ct, tag, err := crypto.SplitPayload(ev.Envelope.Payload)
	if err != nil {
		log.WithError(err).Debug("dropping message: split payload")
		return
	}
	plaintext, err := crypto.OpenPayload(key, ev.Envelope.IV, ct, tag)
	if err != nil {
		log.WithError(err).Debug("dropping message: open payload")
		return
	}

	// A message from our own username was sent by another of our devices
	// and belongs to the conversation with its recipient.
	carbon := ev.From == c.username
	buddyName := ev.From
	if carbon {
		buddyName = ev.To
	}

	now := c.now()
	var (
		msg   domain.Message
		saved bool
	)
	err = c.store.Update(func(tx domain.WriteTx) error {
		buddy, ok, err := tx.BuddyByUsername(c.accountID, buddyName)
		if err != nil {
			return err
		}
		if !ok {
			log.WithField("buddy", buddyName).Debug("dropping message: unknown buddy")
			return nil
		}

		msg = domain.Message{
			ID:        uuid.NewString(),
			BuddyID:   buddy.ID,
			Incoming:  !carbon,
			Text:      string(plaintext),
			Security:  domain.SecurityOMEMO,
			MessageID: ev.MessageID,
			CreatedAt: now,
		}
		if err := tx.SaveMessage(msg); err != nil {
			return err
		}
		buddy.LastMessageAt = now
		if err := tx.SaveBuddy(buddy); err != nil {
			return err
		}

		parentKey, collection := buddy.ID, domain.CollectionBuddy
		if carbon {
			parentKey, collection = c.accountID, domain.CollectionAccount
		}
		device, ok, err := tx.Device(parentKey, collection, ev.SenderDevice)
		if err != nil {
			return err
		}
		if ok {
			device.LastSeen = now
			if len(device.IdentityKey) == 0 {
				device.IdentityKey = identityKey
			}
			if err := tx.SaveDevice(device); err != nil {
				return err
			}
		} else {
			log.Debug("sender device not in device list")
		}

		if !carbon && ev.MessageID != "" {
			if err := c.transport.SendReceipt(c.ctx, ev.From, ev.MessageID); err != nil {
				log.WithError(err).Warn("send delivery receipt")
			}
		}
		saved = true
		return nil
	})
	if err != nil {
		log.WithError(err).Error("store incoming message")
		return
	}
	if !saved {
		return
	}
	log.Debug("message received")
	if msg.Incoming {
		c.complete(func() { c.notifier.Notify(msg) })
	}
}

func (c *Coordinator) handleReceipt(ev domain.ReceiptReceived) {
	log := c.log.WithFields(logrus.Fields{"from": ev.From, "message_id": ev.MessageID})
	err := c.store.Update(func(tx domain.WriteTx) error {
		buddy, ok, err := tx.BuddyByUsername(c.accountID, ev.From)
		if err != nil {
			return err
		}
		if !ok {
			log.Debug("receipt from unknown buddy")
			return nil
		}
		ok, err = tx.MarkDelivered(buddy.ID, ev.MessageID)
		if err == nil && !ok {
			log.Debug("receipt for unknown message")
		}
		return err
	})
	if err != nil {
		log.WithError(err).Error("mark delivered")
	}
}
