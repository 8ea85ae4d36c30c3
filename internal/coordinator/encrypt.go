package coordinator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"omemo/internal/crypto"
	"omemo/internal/domain"
)

// EncryptAndSend encrypts body once and sends it to every trusted device of
// the buddy and of the account, except this one. Missing sessions are
// prepared first; devices whose session could not be prepared are skipped.
//
// An empty messageID is replaced by a random one. done runs exactly once on
// the callback queue.
func (c *Coordinator) EncryptAndSend(body, buddyKey, messageID string, done func(error)) {
	reply := func(err error) { c.complete(func() { done(err) }) }
	if body == "" {
		reply(ErrEmptyMessage)
		return
	}
	if messageID == "" {
		messageID = uuid.NewString()
	}
	if !c.post(func() {
		if c.closing.Load() {
			reply(ErrClosed)
			return
		}
		c.encryptAndSend(body, buddyKey, messageID, reply)
	}) {
		reply(ErrClosed)
	}
}

// Send is the blocking form of EncryptAndSend. It returns the message id
// used on the wire.
func (c *Coordinator) Send(ctx context.Context, body, buddyKey, messageID string) (string, error) {
	if messageID == "" {
		messageID = uuid.NewString()
	}
	errc := make(chan error, 1)
	c.EncryptAndSend(body, buddyKey, messageID, func(err error) { errc <- err })
	select {
	case err := <-errc:
		return messageID, err
	case <-ctx.Done():
		return messageID, ctx.Err()
	}
}

func (c *Coordinator) encryptAndSend(body, buddyKey, messageID string, reply func(error)) {
	var buddy domain.Buddy
	err := c.store.View(func(tx domain.ReadTx) error {
		b, ok, err := tx.Buddy(buddyKey)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownBuddy, buddyKey)
		}
		buddy = b
		return nil
	})
	if err != nil {
		reply(err)
		return
	}

	log := c.log.WithFields(logrus.Fields{"buddy": buddy.Username, "message_id": messageID})

	// Both preparations run concurrently; their outcome only decides which
	// devices end up with a session.
	j := newJoin(func(ok bool) {
		if !ok {
			log.Debug("some sessions could not be prepared")
		}
		if c.closing.Load() {
			reply(ErrClosed)
			return
		}
		reply(c.seal(log, buddy, body, messageID))
	})
	c.prepareSession(buddy.ID, domain.CollectionBuddy, j.add())
	c.prepareSession(c.accountID, domain.CollectionAccount, j.add())
	j.seal()
}

// seal encrypts body, wraps the key per device and hands the envelope to
// the transport.
func (c *Coordinator) seal(log *logrus.Entry, buddy domain.Buddy, body, messageID string) error {
	key, err := crypto.GeneratePayloadKey()
	if err != nil {
		return fmt.Errorf("generate payload key: %w", err)
	}
	iv, err := crypto.GenerateIV()
	if err != nil {
		return fmt.Errorf("generate iv: %w", err)
	}
	ct, tag, err := crypto.SealPayload(key, iv, []byte(body))
	if err != nil {
		return fmt.Errorf("seal payload: %w", err)
	}

	var buddyDevices, ownDevices []domain.Device
	err = c.store.View(func(tx domain.ReadTx) error {
		var err error
		if buddyDevices, err = tx.Devices(buddy.ID, domain.CollectionBuddy); err != nil {
			return err
		}
		ownDevices, err = tx.Devices(c.accountID, domain.CollectionAccount)
		return err
	})
	if err != nil {
		log.WithError(err).Error("load devices")
		return err
	}

	local := c.engine.RegistrationID()
	buddyKeys := c.wrapFor(log, buddy.Username, buddyDevices, key, 0, false)
	if len(buddyKeys) == 0 {
		return ErrNoDevicesForBuddy
	}
	ownKeys := c.wrapFor(log, c.username, ownDevices, key, local, true)
	keys := append(ownKeys, buddyKeys...)
	if len(keys) == 0 {
		return ErrNoDevices
	}

	env := domain.Envelope{
		IV:      iv,
		Keys:    keys,
		Payload: append(ct, tag...),
	}
	if err := c.transport.SendEnvelope(c.ctx, buddy.Username, messageID, env); err != nil {
		return fmt.Errorf("send envelope: %w", err)
	}
	log.WithField("keys", len(keys)).Debug("message sent")

	now := c.now()
	err = c.store.Update(func(tx domain.WriteTx) error {
		if err := tx.SaveMessage(domain.Message{
			ID:        uuid.NewString(),
			BuddyID:   buddy.ID,
			Text:      body,
			Security:  domain.SecurityOMEMO,
			MessageID: messageID,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		buddy.LastMessageAt = now
		return tx.SaveBuddy(buddy)
	})
	if err != nil {
		// The message is already on the wire.
		log.WithError(err).Error("save outgoing message")
	}
	return nil
}

// wrapFor wraps key for every trusted device, skipping the local one when
// skipLocal is set. Devices that fail to wrap are left out.
func (c *Coordinator) wrapFor(log *logrus.Entry, name domain.Username, devices []domain.Device, key []byte, local domain.DeviceID, skipLocal bool) []domain.KeyData {
	out := make([]domain.KeyData, 0, len(devices))
	for _, d := range devices {
		if !d.Trust.Trusted() || (skipLocal && d.ID == local) {
			continue
		}
		addr := domain.Address{Name: name, Device: d.ID}
		data, err := c.engine.WrapKey(addr, key)
		if err != nil {
			log.WithError(err).WithField("peer", addr).Debug("skipping device")
			continue
		}
		out = append(out, domain.KeyData{DeviceID: d.ID, Data: data})
	}
	return out
}
