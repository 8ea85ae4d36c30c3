package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"omemo/internal/coordinator"
	"omemo/internal/crypto"
	"omemo/internal/domain"
	"omemo/internal/relay"
	"omemo/internal/services/session"
)

var (
	// ErrNoUsername is returned when no username is configured.
	ErrNoUsername = errors.New("no username configured; use --username or set username in the config")
	// ErrNoRelay is returned when no relay URL is configured.
	ErrNoRelay = errors.New("no relay configured; use --relay")
	// ErrUnknownBuddy is returned for usernames that were never added.
	ErrUnknownBuddy = errors.New("unknown buddy; add it first")
	// ErrNoDeviceIdentity is returned when a device's identity key has not
	// been seen yet.
	ErrNoDeviceIdentity = errors.New("no identity key recorded for device; start a session first")
	// ErrFingerprintMismatch is returned when a fingerprint read out of band
	// does not match the recorded identity key.
	ErrFingerprintMismatch = errors.New("fingerprint does not match")
)

// App is a running client for one unlocked account on this device.
type App struct {
	*Wire

	Identity    domain.Identity
	Account     domain.Account
	Engine      *session.Engine
	Transport   *relay.Transport
	Coordinator *coordinator.Coordinator
}

// Open unlocks the identity and starts the coordinator. The account record
// is created on first use.
func Open(w *Wire, passphrase string, notifier domain.Notifier) (*App, error) {
	cfg := w.Config
	if cfg.Username == "" {
		return nil, ErrNoUsername
	}
	if w.Relay == nil {
		return nil, ErrNoRelay
	}

	id, err := w.Identities.LoadIdentity(passphrase)
	if err != nil {
		return nil, err
	}
	account, err := ensureAccount(w.DB, domain.Username(cfg.Username))
	if err != nil {
		return nil, err
	}

	log := logrus.NewEntry(w.Log)
	engine := session.New(id, w.PreKeys, w.Conversations)
	self := domain.Address{Name: account.Username, Device: id.RegistrationID}
	transport := relay.NewTransport(w.Relay, self, cfg.Relay.PollLimit, log)

	coord, err := coordinator.New(coordinator.Options{
		AccountID:      account.ID,
		Store:          w.DB,
		Engine:         engine,
		Transport:      transport,
		Notifier:       notifier,
		Logger:         log,
		PreKeyCount:    cfg.Coordinator.PreKeyCount,
		RequestTimeout: cfg.Coordinator.RequestTimeout.Std(),
		ExpiryInterval: cfg.Coordinator.ExpiryInterval.Std(),
	})
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	transport.Attach(coord)
	coord.CheckPublishedBundle()

	return &App{
		Wire:        w,
		Identity:    id,
		Account:     account,
		Engine:      engine,
		Transport:   transport,
		Coordinator: coord,
	}, nil
}

// Close stops the transport, then the coordinator. The database belongs to
// the Wire.
func (a *App) Close() error {
	return errors.Join(a.Transport.Close(), a.Coordinator.Close())
}

func ensureAccount(db domain.Store, username domain.Username) (domain.Account, error) {
	var account domain.Account
	err := db.Update(func(tx domain.WriteTx) error {
		a, ok, err := tx.AccountByUsername(username)
		if err != nil {
			return err
		}
		if !ok {
			a = domain.Account{ID: uuid.NewString(), Username: username}
			if err := tx.SaveAccount(a); err != nil {
				return err
			}
		}
		account = a
		return nil
	})
	if err != nil {
		return domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}

// AddBuddy records username as a contact and returns it. Adding a known
// buddy returns the existing record.
func (a *App) AddBuddy(username domain.Username) (domain.Buddy, error) {
	var buddy domain.Buddy
	err := a.DB.Update(func(tx domain.WriteTx) error {
		b, ok, err := tx.BuddyByUsername(a.Account.ID, username)
		if err != nil {
			return err
		}
		if !ok {
			b = domain.Buddy{ID: uuid.NewString(), AccountID: a.Account.ID, Username: username}
			if err := tx.SaveBuddy(b); err != nil {
				return err
			}
		}
		buddy = b
		return nil
	})
	return buddy, err
}

// Buddy looks up a contact by username.
func (a *App) Buddy(username domain.Username) (domain.Buddy, error) {
	var buddy domain.Buddy
	err := a.DB.View(func(tx domain.ReadTx) error {
		b, ok, err := tx.BuddyByUsername(a.Account.ID, username)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownBuddy, username)
		}
		buddy = b
		return nil
	})
	return buddy, err
}

// BuddyName resolves a buddy id to its username.
func (a *App) BuddyName(buddyID string) (domain.Username, error) {
	var name domain.Username
	err := a.DB.View(func(tx domain.ReadTx) error {
		b, ok, err := tx.Buddy(buddyID)
		if err != nil || !ok {
			return err
		}
		name = b.Username
		return nil
	})
	return name, err
}

// Devices returns the stored devices of username, own or buddy.
func (a *App) Devices(username domain.Username) ([]domain.Device, error) {
	parentKey, collection, err := a.owner(username)
	if err != nil {
		return nil, err
	}
	var out []domain.Device
	err = a.DB.View(func(tx domain.ReadTx) error {
		out, err = tx.Devices(parentKey, collection)
		return err
	})
	return out, err
}

// SetTrust changes the trust level of one device of username.
func (a *App) SetTrust(username domain.Username, id domain.DeviceID, trust domain.TrustLevel) error {
	parentKey, collection, err := a.owner(username)
	if err != nil {
		return err
	}
	return a.DB.Update(func(tx domain.WriteTx) error {
		d, ok, err := tx.Device(parentKey, collection, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("unknown device %s of %s", id, username)
		}
		d.Trust = trust
		return tx.SaveDevice(d)
	})
}

// VerifyDevice marks a device of username as trusted by the user once the
// fingerprint they compared out of band matches its recorded identity key.
func (a *App) VerifyDevice(username domain.Username, id domain.DeviceID, fingerprint string) error {
	parentKey, collection, err := a.owner(username)
	if err != nil {
		return err
	}
	return a.DB.Update(func(tx domain.WriteTx) error {
		d, ok, err := tx.Device(parentKey, collection, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("unknown device %s of %s", id, username)
		}
		if len(d.IdentityKey) == 0 {
			return ErrNoDeviceIdentity
		}
		if !crypto.MatchFingerprint(d.IdentityKey, fingerprint) {
			return fmt.Errorf("device %s of %s: %w", id, username, ErrFingerprintMismatch)
		}
		d.Trust = domain.TrustTrustedUser
		return tx.SaveDevice(d)
	})
}

// History returns up to limit stored messages with username, oldest first.
func (a *App) History(username domain.Username, limit int) ([]domain.Message, error) {
	buddy, err := a.Buddy(username)
	if err != nil {
		return nil, err
	}
	var out []domain.Message
	err = a.DB.View(func(tx domain.ReadTx) error {
		out, err = tx.Messages(buddy.ID, limit)
		return err
	})
	return out, err
}

func (a *App) owner(username domain.Username) (string, domain.Collection, error) {
	if username == a.Account.Username {
		return a.Account.ID, domain.CollectionAccount, nil
	}
	buddy, err := a.Buddy(username)
	if err != nil {
		return "", "", err
	}
	return buddy.ID, domain.CollectionBuddy, nil
}

// Sync drains the relay inbox into the coordinator and waits until every
// fetched stanza has been handled.
func (a *App) Sync(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := a.Transport.Poll(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, a.Coordinator.Barrier(ctx)
}

// RefreshDevices fetches and stores the current device list of username.
func (a *App) RefreshDevices(ctx context.Context, username domain.Username) error {
	ok, err := await(ctx, func(done func(bool)) { a.Coordinator.RequestDeviceList(username, done) })
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("device list of %s not available", username)
	}
	return nil
}

// Publish merges the account's published device list, then publishes this
// device's bundle and the list with this device on it.
func (a *App) Publish(ctx context.Context) error {
	if err := a.RefreshDevices(ctx, a.Account.Username); err != nil {
		return err
	}
	return a.Coordinator.PublishOwnBundle(ctx)
}

// RemoveDevices removes ids from the account's published device list.
func (a *App) RemoveDevices(ctx context.Context, ids []domain.DeviceID) error {
	ok, err := await(ctx, func(done func(bool)) { a.Coordinator.RemoveDevices(ids, done) })
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("device removal failed")
	}
	return nil
}

// PrepareSessions makes sure sessions exist with every device of username.
func (a *App) PrepareSessions(ctx context.Context, username domain.Username) (bool, error) {
	buddy, err := a.Buddy(username)
	if err != nil {
		return false, err
	}
	return await(ctx, func(done func(bool)) { a.Coordinator.PrepareSessionForBuddy(buddy.ID, done) })
}

// Send encrypts body for every trusted device of username and of this
// account, returning the message id.
func (a *App) Send(ctx context.Context, username domain.Username, body string) (string, error) {
	buddy, err := a.Buddy(username)
	if err != nil {
		return "", err
	}
	return a.Coordinator.Send(ctx, body, buddy.ID, "")
}

// await adapts a boolean completion API to a blocking call.
func await(ctx context.Context, start func(done func(bool))) (bool, error) {
	ch := make(chan bool, 1)
	start(func(ok bool) { ch <- ok })
	select {
	case ok := <-ch:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
