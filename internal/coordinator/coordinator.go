package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"omemo/internal/correlator"
	"omemo/internal/domain"
)

const (
	// DefaultPreKeyCount is the number of one-time pre-keys kept published.
	DefaultPreKeyCount = 100
	// DefaultExpiryInterval is how often overdue requests are failed.
	DefaultExpiryInterval = time.Second
)

var (
	// ErrClosed is returned for operations issued after Close.
	ErrClosed = errors.New("coordinator closed")
	// ErrNoDevicesForBuddy is returned when no trusted device of the buddy
	// could receive the message key. Nothing is sent.
	ErrNoDevicesForBuddy = errors.New("no trusted devices for buddy")
	// ErrNoDevices is returned when no device at all could receive the
	// message key.
	ErrNoDevices = errors.New("no trusted devices")
	// ErrUnknownBuddy is returned when the buddy record does not exist.
	ErrUnknownBuddy = errors.New("unknown buddy")
	// ErrUnknownAccount is returned by New when the account record is missing.
	ErrUnknownAccount = errors.New("unknown account")
	// ErrEmptyMessage is returned when asked to send an empty body.
	ErrEmptyMessage = errors.New("empty message body")
)

// Options configures a Coordinator.
type Options struct {
	AccountID string
	Store     domain.Store
	Engine    domain.SessionEngine
	Transport domain.Transport
	Notifier  domain.Notifier
	Logger    *logrus.Entry

	// PreKeyCount defaults to DefaultPreKeyCount.
	PreKeyCount int
	// RequestTimeout fails pending requests that get no answer. Zero
	// disables expiry.
	RequestTimeout time.Duration
	// ExpiryInterval defaults to DefaultExpiryInterval.
	ExpiryInterval time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Coordinator runs the multi-device messaging protocol for one account.
//
// All protocol state is confined to a serial work queue. Caller
// completions and notifications run on a second serial queue, so a
// completion may block without stalling the protocol.
type Coordinator struct {
	accountID   string
	username    domain.Username
	store       domain.Store
	engine      domain.SessionEngine
	transport   domain.Transport
	notifier    domain.Notifier
	log         *logrus.Entry
	preKeyCount int
	now         func() time.Time

	corr      *correlator.Correlator
	work      *queue
	callbacks *queue

	ctx    context.Context
	cancel context.CancelFunc

	bundleMu sync.Mutex

	closing   atomic.Bool
	closeOnce sync.Once
	stop      chan struct{}
	ticker    sync.WaitGroup
}

// Compile-time assertion that Coordinator consumes transport events.
var _ domain.EventHandler = (*Coordinator)(nil)

// New builds a running Coordinator. Close must be called to release it.
func New(opts Options) (*Coordinator, error) {
	if opts.Store == nil || opts.Engine == nil || opts.Transport == nil {
		return nil, errors.New("coordinator: store, engine and transport are required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.PreKeyCount <= 0 {
		opts.PreKeyCount = DefaultPreKeyCount
	}
	if opts.ExpiryInterval <= 0 {
		opts.ExpiryInterval = DefaultExpiryInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var account domain.Account
	err := opts.Store.View(func(tx domain.ReadTx) error {
		a, ok, err := tx.Account(opts.AccountID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownAccount, opts.AccountID)
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		accountID:   account.ID,
		username:    account.Username,
		store:       opts.Store,
		engine:      opts.Engine,
		transport:   opts.Transport,
		notifier:    opts.Notifier,
		preKeyCount: opts.PreKeyCount,
		now:         opts.Now,
		corr:        correlator.New(opts.RequestTimeout, correlator.WithClock(opts.Now)),
		work:        newQueue(),
		callbacks:   newQueue(),
		ctx:         ctx,
		cancel:      cancel,
		stop:        make(chan struct{}),
		log: opts.Logger.WithFields(logrus.Fields{
			"component": "coordinator",
			"account":   account.Username,
			"device":    opts.Engine.RegistrationID(),
		}),
	}
	if opts.RequestTimeout > 0 {
		c.ticker.Add(1)
		go c.expireLoop(opts.ExpiryInterval)
	}
	c.log.Info("coordinator started")
	return c, nil
}

// Username returns the account's username.
func (c *Coordinator) Username() domain.Username { return c.username }

// Close rejects new work, fails every pending request, then runs the
// completions already queued. It is safe to call more than once.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.stop)
		c.ticker.Wait()

		c.work.post(func() {
			if n := c.corr.Drain(); n > 0 {
				c.log.WithField("pending", n).Debug("failed pending requests at shutdown")
			}
		})
		c.work.close()
		c.work.wait()

		c.callbacks.close()
		c.callbacks.wait()
		c.cancel()
		c.log.Info("coordinator stopped")
	})
	return nil
}

// Barrier returns once every task queued before it, and the completions
// they queued, have run.
func (c *Coordinator) Barrier(ctx context.Context) error {
	ch := make(chan struct{})
	if !c.post(func() { c.complete(func() { close(ch) }) }) {
		return ErrClosed
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle queues an inbound transport event. Events arriving after Close
// are dropped.
func (c *Coordinator) Handle(ev domain.Event) {
	if !c.post(func() { c.dispatch(ev) }) {
		c.log.WithField("event", fmt.Sprintf("%T", ev)).Debug("coordinator closed; event dropped")
	}
}

func (c *Coordinator) dispatch(ev domain.Event) {
	switch ev := ev.(type) {
	case domain.DeviceListUpdated:
		c.handleDeviceList(ev)
	case domain.BundleFetched:
		c.handleBundleFetched(ev)
	case domain.BundleFetchFailed:
		c.handleBundleFetchFailed(ev)
	case domain.KeyDataReceived:
		c.handleKeyData(ev)
	case domain.DeviceRemovalFailed:
		c.log.WithError(ev.Err).WithField("devices", ev.DeviceIDs).Warn("device removal failed")
		c.corr.Resolve(ev.Token, false)
	case domain.ReceiptReceived:
		c.handleReceipt(ev)
	default:
		c.log.WithField("event", fmt.Sprintf("%T", ev)).Warn("unhandled event")
	}
}

// post queues fn on the work queue unless the coordinator is closing.
func (c *Coordinator) post(fn func()) bool {
	if c.closing.Load() {
		return false
	}
	return c.work.post(fn)
}

// complete runs fn on the callback queue, or inline once that is closed.
func (c *Coordinator) complete(fn func()) {
	if !c.callbacks.post(fn) {
		fn()
	}
}

// request registers done under a fresh token and hands the token to send.
// A request that cannot be issued fails immediately.
func (c *Coordinator) request(done correlator.Completion, send func(token string) error) {
	token := correlator.NewToken()
	if err := c.corr.Register(token, done); err != nil {
		c.log.WithError(err).Error("register request")
		done(false)
		return
	}
	if err := send(token); err != nil {
		c.log.WithError(err).WithField("token", token).Warn("request not issued")
		c.corr.Resolve(token, false)
	}
}

func (c *Coordinator) expireLoop(interval time.Duration) {
	defer c.ticker.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.post(c.expire)
		case <-c.stop:
			return
		}
	}
}

func (c *Coordinator) expire() {
	for _, token := range c.corr.Expire() {
		c.log.WithField("token", token).Debug("request expired")
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(domain.Message) {}
