package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"omemo/internal/domain"
)

// ErrTransportClosed is returned for requests issued after Close.
var ErrTransportClosed = errors.New("relay transport closed")

// Transport implements domain.Transport on top of the relay HTTP API.
//
// Requests that carry a token run on their own goroutine and report their
// outcome to the attached handler. Publishing and sending are synchronous.
type Transport struct {
	client    *HTTP
	self      domain.Address
	pollLimit int
	log       *logrus.Entry

	mu      sync.RWMutex
	handler domain.EventHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// closeMu orders wg.Add against Close so no goroutine outlives it.
	closeMu sync.Mutex
	closed  bool
}

// Compile-time assertion that Transport satisfies domain.Transport.
var _ domain.Transport = (*Transport)(nil)

// NewTransport returns a transport acting as the device self.
func NewTransport(client *HTTP, self domain.Address, pollLimit int, log *logrus.Entry) *Transport {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		client:    client,
		self:      self,
		pollLimit: pollLimit,
		log:       log.WithFields(logrus.Fields{"component": "transport", "account": self.Name, "device": self.Device}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Attach sets the handler that receives inbound events.
func (t *Transport) Attach(h domain.EventHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Close cancels in-flight requests and waits for their goroutines.
func (t *Transport) Close() error {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return nil
	}
	t.closed = true
	t.closeMu.Unlock()

	t.cancel()
	t.wg.Wait()
	return nil
}

func (t *Transport) isClosed() bool {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	return t.closed
}

func (t *Transport) emit(ev domain.Event) {
	t.mu.RLock()
	h := t.handler
	t.mu.RUnlock()
	if h == nil {
		t.log.WithField("event", ev).Warn("no handler attached; event dropped")
		return
	}
	h.Handle(ev)
}

// spawn runs fn on its own goroutine with a context cancelled by either ctx
// or Close.
func (t *Transport) spawn(ctx context.Context, fn func(ctx context.Context)) error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(t.ctx, cancel)
		defer stop()
		fn(ctx)
	}()
	return nil
}

// FetchBundle fetches peer's bundle and reports BundleFetched or
// BundleFetchFailed.
func (t *Transport) FetchBundle(ctx context.Context, peer domain.Address, token string) error {
	return t.spawn(ctx, func(ctx context.Context) {
		b, err := t.client.GetBundle(ctx, peer)
		if err != nil {
			t.emit(domain.BundleFetchFailed{Token: token, From: peer.Name, DeviceID: peer.Device, Err: err})
			return
		}
		t.emit(domain.BundleFetched{Token: token, From: peer.Name, Bundle: b})
	})
}

// FetchDeviceList fetches owner's device list and reports DeviceListUpdated.
// An owner that never published has an empty list. Other failures are only
// logged; the request then expires.
func (t *Transport) FetchDeviceList(ctx context.Context, owner domain.Username, token string) error {
	return t.spawn(ctx, func(ctx context.Context) {
		ids, err := t.client.GetDevices(ctx, owner)
		if err != nil && !errors.Is(err, ErrNotFound) {
			t.log.WithError(err).WithField("owner", owner).Warn("fetch device list")
			return
		}
		t.emit(domain.DeviceListUpdated{Owner: owner, DeviceIDs: ids, Token: token})
	})
}

// PublishDeviceList replaces the account's published device list.
func (t *Transport) PublishDeviceList(ctx context.Context, ids []domain.DeviceID) error {
	return t.client.PutDevices(ctx, t.self.Name, ids)
}

// PublishBundle publishes the local device's bundle.
func (t *Transport) PublishBundle(ctx context.Context, b domain.Bundle) error {
	return t.client.PutBundle(ctx, t.self.Name, b)
}

// SendEnvelope posts a message stanza to every device of to.
func (t *Transport) SendEnvelope(ctx context.Context, to domain.Username, messageID string, env domain.Envelope) error {
	n, err := t.client.PostStanza(ctx, to, domain.Stanza{
		Kind:       domain.StanzaMessage,
		From:       t.self.Name,
		FromDevice: t.self.Device,
		MessageID:  messageID,
		Envelope:   &env,
	})
	if err != nil {
		return err
	}
	t.log.WithFields(logrus.Fields{"to": to, "message_id": messageID, "copies": n}).Debug("envelope posted")
	return nil
}

// RemoveDevices republishes the account's device list without ids. Success
// is reported as the resulting DeviceListUpdated.
func (t *Transport) RemoveDevices(ctx context.Context, ids []domain.DeviceID, token string) error {
	return t.spawn(ctx, func(ctx context.Context) {
		fail := func(err error) {
			t.emit(domain.DeviceRemovalFailed{Token: token, DeviceIDs: ids, Err: err})
		}
		current, err := t.client.GetDevices(ctx, t.self.Name)
		if err != nil && !errors.Is(err, ErrNotFound) {
			fail(err)
			return
		}
		drop := make(map[domain.DeviceID]bool, len(ids))
		for _, id := range ids {
			drop[id] = true
		}
		remaining := make([]domain.DeviceID, 0, len(current))
		for _, id := range current {
			if !drop[id] {
				remaining = append(remaining, id)
			}
		}
		if err := t.client.PutDevices(ctx, t.self.Name, remaining); err != nil {
			fail(err)
			return
		}
		t.emit(domain.DeviceListUpdated{Owner: t.self.Name, DeviceIDs: remaining, Token: token})
	})
}

// SendReceipt acknowledges messageID to to. It does not wait for the relay.
func (t *Transport) SendReceipt(ctx context.Context, to domain.Username, messageID string) error {
	return t.spawn(ctx, func(ctx context.Context) {
		_, err := t.client.PostStanza(ctx, to, domain.Stanza{
			Kind:       domain.StanzaReceipt,
			From:       t.self.Name,
			FromDevice: t.self.Device,
			MessageID:  messageID,
		})
		if err != nil {
			t.log.WithError(err).WithFields(logrus.Fields{"to": to, "message_id": messageID}).Warn("send receipt")
		}
	})
}

// Poll drains one page of the device's inbox into events and acknowledges
// it. It returns the number of stanzas handled.
func (t *Transport) Poll(ctx context.Context) (int, error) {
	if t.isClosed() {
		return 0, ErrTransportClosed
	}
	stanzas, err := t.client.FetchInbox(ctx, t.self, t.pollLimit)
	if err != nil {
		return 0, err
	}
	for _, st := range stanzas {
		switch st.Kind {
		case domain.StanzaMessage:
			if st.Envelope == nil {
				t.log.WithField("from", st.From).Debug("message stanza without envelope")
				continue
			}
			t.emit(domain.KeyDataReceived{
				From:         st.From,
				To:           st.To,
				SenderDevice: st.FromDevice,
				MessageID:    st.MessageID,
				Envelope:     *st.Envelope,
			})
		case domain.StanzaReceipt:
			t.emit(domain.ReceiptReceived{From: st.From, MessageID: st.MessageID})
		default:
			t.log.WithField("kind", st.Kind).Debug("unknown stanza kind")
		}
	}
	if len(stanzas) == 0 {
		return 0, nil
	}
	if err := t.client.AckInbox(ctx, t.self, len(stanzas)); err != nil {
		return len(stanzas), err
	}
	return len(stanzas), nil
}

// Run polls every interval until ctx is done.
func (t *Transport) Run(ctx context.Context, interval time.Duration) error {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		if _, err := t.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.log.WithError(err).Warn("poll inbox")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}
