package coordinator_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"omemo/internal/coordinator"
	"omemo/internal/domain"
	"omemo/internal/store"
)

const (
	accountID = "acc-1"
	buddyID   = "buddy-1"
	localID   = domain.DeviceID(100)
)

var errEngine = errors.New("engine failure")

// fakeEngine wraps keys by prefixing the peer address.
type fakeEngine struct {
	mu        sync.Mutex
	sessions  map[domain.Address]bool
	consumed  []domain.IncomingBundle
	rejectAll bool
	bundle    *domain.Bundle
	maxPreKey domain.PreKeyID
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{sessions: map[domain.Address]bool{}}
}

func (e *fakeEngine) RegistrationID() domain.DeviceID { return localID }

func (e *fakeEngine) SessionExists(peer domain.Address) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[peer], nil
}

func (e *fakeEngine) setSession(peer domain.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions[peer] = true
}

func (e *fakeEngine) WrapKey(peer domain.Address, key []byte) ([]byte, error) {
	if ok, _ := e.SessionExists(peer); !ok {
		return nil, errors.New("no session")
	}
	return append([]byte(peer.String()+":"), key...), nil
}

func (e *fakeEngine) UnwrapKey(peer domain.Address, pinned, wrapped []byte) ([]byte, []byte, error) {
	prefix := []byte(peer.String() + ":")
	if !bytes.HasPrefix(wrapped, prefix) {
		return nil, nil, errors.New("bad wrap")
	}
	ik := identityOf(peer)
	if len(pinned) > 0 && !bytes.Equal(pinned, ik) {
		return nil, nil, errors.New("identity mismatch")
	}
	return wrapped[len(prefix):], ik, nil
}

// identityOf is the identity key fakeEngine reports for a peer.
func identityOf(peer domain.Address) []byte { return []byte("identity:" + peer.String()) }

func (e *fakeEngine) ConsumeIncomingBundle(peer domain.Username, b domain.IncomingBundle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consumed = append(e.consumed, b)
	if e.rejectAll {
		return errEngine
	}
	e.sessions[domain.Address{Name: peer, Device: b.DeviceID}] = true
	return nil
}

func (e *fakeEngine) consumedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.consumed)
}

func (e *fakeEngine) LoadOwnBundle() (domain.Bundle, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bundle == nil {
		return domain.Bundle{}, false, nil
	}
	b := *e.bundle
	b.PreKeys = append([]domain.PreKey(nil), e.bundle.PreKeys...)
	return b, true, nil
}

func (e *fakeEngine) GenerateOwnBundle(n int) (domain.Bundle, error) {
	e.mu.Lock()
	e.bundle = &domain.Bundle{DeviceID: localID, IdentityKey: []byte("own-identity")}
	e.mu.Unlock()
	pks, err := e.GeneratePreKeys(e.maxPreKey+1, n)
	if err != nil {
		return domain.Bundle{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bundle.PreKeys = pks
	return *e.bundle, nil
}

func (e *fakeEngine) GeneratePreKeys(start domain.PreKeyID, n int) ([]domain.PreKey, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.PreKey, 0, n)
	for i := 0; i < n; i++ {
		id := start + domain.PreKeyID(i)
		out = append(out, domain.PreKey{ID: id, PublicKey: []byte{byte(id)}})
		if id > e.maxPreKey {
			e.maxPreKey = id
		}
	}
	if e.bundle != nil && e.bundle.PreKeys != nil {
		e.bundle.PreKeys = append(e.bundle.PreKeys, out...)
	}
	return out, nil
}

func (e *fakeEngine) MaxPreKeyID() (domain.PreKeyID, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxPreKey, e.maxPreKey > 0, nil
}

type sentEnvelope struct {
	to        domain.Username
	messageID string
	envelope  domain.Envelope
}

// fakeTransport records requests. onFetch, when set, answers bundle
// fetches; otherwise they stay pending.
type fakeTransport struct {
	mu            sync.Mutex
	fetches       []domain.Address
	tokens        []string
	sent          []sentEnvelope
	receipts      []string
	bundles       []domain.Bundle
	deviceLists   [][]domain.DeviceID
	removals      [][]domain.DeviceID
	deviceFetches []domain.Username

	handler  domain.EventHandler
	onFetch  func(peer domain.Address, token string) domain.Event
	onRemove func(ids []domain.DeviceID, token string) domain.Event
	onList   func(owner domain.Username, token string) domain.Event
	failSend error
}

func (t *fakeTransport) emit(ev domain.Event) {
	if ev != nil {
		t.handler.Handle(ev)
	}
}

func (t *fakeTransport) FetchBundle(_ context.Context, peer domain.Address, token string) error {
	t.mu.Lock()
	t.fetches = append(t.fetches, peer)
	t.tokens = append(t.tokens, token)
	on := t.onFetch
	t.mu.Unlock()
	if on != nil {
		t.emit(on(peer, token))
	}
	return nil
}

func (t *fakeTransport) FetchDeviceList(_ context.Context, owner domain.Username, token string) error {
	t.mu.Lock()
	t.deviceFetches = append(t.deviceFetches, owner)
	on := t.onList
	t.mu.Unlock()
	if on != nil {
		t.emit(on(owner, token))
	}
	return nil
}

func (t *fakeTransport) PublishDeviceList(_ context.Context, ids []domain.DeviceID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deviceLists = append(t.deviceLists, ids)
	return nil
}

func (t *fakeTransport) PublishBundle(_ context.Context, b domain.Bundle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bundles = append(t.bundles, b)
	return nil
}

func (t *fakeTransport) SendEnvelope(_ context.Context, to domain.Username, messageID string, env domain.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failSend != nil {
		return t.failSend
	}
	t.sent = append(t.sent, sentEnvelope{to: to, messageID: messageID, envelope: env})
	return nil
}

func (t *fakeTransport) RemoveDevices(_ context.Context, ids []domain.DeviceID, token string) error {
	t.mu.Lock()
	t.removals = append(t.removals, ids)
	on := t.onRemove
	t.mu.Unlock()
	if on != nil {
		t.emit(on(ids, token))
	}
	return nil
}

func (t *fakeTransport) SendReceipt(_ context.Context, _ domain.Username, messageID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receipts = append(t.receipts, messageID)
	return nil
}

func (t *fakeTransport) snapshot() fakeTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fakeTransport{
		fetches:       append([]domain.Address(nil), t.fetches...),
		tokens:        append([]string(nil), t.tokens...),
		sent:          append([]sentEnvelope(nil), t.sent...),
		receipts:      append([]string(nil), t.receipts...),
		bundles:       append([]domain.Bundle(nil), t.bundles...),
		deviceLists:   append([][]domain.DeviceID(nil), t.deviceLists...),
		removals:      append([][]domain.DeviceID(nil), t.removals...),
		deviceFetches: append([]domain.Username(nil), t.deviceFetches...),
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []domain.Message
}

func (n *recordingNotifier) Notify(m domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, m)
}

func (n *recordingNotifier) messages() []domain.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Message(nil), n.msgs...)
}

// countingStore counts transactions so tests can assert none happened.
type countingStore struct {
	domain.Store
	mu  sync.Mutex
	txs int
}

func (s *countingStore) View(fn func(domain.ReadTx) error) error {
	s.mu.Lock()
	s.txs++
	s.mu.Unlock()
	return s.Store.View(fn)
}

func (s *countingStore) Update(fn func(domain.WriteTx) error) error {
	s.mu.Lock()
	s.txs++
	s.mu.Unlock()
	return s.Store.Update(fn)
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs
}

type harness struct {
	coord     *coordinator.Coordinator
	engine    *fakeEngine
	transport *fakeTransport
	store     *countingStore
	notifier  *recordingNotifier
}

type harnessOption func(*coordinator.Options)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "omemo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Update(func(tx domain.WriteTx) error {
		if err := tx.SaveAccount(domain.Account{ID: accountID, Username: "alice"}); err != nil {
			return err
		}
		return tx.SaveBuddy(domain.Buddy{ID: buddyID, AccountID: accountID, Username: "bob"})
	}))

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := &harness{
		engine:    newFakeEngine(),
		transport: &fakeTransport{},
		store:     &countingStore{Store: db},
		notifier:  &recordingNotifier{},
	}
	o := coordinator.Options{
		AccountID:   accountID,
		Store:       h.store,
		Engine:      h.engine,
		Transport:   h.transport,
		Notifier:    h.notifier,
		Logger:      logrus.NewEntry(logger),
		PreKeyCount: 5,
	}
	for _, opt := range opts {
		opt(&o)
	}
	h.coord, err = coordinator.New(o)
	require.NoError(t, err)
	h.transport.handler = h.coord
	t.Cleanup(func() { _ = h.coord.Close() })
	return h
}

func (h *harness) addDevice(t *testing.T, parentKey string, collection domain.Collection, id domain.DeviceID, trust domain.TrustLevel) {
	t.Helper()
	require.NoError(t, h.store.Update(func(tx domain.WriteTx) error {
		return tx.SaveDevice(domain.Device{ParentKey: parentKey, ParentCollection: collection, ID: id, Trust: trust})
	}))
}

func (h *harness) pinDevice(t *testing.T, parentKey string, collection domain.Collection, id domain.DeviceID, key []byte) {
	t.Helper()
	require.NoError(t, h.store.Update(func(tx domain.WriteTx) error {
		return tx.SaveDevice(domain.Device{
			ParentKey:        parentKey,
			ParentCollection: collection,
			ID:               id,
			Trust:            domain.TrustTrustedTofu,
			IdentityKey:      key,
		})
	}))
}

func (h *harness) device(t *testing.T, parentKey string, collection domain.Collection, id domain.DeviceID) domain.Device {
	t.Helper()
	var d domain.Device
	require.NoError(t, h.store.View(func(tx domain.ReadTx) error {
		var (
			ok  bool
			err error
		)
		d, ok, err = tx.Device(parentKey, collection, id)
		require.True(t, ok)
		return err
	}))
	return d
}

func (h *harness) barrier(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.coord.Barrier(ctx))
}

// wait blocks until ch delivers or the test times out.
func wait[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
		var zero T
		return zero
	}
}
