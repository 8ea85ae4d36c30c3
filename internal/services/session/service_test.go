package session_test

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"omemo/internal/crypto"
	"omemo/internal/domain"
	"omemo/internal/services/session"
	"omemo/internal/store"
)

type device struct {
	engine      *session.Engine
	prekeys     *store.PreKeyFileStore
	addr        domain.Address
	bundle      domain.Bundle
	identityKey []byte
	id          domain.Identity
	dir         string
}

func newDevice(t *testing.T, name domain.Username) *device {
	t.Helper()
	xPriv, xPub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	edPriv, edPub, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	reg, err := crypto.GenerateRegistrationID()
	require.NoError(t, err)
	id := domain.Identity{XPub: xPub, XPriv: xPriv, EdPub: edPub, EdPriv: edPriv, RegistrationID: reg}

	dir := t.TempDir()
	ps := store.NewPreKeyFileStore(dir)
	e := session.New(id, ps, store.NewConversationFileStore(dir))
	b, err := e.GenerateOwnBundle(5)
	require.NoError(t, err)
	return &device{
		engine:      e,
		prekeys:     ps,
		addr:        domain.Address{Name: name, Device: reg},
		bundle:      b,
		identityKey: crypto.IdentityKey(id),
		id:          id,
		dir:         dir,
	}
}

func incoming(b domain.Bundle, pk domain.PreKey) domain.IncomingBundle {
	return domain.IncomingBundle{
		DeviceID:              b.DeviceID,
		IdentityKey:           b.IdentityKey,
		SignedPreKeyID:        b.SignedPreKey.ID,
		SignedPreKey:          b.SignedPreKey.PublicKey,
		SignedPreKeySignature: b.SignedPreKey.Signature,
		PreKeyID:              pk.ID,
		PreKey:                pk.PublicKey,
	}
}

func key(t *testing.T) []byte {
	t.Helper()
	k, err := crypto.GeneratePayloadKey()
	require.NoError(t, err)
	return k
}

func TestEngine_FirstContactAndReply(t *testing.T) {
	alice := newDevice(t, "alice")
	bob := newDevice(t, "bob")

	ok, err := alice.engine.SessionExists(bob.addr)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = alice.engine.WrapKey(bob.addr, key(t))
	require.ErrorIs(t, err, session.ErrNoSession)

	pk := bob.bundle.PreKeys[rand.Intn(len(bob.bundle.PreKeys))]
	require.NoError(t, alice.engine.ConsumeIncomingBundle("bob", incoming(bob.bundle, pk)))

	ok, err = alice.engine.SessionExists(bob.addr)
	require.NoError(t, err)
	require.True(t, ok)

	// Two messages before bob answers both carry the pre-key header.
	k1, k2 := key(t), key(t)
	w1, err := alice.engine.WrapKey(bob.addr, k1)
	require.NoError(t, err)
	w2, err := alice.engine.WrapKey(bob.addr, k2)
	require.NoError(t, err)

	got, ik, err := bob.engine.UnwrapKey(alice.addr, nil, w1)
	require.NoError(t, err)
	require.True(t, bytes.Equal(k1, got))
	require.Equal(t, alice.identityKey, ik)

	// The one-time pre-key is gone.
	_, found, err := bob.prekeys.ConsumeOneTimePreKey(pk.ID)
	require.NoError(t, err)
	require.False(t, found)

	got, _, err = bob.engine.UnwrapKey(alice.addr, nil, w2)
	require.NoError(t, err)
	require.True(t, bytes.Equal(k2, got))

	// Bob answers; alice's session is then confirmed.
	k3 := key(t)
	w3, err := bob.engine.WrapKey(alice.addr, k3)
	require.NoError(t, err)
	got, ik, err = alice.engine.UnwrapKey(bob.addr, nil, w3)
	require.NoError(t, err)
	require.True(t, bytes.Equal(k3, got))
	require.Equal(t, bob.bundle.IdentityKey, ik)

	k4 := key(t)
	w4, err := alice.engine.WrapKey(bob.addr, k4)
	require.NoError(t, err)
	require.NotContains(t, string(w4), `"prekey"`)
	got, _, err = bob.engine.UnwrapKey(alice.addr, nil, w4)
	require.NoError(t, err)
	require.True(t, bytes.Equal(k4, got))
}

func TestEngine_RejectsForgedBundle(t *testing.T) {
	alice := newDevice(t, "alice")
	bob := newDevice(t, "bob")
	mallory := newDevice(t, "mallory")

	in := incoming(bob.bundle, bob.bundle.PreKeys[0])
	in.SignedPreKeySignature = mallory.bundle.SignedPreKey.Signature
	require.Error(t, alice.engine.ConsumeIncomingBundle("bob", in))

	ok, err := alice.engine.SessionExists(bob.addr)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEngine_UnwrapGarbage(t *testing.T) {
	bob := newDevice(t, "bob")
	alice := newDevice(t, "alice")

	_, _, err := bob.engine.UnwrapKey(alice.addr, nil, []byte("not json"))
	require.Error(t, err)

	_, _, err = bob.engine.UnwrapKey(alice.addr, nil, []byte(`{"header":{"dh_pub":"AAAA"},"cipher":"AAAA"}`))
	require.ErrorIs(t, err, session.ErrNoSession)
}

// flipCipher changes a byte inside the base64 ciphertext of a wrapped key.
func flipCipher(w []byte) {
	i := bytes.LastIndex(w, []byte(`"cipher":"`)) + len(`"cipher":"`)
	if w[i] == 'A' {
		w[i] = 'B'
	} else {
		w[i] = 'A'
	}
}

func TestEngine_PreKeyRestoredOnBadMessage(t *testing.T) {
	alice := newDevice(t, "alice")
	bob := newDevice(t, "bob")
	pk := bob.bundle.PreKeys[0]
	require.NoError(t, alice.engine.ConsumeIncomingBundle("bob", incoming(bob.bundle, pk)))

	w, err := alice.engine.WrapKey(bob.addr, key(t))
	require.NoError(t, err)
	flipCipher(w)

	_, _, err = bob.engine.UnwrapKey(alice.addr, nil, w)
	require.Error(t, err)

	_, found, err := bob.prekeys.ConsumeOneTimePreKey(pk.ID)
	require.NoError(t, err)
	require.True(t, found)
}

func TestEngine_OwnBundleTopUp(t *testing.T) {
	bob := newDevice(t, "bob")
	require.Len(t, bob.bundle.PreKeys, 5)
	require.Equal(t, bob.engine.RegistrationID(), bob.bundle.DeviceID)
	require.Len(t, bob.bundle.IdentityKey, crypto.IdentityKeySize)

	high, ok, err := bob.engine.MaxPreKeyID()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.PreKeyID(5), high)

	more, err := bob.engine.GeneratePreKeys(high+1, 2)
	require.NoError(t, err)
	require.Equal(t, domain.PreKeyID(6), more[0].ID)

	b, ok, err := bob.engine.LoadOwnBundle()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, b.PreKeys, 7)
}

// impersonate returns an engine holding mallory's keys whose messages
// claim to come from victim's device.
func impersonate(t *testing.T, mallory, victim *device) *session.Engine {
	t.Helper()
	id := mallory.id
	id.RegistrationID = victim.addr.Device
	dir := t.TempDir()
	return session.New(id, store.NewPreKeyFileStore(dir), store.NewConversationFileStore(dir))
}

func TestEngine_RejectsPreKeyFromOtherIdentity(t *testing.T) {
	alice := newDevice(t, "alice")
	bob := newDevice(t, "bob")
	mallory := newDevice(t, "mallory")

	require.NoError(t, alice.engine.ConsumeIncomingBundle("bob", incoming(bob.bundle, bob.bundle.PreKeys[0])))
	k1 := key(t)
	w1, err := alice.engine.WrapKey(bob.addr, k1)
	require.NoError(t, err)
	_, _, err = bob.engine.UnwrapKey(alice.addr, nil, w1)
	require.NoError(t, err)

	// Mallory starts a session with bob without a one-time pre-key and
	// addresses it as alice's device.
	fake := impersonate(t, mallory, alice)
	in := incoming(bob.bundle, domain.PreKey{})
	require.NoError(t, fake.ConsumeIncomingBundle("bob", in))
	forged, err := fake.WrapKey(bob.addr, key(t))
	require.NoError(t, err)

	_, _, err = bob.engine.UnwrapKey(alice.addr, nil, forged)
	require.ErrorIs(t, err, session.ErrIdentityMismatch)

	// Alice's session with bob is untouched.
	k2 := key(t)
	w2, err := alice.engine.WrapKey(bob.addr, k2)
	require.NoError(t, err)
	got, _, err := bob.engine.UnwrapKey(alice.addr, nil, w2)
	require.NoError(t, err)
	require.True(t, bytes.Equal(k2, got))
}

func TestEngine_PinnedIdentityRefusesNewSession(t *testing.T) {
	alice := newDevice(t, "alice")
	bob := newDevice(t, "bob")
	mallory := newDevice(t, "mallory")

	fake := impersonate(t, mallory, alice)
	pk := bob.bundle.PreKeys[0]
	require.NoError(t, fake.ConsumeIncomingBundle("bob", incoming(bob.bundle, pk)))
	forged, err := fake.WrapKey(bob.addr, key(t))
	require.NoError(t, err)

	_, _, err = bob.engine.UnwrapKey(alice.addr, alice.identityKey, forged)
	require.ErrorIs(t, err, session.ErrIdentityMismatch)

	ok, err := bob.engine.SessionExists(alice.addr)
	require.NoError(t, err)
	require.False(t, ok)
	// The one-time pre-key was never consumed.
	_, found, err := bob.prekeys.ConsumeOneTimePreKey(pk.ID)
	require.NoError(t, err)
	require.True(t, found)
}

func TestEngine_OutOfOrderAcrossReload(t *testing.T) {
	alice := newDevice(t, "alice")
	bob := newDevice(t, "bob")
	require.NoError(t, alice.engine.ConsumeIncomingBundle("bob", incoming(bob.bundle, bob.bundle.PreKeys[0])))

	keys := [][]byte{key(t), key(t), key(t)}
	wrapped := make([][]byte, len(keys))
	for i, k := range keys {
		w, err := alice.engine.WrapKey(bob.addr, k)
		require.NoError(t, err)
		wrapped[i] = w
	}

	for _, i := range []int{0, 2} {
		got, _, err := bob.engine.UnwrapKey(alice.addr, nil, wrapped[i])
		require.NoError(t, err)
		require.True(t, bytes.Equal(keys[i], got))
	}

	// A fresh engine over the same files only sees what was persisted.
	reopened := session.New(bob.id, bob.prekeys, store.NewConversationFileStore(bob.dir))
	got, _, err := reopened.UnwrapKey(alice.addr, nil, wrapped[1])
	require.NoError(t, err)
	require.True(t, bytes.Equal(keys[1], got))
}

var errDiskFull = errors.New("disk full")

type brokenPreKeys struct {
	*store.PreKeyFileStore
	broken bool
}

func (b *brokenPreKeys) SaveOneTimePreKeys(pairs []domain.OneTimePreKeyPair) error {
	if b.broken {
		return errDiskFull
	}
	return b.PreKeyFileStore.SaveOneTimePreKeys(pairs)
}

func TestEngine_PreKeyRestoreFailureReported(t *testing.T) {
	alice := newDevice(t, "alice")
	bob := newDevice(t, "bob")
	ps := &brokenPreKeys{PreKeyFileStore: bob.prekeys}
	engine := session.New(bob.id, ps, store.NewConversationFileStore(bob.dir))

	pk := bob.bundle.PreKeys[0]
	require.NoError(t, alice.engine.ConsumeIncomingBundle("bob", incoming(bob.bundle, pk)))
	w, err := alice.engine.WrapKey(bob.addr, key(t))
	require.NoError(t, err)
	flipCipher(w)

	ps.broken = true
	_, _, err = engine.UnwrapKey(alice.addr, nil, w)
	require.ErrorIs(t, err, errDiskFull)
	require.ErrorContains(t, err, "restore one-time pre-key")
}
