package ratchet_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"omemo/internal/crypto"
	"omemo/internal/domain"
	"omemo/internal/protocol/ratchet"
)

// makeIdentity returns a fresh X25519 identity pair.
func makeIdentity(t *testing.T) (priv domain.X25519Private, pub domain.X25519Public) {
	t.Helper()
	p, P, err := crypto.GenerateX25519()
	require.NoError(t, err)
	return p, P
}

func pair(t *testing.T) (a, b domain.RatchetState) {
	t.Helper()
	// Shared root key from a prior X3DH (simulate).
	rk := bytes.Repeat([]byte{0x42}, 32)

	bPriv, bPub := makeIdentity(t)

	a, err := ratchet.InitAsInitiator(rk, bPub)
	require.NoError(t, err)
	b, err = ratchet.InitAsResponder(rk, bPriv, a.DiffieHellmanPublic)
	require.NoError(t, err)
	return a, b
}

func TestDoubleRatchet_OneRoundTrip(t *testing.T) {
	a, b := pair(t)

	header, ct, err := ratchet.Encrypt(&a, nil, []byte("hi"))
	require.NoError(t, err)
	pt, err := ratchet.Decrypt(&b, nil, header, ct)
	require.NoError(t, err)
	require.Equal(t, "hi", string(pt))
}

func TestDoubleRatchet_ReplyAndContinue(t *testing.T) {
	a, b := pair(t)

	h, ct, err := ratchet.Encrypt(&a, []byte("ad"), []byte("one"))
	require.NoError(t, err)
	_, err = ratchet.Decrypt(&b, []byte("ad"), h, ct)
	require.NoError(t, err)

	h, ct, err = ratchet.Encrypt(&b, []byte("ad"), []byte("two"))
	require.NoError(t, err)
	pt, err := ratchet.Decrypt(&a, []byte("ad"), h, ct)
	require.NoError(t, err)
	require.Equal(t, "two", string(pt))

	h, ct, err = ratchet.Encrypt(&a, []byte("ad"), []byte("three"))
	require.NoError(t, err)
	pt, err = ratchet.Decrypt(&b, []byte("ad"), h, ct)
	require.NoError(t, err)
	require.Equal(t, "three", string(pt))
}

func TestDoubleRatchet_OutOfOrder(t *testing.T) {
	a, b := pair(t)

	h1, c1, err := ratchet.Encrypt(&a, nil, []byte("first"))
	require.NoError(t, err)
	h2, c2, err := ratchet.Encrypt(&a, nil, []byte("second"))
	require.NoError(t, err)

	pt, err := ratchet.Decrypt(&b, nil, h2, c2)
	require.NoError(t, err)
	require.Equal(t, "second", string(pt))

	pt, err = ratchet.Decrypt(&b, nil, h1, c1)
	require.NoError(t, err)
	require.Equal(t, "first", string(pt))
}

func TestDoubleRatchet_TamperedCiphertext(t *testing.T) {
	a, b := pair(t)

	h, ct, err := ratchet.Encrypt(&a, nil, []byte("hi"))
	require.NoError(t, err)
	ct[0] ^= 0xff
	_, err = ratchet.Decrypt(&b, nil, h, ct)
	require.Error(t, err)
}

func TestDoubleRatchet_BadHeader(t *testing.T) {
	_, b := pair(t)
	_, err := ratchet.Decrypt(&b, nil, domain.RatchetHeader{DiffieHellmanPublicKey: []byte{1, 2}}, []byte("x"))
	require.Error(t, err)
}

func TestDoubleRatchet_RejectsLargeSkip(t *testing.T) {
	a, b := pair(t)

	h, ct, err := ratchet.Encrypt(&a, nil, []byte("hi"))
	require.NoError(t, err)
	h.MessageIndex = 2_000_000
	_, err = ratchet.Decrypt(&b, nil, h, ct)
	require.ErrorIs(t, err, ratchet.ErrTooManySkipped)
	require.Zero(t, b.ReceiveMessageIndex)
	require.Empty(t, b.SkippedKeys)

	// A new ratchet key with a huge previous chain length is refused too.
	_, fresh := makeIdentity(t)
	_, err = ratchet.Decrypt(&b, nil, domain.RatchetHeader{
		DiffieHellmanPublicKey: fresh.Slice(),
		PreviousChainLength:    1 << 31,
	}, ct)
	require.ErrorIs(t, err, ratchet.ErrTooManySkipped)
}

func TestDoubleRatchet_SkippedKeysSurviveJSON(t *testing.T) {
	a, b := pair(t)

	h1, c1, err := ratchet.Encrypt(&a, nil, []byte("first"))
	require.NoError(t, err)
	h2, c2, err := ratchet.Encrypt(&a, nil, []byte("second"))
	require.NoError(t, err)
	h3, c3, err := ratchet.Encrypt(&a, nil, []byte("third"))
	require.NoError(t, err)

	_, err = ratchet.Decrypt(&b, nil, h1, c1)
	require.NoError(t, err)
	_, err = ratchet.Decrypt(&b, nil, h3, c3)
	require.NoError(t, err)

	raw, err := json.Marshal(b)
	require.NoError(t, err)
	var reloaded domain.RatchetState
	require.NoError(t, json.Unmarshal(raw, &reloaded))

	pt, err := ratchet.Decrypt(&reloaded, nil, h2, c2)
	require.NoError(t, err)
	require.Equal(t, "second", string(pt))
}
