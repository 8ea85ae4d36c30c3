package crypto_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omemo/internal/crypto"
	"omemo/internal/domain"
)

func TestPayloadRoundTrip(t *testing.T) {
	key, err := crypto.GeneratePayloadKey()
	require.NoError(t, err)
	iv, err := crypto.GenerateIV()
	require.NoError(t, err)

	ct, tag, err := crypto.SealPayload(key, iv, []byte("hello"))
	require.NoError(t, err)
	assert.Len(t, ct, 5)
	assert.Len(t, tag, crypto.TagSize)

	payload := append(append([]byte{}, ct...), tag...)
	gotCT, gotTag, err := crypto.SplitPayload(payload)
	require.NoError(t, err)
	pt, err := crypto.OpenPayload(key, iv, gotCT, gotTag)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(pt))
}

func TestPayloadEmptyPlaintext(t *testing.T) {
	key, _ := crypto.GeneratePayloadKey()
	iv, _ := crypto.GenerateIV()
	ct, tag, err := crypto.SealPayload(key, iv, nil)
	require.NoError(t, err)
	assert.Empty(t, ct)
	assert.Len(t, tag, crypto.TagSize)
}

func TestPayloadRejectsTampering(t *testing.T) {
	key, _ := crypto.GeneratePayloadKey()
	iv, _ := crypto.GenerateIV()
	ct, tag, err := crypto.SealPayload(key, iv, []byte("secret"))
	require.NoError(t, err)

	tag[0] ^= 1
	_, err = crypto.OpenPayload(key, iv, ct, tag)
	assert.Error(t, err)

	other, _ := crypto.GeneratePayloadKey()
	tag[0] ^= 1
	_, err = crypto.OpenPayload(other, iv, ct, tag)
	assert.Error(t, err)
}

func TestPayloadSizes(t *testing.T) {
	key, _ := crypto.GeneratePayloadKey()
	iv, _ := crypto.GenerateIV()

	_, _, err := crypto.SealPayload(key[:8], iv, []byte("x"))
	assert.ErrorIs(t, err, crypto.ErrPayloadKeySize)
	_, _, err = crypto.SealPayload(key, iv[:8], []byte("x"))
	assert.ErrorIs(t, err, crypto.ErrIVSize)
	_, err = crypto.OpenPayload(key, iv, nil, make([]byte, 4))
	assert.ErrorIs(t, err, crypto.ErrTagSize)
	_, _, err = crypto.SplitPayload(make([]byte, crypto.TagSize-1))
	assert.ErrorIs(t, err, crypto.ErrTagSize)
}

func TestIdentityKeyRoundTrip(t *testing.T) {
	_, xpub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	_, edpub, err := crypto.GenerateEd25519()
	require.NoError(t, err)

	raw := crypto.IdentityKey(domain.Identity{XPub: xpub, EdPub: edpub})
	require.Len(t, raw, crypto.IdentityKeySize)

	gotX, gotEd, err := crypto.ParseIdentityKey(raw)
	require.NoError(t, err)
	assert.Equal(t, xpub, gotX)
	assert.Equal(t, edpub, gotEd)

	_, _, err = crypto.ParseIdentityKey(raw[:10])
	assert.ErrorIs(t, err, crypto.ErrBadIdentityKey)
}

func TestSignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	msg := []byte("signed pre-key")
	sig := crypto.SignEd25519(priv, msg)
	assert.True(t, crypto.VerifyEd25519(pub, msg, sig))
	assert.False(t, crypto.VerifyEd25519(pub, []byte("other"), sig))
}

func TestDHAgreement(t *testing.T) {
	aPriv, aPub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	bPriv, bPub, err := crypto.GenerateX25519()
	require.NoError(t, err)

	ab, err := crypto.DH(aPriv, bPub)
	require.NoError(t, err)
	ba, err := crypto.DH(bPriv, aPub)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
	assert.False(t, bytes.Equal(ab[:], make([]byte, 32)))
}

func TestRegistrationIDRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		id, err := crypto.GenerateRegistrationID()
		require.NoError(t, err)
		assert.NotZero(t, id)
		assert.Less(t, uint32(id), uint32(1)<<31)
	}
}

func TestFingerprintGroups(t *testing.T) {
	key := bytes.Repeat([]byte{7}, crypto.IdentityKeySize)
	fp := crypto.Fingerprint(key)

	groups := strings.Fields(fp)
	require.Len(t, groups, 8)
	for _, g := range groups {
		assert.Len(t, g, 8)
	}
	assert.Equal(t, fp, crypto.Fingerprint(key))

	// Changing only the signing half changes the fingerprint.
	other := bytes.Clone(key)
	other[crypto.IdentityKeySize-1] ^= 1
	assert.NotEqual(t, fp, crypto.Fingerprint(other))
}

func TestMatchFingerprint(t *testing.T) {
	key := bytes.Repeat([]byte{7}, crypto.IdentityKeySize)
	fp := crypto.Fingerprint(key)

	assert.True(t, crypto.MatchFingerprint(key, fp))
	assert.True(t, crypto.MatchFingerprint(key, strings.ToUpper(strings.ReplaceAll(fp, " ", ""))))
	assert.True(t, crypto.MatchFingerprint(key, "  "+strings.ReplaceAll(fp, " ", "\n")))
	assert.False(t, crypto.MatchFingerprint(key, fp[:len(fp)-1]))
	assert.False(t, crypto.MatchFingerprint(key, crypto.Fingerprint([]byte("other"))))
}
