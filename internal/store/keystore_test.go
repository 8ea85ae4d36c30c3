package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeystore_SealOpen(t *testing.T) {
	sealed, err := sealKeystore("identity", "pass", []byte("secret"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "secret")

	pt, err := openKeystore("identity", "pass", sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), pt)

	_, err = openKeystore("identity", "other", sealed)
	assert.ErrorIs(t, err, ErrWrongPassphrase)
}

func TestKeystore_FreshSaltAndNonce(t *testing.T) {
	a, err := sealKeystore("identity", "pass", []byte("secret"))
	require.NoError(t, err)
	b, err := sealKeystore("identity", "pass", []byte("secret"))
	require.NoError(t, err)

	var fa, fb keystoreFile
	require.NoError(t, json.Unmarshal(a, &fa))
	require.NoError(t, json.Unmarshal(b, &fb))
	assert.NotEqual(t, fa.Salt, fb.Salt)
	assert.NotEqual(t, fa.Nonce, fb.Nonce)
	assert.NotEqual(t, fa.Sealed, fb.Sealed)
}

func TestKeystore_HeaderIsBound(t *testing.T) {
	sealed, err := sealKeystore("identity", "pass", []byte("secret"))
	require.NoError(t, err)

	tamper := func(fn func(f *keystoreFile)) []byte {
		var f keystoreFile
		require.NoError(t, json.Unmarshal(sealed, &f))
		fn(&f)
		b, err := json.Marshal(f)
		require.NoError(t, err)
		return b
	}

	// A cheaper but still valid cost fails authentication.
	_, err = openKeystore("identity", "pass", tamper(func(f *keystoreFile) { f.KDF.N = 1 << 14 }))
	assert.ErrorIs(t, err, ErrWrongPassphrase)

	_, err = openKeystore("identity", "pass", tamper(func(f *keystoreFile) { f.KDF.N = 1 << 30 }))
	assert.ErrorIs(t, err, ErrKeystoreFormat)

	_, err = openKeystore("identity", "pass", tamper(func(f *keystoreFile) { f.Version = 1 }))
	assert.ErrorIs(t, err, ErrKeystoreFormat)

	_, err = openKeystore("prekeys", "pass", sealed)
	assert.ErrorIs(t, err, ErrKeystoreFormat)

	_, err = openKeystore("identity", "pass", []byte("not json"))
	assert.ErrorIs(t, err, ErrKeystoreFormat)
}
