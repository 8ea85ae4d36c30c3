package types_test

import (
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omemo/internal/domain/types"
)

func TestKeysFromWire(t *testing.T) {
	raw := make([]byte, 32)
	raw[0] = 0xab

	x, err := types.X25519PublicFrom(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, x.Slice())
	assert.Equal(t, "ab"+fmt.Sprintf("%062d", 0), x.String())

	_, err = types.X25519PublicFrom(raw[:31])
	assert.ErrorIs(t, err, types.ErrKeyLength)
	_, err = types.Ed25519PublicFrom(append(raw, 1))
	assert.ErrorIs(t, err, types.ErrKeyLength)
}

func TestPrivateKeysRedacted(t *testing.T) {
	id := types.Identity{XPriv: types.X25519Private{0xaa}, EdPriv: types.Ed25519Private{0xbb}}

	for _, s := range []string{
		fmt.Sprintf("%v", id),
		fmt.Sprintf("%+v", id),
		fmt.Sprintf("%#v", id),
		fmt.Sprint(logrus.Fields{"key": id.XPriv}),
	} {
		assert.NotContains(t, s, "170", s)
		assert.NotContains(t, s, "0xaa", s)
		assert.Contains(t, s, "redacted", s)
	}
}
