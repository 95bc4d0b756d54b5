package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type save struct {
	Coins int `json:"coins"`
	Level int `json:"level"`
}

func TestMarshalPassThrough(t *testing.T) {
	raw := []byte(`{"coins":5}`)
	ba, err := Marshal(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, ba)

	var out []byte
	require.NoError(t, Unmarshal(raw, &out))
	assert.Equal(t, raw, out)
}

func TestMarshalStruct(t *testing.T) {
	ba, err := Marshal(save{Coins: 50, Level: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"coins":50,"level":2}`, string(ba))

	var s save
	require.NoError(t, Unmarshal(ba, &s))
	assert.Equal(t, save{Coins: 50, Level: 2}, s)
}
