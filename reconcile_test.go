package profiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileFillsMissingFields(t *testing.T) {
	out, err := ReconcileJSON([]byte(`{"coins":50}`), []byte(`{"coins":0,"level":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"coins":50,"level":1}`, string(out))
}

func TestReconcileNeverOverwrites(t *testing.T) {
	// Type changes in the payload are kept too.
	out, err := ReconcileJSON(
		[]byte(`{"coins":"lots","inventory":{"sword":1},"tags":["a"]}`),
		[]byte(`{"coins":0,"inventory":{"sword":0,"shield":0},"tags":[],"settings":{"music":true}}`))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"coins":"lots","inventory":{"sword":1,"shield":0},"tags":["a"],"settings":{"music":true}}`,
		string(out))
}

func TestReconcileEmptyPayload(t *testing.T) {
	for _, p := range []string{"", "null", "  "} {
		out, err := ReconcileJSON([]byte(p), []byte(`{"coins":0,"level":1}`))
		require.NoError(t, err, "payload %q", p)
		assert.JSONEq(t, `{"coins":0,"level":1}`, string(out))
	}
}

func TestReconcileKeepsLargeIntegers(t *testing.T) {
	out, err := ReconcileJSON([]byte(`{"id":9007199254740993}`), []byte(`{"id":0}`))
	require.NoError(t, err)
	assert.Equal(t, `{"id":9007199254740993}`, string(out))
}

func TestReconcileRejectsNonObjects(t *testing.T) {
	_, err := ReconcileJSON([]byte(`[1,2]`), []byte(`{}`))
	assert.Error(t, err)
	_, err = ReconcileJSON([]byte(`{}`), []byte(`42`))
	assert.Error(t, err)
	_, err = ReconcileJSON([]byte(`{"a":`), []byte(`{}`))
	assert.Error(t, err)
}

func TestReconcileDoesNotAliasTemplate(t *testing.T) {
	tmpl := []byte(`{"inventory":{"slots":[1,2]}}`)
	a, err := ReconcileJSON(nil, tmpl)
	require.NoError(t, err)
	b, err := ReconcileJSON([]byte(`{"inventory":{}}`), tmpl)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}
