package cdcingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope_Valid(t *testing.T) {
	t.Parallel()
	raw := []byte(`{"table":"posts","op":"create","key":"p1","payload":{"author_id":"a1"},"cdc_timestamp":1690000000000}`)
	env, err := decodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, "posts", env.Table)
	assert.Equal(t, "p1", env.Key)
}

func TestDecodeEnvelope_RejectsMissingFields(t *testing.T) {
	t.Parallel()
	cases := []string{
		`{"op":"create","key":"p1","cdc_timestamp":1}`,
		`{"table":"posts","op":"create","cdc_timestamp":1}`,
		`{"table":"posts","op":"bogus","key":"p1","cdc_timestamp":1}`,
		`{"table":"posts","op":"create","key":"p1"}`,
		`not json`,
	}
	for _, raw := range cases {
		_, err := decodeEnvelope([]byte(raw))
		assert.Error(t, err, raw)
	}
}
