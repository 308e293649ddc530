package eventsingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Accepts(t *testing.T) {
	t.Parallel()
	req := EventRequest{UserID: "u1", PostID: "p1", Action: "like"}
	ev, err := Validate(req)
	require.NoError(t, err)
	assert.NotEmpty(t, ev.EventID)
	assert.False(t, ev.EventTime.IsZero())
}

func TestValidate_RejectsUnknownAction(t *testing.T) {
	t.Parallel()
	req := EventRequest{UserID: "u1", PostID: "p1", Action: "explode"}
	_, err := Validate(req)
	assert.Error(t, err)
}

func TestValidate_RejectsMissingRequired(t *testing.T) {
	t.Parallel()
	req := EventRequest{PostID: "p1", Action: "like"}
	_, err := Validate(req)
	assert.Error(t, err)
}

func TestValidate_ParsesTs(t *testing.T) {
	t.Parallel()
	ts := int64(1785492000000) // 2026-07-31T10:00:00Z
	req := EventRequest{UserID: "u1", PostID: "p1", Action: "view", Ts: &ts}
	ev, err := Validate(req)
	require.NoError(t, err)
	assert.Equal(t, 2026, ev.EventTime.Year())
}

func TestValidate_DefaultsTsToNow(t *testing.T) {
	t.Parallel()
	req := EventRequest{UserID: "u1", PostID: "p1", Action: "view"}
	ev, err := Validate(req)
	require.NoError(t, err)
	assert.False(t, ev.EventTime.IsZero())
}
