package olap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRejectDDL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		sql     string
		wantErr bool
	}{
		{"SELECT * FROM feed_candidates_trending", false},
		{"select post_id from feed_candidates_followees where user_id = $1", false},
		{"DROP TABLE feed_candidates_trending", true},
		{"ALTER TABLE feed_candidates_trending ADD COLUMN x int", true},
		{"CREATE TABLE staging_trending (like feed_candidates_trending)", true},
	}
	for _, tc := range cases {
		err := rejectDDL(tc.sql)
		if tc.wantErr {
			assert.Error(t, err)
		} else {
			assert.NoError(t, err)
		}
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(errors.New("dial tcp: connection refused")))
	assert.True(t, IsTransient(errors.New("i/o timeout")))
	assert.False(t, IsTransient(errors.New("ERROR: relation \"x\" does not exist (SQLSTATE 42P01)")))
	assert.False(t, IsTransient(errors.New("invalid argument: limit must be positive")))
}
