package eventsingest

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduper_FirstSeenThenDuplicate(t *testing.T) {
	t.Parallel()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	d := NewDeduper(rdb, 24*time.Hour)
	ctx := context.Background()

	unseen, err := d.MarkIfUnseen(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, unseen)

	unseen, err = d.MarkIfUnseen(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, unseen)
}
