package coordinatortest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetIfAbsentWithTTLOnlyOneWinner(t *testing.T) {
	f := New()
	ctx := context.Background()

	ok1, err := f.SetIfAbsentWithTTL(ctx, "lease", []byte("broker-1"), time.Second)
	require.NoError(t, err)
	require.True(t, ok1)

	ok2, err := f.SetIfAbsentWithTTL(ctx, "lease", []byte("broker-2"), time.Second)
	require.NoError(t, err)
	require.False(t, ok2)

	val, ok, err := f.Get(ctx, "lease")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "broker-1", string(val))
}

func TestSetIfAbsentWithTTLExpires(t *testing.T) {
	f := New()
	ctx := context.Background()
	now := time.Now()
	f.SetClock(func() time.Time { return now })

	ok, err := f.SetIfAbsentWithTTL(ctx, "lease", []byte("broker-1"), time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Second)

	ok, err = f.SetIfAbsentWithTTL(ctx, "lease", []byte("broker-2"), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIncrStartsAtOne(t *testing.T) {
	f := New()
	ctx := context.Background()

	n, err := f.Incr(ctx, "offset:topic")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = f.Incr(ctx, "offset:topic")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestHSetManyAndHGetAll(t *testing.T) {
	f := New()
	ctx := context.Background()

	require.NoError(t, f.HSetMany(ctx, "broker:1", map[string]string{"host": "a", "port": "1"}))
	require.NoError(t, f.HSetMany(ctx, "broker:1", map[string]string{"port": "2"}))

	fields, err := f.HGetAll(ctx, "broker:1")
	require.NoError(t, err)
	require.Equal(t, "a", fields["host"])
	require.Equal(t, "2", fields["port"])
}

func TestKeysFiltersByPrefixAndExpiry(t *testing.T) {
	f := New()
	ctx := context.Background()

	require.NoError(t, f.Set(ctx, "yak:broker:1", []byte("x")))
	require.NoError(t, f.Set(ctx, "yak:broker:2", []byte("y")))
	require.NoError(t, f.Set(ctx, "yak:offset:topic", []byte("0")))
	require.NoError(t, f.Expire(ctx, "yak:broker:2", -time.Second))

	keys, err := f.Keys(ctx, "yak:broker:")
	require.NoError(t, err)
	require.Contains(t, keys, "yak:broker:1")
	require.NotContains(t, keys, "yak:broker:2")
}
