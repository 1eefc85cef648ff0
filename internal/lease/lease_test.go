package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/coordinator/coordinatortest"
)

func TestTryAcquireSingleWinner(t *testing.T) {
	coord := coordinatortest.New()
	ctx := context.Background()

	m1 := NewManager(coord, time.Second, 1, "127.0.0.1", 9001)
	m2 := NewManager(coord, time.Second, 2, "127.0.0.1", 9002)

	ok1, err := m1.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok1)

	ok2, err := m2.TryAcquire(ctx)
	require.NoError(t, err)
	require.False(t, ok2)

	record, ok, err := m1.CurrentLeader(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int32(1), record.BrokerID)
	require.Equal(t, int64(1), record.Epoch)
}

func TestRenewFailsForNonLeader(t *testing.T) {
	coord := coordinatortest.New()
	ctx := context.Background()

	m1 := NewManager(coord, time.Second, 1, "127.0.0.1", 9001)
	m2 := NewManager(coord, time.Second, 2, "127.0.0.1", 9002)

	_, err := m1.TryAcquire(ctx)
	require.NoError(t, err)

	renewed, err := m2.Renew(ctx)
	require.NoError(t, err)
	require.False(t, renewed)

	renewed, err = m1.Renew(ctx)
	require.NoError(t, err)
	require.True(t, renewed)
}

func TestEpochIncreasesAcrossElections(t *testing.T) {
	coord := coordinatortest.New()
	ctx := context.Background()
	now := time.Now()
	coord.SetClock(func() time.Time { return now })

	m1 := NewManager(coord, time.Second, 1, "127.0.0.1", 9001)
	ok, err := m1.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(5 * time.Second) // lease expires

	m2 := NewManager(coord, time.Second, 2, "127.0.0.1", 9002)
	ok, err = m2.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	record, _, err := m2.CurrentLeader(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), record.Epoch)
}
