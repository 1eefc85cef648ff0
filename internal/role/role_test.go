package role

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/commitlog"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/coordinator/coordinatortest"
	ilog "github.com/Siya-Moghe/yak-yet-another-kafka/internal/log"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/lease"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/offsets"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/registry"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/replication"
)

func newController(t *testing.T, coord *coordinatortest.Fake, brokerID int32) *Controller {
	dir := t.TempDir()
	store, err := commitlog.NewStore(dir, brokerID)
	require.NoError(t, err)

	leaseMgr := lease.NewManager(coord, 2*time.Second, brokerID, "127.0.0.1", 9000+int(brokerID))
	reg := registry.New(coord, 10*time.Second, brokerID, "127.0.0.1", 9000+int(brokerID))
	replicator := replication.New(ilog.New(), time.Second, time.Second)
	offsetSvc := offsets.New(coord)

	return New(ilog.New(), leaseMgr, reg, replicator, offsetSvc, store, brokerID, 10*time.Millisecond, time.Second, 20*time.Second)
}

func TestTickBecomesLeaderWhenLeaseFree(t *testing.T) {
	coord := coordinatortest.New()
	ctx := context.Background()
	c := newController(t, coord, 1)

	require.Equal(t, Follower, c.State())
	c.tick(ctx)
	require.Equal(t, Leader, c.State())
	require.True(t, c.IsLeader())
}

func TestTickStaysFollowerWhenAnotherBrokerLeads(t *testing.T) {
	coord := coordinatortest.New()
	ctx := context.Background()

	leader := newController(t, coord, 1)
	leader.tick(ctx)
	require.Equal(t, Leader, leader.State())

	follower := newController(t, coord, 2)
	follower.tick(ctx)
	require.Equal(t, Follower, follower.State())
}

func TestTickLosesLeadershipWhenLeaseExpires(t *testing.T) {
	coord := coordinatortest.New()
	ctx := context.Background()
	now := time.Now()
	coord.SetClock(func() time.Time { return now })

	c := newController(t, coord, 1)
	c.tick(ctx)
	require.Equal(t, Leader, c.State())

	now = now.Add(time.Minute)
	c.tick(ctx)
	require.Equal(t, Follower, c.State())
}
