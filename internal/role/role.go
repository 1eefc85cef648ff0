// Package role implements the role controller (C7): the background state
// machine that acquires/renews the leader lease and triggers catch-up,
// per spec.md §4.7. Grounded on jocko.Broker.monitorLeadership's
// goroutine-driven leader/follower bookkeeping (setConsistentReadReady /
// resetConsistentReadReady, atomic role flag read by request handlers),
// but tick-driven by a time.Ticker instead of a raft notification
// channel, since YAK has no raft layer.
package role

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/commitlog"
	ilog "github.com/Siya-Moghe/yak-yet-another-kafka/internal/log"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/metadata"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/offsets"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/registry"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/replication"
)

// State is one of Follower or Leader.
type State int32

const (
	Follower State = iota
	Leader
)

func (s State) String() string {
	if s == Leader {
		return "leader"
	}
	return "follower"
}

// LeaseManager is the subset of lease.Manager the role controller drives.
type LeaseManager interface {
	TryAcquire(ctx context.Context) (bool, error)
	Renew(ctx context.Context) (bool, error)
	CurrentLeader(ctx context.Context) (metadata.LeaseRecord, bool, error)
}

// Controller runs the per-tick leader/follower state machine.
type Controller struct {
	logger        ilog.Logger
	lease         LeaseManager
	registry      *registry.Registry
	replicator    *replication.Engine
	offsetSvc     *offsets.Service
	store         *commitlog.Store
	brokerID      int32
	renewInterval time.Duration
	discoverTimeout time.Duration

	state   int32 // atomic State
	staleAfter time.Duration
}

// New builds a role controller. staleAfter (2×LEASE_TTL per spec.md §4.4)
// is stored on the controller but not consulted by tick or catch-up.
func New(
	logger ilog.Logger,
	lease LeaseManager,
	reg *registry.Registry,
	replicator *replication.Engine,
	offsetSvc *offsets.Service,
	store *commitlog.Store,
	brokerID int32,
	renewInterval time.Duration,
	discoverTimeout time.Duration,
	staleAfter time.Duration,
) *Controller {
	return &Controller{
		logger:          logger,
		lease:           lease,
		registry:        reg,
		replicator:      replicator,
		offsetSvc:       offsetSvc,
		store:           store,
		brokerID:        brokerID,
		renewInterval:   renewInterval,
		discoverTimeout: discoverTimeout,
		staleAfter:      staleAfter,
		state:           int32(Follower),
	}
}

// State returns the controller's current role.
func (c *Controller) State() State {
	return State(atomic.LoadInt32(&c.state))
}

// IsLeader reports whether this broker currently believes itself leader.
// Handlers take this snapshot at request start, per spec.md §9: a role
// flip mid-request is tolerated because the coordinator remains the
// source of truth for offset allocation.
func (c *Controller) IsLeader() bool {
	return c.State() == Leader
}

func (c *Controller) setState(s State) {
	atomic.StoreInt32(&c.state, int32(s))
}

// Run ticks the state machine every renewInterval until ctx is canceled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.renewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// Tick runs one iteration of the state machine synchronously, outside of
// Run's ticker loop. Tests use this to drive leadership deterministically.
func (c *Controller) Tick(ctx context.Context) {
	c.tick(ctx)
}

func (c *Controller) tick(ctx context.Context) {
	switch c.State() {
	case Follower:
		acquired, err := c.lease.TryAcquire(ctx)
		if err != nil {
			c.logger.Warn("lease acquire attempt failed", ilog.Error("error", err))
			return
		}
		if acquired {
			c.logger.Info("became leader", ilog.Int32("broker_id", c.brokerID))
			c.setState(Leader)
			return
		}
		c.catchUp(ctx)
	case Leader:
		renewed, err := c.lease.Renew(ctx)
		if err != nil {
			c.logger.Warn("lease renew attempt failed", ilog.Error("error", err))
			return
		}
		if !renewed {
			c.logger.Info("lost leadership", ilog.Int32("broker_id", c.brokerID))
			c.setState(Follower)
		}
	}
}

// catchUp resolves the current leader and pulls every topic forward to
// the leader's head, per spec.md §4.5's follower-side algorithm.
func (c *Controller) catchUp(ctx context.Context) {
	record, ok, err := c.lease.CurrentLeader(ctx)
	if err != nil {
		c.logger.Warn("catch-up: resolve leader failed", ilog.Error("error", err))
		return
	}
	if !ok || record.BrokerID == c.brokerID {
		return
	}
	leader := record.Broker()

	leaderTopics, err := c.replicator.DiscoverTopics(ctx, leader, c.discoverTimeout)
	if err != nil {
		c.logger.Warn("catch-up: discover topics failed", ilog.Error("error", err))
		return
	}

	known := map[string]bool{}
	for _, t := range c.store.ListTopics() {
		known[t] = true
	}
	for _, t := range leaderTopics {
		known[t] = true
	}

	for topic := range known {
		if err := c.catchUpTopic(ctx, leader, topic); err != nil {
			c.logger.Warn("catch-up: topic failed",
				ilog.String("topic", topic), ilog.Error("error", err))
		}
	}
}

func (c *Controller) catchUpTopic(ctx context.Context, leader metadata.BrokerInfo, topic string) error {
	fhwm, err := c.offsetSvc.FollowerHWM(ctx, c.brokerID, topic)
	if err != nil {
		return err
	}
	records, err := c.replicator.CatchUpTopic(ctx, leader, topic, fhwm)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	log, err := c.store.EnsureTopic(topic)
	if err != nil {
		return err
	}
	existing := map[int64]bool{}
	all, err := log.ReadAll()
	if err != nil {
		return err
	}
	for _, r := range all {
		existing[r.Offset] = true
	}
	highest := fhwm
	for _, r := range records {
		if existing[r.Offset] {
			continue
		}
		if err := log.Append(r.Offset, r.Payload); err != nil {
			return err
		}
		if r.Offset > highest {
			highest = r.Offset
		}
	}
	return c.offsetSvc.SetFollowerHWM(ctx, c.brokerID, topic, highest)
}
