// Package broker is the composition root: it wires C1–C7 together behind
// the operations internal/httpapi calls, the way jocko.Broker wires its
// raft/serf/commitlog machinery behind handleProduce/handleFetch/etc.
// YAK's leadership comes from an external lease coordinator rather than
// raft, so this Broker owns a role.Controller instead of a *raft.Raft.
package broker

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/commitlog"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/config"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/coordinator"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/lease"
	ilog "github.com/Siya-Moghe/yak-yet-another-kafka/internal/log"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/metadata"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/offsets"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/registry"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/replication"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/role"
)

func newLeaseManager(coord coordinator.Client, cfg *config.BrokerConfig) *lease.Manager {
	return lease.NewManager(coord, cfg.LeaseTTL, cfg.BrokerID, cfg.AdvertisedHost(), cfg.Port)
}

// Sentinel errors, mirroring jocko/broker.go's package-level error vars.
var (
	ErrTopicExists   = errors.New("topic exists already")
	ErrUnknownTopic  = errors.New("topic does not exist")
	ErrNotLeader     = errors.New("not the leader")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Broker is a single YAK node: the leader/follower state machine, the
// append-and-replicate write path, the consume-at-HWM read path, and the
// catch-up protocol, all in one process.
type Broker struct {
	mu sync.RWMutex

	logger ilog.Logger
	cfg    *config.BrokerConfig

	store      *commitlog.Store
	coord      coordinator.Client
	offsetSvc  *offsets.Service
	registry   *registry.Registry
	replicator *replication.Engine
	roleCtrl   *role.Controller

	// topicLocks serializes next_offset -> append -> advance_hwm per
	// topic on the leader, per spec.md §5.
	topicLocks map[string]*sync.Mutex

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New builds a broker from its config and a coordinator client. The
// coordinator is injected (rather than dialed here) so tests can pass an
// in-memory fake.
func New(cfg *config.BrokerConfig, coord coordinator.Client, logger ilog.Logger) (*Broker, error) {
	logger = logger.With(ilog.Int32("broker_id", cfg.BrokerID))

	store, err := commitlog.NewStore(cfg.DataDir, cfg.BrokerID)
	if err != nil {
		return nil, errors.Wrap(err, "broker: open store")
	}

	offsetSvc := offsets.New(coord)
	reg := registry.New(coord, 3*cfg.LeaseTTL, cfg.BrokerID, cfg.AdvertisedHost(), cfg.Port)
	leaseMgr := newLeaseManager(coord, cfg)
	replicator := replication.New(logger, cfg.ReplicateTimeout, cfg.CatchupTimeout)
	roleCtrl := role.New(
		logger, leaseMgr, reg, replicator, offsetSvc, store,
		cfg.BrokerID, cfg.RenewInterval, cfg.DiscoverTimeout, 2*cfg.LeaseTTL,
	)

	b := &Broker{
		logger:     logger,
		cfg:        cfg,
		store:      store,
		coord:      coord,
		offsetSvc:  offsetSvc,
		registry:   reg,
		replicator: replicator,
		roleCtrl:   roleCtrl,
		topicLocks: map[string]*sync.Mutex{},
		shutdownCh: make(chan struct{}),
	}
	return b, nil
}

// Run starts the role controller and the registry heartbeat loop; it
// blocks until ctx is canceled.
func (b *Broker) Run(ctx context.Context) {
	if err := b.registry.Register(ctx); err != nil {
		b.logger.Warn("initial registry heartbeat failed", ilog.Error("error", err))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.roleCtrl.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		b.heartbeatLoop(ctx)
	}()
	wg.Wait()
}

func (b *Broker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.LeaseTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.registry.Heartbeat(ctx); err != nil {
				b.logger.Warn("registry heartbeat failed", ilog.Error("error", err))
			}
		}
	}
}

// Shutdown closes the broker's shutdown channel exactly once, matching
// jocko.Broker.Shutdown's once-only close-channel idiom. It does not stop
// Run's loops; those exit when the context passed to Run is canceled.
func (b *Broker) Shutdown() error {
	b.shutdownOnce.Do(func() { close(b.shutdownCh) })
	return nil
}

// IsLeader reports this broker's current role, per spec.md §9: handlers
// snapshot this at request start.
func (b *Broker) IsLeader() bool {
	return b.roleCtrl.IsLeader()
}

// TickForTest drives the role controller through one tick so tests can
// deterministically exercise leader acquisition, lease loss, and follower
// catch-up instead of racing Run's ticker.
func (b *Broker) TickForTest(ctx context.Context) {
	b.roleCtrl.Tick(ctx)
}

// HeartbeatForTest publishes this broker's registry entry once, so tests
// can make it visible to a peer's LivePeers lookup without starting Run.
func (b *Broker) HeartbeatForTest(ctx context.Context) error {
	return b.registry.Heartbeat(ctx)
}

// Self returns this broker's own identity.
func (b *Broker) Self() metadata.BrokerInfo {
	return metadata.BrokerInfo{BrokerID: b.cfg.BrokerID, Host: b.cfg.AdvertisedHost(), Port: b.cfg.Port}
}

// CurrentLeader returns the cluster's current leader, if any.
func (b *Broker) CurrentLeader(ctx context.Context) (metadata.LeaseRecord, bool, error) {
	return newLeaseManager(b.coord, b.cfg).CurrentLeader(ctx)
}

func (b *Broker) topicLock(topic string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.topicLocks[topic]
	if !ok {
		l = &sync.Mutex{}
		b.topicLocks[topic] = l
	}
	return l
}

// RegisterTopic creates topic if this broker is leader. Idempotent: a
// second registration of the same name returns (false, nil) to signal
// "exists", per spec.md I6 / §4.8.
func (b *Broker) RegisterTopic(ctx context.Context, topic string) (created bool, err error) {
	if topic == "" {
		return false, ErrInvalidArgument
	}
	if !b.IsLeader() {
		return false, ErrNotLeader
	}
	lock := b.topicLock(topic)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := b.store.Log(topic); ok {
		return false, nil
	}
	if _, err := b.store.EnsureTopic(topic); err != nil {
		return false, errors.Wrap(err, "broker: ensure topic on disk")
	}
	if err := b.offsetSvc.InitTopic(ctx, topic); err != nil {
		return false, errors.Wrap(err, "broker: init topic counters")
	}
	return true, nil
}

// TopicExists reports whether topic is known locally.
func (b *Broker) TopicExists(topic string) bool {
	_, ok := b.store.Log(topic)
	return ok
}

// ListTopics returns every topic known to this broker.
func (b *Broker) ListTopics() []string {
	return b.store.ListTopics()
}

// ProduceResult is the outcome of a successful Produce call.
type ProduceResult struct {
	Offset int64
	HWM    int64
}

// Produce assigns the next offset for topic, appends payload locally,
// fans it out to live peers, and advances the HWM. Must only be called
// when IsLeader() was true at request start; callers still holding a
// stale leadership snapshot simply race the coordinator, which remains
// authoritative for offset allocation (spec.md §9).
func (b *Broker) Produce(ctx context.Context, topic string, payload json.RawMessage) (ProduceResult, error) {
	if !b.TopicExists(topic) {
		return ProduceResult{}, ErrUnknownTopic
	}

	lock := b.topicLock(topic)
	lock.Lock()
	defer lock.Unlock()

	offset, err := b.offsetSvc.NextOffset(ctx, topic)
	if err != nil {
		return ProduceResult{}, err
	}

	log, err := b.store.EnsureTopic(topic)
	if err != nil {
		return ProduceResult{}, err
	}
	if err := log.Append(offset, payload); err != nil {
		// The offset counter has already advanced; this leaves a gap on
		// disk, per spec.md §9's accepted tradeoff.
		return ProduceResult{}, errors.Wrap(err, "broker: append failed")
	}

	merged, err := mergeOffset(offset, payload)
	if err == nil {
		peers, perr := b.registry.LivePeers(ctx, 2*b.cfg.LeaseTTL)
		if perr != nil {
			b.logger.Warn("list live peers for fanout failed", ilog.Error("error", perr))
		} else {
			b.replicator.Fanout(ctx, peers, topic, commitlog.Record{Offset: offset, Payload: merged})
		}
	}

	if err := b.offsetSvc.AdvanceHWM(ctx, topic, offset); err != nil {
		return ProduceResult{}, err
	}

	return ProduceResult{Offset: offset, HWM: offset}, nil
}

func mergeOffset(offset int64, payload json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, err
		}
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	offsetJSON, err := json.Marshal(offset)
	if err != nil {
		return nil, err
	}
	fields["offset"] = offsetJSON
	return json.Marshal(fields)
}

// ConsumeResult is the outcome of a Consume call.
type ConsumeResult struct {
	Messages       []json.RawMessage
	HWM            int64
	TotalAvailable int
}

// Consume returns every locally stored message for topic with
// fromOffset <= offset <= HWM, per spec.md I5 / §4.8.
func (b *Broker) Consume(ctx context.Context, topic string, fromOffset int64) (ConsumeResult, error) {
	log, ok := b.store.Log(topic)
	if !ok {
		return ConsumeResult{}, ErrUnknownTopic
	}
	hwm, err := b.offsetSvc.HWM(ctx, topic)
	if err != nil {
		return ConsumeResult{}, err
	}
	records, err := log.ReadAll()
	if err != nil {
		return ConsumeResult{}, err
	}
	var messages []json.RawMessage
	for _, r := range records {
		if r.Offset >= fromOffset && r.Offset <= hwm {
			messages = append(messages, r.Payload)
		}
	}
	return ConsumeResult{Messages: messages, HWM: hwm, TotalAvailable: len(messages)}, nil
}

// Replicate idempotently appends a single leader-pushed message. A
// duplicate offset is a no-op, per spec.md P6.
func (b *Broker) Replicate(ctx context.Context, topic string, message json.RawMessage) error {
	var env struct {
		Offset int64 `json:"offset"`
	}
	if err := json.Unmarshal(message, &env); err != nil {
		return errors.Wrap(err, "broker: replicate payload missing offset")
	}

	lock := b.topicLock(topic)
	lock.Lock()
	defer lock.Unlock()

	log, ok := b.store.Log(topic)
	if !ok {
		return ErrUnknownTopic
	}
	records, err := log.ReadAll()
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.Offset == env.Offset {
			return nil
		}
	}
	if err := log.Append(env.Offset, message); err != nil {
		return err
	}
	return b.offsetSvc.SetFollowerHWM(ctx, b.cfg.BrokerID, topic, env.Offset)
}

// CatchUp returns every locally stored message for topic past fromOffset,
// in offset order, per spec.md §4.8.
func (b *Broker) CatchUp(topic string, fromOffset int64) ([]json.RawMessage, error) {
	log, ok := b.store.Log(topic)
	if !ok {
		return nil, ErrUnknownTopic
	}
	records, err := log.ReadAll()
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Offset < records[j].Offset })
	out := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		if r.Offset > fromOffset {
			out = append(out, r.Payload)
		}
	}
	return out, nil
}
