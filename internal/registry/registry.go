// Package registry implements the broker registry (C4): self-registration
// and heartbeat in the coordinator, and enumeration of live peers. Plays
// the same "who else is in the cluster" role as jocko's brokerLookup, but
// sourced from coordinator hashes instead of serf gossip membership.
package registry

import (
	"context"
	"strconv"
	"time"

	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/coordinator"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/metadata"
)

const brokerKeyPrefix = "yak:broker:"

// Registry manages this broker's heartbeat and reads the rest of the
// cluster's.
type Registry struct {
	coord    coordinator.Client
	ttl      time.Duration
	brokerID int32
	host     string
	port     int
	// now is overridable for deterministic tests.
	now func() time.Time
}

// New builds a registry for this broker's identity. ttl should be
// 3×LEASE_TTL per spec.md §4.4.
func New(coord coordinator.Client, ttl time.Duration, brokerID int32, host string, port int) *Registry {
	return &Registry{coord: coord, ttl: ttl, brokerID: brokerID, host: host, port: port, now: time.Now}
}

func brokerKey(id int32) string {
	return brokerKeyPrefix + strconv.FormatInt(int64(id), 10)
}

// Register writes this broker's heartbeat record for the first time.
func (r *Registry) Register(ctx context.Context) error {
	return r.Heartbeat(ctx)
}

// Heartbeat refreshes this broker's last_seen and TTL.
func (r *Registry) Heartbeat(ctx context.Context) error {
	entry := metadata.RegistryEntry{
		BrokerID: r.brokerID,
		Host:     r.host,
		Port:     r.port,
		LastSeen: r.now().Unix(),
	}
	key := brokerKey(r.brokerID)
	if err := r.coord.HSetMany(ctx, key, entry.Fields()); err != nil {
		return err
	}
	return r.coord.Expire(ctx, key, r.ttl)
}

// LivePeers returns every other broker whose heartbeat is fresh (within
// 2×LEASE_TTL, per spec.md §4.4), excluding this broker.
func (r *Registry) LivePeers(ctx context.Context, staleAfter time.Duration) ([]metadata.BrokerInfo, error) {
	keys, err := r.coord.Keys(ctx, brokerKeyPrefix)
	if err != nil {
		return nil, err
	}
	now := r.now()
	var peers []metadata.BrokerInfo
	for _, key := range keys {
		fields, err := r.coord.HGetAll(ctx, key)
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		entry, ok := metadata.ParseRegistryEntry(fields)
		if !ok {
			continue
		}
		if entry.BrokerID == r.brokerID {
			continue
		}
		if entry.Stale(now, staleAfter) {
			continue
		}
		peers = append(peers, entry.Broker())
	}
	return peers, nil
}
