// Package metadata holds the small, JSON-serialized records the broker
// exchanges with the coordinator and with its peers: the current lease
// owner, and individual broker identities. Mirrors the role jocko/metadata
// plays for gossip members, but for lease-elected brokers instead.
package metadata

import (
	"strconv"
	"time"
)

// BrokerInfo identifies a broker for inter-broker RPCs and client redirects.
type BrokerInfo struct {
	BrokerID int32  `json:"broker_id"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// LeaseRecord is the value stored at the coordinator's lease key.
type LeaseRecord struct {
	BrokerID int32  `json:"broker_id"`
	Epoch    int64  `json:"epoch"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// Broker returns the BrokerInfo embedded in a lease record.
func (l LeaseRecord) Broker() BrokerInfo {
	return BrokerInfo{BrokerID: l.BrokerID, Host: l.Host, Port: l.Port}
}

// RegistryEntry is the per-broker heartbeat record under yak:broker:<id>.
type RegistryEntry struct {
	BrokerID int32  `json:"broker_id"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	LastSeen int64  `json:"last_seen"` // unix seconds
}

// Fields renders the entry as the coordinator hash fields registry.Heartbeat
// writes, keeping the field-name strings in one place.
func (e RegistryEntry) Fields() map[string]string {
	return map[string]string{
		"broker_id": strconv.FormatInt(int64(e.BrokerID), 10),
		"host":      e.Host,
		"port":      strconv.Itoa(e.Port),
		"last_seen": strconv.FormatInt(e.LastSeen, 10),
	}
}

// ParseRegistryEntry parses the coordinator hash fields registry.LivePeers
// reads back. ok is false if the fields don't describe a valid entry.
func ParseRegistryEntry(fields map[string]string) (entry RegistryEntry, ok bool) {
	id, err := strconv.ParseInt(fields["broker_id"], 10, 32)
	if err != nil {
		return RegistryEntry{}, false
	}
	port, err := strconv.Atoi(fields["port"])
	if err != nil {
		return RegistryEntry{}, false
	}
	lastSeen, err := strconv.ParseInt(fields["last_seen"], 10, 64)
	if err != nil {
		return RegistryEntry{}, false
	}
	return RegistryEntry{
		BrokerID: int32(id),
		Host:     fields["host"],
		Port:     port,
		LastSeen: lastSeen,
	}, true
}

// Stale reports whether the entry's last heartbeat is older than maxAge,
// relative to now.
func (e RegistryEntry) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(time.Unix(e.LastSeen, 0)) > maxAge
}

// Broker returns the BrokerInfo embedded in a registry entry.
func (e RegistryEntry) Broker() BrokerInfo {
	return BrokerInfo{BrokerID: e.BrokerID, Host: e.Host, Port: e.Port}
}
