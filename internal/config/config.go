// Package config holds the broker's startup configuration, populated from
// CLI flags in cmd/yak the same way jocko/config.BrokerConfig is populated
// from cmd/jocko's cobra flags.
package config

import "time"

// BrokerConfig is the full set of knobs a broker node needs at startup.
type BrokerConfig struct {
	// BrokerID uniquely identifies this broker within the cluster.
	BrokerID int32
	// Host is the address other brokers and clients use to reach this one.
	// AdvertiseHost overrides it when set (e.g. behind NAT).
	Host          string
	Port          int
	AdvertiseHost string

	// DataDir is the root directory under which per-topic logs live:
	// <DataDir>/broker-<BrokerID>/<topic>/partition-0/messages.log
	DataDir string

	RedisHost string
	RedisPort int

	LeaseTTL      time.Duration
	RenewInterval time.Duration

	DiscoverTimeout time.Duration
	CatchupTimeout  time.Duration
	ReplicateTimeout time.Duration

	// MaxMessageBytes caps a single produced payload.
	MaxMessageBytes int64
}

// DefaultBrokerConfig mirrors jocko's config.DefaultBrokerConfig: sane
// defaults for a single local node, overridden by CLI flags in cmd/yak.
func DefaultBrokerConfig() *BrokerConfig {
	return &BrokerConfig{
		BrokerID:         0,
		Host:             "127.0.0.1",
		Port:             9092,
		DataDir:          "/tmp/yak",
		RedisHost:        "127.0.0.1",
		RedisPort:        6379,
		LeaseTTL:         10 * time.Second,
		RenewInterval:    5 * time.Second,
		DiscoverTimeout:  5 * time.Second,
		CatchupTimeout:   10 * time.Second,
		ReplicateTimeout: 5 * time.Second,
		MaxMessageBytes:  1 << 20,
	}
}

// AdvertisedHost returns AdvertiseHost if set, else Host.
func (c *BrokerConfig) AdvertisedHost() string {
	if c.AdvertiseHost != "" {
		return c.AdvertiseHost
	}
	return c.Host
}
