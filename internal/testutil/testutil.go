// Package testutil provides test-only broker construction helpers, the way
// jocko's top-level testutil package gave integration tests a NewTestServer
// built from dynaport-allocated addresses and a temp data dir. YAK's
// equivalent wires internal/broker.Broker against an in-memory
// coordinatortest.Fake instead of dialing a live Redis.
package testutil

import (
	"fmt"
	"io/ioutil"
	"sync/atomic"

	testing "github.com/mitchellh/go-testing-interface"
	dynaport "github.com/travisjeffery/go-dynaport"

	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/broker"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/config"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/coordinator/coordinatortest"
	ilog "github.com/Siya-Moghe/yak-yet-another-kafka/internal/log"
)

var nodeNumber int32

// NewTestBroker builds a broker with a dynaport-allocated port and a fresh
// temp data dir, sharing the given fake coordinator so multiple test
// brokers can see each other's leases, heartbeats, and offsets.
func NewTestBroker(t testing.T, coord *coordinatortest.Fake, cb func(cfg *config.BrokerConfig)) *broker.Broker {
	ports := dynaport.GetS(1)
	nodeID := atomic.AddInt32(&nodeNumber, 1)

	dir, err := ioutil.TempDir("", fmt.Sprintf("yak-test-node%d", nodeID))
	if err != nil {
		t.Fatalf("err != nil: %s", err)
	}

	cfg := config.DefaultBrokerConfig()
	cfg.BrokerID = nodeID
	cfg.Host = "127.0.0.1"
	cfg.Port = mustAtoi(t, ports[0])
	cfg.DataDir = dir

	if cb != nil {
		cb(cfg)
	}

	b, err := broker.New(cfg, coord, ilog.New())
	if err != nil {
		t.Fatalf("err != nil: %s", err)
	}
	return b
}

func mustAtoi(t testing.T, s string) int {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		t.Fatalf("err != nil: %s", err)
	}
	return n
}
