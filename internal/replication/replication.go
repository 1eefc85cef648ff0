// Package replication implements the replication engine (C5): leader-side
// best-effort fanout of newly committed messages, and follower-side
// catch-up scans. Grounded on jocko.Broker's becomeLeader/becomeFollower
// transitions and the Replicator type they drive (NewReplicator,
// r.Replicate(), replica.Replicator.Close()), simplified for YAK's single
// best-effort-async partition instead of ISR-tracked sync replication.
package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/commitlog"
	ilog "github.com/Siya-Moghe/yak-yet-another-kafka/internal/log"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/metadata"
)

// Engine fans replicated messages out to peers and pulls catch-up scans
// from the leader.
type Engine struct {
	logger           ilog.Logger
	httpClient       *http.Client
	replicateTimeout time.Duration
	catchupTimeout   time.Duration
}

// New builds a replication engine with the given per-call timeouts.
func New(logger ilog.Logger, replicateTimeout, catchupTimeout time.Duration) *Engine {
	return &Engine{
		logger:           logger,
		httpClient:       &http.Client{},
		replicateTimeout: replicateTimeout,
		catchupTimeout:   catchupTimeout,
	}
}

type replicateRequest struct {
	Topic   string          `json:"topic"`
	Message json.RawMessage `json:"message"`
}

// Fanout POSTs the message to every peer's /internal/replicate and
// returns once every attempt has finished or timed out. Failures are
// logged, not returned: a follower error never fails the produce ack,
// per spec.md §4.5.
func (e *Engine) Fanout(ctx context.Context, peers []metadata.BrokerInfo, topic string, record commitlog.Record) {
	if len(peers) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, peer := range peers {
		peer := peer
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, e.replicateTimeout)
			defer cancel()
			if err := e.replicateTo(callCtx, peer, topic, record); err != nil {
				e.logger.Warn("replicate to peer failed",
					ilog.Int32("peer_broker_id", peer.BrokerID),
					ilog.String("topic", topic),
					ilog.Error("error", err))
			}
			return nil
		})
	}
	// Errors are swallowed inside each goroutine so g.Wait() never fails
	// the produce path on a peer outage; it only blocks until every
	// attempt has been made.
	_ = g.Wait()
}

func (e *Engine) replicateTo(ctx context.Context, peer metadata.BrokerInfo, topic string, record commitlog.Record) error {
	body, err := json.Marshal(replicateRequest{Topic: topic, Message: record.Payload})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s:%d/internal/replicate", peer.Host, peer.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("replicate: peer returned status %d", resp.StatusCode)
	}
	return nil
}

type topicsResponse struct {
	Topics []string `json:"topics"`
}

// DiscoverTopics fetches the leader's known topic set.
func (e *Engine) DiscoverTopics(ctx context.Context, leader metadata.BrokerInfo, timeout time.Duration) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	url := fmt.Sprintf("http://%s:%d/metadata/topics", leader.Host, leader.Port)
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out topicsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Topics, nil
}

type catchupRequest struct {
	Topic      string `json:"topic"`
	FromOffset int64  `json:"from_offset"`
}

type catchupResponse struct {
	Status   string            `json:"status"`
	Topic    string            `json:"topic"`
	Messages []json.RawMessage `json:"messages"`
}

// CatchUpTopic pulls every message the leader has for topic past
// fromOffset, in offset order.
func (e *Engine) CatchUpTopic(ctx context.Context, leader metadata.BrokerInfo, topic string, fromOffset int64) ([]commitlog.Record, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.catchupTimeout)
	defer cancel()
	body, err := json.Marshal(catchupRequest{Topic: topic, FromOffset: fromOffset})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("http://%s:%d/internal/catchup", leader.Host, leader.Port)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("catchup: leader returned status %d", resp.StatusCode)
	}
	var out catchupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	records := make([]commitlog.Record, 0, len(out.Messages))
	for _, msg := range out.Messages {
		var env struct {
			Offset int64 `json:"offset"`
		}
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}
		records = append(records, commitlog.Record{Offset: env.Offset, Payload: msg})
	}
	return records, nil
}
