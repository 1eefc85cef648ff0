// Package offsets implements the HWM/offset service (C6): monotonic
// offset assignment and HWM advancement in the coordinator, per
// spec.md §4.6.
package offsets

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/coordinator"
)

// Service wraps the coordinator's offset/HWM keys with typed int64
// accessors.
type Service struct {
	coord coordinator.Client
}

// New builds an offset/HWM service over the given coordinator client.
func New(coord coordinator.Client) *Service {
	return &Service{coord: coord}
}

func offsetKey(topic string) string { return "yak:offset:" + topic }
func hwmKey(topic string) string    { return "yak:hwm:" + topic }
func followerHWMKey(broker int32, topic string) string {
	return "yak:follower_hwm:" + strconv.FormatInt(int64(broker), 10) + ":" + topic
}

// NextOffset atomically assigns the next offset for topic. The first call
// on a fresh counter returns 1, per spec.md §3.
func (s *Service) NextOffset(ctx context.Context, topic string) (int64, error) {
	return s.coord.Incr(ctx, offsetKey(topic))
}

// AdvanceHWM unconditionally sets topic's HWM. Callers (the leader) must
// call this only with monotonically increasing offsets, in order.
func (s *Service) AdvanceHWM(ctx context.Context, topic string, offset int64) error {
	return s.coord.Set(ctx, hwmKey(topic), []byte(strconv.FormatInt(offset, 10)))
}

// HWM returns topic's current high-water mark, or 0 if unset.
func (s *Service) HWM(ctx context.Context, topic string) (int64, error) {
	raw, ok, err := s.coord.Get(ctx, hwmKey(topic))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "offsets: parse hwm")
	}
	return n, nil
}

// FollowerHWM returns the highest offset broker has persisted for topic,
// or 0 if it has never checkpointed.
func (s *Service) FollowerHWM(ctx context.Context, broker int32, topic string) (int64, error) {
	raw, ok, err := s.coord.Get(ctx, followerHWMKey(broker, topic))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "offsets: parse follower hwm")
	}
	return n, nil
}

// SetFollowerHWM checkpoints broker's progress on topic.
func (s *Service) SetFollowerHWM(ctx context.Context, broker int32, topic string, offset int64) error {
	return s.coord.Set(ctx, followerHWMKey(broker, topic), []byte(strconv.FormatInt(offset, 10)))
}

// InitTopic seeds a freshly created topic's offset and HWM counters at 0,
// per spec.md §4.8.
func (s *Service) InitTopic(ctx context.Context, topic string) error {
	if err := s.coord.Set(ctx, hwmKey(topic), []byte("0")); err != nil {
		return err
	}
	return s.coord.Set(ctx, offsetKey(topic), []byte("0"))
}
