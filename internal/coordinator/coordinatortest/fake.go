// Package coordinatortest provides an in-memory coordinator.Client so
// lease/role/replication tests exercise real production code paths
// without a live Redis server.
package coordinatortest

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/coordinator"
)

type entry struct {
	value    []byte
	hash     map[string]string
	expireAt time.Time // zero means no TTL
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// Fake is a single-process stand-in for the Redis coordinator.
type Fake struct {
	mu   sync.Mutex
	data map[string]*entry
	// now, if set, is used instead of time.Now — lets tests simulate TTL
	// expiry deterministically.
	now func() time.Time
}

var _ coordinator.Client = (*Fake)(nil)

// New returns an empty fake coordinator.
func New() *Fake {
	return &Fake{data: map[string]*entry{}, now: time.Now}
}

// SetClock overrides the fake's notion of "now", for TTL expiry tests.
func (f *Fake) SetClock(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

func (f *Fake) getLocked(key string) (*entry, bool) {
	e, ok := f.data[key]
	if !ok {
		return nil, false
	}
	if e.expired(f.now()) {
		delete(f.data, key)
		return nil, false
	}
	return e, true
}

func (f *Fake) SetIfAbsentWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.getLocked(key); ok {
		return false, nil
	}
	f.data[key] = &entry{value: append([]byte(nil), value...), expireAt: f.now().Add(ttl)}
	return true, nil
}

func (f *Fake) Expire(_ context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.getLocked(key)
	if !ok {
		return nil
	}
	e.expireAt = f.now().Add(ttl)
	return nil
}

func (f *Fake) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.getLocked(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (f *Fake) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.data[key]
	if !ok {
		e = &entry{}
		f.data[key] = e
	}
	e.value = append([]byte(nil), value...)
	return nil
}

func (f *Fake) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.getLocked(key)
	var n int64
	if ok && len(e.value) > 0 {
		n, _ = strconv.ParseInt(string(e.value), 10, 64)
	}
	n++
	if !ok {
		e = &entry{}
		f.data[key] = e
	}
	e.value = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

func (f *Fake) HSetMany(_ context.Context, key string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.data[key]
	if !ok {
		e = &entry{hash: map[string]string{}}
		f.data[key] = e
	}
	if e.hash == nil {
		e.hash = map[string]string{}
	}
	for k, v := range fields {
		e.hash[k] = v
	}
	return nil
}

func (f *Fake) HGetAll(_ context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.getLocked(key)
	if !ok || e.hash == nil {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(e.hash))
	for k, v := range e.hash {
		out[k] = v
	}
	return out, nil
}

func (f *Fake) Keys(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	var keys []string
	for k, e := range f.data {
		if e.expired(now) {
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
