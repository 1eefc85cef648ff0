// Package coordinator wraps the external Redis-like key/value coordinator
// in the typed atomic operations the rest of the broker needs: lease
// set-NX-EX, renew-EX, INCR, hash maps, key enumeration. Grounded on the
// go-redis/v9 lease/fencing pattern used in the retrieved
// redis-backed-leader-election reference (SetNX + Incr + Expire), adapted
// to the operation set spec.md §4.2 names.
package coordinator

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned (wrapped) for any coordinator RPC that fails
// because Redis is unreachable or erroring, so callers can treat it
// uniformly as spec.md's CoordinatorUnavailable.
var ErrUnavailable = errors.New("coordinator unavailable")

// Client is the typed wrapper over the coordinator's atomic primitives.
// An interface so broker-level tests can swap in an in-memory fake (see
// coordinatortest).
type Client interface {
	SetIfAbsentWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Incr(ctx context.Context, key string) (int64, error)
	HSetMany(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// RedisClient is the production Client backed by a real Redis server.
type RedisClient struct {
	rdb *redis.Client
}

// New dials a Redis server at host:port.
func New(host string, port int) *RedisClient {
	rdb := redis.NewClient(&redis.Options{
		Addr:         host + ":" + strconv.Itoa(port),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	return &RedisClient{rdb: rdb}
}

func (c *RedisClient) SetIfAbsentWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, wrapUnavailable(err)
	}
	return ok, nil
}

func (c *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapUnavailable(err)
	}
	return val, true, nil
}

func (c *RedisClient) Set(ctx context.Context, key string, value []byte) error {
	if err := c.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func (c *RedisClient) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, wrapUnavailable(err)
	}
	return n, nil
}

func (c *RedisClient) HSetMany(ctx context.Context, key string, fields map[string]string) error {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if len(args) == 0 {
		return nil
	}
	if err := c.rdb.HSet(ctx, key, args...).Err(); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func (c *RedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	return m, nil
}

// Keys enumerates every key with the given prefix using SCAN cursoring
// rather than the blocking KEYS command spec.md names — same observable
// result, without stalling Redis under a large keyspace.
func (c *RedisClient) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, wrapUnavailable(err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// Close releases the underlying Redis connection pool.
func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

func wrapUnavailable(err error) error {
	return errors.Wrap(ErrUnavailable, err.Error())
}
