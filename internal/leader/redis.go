package leader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// extendScript renews the lease only if this process still holds it.
// KEYS[1] = lease key, ARGV[1] = holder id, ARGV[2] = ttl in ms.
// Returns 1 if extended, 0 otherwise.
var extendScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the lease only if this process holds it.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisElector holds leadership as a Redis key with a TTL. The holder
// extends the lease on every check; when it stops checking, the key
// expires and another instance takes over.
type RedisElector struct {
	client *redis.Client
	key    string
	id     string
	ttl    time.Duration
	log    zerolog.Logger

	mu     sync.Mutex
	leader bool
}

// NewRedisElector creates an elector competing for key under identity id.
func NewRedisElector(client *redis.Client, key, id string, ttl time.Duration, log zerolog.Logger) *RedisElector {
	return &RedisElector{
		client: client,
		key:    key,
		id:     id,
		ttl:    ttl,
		log:    log.With().Str("component", "leader").Str("elector", "redis").Logger(),
	}
}

// ID returns this elector's identity.
func (e *RedisElector) ID() string {
	return e.id
}

// IsLeader acquires or extends the lease.
func (e *RedisElector) IsLeader(ctx context.Context) (bool, error) {
	extended, err := extendScript.Run(ctx, e.client, []string{e.key}, e.id, e.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("extend lease: %w", err)
	}
	if extended == 1 {
		e.transition(true)
		return true, nil
	}

	acquired, err := e.client.SetNX(ctx, e.key, e.id, e.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	e.transition(acquired)
	return acquired, nil
}

// Release gives up the lease if held.
func (e *RedisElector) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, e.client, []string{e.key}, e.id).Int(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	e.transition(false)
	return nil
}

func (e *RedisElector) transition(leader bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if leader == e.leader {
		return
	}
	e.leader = leader
	if leader {
		e.log.Info().Str("id", e.id).Msg("acquired leadership")
	} else {
		e.log.Info().Str("id", e.id).Msg("lost leadership")
	}
}
