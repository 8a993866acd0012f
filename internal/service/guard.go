// guard.go serializes registrations per (identifier, work day) so the
// duplicate check and the append happen atomically.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Guard hands out exclusive claims on a registration key.
type Guard interface {
	// Acquire blocks until key is claimed or ctx ends. It returns
	// ErrDuplicate when the key is already taken for good.
	Acquire(ctx context.Context, key string) (Claim, error)
}

// Claim is an acquired key. Release must be called exactly once;
// committed reports whether the registration was stored.
type Claim interface {
	Release(ctx context.Context, committed bool)
}

// --- In-process guard ---

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// MemoryGuard is a keyed mutex. It closes the check-then-append race
// inside one process only.
type MemoryGuard struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

// NewMemoryGuard creates an empty keyed mutex.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{locks: make(map[string]*lockEntry)}
}

// Acquire implements Guard.
func (g *MemoryGuard) Acquire(ctx context.Context, key string) (Claim, error) {
	g.mu.Lock()
	e, ok := g.locks[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		g.locks[key] = e
	}
	e.refs++
	g.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return &memoryClaim{guard: g, key: key, entry: e}, nil
	case <-ctx.Done():
		g.unref(key, e)
		return nil, ctx.Err()
	}
}

func (g *MemoryGuard) unref(key string, e *lockEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(g.locks, key)
	}
}

// size returns the number of tracked keys.
func (g *MemoryGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}

type memoryClaim struct {
	guard *MemoryGuard
	key   string
	entry *lockEntry
	once  sync.Once
}

func (c *memoryClaim) Release(context.Context, bool) {
	c.once.Do(func() {
		<-c.entry.ch
		c.guard.unref(c.key, c.entry)
	})
}

// --- Redis guard ---

// claimKeyPrefix namespaces claim keys in a shared Redis.
const claimKeyPrefix = "checkin:claim:"

// releaseScript deletes a claim only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard claims keys with SET NX so that several instances behind a
// load balancer cannot register the same worker twice for one night.
// A successful registration keeps its claim until the TTL expires.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisGuard creates a guard on client. ttl must outlive a work day.
func NewRedisGuard(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisGuard {
	return &RedisGuard{
		client: client,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "redis_guard")),
	}
}

// Acquire implements Guard.
func (g *RedisGuard) Acquire(ctx context.Context, key string) (Claim, error) {
	token := uuid.NewString()
	redisKey := claimKeyPrefix + key

	err := g.client.SetArgs(ctx, redisKey, token, redis.SetArgs{Mode: "NX", TTL: g.ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: claim %s held", ErrDuplicate, key)
	}
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", key, err)
	}
	return &redisClaim{guard: g, key: redisKey, token: token}, nil
}

// CheckReady reports Redis reachability for the readiness probe.
func (g *RedisGuard) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := g.client.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis unavailable: %v", err)
	}
	return "ok", "connection active"
}

type redisClaim struct {
	guard *RedisGuard
	key   string
	token string
	once  sync.Once
}

func (c *redisClaim) Release(ctx context.Context, committed bool) {
	if committed {
		return
	}
	c.once.Do(func() {
		// The request context may already be done when the append failed.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, c.guard.client, []string{c.key}, c.token).Err(); err != nil {
			c.guard.logger.Warn("Failed to release claim",
				slog.String("key", c.key),
				slog.String("error", err.Error()),
			)
		}
	})
}
