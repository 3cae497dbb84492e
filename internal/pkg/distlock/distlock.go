// Package distlock provides a distributed lock so that exactly one worker
// process runs a scheduled job (mailbox sync sweep, monthly usage reset)
// at a time, even with multiple worker replicas.
package distlock

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is the interface for distributed locking. Implementations must be
// safe for use from a single goroutine; concurrent use across goroutines
// requires separate lock instances.
type Lock interface {
	// TryAcquire attempts to take the lock without blocking. Returns true
	// if this process now holds it.
	TryAcquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// New creates a distributed lock using the best available backend.
// If redisClient is non-nil, uses Redis (preferred for cross-host locking).
// Otherwise falls back to PostgreSQL advisory locks.
func New(redisClient *redis.Client, db *sql.DB, name string, ttl time.Duration) Lock {
	if redisClient != nil {
		return NewRedisLock(redisClient, name, ttl)
	}
	return NewAdvisoryLock(db, name)
}

// RedisLock locks via SET NX with a TTL. A random ownership token and a Lua
// release script prevent one process from releasing a lock held by another.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLock creates a Redis-backed lock under the emailmind:lock:
// namespace.
func NewRedisLock(client *redis.Client, name string, ttl time.Duration) *RedisLock {
	b := make([]byte, 16)
	rand.Read(b)
	return &RedisLock{
		client: client,
		key:    "emailmind:lock:" + name,
		token:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

// TryAcquire attempts SET NX. Returns true if the lock is now held.
func (l *RedisLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Release deletes the key only when we still own it.
func (l *RedisLock) Release(ctx context.Context) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	_, err := script.Run(ctx, l.client, []string{l.key}, l.token).Result()
	return err
}

// AdvisoryLock implements Lock using pg_try_advisory_lock. Advisory locks
// are session-scoped, so the acquiring connection is pinned for the lock's
// lifetime: releasing through a different pooled connection would be a
// no-op while the original session kept the lock. The session scope also
// means the lock is released automatically if the connection drops, giving
// crash-safety similar to a Redis TTL.
type AdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewAdvisoryLock derives a deterministic advisory lock ID from the name.
func NewAdvisoryLock(db *sql.DB, name string) *AdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte("emailmind:" + name))
	return &AdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// TryAcquire uses pg_try_advisory_lock, which returns immediately. On
// success the underlying connection is held until Release.
func (l *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, nil
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks on the session that acquired and returns the connection
// to the pool. No-op when the lock is not held.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	closeErr := l.conn.Close()
	l.conn = nil
	if err != nil {
		return err
	}
	return closeErr
}
