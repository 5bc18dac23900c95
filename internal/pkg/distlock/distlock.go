// Package distlock guards scheduling passes against overlapping runs.
// The platform gives no overlap protection, so every pass takes a
// cross-host lock first: Redis when available, PostgreSQL advisory locks
// otherwise. Losing the lock mid-pass is tolerated; the attempt-level
// uniqueness constraint remains the authoritative duplicate guard.
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

// Lock is the contract for a single-owner distributed lock.
type Lock interface {
	// TryAcquire attempts to take the lock without blocking.
	TryAcquire(ctx context.Context) (bool, error)
	// Release gives the lock back if this instance still owns it.
	Release(ctx context.Context) error
}

// New picks the best available backend: Redis when a client is provided,
// otherwise PostgreSQL advisory locks on the given connection.
func New(redisClient *redis.Client, db *sql.DB, name string, ttl time.Duration) Lock {
	if redisClient != nil {
		return NewRedisLock(redisClient, name, ttl)
	}
	return NewAdvisoryLock(db, name)
}

// RedisLock implements Lock with SET NX plus a TTL. A random owner token
// and a Lua release script prevent one process from releasing a lock a
// later process has since acquired.
type RedisLock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

// NewRedisLock creates a Redis-backed lock. The TTL must exceed the longest
// expected scheduling pass so the lock outlives its holder's work.
func NewRedisLock(client *redis.Client, name string, ttl time.Duration) *RedisLock {
	token := make([]byte, 16)
	rand.Read(token)
	return &RedisLock{
		client: client,
		key:    "followup:lock:" + name,
		owner:  hex.EncodeToString(token),
		ttl:    ttl,
	}
}

// TryAcquire attempts to take the lock without blocking.
func (l *RedisLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// Release deletes the lock key only while this instance still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Result()
	return err
}

// AdvisoryLock implements Lock with pg_try_advisory_lock. Advisory locks
// are session-scoped, so the lock pins a single pooled connection from
// acquire to release; going through *sql.DB would acquire on one
// connection and unlock on another, leaving the lock held by a connection
// sitting idle in the pool. A dropped connection releases the lock, which
// stands in for the Redis TTL.
type AdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewAdvisoryLock derives a deterministic advisory lock id from the name.
func NewAdvisoryLock(db *sql.DB, name string) *AdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte("followup:" + name))
	return &AdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// TryAcquire attempts to take the advisory lock without blocking. On
// success the underlying connection stays checked out until Release.
func (l *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock conn: %w", err)
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

// Release unlocks on the same session that acquired and returns the
// connection to the pool.
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
