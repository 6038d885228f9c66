package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gilby125/flight-offers-harvester/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// ErrTargetLocked is returned when another process already writes to the
// storage target.
var ErrTargetLocked = errors.New("storage target is locked by another writer")

// WriterLock holds a Redis lease on one storage target so that at most one
// harvester process appends to it. The lease is renewed in the background
// until Release; onLost runs if a renewal fails.
type WriterLock struct {
	client     *redis.Client
	key        string
	ttl        time.Duration
	renewEvery time.Duration
	owner      string
	held       atomic.Bool
	stop       chan struct{}
	wg         sync.WaitGroup
	onLost     func()
	log        *logger.Logger
}

// NewWriterLock creates a lock for target (a CSV path or table name).
func NewWriterLock(client *redis.Client, prefix, target string, ttl, renewEvery time.Duration, onLost func()) *WriterLock {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "harvester"
	}
	if renewEvery <= 0 || renewEvery >= ttl {
		renewEvery = ttl / 3
	}
	key := "writer:" + target
	if prefix != "" {
		key = prefix + ":" + key
	}
	owner := fmt.Sprintf("%s-%d-%d", hostname, os.Getpid(), time.Now().UnixNano())

	return &WriterLock{
		client:     client,
		key:        key,
		ttl:        ttl,
		renewEvery: renewEvery,
		owner:      owner,
		onLost:     onLost,
		log:        logger.WithFields(map[string]interface{}{"lock_key": key, "owner": owner}),
	}
}

// Key returns the Redis key guarding the target.
func (l *WriterLock) Key() string { return l.key }

// Owner returns this process's lease token.
func (l *WriterLock) Owner() string { return l.owner }

// Held reports whether the lease is currently held.
func (l *WriterLock) Held() bool { return l.held.Load() }

// Acquire takes the lease or fails with ErrTargetLocked.
func (l *WriterLock) Acquire(ctx context.Context) error {
	if l.held.Load() {
		return nil
	}
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire writer lock: %w", err)
	}
	if !ok {
		holder, _ := l.client.Get(ctx, l.key).Result()
		return fmt.Errorf("%w (held by %s)", ErrTargetLocked, holder)
	}

	l.held.Store(true)
	l.stop = make(chan struct{})
	l.wg.Add(1)
	go l.renewLoop()
	l.log.Info("Writer lock acquired", "ttl", l.ttl)
	return nil
}

// Release stops renewal and deletes the lease if this process still owns it.
func (l *WriterLock) Release(ctx context.Context) error {
	if !l.held.Load() {
		return nil
	}
	close(l.stop)
	l.wg.Wait()
	l.held.Store(false)

	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Int()
	if err != nil {
		return fmt.Errorf("failed to release writer lock: %w", err)
	}
	if n == 0 {
		l.log.Warn("Writer lock already expired or taken over")
	} else {
		l.log.Info("Writer lock released")
	}
	return nil
}

func (l *WriterLock) renewLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.renewEvery)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			if l.renew() {
				continue
			}
			l.held.Store(false)
			l.log.Error(nil, "Lost writer lock")
			if l.onLost != nil {
				l.onLost()
			}
			return
		}
	}
}

func (l *WriterLock) renew() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		l.log.Error(err, "Failed to renew writer lock")
		return false
	}
	return n == 1
}

// Extends the lease only while the caller still owns it.
var renewScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)
