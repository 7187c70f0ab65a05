package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

// ClaimLocker serializes limit-checked claims per agent so the count and the
// accept happen as one step.
type ClaimLocker interface {
	Lock(ctx context.Context, agentID string) (unlock func(), err error)
}

// LocalClaimLocker is a keyed in-process lock. It only serializes claims
// handled by this process.
type LocalClaimLocker struct {
	mu    sync.Mutex
	locks map[string]*agentLock
}

type agentLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalClaimLocker creates an empty keyed lock.
func NewLocalClaimLocker() *LocalClaimLocker {
	return &LocalClaimLocker{locks: make(map[string]*agentLock)}
}

func (l *LocalClaimLocker) Lock(ctx context.Context, agentID string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[agentID]
	if !ok {
		lk = &agentLock{ch: make(chan struct{}, 1)}
		l.locks[agentID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(agentID, lk, false)
		return nil, apperrors.NewBusy("Another claim for you is still in progress. Try again.", ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(agentID, lk, true) })
	}, nil
}

func (l *LocalClaimLocker) release(agentID string, lk *agentLock, held bool) {
	if held {
		<-lk.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, agentID)
	}
}

// RedisClaimLocker holds the per-agent lock in Redis so every bot replica
// shares it.
type RedisClaimLocker struct {
	locker *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

// NewRedisClaimLocker wraps client with redislock.
func NewRedisClaimLocker(client *redis.Client, ttl time.Duration) *RedisClaimLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisClaimLocker{
		locker: redislock.New(client),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 40),
	}
}

func (l *RedisClaimLocker) Lock(ctx context.Context, agentID string) (func(), error) {
	lock, err := l.locker.Obtain(ctx, "lock:claim:"+agentID, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, apperrors.NewBusy("Another claim for you is still in progress. Try again.", err)
	}
	if err != nil {
		return nil, err
	}
	return func() {
		// Release uses a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}, nil
}
