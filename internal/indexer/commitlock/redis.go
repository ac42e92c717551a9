package commitlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/Adithya-Monish-Kumar-K/segindex/pkg/errors"
)

const redisPollInterval = 20 * time.Millisecond

// LeaseClient is the subset of pkg/redis.Client the lock needs.
type LeaseClient interface {
	AcquireLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key, token string) (bool, error)
}

// RedisLock is a commit lock shared by processes on different hosts that
// index into the same shared directory. The lease carries a TTL; a holder
// must finish its commit within it.
type RedisLock struct {
	mu      sync.Mutex
	client  LeaseClient
	key     string
	ttl     time.Duration
	timeout time.Duration
	token   string
}

func NewRedisLock(client LeaseClient, key string, ttl, timeout time.Duration) *RedisLock {
	return &RedisLock{
		client:  client,
		key:     key,
		ttl:     ttl,
		timeout: timeout,
	}
}

func (l *RedisLock) Lock() error {
	l.mu.Lock()
	token, err := newLeaseToken()
	if err != nil {
		l.mu.Unlock()
		return err
	}
	ctx := context.Background()
	var cancel context.CancelFunc
	if l.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	for {
		ok, err := l.client.AcquireLease(ctx, l.key, token, l.ttl)
		if err != nil {
			l.mu.Unlock()
			if ctx.Err() != nil {
				return pkgerrors.New(pkgerrors.ErrLockTimeout, "locking", l.key)
			}
			return err
		}
		if ok {
			l.token = token
			return nil
		}
		select {
		case <-ctx.Done():
			l.mu.Unlock()
			return pkgerrors.New(pkgerrors.ErrLockTimeout, "locking", l.key)
		case <-time.After(redisPollInterval):
		}
	}
}

func (l *RedisLock) Unlock() error {
	defer l.mu.Unlock()
	token := l.token
	l.token = ""
	ok, err := l.client.ReleaseLease(context.Background(), l.key, token)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("commit lease %s expired before release", l.key)
	}
	return nil
}

func newLeaseToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating lease token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
