package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/giftgrove/pkg/gifting"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const releaseTimeout = 2 * time.Second

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements gifting.Locker with SET NX PX so that several processes share one lock.
type RedisLocker struct {
	client redis.UniversalClient
}

// NewRedisLocker returns a Locker backed by client.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

func (locker *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	acquired, err := locker.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !acquired {
		return nil, gifting.ErrAutoProcessBusy
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			releaseContext, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()
			_ = releaseScript.Run(releaseContext, locker.client, []string{key}, token).Err()
		})
	}
	return release, nil
}

// LocalLocker implements gifting.Locker inside one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocalLocker returns an in-process Locker. Held keys expire after their ttl.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

func (locker *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	locker.mu.Lock()
	defer locker.mu.Unlock()
	now := locker.now()
	if expiresAt, ok := locker.held[key]; ok && now.Before(expiresAt) {
		return nil, gifting.ErrAutoProcessBusy
	}
	expiresAt := now.Add(ttl)
	locker.held[key] = expiresAt
	var once sync.Once
	return func() {
		once.Do(func() {
			locker.mu.Lock()
			defer locker.mu.Unlock()
			if locker.held[key].Equal(expiresAt) {
				delete(locker.held, key)
			}
		})
	}, nil
}

const cardStatusKeyPrefix = "cards:job:"

// RedisCardStatus implements gifting.CardStatusSource by reading the status the rendering workers
// write under cards:job:<id>. A missing key means the job is still pending.
type RedisCardStatus struct {
	client redis.UniversalClient
}

// NewRedisCardStatus returns a CardStatusSource backed by client.
func NewRedisCardStatus(client redis.UniversalClient) *RedisCardStatus {
	return &RedisCardStatus{client: client}
}

func (source *RedisCardStatus) GetCardStatus(ctx context.Context, jobID string) (gifting.CardJobStatus, error) {
	raw, err := source.client.Get(ctx, cardStatusKeyPrefix+jobID).Result()
	if errors.Is(err, redis.Nil) {
		return gifting.CardJobPending, nil
	}
	if err != nil {
		return "", fmt.Errorf("card status %s: %w", jobID, err)
	}
	return gifting.ParseCardJobStatus(raw)
}
