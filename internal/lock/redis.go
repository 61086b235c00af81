package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultTTL   = 60 * time.Second
	pollInterval = 50 * time.Millisecond
	keyPrefix    = "interview:lock:"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClient is the subset of *redis.Client the lock needs.
type RedisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// Redis is a Locker shared across processes. Each lock expires after ttl so a
// crashed holder cannot wedge a session.
type Redis struct {
	client RedisClient
	ttl    time.Duration
	poll   time.Duration
}

// NewRedis creates a Redis-backed Locker.
func NewRedis(client RedisClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{client: client, ttl: ttl, poll: pollInterval}
}

// NewRedisFromURL parses a redis:// URL and returns a Locker plus the client
// closer.
func NewRedisFromURL(url string, ttl time.Duration) (*Redis, func() error, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, eris.Wrap(err, "lock: parse redis url")
	}
	client := redis.NewClient(opts)
	return NewRedis(client, ttl), client.Close, nil
}

func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	rkey := keyPrefix + key
	token := uuid.New().String()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, rkey, token, r.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, eris.Wrapf(err, "lock: setnx %s", key)
		}
		if ok {
			return r.release(rkey, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ErrNotAcquired, "lock: %s: %v", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *Redis) release(rkey, token string) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{rkey}, token).Err(); err != nil {
				zap.L().Warn("lock: release failed", zap.String("key", rkey), zap.Error(err))
			}
		})
	}
}
