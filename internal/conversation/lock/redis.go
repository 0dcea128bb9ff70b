package lock

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"venue_booking_backend/platform/config"
	"venue_booking_backend/platform/logger"
)

const (
	defaultTTL   = 30 * time.Second
	retryInitial = 20 * time.Millisecond
	retryMax     = 250 * time.Millisecond
	keyPrefix    = "booking:lock:"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another turn is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every API instance pointing at the same Redis.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisClient builds a go-redis client from the configured URL.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	url := cfg.GetRedisURL()
	if url == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.GetRedisTLSInsecure() {
		if opts.TLSConfig == nil {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		opts.TLSConfig.InsecureSkipVerify = true
	}
	return redis.NewClient(opts), nil
}

// NewRedis returns a Locker over client. A zero ttl uses 30s; the ttl bounds
// how long a crashed turn can keep a booking locked.
func NewRedis(client *redis.Client, ttl time.Duration, log *logger.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{client: client, ttl: ttl, log: log}
}

// Acquire polls SET NX with backoff until it wins or ctx is done.
func (r *Redis) Acquire(ctx context.Context, bookingID uuid.UUID) (Release, error) {
	key := keyPrefix + bookingID.String()
	token := uuid.NewString()
	wait := retryInitial

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrNotAcquired, ctx.Err())
			}
			return nil, fmt.Errorf("acquire booking lock: %w", err)
		}
		if ok {
			return r.release(key, token), nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-timer.C:
		}
		wait *= 2
		if wait > retryMax {
			wait = retryMax
		}
	}
}

func (r *Redis) release(key, token string) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
				r.log.Error("failed to release booking lock", "key", key, "error", err)
			}
		})
	}
}
