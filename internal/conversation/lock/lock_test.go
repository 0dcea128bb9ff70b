package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"venue_booking_backend/platform/logger"
)

func newRedisLocker(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, ttl, logger.Discard()), mr
}

func assertExclusive(t *testing.T, l Locker) {
	t.Helper()
	id := uuid.New()

	release, err := l.Acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, id); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired while held, got %v", err)
	}

	other, err := l.Acquire(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("another booking must not wait: %v", err)
	}
	other()

	release()
	release()

	again, err := l.Acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again()
}

func TestLocal_Exclusive(t *testing.T) {
	assertExclusive(t, NewLocal())
}

func TestRedis_Exclusive(t *testing.T) {
	l, _ := newRedisLocker(t, time.Second)
	assertExclusive(t, l)
}

func TestRedis_WaiterAcquiresAfterRelease(t *testing.T) {
	l, _ := newRedisLocker(t, time.Second)
	id := uuid.New()

	release, err := l.Acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		r, err := l.Acquire(ctx, id)
		if err == nil {
			r()
		}
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	release()
	if err := <-done; err != nil {
		t.Fatalf("waiter should acquire after release: %v", err)
	}
}

func TestRedis_ReleaseKeepsForeignToken(t *testing.T) {
	l, mr := newRedisLocker(t, time.Second)
	id := uuid.New()
	key := keyPrefix + id.String()

	release, err := l.Acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// The lock expired and another turn took it over.
	mr.FastForward(2 * time.Second)
	if err := mr.Set(key, "someone-else"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	release()
	got, err := mr.Get(key)
	if err != nil || got != "someone-else" {
		t.Fatalf("release must not delete a foreign lock, got %q err %v", got, err)
	}
}
