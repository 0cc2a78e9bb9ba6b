package throttle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalCounterConcurrentIncrements(t *testing.T) {
	c := NewLocalCounter()
	ctx := context.Background()

	const workers, per = 16, 250
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				if _, err := c.Increment(ctx); err != nil {
					t.Errorf("Increment: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	n, _ := c.Load(ctx)
	if n != workers*per {
		t.Fatalf("counter = %d, want %d", n, workers*per)
	}
}

func TestRedisCounter(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	a := NewRedisCounter(rdb, "")
	b := NewRedisCounter(rdb, "")
	ctx := context.Background()

	if n, err := a.Load(ctx); err != nil || n != 0 {
		t.Fatalf("initial Load = %d, %v", n, err)
	}
	for i := 0; i < 3; i++ {
		if _, err := a.Increment(ctx); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	n, err := b.Increment(ctx)
	if err != nil || n != 4 {
		t.Fatalf("shared Increment = %d, %v; want 4", n, err)
	}
	if ttl := mr.TTL("tg:throttle:failed"); ttl != 0 {
		t.Fatalf("counter key must not expire, ttl=%v", ttl)
	}
}

func TestRedisCounterUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	c := NewRedisCounter(rdb, "k")
	if _, err := c.Increment(context.Background()); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("Increment err = %v, want ErrBackendUnavailable", err)
	}
	if _, err := c.Load(context.Background()); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("Load err = %v, want ErrBackendUnavailable", err)
	}
}
