package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestAllowWithinBudget(t *testing.T) {
	t.Parallel()
	_, rdb := newTestRedis(t)
	l := New(rdb, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "user:1")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !ok {
			t.Errorf("Allow() call %d = false, want true", i+1)
		}
	}
}

func TestAllowExceedsBudget(t *testing.T) {
	t.Parallel()
	_, rdb := newTestRedis(t)
	l := New(rdb, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, err := l.Allow(ctx, "user:2"); err != nil || !ok {
			t.Fatalf("Allow() call %d = (%v, %v), want (true, nil)", i+1, ok, err)
		}
	}

	ok, err := l.Allow(ctx, "user:2")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if ok {
		t.Error("Allow() call 3 = true, want false once over budget")
	}
}

func TestAllowResetsAfterWindow(t *testing.T) {
	t.Parallel()
	mr, rdb := newTestRedis(t)
	l := New(rdb, 1, time.Second)
	ctx := context.Background()

	if ok, err := l.Allow(ctx, "user:3"); err != nil || !ok {
		t.Fatalf("Allow() first call = (%v, %v), want (true, nil)", ok, err)
	}
	if ok, _ := l.Allow(ctx, "user:3"); ok {
		t.Error("Allow() second call = true, want false within window")
	}

	mr.FastForward(2 * time.Second)

	if ok, err := l.Allow(ctx, "user:3"); err != nil || !ok {
		t.Fatalf("Allow() after window = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestAllowIsPerKey(t *testing.T) {
	t.Parallel()
	_, rdb := newTestRedis(t)
	l := New(rdb, 1, time.Minute)
	ctx := context.Background()

	if ok, _ := l.Allow(ctx, "a"); !ok {
		t.Error("Allow(a) = false, want true")
	}
	if ok, _ := l.Allow(ctx, "b"); !ok {
		t.Error("Allow(b) = false, want true (independent key)")
	}
}
