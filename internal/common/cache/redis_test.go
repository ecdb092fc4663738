package cache

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache failed: %v", err)
	}
	return c, mr
}

func TestRedisCacheGetMissingReturnsEmpty(t *testing.T) {
	c, _ := newTestCache(t)
	val, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "" {
		t.Fatalf("expected empty value, got %q", val)
	}
}

func TestRedisCacheSetWithTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got := mr.TTL("k"); got != time.Minute {
		t.Fatalf("expected ttl 1m, got %v", got)
	}
	mr.FastForward(2 * time.Minute)
	val, _ := c.Get(ctx, "k")
	if val != "" {
		t.Fatalf("expected key to expire, got %q", val)
	}
}

func TestRedisCacheLockIsOwnerChecked(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	ok, err := c.TryLock(ctx, "lock:sub-1", "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock should succeed: ok=%v err=%v", ok, err)
	}
	ok, err = c.TryLock(ctx, "lock:sub-1", "owner-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("second lock should fail: ok=%v err=%v", ok, err)
	}

	if err := c.Unlock(ctx, "lock:sub-1", "owner-b"); err != nil {
		t.Fatalf("foreign unlock failed: %v", err)
	}
	if !mr.Exists("lock:sub-1") {
		t.Fatalf("foreign unlock must not release the lock")
	}
	if err := c.Unlock(ctx, "lock:sub-1", "owner-a"); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if mr.Exists("lock:sub-1") {
		t.Fatalf("expected lock released")
	}
}

func TestGetWithCachedCachesValuesAndMisses(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	calls := 0
	load := func(value int) func(context.Context) (int, error) {
		return func(context.Context) (int, error) {
			calls++
			return value, nil
		}
	}
	isEmpty := func(v int) bool { return v == 0 }
	marshal := func(v int) (string, error) { return strconv.Itoa(v), nil }
	unmarshal := func(s string) (int, error) { return strconv.Atoi(s) }

	for i := 0; i < 2; i++ {
		got, err := GetWithCached(ctx, c, "num", time.Minute, time.Second, isEmpty, marshal, unmarshal, load(42))
		if err != nil || got != 42 {
			t.Fatalf("unexpected result: %d %v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one load, got %d", calls)
	}

	if _, err := GetWithCached(ctx, c, "empty", time.Minute, time.Second, isEmpty, marshal, unmarshal, load(0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := mr.Get("empty"); v != NullCacheValue {
		t.Fatalf("expected null marker, got %q", v)
	}

	wantErr := errors.New("db down")
	_, err := GetWithCached(ctx, c, "broken", time.Minute, time.Second, isEmpty, marshal, unmarshal,
		func(context.Context) (int, error) { return 0, wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected loader error, got %v", err)
	}
}

func TestJitterTTLStaysWithinTenPercent(t *testing.T) {
	ttl := 10 * time.Second
	for i := 0; i < 50; i++ {
		got := JitterTTL(ttl)
		if got > ttl || got < 9*time.Second {
			t.Fatalf("jittered ttl out of range: %v", got)
		}
	}
	if JitterTTL(0) != 0 {
		t.Fatalf("zero ttl must stay zero")
	}
}
