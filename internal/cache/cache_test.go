package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = cache.Set(ctx, "key1", []byte("value1b"), time.Minute)
		val, _ := cache.Get(ctx, "key1")
		if string(val) != "value1b" {
			t.Errorf("expected overwritten value, got '%s'", string(val))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, "expiring", []byte("temp"), 10*time.Millisecond)

		// Should be available immediately
		val, _ := cache.Get(ctx, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestLRUEviction(t *testing.T) {
	cache := NewLRUCache(3)
	ctx := context.Background()

	_ = cache.Set(ctx, "a", []byte("1"), time.Minute)
	_ = cache.Set(ctx, "b", []byte("2"), time.Minute)
	_ = cache.Set(ctx, "c", []byte("3"), time.Minute)

	// Touch "a" so "b" becomes least recently used
	_, _ = cache.Get(ctx, "a")

	_ = cache.Set(ctx, "d", []byte("4"), time.Minute)

	if val, _ := cache.Get(ctx, "b"); val != nil {
		t.Error("expected 'b' to be evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if val, _ := cache.Get(ctx, k); val == nil {
			t.Errorf("expected '%s' to remain", k)
		}
	}
}

func TestLRUEvictsExpiredFirst(t *testing.T) {
	cache := NewLRUCache(2)
	ctx := context.Background()

	_ = cache.Set(ctx, "live", []byte("1"), time.Minute)
	_ = cache.Set(ctx, "stale", []byte("2"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	// "live" is least recently used but "stale" has expired.
	_ = cache.Set(ctx, "new", []byte("3"), time.Minute)

	for _, k := range []string{"live", "new"} {
		if val, _ := cache.Get(ctx, k); val == nil {
			t.Errorf("expected %q to remain", k)
		}
	}
}

func TestLRUCopiesValues(t *testing.T) {
	cache := NewLRUCache(10)
	ctx := context.Background()

	value := []byte("abc")
	_ = cache.Set(ctx, "k", value, time.Minute)
	value[0] = 'z'

	if got, _ := cache.Get(ctx, "k"); string(got) != "abc" {
		t.Errorf("cache must not alias caller's slice, got %s", got)
	}
}

func TestTwoPhaseDegradesWithoutRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := newTwoPhase(NewLRUCache(10), NewRedisCacheFromClient(client), time.Minute)
	defer c.Close()
	ctx := context.Background()

	val, err := c.Get(ctx, "view:g1.r0:headline")
	if err != nil || val != nil {
		t.Fatalf("expected a clean miss, got %q, %v", val, err)
	}

	if err := c.Set(ctx, "view:g1.r0:headline", []byte("{}"), time.Hour); err == nil {
		t.Error("expected l2 write error")
	}
	// L1 still serves the value on this node.
	if val, _ := c.Get(ctx, "view:g1.r0:headline"); string(val) != "{}" {
		t.Errorf("expected l1 hit, got %q", val)
	}
	if err := c.Ping(ctx); err == nil {
		t.Error("expected ping to report l2 failure")
	}
}

func TestLRUStats(t *testing.T) {
	cache := NewLRUCache(10)
	ctx := context.Background()

	_ = cache.Set(ctx, "a", []byte("1"), time.Minute)
	_, _ = cache.Get(ctx, "a")
	_, _ = cache.Get(ctx, "missing")

	want := Stats{Size: 1, Capacity: 10, Hits: 1, Misses: 1}
	if diff := cmp.Diff(want, cache.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	_ = cache.Close()
	if got := cache.Stats().Size; got != 0 {
		t.Errorf("expected empty cache after Close, got %d", got)
	}
}

func TestLRUDefaultSize(t *testing.T) {
	if got := NewLRUCache(0).Stats().Capacity; got != 10000 {
		t.Errorf("expected default capacity 10000, got %d", got)
	}
}

type viewPayload struct {
	Generation uint64   `json:"generation"`
	IDs        []string `json:"ids"`
}

func TestJSONHelpers(t *testing.T) {
	cache := NewLRUCache(10)
	ctx := context.Background()
	key := Key("view", "g1.r0", "clusters")

	if key != "view:g1.r0:clusters" {
		t.Fatalf("unexpected key: %s", key)
	}

	_, ok, err := GetJSON[viewPayload](ctx, cache, key)
	if err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	want := viewPayload{Generation: 1, IDs: []string{"NIC-2025-1000", "NIC-2025-1001"}}
	if err := SetJSON(ctx, cache, key, want, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	got, ok, err := GetJSON[viewPayload](ctx, cache, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	_ = cache.Set(ctx, "corrupt", []byte("{not json"), time.Minute)
	if _, _, err := GetJSON[viewPayload](ctx, cache, "corrupt"); err == nil {
		t.Error("expected decode error for corrupt entry")
	}
}

func TestNewCache(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		cfg := domain.CacheConfig{Type: "memory", LocalMaxSize: 50}
		c, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()

		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("expected *LRUCache, got %T", c)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, err := New(domain.CacheConfig{Type: "memcached"})
		if err == nil {
			t.Error("expected error for unsupported cache type")
		}
	})

	t.Run("RedisUnreachable", func(t *testing.T) {
		_, err := New(domain.CacheConfig{Type: "redis", RedisAddr: "127.0.0.1:1"})
		if err == nil {
			t.Error("expected error for unreachable redis")
		}
	})
}
