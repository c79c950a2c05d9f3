package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type point struct {
	Tick  int64   `json:"tick"`
	Value float64 `json:"value"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	if err := mc.Set(ctx, "p", point{Tick: 3, Value: 1.5}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got point
	if err := mc.Get(ctx, "p", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Tick != 3 || got.Value != 1.5 {
		t.Fatalf("unexpected value %+v", got)
	}

	_ = mc.Set(ctx, "s", "plain", 0)
	var s string
	if err := mc.Get(ctx, "s", &s); err != nil || s != "plain" {
		t.Fatalf("string round trip: %q %v", s, err)
	}
}

func TestMemoryCacheMissAndExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	var v point
	if err := mc.Get(ctx, "missing", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
	_ = mc.Set(ctx, "short", point{}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if err := mc.Get(ctx, "short", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired key to miss, got %v", err)
	}
	if ok, _ := mc.Exists(ctx, "short"); ok {
		t.Fatalf("expired key should not exist")
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	_ = mc.Set(ctx, "a", 1, 0)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "b", 2, 0)
	time.Sleep(time.Millisecond)
	var n int
	_ = mc.Get(ctx, "a", &n) // a is now more recent than b
	_ = mc.Set(ctx, "c", 3, 0)

	if mc.Len() != 2 {
		t.Fatalf("expected 2 keys, got %d", mc.Len())
	}
	if ok, _ := mc.Exists(ctx, "b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if ok, _ := mc.Exists(ctx, "a", "c"); !ok {
		t.Fatalf("a and c should remain")
	}
}

func TestMemoryCacheCopiesBytes(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	buf := []byte(`{"tick":1}`)
	_ = mc.Set(ctx, "k", buf, 0)
	buf[2] = 'X'
	var p point
	if err := mc.Get(ctx, "k", &p); err != nil || p.Tick != 1 {
		t.Fatalf("stored bytes were aliased: %+v %v", p, err)
	}
}

func TestGenerateKeyWithParams(t *testing.T) {
	if got := GenerateKeyWithParams("snapshot", "cpu", 7); got != "snapshot:cpu:7" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := GenerateKey("a", "b"); got != "a:b" {
		t.Fatalf("unexpected key %q", got)
	}
}
