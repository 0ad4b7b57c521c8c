package cache

import (
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, 20*time.Millisecond)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected fresh hit, got %v %v", v, ok)
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected miss after expiry")
	}
}

func TestTTLCacheNoExpiryAndDelete(t *testing.T) {
	c := NewTTLCache[string, string]()

	c.Set("k", "v", 0)
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("expected hit without expiry, got %v %v", v, ok)
	}

	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestNoopCacheAlwaysMisses(t *testing.T) {
	var c NoopCache[int, int]
	c.Set(1, 2, time.Minute)
	if _, ok := c.Get(1); ok {
		t.Fatalf("noop cache must always miss")
	}
}
