package server

import (
	"testing"
	"time"
)

func TestRateLimiterCapsPerKey(t *testing.T) {
	rl := newRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Fatalf("fourth request in window should be denied")
	}
	if !rl.Allow("10.0.0.2") {
		t.Fatalf("other keys must not share the window")
	}
	if rl.Allow("") {
		t.Fatalf("empty key should be denied")
	}
}
