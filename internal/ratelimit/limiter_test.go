package ratelimit

import (
	"testing"
	"time"
)

func TestMemoryLimiterBlocksWithinWindow(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	rl := newMemory(func() time.Time { return now })
	defer rl.Close()

	for i := 1; i <= 3; i++ {
		d := rl.Allow("ip:1.2.3.4", 3, time.Minute)
		if !d.Allowed || d.Count != i {
			t.Fatalf("request %d: unexpected decision %+v", i, d)
		}
	}
	d := rl.Allow("ip:1.2.3.4", 3, time.Minute)
	if d.Allowed {
		t.Fatal("fourth request should be blocked")
	}
	if d.Remaining(3) != 0 || !d.WindowEnd.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if other := rl.Allow("ip:5.6.7.8", 3, time.Minute); !other.Allowed {
		t.Fatal("keys must be independent")
	}

	now = now.Add(time.Minute)
	if d := rl.Allow("ip:1.2.3.4", 3, time.Minute); !d.Allowed || d.Count != 1 {
		t.Fatalf("window should reset, got %+v", d)
	}
}

func TestMemoryLimiterSweep(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	rl := newMemory(func() time.Time { return now })
	defer rl.Close()

	rl.Allow("k", 1, time.Second)
	now = now.Add(2 * time.Second)
	rl.sweep()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.entries) != 0 {
		t.Fatalf("expected expired entries swept, got %d", len(rl.entries))
	}
}

func TestZeroLimitAlwaysAllows(t *testing.T) {
	rl := NewMemory()
	defer rl.Close()
	if d := rl.Allow("k", 0, time.Minute); !d.Allowed {
		t.Fatal("zero limit disables limiting")
	}
}
