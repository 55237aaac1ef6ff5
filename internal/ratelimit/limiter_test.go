package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimitsPerKeyAndWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemory(2, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		got, err := l.Allow(ctx, "ip:1")
		if err != nil || got != want {
			t.Fatalf("call %d: got %v, %v", i, got, err)
		}
	}
	if ok, _ := l.Allow(ctx, "ip:2"); !ok {
		t.Fatal("other key should have its own window")
	}

	now = now.Add(time.Minute)
	if ok, _ := l.Allow(ctx, "ip:1"); !ok {
		t.Fatal("new window should reset the count")
	}
}

func TestMemoryPrune(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemory(1, time.Minute)
	l.now = func() time.Time { return now }
	_, _ = l.Allow(context.Background(), "a")
	now = now.Add(30 * time.Second)
	_, _ = l.Allow(context.Background(), "b")

	now = now.Add(40 * time.Second)
	l.Prune()
	if _, ok := l.windows["a"]; ok {
		t.Fatal("expired window was kept")
	}
	if _, ok := l.windows["b"]; !ok {
		t.Fatal("live window was dropped")
	}
}
