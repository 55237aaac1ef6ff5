package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"norvia-broker/internal/logger"
)

func TestDrainStopsWhenNothingLeft(t *testing.T) {
	remaining := 3
	n, err := Drain(context.Background(), 10, func(context.Context) (bool, error) {
		if remaining == 0 {
			return false, nil
		}
		remaining--
		return true, nil
	})
	if err != nil || n != 3 {
		t.Fatalf("got n=%d err=%v", n, err)
	}
}

func TestDrainRespectsLimitAndErrors(t *testing.T) {
	n, err := Drain(context.Background(), 2, func(context.Context) (bool, error) { return true, nil })
	if err != nil || n != 2 {
		t.Fatalf("limit: got n=%d err=%v", n, err)
	}

	boom := errors.New("boom")
	calls := 0
	n, err = Drain(context.Background(), 5, func(context.Context) (bool, error) {
		calls++
		if calls == 2 {
			return false, boom
		}
		return true, nil
	})
	if !errors.Is(err, boom) || n != 1 {
		t.Fatalf("error: got n=%d err=%v", n, err)
	}
}

func TestDrainHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := Drain(ctx, 5, func(context.Context) (bool, error) { return true, nil })
	if n != 0 || !errors.Is(err, context.Canceled) {
		t.Fatalf("got n=%d err=%v", n, err)
	}
}

type countingJob struct{ runs atomic.Int32 }

func (j *countingJob) Name() string { return "test" }

func (j *countingJob) RunOnce(context.Context) (int, error) {
	j.runs.Add(1)
	return 1, nil
}

func TestRunTicksUntilCancelled(t *testing.T) {
	job := &countingJob{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, logger.Nop(), 5*time.Millisecond, job)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for job.runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d runs", job.runs.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
