package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ipsix/hostsweep/internal/logging"
)

func TestNewValidatesSpec(t *testing.T) {
	if _, err := New(logging.Nop(), "", false, func(context.Context) {}); err == nil {
		t.Fatalf("expected error for empty spec")
	}
	if _, err := New(logging.Nop(), "not a cron line", false, func(context.Context) {}); err == nil {
		t.Fatalf("expected error for invalid spec")
	}
	if _, err := New(logging.Nop(), "0 3 * * *", false, func(context.Context) {}); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
	if _, err := New(logging.Nop(), "@hourly", false, func(context.Context) {}); err != nil {
		t.Fatalf("descriptor spec rejected: %v", err)
	}
}

func TestRunOnStartTriggersOnce(t *testing.T) {
	var calls atomic.Int32
	s, err := New(logging.Nop(), "0 3 * * *", true, func(context.Context) {
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("run-on-start trigger never fired")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one trigger, got %d", calls.Load())
	}
}

func TestFireSkipsOverlap(t *testing.T) {
	block := make(chan struct{})
	var calls atomic.Int32
	s, err := New(logging.Nop(), "0 3 * * *", false, func(context.Context) {
		calls.Add(1)
		<-block
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx := context.Background()
	go s.fire(ctx)
	for !s.running.Load() {
		time.Sleep(time.Millisecond)
	}

	s.fire(ctx) // previous trigger still active, must be skipped
	close(block)

	for s.running.Load() {
		time.Sleep(time.Millisecond)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected overlap skip, got %d calls", calls.Load())
	}
}

func TestFireIgnoresCancelledContext(t *testing.T) {
	var calls atomic.Int32
	s, err := New(logging.Nop(), "0 3 * * *", false, func(context.Context) {
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.fire(ctx)
	if calls.Load() != 0 {
		t.Fatalf("trigger ran after shutdown")
	}
}
