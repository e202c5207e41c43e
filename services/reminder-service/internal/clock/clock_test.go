package clock

import (
	"testing"
	"time"
)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 1, 10, 8, 59, 0, 0, time.UTC)
	f := NewFake(start)
	ch := f.After(time.Minute)

	f.Advance(30 * time.Second)
	select {
	case <-ch:
		t.Fatalf("timer fired early")
	default:
	}

	f.Advance(30 * time.Second)
	select {
	case got := <-ch:
		if !got.Equal(start.Add(time.Minute)) {
			t.Fatalf("unexpected fire time %s", got)
		}
	default:
		t.Fatalf("timer did not fire")
	}
	if !f.BlockUntilWaiters(0, time.Millisecond) {
		t.Fatalf("expected no pending waiters")
	}
}

func TestFakeSetAndZeroDuration(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	select {
	case <-f.After(0):
	default:
		t.Fatalf("zero duration must fire immediately")
	}

	ch := f.After(2 * time.Hour)
	if !f.BlockUntilWaiters(1, time.Second) {
		t.Fatalf("expected one pending waiter")
	}
	f.Set(time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC))
	select {
	case <-ch:
	default:
		t.Fatalf("Set past the deadline must fire the timer")
	}
}
