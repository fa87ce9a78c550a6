package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)
	failing := func() error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		if err := cb.Call(failing); err == nil {
			t.Fatal("Expected failure")
		}
	}

	if cb.State() != StateOpen {
		t.Errorf("Expected StateOpen after 3 failures, got %v", cb.State())
	}

	if err := cb.Call(failing); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_ClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(true) // resets consecutive failure count
	cb.RecordResult(false)
	cb.RecordResult(false)

	if cb.State() != StateClosed {
		t.Errorf("Expected StateClosed, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)

	cb.RecordResult(false)
	if cb.State() != StateOpen {
		t.Fatalf("Expected StateOpen, got %v", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	// Enough successful probes close the circuit again.
	ok := func() error { return nil }
	for i := 0; i < 3; i++ {
		if err := cb.Call(ok); err != nil {
			t.Fatalf("Probe call %d failed: %v", i, err)
		}
	}

	if cb.State() != StateClosed {
		t.Errorf("Expected StateClosed after recovery, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)

	cb.RecordResult(false)
	time.Sleep(20 * time.Millisecond)

	if err := cb.Call(func() error { return errors.New("still down") }); err == nil {
		t.Fatal("Expected failure")
	}

	if cb.State() != StateOpen {
		t.Errorf("Expected StateOpen after half-open failure, got %v", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Minute)
	cb.RecordResult(false)

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("Expected StateClosed after Reset, got %v", cb.State())
	}
}
