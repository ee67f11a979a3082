package gateway

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	br := NewBreaker("weather", 3, time.Minute, zap.NewNop())

	for i := 0; i < 2; i++ {
		if !br.Allow() {
			t.Fatalf("closed breaker refused call %d", i)
		}
		br.RecordFailure(0)
	}
	if br.State() != CircuitStateClosed {
		t.Fatalf("breaker opened below threshold: %s", br.State())
	}

	br.RecordFailure(0)
	if br.State() != CircuitStateOpen {
		t.Fatalf("breaker not open after threshold: %s", br.State())
	}
	if br.Allow() {
		t.Fatal("open breaker allowed a call")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	br := NewBreaker("weather", 3, time.Minute, zap.NewNop())

	br.RecordFailure(0)
	br.RecordFailure(0)
	br.RecordSuccess()
	br.RecordFailure(0)
	br.RecordFailure(0)

	if br.State() != CircuitStateClosed {
		t.Fatalf("non-consecutive failures opened breaker: %s", br.State())
	}
}

func TestBreakerHalfOpenAdmitsSingleTrial(t *testing.T) {
	br := NewBreaker("weather", 1, 20*time.Millisecond, zap.NewNop())

	br.RecordFailure(0)
	if br.State() != CircuitStateOpen {
		t.Fatalf("breaker not open: %s", br.State())
	}

	time.Sleep(30 * time.Millisecond)

	var mu sync.Mutex
	allowed := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if br.Allow() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 1 {
		t.Fatalf("half-open admitted %d calls, want 1", allowed)
	}
	if br.State() != CircuitStateHalfOpen {
		t.Fatalf("expected half-open, got %s", br.State())
	}
}

func TestBreakerTrialSuccessCloses(t *testing.T) {
	br := NewBreaker("weather", 1, 10*time.Millisecond, zap.NewNop())

	br.RecordFailure(0)
	time.Sleep(20 * time.Millisecond)

	if !br.Allow() {
		t.Fatal("trial call refused after cooldown")
	}
	br.RecordSuccess()

	if br.State() != CircuitStateClosed {
		t.Fatalf("trial success did not close breaker: %s", br.State())
	}
	if !br.Allow() {
		t.Fatal("closed breaker refused a call")
	}
}

func TestBreakerTrialFailureReopens(t *testing.T) {
	br := NewBreaker("weather", 1, 10*time.Millisecond, zap.NewNop())

	br.RecordFailure(0)
	time.Sleep(20 * time.Millisecond)

	if !br.Allow() {
		t.Fatal("trial call refused after cooldown")
	}
	br.RecordFailure(time.Minute)

	if br.State() != CircuitStateOpen {
		t.Fatalf("trial failure did not reopen breaker: %s", br.State())
	}
	if br.Allow() {
		t.Fatal("reopened breaker allowed a call before cooldown")
	}

	status := br.GetStatus()
	if status.NextRetryTime == nil {
		t.Fatal("open breaker has no next retry time")
	}
	if until := time.Until(*status.NextRetryTime); until < 30*time.Second {
		t.Fatalf("custom cooldown not applied, retry in %s", until)
	}
}

func TestBreakerAbortedTrialFreesSlot(t *testing.T) {
	br := NewBreaker("weather", 1, 10*time.Millisecond, zap.NewNop())

	br.RecordFailure(0)
	time.Sleep(20 * time.Millisecond)

	if !br.Allow() {
		t.Fatal("trial call refused after cooldown")
	}
	// The caller's deadline aborted the trial without a verdict.
	br.ReleaseTrial()

	if !br.Allow() {
		t.Fatal("released trial slot could not be reclaimed")
	}
	br.RecordSuccess()
	if br.State() != CircuitStateClosed {
		t.Fatalf("trial success did not close breaker: %s", br.State())
	}
}

func TestBreakerReset(t *testing.T) {
	br := NewBreaker("weather", 1, time.Minute, zap.NewNop())

	br.RecordFailure(0)
	if br.State() != CircuitStateOpen {
		t.Fatalf("breaker not open: %s", br.State())
	}

	br.Reset()
	if br.State() != CircuitStateClosed {
		t.Fatalf("reset did not close breaker: %s", br.State())
	}
	if !br.Allow() {
		t.Fatal("reset breaker refused a call")
	}
}
