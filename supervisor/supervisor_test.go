package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pithecene-io/agentcore/agent"
	"github.com/pithecene-io/agentcore/config"
	"github.com/pithecene-io/agentcore/core"
)

func finishActive(t *testing.T, h agent.Handle, status core.CompletionStatus) {
	t.Helper()
	sh, ok := h.(*supervisedHandle)
	if !ok {
		t.Fatalf("expected *supervisedHandle, got %T", h)
	}
	sh.Finish(status)
}

// TestSupervisor_Submit_RejectsEmptyPrompt exercises spec.md 8's boundary
// behaviour: an empty prompt fails validation before admission and never
// reaches the backend.
func TestSupervisor_Submit_RejectsEmptyPrompt(t *testing.T) {
	backend := agent.NewStubBackend()
	sup := New(config.SupervisorConfig{ConcurrencyLimit: 1}, backend)

	_, err := sup.Submit(context.Background(), "", nil)
	if err == nil {
		t.Fatal("expected empty prompt to be rejected")
	}
	var ve *core.ValidationError
	if !errors.As(err, &ve) || ve.Code != "invalid_prompt" {
		t.Fatalf("expected invalid_prompt ValidationError, got %#v", err)
	}

	stats := sup.Stats()
	if stats.ActiveCount != 0 {
		t.Fatalf("expected rejected submission to never reach admission, got ActiveCount=%d", stats.ActiveCount)
	}
}

// TestSupervisor_ConcurrentAdmission exercises spec.md 8's "concurrent
// admission" scenario: with concurrencyLimit=2 and no pending queue, two
// of three simultaneous submissions are admitted immediately and the
// third remains blocked until a slot frees up.
func TestSupervisor_ConcurrentAdmission(t *testing.T) {
	backend := agent.NewStubBackend()
	sup := New(config.SupervisorConfig{ConcurrencyLimit: 2}, backend)

	type result struct {
		handle agent.Handle
		err    error
	}
	results := make(chan result, 3)
	for i := 0; i < 3; i++ {
		go func() {
			h, err := sup.Submit(context.Background(), "prompt", nil)
			results <- result{h, err}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	stats := sup.Stats()
	if stats.ActiveCount != 2 {
		t.Fatalf("ActiveCount = %d, want 2", stats.ActiveCount)
	}

	select {
	case r := <-results:
		if r.err != nil {
			t.Fatalf("unexpected error: %v", r.err)
		}
		finishActive(t, r.handle, core.CompletionSuccess)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for an admitted query")
	}

	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			if r.err != nil {
				t.Fatalf("unexpected error: %v", r.err)
			}
			finishActive(t, r.handle, core.CompletionSuccess)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for the remaining queries")
		}
	}
}

// TestSupervisor_DroppingOverflow exercises spec.md 8's "dropping
// overflow" scenario: concurrencyLimit=1, pendingQueueCapacity=1,
// strategy=dropping. A third submission fails immediately with a
// QueueFull{capacity=1, strategy="dropping"} error.
func TestSupervisor_DroppingOverflow(t *testing.T) {
	backend := agent.NewStubBackend()
	sup := New(config.SupervisorConfig{
		ConcurrencyLimit:     1,
		PendingQueueCapacity: 1,
		PendingQueueStrategy: config.QueueStrategyDropping,
	}, backend)

	handleA, err := sup.Submit(context.Background(), "a", nil)
	if err != nil {
		t.Fatalf("submit A: %v", err)
	}

	bDone := make(chan struct{})
	go func() {
		_, _ = sup.Submit(context.Background(), "b", nil)
		close(bDone)
	}()

	// Give B time to occupy the one pending slot.
	time.Sleep(50 * time.Millisecond)

	_, err = sup.Submit(context.Background(), "c", nil)
	if err == nil {
		t.Fatal("expected submission C to fail")
	}
	var admissionErr *core.AdmissionError
	if !errors.As(err, &admissionErr) {
		t.Fatalf("expected *core.AdmissionError, got %T: %v", err, err)
	}
	if admissionErr.Reason != core.AdmissionQueueFull {
		t.Fatalf("Reason = %q, want queue_full", admissionErr.Reason)
	}
	if admissionErr.Capacity != 1 || admissionErr.Strategy != string(config.QueueStrategyDropping) {
		t.Fatalf("unexpected AdmissionError fields: %+v", admissionErr)
	}

	finishActive(t, handleA, core.CompletionSuccess)
	<-bDone
}

// TestSupervisor_PendingTimeout exercises spec.md 8's "pending timeout"
// scenario: concurrencyLimit=1, pendingQueueCapacity=4,
// maxPendingTime=50ms. A second submission that never gets a slot fails
// with a QueryPendingTimeoutError{timeoutMs=50}.
func TestSupervisor_PendingTimeout(t *testing.T) {
	backend := agent.NewStubBackend()
	sup := New(config.SupervisorConfig{
		ConcurrencyLimit:     1,
		PendingQueueCapacity: 4,
		MaxPendingTime:       config.Duration{Duration: 50 * time.Millisecond},
	}, backend)

	handleA, err := sup.Submit(context.Background(), "a", nil)
	if err != nil {
		t.Fatalf("submit A: %v", err)
	}

	start := time.Now()
	_, err = sup.Submit(context.Background(), "b", nil)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected submission B to time out")
	}
	var admissionErr *core.AdmissionError
	if !errors.As(err, &admissionErr) {
		t.Fatalf("expected *core.AdmissionError, got %T: %v", err, err)
	}
	if admissionErr.Reason != core.AdmissionPendingTimeout {
		t.Fatalf("Reason = %q, want pending_timeout", admissionErr.Reason)
	}
	if admissionErr.TimeoutMs != 50 {
		t.Fatalf("TimeoutMs = %d, want 50", admissionErr.TimeoutMs)
	}
	if elapsed < 40*time.Millisecond {
		t.Fatalf("returned too early: %v", elapsed)
	}

	finishActive(t, handleA, core.CompletionSuccess)
}

// TestSupervisor_PendingQueueCapacityZero_AdmitsDirectly covers spec.md
// 8's boundary behaviour: pendingQueueCapacity=0 means submissions
// either admit directly against the semaphore or block on it, with no
// queueing discipline involved at all.
func TestSupervisor_PendingQueueCapacityZero_AdmitsDirectly(t *testing.T) {
	backend := agent.NewStubBackend()
	sup := New(config.SupervisorConfig{ConcurrencyLimit: 1}, backend)

	if sup.queue != nil {
		t.Fatal("expected no pending queue when PendingQueueCapacity is 0")
	}

	h, err := sup.Submit(context.Background(), "a", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	finishActive(t, h, core.CompletionSuccess)
}

// TestSupervisor_StartFailure ensures a backend Start error surfaces as a
// *core.BackendError and emits QueryStartFailed, never QueryStarted, for
// the same query id.
func TestSupervisor_StartFailure(t *testing.T) {
	backend := agent.NewStubBackend()
	backend.StartErr = errors.New("boom")
	sup := New(config.SupervisorConfig{ConcurrencyLimit: 1, EmitEvents: true, EventBufferCapacity: 8}, backend)

	_, err := sup.Submit(context.Background(), "a", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	var backendErr *core.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected *core.BackendError, got %T: %v", err, err)
	}

	ev := <-sup.Events()
	sawStartFailed := ev.Kind == core.EventQueryStartFailed
	sawStarted := ev.Kind == core.EventQueryStarted
	if !sawStartFailed {
		t.Fatal("expected a QueryStartFailed event")
	}
	if sawStarted {
		t.Fatal("QueryStarted must never co-occur with QueryStartFailed for the same query")
	}
}

// TestSupervisor_Stats reports configured limits alongside live occupancy.
func TestSupervisor_Stats(t *testing.T) {
	backend := agent.NewStubBackend()
	sup := New(config.SupervisorConfig{
		ConcurrencyLimit:     3,
		PendingQueueCapacity: 5,
		PendingQueueStrategy: config.QueueStrategySuspend,
	}, backend)

	stats := sup.Stats()
	if stats.ConcurrencyLimit != 3 || stats.PendingQueueCapacity != 5 {
		t.Fatalf("unexpected static stats: %+v", stats)
	}
	if stats.ActiveCount != 0 || stats.PendingCount != 0 {
		t.Fatalf("expected empty occupancy at start, got %+v", stats)
	}
}

// TestSupervisor_InterruptAll signals every active handle.
func TestSupervisor_InterruptAll(t *testing.T) {
	backend := agent.NewStubBackend()
	sup := New(config.SupervisorConfig{ConcurrencyLimit: 2}, backend)

	h1, err := sup.Submit(context.Background(), "a", nil)
	if err != nil {
		t.Fatalf("submit a: %v", err)
	}
	h2, err := sup.Submit(context.Background(), "b", nil)
	if err != nil {
		t.Fatalf("submit b: %v", err)
	}

	sup.InterruptAll(context.Background())

	if sh, ok := h1.(*supervisedHandle); ok {
		if !sh.Handle.(*agent.StubHandle).Interrupted() {
			t.Fatal("expected handle A to be interrupted")
		}
	}
	if sh, ok := h2.(*supervisedHandle); ok {
		if !sh.Handle.(*agent.StubHandle).Interrupted() {
			t.Fatal("expected handle B to be interrupted")
		}
	}

	finishActive(t, h1, core.CompletionInterrupted)
	finishActive(t, h2, core.CompletionInterrupted)
}

// TestSupervisor_Shutdown drains the pending queue with cancellation
// errors and closes the event bus.
func TestSupervisor_Shutdown(t *testing.T) {
	backend := agent.NewStubBackend()
	sup := New(config.SupervisorConfig{
		ConcurrencyLimit:     1,
		PendingQueueCapacity: 4,
		EmitEvents:           true,
		EventBufferCapacity:  8,
	}, backend)

	h, err := sup.Submit(context.Background(), "a", nil)
	if err != nil {
		t.Fatalf("submit a: %v", err)
	}

	pendingErrCh := make(chan error, 1)
	go func() {
		_, err := sup.Submit(context.Background(), "b", nil)
		pendingErrCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	sup.Shutdown(context.Background())

	select {
	case err := <-pendingErrCh:
		if err == nil {
			t.Fatal("expected pending submission to be canceled by shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pending submission to resolve")
	}

	if !h.(*supervisedHandle).Handle.(*agent.StubHandle).Interrupted() {
		t.Fatal("expected active handle to be interrupted by shutdown")
	}

	events := sup.Events()
	for range events {
	}
}
