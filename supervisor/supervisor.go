// Package supervisor implements the Query Supervisor of spec.md 4.6: a
// bounded-concurrency admission gate in front of an external agent
// Backend, with an optional pending queue and a multicast lifecycle
// event bus. Modeled on the teacher's runtime.Operator fan-out worker
// (bounded semaphore, non-blocking queue, per-task finalisers) stretched
// from "one fixed batch of child runs" to "arbitrary submissions over the
// process lifetime".
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/agentcore/agent"
	"github.com/pithecene-io/agentcore/config"
	"github.com/pithecene-io/agentcore/core"
	"github.com/pithecene-io/agentcore/log"
	"github.com/pithecene-io/agentcore/metrics"
)

// admissionResult is delivered to a pending submitter once its request is
// either started (handle non-nil) or fails for any admission reason.
type admissionResult struct {
	handle  agent.Handle
	queryID string
	err     error
}

// Stats is a point-in-time snapshot of supervisor occupancy, per spec.md
// 4.6's `stats` operation.
type Stats struct {
	ActiveCount          int
	PendingCount         int
	ConcurrencyLimit     int
	PendingQueueCapacity int
	PendingQueueStrategy config.QueueStrategy
}

// Supervisor admits, runs, and tracks agent queries against an injected
// Backend, enforcing ConcurrencyLimit and emitting a multicast lifecycle
// event stream.
type Supervisor struct {
	cfg     config.SupervisorConfig
	backend agent.Backend
	logger  *log.Logger
	metrics *metrics.Collector

	sem   chan struct{}
	queue *pendingQueue

	mu     sync.Mutex
	active map[string]*activeEntry
	closed bool

	events   chan core.QueryEvent
	eventsMu sync.Mutex

	wg sync.WaitGroup

	// shutdownCtx is canceled by Shutdown so drainQueue's in-flight admit
	// calls (which may be blocked on the concurrency semaphore for an
	// item Shutdown's own queue.close() just claimed out from under them)
	// unblock instead of wedging Shutdown's wg.Wait() forever.
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	nowFunc func() int64
}

type activeEntry struct {
	query     core.ActiveQuery
	handle    agent.Handle
	startedAt time.Time
}

// Option customizes a Supervisor at construction.
type Option func(*Supervisor)

// WithLogger attaches a logger for admission and lifecycle diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithMetrics attaches a metrics collector. Nil-safe: a Supervisor
// without this option simply never records metrics, matching the
// teacher's nil-receiver-safe *metrics.Collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Supervisor) { s.metrics = c }
}

// New constructs a Supervisor bound to backend. If cfg.PendingQueueCapacity
// is 0, submissions either admit immediately or block on the semaphore
// directly (no queueing), per spec.md 8's boundary behaviour.
func New(cfg config.SupervisorConfig, backend agent.Backend, opts ...Option) *Supervisor {
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = 1
	}
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:            cfg,
		backend:        backend,
		sem:            make(chan struct{}, cfg.ConcurrencyLimit),
		active:         make(map[string]*activeEntry),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
		nowFunc:        func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(s)
	}

	bufferCapacity := cfg.EventBufferCapacity
	if bufferCapacity <= 0 {
		bufferCapacity = 1
	}
	if cfg.EmitEvents {
		s.events = make(chan core.QueryEvent, bufferCapacity)
	}

	if cfg.PendingQueueCapacity > 0 {
		s.queue = newPendingQueue(cfg.PendingQueueCapacity, cfg.PendingQueueStrategy)
		s.wg.Add(1)
		go s.drainQueue()
	}

	return s
}

// Submit admits a query, per spec.md 4.6's admission algorithm: direct
// semaphore acquisition when no pending queue is configured, otherwise an
// offer to the pending queue under its discipline, drained by a single
// long-lived worker.
func (s *Supervisor) Submit(ctx context.Context, prompt any, options agent.Options) (agent.Handle, error) {
	if p, ok := prompt.(string); ok {
		if err := core.ValidatePrompt(p); err != nil {
			return nil, err
		}
	}

	queryID := uuid.NewString()
	submittedAtMs := s.nowFunc()

	if s.queue == nil {
		return s.admit(ctx, queryID, prompt, options, submittedAtMs)
	}

	item := &pendingItem{
		request: core.PendingRequest{
			QueryID:       queryID,
			Prompt:        promptString(prompt),
			Options:       options,
			SubmittedAtMs: submittedAtMs,
		},
		prompt:   prompt,
		resultCh: make(chan admissionResult, 1),
	}

	if err := s.queue.offer(ctx, item); err != nil {
		return nil, err
	}
	s.emit(core.QueryEvent{Kind: core.EventQueryQueued, QueryID: queryID, TimestampMs: submittedAtMs})

	var timeoutTimer *time.Timer
	var timeoutCh <-chan time.Time
	if s.cfg.MaxPendingTime.Duration > 0 {
		timeoutTimer = time.NewTimer(s.cfg.MaxPendingTime.Duration)
		timeoutCh = timeoutTimer.C
		defer timeoutTimer.Stop()
	}

	select {
	case result := <-item.resultCh:
		if result.err != nil {
			return nil, result.err
		}
		return result.handle, nil
	case <-timeoutCh:
		// The item may still be sitting in the queue's slice while
		// drainQueue is already mid-admission for it (blocked on the
		// concurrency semaphore); remove is best-effort bookkeeping, and
		// claim is what actually decides who delivers the outcome.
		s.queue.remove(item)
		if item.claim() {
			timeoutMs := int64(s.cfg.MaxPendingTime.Duration / time.Millisecond)
			return nil, core.ErrQueryPendingTimeout(timeoutMs)
		}
		result := <-item.resultCh
		if result.err != nil {
			return nil, result.err
		}
		return result.handle, nil
	case <-ctx.Done():
		s.queue.remove(item)
		if item.claim() {
			return nil, core.ErrQueryPendingCanceled()
		}
		result := <-item.resultCh
		if result.err != nil {
			return nil, result.err
		}
		return result.handle, nil
	}
}

// SubmitStream is Submit followed by a lazy read of the resulting
// handle's message stream, per spec.md 4.6's submitStream.
func (s *Supervisor) SubmitStream(ctx context.Context, prompt any, options agent.Options) (<-chan agent.Message, error) {
	handle, err := s.Submit(ctx, prompt, options)
	if err != nil {
		return nil, err
	}
	return handle.Messages(), nil
}

// drainQueue is the pending queue's single long-lived worker, per
// spec.md 4.6 step 3.
func (s *Supervisor) drainQueue() {
	defer s.wg.Done()
	for {
		item := s.queue.next()
		if item == nil {
			return
		}

		handle, err := s.admit(s.shutdownCtx, item.request.QueryID, item.prompt, item.request.Options, item.request.SubmittedAtMs)
		s.queue.remove(item)
		if !item.claim() {
			// The submitter already abandoned this item (timeout,
			// cancellation, or sliding eviction raced ahead of us). If
			// admission nonetheless succeeded, the active-map entry
			// admit() just created would otherwise occupy a concurrency
			// slot forever with no owner to call Finish on it.
			if err == nil && handle != nil {
				_ = handle.Interrupt(context.Background())
				_ = handle.CloseInput(context.Background())
				s.finish(item.request.QueryID, core.CompletionInterrupted)
			}
			continue
		}
		item.resultCh <- admissionResult{handle: handle, queryID: item.request.QueryID, err: err}
	}
}

// admit runs the common admission path shared by the direct and queued
// submission routes: acquire the semaphore, call the backend, register
// the active entry, and emit QueryStarted/QueryStartFailed.
func (s *Supervisor) admit(ctx context.Context, queryID string, prompt any, options agent.Options, submittedAtMs int64) (agent.Handle, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	handle, err := s.backend.Start(ctx, prompt, options)
	if err != nil {
		<-s.sem
		s.emit(core.QueryEvent{Kind: core.EventQueryStartFailed, QueryID: queryID, TimestampMs: s.nowFunc(), ErrorTag: classifyBackendError(err)})
		if s.metrics != nil {
			s.metrics.IncQueriesFailed()
		}
		return nil, &core.BackendError{QueryID: queryID, Cause: err}
	}

	startedAtMs := s.nowFunc()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.sem
		_ = handle.CloseInput(ctx)
		_ = handle.Interrupt(ctx)
		return nil, core.ErrQueryPendingCanceled()
	}
	s.active[queryID] = &activeEntry{
		query:     core.ActiveQuery{QueryID: queryID, StartedAtMs: startedAtMs},
		handle:    handle,
		startedAt: time.UnixMilli(startedAtMs),
	}
	s.mu.Unlock()

	s.emit(core.QueryEvent{Kind: core.EventQueryStarted, QueryID: queryID, TimestampMs: startedAtMs})
	if s.metrics != nil {
		s.metrics.IncQueriesStarted()
	}

	return &supervisedHandle{Handle: handle, supervisor: s, queryID: queryID}, nil
}

// finish runs a finalised active query's lifecycle bookkeeping: removes
// it from the active map, releases its semaphore permit, records the
// duration histogram sample, and emits QueryCompleted.
func (s *Supervisor) finish(queryID string, status core.CompletionStatus) {
	s.mu.Lock()
	entry, ok := s.active[queryID]
	if ok {
		delete(s.active, queryID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	<-s.sem

	nowMs := s.nowFunc()
	if s.metrics != nil {
		s.metrics.IncQueriesCompleted()
		s.metrics.ObserveQueryDurationMs(float64(nowMs - entry.query.StartedAtMs))
	}
	s.emit(core.QueryEvent{Kind: core.EventQueryCompleted, QueryID: queryID, TimestampMs: nowMs, Status: status})
}

// Stats returns a snapshot of current occupancy, per spec.md 4.6.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	activeCount := len(s.active)
	s.mu.Unlock()

	pendingCount := 0
	if s.queue != nil {
		pendingCount = s.queue.len()
	}

	return Stats{
		ActiveCount:          activeCount,
		PendingCount:         pendingCount,
		ConcurrencyLimit:     s.cfg.ConcurrencyLimit,
		PendingQueueCapacity: s.cfg.PendingQueueCapacity,
		PendingQueueStrategy: s.cfg.PendingQueueStrategy,
	}
}

// InterruptAll signals every active handle to close input and interrupt,
// per spec.md 4.6's interruptAll.
func (s *Supervisor) InterruptAll(ctx context.Context) {
	s.mu.Lock()
	handles := make([]agent.Handle, 0, len(s.active))
	for _, entry := range s.active {
		handles = append(handles, entry.handle)
	}
	s.mu.Unlock()

	for _, h := range handles {
		_ = h.CloseInput(ctx)
		_ = h.Interrupt(ctx)
	}
}

// Events returns the multicast lifecycle event stream. If EmitEvents is
// false, it returns a channel that is immediately closed (the "empty
// stream" of spec.md 4.6).
func (s *Supervisor) Events() <-chan core.QueryEvent {
	if s.events == nil {
		closed := make(chan core.QueryEvent)
		close(closed)
		return closed
	}
	return s.events
}

// emit sends ev on the event bus using the configured back-pressure
// discipline, matching the pending queue's vocabulary (suspend blocks,
// dropping discards silently, sliding evicts the oldest buffered event).
// A nil bus (EmitEvents=false) makes this a no-op.
func (s *Supervisor) emit(ev core.QueryEvent) {
	if s.events == nil {
		return
	}
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()

	switch s.cfg.EventBufferStrategy {
	case config.EventBufferDropping:
		select {
		case s.events <- ev:
		default:
		}
	case config.EventBufferSliding:
		select {
		case s.events <- ev:
		default:
			select {
			case <-s.events:
			default:
			}
			select {
			case s.events <- ev:
			default:
			}
		}
	default: // suspend
		s.events <- ev
	}
}

// Shutdown closes the supervisor's scope: interrupts all active handles,
// drains and discards the pending queue with cancellation errors, and
// closes the event bus, per spec.md 4.6's shutdown behaviour.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.InterruptAll(ctx)

	if s.queue != nil {
		s.queue.close()
		s.shutdownCancel()
		s.wg.Wait()
	}

	if s.events != nil {
		s.eventsMu.Lock()
		close(s.events)
		s.eventsMu.Unlock()
	}
}

func promptString(prompt any) string {
	if s, ok := prompt.(string); ok {
		return s
	}
	return ""
}

// classifyBackendError extracts a short, stable tag from a backend
// error for QueryStartFailed's optional errorTag, falling back to the
// generic "backend_error" when the cause carries no richer structure.
func classifyBackendError(err error) string {
	if err == nil {
		return ""
	}
	var ns *agent.NotSupported
	if errors.As(err, &ns) {
		return "not_supported"
	}
	return "backend_error"
}

// supervisedHandle wraps the backend's agent.Handle so that active-map
// removal, semaphore release, and QueryCompleted only ever happen once
// per query, via Finish. Callers drive the embedded Handle directly for
// everything else (Messages, CloseInput, Interrupt, the optional
// controls); Finish is the one addition over the embedded interface.
type supervisedHandle struct {
	agent.Handle
	supervisor *Supervisor
	queryID    string

	once sync.Once
}

var _ agent.Handle = (*supervisedHandle)(nil)

// Finish records the query's terminal status and releases its semaphore
// permit. Callers (the store/chat recorder tapping the message stream,
// or the caller driving the handle directly) call this exactly once when
// they observe the query has ended.
func (h *supervisedHandle) Finish(status core.CompletionStatus) {
	h.once.Do(func() {
		h.supervisor.finish(h.queryID, status)
	})
}
