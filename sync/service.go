// Package sync implements the Remote Sync Engine of spec.md 4.8: one
// connector fiber per registered remote, exchanging entries with the
// local Journal over the Remote Protocol, plus a status map and an
// optional periodic scheduler. Modeled on the teacher's runtime.Operator
// pattern of a per-task context/cancel pair and a wait group guarding
// shutdown, generalized from "fixed batch of child runs" to "a remote
// whose connector restarts across the process lifetime".
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/agentcore/config"
	"github.com/pithecene-io/agentcore/core"
	"github.com/pithecene-io/agentcore/journal"
	"github.com/pithecene-io/agentcore/log"
	"github.com/pithecene-io/agentcore/metrics"
	"github.com/pithecene-io/agentcore/protocol"
)

// RemoteConfig describes a remote to attach via Connect. Use
// ConnectWebSocket for the URL-keyed WebSocket/Redis shorthand instead of
// constructing one of these directly.
type RemoteConfig struct {
	RemoteID string
	Dialer   protocol.Dialer
	Addr     string
	// EndpointKey, if set, names an EndpointSet registered on the
	// Service's EndpointSelector to resolve Addr afresh on every
	// (re)connect attempt instead of always dialing Addr directly.
	EndpointKey string
}

// WebSocketOptions configures a URL-keyed remote attached via
// ConnectWebSocket.
type WebSocketOptions struct {
	Protocols   []string
	DisablePing bool
	// EndpointKey, if set, names an EndpointSet registered on the
	// Service's EndpointSelector to resolve the dial address afresh on
	// every (re)connect attempt instead of always dialing url directly.
	EndpointKey string
}

// remoteState is one registered remote's runtime bookkeeping: status plus
// the machinery needed to restart its connector fiber.
type remoteState struct {
	status core.RemoteStatus

	dialer      protocol.Dialer
	addr        string
	endpointKey string

	cancel context.CancelFunc
	done   chan struct{}
}

// running reports whether this remote's connector fiber is currently
// active, per spec.md 4.8's "starts a fiber iff one is not already
// running (or the previous one finished)".
func (rs *remoteState) running() bool {
	if rs.done == nil {
		return false
	}
	select {
	case <-rs.done:
		return false
	default:
		return true
	}
}

// Service is the Remote Sync Engine: it owns one connector fiber per
// registered remote key and the status map those fibers update.
type Service struct {
	identity     string
	capabilities []string

	journal   *journal.Journal
	logger    *log.Logger
	metrics   *metrics.Collector
	endpoints *EndpointSelector
	notifier  *StatusNotifier
	clock     func() int64

	mu      sync.Mutex
	remotes map[string]*remoteState
	closed  bool

	statusBus   chan core.RemoteStatus
	statusBusMu sync.Mutex

	// syncNowSem serialises syncNow restarts per spec.md 5's "prevent
	// stampedes": a second concurrent syncNow call blocks behind the
	// first rather than racing it to restart the same connectors twice.
	syncNowSem chan struct{}

	schedulerCancel context.CancelFunc
	wg              sync.WaitGroup
}

// Option customises a Service at construction.
type Option func(*Service)

// WithLogger attaches a logger for connector diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics attaches a metrics collector. Nil-safe like the supervisor's
// WithMetrics: a Service without this option simply never records sync
// metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithEndpointSelector attaches an EndpointSelector so a remote registered
// with a matching endpoint-set key resolves its dial address afresh on
// every (re)connect attempt instead of always dialing a single fixed
// address.
func WithEndpointSelector(sel *EndpointSelector) Option {
	return func(s *Service) { s.endpoints = sel }
}

// WithStatusNotifier attaches a StatusNotifier invoked (best-effort, in
// its own goroutine) on every published status transition.
func WithStatusNotifier(n *StatusNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

// New constructs a Service bound to j, identifying itself to remotes as
// identity with the given capability tags. If cfg.SyncInterval is
// positive, a background scheduler invokes SyncNow on that period; zero or
// negative disables it, per spec.md 8's boundary behaviour.
func New(j *journal.Journal, identity string, capabilities []string, cfg config.SyncConfig, opts ...Option) *Service {
	s := &Service{
		identity:     identity,
		capabilities: capabilities,
		journal:      j,
		clock:        func() int64 { return time.Now().UnixMilli() },
		remotes:      make(map[string]*remoteState),
		syncNowSem:   make(chan struct{}, 1),
		statusBus:    make(chan core.RemoteStatus, 32),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.SyncInterval.Duration > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.schedulerCancel = cancel
		s.wg.Add(1)
		go s.runScheduler(ctx, cfg.SyncInterval.Duration)
	}

	return s
}

// Connect registers a programmatically attached remote (kind=remoteId)
// and starts its connector fiber, per spec.md 4.8's connect.
func (s *Service) Connect(remote RemoteConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	rs, ok := s.remotes[remote.RemoteID]
	if !ok {
		rs = &remoteState{status: core.RemoteStatus{
			Key:      remote.RemoteID,
			Kind:     core.RemoteKindRemoteID,
			RemoteID: remote.RemoteID,
		}}
		s.remotes[remote.RemoteID] = rs
	}
	rs.dialer = remote.Dialer
	rs.addr = remote.Addr
	rs.endpointKey = remote.EndpointKey

	s.startLocked(rs)
}

// ConnectWebSocket registers a URL-keyed remote (kind=url) dialed via
// dialer, starting its connector fiber. The URL is the permanent status
// key for the remote's lifetime: the Remote Protocol as implemented
// carries no message conveying a server-assigned remoteId to reconcile
// against (see spec.md 9's open question, resolved in DESIGN.md).
func (s *Service) ConnectWebSocket(dialer protocol.Dialer, url string, opts WebSocketOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	rs, ok := s.remotes[url]
	if !ok {
		rs = &remoteState{status: core.RemoteStatus{
			Key:  url,
			Kind: core.RemoteKindURL,
			URL:  url,
		}}
		s.remotes[url] = rs
	}
	rs.dialer = dialer
	rs.addr = url
	rs.endpointKey = opts.EndpointKey

	s.startLocked(rs)
}

// startLocked starts rs's connector fiber iff one is not already running.
// Callers must hold s.mu.
func (s *Service) startLocked(rs *remoteState) {
	if rs.running() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.done = make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runConnector(ctx, rs)
	}()
}

// Disconnect interrupts key's connector fiber and removes it from the
// status map, per spec.md 4.8's disconnect.
func (s *Service) Disconnect(key string) {
	s.mu.Lock()
	rs, ok := s.remotes[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.remotes, key)
	cancel := rs.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if rs.done != nil {
		<-rs.done
	}
}

// SyncNow restarts every registered connector, forcing an immediate
// reconnection attempt, per spec.md 4.8. Concurrent callers are
// serialised by syncNowSem to prevent restart stampedes.
func (s *Service) SyncNow(ctx context.Context) error {
	select {
	case s.syncNowSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.syncNowSem }()

	s.mu.Lock()
	states := make([]*remoteState, 0, len(s.remotes))
	for _, rs := range s.remotes {
		states = append(states, rs)
	}
	s.mu.Unlock()

	for _, rs := range states {
		s.restart(rs)
	}
	return nil
}

// restart interrupts rs's current fiber, if any, and starts a fresh one.
func (s *Service) restart(rs *remoteState) {
	s.mu.Lock()
	if rs.cancel != nil {
		cancel := rs.cancel
		done := rs.done
		s.mu.Unlock()
		cancel()
		if done != nil {
			<-done
		}
		s.mu.Lock()
	}
	s.startLocked(rs)
	s.mu.Unlock()
}

// Status returns a snapshot of every registered remote's current state,
// per spec.md 4.8's status.
func (s *Service) Status() []core.RemoteStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.RemoteStatus, 0, len(s.remotes))
	for _, rs := range s.remotes {
		out = append(out, rs.status)
	}
	return out
}

// StatusStream returns a change feed of remote status transitions, per
// spec.md 4.8's statusStream. Back-pressure is dropping: a slow consumer
// misses intermediate transitions rather than blocking the connector
// fibers that publish them.
func (s *Service) StatusStream() <-chan core.RemoteStatus {
	return s.statusBus
}

// publishStatus updates rs.status under s.mu and offers the new value to
// the status bus, dropping it if the bus is full.
func (s *Service) publishStatus(rs *remoteState, mutate func(*core.RemoteStatus)) {
	s.mu.Lock()
	mutate(&rs.status)
	snapshot := rs.status
	s.mu.Unlock()

	s.statusBusMu.Lock()
	select {
	case s.statusBus <- snapshot:
	default:
	}
	s.statusBusMu.Unlock()

	if s.notifier != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.notifier.Notify(ctx, snapshot, time.UnixMilli(s.clock())); err != nil && s.logger != nil {
				s.logger.Warn("status notify failed", map[string]any{"remote_key": snapshot.Key, "error": err.Error()})
			}
		}()
	}
}

// runScheduler invokes SyncNow on a fixed delay until ctx is canceled.
func (s *Service) runScheduler(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.SyncNow(ctx)
		}
	}
}

// Shutdown interrupts every connector fiber and the scheduler, waiting
// for them to release their resources, then closes the status bus. Per
// spec.md 5's cancellation requirements, a slow transport close must not
// block shutdown indefinitely; connector fibers are expected to honour
// ctx cancellation at their next suspension point (a transport.Receive
// call) rather than blocking Shutdown forever.
func (s *Service) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancels := make([]context.CancelFunc, 0, len(s.remotes))
	for _, rs := range s.remotes {
		if rs.cancel != nil {
			cancels = append(cancels, rs.cancel)
		}
	}
	s.mu.Unlock()

	if s.schedulerCancel != nil {
		s.schedulerCancel()
	}
	for _, cancel := range cancels {
		cancel()
	}

	s.wg.Wait()

	s.statusBusMu.Lock()
	close(s.statusBus)
	s.statusBusMu.Unlock()
}
