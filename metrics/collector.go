// Package metrics provides process-lifetime metrics collection for the
// Query Supervisor, journal, and Sync Service.
//
// The Collector accumulates counters and a query-duration histogram. It is
// a leaf package with no internal dependencies, thread-safe via
// sync.Mutex, with every method nil-receiver safe so a Collector can be
// wired in optionally without call sites needing a nil check first.
package metrics

import "sync"

// DurationBucketBoundsMs are the histogram bucket upper bounds (inclusive,
// milliseconds) for query_duration_ms, per spec.md 4.6.
var DurationBucketBoundsMs = [...]float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000}

// Snapshot is an immutable point-in-time view of all tracked metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Query Supervisor
	QueriesStarted   int64
	QueriesCompleted int64
	QueriesFailed    int64

	// query_duration_ms histogram: BucketCounts[i] counts samples <=
	// DurationBucketBoundsMs[i]; Overflow counts samples exceeding the
	// last bound.
	DurationBucketCounts [len(DurationBucketBoundsMs)]int64
	DurationOverflow     int64
	DurationSum          float64
	DurationCount        int64

	// Journal
	JournalAppends    int64
	JournalWriteFails int64
	CompactionRuns    int64

	// Sync Service
	SyncAttempts int64
	SyncFailures int64

	// Dimensions (informational, set at construction)
	Component string
	InstanceID string
}

// Collector accumulates metrics over the lifetime of a supervisor process.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	queriesStarted   int64
	queriesCompleted int64
	queriesFailed    int64

	durationBuckets [len(DurationBucketBoundsMs)]int64
	durationOverflow int64
	durationSum      float64
	durationCount    int64

	journalAppends    int64
	journalWriteFails int64
	compactionRuns    int64

	syncAttempts int64
	syncFailures int64

	component  string
	instanceID string
}

// NewCollector creates a Collector with dimension labels identifying the
// owning component and instance (e.g. "supervisor", "agent-core-1").
func NewCollector(component, instanceID string) *Collector {
	return &Collector{component: component, instanceID: instanceID}
}

// --- Query Supervisor ---

// IncQueriesStarted records a query admitted and started against the backend.
func (c *Collector) IncQueriesStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.queriesStarted++
	c.mu.Unlock()
}

// IncQueriesCompleted records a query reaching any terminal state.
func (c *Collector) IncQueriesCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.queriesCompleted++
	c.mu.Unlock()
}

// IncQueriesFailed records an admission failure (backend Start error).
func (c *Collector) IncQueriesFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.queriesFailed++
	c.mu.Unlock()
}

// ObserveQueryDurationMs records one query's wall-clock duration into the
// query_duration_ms histogram.
func (c *Collector) ObserveQueryDurationMs(durationMs float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.durationSum += durationMs
	c.durationCount++
	for i, bound := range DurationBucketBoundsMs {
		if durationMs <= bound {
			c.durationBuckets[i]++
			return
		}
	}
	c.durationOverflow++
}

// --- Journal ---

// IncJournalAppend records a successful journal append.
func (c *Collector) IncJournalAppend() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.journalAppends++
	c.mu.Unlock()
}

// IncJournalWriteFailure records a failed journal append or persistence write.
func (c *Collector) IncJournalWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.journalWriteFails++
	c.mu.Unlock()
}

// IncCompactionRun records one completed compaction pass.
func (c *Collector) IncCompactionRun() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.compactionRuns++
	c.mu.Unlock()
}

// --- Sync Service ---

// IncSyncAttempt records one sync round attempted against a remote.
func (c *Collector) IncSyncAttempt() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.syncAttempts++
	c.mu.Unlock()
}

// IncSyncFailure records one connector run that ended in a failure of any
// kind (dial, transport, or journal apply).
func (c *Collector) IncSyncFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.syncFailures++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics. The
// returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		QueriesStarted:   c.queriesStarted,
		QueriesCompleted: c.queriesCompleted,
		QueriesFailed:    c.queriesFailed,

		DurationOverflow: c.durationOverflow,
		DurationSum:      c.durationSum,
		DurationCount:    c.durationCount,

		JournalAppends:    c.journalAppends,
		JournalWriteFails: c.journalWriteFails,
		CompactionRuns:    c.compactionRuns,

		SyncAttempts: c.syncAttempts,
		SyncFailures: c.syncFailures,

		Component:  c.component,
		InstanceID: c.instanceID,
	}
	s.DurationBucketCounts = c.durationBuckets
	return s
}
