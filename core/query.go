package core

// QueryState is a query's position in the lifecycle
// Queued -> Running -> Completed(success|failure|interrupted), with
// StartFailed replacing Running when admission itself errors.
type QueryState string

// QueryState values per spec.md 4.6.
const (
	QueryStateQueued      QueryState = "queued"
	QueryStateRunning     QueryState = "running"
	QueryStateStartFailed QueryState = "start_failed"
	QueryStateCompleted   QueryState = "completed"
)

// CompletionStatus classifies how a Completed query ended.
type CompletionStatus string

// CompletionStatus values per spec.md 4.6.
const (
	CompletionSuccess     CompletionStatus = "success"
	CompletionFailure     CompletionStatus = "failure"
	CompletionInterrupted CompletionStatus = "interrupted"
)

// QueryEventKind discriminates the supervisor's event bus messages.
type QueryEventKind string

// QueryEventKind values per spec.md 4.6.
const (
	EventQueryQueued      QueryEventKind = "query_queued"
	EventQueryStarted     QueryEventKind = "query_started"
	EventQueryCompleted   QueryEventKind = "query_completed"
	EventQueryStartFailed QueryEventKind = "query_start_failed"
)

// QueryEvent is one entry on the supervisor's multicast event bus. At most
// one of the optional fields is populated depending on Kind: Status for
// Completed, ErrorTag for StartFailed, neither for Queued and Started.
type QueryEvent struct {
	Kind        QueryEventKind
	QueryID     string
	TimestampMs int64

	// Completed-only.
	Status CompletionStatus
	// StartFailed-only.
	ErrorTag string
}

// PendingRequest is a query submission waiting for a supervisor slot.
type PendingRequest struct {
	QueryID       string
	Prompt        string
	Options       map[string]any
	SubmittedAtMs int64
}

// ActiveQuery is a query currently occupying a supervisor slot.
type ActiveQuery struct {
	QueryID     string
	StartedAtMs int64
}
