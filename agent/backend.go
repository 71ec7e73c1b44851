// Package agent defines the contract the Query Supervisor consumes to
// start and control an agent query, without depending on any concrete
// agent/LLM client. The actual backend (the thing that executes a
// prompt) is external and injected by the caller, per spec.md's
// "Backend agent contract".
package agent

import (
	"context"
	"fmt"
)

// Message is one item on a Handle's message stream. Its shape is opaque
// to the supervisor; callers and backends agree on the keys out of band.
type Message map[string]any

// Options customizes a single Start call (model, permission mode, tool
// configuration, and any other backend-specific knob).
type Options map[string]any

// PermissionMode controls how a running query handles actions that would
// normally require approval.
type PermissionMode string

// AccountInfo is the read-only identity of the account a backend is
// authenticated as.
type AccountInfo struct {
	AccountID string
	Email     string
	PlanTier  string
}

// McpServerStatus reports one MCP server's connection state as seen by
// the backend.
type McpServerStatus struct {
	Name      string
	Connected bool
	Error     string
}

// NotSupported is returned by a Handle control or query an implementation
// does not support. The supervisor does not treat this as an admission or
// backend failure; it is surfaced to the caller as-is.
type NotSupported struct {
	Operation string
}

func (e *NotSupported) Error() string {
	return fmt.Sprintf("agent: %s not supported by this backend", e.Operation)
}

// Handle is a running agent query: a message stream plus control and
// read-only query actions. All methods are safe to call concurrently with
// stream delivery.
type Handle interface {
	// Messages returns the query's message stream. It is closed once the
	// query terminates, whether by completion, interruption, or error.
	Messages() <-chan Message

	// CloseInput signals that no further user messages will be sent on
	// this handle's input, without interrupting work already in flight.
	CloseInput(ctx context.Context) error

	// Interrupt requests the query stop as soon as possible. Best-effort:
	// the message stream may still emit a handful of in-flight messages
	// before closing.
	Interrupt(ctx context.Context) error

	// SetPermissionMode changes how the running query handles actions
	// requiring approval. Returns *NotSupported if the backend cannot
	// change this mid-query.
	SetPermissionMode(ctx context.Context, mode PermissionMode) error

	// SetModel switches the model a running query uses. Returns
	// *NotSupported if the backend cannot change this mid-query.
	SetModel(ctx context.Context, model string) error

	// SetMaxThinkingTokens bounds the model's thinking budget for
	// subsequent turns. Returns *NotSupported if unsupported.
	SetMaxThinkingTokens(ctx context.Context, tokens int) error

	// RewindFiles restores the named files to their state as of a prior
	// checkpoint known to the backend. Returns *NotSupported if the
	// backend does not support file rewinding.
	RewindFiles(ctx context.Context, paths []string) error

	// SupportedCommands lists the slash-style commands this query
	// accepts, if the backend exposes such a concept.
	SupportedCommands(ctx context.Context) ([]string, error)

	// SupportedModels lists the models this query could switch to.
	SupportedModels(ctx context.Context) ([]string, error)

	// McpServerStatus reports the connection state of every MCP server
	// configured for this query.
	McpServerStatus(ctx context.Context) ([]McpServerStatus, error)

	// AccountInfo reports the identity the backend is authenticated as.
	AccountInfo(ctx context.Context) (AccountInfo, error)
}

// Backend starts agent queries. A prompt is either a plain string or an
// async sequence of user messages; callers that need the latter pass a
// Message channel as prompt and a backend that supports streaming input
// is expected to type-assert it.
type Backend interface {
	Start(ctx context.Context, prompt any, options Options) (Handle, error)
}

// Factory creates a Backend. Used for test injection, mirroring how a
// single RunConfig can swap in a fake executor.
type Factory func() Backend
