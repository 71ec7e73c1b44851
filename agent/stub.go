package agent

import (
	"context"
	"sync"
)

// StubBackend is a test double that produces configurable handles. It
// simulates a real backend closely enough to exercise the supervisor's
// admission and lifecycle paths without depending on any real agent
// client, mirroring the runtime package's mockExecutor.
type StubBackend struct {
	mu         sync.Mutex
	StartErr   error
	Messages   []Message
	started    int
	lastOpts   Options
	lastHandle *StubHandle
}

// NewStubBackend creates a StubBackend that, once started, delivers
// messages in order and then closes its stream.
func NewStubBackend(messages ...Message) *StubBackend {
	return &StubBackend{Messages: messages}
}

func (b *StubBackend) Start(_ context.Context, _ any, options Options) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.StartErr != nil {
		return nil, b.StartErr
	}
	b.started++
	b.lastOpts = options

	h := newStubHandle(b.Messages)
	b.lastHandle = h
	return h, nil
}

// StartCount returns how many times Start has succeeded.
func (b *StubBackend) StartCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

// LastHandle returns the most recently created handle, or nil if Start
// has never been called.
func (b *StubBackend) LastHandle() *StubHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastHandle
}

// StubHandle is the Handle StubBackend hands back. It replays a fixed
// message list on Messages() and tracks which control actions were
// invoked, for assertions in supervisor tests.
type StubHandle struct {
	mu           sync.Mutex
	ch           chan Message
	closedInput  bool
	interrupted  bool
	blockRelease chan struct{}
}

func newStubHandle(messages []Message) *StubHandle {
	h := &StubHandle{
		ch:           make(chan Message, len(messages)),
		blockRelease: make(chan struct{}),
	}
	for _, m := range messages {
		h.ch <- m
	}
	close(h.ch)
	return h
}

// Messages implements Handle.
func (h *StubHandle) Messages() <-chan Message {
	return h.ch
}

// CloseInput implements Handle.
func (h *StubHandle) CloseInput(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closedInput = true
	return nil
}

// Interrupt implements Handle.
func (h *StubHandle) Interrupt(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interrupted = true
	return nil
}

// ClosedInput reports whether CloseInput was invoked.
func (h *StubHandle) ClosedInput() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closedInput
}

// Interrupted reports whether Interrupt was invoked.
func (h *StubHandle) Interrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}

// SetPermissionMode implements Handle; unsupported by the stub.
func (h *StubHandle) SetPermissionMode(context.Context, PermissionMode) error {
	return &NotSupported{Operation: "setPermissionMode"}
}

// SetModel implements Handle; unsupported by the stub.
func (h *StubHandle) SetModel(context.Context, string) error {
	return &NotSupported{Operation: "setModel"}
}

// SetMaxThinkingTokens implements Handle; unsupported by the stub.
func (h *StubHandle) SetMaxThinkingTokens(context.Context, int) error {
	return &NotSupported{Operation: "setMaxThinkingTokens"}
}

// RewindFiles implements Handle; unsupported by the stub.
func (h *StubHandle) RewindFiles(context.Context, []string) error {
	return &NotSupported{Operation: "rewindFiles"}
}

// SupportedCommands implements Handle.
func (h *StubHandle) SupportedCommands(context.Context) ([]string, error) {
	return nil, nil
}

// SupportedModels implements Handle.
func (h *StubHandle) SupportedModels(context.Context) ([]string, error) {
	return nil, nil
}

// McpServerStatus implements Handle.
func (h *StubHandle) McpServerStatus(context.Context) ([]McpServerStatus, error) {
	return nil, nil
}

// AccountInfo implements Handle.
func (h *StubHandle) AccountInfo(context.Context) (AccountInfo, error) {
	return AccountInfo{}, nil
}

var _ Backend = (*StubBackend)(nil)
var _ Handle = (*StubHandle)(nil)
