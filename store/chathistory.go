package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pithecene-io/agentcore/config"
	"github.com/pithecene-io/agentcore/core"
	"github.com/pithecene-io/agentcore/journal"
	"github.com/pithecene-io/agentcore/kvstore"
	"github.com/pithecene-io/agentcore/log"
)

const defaultListLimit = 100

func chatMetaKey(sessionID string) string {
	return "chat-history/" + sessionID + "/meta"
}

func chatEventKey(sessionID string, sequence int64) string {
	return fmt.Sprintf("chat-history/%s/event/%d", sessionID, sequence)
}

// AppendOptions customizes a single appendMessage/appendMessages call.
type AppendOptions struct {
	Source      core.ChatSource
	TimestampMs int64 // caller-supplied; zero means the store leaves it unset
}

// ListOptions bounds a ChatHistory.List call.
type ListOptions struct {
	StartSequence int64 // 0 means from the beginning
	EndSequence   int64 // 0 means through the end
	Limit         int   // 0 uses defaultListLimit
	Reverse       bool
}

// ChatHistory is the append-and-list projection over chat events for a
// session, backed by a Journal for durability and total order and by a
// kvstore.Store for fast per-session point lookups, per spec.md 4.4.
type ChatHistory struct {
	journal   *journal.Journal
	store     kvstore.Store
	index     *SessionIndex
	retention config.ChatRetentionConfig
	enabled   bool
	logger    *log.Logger
}

// NewChatHistory constructs a ChatHistory. enabled gates writes entirely
// per spec.md 6's enabled.chatHistory option; when false, append operations
// are no-ops returning a zero-value event.
func NewChatHistory(j *journal.Journal, kv kvstore.Store, retention config.ChatRetentionConfig, enabled bool, logger *log.Logger) *ChatHistory {
	return &ChatHistory{journal: j, store: kv, index: NewSessionIndex(kv), retention: retention, enabled: enabled, logger: logger}
}

func (c *ChatHistory) loadMeta(ctx context.Context, sessionID string) (core.SessionMeta, error) {
	raw, ok, err := c.store.Get(ctx, chatMetaKey(sessionID))
	if err != nil {
		return core.SessionMeta{}, core.ToStorageError("chat-history", "get-meta", err)
	}
	if !ok {
		return core.SessionMeta{SessionID: sessionID}, nil
	}
	var meta core.SessionMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return core.SessionMeta{}, core.ToStorageError("chat-history", "decode-meta", err)
	}
	return meta, nil
}

func (c *ChatHistory) saveMeta(ctx context.Context, meta core.SessionMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return core.ToStorageError("chat-history", "encode-meta", err)
	}
	if err := c.store.Set(ctx, chatMetaKey(meta.SessionID), raw); err != nil {
		return core.ToStorageError("chat-history", "set-meta", err)
	}
	return nil
}

// AppendMessage assigns the session's next sequence, writes a chat_event
// journal entry, projects it into the fast per-session keys, and updates
// the session's meta record.
func (c *ChatHistory) AppendMessage(ctx context.Context, sessionID string, message map[string]any, opts AppendOptions) (core.ChatEvent, error) {
	if !c.enabled {
		return core.ChatEvent{}, nil
	}
	if err := core.ValidateSessionID(sessionID); err != nil {
		return core.ChatEvent{}, err
	}

	meta, err := c.loadMeta(ctx, sessionID)
	if err != nil {
		return core.ChatEvent{}, err
	}

	source := opts.Source
	if source == "" {
		source = core.ChatSourceSDK
	}
	event := core.ChatEvent{
		SessionID:   sessionID,
		Sequence:    meta.LastSequence + 1,
		TimestampMs: opts.TimestampMs,
		Source:      source,
		Message:     message,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return core.ChatEvent{}, core.ToStorageError("chat-history", "encode-event", err)
	}

	if _, err := c.journal.Append(ctx, "chat_event", event.PrimaryKey(), payload); err != nil {
		return core.ChatEvent{}, err
	}
	if err := c.store.Set(ctx, chatEventKey(sessionID, event.Sequence), payload); err != nil {
		return core.ChatEvent{}, core.ToStorageError("chat-history", "set-event", err)
	}

	if meta.CreatedAtMs == 0 {
		meta.CreatedAtMs = event.TimestampMs
		if err := c.index.Add(ctx, sessionID); err != nil {
			return core.ChatEvent{}, err
		}
	}
	meta.SessionID = sessionID
	meta.LastSequence = event.Sequence
	meta.UpdatedAtMs = event.TimestampMs
	if err := c.saveMeta(ctx, meta); err != nil {
		return core.ChatEvent{}, err
	}

	return event, nil
}

// AppendMessages appends each message in order, returning the created
// events. It stops at the first failure, returning the events appended so
// far alongside the error.
func (c *ChatHistory) AppendMessages(ctx context.Context, sessionID string, messages []map[string]any, opts AppendOptions) ([]core.ChatEvent, error) {
	events := make([]core.ChatEvent, 0, len(messages))
	for _, m := range messages {
		event, err := c.AppendMessage(ctx, sessionID, m, opts)
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
	return events, nil
}

// List returns the session's events in [startSequence, endSequence] order,
// clamped to [1, lastSequence], honoring Limit and Reverse.
func (c *ChatHistory) List(ctx context.Context, sessionID string, opts ListOptions) ([]core.ChatEvent, error) {
	meta, err := c.loadMeta(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if meta.LastSequence == 0 {
		return nil, nil
	}

	start := opts.StartSequence
	if start < 1 {
		start = 1
	}
	end := opts.EndSequence
	if end <= 0 || end > meta.LastSequence {
		end = meta.LastSequence
	}
	if start > end {
		return nil, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	if opts.Reverse {
		// Take the latest `limit` sequences within [start, end].
		windowStart := end - int64(limit) + 1
		if windowStart < start {
			windowStart = start
		}
		events, err := c.fetchRange(ctx, sessionID, windowStart, end)
		if err != nil {
			return nil, err
		}
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
		return events, nil
	}

	windowEnd := start + int64(limit) - 1
	if windowEnd > end {
		windowEnd = end
	}
	return c.fetchRange(ctx, sessionID, start, windowEnd)
}

func (c *ChatHistory) fetchRange(ctx context.Context, sessionID string, start, end int64) ([]core.ChatEvent, error) {
	events := make([]core.ChatEvent, 0, end-start+1)
	for seq := start; seq <= end; seq++ {
		raw, ok, err := c.store.Get(ctx, chatEventKey(sessionID, seq))
		if err != nil {
			return nil, core.ToStorageError("chat-history", "get-event", err)
		}
		if !ok {
			if c.logger != nil {
				c.logger.Warn("missing chat event within retained range", map[string]any{"sessionId": sessionID, "sequence": seq})
			}
			continue
		}
		var event core.ChatEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, core.ToStorageError("chat-history", "decode-event", err)
		}
		events = append(events, event)
	}
	return events, nil
}

// Stream is the lazy variant of List: it fetches eagerly but delivers
// incrementally over a channel, closed once the range is exhausted or ctx
// is canceled.
func (c *ChatHistory) Stream(ctx context.Context, sessionID string, opts ListOptions) (<-chan core.ChatEvent, error) {
	events, err := c.List(ctx, sessionID, opts)
	if err != nil {
		return nil, err
	}

	out := make(chan core.ChatEvent)
	go func() {
		defer close(out)
		for _, e := range events {
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Purge removes every event and the meta record for a session, and drops
// it from the session index.
func (c *ChatHistory) Purge(ctx context.Context, sessionID string) error {
	meta, err := c.loadMeta(ctx, sessionID)
	if err != nil {
		return err
	}
	for seq := int64(1); seq <= meta.LastSequence; seq++ {
		if err := c.store.Remove(ctx, chatEventKey(sessionID, seq)); err != nil {
			return core.ToStorageError("chat-history", "remove-event", err)
		}
	}
	if err := c.store.Remove(ctx, chatMetaKey(sessionID)); err != nil {
		return core.ToStorageError("chat-history", "remove-meta", err)
	}
	return c.index.Remove(ctx, sessionID)
}

// Cleanup enumerates known sessions and applies chat retention
// (maxEvents, maxAge), removing the oldest violators. lastSequence is left
// as the highest retained sequence, which — since retention only ever
// drops the oldest entries — is unchanged from before cleanup ran.
func (c *ChatHistory) Cleanup(ctx context.Context, nowMs int64) error {
	sessions, err := c.index.List(ctx)
	if err != nil {
		return err
	}
	for _, sessionID := range sessions {
		if err := c.cleanupSession(ctx, sessionID, nowMs); err != nil {
			return err
		}
	}
	return nil
}

func (c *ChatHistory) cleanupSession(ctx context.Context, sessionID string, nowMs int64) error {
	meta, err := c.loadMeta(ctx, sessionID)
	if err != nil {
		return err
	}
	if meta.LastSequence == 0 {
		return nil
	}

	cutoffBySequence := int64(1)
	if c.retention.MaxEvents > 0 && meta.LastSequence > int64(c.retention.MaxEvents) {
		cutoffBySequence = meta.LastSequence - int64(c.retention.MaxEvents) + 1
	}

	for seq := int64(1); seq < cutoffBySequence; seq++ {
		if err := c.store.Remove(ctx, chatEventKey(sessionID, seq)); err != nil {
			return core.ToStorageError("chat-history", "remove-event", err)
		}
	}

	if c.retention.MaxAge.Duration > 0 {
		maxAgeMs := c.retention.MaxAge.Milliseconds()
		for seq := cutoffBySequence; seq <= meta.LastSequence; seq++ {
			raw, ok, err := c.store.Get(ctx, chatEventKey(sessionID, seq))
			if err != nil {
				return core.ToStorageError("chat-history", "get-event", err)
			}
			if !ok {
				continue
			}
			var event core.ChatEvent
			if err := json.Unmarshal(raw, &event); err != nil {
				return core.ToStorageError("chat-history", "decode-event", err)
			}
			if nowMs-event.TimestampMs > maxAgeMs {
				if err := c.store.Remove(ctx, chatEventKey(sessionID, seq)); err != nil {
					return core.ToStorageError("chat-history", "remove-event", err)
				}
			}
		}
	}

	return nil
}
