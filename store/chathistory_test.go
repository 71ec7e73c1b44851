package store

import (
	"context"
	"testing"

	"github.com/pithecene-io/agentcore/config"
	"github.com/pithecene-io/agentcore/journal"
	"github.com/pithecene-io/agentcore/kvstore"
)

func newTestChatHistory(t *testing.T, retention config.ChatRetentionConfig) *ChatHistory {
	t.Helper()
	ctx := context.Background()
	kv := kvstore.NewMemory()
	j, err := journal.Open(ctx, kv, "chat")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	return NewChatHistory(j, kv, retention, true, nil)
}

func TestChatHistory_AppendMessage_AssignsSequentialSequences(t *testing.T) {
	ctx := context.Background()
	c := newTestChatHistory(t, config.ChatRetentionConfig{})

	e1, err := c.AppendMessage(ctx, "s1", map[string]any{"text": "hi"}, AppendOptions{TimestampMs: 100})
	if err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if e1.Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", e1.Sequence)
	}

	e2, err := c.AppendMessage(ctx, "s1", map[string]any{"text": "there"}, AppendOptions{TimestampMs: 200})
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if e2.Sequence != 2 {
		t.Fatalf("expected sequence 2, got %d", e2.Sequence)
	}
}

func TestChatHistory_AppendMessages_ReturnsEveryEvent(t *testing.T) {
	ctx := context.Background()
	c := newTestChatHistory(t, config.ChatRetentionConfig{})

	events, err := c.AppendMessages(ctx, "s1", []map[string]any{
		{"text": "a"},
		{"text": "b"},
	}, AppendOptions{TimestampMs: 1})
	if err != nil {
		t.Fatalf("append messages: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestChatHistory_List_Forward(t *testing.T) {
	ctx := context.Background()
	c := newTestChatHistory(t, config.ChatRetentionConfig{})

	for i := 0; i < 5; i++ {
		if _, err := c.AppendMessage(ctx, "s1", map[string]any{"i": i}, AppendOptions{TimestampMs: int64(i)}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	events, err := c.List(ctx, "s1", ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	for i, e := range events {
		if e.Sequence != int64(i+1) {
			t.Fatalf("expected sequence %d at index %d, got %d", i+1, i, e.Sequence)
		}
	}
}

func TestChatHistory_List_Reverse(t *testing.T) {
	ctx := context.Background()
	c := newTestChatHistory(t, config.ChatRetentionConfig{})

	for i := 0; i < 5; i++ {
		if _, err := c.AppendMessage(ctx, "s1", map[string]any{"i": i}, AppendOptions{TimestampMs: int64(i)}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	events, err := c.List(ctx, "s1", ListOptions{Reverse: true, Limit: 2})
	if err != nil {
		t.Fatalf("list reverse: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Sequence != 5 || events[1].Sequence != 4 {
		t.Fatalf("expected [5,4], got [%d,%d]", events[0].Sequence, events[1].Sequence)
	}
}

func TestChatHistory_Stream(t *testing.T) {
	ctx := context.Background()
	c := newTestChatHistory(t, config.ChatRetentionConfig{})

	for i := 0; i < 3; i++ {
		if _, err := c.AppendMessage(ctx, "s1", map[string]any{"i": i}, AppendOptions{TimestampMs: int64(i)}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	ch, err := c.Stream(ctx, "s1", ListOptions{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	count := 0
	for range ch {
		count++
	}
	if count != 3 {
		t.Fatalf("expected 3 streamed events, got %d", count)
	}
}

func TestChatHistory_Purge(t *testing.T) {
	ctx := context.Background()
	c := newTestChatHistory(t, config.ChatRetentionConfig{})

	if _, err := c.AppendMessage(ctx, "s1", map[string]any{"i": 0}, AppendOptions{TimestampMs: 1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := c.Purge(ctx, "s1"); err != nil {
		t.Fatalf("purge: %v", err)
	}

	events, err := c.List(ctx, "s1", ListOptions{})
	if err != nil {
		t.Fatalf("list after purge: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events after purge, got %d", len(events))
	}

	sessions, err := c.index.List(ctx)
	if err != nil {
		t.Fatalf("index list: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected session removed from index, got %v", sessions)
	}
}

func TestChatHistory_Cleanup_MaxEvents(t *testing.T) {
	ctx := context.Background()
	c := newTestChatHistory(t, config.ChatRetentionConfig{MaxEvents: 2})

	for i := 0; i < 5; i++ {
		if _, err := c.AppendMessage(ctx, "s1", map[string]any{"i": i}, AppendOptions{TimestampMs: int64(i)}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	if err := c.Cleanup(ctx, 100); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	events, err := c.List(ctx, "s1", ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events retained, got %d", len(events))
	}
	if events[0].Sequence != 4 || events[1].Sequence != 5 {
		t.Fatalf("expected sequences [4,5] retained, got [%d,%d]", events[0].Sequence, events[1].Sequence)
	}
}

func TestChatHistory_Cleanup_MaxAge(t *testing.T) {
	ctx := context.Background()
	c := newTestChatHistory(t, config.ChatRetentionConfig{MaxAge: config.Duration{Duration: 50 * 1_000_000}})

	if _, err := c.AppendMessage(ctx, "s1", map[string]any{"i": 0}, AppendOptions{TimestampMs: 0}); err != nil {
		t.Fatalf("append old: %v", err)
	}
	if _, err := c.AppendMessage(ctx, "s1", map[string]any{"i": 1}, AppendOptions{TimestampMs: 90}); err != nil {
		t.Fatalf("append new: %v", err)
	}

	if err := c.Cleanup(ctx, 100); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	events, err := c.List(ctx, "s1", ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0].Sequence != 2 {
		t.Fatalf("expected only the recent event retained, got %+v", events)
	}
}

func TestChatHistory_Disabled_IsNoop(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	j, err := journal.Open(ctx, kv, "chat")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	c := NewChatHistory(j, kv, config.ChatRetentionConfig{}, false, nil)

	event, err := c.AppendMessage(ctx, "s1", map[string]any{"i": 0}, AppendOptions{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if event.SessionID != "" {
		t.Fatalf("expected zero-value event when disabled, got %+v", event)
	}
}
