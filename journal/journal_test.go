package journal

import (
	"context"
	"testing"

	"github.com/pithecene-io/agentcore/core"
	"github.com/pithecene-io/agentcore/journal/compaction"
	"github.com/pithecene-io/agentcore/journal/conflict"
	"github.com/pithecene-io/agentcore/kvstore"
)

func TestAppend_StrictlyIncreasingIds(t *testing.T) {
	ctx := context.Background()
	j, err := Open(ctx, kvstore.NewMemory(), "chat")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	e1, err := j.Append(ctx, "chat_event", "s1:1", []byte("hello"))
	if err != nil {
		t.Fatalf("append 1: %v", err)
	}
	e2, err := j.Append(ctx, "chat_event", "s1:2", []byte("world"))
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if e2.ID <= e1.ID {
		t.Fatalf("expected strictly increasing ids, got %v then %v", e1.ID, e2.ID)
	}
}

func TestAppend_OverwritesCurrentForSamePrimaryKey(t *testing.T) {
	ctx := context.Background()
	j, _ := Open(ctx, kvstore.NewMemory(), "artifacts")

	_, err := j.Append(ctx, "artifact", "s1:a1", []byte("v1"))
	if err != nil {
		t.Fatalf("append v1: %v", err)
	}
	second, err := j.Append(ctx, "artifact", "s1:a1", []byte("v2"))
	if err != nil {
		t.Fatalf("append v2: %v", err)
	}

	got, ok := j.Get("s1:a1")
	if !ok || string(got.Payload) != "v2" {
		t.Fatalf("expected current entry to be the latest append, got %+v ok=%v", got, ok)
	}
	if got.ID != second.ID {
		t.Fatalf("expected index to point at the second append's id")
	}
}

func TestEntriesSince(t *testing.T) {
	ctx := context.Background()
	j, _ := Open(ctx, kvstore.NewMemory(), "chat")

	e1, _ := j.Append(ctx, "chat_event", "s1:1", []byte("a"))
	_, _ = j.Append(ctx, "chat_event", "s1:2", []byte("b"))
	e3, _ := j.Append(ctx, "chat_event", "s1:3", []byte("c"))

	got := j.EntriesSince("remote-a", e1.ID)
	if len(got) != 2 || got[len(got)-1].ID != e3.ID {
		t.Fatalf("expected 2 entries after e1, got %d: %+v", len(got), got)
	}
}

func TestWriteFromRemote_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	j, _ := Open(ctx, kvstore.NewMemory(), "chat", WithConflictPolicy(conflict.LastWriteWins()))

	local, err := j.Append(ctx, "chat_event", "s1:1", []byte("local"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	err = j.WriteFromRemote(ctx, "remote-a", []core.RemoteEntry{
		{Sequence: 1, Tag: "chat_event", PrimaryKey: "s1:1", Payload: []byte("from-remote")},
	})
	if err != nil {
		t.Fatalf("write from remote: %v", err)
	}

	got, ok := j.Get("s1:1")
	if !ok {
		t.Fatal("expected entry present")
	}
	// LastWriteWins compares ids; the remote entry was allocated a fresh,
	// larger local id, so it must win over the earlier local append.
	if string(got.Payload) != "from-remote" {
		t.Fatalf("expected remote entry to win (larger id), got %q", got.Payload)
	}
	if got.ID <= local.ID {
		t.Fatal("expected the winning entry's id to be larger than the original local append")
	}

	cursor, ok := j.RemoteStatusCursor("remote-a")
	if !ok || cursor.NextSequence != 2 {
		t.Fatalf("expected nextSequence=2, got %+v ok=%v", cursor, ok)
	}
}

func TestWriteFromRemote_RejectAbortsBatch(t *testing.T) {
	ctx := context.Background()
	j, _ := Open(ctx, kvstore.NewMemory(), "chat", WithConflictPolicy(conflict.Reject()))

	_, _ = j.Append(ctx, "chat_event", "s1:1", []byte("local"))

	err := j.WriteFromRemote(ctx, "remote-a", []core.RemoteEntry{
		{Sequence: 1, Tag: "chat_event", PrimaryKey: "s1:1", Payload: []byte("conflicting")},
	})
	if err == nil {
		t.Fatal("expected an error from the reject policy")
	}

	got, _ := j.Get("s1:1")
	if string(got.Payload) != "local" {
		t.Fatalf("expected the local entry to remain current, got %q", got.Payload)
	}
}

func TestAcknowledgeAndUncommittedFor(t *testing.T) {
	ctx := context.Background()
	j, _ := Open(ctx, kvstore.NewMemory(), "chat")

	e1, _ := j.Append(ctx, "chat_event", "s1:1", []byte("a"))
	e2, _ := j.Append(ctx, "chat_event", "s1:2", []byte("b"))

	uncommitted := j.UncommittedFor("remote-a")
	if len(uncommitted) != 2 {
		t.Fatalf("expected both entries uncommitted before any ack, got %d", len(uncommitted))
	}

	if err := j.Acknowledge(ctx, "remote-a", e1.ID); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	uncommitted = j.UncommittedFor("remote-a")
	if len(uncommitted) != 1 || uncommitted[0].ID != e2.ID {
		t.Fatalf("expected only e2 uncommitted after acking e1, got %+v", uncommitted)
	}
}

func TestCompact_ByCount(t *testing.T) {
	ctx := context.Background()
	j, _ := Open(ctx, kvstore.NewMemory(), "chat")

	for i := 1; i <= 5; i++ {
		if _, err := j.Append(ctx, "chat_event", "s1:"+string(rune('0'+i)), []byte("x")); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	j.RegisterCompaction([]core.EventTag{"chat_event"}, compaction.ByCount(2))
	if err := j.Compact(ctx, 0); err != nil {
		t.Fatalf("compact: %v", err)
	}

	snapshot := j.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 entries retained after compaction, got %d", len(snapshot))
	}
}

func TestOpen_ReplaysPersistedState(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()

	j1, _ := Open(ctx, store, "chat")
	e1, err := j1.Append(ctx, "chat_event", "s1:1", []byte("hello"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	j2, err := Open(ctx, store, "chat")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	got, ok := j2.Get("s1:1")
	if !ok || string(got.Payload) != "hello" || got.ID != e1.ID {
		t.Fatalf("expected replayed entry to match, got %+v ok=%v", got, ok)
	}

	e2, err := j2.Append(ctx, "chat_event", "s1:2", []byte("world"))
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if e2.ID <= e1.ID {
		t.Fatal("expected ids to remain strictly increasing across a reopen")
	}
}
