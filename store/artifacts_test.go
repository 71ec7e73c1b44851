package store

import (
	"context"
	"testing"

	"github.com/pithecene-io/agentcore/config"
	"github.com/pithecene-io/agentcore/core"
	"github.com/pithecene-io/agentcore/journal"
	"github.com/pithecene-io/agentcore/kvstore"
)

func newTestArtifacts(t *testing.T, retention config.ArtifactRetentionConfig) *Artifacts {
	t.Helper()
	ctx := context.Background()
	kv := kvstore.NewMemory()
	j, err := journal.Open(ctx, kv, "artifacts")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	return NewArtifacts(j, kv, retention, true, nil)
}

func TestArtifacts_PutAndGet(t *testing.T) {
	ctx := context.Background()
	a := newTestArtifacts(t, config.ArtifactRetentionConfig{})

	rec := core.ArtifactRecord{ID: "a1", SessionID: "s1", Kind: "text", Content: []byte("hello"), CreatedAtMs: 10}
	if err := a.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := a.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || string(got.Content) != "hello" {
		t.Fatalf("expected record present with content hello, got %+v ok=%v", got, ok)
	}
}

func TestArtifacts_List_InsertionOrder(t *testing.T) {
	ctx := context.Background()
	a := newTestArtifacts(t, config.ArtifactRetentionConfig{})

	for i := 0; i < 3; i++ {
		rec := core.ArtifactRecord{ID: string(rune('a' + i)), SessionID: "s1", CreatedAtMs: int64(i)}
		if err := a.Put(ctx, rec); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	list, err := a.List(ctx, "s1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 records, got %d", len(list))
	}
	if list[0].ID != "a" || list[2].ID != "c" {
		t.Fatalf("expected insertion order [a,b,c], got %v", list)
	}
}

func TestArtifacts_List_OffsetAndLimit(t *testing.T) {
	ctx := context.Background()
	a := newTestArtifacts(t, config.ArtifactRetentionConfig{})

	for i := 0; i < 5; i++ {
		rec := core.ArtifactRecord{ID: string(rune('a' + i)), SessionID: "s1", CreatedAtMs: int64(i)}
		if err := a.Put(ctx, rec); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	list, err := a.List(ctx, "s1", 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "b" || list[1].ID != "c" {
		t.Fatalf("expected [b,c], got %v", list)
	}
}

func TestArtifacts_Delete(t *testing.T) {
	ctx := context.Background()
	a := newTestArtifacts(t, config.ArtifactRetentionConfig{})

	rec := core.ArtifactRecord{ID: "a1", SessionID: "s1", CreatedAtMs: 1}
	if err := a.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := a.Delete(ctx, "a1", 100); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, ok, err := a.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected record to be gone after delete")
	}

	list, err := a.List(ctx, "s1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no records listed after delete, got %d", len(list))
	}
}

func TestArtifacts_DeleteAbsent_IsNoop(t *testing.T) {
	ctx := context.Background()
	a := newTestArtifacts(t, config.ArtifactRetentionConfig{})

	if err := a.Delete(ctx, "missing", 1); err != nil {
		t.Fatalf("expected no error deleting an absent artifact, got %v", err)
	}
}

func TestArtifacts_PurgeSession(t *testing.T) {
	ctx := context.Background()
	a := newTestArtifacts(t, config.ArtifactRetentionConfig{})

	for i := 0; i < 3; i++ {
		rec := core.ArtifactRecord{ID: string(rune('a' + i)), SessionID: "s1", CreatedAtMs: int64(i)}
		if err := a.Put(ctx, rec); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	if err := a.PurgeSession(ctx, "s1"); err != nil {
		t.Fatalf("purge session: %v", err)
	}

	list, err := a.List(ctx, "s1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list after purge, got %d", len(list))
	}

	sessions, err := a.index.List(ctx)
	if err != nil {
		t.Fatalf("index list: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected session removed from index, got %v", sessions)
	}
}

func TestArtifacts_Retention_MaxArtifacts(t *testing.T) {
	ctx := context.Background()
	a := newTestArtifacts(t, config.ArtifactRetentionConfig{MaxArtifacts: 2})

	for i := 0; i < 4; i++ {
		rec := core.ArtifactRecord{ID: string(rune('a' + i)), SessionID: "s1", CreatedAtMs: int64(i)}
		if err := a.Put(ctx, rec); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	list, err := a.List(ctx, "s1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 records retained, got %d", len(list))
	}
	if list[0].ID != "c" || list[1].ID != "d" {
		t.Fatalf("expected newest two [c,d] retained, got %v", list)
	}
}

func TestArtifacts_Retention_MaxArtifactBytes(t *testing.T) {
	ctx := context.Background()
	a := newTestArtifacts(t, config.ArtifactRetentionConfig{MaxArtifactBytes: 10})

	if err := a.Put(ctx, core.ArtifactRecord{ID: "a", SessionID: "s1", CreatedAtMs: 1, Content: []byte("1234567890")}); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if err := a.Put(ctx, core.ArtifactRecord{ID: "b", SessionID: "s1", CreatedAtMs: 2, Content: []byte("1234567890")}); err != nil {
		t.Fatalf("put b: %v", err)
	}

	list, err := a.List(ctx, "s1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "b" {
		t.Fatalf("expected only newest artifact b retained under the byte bound, got %v", list)
	}
}

func TestArtifacts_Cleanup_MaxAge(t *testing.T) {
	ctx := context.Background()
	a := newTestArtifacts(t, config.ArtifactRetentionConfig{MaxAge: config.Duration{Duration: 50 * 1_000_000}})

	if err := a.Put(ctx, core.ArtifactRecord{ID: "old", SessionID: "s1", CreatedAtMs: 0}); err != nil {
		t.Fatalf("put old: %v", err)
	}
	if err := a.Put(ctx, core.ArtifactRecord{ID: "new", SessionID: "s1", CreatedAtMs: 90}); err != nil {
		t.Fatalf("put new: %v", err)
	}

	if err := a.Cleanup(ctx, 100); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	list, err := a.List(ctx, "s1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "new" {
		t.Fatalf("expected only the recent artifact retained, got %v", list)
	}
}

func TestArtifacts_Disabled_IsNoop(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	j, err := journal.Open(ctx, kv, "artifacts")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	a := NewArtifacts(j, kv, config.ArtifactRetentionConfig{}, false, nil)

	if err := a.Put(ctx, core.ArtifactRecord{ID: "a1", SessionID: "s1"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	_, ok, err := a.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected no record stored when disabled")
	}
}
