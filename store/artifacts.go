package store

import (
	"context"
	"encoding/json"

	"github.com/pithecene-io/agentcore/config"
	"github.com/pithecene-io/agentcore/core"
	"github.com/pithecene-io/agentcore/journal"
	"github.com/pithecene-io/agentcore/kvstore"
	"github.com/pithecene-io/agentcore/log"
)

func artifactByIDKey(id string) string {
	return "artifacts/by-id/" + id
}

func artifactBySessionKey(sessionID string) string {
	return "artifacts/by-session/" + sessionID
}

// artifactSlot is the by-id value shape: exactly one of Record/Tombstone is
// set, discriminating a live artifact from a deleted one.
type artifactSlot struct {
	Record    *core.ArtifactRecord    `json:"record,omitempty"`
	Tombstone *core.ArtifactTombstone `json:"tombstone,omitempty"`
}

type sessionArtifactIndex struct {
	IDs []string `json:"ids"`
}

// Artifacts is the put/get/list/delete projection over artifact records,
// backed by a Journal for durability and total order and by a kvstore.Store
// for fast by-id and by-session lookups, per spec.md 4.5.
type Artifacts struct {
	journal   *journal.Journal
	store     kvstore.Store
	index     *SessionIndex
	retention config.ArtifactRetentionConfig
	enabled   bool
	logger    *log.Logger
}

// NewArtifacts constructs an Artifacts store. enabled gates writes
// entirely per spec.md 6's enabled.artifacts option.
func NewArtifacts(j *journal.Journal, kv kvstore.Store, retention config.ArtifactRetentionConfig, enabled bool, logger *log.Logger) *Artifacts {
	return &Artifacts{journal: j, store: kv, index: NewSessionIndex(kv), retention: retention, enabled: enabled, logger: logger}
}

func (a *Artifacts) loadSessionIndex(ctx context.Context, sessionID string) (sessionArtifactIndex, error) {
	raw, ok, err := a.store.Get(ctx, artifactBySessionKey(sessionID))
	if err != nil {
		return sessionArtifactIndex{}, core.ToStorageError("artifacts", "get-session-index", err)
	}
	if !ok {
		return sessionArtifactIndex{}, nil
	}
	var idx sessionArtifactIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return sessionArtifactIndex{}, core.ToStorageError("artifacts", "decode-session-index", err)
	}
	return idx, nil
}

func (a *Artifacts) saveSessionIndex(ctx context.Context, sessionID string, idx sessionArtifactIndex) error {
	raw, err := json.Marshal(idx)
	if err != nil {
		return core.ToStorageError("artifacts", "encode-session-index", err)
	}
	if err := a.store.Set(ctx, artifactBySessionKey(sessionID), raw); err != nil {
		return core.ToStorageError("artifacts", "set-session-index", err)
	}
	return nil
}

// Put writes record, appends its id to the session's insertion-order
// index, then applies the maxArtifacts and maxArtifactBytes retention
// bounds newest-first, evicting violators. maxAge is not applied here;
// Cleanup applies it against a caller-supplied nowMs.
func (a *Artifacts) Put(ctx context.Context, record core.ArtifactRecord) error {
	if !a.enabled {
		return nil
	}
	if err := core.ValidateSessionID(record.SessionID); err != nil {
		return err
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return core.ToStorageError("artifacts", "encode-record", err)
	}
	if _, err := a.journal.Append(ctx, "artifact", record.PrimaryKey(), payload); err != nil {
		return err
	}

	slot := artifactSlot{Record: &record}
	slotRaw, err := json.Marshal(slot)
	if err != nil {
		return core.ToStorageError("artifacts", "encode-slot", err)
	}
	if err := a.store.Set(ctx, artifactByIDKey(record.ID), slotRaw); err != nil {
		return core.ToStorageError("artifacts", "set-slot", err)
	}

	idx, err := a.loadSessionIndex(ctx, record.SessionID)
	if err != nil {
		return err
	}
	alreadyIndexed := false
	for _, id := range idx.IDs {
		if id == record.ID {
			alreadyIndexed = true
			break
		}
	}
	if !alreadyIndexed {
		if len(idx.IDs) == 0 {
			if err := a.index.Add(ctx, record.SessionID); err != nil {
				return err
			}
		}
		idx.IDs = append(idx.IDs, record.ID)
	}
	if err := a.saveSessionIndex(ctx, record.SessionID, idx); err != nil {
		return err
	}

	return a.applyRetention(ctx, record.SessionID)
}

// applyRetention evicts the oldest violators of maxArtifacts and
// maxArtifactBytes, scanning newest-first. maxAge is left to Cleanup.
func (a *Artifacts) applyRetention(ctx context.Context, sessionID string) error {
	idx, err := a.loadSessionIndex(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(idx.IDs) == 0 {
		return nil
	}

	records := make([]core.ArtifactRecord, 0, len(idx.IDs))
	liveIDs := idx.IDs[:0]
	for _, id := range idx.IDs {
		rec, ok, err := a.getLive(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			if a.logger != nil {
				a.logger.Warn("dropping stale session-index entry", map[string]any{"sessionId": sessionID, "artifactId": id})
			}
			continue
		}
		records = append(records, rec)
		liveIDs = append(liveIDs, id)
	}
	idx.IDs = liveIDs

	keep := make([]bool, len(records))
	for i := range keep {
		keep[i] = true
	}

	if a.retention.MaxArtifacts > 0 && len(records) > a.retention.MaxArtifacts {
		for i := 0; i < len(records)-a.retention.MaxArtifacts; i++ {
			keep[i] = false
		}
	}

	if a.retention.MaxArtifactBytes > 0 {
		var total int64
		for i := len(records) - 1; i >= 0; i-- {
			if !keep[i] {
				continue
			}
			total += records[i].EffectiveSize()
			if total > a.retention.MaxArtifactBytes {
				keep[i] = false
			}
		}
	}

	if a.retention.MaxAge.Duration > 0 {
		// Age isn't tracked here directly; callers relying on maxAge use
		// Cleanup, which has access to a current timestamp.
		_ = a.retention.MaxAge
	}

	var evicted, retained []string
	for i, r := range records {
		if keep[i] {
			retained = append(retained, r.ID)
		} else {
			evicted = append(evicted, r.ID)
		}
	}

	for _, id := range evicted {
		if err := a.deleteByID(ctx, sessionID, id); err != nil {
			return err
		}
	}

	idx.IDs = retained
	return a.saveSessionIndex(ctx, sessionID, idx)
}

func (a *Artifacts) getLive(ctx context.Context, id string) (core.ArtifactRecord, bool, error) {
	raw, ok, err := a.store.Get(ctx, artifactByIDKey(id))
	if err != nil {
		return core.ArtifactRecord{}, false, core.ToStorageError("artifacts", "get-slot", err)
	}
	if !ok {
		return core.ArtifactRecord{}, false, nil
	}
	var slot artifactSlot
	if err := json.Unmarshal(raw, &slot); err != nil {
		return core.ArtifactRecord{}, false, core.ToStorageError("artifacts", "decode-slot", err)
	}
	if slot.Record == nil {
		return core.ArtifactRecord{}, false, nil
	}
	return *slot.Record, true, nil
}

// Get returns the live record for id, or false if it is absent or deleted.
func (a *Artifacts) Get(ctx context.Context, id string) (core.ArtifactRecord, bool, error) {
	return a.getLive(ctx, id)
}

// List returns a session's records in insertion order, honoring
// offset/limit. Index entries whose record is missing are self-repaired
// with a logged warning.
func (a *Artifacts) List(ctx context.Context, sessionID string, offset, limit int) ([]core.ArtifactRecord, error) {
	idx, err := a.loadSessionIndex(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var records []core.ArtifactRecord
	var repaired []string
	dirty := false
	for _, id := range idx.IDs {
		rec, ok, err := a.getLive(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			dirty = true
			if a.logger != nil {
				a.logger.Warn("self-repairing stale artifact index entry", map[string]any{"sessionId": sessionID, "artifactId": id})
			}
			continue
		}
		records = append(records, rec)
		repaired = append(repaired, id)
	}
	if dirty {
		idx.IDs = repaired
		if err := a.saveSessionIndex(ctx, sessionID, idx); err != nil {
			return nil, err
		}
	}

	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return nil, nil
	}
	end := len(records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return records[offset:end], nil
}

// Delete tombstones the artifact, so conflict resolution treats
// delete-vs-restore deterministically. Deleting an absent or already
// deleted id is a no-op.
func (a *Artifacts) Delete(ctx context.Context, id string, deletedAtMs int64) error {
	rec, ok, err := a.getLive(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return a.deleteRecord(ctx, rec, deletedAtMs)
}

func (a *Artifacts) deleteRecord(ctx context.Context, rec core.ArtifactRecord, deletedAtMs int64) error {
	tombstone := core.ArtifactTombstone{ID: rec.ID, SessionID: rec.SessionID, DeletedAtMs: deletedAtMs}
	payload, err := json.Marshal(tombstone)
	if err != nil {
		return core.ToStorageError("artifacts", "encode-tombstone", err)
	}
	if _, err := a.journal.Append(ctx, "artifact_tombstone", tombstone.PrimaryKey(), payload); err != nil {
		return err
	}
	return a.deleteByID(ctx, rec.SessionID, rec.ID)
}

func (a *Artifacts) deleteByID(ctx context.Context, sessionID, id string) error {
	slot := artifactSlot{Tombstone: &core.ArtifactTombstone{ID: id, SessionID: sessionID}}
	raw, err := json.Marshal(slot)
	if err != nil {
		return core.ToStorageError("artifacts", "encode-slot", err)
	}
	if err := a.store.Set(ctx, artifactByIDKey(id), raw); err != nil {
		return core.ToStorageError("artifacts", "set-slot", err)
	}
	return nil
}

// PurgeSession removes every artifact and the id index for a session.
func (a *Artifacts) PurgeSession(ctx context.Context, sessionID string) error {
	idx, err := a.loadSessionIndex(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, id := range idx.IDs {
		if err := a.store.Remove(ctx, artifactByIDKey(id)); err != nil {
			return core.ToStorageError("artifacts", "remove-slot", err)
		}
	}
	if err := a.store.Remove(ctx, artifactBySessionKey(sessionID)); err != nil {
		return core.ToStorageError("artifacts", "remove-session-index", err)
	}
	return a.index.Remove(ctx, sessionID)
}

// Cleanup enumerates known sessions and applies retention, including the
// maxAge bound using nowMs.
func (a *Artifacts) Cleanup(ctx context.Context, nowMs int64) error {
	sessions, err := a.index.List(ctx)
	if err != nil {
		return err
	}
	for _, sessionID := range sessions {
		if err := a.applyRetention(ctx, sessionID); err != nil {
			return err
		}
		if a.retention.MaxAge.Duration > 0 {
			if err := a.evictExpired(ctx, sessionID, nowMs); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Artifacts) evictExpired(ctx context.Context, sessionID string, nowMs int64) error {
	idx, err := a.loadSessionIndex(ctx, sessionID)
	if err != nil {
		return err
	}
	maxAgeMs := a.retention.MaxAge.Milliseconds()

	var retained []string
	for _, id := range idx.IDs {
		rec, ok, err := a.getLive(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if nowMs-rec.CreatedAtMs > maxAgeMs {
			if err := a.deleteRecord(ctx, rec, nowMs); err != nil {
				return err
			}
			continue
		}
		retained = append(retained, id)
	}
	idx.IDs = retained
	return a.saveSessionIndex(ctx, sessionID, idx)
}
