// Package journal implements the append-only, totally-ordered event log
// underlying the chat history and artifact store projections: per-entry
// primary keys, per-remote push/pull cursors, and pluggable compaction,
// per spec.md 4.1.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/pithecene-io/agentcore/core"
	"github.com/pithecene-io/agentcore/journal/compaction"
	"github.com/pithecene-io/agentcore/journal/conflict"
	"github.com/pithecene-io/agentcore/kvstore"
	"github.com/pithecene-io/agentcore/log"
)

const (
	journalKeySuffix  = "event-journal"
	identityKeySuffix = "event-log-identity"
)

// RemoteCursor tracks one remote's bookkeeping against this journal.
type RemoteCursor struct {
	// NextSequence is the next incoming sequence this journal expects from
	// the remote's own log, advanced by WriteFromRemote.
	NextSequence int64
	// Acknowledged is the highest local EntryID the remote has confirmed
	// receiving, advanced by Acknowledge.
	Acknowledged core.EntryID
}

type compactorReg struct {
	tags     map[core.EventTag]bool
	strategy compaction.Strategy
}

// Journal is a single append-only log instance, identified by domain (the
// key prefix under which it persists: "<domain>/event-journal" and
// "<domain>/event-log-identity").
type Journal struct {
	mu sync.RWMutex

	domain string
	store  kvstore.Store
	logger *log.Logger
	policy conflict.Policy
	alloc  *core.IDAllocator

	entries []core.Entry          // insertion order, oldest first
	byID    map[core.EntryID]int  // ID -> index into entries
	pkIndex map[string]core.EntryID

	remotes map[string]*RemoteCursor

	compactors []compactorReg
}

// Option configures a Journal at construction.
type Option func(*Journal)

// WithConflictPolicy sets the policy used to resolve primary-key
// collisions during WriteFromRemote. Defaults to conflict.LastWriteWins.
func WithConflictPolicy(p conflict.Policy) Option {
	return func(j *Journal) { j.policy = p }
}

// WithLogger attaches a logger used for self-repair and compensation
// warnings.
func WithLogger(l *log.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// Open creates or reopens a Journal for domain, replaying any state
// persisted in store.
func Open(ctx context.Context, store kvstore.Store, domain string, opts ...Option) (*Journal, error) {
	j := &Journal{
		domain:  domain,
		store:   store,
		policy:  conflict.LastWriteWins(),
		alloc:   core.NewIDAllocator(),
		byID:    make(map[core.EntryID]int),
		pkIndex: make(map[string]core.EntryID),
		remotes: make(map[string]*RemoteCursor),
	}
	for _, opt := range opts {
		opt(j)
	}

	if err := j.load(ctx); err != nil {
		return nil, err
	}
	return j, nil
}

type persistedEntry struct {
	ID         uint64 `json:"id"`
	Tag        string `json:"tag"`
	PrimaryKey string `json:"primaryKey"`
	Payload    []byte `json:"payload"`
}

type persistedRemote struct {
	NextSequence int64  `json:"nextSequence"`
	Acknowledged uint64 `json:"acknowledged"`
}

type persistedIdentity struct {
	LastID  uint64                     `json:"lastId"`
	PKIndex map[string]uint64          `json:"pkIndex"`
	Remotes map[string]persistedRemote `json:"remotes"`
}

func (j *Journal) journalKey() string  { return j.domain + "/" + journalKeySuffix }
func (j *Journal) identityKey() string { return j.domain + "/" + identityKeySuffix }

func (j *Journal) load(ctx context.Context) error {
	raw, ok, err := j.store.Get(ctx, j.journalKey())
	if err != nil {
		return core.ToStorageError("journal", "load-entries", err)
	}
	if ok {
		var persisted []persistedEntry
		if err := json.Unmarshal(raw, &persisted); err != nil {
			return core.ToStorageError("journal", "decode-entries", err)
		}
		j.entries = make([]core.Entry, len(persisted))
		for i, pe := range persisted {
			j.entries[i] = core.Entry{
				ID:         core.EntryID(pe.ID),
				Tag:        core.EventTag(pe.Tag),
				PrimaryKey: pe.PrimaryKey,
				Payload:    pe.Payload,
			}
			j.byID[j.entries[i].ID] = i
		}
	}

	raw, ok, err = j.store.Get(ctx, j.identityKey())
	if err != nil {
		return core.ToStorageError("journal", "load-identity", err)
	}
	if ok {
		var identity persistedIdentity
		if err := json.Unmarshal(raw, &identity); err != nil {
			return core.ToStorageError("journal", "decode-identity", err)
		}
		j.alloc.Restore(core.EntryID(identity.LastID))
		for pk, id := range identity.PKIndex {
			if _, present := j.byID[core.EntryID(id)]; present {
				j.pkIndex[pk] = core.EntryID(id)
			} else if j.logger != nil {
				j.logger.Warn("dropping dangling primary-key reference on load", map[string]any{
					"domain": j.domain, "primaryKey": pk, "entryId": id,
				})
			}
		}
		for remoteID, pr := range identity.Remotes {
			j.remotes[remoteID] = &RemoteCursor{NextSequence: pr.NextSequence, Acknowledged: core.EntryID(pr.Acknowledged)}
		}
	}

	return nil
}

// persistEntries writes the full entry log snapshot.
func (j *Journal) persistEntries(ctx context.Context) error {
	persisted := make([]persistedEntry, len(j.entries))
	for i, e := range j.entries {
		persisted[i] = persistedEntry{ID: uint64(e.ID), Tag: string(e.Tag), PrimaryKey: e.PrimaryKey, Payload: e.Payload}
	}
	raw, err := json.Marshal(persisted)
	if err != nil {
		return core.ToStorageError("journal", "encode-entries", err)
	}
	if err := j.store.Set(ctx, j.journalKey(), raw); err != nil {
		return core.ToStorageError("journal", "persist-entries", err)
	}
	return nil
}

// persistIdentity writes the pk index, allocator state, and remote cursors.
func (j *Journal) persistIdentity(ctx context.Context) error {
	identity := persistedIdentity{
		PKIndex: make(map[string]uint64, len(j.pkIndex)),
		Remotes: make(map[string]persistedRemote, len(j.remotes)),
	}
	if len(j.entries) > 0 {
		identity.LastID = uint64(j.entries[len(j.entries)-1].ID)
	}
	for pk, id := range j.pkIndex {
		identity.PKIndex[pk] = uint64(id)
	}
	for remoteID, cursor := range j.remotes {
		identity.Remotes[remoteID] = persistedRemote{NextSequence: cursor.NextSequence, Acknowledged: uint64(cursor.Acknowledged)}
	}

	raw, err := json.Marshal(identity)
	if err != nil {
		return core.ToStorageError("journal", "encode-identity", err)
	}
	if err := j.store.Set(ctx, j.identityKey(), raw); err != nil {
		return core.ToStorageError("journal", "persist-identity", err)
	}
	return nil
}

// Append allocates a new id strictly greater than all prior ids, inserts
// the entry, persists it, and returns the created entry. A purely local
// append always becomes the new "current" entry for its primary key, since
// its id is by construction the largest the index has ever seen.
func (j *Journal) Append(ctx context.Context, tag core.EventTag, primaryKey string, payload []byte) (core.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := j.alloc.Next()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	entry := core.Entry{ID: id, Tag: tag, PrimaryKey: primaryKey, Payload: cp}

	j.entries = append(j.entries, entry)
	j.byID[id] = len(j.entries) - 1

	if err := j.persistEntries(ctx); err != nil {
		// Compensate: the index was never touched, so just drop the
		// uncommitted entry from memory and surface the error.
		j.entries = j.entries[:len(j.entries)-1]
		delete(j.byID, id)
		return core.Entry{}, err
	}

	previous := j.pkIndex[primaryKey]
	j.pkIndex[primaryKey] = id
	if err := j.persistIdentity(ctx); err != nil {
		// Compensate: the payload is already in the persisted log but its
		// index write never landed, so roll the in-memory index and append
		// back, rewrite the log without the payload (best-effort), and
		// surface the error.
		if previous == 0 {
			delete(j.pkIndex, primaryKey)
		} else {
			j.pkIndex[primaryKey] = previous
		}
		j.entries = j.entries[:len(j.entries)-1]
		delete(j.byID, id)
		_ = j.persistEntries(ctx)
		return core.Entry{}, err
	}

	return entry, nil
}

// EntriesSince returns entries with id greater than startSequence, in id
// order. remoteID is accepted for symmetry with the rest of the contract
// but does not mutate any bookkeeping; only WriteFromRemote and Acknowledge
// do.
func (j *Journal) EntriesSince(_ string, startSequence core.EntryID) []core.Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	idx := sort.Search(len(j.entries), func(i int) bool { return j.entries[i].ID > startSequence })
	out := make([]core.Entry, len(j.entries)-idx)
	copy(out, j.entries[idx:])
	return out
}

// WriteFromRemote applies a batch of entries pulled from a remote's log, in
// ascending Sequence order, resolving primary-key collisions through the
// configured conflict policy. remotes[remoteId].nextSequence advances to
// max(current, lastApplied+1) as entries are processed, even when an entry
// loses its collision and is not retained.
func (j *Journal) WriteFromRemote(ctx context.Context, remoteID string, remoteEntries []core.RemoteEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	cursor, ok := j.remotes[remoteID]
	if !ok {
		cursor = &RemoteCursor{}
		j.remotes[remoteID] = cursor
	}

	for _, re := range remoteEntries {
		candidateID := j.alloc.Next()
		candidate := core.Entry{ID: candidateID, Tag: re.Tag, PrimaryKey: re.PrimaryKey, Payload: re.Payload}

		existingID, hasExisting := j.pkIndex[re.PrimaryKey]
		var existing core.Entry
		if hasExisting {
			if pos, present := j.byID[existingID]; present {
				existing = j.entries[pos]
			} else {
				if j.logger != nil {
					j.logger.Warn("dropping dangling primary-key reference during remote write", map[string]any{
						"domain": j.domain, "primaryKey": re.PrimaryKey, "entryId": existingID,
					})
				}
				hasExisting = false
				delete(j.pkIndex, re.PrimaryKey)
			}
		}

		final := &candidate
		keep := true
		if hasExisting {
			outcome, err := j.policy.Resolve(candidate, existing)
			if err != nil {
				return fmt.Errorf("resolving conflict for %q from remote %q: %w", re.PrimaryKey, remoteID, err)
			}
			switch outcome.Decision {
			case conflict.KeepIncoming:
				final = &candidate
			case conflict.KeepMerged:
				merged := outcome.Entry
				final = &merged
			case conflict.KeepExisting:
				keep = false
			}
		}

		if keep {
			j.entries = append(j.entries, *final)
			j.byID[final.ID] = len(j.entries) - 1
			j.pkIndex[re.PrimaryKey] = final.ID
		}

		if re.Sequence+1 > cursor.NextSequence {
			cursor.NextSequence = re.Sequence + 1
		}
	}

	if err := j.persistEntries(ctx); err != nil {
		return err
	}
	return j.persistIdentity(ctx)
}

// UncommittedFor returns entries not yet acknowledged by remoteID, in id
// order.
func (j *Journal) UncommittedFor(remoteID string) []core.Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var since core.EntryID
	if cursor, ok := j.remotes[remoteID]; ok {
		since = cursor.Acknowledged
	}

	idx := sort.Search(len(j.entries), func(i int) bool { return j.entries[i].ID > since })
	out := make([]core.Entry, len(j.entries)-idx)
	copy(out, j.entries[idx:])
	return out
}

// Acknowledge marks entries up to and including upToID as committed for
// remoteID.
func (j *Journal) Acknowledge(ctx context.Context, remoteID string, upToID core.EntryID) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	cursor, ok := j.remotes[remoteID]
	if !ok {
		cursor = &RemoteCursor{}
		j.remotes[remoteID] = cursor
	}
	if upToID > cursor.Acknowledged {
		cursor.Acknowledged = upToID
	}
	return j.persistIdentity(ctx)
}

// RegisterCompaction hooks a compactor that, when Compact runs, narrows the
// retained entries for the given tags to the compactor's strategy.
func (j *Journal) RegisterCompaction(tags []core.EventTag, strategy compaction.Strategy) {
	j.mu.Lock()
	defer j.mu.Unlock()

	tagSet := make(map[core.EventTag]bool, len(tags))
	for _, t := range tags {
		tagSet[t] = true
	}
	j.compactors = append(j.compactors, compactorReg{tags: tagSet, strategy: strategy})
}

// Compact runs every registered compactor against its matching tags and
// removes entries the strategy does not retain. Retained relative order is
// preserved; compaction never reorders entries.
func (j *Journal) Compact(ctx context.Context, nowMs int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.compactors) == 0 {
		return nil
	}

	drop := make(map[core.EntryID]bool)
	for _, reg := range j.compactors {
		var matched []core.Entry
		for _, e := range j.entries {
			if reg.tags[e.Tag] {
				matched = append(matched, e)
			}
		}
		if len(matched) == 0 {
			continue
		}
		retained := reg.strategy.Retain(matched, nowMs)
		retainedSet := make(map[core.EntryID]bool, len(retained))
		for _, e := range retained {
			retainedSet[e.ID] = true
		}
		for _, e := range matched {
			if !retainedSet[e.ID] {
				drop[e.ID] = true
			}
		}
	}

	if len(drop) == 0 {
		return nil
	}

	kept := j.entries[:0:0]
	for _, e := range j.entries {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	j.entries = kept

	j.byID = make(map[core.EntryID]int, len(j.entries))
	for i, e := range j.entries {
		j.byID[e.ID] = i
	}
	for pk, id := range j.pkIndex {
		if drop[id] {
			delete(j.pkIndex, pk)
		}
	}

	if err := j.persistEntries(ctx); err != nil {
		return err
	}
	return j.persistIdentity(ctx)
}

// Get returns the current entry for primaryKey, if one is retained.
func (j *Journal) Get(primaryKey string) (core.Entry, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	id, ok := j.pkIndex[primaryKey]
	if !ok {
		return core.Entry{}, false
	}
	pos, ok := j.byID[id]
	if !ok {
		return core.Entry{}, false
	}
	return j.entries[pos], true
}

// Snapshot returns a copy of every retained entry, oldest first.
func (j *Journal) Snapshot() []core.Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]core.Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// RemoteStatusCursor returns the cursor bookkeeping for remoteID, if any.
func (j *Journal) RemoteStatusCursor(remoteID string) (RemoteCursor, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	cursor, ok := j.remotes[remoteID]
	if !ok {
		return RemoteCursor{}, false
	}
	return *cursor, true
}
