// Package store implements the ChatHistory and Artifact projections: views
// derived from journal entries, indexed for point lookups and listing, with
// their own retention, per spec.md 4.4/4.5.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pithecene-io/agentcore/core"
	"github.com/pithecene-io/agentcore/kvstore"
)

const sessionsPerPage = 500

const (
	sessionIndexMetaKey = "session-index/index/meta"
)

func sessionIndexPageKey(page int) string {
	return fmt.Sprintf("session-index/page/%d", page)
}

func sessionIndexEntryKey(sessionID string) string {
	return "session-index/meta/" + sessionID
}

type sessionIndexMeta struct {
	PageCount int `json:"pageCount"`
}

type sessionIndexPage struct {
	SessionIDs []string `json:"sessionIds"`
}

type sessionIndexEntry struct {
	SessionID string `json:"sessionId"`
	Page      int    `json:"page"`
}

// SessionIndex tracks the set of known sessions, paginated so listing
// doesn't require a single unbounded value, per spec.md 6's
// "session-index/index/meta, …/page/<n>, …/meta/<sessionId>" key layout.
// Shared by ChatHistory and Artifacts so either can register a session the
// other has already seen.
type SessionIndex struct {
	store kvstore.Store
}

// NewSessionIndex wraps store with session-index bookkeeping.
func NewSessionIndex(store kvstore.Store) *SessionIndex {
	return &SessionIndex{store: store}
}

// Add registers sessionID if not already present. Idempotent.
func (s *SessionIndex) Add(ctx context.Context, sessionID string) error {
	_, ok, err := s.store.Get(ctx, sessionIndexEntryKey(sessionID))
	if err != nil {
		return core.ToStorageError("session-index", "get-entry", err)
	}
	if ok {
		return nil
	}

	meta, err := s.loadMeta(ctx)
	if err != nil {
		return err
	}

	page := meta.PageCount - 1
	var pageData sessionIndexPage
	if page >= 0 {
		pageData, err = s.loadPage(ctx, page)
		if err != nil {
			return err
		}
	}
	if page < 0 || len(pageData.SessionIDs) >= sessionsPerPage {
		page = meta.PageCount
		pageData = sessionIndexPage{}
		meta.PageCount++
		if err := s.saveMeta(ctx, meta); err != nil {
			return err
		}
	}

	pageData.SessionIDs = append(pageData.SessionIDs, sessionID)
	if err := s.savePage(ctx, page, pageData); err != nil {
		return err
	}

	entry := sessionIndexEntry{SessionID: sessionID, Page: page}
	entryRaw, err := json.Marshal(entry)
	if err != nil {
		return core.ToStorageError("session-index", "encode-entry", err)
	}
	if err := s.store.Set(ctx, sessionIndexEntryKey(sessionID), entryRaw); err != nil {
		return core.ToStorageError("session-index", "set-entry", err)
	}
	return nil
}

// Remove unregisters sessionID. Idempotent.
func (s *SessionIndex) Remove(ctx context.Context, sessionID string) error {
	raw, ok, err := s.store.Get(ctx, sessionIndexEntryKey(sessionID))
	if err != nil {
		return core.ToStorageError("session-index", "get-entry", err)
	}
	if !ok {
		return nil
	}
	var entry sessionIndexEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return core.ToStorageError("session-index", "decode-entry", err)
	}

	pageData, err := s.loadPage(ctx, entry.Page)
	if err != nil {
		return err
	}
	filtered := pageData.SessionIDs[:0]
	for _, id := range pageData.SessionIDs {
		if id != sessionID {
			filtered = append(filtered, id)
		}
	}
	pageData.SessionIDs = filtered
	if err := s.savePage(ctx, entry.Page, pageData); err != nil {
		return err
	}

	if err := s.store.Remove(ctx, sessionIndexEntryKey(sessionID)); err != nil {
		return core.ToStorageError("session-index", "remove-entry", err)
	}
	return nil
}

// List returns every known session id.
func (s *SessionIndex) List(ctx context.Context) ([]string, error) {
	meta, err := s.loadMeta(ctx)
	if err != nil {
		return nil, err
	}

	var all []string
	for p := 0; p < meta.PageCount; p++ {
		page, err := s.loadPage(ctx, p)
		if err != nil {
			return nil, err
		}
		all = append(all, page.SessionIDs...)
	}
	return all, nil
}

func (s *SessionIndex) loadMeta(ctx context.Context) (sessionIndexMeta, error) {
	raw, ok, err := s.store.Get(ctx, sessionIndexMetaKey)
	if err != nil {
		return sessionIndexMeta{}, core.ToStorageError("session-index", "get-meta", err)
	}
	if !ok {
		return sessionIndexMeta{}, nil
	}
	var meta sessionIndexMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return sessionIndexMeta{}, core.ToStorageError("session-index", "decode-meta", err)
	}
	return meta, nil
}

func (s *SessionIndex) saveMeta(ctx context.Context, meta sessionIndexMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return core.ToStorageError("session-index", "encode-meta", err)
	}
	if err := s.store.Set(ctx, sessionIndexMetaKey, raw); err != nil {
		return core.ToStorageError("session-index", "set-meta", err)
	}
	return nil
}

func (s *SessionIndex) loadPage(ctx context.Context, page int) (sessionIndexPage, error) {
	raw, ok, err := s.store.Get(ctx, sessionIndexPageKey(page))
	if err != nil {
		return sessionIndexPage{}, core.ToStorageError("session-index", "get-page", err)
	}
	if !ok {
		return sessionIndexPage{}, nil
	}
	var data sessionIndexPage
	if err := json.Unmarshal(raw, &data); err != nil {
		return sessionIndexPage{}, core.ToStorageError("session-index", "decode-page", err)
	}
	return data, nil
}

func (s *SessionIndex) savePage(ctx context.Context, page int, data sessionIndexPage) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return core.ToStorageError("session-index", "encode-page", err)
	}
	if err := s.store.Set(ctx, sessionIndexPageKey(page), raw); err != nil {
		return core.ToStorageError("session-index", "set-page", err)
	}
	return nil
}
