package core

import "fmt"

// ArtifactRecord is a stored artifact (file, blob, structured result) scoped
// to a session.
type ArtifactRecord struct {
	ID          string
	SessionID   string
	Kind        string
	Encoding    string
	Content     []byte
	CreatedAtMs int64
	// SizeBytes is optional; when zero it is derived from len(Content).
	SizeBytes int64
}

// PrimaryKey returns "sessionId:id" per spec.md 3.
func (a ArtifactRecord) PrimaryKey() string {
	return ArtifactKey(a.SessionID, a.ID)
}

// ArtifactKey builds an ArtifactRecord primary key without requiring a record.
func ArtifactKey(sessionID, id string) string {
	return fmt.Sprintf("%s:%s", sessionID, id)
}

// EffectiveSize returns SizeBytes if set, otherwise len(Content).
func (a ArtifactRecord) EffectiveSize() int64 {
	if a.SizeBytes > 0 {
		return a.SizeBytes
	}
	return int64(len(a.Content))
}

// ArtifactTombstone marks an artifact as deleted. It shares the artifact's
// primary key so the conflict policy resolves delete-vs-restore
// deterministically.
type ArtifactTombstone struct {
	ID          string
	SessionID   string
	DeletedAtMs int64
}

// PrimaryKey returns the same key as the artifact it tombstones.
func (t ArtifactTombstone) PrimaryKey() string {
	return ArtifactKey(t.SessionID, t.ID)
}
