// Package conflict implements the journal's conflict resolution variants:
// pure, total functions of (incoming, existing) -> decision that let
// independent replicas converge to the same retained entry for a primary
// key, per spec.md 4.2.
package conflict

import (
	"fmt"

	"github.com/pithecene-io/agentcore/core"
)

// Decision is the outcome of resolving a primary-key collision.
type Decision int

// Decision values per spec.md 4.2.
const (
	KeepIncoming Decision = iota
	KeepExisting
	KeepMerged
	Rejected
)

// Outcome is the result of a Policy's resolution. Entry is only populated
// when Decision is KeepMerged.
type Outcome struct {
	Decision Decision
	Entry    core.Entry
}

// ErrRejected is returned by the reject policy for every collision.
var ErrRejected = fmt.Errorf("conflict policy rejected the write")

// Policy resolves a primary-key collision between an already-retained entry
// and an incoming one sharing the same primary key. Implementations must be
// pure and deterministic: the same (incoming, existing) pair always
// produces the same Outcome, so replicas applying entries in any order
// converge to the same retained entry.
type Policy interface {
	Resolve(incoming, existing core.Entry) (Outcome, error)
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc func(incoming, existing core.Entry) (Outcome, error)

// Resolve implements Policy.
func (f PolicyFunc) Resolve(incoming, existing core.Entry) (Outcome, error) {
	return f(incoming, existing)
}

// LastWriteWins keeps the entry with the larger id (the chronologically
// later write, since ids are strictly increasing by allocation order).
func LastWriteWins() Policy {
	return PolicyFunc(func(incoming, existing core.Entry) (Outcome, error) {
		if incoming.ID > existing.ID {
			return Outcome{Decision: KeepIncoming}, nil
		}
		return Outcome{Decision: KeepExisting}, nil
	})
}

// FirstWriteWins keeps the entry with the smaller id.
func FirstWriteWins() Policy {
	return PolicyFunc(func(incoming, existing core.Entry) (Outcome, error) {
		if incoming.ID < existing.ID {
			return Outcome{Decision: KeepIncoming}, nil
		}
		return Outcome{Decision: KeepExisting}, nil
	})
}

// Reducer merges an incoming entry with its existing conflict, returning
// the replacement entry's payload. The caller supplies id/tag/primary key;
// the reducer only needs to decide the payload.
type Reducer func(incoming, existing core.Entry) []byte

// Merge resolves a collision by invoking reducer and retaining the result
// as a new entry carrying the incoming entry's id (the merge is itself the
// write that occupies this id) and primary key.
func Merge(reducer Reducer) Policy {
	return PolicyFunc(func(incoming, existing core.Entry) (Outcome, error) {
		merged := incoming.Clone()
		merged.Payload = reducer(incoming, existing)
		return Outcome{Decision: KeepMerged, Entry: merged}, nil
	})
}

// Reject fails every collision, leaving the remote write unresolved.
func Reject() Policy {
	return PolicyFunc(func(incoming, existing core.Entry) (Outcome, error) {
		return Outcome{Decision: Rejected}, ErrRejected
	})
}
