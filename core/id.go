// Package core holds the data model shared across the journal, store,
// protocol, sync, and supervisor packages: journal entries, chat/artifact
// records, remote status, and the supervisor's query lifecycle types.
package core

import (
	"fmt"
	"sync"
	"time"
)

// counterBits is the width of the per-millisecond counter packed into the
// low bits of an EntryID. 20 bits allows ~1M entries per millisecond before
// the allocator borrows a virtual millisecond; chosen as a Snowflake-style
// balance between id lifetime (44 usable millis bits is ~557 years from the
// epoch below) and intra-millisecond burst capacity. This is an explicit
// choice for an otherwise-unconstrained point in the design (see DESIGN.md).
const counterBits = 20
const counterMask = (1 << counterBits) - 1

// idEpoch anchors the millisecond timestamp so more significant bits stay
// free for longer before the id space is exhausted. Entries are ordered
// relative to each other, not to wall-clock time outside the process, so
// the epoch only needs to be fixed and never move backwards.
var idEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// EntryID is a monotonically assigned journal entry identifier. It sorts
// identically whether compared numerically or as its zero-padded hex
// string form, and low bits recover the allocation order within a
// millisecond.
type EntryID uint64

// String returns a fixed-width, lexicographically sortable hex encoding.
func (id EntryID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// Millis returns the millisecond component (offset from idEpoch).
func (id EntryID) Millis() int64 {
	return int64(uint64(id) >> counterBits)
}

// Counter returns the per-millisecond counter component.
func (id EntryID) Counter() uint32 {
	return uint32(uint64(id) & counterMask)
}

// IDAllocator generates strictly increasing EntryIDs for a single journal.
// Safe for concurrent use; allocation is serialized internally.
//
// On clock regression (now < lastMillis) the allocator keeps using
// lastMillis and continues the counter, per spec.md 4.1. If the counter
// saturates within a millisecond (real or reused), the allocator advances
// to lastMillis+1 regardless of wall-clock time — this keeps ids strictly
// increasing even under a sustained burst, at the cost of that virtual
// millisecond no longer corresponding to real time. Both behaviors are the
// documented resolution of spec.md's open question on counter overflow.
type IDAllocator struct {
	mu         sync.Mutex
	lastMillis int64
	counter    uint32
}

// NewIDAllocator creates an allocator starting from the current time.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{}
}

// Next allocates the next EntryID.
func (a *IDAllocator) Next() EntryID {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Since(idEpoch).Milliseconds()

	switch {
	case now > a.lastMillis:
		a.lastMillis = now
		a.counter = 0
	case a.counter >= counterMask:
		// Saturated within this millisecond (or a reused one): borrow the
		// next virtual millisecond to stay strictly increasing.
		a.lastMillis++
		a.counter = 0
	default:
		a.counter++
	}

	return EntryID(uint64(a.lastMillis)<<counterBits | uint64(a.counter))
}

// Restore seeds the allocator so subsequently allocated ids are strictly
// greater than the given id. Used when reopening a journal from persisted
// state so ids never regress across a restart.
func (a *IDAllocator) Restore(last EntryID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if m := last.Millis(); m > a.lastMillis || (m == a.lastMillis && last.Counter() > a.counter) {
		a.lastMillis = m
		a.counter = last.Counter()
	}
}
