package supervisor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pithecene-io/agentcore/config"
	"github.com/pithecene-io/agentcore/core"
)

// pendingItem is one waiting-room occupant. resultCh is buffered so a
// timeout, cancellation, or sliding eviction can resolve it without a
// blocked worker. prompt carries the original submission value verbatim
// (core.PendingRequest.Prompt only keeps a string label for status
// reporting, which would lose a structured prompt).
//
// Because next() peeks rather than removes, an item can still be sitting
// in the queue's slice while the drainQueue worker is already blocked
// inside admit() for it (e.g. waiting on the concurrency semaphore). That
// means a submitter's timeout/cancellation and the worker's eventual real
// result can race to resolve the same item. done is an atomic.Bool rather
// than a plain bool specifically to referee that race: whichever side
// wins claim() is the one that gets to deliver a result (or decide the
// item was abandoned), so a resolved-too-late handle never gets silently
// handed to a reader who stopped listening.
type pendingItem struct {
	request  core.PendingRequest
	prompt   any
	resultCh chan admissionResult
	done     atomic.Bool
}

// claim atomically transitions the item from unresolved to resolved,
// returning true only for the caller that performs the transition. A
// losing caller must not deliver its own outcome on resultCh.
func (item *pendingItem) claim() bool {
	return item.done.CompareAndSwap(false, true)
}

// pendingQueue is the Query Supervisor's bounded waiting room, supporting
// the three disciplines of spec.md 4.6: suspend (block the offerer),
// dropping (reject immediately), and sliding (evict the oldest). It is a
// plain mutex-guarded slice rather than a Go channel because sliding
// needs to remove an arbitrary (the oldest) element, which a channel
// cannot do.
type pendingQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	capacity int
	strategy config.QueueStrategy
	items    []*pendingItem
	closed   bool
}

func newPendingQueue(capacity int, strategy config.QueueStrategy) *pendingQueue {
	q := &pendingQueue{capacity: capacity, strategy: strategy}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// offer admits item per the configured discipline. Returns an error
// immediately if the queue is at capacity under "dropping", or if ctx is
// canceled while blocked under "suspend".
func (q *pendingQueue) offer(ctx context.Context, item *pendingItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return core.ErrQueryPendingCanceled()
	}

	if len(q.items) < q.capacity {
		q.items = append(q.items, item)
		q.notEmpty.Signal()
		return nil
	}

	switch q.strategy {
	case config.QueueStrategyDropping:
		return core.ErrQueueFull(q.capacity, string(config.QueueStrategyDropping))

	case config.QueueStrategySliding:
		evicted := q.items[0]
		q.items = q.items[1:]
		if evicted.claim() {
			evicted.resultCh <- admissionResult{err: core.ErrQueryPendingCanceled()}
		}
		q.items = append(q.items, item)
		q.notEmpty.Signal()
		return nil

	default: // suspend
		for len(q.items) >= q.capacity && !q.closed {
			waitDone := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					q.mu.Lock()
					q.notFull.Broadcast()
					q.mu.Unlock()
				case <-waitDone:
				}
			}()
			q.notFull.Wait()
			close(waitDone)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		if q.closed {
			return core.ErrQueryPendingCanceled()
		}
		q.items = append(q.items, item)
		q.notEmpty.Signal()
		return nil
	}
}

// next blocks until the head item is available or the queue is closed,
// in which case it returns nil. Unlike a channel receive, next does NOT
// remove the item: it stays counted against capacity until the caller
// resolves it and calls remove, so a slot freed by dequeuing alone can
// never be handed to a second offer while the first is still being
// admitted.
func (q *pendingQueue) next() *pendingItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// remove drops item from the queue if it is still present (used once its
// admission has resolved, or by a maxPendingTime timeout/sliding
// eviction). Returns true if it was removed.
func (q *pendingQueue) remove(item *pendingItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it == item {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.notFull.Signal()
			return true
		}
	}
	return false
}

// len reports the current pending count.
func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close wakes every blocked offerer/taker and drains remaining items,
// resolving each with a cancellation error.
func (q *pendingQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, item := range q.items {
		if item.claim() {
			item.resultCh <- admissionResult{err: core.ErrQueryPendingCanceled()}
		}
	}
	q.items = nil
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}
