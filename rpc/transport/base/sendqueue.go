package base

import (
	"github.com/ValentinKolb/dCP/rpc/common"
	"runtime"
	"sync"
	"sync/atomic"
)

// outbound is a message waiting to be written by the queue's writer goroutine
type outbound struct {
	data []byte
	done chan error
}

// queueNode is a single element of the linked list
type queueNode struct {
	item *outbound
	next atomic.Pointer[queueNode]
}

// sendQueue is a lock-free multi-producer single-consumer queue that feeds one
// writer goroutine per connection. Any number of goroutines may push, the
// writer drains the list in order and reports each write on the item's done channel.
//
// Under concurrent pushes the order between producers is decided by whoever wins
// the CAS on the tail, messages of a single producer keep their order.
type sendQueue struct {
	head    atomic.Pointer[queueNode]
	tail    atomic.Pointer[queueNode]
	closed  atomic.Bool
	stopped atomic.Bool // writer goroutine has left its loop
	write   func([]byte) error
	writer  sync.WaitGroup

	mu      sync.Mutex // guards cond
	cond    *sync.Cond
	flushMu sync.Mutex // serializes failPending
}

// newSendQueue creates the queue and starts its writer goroutine
func newSendQueue(write func([]byte) error) *sendQueue {
	sentinel := &queueNode{}

	q := &sendQueue{write: write}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.writer.Add(1)
	go q.drain()

	return q
}

// push appends a message. Returns false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *sendQueue) push(item *outbound) bool {
	if item == nil || q.closed.Load() {
		return false
	}

	n := &queueNode{item: item}
	var backoff uint8 = 0

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, n) {
				// may fail if another producer already moved the tail, that is fine
				q.tail.CompareAndSwap(tailNode, n)
				q.signal()

				// closed while we were appending: the writer might be gone already
				if q.closed.Load() {
					q.failPending()
				}
				return true
			}
		} else {
			// help a producer that appended but did not move the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// spin a little at low contention, yield afterwards
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// signal wakes the writer goroutine
func (q *sendQueue) signal() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// pop removes the oldest item (consumer side only)
func (q *sendQueue) pop() *outbound {
	head := q.head.Load()
	next := head.next.Load()
	if next == nil {
		return nil
	}
	item := next.item
	q.head.Store(next)
	next.item = nil // help the gc
	return item
}

// drain writes queued messages until the queue is closed and empty
func (q *sendQueue) drain() {
	defer q.writer.Done()

	for {
		hasItems := false
		for item := q.pop(); item != nil; item = q.pop() {
			hasItems = true
			item.done <- q.write(item.data)
		}

		if !hasItems && q.closed.Load() {
			q.stopped.Store(true)
			q.failPending()
			return
		}

		if !hasItems {
			q.mu.Lock()
			// double check after acquiring the lock
			if q.head.Load().next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// failPending answers every item still queued after the writer stopped
func (q *sendQueue) failPending() {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	if !q.stopped.Load() {
		return // the writer still runs and will pick the items up
	}
	for item := q.pop(); item != nil; item = q.pop() {
		item.done <- common.ErrConnectionClosed
	}
}

// close stops accepting messages. Messages already queued are still handed to write.
func (q *sendQueue) close() {
	q.closed.Store(true)
	q.signal()
}

// wait blocks until the writer goroutine has exited
func (q *sendQueue) wait() {
	q.writer.Wait()
}

// pending returns an approximate count of queued messages (O(n), debugging only)
func (q *sendQueue) pending() int {
	count := 0
	for n := q.head.Load().next.Load(); n != nil; n = n.next.Load() {
		count++
	}
	return count
}
