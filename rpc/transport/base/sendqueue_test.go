package base

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dCP/rpc/common"
	"runtime"
	"sync"
	"testing"
	"time"
)

// recorder collects written messages
type recorder struct {
	mu      sync.Mutex
	written []string
	fail    error
	delay   time.Duration
}

func (r *recorder) write(data []byte) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.written = append(r.written, string(data))
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.written...)
}

func awaitResult(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("Timeout waiting for write result")
		return nil
	}
}

// TestSendQueueOrder tests that a single producer keeps its order
func TestSendQueueOrder(t *testing.T) {
	rec := &recorder{}
	q := newSendQueue(rec.write)
	defer q.close()

	dones := make([]chan error, 10)
	for i := range dones {
		dones[i] = make(chan error, 1)
		if !q.push(&outbound{data: []byte(fmt.Sprint(i)), done: dones[i]}) {
			t.Fatalf("Failed to push item %d", i)
		}
	}

	for i, done := range dones {
		if err := awaitResult(t, done); err != nil {
			t.Errorf("Item %d: unexpected error %v", i, err)
		}
	}

	written := rec.snapshot()
	if len(written) != 10 {
		t.Fatalf("Expected 10 writes, got %d", len(written))
	}
	for i, w := range written {
		if w != fmt.Sprint(i) {
			t.Errorf("Expected %d at position %d, got %s", i, i, w)
		}
	}
}

// TestSendQueueConcurrentProducers verifies that no message is lost or duplicated
func TestSendQueueConcurrentProducers(t *testing.T) {
	rec := &recorder{}
	q := newSendQueue(rec.write)
	defer q.close()

	const numProducers = 10
	const itemsPerProducer = 200

	var wg sync.WaitGroup
	wg.Add(numProducers)
	for p := 0; p < numProducers; p++ {
		go func(producerID int) {
			defer wg.Done()
			for i := 0; i < itemsPerProducer; i++ {
				done := make(chan error, 1)
				if !q.push(&outbound{data: []byte(fmt.Sprintf("%d-%d", producerID, i)), done: done}) {
					t.Errorf("Producer %d failed to push item %d", producerID, i)
					return
				}
				select {
				case err := <-done:
					if err != nil {
						t.Errorf("Producer %d item %d: %v", producerID, i, err)
					}
				case <-time.After(2 * time.Second):
					t.Errorf("Producer %d item %d: timeout", producerID, i)
					return
				}
				if i%50 == 0 {
					runtime.Gosched()
				}
			}
		}(p)
	}
	wg.Wait()

	written := rec.snapshot()
	if len(written) != numProducers*itemsPerProducer {
		t.Fatalf("Expected %d writes, got %d", numProducers*itemsPerProducer, len(written))
	}

	seen := make(map[string]bool, len(written))
	for _, w := range written {
		if seen[w] {
			t.Errorf("Duplicate write: %s", w)
		}
		seen[w] = true
	}
}

// TestSendQueueWriteError tests that write errors reach the producer
func TestSendQueueWriteError(t *testing.T) {
	boom := errors.New("boom")
	rec := &recorder{fail: boom}
	q := newSendQueue(rec.write)
	defer q.close()

	done := make(chan error, 1)
	q.push(&outbound{data: []byte("x"), done: done})
	if err := awaitResult(t, done); !errors.Is(err, boom) {
		t.Errorf("Expected %v, got %v", boom, err)
	}
}

// TestSendQueueClose tests that a closed queue rejects pushes and the writer exits
func TestSendQueueClose(t *testing.T) {
	rec := &recorder{}
	q := newSendQueue(rec.write)

	done := make(chan error, 1)
	q.push(&outbound{data: []byte("before"), done: done})
	if err := awaitResult(t, done); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	q.close()

	waited := make(chan struct{})
	go func() {
		q.wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatalf("Writer did not exit after close")
	}

	if q.push(&outbound{data: []byte("after"), done: make(chan error, 1)}) {
		t.Errorf("Push after close should fail")
	}
	if q.pending() != 0 {
		t.Errorf("Expected empty queue, got %d pending", q.pending())
	}
}

// TestSendQueueFailPending tests that items left behind by a stopped writer are failed
func TestSendQueueFailPending(t *testing.T) {
	rec := &recorder{}
	q := newSendQueue(rec.write)
	q.close()
	q.wait()

	// bypass the closed check to simulate a push racing with close
	done := make(chan error, 1)
	n := &queueNode{item: &outbound{data: []byte("late"), done: done}}
	q.tail.Load().next.Store(n)
	q.tail.Store(n)

	q.failPending()
	if err := awaitResult(t, done); !errors.Is(err, common.ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}
}
