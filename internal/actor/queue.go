package actor

import (
	"container/heap"
	"sync"
	"time"

	"github.com/calderlab/scopecore/internal/bus"
)

// entry is one queued command with its ordering keys.
type entry struct {
	priority  bus.Priority
	seq       uint64
	submitted time.Time
	command   bus.Event
}

// entryHeap orders entries by descending priority, then by ascending
// sequence number. The sequence tiebreak preserves FIFO within a priority
// band; submission timestamps alone cannot, because two commands enqueued in
// the same clock tick would compare equal.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Queue is a thread-safe priority queue of commands. Put never blocks; Get
// blocks until a command is available or the timeout elapses.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond
	heap entryHeap
	seq  uint64
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put enqueues cmd at the given priority. Commands of equal priority are
// returned by Get in Put order.
func (q *Queue) Put(cmd bus.Event, priority bus.Priority) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.heap, &entry{
		priority:  priority,
		seq:       q.seq,
		submitted: time.Now(),
		command:   cmd,
	})
	q.cond.Signal()
	q.mu.Unlock()
}

// Get removes and returns the highest-priority command. It blocks up to
// timeout waiting for one to arrive; a zero or negative timeout makes Get
// non-blocking. When the queue stays empty, Get returns ErrGetTimeout.
func (q *Queue) Get(timeout time.Duration) (bus.Event, error) {
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.heap.Len() == 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrGetTimeout
		}
		// sync.Cond has no timed wait, so a timer broadcasts at the
		// deadline and the loop re-checks.
		t := time.AfterFunc(remaining, q.cond.Broadcast)
		q.cond.Wait()
		t.Stop()
	}

	e := heap.Pop(&q.heap).(*entry)
	return e.command, nil
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Empty reports whether no commands are queued.
func (q *Queue) Empty() bool { return q.Len() == 0 }
