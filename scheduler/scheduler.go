// Package scheduler implements the deferred-completion scheduler: requests
// are queued against an absolute completion deadline and a single one-shot
// timer is (re)armed for the earliest outstanding deadline. When it fires,
// every entry whose deadline has passed is drained and its completion
// callback invoked, then the timer is rearmed for whatever is left. The
// priority queue is a container/heap min-heap ordered by deadline.
package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/thustorage/ramssd/ssdlog"
)

// MinLatency is the floor applied by callers before scheduling a
// completion: any computed latency below this is raised to it, so that a
// request can never complete sooner than the scheduler's own timer
// resolution allows it to be observed.
const MinLatency = 100 * time.Nanosecond

// entry is one pending completion.
type entry struct {
	deadline time.Time
	seq      uint64 // tie-breaker for equal deadlines, preserves arrival order
	fn       func()
	index    int // heap.Interface bookkeeping
}

// deadlineHeap is a min-heap of entries ordered by (deadline, seq).
type deadlineHeap []*entry

func (h deadlineHeap) Len() int { return len(h) }

func (h deadlineHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler owns the deadline heap and the single one-shot timer that fires
// it. Clock is injectable for deterministic tests (trace-replay
// mode drives completions from a virtual clock rather than wall time).
type Scheduler struct {
	mu     sync.Mutex
	heap   deadlineHeap
	timer  *time.Timer
	armed  time.Time
	nextSeq uint64
	now    func() time.Time
	logger ssdlog.Logger
	closed bool
}

// New builds a Scheduler using the real wall clock.
func New(logger ssdlog.Logger) *Scheduler {
	return NewWithClock(time.Now, logger)
}

// NewWithClock builds a Scheduler using a caller-supplied clock, for
// deterministic trace replay and tests.
func NewWithClock(now func() time.Time, logger ssdlog.Logger) *Scheduler {
	if logger == nil {
		logger = ssdlog.Default()
	}
	s := &Scheduler{
		heap:   make(deadlineHeap, 0),
		now:    now,
		logger: logger,
	}
	heap.Init(&s.heap)
	return s
}

// Schedule arranges for fn to be invoked once after latency has elapsed
// (clamped to MinLatency). fn runs on the scheduler's own goroutine (the
// one that fired the timer), never on the caller's.
func (s *Scheduler) Schedule(latency time.Duration, fn func()) {
	if latency < MinLatency {
		latency = MinLatency
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	deadline := s.now().Add(latency)
	e := &entry{deadline: deadline, seq: s.nextSeq, fn: fn}
	s.nextSeq++
	heap.Push(&s.heap, e)

	s.rearmLocked()
}

// rearmLocked (re)arms the single timer for the earliest heap entry, only
// if that entry's deadline is earlier than whatever is currently armed.
// Must be called with s.mu held.
func (s *Scheduler) rearmLocked() {
	if len(s.heap) == 0 {
		return
	}
	earliest := s.heap[0].deadline
	if s.timer != nil && !s.armed.After(earliest) && !s.armed.IsZero() {
		return // already armed for something at least as early
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.armed = earliest
	delay := earliest.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.timer = time.AfterFunc(delay, s.fire)
}

// fireRetryDelay is how soon fire retries after losing a TryLock race,
// so a fire that loses the race never strands the heap: the concurrent
// Schedule holding the lock may have seen s.armed still covering the
// deadline fire was about to service and skipped rearming on the
// assumption that the now-expired timer still has it covered.
const fireRetryDelay = 50 * time.Microsecond

// fire is the timer callback: it drains every entry whose deadline has
// passed, invokes each completion outside the lock (so a completion
// callback may itself call Schedule without deadlocking), then rearms for
// whatever remains. Uses TryLock so a fire racing a concurrent Schedule
// never blocks the timer goroutine behind a long-held lock; if it loses
// the race it reschedules itself after fireRetryDelay instead of simply
// returning, since the racing Schedule's rearmLocked may have treated this
// now-firing (and therefore no-longer-armed) timer as already covering the
// earliest deadline and skipped rearming.
func (s *Scheduler) fire() {
	if !s.mu.TryLock() {
		time.AfterFunc(fireRetryDelay, s.fire)
		return
	}

	now := s.now()
	var due []*entry
	for len(s.heap) > 0 && !s.heap[0].deadline.After(now) {
		due = append(due, heap.Pop(&s.heap).(*entry))
	}
	s.armed = time.Time{}
	s.rearmLocked()
	s.mu.Unlock()

	for _, e := range due {
		e.fn()
	}
}

// Pending returns the number of outstanding (not-yet-fired) completions.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

// Close stops the timer and discards all pending completions without
// invoking them. Safe to call once; further Schedule calls are no-ops.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.heap = s.heap[:0]
}
