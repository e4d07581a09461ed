package busarbiter

import "golang.org/x/exp/constraints"

// scheduleRing is a fixed-capacity ring buffer of (lock, unlock) pairs kept
// sorted ascending by unlock time: same ascending-order insert and
// prefix-removal operations as a sliding-window event history over a
// constraints.Ordered element type, but bounded — the full-protocol
// schedule table has a fixed capacity and rejects once full rather than
// growing without limit.
type scheduleRing[T constraints.Ordered] struct {
	entries []scheduleEntry[T]
	cap     int
}

type scheduleEntry[T constraints.Ordered] struct {
	lock   T
	unlock T
}

func newScheduleRing[T constraints.Ordered](capacity int) *scheduleRing[T] {
	return &scheduleRing[T]{entries: make([]scheduleEntry[T], 0, capacity), cap: capacity}
}

func (r *scheduleRing[T]) Len() int { return len(r.entries) }

func (r *scheduleRing[T]) Full() bool { return len(r.entries) >= r.cap }

// PurgeExpired drops every entry whose unlock time is <= now.
func (r *scheduleRing[T]) PurgeExpired(now T) {
	i := 0
	for i < len(r.entries) && r.entries[i].unlock <= now {
		i++
	}
	if i > 0 {
		r.entries = append(r.entries[:0], r.entries[i:]...)
	}
}

// Insert places e in ascending-unlock-time order, returning false if the
// table is already at capacity.
func (r *scheduleRing[T]) Insert(e scheduleEntry[T]) bool {
	if r.Full() {
		return false
	}
	i := 0
	for i < len(r.entries) && r.entries[i].unlock <= e.unlock {
		i++
	}
	r.entries = append(r.entries, scheduleEntry[T]{})
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = e
	return true
}

// FindGap returns the earliest start time at or after `earliest` where a
// transfer of duration `dur` fits strictly between two scheduled entries,
// or after the last one. ok is false only when the table has no room and no
// gap was found (the caller should then treat this as BusSaturation).
func (r *scheduleRing[T]) FindGap(earliest, dur T) (start T, ok bool) {
	cursor := earliest
	for _, e := range r.entries {
		if e.lock >= cursor+dur {
			return cursor, true
		}
		if e.unlock > cursor {
			cursor = e.unlock
		}
	}
	return cursor, true
}

// Flush empties the table.
func (r *scheduleRing[T]) Flush() {
	r.entries = r.entries[:0]
}
