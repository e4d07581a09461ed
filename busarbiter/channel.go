// Package busarbiter implements per-channel bus scheduling: a degenerate
// single-slot cursor protocol used by default, an optional full
// scheduling-table protocol, and the channel-selection formula that routes
// a physical address to its serving channel.
package busarbiter

import (
	"errors"
	"sync"
	"time"
)

// ErrBusSaturated is returned by the full protocol when the schedule table
// is full and no gap large enough for the transfer exists.
var ErrBusSaturated = errors.New("busarbiter: channel schedule table saturated")

// Channel holds one bus's scheduling state. The default (degenerate) mode
// only uses a single monotonic "last unlock" cursor; the full table+gap
// search mode is available via NewChannel's fullProtocol flag for callers
// that want stricter ordering guarantees at the cost of a bounded queue.
// Both modes charge ctrlDelay+dataDelay on every lock, in addition to the
// caller's own device-side transfer time.
type Channel struct {
	mu   sync.Mutex
	full bool

	ctrlDelay time.Duration
	dataDelay time.Duration

	// Degenerate protocol state.
	lastUnlock time.Duration

	// Full protocol state.
	table      *scheduleRing[int64]
	maxConnect uint32
}

// NewChannel builds one channel. tableSize and maxConnect are only
// consulted when fullProtocol is true: maxConnect caps the number of
// still-outstanding (not yet unlocked) transfers the channel will hold at
// once, independent of tableSize's storage capacity.
func NewChannel(ctrlDelay, dataDelay time.Duration, tableSize, maxConnect uint32, fullProtocol bool) *Channel {
	c := &Channel{
		full:       fullProtocol,
		maxConnect: maxConnect,
		ctrlDelay:  ctrlDelay,
		dataDelay:  dataDelay,
	}
	if fullProtocol {
		c.table = newScheduleRing[int64](int(tableSize))
	}
	return c
}

// Lock reserves the channel for a transfer of duration dur starting no
// earlier than `now` (the request's submission time). It charges
// ctrlDelay+dataDelay on top of dur, and returns the total held duration
// and the bus wait — the amount by which the grant was delayed past `now`
// — or an error if the channel is saturated.
func (c *Channel) Lock(now, dur time.Duration) (held, busWait time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	held = dur + c.ctrlDelay + c.dataDelay
	if !c.full {
		return held, c.lockDegenerate(now, held), nil
	}
	busWait, err = c.lockFull(now, held)
	return held, busWait, err
}

// lockDegenerate implements the default single-slot monotonic cursor:
// strict FIFO, no reordering, unbounded queueing, always succeeds.
func (c *Channel) lockDegenerate(now, dur time.Duration) time.Duration {
	start := c.lastUnlock
	if now > start {
		start = now
	}
	c.lastUnlock = start + dur
	return start - now
}

// lockFull implements the optional table+gap-search protocol: purge
// expired entries, refuse if maxConnect outstanding transfers are already
// held, find the earliest gap of at least `dur`, insert, or fail if the
// table is at capacity with no gap.
func (c *Channel) lockFull(now, dur time.Duration) (time.Duration, error) {
	nowNs := int64(now)
	durNs := int64(dur)

	c.table.PurgeExpired(nowNs)

	if uint32(c.table.Len()) >= c.maxConnect {
		return 0, ErrBusSaturated
	}

	start, ok := c.table.FindGap(nowNs, durNs)
	if !ok {
		c.table.Flush()
		return 0, ErrBusSaturated
	}
	if !c.table.Insert(scheduleEntry[int64]{lock: start, unlock: start + durNs}) {
		c.table.Flush()
		return 0, ErrBusSaturated
	}
	return time.Duration(start) - now, nil
}

// Bus is SSD_SIZE independent channels operating in parallel.
type Bus struct {
	channels []*Channel
}

// NewBus builds count channels, each configured identically from cfg.
func NewBus(count int, ctrlDelay, dataDelay time.Duration, tableSize, maxConnect uint32, fullProtocol bool) *Bus {
	b := &Bus{channels: make([]*Channel, count)}
	for i := range b.channels {
		b.channels[i] = NewChannel(ctrlDelay, dataDelay, tableSize, maxConnect, fullProtocol)
	}
	return b
}

// Channel returns the channel at the given index.
func (b *Bus) Channel(index uint32) *Channel { return b.channels[index] }

// SelectChannel implements bank-group-interleaving formula:
// with bankGroupBits = b, channel index = (package & ~((1<<b)-1)) |
// (page & ((1<<b)-1)). When b == 0 this reduces to plain `package`.
func SelectChannel(pkg, page uint32, bankGroupBits uint32) uint32 {
	if bankGroupBits == 0 {
		return pkg
	}
	mask := uint32(1)<<bankGroupBits - 1
	return (pkg &^ mask) | (page & mask)
}
