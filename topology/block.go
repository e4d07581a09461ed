package topology

import (
	"errors"
	"time"

	"github.com/thustorage/ramssd/simevent"
)

// BlockState is derived from the page counters, never stored independently.
type BlockState int

const (
	Free BlockState = iota
	Active
	Inactive
)

func (s BlockState) String() string {
	switch s {
	case Free:
		return "FREE"
	case Active:
		return "ACTIVE"
	case Inactive:
		return "INACTIVE"
	default:
		return "UNKNOWN"
	}
}

// ErrNonEmptyWrite is returned in StrictPageState mode when a write targets
// a page that is not EMPTY.
var ErrNonEmptyWrite = errors.New("topology: write of non-empty page")

// ErrInvalidRead is returned in StrictPageState mode when a read targets a
// page whose state is INVALID.
var ErrInvalidRead = errors.New("topology: read of invalid page")

// Block is the smallest erasable unit: an array of pages plus valid/invalid
// counters, a wear counter, and the time of its last erase.
type Block struct {
	pages           []page
	pagesValid      int
	pagesInvalid    int
	erasesRemaining uint32
	lastEraseTime   time.Duration
	strictPageState bool
	wearLevelling   bool
}

func newBlock(pagesPerBlock uint32, erasesRemaining uint32, strict, wearLevelling bool) *Block {
	return &Block{
		pages:           make([]page, pagesPerBlock),
		erasesRemaining: erasesRemaining,
		strictPageState: strict,
		wearLevelling:   wearLevelling,
	}
}

// State derives the block's state purely from its counters: FREE iff both
// counters are 0, INACTIVE iff pagesInvalid reaches the block size, else
// ACTIVE.
func (b *Block) State() BlockState {
	switch {
	case b.pagesValid == 0 && b.pagesInvalid == 0:
		return Free
	case b.pagesInvalid >= len(b.pages):
		return Inactive
	default:
		return Active
	}
}

// PagesValid, PagesInvalid, ErasesRemaining, LastEraseTime expose read-only
// wear/occupancy state for tests and roll-up computations.
func (b *Block) PagesValid() int              { return b.pagesValid }
func (b *Block) PagesInvalid() int            { return b.pagesInvalid }
func (b *Block) ErasesRemaining() uint32      { return b.erasesRemaining }
func (b *Block) LastEraseTime() time.Duration { return b.lastEraseTime }
func (b *Block) Size() int                    { return len(b.pages) }

// PageState returns the state of the page at the given index.
func (b *Block) PageState(index uint32) PageState {
	return b.pages[index].state
}

// read charges the page-read delay and, in strict mode, refuses reads of
// INVALID pages. Reads of EMPTY pages always succeed silently regardless of
// strictness.
func (b *Block) read(cfg blockDelays, event *simevent.Event) error {
	page := &b.pages[event.Address.Page]
	if b.strictPageState && page.state == Invalid {
		return ErrInvalidRead
	}
	event.AddDelay(cfg.pageRead)
	return nil
}

// write charges PAGE_WRITE_DELAY and marks the page VALID. In strict mode,
// writing a non-EMPTY page fails; in loose (shipped) mode it is always
// allowed.
func (b *Block) write(cfg blockDelays, event *simevent.Event) error {
	p := &b.pages[event.Address.Page]
	if b.strictPageState && p.state != Empty {
		return ErrNonEmptyWrite
	}
	p.state = Valid
	b.pagesValid++
	event.AddDelay(cfg.pageWrite)
	return nil
}

// invalidatePage drives a VALID page to INVALID, used by merge.
func (b *Block) invalidatePage(index uint32) {
	p := &b.pages[index]
	if p.state == Valid {
		p.state = Invalid
		b.pagesValid--
		b.pagesInvalid++
	}
}

// erase drives every page to EMPTY, charges BLOCK_ERASE_DELAY, stamps
// last_erase_time, resets counters, and decrements the wear counter when
// wear-levelling is enabled.
func (b *Block) erase(cfg blockDelays, event *simevent.Event) error {
	for i := range b.pages {
		b.pages[i].state = Empty
	}
	event.AddDelay(cfg.blockErase)
	b.lastEraseTime = event.SubmissionTime + event.TimeTaken
	b.pagesValid = 0
	b.pagesInvalid = 0
	if b.wearLevelling && b.erasesRemaining > 0 {
		b.erasesRemaining--
	}
	return nil
}

// nextEmptyPage returns the index of the first EMPTY page starting from
// `from`, scanning to the end of the block. ok is false if none is found.
func (b *Block) nextEmptyPage(from uint32) (index uint32, ok bool) {
	for i := from; i < uint32(len(b.pages)); i++ {
		if b.pages[i].state == Empty {
			return i, true
		}
	}
	return 0, false
}

// blockDelays is the subset of config.Config a block needs, threaded
// through explicitly instead of as a package-level global.
type blockDelays struct {
	pageRead   time.Duration
	pageWrite  time.Duration
	blockErase time.Duration
}
