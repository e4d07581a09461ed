package topology

import (
	"errors"
	"time"

	"github.com/thustorage/ramssd/simevent"
)

// ErrMergeOverflow is returned when a merge's source has more VALID pages
// than the target has EMPTY pages.
var ErrMergeOverflow = errors.New("topology: merge target has insufficient space")

// nextPageCursor tracks the next usable EMPTY page in a Plane, maintained
// incrementally by write/erase so ssd_plane_get_free_page style lookups run
// in constant time.
type nextPageCursor struct {
	block    uint32
	page     uint32
	validity simevent.Validity // PageLevel if a free page exists, PlaneLevel if the plane is full
}

// Plane is an array of blocks operable in parallel within a Die.
type Plane struct {
	blocks      []*Block
	freeBlocks  int
	nextPage    nextPageCursor
	leastWorn   uint32
	pageDelays  blockDelays
	regReadDly  time.Duration
	regWriteDly time.Duration
}

func newPlane(cfg delayConfig, blocksPerPlane uint32) *Plane {
	delays := blockDelays{pageRead: cfg.pageRead, pageWrite: cfg.pageWrite, blockErase: cfg.blockErase}
	p := &Plane{
		blocks:      make([]*Block, blocksPerPlane),
		freeBlocks:  int(blocksPerPlane),
		pageDelays:  delays,
		regReadDly:  cfg.planeRegRead,
		regWriteDly: cfg.planeRegWrite,
	}
	for i := range p.blocks {
		p.blocks[i] = newBlock(cfg.pagesPerBlock, cfg.blockErases, cfg.strictPageState, cfg.wearLevelling)
	}
	p.nextPage = nextPageCursor{block: 0, page: 0, validity: simevent.PageLevel}
	return p
}

// FreeBlocks returns the count of blocks currently in the FREE state.
func (p *Plane) FreeBlocks() int { return p.freeBlocks }

// Block returns the block at the given index (read-only access for tests
// and roll-up computations).
func (p *Plane) Block(index uint32) *Block { return p.blocks[index] }

// NextPageValidity reports the validity of the free-page cursor: PageLevel
// if an EMPTY page exists anywhere in the plane, PlaneLevel if the plane is
// full.
func (p *Plane) NextPageValidity() simevent.Validity { return p.nextPage.validity }

func (p *Plane) read(event *simevent.Event) error {
	a := event.Address
	return p.blocks[a.Block].read(p.pageDelays, event)
}

func (p *Plane) write(event *simevent.Event) error {
	a := event.Address
	wasFree := p.blocks[a.Block].State() == Free

	if a.Block == p.nextPage.block {
		defer p.advanceNextPage()
	}

	if err := p.blocks[a.Block].write(p.pageDelays, event); err != nil {
		return err
	}

	if wasFree && p.blocks[a.Block].State() != Free {
		p.freeBlocks--
	}
	return nil
}

func (p *Plane) erase(event *simevent.Event) error {
	a := event.Address
	if err := p.blocks[a.Block].erase(p.pageDelays, event); err != nil {
		return err
	}
	p.freeBlocks++
	if p.nextPage.validity < simevent.PageLevel {
		p.advanceNextPage()
	}
	return nil
}

// merge moves every VALID page of the source block into EMPTY pages of the
// target block, in page index order, charging PAGE_READ+PLANE_REG_WRITE per
// source page and PAGE_WRITE+PLANE_REG_READ per target page.
func (p *Plane) merge(event *simevent.Event) error {
	src := p.blocks[event.Address.Block]
	dst := p.blocks[event.MergeAddress.Block]

	validCount := src.PagesValid()
	emptyCount := 0
	for i := 0; i < dst.Size(); i++ {
		if dst.PageState(uint32(i)) == Empty {
			emptyCount++
		}
	}
	if validCount > emptyCount {
		return ErrMergeOverflow
	}

	writeCursor := uint32(0)
	delays := p.pageDelays
	for srcPage := uint32(0); srcPage < uint32(src.Size()); srcPage++ {
		if src.PageState(srcPage) != Valid {
			continue
		}
		event.AddDelay(delays.pageRead)
		event.AddDelay(p.regWriteDly)
		src.invalidatePage(srcPage)

		target, ok := dst.nextEmptyPage(writeCursor)
		if !ok {
			return ErrMergeOverflow
		}
		dst.pages[target].state = Valid
		dst.pagesValid++
		event.AddDelay(delays.pageWrite)
		event.AddDelay(p.regReadDly)
		writeCursor = target + 1
	}

	if p.nextPage.validity < simevent.PageLevel {
		p.advanceNextPage()
	}
	return nil
}

// freePage reports the next usable EMPTY page location.
func (p *Plane) freePage() (block, pg uint32, validity simevent.Validity) {
	return p.nextPage.block, p.nextPage.page, p.nextPage.validity
}

// advanceNextPage re-derives the next-free-page cursor: first within the
// current block, else across blocks in index order, else marks the plane
// full.
func (p *Plane) advanceNextPage() {
	if pg, ok := p.blocks[p.nextPage.block].nextEmptyPage(0); ok {
		p.nextPage.page = pg
		p.nextPage.validity = simevent.PageLevel
		return
	}
	for b := uint32(0); b < uint32(len(p.blocks)); b++ {
		if pg, ok := p.blocks[b].nextEmptyPage(0); ok {
			p.nextPage.block = b
			p.nextPage.page = pg
			p.nextPage.validity = simevent.PageLevel
			return
		}
	}
	p.nextPage.validity = simevent.PlaneLevel
}

// leastWornBlock returns the index of the block with the most erases
// remaining.
func (p *Plane) leastWornBlock() uint32 {
	maxIdx := uint32(0)
	maxVal := p.blocks[0].ErasesRemaining()
	for i := uint32(1); i < uint32(len(p.blocks)); i++ {
		if p.blocks[i].ErasesRemaining() > maxVal {
			maxVal = p.blocks[i].ErasesRemaining()
			maxIdx = i
		}
	}
	p.leastWorn = maxIdx
	return maxIdx
}

func (p *Plane) erasesRemaining() uint32 {
	idx := p.leastWornBlock()
	return p.blocks[idx].ErasesRemaining()
}

func (p *Plane) lastEraseTime() time.Duration {
	idx := p.leastWornBlock()
	return p.blocks[idx].LastEraseTime()
}
