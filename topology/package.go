package topology

import (
	"time"

	"github.com/thustorage/ramssd/simevent"
)

// Package is several dies; it keeps rolled-up wear statistics the way Die
// and Plane do.
type Package struct {
	dies      []*Die
	leastWorn uint32
}

func newPackage(cfg delayConfig, diesPerPackage uint32) *Package {
	p := &Package{dies: make([]*Die, diesPerPackage)}
	for i := range p.dies {
		p.dies[i] = newDie(cfg, cfg.planesPerDie)
	}
	return p
}

// Die returns the die at the given index.
func (p *Package) Die(index uint32) *Die { return p.dies[index] }

func (p *Package) read(event *simevent.Event) error {
	return p.dies[event.Address.Die].read(event)
}

func (p *Package) write(event *simevent.Event) error {
	return p.dies[event.Address.Die].write(event)
}

func (p *Package) erase(event *simevent.Event) error {
	return p.dies[event.Address.Die].erase(event)
}

func (p *Package) merge(event *simevent.Event) error {
	return p.dies[event.Address.Die].merge(event)
}

func (p *Package) leastWornDie() uint32 {
	maxIdx := uint32(0)
	maxVal := p.dies[0].erasesRemaining()
	for i := uint32(1); i < uint32(len(p.dies)); i++ {
		if v := p.dies[i].erasesRemaining(); v > maxVal {
			maxVal = v
			maxIdx = i
		}
	}
	p.leastWorn = maxIdx
	return maxIdx
}

func (p *Package) erasesRemaining() uint32 {
	return p.dies[p.leastWornDie()].erasesRemaining()
}

func (p *Package) lastEraseTime() time.Duration {
	return p.dies[p.leastWornDie()].lastEraseTime()
}
