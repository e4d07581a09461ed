package topology

import (
	"time"

	"github.com/thustorage/ramssd/simevent"
)

// Die is a chip: an array of planes bound to exactly one channel. Sibling
// dies under one package may share a channel or not, depending on the
// channel-selection formula in busarbiter.
type Die struct {
	planes    []*Plane
	leastWorn uint32
}

func newDie(cfg delayConfig, planesPerDie uint32) *Die {
	d := &Die{planes: make([]*Plane, planesPerDie)}
	for i := range d.planes {
		d.planes[i] = newPlane(cfg, cfg.blocksPerPlane)
	}
	return d
}

// Plane returns the plane at the given index.
func (d *Die) Plane(index uint32) *Plane { return d.planes[index] }

func (d *Die) read(event *simevent.Event) error {
	return d.planes[event.Address.Plane].read(event)
}

func (d *Die) write(event *simevent.Event) error {
	return d.planes[event.Address.Plane].write(event)
}

func (d *Die) erase(event *simevent.Event) error {
	return d.planes[event.Address.Plane].erase(event)
}

func (d *Die) merge(event *simevent.Event) error {
	return d.planes[event.Address.Plane].merge(event)
}

func (d *Die) leastWornPlane() uint32 {
	maxIdx := uint32(0)
	maxVal := d.planes[0].erasesRemaining()
	for i := uint32(1); i < uint32(len(d.planes)); i++ {
		if v := d.planes[i].erasesRemaining(); v > maxVal {
			maxVal = v
			maxIdx = i
		}
	}
	d.leastWorn = maxIdx
	return maxIdx
}

func (d *Die) erasesRemaining() uint32 {
	return d.planes[d.leastWornPlane()].erasesRemaining()
}

func (d *Die) lastEraseTime() time.Duration {
	return d.planes[d.leastWornPlane()].lastEraseTime()
}
