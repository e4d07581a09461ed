// Package topology implements the static Package/Die/Plane/Block/Page
// hierarchy and the address decoder. It does not own the Bus: ownership of
// both the topology tree and the Bus is realized one layer up, in package
// engine, to avoid a topology<->busarbiter import cycle (busarbiter only
// needs simevent.Address, not the tree itself).
package topology

import (
	"errors"
	"time"

	"github.com/thustorage/ramssd/config"
	"github.com/thustorage/ramssd/simevent"
)

// delayConfig is the subset of config.Config the topology needs, threaded
// explicitly into every constructor.
type delayConfig struct {
	blocksPerPlane uint32
	planesPerDie   uint32
	pagesPerBlock  uint32

	pageRead      time.Duration
	pageWrite     time.Duration
	blockErase    time.Duration
	planeRegRead  time.Duration
	planeRegWrite time.Duration
	blockErases   uint32

	strictPageState bool
	wearLevelling   bool
}

func newDelayConfig(c config.Config) delayConfig {
	return delayConfig{
		blocksPerPlane:  c.PlaneSize,
		planesPerDie:    c.DieSize,
		pagesPerBlock:   c.BlockSize,
		pageRead:        c.PageRead,
		pageWrite:       c.PageWrite,
		blockErase:      c.BlockErase,
		planeRegRead:    c.PlaneRegRead,
		planeRegWrite:   c.PlaneRegWrite,
		blockErases:     c.BlockErases,
		strictPageState: c.StrictPageState,
		wearLevelling:   c.WearLevelling,
	}
}

// Ssd is the static hierarchy root: an array of packages. It is built once
// at device creation and never mutates its shape afterward — no node is
// ever allocated or freed while the device is live.
type Ssd struct {
	cfg      config.Config
	packages []*Package
}

// New builds the full static tree from cfg.
func New(cfg config.Config) *Ssd {
	dc := newDelayConfig(cfg)
	s := &Ssd{cfg: cfg, packages: make([]*Package, cfg.SSDSize)}
	for i := range s.packages {
		s.packages[i] = newPackage(dc, cfg.PackageSize)
	}
	return s
}

// Config returns the immutable configuration this tree was built from.
func (s *Ssd) Config() config.Config { return s.cfg }

// Package returns the package at the given index.
func (s *Ssd) Package(index uint32) *Package { return s.packages[index] }

// Read dispatches a READ event down to the targeted page.
func (s *Ssd) Read(event *simevent.Event) error {
	return s.packages[event.Address.Package].read(event)
}

// Write dispatches a WRITE event.
func (s *Ssd) Write(event *simevent.Event) error {
	return s.packages[event.Address.Package].write(event)
}

// Erase dispatches an ERASE event, block-level.
func (s *Ssd) Erase(event *simevent.Event) error {
	return s.packages[event.Address.Package].erase(event)
}

// ErrCrossPlaneMerge is returned by Merge when the source and target
// addresses name different packages, dies, or planes. Merge only ever
// moves data between two blocks of the same plane; a cross-plane move is
// refused explicitly rather than silently merging against a mismatched
// block index in the source's own plane.
var ErrCrossPlaneMerge = errors.New("topology: merge target is not in the same plane as the source")

// Merge dispatches a MERGE event, plane-local.
func (s *Ssd) Merge(event *simevent.Event) error {
	src, dst := event.Address, event.MergeAddress
	if src.Package != dst.Package || src.Die != dst.Die || src.Plane != dst.Plane {
		return ErrCrossPlaneMerge
	}
	return s.packages[event.Address.Package].merge(event)
}

// FreePage reports the next usable EMPTY page in the plane addressed by
// addr.
func (s *Ssd) FreePage(addr simevent.Address) (block, page uint32, validity simevent.Validity) {
	plane := s.packages[addr.Package].dies[addr.Die].planes[addr.Plane]
	return plane.freePage()
}
