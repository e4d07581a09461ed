// Package engine implements the event engine: for each arriving request it
// decodes an address, traverses the topology accumulating device-time
// delays, then locks the serving channel accumulating bus-wait delay, and
// returns the total latency.
//
// Engine is also where ownership of both the topology tree and the Bus
// lives (see topology.Ssd's doc comment for why that isn't in package
// topology itself).
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/thustorage/ramssd/busarbiter"
	"github.com/thustorage/ramssd/config"
	"github.com/thustorage/ramssd/simevent"
	"github.com/thustorage/ramssd/ssdlog"
	"github.com/thustorage/ramssd/topology"
)

// ErrInvalidKind is returned when Arrive is called with a kind other than
// READ, WRITE, or ERASE (MERGE is internal-only).
var ErrInvalidKind = errors.New("engine: invalid kind for Arrive")

// DefaultBankGroupBits is the default channel-selection setting: 0 reduces
// channel selection to plain package index. Non-zero values spread
// sequential page writes across channels to exploit bank-group
// interleaving; the simulator exposes it for experimentation.
const DefaultBankGroupBits = 0

// Engine owns one device's topology tree and bus, and serializes all
// mutation behind simLock. simLock only protects the engine's own state;
// it does not by itself serialize concurrent callers against the backing
// store or scheduler — see blockdevice.Device for that.
type Engine struct {
	cfg           config.Config
	ssd           *topology.Ssd
	bus           *busarbiter.Bus
	bankGroupBits uint32
	logger        ssdlog.Logger

	// simLock is sim_lock: it serializes topology mutation and
	// channel locking within one Arrive/Merge call.
	simLock sync.Mutex
}

// New builds an Engine for a fresh device using cfg. bankGroupBits
// configures channel selection (0 = plain package-index routing).
func New(cfg config.Config, bankGroupBits uint32, logger ssdlog.Logger) *Engine {
	if logger == nil {
		logger = ssdlog.Default()
	}
	bus := busarbiter.NewBus(int(cfg.SSDSize), cfg.BusCtrl, cfg.BusData, cfg.BusTableSize, cfg.BusMaxConnect, cfg.FullBusProtocol)
	e := &Engine{
		cfg:           cfg,
		ssd:           topology.New(cfg),
		bus:           bus,
		bankGroupBits: bankGroupBits,
		logger:        logger,
	}
	return e
}

// Ssd returns the underlying topology tree, for tests and roll-up queries.
func (e *Engine) Ssd() *topology.Ssd { return e.ssd }

// Config returns the engine's immutable configuration.
func (e *Engine) Config() config.Config { return e.cfg }

// Arrive initializes an event, dispatches it through the topology, charges
// bus control+data delay, locks the serving channel, and returns the total
// latency. kind must be Read, Write, or Erase.
func (e *Engine) Arrive(kind simevent.Kind, logicalPage uint64, sizeInPages uint32, submissionTime time.Duration) (time.Duration, error) {
	if kind != simevent.Read && kind != simevent.Write && kind != simevent.Erase {
		return 0, fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}

	addr, err := topology.Decode(e.cfg, logicalPage)
	if err != nil {
		return 0, err
	}

	event := &simevent.Event{
		Kind:           kind,
		LogicalPage:    logicalPage,
		SizeInPages:    sizeInPages,
		SubmissionTime: submissionTime,
		Address:        addr,
	}

	e.simLock.Lock()
	defer e.simLock.Unlock()

	if err := e.dispatch(event); err != nil {
		e.logger.Warn("engine: topology error", "kind", kind.String(), "lpn", logicalPage, "err", err.Error())
		return 0, err
	}

	channelIdx := busarbiter.SelectChannel(event.Address.Package, event.Address.Page, e.bankGroupBits)
	channel := e.bus.Channel(channelIdx)

	// Lock charges its own ctrl+data delay on top of the device-side
	// duration accumulated by dispatch, and returns the held duration
	// (device time + ctrl+data) along with however long the grant was
	// delayed behind other requests on the same channel.
	held, wait, err := channel.Lock(event.SubmissionTime, event.TimeTaken)
	if err != nil {
		e.logger.Warn("engine: bus saturated", "channel", channelIdx, "err", err.Error())
		return 0, err
	}
	event.TimeTaken = held
	event.BusWaitTime += wait
	event.TimeTaken += wait

	return event.TimeTaken, nil
}

func (e *Engine) dispatch(event *simevent.Event) error {
	switch event.Kind {
	case simevent.Read:
		return e.ssd.Read(event)
	case simevent.Write:
		return e.ssd.Write(event)
	case simevent.Erase:
		return e.ssd.Erase(event)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidKind, event.Kind)
	}
}

// Merge is the internal-only MERGE operation: it is never reachable from
// Arrive, only from a caller implementing its own reclamation policy. The
// simulator never invokes Merge automatically.
func (e *Engine) Merge(logicalPage, mergeLogicalPage uint64, submissionTime time.Duration) (time.Duration, error) {
	srcAddr, err := topology.Decode(e.cfg, logicalPage)
	if err != nil {
		return 0, err
	}
	dstAddr, err := topology.Decode(e.cfg, mergeLogicalPage)
	if err != nil {
		return 0, err
	}

	event := &simevent.Event{
		Kind:           simevent.Merge,
		LogicalPage:    logicalPage,
		SubmissionTime: submissionTime,
		Address:        srcAddr,
		MergeAddress:   dstAddr,
	}

	e.simLock.Lock()
	defer e.simLock.Unlock()

	if err := e.ssd.Merge(event); err != nil {
		return 0, err
	}
	return event.TimeTaken, nil
}
