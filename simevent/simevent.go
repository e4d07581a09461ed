// Package simevent defines the Event and Address types that flow through
// the topology, channel arbiter, and engine packages.
package simevent

import "time"

// Kind is the operation an Event carries. MERGE is internal-only — it is
// never submitted through engine.Engine.Arrive directly, only generated by
// the plane's free-space reclamation path.
type Kind int

const (
	Read Kind = iota
	Write
	Erase
	Merge
)

func (k Kind) String() string {
	switch k {
	case Read:
		return "READ"
	case Write:
		return "WRITE"
	case Erase:
		return "ERASE"
	case Merge:
		return "MERGE"
	default:
		return "UNKNOWN"
	}
}

// Validity indicates which prefix fields of an Address are meaningful.
type Validity int

const (
	None Validity = iota
	PackageLevel
	DieLevel
	PlaneLevel
	BlockLevel
	PageLevel
)

// Address is a physical location tuple, decoded from a logical page number
// by topology.Decode. Validity records how many of the fields below are
// meaningful: e.g. Validity == BlockLevel means Package/Die/Plane/Block are
// set but Page is not.
type Address struct {
	Package  uint32
	Die      uint32
	Plane    uint32
	Block    uint32
	Page     uint32
	Validity Validity
}

// MatchesUpTo reports whether a and b agree on every field up to (but not
// including) depth, and both are valid to at least that depth.
func (a Address) MatchesUpTo(b Address, depth Validity) bool {
	if a.Validity < depth || b.Validity < depth {
		return false
	}
	if depth >= PackageLevel && a.Package != b.Package {
		return false
	}
	if depth >= DieLevel && a.Die != b.Die {
		return false
	}
	if depth >= PlaneLevel && a.Plane != b.Plane {
		return false
	}
	if depth >= BlockLevel && a.Block != b.Block {
		return false
	}
	if depth >= PageLevel && a.Page != b.Page {
		return false
	}
	return true
}

// Event is a submitted request, created per call to engine.Engine.Arrive and
// discarded once the engine returns the computed latency.
type Event struct {
	Kind           Kind
	LogicalPage    uint64
	SizeInPages    uint32
	SubmissionTime time.Duration

	// TimeTaken accumulates latency as the event is traversed down the
	// topology and then through the channel arbiter. Starts at 0.
	TimeTaken time.Duration

	// BusWaitTime is the portion of TimeTaken attributable to channel
	// serialization rather than device time.
	BusWaitTime time.Duration

	// Address is the primary physical location, set by topology.Decode.
	Address Address

	// MergeAddress is the target block for a Merge event; zero value for
	// all other kinds.
	MergeAddress Address
}

// AddDelay accumulates d into the event's running total latency.
func (e *Event) AddDelay(d time.Duration) {
	e.TimeTaken += d
}
