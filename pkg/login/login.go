// Package login implements the alias-allocation login state machine: the
// per-node sequence that claims a 12-bit CAN alias for a 48-bit Node ID,
// retrying on collision, before the node is permitted to exchange
// OpenLCB messages.
package login

import (
	"log/slog"

	lcc "github.com/openlcb-go/lcc"
	"github.com/openlcb-go/lcc/internal/lfsr"
)

// State names one step of the 10-state login sequence: seed, alias,
// the four-frame CID sequence (one state, four frames), the 200ms wait,
// RID, AMD, Initialization Complete, producer-identify, consumer-identify,
// and finally Permitted.
type State int

const (
	StateGenerateSeed State = iota
	StateGenerateAlias
	StateLoadCID
	StateWait200ms
	StateLoadReserveID
	StateLoadAMD
	StateLoadInitializationComplete
	StateLoadProducerEvents
	StateLoadConsumerEvents
	StatePermitted
)

func (s State) String() string {
	switch s {
	case StateGenerateSeed:
		return "GENERATE_SEED"
	case StateGenerateAlias:
		return "GENERATE_ALIAS"
	case StateLoadCID:
		return "LOAD_CID"
	case StateWait200ms:
		return "WAIT_200ms"
	case StateLoadReserveID:
		return "LOAD_RESERVE_ID"
	case StateLoadAMD:
		return "LOAD_AMD"
	case StateLoadInitializationComplete:
		return "LOAD_INITIALIZATION_COMPLETE"
	case StateLoadProducerEvents:
		return "LOAD_PRODUCER_EVENTS"
	case StateLoadConsumerEvents:
		return "LOAD_CONSUMER_EVENTS"
	case StatePermitted:
		return "PERMITTED"
	default:
		return "UNKNOWN"
	}
}

// waitTicksRequired is the number of 100ms ticks the machine waits after
// emitting CID4, before claiming the alias with RID. OpenLCB requires
// >=200ms (>=2 ticks); the observed/required margin in the reference
// implementation is >2 ticks (>=300ms observed).
const waitTicksRequired = 3

// EnumerateFunc is called by StateLoadProducerEvents/StateLoadConsumerEvents
// to emit one Producer/Consumer Identified frame per call; it returns false
// once the node's event lists are exhausted.
type EnumerateFunc func(emit func(mti uint16, eventID uint64) bool) (more bool)

// Machine drives one node's login sequence. It is not safe for
// concurrent use; the engine serializes access under its shared lock.
type Machine struct {
	logger *slog.Logger

	nodeID       lcc.NodeID
	simplePSI    bool // PSI flag selecting Initialization Complete Simple (0x0101) vs full (0x0100)
	seed         lfsr.Seed
	pendingAlias lcc.Alias

	state       State
	cidSeq      uint8 // 7,6,5,4 while in StateLoadCID
	waitTicks   int
	conflicted  bool

	producerNext int
	consumerNext int
	enumerateProducers EnumerateFunc
	enumerateConsumers EnumerateFunc

	onLoginComplete func()
}

// AddLoginCompleteCallback registers a callback invoked exactly once,
// the Step that carries the machine into StatePermitted. Mirrors an
// NMT state-change-callback shape, simplified to a single subscriber
// since a node has exactly one login machine and exactly one caller
// (the node's embedder) ever wires one.
func (m *Machine) AddLoginCompleteCallback(cb func()) {
	m.onLoginComplete = cb
}

// New creates a login machine for a node, seeded from its Node ID per the
// reference implementation's convention of seeding the LFSR from the
// node's own identity on first login.
func New(logger *slog.Logger, nodeID lcc.NodeID, simplePSI bool, enumerateProducers, enumerateConsumers EnumerateFunc) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		logger:             logger.With("service", "[LOGIN]"),
		nodeID:             nodeID,
		simplePSI:          simplePSI,
		seed:               lfsr.Seed(uint64(nodeID)),
		state:              StateGenerateSeed,
		enumerateProducers: enumerateProducers,
		enumerateConsumers: enumerateConsumers,
	}
}

// Done reports whether the node has completed login and is permitted.
func (m *Machine) Done() bool { return m.state == StatePermitted }

// PendingAlias returns the alias currently claimed or being claimed.
func (m *Machine) PendingAlias() lcc.Alias { return m.pendingAlias }

// OnConflict is called by the engine's Run when the alias table has
// flagged our pending or assigned alias as claimed by a foreign frame.
// It flags the machine to restart from GENERATE_SEED on the next Step.
func (m *Machine) OnConflict() {
	m.conflicted = true
}

// Step advances the state machine by one call, corresponding to one
// dispatch-loop iteration. emit is called with each raw frame to send
// (bypassing the fragmenter, per the CID/RID/AMD/AME fast path); it
// returns false if the hardware transmit buffer is full, in which case
// Step leaves the state unchanged so the caller retries next time.
func (m *Machine) Step(emit func(lcc.Frame) bool) {
	if m.conflicted && m.state != StateGenerateSeed {
		m.logger.Info("alias conflict detected, restarting login", "alias", m.pendingAlias)
		m.state = StateGenerateSeed
		m.conflicted = false
		return
	}

	prior := m.state

	switch m.state {
	case StateGenerateSeed:
		m.seed = lfsr.NextSeed(m.seed)
		m.state = StateGenerateAlias

	case StateGenerateAlias:
		m.pendingAlias = lcc.Alias(lfsr.Alias(m.seed))
		if !m.pendingAlias.Valid() {
			// Zero alias is reserved; advance the seed and retry.
			m.state = StateGenerateSeed
			return
		}
		m.cidSeq = 7
		m.state = StateLoadCID

	case StateLoadCID:
		if !emit(m.cidFrame(m.cidSeq)) {
			return
		}
		if m.cidSeq == 4 {
			m.waitTicks = 0
			m.state = StateWait200ms
			return
		}
		m.cidSeq--

	case StateWait200ms:
		m.waitTicks++
		if m.waitTicks > waitTicksRequired {
			m.state = StateLoadReserveID
		}

	case StateLoadReserveID:
		if !emit(m.controlFrame(lcc.VarFieldRID)) {
			return
		}
		m.state = StateLoadAMD

	case StateLoadAMD:
		if !emit(m.amdFrame()) {
			return
		}
		m.state = StateLoadInitializationComplete

	case StateLoadInitializationComplete:
		mti := uint16(0x0100)
		if m.simplePSI {
			mti = 0x0101
		}
		if !emit(m.messageFrame(mti, m.nodeIDPayload())) {
			return
		}
		m.producerNext, m.consumerNext = 0, 0
		m.state = StateLoadProducerEvents

	case StateLoadProducerEvents:
		if m.enumerateProducers == nil {
			m.state = StateLoadConsumerEvents
			return
		}
		more := m.enumerateProducers(func(mti uint16, eventID uint64) bool {
			return emit(m.messageFrame(mti, eventIDPayload(eventID)))
		})
		if !more {
			m.state = StateLoadConsumerEvents
		}

	case StateLoadConsumerEvents:
		if m.enumerateConsumers == nil {
			m.state = StatePermitted
		} else {
			more := m.enumerateConsumers(func(mti uint16, eventID uint64) bool {
				return emit(m.messageFrame(mti, eventIDPayload(eventID)))
			})
			if !more {
				m.state = StatePermitted
			}
		}

	case StatePermitted:
		// Terminal; nothing to do. A subsequent OnConflict will restart us.
	}

	if m.state == StatePermitted && prior != StatePermitted && m.onLoginComplete != nil {
		m.onLoginComplete()
	}
}

func (m *Machine) cidFrame(seq uint8) lcc.Frame {
	// Each CID frame carries a 12-bit slice of the 48-bit Node ID in its
	// variable field; the CID sequence number (4..7) rides in the
	// frame-type field so the four frames are distinguishable and
	// ordered on the wire.
	nodeID := uint64(m.nodeID)
	var chunk uint16
	switch seq {
	case 7:
		chunk = uint16((nodeID >> 36) & 0xFFF)
	case 6:
		chunk = uint16((nodeID >> 24) & 0xFFF)
	case 5:
		chunk = uint16((nodeID >> 12) & 0xFFF)
	case 4:
		chunk = uint16(nodeID & 0xFFF)
	}
	id := lcc.Identifier{
		OpenLCBMessage: false,
		FrameType:      lcc.FrameType(seq),
		Field:          chunk,
		SourceAlias:    m.pendingAlias,
	}
	return lcc.NewFrame(id.Encode(), nil)
}

func (m *Machine) controlFrame(field uint16) lcc.Frame {
	id := lcc.Identifier{
		OpenLCBMessage: false,
		FrameType:      0,
		Field:          field,
		SourceAlias:    m.pendingAlias,
	}
	return lcc.NewFrame(id.Encode(), nil)
}

func (m *Machine) amdFrame() lcc.Frame {
	f := m.controlFrame(lcc.VarFieldAMD)
	copy(f.Data[:], m.nodeIDPayload())
	f.DLC = 6
	return f
}

func (m *Machine) nodeIDPayload() []byte {
	v := uint64(m.nodeID)
	return []byte{
		byte(v >> 40), byte(v >> 32), byte(v >> 24),
		byte(v >> 16), byte(v >> 8), byte(v),
	}
}

func eventIDPayload(eventID uint64) []byte {
	return []byte{
		byte(eventID >> 56), byte(eventID >> 48), byte(eventID >> 40), byte(eventID >> 32),
		byte(eventID >> 24), byte(eventID >> 16), byte(eventID >> 8), byte(eventID),
	}
}

func (m *Machine) messageFrame(mti uint16, payload []byte) lcc.Frame {
	id := lcc.Identifier{
		OpenLCBMessage: true,
		FrameType:      lcc.FrameTypeGlobalOrAddressed,
		Field:          mti,
		SourceAlias:    m.pendingAlias,
	}
	return lcc.NewFrame(id.Encode(), payload)
}
