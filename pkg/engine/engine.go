// Package engine wires together the buffer pool, frame FIFO, in-flight
// reassembly list, alias table, login machines and protocol handlers
// into the three entry points an embedder drives: OnFrameReceived (CAN
// driver context), On100msTick (periodic context) and Run (main loop).
// A single mutex serializes all three, matching the one-shared-lock
// cooperative scheduling model the rest of the package family assumes.
package engine

import (
	"log/slog"
	"sync"

	lcc "github.com/openlcb-go/lcc"
	lccerr "github.com/openlcb-go/lcc/internal/lccerr"
	"github.com/openlcb-go/lcc/pkg/alias"
	"github.com/openlcb-go/lcc/pkg/buffer"
	"github.com/openlcb-go/lcc/pkg/event"
	"github.com/openlcb-go/lcc/pkg/fifo"
	"github.com/openlcb-go/lcc/pkg/inflight"
	"github.com/openlcb-go/lcc/pkg/node"
)

// Depths configures the compile-time capacity of every shared resource
// the engine owns, mirroring the reference implementation's
// basic/datagram/snip/stream/node buffer-depth options.
type Depths struct {
	Buffer          buffer.Depths
	FIFODepth       int
	InFlightDepth   int
	AliasTableDepth int
}

// identifyWalk tracks an in-progress "Identify Everything" enumeration
// started by an Identify Events message (global or addressed): each step
// queues one Identified frame, and steps continue on later Run calls
// until both producer and consumer lists are exhausted.
type identifyWalk struct {
	producers   *event.Enumerator
	consumers   *event.Enumerator
	onProducers bool
}

// Engine is the central OpenLCB protocol orchestrator for a set of
// co-located virtual nodes sharing one CAN bus connection.
type Engine struct {
	mu     sync.Mutex
	logger *slog.Logger

	pool     *buffer.Pool
	fifo     *fifo.FIFO
	inflight *inflight.List
	aliases  *alias.Table
	bus      lcc.Bus

	nodes []*node.Node

	// Outgoing-message cursor (CAN Transmit Fragmenter state); at most
	// one message is ever mid-flight, matching the "no new message
	// starts until the prior one finishes fragmenting" rule.
	txMsg    *buffer.Message
	txOffset int

	// Outgoing replies queued by the dispatcher, drained one at a time
	// into txMsg by the fragmenter.
	outQueue []*buffer.Message

	// The incoming message currently retained across Run calls, either
	// because the handler asked to be re-invoked (two-pass datagram
	// write, enumeration) or because the outgoing side was briefly
	// unavailable (buffer-pool exhaustion, hardware busy).
	pendingNode *node.Node
	pendingMsg  *buffer.Message
	pendingWalk *identifyWalk

	// pendingGlobalNext is the index of the next node still owed a
	// look at pendingMsg when it is a global message; -1 when not
	// applicable (addressed message, or no continuation pending).
	pendingGlobalNext int
}

// New builds an engine over the given transport, with shared-resource
// capacities from d.
func New(logger *slog.Logger, bus lcc.Bus, d Depths) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:            logger.With("service", "[ENGINE]"),
		pool:              buffer.NewPool(d.Buffer),
		fifo:              fifo.New(d.FIFODepth),
		inflight:          inflight.New(d.InFlightDepth),
		aliases:           alias.New(d.AliasTableDepth),
		bus:               bus,
		pendingGlobalNext: -1,
	}
}

// AddNode registers a virtual node with the engine. Nodes must be added
// before the first call to Run.
func (e *Engine) AddNode(n *node.Node) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nodes = append(e.nodes, n)
}

// Handle implements can.FrameListener, so an Engine can be subscribed to
// a Bus directly; it simply forwards to OnFrameReceived.
func (e *Engine) Handle(frame lcc.Frame) {
	e.OnFrameReceived(frame)
}

// On100msTick advances the per-message timer-tick counter of every
// reassembly currently in flight, for staleness diagnostics; the engine
// places no hard timeout on an in-progress reassembly (per the
// cooperative scheduling model's "no cancellation" rule) so a stale
// transfer is left for the peer to eventually abandon and retry.
// Called from a periodic context, serialized against
// OnFrameReceived/Run by the shared lock.
func (e *Engine) On100msTick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.inflight.Walk(func(m *buffer.Message) {
		if m.TimerTicks < 255 {
			m.TimerTicks++
		}
	})
}

// nodeByAlias returns the node currently holding alias a, if any.
func (e *Engine) nodeByAlias(a lcc.Alias) (*node.Node, bool) {
	for _, n := range e.nodes {
		if n.Alias() == a {
			return n, true
		}
	}
	return nil, false
}

// rawEmit returns an emit function for n suitable for passing to
// login.Machine.Step: it checks backpressure and sends straight to the
// hardware, bypassing the fragmenter entirely (CID/RID/AMD frames are
// always single, pre-built control frames).
func (e *Engine) rawEmit(n *node.Node) func(lcc.Frame) bool {
	return func(f lcc.Frame) bool {
		if n.Callbacks.IsTxBufferEmpty != nil && !n.Callbacks.IsTxBufferEmpty() {
			return false
		}
		if n.Callbacks.TransmitCANFrame != nil {
			if err := n.Callbacks.TransmitCANFrame(f); err != nil {
				return false
			}
			return true
		}
		return e.bus.Send(f) == nil
	}
}

// enqueueReply allocates a pool-backed outgoing message for one handler
// reply and appends it to the fragmenter's queue. Returns
// ErrBufferPoolExhausted if no slot of the required class is free, in
// which case the caller must treat the whole handler step as deferred.
func (e *Engine) enqueueReply(n *node.Node, mti uint16, dest lcc.Alias, payload []byte) error {
	class, ok := buffer.ClassForPayloadLen(len(payload))
	if !ok {
		return lccerr.ErrInvalidFrame
	}
	m, err := e.pool.Allocate(class)
	if err != nil {
		return err
	}
	m.MTI = mti
	m.SourceAlias = uint16(n.Alias())
	m.SourceNodeID = uint64(n.NodeID())
	m.DestAlias = uint16(dest)
	m.PayloadCount = copy(m.Payload, payload)
	e.outQueue = append(e.outQueue, m)
	return nil
}
