// Package node holds one OpenLCB node's complete runtime state: its
// identity and Protocol Support Inquiry flags, its producer/consumer
// event registrations, its login context, and its configuration-memory
// address spaces. It is the wiring point the engine drives through one
// set of embedder-supplied callbacks, splitting generic node state from
// the concrete services constructed on top of it.
package node

import (
	"log/slog"
	"sync"

	lcc "github.com/openlcb-go/lcc"
	"github.com/openlcb-go/lcc/pkg/configmem"
	"github.com/openlcb-go/lcc/pkg/event"
	"github.com/openlcb-go/lcc/pkg/login"
)

// Callbacks are the embedder hooks a node is driven through; any of them
// may be left nil. With a nil TransmitCANFrame the engine sends raw
// frames through its Bus, a nil IsTxBufferEmpty counts as an always-empty
// transmit buffer, and nil operations-family hooks are no-ops.
// This is the Go equivalent of the reference implementation's
// struct-of-function-pointers operations table.
type Callbacks struct {
	TransmitCANFrame       func(lcc.Frame) error
	IsTxBufferEmpty        func() bool
	OperationsReboot       func()
	OperationsFactoryReset func()

	// DelayedReplyTimeRead and DelayedReplyTimeWrite, if set, let the
	// embedder flag a Datagram OK ack as reply-pending when its backing
	// store is slow: the bool reports whether to flag it, the uint8 is
	// N, the substantive reply following within 2^N seconds.
	DelayedReplyTimeRead  func() (pending bool, n uint8)
	DelayedReplyTimeWrite func() (pending bool, n uint8)

	// OnPCER and OnEventLearn are the application's event-consumption
	// hooks: invoked with the reported/learned Event ID (and, for PCER,
	// any trailing payload bytes) rather than producing an automatic
	// reply.
	OnPCER      func(eventID uint64, payload []byte)
	OnEventLearn func(eventID uint64)

	// OnLoginComplete, if set, is invoked exactly once, the moment this
	// node's login machine reaches the Permitted state.
	OnLoginComplete func()
}

// Node is one OpenLCB node.
type Node struct {
	mu sync.Mutex

	id        lcc.NodeID
	psi       uint64
	duplicate bool

	Login     *login.Machine
	Producers *event.List
	Consumers *event.List
	ConfigMem *configmem.Node
	Config    *configmem.Handler
	Callbacks Callbacks
}

// New builds a node, wiring its login machine to enumerate the given
// producer/consumer lists and its configuration-memory handler to the
// node's registered address spaces. simplePSI selects Initialization
// Complete Simple (0x0101) over the full form (0x0100) at login.
func New(logger *slog.Logger, id lcc.NodeID, psi uint64, simplePSI bool, producers, consumers *event.List, cb Callbacks) *Node {
	if producers == nil {
		producers = &event.List{}
	}
	if consumers == nil {
		consumers = &event.List{}
	}
	n := &Node{
		id:        id,
		psi:       psi,
		Producers: producers,
		Consumers: consumers,
		Callbacks: cb,
	}

	producerEnum := event.NewEnumerator(producers,
		event.MTIProducerRangeIdentified,
		event.MTIProducerIdentifiedSet, event.MTIProducerIdentifiedClear, event.MTIProducerIdentifiedUnknown)
	consumerEnum := event.NewEnumerator(consumers,
		event.MTIConsumerRangeIdentified,
		event.MTIConsumerIdentifiedSet, event.MTIConsumerIdentifiedClear, event.MTIConsumerIdentifiedUnknown)
	n.Login = login.New(logger, id, simplePSI, producerEnum.Next, consumerEnum.Next)
	if cb.OnLoginComplete != nil {
		n.Login.AddLoginCompleteCallback(cb.OnLoginComplete)
	}

	n.ConfigMem = &configmem.Node{NodeID: uint64(id), Spaces: make(map[byte]*configmem.AddressSpace)}
	n.Config = configmem.New(logger, n.ConfigMem)
	n.Config.Reboot = cb.OperationsReboot
	n.Config.FactoryReset = cb.OperationsFactoryReset
	n.Config.DelayedReplyTimeRead = cb.DelayedReplyTimeRead
	n.Config.DelayedReplyTimeWrite = cb.DelayedReplyTimeWrite

	return n
}

// RegisterSpace adds a configuration-memory address space to the node.
func (n *Node) RegisterSpace(as *configmem.AddressSpace) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ConfigMem.Spaces[as.Space] = as
}

// NodeID satisfies netprim.NodeIdentity.
func (n *Node) NodeID() uint64 { return uint64(n.id) }

// ID returns the typed 48-bit Node ID.
func (n *Node) ID() lcc.NodeID { return n.id }

// PSIFlags satisfies netprim.NodeIdentity.
func (n *Node) PSIFlags() uint64 { return n.psi }

// FlagDuplicateNodeID satisfies netprim.NodeIdentity: marks this node as
// having detected a foreign claim of its own Node ID on the bus.
func (n *Node) FlagDuplicateNodeID() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.duplicate = true
}

// Duplicate reports whether a duplicate Node ID was ever flagged.
func (n *Node) Duplicate() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.duplicate
}

// Alias returns the node's current (possibly still-pending) CAN alias.
func (n *Node) Alias() lcc.Alias {
	return n.Login.PendingAlias()
}
