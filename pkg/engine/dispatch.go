package engine

import (
	lcc "github.com/openlcb-go/lcc"
	"github.com/openlcb-go/lcc/pkg/buffer"
	"github.com/openlcb-go/lcc/pkg/event"
	"github.com/openlcb-go/lcc/pkg/netprim"
	"github.com/openlcb-go/lcc/pkg/node"
)

// Run is the Main Dispatch State Machine entry point: called from the
// main loop as often as possible, it performs one unit of useful work
// and returns. It owns the login state machines and the transmit
// fragmenter in addition to the numbered dispatch algorithm below.
func (e *Engine) Run() {
	e.mu.Lock()
	defer e.mu.Unlock()

	// 1. Any node whose current alias was just claimed by a foreign
	// frame restarts its login from scratch.
	for _, n := range e.nodes {
		old := uint16(n.Alias())
		if e.aliases.HasDuplicate(old) {
			e.aliases.Unregister(old)
			n.Login.OnConflict()
		}
	}

	// While any node is still logging in, the first such node gets one
	// login step and the Run call ends there, ahead of the numbered
	// dispatch algorithm: an unlogged-in node has no stable alias to be
	// addressed at yet.
	for _, n := range e.nodes {
		if !n.Login.Done() {
			n.Login.Step(e.rawEmit(n))
			return
		}
	}

	// 2. Retry a pending outgoing message before anything else.
	if e.txMsg != nil || len(e.outQueue) > 0 {
		e.pumpFragmenter()
		return
	}

	// 3. An enumeration in progress on the current node continues
	// before any other message is considered.
	if e.pendingWalk != nil {
		e.stepWalk()
		return
	}
	if e.pendingMsg != nil {
		e.redispatch()
		return
	}

	// 4. Otherwise pop the next completed message.
	msg, err := e.fifo.Pop()
	if err != nil {
		return
	}

	// 5. Select the owning node(s).
	if msg.DestAlias == 0 {
		e.dispatchGlobal(msg)
		return
	}
	n, ok := e.nodeByAlias(lcc.Alias(msg.DestAlias))
	if !ok {
		// Addressed to a destination we don't own: silently dropped.
		e.pool.Free(msg.Handle())
		return
	}
	e.dispatchToNode(n, msg)
}

// dispatchGlobal offers a global message to every node in turn within
// one Run call, stopping at the first node whose handler keeps or
// defers it. The message is then retained as pendingMsg with its own
// per-message node cursor, and once that node is done with it a later
// Run call resumes with the following node.
func (e *Engine) dispatchGlobal(msg *buffer.Message) {
	if len(e.nodes) == 0 {
		e.pool.Free(msg.Handle())
		return
	}
	e.globalDispatchFrom(msg, 0)
}

func (e *Engine) globalDispatchFrom(msg *buffer.Message, start int) {
	for i := start; i < len(e.nodes); i++ {
		n := e.nodes[i]
		outcome := e.dispatchMTI(n, msg)
		switch outcome {
		case lcc.OutcomeEmitAndKeep, lcc.OutcomeDefer:
			e.pendingNode = n
			e.pendingMsg = msg
			e.pendingGlobalNext = i
			return
		}
	}
	e.pool.Free(msg.Handle())
}

// redispatch re-invokes the handler for a message retained across Run
// calls (two-pass write continuation, or a retry after Defer).
func (e *Engine) redispatch() {
	msg, n := e.pendingMsg, e.pendingNode
	outcome := e.dispatchMTI(n, msg)
	switch outcome {
	case lcc.OutcomeEmitAndKeep, lcc.OutcomeDefer:
		return // stay pending, retry next call
	}
	e.pendingMsg, e.pendingNode = nil, nil

	if msg.DestAlias == 0 && e.pendingGlobalNext >= 0 {
		next := e.pendingGlobalNext + 1
		e.pendingGlobalNext = -1
		e.globalDispatchFrom(msg, next)
		return
	}
	e.pool.Free(msg.Handle())
}

func (e *Engine) dispatchToNode(n *node.Node, msg *buffer.Message) {
	outcome := e.dispatchMTI(n, msg)
	switch outcome {
	case lcc.OutcomeEmitAndKeep, lcc.OutcomeDefer:
		e.pendingNode, e.pendingMsg = n, msg
	default:
		e.pool.Free(msg.Handle())
	}
}

// dispatchMTI routes one message to its protocol handler by MTI and
// translates the handler's result into replies queued for the
// fragmenter.
func (e *Engine) dispatchMTI(n *node.Node, msg *buffer.Message) lcc.HandlerOutcome {
	payload := msg.Payload[:msg.PayloadCount]

	switch msg.MTI {
	case datagramInternalMTI:
		outcome, replies := n.Config.Handle(payload)
		for _, r := range replies {
			if err := e.enqueueReply(n, r.MTI, lcc.Alias(msg.SourceAlias), r.Payload); err != nil {
				return lcc.OutcomeDefer
			}
		}
		return outcome

	case netprim.MTIVerifyNodeIDGlobal:
		if netprim.HandleVerifyNodeIDGlobal(n, payload) {
			return e.emitOne(n, netprim.MTIVerifiedNodeID, 0, netprim.EncodeNodeID(n.NodeID()))
		}
		return lcc.OutcomeDone

	case netprim.MTIVerifyNodeIDAddressed:
		if netprim.HandleVerifyNodeIDAddressed(n, payload) {
			return e.emitOne(n, netprim.MTIVerifiedNodeID, 0, netprim.EncodeNodeID(n.NodeID()))
		}
		return lcc.OutcomeDone

	case netprim.MTIVerifiedNodeID:
		netprim.HandleVerifiedNodeID(n, payload)
		return lcc.OutcomeDone

	case netprim.MTIProtocolSupportInquiry:
		psi := netprim.HandleProtocolSupportInquiry(n)
		return e.emitOne(n, netprim.MTIProtocolSupportReply, lcc.Alias(msg.SourceAlias), psiPayload(psi))

	case netprim.MTIProtocolSupportReply, netprim.MTIInitializationComplete,
		netprim.MTIInitializationCompleteSimple, netprim.MTIOptionalInteractionRejected,
		netprim.MTITerminateDueToError:
		return lcc.OutcomeDone

	case event.MTIIdentifyConsumer:
		return e.dispatchIdentifyOne(n, n.Consumers, payload,
			event.MTIConsumerIdentifiedSet, event.MTIConsumerIdentifiedClear, event.MTIConsumerIdentifiedUnknown,
			event.MTIConsumerRangeIdentified)

	case event.MTIIdentifyProducer:
		return e.dispatchIdentifyOne(n, n.Producers, payload,
			event.MTIProducerIdentifiedSet, event.MTIProducerIdentifiedClear, event.MTIProducerIdentifiedUnknown,
			event.MTIProducerRangeIdentified)

	case event.MTIIdentifyEventsGlobal, event.MTIIdentifyEventsAddressed:
		return e.startIdentifyWalk(n)

	case event.MTIPCEventReport:
		if len(payload) >= 8 && n.Callbacks.OnPCER != nil {
			n.Callbacks.OnPCER(decodeEventID(payload), append([]byte(nil), payload[8:]...))
		}
		return lcc.OutcomeDone

	case event.MTILearnEvent:
		if len(payload) >= 8 && n.Callbacks.OnEventLearn != nil {
			n.Callbacks.OnEventLearn(decodeEventID(payload))
		}
		return lcc.OutcomeDone

	default:
		return lcc.OutcomeDone
	}
}

// emitOne enqueues a single reply and reports the resulting outcome:
// Emit on success, Defer if the buffer pool has no room.
func (e *Engine) emitOne(n *node.Node, mti uint16, dest lcc.Alias, payload []byte) lcc.HandlerOutcome {
	if err := e.enqueueReply(n, mti, dest, payload); err != nil {
		return lcc.OutcomeDefer
	}
	return lcc.OutcomeEmit
}

func (e *Engine) dispatchIdentifyOne(n *node.Node, list *event.List, payload []byte,
	setMTI, clearMTI, unknownMTI, rangeMTI uint16) lcc.HandlerOutcome {
	if len(payload) < 8 {
		return lcc.OutcomeDone
	}
	id := decodeEventID(payload)
	if mti, ok := list.IdentifiedMTI(id, setMTI, clearMTI, unknownMTI); ok {
		return e.emitOne(n, mti, 0, eventIDPayload(id))
	}
	if r, ok := list.FindRange(id); ok {
		return e.emitOne(n, rangeMTI, 0, eventIDPayload(event.EncodeRangeEventID(r)))
	}
	return lcc.OutcomeDone
}

func (e *Engine) startIdentifyWalk(n *node.Node) lcc.HandlerOutcome {
	w := &identifyWalk{
		producers: event.NewEnumerator(n.Producers,
			event.MTIProducerRangeIdentified,
			event.MTIProducerIdentifiedSet, event.MTIProducerIdentifiedClear, event.MTIProducerIdentifiedUnknown),
		consumers: event.NewEnumerator(n.Consumers,
			event.MTIConsumerRangeIdentified,
			event.MTIConsumerIdentifiedSet, event.MTIConsumerIdentifiedClear, event.MTIConsumerIdentifiedUnknown),
		onProducers: true,
	}
	e.pendingWalk = w
	e.stepWalkFor(n, w)
	if e.pendingWalk == nil {
		return lcc.OutcomeDone
	}
	return lcc.OutcomeEmitAndKeep
}

// stepWalk advances the identify-everything enumeration retained in
// e.pendingWalk/e.pendingNode by one emitted frame.
func (e *Engine) stepWalk() {
	e.stepWalkFor(e.pendingNode, e.pendingWalk)
}

func (e *Engine) stepWalkFor(n *node.Node, w *identifyWalk) {
	emitted := false
	emit := func(mti uint16, eventID uint64) bool {
		ok := e.enqueueReply(n, mti, 0, eventIDPayload(eventID)) == nil
		emitted = emitted || ok
		return ok
	}
	if w.onProducers {
		if w.producers.Next(emit) {
			return
		}
		w.onProducers = false
		if emitted {
			return
		}
	}
	if !w.consumers.Next(emit) {
		e.finishWalk()
	}
}

func (e *Engine) finishWalk() {
	msg := e.pendingMsg
	e.pendingWalk = nil
	e.pendingMsg = nil
	e.pendingNode = nil
	if msg == nil {
		return
	}
	if msg.DestAlias == 0 && e.pendingGlobalNext >= 0 {
		next := e.pendingGlobalNext + 1
		e.pendingGlobalNext = -1
		e.globalDispatchFrom(msg, next)
		return
	}
	e.pool.Free(msg.Handle())
}

func psiPayload(psi uint64) []byte {
	return []byte{
		byte(psi >> 40), byte(psi >> 32), byte(psi >> 24),
		byte(psi >> 16), byte(psi >> 8), byte(psi),
	}
}

func eventIDPayload(id uint64) []byte {
	return []byte{
		byte(id >> 56), byte(id >> 48), byte(id >> 40), byte(id >> 32),
		byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id),
	}
}

func decodeEventID(b []byte) uint64 {
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}
