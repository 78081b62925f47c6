package engine

import (
	lcc "github.com/openlcb-go/lcc"
	"github.com/openlcb-go/lcc/pkg/buffer"
	"github.com/openlcb-go/lcc/pkg/event"
	"github.com/openlcb-go/lcc/pkg/inflight"
	"github.com/openlcb-go/lcc/pkg/netprim"
)

// OnFrameReceived is the CAN Receive Reassembler entry point: called
// from the driver context for every frame arriving on the bus. It is
// the only entry point that touches the Alias Mapping Table's
// duplicate flag and the In-flight List's insert path.
func (e *Engine) OnFrameReceived(frame lcc.Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := lcc.DecodeIdentifier(frame.ID)
	if id.IsControlFrame() {
		e.handleControlFrame(id, frame)
		return
	}
	e.handlePayloadFrame(id, frame)
}

func (e *Engine) handleControlFrame(id lcc.Identifier, frame lcc.Frame) {
	if _, ok := id.IsCID(); ok {
		e.flagIfOurs(id.SourceAlias)
		return
	}

	switch id.Field {
	case lcc.VarFieldRID:
		e.flagIfOurs(id.SourceAlias)

	case lcc.VarFieldAMD:
		e.flagIfOurs(id.SourceAlias)
		if frame.DLC >= 6 {
			nodeID := netprim.DecodeNodeID(frame.Data[:6])
			if err := e.aliases.Register(uint16(id.SourceAlias), nodeID); err != nil {
				e.logger.Warn("alias registration conflict", "alias", id.SourceAlias, "err", err)
			}
		}

	case lcc.VarFieldAME:
		for _, n := range e.nodes {
			if n.Login.Done() {
				e.rawEmit(n)(amdReplyFrame(n))
			}
		}

	case lcc.VarFieldAMR:
		e.aliases.Unregister(uint16(id.SourceAlias))

	default:
		// Error Info Report (0x710-0x713): no application hook is wired
		// for this in the core revision; observed but not forwarded.
		if id.Field >= lcc.VarFieldErrorBase && id.Field <= lcc.VarFieldErrorBase+3 {
			e.logger.Debug("error info report received", "alias", id.SourceAlias, "field", id.Field)
		}
	}
}

// flagIfOurs marks foreign as conflicting in the alias table when it
// matches one of our own nodes' current aliases, registering a
// self-entry first if this is the first time the conflict machinery has
// needed to look our own alias up.
func (e *Engine) flagIfOurs(foreign lcc.Alias) {
	for _, n := range e.nodes {
		if n.Alias() == foreign {
			_ = e.aliases.Register(uint16(foreign), uint64(n.NodeID()))
			e.aliases.SetHasDuplicateFlag(uint16(foreign))
		}
	}
}

func amdReplyFrame(n interface {
	Alias() lcc.Alias
	NodeID() uint64
}) lcc.Frame {
	id := lcc.Identifier{OpenLCBMessage: false, FrameType: 0, Field: lcc.VarFieldAMD, SourceAlias: n.Alias()}
	f := lcc.NewFrame(id.Encode(), nil)
	copy(f.Data[:], netprim.EncodeNodeID(n.NodeID()))
	f.DLC = 6
	return f
}

// isAddressedMTI reports whether mti is carried in addressed form,
// meaning the first two payload bytes of every frame are a
// framing/destination-alias header rather than message data. This
// mirrors the published MTI bit assignment (bit 0x0008).
func isAddressedMTI(mti uint16) bool {
	return mti&0x0008 != 0
}

func (e *Engine) handlePayloadFrame(id lcc.Identifier, frame lcc.Frame) {
	switch id.FrameType {
	case lcc.FrameTypeGlobalOrAddressed:
		switch {
		case isAddressedMTI(id.Field):
			e.handleAddressedFrame(id, frame)
		case isPCEventReportWithPayloadMTI(id.Field):
			e.handleGlobalMultiFrame(id, frame)
		default:
			e.completeMessage(id.Field, uint16(id.SourceAlias), 0, frame.Data[:frame.DLC])
		}

	case lcc.FrameTypeDatagramOnly, lcc.FrameTypeDatagramFirst,
		lcc.FrameTypeDatagramMiddle, lcc.FrameTypeDatagramFinal:
		e.handleDatagramFrame(id, frame)

	case lcc.FrameTypeStream:
		// Stream transport is not implemented in this core revision.
	}
}

func (e *Engine) handleAddressedFrame(id lcc.Identifier, frame lcc.Frame) {
	if frame.DLC < 2 {
		return
	}
	header := lcc.DecodeAddressedHeader(frame.Data[0], frame.Data[1])
	key := inflight.Key{SourceAlias: uint16(id.SourceAlias), DestAlias: uint16(header.DestAlias), MTI: id.Field}
	chunk := frame.Data[2:frame.DLC]

	switch header.Framing {
	case lcc.FramingOnly:
		e.completeMessage(id.Field, uint16(id.SourceAlias), uint16(header.DestAlias), chunk)

	case lcc.FramingFirst:
		if _, exists := e.inflight.Find(key); exists {
			e.inflight.Release(key)
		}
		m, err := e.pool.Allocate(buffer.ClassSNIP)
		if err != nil {
			return
		}
		m.MTI = id.Field
		m.SourceAlias = uint16(id.SourceAlias)
		m.DestAlias = uint16(header.DestAlias)
		m.PayloadCount = copy(m.Payload, chunk)
		if err := e.inflight.Add(key, m); err != nil {
			e.pool.Free(m.Handle())
		}

	case lcc.FramingMid:
		m, ok := e.inflight.Find(key)
		if !ok {
			return
		}
		e.appendChunk(m, chunk, key)

	case lcc.FramingFinal:
		m, ok := e.inflight.Find(key)
		if !ok {
			return
		}
		if e.appendChunk(m, chunk, key) {
			e.inflight.Release(key)
			e.fifo.Push(m)
		}
	}
}

// isPCEventReportWithPayloadMTI reports whether mti is one of the
// three FIRST/MIDDLE/LAST MTIs used to fragment a PC Event Report With
// Payload across multiple global-message CAN frames.
func isPCEventReportWithPayloadMTI(mti uint16) bool {
	switch mti {
	case event.MTIPCEventReportWithPayloadFirst,
		event.MTIPCEventReportWithPayloadMiddle,
		event.MTIPCEventReportWithPayloadLast:
		return true
	}
	return false
}

// handleGlobalMultiFrame reassembles PC Event Report With Payload, the
// one global message that spans more than one CAN frame. Every other
// global message fits in a single frame (spec.md §4.8); this one
// signals continuation through the MTI itself rather than a per-frame
// framing header, since global messages carry none. The reassembled
// message is tagged with the plain PCER MTI, so dispatch sees one
// ordinary (if longer) PC Event Report once reassembly completes.
func (e *Engine) handleGlobalMultiFrame(id lcc.Identifier, frame lcc.Frame) {
	key := inflight.Key{SourceAlias: uint16(id.SourceAlias), DestAlias: 0, MTI: event.MTIPCEventReport}
	chunk := frame.Data[:frame.DLC]

	switch id.Field {
	case event.MTIPCEventReportWithPayloadFirst:
		if _, exists := e.inflight.Find(key); exists {
			e.inflight.Release(key)
		}
		m, err := e.pool.Allocate(buffer.ClassSNIP)
		if err != nil {
			return
		}
		m.MTI = event.MTIPCEventReport
		m.SourceAlias = uint16(id.SourceAlias)
		m.DestAlias = 0
		m.PayloadCount = copy(m.Payload, chunk)
		if err := e.inflight.Add(key, m); err != nil {
			e.pool.Free(m.Handle())
		}

	case event.MTIPCEventReportWithPayloadMiddle:
		m, ok := e.inflight.Find(key)
		if !ok {
			return
		}
		e.appendChunk(m, chunk, key)

	case event.MTIPCEventReportWithPayloadLast:
		m, ok := e.inflight.Find(key)
		if !ok {
			return
		}
		if e.appendChunk(m, chunk, key) {
			e.inflight.Release(key)
			e.fifo.Push(m)
		}
	}
}

// datagramAddressing extracts the (source, dest) alias pair for a
// datagram frame. Datagrams swap the usual meaning of the two alias
// slots in the CAN identifier: the low 12 bits carry the destination,
// and the field that would otherwise be the CAN MTI carries the
// source, an asymmetry from addressed OpenLCB messages.
func datagramAddressing(id lcc.Identifier) (source, dest uint16) {
	return id.Field, uint16(id.SourceAlias)
}

func (e *Engine) handleDatagramFrame(id lcc.Identifier, frame lcc.Frame) {
	source, dest := datagramAddressing(id)
	key := inflight.Key{SourceAlias: source, DestAlias: dest, MTI: datagramInternalMTI}
	chunk := frame.Data[:frame.DLC]

	switch id.FrameType {
	case lcc.FrameTypeDatagramOnly:
		m, err := e.pool.Allocate(buffer.ClassDatagram)
		if err != nil {
			return
		}
		m.MTI = datagramInternalMTI
		m.SourceAlias = source
		m.DestAlias = dest
		m.PayloadCount = copy(m.Payload, chunk)
		e.fifo.Push(m)

	case lcc.FrameTypeDatagramFirst:
		if _, exists := e.inflight.Find(key); exists {
			e.inflight.Release(key)
		}
		m, err := e.pool.Allocate(buffer.ClassDatagram)
		if err != nil {
			return
		}
		m.MTI = datagramInternalMTI
		m.SourceAlias = source
		m.DestAlias = dest
		m.PayloadCount = copy(m.Payload, chunk)
		if err := e.inflight.Add(key, m); err != nil {
			e.pool.Free(m.Handle())
		}

	case lcc.FrameTypeDatagramMiddle:
		m, ok := e.inflight.Find(key)
		if !ok {
			return
		}
		e.appendChunk(m, chunk, key)

	case lcc.FrameTypeDatagramFinal:
		m, ok := e.inflight.Find(key)
		if !ok {
			return
		}
		if e.appendChunk(m, chunk, key) {
			e.inflight.Release(key)
			e.fifo.Push(m)
		}
	}
}

// datagramInternalMTI is the synthetic MTI this engine assigns to every
// reassembled datagram message, matching the wire MTI configmem.go's
// handler family expects.
const datagramInternalMTI = 0x1C48

// appendChunk copies chunk onto the end of m's payload, dropping and
// releasing the in-flight entry on overflow (a protocol violation the
// peer is expected to recover from by retransmitting). Reports whether
// the append succeeded.
func (e *Engine) appendChunk(m *buffer.Message, chunk []byte, key inflight.Key) bool {
	if m.PayloadCount+len(chunk) > len(m.Payload) {
		e.inflight.Release(key)
		e.pool.Free(m.Handle())
		return false
	}
	m.PayloadCount += copy(m.Payload[m.PayloadCount:], chunk)
	return true
}

// completeMessage builds a one-frame message directly (no in-flight
// tracking needed) and pushes it straight to the FIFO.
func (e *Engine) completeMessage(mti uint16, source, dest uint16, payload []byte) {
	class, ok := buffer.ClassForPayloadLen(len(payload))
	if !ok {
		return
	}
	m, err := e.pool.Allocate(class)
	if err != nil {
		return
	}
	m.MTI = mti
	m.SourceAlias = source
	m.DestAlias = dest
	m.PayloadCount = copy(m.Payload, payload)
	if !e.fifo.Push(m) {
		e.pool.Free(m.Handle())
	}
}
