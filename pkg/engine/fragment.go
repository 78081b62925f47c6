package engine

import (
	lcc "github.com/openlcb-go/lcc"
	"github.com/openlcb-go/lcc/pkg/buffer"
)

// globalPayloadChunk is the maximum payload bytes one CAN frame carries
// for a global (destination-less) OpenLCB message: the full 8 bytes,
// with no framing header.
const globalPayloadChunk = 8

// addressedPayloadChunk is the maximum payload bytes one CAN frame
// carries for an addressed message: 2 bytes go to the framing/dest
// header, leaving 6 for data.
const addressedPayloadChunk = 6

// datagramPayloadChunk is the maximum payload bytes one CAN frame
// carries for a datagram: framing rides in the frame-type field, so all
// 8 data bytes are available.
const datagramPayloadChunk = 8

// pumpFragmenter is the CAN Transmit Fragmenter: it advances e.txMsg by
// exactly one CAN frame, refilling from the outgoing queue when idle.
// Returns false if the hardware transmit buffer is full (retry next
// tick, state unchanged) and true otherwise, including when there was
// simply nothing to send.
func (e *Engine) pumpFragmenter() bool {
	if e.txMsg == nil {
		if len(e.outQueue) == 0 {
			return true
		}
		e.txMsg = e.outQueue[0]
		e.outQueue = e.outQueue[1:]
		e.txOffset = 0
	}

	n, ok := e.nodeByAlias(lcc.Alias(e.txMsg.SourceAlias))
	if !ok {
		// Owning node vanished (should not happen); drop the message.
		e.pool.Free(e.txMsg.Handle())
		e.txMsg = nil
		return true
	}
	if n.Callbacks.IsTxBufferEmpty != nil && !n.Callbacks.IsTxBufferEmpty() {
		return false
	}

	frame, done := buildFragment(e.txMsg, e.txOffset)
	if e.bus.Send(frame) != nil {
		return false
	}

	if e.txMsg.DestAlias == 0 {
		e.txOffset += globalPayloadChunk
	} else if e.txMsg.MTI == datagramInternalMTI {
		e.txOffset += datagramPayloadChunk
	} else {
		e.txOffset += addressedPayloadChunk
	}

	if done {
		e.pool.Free(e.txMsg.Handle())
		e.txMsg = nil
	}
	return true
}

// buildFragment renders the CAN frame carrying msg's payload starting
// at byte offset, and reports whether this frame completes the
// message.
func buildFragment(msg *buffer.Message, offset int) (lcc.Frame, bool) {
	if msg.DestAlias == 0 {
		return buildGlobalFragment(msg, offset)
	}
	if msg.MTI == datagramInternalMTI {
		return buildDatagramFragment(msg, offset)
	}
	return buildAddressedFragment(msg, offset)
}

func buildGlobalFragment(msg *buffer.Message, offset int) (lcc.Frame, bool) {
	end := offset + globalPayloadChunk
	done := end >= msg.PayloadCount
	if done {
		end = msg.PayloadCount
	}
	id := lcc.Identifier{
		OpenLCBMessage: true,
		FrameType:      lcc.FrameTypeGlobalOrAddressed,
		Field:          msg.MTI,
		SourceAlias:    lcc.Alias(msg.SourceAlias),
	}
	return lcc.NewFrame(id.Encode(), msg.Payload[offset:end]), done
}

func buildAddressedFragment(msg *buffer.Message, offset int) (lcc.Frame, bool) {
	end := offset + addressedPayloadChunk
	done := end >= msg.PayloadCount
	if done {
		end = msg.PayloadCount
	}

	var framing lcc.Framing
	switch {
	case offset == 0 && done:
		framing = lcc.FramingOnly
	case offset == 0:
		framing = lcc.FramingFirst
	case done:
		framing = lcc.FramingFinal
	default:
		framing = lcc.FramingMid
	}

	header := lcc.AddressedHeader{Framing: framing, DestAlias: lcc.Alias(msg.DestAlias)}
	b0, b1 := header.Encode()

	id := lcc.Identifier{
		OpenLCBMessage: true,
		FrameType:      lcc.FrameTypeGlobalOrAddressed,
		Field:          msg.MTI,
		SourceAlias:    lcc.Alias(msg.SourceAlias),
	}
	payload := append([]byte{b0, b1}, msg.Payload[offset:end]...)
	return lcc.NewFrame(id.Encode(), payload), done
}

func buildDatagramFragment(msg *buffer.Message, offset int) (lcc.Frame, bool) {
	end := offset + datagramPayloadChunk
	done := end >= msg.PayloadCount
	if done {
		end = msg.PayloadCount
	}

	var frameType lcc.FrameType
	switch {
	case offset == 0 && done:
		frameType = lcc.FrameTypeDatagramOnly
	case offset == 0:
		frameType = lcc.FrameTypeDatagramFirst
	case done:
		frameType = lcc.FrameTypeDatagramFinal
	default:
		frameType = lcc.FrameTypeDatagramMiddle
	}

	// Datagrams swap the usual alias-slot meaning: the low 12 bits of
	// the identifier carry the destination, and the field that is
	// normally the CAN MTI carries the source alias instead.
	id := lcc.Identifier{
		OpenLCBMessage: true,
		FrameType:      frameType,
		Field:          msg.SourceAlias,
		SourceAlias:    lcc.Alias(msg.DestAlias),
	}
	return lcc.NewFrame(id.Encode(), msg.Payload[offset:end]), done
}
