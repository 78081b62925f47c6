package lcc

import (
	"github.com/openlcb-go/lcc/pkg/can"
)

// Frame is the CAN frame type used throughout the engine: a 29-bit
// extended identifier plus an up-to-8-byte payload. It is a thin alias
// over can.Frame so the engine and the transport drivers share one
// wire-level representation.
type Frame = can.Frame

// NewFrame builds a CAN frame from an already-encoded 29-bit identifier
// and payload. The DLC is the number of payload bytes copied: len(data),
// capped at 8.
func NewFrame(id uint32, data []byte) Frame {
	f := can.NewFrame(id, 0, uint8(len(data)))
	n := copy(f.Data[:], data)
	f.DLC = uint8(n)
	return f
}

// Bus is the transport the engine sends and receives frames over.
type Bus = can.Bus

// FrameListener is implemented by anything that wants raw CAN frames
// handed to it by a Bus.
type FrameListener = can.FrameListener
