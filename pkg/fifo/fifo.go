// Package fifo implements the completed-message queue that sits between
// the CAN receive reassembler and the main dispatch state machine: one
// slot per fully reassembled OpenLCB message, in arrival order.
package fifo

import (
	lccerr "github.com/openlcb-go/lcc/internal/lccerr"
	"github.com/openlcb-go/lcc/pkg/buffer"
)

// FIFO is a circular buffer of *buffer.Message pointers. Capacity is
// depth+1 so that head==tail unambiguously means empty, with no separate
// counter needed.
type FIFO struct {
	ring []*buffer.Message
	head int
	tail int
}

// New creates a FIFO that can hold up to depth messages.
func New(depth int) *FIFO {
	return &FIFO{ring: make([]*buffer.Message, depth+1)}
}

// Push appends a message to the tail. Returns false, without queuing the
// message, if the FIFO is full.
func (f *FIFO) Push(m *buffer.Message) bool {
	next := (f.tail + 1) % len(f.ring)
	if next == f.head {
		return false
	}
	f.ring[f.tail] = m
	f.tail = next
	return true
}

// Pop removes and returns the message at the head, or
// ErrFifoEmpty if none is queued.
func (f *FIFO) Pop() (*buffer.Message, error) {
	if f.head == f.tail {
		return nil, lccerr.ErrFifoEmpty
	}
	m := f.ring[f.head]
	f.ring[f.head] = nil
	f.head = (f.head + 1) % len(f.ring)
	return m, nil
}

// Peek returns the message at the head without removing it.
func (f *FIFO) Peek() (*buffer.Message, bool) {
	if f.head == f.tail {
		return nil, false
	}
	return f.ring[f.head], true
}

// Empty reports whether the FIFO currently holds no messages.
func (f *FIFO) Empty() bool { return f.head == f.tail }

// Len returns the number of queued messages.
func (f *FIFO) Len() int {
	if f.tail >= f.head {
		return f.tail - f.head
	}
	return len(f.ring) - f.head + f.tail
}

// Full reports whether the FIFO is at capacity.
func (f *FIFO) Full() bool {
	return (f.tail+1)%len(f.ring) == f.head
}
