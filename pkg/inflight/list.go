// Package inflight tracks OpenLCB messages that are still being
// reassembled from multiple CAN frames (datagrams, multi-frame addressed
// messages, and PC Event Reports with payload), keyed by
// the (source alias, destination alias, MTI) triple that identifies a
// single multi-frame transfer.
package inflight

import (
	lccerr "github.com/openlcb-go/lcc/internal/lccerr"
	"github.com/openlcb-go/lcc/pkg/buffer"
)

// Key identifies one in-progress reassembly.
type Key struct {
	SourceAlias uint16
	DestAlias   uint16
	MTI         uint16
}

type entry struct {
	key Key
	msg *buffer.Message
}

// List is a small fixed-capacity set of in-progress reassemblies. A
// plain slice scan is used rather than a map: capacity is small
// (bounded by the number of concurrently-assembling peers), the same
// "one entry per active transfer, scanned linearly" shape
// pkg/sdo/download_segmented.go uses for segmented-transfer tracking.
type List struct {
	capacity int
	entries  []entry
}

// New creates a list that can hold up to capacity concurrent
// reassemblies.
func New(capacity int) *List {
	return &List{capacity: capacity}
}

// Find returns the in-progress message for key, if any.
func (l *List) Find(key Key) (*buffer.Message, bool) {
	for _, e := range l.entries {
		if e.key == key {
			return e.msg, true
		}
	}
	return nil, false
}

// Add registers a new in-progress reassembly. Returns ErrInFlightFull if
// the list is already at capacity.
func (l *List) Add(key Key, msg *buffer.Message) error {
	if _, ok := l.Find(key); ok {
		return lccerr.ErrInvalidFrame
	}
	if len(l.entries) >= l.capacity {
		return lccerr.ErrInFlightFull
	}
	l.entries = append(l.entries, entry{key: key, msg: msg})
	return nil
}

// Release removes and returns the in-progress message for key, for use
// when a FINAL frame completes the transfer. Returns ErrInFlightNotFound
// if no such transfer is tracked.
func (l *List) Release(key Key) (*buffer.Message, error) {
	for i, e := range l.entries {
		if e.key == key {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return e.msg, nil
		}
	}
	return nil, lccerr.ErrInFlightNotFound
}

// Len returns the number of in-progress reassemblies.
func (l *List) Len() int { return len(l.entries) }

// Walk calls fn once per in-progress reassembly, for periodic
// housekeeping (timer-tick bookkeeping); it must not be called
// re-entrantly with Add/Release.
func (l *List) Walk(fn func(*buffer.Message)) {
	for _, e := range l.entries {
		fn(e.msg)
	}
}
