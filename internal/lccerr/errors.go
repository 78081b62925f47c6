// Package lccerr holds the sentinel errors shared across the engine's
// subpackages. It exists so pkg/buffer, pkg/fifo, pkg/alias, and friends
// can return and compare the same error values as the root package
// without importing the root package (which would cycle back to them).
package lccerr

import "errors"

var (
	ErrBufferPoolExhausted = errors.New("lcc: buffer pool exhausted for requested size class")
	ErrInvalidFrame        = errors.New("lcc: malformed or unrecognized CAN frame")
	ErrNoAliasMapping      = errors.New("lcc: no alias mapping for node id")
	ErrAliasInUse          = errors.New("lcc: alias already mapped to a different node id")
	ErrDuplicateAlias      = errors.New("lcc: duplicate alias detected on bus")
	ErrNotLoggedIn         = errors.New("lcc: node has not completed alias login")
	ErrInFlightFull        = errors.New("lcc: in-flight message list is full")
	ErrInFlightNotFound    = errors.New("lcc: no in-flight reassembly for source alias")
	ErrFifoFull            = errors.New("lcc: completed message FIFO is full")
	ErrFifoEmpty           = errors.New("lcc: completed message FIFO is empty")
	ErrUnknownAddressSpace = errors.New("lcc: unknown configuration memory address space")
	ErrAddressSpaceLocked  = errors.New("lcc: address space is locked by another node")
	ErrNotImplemented      = errors.New("lcc: operation intentionally not implemented")
	ErrBadDatagramLength   = errors.New("lcc: datagram payload has an invalid length for its command")
)
