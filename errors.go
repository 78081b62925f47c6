package lcc

import lccerr "github.com/openlcb-go/lcc/internal/lccerr"

// Sentinel errors returned by the protocol engine. Callers compare with
// errors.Is rather than type assertions. These are aliases onto
// internal/lccerr so every subpackage can return the identical error
// value without importing this root package.
var (
	ErrBufferPoolExhausted = lccerr.ErrBufferPoolExhausted
	ErrInvalidFrame        = lccerr.ErrInvalidFrame
	ErrNoAliasMapping      = lccerr.ErrNoAliasMapping
	ErrAliasInUse          = lccerr.ErrAliasInUse
	ErrDuplicateAlias      = lccerr.ErrDuplicateAlias
	ErrNotLoggedIn         = lccerr.ErrNotLoggedIn
	ErrInFlightFull        = lccerr.ErrInFlightFull
	ErrInFlightNotFound    = lccerr.ErrInFlightNotFound
	ErrFifoFull            = lccerr.ErrFifoFull
	ErrFifoEmpty           = lccerr.ErrFifoEmpty
	ErrUnknownAddressSpace = lccerr.ErrUnknownAddressSpace
	ErrAddressSpaceLocked  = lccerr.ErrAddressSpaceLocked
	ErrNotImplemented      = lccerr.ErrNotImplemented
	ErrBadDatagramLength   = lccerr.ErrBadDatagramLength
)
