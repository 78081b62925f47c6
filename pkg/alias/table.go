// Package alias implements the Alias Mapping Table: the bidirectional
// map between 12-bit CAN aliases and 48-bit OpenLCB Node IDs that every
// node on the segment maintains for every peer it has seen AMD frames
// from, plus duplicate-alias bookkeeping for the login state machine.
package alias

import (
	lccerr "github.com/openlcb-go/lcc/internal/lccerr"
)

// Mapping is one alias/Node-ID binding.
type Mapping struct {
	Alias        uint16
	NodeID       uint64
	HasDuplicate bool
}

// Table is a fixed-capacity alias/Node-ID map. Capacity is set at
// construction time per the engine's static-allocation requirement.
type Table struct {
	capacity int
	entries  []Mapping
}

// New creates a table that can track up to capacity peers.
func New(capacity int) *Table {
	return &Table{capacity: capacity}
}

// Register records a new alias/Node-ID binding. An existing binding for
// the same alias is never replaced: registering the same pair again is a
// no-op, and ErrAliasInUse is returned if the alias is already bound to a
// different Node ID and that mapping has not been released. Returns
// ErrInvalidFrame if the table is full.
func (t *Table) Register(a uint16, node uint64) error {
	for i := range t.entries {
		if t.entries[i].Alias == a {
			if t.entries[i].NodeID != node {
				return lccerr.ErrAliasInUse
			}
			return nil
		}
	}
	if len(t.entries) >= t.capacity {
		return lccerr.ErrInvalidFrame
	}
	t.entries = append(t.entries, Mapping{Alias: a, NodeID: node})
	return nil
}

// Unregister removes the mapping for an alias, if present.
func (t *Table) Unregister(a uint16) {
	for i := range t.entries {
		if t.entries[i].Alias == a {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// FindByAlias looks up the Node ID bound to an alias.
func (t *Table) FindByAlias(a uint16) (uint64, error) {
	for i := range t.entries {
		if t.entries[i].Alias == a {
			return t.entries[i].NodeID, nil
		}
	}
	return 0, lccerr.ErrNoAliasMapping
}

// FindByNodeID looks up the alias bound to a Node ID.
func (t *Table) FindByNodeID(node uint64) (uint16, error) {
	for i := range t.entries {
		if t.entries[i].NodeID == node {
			return t.entries[i].Alias, nil
		}
	}
	return 0, lccerr.ErrNoAliasMapping
}

// SetHasDuplicateFlag marks the mapping for an alias as conflicting with
// another node's claim, so the owning node's login state machine can
// notice and restart.
func (t *Table) SetHasDuplicateFlag(a uint16) {
	for i := range t.entries {
		if t.entries[i].Alias == a {
			t.entries[i].HasDuplicate = true
			return
		}
	}
}

// ClearHasDuplicateFlag clears the duplicate flag for an alias.
func (t *Table) ClearHasDuplicateFlag(a uint16) {
	for i := range t.entries {
		if t.entries[i].Alias == a {
			t.entries[i].HasDuplicate = false
			return
		}
	}
}

// HasDuplicate reports whether the alias is currently flagged as
// conflicting.
func (t *Table) HasDuplicate(a uint16) bool {
	for i := range t.entries {
		if t.entries[i].Alias == a {
			return t.entries[i].HasDuplicate
		}
	}
	return false
}

// Flush removes every mapping, used on a hard bus reset.
func (t *Table) Flush() {
	t.entries = t.entries[:0]
}

// Len returns the number of tracked mappings.
func (t *Table) Len() int { return len(t.entries) }
