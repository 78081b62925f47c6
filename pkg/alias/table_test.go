package alias

import (
	"errors"
	"testing"

	lccerr "github.com/openlcb-go/lcc/internal/lccerr"
)

func TestRegisterFind(t *testing.T) {
	tbl := New(4)
	if err := tbl.Register(0x123, 0xAABBCCDDEEFF); err != nil {
		t.Fatalf("Register: %v", err)
	}
	node, err := tbl.FindByAlias(0x123)
	if err != nil || node != 0xAABBCCDDEEFF {
		t.Fatalf("FindByAlias = %x,%v", node, err)
	}
	a, err := tbl.FindByNodeID(0xAABBCCDDEEFF)
	if err != nil || a != 0x123 {
		t.Fatalf("FindByNodeID = %x,%v", a, err)
	}
}

func TestRegisterConflict(t *testing.T) {
	tbl := New(4)
	tbl.Register(0x123, 1)
	if err := tbl.Register(0x123, 2); !errors.Is(err, lccerr.ErrAliasInUse) {
		t.Fatalf("Register conflicting node = %v, want ErrAliasInUse", err)
	}
}

func TestUnregisterAndMissing(t *testing.T) {
	tbl := New(4)
	tbl.Register(0x123, 1)
	tbl.Unregister(0x123)
	if _, err := tbl.FindByAlias(0x123); !errors.Is(err, lccerr.ErrNoAliasMapping) {
		t.Fatalf("FindByAlias after Unregister = %v, want ErrNoAliasMapping", err)
	}
}

func TestDuplicateFlag(t *testing.T) {
	tbl := New(4)
	tbl.Register(0x123, 1)
	if tbl.HasDuplicate(0x123) {
		t.Fatalf("fresh mapping should not be flagged")
	}
	tbl.SetHasDuplicateFlag(0x123)
	if !tbl.HasDuplicate(0x123) {
		t.Fatalf("expected duplicate flag to be set")
	}
	tbl.ClearHasDuplicateFlag(0x123)
	if tbl.HasDuplicate(0x123) {
		t.Fatalf("expected duplicate flag to be cleared")
	}
}

func TestFlush(t *testing.T) {
	tbl := New(4)
	tbl.Register(0x123, 1)
	tbl.Flush()
	if tbl.Len() != 0 {
		t.Fatalf("Len after Flush = %d, want 0", tbl.Len())
	}
}
