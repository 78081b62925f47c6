package inflight

import (
	"errors"
	"testing"

	lccerr "github.com/openlcb-go/lcc/internal/lccerr"
	"github.com/openlcb-go/lcc/pkg/buffer"
)

func TestAddFindRelease(t *testing.T) {
	l := New(2)
	key := Key{SourceAlias: 0x123, DestAlias: 0x456, MTI: 0x1A}
	msg := &buffer.Message{MTI: 0x1A}
	if err := l.Add(key, msg); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got, ok := l.Find(key); !ok || got != msg {
		t.Fatalf("Find did not return the added message")
	}
	released, err := l.Release(key)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if released != msg {
		t.Fatalf("Release returned wrong message")
	}
	if _, ok := l.Find(key); ok {
		t.Fatalf("Find should fail after Release")
	}
}

func TestCapacity(t *testing.T) {
	l := New(1)
	k1 := Key{SourceAlias: 1}
	k2 := Key{SourceAlias: 2}
	if err := l.Add(k1, &buffer.Message{}); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := l.Add(k2, &buffer.Message{}); !errors.Is(err, lccerr.ErrInFlightFull) {
		t.Fatalf("second Add = %v, want ErrInFlightFull", err)
	}
}

func TestReleaseMissing(t *testing.T) {
	l := New(1)
	if _, err := l.Release(Key{SourceAlias: 99}); !errors.Is(err, lccerr.ErrInFlightNotFound) {
		t.Fatalf("Release on empty list = %v, want ErrInFlightNotFound", err)
	}
}
