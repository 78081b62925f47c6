package configmem

import (
	"testing"

	lcc "github.com/openlcb-go/lcc"
)

func newTestNode() *Node {
	store := make([]byte, 64)
	space := &AddressSpace{
		Space:    0xFD,
		Present:  true,
		LowAddr:  0,
		HighAddr: uint32(len(store) - 1),
		Read: func(address uint32, count int) ([]byte, error) {
			return append([]byte(nil), store[address:int(address)+count]...), nil
		},
		Write: func(address uint32, data []byte) error {
			copy(store[address:], data)
			return nil
		},
	}
	return &Node{NodeID: 0x0102030405, Spaces: map[byte]*AddressSpace{0xFD: space}}
}

func TestTwoFrameDatagramWrite(t *testing.T) {
	h := New(nil, newTestNode())

	// Datagram reassembled across FIRST+FINAL: write "ABCD" to space
	// 0xFD at address 0x10.
	payload := []byte{0x20, 0x00, 0x00, 0x00, 0x00, 0x10, 'A', 'B', 'C', 'D'}

	outcome, replies := h.Handle(payload)
	if outcome != lcc.OutcomeEmitAndKeep {
		t.Fatalf("first pass outcome = %v, want EmitAndKeep", outcome)
	}
	if len(replies) != 1 || replies[0].MTI != MTIDatagramOK {
		t.Fatalf("first pass should emit exactly one Datagram OK, got %+v", replies)
	}

	outcome, replies = h.Handle(payload)
	if outcome != lcc.OutcomeEmit {
		t.Fatalf("second pass outcome = %v, want Emit", outcome)
	}
	if len(replies) != 1 || replies[0].Payload[1] != cmdWriteReplyOK {
		t.Fatalf("second pass should emit a Write Reply OK, got %+v", replies)
	}

	data, _ := h.node.Spaces[0xFD].Read(0x10, 4)
	if string(data) != "ABCD" {
		t.Fatalf("bytes written = %q, want ABCD", data)
	}
}

func TestZeroLengthWriteRejected(t *testing.T) {
	h := New(nil, newTestNode())
	payload := []byte{0x20, 0x00, 0x00, 0x00, 0x00, 0x10}
	outcome, replies := h.Handle(payload)
	if outcome != lcc.OutcomeEmit || len(replies) != 1 || replies[0].MTI != MTIDatagramRejected {
		t.Fatalf("zero-length write should be rejected, got %v %+v", outcome, replies)
	}
}

func TestReadOutOfBounds(t *testing.T) {
	h := New(nil, newTestNode())
	payload := []byte{0x20, 0x40, 0x00, 0x00, 0x00, 0xFF, 8}
	_, replies := h.Handle(payload)
	if len(replies) != 1 || replies[0].MTI != MTIDatagramRejected {
		t.Fatalf("out-of-bounds read should be rejected, got %+v", replies)
	}
}

func TestReserveLockConflict(t *testing.T) {
	h := New(nil, newTestNode())
	h.node.LockHolder = 0xAAAAAAAAAAAA

	payload := []byte{0x20, cmdReserveLock, 0, 0, 0, 0, 0, 0}
	payload = append(payload[:2], append(encode6(0xBBBBBBBBBBBB), payload[8:]...)...)
	_, replies := h.Handle(payload)
	if len(replies) != 1 || replies[0].MTI != MTIDatagramRejected {
		t.Fatalf("lock held by another node should reject a conflicting reserve, got %+v", replies)
	}
}

func encode6(id uint64) []byte {
	return []byte{byte(id >> 40), byte(id >> 32), byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
}

func TestResetInvokesRebootHook(t *testing.T) {
	h := New(nil, newTestNode())
	called := false
	h.Reboot = func() { called = true }

	outcome, replies := h.Handle([]byte{0x20, cmdReset})
	if outcome != lcc.OutcomeDone || replies != nil {
		t.Fatalf("reset outcome = %v %+v, want Done/nil", outcome, replies)
	}
	if !called {
		t.Fatal("Reboot hook was not invoked")
	}
}

func TestFactoryResetInvokesHook(t *testing.T) {
	h := New(nil, newTestNode())
	called := false
	h.FactoryReset = func() { called = true }

	outcome, _ := h.Handle([]byte{0x20, cmdFactoryReset})
	if outcome != lcc.OutcomeDone {
		t.Fatalf("factory reset outcome = %v, want Done", outcome)
	}
	if !called {
		t.Fatal("FactoryReset hook was not invoked")
	}
}

func TestResetWithNilHookIsSilentlyAbsorbed(t *testing.T) {
	h := New(nil, newTestNode())
	outcome, _ := h.Handle([]byte{0x20, cmdReset})
	if outcome != lcc.OutcomeDone {
		t.Fatalf("reset outcome = %v, want Done", outcome)
	}
}

func TestReadDelayedReplyFlagsAck(t *testing.T) {
	h := New(nil, newTestNode())
	h.DelayedReplyTimeRead = func() (bool, uint8) { return true, 3 }

	payload := []byte{0x20, 0x40, 0x00, 0x00, 0x00, 0x10, 8}
	_, replies := h.Handle(payload)
	if len(replies) != 2 {
		t.Fatalf("expected an ack and a read reply, got %+v", replies)
	}
	ack := replies[0]
	if ack.MTI != MTIDatagramOK || !ack.ReplyPending || ack.PendingTimeN != 3 {
		t.Fatalf("ack = %+v, want ReplyPending with N=3", ack)
	}
	if len(ack.Payload) != 1 || ack.Payload[0] != 0x83 {
		t.Fatalf("ack payload = %v, want [0x83]", ack.Payload)
	}
}

func TestWriteDelayedReplyFlagsFirstPassAckOnly(t *testing.T) {
	h := New(nil, newTestNode())
	h.DelayedReplyTimeWrite = func() (bool, uint8) { return true, 2 }

	payload := []byte{0x20, 0x00, 0x00, 0x00, 0x00, 0x10, 'A', 'B'}

	_, replies := h.Handle(payload)
	if len(replies) != 1 || !replies[0].ReplyPending || replies[0].PendingTimeN != 2 {
		t.Fatalf("first pass ack = %+v, want ReplyPending with N=2", replies)
	}

	_, replies = h.Handle(payload)
	if len(replies) != 1 || replies[0].MTI != MTIDatagram {
		t.Fatalf("second pass should emit a plain Write Reply, got %+v", replies)
	}
}

func TestNoDelayedReplyHookLeavesAckPlain(t *testing.T) {
	h := New(nil, newTestNode())
	payload := []byte{0x20, 0x40, 0x00, 0x00, 0x00, 0x10, 8}
	_, replies := h.Handle(payload)
	if len(replies) != 2 || replies[0].ReplyPending || len(replies[0].Payload) != 0 {
		t.Fatalf("ack = %+v, want no reply-pending flag", replies[0])
	}
}
