package node

import (
	"testing"

	lcc "github.com/openlcb-go/lcc"
	"github.com/openlcb-go/lcc/pkg/configmem"
	"github.com/openlcb-go/lcc/pkg/event"
)

func TestNewNodeWiresLoginAndConfigMem(t *testing.T) {
	n := New(nil, lcc.NodeID(0x0102030405), 0, true, nil, nil, Callbacks{})

	if n.NodeID() != 0x0102030405 {
		t.Fatalf("NodeID() = %x, want 0x0102030405", n.NodeID())
	}
	if n.Login == nil {
		t.Fatal("expected a login machine to be wired")
	}
	if n.Config == nil || n.ConfigMem == nil {
		t.Fatal("expected configuration-memory handler to be wired")
	}
}

func TestRegisterSpaceIsVisibleToHandler(t *testing.T) {
	n := New(nil, lcc.NodeID(1), 0, true, &event.List{}, &event.List{}, Callbacks{})
	n.RegisterSpace(configmem.NewBlobSpace(configmem.SpaceCDI, []byte("cdi bytes"), true))

	if _, ok := n.ConfigMem.Spaces[configmem.SpaceCDI]; !ok {
		t.Fatal("expected CDI space to be registered")
	}
}

func TestFlagDuplicateNodeID(t *testing.T) {
	n := New(nil, lcc.NodeID(1), 0, true, nil, nil, Callbacks{})
	if n.Duplicate() {
		t.Fatal("should not start flagged as duplicate")
	}
	n.FlagDuplicateNodeID()
	if !n.Duplicate() {
		t.Fatal("expected duplicate flag to be set")
	}
}

func TestOnLoginCompleteCallbackWiresIntoLoginMachine(t *testing.T) {
	var completed bool
	n := New(nil, lcc.NodeID(0x0102030405), 0, true, nil, nil, Callbacks{
		OnLoginComplete: func() { completed = true },
	})

	emit := func(lcc.Frame) bool { return true }
	for i := 0; i < 20 && !n.Login.Done(); i++ {
		n.Login.Step(emit)
	}

	if !n.Login.Done() {
		t.Fatal("expected login to complete")
	}
	if !completed {
		t.Fatal("expected node.Callbacks.OnLoginComplete to fire when login reaches Permitted")
	}
}

func TestOperationsCallbacksWireIntoConfigHandler(t *testing.T) {
	var rebooted, reset bool
	n := New(nil, lcc.NodeID(1), 0, true, nil, nil, Callbacks{
		OperationsReboot:       func() { rebooted = true },
		OperationsFactoryReset: func() { reset = true },
	})

	n.Config.Reboot()
	n.Config.FactoryReset()

	if !rebooted || !reset {
		t.Fatal("expected node.Callbacks operations hooks to be reachable through n.Config")
	}
}
