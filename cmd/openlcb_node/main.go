// Command openlcb_node hosts one or more virtual OpenLCB/LCC nodes on a
// CAN bus, driven by an INI configuration file: parse flags, bring up
// the bus, build the protocol engine, then drive it from a background
// loop.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	lcc "github.com/openlcb-go/lcc"
	"github.com/openlcb-go/lcc/pkg/can"
	_ "github.com/openlcb-go/lcc/pkg/can/socketcan"
	_ "github.com/openlcb-go/lcc/pkg/can/virtual"
	"github.com/openlcb-go/lcc/pkg/config"
	"github.com/openlcb-go/lcc/pkg/configmem"
	"github.com/openlcb-go/lcc/pkg/engine"
	"github.com/openlcb-go/lcc/pkg/event"
	"github.com/openlcb-go/lcc/pkg/node"
)

func main() {
	iface := flag.String("i", "socketcan", "CAN interface type (socketcan, virtual)")
	channel := flag.String("c", "can0", "interface channel, e.g. can0 or host:port for virtual")
	configPath := flag.String("config", "", "path to the node configuration .ini file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "missing required -config flag")
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	bus, err := can.NewBus(*iface, *channel, 125000)
	if err != nil {
		logger.Error("failed to create bus", "interface", *iface, "err", err)
		os.Exit(1)
	}
	if err := bus.Connect(); err != nil {
		logger.Error("failed to connect bus", "err", err)
		os.Exit(1)
	}

	e := engine.New(logger, bus, cfg.Depths)

	for _, nc := range cfg.Nodes {
		n := node.New(logger, lcc.NodeID(nc.NodeID), 0x0101, nc.SimplePSI,
			&event.List{Events: make([]event.Entry, 0, nc.ProducerCount), Ranges: make([]event.Range, 0, nc.ProducerRangeCount)},
			&event.List{Events: make([]event.Entry, 0, nc.ConsumerCount), Ranges: make([]event.Range, 0, nc.ConsumerRangeCount)},
			node.Callbacks{
				TransmitCANFrame: func(f lcc.Frame) error { return bus.Send(f) },
				IsTxBufferEmpty:  func() bool { return true },
				OperationsReboot: func() {
					logger.Info("reboot requested", "node", nc.Name)
				},
			})
		n.RegisterSpace(configmem.NewBlobSpace(configmem.SpaceCDI, make([]byte, nc.CDILength), true))
		e.AddNode(n)
		logger.Info("configured node", "name", nc.Name, "node_id", n.ID().String())
	}

	if err := bus.Subscribe(e); err != nil {
		logger.Error("failed to subscribe engine to bus", "err", err)
		os.Exit(1)
	}

	tickerDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.On100msTick()
			case <-tickerDone:
				return
			}
		}
	}()

	for {
		e.Run()
		time.Sleep(time.Millisecond)
	}
}
