// Package config loads the compile-time configuration options described
// in the external-interfaces section of the OpenLCB/LCC specification —
// buffer-class depths, frame-pool and in-flight depths, per-node event
// capacities, and embedded CDI/FDI sizes — from an INI file, the same
// format and library (gopkg.in/ini.v1) CANopen EDS object-dictionary
// files use, repurposed here for engine sizing instead of CANopen
// object descriptions.
package config

import (
	"fmt"
	"strconv"

	"gopkg.in/ini.v1"

	"github.com/openlcb-go/lcc/pkg/buffer"
	"github.com/openlcb-go/lcc/pkg/engine"
)

// Node is one statically-configured virtual node's identity and event
// capacities, read from a `[node "<name>"]` section.
type Node struct {
	Name               string
	NodeID             uint64
	SimplePSI          bool
	ProducerCount      int
	ConsumerCount      int
	ProducerRangeCount int
	ConsumerRangeCount int
	CDILength          int
	FDILength          int
}

// Config is the fully-parsed compile-time configuration: the shared
// resource depths the engine is built with, plus the list of nodes it
// should host.
type Config struct {
	Depths engine.Depths
	Nodes  []Node
}

// Load reads and validates an INI configuration file. path is passed
// straight to ini.Load, so it may be a filesystem path, []byte, or
// io.Reader per that library's own Source type.
func Load(path any) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{}

	general := f.Section("general")
	cfg.Depths.FIFODepth = general.Key("can_msg_buffer_depth").MustInt(16)
	cfg.Depths.InFlightDepth = general.Key("inflight_depth").MustInt(4)
	cfg.Depths.AliasTableDepth = general.Key("node_buffer_depth").MustInt(8)

	buffers := f.Section("buffers")
	cfg.Depths.Buffer = buffer.Depths{
		Basic:    buffers.Key("basic_buffer_depth").MustInt(8),
		Datagram: buffers.Key("datagram_buffer_depth").MustInt(4),
		SNIP:     buffers.Key("snip_buffer_depth").MustInt(2),
		Stream:   buffers.Key("stream_buffer_depth").MustInt(0),
	}

	for _, section := range f.Sections() {
		name, ok := nodeSectionName(section.Name())
		if !ok {
			continue
		}
		// Parsed with base 0, not Key.Uint64, so hex node ids (the
		// conventional dotted-hex form collapsed to 0x...) work the same
		// way an EDS parser reads ObjectType/SubNumber.
		nodeID, err := strconv.ParseUint(section.Key("node_id").String(), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("config: node %q: %w", name, err)
		}
		cfg.Nodes = append(cfg.Nodes, Node{
			Name:               name,
			NodeID:             nodeID,
			SimplePSI:          section.Key("simple_psi").MustBool(true),
			ProducerCount:      section.Key("producer_count").MustInt(0),
			ConsumerCount:      section.Key("consumer_count").MustInt(0),
			ProducerRangeCount: section.Key("producer_range_count").MustInt(0),
			ConsumerRangeCount: section.Key("consumer_range_count").MustInt(0),
			CDILength:          section.Key("cdi_length").MustInt(0),
			FDILength:          section.Key("fdi_length").MustInt(0),
		})
	}

	return cfg, nil
}

// nodeSectionName reports whether s is a `node "name"`-style section
// header (ini.v1's convention for a named, repeatable section family)
// and extracts the node's name.
func nodeSectionName(s string) (name string, ok bool) {
	const prefix = `node "`
	const suffix = `"`
	if len(s) < len(prefix)+len(suffix) || s[:len(prefix)] != prefix || s[len(s)-1:] != suffix {
		return "", false
	}
	return s[len(prefix) : len(s)-len(suffix)], true
}
