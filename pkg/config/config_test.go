package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[general]
can_msg_buffer_depth = 32
inflight_depth = 6
node_buffer_depth = 2

[buffers]
basic_buffer_depth = 16
datagram_buffer_depth = 8
snip_buffer_depth = 4
stream_buffer_depth = 1

[node "turnout-1"]
node_id = 0x020103040506
producer_count = 4
consumer_count = 2
producer_range_count = 1
`

func TestLoadPopulatesDepths(t *testing.T) {
	cfg, err := Load([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.Depths.FIFODepth)
	assert.Equal(t, 6, cfg.Depths.InFlightDepth)
	assert.Equal(t, 2, cfg.Depths.AliasTableDepth)
	assert.Equal(t, 16, cfg.Depths.Buffer.Basic)
	assert.Equal(t, 8, cfg.Depths.Buffer.Datagram)
	assert.Equal(t, 4, cfg.Depths.Buffer.SNIP)
	assert.Equal(t, 1, cfg.Depths.Buffer.Stream)
}

func TestLoadParsesNodeSections(t *testing.T) {
	cfg, err := Load([]byte(sample))
	require.NoError(t, err)

	require.Len(t, cfg.Nodes, 1)
	n := cfg.Nodes[0]
	assert.Equal(t, "turnout-1", n.Name)
	assert.Equal(t, uint64(0x020103040506), n.NodeID)
	assert.True(t, n.SimplePSI)
	assert.Equal(t, 4, n.ProducerCount)
	assert.Equal(t, 2, n.ConsumerCount)
	assert.Equal(t, 1, n.ProducerRangeCount)
	assert.Equal(t, 0, n.ConsumerRangeCount)
}

func TestLoadDefaultsWhenGeneralSectionMissing(t *testing.T) {
	cfg, err := Load([]byte(`[node "a"]
node_id = 1
`))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Depths.FIFODepth)
	assert.Equal(t, 4, cfg.Depths.InFlightDepth)
}

func TestLoadRejectsNodeWithoutID(t *testing.T) {
	_, err := Load([]byte(`[node "bad"]
producer_count = 1
`))
	assert.Error(t, err)
}

