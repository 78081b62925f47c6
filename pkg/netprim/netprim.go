// Package netprim implements the Message-Network Primitives: the small
// set of always-present OpenLCB messages concerned with node identity
// and protocol capability rather than any particular application
// protocol (Verify Node ID, Protocol Support Inquiry, Initialization
// Complete, Optional Interaction Rejected, Terminate Due To Error).
package netprim

// MTI values for the message-network primitives, per the published
// OpenLCB MTI assignments.
const (
	MTIInitializationComplete       uint16 = 0x0100
	MTIInitializationCompleteSimple uint16 = 0x0101
	MTIVerifyNodeIDAddressed        uint16 = 0x0488
	MTIVerifyNodeIDGlobal           uint16 = 0x0490
	MTIVerifiedNodeID               uint16 = 0x0170
	MTIOptionalInteractionRejected  uint16 = 0x0068
	MTITerminateDueToError          uint16 = 0x00A8
	MTIProtocolSupportInquiry       uint16 = 0x0828
	MTIProtocolSupportReply         uint16 = 0x0668
)

// NodeIdentity is the subset of node state the primitives need: its own
// Node ID, PSI (Protocol Support Inquiry) flags, and a hook to flag a
// detected duplicate Node ID.
type NodeIdentity interface {
	NodeID() uint64
	PSIFlags() uint64
	FlagDuplicateNodeID()
}

// HandleVerifyNodeIDGlobal implements the global Verify Node ID
// behavior: reply if the payload is empty or names this node.
// Returns true if a reply should be sent.
func HandleVerifyNodeIDGlobal(self NodeIdentity, payload []byte) bool {
	if len(payload) == 0 {
		return true
	}
	if len(payload) != 6 {
		return false
	}
	return DecodeNodeID(payload) == self.NodeID()
}

// HandleVerifyNodeIDAddressed always replies, regardless of payload.
func HandleVerifyNodeIDAddressed(self NodeIdentity, payload []byte) bool {
	return true
}

// HandleVerifiedNodeID is passive: if the reported Node ID equals ours,
// we have a duplicate on the bus and must stop participating.
func HandleVerifiedNodeID(self NodeIdentity, payload []byte) {
	if len(payload) == 6 && DecodeNodeID(payload) == self.NodeID() {
		self.FlagDuplicateNodeID()
	}
}

// HandleProtocolSupportInquiry returns the PSI flags to reply with.
func HandleProtocolSupportInquiry(self NodeIdentity) uint64 {
	return self.PSIFlags()
}

// EncodeNodeID packs a 48-bit node id into its 6-byte wire form.
func EncodeNodeID(id uint64) []byte {
	return []byte{
		byte(id >> 40), byte(id >> 32), byte(id >> 24),
		byte(id >> 16), byte(id >> 8), byte(id),
	}
}

// DecodeNodeID unpacks a 6-byte wire-form Node ID into its 48-bit value.
func DecodeNodeID(b []byte) uint64 {
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}
