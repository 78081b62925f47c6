// Package configmem implements the Configuration-Memory Datagram
// Protocol: addressable read/write access to a node's configuration
// memory spaces, plus the operations family (lock, freeze, reset,
// factory reset), all carried as 2-72 byte OpenLCB datagrams.
package configmem

import (
	"log/slog"

	lcc "github.com/openlcb-go/lcc"
)

const protocolID = 0x20

// Command bytes (byte 1 of the datagram payload, after the protocol id).
const (
	cmdWriteMask       = 0xFC // 0x00..0x03 write, low 2 bits select space encoding
	cmdWrite           = 0x00
	cmdWriteReplyOK    = 0x10
	cmdWriteReplyFail  = 0x18
	cmdReadMask        = 0xFC
	cmdRead            = 0x40
	cmdReadReplyOK     = 0x48
	cmdReadReplyFail   = 0x58
	cmdOperationsMask  = 0xF0
	cmdOperations      = 0x80
	cmdGetOptions      = 0x80
	cmdGetOptionsReply = 0x82
	cmdGetSpaceInfo    = 0x84
	cmdGetSpaceReply   = 0x86
	cmdReserveLock     = 0x88
	cmdReserveReply    = 0x89
	cmdGetUniqueID     = 0x90
	cmdUniqueIDReply   = 0x91
	cmdFreeze          = 0xA0
	cmdUnfreeze        = 0xA1
	cmdUpdateComplete  = 0xA8
	cmdReset           = 0xA9
	cmdFactoryReset    = 0xAA
)

// Error codes. The high bit distinguishes temporary (retryable) from
// permanent errors.
const (
	ErrPermanentBase uint16 = 0x1000
	ErrTemporaryBase uint16 = 0x2000

	ErrOutOfBounds     uint16 = 0x1080
	ErrNotWritable     uint16 = 0x1081
	ErrNotReadable     uint16 = 0x1082
	ErrInvalidArgument uint16 = 0x1083
	ErrLocked          uint16 = 0x1084
	ErrTransferError   uint16 = 0x2080
)

// Datagram reply MTIs.
const (
	MTIDatagram          uint16 = 0x1C48
	MTIDatagramOK        uint16 = 0x0A28
	MTIDatagramRejected  uint16 = 0x0A48
)

// AddressSpace is the per-space backing store the embedder supplies:
// flash, EEPROM, a CDI byte blob, ACDI, or an in-RAM mirror. Mirrors an
// od.AddressSpace-style extension interface.
type AddressSpace struct {
	Space      byte
	Present    bool
	ReadOnly   bool
	LowAddr    uint32
	HighAddr   uint32
	Read       func(address uint32, count int) ([]byte, error)
	Write      func(address uint32, data []byte) error
	frozen     bool
}

func (s *AddressSpace) inBounds(address uint32, count int) bool {
	if count <= 0 {
		return false
	}
	end := uint64(address) + uint64(count)
	return address >= s.LowAddr && end <= uint64(s.HighAddr)+1
}

// Node is the subset of node state the protocol needs: its Node ID (for
// the reserve-lock owner exchange), the registered address spaces, and
// lock/write-pending bookkeeping. The node package's Node holds a
// pointer to one of these.
type Node struct {
	NodeID       uint64
	Spaces       map[byte]*AddressSpace
	LockHolder   uint64 // 0 = unlocked
	AckSent      bool   // openlcb_datagram_ack_sent: set after the first pass of a two-pass write
	PendingWrite *pendingWrite
}

type pendingWrite struct {
	space   byte
	address uint32
	data    []byte
}

// Handler processes configuration-memory datagrams for one node.
type Handler struct {
	logger *slog.Logger
	node   *Node

	// Reboot and FactoryReset are the embedder hooks the operations
	// family defers to; both may be left nil, in which case the
	// corresponding request is silently absorbed.
	Reboot       func()
	FactoryReset func()

	// DelayedReplyTimeRead and DelayedReplyTimeWrite are optional hooks
	// consulted when building the Datagram OK ack for a read or write:
	// if set and the returned bool is true, the ack carries a
	// reply-pending flag with the returned N, promising the substantive
	// reply within 2^N seconds. Left nil, acks carry no reply-pending
	// flag.
	DelayedReplyTimeRead  func() (pending bool, n uint8)
	DelayedReplyTimeWrite func() (pending bool, n uint8)
}

// New builds a configuration-memory handler for a node.
func New(logger *slog.Logger, node *Node) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger.With("service", "[CONFIGMEM]"), node: node}
}

// Reply is an outgoing datagram or datagram-acknowledgment the handler
// wants sent.
type Reply struct {
	MTI          uint16
	Payload      []byte
	ReplyPending bool
	PendingTimeN uint8 // 2^N seconds, valid when ReplyPending
}

// Handle processes one inbound configuration-memory datagram payload
// (including the leading 0x20 protocol-id byte) and returns the
// dispatcher outcome plus zero or more replies to emit, in order.
func (h *Handler) Handle(payload []byte) (lcc.HandlerOutcome, []Reply) {
	if len(payload) < 2 || payload[0] != protocolID {
		return lcc.OutcomeDone, nil
	}
	cmd := payload[1]

	switch {
	case cmd&cmdReadMask == cmdRead:
		return h.handleRead(payload)
	case cmd&cmdWriteMask == cmdWrite:
		return h.handleWrite(payload)
	case cmd >= cmdOperations:
		return h.handleOperation(cmd, payload)
	default:
		return lcc.OutcomeEmit, []Reply{h.rejected(ErrInvalidArgument)}
	}
}

func (h *Handler) rejected(code uint16) Reply {
	return Reply{MTI: MTIDatagramRejected, Payload: []byte{byte(code >> 8), byte(code)}}
}

// datagramOK builds a Datagram OK ack, consulting hook for an optional
// reply-pending flag. The flag byte's top bit marks reply-pending, the
// low bits carry N (2^N seconds until the substantive reply).
func (h *Handler) datagramOK(hook func() (bool, uint8)) Reply {
	if hook == nil {
		return Reply{MTI: MTIDatagramOK}
	}
	pending, n := hook()
	if !pending {
		return Reply{MTI: MTIDatagramOK}
	}
	return Reply{
		MTI:          MTIDatagramOK,
		Payload:      []byte{0x80 | (n & 0x7F)},
		ReplyPending: true,
		PendingTimeN: n,
	}
}

// extractAddressed parses the common space/address header shared by read
// and write commands: the low two bits of byte 1 select the space.
// Values 0b00, 0b01 and 0b10 are the short forms for spaces 0xFD, 0xFE
// and 0xFF; 0b11 means the space byte is carried explicitly at offset 6,
// right after the 4-byte address.
func extractAddressed(payload []byte) (space byte, address uint32, rest []byte, ok bool) {
	if len(payload) < 6 {
		return 0, 0, nil, false
	}
	address = uint32(payload[2])<<24 | uint32(payload[3])<<16 | uint32(payload[4])<<8 | uint32(payload[5])
	if len(payload) >= 7 && payload[1]&0x03 == 0x03 {
		// Explicit space byte follows the address.
		space = payload[6]
		rest = payload[7:]
		return space, address, rest, true
	}
	space = 0xFD + (payload[1] & 0x03)
	rest = payload[6:]
	return space, address, rest, true
}

func (h *Handler) handleRead(payload []byte) (lcc.HandlerOutcome, []Reply) {
	space, address, rest, ok := extractAddressed(payload)
	if !ok || len(rest) < 1 {
		return lcc.OutcomeEmit, []Reply{h.rejected(ErrInvalidArgument)}
	}
	count := int(rest[0])
	if count < 1 || count > 64 {
		return lcc.OutcomeEmit, []Reply{h.rejected(ErrInvalidArgument)}
	}
	as, present := h.node.Spaces[space]
	if !present || !as.Present {
		return lcc.OutcomeEmit, []Reply{h.rejected(ErrNotReadable)}
	}
	if !as.inBounds(address, count) {
		return lcc.OutcomeEmit, []Reply{h.rejected(ErrOutOfBounds)}
	}

	data, err := as.Read(address, count)
	ack := h.datagramOK(h.DelayedReplyTimeRead)
	replyCmd := byte(cmdReadReplyOK)
	if err != nil || len(data) < count {
		replyCmd = cmdReadReplyFail
	}
	header := readReplyHeader(replyCmd, space, address)
	reply := Reply{MTI: MTIDatagram, Payload: append(header, data...)}
	return lcc.OutcomeEmit, []Reply{ack, reply}
}

func readReplyHeader(cmd, space byte, address uint32) []byte {
	return []byte{protocolID, cmd, byte(address >> 24), byte(address >> 16), byte(address >> 8), byte(address), space}
}

func (h *Handler) handleWrite(payload []byte) (lcc.HandlerOutcome, []Reply) {
	space, address, data, ok := extractAddressed(payload)
	if !ok {
		return lcc.OutcomeEmit, []Reply{h.rejected(ErrInvalidArgument)}
	}
	// REDESIGN FLAG (OQ-3): a zero-length write is rejected outright,
	// unlike the reference implementation's silent accept.
	if len(data) == 0 {
		return lcc.OutcomeEmit, []Reply{h.rejected(ErrInvalidArgument)}
	}
	as, present := h.node.Spaces[space]
	if !present || !as.Present {
		return lcc.OutcomeEmit, []Reply{h.rejected(ErrNotWritable)}
	}
	if as.ReadOnly {
		return lcc.OutcomeEmit, []Reply{h.rejected(ErrNotWritable)}
	}
	if !as.inBounds(address, len(data)) {
		return lcc.OutcomeEmit, []Reply{h.rejected(ErrOutOfBounds)}
	}

	if !h.node.AckSent {
		// First pass: acknowledge and stash the write for the second
		// pass, which the dispatcher triggers by re-invoking us with
		// the same incoming message (EmitAndKeep).
		h.node.AckSent = true
		h.node.PendingWrite = &pendingWrite{space: space, address: address, data: data}
		return lcc.OutcomeEmitAndKeep, []Reply{h.datagramOK(h.DelayedReplyTimeWrite)}
	}

	// Second pass: perform the write and report the result.
	h.node.AckSent = false
	pw := h.node.PendingWrite
	h.node.PendingWrite = nil
	err := as.Write(pw.address, pw.data)
	replyCmd := byte(cmdWriteReplyOK)
	if err != nil {
		replyCmd = cmdWriteReplyFail
	}
	header := readReplyHeader(replyCmd, space, pw.address)
	return lcc.OutcomeEmit, []Reply{{MTI: MTIDatagram, Payload: header}}
}

func (h *Handler) handleOperation(cmd byte, payload []byte) (lcc.HandlerOutcome, []Reply) {
	switch cmd {
	case cmdGetOptions:
		return lcc.OutcomeEmit, []Reply{{MTI: MTIDatagram, Payload: h.getOptionsReply()}}

	case cmdGetSpaceInfo:
		if len(payload) < 3 {
			return lcc.OutcomeEmit, []Reply{h.rejected(ErrInvalidArgument)}
		}
		return lcc.OutcomeEmit, []Reply{{MTI: MTIDatagram, Payload: h.getSpaceInfoReply(payload[2])}}

	case cmdReserveLock:
		if len(payload) < 8 {
			return lcc.OutcomeEmit, []Reply{h.rejected(ErrInvalidArgument)}
		}
		owner := decodeNodeID(payload[2:8])
		return lcc.OutcomeEmit, []Reply{h.reserveLock(owner)}

	case cmdGetUniqueID:
		return lcc.OutcomeEmit, []Reply{{MTI: MTIDatagram, Payload: []byte{protocolID, cmdUniqueIDReply}}}

	case cmdFreeze, cmdUnfreeze:
		if len(payload) < 3 {
			return lcc.OutcomeEmit, []Reply{h.rejected(ErrInvalidArgument)}
		}
		as, ok := h.node.Spaces[payload[2]]
		if !ok {
			return lcc.OutcomeEmit, []Reply{h.rejected(ErrInvalidArgument)}
		}
		as.frozen = cmd == cmdFreeze
		return lcc.OutcomeEmit, []Reply{{MTI: MTIDatagramOK}}

	case cmdUpdateComplete:
		return lcc.OutcomeEmit, []Reply{{MTI: MTIDatagramOK}}

	case cmdReset:
		if h.Reboot != nil {
			h.Reboot()
		}
		return lcc.OutcomeDone, nil

	case cmdFactoryReset:
		if h.FactoryReset != nil {
			h.FactoryReset()
		}
		return lcc.OutcomeDone, nil

	default:
		return lcc.OutcomeEmit, []Reply{h.rejected(ErrInvalidArgument)}
	}
}

func (h *Handler) reserveLock(owner uint64) Reply {
	if owner == 0 {
		h.node.LockHolder = 0
		return Reply{MTI: MTIDatagramOK}
	}
	if h.node.LockHolder != 0 && h.node.LockHolder != owner {
		return h.rejected(ErrLocked)
	}
	h.node.LockHolder = owner
	return Reply{MTI: MTIDatagramOK}
}

func (h *Handler) getOptionsReply() []byte {
	return []byte{protocolID, cmdGetOptionsReply, 0, 0, 0, 0}
}

func (h *Handler) getSpaceInfoReply(space byte) []byte {
	as, ok := h.node.Spaces[space]
	reply := []byte{protocolID, cmdGetSpaceReply, space}
	if !ok || !as.Present {
		return append(reply, 0) // present=0
	}
	reply = append(reply, 1)
	reply = append(reply,
		byte(as.HighAddr>>24), byte(as.HighAddr>>16), byte(as.HighAddr>>8), byte(as.HighAddr),
		byte(as.LowAddr>>24), byte(as.LowAddr>>16), byte(as.LowAddr>>8), byte(as.LowAddr),
	)
	if as.ReadOnly {
		reply = append(reply, 0x01)
	} else {
		reply = append(reply, 0x00)
	}
	return reply
}

func decodeNodeID(b []byte) uint64 {
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}
