package protocol

import (
	"encoding/binary"
	"net"
)

// Builder is a small pure-function factory bound to the local MAC and
// display name, so callers don't repeat both on every constructor call.
// Every method remains a pure function of Builder's fields plus its
// explicit arguments — no method mutates Builder or reads external state.
type Builder struct {
	LocalMAC [6]byte
	UserName string
}

// NewBuilder creates a Builder for the given local address and display name.
func NewBuilder(local net.HardwareAddr, userName string) *Builder {
	return &Builder{LocalMAC: MACFrom(local), UserName: userName}
}

// BuildMsg constructs a MSG frame with the reliable flag set by default;
// use BuildMsgUnreliable to clear it.
func (b *Builder) BuildMsg(dst [6]byte, seq uint32, text string) *Frame {
	return &Frame{
		Dst:     dst,
		Src:     b.LocalMAC,
		Kind:    KindMSG,
		Flags:   FlagReliable,
		Seq:     seq,
		Payload: []byte(text),
	}
}

// BuildMsgUnreliable constructs a MSG frame with the reliable flag cleared.
func (b *Builder) BuildMsgUnreliable(dst [6]byte, seq uint32, text string) *Frame {
	f := b.BuildMsg(dst, seq, text)
	f.Flags &^= FlagReliable
	return f
}

// BuildBroadcast constructs an unreliable MSG frame addressed to the
// broadcast MAC.
func (b *Builder) BuildBroadcast(seq uint32, text string) *Frame {
	return b.BuildMsgUnreliable(Broadcast, seq, text)
}

// BuildAck constructs an ACK frame addressed back to the original sender,
// carrying the sequence number being acknowledged.
func (b *Builder) BuildAck(dst [6]byte, seq uint32, ackedSeq uint32) *Frame {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, ackedSeq)
	return &Frame{
		Dst:     dst,
		Src:     b.LocalMAC,
		Kind:    KindACK,
		Seq:     seq,
		Payload: payload,
	}
}

// BuildNack constructs a NACK frame carrying the sequence number being
// fast-retransmit-requested. NACK is an optional hint: this constructor
// exists for completeness, and no sender in this implementation calls it.
func (b *Builder) BuildNack(dst [6]byte, seq uint32, nackedSeq uint32) *Frame {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, nackedSeq)
	return &Frame{
		Dst:     dst,
		Src:     b.LocalMAC,
		Kind:    KindNACK,
		Seq:     seq,
		Payload: payload,
	}
}

// BuildFile constructs one FILE fragment. LastFragment flag is set iff
// fragIndex == total-1. Reliable controls whether the fragment carries the
// reliable flag (a per-fragment FILE_ACK is expected only when set).
func (b *Builder) BuildFile(dst [6]byte, seq, transferID, fragIndex, total uint32, chunk []byte, reliable bool) *Frame {
	var flags uint8
	if reliable {
		flags |= FlagReliable
	}
	if fragIndex == total-1 {
		flags |= FlagLastFragment
	}
	return &Frame{
		Dst:            dst,
		Src:            b.LocalMAC,
		Kind:           KindFILE,
		Flags:          flags,
		Seq:            seq,
		TransferID:     transferID,
		FragmentIndex:  fragIndex,
		TotalFragments: total,
		Payload:        chunk,
	}
}

// BuildFileAck constructs a FILE_ACK carrying (transfer id, fragment index).
func (b *Builder) BuildFileAck(dst [6]byte, seq, transferID, fragIndex uint32) *Frame {
	return &Frame{
		Dst:           dst,
		Src:           b.LocalMAC,
		Kind:          KindFILEACK,
		Seq:           seq,
		TransferID:    transferID,
		FragmentIndex: fragIndex,
	}
}

// BuildHello constructs a HELLO frame addressed to the broadcast MAC,
// carrying the display name.
func (b *Builder) BuildHello(seq uint32) *Frame {
	return &Frame{
		Dst:     Broadcast,
		Src:     b.LocalMAC,
		Kind:    KindHELLO,
		Seq:     seq,
		Payload: []byte(b.UserName),
	}
}

// BuildBroadcastOnline constructs a BROADCAST_ONLINE frame announcing this
// peer's display name.
func (b *Builder) BuildBroadcastOnline(seq uint32) *Frame {
	return &Frame{
		Dst:     Broadcast,
		Src:     b.LocalMAC,
		Kind:    KindBroadcastOnline,
		Seq:     seq,
		Payload: []byte(b.UserName),
	}
}

// BuildBroadcastOffline constructs a BROADCAST_OFFLINE frame, emitted on
// graceful shutdown.
func (b *Builder) BuildBroadcastOffline(seq uint32) *Frame {
	return &Frame{
		Dst:  Broadcast,
		Src:  b.LocalMAC,
		Kind: KindBroadcastOffline,
		Seq:  seq,
	}
}

// BuildCtrl constructs a reserved CTRL frame with an application-defined
// subtype byte as the first payload byte.
func (b *Builder) BuildCtrl(dst [6]byte, seq uint32, subtype byte, payload []byte) *Frame {
	full := append([]byte{subtype}, payload...)
	return &Frame{
		Dst:     dst,
		Src:     b.LocalMAC,
		Kind:    KindCTRL,
		Seq:     seq,
		Payload: full,
	}
}

// DecodeAckPayload extracts the acknowledged sequence number from an ACK or
// NACK frame's payload.
func DecodeAckPayload(payload []byte) (uint32, bool) {
	if len(payload) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(payload[:4]), true
}
