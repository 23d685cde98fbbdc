package protocol

import "net"

// EtherType is the private link-layer protocol identifier used to select
// frames belonging to QBolapp.
const EtherType uint16 = 0x88B5

// HeaderSize is the fixed portion of a frame: dst(6) + src(6) + ethertype(2)
// + kind(1) + flags(1) + seq(4) + transferID(4) + fragIndex(4) + total(4)
// + payloadLen(2).
const HeaderSize = 6 + 6 + 2 + 1 + 1 + 4 + 4 + 4 + 4 + 2

// CRCSize is the size of the trailing CRC-32 field.
const CRCSize = 4

// Broadcast is the all-ones MAC address.
var Broadcast = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// Frame is the single wire unit exchanged between peers.
type Frame struct {
	Dst            [6]byte
	Src            [6]byte
	Kind           Kind
	Flags          uint8
	Seq            uint32
	TransferID     uint32
	FragmentIndex  uint32
	TotalFragments uint32
	Payload        []byte
}

// Reliable reports whether the reliable flag is set.
func (f *Frame) Reliable() bool { return f.Flags&FlagReliable != 0 }

// LastFragment reports whether this is the final fragment of a file transfer.
func (f *Frame) LastFragment() bool { return f.Flags&FlagLastFragment != 0 }

// DstMAC returns the destination address as a net.HardwareAddr.
func (f *Frame) DstMAC() net.HardwareAddr { return macToHW(f.Dst) }

// SrcMAC returns the source address as a net.HardwareAddr.
func (f *Frame) SrcMAC() net.HardwareAddr { return macToHW(f.Src) }

// IsBroadcast reports whether the destination is the all-ones MAC.
func (f *Frame) IsBroadcast() bool { return f.Dst == Broadcast }

func macToHW(m [6]byte) net.HardwareAddr {
	hw := make(net.HardwareAddr, 6)
	copy(hw, m[:])
	return hw
}

// MACFrom converts a net.HardwareAddr into the fixed-size wire form. It
// panics if addr is not a 6-byte MAC — callers at the API boundary are
// expected to validate before reaching the codec.
func MACFrom(addr net.HardwareAddr) [6]byte {
	if len(addr) != 6 {
		panic("protocol: MAC address must be 6 bytes")
	}
	var out [6]byte
	copy(out[:], addr)
	return out
}
