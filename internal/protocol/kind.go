package protocol

// Kind identifies the semantic role of a Frame on the wire.
type Kind uint8

// Frame kinds, per the wire format.
const (
	KindMSG Kind = iota + 1
	KindACK
	KindNACK
	KindFILE
	KindFILEACK
	KindHELLO
	KindBroadcastOnline
	KindBroadcastOffline
	KindCTRL
)

// String renders a Kind for logging.
func (k Kind) String() string {
	switch k {
	case KindMSG:
		return "MSG"
	case KindACK:
		return "ACK"
	case KindNACK:
		return "NACK"
	case KindFILE:
		return "FILE"
	case KindFILEACK:
		return "FILE_ACK"
	case KindHELLO:
		return "HELLO"
	case KindBroadcastOnline:
		return "BROADCAST_ONLINE"
	case KindBroadcastOffline:
		return "BROADCAST_OFFLINE"
	case KindCTRL:
		return "CTRL"
	default:
		return "UNKNOWN"
	}
}

// Flags, packed into the frame's single flags byte.
const (
	FlagReliable     uint8 = 1 << 0
	FlagLastFragment uint8 = 1 << 1
)
