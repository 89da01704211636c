package packet

import "usbdec/crc"

// Kind classifies a frame by its PID group.
type Kind int

const (
	KindMalformed Kind = iota
	KindToken
	KindData
	KindHandshake
	KindSpecial
)

func (k Kind) String() string {
	switch k {
	case KindToken:
		return "Token"
	case KindData:
		return "Data"
	case KindHandshake:
		return "Handshake"
	case KindSpecial:
		return "Special"
	default:
		return "Malformed"
	}
}

// Status is the lifecycle state of a frame. A frame is only ever in one
// state at a time.
type Status int

const (
	StatusAccumulating Status = iota
	StatusComplete
	StatusMalformed
)

// PID is the 4-bit USB packet identifier. On the wire it is transmitted
// as eight bits, low nibble first, high nibble the bitwise complement.
type PID uint8

const (
	PIDOut   PID = 0x1
	PIDIn    PID = 0x9
	PIDSOF   PID = 0x5
	PIDSetup PID = 0xD

	PIDData0 PID = 0x3
	PIDData1 PID = 0xB
	PIDData2 PID = 0x7
	PIDMData PID = 0xF

	PIDAck   PID = 0x2
	PIDNak   PID = 0xA
	PIDStall PID = 0xE
	PIDNyet  PID = 0x6

	PIDPre   PID = 0xC
	PIDSplit PID = 0x8
	PIDPing  PID = 0x4
)

func (p PID) String() string {
	switch p {
	case PIDOut:
		return "OUT"
	case PIDIn:
		return "IN"
	case PIDSOF:
		return "SOF"
	case PIDSetup:
		return "SETUP"
	case PIDData0:
		return "DATA0"
	case PIDData1:
		return "DATA1"
	case PIDData2:
		return "DATA2"
	case PIDMData:
		return "MDATA"
	case PIDAck:
		return "ACK"
	case PIDNak:
		return "NAK"
	case PIDStall:
		return "STALL"
	case PIDNyet:
		return "NYET"
	case PIDPre:
		return "PRE"
	case PIDSplit:
		return "SPLIT"
	case PIDPing:
		return "PING"
	default:
		return "?"
	}
}

// KindOf returns the frame kind the decoder assigns to a PID. Only the
// four token, two data and four handshake PIDs get field decodes; any
// other value with a valid complement is passed through as Special so a
// damaged or future PID never stalls the stream.
func (p PID) KindOf() Kind {
	switch p {
	case PIDOut, PIDIn, PIDSOF, PIDSetup:
		return KindToken
	case PIDData0, PIDData1:
		return KindData
	case PIDAck, PIDNak, PIDStall, PIDNyet:
		return KindHandshake
	default:
		return KindSpecial
	}
}

// Frame is one in-progress or completed packet. It is a single
// discriminated struct: Kind selects which field group is meaningful.
type Frame struct {
	PID      PID
	PIDValid bool
	Kind     Kind
	Status   Status

	// Token fields (IN/OUT/SETUP)
	Addr     uint8
	Endpoint uint8
	// Token field (SOF)
	FrameNumber uint16

	// Data fields
	Payload []byte

	// Special pass-through
	RawBits []uint8

	// Transmitted checksum, 5 or 16 bits depending on Kind
	CRCField uint16
}

// DecodedUnit is the externally visible decode result: a frame, its
// checksum outcome and an optional annotation.
type DecodedUnit struct {
	Frame Frame
	CRC   crc.Outcome
	Note  string
}
