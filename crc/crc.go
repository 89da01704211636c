// Package crc implements the USB token and data checksums.
// Both are reflected CRCs: CRC-5/USB (poly x^5+x^2+1, init 0x1F, xorout
// 0x1F) over token fields and CRC-16/USB (poly x^16+x^15+x^2+1, init
// 0xFFFF, xorout 0xFFFF) over data payloads.
package crc

// Outcome is the result of checking a frame's transmitted checksum.
type Outcome int

const (
	NotApplicable Outcome = iota // frame is malformed, no checksum to judge
	Valid
	Invalid
)

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "OK"
	case Invalid:
		return "FAIL"
	default:
		return "N/A"
	}
}

// Reflected (LSB-first) forms of the standard USB polynomials.
const (
	DefaultPoly5  uint8  = 0x14   // x^5 + x^2 + 1
	DefaultPoly16 uint16 = 0xA001 // x^16 + x^15 + x^2 + 1
)

// Validator computes and checks USB checksums. The polynomials default to
// the USB 2.0 values and may be overridden from the session configuration.
type Validator struct {
	Poly5  uint8
	Poly16 uint16
}

// NewValidator returns a Validator using the standard USB polynomials.
func NewValidator() *Validator {
	return &Validator{Poly5: DefaultPoly5, Poly16: DefaultPoly16}
}

// CRC5 computes the 5-bit checksum over bits given in wire (LSB-first)
// order. Each element of bits must be 0 or 1.
func (v *Validator) CRC5(bits []uint8) uint8 {
	crc := uint8(0x1F)
	for _, b := range bits {
		if (crc^b)&0x01 != 0 {
			crc = (crc >> 1) ^ v.Poly5
		} else {
			crc >>= 1
		}
	}
	return (crc ^ 0x1F) & 0x1F
}

// CheckCRC5 compares the checksum of the field bits against the value
// received on the wire.
func (v *Validator) CheckCRC5(fieldBits []uint8, received uint8) Outcome {
	if v.CRC5(fieldBits) == received&0x1F {
		return Valid
	}
	return Invalid
}

// CRC16 computes the 16-bit checksum over the payload bytes.
func (v *Validator) CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ v.Poly16
			} else {
				crc >>= 1
			}
		}
	}
	return crc ^ 0xFFFF
}

// CheckCRC16 compares the checksum of the payload against the value
// received on the wire.
func (v *Validator) CheckCRC16(payload []byte, received uint16) Outcome {
	if v.CRC16(payload) == received {
		return Valid
	}
	return Invalid
}
