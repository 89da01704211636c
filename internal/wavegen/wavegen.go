// Package wavegen builds synthetic (D+, D-) sample streams for known
// packet sequences: SYNC, NRZI encoding, bit stuffing and EOP, the
// inverse of the decode pipeline. Used by tests and the wave generator
// tool.
package wavegen

import (
	"fmt"
	"strings"

	"usbdec/crc"
	"usbdec/packet"
	"usbdec/signal"
)

// Builder accumulates encoded samples. Levels always start from the
// idle J state.
type Builder struct {
	speed      signal.Speed
	oversample int
	val        *crc.Validator

	level   signal.Symbol // current line level, SymJ or SymK
	onesRun int
	samples []signal.Sample
}

// NewBuilder creates a Builder for the given speed and oversampling
// factor (samples emitted per bit period).
func NewBuilder(speed signal.Speed, oversample int) *Builder {
	if oversample < 1 {
		oversample = 1
	}
	return &Builder{
		speed:      speed,
		oversample: oversample,
		val:        crc.NewValidator(),
		level:      signal.SymJ,
	}
}

// Samples returns the accumulated sample stream.
func (b *Builder) Samples() []signal.Sample {
	return append([]signal.Sample(nil), b.samples...)
}

// HexLine renders the accumulated samples as one query line.
func (b *Builder) HexLine() string {
	var sb strings.Builder
	for _, s := range b.samples {
		fmt.Fprintf(&sb, "%02x", s.DPlus|s.DMinus<<1)
	}
	return sb.String()
}

// Idle holds the bus at J for n bit periods.
func (b *Builder) Idle(n int) *Builder {
	b.level = signal.SymJ
	for i := 0; i < n; i++ {
		b.emitSymbol(signal.SymJ)
	}
	return b
}

// Token appends an IN/OUT/SETUP token packet with a correct CRC5.
func (b *Builder) Token(pid packet.PID, addr, ep uint8) *Builder {
	field := uint16(addr&0x7F) | uint16(ep&0x0F)<<7
	return b.tokenField(pid, field)
}

// SOF appends a start-of-frame token carrying the frame number.
func (b *Builder) SOF(frame uint16) *Builder {
	return b.tokenField(packet.PIDSOF, frame&0x7FF)
}

func (b *Builder) tokenField(pid packet.PID, field uint16) *Builder {
	bits := pidBits(pid)
	fieldBits := make([]uint8, 11)
	for i := range fieldBits {
		fieldBits[i] = uint8(field>>i) & 1
	}
	bits = append(bits, fieldBits...)
	c := b.val.CRC5(fieldBits)
	for i := 0; i < 5; i++ {
		bits = append(bits, (c>>i)&1)
	}
	return b.packet(bits)
}

// Data appends a DATA0/DATA1 packet with a correct CRC16.
func (b *Builder) Data(pid packet.PID, payload []byte) *Builder {
	return b.DataWithCRC(pid, payload, b.val.CRC16(payload))
}

// DataWithCRC appends a data packet carrying an explicit checksum value,
// matching or not. Lets tests reproduce a corrupted payload whose
// transmitted CRC no longer agrees.
func (b *Builder) DataWithCRC(pid packet.PID, payload []byte, crc16 uint16) *Builder {
	bits := pidBits(pid)
	for _, by := range payload {
		for i := 0; i < 8; i++ {
			bits = append(bits, (by>>i)&1)
		}
	}
	for i := 0; i < 16; i++ {
		bits = append(bits, uint8(crc16>>i)&1)
	}
	return b.packet(bits)
}

// Handshake appends a fieldless packet (ACK/NAK/STALL/NYET, or any
// special PID passed through raw).
func (b *Builder) Handshake(pid packet.PID) *Builder {
	return b.packet(pidBits(pid))
}

// RawPID is Handshake under its protocol-neutral name, for special PIDs.
func (b *Builder) RawPID(pid packet.PID) *Builder {
	return b.Handshake(pid)
}

// RawPacket frames arbitrary bits with SYNC, stuffing and EOP. Lets
// tests build structurally broken packets such as a PID whose complement
// nibble does not match.
func (b *Builder) RawPacket(bits []uint8) *Builder {
	return b.packet(bits)
}

// packet emits SYNC, the given bits with stuffing, and EOP. Stuff
// counting runs over the whole packet including SYNC's trailing 1.
func (b *Builder) packet(bits []uint8) *Builder {
	b.onesRun = 0
	sync := []uint8{0, 0, 0, 0, 0, 0, 0, 1}
	for _, bit := range append(sync, bits...) {
		b.emitBit(bit)
	}
	// EOP: two bit periods of SE0, then return to idle J.
	b.emitSymbol(signal.SymSE0)
	b.emitSymbol(signal.SymSE0)
	b.level = signal.SymJ
	b.emitSymbol(signal.SymJ)
	return b
}

func (b *Builder) emitBit(bit uint8) {
	if b.onesRun == 6 {
		// Stuffed 0: forced transition.
		b.toggle()
		b.emitSymbol(b.level)
		b.onesRun = 0
	}
	if bit == 0 {
		b.toggle()
		b.onesRun = 0
	} else {
		b.onesRun++
	}
	b.emitSymbol(b.level)
}

func (b *Builder) toggle() {
	if b.level == signal.SymJ {
		b.level = signal.SymK
	} else {
		b.level = signal.SymJ
	}
}

func (b *Builder) emitSymbol(sym signal.Symbol) {
	s := sampleFor(sym, b.speed)
	for i := 0; i < b.oversample; i++ {
		b.samples = append(b.samples, s)
	}
}

func sampleFor(sym signal.Symbol, speed signal.Speed) signal.Sample {
	switch sym {
	case signal.SymSE0:
		return signal.Sample{DPlus: 0, DMinus: 0}
	case signal.SymSE1:
		return signal.Sample{DPlus: 1, DMinus: 1}
	case signal.SymJ:
		if speed == signal.SpeedLow {
			return signal.Sample{DPlus: 0, DMinus: 1}
		}
		return signal.Sample{DPlus: 1, DMinus: 0}
	default: // K
		if speed == signal.SpeedLow {
			return signal.Sample{DPlus: 1, DMinus: 0}
		}
		return signal.Sample{DPlus: 0, DMinus: 1}
	}
}

// pidBits expands a 4-bit PID into its eight wire bits, low nibble then
// complement, LSB-first.
func pidBits(pid packet.PID) []uint8 {
	v := uint8(pid) & 0x0F
	byteVal := v | (^v&0x0F)<<4
	bits := make([]uint8, 8)
	for i := range bits {
		bits[i] = (byteVal >> i) & 1
	}
	return bits
}
