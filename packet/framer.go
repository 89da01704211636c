// Package packet frames the decoded bit stream into USB packets: SYNC
// detection, PID identification and per-kind field layout, with
// resynchronisation after any malformed stretch.
package packet

import (
	"usbdec/crc"
	"usbdec/nrzi"
)

type state int

const (
	stateSyncSeek state = iota
	statePID
	stateFields
	stateEOPWait
)

// syncZeros is the number of leading 0 bits required before the closing
// 1 of the SYNC pattern (KJKJKJKK). The nominal pattern carries seven; a
// capture window opening mid-SYNC may clip the first, so six suffice.
const syncZeros = 6

// eopBudgetBits is how many bits past the end of the fields the framer
// waits for EOP before declaring the packet malformed.
const eopBudgetBits = 16

// maxDataBits bounds payload accumulation: 1023 data bytes plus CRC16 is
// the largest legal packet, anything longer has lost its EOP.
const maxDataBits = (1023 + 2) * 8

// LineController is the hook the framer uses to arm and disarm
// destuffing in the bit-level unit around each packet.
type LineController interface {
	StartPacket()
	EndPacket()
}

// Framer is the packet framing state machine. It consumes bit events and
// produces decoded units. All state needed to resume a partial SYNC
// match or partial frame across input windows lives here.
type Framer struct {
	val  *crc.Validator
	line LineController // may be nil

	st        state
	zeroRun   int
	pidBits   int
	pidByte   uint8
	fieldBits []uint8
	eopWait   int
	frame     Frame
	note      string // pending anomaly annotation
}

// NewFramer creates a framer using the given checksum validator. line
// may be nil when the caller feeds a pre-destuffed stream.
func NewFramer(val *crc.Validator, line LineController) *Framer {
	return &Framer{val: val, line: line, st: stateSyncSeek}
}

// Reset discards all framing state and returns to SYNC seeking.
func (f *Framer) Reset() {
	if f.line != nil {
		f.line.EndPacket()
	}
	f.st = stateSyncSeek
	f.zeroRun = 0
	f.pidBits = 0
	f.pidByte = 0
	f.fieldBits = f.fieldBits[:0]
	f.eopWait = 0
	f.frame = Frame{}
	f.note = ""
}

// TakeNote returns and clears any pending anomaly annotation that was
// not attached to an emitted unit.
func (f *Framer) TakeNote() string {
	n := f.note
	f.note = ""
	return n
}

// Accumulating reports whether a partial frame is in progress.
func (f *Framer) Accumulating() bool {
	return f.st != stateSyncSeek || f.zeroRun > 0
}

// Feed consumes one bit event and returns any units it completed.
func (f *Framer) Feed(ev nrzi.Event) []DecodedUnit {
	switch ev.Kind {
	case nrzi.EvAnomaly:
		// Physical anomaly: annotate and keep decoding.
		f.note = ev.Note
		return nil
	case nrzi.EvStuffRemoved:
		return nil
	case nrzi.EvStuffError:
		if f.st == stateSyncSeek {
			return nil
		}
		return f.emitMalformed("bit-stuff error")
	case nrzi.EvEOP:
		return f.feedEOP()
	default:
		return f.feedBit(ev.Bit)
	}
}

func (f *Framer) feedEOP() []DecodedUnit {
	switch f.st {
	case stateSyncSeek:
		f.zeroRun = 0
		return nil
	case statePID:
		return f.emitMalformed("unexpected EOP")
	case stateFields:
		switch f.frame.Kind {
		case KindData:
			return f.finishData()
		case KindSpecial:
			f.frame.RawBits = append([]uint8(nil), f.fieldBits...)
			return f.emitComplete(crc.NotApplicable)
		default:
			return f.emitMalformed("short packet")
		}
	case stateEOPWait:
		if f.frame.Kind == KindToken {
			return f.emitComplete(f.tokenOutcome())
		}
		return f.emitComplete(crc.NotApplicable)
	}
	return nil
}

func (f *Framer) feedBit(bit uint8) []DecodedUnit {
	switch f.st {
	case stateSyncSeek:
		if bit == 0 {
			if f.zeroRun < syncZeros+1 {
				f.zeroRun++
			}
			return nil
		}
		if f.zeroRun >= syncZeros {
			// SYNC matched; destuffing applies from the next bit.
			f.zeroRun = 0
			f.st = statePID
			f.pidBits = 0
			f.pidByte = 0
			if f.line != nil {
				f.line.StartPacket()
			}
			return nil
		}
		f.zeroRun = 0
		return nil

	case statePID:
		f.pidByte |= bit << f.pidBits
		f.pidBits++
		if f.pidBits < 8 {
			return nil
		}
		low := f.pidByte & 0x0F
		high := f.pidByte >> 4
		if high != ^low&0x0F {
			return f.emitMalformed("PID check failed")
		}
		f.frame.PID = PID(low)
		f.frame.PIDValid = true
		f.frame.Kind = f.frame.PID.KindOf()
		switch f.frame.Kind {
		case KindHandshake:
			f.st = stateEOPWait
			f.eopWait = 0
		default:
			f.st = stateFields
			f.fieldBits = f.fieldBits[:0]
		}
		return nil

	case stateFields:
		f.fieldBits = append(f.fieldBits, bit)
		switch f.frame.Kind {
		case KindToken:
			if len(f.fieldBits) == 16 {
				f.decodeTokenFields()
				f.st = stateEOPWait
				f.eopWait = 0
			}
		default: // Data and Special are bounded by EOP
			if len(f.fieldBits) > maxDataBits {
				return f.emitMalformed("missing EOP")
			}
		}
		return nil

	case stateEOPWait:
		f.eopWait++
		if f.eopWait > eopBudgetBits {
			return f.emitMalformed("missing EOP")
		}
		return nil
	}
	return nil
}

// decodeTokenFields splits the 16 field bits into the 11-bit value and
// the 5 transmitted CRC bits, all wire (LSB-first) order.
func (f *Framer) decodeTokenFields() {
	var v uint16
	for i := 0; i < 11; i++ {
		v |= uint16(f.fieldBits[i]) << i
	}
	var c uint16
	for i := 0; i < 5; i++ {
		c |= uint16(f.fieldBits[11+i]) << i
	}
	f.frame.CRCField = c
	if f.frame.PID == PIDSOF {
		f.frame.FrameNumber = v
	} else {
		f.frame.Addr = uint8(v & 0x7F)
		f.frame.Endpoint = uint8(v >> 7)
	}
}

func (f *Framer) tokenOutcome() crc.Outcome {
	return f.val.CheckCRC5(f.fieldBits[:11], uint8(f.frame.CRCField))
}

// finishData converts the accumulated bits to bytes, peels off the
// trailing CRC16 and checks it. The payload length is whatever the host
// observed up to EOP.
func (f *Framer) finishData() []DecodedUnit {
	n := len(f.fieldBits)
	if n < 16 || n%8 != 0 {
		return f.emitMalformed("short packet")
	}
	raw := make([]byte, n/8)
	for i, b := range f.fieldBits {
		raw[i/8] |= b << (i % 8)
	}
	f.frame.Payload = raw[:len(raw)-2]
	f.frame.CRCField = uint16(raw[len(raw)-2]) | uint16(raw[len(raw)-1])<<8
	return f.emitComplete(f.val.CheckCRC16(f.frame.Payload, f.frame.CRCField))
}

func (f *Framer) emitComplete(out crc.Outcome) []DecodedUnit {
	f.frame.Status = StatusComplete
	u := DecodedUnit{Frame: f.frame, CRC: out, Note: f.note}
	f.resetAfterEmit()
	return []DecodedUnit{u}
}

func (f *Framer) emitMalformed(note string) []DecodedUnit {
	f.frame.Status = StatusMalformed
	f.frame.Kind = KindMalformed
	u := DecodedUnit{Frame: f.frame, CRC: crc.NotApplicable, Note: note}
	f.resetAfterEmit()
	return []DecodedUnit{u}
}

func (f *Framer) resetAfterEmit() {
	if f.line != nil {
		f.line.EndPacket()
	}
	f.st = stateSyncSeek
	f.zeroRun = 0
	f.pidBits = 0
	f.pidByte = 0
	f.fieldBits = f.fieldBits[:0]
	f.eopWait = 0
	f.frame = Frame{}
	f.note = ""
}
