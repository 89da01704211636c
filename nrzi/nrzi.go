// Package nrzi converts bus symbol runs into a logical bit stream.
// NRZI rule: a line transition between bit intervals encodes 0, no
// transition encodes 1. Inside a packet the stream is additionally
// destuffed: after six consecutive 1s the transmitter inserts a 0 which
// must be discarded on decode.
package nrzi

import "usbdec/signal"

// EventKind discriminates decoded bit events.
type EventKind int

const (
	EvBit          EventKind = iota // logical bit, see Event.Bit
	EvEOP                           // SE0 held for at least two bit intervals
	EvStuffRemoved                  // stuffed 0 discarded after six 1s
	EvStuffError                    // stuffing bit was a 1: protocol violation
	EvAnomaly                       // physical anomaly, see Event.Note
)

// Event is one decoded bit or control marker.
type Event struct {
	Kind EventKind
	Bit  uint8
	Note string
}

// maxOnes is the longest legal run of 1s before a stuffed 0.
const maxOnes = 6

// Unit decodes symbol runs into Events. Destuffing applies only between
// StartPacket and EndPacket; outside a packet the bus idles at J which
// decodes to a stream of 1s, and those must not trip the stuffing check.
type Unit struct {
	prev     signal.Symbol // last data-carrying level, SymUndef if none
	inPacket bool
	onesRun  int
}

// NewUnit creates a Unit in the idle, out-of-packet state.
func NewUnit() *Unit {
	return &Unit{prev: signal.SymUndef}
}

// Reset returns the Unit to the idle state.
func (u *Unit) Reset() {
	u.prev = signal.SymUndef
	u.inPacket = false
	u.onesRun = 0
}

// StartPacket arms destuffing. The SYNC pattern ends in a 1 which counts
// toward the first run of ones, so the counter starts at one.
func (u *Unit) StartPacket() {
	u.inPacket = true
	u.onesRun = 1
}

// EndPacket disarms destuffing.
func (u *Unit) EndPacket() {
	u.inPacket = false
	u.onesRun = 0
}

// Feed decodes one closed symbol run into zero or more Events.
func (u *Unit) Feed(r signal.Run) []Event {
	var evs []Event
	if r.Anomaly {
		evs = append(evs, Event{Kind: EvAnomaly, Note: "timing anomaly"})
	}

	switch r.Sym {
	case signal.SymJ, signal.SymK:
		for i := 0; i < r.Bits; i++ {
			bit := uint8(1)
			if i == 0 && u.prev != signal.SymUndef && u.prev != r.Sym {
				bit = 0
			}
			evs = u.emitBit(evs, bit)
		}
		u.prev = r.Sym

	case signal.SymSE0:
		if r.Bits >= 2 {
			evs = append(evs, Event{Kind: EvEOP})
			u.inPacket = false
			u.onesRun = 0
		} else {
			evs = append(evs, Event{Kind: EvAnomaly, Note: "short SE0 pulse"})
		}
		u.prev = signal.SymUndef

	case signal.SymSE1:
		evs = append(evs, Event{Kind: EvAnomaly, Note: "SE1 bus state"})
		u.prev = signal.SymUndef

	default:
		evs = append(evs, Event{Kind: EvAnomaly, Note: "undefined bus state"})
		u.prev = signal.SymUndef
	}
	return evs
}

func (u *Unit) emitBit(evs []Event, bit uint8) []Event {
	if u.inPacket && u.onesRun == maxOnes {
		u.onesRun = 0
		if bit == 0 {
			return append(evs, Event{Kind: EvStuffRemoved})
		}
		// Violation: disarm so a corrupt stretch cannot cascade errors
		// before the framer resynchronises.
		u.inPacket = false
		return append(evs, Event{Kind: EvStuffError})
	}
	if bit == 1 {
		u.onesRun++
	} else {
		u.onesRun = 0
	}
	return append(evs, Event{Kind: EvBit, Bit: bit})
}
