// Package signal converts raw differential line samples into USB bus
// symbols and recovers bit timing from the spacing of line transitions.
package signal

// Speed selects the bus signalling mode. Full and low speed use opposite
// differential polarity for the J state.
type Speed int

const (
	SpeedFull Speed = iota
	SpeedLow
)

func (s Speed) String() string {
	if s == SpeedLow {
		return "low"
	}
	return "full"
}

// Sample is one (D+, D-) observation supplied by the host. Values are
// logic levels, 0 or 1.
type Sample struct {
	DPlus  uint8
	DMinus uint8
}

// Symbol is the bus state derived from one sample pair.
type Symbol int

const (
	SymUndef Symbol = iota // invalid or glitched sample
	SymJ
	SymK
	SymSE0
	SymSE1
)

func (s Symbol) String() string {
	switch s {
	case SymJ:
		return "J"
	case SymK:
		return "K"
	case SymSE0:
		return "SE0"
	case SymSE1:
		return "SE1"
	default:
		return "UNDEF"
	}
}

// Decode maps a sample pair to a bus symbol for the given speed.
// Both-high is the invalid SE1 state; the caller reports it as a bus
// condition and keeps decoding. Out-of-range levels decode to SymUndef.
func Decode(s Sample, speed Speed) Symbol {
	if s.DPlus > 1 || s.DMinus > 1 {
		return SymUndef
	}
	switch {
	case s.DPlus == 0 && s.DMinus == 0:
		return SymSE0
	case s.DPlus == 1 && s.DMinus == 1:
		return SymSE1
	case s.DPlus == 1:
		if speed == SpeedLow {
			return SymK
		}
		return SymJ
	default:
		if speed == SpeedLow {
			return SymJ
		}
		return SymK
	}
}

// Run is a maximal run of identical symbols, closed by the arrival of a
// different symbol. Bits is the run length in bit periods under the
// current timing estimate. Anomaly is set when the run length deviates
// from a whole number of bit periods by more than the tolerance.
type Run struct {
	Sym     Symbol
	Samples int
	Bits    int
	Anomaly bool
}

// timing tolerance as a fraction of one bit period
const runTolerance = 0.25

// Tracker accumulates samples into symbol runs and maintains the running
// bit-period estimate. The pending run is bounded state: it never grows
// past what one run needs, so a Tracker holds no trace history.
type Tracker struct {
	speed Speed

	period  float64 // estimated samples per bit
	nominal float64 // configured samples per bit

	cur    Symbol
	curLen int
	primed bool
}

// NewTracker creates a Tracker. samplesPerBit is the host's nominal
// oversampling factor; it seeds the bit-period hypothesis and is the
// floor the estimate snaps back to on reset.
func NewTracker(speed Speed, samplesPerBit int) *Tracker {
	if samplesPerBit < 1 {
		samplesPerBit = 1
	}
	t := &Tracker{speed: speed, nominal: float64(samplesPerBit)}
	t.Reset()
	return t
}

// Reset discards the pending run and the adapted bit-period estimate.
func (t *Tracker) Reset() {
	t.period = t.nominal
	t.cur = SymUndef
	t.curLen = 0
	t.primed = false
}

// Period returns the current bit-period estimate in samples.
func (t *Tracker) Period() float64 { return t.period }

// Feed consumes one sample. When the sample closes the pending run the
// closed run is returned, otherwise ok is false.
func (t *Tracker) Feed(s Sample) (run Run, ok bool) {
	sym := Decode(s, t.speed)
	if !t.primed {
		t.cur = sym
		t.curLen = 1
		t.primed = true
		return Run{}, false
	}
	if sym == t.cur {
		t.curLen++
		return Run{}, false
	}
	run = t.closeRun()
	t.cur = sym
	t.curLen = 1
	return run, true
}

// Flush closes and returns any pending run. Used at end of session so a
// trailing run is not lost.
func (t *Tracker) Flush() (run Run, ok bool) {
	if !t.primed || t.curLen == 0 {
		return Run{}, false
	}
	run = t.closeRun()
	t.primed = false
	t.curLen = 0
	return run, true
}

func (t *Tracker) closeRun() Run {
	r := Run{Sym: t.cur, Samples: t.curLen}
	n := int(float64(t.curLen)/t.period + 0.5)
	if n < 1 {
		n = 1
	}
	r.Bits = n
	drift := float64(t.curLen) - float64(n)*t.period
	if drift < 0 {
		drift = -drift
	}
	if drift > runTolerance*t.period {
		r.Anomaly = true
	}
	// EWMA update of the period from the per-bit edge spacing. Undefined
	// and SE1 runs carry no timing information.
	if t.cur == SymJ || t.cur == SymK {
		t.period += (float64(t.curLen)/float64(n) - t.period) / 8
	}
	return r
}
