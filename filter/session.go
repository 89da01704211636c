package filter

import (
	"github.com/rs/zerolog"

	"usbdec/crc"
	"usbdec/nrzi"
	"usbdec/packet"
	"usbdec/signal"
)

// Session is the decoder state that persists across queries of one
// continuous stream: the bit-timing tracker, the NRZI/destuffing unit
// and the framer with any partial frame. It is owned by a single filter
// loop and never accessed concurrently.
type Session struct {
	cfg Config
	log zerolog.Logger

	trk *signal.Tracker
	bit *nrzi.Unit
	frm *packet.Framer

	queries uint64
}

// NewSession creates a session with the given configuration.
func NewSession(cfg Config, log zerolog.Logger) *Session {
	if cfg.Oversample < 1 {
		cfg.Oversample = 1
	}
	s := &Session{cfg: cfg, log: log}
	s.build()
	return s
}

func (s *Session) build() {
	val := &crc.Validator{Poly5: s.cfg.Poly5, Poly16: s.cfg.Poly16}
	s.trk = signal.NewTracker(s.cfg.Speed, s.cfg.Oversample)
	s.bit = nrzi.NewUnit()
	s.frm = packet.NewFramer(val, s.bit)
}

// Reset discards all decode state. The host triggers this with an empty
// query line to restart decoding from a new trace position.
func (s *Session) Reset() {
	s.build()
	s.log.Debug().Uint64("query", s.queries).Msg("session reset")
}

// Process runs one query's samples through the pipeline and returns the
// units completed in this window and the annotation to attach if the
// window completed nothing. An annotation raised after the last unit of
// a window stays in the framer and attaches to whatever that stream
// position yields next.
func (s *Session) Process(samples []signal.Sample) (units []packet.DecodedUnit, note string) {
	s.queries++
	for _, sm := range samples {
		run, ok := s.trk.Feed(sm)
		if !ok {
			continue
		}
		units = append(units, s.feedRun(run)...)
	}

	if len(units) > 0 {
		return units, ""
	}
	return nil, s.frm.TakeNote()
}

// Flush closes any partial symbol run and drains what it yields. Called
// at end of input so a trailing annotation is not lost.
func (s *Session) Flush() (units []packet.DecodedUnit, note string) {
	if run, ok := s.trk.Flush(); ok {
		units = s.feedRun(run)
	}
	if len(units) > 0 {
		return units, ""
	}
	return nil, s.frm.TakeNote()
}

func (s *Session) feedRun(run signal.Run) []packet.DecodedUnit {
	var units []packet.DecodedUnit
	for _, ev := range s.bit.Feed(run) {
		if ev.Kind == nrzi.EvAnomaly {
			s.log.Debug().Uint64("query", s.queries).Str("anomaly", ev.Note).Msg("bus anomaly")
		}
		units = append(units, s.frm.Feed(ev)...)
	}
	return units
}
