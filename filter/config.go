package filter

import (
	"fmt"
	"strconv"
	"strings"

	"usbdec/crc"
	"usbdec/signal"
)

// Config is the session configuration. Per the wire protocol it arrives
// as the first input line rather than as process arguments.
type Config struct {
	Speed      signal.Speed
	Oversample int // samples per bit-time slot
	Poly5      uint8
	Poly16     uint16
}

// DefaultConfig returns the configuration used before any config line is
// seen: full speed, one sample per bit, standard USB polynomials.
func DefaultConfig() Config {
	return Config{
		Speed:      signal.SpeedFull,
		Oversample: 1,
		Poly5:      crc.DefaultPoly5,
		Poly16:     crc.DefaultPoly16,
	}
}

// ParseConfig parses a session-start config line of whitespace-separated
// key=value tokens. Keys: speed (full|low), oversample (>=1), crc5poly,
// crc16poly (hex, reflected form). An empty line yields the defaults.
func ParseConfig(line string) (Config, error) {
	cfg := DefaultConfig()
	for _, tok := range strings.Fields(line) {
		key, val, ok := strings.Cut(tok, "=")
		if !ok {
			return cfg, fmt.Errorf("config token %q: want key=value", tok)
		}
		switch key {
		case "speed":
			switch val {
			case "full":
				cfg.Speed = signal.SpeedFull
			case "low":
				cfg.Speed = signal.SpeedLow
			default:
				return cfg, fmt.Errorf("config speed %q: want full or low", val)
			}
		case "oversample":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return cfg, fmt.Errorf("config oversample %q: want integer >= 1", val)
			}
			cfg.Oversample = n
		case "crc5poly":
			n, err := strconv.ParseUint(strings.TrimPrefix(val, "0x"), 16, 5)
			if err != nil {
				return cfg, fmt.Errorf("config crc5poly %q: want 5-bit hex", val)
			}
			cfg.Poly5 = uint8(n)
		case "crc16poly":
			n, err := strconv.ParseUint(strings.TrimPrefix(val, "0x"), 16, 16)
			if err != nil {
				return cfg, fmt.Errorf("config crc16poly %q: want 16-bit hex", val)
			}
			cfg.Poly16 = uint16(n)
		default:
			return cfg, fmt.Errorf("config key %q unknown", key)
		}
	}
	return cfg, nil
}

// ParseSamples decodes a query line: contiguous fixed-width hex, two
// digits per sample, bit 0 = D+, bit 1 = D-, oldest first.
func ParseSamples(line string) ([]signal.Sample, error) {
	if len(line)%2 != 0 {
		return nil, fmt.Errorf("query length %d: want an even number of hex digits", len(line))
	}
	samples := make([]signal.Sample, 0, len(line)/2)
	for i := 0; i < len(line); i += 2 {
		hi, ok1 := hexVal(line[i])
		lo, ok2 := hexVal(line[i+1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("query byte %d: %q is not hex", i/2, line[i:i+2])
		}
		v := hi<<4 | lo
		if v > 0x03 {
			// Levels beyond the two line bits mark a glitched sample;
			// it decodes to an undefined symbol, not a query error.
			samples = append(samples, signal.Sample{DPlus: 0xFF, DMinus: 0xFF})
			continue
		}
		samples = append(samples, signal.Sample{DPlus: v & 0x01, DMinus: (v >> 1) & 0x01})
	}
	return samples, nil
}

func hexVal(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
