// Package filter implements the process-level translate-filter protocol:
// one query line in, one response line out, decoder state carried across
// queries in a single Session. The first input line configures the
// session; an empty query line resets it; end-of-file ends the run.
package filter

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"usbdec/printer"
)

// maxQueryBytes bounds one query line. Sample windows from a viewer can
// be large but are never unbounded; anything longer is drained and
// answered with a diagnostic rather than buffered.
const maxQueryBytes = 4 << 20

// Run drives the filter loop until r is exhausted. Every input line
// produces exactly one output line, flushed immediately; a malformed or
// oversized query yields an "!ERROR" diagnostic and the session
// continues. The only way to stop the loop is closing r.
func Run(r io.Reader, w io.Writer, log zerolog.Logger) error {
	in := bufio.NewReaderSize(r, 64*1024)
	out := bufio.NewWriter(w)

	sess := NewSession(DefaultConfig(), log)
	configured := false
	queries := 0

	for {
		line, tooLong, err := readLine(in)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read query: %w", err)
		}

		if !configured {
			configured = true
			if tooLong {
				if werr := respond(out, "!ERROR config line too long"); werr != nil {
					return werr
				}
				continue
			}
			cfg, err := ParseConfig(line)
			if err != nil {
				if werr := respond(out, fmt.Sprintf("!ERROR %v", err)); werr != nil {
					return werr
				}
				continue
			}
			sess = NewSession(cfg, log)
			resp := fmt.Sprintf("ok speed=%s oversample=%d", cfg.Speed, cfg.Oversample)
			if err := respond(out, resp); err != nil {
				return err
			}
			continue
		}

		if tooLong {
			// The window's samples are gone, so any partial frame is
			// stale. Drop it and resynchronise from the next window.
			queries++
			sess.Reset()
			if werr := respond(out, fmt.Sprintf("!ERROR query %d: line too long", queries)); werr != nil {
				return werr
			}
			continue
		}

		if line == "" {
			sess.Reset()
			if err := respond(out, printer.ContinuationMarker); err != nil {
				return err
			}
			continue
		}

		queries++
		samples, err := ParseSamples(line)
		if err != nil {
			if werr := respond(out, fmt.Sprintf("!ERROR query %d: %v", queries, err)); werr != nil {
				return werr
			}
			continue
		}

		units, note := sess.Process(samples)
		if err := respond(out, printer.FormatResponse(units, note)); err != nil {
			return err
		}
	}

	// End of input: drain the pipeline so a pending annotation or a
	// packet completed by the final samples is not swallowed.
	units, note := sess.Flush()
	if len(units) > 0 || note != "" {
		if err := respond(out, printer.FormatResponse(units, note)); err != nil {
			return err
		}
	}
	return out.Flush()
}

// readLine reads one input line without its line ending. A line longer
// than maxQueryBytes is drained to its newline and reported as too long;
// the reader never buffers more than maxQueryBytes of it.
func readLine(r *bufio.Reader) (line string, tooLong bool, err error) {
	var sb strings.Builder
	for {
		chunk, rerr := r.ReadSlice('\n')
		if !tooLong && len(chunk) > 0 {
			sb.Write(chunk)
			if sb.Len() > maxQueryBytes {
				tooLong = true
				sb.Reset()
			}
		}
		switch rerr {
		case bufio.ErrBufferFull:
			continue
		case nil:
			return trimEOL(sb.String()), tooLong, nil
		case io.EOF:
			if sb.Len() == 0 && !tooLong {
				return "", false, io.EOF
			}
			return trimEOL(sb.String()), tooLong, nil
		default:
			return "", tooLong, rerr
		}
	}
}

func trimEOL(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

func respond(out *bufio.Writer, line string) error {
	if _, err := out.WriteString(line + "\n"); err != nil {
		return err
	}
	return out.Flush()
}
