// Package lister batch-decodes a capture file: one hex sample window
// per line, decoded through a single carried session, one annotated
// output line per window.
package lister

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"usbdec/filter"
	"usbdec/printer"
)

// Config controls a lister run.
type Config struct {
	CapturePath  string
	Session      filter.Config
	OutputWriter io.Writer
	Log          zerolog.Logger
}

// Run decodes the capture file line by line. Blank lines reset the
// session the same way an empty query does on the wire.
func Run(cfg Config) error {
	f, err := os.Open(cfg.CapturePath)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	w := cfg.OutputWriter
	if w == nil {
		w = os.Stdout
	}
	sess := filter.NewSession(cfg.Session, cfg.Log)
	out := bufio.NewWriter(w)
	defer out.Flush()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()

		if line == "" {
			sess.Reset()
			fmt.Fprintf(out, "Idx:%d; %s\n", lineNo, printer.ContinuationMarker)
			continue
		}

		samples, err := filter.ParseSamples(line)
		if err != nil {
			fmt.Fprintf(out, "Idx:%d; !ERROR %v\n", lineNo, err)
			continue
		}

		units, note := sess.Process(samples)
		fmt.Fprintf(out, "Idx:%d; %s\n", lineNo, printer.FormatResponse(units, note))
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read capture: %w", err)
	}

	if units, note := sess.Flush(); len(units) > 0 || note != "" {
		fmt.Fprintf(out, "Idx:%d; %s\n", lineNo+1, printer.FormatResponse(units, note))
	}
	return nil
}
