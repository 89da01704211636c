// usbfilter is the translate-filter process a waveform viewer spawns:
// queries on stdin, one decoded line per query on stdout. Diagnostics go
// to stderr so the response stream stays clean.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	"usbdec/filter"
)

func main() {
	verbose := flag.Bool("v", false, "Log decode diagnostics to stderr")
	flag.Parse()

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).Level(level).With().Timestamp().Str("app", "usbfilter").Logger()

	if err := filter.Run(os.Stdin, os.Stdout, log); err != nil {
		log.Error().Err(err).Msg("filter loop failed")
		os.Exit(1)
	}
}
