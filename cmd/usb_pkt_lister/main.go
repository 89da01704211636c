// usb_pkt_lister decodes a capture file of sample windows and lists
// every packet. Session settings come from flags or a TOML config file;
// unlike the filter process there is no config line in the capture.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"usbdec/filter"
	"usbdec/internal/lister"
	"usbdec/signal"
)

func main() {
	capture := flag.String("capture", "", "Path to the capture file (one hex sample window per line)")
	configPath := flag.String("config", "", "Optional TOML config file for session settings")
	speed := flag.String("speed", "", "Bus speed: full or low (overrides config file)")
	oversample := flag.Int("oversample", 0, "Samples per bit period (overrides config file)")
	verbose := flag.Bool("v", false, "Log decode diagnostics to stderr")

	flag.Parse()

	if *capture == "" {
		fmt.Println("USB Packet Lister : Error: Missing file string on -capture option")
		os.Exit(1)
	}

	sessCfg := filter.DefaultConfig()
	if *configPath != "" {
		var err error
		sessCfg, err = loadConfig(*configPath)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}
	switch *speed {
	case "":
	case "full":
		sessCfg.Speed = signal.SpeedFull
	case "low":
		sessCfg.Speed = signal.SpeedLow
	default:
		fmt.Printf("Error: unknown speed %q\n", *speed)
		os.Exit(1)
	}
	if *oversample > 0 {
		sessCfg.Oversample = *oversample
	}

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).Level(level).With().Timestamp().Str("app", "usb_pkt_lister").Logger()

	cfg := lister.Config{
		CapturePath:  *capture,
		Session:      sessCfg,
		OutputWriter: os.Stdout,
		Log:          log,
	}

	if err := lister.Run(cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
