// usb_wave_gen emits a synthetic capture: an IN token, a DATA0 payload
// and an ACK handshake, one window per line. Useful for exercising the
// filter and lister without a real trace.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"usbdec/internal/wavegen"
	"usbdec/packet"
	"usbdec/signal"
)

func main() {
	addr := flag.Uint("addr", 0x3A, "Device address for the IN token")
	ep := flag.Uint("ep", 2, "Endpoint for the IN token")
	payload := flag.String("payload", "01,02", "DATA0 payload bytes, comma-separated hex")
	oversample := flag.Int("oversample", 1, "Samples per bit period")
	speed := flag.String("speed", "full", "Bus speed: full or low")
	sof := flag.Uint("sof", 0, "Emit a leading SOF token with this frame number if non-zero")

	flag.Parse()

	var sp signal.Speed
	switch *speed {
	case "full":
		sp = signal.SpeedFull
	case "low":
		sp = signal.SpeedLow
	default:
		fmt.Printf("Error: unknown speed %q\n", *speed)
		os.Exit(1)
	}

	data, err := parsePayload(*payload)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	window := func(build func(b *wavegen.Builder)) string {
		b := wavegen.NewBuilder(sp, *oversample)
		b.Idle(4)
		build(b)
		return b.HexLine()
	}

	if *sof != 0 {
		fmt.Println(window(func(b *wavegen.Builder) { b.SOF(uint16(*sof)) }))
	}
	fmt.Println(window(func(b *wavegen.Builder) { b.Token(packet.PIDIn, uint8(*addr), uint8(*ep)) }))
	fmt.Println(window(func(b *wavegen.Builder) { b.Data(packet.PIDData0, data) }))
	fmt.Println(window(func(b *wavegen.Builder) { b.Handshake(packet.PIDAck) }))
}

func parsePayload(s string) ([]byte, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	data := make([]byte, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 16, 8)
		if err != nil {
			return nil, fmt.Errorf("payload byte %q: %w", p, err)
		}
		data = append(data, byte(v))
	}
	return data, nil
}
