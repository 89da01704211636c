package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"usbdec/filter"
	"usbdec/signal"
)

// usb_pkt_lister config.toml key mapping to session settings.
type fileConfig struct {
	Speed      string `toml:"speed"`
	Oversample int    `toml:"oversample"`
	CRC5Poly   string `toml:"crc5_poly"`
	CRC16Poly  string `toml:"crc16_poly"`
}

func loadConfig(path string) (filter.Config, error) {
	cfg := filter.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return filter.Config{}, fmt.Errorf("load lister config: %w", err)
	}

	if meta.IsDefined("speed") {
		switch strings.TrimSpace(raw.Speed) {
		case "full":
			cfg.Speed = signal.SpeedFull
		case "low":
			cfg.Speed = signal.SpeedLow
		default:
			return filter.Config{}, fmt.Errorf("speed %q: want full or low", raw.Speed)
		}
	}

	if meta.IsDefined("oversample") {
		if raw.Oversample < 1 {
			return filter.Config{}, fmt.Errorf("oversample %d: want >= 1", raw.Oversample)
		}
		cfg.Oversample = raw.Oversample
	}

	if meta.IsDefined("crc5_poly") {
		n, err := parsePoly(raw.CRC5Poly, 5)
		if err != nil {
			return filter.Config{}, fmt.Errorf("crc5_poly: %w", err)
		}
		cfg.Poly5 = uint8(n)
	}

	if meta.IsDefined("crc16_poly") {
		n, err := parsePoly(raw.CRC16Poly, 16)
		if err != nil {
			return filter.Config{}, fmt.Errorf("crc16_poly: %w", err)
		}
		cfg.Poly16 = uint16(n)
	}

	return cfg, nil
}

func parsePoly(s string, bits int) (uint64, error) {
	v := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	n, err := strconv.ParseUint(v, 16, bits)
	if err != nil {
		return 0, fmt.Errorf("%q: want %d-bit hex", s, bits)
	}
	return n, nil
}
