// Package printer renders decoded units into the fixed one-line text
// layout the host displays:
//
//	<Kind> <PID-name> [fields...] [CRC:OK|FAIL] [(note)]
//
// A query that completes no unit gets the continuation marker instead.
package printer

import (
	"fmt"
	"strings"

	"usbdec/crc"
	"usbdec/packet"
)

// ContinuationMarker is the response for a query whose sample window did
// not complete a frame.
const ContinuationMarker = "..."

// FormatUnit renders one decoded unit as a single line fragment.
func FormatUnit(u packet.DecodedUnit) string {
	var sb strings.Builder

	if u.Frame.Kind == packet.KindMalformed {
		sb.WriteString("Malformed")
		if u.Frame.PIDValid {
			sb.WriteString(" " + u.Frame.PID.String())
		} else {
			sb.WriteString(" ?")
		}
		if u.Note != "" {
			fmt.Fprintf(&sb, " (%s)", u.Note)
		}
		return sb.String()
	}

	sb.WriteString(u.Frame.Kind.String())
	sb.WriteString(" " + u.Frame.PID.String())

	switch u.Frame.Kind {
	case packet.KindToken:
		if u.Frame.PID == packet.PIDSOF {
			fmt.Fprintf(&sb, " frame=0x%03X", u.Frame.FrameNumber)
		} else {
			fmt.Fprintf(&sb, " addr=0x%02X ep=%d", u.Frame.Addr, u.Frame.Endpoint)
		}
	case packet.KindData:
		fmt.Fprintf(&sb, " len=%d", len(u.Frame.Payload))
		if len(u.Frame.Payload) > 0 {
			sb.WriteString(" bytes=" + hexBytes(u.Frame.Payload))
		}
	case packet.KindSpecial:
		if len(u.Frame.RawBits) > 0 {
			fmt.Fprintf(&sb, " bits=%d", len(u.Frame.RawBits))
		}
	}

	if u.CRC != crc.NotApplicable {
		sb.WriteString(" CRC:" + u.CRC.String())
	}
	if u.Note != "" {
		fmt.Fprintf(&sb, " (%s)", u.Note)
	}
	return sb.String()
}

// FormatResponse renders the full response line for one query: every
// unit the query completed joined by "; ", or the continuation marker
// with any pending annotation.
func FormatResponse(units []packet.DecodedUnit, note string) string {
	if len(units) == 0 {
		if note != "" {
			return fmt.Sprintf("%s (%s)", ContinuationMarker, note)
		}
		return ContinuationMarker
	}
	parts := make([]string, len(units))
	for i, u := range units {
		parts[i] = FormatUnit(u)
	}
	return strings.Join(parts, "; ")
}

func hexBytes(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ",")
}
