package packet

import (
	"testing"

	"usbdec/crc"
	"usbdec/nrzi"
)

func bitsLSB(v uint16, n int) []uint8 {
	bits := make([]uint8, n)
	for i := 0; i < n; i++ {
		bits[i] = uint8(v>>i) & 1
	}
	return bits
}

func pidWire(p PID) []uint8 {
	v := uint16(p) & 0x0F
	return bitsLSB(v|(^v&0x0F)<<4, 8)
}

var syncBits = []uint8{0, 0, 0, 0, 0, 0, 0, 1}

func feedBits(f *Framer, bits []uint8) []DecodedUnit {
	var units []DecodedUnit
	for _, b := range bits {
		units = append(units, f.Feed(nrzi.Event{Kind: nrzi.EvBit, Bit: b})...)
	}
	return units
}

func feedEOP(f *Framer) []DecodedUnit {
	return f.Feed(nrzi.Event{Kind: nrzi.EvEOP})
}

func tokenBits(val *crc.Validator, p PID, field uint16) []uint8 {
	bits := append(append([]uint8{}, syncBits...), pidWire(p)...)
	fieldBits := bitsLSB(field, 11)
	bits = append(bits, fieldBits...)
	c := val.CRC5(fieldBits)
	return append(bits, bitsLSB(uint16(c), 5)...)
}

func TestFramerToken(t *testing.T) {
	val := crc.NewValidator()
	f := NewFramer(val, nil)

	field := uint16(0x3A) | 2<<7
	units := feedBits(f, tokenBits(val, PIDIn, field))
	if len(units) != 0 {
		t.Fatalf("units before EOP: %+v", units)
	}
	units = feedEOP(f)
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	u := units[0]
	if u.Frame.Kind != KindToken || u.Frame.PID != PIDIn {
		t.Errorf("frame = %v %v, want Token IN", u.Frame.Kind, u.Frame.PID)
	}
	if u.Frame.Status != StatusComplete {
		t.Errorf("status = %v, want Complete", u.Frame.Status)
	}
	if u.Frame.Addr != 0x3A || u.Frame.Endpoint != 2 {
		t.Errorf("addr=0x%02X ep=%d, want 0x3A/2", u.Frame.Addr, u.Frame.Endpoint)
	}
	if u.CRC != crc.Valid {
		t.Errorf("CRC outcome = %v, want Valid", u.CRC)
	}
}

func TestFramerSOF(t *testing.T) {
	val := crc.NewValidator()
	f := NewFramer(val, nil)

	feedBits(f, tokenBits(val, PIDSOF, 0x2C5))
	units := feedEOP(f)
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	if units[0].Frame.FrameNumber != 0x2C5 {
		t.Errorf("frame number = 0x%03X, want 0x2C5", units[0].Frame.FrameNumber)
	}
	if units[0].CRC != crc.Valid {
		t.Errorf("CRC outcome = %v, want Valid", units[0].CRC)
	}
}

func TestFramerData(t *testing.T) {
	val := crc.NewValidator()
	f := NewFramer(val, nil)

	payload := []byte{0x01, 0x02}
	bits := append(append([]uint8{}, syncBits...), pidWire(PIDData0)...)
	for _, by := range payload {
		bits = append(bits, bitsLSB(uint16(by), 8)...)
	}
	bits = append(bits, bitsLSB(val.CRC16(payload), 16)...)

	feedBits(f, bits)
	units := feedEOP(f)
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	u := units[0]
	if u.Frame.Kind != KindData || u.Frame.PID != PIDData0 {
		t.Errorf("frame = %v %v, want Data DATA0", u.Frame.Kind, u.Frame.PID)
	}
	if len(u.Frame.Payload) != 2 || u.Frame.Payload[0] != 0x01 || u.Frame.Payload[1] != 0x02 {
		t.Errorf("payload = %v, want [01 02]", u.Frame.Payload)
	}
	if u.CRC != crc.Valid {
		t.Errorf("CRC outcome = %v, want Valid", u.CRC)
	}
}

func TestFramerDataBadCRC(t *testing.T) {
	val := crc.NewValidator()
	f := NewFramer(val, nil)

	payload := []byte{0x01, 0x06} // one bit off from the checksummed payload
	bits := append(append([]uint8{}, syncBits...), pidWire(PIDData0)...)
	for _, by := range payload {
		bits = append(bits, bitsLSB(uint16(by), 8)...)
	}
	bits = append(bits, bitsLSB(val.CRC16([]byte{0x01, 0x02}), 16)...)

	feedBits(f, bits)
	units := feedEOP(f)
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	u := units[0]
	if u.Frame.Status != StatusComplete {
		t.Errorf("status = %v, want Complete: CRC failure still delivers fields", u.Frame.Status)
	}
	if u.CRC != crc.Invalid {
		t.Errorf("CRC outcome = %v, want Invalid", u.CRC)
	}
	if len(u.Frame.Payload) != 2 {
		t.Errorf("payload = %v, want 2 bytes delivered", u.Frame.Payload)
	}
}

func TestFramerHandshake(t *testing.T) {
	f := NewFramer(crc.NewValidator(), nil)
	feedBits(f, append(append([]uint8{}, syncBits...), pidWire(PIDAck)...))
	units := feedEOP(f)
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	u := units[0]
	if u.Frame.Kind != KindHandshake || u.Frame.PID != PIDAck {
		t.Errorf("frame = %v %v, want Handshake ACK", u.Frame.Kind, u.Frame.PID)
	}
	if u.CRC != crc.NotApplicable {
		t.Errorf("CRC outcome = %v, want NotApplicable", u.CRC)
	}
}

func TestFramerPIDComplementMismatch(t *testing.T) {
	f := NewFramer(crc.NewValidator(), nil)
	bad := bitsLSB(0x09|0x09<<4, 8) // high nibble not the complement
	units := feedBits(f, append(append([]uint8{}, syncBits...), bad...))
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	u := units[0]
	if u.Frame.Kind != KindMalformed || u.Note != "PID check failed" {
		t.Errorf("unit = %v %q, want Malformed with PID check note", u.Frame.Kind, u.Note)
	}
	if u.Frame.PIDValid {
		t.Error("PID marked valid on complement mismatch")
	}
}

func TestFramerUnknownPIDBecomesSpecial(t *testing.T) {
	f := NewFramer(crc.NewValidator(), nil)
	// PING carries a valid complement but no field decode here.
	feedBits(f, append(append([]uint8{}, syncBits...), pidWire(PIDPing)...))
	units := feedEOP(f)
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	u := units[0]
	if u.Frame.Kind != KindSpecial || u.Frame.PID != PIDPing {
		t.Errorf("frame = %v %v, want Special PING", u.Frame.Kind, u.Frame.PID)
	}
	if u.Frame.Status != StatusComplete {
		t.Errorf("status = %v, want Complete", u.Frame.Status)
	}
}

func TestFramerMissingEOP(t *testing.T) {
	f := NewFramer(crc.NewValidator(), nil)
	bits := append(append([]uint8{}, syncBits...), pidWire(PIDAck)...)
	// A handshake should see EOP at once; a long stretch of bits
	// instead exhausts the wait budget.
	for i := 0; i < 20; i++ {
		bits = append(bits, uint8(i)&1)
	}
	units := feedBits(f, bits)
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	if units[0].Frame.Kind != KindMalformed || units[0].Note != "missing EOP" {
		t.Errorf("unit = %v %q, want Malformed (missing EOP)", units[0].Frame.Kind, units[0].Note)
	}
}

func TestFramerUnexpectedEOPInPID(t *testing.T) {
	f := NewFramer(crc.NewValidator(), nil)
	bits := append(append([]uint8{}, syncBits...), 1, 0, 0)
	feedBits(f, bits)
	units := feedEOP(f)
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	if units[0].Frame.Kind != KindMalformed || units[0].Note != "unexpected EOP" {
		t.Errorf("unit = %v %q, want Malformed (unexpected EOP)", units[0].Frame.Kind, units[0].Note)
	}
}

func TestFramerShortTokenAtEOP(t *testing.T) {
	val := crc.NewValidator()
	f := NewFramer(val, nil)
	bits := append(append([]uint8{}, syncBits...), pidWire(PIDIn)...)
	bits = append(bits, 1, 0, 1) // truncated field
	feedBits(f, bits)
	units := feedEOP(f)
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	if units[0].Frame.Kind != KindMalformed || units[0].Note != "short packet" {
		t.Errorf("unit = %v %q, want Malformed (short packet)", units[0].Frame.Kind, units[0].Note)
	}
}

func TestFramerStuffErrorResyncs(t *testing.T) {
	val := crc.NewValidator()
	f := NewFramer(val, nil)

	feedBits(f, append(append([]uint8{}, syncBits...), pidWire(PIDData0)...))
	units := f.Feed(nrzi.Event{Kind: nrzi.EvStuffError})
	if len(units) != 1 || units[0].Frame.Kind != KindMalformed || units[0].Note != "bit-stuff error" {
		t.Fatalf("stuff error: units %+v, want one Malformed (bit-stuff error)", units)
	}

	// The next packet in the stream must decode normally.
	field := uint16(0x11) | 1<<7
	feedBits(f, tokenBits(val, PIDOut, field))
	units = feedEOP(f)
	if len(units) != 1 || units[0].Frame.Kind != KindToken || units[0].CRC != crc.Valid {
		t.Fatalf("post-error packet: units %+v, want one valid Token", units)
	}
}

func TestFramerAnomalyNoteAttaches(t *testing.T) {
	f := NewFramer(crc.NewValidator(), nil)
	f.Feed(nrzi.Event{Kind: nrzi.EvAnomaly, Note: "timing anomaly"})
	if n := f.TakeNote(); n != "timing anomaly" {
		t.Errorf("TakeNote = %q, want the anomaly note", n)
	}
	if n := f.TakeNote(); n != "" {
		t.Errorf("second TakeNote = %q, want empty", n)
	}
}

func TestFramerReset(t *testing.T) {
	f := NewFramer(crc.NewValidator(), nil)
	feedBits(f, append(append([]uint8{}, syncBits...), 1, 1, 0))
	if !f.Accumulating() {
		t.Fatal("framer not accumulating mid-PID")
	}
	f.Reset()
	if f.Accumulating() {
		t.Error("framer still accumulating after Reset")
	}
}

func TestPIDKinds(t *testing.T) {
	cases := []struct {
		pid  PID
		kind Kind
	}{
		{PIDIn, KindToken},
		{PIDOut, KindToken},
		{PIDSetup, KindToken},
		{PIDSOF, KindToken},
		{PIDData0, KindData},
		{PIDData1, KindData},
		{PIDAck, KindHandshake},
		{PIDNak, KindHandshake},
		{PIDStall, KindHandshake},
		{PIDNyet, KindHandshake},
		{PIDPre, KindSpecial},
		{PIDSplit, KindSpecial},
		{PIDPing, KindSpecial},
		{PIDData2, KindSpecial},
		{PIDMData, KindSpecial},
	}
	for _, tc := range cases {
		if got := tc.pid.KindOf(); got != tc.kind {
			t.Errorf("%v.KindOf() = %v, want %v", tc.pid, got, tc.kind)
		}
	}
}
