package encoding

import (
	"math"
	"testing"
)

func TestBands_RoundTrip(t *testing.T) {
	in := []uint16{1, 1, 1, 0, 0, NoBand, NoBand, 3}
	for i := 0; i < 50; i++ {
		in = append(in, 4)
	}
	in = append(in, NoBand, 2, 2)

	out, err := DecodeBands(EncodeBands(in), len(in), 5)
	if err != nil {
		t.Fatalf("DecodeBands: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestBands_ConstantIsOneRun(t *testing.T) {
	in := make([]uint16, 1000)
	// varint(1000) is two bytes, band 0+1 is one.
	if enc := EncodeBands(in); enc != "6AcB" {
		t.Fatalf("encoded %q", enc)
	}
	if enc := EncodeBands(nil); enc != "" {
		t.Fatalf("empty input encoded %q", enc)
	}
}

func TestBands_RejectsBadInput(t *testing.T) {
	enc := EncodeBands([]uint16{0, 0, 2, NoBand})
	cases := map[string]struct {
		s        string
		n, bands int
	}{
		"base64":    {"!!!", 4, 3},
		"index":     {enc, 4, 2},
		"short":     {enc, 5, 3},
		"overshoot": {enc, 3, 3},
		"zero run":  {"AAE=", 0, 3},
		"truncated": {"6A==", 1000, 3},
	}
	for name, c := range cases {
		if _, err := DecodeBands(c.s, c.n, c.bands); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if out, err := DecodeBands(enc, 4, 3); err != nil || out[3] != NoBand {
		t.Fatalf("valid input rejected: %v %v", out, err)
	}
}

func TestQ16_RoundTripWithinStep(t *testing.T) {
	in := make([]float64, 0, 300)
	for i := 0; i < 300; i++ {
		in = append(in, math.Sin(float64(i)/20))
	}
	in = append(in, -5, 5)

	enc := EncodeQ16(in, -1, 1)
	out, err := DecodeQ16(enc, -1, 1)
	if err != nil {
		t.Fatalf("DecodeQ16: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	step := 2.0 / 0xFFFF
	for i := 0; i < 300; i++ {
		if d := math.Abs(out[i] - in[i]); d > step/2+1e-12 {
			t.Fatalf("sample %d: error %v exceeds half step", i, d)
		}
	}
	if out[300] != -1 || out[301] != 1 {
		t.Fatalf("clamped values: %v %v", out[300], out[301])
	}
}

func TestQ16_SmoothInputIsCompact(t *testing.T) {
	in := make([]float64, 4096)
	for i := range in {
		in[i] = float64(i) / 4096
	}
	// Constant small deltas need one varint byte each.
	if n := len(EncodeQ16(in, 0, 1)); n > 4*(4096+3)/3+8 {
		t.Fatalf("encoded length %d", n)
	}
}

func TestQ16_Empty(t *testing.T) {
	out, err := DecodeQ16(EncodeQ16(nil, 0, 1), 0, 1)
	if err != nil || len(out) != 0 {
		t.Fatalf("empty round trip: %v %v", out, err)
	}
}

func TestQ16_RejectsCorruptInput(t *testing.T) {
	if _, err := DecodeQ16("!!!", 0, 1); err == nil {
		t.Fatalf("expected base64 error")
	}
	enc := EncodeQ16([]float64{0.1, 0.2, 0.3}, 0, 1)
	if _, err := DecodeQ16(enc[:len(enc)-4], 0, 1); err == nil {
		t.Fatalf("expected truncation error")
	}
}
