package snapshot

import (
	"bytes"
	"path/filepath"
	"testing"

	"polyterrain.ai/internal/terrain/noise"
)

func sampleField() *noise.Heightfield {
	f := noise.NewHeightfield(4, 3)
	for i := range f.Data {
		f.Data[i] = float64(i)*0.125 - 0.5
	}
	return f
}

func TestWriteAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles", "0_0.hf.zst")
	snap := New(Header{Generator: "overworld", Digest: "abc", CX: -2, CY: 5, Seed: 9, Variant: "dual_cubic"}, sampleField())
	if err := WriteFile(path, snap); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.Header != snap.Header {
		t.Fatalf("header: got %+v want %+v", got.Header, snap.Header)
	}
	if !got.Heightfield().Equal(sampleField()) {
		t.Fatalf("data mismatch")
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.CX != -2 || h.Width != 4 || h.Height != 3 || h.ChunksW != 1 || h.Version != Version {
		t.Fatalf("unexpected header %+v", h)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte("not zstd at all"))); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeRejectsShapeMismatch(t *testing.T) {
	snap := New(Header{}, sampleField())
	snap.Header.Width = 5
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(&buf); err == nil {
		t.Fatalf("expected shape error")
	}
}
