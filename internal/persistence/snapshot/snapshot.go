package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"polyterrain.ai/internal/terrain/noise"
)

const Version = 1

type Header struct {
	Version   int    `json:"version"`
	Generator string `json:"generator"`
	Digest    string `json:"digest"`
	CX        int    `json:"cx"`
	CY        int    `json:"cy"`
	// Chunks spanned; 1x1 for a single chunk.
	ChunksW int    `json:"chunks_w"`
	ChunksH int    `json:"chunks_h"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Seed    int64  `json:"seed"`
	Variant string `json:"variant"`
	// Normalize is empty for raw heights.
	Normalize string `json:"normalize,omitempty"`
}

type HeightfieldV1 struct {
	Header Header
	Data   []float64
}

func New(h Header, f *noise.Heightfield) HeightfieldV1 {
	h.Version = Version
	h.Width = f.W
	h.Height = f.H
	if h.ChunksW == 0 {
		h.ChunksW = 1
	}
	if h.ChunksH == 0 {
		h.ChunksH = 1
	}
	return HeightfieldV1{Header: h, Data: f.Data}
}

func (s HeightfieldV1) Heightfield() *noise.Heightfield {
	return &noise.Heightfield{W: s.Header.Width, H: s.Header.Height, Data: s.Data}
}

// Encode writes a zstd stream holding one JSON header line followed by the
// gob-encoded snapshot.
func Encode(w io.Writer, snap HeightfieldV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func Decode(r io.Reader) (HeightfieldV1, error) {
	var snap HeightfieldV1
	dec, err := zstd.NewReader(r)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	if len(snap.Data) != snap.Header.Width*snap.Header.Height {
		return snap, fmt.Errorf("snapshot has %d samples, header says %dx%d", len(snap.Data), snap.Header.Width, snap.Header.Height)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

func WriteFile(path string, snap HeightfieldV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := Encode(f, snap); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func ReadFile(path string) (HeightfieldV1, error) {
	f, err := os.Open(path)
	if err != nil {
		return HeightfieldV1{}, err
	}
	defer f.Close()
	return Decode(f)
}
