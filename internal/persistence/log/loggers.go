package log

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// GenerationEntry records one served chunk or region.
type GenerationEntry struct {
	Time       string `json:"time"`
	Generator  string `json:"generator"`
	Digest     string `json:"digest"`
	CX         int    `json:"cx"`
	CY         int    `json:"cy"`
	ChunksW    int    `json:"chunks_w"`
	ChunksH    int    `json:"chunks_h"`
	Source     string `json:"source"` // "generated" | "cache"
	DurationUS int64  `json:"duration_us"`
}

// GenerationLogger appends entries to hourly zstd-compressed JSONL segments
// named generations-YYYY-MM-DD-HH.jsonl.zst under <dataDir>/generations.
// Reopening an hour appends a new zstd frame to the same file.
type GenerationLogger struct {
	dir string
	now func() time.Time

	mu  sync.Mutex
	seg *segment
}

type segment struct {
	hour string
	f    *os.File
	zw   *zstd.Encoder
	enc  *json.Encoder
}

func NewGenerationLogger(dataDir string) *GenerationLogger {
	return &GenerationLogger{
		dir: filepath.Join(dataDir, "generations"),
		now: time.Now,
	}
}

func (l *GenerationLogger) WriteGeneration(e GenerationEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.now().UTC()
	if e.Time == "" {
		e.Time = t.Format(time.RFC3339Nano)
	}
	hour := t.Format("2006-01-02-15")
	if l.seg == nil || l.seg.hour != hour {
		if err := l.closeSegment(); err != nil {
			return err
		}
		seg, err := openSegment(l.dir, hour)
		if err != nil {
			return err
		}
		l.seg = seg
	}
	return l.seg.enc.Encode(e)
}

// Flush pushes buffered entries to the current segment file.
func (l *GenerationLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seg == nil {
		return nil
	}
	return l.seg.zw.Flush()
}

func (l *GenerationLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeSegment()
}

func (l *GenerationLogger) closeSegment() error {
	if l.seg == nil {
		return nil
	}
	err := errors.Join(l.seg.zw.Close(), l.seg.f.Close())
	l.seg = nil
	return err
}

func openSegment(dir, hour string) (*segment, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "generations-"+hour+".jsonl.zst")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{hour: hour, f: f, zw: zw, enc: json.NewEncoder(zw)}, nil
}
