package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"

	"polyterrain.ai/internal/catalogs"
	"polyterrain.ai/internal/encoding"
	"polyterrain.ai/internal/persistence/snapshot"
	"polyterrain.ai/internal/protocol"
	"polyterrain.ai/internal/terrain/colorscale"
	"polyterrain.ai/internal/terrain/noise"
	"polyterrain.ai/internal/tiles"
	"polyterrain.ai/internal/tuning"
)

// request is one block of chunks to stream.
type request struct {
	Generator string
	Origin    noise.Chunk
	W, H      int
	// Bands asks the server for per-sample band indices against Palette
	// (the generator's palette when empty).
	Bands   bool
	Palette string
}

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		genID     = flag.String("generator", "", "generator id (default: the server default)")
		cx        = flag.Int("cx", 0, "first chunk x")
		cy        = flag.Int("cy", 0, "first chunk y")
		w         = flag.Int("w", 2, "chunks across")
		h         = flag.Int("h", 2, "chunks down")
		palette   = flag.String("palette", "", "palette id for -out and -bands (default: the generator's)")
		bands     = flag.Bool("bands", false, "request band indices and print material coverage")
		configDir = flag.String("configs", "./configs", "config directory (palettes)")
		out       = flag.String("out", "", "png output path (empty to skip)")
		hfOut     = flag.String("hf", "", ".hf.zst output path (empty to skip)")
		timeout   = flag.Duration("timeout", time.Minute, "give up after this long")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[stream] ", log.LstdFlags|log.Lmicroseconds)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		cancel()
	}()

	req := request{
		Generator: *genID,
		Origin:    noise.Chunk{X: *cx, Y: *cy},
		W:         *w,
		H:         *h,
		Bands:     *bands,
		Palette:   *palette,
	}
	welcome, chunks, err := fetch(ctx, *url, req, logger)
	if err != nil {
		logger.Fatalf("fetch: %v", err)
	}
	ref := welcome.Generator
	f, err := assemble(ref, chunks, req.Origin, req.W, req.H)
	if err != nil {
		logger.Fatalf("assemble: %v", err)
	}
	logger.Printf("assembled %s %dx%d chunks into %dx%d samples", ref.ID, req.W, req.H, f.W, f.H)

	var pal *colorscale.Scale
	if *out != "" || req.Bands {
		cats, err := catalogs.Load(*configDir)
		if err != nil {
			logger.Fatalf("load catalogs: %v", err)
		}
		id := req.Palette
		if id == "" {
			id = ref.Palette
		}
		p, ok := cats.Palettes.Palette(id)
		if !ok {
			logger.Fatalf("unknown palette %q", id)
		}
		pal = p
	}

	if req.Bands {
		b, err := assembleBands(ref, chunks, req.Origin, req.W, req.H, len(pal.Bands()))
		if err != nil {
			logger.Fatalf("bands: %v", err)
		}
		for _, c := range coverage(b, pal) {
			logger.Printf("%-12s %8d samples %6.2f%%", c.Name, c.Samples, 100*c.Fraction)
		}
	}
	if *out != "" {
		if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
			logger.Fatalf("mkdir: %v", err)
		}
		pf, err := os.Create(*out)
		if err != nil {
			logger.Fatalf("create: %v", err)
		}
		if err := tiles.WritePNG(pf, tiles.Colorize(f, pal, 1)); err != nil {
			logger.Fatalf("png: %v", err)
		}
		_ = pf.Close()
	}
	if *hfOut != "" {
		snap := snapshot.New(snapshot.Header{
			Generator: ref.ID,
			Digest:    ref.Digest,
			CX:        req.Origin.X,
			CY:        req.Origin.Y,
			ChunksW:   req.W,
			ChunksH:   req.H,
			Seed:      ref.Seed,
			Variant:   ref.Variant,
			Normalize: tuning.NormalizeTheoretical,
		}, f)
		if err := snapshot.WriteFile(*hfOut, snap); err != nil {
			logger.Fatalf("snapshot: %v", err)
		}
	}
}

// fetch subscribes to the chunks of req and collects one CHUNK per
// coordinate.
func fetch(ctx context.Context, url string, req request, logger *log.Logger) (protocol.WelcomeMsg, map[noise.Chunk]protocol.ChunkMsg, error) {
	var welcome protocol.WelcomeMsg
	if req.W < 1 || req.H < 1 {
		return welcome, nil, fmt.Errorf("w and h must be >= 1, got %dx%d", req.W, req.H)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return welcome, nil, err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	sub := protocol.SubscribeMsg{
		Type:            protocol.TypeSubscribe,
		ProtocolVersion: protocol.Version,
		Generator:       req.Generator,
		IncludeBands:    req.Bands,
		Palette:         req.Palette,
	}
	for y := 0; y < req.H; y++ {
		for x := 0; x < req.W; x++ {
			sub.Chunks = append(sub.Chunks, [2]int{req.Origin.X + x, req.Origin.Y + y})
		}
	}
	if err := conn.WriteJSON(sub); err != nil {
		return welcome, nil, fmt.Errorf("send SUBSCRIBE: %w", err)
	}

	want := req.W * req.H
	chunks := make(map[noise.Chunk]protocol.ChunkMsg, want)
	for len(chunks) < want {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return welcome, nil, ctx.Err()
			}
			return welcome, nil, err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			if err := json.Unmarshal(msg, &welcome); err != nil {
				return welcome, nil, err
			}
			if logger != nil {
				logger.Printf("WELCOME generator=%s variant=%s digest=%s", welcome.Generator.ID, welcome.Generator.Variant, welcome.Generator.Digest)
			}
		case protocol.TypeChunk:
			var c protocol.ChunkMsg
			if err := json.Unmarshal(msg, &c); err != nil {
				return welcome, nil, err
			}
			chunks[noise.Chunk{X: c.CX, Y: c.CY}] = c
		case protocol.TypeError:
			var e protocol.ErrorMsg
			_ = json.Unmarshal(msg, &e)
			return welcome, nil, fmt.Errorf("%s: %s", e.Code, e.Message)
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	return welcome, chunks, nil
}

// stitch lays the decoded chunks out as one row-major mosaic. Closed chunks
// overlap by their shared border.
func stitch[T any](ref protocol.GeneratorRef, chunks map[noise.Chunk]protocol.ChunkMsg, origin noise.Chunk, w, h int, decode func(protocol.ChunkMsg) ([]T, error)) ([]T, int, int, error) {
	s, o := ref.ChunkSize, ref.OutputSize
	if s < 1 || o < s {
		return nil, 0, 0, errors.New("generator reference has no chunk size")
	}
	mw, mh := s*w+o-s, s*h+o-s
	out := make([]T, mw*mh)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			c := noise.Chunk{X: origin.X + i, Y: origin.Y + j}
			m, ok := chunks[c]
			if !ok {
				return nil, 0, 0, fmt.Errorf("missing chunk %d,%d", c.X, c.Y)
			}
			if m.Width != o || m.Height != o {
				return nil, 0, 0, fmt.Errorf("chunk %d,%d is %dx%d, want %dx%d", c.X, c.Y, m.Width, m.Height, o, o)
			}
			vals, err := decode(m)
			if err != nil {
				return nil, 0, 0, fmt.Errorf("chunk %d,%d: %w", c.X, c.Y, err)
			}
			for y := 0; y < o; y++ {
				copy(out[(j*s+y)*mw+i*s:], vals[y*o:(y+1)*o])
			}
		}
	}
	return out, mw, mh, nil
}

// assemble stitches the streamed heights into one heightfield.
func assemble(ref protocol.GeneratorRef, chunks map[noise.Chunk]protocol.ChunkMsg, origin noise.Chunk, w, h int) (*noise.Heightfield, error) {
	data, mw, mh, err := stitch(ref, chunks, origin, w, h, func(m protocol.ChunkMsg) ([]float64, error) {
		f, err := tiles.DecodeChunk(m)
		if err != nil {
			return nil, err
		}
		return f.Data, nil
	})
	if err != nil {
		return nil, err
	}
	return &noise.Heightfield{W: mw, H: mh, Data: data}, nil
}

// assembleBands stitches the streamed band indices, checked against a
// palette of bandCount bands.
func assembleBands(ref protocol.GeneratorRef, chunks map[noise.Chunk]protocol.ChunkMsg, origin noise.Chunk, w, h, bandCount int) ([]uint16, error) {
	b, _, _, err := stitch(ref, chunks, origin, w, h, func(m protocol.ChunkMsg) ([]uint16, error) {
		return tiles.ChunkBands(m, bandCount)
	})
	return b, err
}

type bandCoverage struct {
	Name     string
	Samples  int
	Fraction float64
}

// coverage counts the samples per palette band, in palette order, followed
// by an "outside" entry when any sample fell outside the palette.
func coverage(bands []uint16, pal *colorscale.Scale) []bandCoverage {
	defs := pal.Bands()
	counts := make([]int, len(defs)+1)
	for _, b := range bands {
		if b == encoding.NoBand {
			counts[len(defs)]++
			continue
		}
		counts[b]++
	}
	out := make([]bandCoverage, 0, len(counts))
	for i, d := range defs {
		out = append(out, bandCoverage{Name: d.Name, Samples: counts[i]})
	}
	if n := counts[len(defs)]; n > 0 {
		out = append(out, bandCoverage{Name: "outside", Samples: n})
	}
	for i := range out {
		if len(bands) > 0 {
			out[i].Fraction = float64(out[i].Samples) / float64(len(bands))
		}
	}
	return out
}
