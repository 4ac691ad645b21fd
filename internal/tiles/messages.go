package tiles

import (
	"fmt"

	"polyterrain.ai/internal/encoding"
	"polyterrain.ai/internal/persistence/snapshot"
	"polyterrain.ai/internal/protocol"
	"polyterrain.ai/internal/terrain/colorscale"
	"polyterrain.ai/internal/terrain/noise"
)

// Ref describes g on the wire.
func (g *Generator) Ref() protocol.GeneratorRef {
	cfg := g.gen.Config()
	return protocol.GeneratorRef{
		ID:         g.Spec.ID,
		Digest:     g.Digest,
		Variant:    cfg.Variant.String(),
		Smoothstep: cfg.SmoothstepDegree(),
		Depth:      cfg.Depth,
		ChunkSize:  cfg.ChunkSize,
		OutputSize: cfg.OutputSize(),
		WorldSize:  cfg.WorldSize,
		Seed:       cfg.Seed,
		Closed:     cfg.Closed,
		MaxH:       g.gen.Params().MaxH,
		Palette:    g.Spec.Palette,
		Normalize:  g.Spec.Normalize,
	}
}

// ChunkMessage encodes r as a CHUNK message. With normalized set, heights
// use the theoretical map whatever the generator's configured mode, so
// streamed chunks from any generator stitch; they are quantized over [0, 1].
// Raw heights are quantized over their own range. A non-nil pal adds the
// per-sample band indices of the theoretical field.
func ChunkMessage(r *Result, normalized bool, pal *colorscale.Scale) protocol.ChunkMsg {
	f := r.Field
	lo, hi := f.MinMax()
	var wire *noise.Heightfield
	if normalized || pal != nil {
		wire = noise.NormalizeTheoretical(r.Field, r.Generator.Params())
	}
	if normalized {
		f = wire
		lo, hi = 0, 1
	}
	msg := protocol.ChunkMsg{
		Type:            protocol.TypeChunk,
		ProtocolVersion: protocol.Version,
		Generator:       r.Generator.Spec.ID,
		Digest:          r.Generator.Digest,
		CX:              r.Chunk.X,
		CY:              r.Chunk.Y,
		Width:           f.W,
		Height:          f.H,
		Lo:              lo,
		Hi:              hi,
		Encoding:        protocol.EncodingQ16,
		Data:            encoding.EncodeQ16(f.Data, lo, hi),
		Cached:          r.Cached,
	}
	if pal != nil {
		msg.Bands = encoding.EncodeBands(Bands(wire, pal))
	}
	return msg
}

// DecodeChunk restores the heights carried by a CHUNK message.
func DecodeChunk(m protocol.ChunkMsg) (*noise.Heightfield, error) {
	data, err := encoding.DecodeQ16(m.Data, m.Lo, m.Hi)
	if err != nil {
		return nil, err
	}
	if len(data) != m.Width*m.Height {
		return nil, errShape(len(data), m.Width, m.Height)
	}
	return &noise.Heightfield{W: m.Width, H: m.Height, Data: data}, nil
}

// ChunkBands restores the band indices of a CHUNK message whose bands were
// computed against a palette of bandCount bands.
func ChunkBands(m protocol.ChunkMsg, bandCount int) ([]uint16, error) {
	if m.Bands == "" {
		return nil, fmt.Errorf("chunk %d,%d carries no bands", m.CX, m.CY)
	}
	return encoding.DecodeBands(m.Bands, m.Width*m.Height, bandCount)
}

// Snapshot wraps f, covering w×h chunks from origin, as a heightfield
// snapshot. normalize names the normalization applied to f, empty for raw.
func (g *Generator) Snapshot(origin noise.Chunk, w, h int, f *noise.Heightfield, normalize string) snapshot.HeightfieldV1 {
	cfg := g.gen.Config()
	return snapshot.New(snapshot.Header{
		Generator: g.Spec.ID,
		Digest:    g.Digest,
		CX:        origin.X,
		CY:        origin.Y,
		ChunksW:   w,
		ChunksH:   h,
		Seed:      cfg.Seed,
		Variant:   cfg.Variant.String(),
		Normalize: normalize,
	}, f)
}
