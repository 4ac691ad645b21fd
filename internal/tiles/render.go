package tiles

import (
	"image"
	"image/png"
	"io"

	"golang.org/x/image/draw"

	"polyterrain.ai/internal/encoding"
	"polyterrain.ai/internal/terrain/colorscale"
	"polyterrain.ai/internal/terrain/noise"
)

// Colorize maps a normalized heightfield through pal and resizes the result
// by scale. Upscaling keeps hard pixel edges; downscaling filters.
func Colorize(f *noise.Heightfield, pal *colorscale.Scale, scale float64) image.Image {
	img := pal.Image(f)
	if scale <= 0 || scale == 1 {
		return img
	}
	w := max(1, int(float64(f.W)*scale+0.5))
	h := max(1, int(float64(f.H)*scale+0.5))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	var interp draw.Interpolator = draw.NearestNeighbor
	if scale < 1 {
		interp = draw.CatmullRom
	}
	interp.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func WritePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, img)
}

// Bands returns the color band index of every sample, or encoding.NoBand
// outside the palette.
func Bands(f *noise.Heightfield, pal *colorscale.Scale) []uint16 {
	out := make([]uint16, len(f.Data))
	for i, v := range f.Data {
		b := pal.Index(v)
		if b < 0 {
			out[i] = encoding.NoBand
			continue
		}
		out[i] = uint16(b)
	}
	return out
}
