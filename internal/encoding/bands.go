package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// NoBand marks a sample that falls outside every palette band.
const NoBand = 0xFFFF

// EncodeBands run-length encodes per-sample palette band indices as
// base64(varint run, varint band+1) pairs. NoBand is written as 0, so the
// common indices stay one byte.
func EncodeBands(bands []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	put := func(v uint64) {
		buf.Write(tmp[:binary.PutUvarint(tmp[:], v)])
	}

	for start := 0; start < len(bands); {
		end := start + 1
		for end < len(bands) && bands[end] == bands[start] {
			end++
		}
		put(uint64(end - start))
		if bands[start] == NoBand {
			put(0)
		} else {
			put(uint64(bands[start]) + 1)
		}
		start = end
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeBands expands s into exactly n band indices. Every index must be
// below bandCount or be NoBand; runs may not overshoot n.
func DecodeBands(s string, n, bandCount int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, 0, n)
	for off := 0; off < len(raw); {
		run, k := binary.Uvarint(raw[off:])
		if k <= 0 {
			return nil, fmt.Errorf("bands: bad run at byte %d", off)
		}
		off += k
		v, k := binary.Uvarint(raw[off:])
		if k <= 0 {
			return nil, fmt.Errorf("bands: bad index at byte %d", off)
		}
		off += k

		if run == 0 || run > uint64(n-len(out)) {
			return nil, fmt.Errorf("bands: run of %d at sample %d overshoots %d samples", run, len(out), n)
		}
		b := uint16(NoBand)
		if v != 0 {
			if v > uint64(bandCount) {
				return nil, fmt.Errorf("bands: index %d outside a %d band palette", v-1, bandCount)
			}
			b = uint16(v - 1)
		}
		for i := uint64(0); i < run; i++ {
			out = append(out, b)
		}
	}
	if len(out) != n {
		return nil, fmt.Errorf("bands: got %d samples, want %d", len(out), n)
	}
	return out, nil
}
