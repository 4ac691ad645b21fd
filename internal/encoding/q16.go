package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeQ16 quantizes values onto 16 bits over [lo, hi] (values outside are
// clamped) and encodes the zigzag deltas between consecutive samples as
// base64(varints). Smooth fields produce small deltas and short output.
func EncodeQ16(values []float64, lo, hi float64) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(tmp[:], uint64(len(values)))
	buf.Write(tmp[:n])

	span := hi - lo
	prev := int64(0)
	for _, v := range values {
		q := int64(0)
		if span > 0 {
			t := (v - lo) / span
			switch {
			case t <= 0 || math.IsNaN(t):
				q = 0
			case t >= 1:
				q = 0xFFFF
			default:
				q = int64(math.Round(t * 0xFFFF))
			}
		}
		n := binary.PutVarint(tmp[:], q-prev)
		buf.Write(tmp[:n])
		prev = q
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeQ16 reverses EncodeQ16. Each value is within (hi-lo)/131070 of the
// encoded one.
func DecodeQ16(b64 string, lo, hi float64) ([]float64, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	count, n := binary.Uvarint(raw)
	if n <= 0 {
		return nil, fmt.Errorf("bad length varint")
	}
	if count > uint64(len(raw)) {
		return nil, fmt.Errorf("length %d exceeds payload", count)
	}
	i := n
	out := make([]float64, 0, count)
	q := int64(0)
	for k := uint64(0); k < count; k++ {
		d, n := binary.Varint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		q += d
		if q < 0 || q > 0xFFFF {
			return nil, fmt.Errorf("sample %d out of range: %d", k, q)
		}
		out = append(out, lo+float64(q)/0xFFFF*(hi-lo))
	}
	if i != len(raw) {
		return nil, fmt.Errorf("%d trailing bytes", len(raw)-i)
	}
	return out, nil
}
