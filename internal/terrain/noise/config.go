package noise

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is wrapped by every configuration error.
var ErrInvalidConfig = errors.New("invalid noise config")

// Variant selects the patch evaluator.
type Variant int

const (
	ZeroGradient Variant = iota + 1
	DualCubic
	GradientNoise
)

func (v Variant) String() string {
	switch v {
	case ZeroGradient:
		return "zero_gradient"
	case DualCubic:
		return "dual_cubic"
	case GradientNoise:
		return "gradient_noise"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zero_gradient", "zg", "":
		return ZeroGradient, nil
	case "dual_cubic", "cubic":
		return DualCubic, nil
	case "gradient_noise", "perlin":
		return GradientNoise, nil
	default:
		return 0, fmt.Errorf("%w: unknown variant %q", ErrInvalidConfig, s)
	}
}

// defaultSmoothness is the smoothstep degree used when Config.Smoothness is 0.
func (v Variant) defaultSmoothness() int {
	if v == GradientNoise {
		return 5
	}
	return 3
}

type Config struct {
	Depth            int
	AmplitudeDivider float64
	DomainDivider    int
	MinCells         int
	ChunkSize        int
	WorldSize        [2]int
	Seed             int64

	Variant    Variant
	Smoothness int

	// Closed adds one trailing row and column so that the output holds
	// (ChunkSize+1)^2 samples and shares its last row/column with the
	// neighbouring chunks.
	Closed bool
}

func DefaultConfig() Config {
	return Config{
		Depth:            7,
		AmplitudeDivider: 2.0,
		DomainDivider:    2,
		MinCells:         1,
		ChunkSize:        512,
		WorldSize:        [2]int{1, 1},
		Seed:             0,
		Variant:          ZeroGradient,
	}
}

// OutputSize is the edge length of a single chunk heightfield.
func (c Config) OutputSize() int {
	if c.Closed {
		return c.ChunkSize + 1
	}
	return c.ChunkSize
}

// SmoothstepDegree is the effective smoothstep degree, Smoothness or the
// variant default when it is 0.
func (c Config) SmoothstepDegree() int {
	if c.Smoothness == 0 {
		return c.Variant.defaultSmoothness()
	}
	return c.Smoothness
}
