package noise

import (
	"fmt"
	"math"
)

// Level holds the derived parameters of one octave.
type Level struct {
	Index     int
	Cells     int
	Res       int
	Amplitude float64
}

// Params is the validated, immutable result of DeriveParams.
type Params struct {
	Config Config
	Levels []Level
	// MaxH bounds the absolute raw height of the zero-gradient variant.
	MaxH float64
}

func DeriveParams(cfg Config) (*Params, error) {
	if cfg.Depth < 1 {
		return nil, fmt.Errorf("%w: depth must be >= 1, got %d", ErrInvalidConfig, cfg.Depth)
	}
	if !(cfg.AmplitudeDivider > 0) {
		return nil, fmt.Errorf("%w: amplitude divider must be > 0, got %v", ErrInvalidConfig, cfg.AmplitudeDivider)
	}
	if cfg.DomainDivider < 1 {
		return nil, fmt.Errorf("%w: domain divider must be >= 1, got %d", ErrInvalidConfig, cfg.DomainDivider)
	}
	if cfg.MinCells <= 0 {
		return nil, fmt.Errorf("%w: min cells must be > 0, got %d", ErrInvalidConfig, cfg.MinCells)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be > 0, got %d", ErrInvalidConfig, cfg.ChunkSize)
	}
	if cfg.WorldSize[0] < 1 || cfg.WorldSize[1] < 1 {
		return nil, fmt.Errorf("%w: world size must be >= 1 on both axes, got %v", ErrInvalidConfig, cfg.WorldSize)
	}
	switch cfg.Variant {
	case ZeroGradient, DualCubic, GradientNoise:
	default:
		return nil, fmt.Errorf("%w: unknown variant %d", ErrInvalidConfig, int(cfg.Variant))
	}
	if _, err := Smoothstep(cfg.SmoothstepDegree()); err != nil {
		return nil, err
	}

	p := &Params{
		Config: cfg,
		Levels: make([]Level, 0, cfg.Depth),
	}
	n := cfg.MinCells
	for k := 0; k < cfg.Depth; k++ {
		amp := 1 / math.Pow(cfg.AmplitudeDivider, float64(k))
		if n > cfg.ChunkSize {
			return nil, fmt.Errorf("%w: octave %d has %d cells, more than chunk size %d", ErrInvalidConfig, k, n, cfg.ChunkSize)
		}
		if cfg.ChunkSize%n != 0 {
			return nil, fmt.Errorf("%w: chunk size %d not divisible by %d cells at octave %d", ErrInvalidConfig, cfg.ChunkSize, n, k)
		}
		p.Levels = append(p.Levels, Level{
			Index:     k,
			Cells:     n,
			Res:       cfg.ChunkSize / n,
			Amplitude: amp,
		})
		p.MaxH += amp
		if k+1 < cfg.Depth && n > cfg.ChunkSize/cfg.DomainDivider {
			return nil, fmt.Errorf("%w: octave %d would have more than %d cells (domain divider %d)", ErrInvalidConfig, k+1, cfg.ChunkSize, cfg.DomainDivider)
		}
		n *= cfg.DomainDivider
	}
	return p, nil
}
