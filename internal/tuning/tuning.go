package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"polyterrain.ai/internal/terrain/noise"
)

type Config struct {
	DefaultGenerator string          `yaml:"default_generator"`
	Generators       []GeneratorSpec `yaml:"generators"`
}

type GeneratorSpec struct {
	ID               string  `yaml:"id"`
	Variant          string  `yaml:"variant"`
	Smoothstep       int     `yaml:"smoothstep"`
	Depth            int     `yaml:"depth"`
	AmplitudeDivider float64 `yaml:"amplitude_divider"`
	DomainDivider    int     `yaml:"domain_divider"`
	MinCells         int     `yaml:"min_cells"`
	ChunkSize        int     `yaml:"chunk_size"`
	WorldSize        []int   `yaml:"world_size"`
	Seed             int64   `yaml:"seed"`
	Closed           bool    `yaml:"closed"`

	Palette   string `yaml:"palette"`
	Normalize string `yaml:"normalize"` // "theoretical" | "empirical"
}

const (
	NormalizeTheoretical = "theoretical"
	NormalizeEmpirical   = "empirical"
)

// Keys whose zero value means "use the default" only when omitted.
var noZeroKeys = map[string]bool{
	"smoothstep":        true,
	"depth":             true,
	"amplitude_divider": true,
	"domain_divider":    true,
	"min_cells":         true,
	"chunk_size":        true,
}

// UnmarshalYAML rejects an explicit 0 for fields that are defaulted when
// omitted, so a typo cannot silently become the default.
func (g *GeneratorSpec) UnmarshalYAML(n *yaml.Node) error {
	type plain GeneratorSpec
	if err := n.Decode((*plain)(g)); err != nil {
		return err
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i].Value, n.Content[i+1]
		if !noZeroKeys[key] || val.Kind != yaml.ScalarNode {
			continue
		}
		var f float64
		if err := val.Decode(&f); err == nil && f == 0 {
			return fmt.Errorf("%w: generator %q: %s must not be 0 (omit it for the default)", noise.ErrInvalidConfig, g.ID, key)
		}
	}
	return nil
}

func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		cfg := defaults()
		cfg.Normalize()
		return cfg, nil
	}
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("terrain.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("terrain.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		DefaultGenerator: "overworld",
		Generators: []GeneratorSpec{
			{ID: "overworld"},
		},
	}
}

// Normalize fills zero fields with the noise defaults.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	d := noise.DefaultConfig()
	for i := range c.Generators {
		g := &c.Generators[i]
		g.ID = strings.TrimSpace(g.ID)
		if strings.TrimSpace(g.Variant) == "" {
			g.Variant = d.Variant.String()
		}
		if g.Depth == 0 {
			g.Depth = d.Depth
		}
		if g.AmplitudeDivider == 0 {
			g.AmplitudeDivider = d.AmplitudeDivider
		}
		if g.DomainDivider == 0 {
			g.DomainDivider = d.DomainDivider
		}
		if g.MinCells == 0 {
			g.MinCells = d.MinCells
		}
		if g.ChunkSize == 0 {
			g.ChunkSize = d.ChunkSize
		}
		if len(g.WorldSize) == 0 {
			g.WorldSize = []int{d.WorldSize[0], d.WorldSize[1]}
		}
		if g.Palette == "" {
			g.Palette = "summer"
		}
		if g.Normalize == "" {
			g.Normalize = NormalizeTheoretical
		}
	}
	if c.DefaultGenerator == "" && len(c.Generators) > 0 {
		c.DefaultGenerator = c.Generators[0].ID
	}
}

func (c Config) Validate() error {
	if len(c.Generators) == 0 {
		return fmt.Errorf("generators must not be empty")
	}
	seen := map[string]bool{}
	for _, g := range c.Generators {
		if g.ID == "" {
			return fmt.Errorf("generator id must not be empty")
		}
		if seen[g.ID] {
			return fmt.Errorf("duplicate generator id: %s", g.ID)
		}
		seen[g.ID] = true
		if g.Normalize != NormalizeTheoretical && g.Normalize != NormalizeEmpirical {
			return fmt.Errorf("generator %s normalize must be %q or %q", g.ID, NormalizeTheoretical, NormalizeEmpirical)
		}
		nc, err := g.NoiseConfig()
		if err != nil {
			return fmt.Errorf("generator %s: %w", g.ID, err)
		}
		if _, err := noise.DeriveParams(nc); err != nil {
			return fmt.Errorf("generator %s: %w", g.ID, err)
		}
	}
	if c.DefaultGenerator == "" {
		return fmt.Errorf("default_generator must not be empty")
	}
	if !seen[c.DefaultGenerator] {
		return fmt.Errorf("default_generator %q not found in generators", c.DefaultGenerator)
	}
	return nil
}

func (c Config) Generator(id string) (GeneratorSpec, bool) {
	if id == "" {
		id = c.DefaultGenerator
	}
	for _, g := range c.Generators {
		if g.ID == id {
			return g, true
		}
	}
	return GeneratorSpec{}, false
}

func (g GeneratorSpec) NoiseConfig() (noise.Config, error) {
	v, err := noise.ParseVariant(g.Variant)
	if err != nil {
		return noise.Config{}, err
	}
	if len(g.WorldSize) != 2 {
		return noise.Config{}, fmt.Errorf("%w: world_size needs 2 values, got %d", noise.ErrInvalidConfig, len(g.WorldSize))
	}
	return noise.Config{
		Depth:            g.Depth,
		AmplitudeDivider: g.AmplitudeDivider,
		DomainDivider:    g.DomainDivider,
		MinCells:         g.MinCells,
		ChunkSize:        g.ChunkSize,
		WorldSize:        [2]int{g.WorldSize[0], g.WorldSize[1]},
		Seed:             g.Seed,
		Variant:          v,
		Smoothness:       g.Smoothstep,
		Closed:           g.Closed,
	}, nil
}

// Digest identifies the generated output of g: two specs with the same digest
// produce identical raw heightfields. Palette and normalization are excluded.
func (g GeneratorSpec) Digest() (string, error) {
	nc, err := g.NoiseConfig()
	if err != nil {
		return "", err
	}
	nc.Smoothness = nc.SmoothstepDegree()
	if nc.Variant == noise.DualCubic {
		// Hermite patches never read the smoothstep.
		nc.Smoothness = 0
	}
	b, err := json.Marshal(struct {
		Variant string `json:"variant"`
		noise.Config
	}{Variant: nc.Variant.String(), Config: nc})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
