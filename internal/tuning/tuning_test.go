package tuning

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"polyterrain.ai/internal/terrain/noise"
)

func TestLoad_TerrainYAML(t *testing.T) {
	cfg, err := Load("../../configs/terrain.yaml")
	if err != nil {
		t.Fatalf("load terrain.yaml: %v", err)
	}
	if cfg.DefaultGenerator != "overworld" {
		t.Fatalf("default generator %q", cfg.DefaultGenerator)
	}
	g, ok := cfg.Generator("")
	if !ok || g.ID != "overworld" {
		t.Fatalf("default lookup failed: %+v", g)
	}
	islands, ok := cfg.Generator("islands")
	if !ok {
		t.Fatalf("missing islands")
	}
	// Omitted fields take the noise defaults.
	if islands.DomainDivider != 2 || islands.Normalize != NormalizeTheoretical {
		t.Fatalf("islands not normalized: %+v", islands)
	}
	nc, err := islands.NoiseConfig()
	if err != nil {
		t.Fatalf("NoiseConfig: %v", err)
	}
	if nc.Variant != noise.DualCubic || nc.WorldSize != [2]int{8, 8} {
		t.Fatalf("unexpected noise config %+v", nc)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	g, ok := cfg.Generator("")
	if !ok {
		t.Fatalf("no default generator")
	}
	nc, err := g.NoiseConfig()
	if err != nil {
		t.Fatalf("NoiseConfig: %v", err)
	}
	if nc != noise.DefaultConfig() {
		t.Fatalf("defaults differ: %+v", nc)
	}
}

func TestLoad_RejectsInvalidGenerator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terrain.yaml")
	raw := "generators:\n  - id: bad\n    chunk_size: 500\n    domain_divider: 3\n    depth: 3\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(path)
	if !errors.Is(err, noise.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]Config{
		"empty":        {},
		"duplicate":    {DefaultGenerator: "a", Generators: []GeneratorSpec{{ID: "a"}, {ID: "a"}}},
		"missing dflt": {DefaultGenerator: "b", Generators: []GeneratorSpec{{ID: "a"}}},
		"bad variant":  {Generators: []GeneratorSpec{{ID: "a", Variant: "simplex"}}},
		"bad world":    {Generators: []GeneratorSpec{{ID: "a", WorldSize: []int{2}}}},
		"bad norm":     {Generators: []GeneratorSpec{{ID: "a", Normalize: "loud"}}},
	}
	for name, cfg := range cases {
		cfg.Normalize()
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDigest(t *testing.T) {
	a := GeneratorSpec{ID: "a", Palette: "summer"}
	b := GeneratorSpec{ID: "b", Palette: "fire", Normalize: NormalizeEmpirical}
	cfg := Config{Generators: []GeneratorSpec{a, b}}
	cfg.Normalize()
	da, err := cfg.Generators[0].Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	db, _ := cfg.Generators[1].Digest()
	if da != db {
		t.Fatalf("palette or normalization changed the digest")
	}

	// An explicit default smoothstep is the same generator.
	explicit := cfg.Generators[0]
	explicit.Smoothstep = 3
	if d, _ := explicit.Digest(); d != da {
		t.Fatalf("explicit default smoothstep changed the digest")
	}
	explicit.Seed = 9
	if d, _ := explicit.Digest(); d == da {
		t.Fatalf("seed did not change the digest")
	}
}

func TestDigestIgnoresSmoothstepForDualCubic(t *testing.T) {
	a := GeneratorSpec{ID: "a", Variant: "dual_cubic"}
	b := GeneratorSpec{ID: "b", Variant: "dual_cubic", Smoothstep: 7}
	cfg := Config{Generators: []GeneratorSpec{a, b}}
	cfg.Normalize()
	da, _ := cfg.Generators[0].Digest()
	db, _ := cfg.Generators[1].Digest()
	if da != db {
		t.Fatalf("smoothstep changed a dual cubic digest")
	}

	zg := cfg.Generators[0]
	zg.Variant = "zero_gradient"
	d3, _ := zg.Digest()
	zg.Smoothstep = 7
	if d7, _ := zg.Digest(); d7 == d3 {
		t.Fatalf("smoothstep did not change a zero gradient digest")
	}
}

func TestLoad_RejectsExplicitZero(t *testing.T) {
	for _, field := range []string{"depth", "amplitude_divider", "domain_divider", "min_cells", "chunk_size", "smoothstep"} {
		path := filepath.Join(t.TempDir(), "terrain.yaml")
		raw := "generators:\n  - id: zero\n    " + field + ": 0\n"
		if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(path); !errors.Is(err, noise.ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", field, err)
		}
	}
}

func TestLoad_RejectsOverflowingDivider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terrain.yaml")
	raw := "generators:\n  - id: huge\n    min_cells: 4\n    domain_divider: 4611686018427387904\n    depth: 3\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, noise.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
