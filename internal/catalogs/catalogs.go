package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"polyterrain.ai/internal/terrain/colorscale"
)

type Catalogs struct {
	Palettes PaletteCatalog
}

type PaletteCatalog struct {
	ByID map[string]*colorscale.Scale
	// Digest covers the palette files only; built-in presets are part of the
	// binary.
	Digest string
}

type PaletteDef struct {
	ID    string    `json:"id"`
	Min   float64   `json:"min"`
	Bands []BandDef `json:"bands"`
}

type BandDef struct {
	Name  string   `json:"name,omitempty"`
	From  [3]uint8 `json:"from"`
	To    [3]uint8 `json:"to"`
	Upper float64  `json:"upper"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadPalettes(filepath.Join(configDir, "palettes"), &c.Palettes); err != nil {
		return nil, err
	}
	return &c, nil
}

// Palette returns a palette from the config dir, falling back to the
// built-in presets.
func (c *PaletteCatalog) Palette(id string) (*colorscale.Scale, bool) {
	if s, ok := c.ByID[id]; ok {
		return s, true
	}
	return colorscale.Preset(id)
}

// IDs lists every resolvable palette id, sorted.
func (c *PaletteCatalog) IDs() []string {
	seen := map[string]bool{}
	for _, id := range colorscale.PresetNames() {
		seen[id] = true
	}
	for id := range c.ByID {
		seen[id] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadPalettes(dir string, out *PaletteCatalog) error {
	out.ByID = map[string]*colorscale.Scale{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		var def PaletteDef
		if err := json.Unmarshal(b, &def); err != nil {
			return fmt.Errorf("palette %s: %w", filepath.Base(p), err)
		}
		if def.ID == "" {
			return fmt.Errorf("palette %s: missing id", filepath.Base(p))
		}
		if _, dup := out.ByID[def.ID]; dup {
			return fmt.Errorf("palette %s: duplicate id %q", filepath.Base(p), def.ID)
		}
		s, err := def.Scale()
		if err != nil {
			return fmt.Errorf("palette %s: %w", filepath.Base(p), err)
		}
		out.ByID[def.ID] = s
	}
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}

func (d PaletteDef) Scale() (*colorscale.Scale, error) {
	bands := make([]colorscale.Band, 0, len(d.Bands))
	for _, b := range d.Bands {
		bands = append(bands, colorscale.Band{
			Name:  b.Name,
			From:  rgba(b.From),
			To:    rgba(b.To),
			Upper: b.Upper,
		})
	}
	return colorscale.New(d.Min, bands...)
}

func rgba(c [3]uint8) color.RGBA {
	return color.RGBA{R: c[0], G: c[1], B: c[2], A: 0xff}
}
