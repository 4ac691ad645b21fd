package colorscale

import (
	"image/color"
	"sort"
)

func rgb(r, g, b uint8) color.RGBA { return color.RGBA{R: r, G: g, B: b, A: 0xff} }

var (
	black = rgb(0, 0, 0)
	white = rgb(255, 255, 255)
)

var presets = map[string]*Scale{
	"summer": mustNew(-10,
		Band{"deep water", black, rgb(0, 0, 100), 0},
		Band{"water", rgb(0, 0, 100), rgb(0, 30, 255), 0.52},
		Band{"shallow water", rgb(0, 30, 255), rgb(137, 131, 200), 0.597},
		Band{"wet sand", rgb(137, 131, 200), rgb(237, 201, 175), 0.6},
		Band{"dry sand", rgb(237, 201, 175), rgb(50, 85, 10), 0.605},
		Band{"grass", rgb(50, 85, 10), rgb(50, 180, 50), 0.78},
		Band{"forest", rgb(50, 180, 50), rgb(150, 180, 150), 0.85},
		Band{"snow", rgb(150, 180, 150), white, 1.000001},
		Band{"white snow", white, white, 10},
	),
	"summer_dry": mustNew(-10,
		Band{From: black, To: rgb(0, 0, 100), Upper: 0},
		Band{From: rgb(0, 0, 100), To: rgb(0, 30, 255), Upper: 0.4},
		Band{From: rgb(0, 30, 255), To: rgb(137, 131, 200), Upper: 0.42},
		Band{From: rgb(137, 131, 200), To: rgb(237, 201, 175), Upper: 0.423},
		Band{From: rgb(237, 201, 175), To: rgb(50, 85, 10), Upper: 0.428},
		Band{From: rgb(50, 85, 10), To: rgb(50, 180, 50), Upper: 0.73},
		Band{From: rgb(50, 180, 50), To: rgb(150, 180, 150), Upper: 0.8},
		Band{From: rgb(150, 180, 150), To: white, Upper: 1.000001},
		Band{From: white, To: white, Upper: 10},
	),
	"summer_no_beach": mustNew(-10,
		Band{From: black, To: rgb(0, 0, 100), Upper: 0},
		Band{From: rgb(0, 0, 100), To: rgb(0, 30, 255), Upper: 0.4},
		Band{From: rgb(50, 85, 10), To: rgb(50, 180, 50), Upper: 0.73},
		Band{From: rgb(50, 180, 50), To: rgb(150, 180, 150), Upper: 0.8},
		Band{From: rgb(150, 180, 150), To: white, Upper: 1.000001},
		Band{From: white, To: white, Upper: 10},
	),
	"summer_hot": mustNew(-10,
		Band{From: black, To: rgb(0, 0, 100), Upper: 0},
		Band{From: rgb(0, 0, 100), To: rgb(0, 30, 255), Upper: 0.4},
		Band{From: rgb(0, 30, 255), To: rgb(137, 131, 200), Upper: 0.42},
		Band{From: rgb(137, 131, 200), To: rgb(237, 201, 175), Upper: 0.423},
		Band{From: rgb(237, 201, 175), To: rgb(50, 85, 10), Upper: 0.428},
		Band{From: rgb(50, 85, 10), To: rgb(50, 180, 50), Upper: 0.73},
		Band{From: rgb(50, 180, 50), To: rgb(150, 180, 150), Upper: 0.92},
		Band{From: rgb(150, 180, 150), To: white, Upper: 1.000001},
		Band{From: white, To: white, Upper: 10},
	),
	"winter": mustNew(-10,
		Band{From: black, To: rgb(0, 0, 100), Upper: 0},
		Band{From: rgb(0, 0, 100), To: rgb(30, 30, 150), Upper: 0.3},
		Band{From: rgb(30, 30, 150), To: rgb(50, 50, 255), Upper: 0.52},
		Band{From: rgb(137, 137, 219), To: rgb(190, 190, 230), Upper: 0.603},
		Band{From: rgb(200, 200, 200), To: rgb(200, 200, 230), Upper: 0.7},
		Band{From: rgb(200, 200, 230), To: white, Upper: 1.000001},
		Band{From: white, To: white, Upper: 10},
	),
	"beach": mustNew(0,
		Band{From: rgb(0, 0, 100), To: rgb(0, 100, 255), Upper: 0.4},
		Band{From: rgb(0, 100, 255), To: rgb(0, 206, 209), Upper: 0.5},
		Band{From: rgb(0, 206, 209), To: rgb(0, 85, 0), Upper: 0.6},
		Band{From: rgb(0, 85, 0), To: rgb(50, 200, 50), Upper: 0.75},
		Band{From: rgb(50, 200, 50), To: white, Upper: 1.000001},
	),
	"sharp": mustNew(0,
		Band{From: rgb(0, 0, 100), To: rgb(0, 100, 255), Upper: 0.5},
		Band{From: rgb(0, 85, 0), To: rgb(50, 200, 50), Upper: 0.75},
		Band{From: rgb(50, 200, 50), To: white, Upper: 1.000001},
	),
	"sharp_dry": mustNew(0,
		Band{From: rgb(0, 0, 100), To: rgb(0, 100, 255), Upper: 0.41},
		Band{From: rgb(0, 85, 0), To: rgb(50, 200, 50), Upper: 0.75},
		Band{From: rgb(50, 200, 50), To: white, Upper: 1.000001},
	),
	"sharp_wet": mustNew(0,
		Band{From: rgb(0, 0, 100), To: rgb(0, 100, 255), Upper: 0.6},
		Band{From: rgb(0, 85, 0), To: rgb(50, 200, 50), Upper: 0.75},
		Band{From: rgb(50, 200, 50), To: white, Upper: 1.000001},
	),
	"wet": mustNew(0,
		Band{From: rgb(0, 0, 100), To: rgb(0, 100, 255), Upper: 0.8},
		Band{From: rgb(0, 85, 0), To: rgb(50, 200, 50), Upper: 0.9},
		Band{From: rgb(50, 200, 50), To: white, Upper: 1.000001},
	),
	"blue":     mustNew(0, Band{From: white, To: rgb(0, 0, 255), Upper: 1}),
	"blue2":    mustNew(0, Band{From: rgb(0, 0, 255), To: white, Upper: 1.001}),
	"black":    mustNew(0, Band{From: black, To: white, Upper: 1}),
	"white":    mustNew(0, Band{From: white, To: black, Upper: 1}),
	"gradient": mustNew(0, Band{From: black, To: rgb(0, 0, 255), Upper: 0.5}, Band{From: rgb(0, 0, 255), To: white, Upper: 1}),
	"marble":   mustNew(0, Band{From: rgb(20, 20, 20), To: rgb(220, 245, 220), Upper: 1}),
	"wood":     mustNew(0, Band{From: rgb(102, 51, 0), To: rgb(182, 155, 76), Upper: 1}),
	"stone":    mustNew(0, Band{From: rgb(220, 220, 220), To: black, Upper: 1}),
	"fire": mustNew(0,
		Band{From: black, To: rgb(20, 20, 0), Upper: 0.4},
		Band{From: rgb(20, 20, 0), To: rgb(55, 55, 0), Upper: 0.6},
		Band{From: rgb(55, 55, 0), To: rgb(255, 255, 0), Upper: 0.7},
		Band{From: rgb(255, 255, 0), To: white, Upper: 1.000001},
	),
	"fire2": mustNew(0,
		Band{From: white, To: rgb(255, 255, 155), Upper: 0.2},
		Band{From: rgb(255, 255, 155), To: rgb(195, 98, 81), Upper: 0.3},
		Band{From: rgb(195, 98, 81), To: rgb(182, 84, 71), Upper: 0.32},
		Band{From: rgb(182, 84, 71), To: black, Upper: 0.5},
		Band{From: black, To: black, Upper: 1.01},
	),
	// libnoise's terrain gradient, remapped from [-1,1] to [0,1].
	"libnoise": mustNew(0,
		Band{From: rgb(0, 0, 128), To: rgb(0, 0, 255), Upper: 0.375},
		Band{From: rgb(0, 0, 255), To: rgb(0, 128, 255), Upper: 0.5},
		Band{From: rgb(0, 128, 255), To: rgb(240, 240, 64), Upper: 0.53125},
		Band{From: rgb(240, 240, 64), To: rgb(32, 160, 0), Upper: 0.5625},
		Band{From: rgb(32, 160, 0), To: rgb(224, 224, 0), Upper: 0.6875},
		Band{From: rgb(224, 224, 0), To: rgb(128, 128, 128), Upper: 0.875},
		Band{From: rgb(128, 128, 128), To: white, Upper: 1},
	),
}

func init() {
	lines, err := Contour(black, white, 10)
	if err != nil {
		panic(err)
	}
	presets["contour_lines"] = lines
}

// Preset returns a built-in scale by name.
func Preset(name string) (*Scale, bool) {
	s, ok := presets[name]
	return s, ok
}

// PresetNames lists the built-in scales in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
