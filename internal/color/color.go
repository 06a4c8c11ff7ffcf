// Package color computes per-frame RGB colors for the SVG renderer: a set
// of named palettes, a deterministic name-hash mode, and a persistent
// palette map for stable colors across repeated renders. Grounded on
// _examples/original_source/src/flamegraph/color/{mod,palettes}.rs.
package color

import (
	"math/rand"
	"strings"
)

// RGB is a single 8-bit-per-channel color.
type RGB struct {
	R, G, B uint8
}

// VDGrey and DGrey are the fixed frame-border and "ignored" colors used by
// the SVG renderer outside of the palette system.
var (
	VDGrey = RGB{160, 160, 160}
	DGrey  = RGB{200, 200, 200}
)

var (
	yellowGradient = [2]string{"#eeeeee", "#eeeeb0"}
	blueGradient   = [2]string{"#eeeeee", "#e0e0ff"}
	grayGradient   = [2]string{"#f8f8f8", "#e8e8e8"}
)

// BasicPalette is one of the fixed hue families every Palette ultimately
// resolves to before computing an RGB triple.
type BasicPalette int

const (
	Hot BasicPalette = iota
	Mem
	Io
	Red
	Green
	Blue
	Aqua
	Yellow
	Purple
	Orange
)

// MultiPalette picks a BasicPalette per-frame based on the frame's name,
// mimicking language-specific conventions (Java package prefixes, Perl
// module syntax, and so on).
type MultiPalette int

const (
	Java MultiPalette = iota
	Js
	Perl
	Wakeup
)

// Palette is either a single fixed BasicPalette or a name-sensitive
// MultiPalette.
type Palette struct {
	basic   BasicPalette
	multi   MultiPalette
	isMulti bool
}

// Default returns the flame-graph default palette (basic "hot").
func Default() Palette { return Palette{basic: Hot} }

// Parse resolves a palette name as accepted by the --colors flag.
func Parse(s string) (Palette, error) {
	switch s {
	case "hot":
		return Palette{basic: Hot}, nil
	case "mem":
		return Palette{basic: Mem}, nil
	case "io":
		return Palette{basic: Io}, nil
	case "red":
		return Palette{basic: Red}, nil
	case "green":
		return Palette{basic: Green}, nil
	case "blue":
		return Palette{basic: Blue}, nil
	case "aqua":
		return Palette{basic: Aqua}, nil
	case "yellow":
		return Palette{basic: Yellow}, nil
	case "purple":
		return Palette{basic: Purple}, nil
	case "orange":
		return Palette{basic: Orange}, nil
	case "wakeup":
		return Palette{multi: Wakeup, isMulti: true}, nil
	case "java":
		return Palette{multi: Java, isMulti: true}, nil
	case "js":
		return Palette{multi: Js, isMulti: true}, nil
	case "perl":
		return Palette{multi: Perl, isMulti: true}, nil
	default:
		return Palette{}, unknownPaletteError(s)
	}
}

type unknownPaletteError string

func (e unknownPaletteError) Error() string { return "unknown color palette: " + string(e) }

// namehashVariables accumulates the weighted per-character hash described in
// the ported source: each character contributes less than the last, and the
// modulo widens every step so repeated characters don't saturate the
// accumulator.
type namehashVariables struct {
	vector, weight, max float32
	modulo              uint8
}

func newNamehashVariables() namehashVariables {
	return namehashVariables{vector: 0, weight: 1, max: 1, modulo: 10}
}

func (n *namehashVariables) update(character byte) {
	i := float32(character % n.modulo)
	n.vector += (i / float32(n.modulo-1)) * n.weight
	n.modulo++
	n.max += n.weight
	n.weight *= 0.70
}

func (n *namehashVariables) result() float32 {
	return 1.0 - n.vector/n.max
}

// namehash produces a weighted hash of name biased toward its early bytes
// (after skipping a `module`backtick-delimited prefix, if present) so that
// function names sharing a module or outer scope tend toward similar but
// distinct colors.
func namehash(name []byte) float32 {
	vars := newNamehashVariables()
	if len(name) == 0 {
		return vars.result()
	}

	i := 0
	vars.update(name[i])
	i++

	moduleNameFound := false
	limit := i + 3
	if limit > len(name) {
		limit = len(name)
	}
	for ; i < limit; i++ {
		if name[i] == '`' {
			moduleNameFound = true
			i++
			break
		}
		vars.update(name[i])
	}

	if !moduleNameFound {
		for j := i; j < len(name); j++ {
			if name[j] == '`' {
				moduleNameFound = true
				i = j + 1
				break
			}
		}
	}

	if moduleNameFound {
		vars = newNamehashVariables()
		limit := i + 3
		if limit > len(name) {
			limit = len(name)
		}
		for ; i < limit; i++ {
			vars.update(name[i])
		}
	}

	return vars.result()
}

func reversed(b []byte) []byte {
	r := make([]byte, len(b))
	for i, c := range b {
		r[len(b)-1-i] = c
	}
	return r
}

func tComponent(base uint8, amplitude float32, x float32) uint8 {
	return base + uint8(amplitude*x)
}

func rgbForBasic(b BasicPalette, v1, v2, v3 float32) RGB {
	switch b {
	case Hot:
		return RGB{tComponent(205, 50, v3), tComponent(0, 230, v1), tComponent(0, 55, v2)}
	case Mem:
		return RGB{tComponent(0, 0, v3), tComponent(190, 50, v2), tComponent(0, 210, v1)}
	case Io:
		return RGB{tComponent(80, 60, v1), tComponent(80, 60, v1), tComponent(190, 55, v2)}
	case Red:
		return RGB{tComponent(200, 55, v1), tComponent(50, 80, v1), tComponent(50, 80, v1)}
	case Green:
		return RGB{tComponent(50, 60, v1), tComponent(200, 55, v1), tComponent(50, 60, v1)}
	case Blue:
		return RGB{tComponent(80, 60, v1), tComponent(80, 60, v1), tComponent(205, 50, v1)}
	case Yellow:
		return RGB{tComponent(175, 55, v1), tComponent(175, 55, v1), tComponent(50, 20, v1)}
	case Purple:
		return RGB{tComponent(190, 65, v1), tComponent(80, 60, v1), tComponent(190, 65, v1)}
	case Aqua:
		return RGB{tComponent(50, 60, v1), tComponent(165, 55, v1), tComponent(165, 55, v1)}
	case Orange:
		return RGB{tComponent(190, 65, v1), tComponent(90, 65, v1), tComponent(0, 0, v1)}
	default:
		return RGB{tComponent(205, 50, v3), tComponent(0, 230, v1), tComponent(0, 55, v2)}
	}
}

func resolveBasic(p Palette, name string) BasicPalette {
	if !p.isMulti {
		return p.basic
	}
	switch p.multi {
	case Java:
		return resolveJava(name)
	case Perl:
		return resolvePerl(name)
	case Js:
		return resolveJs(name)
	case Wakeup:
		return resolveWakeup(name)
	default:
		return Hot
	}
}

// Color computes the RGB color for name under palette. When hash is true the
// color is a deterministic function of name; otherwise each channel is drawn
// from rng, matching the reference implementation's non-deterministic mode.
func Color(palette Palette, hash bool, name string, rng *rand.Rand) RGB {
	var v1, v2, v3 float32
	if hash {
		nameBytes := []byte(name)
		nameHash := namehash(nameBytes)
		reverseHash := namehash(reversed(nameBytes))
		v1, v2, v3 = nameHash, reverseHash, reverseHash
	} else {
		v1, v2, v3 = rng.Float32(), rng.Float32(), rng.Float32()
	}
	return rgbForBasic(resolveBasic(palette, name), v1, v2, v3)
}

// BGColorFor returns the background gradient stop colors used behind the
// whole flame graph for the given palette.
func BGColorFor(palette Palette) (string, string) {
	if !palette.isMulti && palette.basic == Hot {
		return yellowGradient[0], yellowGradient[1]
	}
	if palette.isMulti && (palette.multi == Java || palette.multi == Js || palette.multi == Perl) {
		return yellowGradient[0], yellowGradient[1]
	}
	if !palette.isMulti && palette.basic == Mem {
		return blueGradient[0], blueGradient[1]
	}
	return grayGradient[0], grayGradient[1]
}

// String renders a color as an SVG rgb() literal.
func (c RGB) String() string {
	var b strings.Builder
	b.WriteString("rgb(")
	writeUint8(&b, c.R)
	b.WriteByte(',')
	writeUint8(&b, c.G)
	b.WriteByte(',')
	writeUint8(&b, c.B)
	b.WriteByte(')')
	return b.String()
}

func writeUint8(b *strings.Builder, v uint8) {
	if v >= 100 {
		b.WriteByte('0' + v/100)
		v %= 100
		b.WriteByte('0' + v/10)
		b.WriteByte('0' + v%10)
		return
	}
	if v >= 10 {
		b.WriteByte('0' + v/10)
		b.WriteByte('0' + v%10)
		return
	}
	b.WriteByte('0' + v)
}
