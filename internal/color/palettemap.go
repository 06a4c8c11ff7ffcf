package color

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// PaletteMap persists a stable name->color assignment across renders so
// repeated flame graphs over an evolving profile keep the same function
// colored the same way, even outside hash mode. Grounded on
// _examples/original_source/src/flamegraph/color/palette_map.rs.
//
// Unlike the ported source's line parser (which computes its comma-split
// indices relative to a substring but slices the original string, an
// off-by-one that would misparse colors with multi-digit components), this
// parser is strict: a malformed line is a load error, not silently
// mis-colored data.
type PaletteMap struct {
	colors map[string]RGB
}

// LoadPaletteMap reads a palette map file written by Save. A missing file is
// not an error: it means this is the first run with a consistent palette.
func LoadPaletteMap(path string) (*PaletteMap, error) {
	pm := &PaletteMap{colors: make(map[string]RGB)}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return pm, nil
		}
		return nil, errors.Wrapf(err, "opening palette map %q", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		name, rgbText, ok := strings.Cut(line, "->")
		if !ok {
			return nil, errors.Errorf("palette map %q line %d: missing \"->\" separator", path, lineNo)
		}
		rgb, err := parseRGBString(rgbText)
		if err != nil {
			return nil, errors.Wrapf(err, "palette map %q line %d", path, lineNo)
		}
		pm.colors[name] = rgb
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading palette map %q", path)
	}
	return pm, nil
}

// Save writes the palette map back out, sorted by name to match the
// reference Perl implementation's output ordering.
func (pm *PaletteMap) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating palette map %q", path)
	}
	defer f.Close()

	names := make([]string, 0, len(pm.colors))
	for name := range pm.colors {
		names = append(names, name)
	}
	sort.Strings(names)

	w := bufio.NewWriter(f)
	for _, name := range names {
		c := pm.colors[name]
		if _, err := fmt.Fprintf(w, "%s->rgb(%d,%d,%d)\n", name, c.R, c.G, c.B); err != nil {
			return err
		}
	}
	return w.Flush()
}

// FindColorFor returns the color previously assigned to name, computing and
// recording one via compute if this is the first time name is seen.
func (pm *PaletteMap) FindColorFor(name string, compute func(name string) RGB) RGB {
	if c, ok := pm.colors[name]; ok {
		return c
	}
	c := compute(name)
	pm.colors[name] = c
	return c
}

func parseRGBString(s string) (RGB, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "rgb(") || !strings.HasSuffix(s, ")") {
		return RGB{}, errors.Errorf("invalid color %q: expected rgb(r,g,b)", s)
	}
	inner := s[len("rgb(") : len(s)-1]
	parts := strings.Split(inner, ",")
	if len(parts) != 3 {
		return RGB{}, errors.Errorf("invalid color %q: expected 3 components", s)
	}

	var vals [3]uint8
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return RGB{}, errors.Wrapf(err, "invalid color component %q", p)
		}
		vals[i] = uint8(n)
	}
	return RGB{R: vals[0], G: vals[1], B: vals[2]}, nil
}
