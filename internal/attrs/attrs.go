// Package attrs parses the --nameattr custom frame-attributes file: a
// line-oriented "function\tkey=value\tkey=value..." format that lets callers
// merge extra attributes (most commonly a clickable href) onto specific
// frames' <g> elements in the rendered SVG. Grounded on
// _examples/original_source/src/flamegraph/attrs.rs, simplified to the
// single merged-attribute-set model this toolchain's renderer uses instead
// of the original's separate title/g/a attribute groups.
package attrs

import (
	"bufio"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// KV is one extra attribute to merge onto a frame's <g> element.
type KV struct {
	Name, Value string
}

// FrameAttrs is the parsed attribute set for a single function name.
type FrameAttrs struct {
	// Title, if set, overrides the dynamically generated <title> text for
	// this frame.
	Title string
	// HasTitle distinguishes an explicit empty title from "not set".
	HasTitle bool
	Extra    []KV
}

// Map is a FuncFrameAttrsMap: per-function custom attribute overrides.
type Map map[string]FrameAttrs

// Load parses a nameattr file from disk. A missing file is treated as "no
// overrides" rather than an error, matching how the renderer treats the
// feature as opt-in.
func Load(path string) (Map, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Map{}, nil
		}
		return nil, err
	}
	defer f.Close()
	return FromReader(f)
}

// FromReader parses the nameattr format from r.
func FromReader(r io.Reader) (Map, error) {
	m := make(Map)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		funcName, rest, ok := strings.Cut(line, "\t")
		if funcName == "" {
			continue
		}

		fa := m[funcName]
		if ok {
			for _, nameval := range strings.Split(rest, "\t") {
				name, value, ok := strings.Cut(nameval, "=")
				name = strings.TrimSpace(name)
				if name == "" {
					continue
				}
				if !ok {
					log.Warnf("no value after \"=\" for extra attribute %s", name)
					continue
				}
				value = strings.TrimSpace(value)
				if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
					value = value[1 : len(value)-1]
				}

				switch name {
				case "title":
					fa.Title = value
					fa.HasTitle = true
				default:
					fa.Extra = append(fa.Extra, KV{Name: name, Value: value})
				}
			}
		}
		m[funcName] = fa
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// For returns the attribute overrides for a function name, if any.
func (m Map) For(function string) (FrameAttrs, bool) {
	fa, ok := m[function]
	return fa, ok
}
