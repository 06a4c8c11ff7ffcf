// Package config loads the optional repository-level defaults file that
// seeds palette, worker-count, and SVG dimension flags before command-line
// flags are parsed. Grounded on the teacher's targets-file loader
// (internal/common/targets.go: os.ReadFile + yaml.Unmarshal into a tagged
// struct), generalized from a list-of-remote-targets shape to a single
// flat defaults shape.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Defaults holds the subset of render/collapse options a user can pin in
// the defaults file. Flags always win: a command loads Defaults first,
// then only fills zero-valued flag fields from it.
type Defaults struct {
	Palette    string  `yaml:"palette"`
	Nthreads   int     `yaml:"nthreads"`
	ImageWidth int     `yaml:"image_width"`
	FontSize   int     `yaml:"font_size"`
	MinWidth   float64 `yaml:"min_width"`
	CountName  string  `yaml:"count_name"`
	Title      string  `yaml:"title"`
}

// Path returns the default config file location: $XDG_CONFIG_HOME (or
// ~/.config if unset) / flamegraph / config.yaml.
func Path() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "flamegraph", "config.yaml"), nil
}

// Load reads and parses the defaults file at path. A missing file yields
// the zero Defaults (i.e. no overrides) rather than an error, matching how
// the feature is entirely opt-in.
func Load(path string) (Defaults, error) {
	var d Defaults
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return d, err
	}
	if err := yaml.Unmarshal(b, &d); err != nil {
		return Defaults{}, err
	}
	return d, nil
}

// LoadDefault loads from the standard Path location.
func LoadDefault() (Defaults, error) {
	path, err := Path()
	if err != nil {
		return Defaults{}, err
	}
	return Load(path)
}
