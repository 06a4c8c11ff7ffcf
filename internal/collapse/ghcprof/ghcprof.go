// Package ghcprof collapses GHC .prof profile reports into folded stacks.
// Grounded on _examples/original_source/src/collapse/ghcprof.rs.
package ghcprof

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"flamegraph/internal/collapse"
	"flamegraph/internal/occurrence"
)

// Source selects which column supplies the per-frame cost value.
type Source int

const (
	// PercentTime uses the %time column (default).
	PercentTime Source = iota
	// Ticks uses the ticks column.
	Ticks
	// Bytes uses the bytes column.
	Bytes
)

var startLine = []string{"COST", "CENTRE", "MODULE", "SRC", "no.", "entries", "%time", "%alloc", "%time", "%alloc"}

// Options configures the ghcprof collapser.
type Options struct {
	// Source selects the cost column. Defaults to PercentTime.
	Source Source
}

type cols struct {
	costCentre int
	module     int
	source     int
}

// Folder is a stack collapser for GHC .prof reports.
type Folder struct {
	currentCost int64
	stack       []string
	opt         Options
}

// New constructs a Folder.
func New(opt Options) *Folder { return &Folder{opt: opt} }

func matchesHeader(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < len(startLine) {
		return false
	}
	for i, w := range startLine {
		if fields[i] != w {
			return false
		}
	}
	return true
}

func (f *Folder) PreProcess(r *bufio.Reader, occ occurrence.Map) error {
	return nil
}

func findCols(line string, source Source) (cols, error) {
	module := strings.Index(line, startLine[2])
	if module < 0 {
		module = 0
	}
	var src int
	switch source {
	case PercentTime:
		idx := strings.Index(line, "%time")
		if idx < 0 {
			return cols{}, errors.New("ghcprof: header missing %time column")
		}
		src = idx
	case Ticks:
		idx := strings.LastIndex(line, "%alloc")
		if idx < 0 {
			return cols{}, errors.New("ghcprof: header missing %alloc column")
		}
		src = idx + 6
	case Bytes:
		idx := strings.LastIndex(line, "ticks")
		if idx < 0 {
			return cols{}, errors.New("ghcprof: header missing ticks column")
		}
		src = idx + 5
	}
	return cols{costCentre: 0, module: module, source: src}, nil
}

func (f *Folder) CollapseSingleThreaded(r *bufio.Reader, occ occurrence.Map) error {
	var c cols
	found := false
	for {
		line, err := collapse.ReadLine(r)
		if err != nil {
			log.Warn("File ended before start of call graph")
			return nil
		}
		if matchesHeader(line) {
			var cerr error
			c, cerr = findCols(line, f.opt.Source)
			if cerr != nil {
				return errors.Wrap(collapse.ErrInvalidData, cerr.Error())
			}
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	// Skip the separator line under the header.
	if _, err := collapse.ReadLine(r); err != nil {
		return nil
	}

	for {
		raw, err := collapse.ReadLine(r)
		if err != nil {
			break
		}
		line := strings.TrimRight(raw, "\r\n")
		if line == "" {
			break
		}
		if err := f.onLine(line, occ, c); err != nil {
			return err
		}
	}

	f.currentCost = 0
	f.stack = nil
	return nil
}

func (f *Folder) WouldEndStack(line []byte) bool {
	return len(strings.TrimRight(string(line), "\r\n")) == 0
}

func (f *Folder) IsApplicable(sample string) *bool {
	sc := bufio.NewScanner(strings.NewReader(sample))
	for sc.Scan() {
		if matchesHeader(sc.Text()) {
			res := true
			return &res
		}
	}
	return nil
}

func (f *Folder) CloneAndResetStackContext() collapse.Collapser {
	return New(f.opt)
}

// stringRange extracts the whitespace-delimited token starting at or after
// the rune offset colStart, operating on runes (not bytes) since cost
// centre and module names may be non-ASCII.
func stringRange(line string, colStart int) string {
	runes := []rune(line)
	if colStart > len(runes) {
		colStart = len(runes)
	}
	rest := runes[colStart:]
	i := 0
	for i < len(rest) && rest[i] == ' ' {
		i++
	}
	j := i
	for j < len(rest) && rest[j] != ' ' && rest[j] != '\t' && rest[j] != '\n' {
		j++
	}
	return string(rest[i:j])
}

// onLine handles call graph lines of the form:
//
//	MAIN           MAIN ...
//	 CAF           Options.Applicative.Builder ...
//	  defaultPrefs Options.Applicative.Builder ...
func (f *Folder) onLine(line string, occ occurrence.Map, c cols) error {
	indentChars := 0
	for indentChars < len(line) && line[indentChars] == ' ' {
		indentChars++
	}
	if indentChars == len(line) {
		return nil
	}

	prevLen := len(f.stack)
	depth := indentChars

	if depth < prevLen {
		f.stack = f.stack[:depth]
	} else if depth != prevLen {
		return errors.Wrapf(collapse.ErrInvalidData, "skipped indentation level at line:\n%s", line)
	}

	costStr := strings.TrimSpace(stringRange(line, c.source))
	cost, err := strconv.ParseFloat(costStr, 64)
	if err != nil {
		return errors.Wrapf(collapse.ErrInvalidData, "invalid cost field: %q", costStr)
	}

	fn := strings.TrimSpace(stringRange(line, c.costCentre))
	module := strings.TrimSpace(stringRange(line, c.module))

	switch f.opt.Source {
	case PercentTime:
		f.currentCost = int64(cost * 10.0)
	default:
		f.currentCost = int64(cost)
	}

	f.stack = append(f.stack, module+"."+fn)
	occ.InsertOrAdd(strings.Join(f.stack, ";"), f.currentCost)
	return nil
}
