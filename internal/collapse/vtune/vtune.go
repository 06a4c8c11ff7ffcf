// Package vtune collapses Intel VTune "Function Stack" CSV exports into
// folded stacks. VTune ships no single canonical export shape (bottom-up
// tree export vs. top-down full-stack export); this reader accepts both,
// grounded on the indent-tree idiom shared with the sample and pmc parsers
// and on stdlib encoding/csv for quoted-field handling.
package vtune

import (
	"bufio"
	"encoding/csv"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"flamegraph/internal/collapse"
	"flamegraph/internal/occurrence"
)

// Options configures the vtune collapser. All options default to off.
type Options struct {
	// NoModules suppresses the "module`" prefix on function names.
	NoModules bool
}

// Folder is a stack collapser for VTune CSV exports.
type Folder struct {
	opt    Options
	stack  []string
	header bool
}

// New constructs a Folder.
func New(opt Options) *Folder { return &Folder{opt: opt} }

func (f *Folder) PreProcess(r *bufio.Reader, occ occurrence.Map) error {
	// The first row is always a header (e.g. "Function Stack,CPU Time:Self");
	// it carries no data and is discarded.
	_, err := collapse.ReadLine(r)
	if err != nil {
		log.Warn("File ended before header row")
	}
	return nil
}

func parseCSVLine(line string) ([]string, bool) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.FieldsPerRecord = -1
	rec, err := cr.Read()
	if err != nil {
		return nil, false
	}
	return rec, true
}

func looksNumeric(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

func (f *Folder) CollapseSingleThreaded(r *bufio.Reader, occ occurrence.Map) error {
	for {
		raw, err := collapse.ReadLine(r)
		if err != nil {
			break
		}
		line := strings.TrimRight(raw, "\r\n")
		if line == "" {
			continue
		}

		fields, ok := parseCSVLine(line)
		if !ok || len(fields) < 2 {
			log.Warnf("Malformed vtune row, skipping:\n%s", line)
			continue
		}

		f.onRow(fields, occ)
	}
	return nil
}

func (f *Folder) WouldEndStack(line []byte) bool {
	return len(strings.TrimSpace(string(line))) == 0
}

func (f *Folder) IsApplicable(sample string) *bool {
	sc := bufio.NewScanner(strings.NewReader(sample))
	if !sc.Scan() {
		return nil
	}
	header := sc.Text()
	res := strings.Contains(header, "Function Stack") && strings.Contains(header, "CPU Time")
	return &res
}

func (f *Folder) CloneAndResetStackContext() collapse.Collapser {
	return New(f.opt)
}

// onRow interprets one data row. If the first column contains "->" it is a
// full root-first stack (the top-down export flavor); otherwise it is an
// indent-depth marker against a bottom-up tree, matching the indent idiom
// used by the sample and pmc parsers.
func (f *Folder) onRow(fields []string, occ occurrence.Map) {
	selfTime := ""
	selfIdx := -1
	for i := 1; i < len(fields); i++ {
		if looksNumeric(fields[i]) {
			selfTime = fields[i]
			selfIdx = i
			break
		}
	}
	if selfIdx < 0 {
		log.Warnf("No self-time column found in vtune row: %v", fields)
		return
	}

	var moduleParts []string
	for i := selfIdx + 1; i < len(fields); i++ {
		if !looksNumeric(fields[i]) && strings.TrimSpace(fields[i]) != "" {
			moduleParts = append(moduleParts, fields[i])
		}
	}

	samples, err := strconv.ParseFloat(selfTime, 64)
	if err != nil {
		log.Warnf("Invalid self-time field: %s", selfTime)
		return
	}

	col0 := fields[0]
	if strings.Contains(col0, "->") {
		frames := strings.Split(col0, "->")
		for i := range frames {
			frames[i] = strings.TrimSpace(frames[i])
		}
		if !f.opt.NoModules && len(moduleParts) > 0 {
			last := len(frames) - 1
			frames[last] = strings.Join(moduleParts, " ") + "`" + frames[last]
		}
		occ.InsertOrAdd(strings.Join(frames, ";"), int64(samples))
		return
	}

	depth := indentDepth(col0)
	for len(f.stack) > depth {
		f.stack = f.stack[:len(f.stack)-1]
	}
	name := strings.TrimSpace(col0)
	if name == "" && len(fields) > 1 {
		name = strings.TrimSpace(fields[1])
	}
	if !f.opt.NoModules && len(moduleParts) > 0 {
		name = strings.Join(moduleParts, " ") + "`" + name
	}
	f.stack = append(f.stack[:depth], name)
	occ.InsertOrAdd(strings.Join(f.stack, ";"), int64(samples))
}

func indentDepth(col string) int {
	if n, err := strconv.Atoi(strings.TrimSpace(col)); err == nil {
		return n
	}
	depth := 0
	for _, c := range col {
		if c == ' ' || c == '\t' {
			depth++
		} else {
			break
		}
	}
	return depth
}
