// Package diff combines two folded-stack profiles ("before" and "after")
// into the three-column format the differential flame graph renderer
// consumes: `stack first second`. Grounded on
// _examples/original_source/src/diff_folded/mod.rs.
package diff

import (
	"bufio"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Options configures the differential combiner.
type Options struct {
	// Normalize scales the first profile's counts to match the second
	// profile's total, so the red/blue spectrum isn't dominated by a
	// shift in overall sample volume between the two profiles.
	Normalize bool
	// StripHex replaces hex addresses ("0x45ef2173") with "0x..." so
	// stacks that only differ by an ASLR'd address still merge.
	StripHex bool
}

type counts struct {
	first, second int64
}

// FromReaders merges folded stacks from before and after, writing
// "stack first second" lines sorted by stack to w.
func FromReaders(opt Options, before, after io.Reader, w io.Writer) error {
	stackCounts := make(map[string]*counts)

	total1, err := parseStackCounts(opt, stackCounts, before, true)
	if err != nil {
		return err
	}
	total2, err := parseStackCounts(opt, stackCounts, after, false)
	if err != nil {
		return err
	}

	if opt.Normalize && total1 != total2 && total1 != 0 {
		for _, c := range stackCounts {
			c.first = c.first * total2 / total1
		}
	}

	return writeStacks(stackCounts, w)
}

func parseStackCounts(opt Options, stackCounts map[string]*counts, r io.Reader, isFirst bool) (int64, error) {
	var total int64
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		stack, count, ok := parseLine(line, opt.StripHex)
		if !ok {
			log.Warnf("Unable to parse line: %s", line)
			continue
		}
		c, exists := stackCounts[stack]
		if !exists {
			c = &counts{}
			stackCounts[stack] = c
		}
		if isFirst {
			c.first += count
		} else {
			c.second += count
		}
		total += count
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return total, nil
}

func writeStacks(stackCounts map[string]*counts, w io.Writer) error {
	stacks := make([]string, 0, len(stackCounts))
	for stack := range stackCounts {
		stacks = append(stacks, stack)
	}
	sort.Strings(stacks)

	bw := bufio.NewWriter(w)
	for _, stack := range stacks {
		c := stackCounts[stack]
		if _, err := bw.WriteString(stack); err != nil {
			return err
		}
		if _, err := bw.WriteString(" "); err != nil {
			return err
		}
		if _, err := bw.WriteString(strconv.FormatInt(c.first, 10)); err != nil {
			return err
		}
		if _, err := bw.WriteString(" "); err != nil {
			return err
		}
		if _, err := bw.WriteString(strconv.FormatInt(c.second, 10)); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func parseLine(line string, stripHex bool) (string, int64, bool) {
	idx := strings.LastIndexByte(line, ' ')
	if idx < 0 {
		return "", 0, false
	}
	countText := strings.TrimRight(line[idx+1:], " \t\r")
	count, err := strconv.ParseInt(countText, 10, 64)
	if err != nil {
		return "", 0, false
	}
	stack := strings.TrimRight(line[:idx], " \t")
	if stripHex {
		stack = stripHexAddress(stack)
	}
	return stack, count, true
}

var hexRun = regexp.MustCompile(`0x[0-9a-fA-F]+`)

// stripHexAddress replaces every "0x<hexdigits>" run with "0x...".
func stripHexAddress(stack string) string {
	return hexRun.ReplaceAllString(stack, "0x...")
}
