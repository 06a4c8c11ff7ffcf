package flamegraph

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"flamegraph/internal/attrs"
	"flamegraph/internal/color"
	"flamegraph/internal/merge"
	"flamegraph/internal/svg"
	"flamegraph/internal/xlsxreport"
)

const cmdRenderName = "render"

var (
	flagCP          string
	flagHash        bool
	flagInverted    bool
	flagNegate      bool
	flagNoSort      bool
	flagPrettyXML   bool
	flagRenderRev   bool
	flagColors      string
	flagBGColors    string
	flagCountName   string
	flagFactor      float64
	flagFontSize    int
	flagFontType    string
	flagFontWidth   float64
	flagHeight      int
	flagMinWidth    float64
	flagNameAttrs   string
	flagNameType    string
	flagNotes       string
	flagSearchColor string
	flagSubtitle    string
	flagTitle       string
	flagWidth       int
	flagXlsxSummary string
	flagForce       bool
)

var renderCmd = &cobra.Command{
	Use:           fmt.Sprintf("%s [input-path]", cmdRenderName),
	Short:         "Render folded (or differential-folded) stacks into an SVG flame graph",
	Example:       fmt.Sprintf("  $ %s %s out.folded > out.svg", appName, cmdRenderName),
	RunE:          runRender,
	PreRunE:       validateRenderFlags,
	Args:          cobra.MaximumNArgs(1),
	SilenceErrors: true,
}

func init() {
	def := svg.DefaultOptions()

	renderCmd.Flags().StringVar(&flagCP, "cp", "", "")
	renderCmd.Flags().BoolVar(&flagHash, "hash", false, "")
	renderCmd.Flags().BoolVarP(&flagInverted, "inverted", "i", false, "")
	renderCmd.Flags().BoolVar(&flagNegate, "negate", false, "")
	renderCmd.Flags().BoolVar(&flagNoSort, "no-sort", false, "")
	renderCmd.Flags().BoolVar(&flagPrettyXML, "pretty-xml", false, "")
	renderCmd.Flags().BoolVar(&flagRenderRev, "reverse", false, "")
	renderCmd.Flags().StringVar(&flagColors, "colors", "hot", "")
	renderCmd.Flags().StringVar(&flagBGColors, "bgcolors", "", "")
	renderCmd.Flags().StringVar(&flagCountName, "countname", def.CountName, "")
	renderCmd.Flags().Float64Var(&flagFactor, "factor", 1.0, "")
	renderCmd.Flags().IntVar(&flagFontSize, "fontsize", def.FontSize, "")
	renderCmd.Flags().StringVar(&flagFontType, "fonttype", def.FontType, "")
	renderCmd.Flags().Float64Var(&flagFontWidth, "fontwidth", def.FontWidth, "")
	renderCmd.Flags().IntVar(&flagHeight, "height", 0, "")
	renderCmd.Flags().Float64Var(&flagMinWidth, "minwidth", def.MinWidth, "")
	renderCmd.Flags().StringVar(&flagNameAttrs, "nameattr", "", "")
	renderCmd.Flags().StringVar(&flagNameType, "nametype", def.NameType, "")
	renderCmd.Flags().StringVar(&flagNotes, "notes", "", "")
	renderCmd.Flags().StringVar(&flagSearchColor, "search-color", def.SearchColor, "")
	renderCmd.Flags().StringVar(&flagSubtitle, "subtitle", "", "")
	renderCmd.Flags().StringVar(&flagTitle, "title", def.Title, "")
	renderCmd.Flags().IntVar(&flagWidth, "width", def.ImageWidth, "")
	renderCmd.Flags().StringVar(&flagXlsxSummary, "xlsx-summary", "", "")
	renderCmd.Flags().BoolVar(&flagForce, "force", false, "")

	if defaults.Palette != "" {
		flagColors = defaults.Palette
	}
	if defaults.ImageWidth > 0 {
		flagWidth = defaults.ImageWidth
	}
	if defaults.FontSize > 0 {
		flagFontSize = defaults.FontSize
	}
	if defaults.MinWidth > 0 {
		flagMinWidth = defaults.MinWidth
	}
	if defaults.CountName != "" {
		flagCountName = defaults.CountName
	}
	if defaults.Title != "" {
		flagTitle = defaults.Title
	}

	renderCmd.SetUsageFunc(renderUsageFunc)
}

func renderUsageFunc(cmd *cobra.Command) error {
	cmd.Printf("Usage: %s [flags]\n\n", cmd.CommandPath())
	cmd.Printf("Examples:\n%s\n\n", cmd.Example)
	printFlagGroups(cmd, getRenderFlagGroups())
	return nil
}

func getRenderFlagGroups() []FlagGroup {
	return []FlagGroup{
		{GroupName: "Appearance", Flags: []Flag{
			{Name: "title", Help: "title text"},
			{Name: "subtitle", Help: "subtitle text"},
			{Name: "notes", Help: "notes text, shown in the embedded search box area"},
			{Name: "colors", Help: "color palette: hot, mem, io, red, green, blue, yellow, purple, orange, aqua, java, js, perl, wakeup"},
			{Name: "bgcolors", Help: "background color, one of the named palettes, or two comma-separated colors for a gradient"},
			{Name: "hash", Help: "color by function name hash instead of a random shade"},
			{Name: "cp", Help: "path to a palette-map file for a consistent palette across renders"},
			{Name: "countname", Help: "count label, e.g. samples, ms, bytes"},
			{Name: "nametype", Help: "name label, e.g. \"Function:\""},
			{Name: "fonttype", Help: "font family"},
			{Name: "fontsize", Help: "font size in pixels"},
			{Name: "fontwidth", Help: "average font character width, as a multiple of font size"},
			{Name: "search-color", Help: "highlight color used by the search feature"},
		}},
		{GroupName: "Geometry", Flags: []Flag{
			{Name: "width", Help: "image width in pixels"},
			{Name: "height", Help: "informational only: frame height is fixed, image height follows stack depth"},
			{Name: "minwidth", Help: "frames narrower than this many pixels are omitted"},
			{Name: "inverted", Help: "icicle graph: root at top"},
			{Name: "reverse", Help: "reverse stack order before merging (leaf-first input)"},
		}},
		{GroupName: "Data", Flags: []Flag{
			{Name: "negate", Help: "flip the differential color direction"},
			{Name: "no-sort", Help: "skip sorting input lines before merging"},
			{Name: "factor", Help: "multiply every stack's count by this factor before rendering"},
			{Name: "nameattr", Help: "path to a --nameattr custom frame-attribute file"},
			{Name: "xlsx-summary", Help: "path to also write a top-frames-by-time xlsx workbook"},
		}},
		{GroupName: "Output", Flags: []Flag{
			{Name: "pretty-xml", Help: "indent the output XML for readability"},
			{Name: "force", Help: "write SVG output even if stdout is a terminal"},
		}},
	}
}

func validateRenderFlags(cmd *cobra.Command, args []string) error {
	if flagFactor <= 0 {
		return errors.New("--factor must be greater than 0")
	}
	if flagWidth <= 0 {
		return errors.New("--width must be greater than 0")
	}
	if flagFontSize <= 0 {
		return errors.New("--fontsize must be greater than 0")
	}
	if !flagForce && term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("refusing to write SVG output to a terminal; redirect stdout or pass --force")
	}
	return nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read input")
	}
	return lines, nil
}

// isDiffFormat peeks at the field count of the first data line: folded
// lines are "stack count" (2 fields), differential lines are
// "stack first second" (3 fields).
func isDiffFormat(lines []string) bool {
	for _, l := range lines {
		return len(strings.Fields(l)) >= 3
	}
	return false
}

func scaleLine(line string, factor float64) string {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return line
	}
	stack := strings.Join(fields[:len(fields)-1], " ")
	n, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return line
	}
	return fmt.Sprintf("%s %d", stack, int64(float64(n)*factor))
}

func reverseStackFrames(line string) string {
	sp := strings.LastIndex(line, " ")
	if sp < 0 {
		return line
	}
	stack, rest := line[:sp], line[sp:]
	frames := strings.Split(stack, ";")
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
	return strings.Join(frames, ";") + rest
}

func runRender(cmd *cobra.Command, args []string) error {
	in, err := openInput(args)
	if err != nil {
		return err
	}
	defer in.Close()

	lines, err := readLines(in)
	if err != nil {
		return err
	}

	if flagRenderRev {
		for i, l := range lines {
			lines[i] = reverseStackFrames(l)
		}
	}
	if flagFactor != 1.0 {
		for i, l := range lines {
			lines[i] = scaleLine(l, flagFactor)
		}
	}
	if !flagNoSort {
		sort.Strings(lines)
	}

	opt := svg.DefaultOptions()
	opt.ImageWidth = flagWidth
	opt.FontSize = flagFontSize
	opt.FontType = flagFontType
	opt.FontWidth = flagFontWidth
	opt.MinWidth = flagMinWidth
	opt.Title = flagTitle
	opt.Subtitle = flagSubtitle
	opt.Notes = flagNotes
	opt.CountName = flagCountName
	opt.NameType = flagNameType
	opt.SearchColor = flagSearchColor
	opt.NegateDiffs = flagNegate
	opt.PrettyXML = flagPrettyXML
	opt.Hash = flagHash
	if flagBGColors != "" {
		parts := strings.SplitN(flagBGColors, ",", 2)
		opt.BGColors[0] = strings.TrimSpace(parts[0])
		if len(parts) == 2 {
			opt.BGColors[1] = strings.TrimSpace(parts[1])
		}
	}
	if flagInverted {
		opt.Direction = svg.Inverted
	}

	palette, err := color.Parse(flagColors)
	if err != nil {
		return err
	}
	opt.Palette = palette

	if flagNameAttrs != "" {
		m, err := attrs.Load(flagNameAttrs)
		if err != nil {
			return errors.Wrapf(err, "failed to load %s", flagNameAttrs)
		}
		opt.NameAttrs = m
	}

	if flagCP != "" {
		pm, err := color.LoadPaletteMap(flagCP)
		if err != nil {
			return errors.Wrapf(err, "failed to load palette map %s", flagCP)
		}
		opt.PaletteMap = pm
	}

	var out io.Writer = os.Stdout
	diff := isDiffFormat(lines)
	if diff {
		log.Debug("detected three-field differential input")
		err = svg.FromDiffLines(lines, out, opt)
	} else {
		err = svg.FromFoldedLines(lines, out, opt)
	}

	if flagCP != "" && opt.PaletteMap != nil {
		if saveErr := opt.PaletteMap.Save(flagCP); saveErr != nil {
			log.Warnf("failed to persist palette map: %v", saveErr)
		}
	}

	if flagXlsxSummary != "" && !diff {
		if xerr := writeXlsxSummary(lines); xerr != nil {
			log.Warnf("failed to write xlsx summary: %v", xerr)
		}
	}

	return err
}

func writeXlsxSummary(lines []string) error {
	frames, total, _ := merge.Frames(strings.Join(lines, "\n"))
	top := xlsxreport.TopFrames(frames, total, 50)
	book, err := xlsxreport.Render(top, flagCountName)
	if err != nil {
		return err
	}
	return os.WriteFile(flagXlsxSummary, book, 0o644)
}
