// Package svg renders folded stacks (and differential folded stacks) into
// an interactive flame-graph SVG document. Grounded on
// _examples/original_source/src/flamegraph/{mod,svg}.rs for element
// ordering, geometry, and the embedded CSS/JS structure; the differential
// coloring formula and the xmlWriter helper are this toolchain's own design
// since the filtered source tree's svg.rs predates inferno's differential
// support (see DESIGN.md).
package svg

import (
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"flamegraph/internal/attrs"
	"flamegraph/internal/collapse"
	"flamegraph/internal/color"
	"flamegraph/internal/merge"
)

// Direction controls whether the root of the flame graph is drawn at the
// bottom of the image (Normal, the classic flame graph) or at the top
// (Inverted, an icicle graph).
type Direction int

const (
	Normal Direction = iota
	Inverted
)

// Geometry constants, in pixels unless noted otherwise.
const (
	defaultImageWidth = 1200
	frameHeight       = 16
	defaultFontSize   = 12
	defaultFontWidth  = 0.59
	defaultMinWidth   = 0.1
	xpad              = 10
	framePad          = 1
)

func ypad1(fontSize int) int { return fontSize * 3 }
func ypad2(fontSize int) int { return fontSize*2 + 10 }

// Options configures one render. Zero value is not directly usable; start
// from DefaultOptions.
type Options struct {
	ImageWidth  int
	FontSize    int
	FontType    string
	FontWidth   float64
	MinWidth    float64
	Title       string
	Subtitle    string
	Notes       string
	CountName   string
	NameType    string
	SearchColor string
	Direction   Direction

	Palette      color.Palette
	Hash         bool
	NegateDiffs  bool
	NoJavaScript bool
	PrettyXML    bool
	NameAttrs    attrs.Map
	PaletteMap   *color.PaletteMap

	// BGColors overrides the palette's default background gradient with an
	// explicit top/bottom color pair. Empty strings mean "use the palette".
	BGColors [2]string
}

// DefaultOptions matches the reference implementation's defaults.
func DefaultOptions() Options {
	return Options{
		ImageWidth:  defaultImageWidth,
		FontSize:    defaultFontSize,
		FontType:    "monospace",
		FontWidth:   defaultFontWidth,
		MinWidth:    defaultMinWidth,
		Title:       "Flame Graph",
		CountName:   "samples",
		NameType:    "Function:",
		SearchColor: "rgb(230,0,230)",
		Direction:   Normal,
		Palette:     color.Default(),
	}
}

type renderFrame struct {
	function string
	depth    int
	x1, x2   int
	y1, y2   int
	count    int
	before   int
	after    int
	isDiff   bool
}

// FromFoldedLines renders a single (non-differential) flame graph from
// sorted "stack count" lines.
func FromFoldedLines(lines []string, w io.Writer, opt Options) error {
	frames, timeMax, ignored := merge.Frames(strings.Join(lines, "\n"))
	return render(frames, timeMax, ignored, nil, w, opt)
}

// FromDiffLines renders a differential flame graph from "stack before
// after" lines (see internal/diff).
func FromDiffLines(lines []string, w io.Writer, opt Options) error {
	diffFrames, _, timeAfter, ignored := merge.FramesDiff(strings.Join(lines, "\n"))
	return render(nil, timeAfter, ignored, diffFrames, w, opt)
}

func render(frames []merge.TimedFrame, timeMax int, ignored int, diffFrames []merge.TimedFrameDiff, w io.Writer, opt Options) error {
	if ignored != 0 {
		// Structural leniency: malformed lines are dropped, not fatal.
	}

	fontSize := opt.FontSize
	if fontSize == 0 {
		fontSize = defaultFontSize
	}
	imageWidth := opt.ImageWidth
	if imageWidth == 0 {
		imageWidth = defaultImageWidth
	}
	fontWidth := opt.FontWidth
	if fontWidth == 0 {
		fontWidth = defaultFontWidth
	}
	minWidth := opt.MinWidth
	if minWidth == 0 {
		minWidth = defaultMinWidth
	}

	x := newXMLWriter(w)

	if timeMax == 0 {
		writeEmptyInputSVG(x, imageWidth, fontSize)
		if err := x.flush(); err != nil {
			return err
		}
		return errors.Wrap(collapse.ErrEmptyInput, "no stack counts found")
	}

	widthPerTime := float64(imageWidth-2*xpad) / float64(timeMax)
	minWidthTime := minWidth / widthPerTime

	renderFrames := make([]renderFrame, 0)
	depthMax := 0

	if diffFrames != nil {
		for _, f := range diffFrames {
			if float64(f.EndAfter-f.StartAfter) < minWidthTime {
				continue
			}
			if f.Location.Depth > depthMax {
				depthMax = f.Location.Depth
			}
			renderFrames = append(renderFrames, renderFrame{
				function: f.Location.Function,
				depth:    f.Location.Depth,
				x1:       xpad + int(float64(f.StartAfter)*widthPerTime),
				x2:       xpad + int(float64(f.EndAfter)*widthPerTime),
				before:   f.EndBefore - f.StartBefore,
				after:    f.EndAfter - f.StartAfter,
				isDiff:   true,
			})
		}
	} else {
		for _, f := range frames {
			if float64(f.EndTime-f.StartTime) < minWidthTime {
				continue
			}
			if f.Location.Depth > depthMax {
				depthMax = f.Location.Depth
			}
			renderFrames = append(renderFrames, renderFrame{
				function: f.Location.Function,
				depth:    f.Location.Depth,
				x1:       xpad + int(float64(f.StartTime)*widthPerTime),
				x2:       xpad + int(float64(f.EndTime)*widthPerTime),
				count:    f.EndTime - f.StartTime,
			})
		}
	}

	imageHeight := (depthMax+1)*frameHeight + ypad1(fontSize) + ypad2(fontSize)
	for i := range renderFrames {
		renderFrames[i].y1, renderFrames[i].y2 = frameY(opt.Direction, renderFrames[i].depth, imageHeight, fontSize)
	}

	writeHeader(x, imageWidth, imageHeight, opt)
	writePrelude(x, imageWidth, imageHeight, fontSize, opt)

	rng := rand.New(rand.NewSource(1))
	for _, f := range renderFrames {
		writeFrame(x, f, timeMax, fontSize, fontWidth, rng, opt)
	}

	x.endTag("g")
	x.endTag("svg")
	return x.flush()
}

func frameY(dir Direction, depth, imageHeight, fontSize int) (int, int) {
	if dir == Inverted {
		y1 := ypad1(fontSize) + depth*frameHeight + framePad
		y2 := ypad1(fontSize) + (depth+1)*frameHeight
		return y1, y2
	}
	y1 := imageHeight - ypad2(fontSize) - (depth+1)*frameHeight + framePad
	y2 := imageHeight - ypad2(fontSize) - depth*frameHeight
	return y1, y2
}

func writeEmptyInputSVG(x *xmlWriter, imageWidth, fontSize int) {
	imageHeight := fontSize * 5
	x.raw(`<?xml version="1.0" standalone="no"?>` + "\n")
	x.raw(`<!DOCTYPE svg PUBLIC "-//W3C//DTD SVG 1.1//EN" "http://www.w3.org/Graphics/SVG/1.1/DTD/svg11.dtd">` + "\n")
	x.startTag("svg", []attr{
		{"version", "1.1"},
		{"width", itoa(imageWidth)},
		{"height", itoa(imageHeight)},
		{"xmlns", "http://www.w3.org/2000/svg"},
	})
	writeText(x, textItem{
		x: float64(imageWidth / 2), y: float64(fontSize * 2),
		color: "black", size: fontSize + 2, anchor: "middle",
		text: "ERROR: No valid input provided to flamegraph",
	})
	x.endTag("svg")
}

func writeHeader(x *xmlWriter, imageWidth, imageHeight int, opt Options) {
	x.raw(`<?xml version="1.0" standalone="no"?>` + "\n")
	x.raw(`<!DOCTYPE svg PUBLIC "-//W3C//DTD SVG 1.1//EN" "http://www.w3.org/Graphics/SVG/1.1/DTD/svg11.dtd">` + "\n")
	x.startTag("svg", []attr{
		{"version", "1.1"},
		{"width", itoa(imageWidth)},
		{"height", itoa(imageHeight)},
		{"onload", "init(evt)"},
		{"viewBox", fmt.Sprintf("0 0 %d %d", imageWidth, imageHeight)},
		{"xmlns", "http://www.w3.org/2000/svg"},
		{"xmlns:xlink", "http://www.w3.org/1999/xlink"},
	})
	x.comment("Flame graph stack visualization. See https://github.com/brendangregg/FlameGraph for the original tool.")
	x.comment("NOTES: " + escapeText(opt.Notes))
}

func writePrelude(x *xmlWriter, imageWidth, imageHeight, fontSize int, opt Options) {
	bg1, bg2 := color.BGColorFor(opt.Palette)
	if opt.BGColors[0] != "" {
		bg1 = opt.BGColors[0]
	}
	if opt.BGColors[1] != "" {
		bg2 = opt.BGColors[1]
	}

	x.startTag("defs", nil)
	x.startTag("linearGradient", []attr{{"id", "background"}, {"y1", "0"}, {"y2", "1"}, {"x1", "0"}, {"x2", "0"}})
	x.selfClosing("stop", []attr{{"stop-color", bg1}, {"offset", "5%"}})
	x.selfClosing("stop", []attr{{"stop-color", bg2}, {"offset", "95%"}})
	x.endTag("linearGradient")
	x.endTag("defs")

	x.startTag("style", []attr{{"type", "text/css"}})
	titleSize := fontSize + 5
	x.raw(fmt.Sprintf("\ntext { font-family:%s; font-size:%dpx; fill:rgb(0,0,0); }\n#title { text-anchor:middle; font-size:%dpx; }\n%s",
		strconv.Quote(opt.FontType), fontSize, titleSize, mustAsset("flamegraph.css")))
	x.endTag("style")

	x.startTag("script", []attr{{"type", "text/ecmascript"}})
	x.cdata(fmt.Sprintf("\nvar nametype = '%s';\nvar fontsize = %d;\nvar fontwidth = %s;\nvar xpad = %d;\nvar inverted = %v;\nvar searchcolor = '%s';",
		opt.NameType, fontSize, ftoa2(opt.FontWidth), xpad, opt.Direction == Inverted, opt.SearchColor))
	if !opt.NoJavaScript {
		x.cdata(mustAsset("flamegraph.js"))
	}
	x.endTag("script")

	x.selfClosing("rect", []attr{
		{"x", "0"}, {"y", "0"}, {"width", itoa(imageWidth)}, {"height", itoa(imageHeight)}, {"fill", "url(#background)"},
	})

	writeText(x, textItem{x: float64(imageWidth / 2), y: float64(fontSize * 2), anchor: "middle", text: opt.Title, id: "title"})
	if opt.Subtitle != "" {
		writeText(x, textItem{x: float64(imageWidth / 2), y: float64(fontSize * 4), anchor: "middle", text: opt.Subtitle, id: "subtitle"})
	}
	writeText(x, textItem{x: xpad, y: float64(imageHeight - ypad2(fontSize)/2), text: " ", id: "details"})
	writeText(x, textItem{x: xpad, y: float64(fontSize * 2), text: "Reset Zoom", id: "unzoom", class: "hide"})
	writeText(x, textItem{x: float64(imageWidth - xpad - 100), y: float64(fontSize * 2), text: "Search", id: "search"})
	writeText(x, textItem{x: float64(imageWidth - xpad - 100), y: float64(imageHeight - ypad2(fontSize)/2), text: " ", id: "matched"})

	x.startTag("g", []attr{{"id", "frames"}})
	// note: <g id="frames"> is not part of the original element ordering,
	// but gives the embedded JS a stable container to enumerate children of
	// during zoom/search instead of scanning the whole document.
}

func deannotate(f string) string {
	if strings.HasSuffix(f, "]") {
		if ai := strings.LastIndex(f, "_["); ai >= 0 && len(f[ai:]) == 4 {
			if strings.ContainsRune("kwij", rune(f[ai+2])) {
				return f[:ai]
			}
		}
	}
	return f
}

func thousandsSep(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

func writeFrame(x *xmlWriter, f renderFrame, timeMax, fontSize int, fontWidth float64, rng *rand.Rand, opt Options) {
	name := deannotate(f.function)

	var info string
	var fillColor color.RGB
	if f.isDiff {
		pctBefore := 100 * float64(f.before) / float64(timeMax)
		pctAfter := 100 * float64(f.after) / float64(timeMax)
		if name == "" && f.depth == 0 {
			info = fmt.Sprintf("all (%s before, %s after)", thousandsSep(f.before), thousandsSep(f.after))
		} else {
			info = fmt.Sprintf("%s (%.2f%% -> %.2f%%)", name, pctBefore, pctAfter)
		}
		fillColor = diffColor(f.before, f.after, opt.NegateDiffs)
	} else {
		if name == "" && f.depth == 0 {
			info = fmt.Sprintf("all (%s %s, 100%%)", thousandsSep(f.count), opt.CountName)
		} else {
			pct := 100 * float64(f.count) / float64(timeMax)
			info = fmt.Sprintf("%s (%s %s, %.2f%%)", name, thousandsSep(f.count), opt.CountName, pct)
		}
		fillColor = colorFor(name, opt, rng)
	}

	var fa attrsOverride
	if opt.NameAttrs != nil {
		if found, ok := opt.NameAttrs.For(f.function); ok {
			fa = attrsOverride{found}
		}
	}

	gAttrs := []attr{{"class", "func_g"}, {"onmouseover", "s(this)"}, {"onmouseout", "c()"}, {"onclick", "zoom(this)"}}
	gAttrs = append(gAttrs, fa.extraG()...)
	x.startTag("g", gAttrs)

	x.startTag("title", nil)
	x.text(fa.title(info))
	x.endTag("title")

	href, hasHref := fa.href()
	if hasHref {
		x.startTag("a", []attr{{"xlink:href", href}})
	}

	x.selfClosing("rect", []attr{
		{"x", itoa(f.x1)}, {"y", itoa(f.y1)},
		{"width", itoa(f.x2 - f.x1)}, {"height", itoa(f.y2 - f.y1)},
		{"fill", fillColor.String()},
	})

	fitChars := int(float64(f.x2-f.x1) / (float64(fontSize) * fontWidth))
	label := ""
	if fitChars >= 3 {
		runes := []rune(name)
		if len(runes) < fitChars {
			label = name
		} else {
			label = string(runes[:fitChars-2]) + ".."
		}
	}
	writeText(x, textItem{x: float64(f.x1) + 3, y: 3 + float64(f.y1+f.y2)/2, text: label})

	if hasHref {
		x.endTag("a")
	}
	x.endTag("g")
}

func colorFor(name string, opt Options, rng *rand.Rand) color.RGB {
	compute := func(n string) color.RGB { return color.Color(opt.Palette, opt.Hash, n, rng) }
	if opt.PaletteMap != nil {
		return opt.PaletteMap.FindColorFor(name, compute)
	}
	return compute(name)
}

// diffColor maps a frame's before/after sample counts to a red/blue hue: red
// for an increase, blue for a decrease, with saturation scaling toward white
// as the relative change shrinks toward zero.
func diffColor(before, after int, negate bool) color.RGB {
	delta := after - before
	if negate {
		delta = -delta
	}
	denom := before
	if after > denom {
		denom = after
	}
	var ratio float64
	if denom > 0 {
		ratio = float64(delta) / float64(denom)
	}
	if ratio > 1 {
		ratio = 1
	}
	if ratio < -1 {
		ratio = -1
	}
	if ratio >= 0 {
		v := uint8(255 - 210*ratio)
		return color.RGB{R: 255, G: v, B: v}
	}
	v := uint8(255 - 210*(-ratio))
	return color.RGB{R: v, G: v, B: 255}
}

// attrsOverride wraps a possibly-absent attrs.FrameAttrs lookup so callers
// don't need to branch on "found" everywhere it's used.
type attrsOverride struct {
	fa attrs.FrameAttrs
}

func (a attrsOverride) title(fallback string) string {
	if a.fa.HasTitle {
		return a.fa.Title
	}
	return fallback
}

func (a attrsOverride) extraG() []attr {
	var out []attr
	for _, kv := range a.fa.Extra {
		if kv.Name == "href" {
			continue
		}
		out = append(out, attr{kv.Name, kv.Value})
	}
	return out
}

func (a attrsOverride) href() (string, bool) {
	for _, kv := range a.fa.Extra {
		if kv.Name == "href" {
			return kv.Value, true
		}
	}
	return "", false
}
