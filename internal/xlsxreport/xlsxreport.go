// Package xlsxreport exports a top-frames summary of a folded profile to an
// xlsx workbook. Grounded on internal/report/render_excel.go's cell-naming
// and bold-header styling idiom, retargeted from PerfSpect's multi-field
// system tables to a single ranked frame/time/percent table.
package xlsxreport

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"flamegraph/internal/merge"
)

// SheetName is the single worksheet this report writes to.
const SheetName = "Top Frames"

// TopFrame is one ranked row: a function name and its aggregated inclusive
// time across every stack it appears in, as a fraction of the profile total.
type TopFrame struct {
	Function string
	Time     int64
	Percent  float64
}

// TopFrames aggregates frames by function name (summing inclusive time
// across every depth/stack the function appears at) and returns the top n
// by time, descending. n <= 0 returns every frame. The merger's unnamed
// depth-0 root frame is left out.
func TopFrames(frames []merge.TimedFrame, totalTime int, n int) []TopFrame {
	byFunc := make(map[string]int64)
	for _, f := range frames {
		if f.Location.Depth == 0 {
			continue
		}
		byFunc[f.Location.Function] += int64(f.EndTime - f.StartTime)
	}

	out := make([]TopFrame, 0, len(byFunc))
	for name, t := range byFunc {
		var pct float64
		if totalTime > 0 {
			pct = 100 * float64(t) / float64(totalTime)
		}
		out = append(out, TopFrame{Function: name, Time: t, Percent: pct})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time > out[j].Time
		}
		return out[i].Function < out[j].Function
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func cellName(col, row int) string {
	columnName, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return ""
	}
	name, err := excelize.JoinCellName(columnName, row)
	if err != nil {
		return ""
	}
	return name
}

// Render writes a workbook with one sheet listing rows (already limited to
// the caller's desired top-N) as Function / Time / Percent columns.
func Render(rows []TopFrame, countName string) ([]byte, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(SheetName, "A", "A", 40)
	_ = f.SetColWidth(SheetName, "B", "C", 16)

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	row := 1
	headers := []string{"Function", fmt.Sprintf("%s (self+children)", countName), "Percent"}
	for col, h := range headers {
		cell := cellName(col+1, row)
		_ = f.SetCellValue(SheetName, cell, h)
		_ = f.SetCellStyle(SheetName, cell, cell, headerStyle)
	}
	row++

	for _, r := range rows {
		_ = f.SetCellValue(SheetName, cellName(1, row), r.Function)
		_ = f.SetCellValue(SheetName, cellName(2, row), r.Time)
		_ = f.SetCellValue(SheetName, cellName(3, row), fmt.Sprintf("%.2f%%", r.Percent))
		row++
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if _, err := f.WriteTo(w); err != nil {
		return nil, fmt.Errorf("failed to write xlsx report to buffer: %w", err)
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
