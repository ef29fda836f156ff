package handler

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// table is a header plus rows ready for spreadsheet export.
type table struct {
	Sheet  string
	Header []string
	Rows   [][]any
}

// writeExport streams t as csv or xlsx depending on the format query
// parameter (default xlsx).
func writeExport(w http.ResponseWriter, r *http.Request, name string, t table) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}
	filename := fmt.Sprintf("%s_%s", name, time.Now().Format("20060102_150405"))

	switch format {
	case "csv":
		data, err := exportCSV(t)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to build export")
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))
		_, _ = w.Write(data)
	case "xlsx", "excel":
		data, err := exportXLSX(t)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to build export")
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))
		_, _ = w.Write(data)
	default:
		writeError(w, http.StatusBadRequest, "invalid format (use csv or xlsx)")
	}
}

func exportCSV(t table) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	_ = w.Write(t.Header)
	for _, row := range t.Rows {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = cellString(v)
		}
		_ = w.Write(rec)
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func exportXLSX(t table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	index, err := f.NewSheet(t.Sheet)
	if err != nil {
		return nil, err
	}
	if t.Sheet != "Sheet1" {
		_ = f.DeleteSheet("Sheet1")
	}
	f.SetActiveSheet(index)

	if err := f.SetSheetRow(t.Sheet, "A1", &t.Header); err != nil {
		return nil, err
	}
	for i, row := range t.Rows {
		cells := make([]any, len(row))
		for c, v := range row {
			// Decimals go in as numbers so the sheet can sum them.
			if d, ok := v.(decimal.Decimal); ok {
				v = d.InexactFloat64()
			}
			cells[c] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(t.Sheet, cell, &cells); err != nil {
			return nil, err
		}
	}

	last, _ := excelize.ColumnNumberToName(len(t.Header))
	_ = f.SetColWidth(t.Sheet, "A", last, 18)
	style, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#1F2937"}, Pattern: 1},
	})
	_ = f.SetCellStyle(t.Sheet, "A1", last+"1", style)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case decimal.Decimal:
		return x.StringFixed(2)
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(x)
	}
}
