package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func sampleTable() table {
	return table{
		Sheet:  "Checklist",
		Header: []string{"Code", "Activity", "Weight", "Created"},
		Rows: [][]any{
			{int64(1), "Vault count", decimal.RequireFromString("12.5"), time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
			{int64(2), "Dual control", decimal.NewFromInt(5), time.Time{}},
		},
	}
}

func TestWriteExportCSV(t *testing.T) {
	rec := httptest.NewRecorder()
	writeExport(rec, httptest.NewRequest(http.MethodGet, "/x?format=csv", nil), "pmsf_master", sampleTable())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[1] != "1,Vault count,12.50,2025-01-02 03:04:05" {
		t.Fatalf("unexpected row %q", lines[1])
	}
	if lines[2] != "2,Dual control,5.00," {
		t.Fatalf("unexpected row %q", lines[2])
	}
}

func TestWriteExportXLSX(t *testing.T) {
	rec := httptest.NewRecorder()
	writeExport(rec, httptest.NewRequest(http.MethodGet, "/x", nil), "pmsf_master", sampleTable())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Checklist")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 || rows[0][1] != "Activity" || rows[2][1] != "Dual control" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if got, _ := f.GetCellValue("Checklist", "C2"); got != "12.5" {
		t.Fatalf("expected numeric weight 12.5, got %q", got)
	}
}

func TestWriteExportRejectsUnknownFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	writeExport(rec, httptest.NewRequest(http.MethodGet, "/x?format=pdf", nil), "x", sampleTable())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
