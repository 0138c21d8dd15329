package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/haulways/be-driver-payroll/internal/errors"
	"github.com/haulways/be-driver-payroll/internal/repository"
)

func seededService(t *testing.T) *PayrollService {
	t.Helper()
	svc := newTestService(newFakeSnapshotStore(), newFakeArchiveStore(), nil)
	records := map[string]repository.DriverRecord{
		"A": rec("A", "10", "250", "0", "25", "0"),
		"B": rec("B", "5", "0", "8", "20", "50"),
	}
	if _, _, err := svc.SaveSnapshot(context.Background(), Actor{}, "acct-1", records); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return svc
}

func TestExportCSV(t *testing.T) {
	svc := seededService(t)

	data, err := svc.ExportCSV(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows=%d", len(rows))
	}
	if rows[0][0] != "Driver" || rows[0][9] != "TotalPay" || rows[0][10] != "Notes" {
		t.Fatalf("header=%v", rows[0])
	}

	// Driver rows are ordered by id; TotalPay column sums to the aggregate
	// to the cent.
	if rows[1][0] != "A" || rows[2][0] != "B" {
		t.Fatalf("order: %q, %q", rows[1][0], rows[2][0])
	}
	sum := decimal.Zero
	for _, row := range rows[1:] {
		v, err := decimal.NewFromString(row[9])
		if err != nil {
			t.Fatalf("total cell %q: %v", row[9], err)
		}
		sum = sum.Add(v)
	}
	if sum.StringFixed(2) != "2710.00" {
		t.Fatalf("column sum=%s", sum.StringFixed(2))
	}
	if rows[2][9] != "210.00" {
		t.Fatalf("B total=%q", rows[2][9])
	}
}

func TestExportJSON_RoundTripsThroughImport(t *testing.T) {
	svc := seededService(t)

	data, err := svc.ExportJSON(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	var doc BackupDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.DriverRecords) != 2 || doc.TotalPay.StringFixed(2) != "2710.00" {
		t.Fatalf("records=%d total=%s", len(doc.DriverRecords), doc.TotalPay.StringFixed(2))
	}

	// Restoring the export into a fresh account reproduces the state.
	snap, err := svc.ImportBackup(context.Background(), Actor{}, "acct-2", data)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if snap.TotalPay.StringFixed(2) != "2710.00" {
		t.Fatalf("total=%s", snap.TotalPay.StringFixed(2))
	}
	a := snap.DriverRecords["A"]
	if !a.DailyRate.Equal(decimal.RequireFromString("250")) || !a.DaysWorked.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("record A=%+v", a)
	}
}

func TestImportBackup_RejectsBadDocuments(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"driver_records": `},
		{"no records", `{"driver_records": {}}`},
		{"empty key", `{"driver_records": {"": {"daily_rate": "100"}}}`},
		{"mismatched id", `{"driver_records": {"A": {"id": "B", "daily_rate": "100"}}}`},
		{"negative rate", `{"driver_records": {"A": {"daily_rate": "-1"}}}`},
		{"negative days", `{"driver_records": {"A": {"daily_rate": "100", "days_worked": "-2"}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snaps := newFakeSnapshotStore()
			svc := newTestService(snaps, newFakeArchiveStore(), nil)

			_, err := svc.ImportBackup(context.Background(), Actor{}, "acct-1", []byte(tc.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.CodeOf(err) != errors.ErrCodeInvalidInput {
				t.Fatalf("code=%s", errors.CodeOf(err))
			}
			if snaps.saves != 0 {
				t.Fatal("rejected import must not write anything")
			}
		})
	}
}

func TestExportXLSX(t *testing.T) {
	svc := seededService(t)

	data, err := svc.ExportXLSX(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	// header + 2 drivers + totals
	if len(rows) != 4 {
		t.Fatalf("rows=%d", len(rows))
	}
	if rows[0][0] != "Driver" {
		t.Fatalf("header=%v", rows[0])
	}
	last := rows[3]
	if last[0] != "Total" || last[9] != "2710.00" {
		t.Fatalf("totals row=%v", last)
	}
}
