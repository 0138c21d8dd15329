package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/haulways/be-driver-payroll/internal/errors"
	"github.com/haulways/be-driver-payroll/internal/repository"
)

// csvHeader is the export table shape consumed by the office spreadsheet
// templates. Column order is part of the contract.
var csvHeader = []string{
	"Driver", "Days", "DailyRate", "DailyPay", "Hours", "HourlyRate",
	"HourlyPay", "Expense", "RegularPay", "TotalPay", "Notes",
}

// BackupDocument is the JSON backup/restore shape: the full driver record
// map plus the derived results, for human inspection of the backup.
type BackupDocument struct {
	DriverRecords map[string]repository.DriverRecord `json:"driver_records"`
	Results       []repository.PayBreakdown          `json:"results"`
	TotalPay      decimal.Decimal                    `json:"total_pay"`
	Notes         string                             `json:"notes"`
}

// ExportCSV renders the account's current pay summary as CSV: one row per
// included driver, monetary fields at exactly two decimal places.
func (s *PayrollService) ExportCSV(ctx context.Context, accountID string) ([]byte, error) {
	snap, err := s.GetSnapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	agg := s.aggregate(accountID, snap.DriverRecords)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to write csv header")
	}

	for _, b := range agg.Results {
		rec := snap.DriverRecords[b.DriverID]
		row := []string{
			b.DriverID,
			rec.DaysWorked.String(),
			rec.DailyRate.StringFixed(2),
			b.DailyPay.StringFixed(2),
			rec.HoursWorked.String(),
			rec.HourlyRate.StringFixed(2),
			b.HourlyPay.StringFixed(2),
			rec.OtherExpense.StringFixed(2),
			b.RegularPay.StringFixed(2),
			b.TotalPay.StringFixed(2),
			rec.Notes,
		}
		if err := w.Write(row); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to write csv row")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to flush csv")
	}
	return buf.Bytes(), nil
}

// ExportJSON renders the account's current state as a backup document.
func (s *PayrollService) ExportJSON(ctx context.Context, accountID string) ([]byte, error) {
	snap, err := s.GetSnapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	agg := s.aggregate(accountID, snap.DriverRecords)

	doc := BackupDocument{
		DriverRecords: snap.DriverRecords,
		Results:       agg.Results,
		TotalPay:      agg.TotalPay,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to encode backup document")
	}
	return data, nil
}

// ImportBackup restores a JSON backup into the account's snapshot. The whole
// document is validated before anything is applied: a malformed document, an
// empty or mismatched map key, or a negative numeric field rejects the import
// with no partial merge.
func (s *PayrollService) ImportBackup(ctx context.Context, actor Actor, accountID string, data []byte) (*repository.PayrollSnapshot, error) {
	var doc BackupDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "malformed backup document")
	}
	if len(doc.DriverRecords) == 0 {
		return nil, errors.InvalidInput("driver_records", "backup contains no driver records")
	}
	if err := validateRecordMap(doc.DriverRecords); err != nil {
		return nil, err
	}

	records := make(map[string]repository.DriverRecord, len(doc.DriverRecords))
	for key, rec := range doc.DriverRecords {
		if rec.ID == "" {
			rec.ID = key
		}
		if field := firstNegativeField(rec); field != "" {
			return nil, errors.InvalidInput(field, "is negative for driver "+key)
		}
		records[key] = rec
	}

	agg := s.aggregate(accountID, records)
	snap := &repository.PayrollSnapshot{
		DriverRecords: records,
		Results:       agg.Results,
		TotalPay:      agg.TotalPay,
	}
	if err := s.snapshots.Save(ctx, accountID, snap); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account_id", accountID).
		Int("driver_count", len(records)).
		Msg("backup imported")
	s.appendAudit(ctx, actor, accountID, "backup_imported", nil, map[string]any{
		"driver_count": len(records),
	})
	return snap, nil
}

// ExportXLSX renders the pay summary as a spreadsheet with a totals row.
func (s *PayrollService) ExportXLSX(ctx context.Context, accountID string) ([]byte, error) {
	snap, err := s.GetSnapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	agg := s.aggregate(accountID, snap.DriverRecords)

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, header := range csvHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to write xlsx header")
		}
	}

	row := 2
	for _, b := range agg.Results {
		rec := snap.DriverRecords[b.DriverID]
		values := []any{
			b.DriverID,
			rec.DaysWorked.String(),
			rec.DailyRate.StringFixed(2),
			b.DailyPay.StringFixed(2),
			rec.HoursWorked.String(),
			rec.HourlyRate.StringFixed(2),
			b.HourlyPay.StringFixed(2),
			rec.OtherExpense.StringFixed(2),
			b.RegularPay.StringFixed(2),
			b.TotalPay.StringFixed(2),
			rec.Notes,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to write xlsx row")
			}
		}
		row++
	}

	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "Total")
	_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), agg.Aggregates.TotalDailyPay.StringFixed(2))
	_ = f.SetCellValue(sheet, fmt.Sprintf("G%d", row), agg.Aggregates.TotalHourlyPay.StringFixed(2))
	_ = f.SetCellValue(sheet, fmt.Sprintf("H%d", row), agg.Aggregates.TotalExpense.StringFixed(2))
	_ = f.SetCellValue(sheet, fmt.Sprintf("I%d", row), agg.Aggregates.TotalRegularPay.StringFixed(2))
	_ = f.SetCellValue(sheet, fmt.Sprintf("J%d", row), agg.TotalPay.StringFixed(2))

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to render xlsx")
	}
	return buf.Bytes(), nil
}
