package service

import (
	"github.com/shopspring/decimal"

	"github.com/haulways/be-driver-payroll/internal/repository"
)

// defaultRoster is the fleet's standing driver list with their agreed rates.
// A fresh snapshot (first access, or the reset after archiving) starts from
// this set.
var defaultRoster = []repository.DriverRecord{
	{ID: "Adisu J", DailyRate: dec("250"), HourlyRate: dec("25"), DaysWorked: dec("10"), Notes: "-"},
	{ID: "Barnabas", DailyRate: dec("230"), HourlyRate: dec("23"), DaysWorked: dec("10"), Notes: "-"},
	{ID: "Birhanu", DailyRate: dec("230"), HourlyRate: dec("23"), DaysWorked: dec("10"), Notes: "-"},
	{ID: "Daniel", DailyRate: dec("250"), HourlyRate: dec("25"), DaysWorked: dec("12")},
	{ID: "Dawit", DailyRate: dec("230"), HourlyRate: dec("23"), DaysWorked: dec("10"), Notes: "-"},
	{ID: "Ephrem", DailyRate: dec("275"), HourlyRate: dec("25"), DaysWorked: dec("10"), Notes: "-"},
	{ID: "Eshetu", DailyRate: dec("230"), HourlyRate: dec("23"), DaysWorked: dec("10"), Notes: "-"},
	{ID: "Eyouel", DailyRate: dec("230"), HourlyRate: dec("23"), DaysWorked: dec("10"), Notes: "-"},
	{ID: "Feleke", DailyRate: dec("275"), HourlyRate: dec("25"), DaysWorked: dec("12"), Notes: "-"},
	{ID: "Kaleab", DailyRate: dec("312"), HourlyRate: dec("26"), DaysWorked: dec("10"), Notes: "-"},
	{ID: "Keun", DailyRate: dec("308"), HourlyRate: dec("28"), DaysWorked: dec("10"), Notes: "-"},
	{ID: "Kirubel", DailyRate: dec("230"), DaysWorked: dec("10"), Notes: "-"},
	{ID: "Mulugeta", DailyRate: dec("230"), HourlyRate: dec("25"), DaysWorked: dec("10"), Notes: "-"},
	{ID: "Mussie", DailyRate: dec("250"), HourlyRate: dec("25"), DaysWorked: dec("10"), Notes: "-"},
	{ID: "Semira", DailyRate: dec("172.5"), DaysWorked: dec("8"), Notes: "-"},
	{ID: "Tekle", DailyRate: dec("324"), HourlyRate: dec("27"), DaysWorked: dec("10"), Notes: "-"},
	{ID: "Yared", DailyRate: dec("275"), HourlyRate: dec("25"), DaysWorked: dec("8"), Notes: "-"},
	{ID: "Yordanos", DailyRate: dec("324"), DaysWorked: dec("12"), Notes: "-"},
	{ID: "Zebib", DailyRate: dec("230"), HourlyRate: dec("23"), DaysWorked: dec("6"), Notes: "-"},
	{ID: "Zekarias", DailyRate: dec("275"), HourlyRate: dec("25"), DaysWorked: dec("10"), Notes: "-"},
}

// DefaultDriverRecords returns a fresh copy of the default roster keyed by
// driver id.
func DefaultDriverRecords() map[string]repository.DriverRecord {
	records := make(map[string]repository.DriverRecord, len(defaultRoster))
	for _, rec := range defaultRoster {
		records[rec.ID] = rec
	}
	return records
}

// DefaultSnapshot returns the snapshot an account starts from: the default
// roster, no computed results, zero total.
func DefaultSnapshot() *repository.PayrollSnapshot {
	return &repository.PayrollSnapshot{
		DriverRecords: DefaultDriverRecords(),
		Results:       []repository.PayBreakdown{},
		TotalPay:      decimal.Zero,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
