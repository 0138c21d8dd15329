package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// ── Domain types for driver payroll ──────────────────────────────────────────

// DriverRecord holds one driver's compensation inputs for the current period.
// All numeric fields must be non-negative; negative values are rejected by the
// calculator, never clamped.
type DriverRecord struct {
	ID           string          `json:"id"`
	DailyRate    decimal.Decimal `json:"daily_rate"`
	HourlyRate   decimal.Decimal `json:"hourly_rate"`
	DaysWorked   decimal.Decimal `json:"days_worked"`
	HoursWorked  decimal.Decimal `json:"hours_worked"`
	OtherExpense decimal.Decimal `json:"other_expense"`
	Notes        string          `json:"notes"`
}

// PayBreakdown is the derived pay for one driver. Never stored on its own,
// only inside a snapshot or archive entry.
type PayBreakdown struct {
	DriverID   string          `json:"driver_id"`
	DailyPay   decimal.Decimal `json:"daily_pay"`
	HourlyPay  decimal.Decimal `json:"hourly_pay"`
	RegularPay decimal.Decimal `json:"regular_pay"`
	TotalPay   decimal.Decimal `json:"total_pay"`
}

// Aggregates are the fleet-wide sums over all included drivers.
type Aggregates struct {
	TotalDailyPay   decimal.Decimal `json:"total_daily_pay"`
	TotalHourlyPay  decimal.Decimal `json:"total_hourly_pay"`
	TotalRegularPay decimal.Decimal `json:"total_regular_pay"`
	TotalExpense    decimal.Decimal `json:"total_expense"`
}

// PayrollSnapshot is the single mutable "current period" document per
// account. Overwritten in place on every save.
type PayrollSnapshot struct {
	DriverRecords map[string]DriverRecord `json:"driver_records"`
	Results       []PayBreakdown          `json:"results"`
	TotalPay      decimal.Decimal         `json:"total_pay"`
	SavedAt       time.Time               `json:"saved_at"`
}

// PayrollArchiveEntry is an immutable, dated record of a finalized payroll
// period. ID is derived deterministically from the pay date so re-archiving
// the same date overwrites the same entry.
type PayrollArchiveEntry struct {
	ID            string                  `json:"id"`
	PeriodStart   string                  `json:"period_start"`
	PeriodEnd     string                  `json:"period_end"`
	PayDate       string                  `json:"pay_date"`
	DriverRecords map[string]DriverRecord `json:"driver_records"`
	Results       []PayBreakdown          `json:"results"`
	TotalPay      decimal.Decimal         `json:"total_pay"`
	Aggregates    Aggregates              `json:"aggregates"`
	Notes         string                  `json:"notes"`
	ArchivedAt    time.Time               `json:"archived_at"`
}

// AuditEntry is one immutable row in the payroll action log. Records who
// performed an action and, when an admin acted on another account, for whom.
type AuditEntry struct {
	ID          int64          `json:"id"`
	AccountID   string         `json:"account_id"`
	ActorEmail  string         `json:"actor_email"`
	ActedAs     bool           `json:"acted_as"`
	Action      string         `json:"action"`
	EntryID     *string        `json:"entry_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	PerformedAt time.Time      `json:"performed_at"`
}
