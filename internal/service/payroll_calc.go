package service

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/haulways/be-driver-payroll/internal/errors"
	"github.com/haulways/be-driver-payroll/internal/repository"
)

// ComputePay derives one driver's pay breakdown:
//
//	daily_pay   = days_worked  × daily_rate
//	hourly_pay  = hours_worked × hourly_rate
//	regular_pay = daily_pay + hourly_pay
//	total_pay   = regular_pay + other_expense
//
// Pure and exact for non-negative inputs. A negative numeric field yields an
// INVALID_INPUT error naming the field; values are never clamped.
func ComputePay(rec repository.DriverRecord) (repository.PayBreakdown, error) {
	if field := firstNegativeField(rec); field != "" {
		return repository.PayBreakdown{}, errors.InvalidInput(field, "must not be negative")
	}

	dailyPay := rec.DaysWorked.Mul(rec.DailyRate)
	hourlyPay := rec.HoursWorked.Mul(rec.HourlyRate)
	regularPay := dailyPay.Add(hourlyPay)

	return repository.PayBreakdown{
		DriverID:   rec.ID,
		DailyPay:   dailyPay,
		HourlyPay:  hourlyPay,
		RegularPay: regularPay,
		TotalPay:   regularPay.Add(rec.OtherExpense),
	}, nil
}

// ExcludedDriver names a driver left out of an aggregation and why.
type ExcludedDriver struct {
	DriverID string `json:"driver_id"`
	Reason   string `json:"reason"`
}

// AggregateResult is a full recomputation over a driver record map. Drivers
// with invalid inputs are excluded from both the list and every sum, but are
// reported rather than silently dropped so callers can surface them.
type AggregateResult struct {
	Results    []repository.PayBreakdown `json:"results"`
	Excluded   []ExcludedDriver          `json:"excluded"`
	TotalPay   decimal.Decimal           `json:"total_pay"`
	Aggregates repository.Aggregates     `json:"aggregates"`
}

// Aggregate applies ComputePay across the whole record map. Results are
// ordered by driver id ascending; the order is stable across runs. The
// aggregation holds no state and is always recomputed from scratch.
func Aggregate(records map[string]repository.DriverRecord) AggregateResult {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := AggregateResult{
		Results:  make([]repository.PayBreakdown, 0, len(records)),
		Excluded: []ExcludedDriver{},
		TotalPay: decimal.Zero,
		Aggregates: repository.Aggregates{
			TotalDailyPay:   decimal.Zero,
			TotalHourlyPay:  decimal.Zero,
			TotalRegularPay: decimal.Zero,
			TotalExpense:    decimal.Zero,
		},
	}

	for _, id := range ids {
		rec := records[id]
		if rec.ID == "" {
			rec.ID = id
		}

		breakdown, err := ComputePay(rec)
		if err != nil {
			out.Excluded = append(out.Excluded, ExcludedDriver{
				DriverID: id,
				Reason:   errors.MessageOf(err),
			})
			continue
		}

		out.Results = append(out.Results, breakdown)
		out.TotalPay = out.TotalPay.Add(breakdown.TotalPay)
		out.Aggregates.TotalDailyPay = out.Aggregates.TotalDailyPay.Add(breakdown.DailyPay)
		out.Aggregates.TotalHourlyPay = out.Aggregates.TotalHourlyPay.Add(breakdown.HourlyPay)
		out.Aggregates.TotalRegularPay = out.Aggregates.TotalRegularPay.Add(breakdown.RegularPay)
		out.Aggregates.TotalExpense = out.Aggregates.TotalExpense.Add(rec.OtherExpense)
	}

	return out
}

func firstNegativeField(rec repository.DriverRecord) string {
	switch {
	case rec.DailyRate.IsNegative():
		return "daily_rate"
	case rec.HourlyRate.IsNegative():
		return "hourly_rate"
	case rec.DaysWorked.IsNegative():
		return "days_worked"
	case rec.HoursWorked.IsNegative():
		return "hours_worked"
	case rec.OtherExpense.IsNegative():
		return "other_expense"
	default:
		return ""
	}
}
