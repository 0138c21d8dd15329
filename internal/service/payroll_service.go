package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/haulways/be-driver-payroll/internal/errors"
	"github.com/haulways/be-driver-payroll/internal/repository"
)

// SnapshotStore persists the single mutable snapshot per account.
type SnapshotStore interface {
	Get(ctx context.Context, accountID string) (*repository.PayrollSnapshot, error)
	Save(ctx context.Context, accountID string, snap *repository.PayrollSnapshot) error
}

// ArchiveStore persists finalized payroll periods, overwrite-by-id.
type ArchiveStore interface {
	Put(ctx context.Context, accountID string, entry *repository.PayrollArchiveEntry) error
	Get(ctx context.Context, accountID, entryID string) (*repository.PayrollArchiveEntry, error)
	ListIDs(ctx context.Context, accountID string) ([]string, error)
}

// AuditStore records payroll actions. Optional; a nil store disables auditing.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*repository.AuditEntry, error)
}

// Notifier publishes payroll events. Optional and always best-effort.
type Notifier interface {
	PublishPayrollEvent(ctx context.Context, eventType, accountID, actorEmail, entryID string, payload map[string]any)
}

// Actor identifies who is performing an operation. ActedAs is true when an
// admin is operating on another account's data.
type Actor struct {
	Email   string
	ActedAs bool
}

// PayrollService handles payroll business logic: the current snapshot, pay
// computation, and the archive/reset workflow.
type PayrollService struct {
	snapshots SnapshotStore
	archives  ArchiveStore
	audit     AuditStore
	notifier  Notifier
	log       zerolog.Logger
}

// NewPayrollService creates a new payroll service. audit and notifier may be
// nil.
func NewPayrollService(
	snapshots SnapshotStore,
	archives ArchiveStore,
	audit AuditStore,
	notifier Notifier,
	log zerolog.Logger,
) *PayrollService {
	return &PayrollService{
		snapshots: snapshots,
		archives:  archives,
		audit:     audit,
		notifier:  notifier,
		log:       log,
	}
}

// GetSnapshot loads an account's current snapshot, creating and persisting
// the default one on first access.
func (s *PayrollService) GetSnapshot(ctx context.Context, accountID string) (*repository.PayrollSnapshot, error) {
	snap, err := s.snapshots.Get(ctx, accountID)
	if err == nil {
		return snap, nil
	}
	if errors.CodeOf(err) != errors.ErrCodeNotFound {
		return nil, err
	}

	snap = DefaultSnapshot()
	if err := s.snapshots.Save(ctx, accountID, snap); err != nil {
		return nil, err
	}
	s.log.Info().Str("account_id", accountID).Msg("created default snapshot on first access")
	return snap, nil
}

// SaveSnapshot overwrites the account's snapshot with the given driver
// records, recomputing results and total so the stored document is never
// stale relative to its own inputs. Excluded drivers are reported back and
// logged, not silently dropped.
func (s *PayrollService) SaveSnapshot(ctx context.Context, actor Actor, accountID string, records map[string]repository.DriverRecord) (*repository.PayrollSnapshot, *AggregateResult, error) {
	if err := validateRecordMap(records); err != nil {
		return nil, nil, err
	}

	normalized := make(map[string]repository.DriverRecord, len(records))
	for key, rec := range records {
		if rec.ID == "" {
			rec.ID = key
		}
		normalized[key] = rec
	}
	records = normalized

	agg := s.aggregate(accountID, records)
	snap := &repository.PayrollSnapshot{
		DriverRecords: records,
		Results:       agg.Results,
		TotalPay:      agg.TotalPay,
	}
	if err := s.snapshots.Save(ctx, accountID, snap); err != nil {
		return nil, nil, err
	}

	s.appendAudit(ctx, actor, accountID, "snapshot_saved", nil, map[string]any{
		"driver_count":   len(records),
		"excluded_count": len(agg.Excluded),
	})
	return snap, &agg, nil
}

// Calculate recomputes pay for the given records without persisting anything.
// When records is nil the account's stored snapshot is used, so the endpoint
// also serves as "recalculate what I last saved".
func (s *PayrollService) Calculate(ctx context.Context, accountID string, records map[string]repository.DriverRecord) (*AggregateResult, error) {
	if records == nil {
		snap, err := s.GetSnapshot(ctx, accountID)
		if err != nil {
			return nil, err
		}
		records = snap.DriverRecords
	}
	agg := s.aggregate(accountID, records)
	return &agg, nil
}

// ArchiveRequest finalizes the current period. Dates use YYYY-MM-DD.
type ArchiveRequest struct {
	PayDate     string `json:"pay_date"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	Notes       string `json:"notes"`
}

// ArchiveResult reports a completed archival: the written entry, the
// refreshed id list, and any drivers excluded from the recomputation.
type ArchiveResult struct {
	Entry      *repository.PayrollArchiveEntry `json:"entry"`
	ArchiveIDs []string                        `json:"archive_ids"`
	Excluded   []ExcludedDriver                `json:"excluded"`
}

// Archive converts the current snapshot into a permanent archive entry, then
// resets the snapshot for the next period. The two writes are sequential and
// non-atomic, with no compensating transaction:
//
//  1. recompute breakdowns and totals from the stored driver records;
//  2. derive the entry id from the pay date, so re-archiving the same date
//     overwrites the same entry;
//  3. write the archive entry — on failure, abort with the snapshot
//     untouched;
//  4. reset the snapshot to the default roster — on failure after a
//     successful write, return ARCHIVED_NOT_RESET so the caller can retry
//     the reset alone via FinishReset;
//  5. refresh the archive id list for the caller.
func (s *PayrollService) Archive(ctx context.Context, actor Actor, accountID string, req ArchiveRequest) (*ArchiveResult, error) {
	payDate, err := parseRequiredDate("pay_date", req.PayDate)
	if err != nil {
		return nil, err
	}
	periodStart, err := parseRequiredDate("period_start", req.PeriodStart)
	if err != nil {
		return nil, err
	}
	periodEnd, err := parseRequiredDate("period_end", req.PeriodEnd)
	if err != nil {
		return nil, err
	}
	if periodEnd.Before(periodStart) {
		return nil, errors.InvalidInput("period_end", "must not be before period_start")
	}

	snap, err := s.GetSnapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}

	// Recompute from the stored records; never trust display state.
	agg := s.aggregate(accountID, snap.DriverRecords)

	entry := &repository.PayrollArchiveEntry{
		ID:            payDate.Format("2006-01-02"),
		PeriodStart:   periodStart.Format("2006-01-02"),
		PeriodEnd:     periodEnd.Format("2006-01-02"),
		PayDate:       payDate.Format("2006-01-02"),
		DriverRecords: snap.DriverRecords,
		Results:       agg.Results,
		TotalPay:      agg.TotalPay,
		Aggregates:    agg.Aggregates,
		Notes:         req.Notes,
	}

	if err := s.archives.Put(ctx, accountID, entry); err != nil {
		// The snapshot has not been touched; the whole operation failed.
		return nil, err
	}

	if err := s.snapshots.Save(ctx, accountID, DefaultSnapshot()); err != nil {
		// Archive exists but the working area was not cleared. Safe but
		// inconsistent; the caller must be told so it can retry the reset.
		s.log.Error().Err(err).
			Str("account_id", accountID).
			Str("entry_id", entry.ID).
			Msg("archive written but snapshot reset failed")
		return nil, errors.Wrap(err, errors.ErrCodeArchivedNotReset,
			"archive entry "+entry.ID+" was written but the snapshot reset failed; retry finish-reset")
	}

	ids, err := s.archives.ListIDs(ctx, accountID)
	if err != nil {
		// The archival itself succeeded; a failed refresh only degrades the
		// returned listing.
		s.log.Warn().Err(err).Str("account_id", accountID).Msg("failed to refresh archive id list")
		ids = nil
	}

	s.log.Info().
		Str("account_id", accountID).
		Str("entry_id", entry.ID).
		Str("total_pay", entry.TotalPay.StringFixed(2)).
		Int("driver_count", len(entry.Results)).
		Msg("payroll period archived")

	entryID := entry.ID
	s.appendAudit(ctx, actor, accountID, "period_archived", &entryID, map[string]any{
		"total_pay":      entry.TotalPay.StringFixed(2),
		"excluded_count": len(agg.Excluded),
	})
	s.notify(ctx, "archived", accountID, actor.Email, entry.ID, map[string]any{
		"pay_date":  entry.PayDate,
		"total_pay": entry.TotalPay.StringFixed(2),
	})

	return &ArchiveResult{Entry: entry, ArchiveIDs: ids, Excluded: agg.Excluded}, nil
}

// FinishReset retries step 4 of the archival workflow after an
// ARCHIVED_NOT_RESET failure: it resets the snapshot to defaults without
// writing any archive entry.
func (s *PayrollService) FinishReset(ctx context.Context, actor Actor, accountID string) (*repository.PayrollSnapshot, error) {
	snap := DefaultSnapshot()
	if err := s.snapshots.Save(ctx, accountID, snap); err != nil {
		return nil, err
	}

	s.log.Info().Str("account_id", accountID).Msg("snapshot reset completed")
	s.appendAudit(ctx, actor, accountID, "snapshot_reset", nil, nil)
	s.notify(ctx, "reset", accountID, actor.Email, "", nil)
	return snap, nil
}

// ListArchiveIDs returns the account's archive entry ids, newest first.
func (s *PayrollService) ListArchiveIDs(ctx context.Context, accountID string) ([]string, error) {
	return s.archives.ListIDs(ctx, accountID)
}

// GetArchiveEntry loads one archived period.
func (s *PayrollService) GetArchiveEntry(ctx context.Context, accountID, entryID string) (*repository.PayrollArchiveEntry, error) {
	return s.archives.Get(ctx, accountID, entryID)
}

// AuditLog returns the newest audit entries for an account. Empty when no
// audit store is configured.
func (s *PayrollService) AuditLog(ctx context.Context, accountID string, limit int) ([]*repository.AuditEntry, error) {
	if s.audit == nil {
		return []*repository.AuditEntry{}, nil
	}
	return s.audit.ListByAccount(ctx, accountID, limit)
}

func (s *PayrollService) aggregate(accountID string, records map[string]repository.DriverRecord) AggregateResult {
	agg := Aggregate(records)
	for _, ex := range agg.Excluded {
		s.log.Warn().
			Str("account_id", accountID).
			Str("driver_id", ex.DriverID).
			Str("reason", ex.Reason).
			Msg("driver excluded from payroll aggregation")
	}
	return agg
}

// appendAudit records an action best-effort: audit failures are logged but
// never fail the user operation.
func (s *PayrollService) appendAudit(ctx context.Context, actor Actor, accountID, action string, entryID *string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Append(ctx, &repository.AuditEntry{
		AccountID:  accountID,
		ActorEmail: actor.Email,
		ActedAs:    actor.ActedAs,
		Action:     action,
		EntryID:    entryID,
		Metadata:   metadata,
	})
	if err != nil {
		s.log.Warn().Err(err).
			Str("account_id", accountID).
			Str("action", action).
			Msg("failed to append audit entry")
	}
}

func (s *PayrollService) notify(ctx context.Context, eventType, accountID, actorEmail, entryID string, payload map[string]any) {
	if s.notifier == nil {
		return
	}
	s.notifier.PublishPayrollEvent(ctx, eventType, accountID, actorEmail, entryID, payload)
}

func validateRecordMap(records map[string]repository.DriverRecord) error {
	if records == nil {
		return errors.InvalidInput("driver_records", "is required")
	}
	for key, rec := range records {
		if key == "" {
			return errors.InvalidInput("driver_records", "contains an empty driver id key")
		}
		if rec.ID != "" && rec.ID != key {
			return errors.InvalidInput("driver_records", "record id "+rec.ID+" does not match its map key "+key)
		}
	}
	return nil
}

func parseRequiredDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.InvalidInput(field, "is required")
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, errors.InvalidInput(field, "invalid date, expected YYYY-MM-DD")
	}
	return t, nil
}
