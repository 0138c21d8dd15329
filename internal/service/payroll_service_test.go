package service

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/haulways/be-driver-payroll/internal/errors"
	"github.com/haulways/be-driver-payroll/internal/repository"
)

// ── in-memory stores ─────────────────────────────────────────────────────────

type fakeSnapshotStore struct {
	snaps   map[string]*repository.PayrollSnapshot
	getErr  error
	saveErr error
	saves   int
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{snaps: map[string]*repository.PayrollSnapshot{}}
}

func (f *fakeSnapshotStore) Get(ctx context.Context, accountID string) (*repository.PayrollSnapshot, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	snap, ok := f.snaps[accountID]
	if !ok {
		return nil, errors.NotFound("snapshot", accountID)
	}
	cp := *snap
	return &cp, nil
}

func (f *fakeSnapshotStore) Save(ctx context.Context, accountID string, snap *repository.PayrollSnapshot) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	snap.SavedAt = time.Now()
	cp := *snap
	f.snaps[accountID] = &cp
	return nil
}

type fakeArchiveStore struct {
	entries map[string]map[string]*repository.PayrollArchiveEntry
	putErr  error
	listErr error
	puts    int
}

func newFakeArchiveStore() *fakeArchiveStore {
	return &fakeArchiveStore{entries: map[string]map[string]*repository.PayrollArchiveEntry{}}
}

func (f *fakeArchiveStore) Put(ctx context.Context, accountID string, entry *repository.PayrollArchiveEntry) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.puts++
	entry.ArchivedAt = time.Now()
	if f.entries[accountID] == nil {
		f.entries[accountID] = map[string]*repository.PayrollArchiveEntry{}
	}
	cp := *entry
	f.entries[accountID][entry.ID] = &cp
	return nil
}

func (f *fakeArchiveStore) Get(ctx context.Context, accountID, entryID string) (*repository.PayrollArchiveEntry, error) {
	entry, ok := f.entries[accountID][entryID]
	if !ok {
		return nil, errors.NotFound("archive entry", entryID)
	}
	cp := *entry
	return &cp, nil
}

func (f *fakeArchiveStore) ListIDs(ctx context.Context, accountID string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := make([]string, 0, len(f.entries[accountID]))
	for id := range f.entries[accountID] {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeAuditStore struct {
	entries []*repository.AuditEntry
}

func (f *fakeAuditStore) Append(ctx context.Context, entry *repository.AuditEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*repository.AuditEntry, error) {
	out := make([]*repository.AuditEntry, 0, len(f.entries))
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].AccountID == accountID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func newTestService(snaps *fakeSnapshotStore, archives *fakeArchiveStore, audit *fakeAuditStore) *PayrollService {
	var auditStore AuditStore
	if audit != nil {
		auditStore = audit
	}
	return NewPayrollService(snaps, archives, auditStore, nil, zerolog.Nop())
}

func validArchiveReq() ArchiveRequest {
	return ArchiveRequest{
		PayDate:     "2026-08-28",
		PeriodStart: "2026-08-11",
		PeriodEnd:   "2026-08-24",
		Notes:       "regular biweekly run",
	}
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestGetSnapshot_CreatesDefaultOnFirstAccess(t *testing.T) {
	snaps := newFakeSnapshotStore()
	svc := newTestService(snaps, newFakeArchiveStore(), nil)

	snap, err := svc.GetSnapshot(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(snap.DriverRecords) != 20 {
		t.Fatalf("roster=%d", len(snap.DriverRecords))
	}
	if snaps.saves != 1 {
		t.Fatalf("saves=%d, default snapshot must be persisted", snaps.saves)
	}

	// Second access reads the stored copy, no second save.
	if _, err := svc.GetSnapshot(context.Background(), "acct-1"); err != nil {
		t.Fatalf("err=%v", err)
	}
	if snaps.saves != 1 {
		t.Fatalf("saves=%d", snaps.saves)
	}
}

func TestSaveSnapshot_RecomputesResults(t *testing.T) {
	snaps := newFakeSnapshotStore()
	svc := newTestService(snaps, newFakeArchiveStore(), nil)

	records := map[string]repository.DriverRecord{
		"A": rec("A", "10", "250", "0", "25", "0"),
		"B": rec("B", "5", "0", "8", "20", "50"),
	}
	snap, agg, err := svc.SaveSnapshot(context.Background(), Actor{Email: "user@x"}, "acct-1", records)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if snap.TotalPay.StringFixed(2) != "2710.00" {
		t.Fatalf("total=%s", snap.TotalPay.StringFixed(2))
	}
	if len(snap.Results) != 2 || len(agg.Excluded) != 0 {
		t.Fatalf("results=%d excluded=%d", len(snap.Results), len(agg.Excluded))
	}
	if snap.SavedAt.IsZero() {
		t.Fatal("saved_at not set")
	}
}

func TestSaveSnapshot_ReportsExcludedDrivers(t *testing.T) {
	svc := newTestService(newFakeSnapshotStore(), newFakeArchiveStore(), nil)

	records := map[string]repository.DriverRecord{
		"A": rec("A", "10", "250", "0", "25", "0"),
		"C": rec("C", "-1", "200", "0", "0", "0"),
	}
	snap, agg, err := svc.SaveSnapshot(context.Background(), Actor{}, "acct-1", records)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(agg.Excluded) != 1 || agg.Excluded[0].DriverID != "C" {
		t.Fatalf("excluded=%v", agg.Excluded)
	}
	// The invalid record is still stored — editing is free pre-archive —
	// but it contributes nothing to results or total.
	if len(snap.DriverRecords) != 2 || len(snap.Results) != 1 {
		t.Fatalf("records=%d results=%d", len(snap.DriverRecords), len(snap.Results))
	}
	if snap.TotalPay.StringFixed(2) != "2500.00" {
		t.Fatalf("total=%s", snap.TotalPay.StringFixed(2))
	}
}

func TestSaveSnapshot_RejectsMismatchedKey(t *testing.T) {
	svc := newTestService(newFakeSnapshotStore(), newFakeArchiveStore(), nil)

	records := map[string]repository.DriverRecord{
		"A": rec("Z", "10", "250", "0", "25", "0"),
	}
	_, _, err := svc.SaveSnapshot(context.Background(), Actor{}, "acct-1", records)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.CodeOf(err) != errors.ErrCodeInvalidInput {
		t.Fatalf("code=%s", errors.CodeOf(err))
	}
}

func TestCalculate_UsesStoredSnapshotWhenRecordsNil(t *testing.T) {
	snaps := newFakeSnapshotStore()
	svc := newTestService(snaps, newFakeArchiveStore(), nil)

	if _, _, err := svc.SaveSnapshot(context.Background(), Actor{}, "acct-1", map[string]repository.DriverRecord{
		"A": rec("A", "10", "250", "0", "25", "0"),
	}); err != nil {
		t.Fatalf("err=%v", err)
	}

	agg, err := svc.Calculate(context.Background(), "acct-1", nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if agg.TotalPay.StringFixed(2) != "2500.00" {
		t.Fatalf("total=%s", agg.TotalPay.StringFixed(2))
	}
}

func TestArchive_HappyPath(t *testing.T) {
	snaps := newFakeSnapshotStore()
	archives := newFakeArchiveStore()
	audit := &fakeAuditStore{}
	svc := newTestService(snaps, archives, audit)

	if _, _, err := svc.SaveSnapshot(context.Background(), Actor{}, "acct-1", map[string]repository.DriverRecord{
		"A": rec("A", "10", "250", "0", "25", "0"),
		"B": rec("B", "5", "0", "8", "20", "50"),
	}); err != nil {
		t.Fatalf("err=%v", err)
	}

	result, err := svc.Archive(context.Background(), Actor{Email: "user@x"}, "acct-1", validArchiveReq())
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	if result.Entry.ID != "2026-08-28" {
		t.Fatalf("entry id=%q, must derive from pay date", result.Entry.ID)
	}
	if result.Entry.TotalPay.StringFixed(2) != "2710.00" {
		t.Fatalf("total=%s", result.Entry.TotalPay.StringFixed(2))
	}
	if result.Entry.Aggregates.TotalExpense.String() != "50" {
		t.Fatalf("expense=%s", result.Entry.Aggregates.TotalExpense)
	}
	if len(result.ArchiveIDs) != 1 || result.ArchiveIDs[0] != "2026-08-28" {
		t.Fatalf("ids=%v", result.ArchiveIDs)
	}

	// Snapshot reset to defaults.
	snap, err := svc.GetSnapshot(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(snap.DriverRecords) != 20 || !snap.TotalPay.IsZero() || len(snap.Results) != 0 {
		t.Fatalf("snapshot not reset: records=%d total=%s", len(snap.DriverRecords), snap.TotalPay)
	}

	// Audit recorded the archival.
	found := false
	for _, e := range audit.entries {
		if e.Action == "period_archived" && e.EntryID != nil && *e.EntryID == "2026-08-28" {
			found = true
		}
	}
	if !found {
		t.Fatal("archive action not audited")
	}
}

func TestArchive_IdempotentByPayDate(t *testing.T) {
	snaps := newFakeSnapshotStore()
	archives := newFakeArchiveStore()
	svc := newTestService(snaps, archives, nil)

	req := validArchiveReq()
	if _, err := svc.Archive(context.Background(), Actor{}, "acct-1", req); err != nil {
		t.Fatalf("err=%v", err)
	}

	req.Notes = "re-run after correction"
	result, err := svc.Archive(context.Background(), Actor{}, "acct-1", req)
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	if n := len(archives.entries["acct-1"]); n != 1 {
		t.Fatalf("entry count=%d, re-archiving must overwrite not duplicate", n)
	}
	if archives.entries["acct-1"]["2026-08-28"].Notes != "re-run after correction" {
		t.Fatal("second archive did not overwrite the entry")
	}
	if len(result.ArchiveIDs) != 1 {
		t.Fatalf("ids=%v", result.ArchiveIDs)
	}
}

func TestArchive_ValidatesDates(t *testing.T) {
	svc := newTestService(newFakeSnapshotStore(), newFakeArchiveStore(), nil)

	cases := []struct {
		name string
		mut  func(*ArchiveRequest)
	}{
		{"missing pay date", func(r *ArchiveRequest) { r.PayDate = "" }},
		{"malformed pay date", func(r *ArchiveRequest) { r.PayDate = "28/08/2026" }},
		{"missing period start", func(r *ArchiveRequest) { r.PeriodStart = "" }},
		{"missing period end", func(r *ArchiveRequest) { r.PeriodEnd = "" }},
		{"inverted period", func(r *ArchiveRequest) { r.PeriodStart, r.PeriodEnd = r.PeriodEnd, r.PeriodStart }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validArchiveReq()
			tc.mut(&req)
			_, err := svc.Archive(context.Background(), Actor{}, "acct-1", req)
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.CodeOf(err) != errors.ErrCodeInvalidInput {
				t.Fatalf("code=%s", errors.CodeOf(err))
			}
		})
	}
}

func TestArchive_WriteFailureLeavesSnapshotUntouched(t *testing.T) {
	snaps := newFakeSnapshotStore()
	archives := newFakeArchiveStore()
	svc := newTestService(snaps, archives, nil)

	records := map[string]repository.DriverRecord{"A": rec("A", "10", "250", "0", "25", "0")}
	if _, _, err := svc.SaveSnapshot(context.Background(), Actor{}, "acct-1", records); err != nil {
		t.Fatalf("err=%v", err)
	}
	savesBefore := snaps.saves

	archives.putErr = stderrors.New("store unreachable")
	_, err := svc.Archive(context.Background(), Actor{}, "acct-1", validArchiveReq())
	if err == nil {
		t.Fatal("expected error")
	}

	if snaps.saves != savesBefore {
		t.Fatal("snapshot must not be written when the archive write fails")
	}
	snap, _ := svc.GetSnapshot(context.Background(), "acct-1")
	if len(snap.DriverRecords) != 1 {
		t.Fatal("working state was lost on a failed archive")
	}
}

func TestArchive_ResetFailureIsSurfacedAsRetryable(t *testing.T) {
	snaps := newFakeSnapshotStore()
	archives := newFakeArchiveStore()
	svc := newTestService(snaps, archives, nil)

	records := map[string]repository.DriverRecord{"A": rec("A", "10", "250", "0", "25", "0")}
	if _, _, err := svc.SaveSnapshot(context.Background(), Actor{}, "acct-1", records); err != nil {
		t.Fatalf("err=%v", err)
	}

	snaps.saveErr = stderrors.New("store unreachable")
	_, err := svc.Archive(context.Background(), Actor{}, "acct-1", validArchiveReq())
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.CodeOf(err) != errors.ErrCodeArchivedNotReset {
		t.Fatalf("code=%s", errors.CodeOf(err))
	}

	// Archive exists; snapshot is stale but intact.
	if len(archives.entries["acct-1"]) != 1 {
		t.Fatal("archive entry missing after partial failure")
	}
	snap, _ := svc.GetSnapshot(context.Background(), "acct-1")
	if len(snap.DriverRecords) != 1 {
		t.Fatal("stale snapshot should still hold the archived records")
	}

	// Manual retry completes the workflow.
	snaps.saveErr = nil
	reset, err := svc.FinishReset(context.Background(), Actor{}, "acct-1")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(reset.DriverRecords) != 20 || !reset.TotalPay.IsZero() {
		t.Fatal("finish-reset did not restore defaults")
	}
}

func TestAuditLog(t *testing.T) {
	audit := &fakeAuditStore{}
	svc := newTestService(newFakeSnapshotStore(), newFakeArchiveStore(), audit)

	if _, _, err := svc.SaveSnapshot(context.Background(), Actor{Email: "user@x"}, "acct-1", map[string]repository.DriverRecord{
		"A": rec("A", "10", "250", "0", "25", "0"),
	}); err != nil {
		t.Fatalf("err=%v", err)
	}

	entries, err := svc.AuditLog(context.Background(), "acct-1", 10)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(entries) != 1 || entries[0].Action != "snapshot_saved" {
		t.Fatalf("entries=%v", entries)
	}

	// Without an audit store the log is empty, not an error.
	bare := newTestService(newFakeSnapshotStore(), newFakeArchiveStore(), nil)
	entries, err = bare.AuditLog(context.Background(), "acct-1", 10)
	if err != nil || len(entries) != 0 {
		t.Fatalf("entries=%v err=%v", entries, err)
	}
}

func TestGetArchiveEntry_NotFound(t *testing.T) {
	svc := newTestService(newFakeSnapshotStore(), newFakeArchiveStore(), nil)
	_, err := svc.GetArchiveEntry(context.Background(), "acct-1", "2020-01-01")
	if errors.CodeOf(err) != errors.ErrCodeNotFound {
		t.Fatalf("code=%s", errors.CodeOf(err))
	}
}

// Concurrent edits to the same account are unguarded: there is no lock,
// lease, or version token, and the last document write wins wholesale. This
// is an accepted limitation of the single-writer design, asserted here so a
// future "fix" is a deliberate decision rather than an accident.
func TestConcurrentWrites_LastWriteWinsIsAccepted(t *testing.T) {
	snaps := newFakeSnapshotStore()
	svc := newTestService(snaps, newFakeArchiveStore(), nil)

	owner := map[string]repository.DriverRecord{"A": rec("A", "10", "250", "0", "25", "0")}
	admin := map[string]repository.DriverRecord{"B": rec("B", "5", "0", "8", "20", "50")}

	if _, _, err := svc.SaveSnapshot(context.Background(), Actor{Email: "owner@x"}, "acct-1", owner); err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, _, err := svc.SaveSnapshot(context.Background(), Actor{Email: "admin@x", ActedAs: true}, "acct-1", admin); err != nil {
		t.Fatalf("err=%v", err)
	}

	snap, _ := svc.GetSnapshot(context.Background(), "acct-1")
	if _, ok := snap.DriverRecords["B"]; !ok {
		t.Fatal("last write should win")
	}
	if _, ok := snap.DriverRecords["A"]; ok {
		t.Fatal("overwrite is wholesale, not a merge")
	}
}
