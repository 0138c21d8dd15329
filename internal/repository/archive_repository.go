package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/jackc/pgx/v5"

	"github.com/haulways/be-driver-payroll/internal/database"
	"github.com/haulways/be-driver-payroll/internal/errors"
)

// ArchiveRepository stores finalized payroll periods, one JSONB document per
// (account, entry id). Entries are immutable except for the deliberate
// overwrite-by-id upsert used for idempotent re-archiving of a pay date.
type ArchiveRepository struct {
	db *database.DB
}

// NewArchiveRepository creates a new ArchiveRepository.
func NewArchiveRepository(db *database.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// Put writes an archive entry. Re-archiving the same entry id overwrites the
// existing row rather than creating a duplicate.
func (r *ArchiveRepository) Put(ctx context.Context, accountID string, entry *PayrollArchiveEntry) error {
	doc, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode archive entry")
	}

	query := `
		INSERT INTO payroll_archive_entries (account_id, entry_id, doc, archived_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (account_id, entry_id)
		DO UPDATE SET doc = EXCLUDED.doc, archived_at = NOW()
		RETURNING archived_at
	`

	if err := r.db.QueryRow(ctx, query, accountID, entry.ID, doc).Scan(&entry.ArchivedAt); err != nil {
		return errors.Wrap(err, errors.ErrCodeUnavailable, "failed to write archive entry")
	}
	return nil
}

// Get loads one archived period.
func (r *ArchiveRepository) Get(ctx context.Context, accountID, entryID string) (*PayrollArchiveEntry, error) {
	query := `
		SELECT doc, archived_at
		FROM payroll_archive_entries
		WHERE account_id = $1 AND entry_id = $2
	`

	var doc []byte
	entry := &PayrollArchiveEntry{}
	err := r.db.QueryRow(ctx, query, accountID, entryID).Scan(&doc, &entry.ArchivedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("archive entry", entryID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to load archive entry")
	}

	archivedAt := entry.ArchivedAt
	if err := json.Unmarshal(doc, entry); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to decode archive entry")
	}
	entry.ArchivedAt = archivedAt
	return entry, nil
}

// ListIDs returns the account's archive entry ids, newest pay date first.
func (r *ArchiveRepository) ListIDs(ctx context.Context, accountID string) ([]string, error) {
	query := `
		SELECT entry_id
		FROM payroll_archive_entries
		WHERE account_id = $1
		ORDER BY entry_id DESC
	`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to list archive entries")
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan archive entry id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to list archive entries")
	}
	return ids, nil
}

// Count reports how many rows exist for an entry id. Always 0 or 1 given the
// primary key; exposed for the idempotence checks in tests.
func (r *ArchiveRepository) Count(ctx context.Context, accountID, entryID string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM payroll_archive_entries
		WHERE account_id = $1 AND entry_id = $2
	`

	var n int64
	if err := r.db.QueryRow(ctx, query, accountID, entryID).Scan(&n); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to count archive entries")
	}
	return n, nil
}
