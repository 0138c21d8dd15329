package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/jackc/pgx/v5"

	"github.com/haulways/be-driver-payroll/internal/database"
	"github.com/haulways/be-driver-payroll/internal/errors"
)

// SnapshotRepository stores the single "current period" payroll document per
// account as a JSONB row.
type SnapshotRepository struct {
	db *database.DB
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(db *database.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Get loads the current snapshot for an account.
// Returns a NOT_FOUND error when the account has no snapshot yet.
func (r *SnapshotRepository) Get(ctx context.Context, accountID string) (*PayrollSnapshot, error) {
	query := `
		SELECT doc, saved_at
		FROM payroll_snapshots
		WHERE account_id = $1
	`

	var doc []byte
	snap := &PayrollSnapshot{}
	err := r.db.QueryRow(ctx, query, accountID).Scan(&doc, &snap.SavedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("snapshot", accountID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to load snapshot")
	}

	savedAt := snap.SavedAt
	if err := json.Unmarshal(doc, snap); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to decode snapshot document")
	}
	snap.SavedAt = savedAt
	return snap, nil
}

// Save overwrites the account's snapshot in place, creating the row on first
// save. The stored saved_at is authoritative and written back into snap.
func (r *SnapshotRepository) Save(ctx context.Context, accountID string, snap *PayrollSnapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode snapshot document")
	}

	query := `
		INSERT INTO payroll_snapshots (account_id, doc, saved_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account_id)
		DO UPDATE SET doc = EXCLUDED.doc, saved_at = NOW()
		RETURNING saved_at
	`

	if err := r.db.QueryRow(ctx, query, accountID, doc).Scan(&snap.SavedAt); err != nil {
		return errors.Wrap(err, errors.ErrCodeUnavailable, "failed to save snapshot")
	}
	return nil
}
