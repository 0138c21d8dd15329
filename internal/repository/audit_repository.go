package repository

import (
	"context"
	"encoding/json"

	"github.com/haulways/be-driver-payroll/internal/database"
	"github.com/haulways/be-driver-payroll/internal/errors"
)

// AuditRepository appends and reads immutable payroll action log entries.
// With admin impersonation in play, this is the record of who changed which
// account's data.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry. Append is the only mutation exposed.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO payroll_audit_log
		    (account_id, actor_email, acted_as, action, entry_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, performed_at
	`

	return r.db.QueryRow(ctx, query,
		entry.AccountID,
		entry.ActorEmail,
		entry.ActedAs,
		entry.Action,
		entry.EntryID,
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
}

// ListByAccount returns the newest audit entries for an account.
func (r *AuditRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*AuditEntry, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, account_id, actor_email, acted_as, action, entry_id, metadata, performed_at
		FROM payroll_audit_log
		WHERE account_id = $1
		ORDER BY performed_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to list audit log")
	}
	defer rows.Close()

	entries := make([]*AuditEntry, 0)
	for rows.Next() {
		entry := &AuditEntry{}
		var metadataJSON []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.ActorEmail,
			&entry.ActedAs,
			&entry.Action,
			&entry.EntryID,
			&metadataJSON,
			&entry.PerformedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to decode audit metadata")
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to list audit log")
	}
	return entries, nil
}
