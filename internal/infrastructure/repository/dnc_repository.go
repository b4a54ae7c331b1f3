package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/juicedmedia/lead-compliance-backend/internal/service/compliance"
)

// DNCRepository handles the internal do-not-call table
type DNCRepository struct {
	db *pgxpool.Pool
}

func NewDNCRepository(db *pgxpool.Pool) *DNCRepository {
	return &DNCRepository{db: db}
}

// FindActiveEntry returns the active DNC entry for a phone number, or nil
// when the number is not listed
func (r *DNCRepository) FindActiveEntry(ctx context.Context, phoneDigits string) (*compliance.DNCEntry, error) {
	var entry compliance.DNCEntry
	err := r.db.QueryRow(ctx, `
		SELECT phone_number, reason, source, status
		FROM dnc_entries
		WHERE phone_number = $1 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1`,
		phoneDigits).Scan(&entry.PhoneNumber, &entry.Reason, &entry.Source, &entry.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying dnc entry: %w", err)
	}
	return &entry, nil
}

// Add lists a phone number. An already-listed number is reactivated with the
// new reason rather than duplicated.
func (r *DNCRepository) Add(ctx context.Context, phoneDigits, reason, source string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO dnc_entries (id, phone_number, reason, source, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'active', NOW(), NOW())
		ON CONFLICT (phone_number) DO UPDATE SET
			reason = EXCLUDED.reason,
			source = EXCLUDED.source,
			status = 'active',
			updated_at = NOW()`,
		uuid.New(), phoneDigits, reason, source)
	if err != nil {
		return fmt.Errorf("adding dnc entry: %w", err)
	}
	return nil
}

// Remove deactivates a listing without losing its history
func (r *DNCRepository) Remove(ctx context.Context, phoneDigits string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE dnc_entries SET status = 'inactive', updated_at = NOW()
		WHERE phone_number = $1 AND status = 'active'`,
		phoneDigits)
	if err != nil {
		return fmt.Errorf("removing dnc entry: %w", err)
	}
	return nil
}
