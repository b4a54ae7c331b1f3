package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/juicedmedia/lead-compliance-backend/internal/domain/errors"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/job"
)

// PostgresJobStore persists jobs so status survives a process restart
type PostgresJobStore struct {
	db *pgxpool.Pool
}

func NewPostgresJobStore(db *pgxpool.Pool) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

func (s *PostgresJobStore) Create(ctx context.Context, j *job.Job) error {
	itemErrors, err := json.Marshal(j.Errors)
	if err != nil {
		return fmt.Errorf("marshaling job errors: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO jobs (
			id, kind, status, progress, error_message,
			total, processed, successful, failed, eta,
			lists_processed, leads_found, dnc_matches,
			errors, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		j.ID, string(j.Kind), string(j.Status), j.Progress, j.ErrorMessage,
		j.Total, j.Processed, j.Successful, j.Failed, j.ETA,
		j.ListsProcessed, j.LeadsFound, j.DNCMatches,
		itemErrors, j.CreatedAt, j.CompletedAt)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Update(ctx context.Context, j *job.Job) error {
	itemErrors, err := json.Marshal(j.Errors)
	if err != nil {
		return fmt.Errorf("marshaling job errors: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs SET
			status = $2, progress = $3, error_message = $4,
			total = $5, processed = $6, successful = $7, failed = $8, eta = $9,
			lists_processed = $10, leads_found = $11, dnc_matches = $12,
			errors = $13, completed_at = $14
		WHERE id = $1`,
		j.ID, string(j.Status), j.Progress, j.ErrorMessage,
		j.Total, j.Processed, j.Successful, j.Failed, j.ETA,
		j.ListsProcessed, j.LeadsFound, j.DNCMatches,
		itemErrors, j.CompletedAt)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("job")
	}
	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	var j job.Job
	var kind, status string
	var itemErrors []byte

	err := s.db.QueryRow(ctx, `
		SELECT id, kind, status, progress, error_message,
			total, processed, successful, failed, eta,
			lists_processed, leads_found, dnc_matches,
			errors, created_at, completed_at
		FROM jobs WHERE id = $1`,
		id).Scan(
		&j.ID, &kind, &status, &j.Progress, &j.ErrorMessage,
		&j.Total, &j.Processed, &j.Successful, &j.Failed, &j.ETA,
		&j.ListsProcessed, &j.LeadsFound, &j.DNCMatches,
		&itemErrors, &j.CreatedAt, &j.CompletedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NewNotFoundError("job")
	}
	if err != nil {
		return nil, fmt.Errorf("querying job: %w", err)
	}

	j.Kind = job.Kind(kind)
	j.Status = job.Status(status)
	if len(itemErrors) > 0 {
		if err := json.Unmarshal(itemErrors, &j.Errors); err != nil {
			return nil, fmt.Errorf("unmarshaling job errors: %w", err)
		}
	}
	return &j, nil
}
