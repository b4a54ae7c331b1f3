package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/juicedmedia/lead-compliance-backend/internal/service/dncexport"
)

// ExportRepository persists monthly DNC export records, one per list and
// month. Re-running a month replaces that month's records in place.
type ExportRepository struct {
	db *pgxpool.Pool
}

func NewExportRepository(db *pgxpool.Pool) *ExportRepository {
	return &ExportRepository{db: db}
}

// Upsert writes one list's record for a month, replacing any earlier run
func (r *ExportRepository) Upsert(ctx context.Context, rec *dncexport.Record) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO monthly_dnc_exports (
			id, list_id, year, month, total_leads, dnc_matches, dnc_rate,
			csv_data, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (list_id, year, month) DO UPDATE SET
			total_leads = EXCLUDED.total_leads,
			dnc_matches = EXCLUDED.dnc_matches,
			dnc_rate = EXCLUDED.dnc_rate,
			csv_data = EXCLUDED.csv_data,
			processed_at = EXCLUDED.processed_at`,
		uuid.New(), rec.ListID, rec.Year, rec.Month, rec.TotalLeads,
		rec.DNCMatches, rec.DNCRate, rec.CSVData, rec.ProcessedAt)
	if err != nil {
		return fmt.Errorf("upserting export record: %w", err)
	}
	return nil
}

// FindByMonth returns every list's record for one month, ordered by list id
func (r *ExportRepository) FindByMonth(ctx context.Context, year, month int) ([]*dncexport.Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT list_id, year, month, total_leads, dnc_matches, dnc_rate,
			csv_data, processed_at
		FROM monthly_dnc_exports
		WHERE year = $1 AND month = $2
		ORDER BY list_id`,
		year, month)
	if err != nil {
		return nil, fmt.Errorf("querying export records: %w", err)
	}
	defer rows.Close()

	var records []*dncexport.Record
	for rows.Next() {
		var rec dncexport.Record
		if err := rows.Scan(&rec.ListID, &rec.Year, &rec.Month, &rec.TotalLeads,
			&rec.DNCMatches, &rec.DNCRate, &rec.CSVData, &rec.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scanning export record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// FindCSV returns one list's CSV for a month, or empty when no export ran
func (r *ExportRepository) FindCSV(ctx context.Context, listID string, year, month int) (string, error) {
	var csvData string
	err := r.db.QueryRow(ctx, `
		SELECT csv_data FROM monthly_dnc_exports
		WHERE list_id = $1 AND year = $2 AND month = $3`,
		listID, year, month).Scan(&csvData)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying export csv: %w", err)
	}
	return csvData, nil
}
