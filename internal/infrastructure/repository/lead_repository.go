package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/juicedmedia/lead-compliance-backend/internal/domain/lead"
	"github.com/juicedmedia/lead-compliance-backend/internal/service/dedupe"
)

// LeadRepository handles lead persistence. It backs the intake pipeline's
// writes, the duplicate detector's recency lookups, the repair engine's
// mismatch scans and the monthly export's keyset walks.
type LeadRepository struct {
	db *pgxpool.Pool
}

func NewLeadRepository(db *pgxpool.Pool) *LeadRepository {
	return &LeadRepository{db: db}
}

const leadColumns = `
	id, phone, first_name, last_name, email, address, city, state, zip_code,
	source, list_id, campaign_id, cadence_id, assigned_destination,
	trusted_form_cert_url, custom_fields, status, created_at, updated_at`

// InsertBatch writes one allocation group in a single transaction, all rows
// carrying the same per-lead cost. A partial insert never survives.
func (r *LeadRepository) InsertBatch(ctx context.Context, leads []*lead.Lead, costPerLead decimal.Decimal) error {
	if len(leads) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	query := `
		INSERT INTO leads (` + leadColumns + `, cost_per_lead)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20)`

	for _, l := range leads {
		customFields, err := json.Marshal(l.CustomFields)
		if err != nil {
			return fmt.Errorf("marshaling custom fields for lead %s: %w", l.ID, err)
		}
		batch.Queue(query,
			l.ID, l.Phone.Digits(), l.FirstName, l.LastName, l.Email,
			l.Address, l.City, l.State, l.ZipCode, l.Source,
			l.ListID, l.CampaignID, l.CadenceID, int(l.AssignedDestination),
			l.TrustedFormCertURL, customFields, l.Status.String(),
			l.CreatedAt, l.UpdatedAt,
			costPerLead,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range leads {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("inserting lead batch: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing lead batch: %w", err)
	}

	return tx.Commit(ctx)
}

// UpdateStatus records a post outcome for one lead
func (r *LeadRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status lead.Status) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE leads SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status.String())
	if err != nil {
		return fmt.Errorf("updating lead status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lead %s not found", id)
	}
	return nil
}

// FindRecentByPhone returns prior submissions of a phone number since the
// given cutoff, most recent first. Rejected leads never count as priors.
func (r *LeadRepository) FindRecentByPhone(ctx context.Context, phoneDigits string, since time.Time) ([]dedupe.PriorLead, error) {
	rows, err := r.db.Query(ctx, `
		SELECT created_at, list_id
		FROM leads
		WHERE phone = $1 AND created_at >= $2 AND status != 'rejected'
		ORDER BY created_at DESC`,
		phoneDigits, since)
	if err != nil {
		return nil, fmt.Errorf("querying prior submissions: %w", err)
	}
	defer rows.Close()

	var prior []dedupe.PriorLead
	for rows.Next() {
		var p dedupe.PriorLead
		if err := rows.Scan(&p.CreatedAt, &p.ListID); err != nil {
			return nil, fmt.Errorf("scanning prior submission: %w", err)
		}
		prior = append(prior, p)
	}
	return prior, rows.Err()
}

// CountMismatched counts internal-destination leads on a list whose campaign
// differs from the active routing's. Rejected leads are stale by definition
// and excluded; Pitch BPO leads are never repaired, their campaign lives on
// the partner's side.
func (r *LeadRepository) CountMismatched(ctx context.Context, listID, activeCampaignID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM leads
		WHERE list_id = $1 AND campaign_id != $2 AND status != 'rejected'
			AND assigned_destination = 1`,
		listID, activeCampaignID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting mismatched leads: %w", err)
	}
	return count, nil
}

// FetchMismatchedBatch is the keyset cursor over mismatched leads, ordered by
// id so repairs never revisit or skip a row across batches.
func (r *LeadRepository) FetchMismatchedBatch(ctx context.Context, listID, activeCampaignID, afterID string, limit int) ([]*lead.Lead, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE list_id = $1 AND campaign_id != $2 AND status != 'rejected'
			AND assigned_destination = 1
			AND id::text > $3
		ORDER BY id::text
		LIMIT $4`,
		listID, activeCampaignID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching mismatched leads: %w", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}

// UpdateCampaign bulk-moves repaired leads onto the active campaign and cadence
func (r *LeadRepository) UpdateCampaign(ctx context.Context, leadIDs []uuid.UUID, campaignID, cadenceID string) error {
	if len(leadIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		UPDATE leads
		SET campaign_id = $2, cadence_id = $3, updated_at = NOW()
		WHERE id = ANY($1)`,
		leadIDs, campaignID, cadenceID)
	if err != nil {
		return fmt.Errorf("updating lead campaigns: %w", err)
	}
	return nil
}

// CountByList counts all non-rejected leads on a list
func (r *LeadRepository) CountByList(ctx context.Context, listID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM leads WHERE list_id = $1 AND status != 'rejected'`,
		listID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting leads for list: %w", err)
	}
	return count, nil
}

// FetchMonthBatch walks one calendar month of leads across the given lists.
// An empty listIDs slice means every list.
func (r *LeadRepository) FetchMonthBatch(ctx context.Context, year, month int, listIDs []string, afterID string, limit int) ([]*lead.Lead, error) {
	start, end := monthWindow(year, month)
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE created_at >= $1 AND created_at < $2 AND id::text > $3`
	args := []interface{}{start, end, afterID}
	if len(listIDs) > 0 {
		query += ` AND list_id = ANY($4)`
		args = append(args, listIDs)
	}
	query += fmt.Sprintf(` ORDER BY id::text LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching month batch: %w", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}

// FetchListMonthBatch walks one list's slice of a calendar month
func (r *LeadRepository) FetchListMonthBatch(ctx context.Context, listID string, year, month int, afterID string, limit int) ([]*lead.Lead, error) {
	start, end := monthWindow(year, month)
	rows, err := r.db.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE list_id = $1 AND created_at >= $2 AND created_at < $3
			AND id::text > $4
		ORDER BY id::text
		LIMIT $5`,
		listID, start, end, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching list month batch: %w", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}

// monthWindow is [first of month, first of next month) in UTC
func monthWindow(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func scanLeads(rows pgx.Rows) ([]*lead.Lead, error) {
	var leads []*lead.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func scanLead(row pgx.Row) (*lead.Lead, error) {
	var l lead.Lead
	var destination int
	var statusStr string
	var customFields []byte

	err := row.Scan(
		&l.ID, &l.Phone, &l.FirstName, &l.LastName, &l.Email,
		&l.Address, &l.City, &l.State, &l.ZipCode, &l.Source,
		&l.ListID, &l.CampaignID, &l.CadenceID, &destination,
		&l.TrustedFormCertURL, &customFields, &statusStr,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning lead: %w", err)
	}

	l.AssignedDestination = lead.DestinationType(destination)
	if l.Status, err = lead.ParseStatus(statusStr); err != nil {
		return nil, err
	}
	if len(customFields) > 0 {
		if err := json.Unmarshal(customFields, &l.CustomFields); err != nil {
			return nil, fmt.Errorf("unmarshaling custom fields: %w", err)
		}
	}
	return &l, nil
}
