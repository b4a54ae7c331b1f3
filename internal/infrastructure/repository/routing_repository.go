package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/juicedmedia/lead-compliance-backend/internal/domain/lead"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/routing"
)

// RoutingRepository handles routing configuration persistence. At most one
// active config exists per list; Upsert enforces that by deactivating the
// previous one in the same transaction.
type RoutingRepository struct {
	db *pgxpool.Pool
}

func NewRoutingRepository(db *pgxpool.Pool) *RoutingRepository {
	return &RoutingRepository{db: db}
}

const routingColumns = `
	id, list_id, campaign_id, cadence_id, token, destination, bid,
	description, vertical, active, created_at, updated_at`

// ActiveForList returns the list's active routing config, or nil when the
// list has none.
func (r *RoutingRepository) ActiveForList(ctx context.Context, listID string) (*routing.Config, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+routingColumns+`
		FROM list_routings
		WHERE list_id = $1 AND active = true`,
		listID)

	cfg, err := scanRouting(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying active routing: %w", err)
	}
	return cfg, nil
}

// AllActive returns every active routing config ordered by list id
func (r *RoutingRepository) AllActive(ctx context.Context) ([]*routing.Config, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+routingColumns+`
		FROM list_routings
		WHERE active = true
		ORDER BY list_id`)
	if err != nil {
		return nil, fmt.Errorf("querying active routings: %w", err)
	}
	defer rows.Close()

	var configs []*routing.Config
	for rows.Next() {
		cfg, err := scanRouting(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// ActiveVerticalForList resolves a list's vertical from its active routing.
// Empty string means the list has no active routing or no vertical set.
func (r *RoutingRepository) ActiveVerticalForList(ctx context.Context, listID string) (string, error) {
	var vertical string
	err := r.db.QueryRow(ctx, `
		SELECT vertical FROM list_routings WHERE list_id = $1 AND active = true`,
		listID).Scan(&vertical)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying list vertical: %w", err)
	}
	return vertical, nil
}

// Upsert activates a config for its list, retiring any previously active one.
// Both writes commit together so a list never has zero or two active configs
// mid-change.
func (r *RoutingRepository) Upsert(ctx context.Context, cfg *routing.Config) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning routing upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE list_routings
		SET active = false, updated_at = NOW()
		WHERE list_id = $1 AND active = true AND id != $2`,
		cfg.ListID, cfg.ID)
	if err != nil {
		return fmt.Errorf("deactivating previous routing: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO list_routings (`+routingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			campaign_id = EXCLUDED.campaign_id,
			cadence_id = EXCLUDED.cadence_id,
			token = EXCLUDED.token,
			destination = EXCLUDED.destination,
			bid = EXCLUDED.bid,
			description = EXCLUDED.description,
			vertical = EXCLUDED.vertical,
			active = EXCLUDED.active,
			updated_at = NOW()`,
		cfg.ID, cfg.ListID, cfg.CampaignID, cfg.CadenceID, cfg.Token,
		int(cfg.Destination), cfg.Bid, cfg.Description, cfg.Vertical, cfg.Active)
	if err != nil {
		return fmt.Errorf("upserting routing: %w", err)
	}

	return tx.Commit(ctx)
}

func scanRouting(row pgx.Row) (*routing.Config, error) {
	var cfg routing.Config
	var destination int
	err := row.Scan(
		&cfg.ID, &cfg.ListID, &cfg.CampaignID, &cfg.CadenceID, &cfg.Token,
		&destination, &cfg.Bid, &cfg.Description, &cfg.Vertical, &cfg.Active,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cfg.Destination = lead.DestinationType(destination)
	return &cfg, nil
}
