package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"promo-code-bot/internal/model"
)

const prizeColumns = `id, seq_id, tier, name, images, total_issued, total_claimed, deleted_at, created_at`

// PrizeRepository handles prize catalog persistence. A partial unique index
// on tier guarantees at most one live prize per tier.
type PrizeRepository struct {
	pool *pgxpool.Pool
}

// NewPrizeRepository creates a new PrizeRepository instance.
func NewPrizeRepository(pool *pgxpool.Pool) *PrizeRepository {
	return &PrizeRepository{pool: pool}
}

func scanPrize(row pgx.Row) (*model.Prize, error) {
	var p model.Prize
	err := row.Scan(
		&p.ID, &p.SeqID, &p.Tier, &p.Name, &p.Images,
		&p.TotalIssued, &p.TotalClaimed, &p.DeletedAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByTier retrieves the live prize for a tier.
// Returns ErrPrizeNotFound if the tier has no catalog entry.
func (r *PrizeRepository) GetByTier(ctx context.Context, tier model.Tier) (*model.Prize, error) {
	query := `SELECT ` + prizeColumns + ` FROM prizes WHERE tier = $1 AND deleted_at IS NULL`

	p, err := scanPrize(r.pool.QueryRow(ctx, query, tier))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrizeNotFound
		}
		return nil, fmt.Errorf("failed to get prize by tier: %w", err)
	}
	return p, nil
}

// GetByID retrieves a prize by its row id.
func (r *PrizeRepository) GetByID(ctx context.Context, id int64) (*model.Prize, error) {
	query := `SELECT ` + prizeColumns + ` FROM prizes WHERE id = $1 AND deleted_at IS NULL`

	p, err := scanPrize(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrizeNotFound
		}
		return nil, fmt.Errorf("failed to get prize: %w", err)
	}
	return p, nil
}

// Create inserts a prize for a tier with zeroed counters. When another
// writer creates the tier concurrently the insert is dropped and
// ErrPrizeNotFound is returned; callers re-read in that case.
func (r *PrizeRepository) Create(ctx context.Context, tier model.Tier, name string, images map[string]string) (*model.Prize, error) {
	query := `
		INSERT INTO prizes (seq_id, tier, name, images)
		VALUES ((SELECT COALESCE(MAX(seq_id), 0) + 1 FROM prizes), $1, $2, $3)
		ON CONFLICT (tier) WHERE deleted_at IS NULL DO NOTHING
		RETURNING ` + prizeColumns

	p, err := scanPrize(r.pool.QueryRow(ctx, query, tier, name, images))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrizeNotFound
		}
		return nil, fmt.Errorf("failed to create prize: %w", err)
	}
	return p, nil
}

// IncrementClaimed atomically bumps the claim counter. The counter never
// decrements.
func (r *PrizeRepository) IncrementClaimed(ctx context.Context, id int64) error {
	const query = `UPDATE prizes SET total_claimed = total_claimed + 1 WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment claimed counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPrizeNotFound
	}
	return nil
}

// AddIssued adds n to the issued counter after a winner batch lands.
func (r *PrizeRepository) AddIssued(ctx context.Context, id int64, n int64) error {
	const query = `UPDATE prizes SET total_issued = total_issued + $2 WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.pool.Exec(ctx, query, id, n)
	if err != nil {
		return fmt.Errorf("failed to add issued counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPrizeNotFound
	}
	return nil
}

// List returns all live prizes ordered by sequential id.
func (r *PrizeRepository) List(ctx context.Context) ([]*model.Prize, error) {
	query := `SELECT ` + prizeColumns + ` FROM prizes WHERE deleted_at IS NULL ORDER BY seq_id ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list prizes: %w", err)
	}
	defer rows.Close()

	var prizes []*model.Prize
	for rows.Next() {
		p, err := scanPrize(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prize: %w", err)
		}
		prizes = append(prizes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prizes: %w", err)
	}
	return prizes, nil
}
