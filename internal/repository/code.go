// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"promo-code-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrCodeNotFound        = errors.New("code not found")
	ErrPrizeNotFound       = errors.New("prize not found")
	ErrParticipantNotFound = errors.New("participant not found")
)

// ListOptions controls paginated dashboard listings.
type ListOptions struct {
	Page    int
	Limit   int
	Search  string
	Claimed *bool
	Month   string
}

func (o *ListOptions) normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 || o.Limit > 200 {
		o.Limit = 10
	}
}

func (o *ListOptions) offset() int {
	return (o.Page - 1) * o.Limit
}

const codeColumns = `id, seq_id, canonical_key, value, prize_id, claimed, claimed_at, claimed_by, month, deleted_at, created_at`

// CodeRepository handles plain promotional code persistence.
type CodeRepository struct {
	pool *pgxpool.Pool
}

// NewCodeRepository creates a new CodeRepository instance.
func NewCodeRepository(pool *pgxpool.Pool) *CodeRepository {
	return &CodeRepository{pool: pool}
}

func scanCode(row pgx.Row) (*model.Code, error) {
	var c model.Code
	err := row.Scan(
		&c.ID, &c.SeqID, &c.CanonicalKey, &c.Value, &c.PrizeID,
		&c.Claimed, &c.ClaimedAt, &c.ClaimedBy, &c.Month, &c.DeletedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindByKey retrieves the non-deleted code with the given canonical key.
// Returns ErrCodeNotFound if no such code exists.
func (r *CodeRepository) FindByKey(ctx context.Context, key string) (*model.Code, error) {
	query := `SELECT ` + codeColumns + ` FROM codes WHERE canonical_key = $1 AND deleted_at IS NULL`

	code, err := scanCode(r.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to find code: %w", err)
	}
	return code, nil
}

// GetByID retrieves a code by its row id, deleted or not.
func (r *CodeRepository) GetByID(ctx context.Context, id int64) (*model.Code, error) {
	query := `SELECT ` + codeColumns + ` FROM codes WHERE id = $1`

	code, err := scanCode(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get code: %w", err)
	}
	return code, nil
}

// Claim performs the atomic unclaimed-to-claimed transition. It succeeds
// for exactly one caller per code: the conditional update modifies the row
// only while claimed is still false. Returns whether this caller won.
func (r *CodeRepository) Claim(ctx context.Context, id int64, userID int64) (bool, error) {
	const query = `
		UPDATE codes
		SET claimed = TRUE, claimed_at = NOW(), claimed_by = $2
		WHERE id = $1 AND claimed = FALSE AND deleted_at IS NULL
	`

	tag, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to claim code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertBatch inserts codes with a single batched round trip. Conflicts on
// the canonical key of live rows are dropped silently. Returns the number
// of rows actually inserted.
func (r *CodeRepository) InsertBatch(ctx context.Context, codes []*model.Code) (int64, error) {
	const query = `
		INSERT INTO codes (seq_id, canonical_key, value, prize_id, month)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (canonical_key) WHERE deleted_at IS NULL DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, c := range codes {
		batch.Queue(query, c.SeqID, c.CanonicalKey, c.Value, c.PrizeID, c.Month)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	// The batch pipelines to a single Sync, so an error that ON CONFLICT
	// cannot absorb aborts the statements queued after it. The caller
	// isolates failures at batch granularity, not per row.
	var inserted int64
	for range codes {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to insert code batch: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// ActiveKeys returns the canonical keys of all non-deleted codes.
func (r *CodeRepository) ActiveKeys(ctx context.Context) (map[string]struct{}, error) {
	const query = `SELECT canonical_key FROM codes WHERE deleted_at IS NULL`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load code keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan code key: %w", err)
		}
		keys[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating code keys: %w", err)
	}
	return keys, nil
}

// MaxSeqID returns the highest sequential id ever assigned, including
// soft-deleted rows so ids are never reused after a clear.
func (r *CodeRepository) MaxSeqID(ctx context.Context) (int64, error) {
	const query = `SELECT COALESCE(MAX(seq_id), 0) FROM codes`

	var max int64
	if err := r.pool.QueryRow(ctx, query).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to get max seq id: %w", err)
	}
	return max, nil
}

// CountActive returns the number of non-deleted codes.
func (r *CodeRepository) CountActive(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM codes WHERE deleted_at IS NULL`

	var n int64
	if err := r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count codes: %w", err)
	}
	return n, nil
}

// CountClaimed returns the number of non-deleted claimed codes.
func (r *CodeRepository) CountClaimed(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM codes WHERE deleted_at IS NULL AND claimed = TRUE`

	var n int64
	if err := r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count claimed codes: %w", err)
	}
	return n, nil
}

// CountClaimedBy returns how many codes a participant has claimed.
func (r *CodeRepository) CountClaimedBy(ctx context.Context, userID int64) (int64, error) {
	const query = `SELECT COUNT(*) FROM codes WHERE deleted_at IS NULL AND claimed_by = $1`

	var n int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count claims: %w", err)
	}
	return n, nil
}

// SoftDeleteAll marks every live code deleted. Rows stay in place so their
// sequential ids are never handed out again.
func (r *CodeRepository) SoftDeleteAll(ctx context.Context) (int64, error) {
	const query = `UPDATE codes SET deleted_at = NOW() WHERE deleted_at IS NULL`

	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to soft delete codes: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ClaimsByDay returns claim counts per calendar day within [from, to).
func (r *CodeRepository) ClaimsByDay(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	const query = `
		SELECT TO_CHAR(claimed_at, 'YYYY-MM-DD'), COUNT(*)
		FROM codes
		WHERE deleted_at IS NULL AND claimed = TRUE
		  AND claimed_at >= $1 AND claimed_at < $2
		GROUP BY 1
	`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get claims by day: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var day string
		var n int64
		if err := rows.Scan(&day, &n); err != nil {
			return nil, fmt.Errorf("failed to scan claim count: %w", err)
		}
		counts[day] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claim counts: %w", err)
	}
	return counts, nil
}

// List returns a page of codes with claimant and prize details joined,
// most recently claimed first.
func (r *CodeRepository) List(ctx context.Context, opts ListOptions) ([]*model.CodeListItem, int64, error) {
	opts.normalize()

	const baseFilter = `c.deleted_at IS NULL
		AND ($1 = '' OR c.value ILIKE '%' || $1 || '%' OR c.canonical_key ILIKE '%' || $1 || '%')
		AND ($2::boolean IS NULL OR c.claimed = $2)
		AND ($3 = '' OR c.month = $3)`

	countQuery := `SELECT COUNT(*) FROM codes c WHERE ` + baseFilter

	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, opts.Search, opts.Claimed, opts.Month).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count code listing: %w", err)
	}

	query := `
		SELECT c.id, c.seq_id, c.value, c.prize_id, c.claimed, c.claimed_at, c.claimed_by, c.month,
		       p.first_name, p.phone_number, g.name
		FROM codes c
		LEFT JOIN participants p ON p.telegram_id = c.claimed_by
		LEFT JOIN prizes g ON g.id = c.prize_id
		WHERE ` + baseFilter + `
		ORDER BY c.claimed_at DESC NULLS LAST, c.seq_id ASC
		LIMIT $4 OFFSET $5
	`

	rows, err := r.pool.Query(ctx, query, opts.Search, opts.Claimed, opts.Month, opts.Limit, opts.offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list codes: %w", err)
	}
	defer rows.Close()

	var items []*model.CodeListItem
	for rows.Next() {
		var it model.CodeListItem
		err := rows.Scan(
			&it.ID, &it.SeqID, &it.Value, &it.PrizeID, &it.Claimed, &it.ClaimedAt, &it.ClaimedBy, &it.Month,
			&it.ClaimantName, &it.ClaimantPhone, &it.PrizeName,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan code listing: %w", err)
		}
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating code listing: %w", err)
	}
	return items, total, nil
}
