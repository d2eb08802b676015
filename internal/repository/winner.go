package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"promo-code-bot/internal/model"
)

// ErrWinnerNotFound is returned when no live winner code matches.
var ErrWinnerNotFound = errors.New("winner code not found")

const winnerColumns = `id, seq_id, canonical_key, value, tier, prize_id, claimed, claimed_at, claimed_by, month, deleted_at, created_at`

// WinnerRepository handles designated winner code persistence. Winner codes
// are a separate population from plain codes and are authoritative when a
// submission matches both.
type WinnerRepository struct {
	pool *pgxpool.Pool
}

// NewWinnerRepository creates a new WinnerRepository instance.
func NewWinnerRepository(pool *pgxpool.Pool) *WinnerRepository {
	return &WinnerRepository{pool: pool}
}

func scanWinner(row pgx.Row) (*model.WinnerCode, error) {
	var w model.WinnerCode
	err := row.Scan(
		&w.ID, &w.SeqID, &w.CanonicalKey, &w.Value, &w.Tier, &w.PrizeID,
		&w.Claimed, &w.ClaimedAt, &w.ClaimedBy, &w.Month, &w.DeletedAt, &w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// FindByKey retrieves the non-deleted winner code with the given canonical
// key. Returns ErrWinnerNotFound if no such code exists.
func (r *WinnerRepository) FindByKey(ctx context.Context, key string) (*model.WinnerCode, error) {
	query := `SELECT ` + winnerColumns + ` FROM winner_codes WHERE canonical_key = $1 AND deleted_at IS NULL`

	w, err := scanWinner(r.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWinnerNotFound
		}
		return nil, fmt.Errorf("failed to find winner code: %w", err)
	}
	return w, nil
}

// GetByID retrieves a winner code by its row id, deleted or not.
func (r *WinnerRepository) GetByID(ctx context.Context, id int64) (*model.WinnerCode, error) {
	query := `SELECT ` + winnerColumns + ` FROM winner_codes WHERE id = $1`

	w, err := scanWinner(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWinnerNotFound
		}
		return nil, fmt.Errorf("failed to get winner code: %w", err)
	}
	return w, nil
}

// Claim performs the atomic unclaimed-to-claimed transition on a winner
// code. Exactly one concurrent caller observes true.
func (r *WinnerRepository) Claim(ctx context.Context, id int64, userID int64) (bool, error) {
	const query = `
		UPDATE winner_codes
		SET claimed = TRUE, claimed_at = NOW(), claimed_by = $2
		WHERE id = $1 AND claimed = FALSE AND deleted_at IS NULL
	`

	tag, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to claim winner code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertBatch inserts winner codes with a single batched round trip,
// dropping canonical-key conflicts against live rows. Returns the number
// of rows actually inserted.
func (r *WinnerRepository) InsertBatch(ctx context.Context, winners []*model.WinnerCode) (int64, error) {
	const query = `
		INSERT INTO winner_codes (seq_id, canonical_key, value, tier, prize_id, month)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (canonical_key) WHERE deleted_at IS NULL DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, w := range winners {
		batch.Queue(query, w.SeqID, w.CanonicalKey, w.Value, w.Tier, w.PrizeID, w.Month)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	// Same Sync semantics as the plain-code batch: an unabsorbed error
	// aborts the statements queued after it within this batch.
	var inserted int64
	for range winners {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to insert winner batch: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// ActiveKeys returns the canonical keys of all non-deleted winner codes.
func (r *WinnerRepository) ActiveKeys(ctx context.Context) (map[string]struct{}, error) {
	const query = `SELECT canonical_key FROM winner_codes WHERE deleted_at IS NULL`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load winner keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan winner key: %w", err)
		}
		keys[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating winner keys: %w", err)
	}
	return keys, nil
}

// MaxSeqID returns the highest sequential id ever assigned to a winner
// code, soft-deleted rows included.
func (r *WinnerRepository) MaxSeqID(ctx context.Context) (int64, error) {
	const query = `SELECT COALESCE(MAX(seq_id), 0) FROM winner_codes`

	var max int64
	if err := r.pool.QueryRow(ctx, query).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to get max winner seq id: %w", err)
	}
	return max, nil
}

// CountActive returns the number of non-deleted winner codes.
func (r *WinnerRepository) CountActive(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM winner_codes WHERE deleted_at IS NULL`

	var n int64
	if err := r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count winner codes: %w", err)
	}
	return n, nil
}

// CountClaimedBy returns how many winner codes a participant has claimed.
func (r *WinnerRepository) CountClaimedBy(ctx context.Context, userID int64) (int64, error) {
	const query = `SELECT COUNT(*) FROM winner_codes WHERE deleted_at IS NULL AND claimed_by = $1`

	var n int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count winner claims: %w", err)
	}
	return n, nil
}

// SoftDeleteAll marks every live winner code deleted.
func (r *WinnerRepository) SoftDeleteAll(ctx context.Context) (int64, error) {
	const query = `UPDATE winner_codes SET deleted_at = NOW() WHERE deleted_at IS NULL`

	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to soft delete winner codes: %w", err)
	}
	return tag.RowsAffected(), nil
}

// List returns a page of winner codes with claimant and prize details
// joined, ordered by sequential id.
func (r *WinnerRepository) List(ctx context.Context, opts ListOptions) ([]*model.CodeListItem, int64, error) {
	opts.normalize()

	const baseFilter = `w.deleted_at IS NULL
		AND ($1 = '' OR w.value ILIKE '%' || $1 || '%' OR w.canonical_key ILIKE '%' || $1 || '%')
		AND ($2::boolean IS NULL OR w.claimed = $2)
		AND ($3 = '' OR w.month = $3)`

	countQuery := `SELECT COUNT(*) FROM winner_codes w WHERE ` + baseFilter

	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, opts.Search, opts.Claimed, opts.Month).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count winner listing: %w", err)
	}

	query := `
		SELECT w.id, w.seq_id, w.value, w.tier, w.prize_id, w.claimed, w.claimed_at, w.claimed_by, w.month,
		       p.first_name, p.phone_number, g.name
		FROM winner_codes w
		LEFT JOIN participants p ON p.telegram_id = w.claimed_by
		LEFT JOIN prizes g ON g.id = w.prize_id
		WHERE ` + baseFilter + `
		ORDER BY w.seq_id ASC
		LIMIT $4 OFFSET $5
	`

	rows, err := r.pool.Query(ctx, query, opts.Search, opts.Claimed, opts.Month, opts.Limit, opts.offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list winner codes: %w", err)
	}
	defer rows.Close()

	var items []*model.CodeListItem
	for rows.Next() {
		var it model.CodeListItem
		var prizeID int64
		err := rows.Scan(
			&it.ID, &it.SeqID, &it.Value, &it.Tier, &prizeID, &it.Claimed, &it.ClaimedAt, &it.ClaimedBy, &it.Month,
			&it.ClaimantName, &it.ClaimantPhone, &it.PrizeName,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan winner listing: %w", err)
		}
		it.PrizeID = &prizeID
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating winner listing: %w", err)
	}
	return items, total, nil
}
