package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"promo-code-bot/internal/model"
)

// UsageLogRepository handles the append-only submission ledger.
type UsageLogRepository struct {
	pool *pgxpool.Pool
}

// NewUsageLogRepository creates a new UsageLogRepository instance.
func NewUsageLogRepository(pool *pgxpool.Pool) *UsageLogRepository {
	return &UsageLogRepository{pool: pool}
}

// Append records one submission attempt. Callers treat failures as
// non-fatal; the ledger is observability, not correctness.
func (r *UsageLogRepository) Append(ctx context.Context, entry *model.UsageLogEntry) error {
	const query = `
		INSERT INTO usage_log (participant_id, submitted_text, code_id, winner_code_id)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query, entry.ParticipantID, entry.SubmittedText, entry.CodeID, entry.WinnerCodeID)
	if err != nil {
		return fmt.Errorf("failed to append usage log: %w", err)
	}
	return nil
}

// List returns a page of ledger entries with participant details, newest
// first.
func (r *UsageLogRepository) List(ctx context.Context, opts ListOptions) ([]*model.UsageListItem, int64, error) {
	opts.normalize()

	const baseFilter = `($1 = '' OR u.submitted_text ILIKE '%' || $1 || '%')`

	countQuery := `SELECT COUNT(*) FROM usage_log u WHERE ` + baseFilter

	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, opts.Search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count usage log: %w", err)
	}

	query := `
		SELECT u.id, u.participant_id, u.submitted_text, u.code_id, u.winner_code_id, u.created_at,
		       p.first_name, p.phone_number
		FROM usage_log u
		LEFT JOIN participants p ON p.telegram_id = u.participant_id
		WHERE ` + baseFilter + `
		ORDER BY u.created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, opts.Search, opts.Limit, opts.offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list usage log: %w", err)
	}
	defer rows.Close()

	var items []*model.UsageListItem
	for rows.Next() {
		var it model.UsageListItem
		err := rows.Scan(
			&it.ID, &it.ParticipantID, &it.SubmittedText, &it.CodeID, &it.WinnerCodeID, &it.CreatedAt,
			&it.FirstName, &it.PhoneNumber,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan usage log: %w", err)
		}
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating usage log: %w", err)
	}
	return items, total, nil
}

// Count returns the total number of ledger entries.
func (r *UsageLogRepository) Count(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM usage_log`

	var n int64
	if err := r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count usage log: %w", err)
	}
	return n, nil
}
