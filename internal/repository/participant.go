package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"promo-code-bot/internal/model"
)

const participantColumns = `telegram_id, first_name, tg_first_name, tg_last_name, phone_number, lang, last_seen_at, created_at`

// ParticipantRepository handles campaign participant persistence.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a new ParticipantRepository instance.
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

func scanParticipant(row pgx.Row) (*model.Participant, error) {
	var p model.Participant
	err := row.Scan(
		&p.TelegramID, &p.FirstName, &p.TgFirstName, &p.TgLastName,
		&p.PhoneNumber, &p.Lang, &p.LastSeenAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByTelegramID retrieves a participant by their Telegram ID.
// Returns ErrParticipantNotFound if the participant does not exist.
func (r *ParticipantRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*model.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE telegram_id = $1`

	p, err := scanParticipant(r.pool.QueryRow(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

// Create inserts a new participant record.
func (r *ParticipantRepository) Create(ctx context.Context, p *model.Participant) (*model.Participant, error) {
	query := `
		INSERT INTO participants (telegram_id, first_name, tg_first_name, tg_last_name, phone_number, lang)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + participantColumns

	created, err := scanParticipant(r.pool.QueryRow(ctx, query,
		p.TelegramID, p.FirstName, p.TgFirstName, p.TgLastName, p.PhoneNumber, p.Lang,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}
	return created, nil
}

// GetOrCreate retrieves a participant, creating the record on first
// contact. Returns the participant and whether it was newly created.
func (r *ParticipantRepository) GetOrCreate(ctx context.Context, p *model.Participant) (*model.Participant, bool, error) {
	existing, err := r.GetByTelegramID(ctx, p.TelegramID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrParticipantNotFound) {
		return nil, false, err
	}

	created, err := r.Create(ctx, p)
	if err != nil {
		// Another request might have created the participant concurrently.
		existing, err = r.GetByTelegramID(ctx, p.TelegramID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return created, true, nil
}

// UpdateProfile stores the registered display name and phone number.
func (r *ParticipantRepository) UpdateProfile(ctx context.Context, telegramID int64, firstName, phoneNumber string) error {
	const query = `
		UPDATE participants
		SET first_name = $2, phone_number = $3, last_seen_at = NOW()
		WHERE telegram_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, telegramID, firstName, phoneNumber)
	if err != nil {
		return fmt.Errorf("failed to update participant profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// UpdateLang stores the participant's preferred locale.
func (r *ParticipantRepository) UpdateLang(ctx context.Context, telegramID int64, lang string) error {
	const query = `UPDATE participants SET lang = $2 WHERE telegram_id = $1`

	tag, err := r.pool.Exec(ctx, query, telegramID, lang)
	if err != nil {
		return fmt.Errorf("failed to update participant lang: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// TouchLastSeen refreshes the participant's activity timestamp.
func (r *ParticipantRepository) TouchLastSeen(ctx context.Context, telegramID int64) error {
	const query = `UPDATE participants SET last_seen_at = NOW() WHERE telegram_id = $1`

	if _, err := r.pool.Exec(ctx, query, telegramID); err != nil {
		return fmt.Errorf("failed to touch participant: %w", err)
	}
	return nil
}

// CountWithClaims returns how many participants have claimed at least one
// code in either population.
func (r *ParticipantRepository) CountWithClaims(ctx context.Context) (int64, error) {
	const query = `
		SELECT COUNT(*) FROM participants p
		WHERE EXISTS (SELECT 1 FROM codes c WHERE c.claimed_by = p.telegram_id AND c.deleted_at IS NULL)
		   OR EXISTS (SELECT 1 FROM winner_codes w WHERE w.claimed_by = p.telegram_id AND w.deleted_at IS NULL)
	`

	var n int64
	if err := r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active participants: %w", err)
	}
	return n, nil
}
