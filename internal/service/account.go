package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"promo-code-bot/internal/model"
	"promo-code-bot/internal/repository"
)

// ErrInvalidPhone is returned when a submitted phone number fails validation.
var ErrInvalidPhone = errors.New("invalid phone number")

var phoneRe = regexp.MustCompile(`^[0-9]{9,15}$`)

// AccountService handles participant registration and profile updates.
type AccountService struct {
	participants *repository.ParticipantRepository
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(participants *repository.ParticipantRepository) *AccountService {
	return &AccountService{participants: participants}
}

// EnsureParticipant makes sure a participant row exists for the sender and
// refreshes their activity timestamp. Returns the participant and whether
// it was newly created.
func (s *AccountService) EnsureParticipant(ctx context.Context, telegramID int64, tgFirstName, tgLastName, lang string) (*model.Participant, bool, error) {
	if lang == "" {
		lang = "uz"
	}
	p, created, err := s.participants.GetOrCreate(ctx, &model.Participant{
		TelegramID:  telegramID,
		TgFirstName: tgFirstName,
		TgLastName:  tgLastName,
		Lang:        lang,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure participant: %w", err)
	}

	if !created {
		// Non-fatal; the row exists either way.
		_ = s.participants.TouchLastSeen(ctx, telegramID)
	}
	return p, created, nil
}

// RegisterName stores the display name a participant typed in.
func (s *AccountService) RegisterName(ctx context.Context, telegramID int64, name string) error {
	p, err := s.participants.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return err
	}
	return s.participants.UpdateProfile(ctx, telegramID, name, p.PhoneNumber)
}

// RegisterPhone validates and stores a participant's phone number. Spaces
// and a leading plus are tolerated; the rest must be digits.
func (s *AccountService) RegisterPhone(ctx context.Context, telegramID int64, phone string) error {
	cleaned := sanitizePhone(phone)
	if !phoneRe.MatchString(cleaned) {
		return ErrInvalidPhone
	}
	p, err := s.participants.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return err
	}
	return s.participants.UpdateProfile(ctx, telegramID, p.FirstName, cleaned)
}

// SetLang stores the participant's preferred locale.
func (s *AccountService) SetLang(ctx context.Context, telegramID int64, lang string) error {
	return s.participants.UpdateLang(ctx, telegramID, lang)
}

func sanitizePhone(phone string) string {
	out := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		switch phone[i] {
		case ' ', '+', '-', '(', ')':
			continue
		default:
			out = append(out, phone[i])
		}
	}
	return string(out)
}
