// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"promo-code-bot/internal/model"
	"promo-code-bot/internal/pkg/codeword"
	"promo-code-bot/internal/repository"
)

// ErrConsistency reports a broken atomicity guarantee: the conditional
// claim update modified no rows, yet a re-read still shows the code
// unclaimed. This is fatal for the request and must reach operators.
var ErrConsistency = errors.New("claim update modified no rows but code is still unclaimed")

// CodeClaimStore is the plain-code access the redemption engine needs.
type CodeClaimStore interface {
	FindByKey(ctx context.Context, key string) (*model.Code, error)
	GetByID(ctx context.Context, id int64) (*model.Code, error)
	Claim(ctx context.Context, id int64, userID int64) (bool, error)
	CountClaimedBy(ctx context.Context, userID int64) (int64, error)
}

// WinnerClaimStore is the winner-code access the redemption engine needs.
type WinnerClaimStore interface {
	FindByKey(ctx context.Context, key string) (*model.WinnerCode, error)
	GetByID(ctx context.Context, id int64) (*model.WinnerCode, error)
	Claim(ctx context.Context, id int64, userID int64) (bool, error)
	CountClaimedBy(ctx context.Context, userID int64) (int64, error)
}

// PrizeResolver resolves prizes after a successful claim.
type PrizeResolver interface {
	GetOrCreate(ctx context.Context, tier model.Tier) (*model.Prize, error)
	GetByID(ctx context.Context, id int64) (*model.Prize, error)
	IncrementClaimed(ctx context.Context, id int64) error
}

// UsageLedger is the append-only submission log. Writes are best-effort.
type UsageLedger interface {
	Append(ctx context.Context, entry *model.UsageLogEntry) error
}

// RedemptionService decides the outcome of a submitted code: it validates
// the format, enforces the per-user cap, looks the code up (winner store
// first), performs the one-time claim and resolves the prize.
type RedemptionService struct {
	codes   CodeClaimStore
	winners WinnerClaimStore
	prizes  PrizeResolver
	ledger  UsageLedger
	// limit caps successful claims per participant; 0 disables the gate.
	limit int
}

// NewRedemptionService creates a new RedemptionService instance.
func NewRedemptionService(
	codes CodeClaimStore,
	winners WinnerClaimStore,
	prizes PrizeResolver,
	ledger UsageLedger,
	codeLimitPerUser int,
) *RedemptionService {
	return &RedemptionService{
		codes:   codes,
		winners: winners,
		prizes:  prizes,
		ledger:  ledger,
		limit:   codeLimitPerUser,
	}
}

// Redeem processes one submission. Expected results (bad format, cap
// reached, unknown code, already claimed) come back as typed outcomes;
// only storage failures and consistency violations surface as errors.
func (s *RedemptionService) Redeem(ctx context.Context, rawText string, userID int64) (*model.Outcome, error) {
	// Malformed input is rejected before any store access.
	if !codeword.WellFormed(rawText) {
		return &model.Outcome{Kind: model.OutcomeInvalidFormat}, nil
	}

	// The cap gate runs before lookup so capped users cost no code-store
	// reads.
	if s.limit > 0 {
		used, err := s.claimsBy(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to check claim cap: %w", err)
		}
		if used >= int64(s.limit) {
			return &model.Outcome{Kind: model.OutcomeLimitReached}, nil
		}
	}

	key := codeword.Normalize(rawText)

	// Winner codes are authoritative: check them before plain codes.
	winner, err := s.winners.FindByKey(ctx, key)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("winner lookup failed: %w", err)
	}

	var code *model.Code
	if winner == nil {
		code, err = s.codes.FindByKey(ctx, key)
		if err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("code lookup failed: %w", err)
		}
	}

	s.logUsage(ctx, userID, rawText, code, winner)

	if winner == nil && code == nil {
		return &model.Outcome{Kind: model.OutcomeNotFound}, nil
	}

	if winner != nil {
		return s.redeemWinner(ctx, winner, userID)
	}
	return s.redeemCode(ctx, code, userID)
}

func (s *RedemptionService) redeemWinner(ctx context.Context, w *model.WinnerCode, userID int64) (*model.Outcome, error) {
	// One-time use is global: the original claimant replaying the code
	// gets the same answer as anyone else.
	if w.Claimed {
		return &model.Outcome{Kind: model.OutcomeAlreadyClaimed}, nil
	}

	won, err := s.winners.Claim(ctx, w.ID, userID)
	if err != nil {
		return nil, err
	}
	if !won {
		// A concurrent writer must have claimed it; a single re-read
		// settles which. There is nothing to retry.
		fresh, err := s.winners.GetByID(ctx, w.ID)
		if err != nil {
			return nil, err
		}
		if !fresh.Claimed {
			log.Error().Int64("winner_code_id", w.ID).Msg("Claim atomicity violated")
			return nil, ErrConsistency
		}
		return &model.Outcome{Kind: model.OutcomeAlreadyClaimed}, nil
	}

	return s.resolveTier(ctx, w.Tier, w.Value), nil
}

func (s *RedemptionService) redeemCode(ctx context.Context, c *model.Code, userID int64) (*model.Outcome, error) {
	if c.Claimed {
		return &model.Outcome{Kind: model.OutcomeAlreadyClaimed}, nil
	}

	won, err := s.codes.Claim(ctx, c.ID, userID)
	if err != nil {
		return nil, err
	}
	if !won {
		fresh, err := s.codes.GetByID(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if !fresh.Claimed {
			log.Error().Int64("code_id", c.ID).Msg("Claim atomicity violated")
			return nil, ErrConsistency
		}
		return &model.Outcome{Kind: model.OutcomeAlreadyClaimed}, nil
	}

	// Plain codes may carry a direct prize reference.
	if c.PrizeID == nil {
		return &model.Outcome{Kind: model.OutcomePlainSuccess}, nil
	}

	prize, err := s.prizes.GetByID(ctx, *c.PrizeID)
	if err != nil {
		// The claim already happened and must stand; missing prize
		// bookkeeping degrades the outcome, it never rolls back.
		log.Warn().Err(err).Int64("code_id", c.ID).Int64("prize_id", *c.PrizeID).
			Msg("Prize resolution failed, degrading to plain success")
		return &model.Outcome{Kind: model.OutcomePlainSuccess}, nil
	}

	if err := s.prizes.IncrementClaimed(ctx, prize.ID); err != nil {
		log.Warn().Err(err).Int64("prize_id", prize.ID).Msg("Failed to increment prize claim counter")
	}
	return &model.Outcome{Kind: model.OutcomePrizeSuccess, Tier: prize.Tier, Prize: prize}, nil
}

// resolveTier loads (or lazily creates) the prize for a tier and bumps its
// claim counter. Resolution failure degrades to a plain success.
func (s *RedemptionService) resolveTier(ctx context.Context, tier model.Tier, value string) *model.Outcome {
	if tier == "" {
		return &model.Outcome{Kind: model.OutcomePlainSuccess}
	}

	prize, err := s.prizes.GetOrCreate(ctx, tier)
	if err != nil {
		log.Warn().Err(err).Str("tier", string(tier)).Str("code", value).
			Msg("Prize resolution failed, degrading to plain success")
		return &model.Outcome{Kind: model.OutcomePlainSuccess}
	}

	if err := s.prizes.IncrementClaimed(ctx, prize.ID); err != nil {
		log.Warn().Err(err).Int64("prize_id", prize.ID).Msg("Failed to increment prize claim counter")
	}
	return &model.Outcome{Kind: model.OutcomePrizeSuccess, Tier: tier, Prize: prize}
}

// claimsBy sums a participant's successful claims across both populations.
func (s *RedemptionService) claimsBy(ctx context.Context, userID int64) (int64, error) {
	plain, err := s.codes.CountClaimedBy(ctx, userID)
	if err != nil {
		return 0, err
	}
	winners, err := s.winners.CountClaimedBy(ctx, userID)
	if err != nil {
		return 0, err
	}
	return plain + winners, nil
}

// logUsage appends to the ledger; failures are logged and swallowed so
// redemption never blocks on observability.
func (s *RedemptionService) logUsage(ctx context.Context, userID int64, rawText string, code *model.Code, winner *model.WinnerCode) {
	entry := &model.UsageLogEntry{
		ParticipantID: userID,
		SubmittedText: rawText,
	}
	if code != nil {
		entry.CodeID = &code.ID
	}
	if winner != nil {
		entry.WinnerCodeID = &winner.ID
	}
	if err := s.ledger.Append(ctx, entry); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to append usage log")
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrCodeNotFound) || errors.Is(err, repository.ErrWinnerNotFound)
}
