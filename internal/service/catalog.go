package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"promo-code-bot/internal/model"
	"promo-code-bot/internal/repository"
)

// tierNames are the default display names for lazily created prizes.
var tierNames = map[model.Tier]string{
	model.TierPremium:  "Premium sovg'a",
	model.TierStandard: "Standard sovg'a",
	model.TierEconomy:  "Economy sovg'a",
	model.TierSymbolic: "Symbolic sovg'a",
}

// CatalogService manages the prize catalog: one live prize per tier,
// created on first need with a placeholder image.
type CatalogService struct {
	prizes *repository.PrizeRepository
}

// NewCatalogService creates a new CatalogService instance.
func NewCatalogService(prizes *repository.PrizeRepository) *CatalogService {
	return &CatalogService{prizes: prizes}
}

// GetOrCreate returns the live prize for a tier, creating it with a
// placeholder asset when the tier has none yet. Idempotent under
// concurrent callers: the partial unique index makes the second insert a
// no-op, and the loser re-reads.
func (s *CatalogService) GetOrCreate(ctx context.Context, tier model.Tier) (*model.Prize, error) {
	prize, err := s.prizes.GetByTier(ctx, tier)
	if err == nil {
		return prize, nil
	}
	if !errors.Is(err, repository.ErrPrizeNotFound) {
		return nil, fmt.Errorf("failed to look up prize for tier %s: %w", tier, err)
	}

	name, ok := tierNames[tier]
	if !ok {
		name = string(tier)
	}
	placeholder := fmt.Sprintf("/files/gift-images/placeholder_%s.jpg", tier)
	images := map[string]string{"uz": placeholder, "ru": placeholder}

	prize, err = s.prizes.Create(ctx, tier, name, images)
	if err == nil {
		log.Info().Str("tier", string(tier)).Msg("Created prize with placeholder image")
		return prize, nil
	}
	if !errors.Is(err, repository.ErrPrizeNotFound) {
		return nil, fmt.Errorf("failed to create prize for tier %s: %w", tier, err)
	}

	// Lost the create race; the winner's row is there to read.
	prize, err = s.prizes.GetByTier(ctx, tier)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read prize for tier %s: %w", tier, err)
	}
	return prize, nil
}

// GetByID returns a live prize by row id.
func (s *CatalogService) GetByID(ctx context.Context, id int64) (*model.Prize, error) {
	return s.prizes.GetByID(ctx, id)
}

// IncrementClaimed bumps a prize's claim counter.
func (s *CatalogService) IncrementClaimed(ctx context.Context, id int64) error {
	return s.prizes.IncrementClaimed(ctx, id)
}

// AddIssued records n newly issued winner codes against a prize.
func (s *CatalogService) AddIssued(ctx context.Context, id int64, n int64) error {
	return s.prizes.AddIssued(ctx, id, n)
}

// List returns all live prizes.
func (s *CatalogService) List(ctx context.Context) ([]*model.Prize, error) {
	return s.prizes.List(ctx)
}
