package service

import (
	"context"
	"fmt"
	"time"

	"promo-code-bot/internal/model"
	"promo-code-bot/internal/repository"
)

var dayLabels = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// OverviewService assembles the dashboard landing view: campaign totals,
// a 7-day usage series and the latest redemptions.
type OverviewService struct {
	codes        *repository.CodeRepository
	participants *repository.ParticipantRepository
}

// NewOverviewService creates a new OverviewService instance.
func NewOverviewService(codes *repository.CodeRepository, participants *repository.ParticipantRepository) *OverviewService {
	return &OverviewService{codes: codes, participants: participants}
}

// Summary builds the overview payload.
func (s *OverviewService) Summary(ctx context.Context) (*model.Overview, error) {
	total, err := s.codes.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	used, err := s.codes.CountClaimed(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.participants.CountWithClaims(ctx)
	if err != nil {
		return nil, err
	}

	weekly, err := s.weeklyUsage(ctx)
	if err != nil {
		return nil, err
	}

	claimed := true
	recent, _, err := s.codes.List(ctx, repository.ListOptions{Page: 1, Limit: 10, Claimed: &claimed})
	if err != nil {
		return nil, fmt.Errorf("failed to load recent activity: %w", err)
	}

	return &model.Overview{
		Totals: model.OverviewTotals{
			TotalCodes:     total,
			UsedCodes:      used,
			AvailableCodes: total - used,
			ActiveUsers:    active,
		},
		WeeklyUsage:    weekly,
		RecentActivity: recent,
	}, nil
}

// weeklyUsage returns one bucket per day for the last 7 days, zero-filled.
func (s *OverviewService) weeklyUsage(ctx context.Context) ([]model.DayUsage, error) {
	now := time.Now()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
	start := end.Add(-7 * 24 * time.Hour)

	counts, err := s.codes.ClaimsByDay(ctx, start, end)
	if err != nil {
		return nil, err
	}

	usage := make([]model.DayUsage, 0, 7)
	for d := start; d.Before(end); d = d.Add(24 * time.Hour) {
		date := d.Format("2006-01-02")
		usage = append(usage, model.DayUsage{
			Date:      date,
			DayLabel:  dayLabels[d.Weekday()],
			UsedCodes: counts[date],
		})
	}
	return usage, nil
}
