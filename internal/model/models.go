// Package model defines the data models for the promo-code redemption bot.
package model

import "time"

// Tier is the prize category a winner code grants.
type Tier string

// Known prize tiers, from most to least valuable.
const (
	TierPremium  Tier = "premium"
	TierStandard Tier = "standard"
	TierEconomy  Tier = "economy"
	TierSymbolic Tier = "symbolic"
)

// Tiers lists all known tiers in display order.
func Tiers() []Tier {
	return []Tier{TierPremium, TierStandard, TierEconomy, TierSymbolic}
}

// ParseTier returns the tier for s, or "" if s is not a known tier.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierPremium, TierStandard, TierEconomy, TierSymbolic:
		return Tier(s)
	}
	return ""
}

// Population identifies which code store a row belongs to.
type Population string

const (
	PopulationCode   Population = "codes"
	PopulationWinner Population = "winner_codes"
)

// Code is a plain promotional code.
// CanonicalKey is the unique business key (uppercase alphanumerics, no
// separators); Value is the display form shown back to users.
type Code struct {
	ID           int64      `db:"id"`
	SeqID        int64      `db:"seq_id"`
	CanonicalKey string     `db:"canonical_key"`
	Value        string     `db:"value"`
	PrizeID      *int64     `db:"prize_id"`
	Claimed      bool       `db:"claimed"`
	ClaimedAt    *time.Time `db:"claimed_at"`
	ClaimedBy    *int64     `db:"claimed_by"`
	Month        *string    `db:"month"`
	DeletedAt    *time.Time `db:"deleted_at"`
	CreatedAt    time.Time  `db:"created_at"`
}

// WinnerCode is a designated high-value code. It is a separate population
// from Code and always carries a tier and a prize reference.
type WinnerCode struct {
	ID           int64      `db:"id"`
	SeqID        int64      `db:"seq_id"`
	CanonicalKey string     `db:"canonical_key"`
	Value        string     `db:"value"`
	Tier         Tier       `db:"tier"`
	PrizeID      int64      `db:"prize_id"`
	Claimed      bool       `db:"claimed"`
	ClaimedAt    *time.Time `db:"claimed_at"`
	ClaimedBy    *int64     `db:"claimed_by"`
	Month        *string    `db:"month"`
	DeletedAt    *time.Time `db:"deleted_at"`
	CreatedAt    time.Time  `db:"created_at"`
}

// Prize is the catalog entry for a tier. At most one non-deleted prize
// exists per tier; counters only ever grow.
type Prize struct {
	ID           int64             `db:"id"`
	SeqID        int64             `db:"seq_id"`
	Tier         Tier              `db:"tier"`
	Name         string            `db:"name"`
	Images       map[string]string `db:"images"` // locale -> asset path
	TotalIssued  int64             `db:"total_issued"`
	TotalClaimed int64             `db:"total_claimed"`
	DeletedAt    *time.Time        `db:"deleted_at"`
	CreatedAt    time.Time         `db:"created_at"`
}

// UsageLogEntry records a single submission attempt, matched or not.
// Appends are best-effort and never block redemption.
type UsageLogEntry struct {
	ID            int64     `db:"id"`
	ParticipantID int64     `db:"participant_id"`
	SubmittedText string    `db:"submitted_text"`
	CodeID        *int64    `db:"code_id"`
	WinnerCodeID  *int64    `db:"winner_code_id"`
	CreatedAt     time.Time `db:"created_at"`
}

// Participant is a Telegram user taking part in the campaign.
type Participant struct {
	TelegramID  int64     `db:"telegram_id"`
	FirstName   string    `db:"first_name"`
	TgFirstName string    `db:"tg_first_name"`
	TgLastName  string    `db:"tg_last_name"`
	PhoneNumber string    `db:"phone_number"`
	Lang        string    `db:"lang"`
	LastSeenAt  time.Time `db:"last_seen_at"`
	CreatedAt   time.Time `db:"created_at"`
}

// OutcomeKind classifies the result of a redemption attempt.
type OutcomeKind string

const (
	OutcomeInvalidFormat  OutcomeKind = "invalid_format"
	OutcomeLimitReached   OutcomeKind = "limit_reached"
	OutcomeNotFound       OutcomeKind = "not_found"
	OutcomeAlreadyClaimed OutcomeKind = "already_claimed"
	OutcomePlainSuccess   OutcomeKind = "plain_success"
	OutcomePrizeSuccess   OutcomeKind = "prize_success"
)

// Outcome is the typed result of a redemption attempt. Tier and Prize are
// set only for OutcomePrizeSuccess.
type Outcome struct {
	Kind  OutcomeKind
	Tier  Tier
	Prize *Prize
}

// IngestSummary reports the result of a bulk code upload.
type IngestSummary struct {
	Accepted   int64 `json:"accepted"`
	Duplicates int64 `json:"duplicates"`
	TotalAfter int64 `json:"totalInStoreAfter"`
}
