package model

import "time"

// CodeListItem is a dashboard row for either code population, with the
// claimant and prize joined in.
type CodeListItem struct {
	ID            int64      `json:"id"`
	SeqID         int64      `json:"seqId"`
	Value         string     `json:"value"`
	Tier          Tier       `json:"tier,omitempty"`
	PrizeID       *int64     `json:"prizeId"`
	Claimed       bool       `json:"claimed"`
	ClaimedAt     *time.Time `json:"claimedAt"`
	ClaimedBy     *int64     `json:"claimedBy"`
	Month         *string    `json:"month"`
	ClaimantName  *string    `json:"claimantName"`
	ClaimantPhone *string    `json:"claimantPhone"`
	PrizeName     *string    `json:"prizeName"`
}

// UsageListItem is a dashboard row for the submission ledger.
type UsageListItem struct {
	ID            int64     `json:"id"`
	ParticipantID int64     `json:"participantId"`
	SubmittedText string    `json:"submittedText"`
	CodeID        *int64    `json:"codeId"`
	WinnerCodeID  *int64    `json:"winnerCodeId"`
	CreatedAt     time.Time `json:"createdAt"`
	FirstName     *string   `json:"firstName"`
	PhoneNumber   *string   `json:"phoneNumber"`
}

// DayUsage is one bucket of the dashboard's weekly usage series.
type DayUsage struct {
	Date      string `json:"date"`
	DayLabel  string `json:"dayLabel"`
	UsedCodes int64  `json:"usedCodes"`
}

// OverviewTotals summarizes the campaign for the dashboard landing view.
type OverviewTotals struct {
	TotalCodes     int64 `json:"totalCodes"`
	UsedCodes      int64 `json:"usedCodes"`
	AvailableCodes int64 `json:"availableCodes"`
	ActiveUsers    int64 `json:"activeUsers"`
}

// Overview is the dashboard landing payload.
type Overview struct {
	Totals         OverviewTotals  `json:"totals"`
	WeeklyUsage    []DayUsage      `json:"weeklyUsage"`
	RecentActivity []*CodeListItem `json:"recentActivity"`
}
