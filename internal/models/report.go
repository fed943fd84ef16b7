package models

import "time"

type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type DailyCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

type AccountActivity struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username,omitempty"`
	Messages  int    `json:"messages"`
}

// Report is the admin usage summary.
type Report struct {
	TotalAccounts         int               `json:"total_accounts"`
	TierDistribution      []NamedCount      `json:"tier_distribution"`
	TotalMessages         int               `json:"total_messages"`
	AvgMessagesPerAccount float64           `json:"avg_messages_per_account"`
	PersonaPopularity     []NamedCount      `json:"persona_popularity"`
	DailyActivity         []DailyCount      `json:"daily_activity"`
	TopAccounts           []AccountActivity `json:"top_accounts"`
	GeneratedAt           time.Time         `json:"generated_at"`
}

// FillDays turns per-day counts into a dense series of the last `days` days
// ending on now's day, oldest first.
func FillDays(counts map[string]int, days int, now time.Time) []DailyCount {
	out := make([]DailyCount, 0, days)
	start := now.AddDate(0, 0, -(days - 1))
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i).Format("2006-01-02")
		out = append(out, DailyCount{Day: d, Count: counts[d]})
	}
	return out
}
