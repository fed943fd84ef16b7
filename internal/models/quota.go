package models

// QuotaKind selects one of the two counters kept per account.
type QuotaKind string

const (
	QuotaRate  QuotaKind = "rate"
	QuotaMedia QuotaKind = "media"
)

// QuotaState is the stored counter pair for an account. A window is the
// formatted minute ("2006-01-02 15:04") or day ("2006-01-02") the count
// belongs to.
type QuotaState struct {
	AccountID   string `json:"account_id"`
	RateWindow  string `json:"rate_window"`
	RateCount   int    `json:"rate_count"`
	MediaWindow string `json:"media_window"`
	MediaCount  int    `json:"media_count"`
}
