package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store bundles the Postgres repositories behind one value so it satisfies
// every store interface the relay packages declare.
type Store struct {
	*AccountRepo
	*SubscriptionRepo
	*PreferenceRepo
	*QuotaRepo
	*MessageRepo
	*MediaRepo
	*SafetyRepo
	*ReportRepo
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		AccountRepo:      NewAccountRepo(pool),
		SubscriptionRepo: NewSubscriptionRepo(pool),
		PreferenceRepo:   NewPreferenceRepo(pool),
		QuotaRepo:        NewQuotaRepo(pool),
		MessageRepo:      NewMessageRepo(pool),
		MediaRepo:        NewMediaRepo(pool),
		SafetyRepo:       NewSafetyRepo(pool),
		ReportRepo:       NewReportRepo(pool),
	}
}
