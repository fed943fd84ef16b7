package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inaiurai/relay/internal/models"
)

type ReportRepo struct {
	pool *pgxpool.Pool
}

func NewReportRepo(pool *pgxpool.Pool) *ReportRepo {
	return &ReportRepo{pool: pool}
}

// Report aggregates usage over all accounts. Daily activity covers the last
// `days` days (UTC) and counts user messages only.
func (r *ReportRepo) Report(ctx context.Context, days, top int, now time.Time) (*models.Report, error) {
	now = now.UTC()
	rep := &models.Report{GeneratedAt: now}

	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM accounts`).Scan(&rep.TotalAccounts); err != nil {
		return nil, err
	}
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM messages`).Scan(&rep.TotalMessages); err != nil {
		return nil, err
	}
	if rep.TotalAccounts > 0 {
		rep.AvgMessagesPerAccount = float64(rep.TotalMessages) / float64(rep.TotalAccounts)
	}

	var err error
	rep.TierDistribution, err = r.namedCounts(ctx, `
		SELECT tier, count(*) FROM subscriptions GROUP BY tier ORDER BY count(*) DESC, tier
	`)
	if err != nil {
		return nil, err
	}
	rep.PersonaPopularity, err = r.namedCounts(ctx, `
		SELECT persona, count(*) FROM preferences GROUP BY persona ORDER BY count(*) DESC, persona
	`)
	if err != nil {
		return nil, err
	}

	since := now.AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, count(*)
		FROM messages WHERE role = 'user' AND created_at >= $1
		GROUP BY day
	`, since)
	if err != nil {
		return nil, err
	}
	perDay := make(map[string]int)
	for rows.Next() {
		var day string
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			rows.Close()
			return nil, err
		}
		perDay[day] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rep.DailyActivity = models.FillDays(perDay, days, now)

	rows, err = r.pool.Query(ctx, `
		SELECT m.account_id, a.username, count(*)
		FROM messages m JOIN accounts a ON a.id = m.account_id
		WHERE m.role = 'user'
		GROUP BY m.account_id, a.username
		ORDER BY count(*) DESC, m.account_id
		LIMIT $1
	`, top)
	if err != nil {
		return nil, err
	}
	rep.TopAccounts, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AccountActivity, error) {
		var a models.AccountActivity
		err := row.Scan(&a.AccountID, &a.Username, &a.Messages)
		return a, err
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func (r *ReportRepo) namedCounts(ctx context.Context, q string) ([]models.NamedCount, error) {
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.NamedCount, error) {
		var c models.NamedCount
		err := row.Scan(&c.Name, &c.Count)
		return c, err
	})
}
