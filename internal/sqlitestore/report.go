package sqlitestore

import (
	"context"
	"time"

	"github.com/inaiurai/relay/internal/models"
)

func (s *Store) Report(ctx context.Context, days, top int, now time.Time) (*models.Report, error) {
	now = now.UTC()
	rep := &models.Report{GeneratedAt: now}

	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM accounts`).Scan(&rep.TotalAccounts); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM messages`).Scan(&rep.TotalMessages); err != nil {
		return nil, err
	}
	if rep.TotalAccounts > 0 {
		rep.AvgMessagesPerAccount = float64(rep.TotalMessages) / float64(rep.TotalAccounts)
	}

	var err error
	if rep.TierDistribution, err = s.namedCounts(ctx, `
		SELECT tier, count(*) AS n FROM subscriptions GROUP BY tier ORDER BY n DESC, tier
	`); err != nil {
		return nil, err
	}
	if rep.PersonaPopularity, err = s.namedCounts(ctx, `
		SELECT persona, count(*) AS n FROM preferences GROUP BY persona ORDER BY n DESC, persona
	`); err != nil {
		return nil, err
	}

	since := now.AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)
	rows, err := s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%d', created_at / 1000, 'unixepoch') AS day, count(*)
		FROM messages WHERE role = 'user' AND created_at >= ?
		GROUP BY day
	`, since.UnixMilli())
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

	rows, err = s.db.QueryContext(ctx, `
		SELECT m.account_id, a.username, count(*) AS n
		FROM messages m JOIN accounts a ON a.id = m.account_id
		WHERE m.role = 'user'
		GROUP BY m.account_id, a.username
		ORDER BY n DESC, m.account_id
		LIMIT ?
	`, top)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a models.AccountActivity
		if err := rows.Scan(&a.AccountID, &a.Username, &a.Messages); err != nil {
			return nil, err
		}
		rep.TopAccounts = append(rep.TopAccounts, a)
	}
	return rep, rows.Err()
}

func (s *Store) namedCounts(ctx context.Context, q string) ([]models.NamedCount, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.NamedCount
	for rows.Next() {
		var c models.NamedCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
