package sqlitestore

import (
	"context"
	"fmt"

	"github.com/inaiurai/relay/internal/models"
)

var bumpQueries = map[models.QuotaKind]string{
	models.QuotaRate: `
		INSERT INTO quota_state (account_id, rate_window, rate_count) VALUES (?, ?, 1)
		ON CONFLICT (account_id) DO UPDATE SET
			rate_count  = CASE WHEN rate_window = excluded.rate_window THEN rate_count + 1 ELSE 1 END,
			rate_window = excluded.rate_window
		RETURNING rate_count`,
	models.QuotaMedia: `
		INSERT INTO quota_state (account_id, media_window, media_count) VALUES (?, ?, 1)
		ON CONFLICT (account_id) DO UPDATE SET
			media_count  = CASE WHEN media_window = excluded.media_window THEN media_count + 1 ELSE 1 END,
			media_window = excluded.media_window
		RETURNING media_count`,
}

func (s *Store) BumpWindow(ctx context.Context, accountID string, kind models.QuotaKind, window string) (int, error) {
	q, ok := bumpQueries[kind]
	if !ok {
		return 0, fmt.Errorf("unknown quota kind %q", kind)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, q, accountID, window).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) GetQuotaState(ctx context.Context, accountID string) (*models.QuotaState, error) {
	var q models.QuotaState
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, rate_window, rate_count, media_window, media_count
		FROM quota_state WHERE account_id = ?
	`, accountID).Scan(&q.AccountID, &q.RateWindow, &q.RateCount, &q.MediaWindow, &q.MediaCount)
	if err != nil {
		return nil, notFound(err)
	}
	return &q, nil
}
