package sqlitestore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inaiurai/relay/internal/models"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureAccount_DefaultsAndProfileRefresh(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureAccount(ctx, "100", models.Profile{FirstName: "Ada", Username: "ada"}))
	require.NoError(t, s.EnsureAccount(ctx, "100", models.Profile{LastName: "Lovelace"}))

	acc, err := s.GetAccount(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, "Ada", acc.FirstName)
	assert.Equal(t, "ada", acc.Username)
	assert.Equal(t, "Lovelace", acc.LastName)

	sub, err := s.GetSubscription(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, sub.Tier)
	assert.Nil(t, sub.ExpiresAt)

	prefs, err := s.GetPreferences(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultModel, prefs.Model)
	assert.Equal(t, models.DefaultPersona, prefs.Persona)
}

func TestGetSubscription_NotFound(t *testing.T) {
	s := openTest(t)
	_, err := s.GetSubscription(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestBumpWindow_ResetOrIncrement(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureAccount(ctx, "1", models.Profile{}))

	for want := 1; want <= 3; want++ {
		n, err := s.BumpWindow(ctx, "1", models.QuotaRate, "2026-05-01 10:00")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	n, err := s.BumpWindow(ctx, "1", models.QuotaRate, "2026-05-01 10:01")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "new window resets the counter")

	n, err = s.BumpWindow(ctx, "1", models.QuotaMedia, "2026-05-01")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "media counter is independent")

	q, err := s.GetQuotaState(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "2026-05-01 10:01", q.RateWindow)
	assert.Equal(t, 1, q.MediaCount)
}

func TestBumpWindow_Concurrent(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureAccount(ctx, "1", models.Profile{}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.BumpWindow(ctx, "1", models.QuotaRate, "w")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	q, err := s.GetQuotaState(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 20, q.RateCount)
}

func TestDowngradeExpired_Conditional(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureAccount(ctx, "1", models.Profile{}))

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	require.NoError(t, s.SetSubscription(ctx, "1", models.TierVIP, &future))

	require.NoError(t, s.DowngradeExpired(ctx, "1", now))
	sub, _ := s.GetSubscription(ctx, "1")
	assert.Equal(t, models.TierVIP, sub.Tier, "active tier must not be downgraded")

	require.NoError(t, s.DowngradeExpired(ctx, "1", future))
	sub, _ = s.GetSubscription(ctx, "1")
	assert.Equal(t, models.TierFree, sub.Tier)
	assert.Nil(t, sub.ExpiresAt)
}

func TestSweepExpired(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Hour), now.Add(time.Hour)
	for id, exp := range map[string]*time.Time{"a": &past, "b": &past, "c": &future} {
		require.NoError(t, s.EnsureAccount(ctx, id, models.Profile{}))
		require.NoError(t, s.SetSubscription(ctx, id, models.TierBasic, exp))
	}
	n, err := s.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestPreferences_UpdateAndReset(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureAccount(ctx, "1", models.Profile{}))

	persona := "advisor"
	p, err := s.UpdatePreferences(ctx, "1", models.PreferencesUpdate{Persona: &persona})
	require.NoError(t, err)
	assert.Equal(t, "advisor", p.Persona)
	assert.Equal(t, models.DefaultModel, p.Model, "nil fields untouched")

	// Compare-and-set: stale `from` is a no-op.
	require.NoError(t, s.ResetPersona(ctx, "1", "mystic", "friend"))
	p, _ = s.GetPreferences(ctx, "1")
	assert.Equal(t, "advisor", p.Persona)

	require.NoError(t, s.ResetPersona(ctx, "1", "advisor", "friend"))
	p, _ = s.GetPreferences(ctx, "1")
	assert.Equal(t, "friend", p.Persona)
}

func TestMessages_ExchangeWindowAndClear(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureAccount(ctx, "1", models.Profile{}))

	media := &models.MediaRef{ID: uuid.New(), AccountID: "1", FileID: "f1", MIMEType: "image/png", Size: 10}
	require.NoError(t, s.InsertMedia(ctx, media))

	for i := 0; i < 3; i++ {
		u := &models.Message{ID: uuid.New(), AccountID: "1", Role: models.RoleUser, Content: string(rune('a' + i))}
		if i == 0 {
			u.MediaID = &media.ID
		}
		a := &models.Message{ID: uuid.New(), AccountID: "1", Role: models.RoleAssistant, Content: string(rune('A' + i))}
		require.NoError(t, s.AppendExchange(ctx, u, a))
	}

	recent, err := s.RecentMessages(ctx, "1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"B", "c", "C"}, []string{recent[0].Content, recent[1].Content, recent[2].Content})

	all, _ := s.RecentMessages(ctx, "1", 100)
	require.Len(t, all, 6)
	require.NotNil(t, all[0].MediaID)
	assert.Equal(t, media.ID, *all[0].MediaID)

	n, err := s.ClearMessages(ctx, "1")
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)
	recent, _ = s.RecentMessages(ctx, "1", 3)
	assert.Empty(t, recent)
}

func TestSafetyPolicy_InitOnce(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, err := s.GetSafetyPolicy(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	first := []models.SafetySetting{{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"}}
	second := []models.SafetySetting{{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "OFF"}}
	require.NoError(t, s.InitSafetyPolicy(ctx, first))
	require.NoError(t, s.InitSafetyPolicy(ctx, second))

	got, err := s.GetSafetyPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	require.NoError(t, s.PutSafetyPolicy(ctx, second))
	got, _ = s.GetSafetyPolicy(ctx)
	assert.Equal(t, second, got)
}

func TestEraseAccount_RemovesRowsAndFiles(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureAccount(ctx, "1", models.Profile{}))

	path := filepath.Join(t.TempDir(), "img.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o600))
	require.NoError(t, s.InsertMedia(ctx, &models.MediaRef{ID: uuid.New(), AccountID: "1", FileID: "f", Path: path, MIMEType: "image/png", Size: 3}))

	require.NoError(t, s.EraseAccount(ctx, "1"))

	_, err := s.GetAccount(ctx, "1")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.GetPreferences(ctx, "1")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, s.EraseAccount(ctx, "1"), models.ErrNotFound)
}

func TestReport(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	now := time.Now().UTC()
	s.now = func() time.Time { return now }

	for _, id := range []string{"1", "2"} {
		require.NoError(t, s.EnsureAccount(ctx, id, models.Profile{Username: "u" + id}))
	}
	exp := now.Add(time.Hour)
	require.NoError(t, s.SetSubscription(ctx, "2", models.TierPremium, &exp))
	for i := 0; i < 2; i++ {
		require.NoError(t, s.AppendExchange(ctx,
			&models.Message{ID: uuid.New(), AccountID: "1", Role: models.RoleUser, Content: "q"},
			&models.Message{ID: uuid.New(), AccountID: "1", Role: models.RoleAssistant, Content: "a"}))
	}

	rep, err := s.Report(ctx, 7, 5, now)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.TotalAccounts)
	assert.Equal(t, 4, rep.TotalMessages)
	assert.InDelta(t, 2.0, rep.AvgMessagesPerAccount, 0.001)
	require.Len(t, rep.DailyActivity, 7)
	assert.Equal(t, 2, rep.DailyActivity[6].Count)
	require.Len(t, rep.TopAccounts, 1)
	assert.Equal(t, "u1", rep.TopAccounts[0].Username)
	assert.Len(t, rep.TierDistribution, 2)
}

func TestMigrate_AddsMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	ctx := context.Background()

	s, err := Open(ctx, path, nil)
	require.NoError(t, err)
	// Simulate a database from before custom instructions existed.
	_, err = s.db.ExecContext(ctx, `ALTER TABLE preferences DROP COLUMN custom_instruction`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.EnsureAccount(ctx, "1", models.Profile{}))
	p, err := s.GetPreferences(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "", p.CustomInstruction)
}

func TestMigrate_FoldsLegacyHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	ctx := context.Background()

	s, err := Open(ctx, path, nil)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE message_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			user_message TEXT NOT NULL,
			bot_response TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		INSERT INTO message_history (user_id, user_message, bot_response, created_at) VALUES
			(42, 'hi', 'hello', '2024-01-02 03:04:05'),
			(42, 'how are you', 'fine', '2024-01-02 03:05:00'),
			(7, 'yo', 'hey', '2024-01-03 10:00:00');
	`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	for i := 0; i < 2; i++ {
		s, err = Open(ctx, path, nil)
		require.NoError(t, err)

		msgs, err := s.RecentMessages(ctx, "42", 10)
		require.NoError(t, err)
		require.Len(t, msgs, 4, "open #%d", i+1)
		assert.Equal(t, []string{"hi", "hello", "how are you", "fine"},
			[]string{msgs[0].Content, msgs[1].Content, msgs[2].Content, msgs[3].Content})
		assert.Equal(t, models.RoleUser, msgs[0].Role)
		assert.Equal(t, models.RoleAssistant, msgs[1].Role)
		assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), msgs[0].CreatedAt)

		_, err = s.GetAccount(ctx, "7")
		require.NoError(t, err)

		var left int
		require.NoError(t, s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE name = 'message_history'`).Scan(&left))
		assert.Zero(t, left)
		require.NoError(t, s.Close())
	}
}
