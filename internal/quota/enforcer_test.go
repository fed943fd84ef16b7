package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inaiurai/relay/internal/models"
)

// memCounters applies the reset-or-increment rule under one mutex, the way
// the SQL upsert does under a row lock.
type memCounters struct {
	mu     sync.Mutex
	state  map[string]*models.QuotaState
	failOn error
}

func newMemCounters() *memCounters { return &memCounters{state: make(map[string]*models.QuotaState)} }

func (m *memCounters) BumpWindow(_ context.Context, id string, kind models.QuotaKind, window string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		return 0, m.failOn
	}
	s, ok := m.state[id]
	if !ok {
		s = &models.QuotaState{AccountID: id}
		m.state[id] = s
	}
	win, count := &s.RateWindow, &s.RateCount
	if kind == models.QuotaMedia {
		win, count = &s.MediaWindow, &s.MediaCount
	}
	if *win != window {
		*win, *count = window, 1
	} else {
		*count++
	}
	return *count, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time { c.mu.Lock(); defer c.mu.Unlock(); return c.t }
func (c *clock) set(t time.Time) { c.mu.Lock(); c.t = t; c.mu.Unlock() }

// ---------------------------------------------------------------------------
// 1. Free tier: 5 admitted, 6th rejected, next minute admitted again
// ---------------------------------------------------------------------------

func TestAdmitMessage_FreeTierWindow(t *testing.T) {
	ck := &clock{t: time.Date(2026, 5, 1, 10, 0, 5, 0, time.UTC)}
	e := NewEnforcer(newMemCounters(), time.UTC, nil).WithClock(ck.now)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		ok, err := e.AdmitMessage(ctx, "a", models.TierFree)
		if err != nil || !ok {
			t.Fatalf("message %d: admitted=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := e.AdmitMessage(ctx, "a", models.TierFree); ok {
		t.Fatal("6th message in the same minute was admitted")
	}

	ck.set(time.Date(2026, 5, 1, 10, 1, 0, 0, time.UTC))
	if ok, _ := e.AdmitMessage(ctx, "a", models.TierFree); !ok {
		t.Fatal("first message of the next minute was rejected")
	}
}

// ---------------------------------------------------------------------------
// 2. Rejected attempts are charged
// ---------------------------------------------------------------------------

func TestAdmitMessage_RejectedAttemptsCount(t *testing.T) {
	store := newMemCounters()
	ck := &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	e := NewEnforcer(store, time.UTC, nil).WithClock(ck.now)

	for i := 0; i < 8; i++ {
		_, _ = e.AdmitMessage(context.Background(), "a", models.TierFree)
	}
	if got := store.state["a"].RateCount; got != 8 {
		t.Fatalf("rate count = %d, want 8", got)
	}
}

// ---------------------------------------------------------------------------
// 3. Concurrent admissions never exceed the limit
// ---------------------------------------------------------------------------

func TestAdmitMessage_ConcurrentNeverOverAdmits(t *testing.T) {
	ck := &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	e := NewEnforcer(newMemCounters(), time.UTC, nil).WithClock(ck.now)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := e.AdmitMessage(context.Background(), "a", models.TierBasic); err == nil && ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 10 {
		t.Fatalf("admitted = %d, want exactly 10", got)
	}
}

// ---------------------------------------------------------------------------
// 4. Daily image limit and day rollover
// ---------------------------------------------------------------------------

func TestAdmitMedia_DailyLimit(t *testing.T) {
	ck := &clock{t: time.Date(2026, 5, 1, 23, 59, 0, 0, time.UTC)}
	e := NewEnforcer(newMemCounters(), time.UTC, nil).WithClock(ck.now)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if ok, _ := e.AdmitMedia(ctx, "a", models.TierFree, MediaImage); !ok {
			t.Fatalf("image %d rejected", i)
		}
	}
	if ok, _ := e.AdmitMedia(ctx, "a", models.TierFree, MediaImage); ok {
		t.Fatal("4th image admitted")
	}

	ck.set(time.Date(2026, 5, 2, 0, 0, 1, 0, time.UTC))
	if ok, _ := e.AdmitMedia(ctx, "a", models.TierFree, MediaImage); !ok {
		t.Fatal("first image of the next day rejected")
	}
}

func TestAdmitMedia_UnknownKind(t *testing.T) {
	store := newMemCounters()
	e := NewEnforcer(store, time.UTC, nil)
	ok, err := e.AdmitMedia(context.Background(), "a", models.TierVIP, MediaKind("video"))
	if err != nil || ok {
		t.Fatalf("AdmitMedia(video) = %v, %v", ok, err)
	}
	if _, touched := store.state["a"]; touched {
		t.Error("unknown kind should not touch counters")
	}
}

// ---------------------------------------------------------------------------
// 5. Counters are independent; storage errors fail closed
// ---------------------------------------------------------------------------

func TestAdmit_IndependentCounters(t *testing.T) {
	ck := &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	e := NewEnforcer(newMemCounters(), time.UTC, nil).WithClock(ck.now)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = e.AdmitMessage(ctx, "a", models.TierFree)
	}
	if ok, _ := e.AdmitMedia(ctx, "a", models.TierFree, MediaImage); !ok {
		t.Fatal("media counter affected by rate counter")
	}
	if ok, _ := e.AdmitMessage(ctx, "b", models.TierFree); !ok {
		t.Fatal("account b affected by account a")
	}
}

func TestAdmit_StorageErrorFailsClosed(t *testing.T) {
	store := newMemCounters()
	store.failOn = errors.New("db down")
	e := NewEnforcer(store, nil, nil)

	ok, err := e.AdmitMessage(context.Background(), "a", models.TierVIP)
	if err == nil || ok {
		t.Fatalf("AdmitMessage = %v, %v; want false with error", ok, err)
	}
}

func TestWindows(t *testing.T) {
	ts := time.Date(2026, 1, 9, 7, 3, 59, 0, time.UTC)
	if got := MinuteWindow(ts); got != "2026-01-09 07:03" {
		t.Errorf("MinuteWindow = %q", got)
	}
	if got := DayWindow(ts); got != "2026-01-09" {
		t.Errorf("DayWindow = %q", got)
	}
}
