package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inaiurai/relay/internal/entitlement"
	"github.com/inaiurai/relay/internal/models"
	"github.com/inaiurai/relay/internal/relay"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockRelay struct {
	inbound   relay.Inbound
	inboundFn func(relay.Inbound) (*relay.InboundResult, error)
	command   string
	update    relay.SettingsUpdate
	err       error
	erased    string
}

func (m *mockRelay) HandleInbound(_ context.Context, in relay.Inbound) (*relay.InboundResult, error) {
	m.inbound = in
	if m.inboundFn != nil {
		return m.inboundFn(in)
	}
	return &relay.InboundResult{Admitted: true, Reply: "hi", Chunks: []string{"hi"}}, m.err
}

func (m *mockRelay) OnCommand(_ context.Context, name, accountID string) (*relay.InboundResult, error) {
	m.command = name
	if m.err != nil {
		return nil, m.err
	}
	return &relay.InboundResult{Admitted: true, Reply: "help text"}, nil
}

func (m *mockRelay) OnPaymentConfirmed(_ context.Context, accountID, tierName string, days int) (*models.Subscription, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Subscription{AccountID: accountID, Tier: models.Tier(tierName)}, nil
}

func (m *mockRelay) SettingsView(_ context.Context, accountID string) (*relay.SettingsView, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &relay.SettingsView{Model: models.DefaultModel, Persona: models.DefaultPersona, Tier: models.TierFree}, nil
}

func (m *mockRelay) PlanView(_ context.Context, accountID string) (*relay.PlanView, error) {
	if m.err != nil {
		return nil, m.err
	}
	p := entitlement.PlanFor(models.TierBasic)
	return &relay.PlanView{Tier: p.Tier, Title: p.Title, PriceStars: p.PriceStars, Limits: p.Limits}, nil
}

func (m *mockRelay) UpdateSettings(_ context.Context, accountID string, u relay.SettingsUpdate) (*relay.SettingsView, error) {
	m.update = u
	if m.err != nil {
		return nil, m.err
	}
	return &relay.SettingsView{Persona: *u.Persona}, nil
}

func (m *mockRelay) Cancel(_ context.Context, accountID string) (*models.Subscription, error) {
	return &models.Subscription{AccountID: accountID, Tier: models.TierFree}, m.err
}

func (m *mockRelay) EraseAccount(_ context.Context, accountID string) error {
	m.erased = accountID
	return m.err
}

// newTestMux registers the handler the way cmd/relay does, minus auth.
func newTestMux(m *mockRelay) *http.ServeMux {
	h := &RelayHandler{Relay: m}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/inbound", h.Inbound)
	mux.HandleFunc("POST /v1/commands/{name}", h.Command)
	mux.HandleFunc("POST /v1/payments", h.Payment)
	mux.HandleFunc("GET /v1/accounts/{id}/settings", h.GetSettings)
	mux.HandleFunc("PATCH /v1/accounts/{id}/settings", h.UpdateSettings)
	mux.HandleFunc("GET /v1/accounts/{id}/plan", h.GetPlan)
	mux.HandleFunc("POST /v1/accounts/{id}/cancel", h.Cancel)
	mux.HandleFunc("DELETE /v1/accounts/{id}", h.Erase)
	mux.HandleFunc("GET /v1/plans", ListPlans)
	return mux
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// 1. Inbound -> 200 with reply; media decoded from base64
// ---------------------------------------------------------------------------

func TestInbound_OK(t *testing.T) {
	m := &mockRelay{}
	rec := do(newTestMux(m), http.MethodPost, "/v1/inbound",
		`{"account_id":"42","profile":{"first_name":"Ada"},"caption":"look","media":[{"file_id":"f1","data":"aGVsbG8="}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if m.inbound.AccountID != "42" || m.inbound.Profile.FirstName != "Ada" {
		t.Errorf("inbound not decoded: %+v", m.inbound)
	}
	if len(m.inbound.Media) != 1 || string(m.inbound.Media[0].Data) != "hello" {
		t.Errorf("media not decoded: %+v", m.inbound.Media)
	}
	var res relay.InboundResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Admitted || res.Reply != "hi" {
		t.Errorf("unexpected result %+v", res)
	}
}

// ---------------------------------------------------------------------------
// 2. Quota rejection -> 429 with throttle reply
// ---------------------------------------------------------------------------

func TestInbound_Throttled(t *testing.T) {
	m := &mockRelay{inboundFn: func(relay.Inbound) (*relay.InboundResult, error) {
		return &relay.InboundResult{Admitted: false, Reply: "slow down"}, nil
	}}
	rec := do(newTestMux(m), http.MethodPost, "/v1/inbound", `{"account_id":"42","text":"hi"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "slow down") {
		t.Errorf("throttle reply missing: %s", rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// 3. Storage failure -> 503 (fail closed)
// ---------------------------------------------------------------------------

func TestInbound_StorageDown(t *testing.T) {
	m := &mockRelay{inboundFn: func(relay.Inbound) (*relay.InboundResult, error) {
		return nil, errors.New("dial tcp: connection refused")
	}}
	rec := do(newTestMux(m), http.MethodPost, "/v1/inbound", `{"account_id":"42","text":"hi"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestInbound_BadJSON(t *testing.T) {
	rec := do(newTestMux(&mockRelay{}), http.MethodPost, "/v1/inbound", `{"account_id":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// 4. Commands and payments
// ---------------------------------------------------------------------------

func TestCommand(t *testing.T) {
	m := &mockRelay{}
	rec := do(newTestMux(m), http.MethodPost, "/v1/commands/help", `{"account_id":"42"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if m.command != "help" {
		t.Errorf("command = %q", m.command)
	}

	m.err = fmt.Errorf("%w: %q", relay.ErrUnknownCommand, "launch")
	rec = do(newTestMux(m), http.MethodPost, "/v1/commands/launch", `{"account_id":"42"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPayment_UnknownTier(t *testing.T) {
	m := &mockRelay{err: fmt.Errorf("%w: %q", entitlement.ErrUnknownTier, "gold")}
	rec := do(newTestMux(m), http.MethodPost, "/v1/payments", `{"account_id":"42","tier":"gold","duration_days":30}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// 5. Settings
// ---------------------------------------------------------------------------

func TestUpdateSettings_OK(t *testing.T) {
	m := &mockRelay{}
	rec := do(newTestMux(m), http.MethodPatch, "/v1/accounts/42/settings", `{"persona":"advisor"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if m.update.Persona == nil || *m.update.Persona != "advisor" || m.update.Model != nil {
		t.Errorf("update not decoded: %+v", m.update)
	}
}

func TestUpdateSettings_UnknownField(t *testing.T) {
	rec := do(newTestMux(&mockRelay{}), http.MethodPatch, "/v1/accounts/42/settings", `{"persona":"advisor","temperature":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateSettings_NotEntitled(t *testing.T) {
	m := &mockRelay{err: fmt.Errorf("%w: persona %q", entitlement.ErrNotEntitled, "mystic")}
	rec := do(newTestMux(m), http.MethodPatch, "/v1/accounts/42/settings", `{"persona":"mystic"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestGetSettingsAndPlan(t *testing.T) {
	mux := newTestMux(&mockRelay{})

	rec := do(mux, http.MethodGet, "/v1/accounts/42/settings", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), models.DefaultModel) {
		t.Fatalf("settings: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(mux, http.MethodGet, "/v1/accounts/42/plan", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"price_stars":50`) {
		t.Fatalf("plan: %d %s", rec.Code, rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// 6. Erasure and plan catalogue
// ---------------------------------------------------------------------------

func TestErase(t *testing.T) {
	m := &mockRelay{}
	rec := do(newTestMux(m), http.MethodDelete, "/v1/accounts/42", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if m.erased != "42" {
		t.Errorf("erased = %q", m.erased)
	}

	m.err = models.ErrNotFound
	rec = do(newTestMux(m), http.MethodDelete, "/v1/accounts/43", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListPlans(t *testing.T) {
	rec := do(newTestMux(&mockRelay{}), http.MethodGet, "/v1/plans", "")
	var plans []entitlement.Plan
	if err := json.Unmarshal(rec.Body.Bytes(), &plans); err != nil {
		t.Fatal(err)
	}
	if len(plans) != 4 || plans[3].PriceStars != 200 {
		t.Errorf("unexpected plans %+v", plans)
	}
}
