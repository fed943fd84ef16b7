package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/inaiurai/relay/internal/entitlement"
	"github.com/inaiurai/relay/internal/models"
	"github.com/inaiurai/relay/internal/relay"
)

// RelayHandler serves the /v1/ transport API.
type RelayHandler struct {
	Relay  relay.Service
	Logger *slog.Logger
}

// --- POST /v1/inbound ---

// Inbound handles POST /v1/inbound.
// Auth -> schema (via middleware) -> HandleInbound -> 200 (or 429 when a
// quota rejected the message).
func (h *RelayHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	var in relay.Inbound
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	res, err := h.Relay.HandleInbound(r.Context(), in)
	if err != nil {
		h.writeError(w, "handle inbound", in.AccountID, err)
		return
	}
	status := http.StatusOK
	if !res.Admitted {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, res)
}

// --- POST /v1/commands/{name} ---

type commandRequest struct {
	AccountID string `json:"account_id"`
}

// Command handles POST /v1/commands/{name}.
func (h *RelayHandler) Command(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	res, err := h.Relay.OnCommand(r.Context(), r.PathValue("name"), req.AccountID)
	if err != nil {
		h.writeError(w, "command", req.AccountID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- POST /v1/payments ---

type paymentRequest struct {
	AccountID    string `json:"account_id"`
	Tier         string `json:"tier"`
	DurationDays int    `json:"duration_days"`
}

// Payment handles POST /v1/payments, sent by the transport once a payment
// is confirmed.
func (h *RelayHandler) Payment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	sub, err := h.Relay.OnPaymentConfirmed(r.Context(), req.AccountID, req.Tier, req.DurationDays)
	if err != nil {
		h.writeError(w, "payment", req.AccountID, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// --- /v1/accounts/{id}/... ---

// GetSettings handles GET /v1/accounts/{id}/settings.
func (h *RelayHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	v, err := h.Relay.SettingsView(r.Context(), id)
	if err != nil {
		h.writeError(w, "settings view", id, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// UpdateSettings handles PATCH /v1/accounts/{id}/settings. Unknown fields
// are rejected.
func (h *RelayHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var u relay.SettingsUpdate
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	v, err := h.Relay.UpdateSettings(r.Context(), id, u)
	if err != nil {
		h.writeError(w, "update settings", id, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetPlan handles GET /v1/accounts/{id}/plan.
func (h *RelayHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	v, err := h.Relay.PlanView(r.Context(), id)
	if err != nil {
		h.writeError(w, "plan view", id, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Cancel handles POST /v1/accounts/{id}/cancel.
func (h *RelayHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sub, err := h.Relay.Cancel(r.Context(), id)
	if err != nil {
		h.writeError(w, "cancel", id, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// Erase handles DELETE /v1/accounts/{id}.
func (h *RelayHandler) Erase(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Relay.EraseAccount(r.Context(), id); err != nil {
		h.writeError(w, "erase account", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- GET /v1/plans ---

// ListPlans handles GET /v1/plans (public, no auth).
func ListPlans(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, entitlement.Plans())
}

// --- helpers ---

// writeError maps pipeline errors to status codes. Storage and other
// unexpected failures are 503: the message was not handled.
func (h *RelayHandler) writeError(w http.ResponseWriter, op, accountID string, err error) {
	switch {
	case errors.Is(err, relay.ErrInvalidAccount),
		errors.Is(err, relay.ErrInstructionTooLong),
		errors.Is(err, relay.ErrEmptySettingsUpdate),
		errors.Is(err, entitlement.ErrUnknownTier):
		writeJSON(w, http.StatusBadRequest, errorBody{err.Error()})
	case errors.Is(err, relay.ErrUnknownCommand), errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{err.Error()})
	case errors.Is(err, entitlement.ErrNotEntitled):
		writeJSON(w, http.StatusForbidden, errorBody{err.Error()})
	default:
		h.logger().Error(op+" failed", "account_id", accountID, "error", err)
		http.Error(w, `{"error":"service unavailable"}`, http.StatusServiceUnavailable)
	}
}

func (h *RelayHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
