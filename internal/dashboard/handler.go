// Package dashboard serves the admin API: usage report and the process-wide
// safety policy.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/inaiurai/relay/internal/middleware"
	"github.com/inaiurai/relay/internal/models"
	"github.com/inaiurai/relay/internal/safety"
)

// Report defaults: one week of daily activity and the ten busiest accounts.
const (
	DefaultReportDays = 7
	DefaultReportTop  = 10
	maxReportDays     = 90
	maxReportTop      = 100
)

// ReportSource aggregates usage across all accounts.
type ReportSource interface {
	Report(ctx context.Context, days, top int, now time.Time) (*models.Report, error)
}

// PolicyService reads and replaces the safety policy.
type PolicyService interface {
	Current(ctx context.Context) ([]models.SafetySetting, error)
	Replace(ctx context.Context, settings []models.SafetySetting) error
}

type Handler struct {
	reports ReportSource
	policy  PolicyService
	now     func() time.Time
	log     *slog.Logger
}

func NewHandler(reports ReportSource, policy PolicyService, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{reports: reports, policy: policy, now: time.Now, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /api/v1/admin/report?days=7&top=10
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	days, ok := intParam(r, "days", DefaultReportDays, maxReportDays)
	if !ok {
		http.Error(w, `{"error":"days must be between 1 and 90"}`, http.StatusBadRequest)
		return
	}
	top, ok := intParam(r, "top", DefaultReportTop, maxReportTop)
	if !ok {
		http.Error(w, `{"error":"top must be between 1 and 100"}`, http.StatusBadRequest)
		return
	}
	rep, err := h.reports.Report(r.Context(), days, top, h.now().UTC())
	if err != nil {
		h.log.Error("report failed", "admin_id", middleware.AdminFromCtx(r.Context()), "error", err)
		http.Error(w, `{"error":"failed to build report"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type policyBody struct {
	Settings []models.SafetySetting `json:"settings"`
}

// GET /api/v1/admin/safety-policy
func (h *Handler) GetSafetyPolicy(w http.ResponseWriter, r *http.Request) {
	settings, err := h.policy.Current(r.Context())
	if err != nil {
		h.log.Error("read safety policy", "error", err)
		http.Error(w, `{"error":"failed to read safety policy"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, policyBody{Settings: settings})
}

// PUT /api/v1/admin/safety-policy
func (h *Handler) PutSafetyPolicy(w http.ResponseWriter, r *http.Request) {
	var body policyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.policy.Replace(r.Context(), body.Settings); err != nil {
		if errors.Is(err, safety.ErrInvalidPolicy) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.log.Error("replace safety policy", "error", err)
		http.Error(w, `{"error":"failed to update safety policy"}`, http.StatusInternalServerError)
		return
	}
	h.log.Info("safety policy updated", "admin_id", middleware.AdminFromCtx(r.Context()), "settings", len(body.Settings))
	writeJSON(w, http.StatusOK, body)
}

func intParam(r *http.Request, name string, def, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, false
	}
	return n, true
}
