package main

import (
	"net/http"

	"github.com/inaiurai/relay/internal/handlers"
	"github.com/inaiurai/relay/internal/middleware"
	"github.com/inaiurai/relay/internal/validate"
)

// maxInboundMedia matches maxItems of the inbound schema.
const maxInboundMedia = 10

// inboundBodyLimit allows maxInboundMedia base64 blobs of maxMediaBytes plus
// text and JSON overhead.
func inboundBodyLimit(maxMediaBytes int64) int64 {
	perBlob := maxMediaBytes*4/3 + 64<<10
	return perBlob*maxInboundMedia + middleware.DefaultMaxBodyBytes
}

// RegisterTransportRoutes adds the /v1/ transport API to the given mux.
// Middleware chain: TransportAuth -> ValidateBody (requests with a body) -> handler.
func RegisterTransportRoutes(mux *http.ServeMux, h *handlers.RelayHandler, transportToken string, v middleware.BodyValidator, maxMediaBytes int64) {
	auth := middleware.TransportAuth(transportToken)
	body := func(schema string, limit int64, fn http.HandlerFunc) http.Handler {
		return auth(middleware.ValidateBody(v, schema, limit)(fn))
	}

	mux.Handle("POST /v1/inbound", body(validate.Inbound, inboundBodyLimit(maxMediaBytes), h.Inbound))
	mux.Handle("POST /v1/commands/{name}", body(validate.Command, 0, h.Command))
	mux.Handle("POST /v1/payments", body(validate.Payment, 0, h.Payment))
	mux.Handle("PATCH /v1/accounts/{id}/settings", body(validate.SettingsUpdate, 0, h.UpdateSettings))

	mux.Handle("GET /v1/accounts/{id}/settings", auth(http.HandlerFunc(h.GetSettings)))
	mux.Handle("GET /v1/accounts/{id}/plan", auth(http.HandlerFunc(h.GetPlan)))
	mux.Handle("POST /v1/accounts/{id}/cancel", auth(http.HandlerFunc(h.Cancel)))
	mux.Handle("DELETE /v1/accounts/{id}", auth(http.HandlerFunc(h.Erase)))

	mux.HandleFunc("GET /v1/plans", handlers.ListPlans)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
