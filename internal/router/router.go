package router

import (
	"net/http"

	"github.com/inaiurai/relay/internal/dashboard"
	"github.com/inaiurai/relay/internal/middleware"
	"github.com/inaiurai/relay/internal/validate"
)

// New returns an http.Handler that serves the admin API under /api/v1/admin.
// Every route requires an admin JWT.
func New(dashHandler *dashboard.Handler, tokens middleware.TokenValidator, v middleware.BodyValidator) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1/admin"
	admin := middleware.AdminAuth(tokens)

	mux.Handle(base+"/report", admin(methodGET(dashHandler.GetReport)))
	mux.Handle(base+"/safety-policy", admin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			dashHandler.GetSafetyPolicy(w, r)
		case http.MethodPut:
			middleware.ValidateBody(v, validate.SafetyPolicy, 0)(http.HandlerFunc(dashHandler.PutSafetyPolicy)).ServeHTTP(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	return mux
}

func methodGET(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}
