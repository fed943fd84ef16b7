package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubValidator struct {
	id  string
	err error
}

func (s *stubValidator) ValidateToken(_ context.Context, _ string) (string, error) {
	return s.id, s.err
}

// okHandler writes 200 and the admin id (for assertions).
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(AdminFromCtx(r.Context())))
})

// ---------------------------------------------------------------------------
// TransportAuth
// ---------------------------------------------------------------------------

func TestTransportAuth_ValidToken(t *testing.T) {
	mw := TransportAuth("transport-secret")(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/v1/inbound", nil)
	req.Header.Set("Authorization", "Bearer transport-secret")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTransportAuth_Rejects(t *testing.T) {
	mw := TransportAuth("transport-secret")(okHandler)

	cases := []struct {
		name   string
		header string
	}{
		{"no header at all", ""},
		{"empty bearer", "Bearer "},
		{"wrong scheme", "Basic abc123"},
		{"wrong token", "Bearer transport-secreT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestTransportAuth_Disabled(t *testing.T) {
	mw := TransportAuth("")(okHandler)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with auth disabled, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// AdminAuth
// ---------------------------------------------------------------------------

func TestAdminAuth_ValidToken(t *testing.T) {
	mw := AdminAuth(&stubValidator{id: "100"})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/report", nil)
	req.Header.Set("Authorization", "bearer some.jwt.value")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "100" {
		t.Errorf("expected admin id in context, got %q", body)
	}
}

func TestAdminAuth_InvalidToken(t *testing.T) {
	mw := AdminAuth(&stubValidator{err: errors.New("expired")})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer expired.jwt.value")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAdminAuth_MissingHeader(t *testing.T) {
	mw := AdminAuth(&stubValidator{id: "100"})(okHandler)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}
