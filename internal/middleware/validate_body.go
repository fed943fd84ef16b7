package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// DefaultMaxBodyBytes caps request bodies when no explicit limit is given.
const DefaultMaxBodyBytes = 1 << 20

// BodyValidator checks a raw body against a named schema.
type BodyValidator interface {
	Validate(schema string, body []byte) error
}

// ValidateBody rejects bodies larger than maxBytes or not matching schema,
// then replaces r.Body so downstream handlers can re-read it.
func ValidateBody(v BodyValidator, schema string, maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
			r.Body.Close()
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, `{"error":"request body too large"}`, http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			if err := v.Validate(schema, bodyBytes); err != nil {
				slog.Debug("request body rejected", "schema", schema, "path", r.URL.Path, "error", err)
				writeValidationError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeValidationError(w http.ResponseWriter, err error) {
	msg, _ := json.Marshal(err.Error())
	http.Error(w, `{"error":`+string(msg)+`}`, http.StatusBadRequest)
}
