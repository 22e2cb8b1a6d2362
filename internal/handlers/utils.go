// internal/handlers/utils.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/tabletop/internal/game"
	"github.com/jason-s-yu/tabletop/internal/session"
)

const authCookie = "auth_token"

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	for _, part := range strings.Split(cookieHeader, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && name == cookieName {
			return value
		}
	}
	return ""
}

// requestToken returns the bearer token, falling back to the auth cookie.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return extractCookieToken(r.Header.Get("Cookie"), authCookie)
}

// decodeBody reads an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return game.NewValidationError(game.ReasonMissingField, "invalid request body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// classify maps an error from the session layer onto a status code and body.
func classify(err error) (int, errorBody) {
	var (
		ve  *game.ValidationError
		rej game.Rejection
		pe  *session.PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorBody{Status: "invalid", Reason: ve.Reason, Message: err.Error()}
	case errors.As(err, &rej):
		return http.StatusUnprocessableEntity, errorBody{Status: "rejected", Reason: rej.ReasonCode(), Message: err.Error()}
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, errorBody{Status: "not_found", Message: err.Error()}
	case errors.Is(err, session.ErrConflict):
		return http.StatusConflict, errorBody{Status: "conflict", Message: err.Error()}
	case errors.As(err, &pe):
		return http.StatusServiceUnavailable, errorBody{Status: "unavailable", Message: pe.Error()}
	default:
		return http.StatusInternalServerError, errorBody{Status: "error", Message: "internal error"}
	}
}

func writeError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		logger.WithError(err).Error("request failed")
	}
	writeJSON(w, status, body)
}

// wsError is the socket counterpart of errorBody.
func wsError(err error) map[string]interface{} {
	_, body := classify(err)
	return map[string]interface{}{
		"type":    "error",
		"status":  body.Status,
		"reason":  body.Reason,
		"message": body.Message,
	}
}

func pathID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if id == "" {
		return "", fmt.Errorf("missing session id: %w", session.ErrNotFound)
	}
	return id, nil
}
