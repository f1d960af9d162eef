package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BearBump/TripBox/internal/services/outcomes"
	"github.com/BearBump/TripBox/internal/services/payments"
	"github.com/BearBump/TripBox/internal/services/paysession"
	"github.com/pkg/errors"
)

var (
	errMissingToken = errors.New("bearer token is required")
	errNoLedger     = errors.New("payment outcome ledger is not configured")
	errSessionGone  = errors.New("payment session not found")
)

type errorResponse struct {
	Error string `json:"error"`
}

// bearerToken reads "Authorization: Bearer <token>". The token is forwarded to the backends as is.
func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[7:])
	return token, token != ""
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, payments.ErrSessionNotFound), errors.Is(err, outcomes.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, payments.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, paysession.ErrClosed):
		return http.StatusGone
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "error", err.Error())
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
