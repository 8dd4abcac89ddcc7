package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pliu/simquery/internal/auth"
	"github.com/pliu/simquery/internal/chat"
	"github.com/pliu/simquery/internal/validate"
)

const maxBodyBytes = 1 << 20

var errBadBody = errors.New("invalid request body")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadBody
	}
	return nil
}

// writeError maps service errors onto HTTP statuses. Anything unrecognized
// is logged and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		status, msg = http.StatusBadRequest, verr.Error()
	case errors.Is(err, errBadBody):
		status, msg = http.StatusBadRequest, errBadBody.Error()
	case errors.Is(err, auth.ErrInvalidVerificationToken):
		status, msg = http.StatusBadRequest, auth.ErrInvalidVerificationToken.Error()
	case errors.Is(err, auth.ErrInvalidCredentials):
		status, msg = http.StatusUnauthorized, auth.ErrInvalidCredentials.Error()
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		status, msg = http.StatusUnauthorized, auth.ErrInvalidRefreshToken.Error()
	case errors.Is(err, auth.ErrTokenExpired):
		status, msg = http.StatusUnauthorized, auth.ErrTokenExpired.Error()
	case errors.Is(err, auth.ErrInvalidToken):
		status, msg = http.StatusUnauthorized, auth.ErrInvalidToken.Error()
	case errors.Is(err, auth.ErrEmailNotVerified):
		status, msg = http.StatusForbidden, auth.ErrEmailNotVerified.Error()
	case errors.Is(err, chat.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, auth.ErrAlreadyExists):
		status, msg = http.StatusConflict, auth.ErrAlreadyExists.Error()
	case errors.Is(err, auth.ErrAlreadyVerified):
		status, msg = http.StatusConflict, auth.ErrAlreadyVerified.Error()
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}

	writeJSON(w, status, map[string]string{"error": msg})
}
