package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/splax/taskboard/internal/domain"
	"github.com/splax/taskboard/internal/service/auth"
	"github.com/splax/taskboard/internal/service/task"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors onto HTTP semantics. Internal
// details are logged, never returned.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	var (
		verr    *domain.ValidationError
		authErr *auth.AuthError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error(), "field": verr.Field})
	case errors.As(err, &authErr):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, auth.ErrEmailTaken.Error())
	case errors.Is(err, task.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, task.ErrNotFound):
		writeError(w, http.StatusNotFound, task.ErrNotFound.Error())
	default:
		r.logger.Error("request failed", "error", err, "method", req.Method, "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
