package server

import (
	"encoding/json"
	"net/http"

	"github.com/koustreak/querypool/internal/errs"
	"github.com/koustreak/querypool/internal/logger"
)

// writeJSON writes a JSON response and returns any encoding error.
func writeJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error body whose status follows the error kind.
// Server-side failures are also logged with the request's logger.
func writeError(w http.ResponseWriter, r *http.Request, err error) error {
	kind := errs.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorWith("request failed", err, map[string]interface{}{
			"kind":   kind.String(),
			"status": status,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   kind.String(),
		"message": err.Error(),
	})
}

func statusFor(kind errs.ErrKind) int {
	switch kind {
	case errs.ErrKindInvalidInput, errs.ErrKindEmptyRelease:
		return http.StatusBadRequest
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindQueryFailed:
		return http.StatusUnprocessableEntity
	case errs.ErrKindConnectionFailed, errs.ErrKindReconnectFailed, errs.ErrKindSpawnFailed,
		errs.ErrKindPoolClosed, errs.ErrKindExecutorClosed:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
