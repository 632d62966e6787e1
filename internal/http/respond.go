package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/splax/backendless/internal/apierror"
)

const reasonInternal = "internal server error"

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// writeJSON wraps payload in a success envelope.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	writeEnvelope(w, status, envelope{Success: true, Data: payload})
}

// writeError sends a failure envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeEnvelope(w, status, envelope{Success: false, Reason: msg})
}

func writeEnvelope(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeServiceError classifies err and writes the matching status. Internal
// failures are logged in full and reported with a generic reason.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	apiErr := apierror.From(err)
	status := statusFor(apiErr.Kind)
	if status >= http.StatusInternalServerError {
		r.logger.Error("request failed", "method", req.Method, "path", req.URL.Path, "error", err)
		writeError(w, status, reasonInternal)
		return
	}
	writeError(w, status, apiErr.Message)
}

func statusFor(kind apierror.Kind) int {
	switch kind {
	case apierror.KindValidation:
		return http.StatusBadRequest
	case apierror.KindUnauthorized:
		return http.StatusUnauthorized
	case apierror.KindForbidden:
		return http.StatusForbidden
	case apierror.KindNotFound:
		return http.StatusNotFound
	case apierror.KindConflict:
		return http.StatusConflict
	case apierror.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case apierror.KindNotComplete:
		return http.StatusNotAcceptable
	case apierror.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case apierror.KindUnsupportedMedia:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}
