package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/intermodalpt/backend-sub002/pkg/domain"
)

func NewRequestID() string { return "req_" + uuid.NewString() }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	resp := map[string]any{
		"request_id": NewRequestID(),
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	}
	WriteJSON(w, status, resp)
}

// WriteDomainError maps the moderation error taxonomy onto HTTP statuses.
// Validation and dependency errors carry their reason so the moderator can
// correct the request; anything internal is logged and reported opaquely.
func WriteDomainError(w http.ResponseWriter, log *zap.Logger, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, domain.ErrDependenciesNotMet):
		WriteError(w, http.StatusConflict, "ALREADY_DECIDED", err.Error(), nil)
	case errors.As(err, &ve):
		WriteError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILURE", ve.Reason, nil)
	default:
		log.Error("request failed", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}

// RequestLogger logs method, path, status and duration for every request.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("elapsed", time.Since(start)))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
