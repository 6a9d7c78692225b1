package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/efreitasn/papertrade/internal/domain"
)

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body as JSON into v.
// It validates that the Content-Type header is application/json and
// returns an error for missing/incorrect content type or malformed JSON.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	return nil
}

// statusFor maps a service error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, domain.ErrConsistencyViolation):
		return http.StatusInternalServerError, "internal_error"
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrSymbolNotFound),
		errors.Is(err, domain.ErrWebhookNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrAccountAlreadyExists),
		errors.Is(err, domain.ErrOrderNotCancellable),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientPosition):
		return http.StatusConflict, rootCode(err)
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// rootCode returns the sentinel's code when err wraps one with extra
// context, such as the shortfall message on ErrInsufficientFunds.
func rootCode(err error) string {
	for _, s := range []error{
		domain.ErrAccountAlreadyExists,
		domain.ErrOrderNotCancellable,
		domain.ErrInsufficientFunds,
		domain.ErrInsufficientPosition,
	} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "conflict"
}

// writeServiceError writes err using statusFor. Internal errors are logged
// and their details are not exposed.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
		WriteError(w, status, code, "An internal error occurred")
		return
	}
	WriteError(w, status, code, err.Error())
}

// queryInt reads an integer query parameter, returning def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &domain.ValidationError{Message: name + " must be an integer"}
	}
	return n, nil
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
