package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"quiz-session-service/internal/domain"
)

// errorBody is the JSON error envelope. Result is set for DuplicateAnswer so
// a retried submit can recover the originally recorded outcome.
type errorBody struct {
	Error   string               `json:"error"`
	Message string               `json:"message"`
	Result  *domain.AnswerResult `json:"result,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidContent):
		return http.StatusBadRequest
	case domain.ErrorCode(err) != "":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	writeErrorWithResult(w, logger, err, nil)
}

func writeErrorWithResult(w http.ResponseWriter, logger *slog.Logger, err error, result *domain.AnswerResult) {
	status := statusFor(err)
	code := domain.ErrorCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "err", err)
		code, msg = "Internal", "internal error"
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg, Result: result})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "BadRequest", Message: msg})
}
