package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"quiz-session-service/internal/app"
	"quiz-session-service/internal/auth"
	"quiz-session-service/internal/domain"
)

// APIHandler exposes the session use cases as JSON over HTTP.
type APIHandler struct {
	service *app.SessionService
	logger  *slog.Logger
}

func NewAPIHandler(service *app.SessionService, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{service: service, logger: logger}
}

type createSessionRequest struct {
	QuizID string `json:"quizId"`
}

type joinRequest struct {
	AccessCode  string `json:"accessCode"`
	DisplayName string `json:"displayName"`
}

type answerRequest struct {
	ParticipantID string `json:"participantId"`
	QuestionID    string `json:"questionId"`
	domain.AnswerContent
	ResponseTime int64 `json:"responseTime"`
}

func (h *APIHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		badRequest(w, "quizId is required")
		return
	}
	created, err := h.service.CreateSession(r.Context(), actor(r), req.QuizID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *APIHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.HostedSessions(r.Context(), actor(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if sessions == nil {
		sessions = []domain.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *APIHandler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessCode == "" {
		badRequest(w, "accessCode is required")
		return
	}
	joined, err := h.service.Join(r.Context(), actor(r), req.AccessCode, req.DisplayName)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, joined)
}

func (h *APIHandler) getSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Snapshot(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *APIHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.service.Leaderboard(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

type lifecycleOp func(ctx context.Context, sessionID string, actor domain.Actor) (domain.SessionView, error)

func (h *APIHandler) start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Start)
}

func (h *APIHandler) advance(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Advance)
}

func (h *APIHandler) end(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.End)
}

func (h *APIHandler) transition(w http.ResponseWriter, r *http.Request, op lifecycleOp) {
	view, err := op(r.Context(), chi.URLParam(r, "sessionID"), actor(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *APIHandler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ParticipantID == "" || req.QuestionID == "" {
		badRequest(w, "participantId and questionId are required")
		return
	}
	if req.ResponseTime < 0 {
		badRequest(w, "responseTime must not be negative")
		return
	}
	result, err := h.service.SubmitAnswer(r.Context(), actor(r), domain.AnswerSubmission{
		SessionID:     chi.URLParam(r, "sessionID"),
		ParticipantID: req.ParticipantID,
		QuestionID:    req.QuestionID,
		Content:       req.AnswerContent,
		ResponseTime:  req.ResponseTime,
	})
	if errors.Is(err, domain.ErrDuplicateAnswer) {
		writeErrorWithResult(w, h.logger, err, &result)
		return
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func actor(r *http.Request) domain.Actor {
	a, _ := auth.ActorFrom(r.Context())
	return a
}
