package http

import (
	"net/http"
	"testing"

	"quiz-session-service/internal/domain"
)

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	host := headers("teacher-1", domain.RoleTeacher)
	alice := headers("u1", domain.RoleStudent)

	if code := srv.call(t, http.MethodGet, "/healthz", nil, nil, nil); code != http.StatusOK {
		t.Fatalf("healthz: status %d", code)
	}

	var created domain.SessionCreated
	if code := srv.call(t, http.MethodPost, "/api/sessions", host, map[string]string{"quizId": "quiz-1"}, &created); code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	if len(created.AccessCode) != 6 {
		t.Fatalf("unexpected access code %q", created.AccessCode)
	}
	base := "/api/sessions/" + created.SessionID

	var apiErr errorBody
	if code := srv.call(t, http.MethodPost, base+"/start", host, nil, &apiErr); code != http.StatusConflict || apiErr.Error != "EmptyRoom" {
		t.Fatalf("expected EmptyRoom conflict, got %d %+v", code, apiErr)
	}

	var joined domain.Joined
	if code := srv.call(t, http.MethodPost, "/api/sessions/join", alice,
		map[string]string{"accessCode": created.AccessCode, "displayName": "Alice"}, &joined); code != http.StatusOK {
		t.Fatalf("join: status %d", code)
	}

	apiErr = errorBody{}
	if code := srv.call(t, http.MethodPost, base+"/start", alice, nil, &apiErr); code != http.StatusForbidden || apiErr.Error != "Unauthorized" {
		t.Fatalf("expected Unauthorized, got %d %+v", code, apiErr)
	}

	var view domain.SessionView
	if code := srv.call(t, http.MethodPost, base+"/start", host, nil, &view); code != http.StatusOK {
		t.Fatalf("start: status %d", code)
	}
	if view.Status != domain.StatusInProgress || view.CurrentQuestion == nil || view.CurrentQuestion.ID != "q1" {
		t.Fatalf("unexpected view after start: %+v", view)
	}

	var raw map[string]any
	if code := srv.call(t, http.MethodGet, base, alice, nil, &raw); code != http.StatusOK {
		t.Fatalf("get session: status %d", code)
	}
	current := raw["currentQuestion"].(map[string]any)
	for _, opt := range current["options"].([]any) {
		if _, leaked := opt.(map[string]any)["correct"]; leaked {
			t.Fatalf("snapshot leaked the correct-answer marker: %v", opt)
		}
	}

	answer := map[string]any{
		"participantId":  joined.ParticipantID,
		"questionId":     "q1",
		"selectedOption": "o2",
		"responseTime":   0,
	}
	var result domain.AnswerResult
	if code := srv.call(t, http.MethodPost, base+"/answer", alice, answer, &result); code != http.StatusOK {
		t.Fatalf("answer: status %d", code)
	}
	if !result.IsCorrect || result.PointsEarned != 1000 || result.TotalScore != 1000 {
		t.Fatalf("unexpected result %+v", result)
	}

	apiErr = errorBody{}
	if code := srv.call(t, http.MethodPost, base+"/answer", alice, answer, &apiErr); code != http.StatusConflict || apiErr.Error != "DuplicateAnswer" {
		t.Fatalf("expected DuplicateAnswer, got %d %+v", code, apiErr)
	}
	if apiErr.Result == nil || *apiErr.Result != result {
		t.Fatalf("expected the original result with the duplicate, got %+v", apiErr.Result)
	}

	if code := srv.call(t, http.MethodPost, base+"/next-question", host, nil, &view); code != http.StatusOK || view.CurrentQuestionIndex != 1 {
		t.Fatalf("advance: status %d view %+v", code, view)
	}

	apiErr = errorBody{}
	if code := srv.call(t, http.MethodPost, base+"/answer", alice, answer, &apiErr); code != http.StatusConflict || apiErr.Error != "StaleQuestion" {
		t.Fatalf("expected StaleQuestion, got %d %+v", code, apiErr)
	}

	apiErr = errorBody{}
	wrongShape := map[string]any{"participantId": joined.ParticipantID, "questionId": "q2", "selectedOption": "o1", "responseTime": 10}
	if code := srv.call(t, http.MethodPost, base+"/answer", alice, wrongShape, &apiErr); code != http.StatusBadRequest || apiErr.Error != "InvalidContent" {
		t.Fatalf("expected InvalidContent, got %d %+v", code, apiErr)
	}

	text := map[string]any{"participantId": joined.ParticipantID, "questionId": "q2", "textAnswer": " paris ", "responseTime": 20000}
	if code := srv.call(t, http.MethodPost, base+"/answer", alice, text, &result); code != http.StatusOK {
		t.Fatalf("short answer: status %d", code)
	}
	if !result.IsCorrect || result.PointsEarned != 500 || result.TotalScore != 1500 {
		t.Fatalf("unexpected short answer result %+v", result)
	}

	if code := srv.call(t, http.MethodPost, base+"/advance", host, nil, &view); code != http.StatusOK || view.Status != domain.StatusCompleted {
		t.Fatalf("advance past last question: status %d view %+v", code, view)
	}

	apiErr = errorBody{}
	if code := srv.call(t, http.MethodPost, base+"/end", host, nil, &apiErr); code != http.StatusConflict || apiErr.Error != "IllegalTransition" {
		t.Fatalf("expected IllegalTransition, got %d %+v", code, apiErr)
	}

	var lb domain.Leaderboard
	if code := srv.call(t, http.MethodGet, base+"/leaderboard", alice, nil, &lb); code != http.StatusOK {
		t.Fatalf("leaderboard: status %d", code)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].Score != 1500 || lb.Entries[0].Rank != 1 {
		t.Fatalf("unexpected leaderboard %+v", lb)
	}

	var sessions []domain.SessionSummary
	if code := srv.call(t, http.MethodGet, "/api/sessions", host, nil, &sessions); code != http.StatusOK || len(sessions) != 1 {
		t.Fatalf("list sessions: status %d %+v", code, sessions)
	}
}

func TestHTTPErrors(t *testing.T) {
	srv := newTestServer(t)
	alice := headers("u1", domain.RoleStudent)

	var apiErr errorBody
	if code := srv.call(t, http.MethodGet, "/api/sessions/missing", alice, nil, &apiErr); code != http.StatusNotFound || apiErr.Error != "NotFound" {
		t.Fatalf("expected NotFound, got %d %+v", code, apiErr)
	}

	apiErr = errorBody{}
	if code := srv.call(t, http.MethodPost, "/api/sessions/join", alice, map[string]string{"accessCode": "ZZZZZZ"}, &apiErr); code != http.StatusNotFound {
		t.Fatalf("expected NotFound for unknown code, got %d %+v", code, apiErr)
	}

	apiErr = errorBody{}
	if code := srv.call(t, http.MethodPost, "/api/sessions", alice, map[string]string{"quizId": "quiz-1"}, &apiErr); code != http.StatusForbidden {
		t.Fatalf("expected students to be refused, got %d %+v", code, apiErr)
	}

	apiErr = errorBody{}
	if code := srv.call(t, http.MethodPost, "/api/sessions", alice, map[string]string{}, &apiErr); code != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", code)
	}

	if code := srv.call(t, http.MethodGet, "/api/sessions", nil, nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without an actor, got %d", code)
	}
}
