package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestStateRecordRoundTrip(t *testing.T) {
	started := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	ended := started.Add(5 * time.Minute)

	cases := []struct {
		name  string
		state State
		index int
	}{
		{"waiting", Waiting{}, -1},
		{"in progress", InProgress{QuestionIndex: 2, StartedAt: started}, 2},
		{"completed after start", Completed{QuestionIndex: 3, StartedAt: started, EndedAt: ended}, 3},
		{"completed from lobby", Completed{QuestionIndex: -1, EndedAt: ended}, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := RecordOf(tc.state)
			if rec.Status != tc.state.Status() {
				t.Fatalf("expected status %s, got %s", tc.state.Status(), rec.Status)
			}
			if rec.CurrentQuestionIndex != tc.index {
				t.Fatalf("expected index %d, got %d", tc.index, rec.CurrentQuestionIndex)
			}
			back, err := rec.State()
			if err != nil {
				t.Fatalf("restore: %v", err)
			}
			if back != tc.state {
				t.Fatalf("expected %+v, got %+v", tc.state, back)
			}
		})
	}
}

func TestStateRecordRejectsUnknownStatus(t *testing.T) {
	if _, err := (StateRecord{Status: "PAUSED"}).State(); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if _, err := (StateRecord{Status: StatusInProgress, CurrentQuestionIndex: -1}).State(); err == nil {
		t.Fatalf("expected error for in-progress without a question")
	}
}

func TestCurrentQuestionOnlyWhileInProgress(t *testing.T) {
	session := Session{
		Questions: []Question{{ID: "q1"}, {ID: "q2"}},
		State:     Waiting{},
	}
	if _, ok := session.CurrentQuestion(); ok {
		t.Fatalf("waiting session must not expose a question")
	}
	if session.CurrentQuestionIndex() != -1 {
		t.Fatalf("expected -1 before start, got %d", session.CurrentQuestionIndex())
	}

	session.State = InProgress{QuestionIndex: 1}
	q, ok := session.CurrentQuestion()
	if !ok || q.ID != "q2" {
		t.Fatalf("expected q2, got %+v ok=%v", q, ok)
	}

	session.State = Completed{QuestionIndex: 1}
	if _, ok := session.CurrentQuestion(); ok {
		t.Fatalf("completed session must not expose a question")
	}
}

func TestOrderedQuestionsIsDetachedCopy(t *testing.T) {
	quiz := Quiz{
		ID: "quiz-1",
		Questions: []Question{
			{ID: "q2", Order: 2, Options: []Option{{ID: "b", Order: 2}, {ID: "a", Order: 1}}},
			{ID: "q1", Order: 1},
		},
	}
	snapshot := quiz.OrderedQuestions()
	if snapshot[0].ID != "q1" || snapshot[1].ID != "q2" {
		t.Fatalf("expected questions sorted by order, got %s,%s", snapshot[0].ID, snapshot[1].ID)
	}
	if snapshot[1].Options[0].ID != "a" {
		t.Fatalf("expected options sorted by order, got %+v", snapshot[1].Options)
	}

	quiz.Questions[0].Options[0].Text = "edited"
	quiz.Questions[0].Prompt = "edited"
	for _, opt := range snapshot[1].Options {
		if opt.Text == "edited" {
			t.Fatalf("snapshot shares option storage with the quiz")
		}
	}
	if snapshot[1].Prompt == "edited" {
		t.Fatalf("snapshot shares question storage with the quiz")
	}
}

func TestSessionViewHidesCorrectness(t *testing.T) {
	session := Session{
		ID: "s1",
		Questions: []Question{{
			ID:      "q1",
			Type:    MultipleChoice,
			Options: []Option{{ID: "o1", Text: "4", Correct: true}},
		}},
		State: InProgress{QuestionIndex: 0},
	}
	view := NewSessionView(session, []Participant{
		{ID: "p1", DisplayName: "Alice", Score: 10},
		{ID: "p2", DisplayName: "Bob", Score: 20},
	})
	if view.CurrentQuestion == nil || len(view.CurrentQuestion.Options) != 1 {
		t.Fatalf("expected current question with options, got %+v", view.CurrentQuestion)
	}
	if view.CurrentQuestion.TimeLimit != DefaultTimeLimit {
		t.Fatalf("expected default time limit, got %d", view.CurrentQuestion.TimeLimit)
	}
	if view.Participants[0].ID != "p2" {
		t.Fatalf("expected highest score first, got %+v", view.Participants)
	}
}

func TestErrorCodesRoundTrip(t *testing.T) {
	wrapped := fmt.Errorf("answer for q1 while q2 is current: %w", ErrStaleQuestion)
	if got := ErrorCode(wrapped); got != "StaleQuestion" {
		t.Fatalf("unexpected code %q", got)
	}
	if !errors.Is(ErrorForCode("StaleQuestion"), ErrStaleQuestion) {
		t.Fatalf("expected code to map back to the sentinel")
	}
	if ErrorCode(errors.New("boom")) != "" || ErrorForCode("Boom") != nil {
		t.Fatalf("expected unknown errors to have no code")
	}
	if ErrorCode(ErrAccessCodeTaken) != "" {
		t.Fatalf("store-internal collisions must not reach the wire")
	}
}
