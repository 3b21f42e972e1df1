package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-session-service/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	session := domain.Session{ID: "s1", AccessCode: "ABC123", HostID: "host", State: domain.Waiting{}}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreateSession(ctx, domain.Session{ID: "s2", AccessCode: "ABC123", State: domain.Waiting{}}); !errors.Is(err, domain.ErrAccessCodeTaken) {
		t.Fatalf("expected access code collision, got %v", err)
	}
	if _, err := store.FindByAccessCode(ctx, "ABC123"); err != nil {
		t.Fatalf("expected session by code: %v", err)
	}

	session.State = domain.Completed{QuestionIndex: -1, EndedAt: time.Now()}
	if err := store.SaveState(ctx, session, false); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.FindByAccessCode(ctx, "ABC123"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected completed session code released, got %v", err)
	}
	if err := store.CreateSession(ctx, domain.Session{ID: "s2", AccessCode: "ABC123", State: domain.Waiting{}}); err != nil {
		t.Fatalf("expected code reusable after completion: %v", err)
	}
	if got, _ := store.GetSession(ctx, "s1"); got.Status() != domain.StatusCompleted {
		t.Fatalf("completed session must stay readable, got %s", got.Status())
	}
}

func TestSessionStoreRecordAnswerOnce(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	_ = store.CreateSession(ctx, domain.Session{ID: "s1", AccessCode: "ABC123", State: domain.Waiting{}})

	p, created, err := store.AddParticipant(ctx, domain.Participant{ID: "p1", SessionID: "s1", UserID: "u1"})
	if err != nil || !created {
		t.Fatalf("add participant: created=%v err=%v", created, err)
	}
	again, created, err := store.AddParticipant(ctx, domain.Participant{ID: "p2", SessionID: "s1", UserID: "u1"})
	if err != nil || created || again.ID != p.ID {
		t.Fatalf("expected existing participant, got %+v created=%v err=%v", again, created, err)
	}

	answer := domain.Answer{ID: "a1", SessionID: "s1", ParticipantID: "p1", QuestionID: "q1", IsCorrect: true, Points: 750, ResponseTime: 400}
	updated, err := store.RecordAnswer(ctx, answer)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if updated.Score != 750 || !updated.HasAnsweredCurrent || updated.AnswerCount != 1 || updated.CorrectCount != 1 {
		t.Fatalf("unexpected participant after answer: %+v", updated)
	}
	if _, err := store.RecordAnswer(ctx, answer); !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	stored, _ := store.GetParticipant(ctx, "s1", "p1")
	if stored.Score != 750 {
		t.Fatalf("duplicate must not change score, got %d", stored.Score)
	}

	if err := store.SaveState(ctx, domain.Session{ID: "s1", State: domain.InProgress{QuestionIndex: 1}}, true); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, participants, _ := store.Snapshot(ctx, "s1")
	if len(participants) != 1 || participants[0].HasAnsweredCurrent {
		t.Fatalf("expected answered flag reset, got %+v", participants)
	}
}
