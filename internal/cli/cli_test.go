package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/auth"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
)

func TestTokenCommand(t *testing.T) {
	t.Setenv("QUIZ_AUTH_SECRET", "s3cret")
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--user", "t1", "--role", "teacher"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}

	actor, err := auth.NewVerifier("s3cret").Verify(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("verify minted token: %v", err)
	}
	if actor.UserID != "t1" || actor.Role != domain.RoleTeacher {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestSampleQuizzesHostSessions(t *testing.T) {
	repo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewSessionService(memory.NewSessionStore(), repo)
	if _, err := service.CreateSession(context.Background(), domain.Actor{UserID: "t1", Role: domain.RoleTeacher}, "quiz-1"); err != nil {
		t.Fatalf("sample quiz cannot host a session: %v", err)
	}
}

func TestScoringConfigDefaults(t *testing.T) {
	if got := scoringConfig(config.ScoringConfig{}); got != app.DefaultScoring() {
		t.Fatalf("expected defaults, got %+v", got)
	}
	got := scoringConfig(config.ScoringConfig{BasePoints: 200, MinFraction: 2})
	if got.BasePoints != 200 || got.MinFraction != app.DefaultScoring().MinFraction {
		t.Fatalf("unexpected scoring %+v", got)
	}
}
