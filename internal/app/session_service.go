package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"quiz-session-service/internal/domain"
)

// SessionStore is the durable record of sessions, participants and answers.
// Implementations must make SaveState and RecordAnswer atomic.
type SessionStore interface {
	// CreateSession persists a new session. It returns domain.ErrAccessCodeTaken
	// when the access code is held by another session that is not COMPLETED.
	CreateSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	// FindByAccessCode only resolves sessions that are not COMPLETED.
	FindByAccessCode(ctx context.Context, code string) (domain.Session, error)
	ListHostedSessions(ctx context.Context, hostID string) ([]domain.Session, error)
	// SaveState writes the session state and, when resetAnswered is set, clears
	// every participant's answered flag in the same atomic step.
	SaveState(ctx context.Context, session domain.Session, resetAnswered bool) error
	// AddParticipant returns the existing participant for (session, user) when
	// there is one; created reports whether p was inserted.
	AddParticipant(ctx context.Context, p domain.Participant) (participant domain.Participant, created bool, err error)
	GetParticipant(ctx context.Context, sessionID, participantID string) (domain.Participant, error)
	// Snapshot reads a session and its participants consistently.
	Snapshot(ctx context.Context, sessionID string) (domain.Session, []domain.Participant, error)
	// RecordAnswer inserts the answer and applies it to the participant
	// (score, answered flag, counters) atomically. It returns
	// domain.ErrDuplicateAnswer if the (participant, question) pair exists.
	RecordAnswer(ctx context.Context, answer domain.Answer) (domain.Participant, error)
	GetAnswer(ctx context.Context, sessionID, participantID, questionID string) (domain.Answer, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Notifier tells a session's room that authoritative state may have changed.
type Notifier interface {
	Signal(ctx context.Context, sessionID string)
}

type noopNotifier struct{}

func (noopNotifier) Signal(context.Context, string) {}

// SessionService contains the core live-session use cases: the lifecycle
// state machine and the answer collector.
type SessionService struct {
	store    SessionStore
	quizzes  QuizRepository
	notifier Notifier
	scoring  ScoringConfig
	locks    *lockTable
	codes    func() string
	newID    func() string
	now      func() time.Time
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a SessionService.
type Option func(*SessionService)

// WithNotifier sets the relay signalled after every committed mutation.
func WithNotifier(n Notifier) Option {
	return func(s *SessionService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithScoring overrides the point formula constants.
func WithScoring(cfg ScoringConfig) Option {
	return func(s *SessionService) { s.scoring = cfg }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SessionService) { s.now = now }
}

// WithAccessCodes replaces the random access code source.
func WithAccessCodes(next func() string) Option {
	return func(s *SessionService) { s.codes = next }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SessionService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSessionService(store SessionStore, quizzes QuizRepository, opts ...Option) *SessionService {
	s := &SessionService{
		store:    store,
		quizzes:  quizzes,
		notifier: noopNotifier{},
		scoring:  DefaultScoring(),
		locks:    newLockTable(),
		codes:    newCodeGenerator().next,
		newID:    uuid.NewString,
		now:      time.Now,
		logger:   slog.Default(),
		tracer:   otel.Tracer("quiz-session-service/internal/app"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession snapshots the quiz's questions into a new WAITING session hosted by actor.
func (s *SessionService) CreateSession(ctx context.Context, actor domain.Actor, quizID string) (_ domain.SessionCreated, err error) {
	ctx, span := s.startSpan(ctx, "CreateSession", attribute.String("quiz.id", quizID))
	defer endSpan(span, &err)

	if actor.UserID == "" || actor.Role != domain.RoleTeacher {
		return domain.SessionCreated{}, domain.ErrUnauthorized
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.SessionCreated{}, err
	}
	if quiz.OwnerID != "" && quiz.OwnerID != actor.UserID {
		return domain.SessionCreated{}, domain.ErrUnauthorized
	}
	questions := quiz.OrderedQuestions()
	if len(questions) == 0 {
		return domain.SessionCreated{}, fmt.Errorf("quiz %q has no questions: %w", quizID, domain.ErrNotFound)
	}
	if err := validateQuestions(questions); err != nil {
		return domain.SessionCreated{}, err
	}

	session := domain.Session{
		ID:        s.newID(),
		QuizID:    quiz.ID,
		QuizTitle: quiz.Title,
		HostID:    actor.UserID,
		Questions: questions,
		CreatedAt: s.now(),
		State:     domain.Waiting{},
	}
	for attempt := 0; attempt < accessCodeAttempts; attempt++ {
		session.AccessCode = s.codes()
		err = s.store.CreateSession(ctx, session)
		if !errors.Is(err, domain.ErrAccessCodeTaken) {
			break
		}
	}
	if err != nil {
		return domain.SessionCreated{}, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("session created", "session_id", session.ID, "quiz_id", quiz.ID, "host_id", actor.UserID)
	return domain.SessionCreated{SessionID: session.ID, AccessCode: session.AccessCode}, nil
}

// Join registers actor in the WAITING session identified by accessCode.
// Re-joining returns the existing participant, even after the session started.
func (s *SessionService) Join(ctx context.Context, actor domain.Actor, accessCode, displayName string) (_ domain.Joined, err error) {
	ctx, span := s.startSpan(ctx, "Join")
	defer endSpan(span, &err)

	if actor.UserID == "" {
		return domain.Joined{}, domain.ErrUnauthorized
	}
	code := NormalizeAccessCode(accessCode)
	if !ValidAccessCode(code) {
		return domain.Joined{}, fmt.Errorf("access code %q: %w", accessCode, domain.ErrNotFound)
	}
	found, err := s.store.FindByAccessCode(ctx, code)
	if err != nil {
		return domain.Joined{}, err
	}
	if displayName == "" {
		displayName = actor.UserID
	}

	participant, created, err := func() (domain.Participant, bool, error) {
		unlock := s.locks.lock(found.ID)
		defer unlock()

		// Re-read under the lock: the session may have started since the lookup.
		session, err := s.store.GetSession(ctx, found.ID)
		if err != nil {
			return domain.Participant{}, false, err
		}
		candidate := domain.Participant{
			ID:          s.newID(),
			SessionID:   session.ID,
			UserID:      actor.UserID,
			DisplayName: displayName,
			JoinedAt:    s.now(),
		}
		if _, waiting := session.State.(domain.Waiting); !waiting {
			existing, _, err := s.findParticipantByUser(ctx, session.ID, actor.UserID)
			if err != nil {
				return domain.Participant{}, false, err
			}
			return existing, false, nil
		}
		return s.store.AddParticipant(ctx, candidate)
	}()
	if err != nil {
		return domain.Joined{}, err
	}

	if created {
		s.logger.Info("participant joined", "session_id", found.ID, "participant_id", participant.ID)
		s.notifier.Signal(ctx, found.ID)
	}
	return domain.Joined{SessionID: found.ID, ParticipantID: participant.ID}, nil
}

func (s *SessionService) findParticipantByUser(ctx context.Context, sessionID, userID string) (domain.Participant, bool, error) {
	_, participants, err := s.store.Snapshot(ctx, sessionID)
	if err != nil {
		return domain.Participant{}, false, err
	}
	for _, p := range participants {
		if p.UserID == userID {
			return p, true, nil
		}
	}
	return domain.Participant{}, false, domain.ErrSessionNotJoinable
}

// Start moves a WAITING session with at least one participant to its first question.
func (s *SessionService) Start(ctx context.Context, sessionID string, actor domain.Actor) (domain.SessionView, error) {
	return s.transition(ctx, "Start", sessionID, actor, func(session domain.Session, participants []domain.Participant) (domain.State, bool, error) {
		if _, ok := session.State.(domain.Waiting); !ok {
			return nil, false, fmt.Errorf("start from %s: %w", session.Status(), domain.ErrIllegalTransition)
		}
		if len(participants) == 0 {
			return nil, false, domain.ErrEmptyRoom
		}
		return domain.InProgress{QuestionIndex: 0, StartedAt: s.now()}, true, nil
	})
}

// Advance moves to the next question, or completes the session after the last one.
func (s *SessionService) Advance(ctx context.Context, sessionID string, actor domain.Actor) (domain.SessionView, error) {
	return s.transition(ctx, "Advance", sessionID, actor, func(session domain.Session, _ []domain.Participant) (domain.State, bool, error) {
		st, ok := session.State.(domain.InProgress)
		if !ok {
			return nil, false, fmt.Errorf("advance from %s: %w", session.Status(), domain.ErrIllegalTransition)
		}
		if st.QuestionIndex >= len(session.Questions)-1 {
			return domain.Completed{QuestionIndex: st.QuestionIndex, StartedAt: st.StartedAt, EndedAt: s.now()}, false, nil
		}
		return domain.InProgress{QuestionIndex: st.QuestionIndex + 1, StartedAt: st.StartedAt}, true, nil
	})
}

// End completes a WAITING or IN_PROGRESS session.
func (s *SessionService) End(ctx context.Context, sessionID string, actor domain.Actor) (domain.SessionView, error) {
	return s.transition(ctx, "End", sessionID, actor, func(session domain.Session, _ []domain.Participant) (domain.State, bool, error) {
		switch st := session.State.(type) {
		case domain.Waiting:
			return domain.Completed{QuestionIndex: -1, EndedAt: s.now()}, false, nil
		case domain.InProgress:
			return domain.Completed{QuestionIndex: st.QuestionIndex, StartedAt: st.StartedAt, EndedAt: s.now()}, false, nil
		}
		return nil, false, fmt.Errorf("end from %s: %w", session.Status(), domain.ErrIllegalTransition)
	})
}

type transitionFunc func(session domain.Session, participants []domain.Participant) (next domain.State, resetAnswered bool, err error)

// transition runs a host-only lifecycle change under the session's exclusive lock.
// A rejected transition writes nothing.
func (s *SessionService) transition(ctx context.Context, op, sessionID string, actor domain.Actor, next transitionFunc) (_ domain.SessionView, err error) {
	ctx, span := s.startSpan(ctx, op, attribute.String("session.id", sessionID))
	defer endSpan(span, &err)

	view, err := func() (domain.SessionView, error) {
		unlock := s.locks.lock(sessionID)
		defer unlock()

		session, participants, err := s.store.Snapshot(ctx, sessionID)
		if err != nil {
			return domain.SessionView{}, err
		}
		if !session.IsHost(actor) {
			return domain.SessionView{}, domain.ErrUnauthorized
		}
		state, reset, err := next(session, participants)
		if err != nil {
			return domain.SessionView{}, err
		}
		session.State = state
		if err := s.store.SaveState(ctx, session, reset); err != nil {
			return domain.SessionView{}, fmt.Errorf("save session state: %w", err)
		}
		if reset {
			for i := range participants {
				participants[i].HasAnsweredCurrent = false
			}
		}
		return domain.NewSessionView(session, participants), nil
	}()
	if err != nil {
		return domain.SessionView{}, err
	}

	s.logger.Info("session transition", "op", op, "session_id", sessionID,
		"status", view.Status, "question_index", view.CurrentQuestionIndex)
	s.notifier.Signal(ctx, sessionID)
	return view, nil
}

// SubmitAnswer records a participant's answer to the current question.
// On domain.ErrDuplicateAnswer the returned result describes the answer
// recorded first, so retried submissions can be treated as success.
func (s *SessionService) SubmitAnswer(ctx context.Context, actor domain.Actor, sub domain.AnswerSubmission) (_ domain.AnswerResult, err error) {
	ctx, span := s.startSpan(ctx, "SubmitAnswer",
		attribute.String("session.id", sub.SessionID),
		attribute.String("participant.id", sub.ParticipantID))
	defer func() {
		if errors.Is(err, domain.ErrDuplicateAnswer) {
			span.End()
			return
		}
		endSpan(span, &err)
	}()

	result, err := s.collect(ctx, actor, sub)
	if err != nil {
		return result, err
	}
	s.logger.Debug("answer recorded", "session_id", sub.SessionID, "participant_id", sub.ParticipantID,
		"question_id", sub.QuestionID, "correct", result.IsCorrect, "points", result.PointsEarned)
	s.notifier.Signal(ctx, sub.SessionID)
	return result, nil
}

func (s *SessionService) collect(ctx context.Context, actor domain.Actor, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	// Shared session lock: parallel across participants, exclusive against transitions.
	unlockSession := s.locks.rlock(sub.SessionID)
	defer unlockSession()

	session, err := s.store.GetSession(ctx, sub.SessionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	question, active := session.CurrentQuestion()
	if !active {
		return domain.AnswerResult{}, domain.ErrSessionNotActive
	}
	participant, err := s.store.GetParticipant(ctx, sub.SessionID, sub.ParticipantID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if participant.UserID != actor.UserID {
		return domain.AnswerResult{}, domain.ErrUnauthorized
	}
	if sub.QuestionID != question.ID {
		return domain.AnswerResult{}, fmt.Errorf("answer for %q while %q is current: %w", sub.QuestionID, question.ID, domain.ErrStaleQuestion)
	}

	unlockParticipant := s.locks.lock(sub.SessionID + "/" + sub.ParticipantID)
	defer unlockParticipant()

	if existing, err := s.store.GetAnswer(ctx, sub.SessionID, sub.ParticipantID, question.ID); err == nil {
		return s.duplicate(ctx, existing)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.AnswerResult{}, err
	}

	scored, err := Score(question, sub.Content, sub.ResponseTime, s.scoring)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	answer := domain.Answer{
		ID:            s.newID(),
		SessionID:     sub.SessionID,
		ParticipantID: sub.ParticipantID,
		QuestionID:    question.ID,
		Content:       sub.Content,
		IsCorrect:     scored.Correct,
		Points:        scored.Points,
		ResponseTime:  sub.ResponseTime,
		AnsweredAt:    s.now(),
	}
	updated, err := s.store.RecordAnswer(ctx, answer)
	if errors.Is(err, domain.ErrDuplicateAnswer) {
		existing, getErr := s.store.GetAnswer(ctx, sub.SessionID, sub.ParticipantID, question.ID)
		if getErr != nil {
			return domain.AnswerResult{}, err
		}
		return s.duplicate(ctx, existing)
	}
	if err != nil {
		return domain.AnswerResult{}, fmt.Errorf("record answer: %w", err)
	}
	return domain.AnswerResult{
		QuestionID:   question.ID,
		IsCorrect:    answer.IsCorrect,
		PointsEarned: answer.Points,
		TotalScore:   updated.Score,
	}, nil
}

func (s *SessionService) duplicate(ctx context.Context, existing domain.Answer) (domain.AnswerResult, error) {
	result := domain.AnswerResult{
		QuestionID:   existing.QuestionID,
		IsCorrect:    existing.IsCorrect,
		PointsEarned: existing.Points,
	}
	if p, err := s.store.GetParticipant(ctx, existing.SessionID, existing.ParticipantID); err == nil {
		result.TotalScore = p.Score
	}
	return result, domain.ErrDuplicateAnswer
}

// Snapshot returns the full current session view. It takes no lock.
func (s *SessionService) Snapshot(ctx context.Context, sessionID string) (domain.SessionView, error) {
	session, participants, err := s.store.Snapshot(ctx, sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return domain.NewSessionView(session, participants), nil
}

// Leaderboard ranks the session's participants.
func (s *SessionService) Leaderboard(ctx context.Context, sessionID string) (domain.Leaderboard, error) {
	session, participants, err := s.store.Snapshot(ctx, sessionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return domain.NewLeaderboard(session, participants, s.now()), nil
}

// HostedSessions lists the sessions hosted by actor, newest first.
func (s *SessionService) HostedSessions(ctx context.Context, actor domain.Actor) ([]domain.SessionSummary, error) {
	if actor.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	sessions, err := s.store.ListHostedSessions(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, domain.Summarize(session))
	}
	return out, nil
}

func validateQuestions(questions []domain.Question) error {
	for _, q := range questions {
		if !q.Type.Valid() {
			return fmt.Errorf("question %q has type %q: %w", q.ID, q.Type, domain.ErrInvalidContent)
		}
		if q.Type.HasOptions() {
			hasCorrect := false
			for _, opt := range q.Options {
				hasCorrect = hasCorrect || opt.Correct
			}
			if !hasCorrect {
				return fmt.Errorf("question %q has no correct option: %w", q.ID, domain.ErrInvalidContent)
			}
		} else if q.ExpectedAnswer == "" {
			return fmt.Errorf("question %q has no expected answer: %w", q.ID, domain.ErrInvalidContent)
		}
	}
	return nil
}

func (s *SessionService) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "SessionService."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}
