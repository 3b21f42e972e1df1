package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

var _ app.SessionStore = (*SessionStore)(nil)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type sessionModel struct {
	bun.BaseModel `bun:"table:quiz_sessions"`

	ID                   string            `bun:"id,pk"`
	AccessCode           string            `bun:"access_code,notnull"`
	QuizID               string            `bun:"quiz_id,notnull"`
	QuizTitle            string            `bun:"quiz_title,notnull"`
	HostID               string            `bun:"host_id,notnull"`
	Questions            []domain.Question `bun:"questions,type:jsonb,notnull"`
	Status               string            `bun:"status,notnull"`
	CurrentQuestionIndex int               `bun:"current_question_index,notnull"`
	CreatedAt            time.Time         `bun:"created_at,notnull"`
	StartedAt            *time.Time        `bun:"started_at"`
	EndedAt              *time.Time        `bun:"ended_at"`
}

type participantModel struct {
	bun.BaseModel `bun:"table:participants"`

	ID                 string    `bun:"id,pk"`
	SessionID          string    `bun:"session_id,notnull"`
	UserID             string    `bun:"user_id,notnull"`
	DisplayName        string    `bun:"display_name,notnull"`
	Score              int       `bun:"score,notnull"`
	HasAnsweredCurrent bool      `bun:"has_answered_current,notnull"`
	AnswerCount        int       `bun:"answer_count,notnull"`
	CorrectCount       int       `bun:"correct_count,notnull"`
	TotalResponseTime  int64     `bun:"total_response_time,notnull"`
	JoinedAt           time.Time `bun:"joined_at,notnull"`
}

type answerModel struct {
	bun.BaseModel `bun:"table:answers"`

	ID             string    `bun:"id,pk"`
	SessionID      string    `bun:"session_id,notnull"`
	ParticipantID  string    `bun:"participant_id,notnull"`
	QuestionID     string    `bun:"question_id,notnull"`
	SelectedOption string    `bun:"selected_option,notnull"`
	TextAnswer     string    `bun:"text_answer,notnull"`
	IsCorrect      bool      `bun:"is_correct,notnull"`
	Points         int       `bun:"points,notnull"`
	ResponseTime   int64     `bun:"response_time,notnull"`
	AnsweredAt     time.Time `bun:"answered_at,notnull"`
}

// SessionStore is the durable session record on Postgres via bun.
// Access codes are unique among sessions that are not COMPLETED through a
// partial unique index, so completing a session releases its code.
type SessionStore struct {
	db *bun.DB
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) CreateSession(ctx context.Context, session domain.Session) error {
	m := toSessionModel(session)
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		if pgCode(err) == uniqueViolation {
			return domain.ErrAccessCodeTaken
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return getSession(ctx, s.db, sessionID)
}

func (s *SessionStore) FindByAccessCode(ctx context.Context, code string) (domain.Session, error) {
	var m sessionModel
	err := s.db.NewSelect().Model(&m).
		Where("access_code = ?", code).
		Where("status <> ?", string(domain.StatusCompleted)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("find by access code: %w", err)
	}
	return m.toDomain()
}

func (s *SessionStore) ListHostedSessions(ctx context.Context, hostID string) ([]domain.Session, error) {
	var models []sessionModel
	err := s.db.NewSelect().Model(&models).
		Where("host_id = ?", hostID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list hosted sessions: %w", err)
	}
	out := make([]domain.Session, 0, len(models))
	for _, m := range models {
		session, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

func (s *SessionStore) SaveState(ctx context.Context, session domain.Session, resetAnswered bool) error {
	rec := domain.RecordOf(session.State)
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*sessionModel)(nil)).
			Set("status = ?", string(rec.Status)).
			Set("current_question_index = ?", rec.CurrentQuestionIndex).
			Set("started_at = ?", rec.StartedAt).
			Set("ended_at = ?", rec.EndedAt).
			Where("id = ?", session.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update session state: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		if !resetAnswered {
			return nil
		}
		_, err = tx.NewUpdate().Model((*participantModel)(nil)).
			Set("has_answered_current = FALSE").
			Where("session_id = ?", session.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("reset answered flags: %w", err)
		}
		return nil
	})
}

func (s *SessionStore) AddParticipant(ctx context.Context, p domain.Participant) (domain.Participant, bool, error) {
	m := participantModel{
		ID:          p.ID,
		SessionID:   p.SessionID,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		JoinedAt:    p.JoinedAt,
	}
	res, err := s.db.NewInsert().Model(&m).
		On("CONFLICT (session_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		if pgCode(err) == foreignKeyViolation {
			return domain.Participant{}, false, domain.ErrNotFound
		}
		return domain.Participant{}, false, fmt.Errorf("insert participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return m.toDomain(), true, nil
	}

	var existing participantModel
	err = s.db.NewSelect().Model(&existing).
		Where("session_id = ?", p.SessionID).
		Where("user_id = ?", p.UserID).
		Scan(ctx)
	if err != nil {
		return domain.Participant{}, false, fmt.Errorf("load existing participant: %w", err)
	}
	return existing.toDomain(), false, nil
}

func (s *SessionStore) GetParticipant(ctx context.Context, sessionID, participantID string) (domain.Participant, error) {
	return getParticipant(ctx, s.db, sessionID, participantID)
}

func (s *SessionStore) Snapshot(ctx context.Context, sessionID string) (domain.Session, []domain.Participant, error) {
	var (
		session      domain.Session
		participants []domain.Participant
	)
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := s.db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
		var err error
		session, err = getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		var models []participantModel
		if err := tx.NewSelect().Model(&models).Where("session_id = ?", sessionID).Scan(ctx); err != nil {
			return fmt.Errorf("load participants: %w", err)
		}
		participants = make([]domain.Participant, 0, len(models))
		for _, m := range models {
			participants = append(participants, m.toDomain())
		}
		return nil
	})
	if err != nil {
		return domain.Session{}, nil, err
	}
	return session, participants, nil
}

func (s *SessionStore) RecordAnswer(ctx context.Context, answer domain.Answer) (domain.Participant, error) {
	var updated domain.Participant
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		m := answerModel{
			ID:             answer.ID,
			SessionID:      answer.SessionID,
			ParticipantID:  answer.ParticipantID,
			QuestionID:     answer.QuestionID,
			SelectedOption: answer.Content.OptionID,
			TextAnswer:     answer.Content.Text,
			IsCorrect:      answer.IsCorrect,
			Points:         answer.Points,
			ResponseTime:   answer.ResponseTime,
			AnsweredAt:     answer.AnsweredAt,
		}
		res, err := tx.NewInsert().Model(&m).
			On("CONFLICT (participant_id, question_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			if pgCode(err) == foreignKeyViolation {
				return domain.ErrNotFound
			}
			return fmt.Errorf("insert answer: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrDuplicateAnswer
		}

		correct := 0
		if answer.IsCorrect {
			correct = 1
		}
		_, err = tx.NewUpdate().Model((*participantModel)(nil)).
			Set("score = score + ?", answer.Points).
			Set("has_answered_current = TRUE").
			Set("answer_count = answer_count + 1").
			Set("correct_count = correct_count + ?", correct).
			Set("total_response_time = total_response_time + ?", answer.ResponseTime).
			Where("id = ?", answer.ParticipantID).
			Where("session_id = ?", answer.SessionID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("apply answer: %w", err)
		}
		updated, err = getParticipant(ctx, tx, answer.SessionID, answer.ParticipantID)
		return err
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return updated, nil
}

func (s *SessionStore) GetAnswer(ctx context.Context, sessionID, participantID, questionID string) (domain.Answer, error) {
	var m answerModel
	err := s.db.NewSelect().Model(&m).
		Where("session_id = ?", sessionID).
		Where("participant_id = ?", participantID).
		Where("question_id = ?", questionID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Answer{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Answer{}, fmt.Errorf("get answer: %w", err)
	}
	return domain.Answer{
		ID:            m.ID,
		SessionID:     m.SessionID,
		ParticipantID: m.ParticipantID,
		QuestionID:    m.QuestionID,
		Content:       domain.AnswerContent{OptionID: m.SelectedOption, Text: m.TextAnswer},
		IsCorrect:     m.IsCorrect,
		Points:        m.Points,
		ResponseTime:  m.ResponseTime,
		AnsweredAt:    m.AnsweredAt,
	}, nil
}

func getSession(ctx context.Context, db bun.IDB, sessionID string) (domain.Session, error) {
	var m sessionModel
	err := db.NewSelect().Model(&m).Where("id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return m.toDomain()
}

func getParticipant(ctx context.Context, db bun.IDB, sessionID, participantID string) (domain.Participant, error) {
	var m participantModel
	err := db.NewSelect().Model(&m).
		Where("id = ?", participantID).
		Where("session_id = ?", sessionID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return m.toDomain(), nil
}

func toSessionModel(session domain.Session) sessionModel {
	rec := domain.RecordOf(session.State)
	return sessionModel{
		ID:                   session.ID,
		AccessCode:           session.AccessCode,
		QuizID:               session.QuizID,
		QuizTitle:            session.QuizTitle,
		HostID:               session.HostID,
		Questions:            session.Questions,
		Status:               string(rec.Status),
		CurrentQuestionIndex: rec.CurrentQuestionIndex,
		CreatedAt:            session.CreatedAt,
		StartedAt:            rec.StartedAt,
		EndedAt:              rec.EndedAt,
	}
}

func (m sessionModel) toDomain() (domain.Session, error) {
	state, err := domain.StateRecord{
		Status:               domain.Status(m.Status),
		CurrentQuestionIndex: m.CurrentQuestionIndex,
		StartedAt:            m.StartedAt,
		EndedAt:              m.EndedAt,
	}.State()
	if err != nil {
		return domain.Session{}, fmt.Errorf("session %s: %w", m.ID, err)
	}
	return domain.Session{
		ID:         m.ID,
		AccessCode: m.AccessCode,
		QuizID:     m.QuizID,
		QuizTitle:  m.QuizTitle,
		HostID:     m.HostID,
		Questions:  m.Questions,
		CreatedAt:  m.CreatedAt,
		State:      state,
	}, nil
}

func (m participantModel) toDomain() domain.Participant {
	return domain.Participant{
		ID:                 m.ID,
		SessionID:          m.SessionID,
		UserID:             m.UserID,
		DisplayName:        m.DisplayName,
		Score:              m.Score,
		HasAnsweredCurrent: m.HasAnsweredCurrent,
		AnswerCount:        m.AnswerCount,
		CorrectCount:       m.CorrectCount,
		TotalResponseTime:  m.TotalResponseTime,
		JoinedAt:           m.JoinedAt,
	}
}

// pgCode returns the SQLSTATE of a Postgres error, or "".
func pgCode(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	return ""
}
