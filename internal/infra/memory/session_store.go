package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

var _ app.SessionStore = (*SessionStore)(nil)

// SessionStore is an in-memory implementation of app.SessionStore. One mutex
// guards everything, which makes every method trivially atomic.
type SessionStore struct {
	mu           sync.RWMutex
	sessions     map[string]domain.Session
	codes        map[string]string // access code -> session id, live sessions only
	participants map[string]map[string]*domain.Participant
	answers      map[answerKey]domain.Answer
}

type answerKey struct {
	participantID string
	questionID    string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:     make(map[string]domain.Session),
		codes:        make(map[string]string),
		participants: make(map[string]map[string]*domain.Participant),
		answers:      make(map[answerKey]domain.Answer),
	}
}

func (s *SessionStore) CreateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[session.AccessCode]; ok {
		return domain.ErrAccessCodeTaken
	}
	s.sessions[session.ID] = session
	s.codes[session.AccessCode] = session.ID
	s.participants[session.ID] = make(map[string]*domain.Participant)
	return nil
}

func (s *SessionStore) GetSession(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return session, nil
}

func (s *SessionStore) FindByAccessCode(_ context.Context, code string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return s.sessions[id], nil
}

func (s *SessionStore) ListHostedSessions(_ context.Context, hostID string) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Session
	for _, session := range s.sessions {
		if session.HostID == hostID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *SessionStore) SaveState(_ context.Context, session domain.Session, resetAnswered bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[session.ID]
	if !ok {
		return domain.ErrNotFound
	}
	current.State = session.State
	s.sessions[session.ID] = current
	if current.Status() == domain.StatusCompleted && s.codes[current.AccessCode] == current.ID {
		delete(s.codes, current.AccessCode)
	}
	if resetAnswered {
		for _, p := range s.participants[session.ID] {
			p.HasAnsweredCurrent = false
		}
	}
	return nil
}

func (s *SessionStore) AddParticipant(_ context.Context, p domain.Participant) (domain.Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.participants[p.SessionID]
	if !ok {
		return domain.Participant{}, false, domain.ErrNotFound
	}
	for _, existing := range members {
		if existing.UserID == p.UserID {
			return *existing, false, nil
		}
	}
	stored := p
	members[p.ID] = &stored
	return stored, true, nil
}

func (s *SessionStore) GetParticipant(_ context.Context, sessionID, participantID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[sessionID][participantID]
	if !ok {
		return domain.Participant{}, domain.ErrNotFound
	}
	return *p, nil
}

func (s *SessionStore) Snapshot(_ context.Context, sessionID string) (domain.Session, []domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, nil, domain.ErrNotFound
	}
	participants := make([]domain.Participant, 0, len(s.participants[sessionID]))
	for _, p := range s.participants[sessionID] {
		participants = append(participants, *p)
	}
	return session, participants, nil
}

func (s *SessionStore) RecordAnswer(_ context.Context, answer domain.Answer) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[answer.SessionID][answer.ParticipantID]
	if !ok {
		return domain.Participant{}, domain.ErrNotFound
	}
	key := answerKey{participantID: answer.ParticipantID, questionID: answer.QuestionID}
	if _, dup := s.answers[key]; dup {
		return domain.Participant{}, domain.ErrDuplicateAnswer
	}
	s.answers[key] = answer

	p.Score += answer.Points
	p.HasAnsweredCurrent = true
	p.AnswerCount++
	if answer.IsCorrect {
		p.CorrectCount++
	}
	p.TotalResponseTime += answer.ResponseTime
	return *p, nil
}

func (s *SessionStore) GetAnswer(_ context.Context, sessionID, participantID, questionID string) (domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answer, ok := s.answers[answerKey{participantID: participantID, questionID: questionID}]
	if !ok || answer.SessionID != sessionID {
		return domain.Answer{}, domain.ErrNotFound
	}
	return answer, nil
}
