package domain

import (
	"fmt"
	"time"
)

// Status is the persisted lifecycle literal of a session.
type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// State is the lifecycle state of a session. It is a closed set: only Waiting,
// InProgress and Completed implement it, and each carries only the fields that
// are meaningful in that state.
type State interface {
	Status() Status
	isState()
}

// Waiting is the lobby state. No question is active.
type Waiting struct{}

// InProgress means QuestionIndex is the active question.
type InProgress struct {
	QuestionIndex int
	StartedAt     time.Time
}

// Completed is terminal. QuestionIndex is the last question reached, or -1
// when the host ended the session from the lobby (StartedAt is then zero).
type Completed struct {
	QuestionIndex int
	StartedAt     time.Time
	EndedAt       time.Time
}

func (Waiting) Status() Status    { return StatusWaiting }
func (InProgress) Status() Status { return StatusInProgress }
func (Completed) Status() Status  { return StatusCompleted }

func (Waiting) isState()    {}
func (InProgress) isState() {}
func (Completed) isState()  {}

// Role distinguishes hosts from participants at the identity boundary.
type Role string

const (
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   Role
}

// Session is the authoritative record of a live quiz.
type Session struct {
	ID         string
	AccessCode string
	QuizID     string
	QuizTitle  string
	HostID     string
	Questions  []Question
	CreatedAt  time.Time
	State      State
}

// Status returns the status literal of the current state.
func (s Session) Status() Status {
	if s.State == nil {
		return StatusWaiting
	}
	return s.State.Status()
}

// CurrentQuestionIndex is -1 before start.
func (s Session) CurrentQuestionIndex() int {
	switch st := s.State.(type) {
	case InProgress:
		return st.QuestionIndex
	case Completed:
		return st.QuestionIndex
	}
	return -1
}

// CurrentQuestion returns the active question while the session is in progress.
func (s Session) CurrentQuestion() (Question, bool) {
	st, ok := s.State.(InProgress)
	if !ok || st.QuestionIndex < 0 || st.QuestionIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[st.QuestionIndex], true
}

// IsHost reports whether actor hosts the session.
func (s Session) IsHost(actor Actor) bool {
	return actor.UserID != "" && actor.UserID == s.HostID
}

// StateRecord is the flat persisted shape of a State.
type StateRecord struct {
	Status               Status
	CurrentQuestionIndex int
	StartedAt            *time.Time
	EndedAt              *time.Time
}

// RecordOf flattens a state for storage.
func RecordOf(state State) StateRecord {
	switch st := state.(type) {
	case InProgress:
		started := st.StartedAt
		return StateRecord{Status: StatusInProgress, CurrentQuestionIndex: st.QuestionIndex, StartedAt: &started}
	case Completed:
		rec := StateRecord{Status: StatusCompleted, CurrentQuestionIndex: st.QuestionIndex}
		if !st.StartedAt.IsZero() {
			started := st.StartedAt
			rec.StartedAt = &started
		}
		ended := st.EndedAt
		rec.EndedAt = &ended
		return rec
	}
	return StateRecord{Status: StatusWaiting, CurrentQuestionIndex: -1}
}

// State rebuilds the tagged state from its persisted form.
func (r StateRecord) State() (State, error) {
	switch r.Status {
	case StatusWaiting:
		return Waiting{}, nil
	case StatusInProgress:
		if r.CurrentQuestionIndex < 0 {
			return nil, fmt.Errorf("in-progress session with question index %d", r.CurrentQuestionIndex)
		}
		st := InProgress{QuestionIndex: r.CurrentQuestionIndex}
		if r.StartedAt != nil {
			st.StartedAt = *r.StartedAt
		}
		return st, nil
	case StatusCompleted:
		st := Completed{QuestionIndex: r.CurrentQuestionIndex}
		if r.StartedAt != nil {
			st.StartedAt = *r.StartedAt
		}
		if r.EndedAt != nil {
			st.EndedAt = *r.EndedAt
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown session status %q", r.Status)
}
