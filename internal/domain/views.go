package domain

import (
	"sort"
	"time"
)

// OptionView is an option without its correctness marker.
type OptionView struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

// QuestionView is the current question as participants may see it.
type QuestionView struct {
	ID        string       `json:"id"`
	Type      QuestionType `json:"type"`
	Prompt    string       `json:"prompt"`
	TimeLimit int          `json:"timeLimit"`
	Options   []OptionView `json:"options,omitempty"`
}

// ParticipantView is a snapshot-friendly view of a participant.
type ParticipantView struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	DisplayName        string    `json:"displayName"`
	Score              int       `json:"score"`
	HasAnsweredCurrent bool      `json:"hasAnsweredCurrent"`
	AnswerCount        int       `json:"answerCount"`
	JoinedAt           time.Time `json:"joinedAt"`
}

// SessionView is the full authoritative snapshot clients replace their local view with.
type SessionView struct {
	ID                   string            `json:"id"`
	AccessCode           string            `json:"accessCode"`
	QuizID               string            `json:"quizId"`
	QuizTitle            string            `json:"quizTitle"`
	HostID               string            `json:"hostId"`
	Status               Status            `json:"status"`
	CurrentQuestionIndex int               `json:"currentQuestionIndex"`
	QuestionCount        int               `json:"questionCount"`
	CurrentQuestion      *QuestionView     `json:"currentQuestion,omitempty"`
	Participants         []ParticipantView `json:"participants"`
	CreatedAt            time.Time         `json:"createdAt"`
	StartedAt            *time.Time        `json:"startedAt,omitempty"`
	EndedAt              *time.Time        `json:"endedAt,omitempty"`
}

// NewSessionView builds the snapshot of session and its participants.
func NewSessionView(session Session, participants []Participant) SessionView {
	rec := RecordOf(session.State)
	view := SessionView{
		ID:                   session.ID,
		AccessCode:           session.AccessCode,
		QuizID:               session.QuizID,
		QuizTitle:            session.QuizTitle,
		HostID:               session.HostID,
		Status:               rec.Status,
		CurrentQuestionIndex: rec.CurrentQuestionIndex,
		QuestionCount:        len(session.Questions),
		CreatedAt:            session.CreatedAt,
		StartedAt:            rec.StartedAt,
		EndedAt:              rec.EndedAt,
		Participants:         make([]ParticipantView, 0, len(participants)),
	}
	if question, ok := session.CurrentQuestion(); ok {
		qv := newQuestionView(question)
		view.CurrentQuestion = &qv
	}

	ordered := append([]Participant(nil), participants...)
	SortParticipants(ordered)
	for _, p := range ordered {
		view.Participants = append(view.Participants, ParticipantView{
			ID:                 p.ID,
			UserID:             p.UserID,
			DisplayName:        p.DisplayName,
			Score:              p.Score,
			HasAnsweredCurrent: p.HasAnsweredCurrent,
			AnswerCount:        p.AnswerCount,
			JoinedAt:           p.JoinedAt,
		})
	}
	return view
}

func newQuestionView(q Question) QuestionView {
	qv := QuestionView{
		ID:        q.ID,
		Type:      q.Type,
		Prompt:    q.Prompt,
		TimeLimit: q.TimeLimit,
	}
	if qv.TimeLimit <= 0 {
		qv.TimeLimit = DefaultTimeLimit
	}
	if q.Type.HasOptions() {
		for _, opt := range q.Options {
			qv.Options = append(qv.Options, OptionView{ID: opt.ID, Text: opt.Text, Order: opt.Order})
		}
	}
	return qv
}

// SortParticipants orders by score desc, then earliest join, then name.
func SortParticipants(ps []Participant) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Score != ps[j].Score {
			return ps[i].Score > ps[j].Score
		}
		if !ps[i].JoinedAt.Equal(ps[j].JoinedAt) {
			return ps[i].JoinedAt.Before(ps[j].JoinedAt)
		}
		return ps[i].DisplayName < ps[j].DisplayName
	})
}

// LeaderboardEntry is one ranked participant.
type LeaderboardEntry struct {
	Rank                int     `json:"rank"`
	ParticipantID       string  `json:"participantId"`
	UserID              string  `json:"userId"`
	DisplayName         string  `json:"displayName"`
	Score               int     `json:"score"`
	AnswerCount         int     `json:"answerCount"`
	CorrectCount        int     `json:"correctCount"`
	Accuracy            float64 `json:"accuracy"`            // percent
	AverageResponseTime float64 `json:"averageResponseTime"` // ms
}

// Leaderboard captures the ordered scoreboard for a quiz session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Status    Status             `json:"status"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// NewLeaderboard ranks participants.
func NewLeaderboard(session Session, participants []Participant, now time.Time) Leaderboard {
	ordered := append([]Participant(nil), participants...)
	SortParticipants(ordered)
	lb := Leaderboard{
		SessionID: session.ID,
		Status:    session.Status(),
		Entries:   make([]LeaderboardEntry, 0, len(ordered)),
		UpdatedAt: now,
	}
	for i, p := range ordered {
		entry := LeaderboardEntry{
			Rank:          i + 1,
			ParticipantID: p.ID,
			UserID:        p.UserID,
			DisplayName:   p.DisplayName,
			Score:         p.Score,
			AnswerCount:   p.AnswerCount,
			CorrectCount:  p.CorrectCount,
		}
		if p.AnswerCount > 0 {
			entry.Accuracy = float64(p.CorrectCount) / float64(p.AnswerCount) * 100
			entry.AverageResponseTime = float64(p.TotalResponseTime) / float64(p.AnswerCount)
		}
		lb.Entries = append(lb.Entries, entry)
	}
	return lb
}

// SessionSummary is a list row for the host's sessions.
type SessionSummary struct {
	ID            string    `json:"id"`
	AccessCode    string    `json:"accessCode"`
	QuizID        string    `json:"quizId"`
	QuizTitle     string    `json:"quizTitle"`
	Status        Status    `json:"status"`
	QuestionCount int       `json:"questionCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Summarize returns the list row for s.
func Summarize(s Session) SessionSummary {
	return SessionSummary{
		ID:            s.ID,
		AccessCode:    s.AccessCode,
		QuizID:        s.QuizID,
		QuizTitle:     s.QuizTitle,
		Status:        s.Status(),
		QuestionCount: len(s.Questions),
		CreatedAt:     s.CreatedAt,
	}
}
