package domain

import "time"

// Participant represents a quiz participant and their accumulated score.
type Participant struct {
	ID                 string
	SessionID          string
	UserID             string
	DisplayName        string
	Score              int
	HasAnsweredCurrent bool
	AnswerCount        int
	CorrectCount       int
	TotalResponseTime  int64 // ms
	JoinedAt           time.Time
}

// AnswerContent is either a selected option or free text, never both.
type AnswerContent struct {
	OptionID string `json:"selectedOption,omitempty"`
	Text     string `json:"textAnswer,omitempty"`
}

// Answer is immutable once recorded.
type Answer struct {
	ID            string
	SessionID     string
	ParticipantID string
	QuestionID    string
	Content       AnswerContent
	IsCorrect     bool
	Points        int
	ResponseTime  int64 // ms
	AnsweredAt    time.Time
}

// AnswerSubmission models the answer request from a participant.
type AnswerSubmission struct {
	SessionID     string
	ParticipantID string
	QuestionID    string
	Content       AnswerContent
	ResponseTime  int64
}

// AnswerResult is returned to the submitting participant only.
type AnswerResult struct {
	QuestionID   string `json:"questionId"`
	IsCorrect    bool   `json:"isCorrect"`
	PointsEarned int    `json:"pointsEarned"`
	TotalScore   int    `json:"totalScore"`
}

// SessionCreated is returned to the host after createSession.
type SessionCreated struct {
	SessionID  string `json:"sessionId"`
	AccessCode string `json:"accessCode"`
}

// Joined is returned to a participant after join.
type Joined struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
}
