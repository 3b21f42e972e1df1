package domain

import "errors"

var (
	// ErrNotFound is returned for unknown sessions, participants, quizzes or access codes.
	ErrNotFound = errors.New("not found")
	// ErrIllegalTransition is returned when a lifecycle operation is not legal from the current status.
	ErrIllegalTransition = errors.New("illegal session transition")
	// ErrUnauthorized is returned when the actor may not perform the operation.
	ErrUnauthorized = errors.New("actor is not allowed to perform this action")
	// ErrEmptyRoom is returned when a host starts a session nobody has joined.
	ErrEmptyRoom = errors.New("session has no participants")
	// ErrSessionNotActive is returned when answers are submitted outside IN_PROGRESS.
	ErrSessionNotActive = errors.New("session is not in progress")
	// ErrStaleQuestion is returned when an answer targets a question that is no longer current.
	ErrStaleQuestion = errors.New("question is not the current question")
	// ErrDuplicateAnswer is returned when a participant already answered the question.
	ErrDuplicateAnswer = errors.New("answer already recorded")
	// ErrInvalidContent is returned when the answer shape does not match the question type.
	ErrInvalidContent = errors.New("invalid answer content")
	// ErrSessionNotJoinable is returned when a new user tries to join a session that has left the lobby.
	ErrSessionNotJoinable = errors.New("session is no longer accepting participants")
	// ErrAccessCodeTaken is returned by stores when an access code collides with a live session.
	ErrAccessCodeTaken = errors.New("access code already in use")
)

// errorCodes are the stable wire names of the taxonomy.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotFound, "NotFound"},
	{ErrIllegalTransition, "IllegalTransition"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrEmptyRoom, "EmptyRoom"},
	{ErrSessionNotActive, "SessionNotActive"},
	{ErrStaleQuestion, "StaleQuestion"},
	{ErrDuplicateAnswer, "DuplicateAnswer"},
	{ErrInvalidContent, "InvalidContent"},
	{ErrSessionNotJoinable, "SessionNotJoinable"},
}

// ErrorCode returns the wire code of err, or "" if err is outside the taxonomy.
func ErrorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return ""
}

// ErrorForCode is the inverse of ErrorCode.
func ErrorForCode(code string) error {
	for _, e := range errorCodes {
		if e.code == code {
			return e.err
		}
	}
	return nil
}
