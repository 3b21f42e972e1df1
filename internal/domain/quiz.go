package domain

import "sort"

// QuestionType is the authoritative kind of a question.
type QuestionType string

const (
	MultipleChoice QuestionType = "MULTIPLE_CHOICE"
	TrueFalse      QuestionType = "TRUE_FALSE"
	ShortAnswer    QuestionType = "SHORT_ANSWER"
)

// DefaultTimeLimit is applied to questions stored without a time limit (seconds).
const DefaultTimeLimit = 30

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, TrueFalse, ShortAnswer:
		return true
	}
	return false
}

// HasOptions reports whether answers to this type select an option.
func (t QuestionType) HasOptions() bool {
	return t == MultipleChoice || t == TrueFalse
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
	Order   int    `json:"order"`
}

// Question is read from the authoring store and never mutated by sessions.
type Question struct {
	ID             string       `json:"id"`
	Order          int          `json:"order"`
	Type           QuestionType `json:"type"`
	Prompt         string       `json:"prompt"`
	TimeLimit      int          `json:"timeLimit"` // seconds
	Options        []Option     `json:"options,omitempty"`
	ExpectedAnswer string       `json:"expectedAnswer,omitempty"`
}

// TimeLimitMs returns the advisory answer window in milliseconds.
func (q Question) TimeLimitMs() int64 {
	limit := q.TimeLimit
	if limit <= 0 {
		limit = DefaultTimeLimit
	}
	return int64(limit) * 1000
}

// Option looks up an option by id.
func (q Question) Option(id string) (Option, bool) {
	for _, opt := range q.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// Quiz is a collection of questions owned by the authoring subsystem.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	OwnerID   string     `json:"ownerId,omitempty"`
	Questions []Question `json:"questions"`
}

// OrderedQuestions returns a deep copy of the questions sorted by Order.
// Sessions keep this copy so later edits to the quiz never reach them.
func (q Quiz) OrderedQuestions() []Question {
	out := make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]Option(nil), question.Options...)
		sort.SliceStable(question.Options, func(a, b int) bool {
			return question.Options[a].Order < question.Options[b].Order
		})
		out[i] = question
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
