package app

import (
	"errors"
	"testing"

	"quiz-session-service/internal/domain"
)

func mcQuestion() domain.Question {
	return domain.Question{
		ID:        "q1",
		Type:      domain.MultipleChoice,
		TimeLimit: 30,
		Options: []domain.Option{
			{ID: "o1", Text: "3"},
			{ID: "o2", Text: "4", Correct: true},
		},
	}
}

func TestScoreMultipleChoicePoints(t *testing.T) {
	cfg := DefaultScoring()
	cases := []struct {
		name         string
		option       string
		responseTime int64
		correct      bool
		points       int
	}{
		{"instant correct", "o2", 0, true, 1000},
		{"at time limit", "o2", 30000, true, 500},
		{"past time limit", "o2", 90000, true, 500},
		{"quarter time", "o2", 7500, true, 750},
		{"three quarter time clamps", "o2", 22500, true, 500},
		{"incorrect instant", "o1", 0, false, 0},
		{"incorrect late", "o1", 30000, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Score(mcQuestion(), domain.AnswerContent{OptionID: tc.option}, tc.responseTime, cfg)
			if err != nil {
				t.Fatalf("score: %v", err)
			}
			if got.Correct != tc.correct || got.Points != tc.points {
				t.Fatalf("expected correct=%v points=%d, got %+v", tc.correct, tc.points, got)
			}
		})
	}
}

func TestScoreFasterEarnsMore(t *testing.T) {
	cfg := DefaultScoring()
	prev := -1
	for rt := int64(15000); rt >= 0; rt -= 1000 {
		got, err := Score(mcQuestion(), domain.AnswerContent{OptionID: "o2"}, rt, cfg)
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if got.Points <= prev {
			t.Fatalf("expected strictly more points at %dms, got %d after %d", rt, got.Points, prev)
		}
		prev = got.Points
	}
}

func TestScoreShortAnswer(t *testing.T) {
	q := domain.Question{ID: "q2", Type: domain.ShortAnswer, TimeLimit: 30, ExpectedAnswer: "Paris"}
	cases := []struct {
		text    string
		correct bool
	}{
		{" paris ", true},
		{"PARIS", true},
		{"Pariss", false},
		{"Par is", false},
	}
	for _, tc := range cases {
		got, err := Score(q, domain.AnswerContent{Text: tc.text}, 0, DefaultScoring())
		if err != nil {
			t.Fatalf("score %q: %v", tc.text, err)
		}
		if got.Correct != tc.correct {
			t.Fatalf("text %q: expected correct=%v, got %v", tc.text, tc.correct, got.Correct)
		}
	}
}

func TestScoreTrueFalse(t *testing.T) {
	q := domain.Question{
		ID:   "q3",
		Type: domain.TrueFalse,
		Options: []domain.Option{
			{ID: "true", Text: "True", Correct: true},
			{ID: "false", Text: "False"},
		},
	}
	got, err := Score(q, domain.AnswerContent{OptionID: "true"}, 0, DefaultScoring())
	if err != nil || !got.Correct {
		t.Fatalf("expected correct, got %+v err=%v", got, err)
	}
}

func TestScoreRejectsMismatchedContent(t *testing.T) {
	short := domain.Question{ID: "q2", Type: domain.ShortAnswer, ExpectedAnswer: "Paris"}
	cases := []struct {
		name    string
		q       domain.Question
		content domain.AnswerContent
		rt      int64
	}{
		{"text for multiple choice", mcQuestion(), domain.AnswerContent{Text: "4"}, 0},
		{"both fields", mcQuestion(), domain.AnswerContent{OptionID: "o2", Text: "4"}, 0},
		{"unknown option", mcQuestion(), domain.AnswerContent{OptionID: "o9"}, 0},
		{"option for short answer", short, domain.AnswerContent{OptionID: "o2"}, 0},
		{"empty short answer", short, domain.AnswerContent{}, 0},
		{"negative response time", mcQuestion(), domain.AnswerContent{OptionID: "o2"}, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Score(tc.q, tc.content, tc.rt, DefaultScoring()); !errors.Is(err, domain.ErrInvalidContent) {
				t.Fatalf("expected invalid content, got %v", err)
			}
		})
	}
}
