package app

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"quiz-session-service/internal/domain"
)

// ScoringConfig holds the point formula constants.
type ScoringConfig struct {
	BasePoints  int
	MinFraction float64
}

// DefaultScoring awards 1000 points for an instant correct answer and never less than half of that.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{BasePoints: 1000, MinFraction: 0.5}
}

// ScoreResult is the outcome of scoring a single answer.
type ScoreResult struct {
	Correct bool
	Points  int
}

// Score validates content against the question and computes correctness and points.
// It is pure: it never touches storage and never blocks.
func Score(q domain.Question, content domain.AnswerContent, responseTime int64, cfg ScoringConfig) (ScoreResult, error) {
	if responseTime < 0 {
		return ScoreResult{}, fmt.Errorf("negative response time %d: %w", responseTime, domain.ErrInvalidContent)
	}

	var correct bool
	switch q.Type {
	case domain.MultipleChoice, domain.TrueFalse:
		if content.OptionID == "" || content.Text != "" {
			return ScoreResult{}, fmt.Errorf("%s expects a selected option: %w", q.Type, domain.ErrInvalidContent)
		}
		opt, ok := q.Option(content.OptionID)
		if !ok {
			return ScoreResult{}, fmt.Errorf("option %q not on question %q: %w", content.OptionID, q.ID, domain.ErrInvalidContent)
		}
		correct = opt.Correct
	case domain.ShortAnswer:
		if content.Text == "" || content.OptionID != "" {
			return ScoreResult{}, fmt.Errorf("%s expects a text answer: %w", q.Type, domain.ErrInvalidContent)
		}
		correct = matchesExpected(content.Text, q.ExpectedAnswer)
	default:
		return ScoreResult{}, fmt.Errorf("question %q has unknown type %q: %w", q.ID, q.Type, domain.ErrInvalidContent)
	}

	if !correct {
		return ScoreResult{}, nil
	}
	return ScoreResult{Correct: true, Points: points(responseTime, q.TimeLimitMs(), cfg)}, nil
}

// matchesExpected compares trimmed, case-folded text exactly.
func matchesExpected(submitted, expected string) bool {
	if strings.TrimSpace(expected) == "" {
		return false
	}
	// Caser values are stateful, one per call.
	fold := cases.Fold()
	return fold.String(strings.TrimSpace(submitted)) == fold.String(strings.TrimSpace(expected))
}

func points(responseTime, limitMs int64, cfg ScoringConfig) int {
	fraction := cfg.MinFraction
	if limitMs > 0 && responseTime < limitMs {
		fraction = math.Max(cfg.MinFraction, 1-float64(responseTime)/float64(limitMs))
	}
	return int(math.Round(float64(cfg.BasePoints) * fraction))
}
