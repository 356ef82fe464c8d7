package checklists

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// scoreEpsilon guards the percentage division when no answered question
// contributes weight to the denominator.
const scoreEpsilon = 1e-9

// passingChoices are the single_choice answers that award full weight,
// compared case-insensitively.
var passingChoices = map[string]struct{}{
	"ok":   {},
	"yes":  {},
	"true": {},
}

// failingChoice is the single_choice answer that marks a critical violation.
const failingChoice = "not_ok"

// Violation records an answer that failed a critical requires-ok question.
type Violation struct {
	QuestionID   string `json:"question_id"`
	QuestionText string `json:"question_text"`
	Answer       any    `json:"answer"`
}

// Engine validates and scores inspection answers against a template schema.
// It is stateless; a single instance is shared process-wide.
type Engine struct{}

// NewEngine creates a scoring engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Validate checks answers against the schema and returns every problem found,
// not just the first: unknown question ids, missing required questions, and
// type mismatches for number and boolean questions.
func (e *Engine) Validate(schema Schema, answers Answers) (bool, []string) {
	index := schema.QuestionIndex()
	var errs []string

	unknown := make([]string, 0)
	for id := range answers {
		if _, ok := index[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		errs = append(errs, fmt.Sprintf("unknown question id: %s", id))
	}

	for _, section := range schema.Sections {
		for _, q := range section.Questions {
			answer, present := answers[q.ID]

			if q.Required && (!present || answerEmpty(answer)) {
				errs = append(errs, fmt.Sprintf("required question missing: %s", q.ID))
			}

			if !present || answerEmpty(answer) {
				continue
			}

			switch q.Type {
			case QuestionNumber:
				if _, ok := answerNumber(answer); !ok {
					errs = append(errs, fmt.Sprintf("question %s must be a number", q.ID))
				}
			case QuestionBoolean:
				if _, ok := answer.(bool); !ok {
					errs = append(errs, fmt.Sprintf("question %s must be a boolean", q.ID))
				}
			}
		}
	}

	return len(errs) == 0, errs
}

// Score computes the weighted 0-100 score for the given answers.
//
// Boolean and single_choice questions contribute their weight to the
// denominator and earn it on a passing answer. Number answers are absolute:
// the raw value is added to the earned total without widening the
// denominator. Any other type earns its weight when the answer is non-empty.
// When nothing contributes to the denominator the raw earned total is
// returned as-is. The result is deterministic for a given (schema, answers).
func (e *Engine) Score(schema Schema, answers Answers) float64 {
	index := schema.QuestionIndex()

	var earned, total float64
	for id, answer := range answers {
		q, ok := index[id]
		if !ok {
			continue
		}
		weight := q.Weight()

		switch q.Type {
		case QuestionBoolean:
			total += weight
			if b, ok := answer.(bool); ok && b {
				earned += weight
			}
		case QuestionSingleChoice:
			total += weight
			if s, ok := answer.(string); ok {
				if _, pass := passingChoices[strings.ToLower(s)]; pass {
					earned += weight
				}
			}
		case QuestionNumber:
			if n, ok := answerNumber(answer); ok {
				earned += n
			}
		default:
			total += weight
			if !answerEmpty(answer) {
				earned += weight
			}
		}
	}

	if total <= scoreEpsilon {
		return round2(earned)
	}

	pct := earned / total * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return round2(pct)
}

// FindCriticalViolations returns a violation for every answered question
// flagged critical+requires_ok whose answer indicates failure: a boolean
// false or the single_choice answer "not_ok".
func (e *Engine) FindCriticalViolations(schema Schema, answers Answers) []Violation {
	var violations []Violation

	for _, section := range schema.Sections {
		for _, q := range section.Questions {
			if !q.Meta.Critical || !q.Meta.RequiresOK {
				continue
			}
			answer, present := answers[q.ID]
			if !present {
				continue
			}

			failed := false
			switch q.Type {
			case QuestionBoolean:
				b, ok := answer.(bool)
				failed = ok && !b
			case QuestionSingleChoice:
				s, ok := answer.(string)
				failed = ok && s == failingChoice
			}

			if failed {
				violations = append(violations, Violation{
					QuestionID:   q.ID,
					QuestionText: q.Text,
					Answer:       answer,
				})
			}
		}
	}

	return violations
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
