// Package checklists holds the checklist template schema model and the
// scoring engine that evaluates inspection answers against it.
package checklists

import (
	"encoding/json"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionBoolean      QuestionType = "boolean"
	QuestionSingleChoice QuestionType = "single_choice"
	QuestionNumber       QuestionType = "number"
	QuestionText         QuestionType = "text"
)

// QuestionMeta carries optional scoring metadata for a question.
type QuestionMeta struct {
	Points     *float64 `json:"points,omitempty"`
	Critical   bool     `json:"critical,omitempty"`
	RequiresOK bool     `json:"requires_ok,omitempty"`
}

// Question is a single checklist item within a section.
type Question struct {
	ID       string       `json:"id"`
	Text     string       `json:"text"`
	Type     QuestionType `json:"type"`
	Required bool         `json:"required"`
	Meta     QuestionMeta `json:"meta,omitempty"`
}

// Weight returns the question's score weight, defaulting to 1 when unset.
func (q Question) Weight() float64 {
	if q.Meta.Points == nil {
		return 1
	}
	return *q.Meta.Points
}

// Section groups ordered questions under a title.
type Section struct {
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Schema is a versioned template question schema: ordered sections of
// ordered questions. Question ids are unique within a template.
type Schema struct {
	Sections []Section `json:"sections"`
}

// ParseSchema decodes a stored JSON schema document.
func ParseSchema(raw []byte) (Schema, error) {
	var s Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// QuestionIndex returns all questions keyed by id.
func (s Schema) QuestionIndex() map[string]Question {
	index := make(map[string]Question)
	for _, section := range s.Sections {
		for _, q := range section.Questions {
			index[q.ID] = q
		}
	}
	return index
}

// Answers is the raw answer map of a check instance, keyed by question id.
// Values are decoded JSON: bool, string, or number.
type Answers map[string]any

// answerNumber extracts a numeric value from a decoded JSON answer.
func answerNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// answerEmpty reports whether an answer counts as not given.
func answerEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}
