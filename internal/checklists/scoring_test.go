package checklists

import (
	"strings"
	"testing"
)

func points(v float64) *float64 { return &v }

func testSchema() Schema {
	return Schema{
		Sections: []Section{
			{
				Title: "Safety",
				Questions: []Question{
					{ID: "q1", Text: "Helmet worn", Type: QuestionBoolean, Required: true, Meta: QuestionMeta{Points: points(2)}},
					{ID: "q2", Text: "Area clean", Type: QuestionBoolean, Meta: QuestionMeta{Points: points(1)}},
				},
			},
		},
	}
}

func TestScore_WeightedBooleans(t *testing.T) {
	engine := NewEngine()
	schema := testSchema()

	cases := []struct {
		name    string
		answers Answers
		want    float64
	}{
		{"all true", Answers{"q1": true, "q2": true}, 100.0},
		{"heavy true only", Answers{"q1": true, "q2": false}, 66.67},
		{"all false", Answers{"q1": false, "q2": false}, 0.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.Score(schema, tc.answers)
			if got != tc.want {
				t.Fatalf("expected score %v, got %v", tc.want, got)
			}
		})
	}
}

func TestScore_Deterministic(t *testing.T) {
	engine := NewEngine()
	schema := testSchema()
	answers := Answers{"q1": true, "q2": false}

	first := engine.Score(schema, answers)
	for i := 0; i < 50; i++ {
		if got := engine.Score(schema, answers); got != first {
			t.Fatalf("score not deterministic: %v vs %v", first, got)
		}
	}
}

func TestScore_SingleChoicePassingAnswers(t *testing.T) {
	engine := NewEngine()
	schema := Schema{Sections: []Section{{Questions: []Question{
		{ID: "c1", Type: QuestionSingleChoice},
	}}}}

	for _, pass := range []string{"ok", "OK", "yes", "True"} {
		if got := engine.Score(schema, Answers{"c1": pass}); got != 100.0 {
			t.Fatalf("answer %q: expected 100, got %v", pass, got)
		}
	}
	if got := engine.Score(schema, Answers{"c1": "not_ok"}); got != 0.0 {
		t.Fatalf("answer not_ok: expected 0, got %v", got)
	}
}

func TestScore_NumberAnswersDoNotWidenDenominator(t *testing.T) {
	engine := NewEngine()
	schema := Schema{Sections: []Section{{Questions: []Question{
		{ID: "b1", Type: QuestionBoolean, Meta: QuestionMeta{Points: points(10)}},
		{ID: "n1", Type: QuestionNumber, Meta: QuestionMeta{Points: points(5)}},
	}}}}

	// Boolean earns 10 of 10; the number adds raw 2 to earned only.
	got := engine.Score(schema, Answers{"b1": true, "n1": 2.0})
	if got != 100.0 {
		t.Fatalf("expected clamp to 100, got %v", got)
	}

	// Denominator stays at 10 even when the boolean fails.
	got = engine.Score(schema, Answers{"b1": false, "n1": 2.0})
	if got != 20.0 {
		t.Fatalf("expected 20, got %v", got)
	}
}

func TestScore_OnlyNumbersReturnsRawTotal(t *testing.T) {
	engine := NewEngine()
	schema := Schema{Sections: []Section{{Questions: []Question{
		{ID: "n1", Type: QuestionNumber},
		{ID: "n2", Type: QuestionNumber},
	}}}}

	got := engine.Score(schema, Answers{"n1": 40.0, "n2": 17.5})
	if got != 57.5 {
		t.Fatalf("expected raw total 57.5, got %v", got)
	}
}

func TestScore_TextEarnsWhenNonEmpty(t *testing.T) {
	engine := NewEngine()
	schema := Schema{Sections: []Section{{Questions: []Question{
		{ID: "t1", Type: QuestionText},
		{ID: "t2", Type: QuestionText},
	}}}}

	got := engine.Score(schema, Answers{"t1": "observations noted", "t2": ""})
	if got != 50.0 {
		t.Fatalf("expected 50, got %v", got)
	}
}

func TestValidate_ReturnsEveryError(t *testing.T) {
	engine := NewEngine()
	schema := Schema{Sections: []Section{{Questions: []Question{
		{ID: "q1", Type: QuestionBoolean, Required: true},
		{ID: "q2", Type: QuestionNumber},
	}}}}

	ok, errs := engine.Validate(schema, Answers{
		"q2":    "not a number",
		"ghost": true,
	})
	if ok {
		t.Fatal("expected validation failure")
	}
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}

	joined := strings.Join(errs, "\n")
	for _, want := range []string{
		"unknown question id: ghost",
		"required question missing: q1",
		"question q2 must be a number",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing error %q in %v", want, errs)
		}
	}
}

func TestValidate_RequiredEmptyStringAndNil(t *testing.T) {
	engine := NewEngine()
	schema := Schema{Sections: []Section{{Questions: []Question{
		{ID: "q1", Type: QuestionText, Required: true},
		{ID: "q2", Type: QuestionText, Required: true},
	}}}}

	ok, errs := engine.Validate(schema, Answers{"q1": "", "q2": nil})
	if ok {
		t.Fatal("expected validation failure")
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
}

func TestValidate_BooleanTypeMismatch(t *testing.T) {
	engine := NewEngine()
	schema := Schema{Sections: []Section{{Questions: []Question{
		{ID: "q1", Type: QuestionBoolean},
	}}}}

	ok, errs := engine.Validate(schema, Answers{"q1": "yes"})
	if ok {
		t.Fatal("expected validation failure")
	}
	if len(errs) != 1 || !strings.Contains(errs[0], "must be a boolean") {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestValidate_CleanAnswersPass(t *testing.T) {
	engine := NewEngine()
	ok, errs := engine.Validate(testSchema(), Answers{"q1": true, "q2": false})
	if !ok || len(errs) != 0 {
		t.Fatalf("expected valid, got %v", errs)
	}
}

func TestFindCriticalViolations(t *testing.T) {
	engine := NewEngine()
	schema := Schema{Sections: []Section{{Questions: []Question{
		{ID: "fire", Text: "Fire exit clear", Type: QuestionBoolean, Meta: QuestionMeta{Critical: true, RequiresOK: true}},
		{ID: "gas", Text: "Gas valve state", Type: QuestionSingleChoice, Meta: QuestionMeta{Critical: true, RequiresOK: true}},
		{ID: "note", Text: "General note", Type: QuestionBoolean, Meta: QuestionMeta{Critical: true}}, // requires_ok unset
	}}}}

	violations := engine.FindCriticalViolations(schema, Answers{
		"fire": false,
		"gas":  "not_ok",
		"note": false,
	})
	if len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %d: %v", len(violations), violations)
	}
	if violations[0].QuestionID != "fire" || violations[0].QuestionText != "Fire exit clear" {
		t.Fatalf("unexpected first violation: %+v", violations[0])
	}
	if violations[1].QuestionID != "gas" {
		t.Fatalf("unexpected second violation: %+v", violations[1])
	}
}

func TestFindCriticalViolations_PassingAnswersClean(t *testing.T) {
	engine := NewEngine()
	schema := Schema{Sections: []Section{{Questions: []Question{
		{ID: "fire", Type: QuestionBoolean, Meta: QuestionMeta{Critical: true, RequiresOK: true}},
		{ID: "gas", Type: QuestionSingleChoice, Meta: QuestionMeta{Critical: true, RequiresOK: true}},
	}}}}

	violations := engine.FindCriticalViolations(schema, Answers{"fire": true, "gas": "ok"})
	if len(violations) != 0 {
		t.Fatalf("expected no violations, got %v", violations)
	}
}
