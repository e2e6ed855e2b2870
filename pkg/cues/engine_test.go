package cues

import (
	"errors"
	"testing"

	"github.com/teslashibe/go-formcoach/pkg/phase"
)

func depthRule() Rule {
	return Rule{
		ID:         "depth",
		Metric:     "knee_avg",
		Phases:     []phase.Phase{"bottom"},
		Max:        Bound(100),
		PersistMs:  200,
		CooldownMs: 2000,
		Priority:   1,
		Message:    "Go deeper",
	}
}

func eval(e *Engine, ts int64, knee float64) []Cue {
	return e.Evaluate(Input{
		TimestampMs: ts,
		Phase:       "bottom",
		Confidence:  0.9,
		Metrics:     map[string]float64{"knee_avg": knee},
	})
}

func TestEngine_TransientExcursionNeverFires(t *testing.T) {
	e, err := NewEngine([]Rule{depthRule()})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	// Violation lasts 199ms then returns in range
	if got := eval(e, 0, 120); len(got) != 0 {
		t.Errorf("Expected no cue at start, got %v", got)
	}
	if got := eval(e, 199, 120); len(got) != 0 {
		t.Errorf("Expected no cue before persistence, got %v", got)
	}
	eval(e, 210, 90)

	// Timer restarted from zero
	if got := eval(e, 300, 120); len(got) != 0 {
		t.Errorf("Expected no cue after reset, got %v", got)
	}
	if got := eval(e, 450, 120); len(got) != 0 {
		t.Errorf("Expected no cue at 150ms into new violation, got %v", got)
	}
	if got := eval(e, 500, 120); len(got) != 1 {
		t.Errorf("Expected cue at 200ms into new violation, got %v", got)
	}
}

func TestEngine_PersistentViolationFiresOnceUntilCooldown(t *testing.T) {
	e, _ := NewEngine([]Rule{depthRule()})

	fired := 0
	for ts := int64(0); ts <= 2100; ts += 33 {
		fired += len(eval(e, ts, 130))
	}
	if fired != 1 {
		t.Errorf("Expected 1 firing within cooldown, got %d", fired)
	}

	// First fire was at 231
	if got := eval(e, 2231, 130); len(got) != 1 {
		t.Errorf("Expected re-fire after cooldown, got %v", got)
	}
}

func TestEngine_CooldownSpacing(t *testing.T) {
	r := depthRule()
	r.PersistMs = 0
	e, _ := NewEngine([]Rule{r})

	first := eval(e, 1000, 130)
	second := eval(e, 2500, 130)
	if len(first)+len(second) != 1 {
		t.Errorf("Expected at most one firing within cooldown, got %d", len(first)+len(second))
	}
}

func TestEngine_PriorityAndTieBreak(t *testing.T) {
	rules := []Rule{
		{ID: "knees_in", Metric: "knee_symmetry", Max: Bound(10), Priority: 2, Message: "Knees out"},
		{ID: "hips_uneven", Metric: "hip_symmetry", Max: Bound(10), Priority: 2, Message: "Level hips"},
		{ID: "back", Metric: "hip_avg", Min: Bound(50), Priority: 3, Message: "Chest up"},
	}
	e, err := NewEngine(rules)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	got := e.Evaluate(Input{
		TimestampMs: 100,
		Phase:       "top",
		Confidence:  1,
		Metrics: map[string]float64{
			"knee_symmetry": 14, // delta 4
			"hip_symmetry":  25, // delta 15
			"hip_avg":       10, // delta 40, lower priority
		},
	})
	if len(got) != 1 {
		t.Fatalf("Expected single winner, got %d", len(got))
	}
	if got[0].RuleID != "hips_uneven" {
		t.Errorf("Expected hips_uneven (larger delta), got %s", got[0].RuleID)
	}

	active := e.ActiveIDs()
	want := []string{"hips_uneven", "knees_in", "back"}
	if len(active) != len(want) {
		t.Fatalf("Expected %d active, got %v", len(want), active)
	}
	for i := range want {
		if active[i] != want[i] {
			t.Errorf("Expected active[%d]=%s, got %s", i, want[i], active[i])
		}
	}
}

func TestEngine_CooledDownWinnerYieldsToNext(t *testing.T) {
	rules := []Rule{
		{ID: "a", Metric: "m", Max: Bound(0), Priority: 1, CooldownMs: 1000},
		{ID: "b", Metric: "m", Max: Bound(0), Priority: 2, CooldownMs: 1000},
	}
	e, _ := NewEngine(rules)
	in := Input{Confidence: 1, Metrics: map[string]float64{"m": 5}}

	in.TimestampMs = 0
	if got := e.Evaluate(in); len(got) != 1 || got[0].RuleID != "a" {
		t.Fatalf("Expected a, got %v", got)
	}
	in.TimestampMs = 33
	if got := e.Evaluate(in); len(got) != 1 || got[0].RuleID != "b" {
		t.Errorf("Expected b while a cools down, got %v", got)
	}
	if len(e.Active()) != 2 {
		t.Errorf("Expected both rules active, got %d", len(e.Active()))
	}
}

func TestEngine_GatesResetPersistence(t *testing.T) {
	e, _ := NewEngine([]Rule{depthRule()})

	eval(e, 0, 130)
	// Low confidence frame resets the timer
	e.Evaluate(Input{TimestampMs: 100, Phase: "bottom", Confidence: 0.2, Metrics: map[string]float64{"knee_avg": 130}})
	if got := eval(e, 250, 130); len(got) != 0 {
		t.Errorf("Expected timer reset by confidence gate, got %v", got)
	}

	// Wrong phase is skipped too
	got := e.Evaluate(Input{TimestampMs: 1000, Phase: "top", Confidence: 1, Metrics: map[string]float64{"knee_avg": 130}})
	if len(got) != 0 || len(e.Active()) != 0 {
		t.Errorf("Expected rule skipped outside its phases, got %v", got)
	}
}

func TestEngine_MissingMetricIsNotViolating(t *testing.T) {
	r := depthRule()
	r.PersistMs = 0
	e, _ := NewEngine([]Rule{r})

	got := e.Evaluate(Input{TimestampMs: 0, Phase: "bottom", Confidence: 1, Metrics: map[string]float64{}})
	if len(got) != 0 {
		t.Errorf("Expected no cue for missing metric, got %v", got)
	}
}

func TestEngine_Reset(t *testing.T) {
	r := depthRule()
	r.PersistMs = 0
	e, _ := NewEngine([]Rule{r})

	eval(e, 0, 130)
	e.Reset()
	if got := eval(e, 10, 130); len(got) != 1 {
		t.Errorf("Expected cooldown cleared by Reset, got %v", got)
	}
}

func TestNewEngine_Validation(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
		want  error
	}{
		{"missing id", []Rule{{Metric: "m", Max: Bound(1)}}, ErrInvalidRule},
		{"no bounds", []Rule{{ID: "a", Metric: "m"}}, ErrInvalidRule},
		{"inverted", []Rule{{ID: "a", Metric: "m", Min: Bound(5), Max: Bound(1)}}, ErrInvalidRule},
		{"negative persist", []Rule{{ID: "a", Metric: "m", Max: Bound(1), PersistMs: -1}}, ErrInvalidRule},
		{"duplicate", []Rule{{ID: "a", Metric: "m", Max: Bound(1)}, {ID: "a", Metric: "n", Max: Bound(1)}}, ErrDuplicateRule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine(tt.rules); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}
