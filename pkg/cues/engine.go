package cues

import (
	"fmt"
	"slices"

	"github.com/teslashibe/go-formcoach/pkg/phase"
)

// Input is one frame's view for rule evaluation.
type Input struct {
	TimestampMs int64
	Phase       phase.Phase
	Confidence  float64
	Metrics     map[string]float64
}

type ruleState struct {
	violating      bool
	violationStart int64
	fired          bool
	lastFired      int64
}

// Engine evaluates a fixed rule set frame by frame. It owns the per-rule
// timers and is not safe for concurrent use.
type Engine struct {
	rules  []Rule
	state  []ruleState
	active []Cue
}

// NewEngine validates rules and returns an engine with fresh timers.
func NewEngine(rules []Rule) (*Engine, error) {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, r.ID)
		}
		seen[r.ID] = true
	}
	return &Engine{
		rules: slices.Clone(rules),
		state: make([]ruleState, len(rules)),
	}, nil
}

// Rules returns a copy of the rule set.
func (e *Engine) Rules() []Rule {
	return slices.Clone(e.rules)
}

// Evaluate advances every rule's timers and returns at most one cue: the
// highest priority rule that is past persistence and out of cooldown.
func (e *Engine) Evaluate(in Input) []Cue {
	e.active = e.active[:0]
	var eligible []int

	for i, r := range e.rules {
		st := &e.state[i]

		if in.Confidence < r.minConfidence() || !r.AppliesTo(in.Phase) {
			st.violating = false
			continue
		}

		value, ok := in.Metrics[r.Metric]
		if !ok || !finite(value) {
			st.violating = false
			continue
		}
		delta := r.OutOfRange(value)
		if delta == 0 {
			st.violating = false
			continue
		}

		if !st.violating {
			st.violating = true
			st.violationStart = in.TimestampMs
		}
		if in.TimestampMs-st.violationStart < r.PersistMs {
			continue
		}

		e.active = append(e.active, Cue{
			RuleID:      r.ID,
			Metric:      r.Metric,
			Message:     r.Message,
			Severity:    r.Severity,
			Channels:    r.Channels,
			Priority:    r.Priority,
			Value:       value,
			Delta:       delta,
			TimestampMs: in.TimestampMs,
		})
		if !st.fired || in.TimestampMs-st.lastFired >= r.CooldownMs {
			eligible = append(eligible, len(e.active)-1)
		}
	}

	winner := -1
	for _, idx := range eligible {
		if winner < 0 || less(e.active[idx], e.active[winner]) < 0 {
			winner = idx
		}
	}
	var fired []Cue
	if winner >= 0 {
		cue := e.active[winner]
		for i := range e.rules {
			if e.rules[i].ID == cue.RuleID {
				e.state[i].fired = true
				e.state[i].lastFired = in.TimestampMs
				break
			}
		}
		fired = []Cue{cue}
	}

	slices.SortFunc(e.active, less)
	return fired
}

// Active returns every rule past persistence in the last evaluation,
// ordered by priority, regardless of cooldown.
func (e *Engine) Active() []Cue {
	return slices.Clone(e.active)
}

// ActiveIDs returns the rule IDs of Active in order.
func (e *Engine) ActiveIDs() []string {
	ids := make([]string, len(e.active))
	for i, c := range e.active {
		ids[i] = c.RuleID
	}
	return ids
}

// Reset clears all timers.
func (e *Engine) Reset() {
	clear(e.state)
	e.active = e.active[:0]
}
