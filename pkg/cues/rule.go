// Package cues evaluates form rules against per-frame metrics and
// stabilizes the chosen cue for display.
package cues

import (
	"fmt"
	"math"
	"slices"

	"github.com/teslashibe/go-formcoach/pkg/phase"
)

// DefaultMinConfidence gates rules that do not set their own floor.
const DefaultMinConfidence = 0.5

// Severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Output channels.
const (
	ChannelVisual = "visual"
	ChannelSpeech = "speech"
	ChannelHaptic = "haptic"
)

// Rule is a threshold check on one metric. A nil bound is open.
type Rule struct {
	ID            string        `toml:"id" json:"id"`
	Metric        string        `toml:"metric" json:"metric"`
	Phases        []phase.Phase `toml:"phases" json:"phases,omitempty"` // Empty applies to every phase
	Min           *float64      `toml:"min" json:"min,omitempty"`
	Max           *float64      `toml:"max" json:"max,omitempty"`
	PersistMs     int64         `toml:"persist_ms" json:"persistMs"`
	CooldownMs    int64         `toml:"cooldown_ms" json:"cooldownMs"`
	Priority      int           `toml:"priority" json:"priority"` // Lower wins
	Channels      []string      `toml:"channels" json:"channels,omitempty"`
	Message       string        `toml:"message" json:"message"`
	Severity      string        `toml:"severity" json:"severity,omitempty"`
	MinConfidence float64       `toml:"min_confidence" json:"minConfidence,omitempty"`
}

// Validate checks the rule is usable.
func (r Rule) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidRule)
	case r.Metric == "":
		return fmt.Errorf("%w: %s has no metric", ErrInvalidRule, r.ID)
	case r.Min == nil && r.Max == nil:
		return fmt.Errorf("%w: %s has neither min nor max", ErrInvalidRule, r.ID)
	case r.Min != nil && r.Max != nil && *r.Min > *r.Max:
		return fmt.Errorf("%w: %s min %.2f above max %.2f", ErrInvalidRule, r.ID, *r.Min, *r.Max)
	case r.PersistMs < 0 || r.CooldownMs < 0:
		return fmt.Errorf("%w: %s has negative timing", ErrInvalidRule, r.ID)
	case r.MinConfidence < 0 || r.MinConfidence > 1:
		return fmt.Errorf("%w: %s min confidence out of [0,1]", ErrInvalidRule, r.ID)
	}
	return nil
}

// AppliesTo reports whether the rule is evaluated in phase p.
func (r Rule) AppliesTo(p phase.Phase) bool {
	return len(r.Phases) == 0 || slices.Contains(r.Phases, p)
}

// OutOfRange returns how far value lies outside [Min, Max]; zero means in
// range.
func (r Rule) OutOfRange(value float64) float64 {
	if r.Min != nil && value < *r.Min {
		return *r.Min - value
	}
	if r.Max != nil && value > *r.Max {
		return value - *r.Max
	}
	return 0
}

func (r Rule) minConfidence() float64 {
	if r.MinConfidence == 0 {
		return DefaultMinConfidence
	}
	return r.MinConfidence
}

// Cue is a rule that is past its persistence window.
type Cue struct {
	RuleID      string   `json:"ruleId"`
	Metric      string   `json:"metric"`
	Message     string   `json:"message"`
	Severity    string   `json:"severity,omitempty"`
	Channels    []string `json:"channels,omitempty"`
	Priority    int      `json:"priority"`
	Value       float64  `json:"value"`
	Delta       float64  `json:"delta"`
	TimestampMs int64    `json:"ts"`
}

// Bound returns a pointer to v for use as a rule bound.
func Bound(v float64) *float64 {
	return &v
}

// Sort orders cues by priority, then larger delta, then rule ID.
func Sort(list []Cue) {
	slices.SortFunc(list, less)
}

// less orders cues by priority, then larger delta, then rule ID.
func less(a, b Cue) int {
	if a.Priority != b.Priority {
		return a.Priority - b.Priority
	}
	if a.Delta != b.Delta {
		if a.Delta > b.Delta {
			return -1
		}
		return 1
	}
	switch {
	case a.RuleID < b.RuleID:
		return -1
	case a.RuleID > b.RuleID:
		return 1
	}
	return 0
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
