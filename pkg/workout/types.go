// Package workout holds the data-driven exercise definitions: phase bands,
// legal transitions, rep boundary, cue rules and scoring profile.
package workout

import (
	"fmt"
	"slices"

	"github.com/teslashibe/go-formcoach/pkg/cues"
	"github.com/teslashibe/go-formcoach/pkg/phase"
	"github.com/teslashibe/go-formcoach/pkg/scoring"
	"github.com/teslashibe/go-formcoach/pkg/timing"
)

// SourceBuiltIn marks a definition loaded from the embedded catalog.
const SourceBuiltIn = "builtin"

// Boundary is the rep start/end configuration.
type Boundary struct {
	StartPhase    phase.Phase `toml:"start_phase" json:"startPhase"`
	EndPhase      phase.Phase `toml:"end_phase" json:"endPhase"`
	MinDurationMs float64     `toml:"min_duration_ms" json:"minDurationMs"`
}

// Range is a plausible angle window in degrees.
type Range struct {
	Min float64 `toml:"min" json:"min"`
	Max float64 `toml:"max" json:"max"`
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Definition is one exercise. It is immutable once loaded.
type Definition struct {
	ID            string           `toml:"id" json:"id"`
	Name          string           `toml:"name" json:"name"`
	Description   string           `toml:"description" json:"description,omitempty"`
	PrimaryMetric string           `toml:"primary_metric" json:"primaryMetric"`
	Bands         phase.Bands      `toml:"bands" json:"bands"`
	Transitions   []phase.Edge     `toml:"transitions" json:"transitions"`
	RepEdge       phase.Edge       `toml:"rep_edge" json:"repEdge"`
	Boundary      Boundary         `toml:"rep_boundary" json:"repBoundary"`
	AngleRanges   map[string]Range `toml:"angle_ranges" json:"angleRanges,omitempty"`
	Rules         []cues.Rule      `toml:"rules" json:"rules"`
	Scoring       scoring.Profile  `toml:"scoring" json:"scoring"`

	Source string `toml:"-" json:"source,omitempty"`
}

// Table returns the phase transition table.
func (d *Definition) Table() phase.Table {
	return phase.Table{
		Phases:      d.Bands.Phases(),
		Initial:     d.Bands.High,
		Transitions: d.Transitions,
		RepEdge:     d.RepEdge,
	}
}

// RepBoundary returns the boundary in the form the timing model takes.
func (d *Definition) RepBoundary() timing.RepBoundary {
	return timing.RepBoundary{
		StartPhase:    d.Boundary.StartPhase,
		EndPhase:      d.Boundary.EndPhase,
		MinDurationMs: d.Boundary.MinDurationMs,
	}
}

// Validate checks that every part of the definition is consistent.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDefinition)
	}
	if d.PrimaryMetric == "" {
		return fmt.Errorf("%w: %s has no primary_metric", ErrInvalidDefinition, d.ID)
	}
	if err := d.Bands.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidDefinition, d.ID, err)
	}
	if err := d.Table().Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidDefinition, d.ID, err)
	}

	phases := d.Bands.Phases()
	if !slices.Contains(phases, d.Boundary.StartPhase) || !slices.Contains(phases, d.Boundary.EndPhase) {
		return fmt.Errorf("%w: %s rep boundary uses an unknown phase", ErrInvalidDefinition, d.ID)
	}
	if d.Boundary.EndPhase != d.RepEdge.To {
		return fmt.Errorf("%w: %s rep boundary ends on %s but the rep edge enters %s",
			ErrInvalidDefinition, d.ID, d.Boundary.EndPhase, d.RepEdge.To)
	}
	if d.Boundary.MinDurationMs < 0 {
		return fmt.Errorf("%w: %s has a negative min_duration_ms", ErrInvalidDefinition, d.ID)
	}

	for key, r := range d.AngleRanges {
		if r.Min >= r.Max {
			return fmt.Errorf("%w: %s angle range for %s is empty", ErrInvalidDefinition, d.ID, key)
		}
	}

	for _, r := range d.Rules {
		for _, p := range r.Phases {
			if !slices.Contains(phases, p) {
				return fmt.Errorf("%w: %s rule %s uses unknown phase %s", ErrInvalidDefinition, d.ID, r.ID, p)
			}
		}
	}
	if _, err := cues.NewEngine(d.Rules); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidDefinition, d.ID, err)
	}
	return nil
}

// PlausibleAngles returns angles with readings outside the configured
// ranges removed.
func (d *Definition) PlausibleAngles(in map[string]float64) map[string]float64 {
	if len(d.AngleRanges) == 0 {
		return in
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		if r, ok := d.AngleRanges[k]; ok && !r.Contains(v) {
			continue
		}
		out[k] = v
	}
	return out
}
