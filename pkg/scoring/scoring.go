// Package scoring computes per-rep form quality from independent components.
// A component whose landmarks are not visible is reported missing instead of
// guessed, and sparse evidence never produces a score above its weakest
// component.
package scoring

import (
	"math"

	"github.com/teslashibe/go-formcoach/pkg/filter"
	"github.com/teslashibe/go-formcoach/pkg/pose"
)

// Component names, in report order.
const (
	ROM       = "rom"
	Symmetry  = "symmetry"
	Tempo     = "tempo"
	Stability = "stability"
)

// Components lists every component in report order.
var Components = []string{ROM, Symmetry, Tempo, Stability}

// Visibility badges.
const (
	BadgeFull    = "full"
	BadgePartial = "partial"
)

// DefaultMinComponents is the number of components needed for an
// unsuppressed score.
const DefaultMinComponents = 3

// Input is one completed rep plus the landmark visibility at its end.
type Input struct {
	Rep    pose.RepContext
	Joints pose.JointMap
}

// Result is the scoring output. OverallScore is nil when no component could
// be scored.
type Result struct {
	Components        map[string]float64 `json:"components"`
	MissingComponents []string           `json:"missing_components"`
	VisibilityBadge   string             `json:"visibility_badge"`
	OverallScore      *float64           `json:"overall_score"`
	ScoreSuppressed   bool               `json:"score_suppressed"`
}

// Score evaluates a rep against profile p.
func Score(p Profile, in Input) Result {
	weak := p.WeakConfidence
	if weak <= 0 {
		weak = filter.WeakConfidence
	}
	minComponents := p.MinComponents
	if minComponents <= 0 {
		minComponents = DefaultMinComponents
	}

	res := Result{
		Components:        make(map[string]float64, len(Components)),
		MissingComponents: []string{},
	}

	var weighted, totalWeight float64
	lowest := math.Inf(1)
	for _, name := range Components {
		spec := p.spec(name)
		score, ok := 0.0, false
		if in.Joints.Visible(weak, spec.Landmarks...) {
			score, ok = p.compute(name, in.Rep)
		}
		if !ok {
			res.MissingComponents = append(res.MissingComponents, name)
			continue
		}

		score = clamp(score, 0, 100)
		res.Components[name] = score
		weighted += spec.Weight * score
		totalWeight += spec.Weight
		lowest = math.Min(lowest, score)
	}

	res.VisibilityBadge = BadgeFull
	if len(res.MissingComponents) > 0 {
		res.VisibilityBadge = BadgePartial
	}

	available := len(res.Components)
	if available == 0 {
		res.ScoreSuppressed = true
		return res
	}

	overall := lowest
	if totalWeight > 0 {
		overall = weighted / totalWeight
	}
	if available < minComponents {
		res.ScoreSuppressed = true
		overall = math.Min(overall, lowest)
	}
	res.OverallScore = &overall
	return res
}

// ScorePullupWithComponentAvailability scores a pull-up rep with the
// built-in pull-up profile.
func ScorePullupWithComponentAvailability(in Input) Result {
	return Score(PullupProfile(), in)
}

func (p Profile) compute(name string, rep pose.RepContext) (float64, bool) {
	switch name {
	case ROM:
		return romScore(p.ROM, rep)
	case Symmetry:
		return symmetryScore(p.Symmetry, rep)
	case Tempo:
		return tempoScore(p.Tempo, rep)
	case Stability:
		return stabilityScore(p.Stability, rep)
	}
	return 0, false
}

func romScore(spec ComponentSpec, rep pose.RepContext) (float64, bool) {
	mean, ok := meanRange(spec.Joints, rep)
	if !ok || spec.TargetDeg <= 0 {
		return 0, false
	}
	return 100 * mean / spec.TargetDeg, true
}

func symmetryScore(spec ComponentSpec, rep pose.RepContext) (float64, bool) {
	var diff float64
	n := 0
	for _, key := range spec.Joints {
		left, okL := jointRange(key, rep)
		right, okR := jointRange(pose.Mirror(key), rep)
		if !okL || !okR {
			continue
		}
		diff += math.Abs(left - right)
		n++
	}
	if n == 0 || spec.ToleranceDeg <= 0 {
		return 0, false
	}
	diff /= float64(n)
	return 100 * (1 - diff/spec.ToleranceDeg), true
}

func tempoScore(spec ComponentSpec, rep pose.RepContext) (float64, bool) {
	d := float64(rep.DurationMs)
	if d <= 0 || spec.MinMs <= 0 || spec.MaxMs < spec.MinMs {
		return 0, false
	}
	switch {
	case d < spec.MinMs:
		return 100 * d / spec.MinMs, true
	case d > spec.MaxMs:
		return 100 * spec.MaxMs / d, true
	}
	return 100, true
}

func stabilityScore(spec ComponentSpec, rep pose.RepContext) (float64, bool) {
	sway, ok := meanRange(spec.Joints, rep)
	if !ok || spec.ToleranceDeg <= 0 {
		return 0, false
	}
	if sway <= spec.ToleranceDeg {
		return 100, true
	}
	return 100 * spec.ToleranceDeg / sway, true
}

func meanRange(keys []string, rep pose.RepContext) (float64, bool) {
	var sum float64
	n := 0
	for _, key := range keys {
		if r, ok := jointRange(key, rep); ok {
			sum += r
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func jointRange(key string, rep pose.RepContext) (float64, bool) {
	lo, okLo := rep.Min.Get(key)
	hi, okHi := rep.Max.Get(key)
	if !okLo || !okHi {
		return 0, false
	}
	return math.Abs(hi - lo), true
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
