package phase

import "fmt"

// Bands classifies a primary metric into four phases: above HighAbove is
// High, below LowBelow is Low, and in between the direction of travel picks
// Falling or Rising.
type Bands struct {
	High      Phase   `toml:"high" json:"high"`
	Low       Phase   `toml:"low" json:"low"`
	Falling   Phase   `toml:"falling" json:"falling"`
	Rising    Phase   `toml:"rising" json:"rising"`
	HighAbove float64 `toml:"high_above" json:"highAbove"`
	LowBelow  float64 `toml:"low_below" json:"lowBelow"`
	Deadband  float64 `toml:"deadband" json:"deadband,omitempty"` // Degrees of motion ignored when picking direction
}

// Phases returns the four phases in cycle order.
func (b Bands) Phases() []Phase {
	return []Phase{b.High, b.Falling, b.Low, b.Rising}
}

// Validate checks the bands are well formed.
func (b Bands) Validate() error {
	seen := make(map[Phase]bool, 4)
	for _, p := range b.Phases() {
		if p == "" || seen[p] {
			return fmt.Errorf("%w: bands need four distinct phase names", ErrInvalidTable)
		}
		seen[p] = true
	}
	if b.LowBelow >= b.HighAbove {
		return fmt.Errorf("%w: low_below %.1f must be under high_above %.1f", ErrInvalidTable, b.LowBelow, b.HighAbove)
	}
	return nil
}

// Classify returns the candidate phase for value given the previous value
// and the current phase. Without clear motion between the bands the current
// phase is kept.
func (b Bands) Classify(current Phase, value, previous float64) Phase {
	switch {
	case value >= b.HighAbove:
		return b.High
	case value <= b.LowBelow:
		return b.Low
	}

	delta := value - previous
	switch {
	case delta < -b.Deadband:
		return b.Falling
	case delta > b.Deadband:
		return b.Rising
	case current == b.High:
		return b.Falling
	case current == b.Low:
		return b.Rising
	}
	return current
}

// Hold requires a candidate phase to persist for a minimum time before it is
// released.
type Hold struct {
	candidate Phase
	sinceMs   int64
}

// Observe records candidate at nowMs and reports whether it has persisted
// for at least holdMs. A change of candidate restarts the timer.
func (h *Hold) Observe(candidate Phase, nowMs int64, holdMs float64) bool {
	if candidate != h.candidate {
		h.candidate = candidate
		h.sinceMs = nowMs
	}
	return float64(nowMs-h.sinceMs) >= holdMs
}

// Reset forgets the candidate.
func (h *Hold) Reset() {
	h.candidate = ""
	h.sinceMs = 0
}
