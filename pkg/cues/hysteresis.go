package cues

import (
	"fmt"
	"slices"
)

// Hysteresis holds a displayed cue steady against frame-to-frame noise.
// The empty string means no cue.
type Hysteresis struct {
	showFrames int
	hideFrames int

	stable    string
	candidate string
	seen      int // Consecutive frames the candidate was observed
	missed    int // Consecutive frames the stable cue was not observed
}

// NewHysteresis needs both counts to be at least one.
func NewHysteresis(showFrames, hideFrames int) (*Hysteresis, error) {
	if showFrames < 1 || hideFrames < 1 {
		return nil, fmt.Errorf("%w: show=%d hide=%d", ErrInvalidHysteresis, showFrames, hideFrames)
	}
	return &Hysteresis{showFrames: showFrames, hideFrames: hideFrames}, nil
}

// MustNewHysteresis is like NewHysteresis but panics on invalid counts.
func MustNewHysteresis(showFrames, hideFrames int) *Hysteresis {
	h, err := NewHysteresis(showFrames, hideFrames)
	if err != nil {
		panic(err)
	}
	return h
}

// StepSelected feeds one raw observation and returns the stable cue.
//
// A new cue shows after showFrames identical observations. The stable cue
// hides after hideFrames misses, but is kept while a replacement is still
// inside its own show window.
func (h *Hysteresis) StepSelected(raw string) string {
	if raw != "" && raw == h.stable {
		h.missed = 0
		h.candidate, h.seen = "", 0
		return h.stable
	}

	switch {
	case raw == "":
		h.candidate, h.seen = "", 0
	case raw == h.candidate:
		h.seen++
	default:
		h.candidate, h.seen = raw, 1
	}

	if h.stable == "" {
		if h.seen >= h.showFrames {
			h.promote()
		}
		return h.stable
	}

	h.missed++
	switch {
	case h.missed >= h.hideFrames && h.seen >= h.showFrames:
		h.promote()
	case h.missed >= h.hideFrames && (h.candidate == "" || h.missed-h.seen >= h.hideFrames):
		// No replacement began before the hide window ran out
		h.stable = ""
		h.missed = 0
	}
	return h.stable
}

// NextStableCueFromOrderedActive steps with a priority-ordered list of
// active cue IDs. If the stable cue is anywhere in the list it counts as
// observed, so reordering among active cues does not flicker.
func (h *Hysteresis) NextStableCueFromOrderedActive(active []string) string {
	raw := ""
	switch {
	case h.stable != "" && slices.Contains(active, h.stable):
		raw = h.stable
	case len(active) > 0:
		raw = active[0]
	}
	return h.StepSelected(raw)
}

// IsActive reports whether id is the stable cue.
func (h *Hysteresis) IsActive(id string) bool {
	return id != "" && h.stable == id
}

// Stable returns the stable cue or "".
func (h *Hysteresis) Stable() string {
	return h.stable
}

// Reset clears all counters.
func (h *Hysteresis) Reset() {
	h.stable, h.candidate = "", ""
	h.seen, h.missed = 0, 0
}

func (h *Hysteresis) promote() {
	h.stable = h.candidate
	h.candidate, h.seen = "", 0
	h.missed = 0
}
