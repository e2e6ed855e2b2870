// Package phase implements the workout phase state machine and rep counter.
package phase

import (
	"errors"
	"fmt"
)

// ErrInvalidTable is returned when a transition table references unknown
// phases or has no rep edge.
var ErrInvalidTable = errors.New("invalid phase table")

// Phase names a segment of a movement cycle, e.g. "top" or "bottom".
type Phase string

// Edge is a directed transition.
type Edge struct {
	From Phase `toml:"from" json:"from"`
	To   Phase `toml:"to" json:"to"`
}

// Table declares the legal phases and transitions for one workout.
type Table struct {
	Phases      []Phase
	Initial     Phase
	Transitions []Edge
	RepEdge     Edge // The single transition that counts a rep
}

// Validate checks that every edge references a declared phase and that the
// rep edge is itself legal.
func (t Table) Validate() error {
	known := make(map[Phase]bool, len(t.Phases))
	for _, p := range t.Phases {
		if p == "" {
			return fmt.Errorf("%w: empty phase name", ErrInvalidTable)
		}
		known[p] = true
	}
	if !known[t.Initial] {
		return fmt.Errorf("%w: initial phase %q not declared", ErrInvalidTable, t.Initial)
	}

	repLegal := false
	for _, e := range t.Transitions {
		if !known[e.From] || !known[e.To] {
			return fmt.Errorf("%w: transition %s->%s uses an undeclared phase", ErrInvalidTable, e.From, e.To)
		}
		if e == t.RepEdge {
			repLegal = true
		}
	}
	if !repLegal {
		return fmt.Errorf("%w: rep edge %s->%s is not a legal transition", ErrInvalidTable, t.RepEdge.From, t.RepEdge.To)
	}
	return nil
}

// Machine tracks the current phase and counts reps. Illegal transitions are
// an expected outcome and leave the machine untouched.
type Machine struct {
	table   Table
	legal   map[Edge]bool
	current Phase
	reps    int
}

// NewMachine builds a machine from a validated table.
func NewMachine(t Table) (*Machine, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	legal := make(map[Edge]bool, len(t.Transitions))
	for _, e := range t.Transitions {
		legal[e] = true
	}
	return &Machine{
		table:   t,
		legal:   legal,
		current: t.Initial,
	}, nil
}

// Current returns the current phase.
func (m *Machine) Current() Phase {
	return m.current
}

// RepCount returns the number of reps counted.
func (m *Machine) RepCount() int {
	return m.reps
}

// CanTransition reports whether current -> target is legal.
func (m *Machine) CanTransition(target Phase) bool {
	return m.legal[Edge{From: m.current, To: target}]
}

// IsRepEdge reports whether current -> target is the rep-counting edge.
func (m *Machine) IsRepEdge(target Phase) bool {
	return Edge{From: m.current, To: target} == m.table.RepEdge
}

// Transition moves to target if the edge is legal and reports whether it
// did. A rep is counted only when the rep edge itself is taken.
func (m *Machine) Transition(target Phase) bool {
	edge := Edge{From: m.current, To: target}
	if !m.legal[edge] {
		return false
	}
	m.current = target
	if edge == m.table.RepEdge {
		m.reps++
	}
	return true
}

// Reset returns to the initial phase with zero reps.
func (m *Machine) Reset() {
	m.current = m.table.Initial
	m.reps = 0
}
