// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"fmt"
	"sync"
)

// StateMachine enforces the control-loop transition graph:
//
//	PLAN → GENERATE         : plan derived
//	GENERATE → CHECK        : files written
//	GENERATE → GENERATE     : failed attempt, budget remains
//	CHECK → FILTER          : findings collected
//	FILTER → DONE           : no error-severity findings remain
//	FILTER → ANALYZE        : errors remain
//	ANALYZE → RESEARCH      : errors classified, budget remains
//	RESEARCH → GENERATE     : reference material gathered
//	* → ERROR               : budget exhausted or unrecoverable failure
//
// Thread Safety:
//
//	StateMachine is safe for concurrent use.
type StateMachine struct {
	mu sync.RWMutex

	// transitions maps valid (from, to) pairs.
	transitions map[Phase]map[Phase]bool
}

// NewStateMachine creates a state machine with the loop's transitions.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{transitions: make(map[Phase]map[Phase]bool)}
	for _, phase := range AllPhases() {
		sm.transitions[phase] = make(map[Phase]bool)
	}

	sm.addTransition(PhasePlan, PhaseGenerate)
	sm.addTransition(PhaseGenerate, PhaseCheck)
	sm.addTransition(PhaseGenerate, PhaseGenerate)
	sm.addTransition(PhaseCheck, PhaseFilter)
	sm.addTransition(PhaseFilter, PhaseDone)
	sm.addTransition(PhaseFilter, PhaseAnalyze)
	sm.addTransition(PhaseAnalyze, PhaseResearch)
	sm.addTransition(PhaseResearch, PhaseGenerate)

	// Any non-terminal phase can fail into ERROR.
	for _, phase := range AllPhases() {
		if !phase.IsTerminal() {
			sm.addTransition(phase, PhaseError)
		}
	}

	return sm
}

// addTransition registers a valid transition.
func (sm *StateMachine) addTransition(from, to Phase) {
	sm.transitions[from][to] = true
}

// CanTransition checks if a transition is valid.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) CanTransition(from, to Phase) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Validate returns an error when the transition is not in the graph.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) Validate(from, to Phase) error {
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("invalid loop transition %s -> %s", from, to)
	}
	return nil
}

// DefaultStateMachine is the shared instance used by runs.
var DefaultStateMachine = NewStateMachine()
