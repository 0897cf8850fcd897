package model

import "fmt"

var allowedTransitions = map[State]map[State]bool{
	StateCollecting: {
		StatePresetChosen: true,
		StateTerminal:     true,
	},
	StatePresetChosen: {
		StatePresetChosen: true, // preset re-chosen
		StateCollecting:   true, // back
		StateRunning:      true,
		StateTerminal:     true,
	},
	StateRunning: {
		StateTerminal: true,
	},
	StateTerminal: {},
}

func CanTransition(from, to State) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionSession(s *Session, to State) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("invalid session transition: %q -> %q (token=%s)", s.State, to, s.Token)
	}
	s.State = to
	return nil
}
