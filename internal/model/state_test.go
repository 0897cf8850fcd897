package model

import "testing"

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from State
		to   State
	}{
		{StateCollecting, StatePresetChosen},
		{StatePresetChosen, StatePresetChosen},
		{StatePresetChosen, StateCollecting},
		{StatePresetChosen, StateRunning},
		{StateRunning, StateTerminal},
		{StateCollecting, StateTerminal},
	}
	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from State
		to   State
	}{
		{StateCollecting, StateRunning},
		{StateRunning, StateRunning},
		{StateRunning, StatePresetChosen},
		{StateTerminal, StateCollecting},
		{"bogus", StateCollecting},
	}
	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionSession_BlocksIllegalTransition(t *testing.T) {
	s := Session{Token: "t1", State: StateCollecting}
	if err := TransitionSession(&s, StateRunning); err == nil {
		t.Fatalf("expected illegal transition error")
	}
	if s.State != StateCollecting {
		t.Fatalf("state changed on rejected transition: %q", s.State)
	}
}
