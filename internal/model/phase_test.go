package model

import "testing"

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{"", PhaseIdle},
		{PhaseIdle, PhaseRunning},
		{PhaseRunning, PhaseSubmitting},
		{PhaseSubmitting, PhaseWaitingGeneration},
		{PhaseWaitingGeneration, PhaseRunning},
		{PhaseRunning, PhaseOnBreak},
		{PhaseOnBreak, PhaseRunning},
		{PhaseRunning, PhaseRedirecting},
		{PhaseRedirecting, PhaseSubmitting},
		{PhaseWaitingGeneration, PhaseCompleted},
		{PhaseRunning, PhaseStopped},
		{PhaseSubmitting, PhaseErrored},
		{PhaseCompleted, PhaseIdle},
		{PhaseStopped, PhaseIdle},
		{PhaseErrored, PhaseIdle},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{PhaseIdle, PhaseSubmitting},
		{PhaseIdle, PhaseCompleted},
		{PhaseCompleted, PhaseRunning},
		{PhaseStopped, PhaseSubmitting},
		{PhaseOnBreak, PhaseRedirecting},
		{"not_a_phase", PhaseRunning},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionTo_BlocksIllegalTransition(t *testing.T) {
	run := NewRun("run-1", ModeImage, []WorkItem{{Prompt: "a"}}, Settings{})

	if err := run.TransitionTo(PhaseStopped); err != nil {
		t.Fatalf("running -> stopped: %v", err)
	}
	if err := run.TransitionTo(PhaseSubmitting); err == nil {
		t.Fatalf("expected illegal transition error from stopped")
	}
	if got := run.Phase(); got != PhaseStopped {
		t.Fatalf("phase changed on rejected transition: %q", got)
	}
}

func TestIsTerminalPhase(t *testing.T) {
	for _, phase := range []string{PhaseCompleted, PhaseStopped, PhaseErrored} {
		if !IsTerminalPhase(phase) {
			t.Fatalf("expected %q to be terminal", phase)
		}
	}
	for _, phase := range []string{PhaseIdle, PhaseRunning, PhaseOnBreak} {
		if IsTerminalPhase(phase) {
			t.Fatalf("expected %q to be non-terminal", phase)
		}
	}
}
