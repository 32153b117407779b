package model

import "fmt"

const (
	PhaseIdle              = "idle"
	PhaseRunning           = "running"
	PhaseSubmitting        = "submitting"
	PhaseWaitingGeneration = "waiting_generation"
	PhaseOnBreak           = "on_break"
	PhaseRedirecting       = "redirecting"
	PhaseCompleted         = "completed"
	PhaseStopped           = "stopped"
	PhaseErrored           = "errored"
)

var allowedPhaseTransitions = map[string]map[string]bool{
	"": {
		PhaseIdle:    true,
		PhaseRunning: true,
	},
	PhaseIdle: {
		PhaseIdle:    true,
		PhaseRunning: true,
	},
	PhaseRunning: {
		PhaseRunning:           true,
		PhaseSubmitting:        true,
		PhaseWaitingGeneration: true,
		PhaseOnBreak:           true,
		PhaseRedirecting:       true,
		PhaseCompleted:         true,
		PhaseStopped:           true,
		PhaseErrored:           true,
	},
	PhaseSubmitting: {
		PhaseSubmitting:        true,
		PhaseRunning:           true,
		PhaseWaitingGeneration: true,
		PhaseOnBreak:           true,
		PhaseRedirecting:       true,
		PhaseCompleted:         true,
		PhaseStopped:           true,
		PhaseErrored:           true,
	},
	PhaseWaitingGeneration: {
		PhaseWaitingGeneration: true,
		PhaseRunning:           true,
		PhaseSubmitting:        true,
		PhaseOnBreak:           true,
		PhaseRedirecting:       true,
		PhaseCompleted:         true,
		PhaseStopped:           true,
		PhaseErrored:           true,
	},
	PhaseOnBreak: {
		PhaseOnBreak:    true,
		PhaseRunning:    true,
		PhaseSubmitting: true,
		PhaseStopped:    true,
		PhaseErrored:    true,
	},
	PhaseRedirecting: {
		PhaseRedirecting: true,
		PhaseRunning:     true,
		PhaseSubmitting:  true,
		PhaseCompleted:   true,
		PhaseStopped:     true,
		PhaseErrored:     true,
	},
	PhaseCompleted: {
		PhaseCompleted: true,
		PhaseIdle:      true,
	},
	PhaseStopped: {
		PhaseStopped: true,
		PhaseIdle:    true,
	},
	PhaseErrored: {
		PhaseErrored: true,
		PhaseIdle:    true,
	},
}

func IsKnownPhase(phase string) bool {
	_, ok := allowedPhaseTransitions[phase]
	return ok
}

func CanTransition(from, to string) bool {
	next, ok := allowedPhaseTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// IsTerminalPhase reports whether a run in the given phase has stopped
// doing work for good (until it is reset back to idle).
func IsTerminalPhase(phase string) bool {
	switch phase {
	case PhaseCompleted, PhaseStopped, PhaseErrored:
		return true
	}
	return false
}

func IsActivePhase(phase string) bool {
	return IsKnownPhase(phase) && phase != PhaseIdle && !IsTerminalPhase(phase)
}

func transitionPhase(from, to, runID string) (string, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("invalid run phase transition: %q -> %q (run_id=%s)", from, to, runID)
	}
	return to, nil
}
