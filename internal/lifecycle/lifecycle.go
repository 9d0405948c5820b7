// Package lifecycle implements the pipeline run and episode state machines.
package lifecycle

import (
	"fmt"

	"github.com/flightstudio/podscribe/pkg/types"
)

// Transition table: from -> allowed tos
var validRunTransitions = map[types.RunStatus][]types.RunStatus{
	types.RunIdle:         {types.RunFetching, types.RunFailed, types.RunCancelled},
	types.RunFetching:     {types.RunTranscribing, types.RunFailed, types.RunCancelled},
	types.RunTranscribing: {types.RunLoading, types.RunFailed, types.RunCancelled},
	types.RunLoading:      {types.RunCompleted, types.RunFailed, types.RunCancelled},
	types.RunCompleted:    {},
	types.RunFailed:       {},
	types.RunCancelled:    {},
}

var validEpisodeTransitions = map[types.ProcessingState][]types.ProcessingState{
	types.EpisodeDiscovered:   {types.EpisodeTranscribing, types.EpisodeFailed},
	types.EpisodeTranscribing: {types.EpisodeTranscribed, types.EpisodeFailed},
	types.EpisodeTranscribed:  {types.EpisodeLoaded, types.EpisodeFailed},
	// A failed episode may be picked up again by a later run.
	types.EpisodeFailed: {types.EpisodeDiscovered, types.EpisodeTranscribing},
	types.EpisodeLoaded: {},
}

// CanTransitionRun checks if a run status transition is valid.
func CanTransitionRun(from, to types.RunStatus) bool {
	for _, s := range validRunTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionRun validates a run status transition, returning an error when invalid.
func TransitionRun(from, to types.RunStatus) error {
	if !CanTransitionRun(from, to) {
		return fmt.Errorf("invalid run transition from %s to %s", from, to)
	}
	return nil
}

// IsRunTerminal returns true if the run status is final.
func IsRunTerminal(status types.RunStatus) bool {
	return status == types.RunCompleted || status == types.RunFailed || status == types.RunCancelled
}

// CanTransitionEpisode checks if an episode processing-state transition is valid.
func CanTransitionEpisode(from, to types.ProcessingState) bool {
	for _, s := range validEpisodeTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionEpisode validates an episode state transition, returning an error when invalid.
func TransitionEpisode(from, to types.ProcessingState) error {
	if !CanTransitionEpisode(from, to) {
		return fmt.Errorf("invalid episode transition from %s to %s", from, to)
	}
	return nil
}

// IsEpisodeTerminal returns true when an episode needs no further work this run.
func IsEpisodeTerminal(state types.ProcessingState) bool {
	return state == types.EpisodeLoaded || state == types.EpisodeFailed
}

// IsJobTerminal returns true if the job state is immutable.
func IsJobTerminal(state types.JobState) bool {
	return state == types.JobSucceeded || state == types.JobFailed
}
