package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flightstudio/podscribe/pkg/types"
)

func TestValidRunTransitions(t *testing.T) {
	tests := []struct {
		from  types.RunStatus
		to    types.RunStatus
		valid bool
	}{
		{types.RunIdle, types.RunFetching, true},
		{types.RunIdle, types.RunFailed, true},
		{types.RunIdle, types.RunCancelled, true},
		{types.RunIdle, types.RunCompleted, false},
		{types.RunFetching, types.RunTranscribing, true},
		{types.RunFetching, types.RunFailed, true},
		{types.RunFetching, types.RunCompleted, false},
		{types.RunTranscribing, types.RunLoading, true},
		{types.RunTranscribing, types.RunFailed, true},
		{types.RunLoading, types.RunCompleted, true},
		{types.RunLoading, types.RunFetching, false},
		{types.RunCompleted, types.RunFailed, false},
		{types.RunFailed, types.RunIdle, false},
		{types.RunCancelled, types.RunFetching, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.valid, CanTransitionRun(tt.from, tt.to))
			err := TransitionRun(tt.from, tt.to)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidEpisodeTransitions(t *testing.T) {
	tests := []struct {
		from  types.ProcessingState
		to    types.ProcessingState
		valid bool
	}{
		{types.EpisodeDiscovered, types.EpisodeTranscribing, true},
		{types.EpisodeDiscovered, types.EpisodeLoaded, false},
		{types.EpisodeTranscribing, types.EpisodeTranscribed, true},
		{types.EpisodeTranscribing, types.EpisodeFailed, true},
		{types.EpisodeTranscribed, types.EpisodeLoaded, true},
		{types.EpisodeTranscribed, types.EpisodeDiscovered, false},
		{types.EpisodeLoaded, types.EpisodeFailed, false},
		{types.EpisodeFailed, types.EpisodeTranscribing, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.valid, CanTransitionEpisode(tt.from, tt.to))
		})
	}
}

func TestIsRunTerminal(t *testing.T) {
	assert.True(t, IsRunTerminal(types.RunCompleted))
	assert.True(t, IsRunTerminal(types.RunFailed))
	assert.True(t, IsRunTerminal(types.RunCancelled))
	assert.False(t, IsRunTerminal(types.RunIdle))
	assert.False(t, IsRunTerminal(types.RunTranscribing))
}

func TestIsEpisodeTerminal(t *testing.T) {
	assert.True(t, IsEpisodeTerminal(types.EpisodeLoaded))
	assert.True(t, IsEpisodeTerminal(types.EpisodeFailed))
	assert.False(t, IsEpisodeTerminal(types.EpisodeDiscovered))
	assert.False(t, IsEpisodeTerminal(types.EpisodeTranscribing))
}

func TestIsJobTerminal(t *testing.T) {
	assert.True(t, IsJobTerminal(types.JobSucceeded))
	assert.True(t, IsJobTerminal(types.JobFailed))
	assert.False(t, IsJobTerminal(types.JobSubmitted))
	assert.False(t, IsJobTerminal(types.JobInProgress))
}
