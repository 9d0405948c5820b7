// Package transcriber implements the transcription capability client.
package transcriber

import (
	"context"
	"os"
	"strings"

	"github.com/flightstudio/podscribe/pkg/types"
)

// Status is the normalized result of a job status check.
type Status struct {
	State    types.JobState
	Message  string                // original provider state or error for logging
	Category types.FailureCategory // classification for retry decisions
}

// Client is the transcription capability: submit an audio reference, poll the
// job, collect the result once succeeded.
type Client interface {
	SubmitJob(ctx context.Context, audioRef string) (string, error)
	GetStatus(ctx context.Context, jobID string) (Status, error)
	GetResult(ctx context.Context, jobID string) (*types.Transcript, error)
}

// ClassifyFailure categorizes a capability error for retry decisions.
func ClassifyFailure(err error) types.FailureCategory {
	if err == nil {
		return ""
	}

	msg := err.Error()
	if os.IsTimeout(err) || strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "context deadline") {
		return types.FailureTimeout
	}
	if strings.Contains(msg, "status 429") {
		return types.FailureRateLimited
	}

	// HTTP 4xx errors are permanent (client errors)
	if strings.Contains(msg, "status 4") {
		return types.FailurePermanent
	}

	// HTTP 5xx and network errors are transient
	return types.FailureTransient
}
