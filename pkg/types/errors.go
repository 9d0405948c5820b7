package types

import (
	"errors"
	"fmt"
)

// ErrSourceUnavailable indicates the platform capability could not be reached
// after its own retry policy was exhausted. Run-level retryable.
var ErrSourceUnavailable = errors.New("episode source unavailable")

// MalformedMetadataError reports a single episode record that could not be
// normalized. The record is skipped and reported; it never fails the batch.
type MalformedMetadataError struct {
	ChannelID string
	GUID      string
	Reason    string
}

func (e *MalformedMetadataError) Error() string {
	return fmt.Sprintf("malformed episode metadata (channel %s, guid %q): %s", e.ChannelID, e.GUID, e.Reason)
}

// IsMalformedMetadata reports whether err is a per-record normalization failure.
func IsMalformedMetadata(err error) bool {
	var m *MalformedMetadataError
	return errors.As(err, &m)
}

// TranscriptionError wraps a transcription capability failure with its
// retry classification.
type TranscriptionError struct {
	JobID    string
	Category FailureCategory
	Message  string
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription job %s: %s (%s)", e.JobID, e.Message, e.Category)
}

// ClassifyTranscription returns the failure category of err, defaulting to
// TRANSIENT for unclassified errors so the retry budget decides.
func ClassifyTranscription(err error) FailureCategory {
	if err == nil {
		return ""
	}
	var te *TranscriptionError
	if errors.As(err, &te) && te.Category != "" {
		return te.Category
	}
	return FailureTransient
}
