// Package types defines the public domain types for the podscribe ingestion pipeline.
package types

// ProcessingState tracks where an episode is in the pipeline.
type ProcessingState string

// ProcessingState values enumerate the episode lifecycle states.
const (
	EpisodeDiscovered   ProcessingState = "DISCOVERED"
	EpisodeTranscribing ProcessingState = "TRANSCRIBING"
	EpisodeTranscribed  ProcessingState = "TRANSCRIBED"
	EpisodeLoaded       ProcessingState = "LOADED"
	EpisodeFailed       ProcessingState = "FAILED"
)

// JobState represents the lifecycle state of a transcription job.
type JobState string

// JobState values enumerate the transcription job states.
const (
	JobSubmitted  JobState = "SUBMITTED"
	JobInProgress JobState = "IN_PROGRESS"
	JobSucceeded  JobState = "SUCCEEDED"
	JobFailed     JobState = "FAILED"
)

// RunStatus represents the lifecycle state of a pipeline run.
type RunStatus string

// RunStatus values represent the stages of a pipeline run.
const (
	RunIdle         RunStatus = "IDLE"
	RunFetching     RunStatus = "FETCHING"
	RunTranscribing RunStatus = "TRANSCRIBING"
	RunLoading      RunStatus = "LOADING"
	RunCompleted    RunStatus = "COMPLETED"
	RunFailed       RunStatus = "FAILED"
	RunCancelled    RunStatus = "CANCELLED"
)

// FailureCategory classifies why a source fetch, transcription job, or
// warehouse write failed.
type FailureCategory string

const (
	FailureTransient   FailureCategory = "TRANSIENT"
	FailurePermanent   FailureCategory = "PERMANENT"
	FailureTimeout     FailureCategory = "TIMEOUT"
	FailureRateLimited FailureCategory = "RATE_LIMITED"
)

// ErrorKind labels error buckets in the run summary.
type ErrorKind string

// ErrorKind values enumerate the reportable error buckets.
const (
	ErrKindSourceUnavailable    ErrorKind = "SOURCE_UNAVAILABLE"
	ErrKindMalformedMetadata    ErrorKind = "MALFORMED_METADATA"
	ErrKindTranscriptionFailed  ErrorKind = "TRANSCRIPTION_FAILED"
	ErrKindWarehouseWriteFailed ErrorKind = "WAREHOUSE_WRITE_FAILED"
)
