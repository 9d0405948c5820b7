package types

import "time"

// Episode is one podcast installment discovered from a tracked channel.
// Immutable once discovered; only its processing state changes, and that is
// tracked separately in EpisodeState.
type Episode struct {
	EpisodeID    string    `json:"episodeId"`
	ChannelID    string    `json:"channelId"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	PublishedAt  time.Time `json:"publishedAt"`
	AudioRef     string    `json:"audioRef"`
	DiscoveredAt time.Time `json:"discoveredAt"`
}

// EpisodeState is the mutable pipeline state for a discovered episode.
// All mutations go through the orchestrator (single writer).
type EpisodeState struct {
	EpisodeID   string          `json:"episodeId"`
	ChannelID   string          `json:"channelId"`
	State       ProcessingState `json:"state"`
	JobID       string          `json:"jobId,omitempty"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"lastError,omitempty"`
	ErrorKind   ErrorKind       `json:"errorKind,omitempty"`
	PublishedAt time.Time       `json:"publishedAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// TranscriptionJob records a single submission to the transcription capability.
// Jobs are archived for audit, never deleted; terminal states are immutable.
type TranscriptionJob struct {
	EpisodeID   string     `json:"episodeId"`
	JobID       string     `json:"jobId"`
	State       JobState   `json:"state"`
	SubmittedAt time.Time  `json:"submittedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"lastError,omitempty"`
}

// Utterance is one speaker-labelled segment of a transcript.
type Utterance struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	StartMS    int64   `json:"startMs"`
	EndMS      int64   `json:"endMs"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Transcript is the text produced by a succeeded transcription job.
// Re-runs produce a new version; history is never silently overwritten.
type Transcript struct {
	TranscriptID string      `json:"transcriptId"`
	EpisodeID    string      `json:"episodeId"`
	Text         string      `json:"text"`
	Language     string      `json:"language,omitempty"`
	Confidence   float64     `json:"confidence,omitempty"`
	Utterances   []Utterance `json:"utterances,omitempty"`
	Version      int         `json:"version"`
	GeneratedAt  time.Time   `json:"generatedAt"`
}

// WarehouseRecord is the flattened Episode+Transcript row loaded into the
// warehouse. The upsert key is EpisodeID; row content mirrors the
// podcast_transcripts table.
type WarehouseRecord struct {
	EpisodeID          string    `json:"episode_id"`
	EpisodeName        string    `json:"episode_name"`
	EpisodeDescription string    `json:"episode_description,omitempty"`
	GuestName          string    `json:"guest_name,omitempty"`
	ReleaseDate        time.Time `json:"release_date"`
	Transcript         string    `json:"transcript"`
	TranscriptLength   int       `json:"transcript_length"`
	Language           string    `json:"language,omitempty"`
	Confidence         float64   `json:"confidence,omitempty"`
	Version            int       `json:"version"`
	TranscribedTime    time.Time `json:"transcribed_time"`
	LoadTime           time.Time `json:"load_time"`
}

// RowResult is the per-row outcome of a warehouse upsert batch.
type RowResult struct {
	EpisodeID string `json:"episodeId"`
	Err       error  `json:"-"`
}

// LoadResult summarizes a loader batch: which episode IDs committed and which
// must be retried on the next run.
type LoadResult struct {
	Loaded []string `json:"loaded"`
	Failed []string `json:"failed"`
}

// HighWaterMark is the per-channel checkpoint marking the most recently
// processed publish time. It only advances; it never moves backwards.
type HighWaterMark struct {
	ChannelID     string    `json:"channelId"`
	PublishedAt   time.Time `json:"publishedAt"`
	LastEpisodeID string    `json:"lastEpisodeId,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// RunState is the durable record of a single pipeline run.
type RunState struct {
	RunID     string     `json:"runId"`
	Status    RunStatus  `json:"status"`
	Version   int        `json:"version"`
	Summary   RunSummary `json:"summary"`
	StartedAt time.Time  `json:"startedAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// RunSummary is the operator-facing outcome of a run: counts per terminal
// episode state and per error kind.
type RunSummary struct {
	Discovered  int               `json:"discovered"`
	Skipped     int               `json:"skipped"`
	Transcribed int               `json:"transcribed"`
	Loaded      int               `json:"loaded"`
	Failed      int               `json:"failed"`
	Errors      map[ErrorKind]int `json:"errors,omitempty"`
}

// Record adds one error occurrence to the summary.
func (s *RunSummary) Record(kind ErrorKind) {
	if s.Errors == nil {
		s.Errors = make(map[ErrorKind]int)
	}
	s.Errors[kind]++
}
