package dynamodb

import (
	"fmt"
	"time"
)

// PK/SK prefix constants.
const (
	prefixChannel    = "CHANNEL#"
	prefixEpisode    = "EPISODE#"
	prefixRun        = "RUN#"
	prefixLock       = "LOCK#"
	prefixJob        = "JOB#"
	prefixTranscript = "TRANSCRIPT#"
	prefixState      = "STATE#"

	skMark     = "MARK"
	skMeta     = "META"
	skState    = "STATE"
	skJob      = "JOB"
	skLock     = "LOCK"
	skRunTruth = "RUN"

	pkRunList = "RUNS"

	gsi1Name = "GSI1"
)

// sortableTime is RFC3339 with fixed-width nanoseconds, so lexicographic SK
// order matches chronological order inside a second. RFC3339Nano strips
// trailing zeros and breaks that.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

func channelPK(id string) string  { return prefixChannel + id }
func episodePK(id string) string  { return prefixEpisode + id }
func runPK(runID string) string   { return prefixRun + runID }
func lockPK(key string) string    { return prefixLock + key }
func statePK(state string) string { return prefixState + state }

func jobArchiveSK(submittedAt time.Time, jobID string) string {
	return prefixJob + submittedAt.UTC().Format(sortableTime) + "#" + jobID
}

func transcriptSK(version int) string {
	return fmt.Sprintf("%s%06d", prefixTranscript, version)
}

func runListSK(startedAt time.Time, runID string) string {
	return prefixRun + startedAt.UTC().Format(sortableTime) + "#" + runID
}

func ttlEpoch(d time.Duration) int64 {
	return time.Now().Add(d).Unix()
}
