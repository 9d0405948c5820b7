package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS high_water_marks (
	channel_id TEXT PRIMARY KEY,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS episodes (
	episode_id TEXT PRIMARY KEY,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS episode_states (
	episode_id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	data TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_episode_states_state ON episode_states(state);

CREATE TABLE IF NOT EXISTS jobs_current (
	episode_id TEXT PRIMARY KEY,
	data TEXT NOT NULL
);

-- Append-only job history for audit. Never deleted.
CREATE TABLE IF NOT EXISTS jobs_archive (
	episode_id TEXT NOT NULL,
	job_id TEXT NOT NULL,
	submitted_at TEXT NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (episode_id, job_id, submitted_at)
);

CREATE TABLE IF NOT EXISTS transcripts (
	episode_id TEXT NOT NULL,
	version INTEGER NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (episode_id, version)
);

CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	version INTEGER NOT NULL,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS locks (
	key TEXT PRIMARY KEY,
	expires_at INTEGER NOT NULL
);
`
