package types

import "time"

// ProjectConfig is the top-level podscribe.yaml configuration.
type ProjectConfig struct {
	Store    string `yaml:"store" json:"store"` // "dynamodb" or "sqlite"
	DynamoDB any    `yaml:"-" json:"-"`
	SQLite   any    `yaml:"-" json:"-"`

	Channels    []ChannelConfig   `yaml:"channels" json:"channels"`
	Transcriber TranscriberConfig `yaml:"transcriber" json:"transcriber"`
	Warehouse   WarehouseConfig   `yaml:"warehouse" json:"warehouse"`
	Run         RunConfig         `yaml:"run,omitempty" json:"run,omitempty"`
	Retry       RetryPolicy       `yaml:"retry,omitempty" json:"retry,omitempty"`
	Telemetry   TelemetryConfig   `yaml:"telemetry,omitempty" json:"telemetry,omitempty"`
}

// ChannelConfig identifies one tracked channel.
type ChannelConfig struct {
	ID        string `yaml:"id" json:"id"`
	Name      string `yaml:"name,omitempty" json:"name,omitempty"`
	FeedURL   string `yaml:"feedUrl,omitempty" json:"feedUrl,omitempty"` // override the default uploads feed
	Since     string `yaml:"since,omitempty" json:"since,omitempty"`     // RFC3339; fetch window floor for first run
	AudioBase string `yaml:"audioBase,omitempty" json:"audioBase,omitempty"`
}

// TranscriberConfig configures the transcription capability client.
type TranscriberConfig struct {
	BaseURL       string `yaml:"baseUrl,omitempty" json:"baseUrl,omitempty"`
	APIKeyEnv     string `yaml:"apiKeyEnv,omitempty" json:"apiKeyEnv,omitempty"` // env var holding the API key
	SpeakerLabels bool   `yaml:"speakerLabels,omitempty" json:"speakerLabels,omitempty"`
	TimeoutSecs   int    `yaml:"timeoutSecs,omitempty" json:"timeoutSecs,omitempty"`

	// Optional SQS queue carrying webhook completion events. When set, the
	// job manager drains it instead of relying on polling alone.
	CallbackQueueURL string `yaml:"callbackQueueUrl,omitempty" json:"callbackQueueUrl,omitempty"`
	Region           string `yaml:"region,omitempty" json:"region,omitempty"`
}

// WarehouseConfig configures the warehouse capability client.
type WarehouseConfig struct {
	DSNEnv      string `yaml:"dsnEnv,omitempty" json:"dsnEnv,omitempty"` // env var holding the Postgres DSN
	Table       string `yaml:"table" json:"table"`
	BatchSize   int    `yaml:"batchSize,omitempty" json:"batchSize,omitempty"`
	KeepHistory bool   `yaml:"keepHistory,omitempty" json:"keepHistory,omitempty"` // append-with-version instead of overwrite
}

// RunConfig bounds a single pipeline run.
type RunConfig struct {
	MaxConcurrentJobs int    `yaml:"maxConcurrentJobs,omitempty" json:"maxConcurrentJobs,omitempty"`
	PollInterval      string `yaml:"pollInterval,omitempty" json:"pollInterval,omitempty"` // duration string
	JobTimeout        string `yaml:"jobTimeout,omitempty" json:"jobTimeout,omitempty"`
	RatePerSecond     int    `yaml:"ratePerSecond,omitempty" json:"ratePerSecond,omitempty"` // platform API rate limit
}

// RetryPolicy configures transcription retry behavior.
type RetryPolicy struct {
	MaxAttempts       int               `yaml:"maxAttempts,omitempty" json:"maxAttempts,omitempty"`
	BackoffSeconds    int               `yaml:"backoffSeconds,omitempty" json:"backoffSeconds,omitempty"`
	BackoffMultiplier float64           `yaml:"backoffMultiplier,omitempty" json:"backoffMultiplier,omitempty"`
	RetryableFailures []FailureCategory `yaml:"retryableFailures,omitempty" json:"retryableFailures,omitempty"`
}

// TelemetryConfig configures the OTLP exporters. Empty endpoint disables export.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// PollIntervalDuration returns the configured poll interval, defaulting to 5s.
func (r RunConfig) PollIntervalDuration() time.Duration {
	if d, err := time.ParseDuration(r.PollInterval); err == nil && d > 0 {
		return d
	}
	return 5 * time.Second
}

// JobTimeoutDuration returns the configured per-job timeout, defaulting to 10m.
func (r RunConfig) JobTimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(r.JobTimeout); err == nil && d > 0 {
		return d
	}
	return 10 * time.Minute
}

// Concurrency returns the job submission ceiling, defaulting to 4.
func (r RunConfig) Concurrency() int {
	if r.MaxConcurrentJobs > 0 {
		return r.MaxConcurrentJobs
	}
	return 4
}
