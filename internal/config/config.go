// Package config loads and validates the podscribe.yaml project file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flightstudio/podscribe/internal/statestore"
	"github.com/flightstudio/podscribe/internal/statestore/dynamodb"
	"github.com/flightstudio/podscribe/internal/statestore/sqlite"
	"github.com/flightstudio/podscribe/pkg/types"
)

// FileName is the project configuration file.
const FileName = "podscribe.yaml"

// Load reads podscribe.yaml from dir and validates it. The store-specific
// sections are decoded in a second pass into their own config types.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var backends struct {
		DynamoDB *dynamodb.Config `yaml:"dynamodb"`
		SQLite   *sqlite.Config   `yaml:"sqlite"`
	}
	if err := yaml.Unmarshal(data, &backends); err != nil {
		return nil, fmt.Errorf("parsing store config in %s: %w", path, err)
	}
	cfg.DynamoDB = backends.DynamoDB
	cfg.SQLite = backends.SQLite

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func validate(cfg *types.ProjectConfig) error {
	switch cfg.Store {
	case "":
		cfg.Store = "sqlite"
	case "sqlite", "dynamodb":
	default:
		return fmt.Errorf("unknown store %q (want sqlite or dynamodb)", cfg.Store)
	}
	if cfg.Store == "dynamodb" {
		ddb, _ := cfg.DynamoDB.(*dynamodb.Config)
		if ddb == nil || ddb.TableName == "" {
			return fmt.Errorf("store dynamodb requires dynamodb.tableName")
		}
	}

	if len(cfg.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	seen := make(map[string]bool, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		if ch.ID == "" {
			return fmt.Errorf("channels[%d]: id is required", i)
		}
		if seen[ch.ID] {
			return fmt.Errorf("channels[%d]: duplicate id %q", i, ch.ID)
		}
		seen[ch.ID] = true
		if ch.Since != "" {
			if _, err := time.Parse(time.RFC3339, ch.Since); err != nil {
				return fmt.Errorf("channel %s: since must be RFC3339: %w", ch.ID, err)
			}
		}
	}

	if cfg.Warehouse.Table == "" {
		cfg.Warehouse.Table = "podcast_transcripts"
	}
	if cfg.Warehouse.BatchSize < 0 {
		return fmt.Errorf("warehouse.batchSize must not be negative")
	}

	if cfg.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.maxAttempts must not be negative")
	}
	if cfg.Retry.BackoffMultiplier != 0 && cfg.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("retry.backoffMultiplier must be at least 1")
	}

	if cfg.Run.PollInterval != "" {
		if _, err := time.ParseDuration(cfg.Run.PollInterval); err != nil {
			return fmt.Errorf("run.pollInterval: %w", err)
		}
	}
	if cfg.Run.JobTimeout != "" {
		if _, err := time.ParseDuration(cfg.Run.JobTimeout); err != nil {
			return fmt.Errorf("run.jobTimeout: %w", err)
		}
	}
	return nil
}

// NewStore builds the configured state store backend.
func NewStore(cfg *types.ProjectConfig) (statestore.Store, error) {
	switch cfg.Store {
	case "dynamodb":
		ddb, _ := cfg.DynamoDB.(*dynamodb.Config)
		return dynamodb.New(ddb)
	case "sqlite":
		sl, _ := cfg.SQLite.(*sqlite.Config)
		if sl == nil {
			sl = &sqlite.Config{}
		}
		return sqlite.New(sl)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

const defaultYAML = `# podscribe project configuration
store: sqlite

sqlite:
  path: podscribe.db

channels:
  - id: UCxxxxxxxxxxxxxxxxxxxxxx
    name: my-podcast
    since: "2021-08-22T00:00:00Z"

transcriber:
  apiKeyEnv: ASSEMBLYAI_API_KEY
  speakerLabels: true

warehouse:
  dsnEnv: PODSCRIBE_WAREHOUSE_DSN
  table: podcast_transcripts

run:
  maxConcurrentJobs: 4
  pollInterval: 5s
  jobTimeout: 10m

retry:
  maxAttempts: 3
  backoffSeconds: 30
  backoffMultiplier: 2.0
`

// WriteDefault writes a starter podscribe.yaml into dir. Refuses to
// overwrite an existing file.
func WriteDefault(dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, []byte(defaultYAML), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
