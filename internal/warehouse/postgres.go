package warehouse

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flightstudio/podscribe/pkg/types"
)

const defaultDSNEnv = "PODSCRIBE_WAREHOUSE_DSN"

// identPattern accepts plain and schema-qualified table names.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// DB is the subset of the pgx pool the warehouse uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// Postgres writes warehouse rows to a Postgres table.
type Postgres struct {
	db          DB
	pool        *pgxpool.Pool
	keepHistory bool
}

var _ Warehouse = (*Postgres)(nil)

// NewPostgres opens a connection pool from the DSN named in cfg.DSNEnv
// (PODSCRIBE_WAREHOUSE_DSN by default).
func NewPostgres(ctx context.Context, cfg types.WarehouseConfig) (*Postgres, error) {
	dsnEnv := cfg.DSNEnv
	if dsnEnv == "" {
		dsnEnv = defaultDSNEnv
	}
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		return nil, fmt.Errorf("warehouse: %s is not set", dsnEnv)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("warehouse: opening pool: %w", err)
	}
	return &Postgres{db: pool, pool: pool, keepHistory: cfg.KeepHistory}, nil
}

// NewPostgresWithDB wraps an existing connection for tests.
func NewPostgresWithDB(db DB, keepHistory bool) *Postgres {
	return &Postgres{db: db, keepHistory: keepHistory}
}

// EnsureSchema creates the target table when it does not exist. The primary
// key depends on history mode: overwrite keys on episode_id alone, history
// mode keys on (episode_id, version) so re-runs append.
func (p *Postgres) EnsureSchema(ctx context.Context, table string) error {
	if err := validateTable(table); err != nil {
		return err
	}
	pk := "PRIMARY KEY (episode_id)"
	if p.keepHistory {
		pk = "PRIMARY KEY (episode_id, version)"
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			episode_id          TEXT NOT NULL,
			episode_name        TEXT NOT NULL,
			episode_description TEXT,
			guest_name          TEXT,
			release_date        TIMESTAMPTZ NOT NULL,
			transcript          TEXT NOT NULL,
			transcript_length   INTEGER NOT NULL,
			language            TEXT,
			confidence          DOUBLE PRECISION,
			version             INTEGER NOT NULL DEFAULT 1,
			transcribed_time    TIMESTAMPTZ,
			load_time           TIMESTAMPTZ NOT NULL,
			%s
		)`, table, pk)
	if _, err := p.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("warehouse: creating table %s: %w", table, err)
	}
	return nil
}

// Upsert writes rows one statement at a time so a bad row cannot poison its
// neighbors. Content for an existing episode_id is replaced; in history mode
// an existing (episode_id, version) pair is left untouched.
func (p *Postgres) Upsert(ctx context.Context, table string, rows []types.WarehouseRecord) ([]types.RowResult, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	query := upsertSQL(table, p.keepHistory)
	results := make([]types.RowResult, 0, len(rows))
	for _, row := range rows {
		_, err := p.db.Exec(ctx, query,
			row.EpisodeID,
			row.EpisodeName,
			row.EpisodeDescription,
			row.GuestName,
			row.ReleaseDate,
			row.Transcript,
			row.TranscriptLength,
			row.Language,
			row.Confidence,
			row.Version,
			row.TranscribedTime,
			row.LoadTime,
		)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			results = append(results, rowError(row.EpisodeID, err))
			continue
		}
		results = append(results, types.RowResult{EpisodeID: row.EpisodeID})
	}
	return results, nil
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

// Close releases the pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func upsertSQL(table string, keepHistory bool) string {
	insert := fmt.Sprintf(`
		INSERT INTO %s (
			episode_id, episode_name, episode_description, guest_name,
			release_date, transcript, transcript_length, language,
			confidence, version, transcribed_time, load_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`, table)

	if keepHistory {
		return insert + `
		ON CONFLICT (episode_id, version) DO NOTHING`
	}
	return insert + `
		ON CONFLICT (episode_id) DO UPDATE SET
			episode_name        = EXCLUDED.episode_name,
			episode_description = EXCLUDED.episode_description,
			guest_name          = EXCLUDED.guest_name,
			release_date        = EXCLUDED.release_date,
			transcript          = EXCLUDED.transcript,
			transcript_length   = EXCLUDED.transcript_length,
			language            = EXCLUDED.language,
			confidence          = EXCLUDED.confidence,
			version             = EXCLUDED.version,
			transcribed_time    = EXCLUDED.transcribed_time,
			load_time           = EXCLUDED.load_time`
}

func validateTable(table string) error {
	if !identPattern.MatchString(table) {
		return fmt.Errorf("warehouse: invalid table name %q", table)
	}
	return nil
}
