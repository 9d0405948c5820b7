package warehouse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightstudio/podscribe/pkg/types"
)

type fakeDB struct {
	queries []string
	args    [][]any
	errOn   map[string]error // episode ID ($1) -> error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.queries = append(f.queries, sql)
	f.args = append(f.args, args)
	if len(args) > 0 {
		if id, ok := args[0].(string); ok {
			if err := f.errOn[id]; err != nil {
				return pgconn.CommandTag{}, err
			}
		}
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Ping(context.Context) error { return nil }

func record(id string) types.WarehouseRecord {
	return types.WarehouseRecord{
		EpisodeID:   id,
		EpisodeName: "Episode " + id,
		ReleaseDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Transcript:  "text",
		Version:     1,
		LoadTime:    time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestUpsert_OverwriteMode(t *testing.T) {
	db := &fakeDB{}
	p := NewPostgresWithDB(db, false)

	results, err := p.Upsert(context.Background(), "podcast_transcripts", []types.WarehouseRecord{record("e1")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)

	require.Len(t, db.queries, 1)
	assert.Contains(t, db.queries[0], "ON CONFLICT (episode_id) DO UPDATE")
	assert.Equal(t, "e1", db.args[0][0])
}

func TestUpsert_HistoryMode(t *testing.T) {
	db := &fakeDB{}
	p := NewPostgresWithDB(db, true)

	_, err := p.Upsert(context.Background(), "podcast_transcripts", []types.WarehouseRecord{record("e1")})
	require.NoError(t, err)
	assert.Contains(t, db.queries[0], "ON CONFLICT (episode_id, version) DO NOTHING")
}

func TestUpsert_RowFailureDoesNotAbortBatch(t *testing.T) {
	db := &fakeDB{errOn: map[string]error{"e2": errors.New("value too long")}}
	p := NewPostgresWithDB(db, false)

	rows := []types.WarehouseRecord{record("e1"), record("e2"), record("e3")}
	results, err := p.Upsert(context.Background(), "t", rows)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorContains(t, results[1].Err, "value too long")
	assert.NoError(t, results[2].Err)
	assert.Len(t, db.queries, 3)
}

func TestUpsert_InvalidTableName(t *testing.T) {
	p := NewPostgresWithDB(&fakeDB{}, false)
	_, err := p.Upsert(context.Background(), "t; DROP TABLE users", nil)
	assert.ErrorContains(t, err, "invalid table name")
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	p := NewPostgresWithDB(db, false)
	require.NoError(t, p.EnsureSchema(context.Background(), "podcast_transcripts"))
	require.Len(t, db.queries, 1)
	assert.Contains(t, db.queries[0], "CREATE TABLE IF NOT EXISTS podcast_transcripts")
	assert.Contains(t, db.queries[0], "PRIMARY KEY (episode_id)")
	assert.False(t, strings.Contains(db.queries[0], "episode_id, version"))

	history := NewPostgresWithDB(&fakeDB{}, true)
	hdb := history.db.(*fakeDB)
	require.NoError(t, history.EnsureSchema(context.Background(), "podcast_transcripts"))
	assert.Contains(t, hdb.queries[0], "PRIMARY KEY (episode_id, version)")
}
