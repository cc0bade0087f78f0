package harvest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/oro1081111/bgg-oro-analysis/lib/scrapers/bgg"
	"github.com/oro1081111/bgg-oro-analysis/lib/telemetry"
	"github.com/oro1081111/bgg-oro-analysis/services/harvest/db"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupStore(t testing.TB) Store {
	cleanup := telemetry.SetupForTesting(t, "test:harvest")
	t.Cleanup(cleanup)

	sqlite, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// the pool must not fan out over separate in-memory databases
	sqlite.SetMaxOpenConns(1)
	_, err = sqlite.Exec(db.Schema)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return NewStore(sqlite)
}

func itemFromJSON(t testing.TB, payload string) bgg.RawItem {
	item, err := bgg.DecodeItem([]byte(payload))
	require.NoError(t, err)
	return item
}

const gloomhavenPayload = `{"item":{
	"objectid": "174430",
	"name": "Gloomhaven",
	"yearpublished": "2017",
	"minplayers": "1", "maxplayers": "4",
	"minplaytime": "60", "maxplaytime": "120", "minage": "14",
	"links": {
		"boardgamemechanic": [{"name": "Worker Placement"}, {"name": "Hand Management"}],
		"boardgamecategory": [{"name": "Economic"}],
		"boardgamedesigner": [{"name": "Isaac Childres"}],
		"boardgamepublisher": [{"name": "Cephalofair Games"}]
	},
	"rankinfo": [
		{"veryshortprettyname": "Overall", "rank": "1"},
		{"veryshortprettyname": "Strategy", "rank": "1"}
	],
	"stats": {"average": "8.6", "baverage": "8.51", "usersrated": "60321", "avgweight": "3.89", "numweights": "2134"}
}}`

func (s Store) countRows(t testing.TB, table string) int {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestUpsertFullRowSet(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	rec := Normalize(174430, itemFromJSON(t, gloomhavenPayload))
	require.NoError(t, store.Upsert(ctx, rec))

	game, err := store.qry.GetGame(ctx, 174430)
	require.NoError(t, err)
	require.Equal(t, "Gloomhaven", game.Name)
	require.EqualValues(t, 2017, game.YearPublished.Int64)

	mechanics, err := store.qry.GetGameMechanicNames(ctx, 174430)
	require.NoError(t, err)
	require.Equal(t, []string{"Hand Management", "Worker Placement"}, mechanics)

	categories, err := store.qry.GetGameCategoryNames(ctx, 174430)
	require.NoError(t, err)
	require.Equal(t, []string{"Economic"}, categories)

	ranks, err := store.qry.GetRanks(ctx, 174430)
	require.NoError(t, err)
	require.Len(t, ranks, 2)
	require.Equal(t, DomainOverall, ranks[0].Domain)
	require.Equal(t, "strategy", ranks[1].Domain)
}

func TestUpsertIdempotent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	rec := Normalize(174430, itemFromJSON(t, gloomhavenPayload))
	require.NoError(t, store.Upsert(ctx, rec))
	require.NoError(t, store.Upsert(ctx, rec))

	require.Equal(t, 1, store.countRows(t, "games"))
	require.Equal(t, 2, store.countRows(t, "ranks"))
	require.Equal(t, 2, store.countRows(t, "mechanics"))
	require.Equal(t, 1, store.countRows(t, "categories"))
	require.Equal(t, 2, store.countRows(t, "game_mechanics"))
	require.Equal(t, 1, store.countRows(t, "game_categories"))
	require.Equal(t, 1, store.countRows(t, "game_designers"))
	require.Equal(t, 1, store.countRows(t, "game_publishers"))
}

func TestUpsertSharedDictionaryEntries(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, Normalize(174430, itemFromJSON(t, gloomhavenPayload))))

	second := itemFromJSON(t, `{"item":{
		"name": "Agricola",
		"links": {"boardgamemechanic": [{"name": "worker  placement"}]}
	}}`)
	require.NoError(t, store.Upsert(ctx, Normalize(31260, second)))

	// "worker  placement" resolved to the existing dictionary entry
	require.Equal(t, 2, store.countRows(t, "mechanics"))
	require.Equal(t, 3, store.countRows(t, "game_mechanics"))
}

func TestUpsertOverwritesInPlace(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, Normalize(174430, itemFromJSON(t, gloomhavenPayload))))

	updated := itemFromJSON(t, `{"item":{
		"name": "Gloomhaven",
		"yearpublished": "2017",
		"rankinfo": [{"veryshortprettyname": "Overall", "rank": "3"}],
		"stats": {"average": "8.4"}
	}}`)
	require.NoError(t, store.Upsert(ctx, Normalize(174430, updated)))

	game, err := store.qry.GetGame(ctx, 174430)
	require.NoError(t, err)
	require.InDelta(t, 8.4, game.RatingAvg.Float64, 0.001)
	// no history retained, current value wins
	ranks, err := store.qry.GetRanks(ctx, 174430)
	require.NoError(t, err)
	require.Len(t, ranks, 1)
	require.EqualValues(t, 3, ranks[0].Rank.Int64)
}

func TestUpsertAtomicOnFailure(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	rec := Normalize(174430, itemFromJSON(t, gloomhavenPayload))
	// duplicate rank domain violates the (bgg_id, domain) primary key
	// partway through the write
	rec.Ranks = append(rec.Ranks, db.Rank{BggID: 174430, Domain: DomainOverall})

	err := store.Upsert(ctx, rec)
	require.ErrorIs(t, err, ErrStorage)

	// zero partial rows for the identifier
	require.Equal(t, 0, store.countRows(t, "games"))
	require.Equal(t, 0, store.countRows(t, "ranks"))
	require.Equal(t, 0, store.countRows(t, "mechanics"))
	require.Equal(t, 0, store.countRows(t, "game_mechanics"))
}

func TestCheckpointLedger(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, ok, err := store.Checkpoint(ctx, CheckpointIngest)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Advance(ctx, CheckpointIngest, 41))
	value, ok, err := store.Checkpoint(ctx, CheckpointIngest)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 41, value)

	// monotonic: stale writers cannot roll it back
	require.NoError(t, store.Advance(ctx, CheckpointIngest, 7))
	value, _, err = store.Checkpoint(ctx, CheckpointIngest)
	require.NoError(t, err)
	require.EqualValues(t, 41, value)

	require.NoError(t, store.Clear(ctx, CheckpointIngest))
	_, ok, err = store.Checkpoint(ctx, CheckpointIngest)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBrowseCheckpointAdapter(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	checkpoint := store.BrowseCheckpoint()
	_, ok, err := checkpoint.LastPage(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, checkpoint.SavePage(ctx, 12))
	page, ok, err := checkpoint.LastPage(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 12, page)
}
