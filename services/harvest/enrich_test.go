package harvest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeMechanicDescriptions(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	batch := []Enrichment{
		{Name: "Worker Placement", Description: "Assign limited workers to action spaces.", Url: "https://example.com/wp"},
		{Name: "Hand Management", Description: "Play cards for optimal sequencing.", Url: ""},
		{Name: "", Description: "dropped"},
	}
	require.NoError(t, store.MergeMechanicDescriptions(ctx, batch))

	d, err := store.qry.GetMechanicDescription(ctx, "Worker Placement")
	require.NoError(t, err)
	require.Equal(t, "Assign limited workers to action spaces.", d.Description.String)
	require.Equal(t, "https://example.com/wp", d.Url.String)

	require.Equal(t, 2, store.countRows(t, "mechanic_descriptions"))

	// re-merge overwrites prior text
	require.NoError(t, store.MergeMechanicDescriptions(ctx, []Enrichment{
		{Name: "Worker Placement", Description: "Updated text.", Url: "https://example.com/wp2"},
	}))
	d, err = store.qry.GetMechanicDescription(ctx, "Worker Placement")
	require.NoError(t, err)
	require.Equal(t, "Updated text.", d.Description.String)
}

func TestMergeDoesNotTouchEntityTables(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, Normalize(174430, itemFromJSON(t, gloomhavenPayload))))
	before := store.countRows(t, "mechanics")

	require.NoError(t, store.MergeMechanicDescriptions(ctx, []Enrichment{
		{Name: "Deck Building", Description: "Not a dictionary entry yet."},
	}))

	// description rows exist independently of the dictionary; absence of a
	// matching mechanic is a valid state
	require.Equal(t, before, store.countRows(t, "mechanics"))
	require.Equal(t, 1, store.countRows(t, "mechanic_descriptions"))
}

func TestReadEnrichments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "descriptions.json")
	err := os.WriteFile(path, []byte(`[
		{"name": "Worker Placement", "description": "text", "url": "https://example.com"}
	]`), 0o644)
	require.NoError(t, err)

	batch, err := ReadEnrichments(path)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, "Worker Placement", batch[0].Name)
}
