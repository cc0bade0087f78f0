package harvest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/oro1081111/bgg-oro-analysis/lib/textutil"
	"github.com/oro1081111/bgg-oro-analysis/services/harvest/db"
)

// Enrichment is one entry of the external description source artifact.
type Enrichment struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Url         string `json:"url"`
}

func ReadEnrichments(path string) ([]Enrichment, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []Enrichment
	err = json.Unmarshal(contents, &out)
	if err != nil {
		return nil, fmt.Errorf("decode enrichment source %s: %w", path, err)
	}
	return out, nil
}

// MergeMechanicDescriptions upserts descriptive text keyed by mechanic name,
// overwriting prior text. It only ever touches the descriptions table, so
// running it concurrently with the main pipeline is safe.
func (s Store) MergeMechanicDescriptions(ctx context.Context, batch []Enrichment) error {
	return s.mergeDescriptions(ctx, batch, func(q *db.Queries, d db.Description) error {
		return q.UpsertMechanicDescription(ctx, d)
	})
}

// MergeCategoryDescriptions is the category analogue of
// MergeMechanicDescriptions.
func (s Store) MergeCategoryDescriptions(ctx context.Context, batch []Enrichment) error {
	return s.mergeDescriptions(ctx, batch, func(q *db.Queries, d db.Description) error {
		return q.UpsertCategoryDescription(ctx, d)
	})
}

func (s Store) mergeDescriptions(
	ctx context.Context,
	batch []Enrichment,
	upsert func(*db.Queries, db.Description) error,
) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %s", ErrStorage, err)
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	for _, e := range batch {
		name := textutil.CleanName(e.Name)
		if name == "" {
			continue
		}
		err = upsert(txqry, db.Description{
			Name:        name,
			Description: sql.NullString{String: e.Description, Valid: e.Description != ""},
			Url:         sql.NullString{String: e.Url, Valid: e.Url != ""},
		})
		if err != nil {
			return fmt.Errorf("%w: merge description %q: %s", ErrStorage, name, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("%w: commit descriptions: %s", ErrStorage, err)
	}
	return nil
}
