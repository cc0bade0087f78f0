package harvest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/oro1081111/bgg-oro-analysis/lib/scrapers/bgg"
	"github.com/oro1081111/bgg-oro-analysis/lib/textutil"
	"github.com/oro1081111/bgg-oro-analysis/services/harvest/db"

	_ "modernc.org/sqlite"
)

// a constraint violation or I/O failure in the store. Fatal for the run; the
// last valid checkpoint is preserved so the run can resume.
var ErrStorage = errors.New("storage failure")

const (
	CheckpointBrowsePage = "browse:last_page"
	CheckpointIngest     = "ingest:last_index"
)

// Store is the sole writer of the harvest database. Commits are serialized
// behind it regardless of fetch concurrency.
type Store struct {
	db  *sql.DB
	qry *db.Queries
}

func NewStore(database *sql.DB) Store {
	return Store{
		db:  database,
		qry: db.New(database),
	}
}

// Upsert commits the full row set of one identifier as a single atomic unit:
// either all of game, ranks, dictionary upserts and join rows land, or none
// do. Re-ingesting an identifier overwrites in place and produces an
// identical row set.
func (s Store) Upsert(ctx context.Context, rec Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %s", ErrStorage, err)
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	err = s.upsertAll(ctx, txqry, rec)
	if err != nil {
		return fmt.Errorf("%w: game %d: %s", ErrStorage, rec.Game.BggID, err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("%w: commit game %d: %s", ErrStorage, rec.Game.BggID, err)
	}
	return nil
}

func (s Store) upsertAll(ctx context.Context, txqry *db.Queries, rec Record) error {
	err := txqry.UpsertGame(ctx, rec.Game)
	if err != nil {
		return err
	}

	err = txqry.DeleteRanks(ctx, rec.Game.BggID)
	if err != nil {
		return err
	}
	for _, rank := range rec.Ranks {
		err = txqry.CreateRank(ctx, rank)
		if err != nil {
			return err
		}
	}

	type dictOps struct {
		names  []string
		create func(context.Context, db.CreateDictEntryParams) error
		getId  func(context.Context, string) (int64, error)
		unlink func(context.Context, int64) error
		link   func(context.Context, db.CreateGameLinkParams) error
	}
	dicts := []dictOps{
		{rec.Mechanics, txqry.CreateMechanic, txqry.GetMechanicId, txqry.DeleteGameMechanics, txqry.CreateGameMechanic},
		{rec.Categories, txqry.CreateCategory, txqry.GetCategoryId, txqry.DeleteGameCategories, txqry.CreateGameCategory},
		{rec.Designers, txqry.CreateDesigner, txqry.GetDesignerId, txqry.DeleteGameDesigners, txqry.CreateGameDesigner},
		{rec.Publishers, txqry.CreatePublisher, txqry.GetPublisherId, txqry.DeleteGamePublishers, txqry.CreateGamePublisher},
	}

	for _, d := range dicts {
		err = d.unlink(ctx, rec.Game.BggID)
		if err != nil {
			return err
		}
		for _, name := range d.names {
			key := textutil.NormalizeKey(name)
			err = d.create(ctx, db.CreateDictEntryParams{Name: name, NormKey: key})
			if err != nil {
				return err
			}
			id, err := d.getId(ctx, key)
			if err != nil {
				return err
			}
			err = d.link(ctx, db.CreateGameLinkParams{BggID: rec.Game.BggID, DictID: id})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Checkpoint returns the named marker, reporting ok=false when none has been
// written yet.
func (s Store) Checkpoint(ctx context.Context, name string) (int64, bool, error) {
	value, err := s.qry.GetCheckpoint(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: read checkpoint %q: %s", ErrStorage, name, err)
	}
	return value, true, nil
}

// Advance moves the named checkpoint forward. It is called strictly after a
// durable commit, never before, and a stale value never moves it backwards.
func (s Store) Advance(ctx context.Context, name string, value int64) error {
	err := s.qry.AdvanceCheckpoint(ctx, name, value)
	if err != nil {
		return fmt.Errorf("%w: advance checkpoint %q: %s", ErrStorage, name, err)
	}
	return nil
}

// Clear removes the named checkpoint, marking its run checkpoint-clean.
func (s Store) Clear(ctx context.Context, name string) error {
	err := s.qry.ClearCheckpoint(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: clear checkpoint %q: %s", ErrStorage, name, err)
	}
	return nil
}

// BrowseCheckpoint adapts the checkpoint ledger to the discoverer's
// progress interface.
func (s Store) BrowseCheckpoint() bgg.PageCheckpoint {
	return browseCheckpoint{s}
}

type browseCheckpoint struct {
	s Store
}

func (b browseCheckpoint) LastPage(ctx context.Context) (int64, bool, error) {
	return b.s.Checkpoint(ctx, CheckpointBrowsePage)
}

func (b browseCheckpoint) SavePage(ctx context.Context, page int64) error {
	return b.s.Advance(ctx, CheckpointBrowsePage, page)
}
