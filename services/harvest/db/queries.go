package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Game struct {
	BggID         int64
	Name          string
	YearPublished sql.NullInt64
	MinPlayers    sql.NullInt64
	MaxPlayers    sql.NullInt64
	MinPlaytime   sql.NullInt64
	MaxPlaytime   sql.NullInt64
	MinAge        sql.NullInt64
	RatingAvg     sql.NullFloat64
	RatingGeek    sql.NullFloat64
	RatingCount   sql.NullInt64
	WeightAvg     sql.NullFloat64
	WeightCount   sql.NullInt64
	Url           sql.NullString
	Image         sql.NullString
}

const upsertGame = `
INSERT INTO games (
    bgg_id, name, year_published,
    min_players, max_players, min_playtime, max_playtime, min_age,
    rating_avg, rating_geek, rating_count, weight_avg, weight_count,
    url, image
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (bgg_id) DO UPDATE SET
    name           = excluded.name,
    year_published = excluded.year_published,
    min_players    = excluded.min_players,
    max_players    = excluded.max_players,
    min_playtime   = excluded.min_playtime,
    max_playtime   = excluded.max_playtime,
    min_age        = excluded.min_age,
    rating_avg     = excluded.rating_avg,
    rating_geek    = excluded.rating_geek,
    rating_count   = excluded.rating_count,
    weight_avg     = excluded.weight_avg,
    weight_count   = excluded.weight_count,
    url            = excluded.url,
    image          = excluded.image
`

func (q *Queries) UpsertGame(ctx context.Context, arg Game) error {
	_, err := q.db.ExecContext(ctx, upsertGame,
		arg.BggID, arg.Name, arg.YearPublished,
		arg.MinPlayers, arg.MaxPlayers, arg.MinPlaytime, arg.MaxPlaytime, arg.MinAge,
		arg.RatingAvg, arg.RatingGeek, arg.RatingCount, arg.WeightAvg, arg.WeightCount,
		arg.Url, arg.Image,
	)
	return err
}

const getGame = `
SELECT bgg_id, name, year_published,
    min_players, max_players, min_playtime, max_playtime, min_age,
    rating_avg, rating_geek, rating_count, weight_avg, weight_count,
    url, image
FROM games WHERE bgg_id = ?
`

func (q *Queries) GetGame(ctx context.Context, bggID int64) (Game, error) {
	row := q.db.QueryRowContext(ctx, getGame, bggID)
	var g Game
	err := row.Scan(
		&g.BggID, &g.Name, &g.YearPublished,
		&g.MinPlayers, &g.MaxPlayers, &g.MinPlaytime, &g.MaxPlaytime, &g.MinAge,
		&g.RatingAvg, &g.RatingGeek, &g.RatingCount, &g.WeightAvg, &g.WeightCount,
		&g.Url, &g.Image,
	)
	return g, err
}

type Rank struct {
	BggID  int64
	Domain string
	Rank   sql.NullInt64
}

const deleteRanks = `DELETE FROM ranks WHERE bgg_id = ?`

func (q *Queries) DeleteRanks(ctx context.Context, bggID int64) error {
	_, err := q.db.ExecContext(ctx, deleteRanks, bggID)
	return err
}

const createRank = `INSERT INTO ranks (bgg_id, domain, rank) VALUES (?, ?, ?)`

func (q *Queries) CreateRank(ctx context.Context, arg Rank) error {
	_, err := q.db.ExecContext(ctx, createRank, arg.BggID, arg.Domain, arg.Rank)
	return err
}

const getRanks = `SELECT bgg_id, domain, rank FROM ranks WHERE bgg_id = ? ORDER BY domain`

func (q *Queries) GetRanks(ctx context.Context, bggID int64) ([]Rank, error) {
	rows, err := q.db.QueryContext(ctx, getRanks, bggID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rank
	for rows.Next() {
		var r Rank
		err = rows.Scan(&r.BggID, &r.Domain, &r.Rank)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type CreateDictEntryParams struct {
	Name    string
	NormKey string
}

const createMechanic = `
INSERT INTO mechanics (name, norm_key) VALUES (?, ?)
ON CONFLICT (norm_key) DO NOTHING
`

func (q *Queries) CreateMechanic(ctx context.Context, arg CreateDictEntryParams) error {
	_, err := q.db.ExecContext(ctx, createMechanic, arg.Name, arg.NormKey)
	return err
}

const getMechanicId = `SELECT id FROM mechanics WHERE norm_key = ?`

func (q *Queries) GetMechanicId(ctx context.Context, normKey string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, getMechanicId, normKey).Scan(&id)
	return id, err
}

const createCategory = `
INSERT INTO categories (name, norm_key) VALUES (?, ?)
ON CONFLICT (norm_key) DO NOTHING
`

func (q *Queries) CreateCategory(ctx context.Context, arg CreateDictEntryParams) error {
	_, err := q.db.ExecContext(ctx, createCategory, arg.Name, arg.NormKey)
	return err
}

const getCategoryId = `SELECT id FROM categories WHERE norm_key = ?`

func (q *Queries) GetCategoryId(ctx context.Context, normKey string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, getCategoryId, normKey).Scan(&id)
	return id, err
}

const createDesigner = `
INSERT INTO designers (name, norm_key) VALUES (?, ?)
ON CONFLICT (norm_key) DO NOTHING
`

func (q *Queries) CreateDesigner(ctx context.Context, arg CreateDictEntryParams) error {
	_, err := q.db.ExecContext(ctx, createDesigner, arg.Name, arg.NormKey)
	return err
}

const getDesignerId = `SELECT id FROM designers WHERE norm_key = ?`

func (q *Queries) GetDesignerId(ctx context.Context, normKey string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, getDesignerId, normKey).Scan(&id)
	return id, err
}

const createPublisher = `
INSERT INTO publishers (name, norm_key) VALUES (?, ?)
ON CONFLICT (norm_key) DO NOTHING
`

func (q *Queries) CreatePublisher(ctx context.Context, arg CreateDictEntryParams) error {
	_, err := q.db.ExecContext(ctx, createPublisher, arg.Name, arg.NormKey)
	return err
}

const getPublisherId = `SELECT id FROM publishers WHERE norm_key = ?`

func (q *Queries) GetPublisherId(ctx context.Context, normKey string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, getPublisherId, normKey).Scan(&id)
	return id, err
}

type CreateGameLinkParams struct {
	BggID  int64
	DictID int64
}

const deleteGameMechanics = `DELETE FROM game_mechanics WHERE bgg_id = ?`

func (q *Queries) DeleteGameMechanics(ctx context.Context, bggID int64) error {
	_, err := q.db.ExecContext(ctx, deleteGameMechanics, bggID)
	return err
}

const createGameMechanic = `
INSERT INTO game_mechanics (bgg_id, mechanic_id) VALUES (?, ?)
ON CONFLICT DO NOTHING
`

func (q *Queries) CreateGameMechanic(ctx context.Context, arg CreateGameLinkParams) error {
	_, err := q.db.ExecContext(ctx, createGameMechanic, arg.BggID, arg.DictID)
	return err
}

const deleteGameCategories = `DELETE FROM game_categories WHERE bgg_id = ?`

func (q *Queries) DeleteGameCategories(ctx context.Context, bggID int64) error {
	_, err := q.db.ExecContext(ctx, deleteGameCategories, bggID)
	return err
}

const createGameCategory = `
INSERT INTO game_categories (bgg_id, category_id) VALUES (?, ?)
ON CONFLICT DO NOTHING
`

func (q *Queries) CreateGameCategory(ctx context.Context, arg CreateGameLinkParams) error {
	_, err := q.db.ExecContext(ctx, createGameCategory, arg.BggID, arg.DictID)
	return err
}

const deleteGameDesigners = `DELETE FROM game_designers WHERE bgg_id = ?`

func (q *Queries) DeleteGameDesigners(ctx context.Context, bggID int64) error {
	_, err := q.db.ExecContext(ctx, deleteGameDesigners, bggID)
	return err
}

const createGameDesigner = `
INSERT INTO game_designers (bgg_id, designer_id) VALUES (?, ?)
ON CONFLICT DO NOTHING
`

func (q *Queries) CreateGameDesigner(ctx context.Context, arg CreateGameLinkParams) error {
	_, err := q.db.ExecContext(ctx, createGameDesigner, arg.BggID, arg.DictID)
	return err
}

const deleteGamePublishers = `DELETE FROM game_publishers WHERE bgg_id = ?`

func (q *Queries) DeleteGamePublishers(ctx context.Context, bggID int64) error {
	_, err := q.db.ExecContext(ctx, deleteGamePublishers, bggID)
	return err
}

const createGamePublisher = `
INSERT INTO game_publishers (bgg_id, publisher_id) VALUES (?, ?)
ON CONFLICT DO NOTHING
`

func (q *Queries) CreateGamePublisher(ctx context.Context, arg CreateGameLinkParams) error {
	_, err := q.db.ExecContext(ctx, createGamePublisher, arg.BggID, arg.DictID)
	return err
}

const getGameMechanicNames = `
SELECT m.name FROM game_mechanics gm
JOIN mechanics m ON m.id = gm.mechanic_id
WHERE gm.bgg_id = ?
ORDER BY m.name
`

func (q *Queries) GetGameMechanicNames(ctx context.Context, bggID int64) ([]string, error) {
	return q.stringList(ctx, getGameMechanicNames, bggID)
}

const getGameCategoryNames = `
SELECT c.name FROM game_categories gc
JOIN categories c ON c.id = gc.category_id
WHERE gc.bgg_id = ?
ORDER BY c.name
`

func (q *Queries) GetGameCategoryNames(ctx context.Context, bggID int64) ([]string, error) {
	return q.stringList(ctx, getGameCategoryNames, bggID)
}

func (q *Queries) stringList(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		err = rows.Scan(&s)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const getCheckpoint = `SELECT value FROM checkpoints WHERE name = ?`

func (q *Queries) GetCheckpoint(ctx context.Context, name string) (int64, error) {
	var value int64
	err := q.db.QueryRowContext(ctx, getCheckpoint, name).Scan(&value)
	return value, err
}

const advanceCheckpoint = `
INSERT INTO checkpoints (name, value) VALUES (?, ?)
ON CONFLICT (name) DO UPDATE SET value = excluded.value
WHERE excluded.value > checkpoints.value
`

// AdvanceCheckpoint is monotonic: a stale value never rolls the marker back.
func (q *Queries) AdvanceCheckpoint(ctx context.Context, name string, value int64) error {
	_, err := q.db.ExecContext(ctx, advanceCheckpoint, name, value)
	return err
}

const clearCheckpoint = `DELETE FROM checkpoints WHERE name = ?`

func (q *Queries) ClearCheckpoint(ctx context.Context, name string) error {
	_, err := q.db.ExecContext(ctx, clearCheckpoint, name)
	return err
}

type Description struct {
	Name        string
	Description sql.NullString
	Url         sql.NullString
}

const upsertMechanicDescription = `
INSERT INTO mechanic_descriptions (mechanic, description, url) VALUES (?, ?, ?)
ON CONFLICT (mechanic) DO UPDATE SET
    description = excluded.description,
    url         = excluded.url
`

func (q *Queries) UpsertMechanicDescription(ctx context.Context, arg Description) error {
	_, err := q.db.ExecContext(ctx, upsertMechanicDescription, arg.Name, arg.Description, arg.Url)
	return err
}

const getMechanicDescription = `
SELECT mechanic, description, url FROM mechanic_descriptions WHERE mechanic = ?
`

func (q *Queries) GetMechanicDescription(ctx context.Context, mechanic string) (Description, error) {
	var d Description
	err := q.db.QueryRowContext(ctx, getMechanicDescription, mechanic).
		Scan(&d.Name, &d.Description, &d.Url)
	return d, err
}

const upsertCategoryDescription = `
INSERT INTO category_descriptions (category, description, url) VALUES (?, ?, ?)
ON CONFLICT (category) DO UPDATE SET
    description = excluded.description,
    url         = excluded.url
`

func (q *Queries) UpsertCategoryDescription(ctx context.Context, arg Description) error {
	_, err := q.db.ExecContext(ctx, upsertCategoryDescription, arg.Name, arg.Description, arg.Url)
	return err
}
