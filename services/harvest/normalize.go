package harvest

import (
	"database/sql"
	"strconv"

	"github.com/oro1081111/bgg-oro-analysis/lib/scrapers/bgg"
	"github.com/oro1081111/bgg-oro-analysis/lib/textutil"
	"github.com/oro1081111/bgg-oro-analysis/services/harvest/db"
)

// DomainOverall is the reserved domain token for the root ranking. Every
// other rank entry is a thematic subdomain keyed by its normalized name.
const DomainOverall = "overall"

// Record is the fully-normalized row set for one identifier. It is a
// transient in-memory value: only the Store writes it anywhere.
type Record struct {
	Game  db.Game
	Ranks []db.Rank

	// cleaned display names referencing dictionary natural keys
	Mechanics  []string
	Categories []string
	Designers  []string
	Publishers []string
}

func nullInt(s bgg.Scalar) sql.NullInt64 {
	v, ok := s.Int()
	return sql.NullInt64{Int64: v, Valid: ok}
}

func nullFloat(s bgg.Scalar) sql.NullFloat64 {
	v, ok := s.Float()
	return sql.NullFloat64{Float64: v, Valid: ok}
}

func nullString(s bgg.Scalar) sql.NullString {
	return sql.NullString{String: s.String(), Valid: s.String() != ""}
}

// Normalize converts a raw payload into the relational row set for `id`.
// It never fails: every missing or malformed field maps to an explicit NULL
// default, and malformed rank or link entries are dropped individually.
// The caller's identifier is authoritative over whatever the payload claims.
func Normalize(id int64, item bgg.RawItem) Record {
	rec := Record{
		Game: db.Game{
			BggID:         id,
			Name:          textutil.CleanName(item.Name.String()),
			YearPublished: nullInt(item.YearPublished),
			MinPlayers:    nullInt(item.MinPlayers),
			MaxPlayers:    nullInt(item.MaxPlayers),
			MinPlaytime:   nullInt(item.MinPlaytime),
			MaxPlaytime:   nullInt(item.MaxPlaytime),
			MinAge:        nullInt(item.MinAge),
			RatingAvg:     nullFloat(item.Stats.Average),
			RatingGeek:    nullFloat(item.Stats.BAverage),
			RatingCount:   nullInt(item.Stats.UsersRated),
			WeightAvg:     nullFloat(item.Stats.AvgWeight),
			WeightCount:   nullInt(item.Stats.NumWeights),
			Url:           nullString(item.Canonical),
			Image:         nullString(item.ImageUrl),
		},
		Ranks:      normalizeRanks(id, item.RankInfo),
		Mechanics:  dictNames(item.Links.Mechanics),
		Categories: dictNames(item.Links.Categories),
		Designers:  dictNames(item.Links.Designers),
		Publishers: dictNames(item.Links.Publishers),
	}
	return rec
}

func normalizeRanks(id int64, rankinfo []bgg.RawRank) []db.Rank {
	var ranks []db.Rank
	seen := map[string]bool{}
	hasOverall := false

	for _, r := range rankinfo {
		name := r.Name.String()
		if name == "" {
			name = r.PrettyName.String()
		}
		domain := textutil.NormalizeKey(name)
		if domain == "" || seen[domain] {
			continue
		}
		if domain == DomainOverall {
			hasOverall = true
		}
		seen[domain] = true
		ranks = append(ranks, db.Rank{
			BggID:  id,
			Domain: domain,
			Rank:   nullInt(r.Rank),
		})
	}

	// every game row carries exactly one overall rank row, unranked games
	// included
	if !hasOverall {
		ranks = append([]db.Rank{{BggID: id, Domain: DomainOverall}}, ranks...)
	}
	return ranks
}

func dictNames(links []bgg.RawLink) []string {
	var names []string
	seen := map[string]bool{}
	for _, l := range links {
		name := textutil.CleanName(l.Name.String())
		key := textutil.NormalizeKey(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
	}
	return names
}

// Subdomains lists the non-overall rank domains of a record.
func (r Record) Subdomains() []string {
	var out []string
	for _, rank := range r.Ranks {
		if rank.Domain == DomainOverall {
			continue
		}
		out = append(out, rank.Domain)
	}
	return out
}

// YearLabel is the display mapping used by downstream consumers: upstream
// stores nonpositive years for "unknown/prehistoric" and those render as
// "<0". The stored value itself is never rewritten.
func YearLabel(year sql.NullInt64) string {
	if !year.Valid {
		return ""
	}
	if year.Int64 <= 0 {
		return "<0"
	}
	return strconv.FormatInt(year.Int64, 10)
}
