package bgg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// The upstream detail page embeds a self-contained JSON blob in an inline
// script. Its shape is an implicit contract with the upstream site: every
// field here is optional and scalar values may arrive as strings, numbers or
// null, so the schema is permissive end to end and drift is caught by the
// golden-file tests, not by runtime panics.
const payloadAnchor = "GEEK.geekitemPreload"

// ExtractPayload locates the embedded payload by its textual anchor and
// returns the raw JSON object that follows it. Markup around the anchor is
// irrelevant, which keeps the extraction stable across cosmetic page changes.
func ExtractPayload(page []byte) ([]byte, error) {
	at := bytes.Index(page, []byte(payloadAnchor))
	if at < 0 {
		return nil, fmt.Errorf("payload anchor %q not found", payloadAnchor)
	}
	rest := page[at+len(payloadAnchor):]

	open := bytes.IndexByte(rest, '{')
	if open < 0 {
		return nil, fmt.Errorf("no object literal after payload anchor")
	}
	rest = rest[open:]

	end, err := balancedObjectEnd(rest)
	if err != nil {
		return nil, err
	}
	return rest[:end], nil
}

// balancedObjectEnd scans a JSON object literal starting at data[0] == '{'
// and returns the index one past its closing brace, honoring string literals
// and escape sequences.
func balancedObjectEnd(data []byte) (int, error) {
	depth := 0
	inString := false
	escaped := false

	for i, b := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		}
	}
	return 0, fmt.Errorf("unterminated object literal in payload")
}

// Scalar is a permissive JSON scalar: accepts a string, number, boolean or
// null and stores the textual form. The zero value means "absent".
type Scalar string

func (s *Scalar) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var str string
		err := json.Unmarshal(data, &str)
		if err != nil {
			return err
		}
		*s = Scalar(str)
		return nil
	}
	*s = Scalar(trimmed)
	return nil
}

// Int parses the scalar as an integer, reporting ok=false for absent or
// non-numeric values ("Not Ranked", "N/A", free text) instead of failing.
func (s Scalar) Int() (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(string(s)), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (s Scalar) Float() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (s Scalar) String() string {
	return string(s)
}

type RawRank struct {
	Name       Scalar `json:"veryshortprettyname"`
	PrettyName Scalar `json:"prettyname"`
	Rank       Scalar `json:"rank"`
}

type RawLink struct {
	Name Scalar `json:"name"`
}

type RawLinks struct {
	Mechanics  []RawLink `json:"boardgamemechanic"`
	Categories []RawLink `json:"boardgamecategory"`
	Designers  []RawLink `json:"boardgamedesigner"`
	Publishers []RawLink `json:"boardgamepublisher"`
}

type RawStats struct {
	Average    Scalar `json:"average"`
	BAverage   Scalar `json:"baverage"`
	UsersRated Scalar `json:"usersrated"`
	AvgWeight  Scalar `json:"avgweight"`
	NumWeights Scalar `json:"numweights"`
}

type RawItem struct {
	ObjectID      Scalar     `json:"objectid"`
	Name          Scalar     `json:"name"`
	YearPublished Scalar     `json:"yearpublished"`
	MinPlayers    Scalar     `json:"minplayers"`
	MaxPlayers    Scalar     `json:"maxplayers"`
	MinPlaytime   Scalar     `json:"minplaytime"`
	MaxPlaytime   Scalar     `json:"maxplaytime"`
	MinAge        Scalar     `json:"minage"`
	Canonical     Scalar     `json:"canonical_link"`
	ImageUrl      Scalar     `json:"imageurl"`
	Links         RawLinks   `json:"links"`
	RankInfo      []RawRank  `json:"rankinfo"`
	Stats         RawStats   `json:"stats"`
}

type rawPayload struct {
	Item RawItem `json:"item"`
}

// DecodeItem parses an extracted payload into the permissive raw schema.
func DecodeItem(raw []byte) (RawItem, error) {
	var payload rawPayload
	err := json.Unmarshal(raw, &payload)
	if err != nil {
		return RawItem{}, err
	}
	return payload.Item, nil
}
