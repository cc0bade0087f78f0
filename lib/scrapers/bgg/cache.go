package bgg

import (
	"net/url"
	"time"

	"github.com/PuerkitoBio/purell"
	"github.com/dgraph-io/badger/v4"
)

var errPageNotCached = badger.ErrKeyNotFound

// PageCache keeps raw detail-page snapshots so that re-runs over an already
// discovered range skip the network entirely. Entries expire via badger TTLs.
type PageCache struct {
	db      *badger.DB
	baseUrl *url.URL
	ttl     time.Duration
}

func NewPageCache(db *badger.DB, baseUrl *url.URL, ttl time.Duration) *PageCache {
	return &PageCache{db: db, baseUrl: baseUrl, ttl: ttl}
}

func (c *PageCache) key(endpoint string) (string, error) {
	full, err := c.baseUrl.Parse(endpoint)
	if err != nil {
		return "", err
	}
	normalized := purell.NormalizeURL(
		full,
		purell.FlagsSafe|
			purell.FlagsUsuallySafeNonGreedy|
			purell.FlagRemoveFragment|
			purell.FlagSortQuery,
	)
	return normalized, nil
}

func (c *PageCache) get(endpoint string) ([]byte, error) {
	key, err := c.key(endpoint)
	if err != nil {
		return nil, err
	}

	tx := c.db.NewTransaction(false)
	defer tx.Discard()

	item, err := tx.Get([]byte(key))
	if err != nil {
		// expired entries surface as ErrKeyNotFound
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (c *PageCache) set(endpoint string, page []byte) error {
	key, err := c.key(endpoint)
	if err != nil {
		return err
	}

	tx := c.db.NewTransaction(true)
	defer tx.Discard()

	entry := badger.NewEntry([]byte(key), page)
	if c.ttl > 0 {
		entry = entry.WithTTL(c.ttl)
	}
	err = tx.SetEntry(entry)
	if err != nil {
		return err
	}
	return tx.Commit()
}
