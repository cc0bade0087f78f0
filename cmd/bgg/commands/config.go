package commands

import (
	"errors"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/oro1081111/bgg-oro-analysis/lib/configutil"
	"github.com/oro1081111/bgg-oro-analysis/lib/osutil"
	"github.com/oro1081111/bgg-oro-analysis/lib/ratelimit"
	"github.com/oro1081111/bgg-oro-analysis/lib/scrapers/bgg"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"
)

// Config carries the politeness and session defaults for every command.
// Flags take priority over it when set explicitly.
type Config struct {
	Database   string `json:"database"`
	Cookies    string `json:"cookies"`
	IntervalMs int64  `json:"interval_ms"`
	JitterMs   int64  `json:"jitter_ms"`
	Retries    uint64 `json:"retries"`
	Workers    int    `json:"workers"`
	// directory for the page snapshot cache; empty disables caching
	CacheDir      string `json:"cache_dir"`
	CacheTtlHours int64  `json:"cache_ttl_hours"`
}

func loadConfig() Config {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if errors.Is(err, os.ErrNotExist) {
		return Config{}
	}
	if err != nil {
		osutil.Fatal("failed to read config", err)
	}
	return cfg
}

// flag wins when the operator passed it, otherwise a non-zero config
// value replaces the built-in default
func resolveString(cmd *cobra.Command, name string, flag, config string) string {
	if cmd.Flags().Changed(name) || config == "" {
		return flag
	}
	return config
}

func resolveInt64(cmd *cobra.Command, name string, flag, config int64) int64 {
	if cmd.Flags().Changed(name) || config == 0 {
		return flag
	}
	return config
}

type clientFlags struct {
	cookies  *string
	interval *int64
	jitter   *int64
	retries  *int64
	cacheDir *string
}

func registerClientFlags(cmd *cobra.Command) clientFlags {
	return clientFlags{
		cookies:  cmd.Flags().String("cookies", "", "Path to the exported session cookie file."),
		interval: cmd.Flags().Int64("interval", 2000, "Minimum milliseconds between requests."),
		jitter:   cmd.Flags().Int64("jitter", 500, "Random extra delay per request, in milliseconds."),
		retries:  cmd.Flags().Int64("retries", 4, "Retry attempts for transient failures."),
		cacheDir: cmd.Flags().String("cache-dir", "", "Page snapshot cache directory (empty disables caching)."),
	}
}

// newClient assembles the upstream client from flags layered over
// config.json5. The returned cleanup closes the page cache, if any.
func newClient(cmd *cobra.Command, f clientFlags, cfg Config) (*bgg.Client, func()) {
	cleanup := func() {}

	var session *bgg.Session
	cookies := resolveString(cmd, "cookies", *f.cookies, cfg.Cookies)
	if cookies != "" {
		var err error
		session, err = bgg.LoadSession(cookies)
		if err != nil {
			osutil.Fatal("failed to load session cookies", err)
		}
		if !session.Valid(time.Now()) {
			osutil.Fatal("session cookies have expired", errors.New("re-export them from a logged-in browser"))
		}
	} else {
		slog.Warn("no session cookies configured, fetching anonymously")
	}

	interval := resolveInt64(cmd, "interval", *f.interval, cfg.IntervalMs)
	jitter := resolveInt64(cmd, "jitter", *f.jitter, cfg.JitterMs)
	retries := resolveInt64(cmd, "retries", *f.retries, int64(cfg.Retries))

	retry := ratelimit.DefaultRetryPolicy()
	retry.MaxRetries = uint64(retries)

	var cache *bgg.PageCache
	cacheDir := resolveString(cmd, "cache-dir", *f.cacheDir, cfg.CacheDir)
	if cacheDir != "" {
		cacheDb, err := badger.Open(badger.DefaultOptions(cacheDir).WithLogger(nil))
		if err != nil {
			osutil.Fatal("failed to open page cache", err)
		}
		cleanup = func() { cacheDb.Close() }

		ttl := time.Duration(cfg.CacheTtlHours) * time.Hour
		if ttl <= 0 {
			ttl = time.Hour * 24
		}
		baseUrl, err := url.Parse(bgg.DefaultBaseUrl)
		if err != nil {
			osutil.Fatal("failed to parse base url", err)
		}
		cache = bgg.NewPageCache(cacheDb, baseUrl, ttl)
	}

	client, err := bgg.NewClient(bgg.ClientOptions{
		Session: session,
		Limiter: ratelimit.NewLimiter(
			time.Duration(interval)*time.Millisecond,
			time.Duration(jitter)*time.Millisecond,
		),
		Retry: retry,
		Cache: cache,
	})
	if err != nil {
		cleanup()
		osutil.Fatal("failed to initialize client", err)
	}
	return client, cleanup
}
