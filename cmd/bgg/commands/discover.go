package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/oro1081111/bgg-oro-analysis/lib/osutil"
	"github.com/oro1081111/bgg-oro-analysis/lib/scrapers/bgg"
	"github.com/oro1081111/bgg-oro-analysis/services/harvest"
	"github.com/oro1081111/bgg-oro-analysis/services/harvest/db"

	"github.com/spf13/cobra"
)

var (
	discoverClient    clientFlags
	discoverFrom      *int64
	discoverTo        *int64
	discoverEvery     *int64
	discoverEmptyStop *int64
	discoverOut       *string
	discoverDb        *string
	discoverReset     *bool
)

func init() {
	discoverClient = registerClientFlags(discoverCmd)
	discoverFrom = discoverCmd.Flags().Int64("from", 1, "First browse page, inclusive.")
	discoverTo = discoverCmd.Flags().Int64("to", 1500, "Last browse page, inclusive.")
	discoverEvery = discoverCmd.Flags().Int64("every", 10, "Checkpoint the crawl every N pages (0 disables).")
	discoverEmptyStop = discoverCmd.Flags().Int64("empty-stop", 3,
		"Stop after N consecutive pages with no new identifiers (0 never stops early).")
	discoverOut = discoverCmd.Flags().String("out", "ids.txt", "The identifier file to write.")
	discoverDb = discoverCmd.Flags().String("db", "bgg.db", "The database holding crawl checkpoints.")
	discoverReset = discoverCmd.Flags().Bool("reset", false, "Forget the crawl checkpoint and start over from --from.")
	rootCmd.AddCommand(discoverCmd)
}

var discoverCmd = &cobra.Command{
	Use:   "discover [--from <page>] [--to <page>] [--out <ids.txt>]",
	Short: "Pages through the browse listing and collects game identifiers.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()

		client, cleanup := newClient(cmd, discoverClient, cfg)
		defer cleanup()

		database, err := db.Open(resolveString(cmd, "db", *discoverDb, cfg.Database))
		if err != nil {
			osutil.Fatal("failed to open database", err)
		}
		defer database.Close()
		store := harvest.NewStore(database)

		if *discoverReset {
			err = store.Clear(ctx, harvest.CheckpointBrowsePage)
			if err != nil {
				osutil.Fatal("failed to clear crawl checkpoint", err)
			}
		}

		// reruns extend the artifact instead of rediscovering it
		seen := map[int64]bool{}
		existing, err := bgg.ReadIDFile(*discoverOut)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			osutil.Fatal("failed to read identifier file", err)
		}
		for _, id := range existing {
			seen[id] = true
		}

		found, derr := client.DiscoverIDs(ctx, bgg.BrowseOptions{
			StartPage:           *discoverFrom,
			EndPage:             *discoverTo,
			CheckpointEvery:     *discoverEvery,
			Checkpoint:          store.BrowseCheckpoint(),
			StopAfterEmptyPages: int(*discoverEmptyStop),
			Seen:                seen,
			// ids land in the artifact before the checkpoint covering
			// them is saved, so any crash or abort keeps what it found
			Flush: func(_ context.Context, ids []int64) error {
				return bgg.AppendIDFile(*discoverOut, ids)
			},
		})
		if derr != nil {
			osutil.Fatal("discovery aborted, rerun to resume from the last checkpoint", derr)
		}

		slog.Info("discovery finished",
			"new", len(found), "total", len(existing)+len(found), "out", *discoverOut)
	},
}
