package commands

import (
	"errors"
	"log/slog"

	"github.com/oro1081111/bgg-oro-analysis/lib/osutil"
	"github.com/oro1081111/bgg-oro-analysis/lib/scrapers/bgg"
	"github.com/oro1081111/bgg-oro-analysis/services/harvest"
	"github.com/oro1081111/bgg-oro-analysis/services/harvest/db"

	"github.com/spf13/cobra"
)

var (
	ingestClient  clientFlags
	ingestIds     *string
	ingestFrom    *int64
	ingestTo      *int64
	ingestDb      *string
	ingestWorkers *int64
)

func init() {
	ingestClient = registerClientFlags(ingestCmd)
	ingestIds = ingestCmd.Flags().String("ids", "", "The identifier file produced by discover.")
	ingestFrom = ingestCmd.Flags().Int64("from", 0, "First identifier of an explicit range, inclusive.")
	ingestTo = ingestCmd.Flags().Int64("to", 0, "Last identifier of an explicit range, inclusive.")
	ingestDb = ingestCmd.Flags().String("db", "bgg.db", "The database to write games into.")
	ingestWorkers = ingestCmd.Flags().Int64("workers", 1, "Concurrent page fetches (commits stay sequential).")
	rootCmd.AddCommand(ingestCmd)
}

func ingestList() []int64 {
	if *ingestIds != "" {
		ids, err := bgg.ReadIDFile(*ingestIds)
		if err != nil {
			osutil.Fatal("failed to read identifier file", err)
		}
		return ids
	}
	if *ingestFrom > 0 && *ingestTo >= *ingestFrom {
		ids := make([]int64, 0, *ingestTo-*ingestFrom+1)
		for id := *ingestFrom; id <= *ingestTo; id++ {
			ids = append(ids, id)
		}
		return ids
	}
	osutil.Fatal("no identifiers to ingest",
		errors.New("pass --ids <file> or an explicit --from/--to range"))
	return nil
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [--ids <ids.txt>] [--db <path/to/bgg.db>]",
	Short: "Fetches game pages and commits normalized rows to the database.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()

		ids := ingestList()
		client, cleanup := newClient(cmd, ingestClient, cfg)
		defer cleanup()

		database, err := db.Open(resolveString(cmd, "db", *ingestDb, cfg.Database))
		if err != nil {
			osutil.Fatal("failed to open database", err)
		}
		defer database.Close()

		pipeline := harvest.Pipeline{
			Client:  client,
			Store:   harvest.NewStore(database),
			Workers: int(resolveInt64(cmd, "workers", *ingestWorkers, int64(cfg.Workers))),
		}

		slog.Info("starting ingest", "ids", len(ids), "workers", pipeline.Workers)
		res, err := pipeline.Ingest(ctx, ids)
		res.LogSummary(ctx)
		if err != nil {
			// the checkpoint survived, rerunning picks up where this
			// run stopped
			osutil.Fatal("ingest aborted", err)
		}
	},
}
