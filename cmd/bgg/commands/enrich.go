package commands

import (
	"errors"
	"log/slog"

	"github.com/oro1081111/bgg-oro-analysis/lib/osutil"
	"github.com/oro1081111/bgg-oro-analysis/services/harvest"
	"github.com/oro1081111/bgg-oro-analysis/services/harvest/db"

	"github.com/spf13/cobra"
)

var (
	enrichDb         *string
	enrichMechanics  *string
	enrichCategories *string
)

func init() {
	enrichDb = enrichCmd.Flags().String("db", "bgg.db", "The database to merge descriptions into.")
	enrichMechanics = enrichCmd.Flags().String("mechanics", "", "A JSON file of mechanic descriptions.")
	enrichCategories = enrichCmd.Flags().String("categories", "", "A JSON file of category descriptions.")
	rootCmd.AddCommand(enrichCmd)
}

var enrichCmd = &cobra.Command{
	Use:   "enrich [--mechanics <file.json>] [--categories <file.json>]",
	Short: "Merges out-of-band mechanic and category descriptions into the database.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()

		if *enrichMechanics == "" && *enrichCategories == "" {
			osutil.Fatal("nothing to merge",
				errors.New("pass --mechanics and/or --categories"))
		}

		database, err := db.Open(resolveString(cmd, "db", *enrichDb, cfg.Database))
		if err != nil {
			osutil.Fatal("failed to open database", err)
		}
		defer database.Close()
		store := harvest.NewStore(database)

		if *enrichMechanics != "" {
			batch, err := harvest.ReadEnrichments(*enrichMechanics)
			if err != nil {
				osutil.Fatal("failed to read mechanic descriptions", err)
			}
			err = store.MergeMechanicDescriptions(ctx, batch)
			if err != nil {
				osutil.Fatal("failed to merge mechanic descriptions", err)
			}
			slog.Info("merged mechanic descriptions", "count", len(batch))
		}

		if *enrichCategories != "" {
			batch, err := harvest.ReadEnrichments(*enrichCategories)
			if err != nil {
				osutil.Fatal("failed to read category descriptions", err)
			}
			err = store.MergeCategoryDescriptions(ctx, batch)
			if err != nil {
				osutil.Fatal("failed to merge category descriptions", err)
			}
			slog.Info("merged category descriptions", "count", len(batch))
		}
	},
}
