package main

import (
	"context"

	"github.com/oro1081111/bgg-oro-analysis/cmd/bgg/commands"
	"github.com/oro1081111/bgg-oro-analysis/lib/osutil"
	"github.com/oro1081111/bgg-oro-analysis/lib/telemetry"
)

func main() {
	ctx := osutil.SignalContext()

	t, err := telemetry.SetupFromEnv(ctx, "bgg")
	if err != nil {
		osutil.Fatal("failed to setup telemetry", err)
	}
	defer t.Shutdown(context.Background())

	commands.ExecuteContext(ctx)
}
