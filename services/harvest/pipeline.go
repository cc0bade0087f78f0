package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oro1081111/bgg-oro-analysis/lib/scrapers/bgg"

	"golang.org/x/sync/errgroup"
)

// Pipeline drives discover → fetch → normalize → commit for a run. Fetches
// may fan out across a bounded worker pool sharing one rate-limit budget;
// commits always go through the single-writer Store in input order, so the
// ingest checkpoint stays a contiguous prefix of the identifier list.
type Pipeline struct {
	Client *bgg.Client
	Store  Store
	// fetch concurrency; values below 1 mean sequential
	Workers int
}

type Skipped struct {
	ID  int64
	Err error
}

type Result struct {
	Committed int
	Skipped   []Skipped
}

// LogSummary reports skipped identifiers distinctly from a hard abort.
// Per-identifier failures never affect the exit code.
func (r Result) LogSummary(ctx context.Context) {
	slog.InfoContext(ctx, "ingest finished",
		"committed", r.Committed, "skipped", len(r.Skipped))
	for _, s := range r.Skipped {
		slog.WarnContext(ctx, "identifier skipped", "id", s.ID, "err", s.Err)
	}
}

type fetchSlot struct {
	item bgg.RawItem
	err  error
	done chan struct{}
}

// Ingest processes the identifier list, resuming after the last checkpointed
// position. Identifier-scoped failures are recorded and skipped; auth expiry
// and storage failures abort the run with the checkpoint preserved.
func (p *Pipeline) Ingest(ctx context.Context, ids []int64) (Result, error) {
	var res Result

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}

	start := 0
	last, ok, err := p.Store.Checkpoint(ctx, CheckpointIngest)
	if err != nil {
		return res, err
	}
	if ok {
		start = int(last) + 1
		slog.InfoContext(ctx, "resuming ingest from checkpoint",
			"last_index", last, "remaining", len(ids)-start)
	}
	if start >= len(ids) {
		slog.InfoContext(ctx, "nothing to ingest", "ids", len(ids))
		return res, p.Store.Clear(ctx, CheckpointIngest)
	}

	slots := make([]*fetchSlot, len(ids))
	for i := start; i < len(ids); i++ {
		slots[i] = &fetchSlot{done: make(chan struct{})}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	go func() {
		for i := start; i < len(ids); i++ {
			if gctx.Err() != nil {
				for j := i; j < len(ids); j++ {
					slots[j].err = gctx.Err()
					close(slots[j].done)
				}
				return
			}
			i := i
			g.Go(func() error {
				defer close(slots[i].done)
				slots[i].item, slots[i].err = p.Client.FetchGame(gctx, ids[i])
				if errors.Is(slots[i].err, bgg.ErrAuthExpired) {
					// cancels gctx so queued fetches stop early
					return slots[i].err
				}
				return nil
			})
		}
	}()
	defer g.Wait()

	for i := start; i < len(ids); i++ {
		// cancellation is honored between identifiers only: an
		// in-flight commit always completes as a whole unit
		if err := ctx.Err(); err != nil {
			return res, err
		}
		<-slots[i].done

		id := ids[i]
		if ferr := slots[i].err; ferr != nil {
			if errors.Is(ferr, bgg.ErrAuthExpired) {
				return res, fmt.Errorf("game %d: %w", id, ferr)
			}
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if errors.Is(ferr, context.Canceled) {
				// the pool canceled this fetch because another
				// worker hit a run-scoped failure; surface that
				// failure, not the cancellation
				if gerr := g.Wait(); gerr != nil {
					return res, gerr
				}
				return res, ferr
			}
			slog.WarnContext(ctx, "skipping identifier", "id", id, "err", ferr)
			res.Skipped = append(res.Skipped, Skipped{ID: id, Err: ferr})
		} else {
			rec := Normalize(id, slots[i].item)
			err = p.Store.Upsert(ctx, rec)
			if err != nil {
				return res, err
			}
			res.Committed++
			slog.DebugContext(ctx, "committed", "id", id, "index", i)
		}

		// strictly after the commit: a crash right here only costs a
		// reprocess of this one identifier
		err = p.Store.Advance(ctx, CheckpointIngest, int64(i))
		if err != nil {
			return res, err
		}
	}

	// a fully committed run leaves no checkpoint behind
	return res, p.Store.Clear(ctx, CheckpointIngest)
}
