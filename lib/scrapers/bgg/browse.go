package bgg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/oro1081111/bgg-oro-analysis/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PageCheckpoint persists browse progress so a crashed discovery run resumes
// at the next unprocessed page instead of page 1.
type PageCheckpoint interface {
	// returns ok=false when no checkpoint has been written yet
	LastPage(ctx context.Context) (page int64, ok bool, err error)
	// called only after every id on the page has been collected
	SavePage(ctx context.Context, page int64) error
}

type BrowseOptions struct {
	// inclusive page range
	StartPage int64
	EndPage   int64

	// checkpoint every N pages; 0 disables intermediate checkpoints
	CheckpointEvery int64
	Checkpoint      PageCheckpoint

	// stop after this many consecutive pages yielding zero new
	// identifiers (end-of-results heuristic); 0 never stops early
	StopAfterEmptyPages int

	// identifiers already known from previous runs; discovered ids are
	// deduplicated against it and it is mutated in place
	Seen map[int64]bool

	// receives every newly discovered identifier before the checkpoint
	// covering its page is saved, and again before DiscoverIDs returns.
	// The checkpoint is never advanced past identifiers that have not
	// been handed off, so a hard crash cannot skip their pages.
	Flush func(ctx context.Context, ids []int64) error
}

// detail links look like /boardgame/174430/gloomhaven; the expansion and
// accessory variants are deliberately not matched
var detailLinkRegex = regexp.MustCompile(`^/boardgame/(\d+)(?:/|$)`)

// DiscoverIDs pages through the browse listing and returns the ordered,
// deduplicated identifiers it finds. The selector tolerates minor markup
// changes: any anchor whose href looks like a detail link counts.
func (c *Client) DiscoverIDs(ctx context.Context, opts BrowseOptions) ([]int64, error) {
	ctx, span := tracer.Start(ctx, "client:DiscoverIDs")
	defer span.End()

	if opts.Seen == nil {
		opts.Seen = map[int64]bool{}
	}

	start := opts.StartPage
	if opts.Checkpoint != nil {
		last, ok, err := opts.Checkpoint.LastPage(ctx)
		if err != nil {
			return nil, err
		}
		if ok && last >= start {
			slog.InfoContext(ctx, "resuming discovery from checkpoint", "last_page", last)
			start = last + 1
		}
	}

	var ids []int64
	flushed := 0
	flush := func() error {
		if opts.Flush == nil || flushed == len(ids) {
			return nil
		}
		err := opts.Flush(ctx, ids[flushed:])
		if err != nil {
			return fmt.Errorf("flush discovered ids: %w", err)
		}
		flushed = len(ids)
		return nil
	}
	emptyStreak := 0

	for page := start; page <= opts.EndPage; page++ {
		if ctx.Err() != nil {
			if err := flush(); err != nil {
				slog.WarnContext(ctx, "failed to flush discovered ids", "err", err)
			}
			return ids, ctx.Err()
		}

		pageIds, err := c.browsePage(ctx, page)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch browse page")
			if ferr := flush(); ferr != nil {
				slog.WarnContext(ctx, "failed to flush discovered ids", "err", ferr)
			}
			return ids, fmt.Errorf("browse page %d: %w", page, err)
		}

		newOnPage := 0
		for _, id := range pageIds {
			if opts.Seen[id] {
				continue
			}
			opts.Seen[id] = true
			ids = append(ids, id)
			newOnPage++
		}
		slog.InfoContext(ctx, "discovered browse page",
			"page", page, "ids", len(pageIds), "new", newOnPage)

		if newOnPage == 0 {
			emptyStreak++
			if opts.StopAfterEmptyPages > 0 && emptyStreak >= opts.StopAfterEmptyPages {
				slog.InfoContext(ctx, "stopping discovery early",
					"page", page, "consecutive_empty_pages", emptyStreak)
				span.AddEvent("end-of-results heuristic triggered",
					trace.WithAttributes(attribute.Int64("page", page)))
				break
			}
		} else {
			emptyStreak = 0
		}

		if opts.Checkpoint != nil && opts.CheckpointEvery > 0 &&
			(page-opts.StartPage+1)%opts.CheckpointEvery == 0 {
			// the ids must be durable before the checkpoint claims
			// their pages: a rerun resumes past them and would never
			// see them again
			err = flush()
			if err != nil {
				return ids, err
			}
			err = opts.Checkpoint.SavePage(ctx, page)
			if err != nil {
				return ids, err
			}
		}
	}

	return ids, flush()
}

func (c *Client) browsePage(ctx context.Context, page int64) ([]int64, error) {
	endpoint := fmt.Sprintf("/browse/boardgame/page/%d", page)
	body, err := c.fetchPage(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}

	var ids []int64
	seenOnPage := map[int64]bool{}
	for _, anchor := range htmlutil.GetAnchors(ctx, doc.Find("a[href]")) {
		groups := detailLinkRegex.FindStringSubmatch(anchor.Href)
		if len(groups) < 2 {
			continue
		}
		id, err := strconv.ParseInt(groups[1], 10, 64)
		if err != nil || seenOnPage[id] {
			continue
		}
		seenOnPage[id] = true
		ids = append(ids, id)
	}

	return ids, nil
}
