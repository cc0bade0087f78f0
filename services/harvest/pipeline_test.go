package harvest

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/oro1081111/bgg-oro-analysis/lib/ratelimit"
	"github.com/oro1081111/bgg-oro-analysis/lib/scrapers/bgg"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

func detailPage(id int64, name string) string {
	payload := fmt.Sprintf(`{"item":{
		"objectid": "%d",
		"name": %q,
		"yearpublished": "2017",
		"links": {
			"boardgamemechanic": [{"name": "Worker Placement"}],
			"boardgamecategory": [{"name": "Economic"}]
		},
		"rankinfo": [{"veryshortprettyname": "Overall", "rank": "42"}],
		"stats": {"average": "7.5"}
	}}`, id, name)
	return `<html><head><title>` + name + `</title></head><body>
		<script>GEEK.geekitemPreload = ` + payload + `;</script>
	</body></html>`
}

func detailURL(id int64) string {
	return fmt.Sprintf("%s/boardgame/%d", bgg.DefaultBaseUrl, id)
}

func newPipeline(t testing.TB, store Store, workers int) *Pipeline {
	client, err := bgg.NewClient(bgg.ClientOptions{
		Limiter: ratelimit.NewLimiter(0, 0),
		Retry: ratelimit.RetryPolicy{
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond * 2,
			MaxRetries:      2,
		},
	})
	require.NoError(t, err)

	httpmock.ActivateNonDefault(client.Http.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	return &Pipeline{Client: client, Store: store, Workers: workers}
}

func TestIngestSkipsFailuresWithoutAborting(t *testing.T) {
	store := setupStore(t)
	pipeline := newPipeline(t, store, 1)

	httpmock.RegisterResponder("GET", detailURL(101),
		httpmock.NewStringResponder(200, detailPage(101, "First Game")))
	// 102 stays throttled past the retry ceiling
	httpmock.RegisterResponder("GET", detailURL(102),
		httpmock.NewStringResponder(429, "slow down"))
	httpmock.RegisterResponder("GET", detailURL(103),
		httpmock.NewStringResponder(200, detailPage(103, "Third Game")))

	res, err := pipeline.Ingest(context.Background(), []int64{101, 102, 103})
	require.NoError(t, err)
	require.Equal(t, 2, res.Committed)
	require.Len(t, res.Skipped, 1)
	require.EqualValues(t, 102, res.Skipped[0].ID)

	ctx := context.Background()
	_, err = store.qry.GetGame(ctx, 101)
	require.NoError(t, err)
	_, err = store.qry.GetGame(ctx, 103)
	require.NoError(t, err)
	_, err = store.qry.GetGame(ctx, 102)
	require.Error(t, err)

	// a fully processed run is checkpoint-clean
	_, ok, err := store.Checkpoint(ctx, CheckpointIngest)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIngestResumesAfterInterruption(t *testing.T) {
	ctx := context.Background()
	ids := []int64{101, 102}

	// the uninterrupted reference run
	reference := setupStore(t)
	func() {
		pipeline := newPipeline(t, reference, 1)
		httpmock.RegisterResponder("GET", detailURL(101),
			httpmock.NewStringResponder(200, detailPage(101, "First Game")))
		httpmock.RegisterResponder("GET", detailURL(102),
			httpmock.NewStringResponder(200, detailPage(102, "Second Game")))
		res, err := pipeline.Ingest(ctx, ids)
		require.NoError(t, err)
		require.Equal(t, 2, res.Committed)
	}()

	// a run that crashed after committing identifier 101: the row set and
	// the checkpoint survived, the process state did not
	resumed := setupStore(t)
	require.NoError(t, resumed.Upsert(ctx, Normalize(101, itemFromJSON(t,
		`{"item":{"objectid":"101","name":"First Game","yearpublished":"2017",
		"links":{"boardgamemechanic":[{"name":"Worker Placement"}],"boardgamecategory":[{"name":"Economic"}]},
		"rankinfo":[{"veryshortprettyname":"Overall","rank":"42"}],
		"stats":{"average":"7.5"}}}`))))
	require.NoError(t, resumed.Advance(ctx, CheckpointIngest, 0))

	pipeline := newPipeline(t, resumed, 1)
	// drop the reference run's responders: refetching 101 must not happen,
	// and would fail loudly here if it did
	httpmock.Reset()
	httpmock.RegisterResponder("GET", detailURL(102),
		httpmock.NewStringResponder(200, detailPage(102, "Second Game")))

	res, err := pipeline.Ingest(ctx, ids)
	require.NoError(t, err)
	require.Equal(t, 1, res.Committed)
	// identifier 101 was never refetched
	require.Equal(t, 1, httpmock.GetTotalCallCount())

	// final state matches the uninterrupted run
	for _, id := range ids {
		want, err := reference.qry.GetGame(ctx, id)
		require.NoError(t, err)
		got, err := resumed.qry.GetGame(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, got)

		wantRanks, err := reference.qry.GetRanks(ctx, id)
		require.NoError(t, err)
		gotRanks, err := resumed.qry.GetRanks(ctx, id)
		require.NoError(t, err)
		require.Equal(t, wantRanks, gotRanks)
	}
}

func TestIngestAuthExpiryAborts(t *testing.T) {
	store := setupStore(t)
	pipeline := newPipeline(t, store, 1)

	httpmock.RegisterResponder("GET", detailURL(201),
		httpmock.NewStringResponder(200, detailPage(201, "Fine Game")))
	httpmock.RegisterResponder("GET", detailURL(202),
		httpmock.NewStringResponder(403, "login required"))

	ctx := context.Background()
	res, err := pipeline.Ingest(ctx, []int64{201, 202, 203})
	require.ErrorIs(t, err, bgg.ErrAuthExpired)
	require.Equal(t, 1, res.Committed)

	// the checkpoint survives the abort so the run can resume at 202
	value, ok, cerr := store.Checkpoint(ctx, CheckpointIngest)
	require.NoError(t, cerr)
	require.True(t, ok)
	require.EqualValues(t, 0, value)
}

func TestIngestParseFailureIsolated(t *testing.T) {
	store := setupStore(t)
	pipeline := newPipeline(t, store, 2)

	httpmock.RegisterResponder("GET", detailURL(301),
		httpmock.NewStringResponder(200, "<html><body>no payload here</body></html>"))
	httpmock.RegisterResponder("GET", detailURL(302),
		httpmock.NewStringResponder(200, detailPage(302, "Healthy Game")))

	res, err := pipeline.Ingest(context.Background(), []int64{301, 302})
	require.NoError(t, err)
	require.Equal(t, 1, res.Committed)
	require.Len(t, res.Skipped, 1)

	var parseErr *bgg.ParseError
	require.ErrorAs(t, res.Skipped[0].Err, &parseErr)
	require.EqualValues(t, 301, parseErr.ID)
}

func TestIngestCancellationBetweenIdentifiers(t *testing.T) {
	store := setupStore(t)
	pipeline := newPipeline(t, store, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpmock.RegisterResponder("GET", detailURL(401),
		httpmock.NewStringResponder(200, detailPage(401, "Committed Anyway")))
	// 402 hangs until the run is canceled
	httpmock.RegisterResponder("GET", detailURL(402),
		func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		})

	// operator stop arrives once the first identifier has committed
	go func() {
		for {
			if _, err := store.qry.GetGame(context.Background(), 401); err == nil {
				cancel()
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	res, err := pipeline.Ingest(ctx, []int64{401, 402})
	require.ErrorIs(t, err, context.Canceled)
	// the in-flight unit completed as a whole before the loop halted
	require.Equal(t, 1, res.Committed)
	_, gerr := store.qry.GetGame(context.Background(), 401)
	require.NoError(t, gerr)

	// the checkpoint survives so a rerun picks up at 402
	value, ok, cerr := store.Checkpoint(context.Background(), CheckpointIngest)
	require.NoError(t, cerr)
	require.True(t, ok)
	require.EqualValues(t, 0, value)
}
