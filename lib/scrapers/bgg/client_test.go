package bgg

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oro1081111/bgg-oro-analysis/lib/ratelimit"
	"github.com/oro1081111/bgg-oro-analysis/lib/telemetry"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

func fastRetryPolicy() ratelimit.RetryPolicy {
	return ratelimit.RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond * 2,
		MaxRetries:      2,
	}
}

// newTestClient builds a client whose transport is intercepted by httpmock.
func newTestClient(t testing.TB, opts ClientOptions) *Client {
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewLimiter(0, 0)
	}
	if opts.Retry.MaxRetries == 0 {
		opts.Retry = fastRetryPolicy()
	}

	client, err := NewClient(opts)
	require.NoError(t, err)

	httpmock.ActivateNonDefault(client.Http.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func TestFetchPageAuthExpiredEscalates(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bgg")
	defer cleanup()

	client := newTestClient(t, ClientOptions{})
	httpmock.RegisterResponder("GET", DefaultBaseUrl+"/boardgame/174430",
		httpmock.NewStringResponder(403, "forbidden"))

	_, err := client.FetchGame(context.Background(), 174430)
	require.ErrorIs(t, err, ErrAuthExpired)
	// auth expiry is never retried
	require.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestFetchPageRetriesThrottling(t *testing.T) {
	client := newTestClient(t, ClientOptions{})

	calls := 0
	httpmock.RegisterResponder("GET", DefaultBaseUrl+"/boardgame/174430",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(429, "slow down"), nil
			}
			page := readFixture(t, "detail_174430.html")
			return httpmock.NewBytesResponse(200, page), nil
		})

	item, err := client.FetchGame(context.Background(), 174430)
	require.NoError(t, err)
	require.Equal(t, "Gloomhaven", item.Name.String())
	require.Equal(t, 3, calls)
}

func TestFetchPageRetryCeilingBecomesFailure(t *testing.T) {
	client := newTestClient(t, ClientOptions{})

	httpmock.RegisterResponder("GET", DefaultBaseUrl+"/boardgame/174430",
		httpmock.NewStringResponder(429, "slow down"))

	_, err := client.FetchGame(context.Background(), 174430)
	require.ErrorIs(t, err, ErrRateLimited)
	// MaxRetries + the initial attempt
	require.Equal(t, 3, httpmock.GetTotalCallCount())
}

func TestSessionValidity(t *testing.T) {
	now := time.Now()
	s := &Session{cookies: []SessionCookie{
		{Name: "bggusername", Value: "x", Expires: now.Add(-time.Hour).Unix()},
	}}
	require.False(t, s.Valid(now))

	s.cookies = append(s.cookies, SessionCookie{Name: "SessionID", Value: "y"})
	require.True(t, s.Valid(now))
}

func TestLoadSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	err := os.WriteFile(path, []byte(`[
		{"name": "SessionID", "value": "abc", "domain": ".boardgamegeek.com", "path": "/"}
	]`), 0o600)
	require.NoError(t, err)

	s, err := LoadSession(path)
	require.NoError(t, err)
	require.True(t, s.Valid(time.Now()))

	cookies := s.httpCookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "SessionID", cookies[0].Name)

	_, err = LoadSession(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
