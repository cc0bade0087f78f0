package bgg

import (
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/oro1081111/bgg-oro-analysis/lib/ratelimit"
	"github.com/oro1081111/bgg-oro-analysis/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrapers/bgg")

const DefaultBaseUrl = "https://boardgamegeek.com"

// Client wraps every network call against the catalog site behind one shared
// rate-limit budget and one read-only session. Safe to share between fetch
// workers.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	limiter *ratelimit.Limiter
	retry   ratelimit.RetryPolicy
	cache   *PageCache
}

type ClientOptions struct {
	// defaults to DefaultBaseUrl
	BaseUrl string
	// optional: anonymous fetching works for public pages, but the
	// upstream serves richer payloads (and fewer bot walls) to sessions
	Session *Session
	// required, shared across all workers of a run
	Limiter *ratelimit.Limiter
	Retry   ratelimit.RetryPolicy
	// optional page snapshot cache
	Cache *PageCache
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if opts.Limiter == nil {
		return nil, fmt.Errorf("a shared rate limiter is required")
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	if opts.Session != nil {
		client.SetCookies(opts.Session.httpCookies())
	}

	telemetry.InstrumentResty(client, "scrapers/bgg/http")

	c := &Client{
		BaseUrl: baseUrl,
		Http:    client,
		limiter: opts.Limiter,
		retry:   opts.Retry,
		cache:   opts.Cache,
	}
	return c, nil
}

// getPage performs one rate-limited GET and classifies the outcome into the
// error taxonomy. It does not retry; fetchPage layers backoff on top.
func (c *Client) getPage(ctx context.Context, endpoint string) ([]byte, error) {
	err := c.limiter.Wait(ctx)
	if err != nil {
		return nil, err
	}

	res, err := c.Http.R().
		SetContext(ctx).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %s", ErrTransient, endpoint, err)
	}

	status := res.StatusCode()
	finalPath := ""
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalPath = res.RawResponse.Request.URL.Path
	}
	switch {
	case status == 401 || status == 403:
		return nil, fmt.Errorf("%w: GET %s returned %d", ErrAuthExpired, endpoint, status)
	case strings.Contains(finalPath, "/login"):
		return nil, fmt.Errorf("%w: GET %s redirected to login", ErrAuthExpired, endpoint)
	case status == 429:
		return nil, fmt.Errorf("%w: GET %s", ErrRateLimited, endpoint)
	case status >= 500:
		return nil, fmt.Errorf("%w: GET %s returned %d", ErrTransient, endpoint, status)
	case status != 200:
		return nil, fmt.Errorf("%w: GET %s returned unexpected status %d", ErrTransient, endpoint, status)
	}

	return res.Body(), nil
}

// fetchPage retries getPage under the backoff policy. Auth expiry always
// escalates instead of retrying; exhausting the ceiling surfaces the last
// transient error to the caller.
func (c *Client) fetchPage(ctx context.Context, endpoint string) ([]byte, error) {
	var body []byte
	err := ratelimit.Retry(ctx, c.retry, func() error {
		var err error
		body, err = c.getPage(ctx, endpoint)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrAuthExpired) || ctx.Err() != nil {
			return ratelimit.Permanent(err)
		}
		return err
	})
	return body, err
}
