package bgg

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
)

// FetchGame retrieves one detail page through the shared rate limiter and
// extracts its embedded payload. A missing anchor or an undecodable payload
// comes back as *ParseError, which is isolated to this identifier; network
// and auth failures keep their taxonomy from the fetch layer.
func (c *Client) FetchGame(ctx context.Context, id int64) (RawItem, error) {
	ctx, span := tracer.Start(ctx, "client:FetchGame")
	defer span.End()

	endpoint := fmt.Sprintf("/boardgame/%d", id)

	page, cached := c.cachedPage(ctx, endpoint)
	if !cached {
		var err error
		page, err = c.fetchPage(ctx, endpoint)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch detail page")
			return RawItem{}, err
		}
		c.cachePage(ctx, endpoint, page)
	}

	raw, err := ExtractPayload(page)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payload anchor missing")
		return RawItem{}, &ParseError{ID: id, Reason: "extract payload", Err: err}
	}

	item, err := DecodeItem(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payload failed to decode")
		return RawItem{}, &ParseError{ID: id, Reason: "decode payload", Err: err}
	}

	return item, nil
}

func (c *Client) cachedPage(ctx context.Context, endpoint string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	page, err := c.cache.get(endpoint)
	if err == errPageNotCached {
		return nil, false
	}
	if err != nil {
		slog.WarnContext(ctx, "page cache read failed", "endpoint", endpoint, "err", err)
		return nil, false
	}
	return page, true
}

func (c *Client) cachePage(ctx context.Context, endpoint string, page []byte) {
	if c.cache == nil {
		return
	}
	err := c.cache.set(endpoint, page)
	if err != nil {
		slog.WarnContext(ctx, "page cache write failed", "endpoint", endpoint, "err", err)
	}
}
