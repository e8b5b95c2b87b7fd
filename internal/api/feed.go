package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/and161185/c3ds-console/internal/convert"
	"github.com/and161185/c3ds-console/internal/httpclient"
	"github.com/and161185/c3ds-console/internal/model"
	"github.com/and161185/c3ds-console/internal/query"
)

// Polling cadence of the live resources.
const (
	MessagesStaleTime = 5 * time.Second
	MessagesRefetch   = 10 * time.Second
	StatsStaleTime    = 15 * time.Second
	StatsRefetch      = 30 * time.Second
)

// Stats fetches the dashboard counters.
func (c *Client) Stats(ctx context.Context) (model.Stats, error) {
	var w convert.Stats
	if err := c.getJSON(ctx, "/dashboard/stats/", nil, &w); err != nil {
		return model.Stats{}, err
	}
	return convert.ToStats(w), nil
}

// StatsQuery polls the dashboard counters.
func (c *Client) StatsQuery() query.Query[model.Stats] {
	return query.Query[model.Stats]{
		Key:     KeyStats,
		Fn:      c.Stats,
		Options: query.Options{StaleTime: StatsStaleTime, RefetchInterval: StatsRefetch},
	}
}

// MessageParams encodes a filter as query parameters. An empty type is omitted.
func MessageParams(f model.MessageFilter) url.Values {
	f = f.Normalize()
	q := url.Values{}
	if f.Type != "" {
		q.Set("message_type", string(f.Type))
	}
	q.Set("time_window", string(f.TimeWindow))
	q.Set("limit", strconv.Itoa(f.Limit))
	return q
}

// KeyMessagesFor is the cache key of one filter combination.
func KeyMessagesFor(f model.MessageFilter) query.Key {
	f = f.Normalize()
	return KeyMessages.With(string(f.Type), string(f.TimeWindow), strconv.Itoa(f.Limit))
}

// Messages fetches the feed, newest first as ordered by the server.
func (c *Client) Messages(ctx context.Context, f model.MessageFilter) ([]model.Message, error) {
	f = f.Normalize()
	if err := c.Validate(f); err != nil {
		return nil, err
	}
	resp, err := c.t.Do(ctx, httpclient.Request{Method: http.MethodGet, Path: "/messages/", Query: MessageParams(f)})
	if err != nil {
		return nil, err
	}
	wire, err := convert.DecodeList[convert.Message](resp.Body)
	if err != nil {
		return nil, err
	}
	return convert.ToMessages(wire)
}

// MessagesQuery polls the feed for one filter combination.
func (c *Client) MessagesQuery(f model.MessageFilter) query.Query[[]model.Message] {
	f = f.Normalize()
	return query.Query[[]model.Message]{
		Key:     KeyMessagesFor(f),
		Fn:      func(ctx context.Context) ([]model.Message, error) { return c.Messages(ctx, f) },
		Options: query.Options{StaleTime: MessagesStaleTime, RefetchInterval: MessagesRefetch},
	}
}
