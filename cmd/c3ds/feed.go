package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/and161185/c3ds-console/internal/guard"
	"github.com/and161185/c3ds-console/internal/model"
	"github.com/and161185/c3ds-console/internal/nav"
	"github.com/and161185/c3ds-console/internal/query"
	"github.com/and161185/c3ds-console/internal/view"
)

func cmdMessages(ctx context.Context, e *env, args []string) error {
	fs := newFlags("messages", e.errOut)
	typ := fs.String("type", "", "alert or heartbeat (empty for all)")
	window := fs.String("window", string(model.WindowAll), "time window")
	limit := fs.Int("limit", model.DefaultMessageLimit, "max messages")
	group := fs.Bool("group", false, "group by device")
	watch := fs.Bool("watch", false, "keep polling")
	n := fs.Int("n", 0, "with -watch, stop after n refreshes")
	if err := parse(fs, args); err != nil {
		return err
	}
	f := model.MessageFilter{Type: model.MessageType(*typ), TimeWindow: model.TimeWindow(*window), Limit: *limit}.Normalize()
	if err := e.app.API.Validate(f); err != nil {
		return err
	}
	render := func(ms []model.Message) error {
		if *group {
			gs := view.GroupByDevice(ms)
			return e.show(gs, func(w io.Writer) error { return view.Groups(w, gs, e.now()) })
		}
		return e.show(ms, func(w io.Writer) error { return view.Messages(w, ms, e.now()) })
	}

	q := e.app.API.MessagesQuery(f)
	if *watch {
		if err := e.enter(ctx, nav.Messages, guard.Public); err != nil {
			return err
		}
		return watchQuery(ctx, e, q, *n, render)
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := e.enter(ctx, nav.Messages, guard.Public); err != nil {
		return err
	}
	ms, err := query.Get(ctx, e.app.Cache, q)
	if err != nil {
		return err
	}
	return render(ms)
}

func cmdStats(ctx context.Context, e *env, args []string) error {
	fs := newFlags("stats", e.errOut)
	watch := fs.Bool("watch", false, "keep polling")
	n := fs.Int("n", 0, "with -watch, stop after n refreshes")
	if err := parse(fs, args); err != nil {
		return err
	}
	render := func(s model.Stats) error {
		return e.show(s, func(w io.Writer) error { return view.Stats(w, s) })
	}
	q := e.app.API.StatsQuery()
	if *watch {
		return watchQuery(ctx, e, q, *n, render)
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	s, err := query.Get(ctx, e.app.Cache, q)
	if err != nil {
		return err
	}
	return render(s)
}

// watchQuery mounts q and renders every new successful result until ctx
// ends or max refreshes were shown. Failed polls are reported and the
// last good data stays on screen.
func watchQuery[T any](ctx context.Context, e *env, q query.Query[T], max int, render func(T) error) error {
	obs := query.Watch(ctx, e.app.Cache, q)
	defer obs.Close()

	var shown int
	var seen time.Time
	var lastErr error
	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-obs.Updates():
			if !ok {
				return nil
			}
			if r.Err != nil && !r.IsFetching && r.Err != lastErr {
				lastErr = r.Err
				fmt.Fprintf(e.errOut, "refresh failed: %s\n", describe(r.Err, false))
			}
			if !r.HasData || !r.UpdatedAt.After(seen) {
				continue
			}
			seen, lastErr = r.UpdatedAt, nil
			if !e.json {
				fmt.Fprintf(e.out, "-- %s --\n", r.UpdatedAt.Local().Format(time.TimeOnly))
			}
			if err := render(r.Data); err != nil {
				return err
			}
			shown++
			if max > 0 && shown >= max {
				return nil
			}
		}
	}
}
