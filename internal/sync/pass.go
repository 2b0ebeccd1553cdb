package sync

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/njoerd114/newssync/internal/newsapi"
)

// pull is one download that feeds an apply step.
type pull struct {
	step string
	kind PayloadKind
	ep   newsapi.Endpoint
}

// initialSync fetches the whole unread and starred set. Nothing is pushed or
// pruned: an empty store has no markers worth sending and nothing to prune.
func (e *Engine) initialSync(ctx context.Context) (*Report, error) {
	rep := newReport(ModeInitial, e.now(), StepPullFolders, StepPullFeeds, StepPullUnread, StepPullStarred)
	err := e.fetchAndApply(ctx, rep, initialPulls(), false)
	return rep, err
}

func initialPulls() []pull {
	return []pull{
		{step: StepPullFolders, kind: PayloadFolders, ep: newsapi.Folders()},
		{step: StepPullFeeds, kind: PayloadFeeds, ep: newsapi.Feeds()},
		{step: StepPullUnread, kind: PayloadItems, ep: newsapi.Items(newsapi.ItemsParams{
			BatchSize: -1, Type: newsapi.ItemTypeAll, GetRead: false,
		})},
		{step: StepPullStarred, kind: PayloadItems, ep: newsapi.Items(newsapi.ItemsParams{
			BatchSize: -1, Type: newsapi.ItemTypeStarred, GetRead: true,
		})},
	}
}

// repeatSync drains the marker queues, advances the watermark, then prunes
// and pulls concurrently.
func (e *Engine) repeatSync(ctx context.Context) (*Report, error) {
	rep := newReport(ModeRepeat, e.now(),
		StepPushRead, StepPushUnread, StepPushStarred, StepPushUnstarred,
		StepWatermark, StepPrune, StepPullFolders, StepPullFeeds, StepPullItems,
	)

	if err := e.drain(ctx, rep); err != nil {
		return rep, err
	}

	wm, err := e.advanceWatermark(ctx)
	if err != nil {
		// Without a watermark the delta query is unsafe; stop here.
		rep.fail(StepWatermark, err)
		return rep, err
	}
	rep.Watermark = wm
	rep.succeed(StepWatermark, 0)

	err = e.fetchAndApply(ctx, rep, deltaPulls(wm), e.keepMonths > 0)
	return rep, err
}

func deltaPulls(watermark int64) []pull {
	return []pull{
		{step: StepPullFolders, kind: PayloadFolders, ep: newsapi.Folders()},
		{step: StepPullFeeds, kind: PayloadFeeds, ep: newsapi.Feeds()},
		{step: StepPullItems, kind: PayloadItems, ep: newsapi.UpdatedItems(newsapi.UpdatedParams{
			Type: newsapi.ItemTypeAll, LastModified: watermark,
		})},
	}
}

// backgroundSync pulls without pushing. On an empty store it downloads the
// initial set instead of a delta.
func (e *Engine) backgroundSync(ctx context.Context, empty bool) (*Report, error) {
	if empty {
		rep := newReport(ModeBackground, e.now(), StepPullFolders, StepPullFeeds, StepPullUnread, StepPullStarred)
		return rep, e.fetchAndApply(ctx, rep, initialPulls(), false)
	}

	rep := newReport(ModeBackground, e.now(), StepWatermark, StepPullFolders, StepPullFeeds, StepPullItems)
	wm, err := e.advanceWatermark(ctx)
	if err != nil {
		rep.fail(StepWatermark, err)
		return rep, err
	}
	rep.Watermark = wm
	rep.succeed(StepWatermark, 0)
	return rep, e.fetchAndApply(ctx, rep, deltaPulls(wm), false)
}

// advanceWatermark persists max(stored, newest local lastModified) and
// returns it. Pruning the newest read item later cannot lower it.
func (e *Engine) advanceWatermark(ctx context.Context) (int64, error) {
	newest, err := e.store.MaxLastModified(ctx)
	if err != nil {
		return 0, err
	}
	return e.store.SetWatermark(ctx, newest)
}

// fetchAndApply downloads every pull concurrently, optionally pruning
// alongside, then applies the payloads in order. A transport failure on any
// download cancels the others and nothing is applied. A non-2xx status or a
// payload that does not decode fails only its own step.
func (e *Engine) fetchAndApply(ctx context.Context, rep *Report, pulls []pull, prune bool) error {
	type fetched struct {
		body []byte
		err  error
	}
	results := make([]fetched, len(pulls))

	var (
		pruned   int
		pruneErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	if prune {
		g.Go(func() error {
			// Local only; keep going even if a download fails.
			pruned, pruneErr = e.prune(ctx)
			return nil
		})
	}
	for i, p := range pulls {
		g.Go(func() error {
			body, err := e.api.Download(gctx, p.ep)
			results[i] = fetched{body: body, err: err}
			if newsapi.IsTransport(err) {
				return err
			}
			return nil
		})
	}
	transportErr := g.Wait()

	if prune {
		if pruneErr != nil {
			rep.fail(StepPrune, pruneErr)
		} else {
			rep.succeed(StepPrune, pruned)
		}
	}

	if transportErr != nil {
		for i, p := range pulls {
			if results[i].err == transportErr {
				rep.fail(p.step, transportErr)
			}
		}
		return transportErr
	}

	for i, p := range pulls {
		if err := results[i].err; err != nil {
			rep.fail(p.step, err)
			continue
		}
		n, err := e.applyPayload(ctx, p.kind, results[i].body)
		if err != nil {
			rep.fail(p.step, err)
			continue
		}
		rep.succeed(p.step, n)
	}
	return nil
}

// prune deletes read, unstarred items older than the retention window.
func (e *Engine) prune(ctx context.Context) (int, error) {
	cutoff := pruneCutoff(e.now(), e.keepMonths)
	n, err := e.store.PruneItems(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning items before %s: %w", cutoff.Format(time.DateOnly), err)
	}
	if n > 0 {
		e.log.Debug("pruned old items", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// pruneCutoff is now minus keepMonths 30-day months.
func pruneCutoff(now time.Time, keepMonths int) time.Time {
	return now.Add(-time.Duration(keepMonths) * 30 * 24 * time.Hour)
}

// --- Marker drain ------------------------------------------------------------

// drain pushes the four marker queues in order: read, unread, starred,
// unstarred. A rejected push fails its step and keeps its markers; a
// transport failure stops the pass.
func (e *Engine) drain(ctx context.Context, rep *Report) error {
	pushes := []struct {
		step string
		fn   func(context.Context) (int, error)
	}{
		{StepPushRead, e.pushRead},
		{StepPushUnread, e.pushUnread},
		{StepPushStarred, e.pushStarred},
		{StepPushUnstarred, e.pushUnstarred},
	}
	for _, p := range pushes {
		n, err := p.fn(ctx)
		if err != nil {
			rep.fail(p.step, err)
			if newsapi.IsTransport(err) {
				return err
			}
			continue
		}
		rep.succeed(p.step, n)
	}
	return nil
}

// Each push reads the pending set once and clears exactly that set after the
// server accepts it, so markers recorded during the request are kept.

func (e *Engine) pushRead(ctx context.Context) (int, error) {
	ids, err := e.store.PendingRead(ctx)
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	if err := e.api.MarkItemsRead(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), e.store.ClearRead(ctx, ids)
}

func (e *Engine) pushUnread(ctx context.Context) (int, error) {
	ids, err := e.store.PendingUnread(ctx)
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	if err := e.api.MarkItemsUnread(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), e.store.ClearUnread(ctx, ids)
}

func (e *Engine) pushStarred(ctx context.Context) (int, error) {
	markers, err := e.store.PendingStarred(ctx)
	if err != nil || len(markers) == 0 {
		return 0, err
	}
	ids, refs := splitMarkers(markers)
	if err := e.api.StarItems(ctx, refs); err != nil {
		return 0, err
	}
	return len(ids), e.store.ClearStarred(ctx, ids)
}

func (e *Engine) pushUnstarred(ctx context.Context) (int, error) {
	markers, err := e.store.PendingUnstarred(ctx)
	if err != nil || len(markers) == 0 {
		return 0, err
	}
	ids, refs := splitMarkers(markers)
	if err := e.api.UnstarItems(ctx, refs); err != nil {
		return 0, err
	}
	return len(ids), e.store.ClearUnstarred(ctx, ids)
}
