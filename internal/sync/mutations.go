package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/njoerd114/newssync/internal/model"
	"github.com/njoerd114/newssync/internal/newsapi"
	"github.com/njoerd114/newssync/internal/state"
)

// MutationResult reports what a local mutation did.
type MutationResult struct {
	// Changed is the number of items whose flag flipped.
	Changed int
	// Pushed is true when the server accepted the immediate push. When false
	// the markers stay queued for the next sync and PushErr says why.
	Pushed  bool
	PushErr error
}

// MarkRead marks items read.
func (e *Engine) MarkRead(ctx context.Context, ids []int64) (MutationResult, error) {
	return e.mutate(ctx, ids, e.store.MarkRead, e.pushRead)
}

// MarkUnread marks items unread.
func (e *Engine) MarkUnread(ctx context.Context, ids []int64) (MutationResult, error) {
	return e.mutate(ctx, ids, e.store.MarkUnread, e.pushUnread)
}

// Star stars items.
func (e *Engine) Star(ctx context.Context, ids []int64) (MutationResult, error) {
	return e.mutate(ctx, ids, e.store.MarkStarred, e.pushStarred)
}

// Unstar unstars items.
func (e *Engine) Unstar(ctx context.Context, ids []int64) (MutationResult, error) {
	return e.mutate(ctx, ids, e.store.MarkUnstarred, e.pushUnstarred)
}

// MarkNodeRead marks every unread item under node read.
func (e *Engine) MarkNodeRead(ctx context.Context, node model.Node) (MutationResult, error) {
	items, err := e.store.Items(ctx, state.ItemQuery{Node: node, UnreadOnly: true})
	if err != nil {
		return MutationResult{}, err
	}
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return e.MarkRead(ctx, ids)
}

// mutate records the change locally, updates the cache and badge, then
// tries to push the marker queue right away.
func (e *Engine) mutate(
	ctx context.Context,
	ids []int64,
	record func(context.Context, []int64) ([]state.Change, error),
	push func(context.Context) (int, error),
) (MutationResult, error) {
	if len(ids) == 0 {
		return MutationResult{}, nil
	}
	changes, err := record(ctx, ids)
	if err != nil {
		return MutationResult{}, err
	}
	res := MutationResult{Changed: len(changes)}
	if len(changes) > 0 {
		e.cache.Apply(changes)
		e.unreadChanged(ctx)
	}

	if _, err := push(ctx); err != nil {
		e.log.Warn("immediate push failed, markers kept for next sync", "error", err)
		res.PushErr = err
		return res, nil
	}
	res.Pushed = true
	return res, nil
}

// --- Feed and folder management ---------------------------------------------

// AddFeed subscribes to feedURL on the server, stores the new feed and
// backfills its unread items. A failed backfill is logged; the next sync
// picks the items up.
func (e *Engine) AddFeed(ctx context.Context, feedURL string, folderID *int64) (*model.Feed, error) {
	feed, err := e.api.AddFeed(ctx, feedURL, folderID)
	if err != nil {
		return nil, fmt.Errorf("adding feed %s: %w", feedURL, err)
	}
	if err := e.store.InsertFeed(ctx, *feed); err != nil {
		return nil, err
	}

	ep := newsapi.Items(newsapi.ItemsParams{BatchSize: -1, Type: newsapi.ItemTypeFeed, ID: feed.ID, GetRead: false})
	body, err := e.api.Download(ctx, ep)
	if err == nil {
		_, err = e.applyPayload(ctx, PayloadItems, body)
	}
	if err != nil {
		e.log.Warn("backfilling new feed", "feed_id", feed.ID, "error", err)
	}

	return feed, e.refresh(ctx)
}

// DeleteFeed removes a feed on the server and locally. A feed the server no
// longer has is still removed locally.
func (e *Engine) DeleteFeed(ctx context.Context, id int64) error {
	if err := e.api.DeleteFeed(ctx, id); err != nil && !errors.Is(err, newsapi.ErrNotFound) {
		return fmt.Errorf("deleting feed %d: %w", id, err)
	}
	if err := e.store.DeleteFeed(ctx, id); err != nil {
		return err
	}
	e.cache.Invalidate(model.FeedNode(id))
	return e.refresh(ctx)
}

// MoveFeed files a feed under folderID, or at the top level when nil.
func (e *Engine) MoveFeed(ctx context.Context, id int64, folderID *int64) error {
	if err := e.api.MoveFeed(ctx, id, folderID); err != nil {
		return fmt.Errorf("moving feed %d: %w", id, err)
	}
	if err := e.store.MoveFeed(ctx, id, folderID); err != nil {
		return err
	}
	return e.refresh(ctx)
}

// RenameFeed renames a feed. Servers too old to support it return an error
// matching newsapi.ErrServerTooOld.
func (e *Engine) RenameFeed(ctx context.Context, id int64, title string) error {
	if err := e.api.RenameFeed(ctx, id, title); err != nil {
		return fmt.Errorf("renaming feed %d: %w", id, err)
	}
	return e.store.RenameFeed(ctx, id, title)
}

// AddFolder creates a folder on the server and stores it.
func (e *Engine) AddFolder(ctx context.Context, name string) (*model.Folder, error) {
	folder, err := e.api.AddFolder(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("adding folder %q: %w", name, err)
	}
	if err := e.store.InsertFolder(ctx, *folder); err != nil {
		return nil, err
	}
	return folder, nil
}

// DeleteFolder removes a folder, its feeds and their items on the server and
// locally. A folder the server no longer has is still removed locally.
func (e *Engine) DeleteFolder(ctx context.Context, id int64) error {
	if err := e.api.DeleteFolder(ctx, id); err != nil && !errors.Is(err, newsapi.ErrNotFound) {
		return fmt.Errorf("deleting folder %d: %w", id, err)
	}
	feedIDs, err := e.store.FeedIDsInFolder(ctx, id)
	if err != nil {
		return err
	}
	if err := e.store.DeleteFolder(ctx, id); err != nil {
		return err
	}
	e.cache.Invalidate(model.FolderNode(id))
	for _, f := range feedIDs {
		e.cache.Invalidate(model.FeedNode(f))
	}
	return e.refresh(ctx)
}

// RenameFolder renames a folder on the server and locally.
func (e *Engine) RenameFolder(ctx context.Context, id int64, name string) error {
	if err := e.api.RenameFolder(ctx, id, name); err != nil {
		return fmt.Errorf("renaming folder %d: %w", id, err)
	}
	return e.store.RenameFolder(ctx, id, name)
}

// SetFolderExpanded stores the local expanded flag of a folder.
func (e *Engine) SetFolderExpanded(ctx context.Context, id int64, expanded bool) error {
	return e.store.SetFolderExpanded(ctx, id, expanded)
}

// SetFeedPreferWeb stores whether items of a feed open the web page instead
// of the stored body.
func (e *Engine) SetFeedPreferWeb(ctx context.Context, id int64, preferWeb bool) error {
	return e.store.SetFeedPreferWeb(ctx, id, preferWeb)
}

// refresh rebuilds the cache after a structural change and announces it.
func (e *Engine) refresh(ctx context.Context) error {
	if err := e.LoadCache(ctx); err != nil {
		return fmt.Errorf("rebuilding unread cache: %w", err)
	}
	e.unreadChanged(ctx)
	return nil
}

// --- Read side ---------------------------------------------------------------

// TreeRow is a navigation entry with its count: starred items for the
// Starred node, unread items everywhere else.
type TreeRow struct {
	model.TreeEntry
	Count int
}

// Tree returns the navigation tree with counts from the unread cache.
func (e *Engine) Tree(ctx context.Context) ([]TreeRow, error) {
	folders, err := e.store.Folders(ctx)
	if err != nil {
		return nil, err
	}
	feeds, err := e.store.Feeds(ctx)
	if err != nil {
		return nil, err
	}
	snap := e.cache.Snapshot()
	entries := model.BuildTree(folders, feeds)
	rows := make([]TreeRow, len(entries))
	for i, en := range entries {
		rows[i] = TreeRow{TreeEntry: en, Count: snap.Count(en.Node)}
	}
	return rows, nil
}

// ServerVersion returns the News app version on the server.
func (e *Engine) ServerVersion(ctx context.Context) (string, error) {
	return e.api.Version(ctx)
}
