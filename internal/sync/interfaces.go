// Package sync implements the synchronization engine between the local
// store and the News server. It drains pending read/unread/star/unstar
// markers, pulls folders, feeds and item deltas, prunes old read items, and
// keeps the unread cache and badge current.
//
// The package contains one main component, [Engine], which runs three kinds
// of pass:
//
//   - initial: the store has no items; fetch everything unread or starred.
//   - repeat: push markers, then pull changes since the lastModified
//     watermark.
//   - background: pull only, leaving markers for the next foreground pass.
//
// It also exposes the local mutations (mark read, star, feed and folder
// management) that the CLI drives.
package sync

import (
	"context"
	"time"

	"github.com/njoerd114/newssync/internal/model"
	"github.com/njoerd114/newssync/internal/newsapi"
	"github.com/njoerd114/newssync/internal/state"
)

// API is the subset of the News API the engine needs.
// Implemented by [newsapi.Client].
type API interface {
	Download(ctx context.Context, ep newsapi.Endpoint) ([]byte, error)
	Version(ctx context.Context) (string, error)

	MarkItemsRead(ctx context.Context, ids []int64) error
	MarkItemsUnread(ctx context.Context, ids []int64) error
	StarItems(ctx context.Context, refs []model.StarRef) error
	UnstarItems(ctx context.Context, refs []model.StarRef) error

	AddFeed(ctx context.Context, feedURL string, folderID *int64) (*model.Feed, error)
	DeleteFeed(ctx context.Context, id int64) error
	MoveFeed(ctx context.Context, id int64, folderID *int64) error
	RenameFeed(ctx context.Context, id int64, title string) error
	AddFolder(ctx context.Context, name string) (*model.Folder, error)
	DeleteFolder(ctx context.Context, id int64) error
	RenameFolder(ctx context.Context, id int64, name string) error
}

// Store provides access to the local mirror.
// Implemented by [state.Store].
type Store interface {
	CountItems(ctx context.Context) (int, error)

	ApplyFolders(ctx context.Context, folders []model.Folder) (state.Applied, error)
	ApplyFeeds(ctx context.Context, feeds []model.Feed) (state.Applied, error)
	UpsertItems(ctx context.Context, items []model.Item) (state.Applied, error)

	Folders(ctx context.Context) ([]model.Folder, error)
	Feeds(ctx context.Context) ([]model.Feed, error)
	Items(ctx context.Context, q state.ItemQuery) ([]model.Item, error)
	UnreadStates(ctx context.Context) ([]state.ItemState, error)
	FeedIDsInFolder(ctx context.Context, folderID int64) ([]int64, error)

	MarkRead(ctx context.Context, ids []int64) ([]state.Change, error)
	MarkUnread(ctx context.Context, ids []int64) ([]state.Change, error)
	MarkStarred(ctx context.Context, ids []int64) ([]state.Change, error)
	MarkUnstarred(ctx context.Context, ids []int64) ([]state.Change, error)

	PendingRead(ctx context.Context) ([]int64, error)
	PendingUnread(ctx context.Context) ([]int64, error)
	PendingStarred(ctx context.Context) ([]state.Marker, error)
	PendingUnstarred(ctx context.Context) ([]state.Marker, error)
	ClearRead(ctx context.Context, ids []int64) error
	ClearUnread(ctx context.Context, ids []int64) error
	ClearStarred(ctx context.Context, ids []int64) error
	ClearUnstarred(ctx context.Context, ids []int64) error

	MaxLastModified(ctx context.Context) (int64, error)
	Watermark(ctx context.Context) (int64, error)
	SetWatermark(ctx context.Context, v int64) (int64, error)
	SetLastSync(ctx context.Context, t time.Time) error
	PruneItems(ctx context.Context, cutoff time.Time) (int, error)

	InsertFolder(ctx context.Context, f model.Folder) error
	RenameFolder(ctx context.Context, id int64, name string) error
	DeleteFolder(ctx context.Context, id int64) error
	SetFolderExpanded(ctx context.Context, id int64, expanded bool) error
	InsertFeed(ctx context.Context, f model.Feed) error
	RenameFeed(ctx context.Context, id int64, title string) error
	MoveFeed(ctx context.Context, id int64, folderID *int64) error
	DeleteFeed(ctx context.Context, id int64) error
	SetFeedPreferWeb(ctx context.Context, id int64, preferWeb bool) error
}
