// Package model defines the entities shared by the News API client, the local
// store, the unread cache, and the sync engine.
package model

import "time"

// Folder is a server-side folder. Expanded is local UI state and is never
// sent to or overwritten by the server.
type Folder struct {
	ID       int64
	Name     string
	Expanded bool
}

// Feed is a subscription. FolderID is nil for top-level feeds.
type Feed struct {
	ID               int64
	URL              string
	Title            string
	Link             string
	FaviconLink      string
	FolderID         *int64
	Pinned           bool
	Ordering         int
	UnreadCount      int
	UpdateErrorCount int
	LastUpdateError  string

	// PreferWeb is a client-only display preference.
	PreferWeb bool
}

// InFolder reports whether the feed is filed under folderID.
func (f *Feed) InFolder(folderID int64) bool {
	return f.FolderID != nil && *f.FolderID == folderID
}

// Item is a single article. LastModified is the server's change watermark in
// seconds since the epoch.
type Item struct {
	ID           int64
	FeedID       int64
	Title        string
	Body         string
	Author       string
	URL          string
	GUID         string
	GUIDHash     string
	PubDate      time.Time
	LastModified int64
	Unread       bool
	Starred      bool

	// ImageLink is the resolved thumbnail; empty until computed.
	ImageLink string
}

// StarRef identifies an item the way the server's star/unstar endpoints do:
// by feed and GUID hash rather than numeric id.
type StarRef struct {
	FeedID   int64  `json:"feedId"`
	GUIDHash string `json:"guidHash"`
}

// StarRef returns the star/unstar address of the item.
func (i *Item) StarRef() StarRef {
	return StarRef{FeedID: i.FeedID, GUIDHash: i.GUIDHash}
}

// Int64Ptr returns a pointer to v. Convenient for optional folder ids.
func Int64Ptr(v int64) *int64 {
	return &v
}
