package newsapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/njoerd114/newssync/internal/model"
)

// --- Request bodies ----------------------------------------------------------

type addFeedBody struct {
	URL      string `json:"url"`
	FolderID *int64 `json:"folderId"`
}

type moveFeedBody struct {
	FolderID *int64 `json:"folderId"`
}

type renameFeedBody struct {
	FeedTitle string `json:"feedTitle"`
}

type folderNameBody struct {
	Name string `json:"name"`
}

type itemIDsBody struct {
	Items []int64 `json:"items"`
}

type starRefsBody struct {
	Items []model.StarRef `json:"items"`
}

// --- Response payloads -------------------------------------------------------

// FolderDTO is a folder as returned by the server.
type FolderDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FoldersDTO wraps GET /folders and POST /folders.
type FoldersDTO struct {
	Folders []FolderDTO `json:"folders"`
}

// FeedDTO is a feed as returned by the server. Older servers report
// top-level feeds with folderId 0 instead of null.
type FeedDTO struct {
	ID               int64  `json:"id"`
	URL              string `json:"url"`
	Title            string `json:"title"`
	FaviconLink      string `json:"faviconLink"`
	Added            int64  `json:"added"`
	FolderID         *int64 `json:"folderId"`
	UnreadCount      int    `json:"unreadCount"`
	Ordering         int    `json:"ordering"`
	Link             string `json:"link"`
	Pinned           bool   `json:"pinned"`
	UpdateErrorCount int    `json:"updateErrorCount"`
	LastUpdateError  string `json:"lastUpdateError"`
}

// FeedsDTO wraps GET /feeds and POST /feeds.
type FeedsDTO struct {
	Feeds        []FeedDTO `json:"feeds"`
	StarredCount int       `json:"starredCount"`
	NewestItemID *int64    `json:"newestItemId"`
}

// ItemDTO is an item as returned by the server.
type ItemDTO struct {
	ID             int64     `json:"id"`
	GUID           string    `json:"guid"`
	GUIDHash       string    `json:"guidHash"`
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	Author         string    `json:"author"`
	PubDate        int64     `json:"pubDate"`
	Body           string    `json:"body"`
	EnclosureMime  string    `json:"enclosureMime"`
	EnclosureLink  string    `json:"enclosureLink"`
	MediaThumbnail string    `json:"mediaThumbnail"`
	FeedID         int64     `json:"feedId"`
	Unread         bool      `json:"unread"`
	Starred        bool      `json:"starred"`
	LastModified   flexInt64 `json:"lastModified"`
	Fingerprint    string    `json:"fingerprint"`
}

// ItemsDTO wraps GET /items and GET /items/updated.
type ItemsDTO struct {
	Items []ItemDTO `json:"items"`
}

// VersionDTO wraps GET /version.
type VersionDTO struct {
	Version string `json:"version"`
}

// flexInt64 accepts both JSON numbers and numeric strings. Some server
// releases serialise lastModified as a string.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*f = flexInt64(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexInt64(v)
	return nil
}

// --- Conversion --------------------------------------------------------------

func (d FolderDTO) toModel() model.Folder {
	return model.Folder{ID: d.ID, Name: d.Name}
}

func (d FeedDTO) toModel() model.Feed {
	f := model.Feed{
		ID:               d.ID,
		URL:              d.URL,
		Title:            d.Title,
		Link:             d.Link,
		FaviconLink:      d.FaviconLink,
		Pinned:           d.Pinned,
		Ordering:         d.Ordering,
		UnreadCount:      d.UnreadCount,
		UpdateErrorCount: d.UpdateErrorCount,
		LastUpdateError:  d.LastUpdateError,
	}
	if d.FolderID != nil && *d.FolderID != 0 {
		id := *d.FolderID
		f.FolderID = &id
	}
	return f
}

func (d ItemDTO) toModel() model.Item {
	item := model.Item{
		ID:           d.ID,
		FeedID:       d.FeedID,
		Title:        d.Title,
		Body:         d.Body,
		Author:       d.Author,
		URL:          d.URL,
		GUID:         d.GUID,
		GUIDHash:     d.GUIDHash,
		LastModified: int64(d.LastModified),
		Unread:       d.Unread,
		Starred:      d.Starred,
		ImageLink:    d.MediaThumbnail,
	}
	if d.PubDate > 0 {
		item.PubDate = time.Unix(d.PubDate, 0).UTC()
	}
	return item
}

// --- Decoding ----------------------------------------------------------------
//
// The Decode* functions are shared by the foreground client and by callers
// that obtained a payload through a separate download path.

// DecodeFolders parses a FoldersDTO payload.
func DecodeFolders(body []byte) ([]model.Folder, error) {
	var dto FoldersDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, &DecodeError{Endpoint: "folders", Err: err}
	}
	out := make([]model.Folder, 0, len(dto.Folders))
	for _, f := range dto.Folders {
		out = append(out, f.toModel())
	}
	return out, nil
}

// DecodeFeeds parses a FeedsDTO payload.
func DecodeFeeds(body []byte) ([]model.Feed, error) {
	var dto FeedsDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, &DecodeError{Endpoint: "feeds", Err: err}
	}
	out := make([]model.Feed, 0, len(dto.Feeds))
	for _, f := range dto.Feeds {
		out = append(out, f.toModel())
	}
	return out, nil
}

// DecodeItems parses an ItemsDTO payload.
func DecodeItems(body []byte) ([]model.Item, error) {
	var dto ItemsDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, &DecodeError{Endpoint: "items", Err: err}
	}
	out := make([]model.Item, 0, len(dto.Items))
	for _, it := range dto.Items {
		out = append(out, it.toModel())
	}
	return out, nil
}
