// Package newsapi is the client for the News app REST API (v1-3). It maps a
// closed set of logical operations to HTTP requests ([Endpoint]), builds
// authenticated requests ([Router]), decodes the JSON payloads into
// [model] types, and classifies failures into transport, status, and decode
// errors so the sync engine can decide per step whether to retry, skip, or
// abort.
package newsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/njoerd114/newssync/internal/model"
)

// apiPath is appended to the configured server URL.
const apiPath = "/index.php/apps/news/api/v1-3"

// ItemType selects which collection an items query addresses.
type ItemType int

const (
	ItemTypeFeed    ItemType = 0
	ItemTypeFolder  ItemType = 1
	ItemTypeStarred ItemType = 2
	ItemTypeAll     ItemType = 3
)

// ItemsParams are the query parameters of GET /items. BatchSize -1 returns
// every matching item.
type ItemsParams struct {
	BatchSize int
	Offset    int64
	Type      ItemType
	ID        int64
	GetRead   bool
}

// UpdatedParams are the query parameters of GET /items/updated.
type UpdatedParams struct {
	Type         ItemType
	LastModified int64
	ID           int64
}

// Endpoint is one fully specified API operation. Build them with the
// constructors below; the zero value is not useful.
type Endpoint struct {
	// Name identifies the operation in errors, logs, and metrics.
	Name   string
	Method string
	Path   string
	Query  url.Values
	// Body is marshalled as JSON when non-nil.
	Body any
}

// --- Pulls -------------------------------------------------------------------

// Folders lists all folders.
func Folders() Endpoint {
	return Endpoint{Name: "folders", Method: http.MethodGet, Path: "/folders"}
}

// Feeds lists all feeds with the starred count and newest item id.
func Feeds() Endpoint {
	return Endpoint{Name: "feeds", Method: http.MethodGet, Path: "/feeds"}
}

// Items pages through items of a feed, folder, the starred set or
// everything. A BatchSize of -1 returns all matches.
func Items(p ItemsParams) Endpoint {
	q := make(url.Values)
	q.Set("batchSize", strconv.Itoa(p.BatchSize))
	q.Set("offset", strconv.FormatInt(p.Offset, 10))
	q.Set("type", strconv.Itoa(int(p.Type)))
	q.Set("id", strconv.FormatInt(p.ID, 10))
	q.Set("getRead", strconv.FormatBool(p.GetRead))
	return Endpoint{Name: "items", Method: http.MethodGet, Path: "/items", Query: q}
}

// UpdatedItems returns items modified at or after p.LastModified.
func UpdatedItems(p UpdatedParams) Endpoint {
	q := make(url.Values)
	q.Set("type", strconv.Itoa(int(p.Type)))
	q.Set("lastModified", strconv.FormatInt(p.LastModified, 10))
	q.Set("id", strconv.FormatInt(p.ID, 10))
	return Endpoint{Name: "items/updated", Method: http.MethodGet, Path: "/items/updated", Query: q}
}

// Version reports the News app version.
func Version() Endpoint {
	return Endpoint{Name: "version", Method: http.MethodGet, Path: "/version"}
}

// --- Feed and folder management ---------------------------------------------

// AddFeed subscribes to feedURL, at the top level when folderID is nil.
func AddFeed(feedURL string, folderID *int64) Endpoint {
	return Endpoint{
		Name:   "feeds/add",
		Method: http.MethodPost,
		Path:   "/feeds",
		Body:   addFeedBody{URL: feedURL, FolderID: folderID},
	}
}

// DeleteFeed unsubscribes from a feed.
func DeleteFeed(id int64) Endpoint {
	return Endpoint{Name: "feeds/delete", Method: http.MethodDelete, Path: fmt.Sprintf("/feeds/%d", id)}
}

// MoveFeed files a feed under folderID, or at the top level when nil.
func MoveFeed(id int64, folderID *int64) Endpoint {
	return Endpoint{
		Name:   "feeds/move",
		Method: http.MethodPut,
		Path:   fmt.Sprintf("/feeds/%d/move", id),
		Body:   moveFeedBody{FolderID: folderID},
	}
}

// RenameFeed sets a feed title. Servers before this call existed answer 405.
func RenameFeed(id int64, title string) Endpoint {
	return Endpoint{
		Name:   "feeds/rename",
		Method: http.MethodPut,
		Path:   fmt.Sprintf("/feeds/%d/rename", id),
		Body:   renameFeedBody{FeedTitle: title},
	}
}

// AddFolder creates a folder.
func AddFolder(name string) Endpoint {
	return Endpoint{Name: "folders/add", Method: http.MethodPost, Path: "/folders", Body: folderNameBody{Name: name}}
}

// DeleteFolder removes a folder with its feeds.
func DeleteFolder(id int64) Endpoint {
	return Endpoint{Name: "folders/delete", Method: http.MethodDelete, Path: fmt.Sprintf("/folders/%d", id)}
}

// RenameFolder renames a folder.
func RenameFolder(id int64, name string) Endpoint {
	return Endpoint{
		Name:   "folders/rename",
		Method: http.MethodPut,
		Path:   fmt.Sprintf("/folders/%d", id),
		Body:   folderNameBody{Name: name},
	}
}

// --- Item state pushes -------------------------------------------------------

// ItemsRead marks items read by id.
func ItemsRead(ids []int64) Endpoint {
	return Endpoint{Name: "items/read", Method: http.MethodPost, Path: "/items/read/multiple", Body: itemIDsBody{Items: nonNilIDs(ids)}}
}

// ItemsUnread marks items unread by id.
func ItemsUnread(ids []int64) Endpoint {
	return Endpoint{Name: "items/unread", Method: http.MethodPost, Path: "/items/unread/multiple", Body: itemIDsBody{Items: nonNilIDs(ids)}}
}

// ItemsStarred stars items addressed by feed id and guid hash.
func ItemsStarred(refs []model.StarRef) Endpoint {
	return Endpoint{Name: "items/star", Method: http.MethodPost, Path: "/items/star/multiple", Body: starRefsBody{Items: nonNilRefs(refs)}}
}

// ItemsUnstarred unstars items addressed by feed id and guid hash.
func ItemsUnstarred(refs []model.StarRef) Endpoint {
	return Endpoint{Name: "items/unstar", Method: http.MethodPost, Path: "/items/unstar/multiple", Body: starRefsBody{Items: nonNilRefs(refs)}}
}

// nonNilIDs keeps an empty batch encoded as [] instead of null.
func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func nonNilRefs(refs []model.StarRef) []model.StarRef {
	if refs == nil {
		return []model.StarRef{}
	}
	return refs
}

// --- Router ------------------------------------------------------------------

// Router turns an [Endpoint] into an authenticated *http.Request against the
// configured server.
type Router struct {
	baseURL  string
	username string
	password string
}

// NewRouter validates serverURL and returns a Router for it. serverURL is the
// root of the server installation, e.g. "https://cloud.example.com".
func NewRouter(serverURL, username, password string) (*Router, error) {
	u, err := url.ParseRequestURI(serverURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("server URL %q must be a valid http or https URL", serverURL)
	}
	return &Router{
		baseURL:  strings.TrimRight(serverURL, "/") + apiPath,
		username: username,
		password: password,
	}, nil
}

// BaseURL returns the API root requests are issued against.
func (r *Router) BaseURL() string {
	return r.baseURL
}

// Request builds the HTTP request for ep. Every request carries Basic auth,
// asks for JSON, and bypasses intermediate caches.
func (r *Router) Request(ctx context.Context, ep Endpoint) (*http.Request, error) {
	full := r.baseURL + ep.Path
	if len(ep.Query) > 0 {
		full += "?" + ep.Query.Encode()
	}

	var body io.Reader
	if ep.Body != nil {
		b, err := json.Marshal(ep.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s body: %w", ep.Name, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, ep.Method, full, body)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", ep.Name, err)
	}
	req.SetBasicAuth(r.username, r.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
