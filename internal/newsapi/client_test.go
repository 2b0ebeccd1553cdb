package newsapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/njoerd114/newssync/internal/model"
)

const apiPrefix = "/index.php/apps/news/api/v1-3"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	c, err := NewClient(ts.URL, "alice", "secret", slog.Default(), WithHTTPClient(ts.Client()), WithMaxAttempts(1))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewRouter_RejectsInvalidURL(t *testing.T) {
	for _, u := range []string{"", "not-a-url", "ftp://example.com", "http://"} {
		if _, err := NewRouter(u, "u", "p"); err == nil {
			t.Errorf("NewRouter(%q) returned nil error", u)
		}
	}
}

func TestRouter_RequestHeaders(t *testing.T) {
	r, err := NewRouter("https://cloud.example.com/", "alice", "secret")
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	req, err := r.Request(context.Background(), ItemsRead([]int64{1, 2}))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	if got, want := req.URL.String(), "https://cloud.example.com"+apiPrefix+"/items/read/multiple"; got != want {
		t.Errorf("URL = %q, want %q", got, want)
	}
	if req.Method != http.MethodPost {
		t.Errorf("Method = %s, want POST", req.Method)
	}
	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:secret"))
	if got := req.Header.Get("Authorization"); got != wantAuth {
		t.Errorf("Authorization = %q, want %q", got, wantAuth)
	}
	if got := req.Header.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q", got)
	}
	if got := req.Header.Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}

	body, _ := io.ReadAll(req.Body)
	if string(body) != `{"items":[1,2]}` {
		t.Errorf("body = %s", body)
	}
}

func TestEndpoints_Shapes(t *testing.T) {
	folder := int64(4)
	tests := []struct {
		ep     Endpoint
		method string
		path   string
		body   string
	}{
		{Folders(), "GET", "/folders", ""},
		{Feeds(), "GET", "/feeds", ""},
		{AddFeed("https://x.test/rss", nil), "POST", "/feeds", `{"url":"https://x.test/rss","folderId":null}`},
		{AddFeed("https://x.test/rss", &folder), "POST", "/feeds", `{"url":"https://x.test/rss","folderId":4}`},
		{DeleteFeed(9), "DELETE", "/feeds/9", ""},
		{MoveFeed(9, nil), "PUT", "/feeds/9/move", `{"folderId":null}`},
		{RenameFeed(9, "New"), "PUT", "/feeds/9/rename", `{"feedTitle":"New"}`},
		{AddFolder("Tech"), "POST", "/folders", `{"name":"Tech"}`},
		{DeleteFolder(3), "DELETE", "/folders/3", ""},
		{RenameFolder(3, "Misc"), "PUT", "/folders/3", `{"name":"Misc"}`},
		{ItemsUnread(nil), "POST", "/items/unread/multiple", `{"items":[]}`},
		{ItemsStarred([]model.StarRef{{FeedID: 2, GUIDHash: "abc"}}), "POST", "/items/star/multiple", `{"items":[{"feedId":2,"guidHash":"abc"}]}`},
		{ItemsUnstarred([]model.StarRef{{FeedID: 2, GUIDHash: "abc"}}), "POST", "/items/unstar/multiple", `{"items":[{"feedId":2,"guidHash":"abc"}]}`},
	}
	for _, tt := range tests {
		if tt.ep.Method != tt.method || tt.ep.Path != tt.path {
			t.Errorf("%s: %s %s, want %s %s", tt.ep.Name, tt.ep.Method, tt.ep.Path, tt.method, tt.path)
		}
		if tt.body == "" {
			if tt.ep.Body != nil {
				t.Errorf("%s: unexpected body %#v", tt.ep.Name, tt.ep.Body)
			}
			continue
		}
		b, err := json.Marshal(tt.ep.Body)
		if err != nil {
			t.Fatalf("%s: marshal: %v", tt.ep.Name, err)
		}
		if string(b) != tt.body {
			t.Errorf("%s: body = %s, want %s", tt.ep.Name, b, tt.body)
		}
	}
}

func TestItems_QueryParameters(t *testing.T) {
	ep := Items(ItemsParams{BatchSize: -1, Type: ItemTypeAll, GetRead: false})
	q := ep.Query
	if q.Get("batchSize") != "-1" || q.Get("type") != "3" || q.Get("getRead") != "false" || q.Get("offset") != "0" || q.Get("id") != "0" {
		t.Errorf("unexpected query: %s", q.Encode())
	}

	up := UpdatedItems(UpdatedParams{Type: ItemTypeAll, LastModified: 1700000000})
	if up.Query.Get("lastModified") != "1700000000" || up.Query.Get("type") != "3" {
		t.Errorf("unexpected updated query: %s", up.Query.Encode())
	}
}

func TestFolders_ParsesResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiPrefix+"/folders" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"folders":[{"id":1,"name":"Tech"},{"id":2,"name":"News"}]}`))
	})

	folders, err := c.Folders(context.Background())
	if err != nil {
		t.Fatalf("Folders: %v", err)
	}
	if len(folders) != 2 || folders[0].Name != "Tech" || folders[1].ID != 2 {
		t.Errorf("folders = %+v", folders)
	}
}

func TestFeeds_TopLevelZeroFolderBecomesNil(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"feeds":[
			{"id":1,"title":"A","url":"https://a.test/rss","folderId":0,"pinned":true},
			{"id":2,"title":"B","url":"https://b.test/rss","folderId":7,"unreadCount":3},
			{"id":3,"title":"C","url":"https://c.test/rss","folderId":null}
		],"starredCount":2}`))
	})

	feeds, err := c.Feeds(context.Background())
	if err != nil {
		t.Fatalf("Feeds: %v", err)
	}
	if len(feeds) != 3 {
		t.Fatalf("got %d feeds, want 3", len(feeds))
	}
	if feeds[0].FolderID != nil || !feeds[0].Pinned {
		t.Errorf("feed 1 = %+v, want top-level pinned", feeds[0])
	}
	if feeds[1].FolderID == nil || *feeds[1].FolderID != 7 || feeds[1].UnreadCount != 3 {
		t.Errorf("feed 2 = %+v", feeds[1])
	}
	if feeds[2].FolderID != nil {
		t.Errorf("feed 3 folder = %v, want nil", *feeds[2].FolderID)
	}
}

func TestUpdatedItems_ParsesStringLastModified(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiPrefix+"/items/updated" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("lastModified") != "100" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"items":[
			{"id":5,"feedId":1,"guidHash":"h5","title":"t","unread":true,"starred":false,"lastModified":"200","pubDate":1700000000,"mediaThumbnail":"https://img.test/5.jpg"},
			{"id":6,"feedId":1,"guidHash":"h6","title":"u","unread":false,"starred":true,"lastModified":300}
		]}`))
	})

	items, err := c.UpdatedItems(context.Background(), UpdatedParams{Type: ItemTypeAll, LastModified: 100})
	if err != nil {
		t.Fatalf("UpdatedItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].LastModified != 200 || items[1].LastModified != 300 {
		t.Errorf("lastModified = %d, %d", items[0].LastModified, items[1].LastModified)
	}
	if items[0].ImageLink != "https://img.test/5.jpg" {
		t.Errorf("ImageLink = %q", items[0].ImageLink)
	}
	if items[0].PubDate.Unix() != 1700000000 {
		t.Errorf("PubDate = %v", items[0].PubDate)
	}
	if !items[1].Starred || items[1].Unread {
		t.Errorf("item 6 state = %+v", items[1])
	}
}

func TestFolders_MalformedJSONIsDecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"folders": [`))
	})
	_, err := c.Folders(context.Background())
	if !IsDecode(err) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestStatusErrors_MapToSentinels(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrAlreadyExists},
		{http.StatusUnprocessableEntity, ErrUnprocessable},
		{http.StatusMethodNotAllowed, ErrServerTooOld},
		{http.StatusUnauthorized, ErrUnauthorized},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.code)
			_, _ = w.Write([]byte(`{"message":"nope"}`))
		})
		err := c.RenameFeed(context.Background(), 1, "x")
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: error %v does not match %v", tt.code, err, tt.want)
		}
		var se *StatusError
		if !errors.As(err, &se) || se.Code != tt.code {
			t.Errorf("status %d: expected StatusError, got %v", tt.code, err)
		}
	}
}

func TestStatusError_UnknownCodeMatchesNoSentinel(t *testing.T) {
	err := &StatusError{Endpoint: "items/read", Code: 500}
	for _, s := range []error{ErrNotFound, ErrAlreadyExists, ErrUnprocessable, ErrServerTooOld} {
		if errors.Is(err, s) {
			t.Errorf("500 matched %v", s)
		}
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestDownload_ClosedServerIsTransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	c, err := NewClient(url, "u", "p", slog.Default(), WithMaxAttempts(1))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	err = c.MarkItemsRead(context.Background(), []int64{1})
	if !IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestDownload_RetriesGetOnTransportFailure(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Drop the connection without a response.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("hijacking not supported")
				return
			}
			conn, _, _ := hj.Hijack()
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte(`{"version":"25.0.0"}`))
	}))
	t.Cleanup(ts.Close)

	c, err := NewClient(ts.URL, "u", "p", slog.Default(), WithHTTPClient(ts.Client()), WithMaxAttempts(3))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	v, err := c.Version(context.Background())
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != "25.0.0" {
		t.Errorf("version = %q", v)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("server saw %d calls, want 2", n)
	}
}

func TestDownload_DoesNotRetryPost(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	c.maxAttempts = 3

	err := c.StarItems(context.Background(), []model.StarRef{{FeedID: 1, GUIDHash: "h"}})
	if !IsStatus(err) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server saw %d calls, want 1", n)
	}
}

func TestAddFeed_ReturnsCreatedFeed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != apiPrefix+"/feeds" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		if body["url"] != "https://blog.test/feed" || body["folderId"] != nil {
			t.Errorf("unexpected body: %v", body)
		}
		_, _ = w.Write([]byte(`{"feeds":[{"id":42,"title":"Blog","url":"https://blog.test/feed","folderId":null}],"newestItemId":7}`))
	})

	feed, err := c.AddFeed(context.Background(), "https://blog.test/feed", nil)
	if err != nil {
		t.Fatalf("AddFeed: %v", err)
	}
	if feed.ID != 42 || feed.Title != "Blog" {
		t.Errorf("feed = %+v", feed)
	}
}

func TestAddFolder_EmptyResponseIsDecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"folders":[]}`))
	})
	_, err := c.AddFolder(context.Background(), "Tech")
	if !IsDecode(err) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}
