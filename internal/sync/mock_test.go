package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/njoerd114/newssync/internal/model"
	"github.com/njoerd114/newssync/internal/newsapi"
)

// --- Mock News server ---------------------------------------------------------

// mockAPI is an in-memory News server. Mutations bump the item's
// lastModified from a server clock, like the real server does.
type mockAPI struct {
	mu sync.Mutex

	folders []model.Folder
	feeds   []model.Feed
	items   map[int64]*model.Item
	clock   int64
	nextID  int64
	version string

	// fail maps endpoint names to the error returned for them.
	fail map[string]error
	// malformed endpoints return a truncated JSON body.
	malformed map[string]bool

	calls        []string
	readPushes   [][]int64
	unreadPushes [][]int64
	starPushes   [][]model.StarRef
	unstarPushes [][]model.StarRef
	updatedSince []int64

	// block, when set, holds every Download until closed. started is closed
	// when the first blocked Download arrives.
	block     chan struct{}
	started   chan struct{}
	startOnce sync.Once
}

func newMockAPI() *mockAPI {
	return &mockAPI{
		items:     make(map[int64]*model.Item),
		clock:     2000,
		nextID:    100,
		version:   "25.1.0",
		fail:      make(map[string]error),
		malformed: make(map[string]bool),
	}
}

func statusErr(endpoint string, code int) error {
	return &newsapi.StatusError{Endpoint: endpoint, Code: code}
}

func transportErr(endpoint string) error {
	return &newsapi.TransportError{Endpoint: endpoint, Err: errors.New("connection refused")}
}

func (m *mockAPI) setFail(endpoint string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, endpoint)
		return
	}
	m.fail[endpoint] = err
}

func (m *mockAPI) setMalformed(endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.malformed[endpoint] = true
}

func (m *mockAPI) addItem(it model.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := it
	m.items[it.ID] = &cp
}

func (m *mockAPI) item(id int64) model.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.items[id]
}

func (m *mockAPI) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockAPI) countCalls(name string) int {
	n := 0
	for _, c := range m.callLog() {
		if c == name {
			n++
		}
	}
	return n
}

// enter records a call and returns the injected failure, if any. Callers
// hold mu.
func (m *mockAPI) enter(name string) error {
	m.calls = append(m.calls, name)
	return m.fail[name]
}

func (m *mockAPI) Download(ctx context.Context, ep newsapi.Endpoint) ([]byte, error) {
	m.mu.Lock()
	block := m.block
	m.mu.Unlock()
	if block != nil {
		m.startOnce.Do(func() { close(m.started) })
		select {
		case <-block:
		case <-ctx.Done():
			return nil, &newsapi.TransportError{Endpoint: ep.Name, Err: ctx.Err()}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ep.Name); err != nil {
		return nil, err
	}
	if m.malformed[ep.Name] {
		return []byte(`{"items": [`), nil
	}

	switch ep.Name {
	case "folders":
		return m.foldersJSON(), nil
	case "feeds":
		return m.feedsJSON(m.feeds), nil
	case "items":
		typ, _ := strconv.Atoi(ep.Query.Get("type"))
		id, _ := strconv.ParseInt(ep.Query.Get("id"), 10, 64)
		getRead := ep.Query.Get("getRead") == "true"
		return m.itemsJSON(func(it *model.Item) bool {
			if !getRead && !it.Unread {
				return false
			}
			switch newsapi.ItemType(typ) {
			case newsapi.ItemTypeStarred:
				return it.Starred
			case newsapi.ItemTypeFeed:
				return it.FeedID == id
			default:
				return true
			}
		}), nil
	case "items/updated":
		since, _ := strconv.ParseInt(ep.Query.Get("lastModified"), 10, 64)
		m.updatedSince = append(m.updatedSince, since)
		return m.itemsJSON(func(it *model.Item) bool { return it.LastModified >= since }), nil
	case "version":
		return []byte(fmt.Sprintf(`{"version":%q}`, m.version)), nil
	default:
		return nil, statusErr(ep.Name, http.StatusNotFound)
	}
}

func (m *mockAPI) foldersJSON() []byte {
	out := make([]map[string]any, 0, len(m.folders))
	for _, f := range m.folders {
		out = append(out, map[string]any{"id": f.ID, "name": f.Name})
	}
	b, _ := json.Marshal(map[string]any{"folders": out})
	return b
}

func (m *mockAPI) feedsJSON(feeds []model.Feed) []byte {
	out := make([]map[string]any, 0, len(feeds))
	for _, f := range feeds {
		var folder any
		if f.FolderID != nil {
			folder = *f.FolderID
		}
		out = append(out, map[string]any{
			"id": f.ID, "url": f.URL, "title": f.Title, "folderId": folder,
			"pinned": f.Pinned, "ordering": f.Ordering,
		})
	}
	b, _ := json.Marshal(map[string]any{"feeds": out})
	return b
}

func (m *mockAPI) itemsJSON(match func(*model.Item) bool) []byte {
	ids := make([]int64, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := []map[string]any{}
	for _, id := range ids {
		it := m.items[id]
		if !match(it) {
			continue
		}
		out = append(out, map[string]any{
			"id": it.ID, "feedId": it.FeedID, "guid": it.GUID, "guidHash": it.GUIDHash,
			"title": it.Title, "body": it.Body, "url": it.URL,
			"unread": it.Unread, "starred": it.Starred,
			"lastModified": it.LastModified, "pubDate": it.PubDate.Unix(),
			"mediaThumbnail": it.ImageLink,
		})
	}
	b, _ := json.Marshal(map[string]any{"items": out})
	return b
}

func (m *mockAPI) Version(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("version"); err != nil {
		return "", err
	}
	return m.version, nil
}

// --- Item state pushes --------------------------------------------------------

func (m *mockAPI) touch(it *model.Item) {
	m.clock++
	it.LastModified = m.clock
}

func (m *mockAPI) MarkItemsRead(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("items/read"); err != nil {
		return err
	}
	m.readPushes = append(m.readPushes, append([]int64(nil), ids...))
	for _, id := range ids {
		if it, ok := m.items[id]; ok && it.Unread {
			it.Unread = false
			m.touch(it)
		}
	}
	return nil
}

func (m *mockAPI) MarkItemsUnread(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("items/unread"); err != nil {
		return err
	}
	m.unreadPushes = append(m.unreadPushes, append([]int64(nil), ids...))
	for _, id := range ids {
		if it, ok := m.items[id]; ok && !it.Unread {
			it.Unread = true
			m.touch(it)
		}
	}
	return nil
}

func (m *mockAPI) StarItems(_ context.Context, refs []model.StarRef) error {
	return m.setStarred("items/star", refs, true)
}

func (m *mockAPI) UnstarItems(_ context.Context, refs []model.StarRef) error {
	return m.setStarred("items/unstar", refs, false)
}

func (m *mockAPI) setStarred(name string, refs []model.StarRef, starred bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(name); err != nil {
		return err
	}
	if starred {
		m.starPushes = append(m.starPushes, append([]model.StarRef(nil), refs...))
	} else {
		m.unstarPushes = append(m.unstarPushes, append([]model.StarRef(nil), refs...))
	}
	for _, ref := range refs {
		for _, it := range m.items {
			if it.FeedID == ref.FeedID && it.GUIDHash == ref.GUIDHash && it.Starred != starred {
				it.Starred = starred
				m.touch(it)
			}
		}
	}
	return nil
}

// --- Feed and folder management -----------------------------------------------

func (m *mockAPI) feedIndex(id int64) int {
	for i, f := range m.feeds {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func (m *mockAPI) folderIndex(id int64) int {
	for i, f := range m.folders {
		if f.ID == id {
			return i
		}
	}
	return -1
}

// AddFeed creates the feed with two unread items.
func (m *mockAPI) AddFeed(_ context.Context, feedURL string, folderID *int64) (*model.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("feeds/add"); err != nil {
		return nil, err
	}
	for _, f := range m.feeds {
		if f.URL == feedURL {
			return nil, statusErr("feeds/add", http.StatusConflict)
		}
	}
	m.nextID++
	feed := model.Feed{ID: m.nextID, URL: feedURL, Title: "Feed " + feedURL, FolderID: folderID}
	m.feeds = append(m.feeds, feed)
	for range 2 {
		m.nextID++
		m.clock++
		m.items[m.nextID] = &model.Item{
			ID: m.nextID, FeedID: feed.ID, GUIDHash: fmt.Sprintf("g%d", m.nextID), Unread: true, LastModified: m.clock,
		}
	}
	return &feed, nil
}

func (m *mockAPI) DeleteFeed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("feeds/delete"); err != nil {
		return err
	}
	i := m.feedIndex(id)
	if i < 0 {
		return statusErr("feeds/delete", http.StatusNotFound)
	}
	m.feeds = append(m.feeds[:i], m.feeds[i+1:]...)
	for iid, it := range m.items {
		if it.FeedID == id {
			delete(m.items, iid)
		}
	}
	return nil
}

func (m *mockAPI) MoveFeed(_ context.Context, id int64, folderID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("feeds/move"); err != nil {
		return err
	}
	i := m.feedIndex(id)
	if i < 0 {
		return statusErr("feeds/move", http.StatusNotFound)
	}
	m.feeds[i].FolderID = folderID
	return nil
}

func (m *mockAPI) RenameFeed(_ context.Context, id int64, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("feeds/rename"); err != nil {
		return err
	}
	i := m.feedIndex(id)
	if i < 0 {
		return statusErr("feeds/rename", http.StatusNotFound)
	}
	m.feeds[i].Title = title
	return nil
}

func (m *mockAPI) AddFolder(_ context.Context, name string) (*model.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("folders/add"); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, statusErr("folders/add", http.StatusUnprocessableEntity)
	}
	for _, f := range m.folders {
		if f.Name == name {
			return nil, statusErr("folders/add", http.StatusConflict)
		}
	}
	m.nextID++
	f := model.Folder{ID: m.nextID, Name: name}
	m.folders = append(m.folders, f)
	return &f, nil
}

func (m *mockAPI) DeleteFolder(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("folders/delete"); err != nil {
		return err
	}
	i := m.folderIndex(id)
	if i < 0 {
		return statusErr("folders/delete", http.StatusNotFound)
	}
	m.folders = append(m.folders[:i], m.folders[i+1:]...)
	return nil
}

func (m *mockAPI) RenameFolder(_ context.Context, id int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("folders/rename"); err != nil {
		return err
	}
	i := m.folderIndex(id)
	if i < 0 {
		return statusErr("folders/rename", http.StatusNotFound)
	}
	m.folders[i].Name = name
	return nil
}
