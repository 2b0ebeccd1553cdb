package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	syncp "github.com/njoerd114/newssync/internal/sync"
)

// newsServer is a minimal News API backing the end-to-end command tests.
type newsServer struct {
	mu        sync.Mutex
	readIDs   []string
	requested []string
}

func (s *newsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/index.php/apps/news/api/v1-3")
	s.mu.Lock()
	s.requested = append(s.requested, r.Method+" "+path)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case path == "/folders":
		fmt.Fprint(w, `{"folders":[{"id":1,"name":"Tech"}]}`)
	case path == "/feeds":
		fmt.Fprint(w, `{"feeds":[{"id":10,"title":"Go Blog","url":"https://go.dev/blog/feed.atom","folderId":1}],"starredCount":0}`)
	case path == "/items" && r.URL.Query().Get("type") == "2":
		fmt.Fprint(w, `{"items":[]}`)
	case path == "/items" || path == "/items/updated":
		fmt.Fprint(w, `{"items":[
			{"id":1,"feedId":10,"guidHash":"a","title":"One","unread":true,"starred":false,"lastModified":1000,"pubDate":1700000000},
			{"id":2,"feedId":10,"guidHash":"b","title":"Two","unread":true,"starred":false,"lastModified":1001,"pubDate":1700000100}]}`)
	case path == "/items/read/multiple":
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		s.mu.Lock()
		s.readIDs = append(s.readIDs, buf.String())
		s.mu.Unlock()
	case path == "/version":
		fmt.Fprint(w, `{"version":"25.1.0"}`)
	default:
		http.NotFound(w, r)
	}
}

func writeTestConfig(t *testing.T, serverURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`server_url: %q
username: alice
password: secret
keep_months: 0
db_path: %q
`, serverURL, filepath.Join(dir, "state.db"))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands_SyncThenMarkRead(t *testing.T) {
	srv := &newsServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	cfg := writeTestConfig(t, ts.URL)

	out, err := runCmd(t, "--config", cfg, "sync")
	if err != nil {
		t.Fatalf("sync: %v\n%s", err, out)
	}
	if !strings.Contains(out, "initial sync") || !strings.Contains(out, "pull-unread") {
		t.Errorf("sync output:\n%s", out)
	}

	out, err = runCmd(t, "--config", cfg, "count")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if strings.TrimSpace(out) != "2" {
		t.Errorf("count = %q, want 2", out)
	}

	out, err = runCmd(t, "--config", cfg, "count", "feed:10")
	if err != nil {
		t.Fatalf("count feed: %v", err)
	}
	if strings.TrimSpace(out) != "2" {
		t.Errorf("count feed:10 = %q, want 2", out)
	}

	out, err = runCmd(t, "--config", cfg, "read", "1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(out, "1 changed, 1 unread") {
		t.Errorf("read output = %q", out)
	}
	srv.mu.Lock()
	pushed := append([]string(nil), srv.readIDs...)
	srv.mu.Unlock()
	if len(pushed) != 1 || !strings.Contains(pushed[0], "[1]") {
		t.Errorf("read pushes = %v", pushed)
	}

	out, err = runCmd(t, "--config", cfg, "tree")
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if !strings.Contains(out, "Go Blog") || !strings.Contains(out, "folder:1") {
		t.Errorf("tree output:\n%s", out)
	}

	out, err = runCmd(t, "--config", cfg, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"1 folders, 1 feeds, 2 items", "Retention:", "keep everything"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestCommands_ApplyRejectsUnknownKind(t *testing.T) {
	if _, err := runCmd(t, "apply", "bogus", "-"); err == nil {
		t.Fatal("expected error for unknown payload kind")
	}
}

func TestCommands_MissingConfig(t *testing.T) {
	_, err := runCmd(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "sync")
	if err == nil || !strings.Contains(err.Error(), "newssync setup") {
		t.Errorf("err = %v, want hint to run setup", err)
	}
}

func TestNewRootCmd_HasCommands(t *testing.T) {
	root := NewRootCmd()
	for _, path := range [][]string{
		{"setup"}, {"login"}, {"daemon"}, {"sync"}, {"status"}, {"apply"},
		{"tree"}, {"count"}, {"unread"}, {"items"}, {"read"}, {"star"}, {"unstar"}, {"mark-all-read"},
		{"feed", "add"}, {"feed", "prefer-web"}, {"folder", "expand"}, {"version"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("command %v not found", path)
		}
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1,2", "3"})
	if err != nil || len(ids) != 3 || ids[2] != 3 {
		t.Errorf("parseIDs = %v, %v", ids, err)
	}
	if _, err := parseIDs([]string{"x"}); err == nil {
		t.Error("expected error for non-numeric id")
	}
	if _, err := parseIDs([]string{"0"}); err == nil {
		t.Error("expected error for zero id")
	}
}

func TestParseFolderArg(t *testing.T) {
	if id, err := parseFolderArg("root"); err != nil || id != nil {
		t.Errorf("root = %v, %v", id, err)
	}
	if id, err := parseFolderArg("4"); err != nil || *id != 4 {
		t.Errorf("4 = %v, %v", id, err)
	}
	if _, err := parseFolderArg("-1"); err == nil {
		t.Error("expected error for negative id")
	}
}

func TestPrintReport(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rep := &syncp.Report{
		Mode:     syncp.ModeRepeat,
		Started:  start,
		Finished: start.Add(1500 * time.Millisecond),
		Steps: []syncp.Step{
			{Name: syncp.StepPushRead, Status: syncp.StepSucceeded, Count: 1200},
			{Name: syncp.StepPullItems, Status: syncp.StepFailed, Err: fmt.Errorf("boom")},
			{Name: syncp.StepPrune},
		},
	}
	var buf bytes.Buffer
	printReport(&buf, rep, 5)
	out := buf.String()
	for _, want := range []string{"repeat sync in 1.5s", "1,200", "boom", "skipped", "Unread:"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
