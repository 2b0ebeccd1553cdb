package setup

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/njoerd114/newssync/internal/config"
)

// ---------------------------------------------------------------------------
// Prompter
// ---------------------------------------------------------------------------

func TestPrompter_StringDefaultAndRequired(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("\n\nvalue\n"), &out)

	if got := p.String("With default", "dflt"); got != "dflt" {
		t.Errorf("String = %q, want default", got)
	}
	if got := p.String("Required", ""); got != "value" {
		t.Errorf("String = %q, want value after retry", got)
	}
	if !strings.Contains(out.String(), "required") {
		t.Error("no retry hint printed for empty required input")
	}
}

func TestPrompter_URLRequiresScheme(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("cloud.example.com\nftp://x\nhttps://cloud.example.com/\n"), &out)
	if got := p.URL("Server"); got != "https://cloud.example.com/" {
		t.Errorf("URL = %q", got)
	}
	if n := strings.Count(out.String(), "http:// or https://"); n != 2 {
		t.Errorf("retry hints = %d, want 2\n%s", n, out.String())
	}
}

func TestPrompter_IntRejectsNegative(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("-2\nabc\n7\n"), &out)
	if got := p.Int("Months", 3); got != 7 {
		t.Errorf("Int = %d, want 7", got)
	}
}

func TestPrompter_Confirm(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("\nyes\nn\n"), &out)
	if !p.Confirm("q", true) {
		t.Error("empty answer with defaultYes = false")
	}
	if !p.Confirm("q", false) {
		t.Error(`"yes" = false`)
	}
	if p.Confirm("q", true) {
		t.Error(`"n" = true`)
	}
}

// ---------------------------------------------------------------------------
// Wizard
// ---------------------------------------------------------------------------

type fakeSecrets struct {
	saved map[string]string
	err   error
}

func (f *fakeSecrets) Save(server, user, password string) error {
	if f.err != nil {
		return f.err
	}
	f.saved[user+"@"+server] = password
	return nil
}

func okServer(context.Context, string, string, string) (string, error) { return "25.1.0", nil }

func TestWizard_WritesConfigAndStoresPassword(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	in := strings.NewReader("https://cloud.example.com\nalice\nhunter2\n30m\n6\n")
	var out bytes.Buffer
	secrets := &fakeSecrets{saved: map[string]string{}}

	cfg, err := NewWizard(in, &out, slog.Default(), cfgPath, secrets, okServer).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v\n%s", err, out.String())
	}
	if cfg.Password != "" {
		t.Error("password written to config although keyring worked")
	}
	if secrets.saved["alice@https://cloud.example.com"] != "hunter2" {
		t.Errorf("keyring = %v", secrets.saved)
	}

	loaded, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.SyncInterval != 30*time.Minute || loaded.Retention() != 6 || loaded.Username != "alice" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestWizard_KeyringFailureFallsBackToConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	in := strings.NewReader("http://nc.local\nbob\npw\n\n\n")
	var out bytes.Buffer
	secrets := &fakeSecrets{err: errors.New("no secret service")}

	cfg, err := NewWizard(in, &out, slog.Default(), cfgPath, secrets, okServer).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cfg.Password != "pw" {
		t.Errorf("Password = %q, want fallback to config", cfg.Password)
	}
	if cfg.SyncInterval != config.DefaultSyncInterval || cfg.Retention() != config.DefaultKeepMonths {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestWizard_UnreachableServer(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	in := strings.NewReader("http://nc.local\nbob\npw\n")
	var out bytes.Buffer
	check := func(context.Context, string, string, string) (string, error) {
		return "", errors.New("connection refused")
	}

	if _, err := NewWizard(in, &out, slog.Default(), cfgPath, nil, check).Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(cfgPath); !os.IsNotExist(err) {
		t.Error("config written despite failed connection check")
	}
}

func TestWizard_KeepsExistingConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := config.Write(cfgPath, &config.Config{ServerURL: "http://nc.local", Username: "bob"}); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	cfg, err := NewWizard(strings.NewReader("n\n"), &out, slog.Default(), cfgPath, nil, okServer).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cfg.Username != "bob" {
		t.Errorf("Username = %q, want existing", cfg.Username)
	}
}

// ---------------------------------------------------------------------------
// systemd unit
// ---------------------------------------------------------------------------

func TestWriteUnit(t *testing.T) {
	home := t.TempDir()
	if err := WriteUnit(home, "/etc/newssync.yaml"); err != nil {
		t.Fatalf("WriteUnit: %v", err)
	}
	data, err := os.ReadFile(UnitPath(home))
	if err != nil {
		t.Fatalf("reading unit: %v", err)
	}
	want := "ExecStart=" + BinaryInstallPath(home) + " daemon --config /etc/newssync.yaml"
	if !strings.Contains(string(data), want) {
		t.Errorf("unit missing %q:\n%s", want, data)
	}

	if err := RemoveUnit(home); err != nil {
		t.Fatalf("RemoveUnit: %v", err)
	}
	if err := RemoveUnit(home); err != nil {
		t.Errorf("second RemoveUnit: %v", err)
	}
}

func TestPurgeUserData(t *testing.T) {
	home := t.TempDir()
	dir := filepath.Join(home, ".local", "share", BinaryName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := PurgeUserData(home); err != nil {
		t.Fatalf("PurgeUserData: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("state directory not removed")
	}
}
