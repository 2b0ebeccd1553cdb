package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/njoerd114/newssync/internal/config"
	"github.com/njoerd114/newssync/internal/newsapi"
)

// SecretStore keeps the server password out of the config file.
type SecretStore interface {
	Save(server, user, password string) error
}

// VersionFunc contacts the server with the given credentials and returns the
// News app version.
type VersionFunc func(ctx context.Context, serverURL, user, password string) (string, error)

// CheckServer is the VersionFunc used outside tests.
func CheckServer(logger *slog.Logger) VersionFunc {
	return func(ctx context.Context, serverURL, user, password string) (string, error) {
		client, err := newsapi.NewClient(serverURL, user, password, logger, newsapi.WithMaxAttempts(1))
		if err != nil {
			return "", err
		}
		return client.Version(ctx)
	}
}

// Wizard guides the user through first-run configuration.
type Wizard struct {
	prompt  *Prompter
	logger  *slog.Logger
	w       io.Writer
	cfgPath string
	secrets SecretStore
	check   VersionFunc
}

// NewWizard creates a Wizard that writes the config to cfgPath and stores the
// password in secrets. A nil secrets writes the password into the config.
func NewWizard(r io.Reader, w io.Writer, logger *slog.Logger, cfgPath string, secrets SecretStore, check VersionFunc) *Wizard {
	return &Wizard{
		prompt:  NewPrompter(r, w),
		logger:  logger,
		w:       w,
		cfgPath: cfgPath,
		secrets: secrets,
		check:   check,
	}
}

// Run walks the user through the server connection, sync options and config
// file creation. It returns the written config.
func (wiz *Wizard) Run(ctx context.Context) (*config.Config, error) {
	fmt.Fprintf(wiz.w, "\nWelcome to newssync setup!\n")
	fmt.Fprintf(wiz.w, "This wizard connects newssync to your Nextcloud News server.\n\n")

	if _, statErr := os.Stat(wiz.cfgPath); statErr == nil {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", wiz.cfgPath)
		if !wiz.prompt.Confirm("Overwrite existing configuration?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n")
			return config.Load(wiz.cfgPath)
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	// Step 1: server connection.
	fmt.Fprintf(wiz.w, "Step 1/3: Server\n")

	// Trimmed here so the keyring entry matches the validated config value.
	serverURL := strings.TrimRight(wiz.prompt.URL("Server URL (e.g. https://cloud.example.com)"), "/")
	user := wiz.prompt.String("Username", "")
	password := wiz.prompt.Secret("Password or app password")

	fmt.Fprintf(wiz.w, "  Connecting to %s...", serverURL)
	version, err := wiz.check(ctx, serverURL, user, password)
	if err != nil {
		fmt.Fprintf(wiz.w, " ✗\n")
		return nil, fmt.Errorf("cannot reach the News app: %w\n\n  Check the URL and credentials, then try again", err)
	}
	fmt.Fprintf(wiz.w, " ✓ (News %s)\n\n", version)

	// Step 2: sync options.
	fmt.Fprintf(wiz.w, "Step 2/3: Sync\n")

	intervalStr := wiz.prompt.String("How often should the daemon sync? (1m-24h)", config.DefaultSyncInterval.String())
	interval, parseErr := time.ParseDuration(intervalStr)
	if parseErr != nil {
		interval = config.DefaultSyncInterval
		fmt.Fprintf(wiz.w, "  (invalid duration, using default %s)\n", interval)
	}
	keepMonths := wiz.prompt.Int("Months to keep read articles (0 keeps everything)", config.DefaultKeepMonths)
	fmt.Fprintf(wiz.w, "\n")

	// Step 3: write config.
	fmt.Fprintf(wiz.w, "Step 3/3: Save Configuration\n")

	cfg := &config.Config{
		ServerURL:    serverURL,
		Username:     user,
		SyncInterval: interval,
		KeepMonths:   &keepMonths,
	}

	if wiz.secrets != nil {
		if err := wiz.secrets.Save(serverURL, user, password); err != nil {
			wiz.logger.Warn("keyring unavailable, storing password in config", "error", err)
			fmt.Fprintf(wiz.w, "  ⚠ Keyring unavailable, the password goes into the config file.\n")
			cfg.Password = password
		} else {
			fmt.Fprintf(wiz.w, "  ✓ Password saved to the system keyring\n")
		}
	} else {
		cfg.Password = password
	}

	if err := config.Write(wiz.cfgPath, cfg); err != nil {
		return nil, fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Config written to %s\n\n", wiz.cfgPath)

	fmt.Fprintf(wiz.w, "Setup complete! Next steps:\n")
	fmt.Fprintf(wiz.w, "  First sync:  newssync sync\n")
	fmt.Fprintf(wiz.w, "  Run daemon:  newssync daemon\n")
	fmt.Fprintf(wiz.w, "  Autostart:   newssync install\n\n")

	return cfg, nil
}
