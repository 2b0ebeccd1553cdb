// newssync keeps a local copy of a Nextcloud News account in sync: it pulls
// folders, feeds and items into a SQLite store, pushes read and starred
// changes back, and maintains unread counts for every folder and feed.
//
// Usage:
//
//	newssync setup                 # interactive first-run wizard
//	newssync sync [--background]   # one pass then exit
//	newssync daemon                # sync every sync_interval
//	newssync tree                  # folders and feeds with unread counts
//	newssync read|unread|star|unstar <item-id>...
//	newssync status                # config, store and daemon state
//
// Run 'newssync help' for the full command list.
package main

import (
	"log/slog"
	"os"

	"github.com/njoerd114/newssync/internal/cli"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cli.SetVersion(version)
	if err := cli.Execute(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}
