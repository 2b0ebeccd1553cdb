// Package cli builds the newssync command tree and wires the store, API
// client and sync engine together for each command.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// version is set via ldflags at build time.
	version = "dev"
	cfgFile string
	verbose bool
)

// NewRootCmd returns the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "newssync",
		Short: "Sync client for Nextcloud News",
		Long: "newssync mirrors a Nextcloud News account into a local SQLite database,\n" +
			"pushes read and star changes back, and keeps unread counts current.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("newssync %s\n", version))
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default ~/.config/newssync/config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newSetupCmd())
	root.AddCommand(newLoginCmd())
	root.AddCommand(newInstallCmd())
	root.AddCommand(newUninstallCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newDaemonCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newApplyCmd())
	root.AddCommand(newTreeCmd())
	root.AddCommand(newCountCmd())
	root.AddCommand(newItemsCmd())
	root.AddCommand(newMarkCmds()...)
	root.AddCommand(newMarkAllReadCmd())
	root.AddCommand(newFeedCmd())
	root.AddCommand(newFolderCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// SetVersion overrides the reported version.
func SetVersion(v string) {
	version = v
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "newssync", version)
		},
	}
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, withTelemetry bool, fn func(*app) error) error {
	a, err := openApp(cmd.Context(), withTelemetry)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil {
			a.logger.Error("shutdown", "error", cerr)
		}
	}()
	return fn(a)
}

// stdinIsTerminal reports whether stdin looks interactive.
func stdinIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
