package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/njoerd114/newssync/internal/model"
	"github.com/njoerd114/newssync/internal/notify"
	"github.com/njoerd114/newssync/internal/setup"
	"github.com/njoerd114/newssync/internal/state"
	syncp "github.com/njoerd114/newssync/internal/sync"
)

func newSyncCmd() *cobra.Command {
	var background bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass and exit",
		Long: "Runs an initial sync when the local store is empty, otherwise pushes\n" +
			"pending changes and pulls everything modified since the last pass.\n" +
			"With --background only pulls; pending changes wait for the next full sync.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, true, func(a *app) error {
				var (
					rep *syncp.Report
					err error
				)
				if background {
					rep, err = a.engine.BackgroundSync(cmd.Context())
				} else {
					rep, err = a.engine.Sync(cmd.Context())
				}
				if rep != nil {
					printReport(cmd.OutOrStdout(), rep, a.engine.Cache().Total())
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&background, "background", false, "pull only, leave pending changes queued")
	return cmd
}

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Sync now and then every sync_interval until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, true, func(a *app) error {
				ctx := cmd.Context()
				events, cancel := a.engine.Hub().Subscribe(16)
				defer cancel()
				go logEvents(a, events)

				a.logger.Info("daemon starting",
					"server", a.cfg.ServerURL,
					"sync_interval", a.cfg.SyncInterval,
					"background", a.cfg.Background,
					"keep_months", a.cfg.Retention(),
				)
				if err := a.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("sync engine: %w", err)
				}
				a.logger.Info("shutdown complete")
				return nil
			})
		},
	}
}

func logEvents(a *app, events <-chan notify.Event) {
	for ev := range events {
		switch ev.Kind {
		case notify.SyncCompleted:
			if ev.Err != nil {
				a.logger.Debug("event", "kind", ev.Kind, "mode", ev.Mode, "unread", ev.Unread, "error", ev.Err)
				continue
			}
			a.logger.Debug("event", "kind", ev.Kind, "mode", ev.Mode, "unread", ev.Unread)
		default:
			a.logger.Debug("event", "kind", ev.Kind, "unread", ev.Unread)
		}
	}
}

func newApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <folders|feeds|items> <file>",
		Short: "Apply a downloaded API response body to the local store",
		Long: "Decodes a response body saved from the News API (use - for stdin) and\n" +
			"applies it exactly as a sync pass would. Applying a file twice is harmless.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := syncp.ParsePayloadKind(args[0])
			if err != nil {
				return err
			}
			var body []byte
			if args[1] == "-" {
				body, err = io.ReadAll(os.Stdin)
			} else {
				body, err = os.ReadFile(args[1])
			}
			if err != nil {
				return fmt.Errorf("reading payload: %w", err)
			}

			return withApp(cmd, false, func(a *app) error {
				n, err := a.engine.ApplyDownload(cmd.Context(), kind, body)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %s %s, %s unread\n",
					humanize.Comma(int64(n)), kind, humanize.Comma(int64(a.engine.Cache().Total())))
				return nil
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, local store and daemon state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(a *app) error {
				return printStatus(cmd.Context(), cmd.OutOrStdout(), a)
			})
		},
	}
}

func printStatus(ctx context.Context, out io.Writer, a *app) error {
	path, _ := configPath()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "newssync status")
	fmt.Fprintf(tw, "  Config:\t%s\n", path)
	fmt.Fprintf(tw, "  Server:\t%s (%s)\n", a.cfg.ServerURL, a.cfg.Username)

	if setup.IsDaemonActive() {
		fmt.Fprintf(tw, "  Daemon:\trunning (systemd, every %s)\n", a.cfg.SyncInterval)
	} else {
		fmt.Fprintf(tw, "  Daemon:\tnot running\n")
	}

	dbPath := a.cfg.DBPath
	if dbPath == "" {
		dbPath, _ = state.DefaultDBPath()
	}
	if info, err := os.Stat(dbPath); err == nil {
		fmt.Fprintf(tw, "  State DB:\t%s (%s)\n", dbPath, humanize.Bytes(uint64(info.Size())))
	}

	folders, err := a.store.CountFolders(ctx)
	if err != nil {
		return err
	}
	feeds, err := a.store.CountFeeds(ctx)
	if err != nil {
		return err
	}
	items, err := a.store.CountItems(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(tw, "  Stored:\t%s folders, %s feeds, %s items\n",
		humanize.Comma(int64(folders)), humanize.Comma(int64(feeds)), humanize.Comma(int64(items)))

	c := a.engine.Cache()
	fmt.Fprintf(tw, "  Unread:\t%s (%s starred)\n",
		humanize.Comma(int64(c.Total())), humanize.Comma(int64(c.Count(model.StarredNode))))

	pending, err := a.store.CountPending(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(tw, "  Pending:\t%d read, %d unread, %d starred, %d unstarred\n",
		pending.Read, pending.Unread, pending.Starred, pending.Unstarred)

	last, err := a.store.LastSync(ctx)
	if err != nil {
		return err
	}
	if last.IsZero() {
		fmt.Fprintf(tw, "  Last sync:\tnever\n")
	} else {
		fmt.Fprintf(tw, "  Last sync:\t%s (%s)\n", humanize.Time(last), last.Local().Format(time.DateTime))
	}
	wm, err := a.store.Watermark(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(tw, "  Watermark:\t%d\n", wm)

	retention := "keep everything"
	if n := a.cfg.Retention(); n > 0 {
		retention = fmt.Sprintf("%d months", n)
	}
	fmt.Fprintf(tw, "  Retention:\t%s\n", retention)
	return tw.Flush()
}

func printReport(out io.Writer, rep *syncp.Report, unread int) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s sync in %s\n", rep.Mode, rep.Finished.Sub(rep.Started).Round(time.Millisecond))
	for _, s := range rep.Steps {
		switch s.Status {
		case syncp.StepFailed:
			fmt.Fprintf(tw, "  %s\t%s\t%v\n", s.Name, s.Status, s.Err)
		case syncp.StepSucceeded:
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", s.Name, s.Status, humanize.Comma(int64(s.Count)))
		default:
			fmt.Fprintf(tw, "  %s\t%s\t\n", s.Name, s.Status)
		}
	}
	fmt.Fprintf(tw, "Unread:\t%s\n", humanize.Comma(int64(unread)))
	_ = tw.Flush()
}
