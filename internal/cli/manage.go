package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/njoerd114/newssync/internal/feedprobe"
	"github.com/njoerd114/newssync/internal/model"
)

func newFeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Manage feed subscriptions",
	}
	cmd.AddCommand(newFeedAddCmd())

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <feed-id>",
		Short: "Unsubscribe from a feed and delete its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("feed", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, false, func(a *app) error {
				if err := a.engine.DeleteFeed(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Feed %d deleted\n", id)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "move <feed-id> <folder-id|root>",
		Short: "Move a feed into a folder or to the top level",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("feed", args[0])
			if err != nil {
				return err
			}
			folderID, err := parseFolderArg(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd, false, func(a *app) error {
				return a.engine.MoveFeed(cmd.Context(), id, folderID)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <feed-id> <title>",
		Short: "Rename a feed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("feed", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, false, func(a *app) error {
				return a.engine.RenameFeed(cmd.Context(), id, args[1])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "prefer-web <feed-id> <on|off>",
		Short: "Open items of a feed as web pages instead of stored bodies",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("feed", args[0])
			if err != nil {
				return err
			}
			on, err := parseOnOff(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd, false, func(a *app) error {
				return a.engine.SetFeedPreferWeb(cmd.Context(), id, on)
			})
		},
	})
	return cmd
}

func newFeedAddCmd() *cobra.Command {
	var (
		folder string
		probe  bool
	)

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Subscribe to a feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folderID, err := parseFolderArg(folder)
			if err != nil {
				return err
			}
			return withApp(cmd, false, func(a *app) error {
				out := cmd.OutOrStdout()
				if probe {
					res, err := feedprobe.New(a.cfg.RequestTimeout).Probe(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "  ✓ %q with %d items\n", res.Title, res.Items)
				}
				feed, err := a.engine.AddFeed(cmd.Context(), args[0], folderID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Subscribed to %s (feed:%d), %d unread\n",
					feed.Title, feed.ID, a.engine.Cache().Count(model.FeedNode(feed.ID)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&folder, "folder", "root", "folder id to file the feed under")
	cmd.Flags().BoolVar(&probe, "probe", false, "fetch and parse the feed locally before subscribing")
	return cmd
}

func newFolderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Manage folders",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(a *app) error {
				f, err := a.engine.AddFolder(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created folder %q (folder:%d)\n", f.Name, f.ID)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <folder-id>",
		Short: "Delete a folder with its feeds and items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("folder", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, false, func(a *app) error {
				return a.engine.DeleteFolder(cmd.Context(), id)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <folder-id> <name>",
		Short: "Rename a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("folder", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, false, func(a *app) error {
				return a.engine.RenameFolder(cmd.Context(), id, args[1])
			})
		},
	})

	var collapse bool
	expand := &cobra.Command{
		Use:   "expand <folder-id>",
		Short: "Mark a folder expanded (or collapsed with --collapse)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("folder", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, false, func(a *app) error {
				return a.engine.SetFolderExpanded(cmd.Context(), id, !collapse)
			})
		},
	}
	expand.Flags().BoolVar(&collapse, "collapse", false, "collapse instead")
	cmd.AddCommand(expand)
	return cmd
}

func parseID(what, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}

// parseFolderArg maps "root" or "" to the top level.
func parseFolderArg(s string) (*int64, error) {
	if s == "" || s == "root" {
		return nil, nil
	}
	id, err := parseID("folder", s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	default:
		return false, fmt.Errorf("want on or off, got %q", s)
	}
}
