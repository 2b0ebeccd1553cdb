package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/njoerd114/newssync/internal/model"
	"github.com/njoerd114/newssync/internal/state"
	syncp "github.com/njoerd114/newssync/internal/sync"
)

func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Show folders and feeds with unread counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(a *app) error {
				rows, err := a.engine.Tree(cmd.Context())
				if err != nil {
					return err
				}
				printTree(cmd.OutOrStdout(), rows)
				return nil
			})
		},
	}
}

func printTree(out io.Writer, rows []syncp.TreeRow) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, r := range rows {
		indent := strings.Repeat("  ", r.Depth)
		fmt.Fprintf(tw, "%s\t%s%s\t%s\t\n", humanize.Comma(int64(r.Count)), indent, r.Title, r.Node.Key())
	}
	_ = tw.Flush()
}

func newCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count [node]",
		Short: "Print the unread count of a node (default: every feed)",
		Long:  "Nodes are all, unread, starred, folder:<id> or feed:<id>. For starred the\nstarred count is printed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			node := model.UnreadNode
			if len(args) == 1 {
				var err error
				if node, err = model.ParseNode(args[0]); err != nil {
					return err
				}
			}
			return withApp(cmd, false, func(a *app) error {
				fmt.Fprintln(cmd.OutOrStdout(), a.engine.Cache().Count(node))
				return nil
			})
		},
	}
}

func newItemsCmd() *cobra.Command {
	var (
		unreadOnly bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "items [node]",
		Short: "List stored items, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			node := model.AllNode
			if len(args) == 1 {
				var err error
				if node, err = model.ParseNode(args[0]); err != nil {
					return err
				}
			}
			return withApp(cmd, false, func(a *app) error {
				items, err := a.store.Items(cmd.Context(), state.ItemQuery{Node: node, UnreadOnly: unreadOnly, Limit: limit})
				if err != nil {
					return err
				}
				printItems(cmd.OutOrStdout(), items)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&unreadOnly, "unread", "u", false, "only unread items")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of items (0 for all)")
	return cmd
}

func printItems(out io.Writer, items []model.Item) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, it := range items {
		flags := []byte("--")
		if it.Unread {
			flags[0] = 'U'
		}
		if it.Starred {
			flags[1] = '*'
		}
		when := "-"
		if !it.PubDate.IsZero() {
			when = humanize.Time(it.PubDate)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", it.ID, flags, when, it.Title)
	}
	_ = tw.Flush()
}

// newMarkCmds returns read, unread, star and unstar.
func newMarkCmds() []*cobra.Command {
	type action func(e *syncp.Engine, ctx context.Context, ids []int64) (syncp.MutationResult, error)
	defs := []struct {
		use, short string
		fn         action
	}{
		{"read", "Mark items read", (*syncp.Engine).MarkRead},
		{"unread", "Mark items unread", (*syncp.Engine).MarkUnread},
		{"star", "Star items", (*syncp.Engine).Star},
		{"unstar", "Unstar items", (*syncp.Engine).Unstar},
	}

	cmds := make([]*cobra.Command, 0, len(defs))
	for _, d := range defs {
		cmds = append(cmds, &cobra.Command{
			Use:   d.use + " <item-id>...",
			Short: d.short,
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, err := parseIDs(args)
				if err != nil {
					return err
				}
				return withApp(cmd, false, func(a *app) error {
					res, err := d.fn(a.engine, cmd.Context(), ids)
					if err != nil {
						return err
					}
					printMutation(cmd.OutOrStdout(), res, a.engine.Cache().Total())
					return nil
				})
			},
		})
	}
	return cmds
}

func newMarkAllReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark-all-read <node>",
		Short: "Mark every unread item under a node read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := model.ParseNode(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, false, func(a *app) error {
				res, err := a.engine.MarkNodeRead(cmd.Context(), node)
				if err != nil {
					return err
				}
				printMutation(cmd.OutOrStdout(), res, a.engine.Cache().Total())
				return nil
			})
		},
	}
}

func printMutation(out io.Writer, res syncp.MutationResult, unread int) {
	fmt.Fprintf(out, "%d changed, %s unread\n", res.Changed, humanize.Comma(int64(unread)))
	if res.PushErr != nil {
		fmt.Fprintf(out, "⚠ not sent to the server yet (%v); the next sync retries\n", res.PushErr)
	}
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("invalid item id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
