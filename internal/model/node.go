package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NodeKind discriminates the Node union.
type NodeKind int

const (
	NodeAll NodeKind = iota
	NodeUnread
	NodeStarred
	NodeFolder
	NodeFeed
)

// String returns the kind label used in keys and CLI output.
func (k NodeKind) String() string {
	switch k {
	case NodeAll:
		return "all"
	case NodeUnread:
		return "unread"
	case NodeStarred:
		return "starred"
	case NodeFolder:
		return "folder"
	case NodeFeed:
		return "feed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Node is a navigable collection of items: one of the virtual nodes (All,
// Unread, Starred) or a specific Folder or Feed. ID is only meaningful for
// NodeFolder and NodeFeed.
type Node struct {
	Kind NodeKind
	ID   int64
}

// NodeKey is the stable cache key derived from a Node.
type NodeKey string

// Convenience constructors.
var (
	AllNode     = Node{Kind: NodeAll}
	UnreadNode  = Node{Kind: NodeUnread}
	StarredNode = Node{Kind: NodeStarred}
)

// FolderNode returns the node for folder id.
func FolderNode(id int64) Node { return Node{Kind: NodeFolder, ID: id} }

// FeedNode returns the node for feed id.
func FeedNode(id int64) Node { return Node{Kind: NodeFeed, ID: id} }

// Key returns the node's cache key. Virtual nodes map to their kind name;
// folders and feeds carry their id after a colon so a folder and a feed with
// the same numeric id never collide.
func (n Node) Key() NodeKey {
	switch n.Kind {
	case NodeFolder, NodeFeed:
		return NodeKey(fmt.Sprintf("%s:%d", n.Kind, n.ID))
	default:
		return NodeKey(n.Kind.String())
	}
}

// String implements fmt.Stringer.
func (n Node) String() string { return string(n.Key()) }

// ParseNode is the inverse of Node.Key. It accepts "all", "unread",
// "starred", "folder:<id>" and "feed:<id>".
func ParseNode(s string) (Node, error) {
	switch s {
	case "all":
		return AllNode, nil
	case "unread":
		return UnreadNode, nil
	case "starred":
		return StarredNode, nil
	}

	kind, rawID, ok := strings.Cut(s, ":")
	if !ok {
		return Node{}, fmt.Errorf("unknown node %q", s)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return Node{}, fmt.Errorf("node %q has an invalid id", s)
	}
	switch kind {
	case "folder":
		return FolderNode(id), nil
	case "feed":
		return FeedNode(id), nil
	default:
		return Node{}, fmt.Errorf("unknown node kind %q", kind)
	}
}

// TreeEntry is one row of the navigation tree. Depth is 0 for virtual nodes,
// folders and top-level feeds, 1 for feeds inside a folder.
type TreeEntry struct {
	Node  Node
	Title string
	Depth int
}

// BuildTree returns the navigation order: All, Unread, Starred, then each
// folder (by name) followed by its feeds, then top-level feeds. Within a
// group, pinned feeds come first, then by ordering and title.
func BuildTree(folders []Folder, feeds []Feed) []TreeEntry {
	tree := []TreeEntry{
		{Node: AllNode, Title: "All Articles"},
		{Node: UnreadNode, Title: "Unread Articles"},
		{Node: StarredNode, Title: "Starred Articles"},
	}

	sortedFolders := append([]Folder(nil), folders...)
	sort.SliceStable(sortedFolders, func(i, j int) bool {
		return strings.ToLower(sortedFolders[i].Name) < strings.ToLower(sortedFolders[j].Name)
	})

	byFolder := make(map[int64][]Feed)
	var topLevel []Feed
	known := make(map[int64]bool, len(folders))
	for _, f := range folders {
		known[f.ID] = true
	}
	for _, f := range feeds {
		// Feeds pointing at an unknown folder are shown at the top level
		// rather than disappearing.
		if f.FolderID != nil && known[*f.FolderID] {
			byFolder[*f.FolderID] = append(byFolder[*f.FolderID], f)
			continue
		}
		topLevel = append(topLevel, f)
	}

	for _, folder := range sortedFolders {
		tree = append(tree, TreeEntry{Node: FolderNode(folder.ID), Title: folder.Name})
		for _, f := range sortFeeds(byFolder[folder.ID]) {
			tree = append(tree, TreeEntry{Node: FeedNode(f.ID), Title: f.Title, Depth: 1})
		}
	}
	for _, f := range sortFeeds(topLevel) {
		tree = append(tree, TreeEntry{Node: FeedNode(f.ID), Title: f.Title})
	}
	return tree
}

func sortFeeds(feeds []Feed) []Feed {
	out := append([]Feed(nil), feeds...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pinned != out[j].Pinned {
			return out[i].Pinned
		}
		if out[i].Ordering != out[j].Ordering {
			return out[i].Ordering < out[j].Ordering
		}
		return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
	})
	return out
}
