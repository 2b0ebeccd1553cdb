// Package unread keeps the in-memory unread and starred counts per navigation
// node. The [Cache] is the only owner of those counts: the sync engine calls
// Rebuild after a sync pass and Apply after a local mutation, and every
// reader goes through Count, ItemIDs or Snapshot.
package unread

import (
	"slices"
	"sync"

	"github.com/njoerd114/newssync/internal/model"
	"github.com/njoerd114/newssync/internal/state"
)

// Cache maps node keys to the set of item ids counted under that node.
// All and Unread hold every unread item, Starred every starred item, and
// each Feed and Folder node the unread items filed under it.
type Cache struct {
	mu    sync.RWMutex
	nodes map[model.NodeKey]map[int64]struct{}
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{nodes: make(map[model.NodeKey]map[int64]struct{})}
}

// Rebuild discards all counts and recomputes them from rows, which must be
// every unread or starred item in the store.
func (c *Cache) Rebuild(rows []state.ItemState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = make(map[model.NodeKey]map[int64]struct{})
	for _, r := range rows {
		c.add(r)
	}
}

// Apply adjusts counts for items whose flags changed locally. Replaying the
// same changes is harmless.
func (c *Cache) Apply(changes []state.Change) {
	if len(changes) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range changes {
		c.remove(ch.Before)
		c.add(ch.After)
	}
}

// Invalidate drops node from the cache. Used when a feed or folder is
// deleted; the aggregate nodes are corrected by the following Rebuild.
func (c *Cache) Invalidate(node model.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.nodes, node.Key())
}

// Count returns the number of items counted under node.
func (c *Cache) Count(node model.Node) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes[node.Key()])
}

// Total is the badge value: the number of unread items.
func (c *Cache) Total() int {
	return c.Count(model.UnreadNode)
}

// ItemIDs returns the ids counted under node in ascending order.
func (c *Cache) ItemIDs(node model.Node) []int64 {
	c.mu.RLock()
	set := c.nodes[node.Key()]
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Snapshot is an immutable copy of the per-node counts.
type Snapshot map[model.NodeKey]int

// Count returns the count for node, zero when absent.
func (s Snapshot) Count(node model.Node) int { return s[node.Key()] }

// Snapshot copies the current counts. Nodes with no items are absent.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(Snapshot, len(c.nodes))
	for k, set := range c.nodes {
		if len(set) > 0 {
			out[k] = len(set)
		}
	}
	return out
}

// add and remove are the single place where an item state is mapped onto
// nodes, shared by Rebuild and Apply. Callers hold mu.

func (c *Cache) add(st state.ItemState) {
	for _, k := range keysFor(st) {
		set := c.nodes[k]
		if set == nil {
			set = make(map[int64]struct{})
			c.nodes[k] = set
		}
		set[st.ID] = struct{}{}
	}
}

func (c *Cache) remove(st state.ItemState) {
	for _, k := range keysFor(st) {
		if set := c.nodes[k]; set != nil {
			delete(set, st.ID)
			if len(set) == 0 {
				delete(c.nodes, k)
			}
		}
	}
}

func keysFor(st state.ItemState) []model.NodeKey {
	var keys []model.NodeKey
	if st.Unread {
		keys = append(keys, model.AllNode.Key(), model.UnreadNode.Key(), model.FeedNode(st.FeedID).Key())
		if st.FolderID != nil {
			keys = append(keys, model.FolderNode(*st.FolderID).Key())
		}
	}
	if st.Starred {
		keys = append(keys, model.StarredNode.Key())
	}
	return keys
}
