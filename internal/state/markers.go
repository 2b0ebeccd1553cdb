package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/njoerd114/newssync/internal/model"
)

// ItemState is the part of an item the unread cache needs.
type ItemState struct {
	ID       int64
	FeedID   int64
	FolderID *int64
	Unread   bool
	Starred  bool
}

// Change records an item whose unread or starred flag was flipped by a local
// mutation.
type Change struct {
	Before ItemState
	After  ItemState
}

// Marker is a pending star or unstar mutation. Ref is the server address of
// the item captured when the mutation was recorded.
type Marker struct {
	ItemID int64
	Ref    model.StarRef
}

// PendingCounts is the number of markers in each table.
type PendingCounts struct {
	Read      int
	Unread    int
	Starred   int
	Unstarred int
}

// Total returns the sum of all marker counts.
func (p PendingCounts) Total() int {
	return p.Read + p.Unread + p.Starred + p.Unstarred
}

type flag int

const (
	flagUnread flag = iota
	flagStarred
)

// mutation describes one of the four local mutations: which flag it sets,
// to what, which marker table it writes and which it clears.
type mutation struct {
	op       string
	flag     flag
	value    bool
	marker   string
	opposite string
	withRef  bool
}

var (
	mutRead      = mutation{op: "mark read", flag: flagUnread, value: false, marker: "pending_read", opposite: "pending_unread"}
	mutUnread    = mutation{op: "mark unread", flag: flagUnread, value: true, marker: "pending_unread", opposite: "pending_read"}
	mutStarred   = mutation{op: "mark starred", flag: flagStarred, value: true, marker: "pending_starred", opposite: "pending_unstarred", withRef: true}
	mutUnstarred = mutation{op: "mark unstarred", flag: flagStarred, value: false, marker: "pending_unstarred", opposite: "pending_starred", withRef: true}
)

// MarkRead marks items read locally and records a pending read marker for
// each, removing any pending unread marker.
func (s *Store) MarkRead(ctx context.Context, ids []int64) ([]Change, error) {
	return s.mark(ctx, mutRead, ids)
}

// MarkUnread is the inverse of MarkRead.
func (s *Store) MarkUnread(ctx context.Context, ids []int64) ([]Change, error) {
	return s.mark(ctx, mutUnread, ids)
}

// MarkStarred stars items locally. The marker stores the item's feed id and
// guid hash so it can be pushed even if the item is pruned or deleted first.
func (s *Store) MarkStarred(ctx context.Context, ids []int64) ([]Change, error) {
	return s.mark(ctx, mutStarred, ids)
}

// MarkUnstarred is the inverse of MarkStarred.
func (s *Store) MarkUnstarred(ctx context.Context, ids []int64) ([]Change, error) {
	return s.mark(ctx, mutUnstarred, ids)
}

func (s *Store) mark(ctx context.Context, m mutation, ids []int64) ([]Change, error) {
	const lookup = `
		SELECT i.id, i.feed_id, f.folder_id, i.unread, i.starred, i.guid_hash
		FROM items i LEFT JOIN feeds f ON f.id = i.feed_id
		WHERE i.id = ?`

	column := "unread"
	if m.flag == flagStarred {
		column = "starred"
	}
	setFlag := fmt.Sprintf(`UPDATE items SET %s = ? WHERE id = ?`, column)
	delOpposite := fmt.Sprintf(`DELETE FROM %s WHERE item_id = ?`, m.opposite)
	addMarker := fmt.Sprintf(`INSERT OR IGNORE INTO %s (item_id) VALUES (?)`, m.marker)
	if m.withRef {
		addMarker = fmt.Sprintf(`INSERT OR REPLACE INTO %s (item_id, feed_id, guid_hash) VALUES (?, ?, ?)`, m.marker)
	}

	var changes []Change
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			var (
				st       ItemState
				folderID sql.NullInt64
				guidHash string
			)
			err := tx.QueryRowContext(ctx, lookup, id).Scan(&st.ID, &st.FeedID, &folderID, &st.Unread, &st.Starred, &guidHash)
			if err == sql.ErrNoRows {
				continue
			}
			if err != nil {
				return fmt.Errorf("loading item %d: %w", id, err)
			}
			st.FolderID = idPtr(folderID)

			if _, err := tx.ExecContext(ctx, setFlag, boolInt(m.value), id); err != nil {
				return fmt.Errorf("updating item %d: %w", id, err)
			}
			if _, err := tx.ExecContext(ctx, delOpposite, id); err != nil {
				return fmt.Errorf("clearing opposite marker for %d: %w", id, err)
			}
			args := []any{id}
			if m.withRef {
				args = append(args, st.FeedID, guidHash)
			}
			if _, err := tx.ExecContext(ctx, addMarker, args...); err != nil {
				return fmt.Errorf("recording marker for %d: %w", id, err)
			}

			after := st
			if m.flag == flagUnread {
				after.Unread = m.value
			} else {
				after.Starred = m.value
			}
			if after != st {
				changes = append(changes, Change{Before: st, After: after})
			}
		}
		return nil
	})
	if err != nil {
		return nil, dbErr(m.op, err)
	}
	return changes, nil
}

// --- Pending markers ---------------------------------------------------------

// PendingRead returns the ids of items marked read locally but not yet pushed.
func (s *Store) PendingRead(ctx context.Context) ([]int64, error) {
	ids, err := queryIDs(ctx, s.db, `SELECT item_id FROM pending_read ORDER BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("listing pending read markers: %w", err)
	}
	return ids, nil
}

// PendingUnread returns the ids of items marked unread locally but not yet
// pushed.
func (s *Store) PendingUnread(ctx context.Context) ([]int64, error) {
	ids, err := queryIDs(ctx, s.db, `SELECT item_id FROM pending_unread ORDER BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("listing pending unread markers: %w", err)
	}
	return ids, nil
}

// PendingStarred returns the pending star markers with the server address
// of each item. The live item row wins over the stored pair when it exists.
func (s *Store) PendingStarred(ctx context.Context) ([]Marker, error) {
	return s.pendingRefs(ctx, "pending_starred")
}

// PendingUnstarred returns the pending unstar markers, like PendingStarred.
func (s *Store) PendingUnstarred(ctx context.Context) ([]Marker, error) {
	return s.pendingRefs(ctx, "pending_unstarred")
}

func (s *Store) pendingRefs(ctx context.Context, table string) ([]Marker, error) {
	q := fmt.Sprintf(`
		SELECT p.item_id,
		       COALESCE(i.feed_id, p.feed_id),
		       COALESCE(NULLIF(i.guid_hash, ''), p.guid_hash)
		FROM %s p LEFT JOIN items i ON i.id = p.item_id
		ORDER BY p.item_id`, table)

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Marker
	for rows.Next() {
		var m Marker
		if err := rows.Scan(&m.ItemID, &m.Ref.FeedID, &m.Ref.GUIDHash); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ClearRead removes the read markers for ids. Markers recorded for other ids
// after the push began are untouched.
func (s *Store) ClearRead(ctx context.Context, ids []int64) error {
	return s.clear(ctx, "pending_read", ids)
}

// ClearUnread removes the unread markers for ids.
func (s *Store) ClearUnread(ctx context.Context, ids []int64) error {
	return s.clear(ctx, "pending_unread", ids)
}

// ClearStarred removes the star markers for ids.
func (s *Store) ClearStarred(ctx context.Context, ids []int64) error {
	return s.clear(ctx, "pending_starred", ids)
}

// ClearUnstarred removes the unstar markers for ids.
func (s *Store) ClearUnstarred(ctx context.Context, ids []int64) error {
	return s.clear(ctx, "pending_unstarred", ids)
}

func (s *Store) clear(ctx context.Context, table string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return inBatches(ids, func(ph string, args []any) error {
			_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE item_id IN (%s)`, table, ph), args...)
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("clearing %s: %w", table, err)
	}
	return nil
}

// CountPending returns the number of markers waiting in each table.
func (s *Store) CountPending(ctx context.Context) (PendingCounts, error) {
	const q = `
		SELECT (SELECT COUNT(*) FROM pending_read),
		       (SELECT COUNT(*) FROM pending_unread),
		       (SELECT COUNT(*) FROM pending_starred),
		       (SELECT COUNT(*) FROM pending_unstarred)`
	var c PendingCounts
	if err := s.db.QueryRowContext(ctx, q).Scan(&c.Read, &c.Unread, &c.Starred, &c.Unstarred); err != nil {
		return PendingCounts{}, fmt.Errorf("counting pending markers: %w", err)
	}
	return c, nil
}
