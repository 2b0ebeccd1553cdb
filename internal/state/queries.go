package state

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/njoerd114/newssync/internal/model"
)

// --- Counts ------------------------------------------------------------------

// CountItems returns the number of stored items. Zero selects an initial sync.
func (s *Store) CountItems(ctx context.Context) (int, error) {
	return s.count(ctx, "items")
}

func (s *Store) CountFolders(ctx context.Context) (int, error) {
	return s.count(ctx, "folders")
}

func (s *Store) CountFeeds(ctx context.Context) (int, error) {
	return s.count(ctx, "feeds")
}

func (s *Store) count(ctx context.Context, table string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return n, nil
}

// --- Folders and feeds -------------------------------------------------------

// Folders returns every folder ordered by id.
func (s *Store) Folders(ctx context.Context) ([]model.Folder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, expanded FROM folders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying folders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Folder
	for rows.Next() {
		var f model.Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.Expanded); err != nil {
			return nil, fmt.Errorf("scanning folder row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

const feedColumns = `
	id, url, title, link, favicon_link, folder_id, pinned, ordering,
	unread_count, update_error_count, last_update_error, prefer_web`

// Feeds returns every feed ordered by id.
func (s *Store) Feeds(ctx context.Context) ([]model.Feed, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+feedColumns+` FROM feeds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying feeds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// Feed returns the feed with the given id, or (nil, nil) if it is not stored.
func (s *Store) Feed(ctx context.Context, id int64) (*model.Feed, error) {
	f, err := scanFeed(s.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	return f, err
}

func scanFeed(s scanner) (*model.Feed, error) {
	var (
		f        model.Feed
		folderID sql.NullInt64
	)
	err := s.Scan(&f.ID, &f.URL, &f.Title, &f.Link, &f.FaviconLink, &folderID,
		&f.Pinned, &f.Ordering, &f.UnreadCount, &f.UpdateErrorCount, &f.LastUpdateError, &f.PreferWeb)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning feed row: %w", err)
	}
	f.FolderID = idPtr(folderID)
	return &f, nil
}

// FeedIDsInFolder returns the ids of the feeds filed under folderID.
func (s *Store) FeedIDsInFolder(ctx context.Context, folderID int64) ([]int64, error) {
	ids, err := queryIDs(ctx, s.db, `SELECT id FROM feeds WHERE folder_id = ? ORDER BY id`, folderID)
	if err != nil {
		return nil, fmt.Errorf("listing feeds in folder %d: %w", folderID, err)
	}
	return ids, nil
}

// --- Items -------------------------------------------------------------------

const itemColumns = `
	id, feed_id, title, body, author, url, guid, guid_hash,
	pub_date, last_modified, unread, starred, image_link`

// ItemQuery selects items under a navigation node.
type ItemQuery struct {
	Node       model.Node
	UnreadOnly bool
	// Limit caps the result; zero returns everything.
	Limit int
}

// Item returns the item with the given id, or (nil, nil) if it is not stored.
func (s *Store) Item(ctx context.Context, id int64) (*model.Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	return it, err
}

// Items returns the items under q.Node, newest first.
func (s *Store) Items(ctx context.Context, q ItemQuery) ([]model.Item, error) {
	var (
		where []string
		args  []any
	)
	switch q.Node.Kind {
	case model.NodeAll:
	case model.NodeUnread:
		where = append(where, "unread = 1")
	case model.NodeStarred:
		where = append(where, "starred = 1")
	case model.NodeFolder:
		where = append(where, "feed_id IN (SELECT id FROM feeds WHERE folder_id = ?)")
		args = append(args, q.Node.ID)
	case model.NodeFeed:
		where = append(where, "feed_id = ?")
		args = append(args, q.Node.ID)
	default:
		return nil, fmt.Errorf("unsupported node %s", q.Node)
	}
	if q.UnreadOnly && q.Node.Kind != model.NodeUnread {
		where = append(where, "unread = 1")
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY pub_date DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items for %s: %w", q.Node, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

// UnreadStates returns the state of every item that is unread or starred,
// which is every item the unread cache counts.
func (s *Store) UnreadStates(ctx context.Context) ([]ItemState, error) {
	const q = `
		SELECT i.id, i.feed_id, f.folder_id, i.unread, i.starred
		FROM items i LEFT JOIN feeds f ON f.id = i.feed_id
		WHERE i.unread = 1 OR i.starred = 1
		ORDER BY i.id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying unread states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ItemState
	for rows.Next() {
		var (
			st       ItemState
			folderID sql.NullInt64
		)
		if err := rows.Scan(&st.ID, &st.FeedID, &folderID, &st.Unread, &st.Starred); err != nil {
			return nil, fmt.Errorf("scanning unread state: %w", err)
		}
		st.FolderID = idPtr(folderID)
		out = append(out, st)
	}
	return out, rows.Err()
}

// MaxLastModified returns the highest last_modified of any stored item, or 0.
func (s *Store) MaxLastModified(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(last_modified), 0) FROM items`).Scan(&v); err != nil {
		return 0, fmt.Errorf("querying max last_modified: %w", err)
	}
	return v, nil
}

// SetImageLink stores a resolved thumbnail for an item.
func (s *Store) SetImageLink(ctx context.Context, id int64, link string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE items SET image_link = ? WHERE id = ?`, link, id)
	if err != nil {
		return dbErr("set image link", err)
	}
	return dbErr("set image link", checkAffected(res))
}

// PruneItems deletes read, unstarred items last modified before cutoff.
// Items with a pending star or unstar marker are kept so the marker can
// still be resolved from the row.
func (s *Store) PruneItems(ctx context.Context, cutoff time.Time) (int, error) {
	const q = `
		DELETE FROM items
		WHERE unread = 0 AND starred = 0 AND last_modified < ?
		  AND id NOT IN (SELECT item_id FROM pending_starred)
		  AND id NOT IN (SELECT item_id FROM pending_unstarred)`
	res, err := s.db.ExecContext(ctx, q, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning items: %w", err)
	}
	return int(n), nil
}

func scanItem(s scanner) (*model.Item, error) {
	var (
		it      model.Item
		pubDate int64
	)
	err := s.Scan(&it.ID, &it.FeedID, &it.Title, &it.Body, &it.Author, &it.URL, &it.GUID, &it.GUIDHash,
		&pubDate, &it.LastModified, &it.Unread, &it.Starred, &it.ImageLink)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning item row: %w", err)
	}
	it.PubDate = unixTime(pubDate)
	return &it, nil
}

// --- CRUD --------------------------------------------------------------------

// InsertFolder stores a folder the server just created.
func (s *Store) InsertFolder(ctx context.Context, f model.Folder) error {
	const q = `INSERT INTO folders (id, name, expanded) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`
	_, err := s.db.ExecContext(ctx, q, f.ID, f.Name, boolInt(f.Expanded))
	return dbErr("insert folder", err)
}

func (s *Store) RenameFolder(ctx context.Context, id int64, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE folders SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return dbErr("rename folder", err)
	}
	return dbErr("rename folder", checkAffected(res))
}

// DeleteFolder removes a folder with its feeds and their items. Deleting a
// folder that is not stored is not an error.
func (s *Store) DeleteFolder(ctx context.Context, id int64) error {
	return dbErr("delete folder", s.withTx(ctx, func(tx *sql.Tx) error {
		return deleteFolderTx(ctx, tx, id)
	}))
}

func (s *Store) SetFolderExpanded(ctx context.Context, id int64, expanded bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE folders SET expanded = ? WHERE id = ?`, boolInt(expanded), id)
	if err != nil {
		return dbErr("set folder expanded", err)
	}
	return dbErr("set folder expanded", checkAffected(res))
}

// InsertFeed stores a feed the server just created.
func (s *Store) InsertFeed(ctx context.Context, f model.Feed) error {
	const q = `
		INSERT INTO feeds
		    (id, url, title, link, favicon_link, folder_id, pinned, ordering,
		     unread_count, update_error_count, last_update_error, prefer_web)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    url       = excluded.url,
		    title     = excluded.title,
		    folder_id = excluded.folder_id`
	_, err := s.db.ExecContext(ctx, q,
		f.ID, f.URL, f.Title, f.Link, f.FaviconLink, nullableID(f.FolderID), boolInt(f.Pinned), f.Ordering,
		f.UnreadCount, f.UpdateErrorCount, f.LastUpdateError, boolInt(f.PreferWeb),
	)
	return dbErr("insert feed", err)
}

func (s *Store) RenameFeed(ctx context.Context, id int64, title string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE feeds SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return dbErr("rename feed", err)
	}
	return dbErr("rename feed", checkAffected(res))
}

// MoveFeed files a feed under folderID, or at the top level when nil.
func (s *Store) MoveFeed(ctx context.Context, id int64, folderID *int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE feeds SET folder_id = ? WHERE id = ?`, nullableID(folderID), id)
	if err != nil {
		return dbErr("move feed", err)
	}
	return dbErr("move feed", checkAffected(res))
}

// DeleteFeed removes a feed and its items. Deleting a feed that is not
// stored is not an error.
func (s *Store) DeleteFeed(ctx context.Context, id int64) error {
	return dbErr("delete feed", s.withTx(ctx, func(tx *sql.Tx) error {
		return deleteFeedTx(ctx, tx, id)
	}))
}

func (s *Store) SetFeedPreferWeb(ctx context.Context, id int64, preferWeb bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE feeds SET prefer_web = ? WHERE id = ?`, boolInt(preferWeb), id)
	if err != nil {
		return dbErr("set feed prefer web", err)
	}
	return dbErr("set feed prefer web", checkAffected(res))
}
