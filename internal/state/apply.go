package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/njoerd114/newssync/internal/model"
)

// Applied summarizes one apply call.
type Applied struct {
	Upserted int
	Deleted  int
}

// ApplyFolders makes the local folder set equal to folders. Folders missing
// from the list are deleted. Their feeds are moved to the top level rather
// than deleted: a feed moved out before its folder was removed arrives in the
// next feeds payload, and ApplyFeeds drops the ones the server no longer
// has. The local expanded flag is kept for folders that survive.
func (s *Store) ApplyFolders(ctx context.Context, folders []model.Folder) (Applied, error) {
	const upsert = `
		INSERT INTO folders (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`

	var res Applied
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		keep := make(map[int64]bool, len(folders))
		for _, f := range folders {
			if _, err := tx.ExecContext(ctx, upsert, f.ID, f.Name); err != nil {
				return fmt.Errorf("upserting folder %d: %w", f.ID, err)
			}
			keep[f.ID] = true
			res.Upserted++
		}

		local, err := queryIDs(ctx, tx, `SELECT id FROM folders`)
		if err != nil {
			return fmt.Errorf("listing folders: %w", err)
		}
		for _, id := range local {
			if keep[id] {
				continue
			}
			if err := detachFolderTx(ctx, tx, id); err != nil {
				return err
			}
			res.Deleted++
		}
		return nil
	})
	return res, err
}

// ApplyFeeds makes the local feed set equal to feeds. Feeds missing from the
// list are deleted along with their items. prefer_web is kept.
func (s *Store) ApplyFeeds(ctx context.Context, feeds []model.Feed) (Applied, error) {
	const upsert = `
		INSERT INTO feeds
		    (id, url, title, link, favicon_link, folder_id, pinned, ordering,
		     unread_count, update_error_count, last_update_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    url                = excluded.url,
		    title              = excluded.title,
		    link               = excluded.link,
		    favicon_link       = excluded.favicon_link,
		    folder_id          = excluded.folder_id,
		    pinned             = excluded.pinned,
		    ordering           = excluded.ordering,
		    unread_count       = excluded.unread_count,
		    update_error_count = excluded.update_error_count,
		    last_update_error  = excluded.last_update_error`

	var res Applied
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		keep := make(map[int64]bool, len(feeds))
		for _, f := range feeds {
			_, err := tx.ExecContext(ctx, upsert,
				f.ID, f.URL, f.Title, f.Link, f.FaviconLink, nullableID(f.FolderID),
				boolInt(f.Pinned), f.Ordering, f.UnreadCount, f.UpdateErrorCount, f.LastUpdateError,
			)
			if err != nil {
				return fmt.Errorf("upserting feed %d: %w", f.ID, err)
			}
			keep[f.ID] = true
			res.Upserted++
		}

		local, err := queryIDs(ctx, tx, `SELECT id FROM feeds`)
		if err != nil {
			return fmt.Errorf("listing feeds: %w", err)
		}
		for _, id := range local {
			if keep[id] {
				continue
			}
			if err := deleteFeedTx(ctx, tx, id); err != nil {
				return err
			}
			res.Deleted++
		}
		return nil
	})
	return res, err
}

// UpsertItems inserts or updates items by id. An empty incoming image_link
// does not clear a resolved one.
//
// Items with a pending marker keep their local flag: the marker has not
// reached the server yet, so the pulled value is stale.
func (s *Store) UpsertItems(ctx context.Context, items []model.Item) (Applied, error) {
	const upsert = `
		INSERT INTO items
		    (id, feed_id, title, body, author, url, guid, guid_hash,
		     pub_date, last_modified, unread, starred, image_link)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    feed_id       = excluded.feed_id,
		    title         = excluded.title,
		    body          = excluded.body,
		    author        = excluded.author,
		    url           = excluded.url,
		    guid          = excluded.guid,
		    guid_hash     = excluded.guid_hash,
		    pub_date      = excluded.pub_date,
		    last_modified = excluded.last_modified,
		    unread        = excluded.unread,
		    starred       = excluded.starred,
		    image_link    = CASE WHEN excluded.image_link != '' THEN excluded.image_link ELSE items.image_link END`

	var res Applied
	if len(items) == 0 {
		return res, nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, it := range items {
			_, err := tx.ExecContext(ctx, upsert,
				it.ID, it.FeedID, it.Title, it.Body, it.Author, it.URL, it.GUID, it.GUIDHash,
				timeUnix(it.PubDate), it.LastModified, boolInt(it.Unread), boolInt(it.Starred), it.ImageLink,
			)
			if err != nil {
				return fmt.Errorf("upserting item %d: %w", it.ID, err)
			}
			res.Upserted++
		}
		return reapplyMarkers(ctx, tx)
	})
	return res, err
}

func reapplyMarkers(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`UPDATE items SET unread = 0 WHERE unread = 1 AND id IN (SELECT item_id FROM pending_read)`,
		`UPDATE items SET unread = 1 WHERE unread = 0 AND id IN (SELECT item_id FROM pending_unread)`,
		`UPDATE items SET starred = 1 WHERE starred = 0 AND id IN (SELECT item_id FROM pending_starred)`,
		`UPDATE items SET starred = 0 WHERE starred = 1 AND id IN (SELECT item_id FROM pending_unstarred)`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("reapplying pending markers: %w", err)
		}
	}
	return nil
}

// detachFolderTx removes a folder row and files its feeds at the top level.
func detachFolderTx(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE feeds SET folder_id = NULL WHERE folder_id = ?`, id); err != nil {
		return fmt.Errorf("detaching feeds of folder %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting folder %d: %w", id, err)
	}
	return nil
}

// deleteFolderTx removes a folder with its feeds and their items.
func deleteFolderTx(ctx context.Context, tx *sql.Tx, id int64) error {
	const (
		delItems   = `DELETE FROM items WHERE feed_id IN (SELECT id FROM feeds WHERE folder_id = ?)`
		delFeeds   = `DELETE FROM feeds WHERE folder_id = ?`
		delFolders = `DELETE FROM folders WHERE id = ?`
	)
	for _, q := range []string{delItems, delFeeds, delFolders} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("deleting folder %d: %w", id, err)
		}
	}
	return nil
}

func deleteFeedTx(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE feed_id = ?`, id); err != nil {
		return fmt.Errorf("deleting items of feed %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM feeds WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting feed %d: %w", id, err)
	}
	return nil
}
