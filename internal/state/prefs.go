package state

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

const (
	prefWatermark = "last_modified_watermark"
	prefLastSync  = "last_sync_at"
)

// Preference returns the value stored under key and whether it exists.
func (s *Store) Preference(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading preference %q: %w", key, err)
	}
	return v, true, nil
}

// SetPreference stores value under key, replacing any previous value.
func (s *Store) SetPreference(ctx context.Context, key, value string) error {
	const q = `INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("writing preference %q: %w", key, err)
	}
	return nil
}

// Watermark returns the persisted lastModified watermark, or 0 before the
// first repeat sync.
func (s *Store) Watermark(ctx context.Context) (int64, error) {
	v, ok, err := s.Preference(ctx, prefWatermark)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing watermark %q: %w", v, err)
	}
	return n, nil
}

// SetWatermark raises the persisted watermark to v and returns the value now
// stored. The watermark never moves backwards: a lower v is ignored.
func (s *Store) SetWatermark(ctx context.Context, v int64) (int64, error) {
	var stored int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var cur string
		err := tx.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, prefWatermark).Scan(&cur)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return err
		default:
			stored, err = strconv.ParseInt(cur, 10, 64)
			if err != nil {
				return fmt.Errorf("parsing watermark %q: %w", cur, err)
			}
		}
		if v <= stored {
			return nil
		}
		stored = v
		_, err = tx.ExecContext(ctx, `INSERT INTO preferences (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, prefWatermark, strconv.FormatInt(v, 10))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("advancing watermark: %w", err)
	}
	return stored, nil
}

// LastSync returns when the last sync pass completed, or the zero time.
func (s *Store) LastSync(ctx context.Context) (time.Time, error) {
	v, ok, err := s.Preference(ctx, prefLastSync)
	if err != nil || !ok {
		return time.Time{}, err
	}
	return parseTime(v)
}

// SetLastSync records the completion time of a sync pass.
func (s *Store) SetLastSync(ctx context.Context, t time.Time) error {
	return s.SetPreference(ctx, prefLastSync, formatTime(t))
}
