package sync

import (
	"context"
	"fmt"

	"github.com/njoerd114/newssync/internal/model"
	"github.com/njoerd114/newssync/internal/newsapi"
	"github.com/njoerd114/newssync/internal/state"
	"github.com/njoerd114/newssync/internal/thumbnail"
)

// PayloadKind names the shape of a downloaded response body.
type PayloadKind string

const (
	PayloadFolders PayloadKind = "folders"
	PayloadFeeds   PayloadKind = "feeds"
	PayloadItems   PayloadKind = "items"
)

// ParsePayloadKind validates s as a PayloadKind.
func ParsePayloadKind(s string) (PayloadKind, error) {
	switch k := PayloadKind(s); k {
	case PayloadFolders, PayloadFeeds, PayloadItems:
		return k, nil
	default:
		return "", fmt.Errorf("unknown payload kind %q (want folders, feeds or items)", s)
	}
}

// ApplyDownload decodes body as kind and applies it to the store, then
// refreshes the unread cache. It is the apply path of every pass, exposed
// for payloads downloaded out of band. Applying the same payload twice
// leaves the store unchanged.
func (e *Engine) ApplyDownload(ctx context.Context, kind PayloadKind, body []byte) (int, error) {
	n, err := e.applyPayload(ctx, kind, body)
	if err != nil {
		return 0, err
	}
	if err := e.LoadCache(ctx); err != nil {
		return n, fmt.Errorf("rebuilding unread cache: %w", err)
	}
	e.unreadChanged(ctx)
	return n, nil
}

// applyPayload is shared by foreground, background and out-of-band applies.
// A body that does not decode is returned as a *newsapi.DecodeError and
// nothing is written.
func (e *Engine) applyPayload(ctx context.Context, kind PayloadKind, body []byte) (int, error) {
	switch kind {
	case PayloadFolders:
		folders, err := newsapi.DecodeFolders(body)
		if err != nil {
			return 0, err
		}
		res, err := e.store.ApplyFolders(ctx, folders)
		return res.Upserted, err

	case PayloadFeeds:
		feeds, err := newsapi.DecodeFeeds(body)
		if err != nil {
			return 0, err
		}
		res, err := e.store.ApplyFeeds(ctx, feeds)
		return res.Upserted, err

	case PayloadItems:
		items, err := newsapi.DecodeItems(body)
		if err != nil {
			return 0, err
		}
		for i := range items {
			if items[i].ImageLink == "" {
				items[i].ImageLink = thumbnail.Resolve(items[i])
			}
		}
		res, err := e.store.UpsertItems(ctx, items)
		return res.Upserted, err

	default:
		return 0, fmt.Errorf("unknown payload kind %q", kind)
	}
}

func splitMarkers(markers []state.Marker) ([]int64, []model.StarRef) {
	ids := make([]int64, len(markers))
	refs := make([]model.StarRef, len(markers))
	for i, m := range markers {
		ids[i] = m.ItemID
		refs[i] = m.Ref
	}
	return ids, refs
}
