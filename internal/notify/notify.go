// Package notify fans sync lifecycle and unread-count events out to
// interested parties and pushes the unread total to a badge sink.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Kind identifies an event.
type Kind int

const (
	SyncStarted Kind = iota
	SyncCompleted
	UnreadChanged
)

func (k Kind) String() string {
	switch k {
	case SyncStarted:
		return "sync-started"
	case SyncCompleted:
		return "sync-completed"
	case UnreadChanged:
		return "unread-changed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is delivered to every subscriber.
type Event struct {
	Kind Kind
	At   time.Time
	// Unread is the unread total after the event.
	Unread int
	// Mode names the sync pass for SyncStarted and SyncCompleted.
	Mode string
	// Err is set on SyncCompleted when the pass failed.
	Err error
}

// Hub delivers events to subscribers without blocking the publisher. A
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	log    *slog.Logger
}

// NewHub returns a Hub with no subscribers.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{subs: make(map[int]chan Event), log: logger}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel func unregisters it and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish sends e to every subscriber. A zero At is set to now.
func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.log.Debug("dropping event for slow subscriber", "subscriber", id, "event", e.Kind)
		}
	}
}

// --- Badge sinks -------------------------------------------------------------

// BadgeSink receives the unread total after every change.
type BadgeSink interface {
	SetBadge(ctx context.Context, n int) error
}

// LogBadge logs the badge value at debug level.
type LogBadge struct {
	Log *slog.Logger
}

func (b LogBadge) SetBadge(_ context.Context, n int) error {
	b.Log.Debug("badge updated", "unread", n)
	return nil
}

// FileBadge writes the badge value to Path, for status bars that poll a file.
// The file is replaced atomically.
type FileBadge struct {
	Path string
}

func (b FileBadge) SetBadge(_ context.Context, n int) error {
	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating badge directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".badge-*")
	if err != nil {
		return fmt.Errorf("creating badge file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(strconv.Itoa(n) + "\n"); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing badge file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing badge file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.Path); err != nil {
		return fmt.Errorf("replacing badge file: %w", err)
	}
	return nil
}

// NopBadge discards badge updates.
type NopBadge struct{}

func (NopBadge) SetBadge(context.Context, int) error { return nil }
