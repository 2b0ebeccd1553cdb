package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/njoerd114/newssync/internal/model"
)

// DefaultTimeout bounds every request, including reading the body.
const DefaultTimeout = 20 * time.Second

// maxErrorBody caps how much of a failed response is kept in a StatusError.
const maxErrorBody = 4096

// Client performs News API operations. Create one with [NewClient].
type Client struct {
	router      *Router
	hc          *http.Client
	maxAttempts int
	log         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client. Its Timeout is left as
// supplied.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.hc.Timeout = d
		}
	}
}

// WithMaxAttempts sets how often idempotent GETs are tried on transport
// failure. 1 disables retries.
func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

// NewClient creates a Client for the server at serverURL.
func NewClient(serverURL, username, password string, logger *slog.Logger, opts ...Option) (*Client, error) {
	router, err := NewRouter(serverURL, username, password)
	if err != nil {
		return nil, err
	}
	c := &Client{
		router:      router,
		hc:          &http.Client{Timeout: DefaultTimeout},
		maxAttempts: defaultMaxAttempts,
		log:         logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.router.BaseURL()
}

// Download issues ep and returns the raw body of a 2xx response. GET
// requests are retried on transport failure.
func (c *Client) Download(ctx context.Context, ep Endpoint) ([]byte, error) {
	attempts := 1
	if ep.Method == http.MethodGet {
		attempts = c.maxAttempts
	}

	var body []byte
	err := Retry(ctx, attempts, func() error {
		var callErr error
		body, callErr = c.send(ctx, ep)
		return callErr
	})
	if err != nil {
		if !IsTransport(err) && !IsStatus(err) && ctx.Err() != nil {
			err = &TransportError{Endpoint: ep.Name, Err: err}
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, ep Endpoint) ([]byte, error) {
	req, err := c.router.Request(ctx, ep)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: ep.Name, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug("news api request",
		"endpoint", ep.Name,
		"method", ep.Method,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Endpoint: ep.Name, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: ep.Name, Err: fmt.Errorf("reading body: %w", err)}
	}
	return b, nil
}

// decodeInto downloads ep and unmarshals the body into v.
func (c *Client) decodeInto(ctx context.Context, ep Endpoint, v any) error {
	body, err := c.Download(ctx, ep)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &DecodeError{Endpoint: ep.Name, Err: err}
	}
	return nil
}

// --- Pulls -------------------------------------------------------------------

// Folders returns every folder on the server.
func (c *Client) Folders(ctx context.Context) ([]model.Folder, error) {
	body, err := c.Download(ctx, Folders())
	if err != nil {
		return nil, err
	}
	return DecodeFolders(body)
}

// Feeds returns every feed on the server.
func (c *Client) Feeds(ctx context.Context) ([]model.Feed, error) {
	body, err := c.Download(ctx, Feeds())
	if err != nil {
		return nil, err
	}
	return DecodeFeeds(body)
}

// Items runs a GET /items query.
func (c *Client) Items(ctx context.Context, p ItemsParams) ([]model.Item, error) {
	body, err := c.Download(ctx, Items(p))
	if err != nil {
		return nil, err
	}
	return DecodeItems(body)
}

// UpdatedItems returns items modified after p.LastModified.
func (c *Client) UpdatedItems(ctx context.Context, p UpdatedParams) ([]model.Item, error) {
	body, err := c.Download(ctx, UpdatedItems(p))
	if err != nil {
		return nil, err
	}
	return DecodeItems(body)
}

// Version returns the News app version installed on the server.
func (c *Client) Version(ctx context.Context) (string, error) {
	var dto VersionDTO
	if err := c.decodeInto(ctx, Version(), &dto); err != nil {
		return "", err
	}
	return dto.Version, nil
}

// --- Item state pushes -------------------------------------------------------

// MarkItemsRead pushes a batch of read ids.
func (c *Client) MarkItemsRead(ctx context.Context, ids []int64) error {
	_, err := c.Download(ctx, ItemsRead(ids))
	return err
}

// MarkItemsUnread pushes a batch of unread ids.
func (c *Client) MarkItemsUnread(ctx context.Context, ids []int64) error {
	_, err := c.Download(ctx, ItemsUnread(ids))
	return err
}

// StarItems pushes a batch of starred items.
func (c *Client) StarItems(ctx context.Context, refs []model.StarRef) error {
	_, err := c.Download(ctx, ItemsStarred(refs))
	return err
}

// UnstarItems pushes a batch of unstarred items.
func (c *Client) UnstarItems(ctx context.Context, refs []model.StarRef) error {
	_, err := c.Download(ctx, ItemsUnstarred(refs))
	return err
}

// --- Feed and folder management ---------------------------------------------

// AddFeed subscribes to feedURL. A 409 matches ErrAlreadyExists and a 422
// ErrUnprocessable.
func (c *Client) AddFeed(ctx context.Context, feedURL string, folderID *int64) (*model.Feed, error) {
	var dto FeedsDTO
	if err := c.decodeInto(ctx, AddFeed(feedURL, folderID), &dto); err != nil {
		return nil, err
	}
	if len(dto.Feeds) == 0 {
		return nil, &DecodeError{Endpoint: "feeds/add", Err: fmt.Errorf("response contains no feed")}
	}
	f := dto.Feeds[0].toModel()
	return &f, nil
}

func (c *Client) DeleteFeed(ctx context.Context, id int64) error {
	_, err := c.Download(ctx, DeleteFeed(id))
	return err
}

func (c *Client) MoveFeed(ctx context.Context, id int64, folderID *int64) error {
	_, err := c.Download(ctx, MoveFeed(id, folderID))
	return err
}

// RenameFeed renames a feed. Servers without rename support answer 405,
// which matches ErrServerTooOld.
func (c *Client) RenameFeed(ctx context.Context, id int64, title string) error {
	_, err := c.Download(ctx, RenameFeed(id, title))
	return err
}

// AddFolder creates a folder. A 409 matches ErrAlreadyExists and a 422
// (empty or invalid name) ErrUnprocessable.
func (c *Client) AddFolder(ctx context.Context, name string) (*model.Folder, error) {
	var dto FoldersDTO
	if err := c.decodeInto(ctx, AddFolder(name), &dto); err != nil {
		return nil, err
	}
	if len(dto.Folders) == 0 {
		return nil, &DecodeError{Endpoint: "folders/add", Err: fmt.Errorf("response contains no folder")}
	}
	f := dto.Folders[0].toModel()
	return &f, nil
}

func (c *Client) DeleteFolder(ctx context.Context, id int64) error {
	_, err := c.Download(ctx, DeleteFolder(id))
	return err
}

func (c *Client) RenameFolder(ctx context.Context, id int64, name string) error {
	_, err := c.Download(ctx, RenameFolder(id, name))
	return err
}
