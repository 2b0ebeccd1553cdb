// Package feedprobe checks that a URL serves a parseable RSS, Atom or JSON
// feed before it is submitted to the server.
package feedprobe

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Result summarizes a successfully parsed feed.
type Result struct {
	Title string
	Link  string
	Items int
}

// Prober fetches and parses feeds.
type Prober struct {
	parser *gofeed.Parser
}

// New returns a Prober that gives up after timeout.
func New(timeout time.Duration) *Prober {
	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: timeout}
	p.UserAgent = "newssync-feedprobe/1.0"
	return &Prober{parser: p}
}

// Probe fetches feedURL and parses it.
func (p *Prober) Probe(ctx context.Context, feedURL string) (*Result, error) {
	if !strings.HasPrefix(feedURL, "http://") && !strings.HasPrefix(feedURL, "https://") {
		return nil, fmt.Errorf("feed URL %q must be http or https", feedURL)
	}
	parsed, err := p.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", feedURL, err)
	}
	return &Result{
		Title: strings.TrimSpace(parsed.Title),
		Link:  parsed.Link,
		Items: len(parsed.Items),
	}, nil
}
