// Package fetch retrieves and parses remote RSS/Atom feeds.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mmcdole/gofeed"
)

// Browser-like UA: some hosts reject generic Go user agents.
const userAgent = "Mozilla/5.0 (compatible; gatherer/1.0; +https://github.com/mknowles/gatherer)"

type (
	// Meta is the feed-level metadata from a fetch.
	Meta struct {
		Title       string
		Description string
	}

	// Entry is one raw item from a feed, before normalization.
	Entry struct {
		Title       string
		Link        string
		GUID        string
		Description string
		Published   string
		PublishedAt *time.Time
	}

	// Error is a fetch failure tagged with the URL it came from.
	Error struct {
		URL string
		Err error
	}
)

func (e *Error) Error() string {
	return fmt.Sprintf("fetching %s: %s", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// A previously parsed feed plus the cache validators the server sent with it,
// kept so later fetches can make conditional requests.
type cached struct {
	etag         string
	lastModified string
	meta         Meta
	entries      []Entry
}

// Client fetches feeds with a bounded timeout per request and an LRU of
// conditional-GET validators per URL.
type Client struct {
	http  *http.Client
	cache *lru.Cache[string, cached]
}

// New creates a Client whose requests time out after `timeout`.
func New(timeout time.Duration) *Client {
	cache, _ := lru.New[string, cached](256)

	return &Client{
		http:  &http.Client{Timeout: timeout},
		cache: cache,
	}
}

// Fetch retrieves the feed at url and parses it as RSS or Atom. Any network,
// status, or parse failure comes back as a *[Error]; it never panics, so a
// caller iterating many feeds can skip the bad ones. A 304 from the server is
// answered from the cache.
func (c *Client) Fetch(ctx context.Context, url string) (Meta, []Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Meta{}, nil, &Error{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	prev, hadPrev := c.cache.Get(url)
	if hadPrev {
		if prev.etag != "" {
			req.Header.Set("If-None-Match", prev.etag)
		}
		if prev.lastModified != "" {
			req.Header.Set("If-Modified-Since", prev.lastModified)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Meta{}, nil, &Error{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && hadPrev {
		return prev.meta, prev.entries, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Meta{}, nil, &Error{URL: url, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return Meta{}, nil, &Error{URL: url, Err: fmt.Errorf("error parsing feed: %w", err)}
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entries = append(entries, Entry{
			Title:       item.Title,
			Link:        item.Link,
			GUID:        item.GUID,
			Description: item.Description,
			Published:   item.Published,
			PublishedAt: item.PublishedParsed,
		})
	}

	meta := Meta{
		Title:       feed.Title,
		Description: feed.Description,
	}

	c.cache.Add(url, cached{
		etag:         resp.Header.Get("Etag"),
		lastModified: resp.Header.Get("Last-Modified"),
		meta:         meta,
		entries:      entries,
	})

	return meta, entries, nil
}
