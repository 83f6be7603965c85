package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/mknowles/gatherer/internal/fetch"
	"github.com/mknowles/gatherer/internal/gatherer"
)

// normalize converts a raw feed entry into a canonical article.
//
// Timestamp policy: the parser's parsed time wins; otherwise the raw
// published string is parsed best-effort (RFC 2822, ISO 8601, and friends);
// otherwise the entry gets `now`, the ingestion time. Undated entries must
// never sort on some sentinel value.
//
// Dedup key policy: an entry without a link falls back to its GUID, and an
// entry with neither gets a fresh synthetic key, so it is always inserted.
func normalize(e fetch.Entry, feedID string, now time.Time) gatherer.Article {
	published := now
	if e.PublishedAt != nil {
		published = *e.PublishedAt
	} else if raw := strings.TrimSpace(e.Published); raw != "" {
		if t, err := dateparse.ParseAny(raw); err == nil {
			published = t
		}
	}
	// Stored in UTC so that the store's ordering is zone-independent.
	published = published.UTC()

	link := strings.TrimSpace(e.Link)
	if link == "" {
		link = strings.TrimSpace(e.GUID)
	}
	if link == "" {
		link = fmt.Sprintf("nolink:%s", uuid.NewString())
	}

	return gatherer.Article{
		FeedID:      feedID,
		Title:       sanitize(e.Title),
		Link:        link,
		PublishedAt: published,
	}
}

var stripPolicy = bluemonday.StrictPolicy()

// Removes all html tags from the string.
//
// Also limits the length of the string so there's not a massive chunk of text being output.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = stripPolicy.Sanitize(s)
	if len(s) > 2048 {
		s = s[:2048]
	}

	return s
}
