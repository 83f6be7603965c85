// Package gatherer holds the domain types shared between the registry,
// the ingestion pipeline, and the article store.
package gatherer

import (
	"context"
	"errors"
	"time"
)

var (
	ErrConflict    = errors.New("resource already exists")
	ErrNotFound    = errors.New("resource not found")
	ErrInvalidURL  = errors.New("not a valid feed url")
	ErrUnreachable = errors.New("feed could not be fetched")
)

type (
	// FeedSource is a registered RSS/Atom feed.
	FeedSource struct {
		ID          string    `db:"id"`
		Owner       string    `db:"owner"`
		URL         string    `db:"url"`
		DisplayName *string   `db:"display_name"`
		CreatedAt   time.Time `db:"created_at"`
		UpdatedAt   time.Time `db:"updated_at"`
	}

	// Article is a single ingested feed entry. Articles are immutable once
	// stored and deliberately outlive the removal of their source: FeedID is
	// a weak reference, not a foreign key.
	Article struct {
		ID          string    `db:"id"`
		FeedID      string    `db:"feed_id"`
		Title       string    `db:"title"`
		Link        string    `db:"link"`
		PublishedAt time.Time `db:"published_at"`
		CreatedAt   time.Time `db:"created_at"`
	}

	// RecentArticle is an Article joined with the owner label of its source,
	// when that source still exists.
	RecentArticle struct {
		Article

		Owner *string `db:"owner"`
	}

	// MergeResult reports what a merge did with a batch of candidates.
	MergeResult struct {
		Inserted int
		Skipped  int
	}

	// Repository is the durable surface for both feed registrations and
	// articles. `(feed_id, link)` is the uniqueness boundary for articles.
	Repository interface {
		Feed(ctx context.Context, id string) (FeedSource, error)
		InsertFeed(ctx context.Context, f FeedSource) (FeedSource, error)
		// DeleteFeedsByOwner removes every source registered under the
		// owner label, not a single feed. Returns the number removed.
		DeleteFeedsByOwner(ctx context.Context, owner string) (int, error)
		AllFeeds(ctx context.Context) ([]FeedSource, error)

		MergeArticles(ctx context.Context, articles []Article) (MergeResult, error)
		RecentArticles(ctx context.Context, limit int) ([]RecentArticle, error)
	}
)
