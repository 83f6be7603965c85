package sqlite

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/mknowles/gatherer/internal/gatherer"
)

type dedupKey struct {
	FeedID string `db:"feed_id"`
	Link   string `db:"link"`
}

// MergeArticles inserts the candidates that are not already stored, where
// `(feed_id, link)` is the identity of an article. The existence check and
// the insert run in one transaction so that overlapping ingestion runs cannot
// double-insert; the unique index backstops any row that races past the check.
// Transient lock conflicts retry the whole transaction with backoff.
func (r Repo) MergeArticles(ctx context.Context, articles []gatherer.Article) (gatherer.MergeResult, error) {
	if len(articles) == 0 {
		return gatherer.MergeResult{}, nil
	}

	var result gatherer.MergeResult
	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		got, err := r.mergeOnce(ctx, articles)
		if isBusy(err) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		result = got

		return nil
	})
	if err != nil {
		return gatherer.MergeResult{}, fmt.Errorf("error merging articles: %w", err)
	}

	return result, nil
}

func (r Repo) mergeOnce(ctx context.Context, articles []gatherer.Article) (gatherer.MergeResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return gatherer.MergeResult{}, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	// One bulk existence check over the feeds this batch touches.
	feedIDs := make([]string, 0, len(articles))
	touched := map[string]bool{}
	for _, a := range articles {
		if !touched[a.FeedID] {
			touched[a.FeedID] = true
			feedIDs = append(feedIDs, a.FeedID)
		}
	}

	query, args, err := sq.Select("feed_id", "link").
		From("articles").
		Where(sq.Eq{"feed_id": feedIDs}).
		ToSql()
	if err != nil {
		return gatherer.MergeResult{}, fmt.Errorf("error constructing sql: %s", err)
	}

	var existing []dedupKey
	if err := tx.SelectContext(ctx, &existing, query, args...); err != nil {
		return gatherer.MergeResult{}, fmt.Errorf("error fetching existing article keys: %w", err)
	}

	seen := make(map[dedupKey]bool, len(existing))
	for _, k := range existing {
		seen[k] = true
	}

	// Filter out what's already stored, and duplicates within the batch
	// itself.
	toInsert := make([]gatherer.Article, 0, len(articles))
	for _, a := range articles {
		k := dedupKey{FeedID: a.FeedID, Link: a.Link}
		if seen[k] {
			continue
		}
		seen[k] = true

		a.ID = fmt.Sprintf("%s%s", uuid.NewString(), articleNamespace)
		toInsert = append(toInsert, a)
	}

	inserted := 0
	if len(toInsert) > 0 {
		// ON CONFLICT DO NOTHING keeps a raced row from aborting the batch.
		const q = `INSERT INTO articles (id, feed_id, title, link, published_at)
	VALUES (:id, :feed_id, :title, :link, :published_at)
	ON CONFLICT(feed_id, link) DO NOTHING;`
		res, err := tx.NamedExecContext(ctx, q, toInsert)
		if err != nil {
			return gatherer.MergeResult{}, fmt.Errorf("error inserting articles: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return gatherer.MergeResult{}, fmt.Errorf("error counting inserted articles: %w", err)
		}
		inserted = int(n)
	}

	if err := tx.Commit(); err != nil {
		return gatherer.MergeResult{}, fmt.Errorf("error committing merge: %w", err)
	}

	return gatherer.MergeResult{
		Inserted: inserted,
		Skipped:  len(articles) - inserted,
	}, nil
}

// RecentArticles returns up to `limit` articles, newest first by published
// time, with insertion order breaking ties. The owner label comes along when
// the source still exists; removed sources leave it null.
func (r Repo) RecentArticles(ctx context.Context, limit int) ([]gatherer.RecentArticle, error) {
	query, args, err := sq.Select(
		"a.id", "a.feed_id", "a.title", "a.link", "a.published_at", "a.created_at",
		"f.owner AS owner",
	).
		From("articles a").
		LeftJoin("feed_sources f ON f.id = a.feed_id").
		OrderBy("a.published_at DESC", "a.rowid ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	articles := []gatherer.RecentArticle{}
	if err := r.db.SelectContext(ctx, &articles, query, args...); err != nil {
		return nil, fmt.Errorf("error fetching recent articles: %w", err)
	}

	return articles, nil
}
