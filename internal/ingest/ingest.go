// Package ingest runs the fetch -> normalize -> merge pipeline and the
// registry operations that depend on fetching.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mknowles/gatherer/internal/fetch"
	"github.com/mknowles/gatherer/internal/gatherer"
	"github.com/mknowles/gatherer/logger"
)

// Fetcher retrieves and parses one remote feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Meta, []fetch.Entry, error)
}

type (
	Service struct {
		repo    gatherer.Repository
		fetcher Fetcher

		fetchTimeout time.Duration
		concurrency  int
	}

	// RunResult is the outcome of one ingestion run. Failed counts feeds
	// that could not be fetched this run; their absence is not an error.
	RunResult struct {
		Inserted int `json:"inserted"`
		Skipped  int `json:"skipped"`
		Failed   int `json:"failed"`
	}
)

func New(repo gatherer.Repository, fetcher Fetcher, fetchTimeout time.Duration, concurrency int) Service {
	if concurrency < 1 {
		concurrency = 1
	}

	return Service{
		repo:         repo,
		fetcher:      fetcher,
		fetchTimeout: fetchTimeout,
		concurrency:  concurrency,
	}
}

// Run executes one ingestion pass over every registered feed: fetches in
// parallel, normalizes what came back, and merges the whole batch once. A
// feed that fails to fetch is logged and skipped; it never aborts the run.
// The merge transaction only starts after all fetching has finished.
func (s Service) Run(ctx context.Context) (RunResult, error) {
	feeds, err := s.repo.AllFeeds(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("error loading feed sources: %w", err)
	}

	var (
		mu     sync.Mutex
		batch  []gatherer.Article
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, f := range feeds {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, s.fetchTimeout)
			defer cancel()
			fctx = logger.Ctx(fctx, slog.String("feed_url", f.URL))

			_, entries, err := s.fetcher.Fetch(fctx, f.URL)
			if err != nil {
				slog.WarnContext(fctx, "skipping feed this run", "error", err)
				mu.Lock()
				failed++
				mu.Unlock()

				return nil
			}

			now := time.Now()
			articles := make([]gatherer.Article, 0, len(entries))
			for _, e := range entries {
				articles = append(articles, normalize(e, f.ID, now))
			}

			mu.Lock()
			batch = append(batch, articles...)
			mu.Unlock()

			return nil
		})
	}
	// Workers only return nil; Wait is the join point before the merge.
	_ = g.Wait()

	merged, err := s.repo.MergeArticles(ctx, batch)
	if err != nil {
		return RunResult{}, fmt.Errorf("error merging batch: %w", err)
	}

	slog.InfoContext(ctx, "ingestion run complete",
		"feeds", len(feeds),
		"failed", failed,
		"inserted", merged.Inserted,
		"skipped", merged.Skipped,
	)

	return RunResult{
		Inserted: merged.Inserted,
		Skipped:  merged.Skipped,
		Failed:   failed,
	}, nil
}

// AddFeed registers a feed for the owner. The url must be an absolute
// http(s) url, and the feed is fetched once up front to resolve its display
// name: if that fetch fails nothing is persisted. A url already registered
// by anyone is rejected.
func (s Service) AddFeed(ctx context.Context, owner, rawURL string) (gatherer.FeedSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return gatherer.FeedSource{}, fmt.Errorf("%q: %w", rawURL, gatherer.ErrInvalidURL)
	}

	fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	meta, _, err := s.fetcher.Fetch(fctx, rawURL)
	if err != nil {
		return gatherer.FeedSource{}, fmt.Errorf("%s: %w", err, gatherer.ErrUnreachable)
	}

	f := gatherer.FeedSource{
		Owner: owner,
		URL:   rawURL,
	}
	if title := sanitize(meta.Title); title != "" {
		f.DisplayName = &title
	}

	created, err := s.repo.InsertFeed(ctx, f)
	if err != nil {
		return gatherer.FeedSource{}, err
	}

	return created, nil
}

// RemoveFeed removes every feed registered under the owner label and reports
// how many went away. Removing an owner with no feeds is ErrNotFound.
// Articles already ingested from those feeds stay put.
func (s Service) RemoveFeed(ctx context.Context, owner string) (int, error) {
	n, err := s.repo.DeleteFeedsByOwner(ctx, owner)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, gatherer.ErrNotFound
	}

	return n, nil
}

// RunEvery triggers an ingestion pass on the given interval until the
// context is canceled. External triggers via the API remain the primary
// scheduling mechanism; this exists for deployments without one.
func (s Service) RunEvery(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				slog.ErrorContext(ctx, "scheduled ingestion failed", "error", err)
			}
		}
	}
}
