package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mknowles/gatherer/internal/gatherer"
)

func (r Repo) Feed(ctx context.Context, id string) (gatherer.FeedSource, error) {
	const q = `SELECT * FROM feed_sources WHERE id = ?;`

	var f gatherer.FeedSource
	err := r.db.GetContext(ctx, &f, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return gatherer.FeedSource{}, gatherer.ErrNotFound
	}
	if err != nil {
		return gatherer.FeedSource{}, fmt.Errorf("error fetching feed source: %s", err)
	}

	return f, nil
}

func (r Repo) InsertFeed(ctx context.Context, f gatherer.FeedSource) (gatherer.FeedSource, error) {
	const q = `INSERT INTO feed_sources (id, owner, url, display_name) VALUES (:id, :owner, :url, :display_name);`

	f.ID = fmt.Sprintf("%s%s", uuid.NewString(), sourceNamespace)
	_, err := r.db.NamedExecContext(ctx, q, f)
	if isUniqueViolation(err) {
		return gatherer.FeedSource{}, fmt.Errorf("url already registered: %w", gatherer.ErrConflict)
	}
	if err != nil {
		return gatherer.FeedSource{}, fmt.Errorf("error inserting feed source: %s", err)
	}

	return r.Feed(ctx, f.ID)
}

// DeleteFeedsByOwner removes every source registered under the owner label.
// This is a bulk delete keyed on the free-text owner, kept for compatibility
// with the original registry contract; it cannot target a single feed.
func (r Repo) DeleteFeedsByOwner(ctx context.Context, owner string) (int, error) {
	const q = `DELETE FROM feed_sources WHERE owner = ?;`

	res, err := r.db.ExecContext(ctx, q, owner)
	if err != nil {
		return 0, fmt.Errorf("error deleting feed sources: %s", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error counting deleted feed sources: %s", err)
	}

	return int(n), nil
}

// AllFeeds retrieves _all_ feed sources from the database.
func (r Repo) AllFeeds(ctx context.Context) ([]gatherer.FeedSource, error) {
	const q = "SELECT * FROM feed_sources;"

	var feeds []gatherer.FeedSource
	if err := r.db.SelectContext(ctx, &feeds, q); err != nil {
		return nil, fmt.Errorf("error selecting all feed sources: %s", err)
	}

	return feeds, nil
}
