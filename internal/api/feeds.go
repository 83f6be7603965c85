package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	gerrs "github.com/mknowles/gatherer/internal/errors"
	"github.com/mknowles/gatherer/internal/gatherer"
)

// How many articles a read of the store returns.
const recentLimit = 100

type (
	ArticleResp struct {
		Timestamp time.Time `json:"timestamp"`
		Title     string    `json:"title"`
		Link      string    `json:"link"`
		Owner     *string   `json:"owner,omitempty"`
	}

	RegistrationResp struct {
		Owner string `json:"owner"`
		URL   string `json:"url"`
	}
)

func (s *Server) handleRecentArticles(w http.ResponseWriter, r *http.Request) error {
	articles, err := s.repo.RecentArticles(r.Context(), recentLimit)
	if err != nil {
		return gerrs.E(err)
	}

	resp := make([]ArticleResp, 0, len(articles))
	for _, a := range articles {
		resp = append(resp, ArticleResp{
			Timestamp: a.PublishedAt,
			Title:     a.Title,
			Link:      a.Link,
			Owner:     a.Owner,
		})
	}

	return writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddFeed(w http.ResponseWriter, r *http.Request) error {
	var (
		owner = mux.Vars(r)["owner"]
		url   = r.URL.Query().Get("url")
	)

	_, err := s.ingester.AddFeed(r.Context(), owner, url)
	switch {
	case errors.Is(err, gatherer.ErrInvalidURL):
		return gerrs.E(err, http.StatusBadRequest, gerrs.KindInvalidURL)
	case errors.Is(err, gatherer.ErrUnreachable):
		return gerrs.E(err, http.StatusBadRequest, gerrs.KindFeedUnreachable)
	case errors.Is(err, gatherer.ErrConflict):
		return gerrs.E(err, http.StatusConflict, gerrs.KindConflict)
	case err != nil:
		return gerrs.E(err)
	}

	w.WriteHeader(http.StatusNoContent)

	return nil
}

func (s *Server) handleRemoveFeed(w http.ResponseWriter, r *http.Request) error {
	owner := mux.Vars(r)["owner"]

	_, err := s.ingester.RemoveFeed(r.Context(), owner)
	if errors.Is(err, gatherer.ErrNotFound) {
		return gerrs.E(err, http.StatusNotFound, gerrs.KindNotFound)
	}
	if err != nil {
		return gerrs.E(err)
	}

	w.WriteHeader(http.StatusNoContent)

	return nil
}

func (s *Server) handleListRegistrations(w http.ResponseWriter, r *http.Request) error {
	feeds, err := s.repo.AllFeeds(r.Context())
	if err != nil {
		return gerrs.E(err)
	}

	resp := make([]RegistrationResp, 0, len(feeds))
	for _, f := range feeds {
		resp = append(resp, RegistrationResp{
			Owner: f.Owner,
			URL:   f.URL,
		})
	}

	return writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) error {
	result, err := s.ingester.Run(r.Context())
	if err != nil {
		return gerrs.E(err)
	}

	return writeJSON(w, http.StatusOK, result)
}
