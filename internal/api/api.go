// Package api serves the public HTTP surface: recent articles, feed
// registration, and the ingestion trigger.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	gerrs "github.com/mknowles/gatherer/internal/errors"
	"github.com/mknowles/gatherer/internal/gatherer"
	"github.com/mknowles/gatherer/internal/ingest"
)

func writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("error encoding json response: %s", err)
	}

	return nil
}

// HandlerFuncE is a modified type of [http.HandlerFunc] that returns an error.
type HandlerFuncE func(w http.ResponseWriter, r *http.Request) error

func (f HandlerFuncE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := f(w, r)
	if err == nil {
		return
	}

	// Either it's already a structured error, or coerce it to one
	sErr := &gerrs.Error{}
	if !errors.As(err, &sErr) {
		slog.Error("unstructured handler error", "error", err)
		sErr = gerrs.E(http.StatusInternalServerError, "internal server error")
	}

	if err := writeJSON(w, sErr.Status, sErr); err != nil {
		slog.Error("error writing response", "error", err)
	}
}

// errRouter is a newtype around a mux router that allows attaching handlers that return errors.
type errRouter struct {
	*mux.Router
}

func (r errRouter) HandleFuncE(path string, f HandlerFuncE) *mux.Route {
	return r.Handle(path, f)
}

type (
	// Server handles requests against the article store and the feed
	// registry.
	Server struct {
		*http.Server

		repo     gatherer.Repository
		ingester ingest.Service
	}

	Config struct {
		Port int
	}
)

func NewServer(cfg Config, repo gatherer.Repository, ingester ingest.Service) *Server {
	r := errRouter{Router: mux.NewRouter()}

	srvr := &Server{
		repo:     repo,
		ingester: ingester,
	}

	r.Use(accessLog)

	r.HandleFuncE("/feeds", srvr.handleRecentArticles).Methods(http.MethodGet)
	r.HandleFuncE("/feeds/{owner}", srvr.handleAddFeed).Methods(http.MethodPost)
	r.HandleFuncE("/feeds/{owner}", srvr.handleRemoveFeed).Methods(http.MethodDelete)
	r.HandleFuncE("/feed-registrations", srvr.handleListRegistrations).Methods(http.MethodGet)
	r.HandleFuncE("/ingest", srvr.handleIngest).Methods(http.MethodPost)

	// The original service fronted a browser app from anywhere, so CORS
	// stays wide open.
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	srvr.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		Handler:      cors(r.Router),
	}

	return srvr
}

// Wraps each call with an access log line on the way out.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		writer := &respCodeWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(writer, r)

		slog.Info("request completed",
			"method", r.Method,
			"url", r.URL.String(),
			"duration", time.Since(start),
			"status_code", writer.code,
		)
	})
}

type respCodeWriter struct {
	http.ResponseWriter
	code int
}

func (w *respCodeWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
