package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mknowles/gatherer/internal/api"
	"github.com/mknowles/gatherer/internal/fetch"
	"github.com/mknowles/gatherer/internal/ingest"
	"github.com/mknowles/gatherer/internal/migrations"
	"github.com/mknowles/gatherer/internal/sqlite"
)

const testRSSFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Feed</title>
    <description>A test feed</description>
    <link>https://example.com</link>
    <item>
      <title>Older Post</title>
      <link>https://example.com/post-1</link>
      <pubDate>Mon, 01 Jan 2024 12:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Newer Post</title>
      <link>https://example.com/post-2</link>
      <pubDate>Tue, 02 Jan 2024 12:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

// Spins up the whole stack against a file-backed database and a stub remote
// feed.
func newTestStack(t *testing.T) (apiSrv *httptest.Server, feedURL string) {
	t.Helper()

	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testRSSFeed))
	}))
	t.Cleanup(feedSrv.Close)

	dbx, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })
	require.NoError(t, migrations.Run(dbx))

	repo := sqlite.New(dbx)
	ingester := ingest.New(repo, fetch.New(3*time.Second), 3*time.Second, 4)
	srvr := api.NewServer(api.Config{Port: 0}, repo, ingester)

	apiSrv = httptest.NewServer(srvr.Handler)
	t.Cleanup(apiSrv.Close)

	return apiSrv, feedSrv.URL
}

func do(t *testing.T, method, url string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func TestRegisterIngestAndRead(t *testing.T) {
	srv, feedURL := newTestStack(t)

	resp := do(t, http.MethodPost, srv.URL+"/feeds/alice?url="+feedURL)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/feed-registrations")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var regs []api.RegistrationResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&regs))
	require.Len(t, regs, 1)
	assert.Equal(t, "alice", regs[0].Owner)
	assert.Equal(t, feedURL, regs[0].URL)

	resp = do(t, http.MethodPost, srv.URL+"/ingest")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var run ingest.RunResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.Equal(t, ingest.RunResult{Inserted: 2}, run)

	// A second pass over identical feed content inserts nothing.
	resp = do(t, http.MethodPost, srv.URL+"/ingest")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.Equal(t, ingest.RunResult{Inserted: 0, Skipped: 2}, run)

	resp = do(t, http.MethodGet, srv.URL+"/feeds")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var articles []api.ArticleResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&articles))
	require.Len(t, articles, 2)
	assert.Equal(t, "Newer Post", articles[0].Title)
	assert.Equal(t, "Older Post", articles[1].Title)
	require.NotNil(t, articles[0].Owner)
	assert.Equal(t, "alice", *articles[0].Owner)
}

func TestAddFeed_BadRequests(t *testing.T) {
	srv, _ := newTestStack(t)

	// Not a url at all.
	resp := do(t, http.MethodPost, srv.URL+"/feeds/alice?url=not-a-url")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Nothing listening at this address.
	resp = do(t, http.MethodPost, srv.URL+"/feeds/alice?url=http%3A%2F%2F127.0.0.1%3A1%2Frss.xml")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAddFeed_DuplicateURL(t *testing.T) {
	srv, feedURL := newTestStack(t)

	resp := do(t, http.MethodPost, srv.URL+"/feeds/alice?url="+feedURL)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/feeds/bob?url="+feedURL)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRemoveFeed(t *testing.T) {
	srv, feedURL := newTestStack(t)

	resp := do(t, http.MethodDelete, srv.URL+"/feeds/alice")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/feeds/alice?url="+feedURL)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodDelete, srv.URL+"/feeds/alice")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/feed-registrations")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var regs []api.RegistrationResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&regs))
	assert.Empty(t, regs)
}
