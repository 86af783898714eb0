package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/bookshelf/internal/config"
	"github.com/sakif/bookshelf/internal/server"
)

func startServer(t *testing.T) string {
	t.Helper()
	cfg := &config.Config{
		Server:   config.ServerConfig{Port: 3001, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second},
		Database: config.DatabaseConfig{URL: ":memory:", MaxOpenConns: 1},
		Auth: config.AuthConfig{
			JWTSecret:  "bookctl-test-secret-0123456789",
			JWTExpiry:  time.Hour,
			BcryptCost: 4,
		},
	}
	srv, err := server.New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts.URL + "/api"
}

func bookctl(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), append([]string{"-server", url}, args...), &out)
	return out.String(), err
}

func TestBookctl_Session(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	url := startServer(t)

	out, err := bookctl(t, url, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")

	out, err = bookctl(t, url, "register", "-email", "cli@x.com", "-password", "secret1", "-name", "Cli")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as Cli")

	out, err = bookctl(t, url, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "cli@x.com")

	out, err = bookctl(t, url, "add-book", "-title", "Dune", "-author", "Frank Herbert", "-isbn", "9780441013593", "-genre", "Science Fiction")
	require.NoError(t, err)
	assert.Contains(t, out, `Added "Dune"`)

	out, err = bookctl(t, url, "books", "-mine")
	require.NoError(t, err)
	assert.Contains(t, out, "Dune")
	assert.Contains(t, out, "page 1 of 1, 1 books")

	id := strings.Fields(strings.Split(out, "\n")[1])[0]
	out, err = bookctl(t, url, "review", id, "-rating", "4", "-comment", "Good")
	require.NoError(t, err)
	assert.Contains(t, out, "4 stars")
	reviewID := between(out, "(", ")")

	out, err = bookctl(t, url, "book", id)
	require.NoError(t, err)
	assert.Contains(t, out, "4.0 (1 reviews)")
	assert.Contains(t, out, "Good")

	out, err = bookctl(t, url, "edit-book", id, "-genre", "Classics")
	require.NoError(t, err)
	assert.Contains(t, out, `Updated "Dune"`)

	out, err = bookctl(t, url, "books", "-genre", "classics")
	require.NoError(t, err)
	assert.Contains(t, out, "Dune")
	assert.Contains(t, out, "Frank Herbert")

	out, err = bookctl(t, url, "edit-review", reviewID, "-rating", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "now has 2 stars")

	out, err = bookctl(t, url, "reviews", "-mine")
	require.NoError(t, err)
	assert.Contains(t, out, "Good", "comment untouched by a rating-only edit")

	out, err = bookctl(t, url, "delete-review", reviewID)
	require.NoError(t, err)
	assert.Contains(t, out, "Review deleted.")

	out, err = bookctl(t, url, "delete-book", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Book deleted")

	_, err = bookctl(t, url, "book", id)
	assert.ErrorContains(t, err, "not_found")

	out, err = bookctl(t, url, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out.")

	_, err = bookctl(t, url, "add-book", "-title", "X")
	assert.Error(t, err)
}

func TestBookctl_EditNeedsLeadingID(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	_, err := bookctl(t, "http://localhost:1", "edit-book", "-title", "X")
	assert.ErrorContains(t, err, "expected an id before flags")
}

// between returns the text between the first start and the following end.
func between(s, start, end string) string {
	_, rest, _ := strings.Cut(s, start)
	inner, _, _ := strings.Cut(rest, end)
	return inner
}

func TestBookctl_UnknownCommand(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	_, err := bookctl(t, "http://localhost:1", "frobnicate")
	assert.ErrorContains(t, err, "unknown command")
}
