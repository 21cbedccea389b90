package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"snapshare/internal/server/api"
	"snapshare/internal/server/config"
	"snapshare/internal/server/database"
	"snapshare/internal/server/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sharedIDPattern = regexp.MustCompile(`Shared as ([0-9a-f]{8})`)

func startServer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	store, err := database.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "cli.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.RunMigrations(ctx))

	cfg := &config.Config{BaseURL: "http://share.test", MaxFileSize: 1 << 20}
	svc := service.NewShareService(store, cfg, nil)
	srv := httptest.NewServer(api.SetupRouter(api.NewHandler(svc, cfg), cfg, nil))
	t.Cleanup(srv.Close)
	return srv.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func sharedID(t *testing.T, out string) string {
	t.Helper()
	m := sharedIDPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	return m[1]
}

func TestPutAndGetText(t *testing.T) {
	url := startServer(t)

	out, err := run(t, "--server", url, "put", "--text", "hello cli", "--max-views", "1", "--hours", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "http://share.test/v/")
	assert.Contains(t, out, "expires")
	id := sharedID(t, out)

	out, err = run(t, "--server", url, "get", id)
	require.NoError(t, err)
	assert.Equal(t, "hello cli", out)

	_, err = run(t, "--server", url, "get", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestPutDirectoryAndGetFile(t *testing.T) {
	url := startServer(t)
	t.Setenv("SNAPSHARE_SERVER", url)

	src := filepath.Join(t.TempDir(), "docs")
	require.NoError(t, os.Mkdir(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("alpha"), 0644))

	out, err := run(t, "put", src)
	require.NoError(t, err)
	assert.Contains(t, out, "Compressed 1 file(s)")
	id := sharedID(t, out)

	dest := filepath.Join(t.TempDir(), "out.zip")
	out, err = run(t, "get", id, "-o", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved "+dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("PK"), data[:2])

	out, err = run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "shares:  1 (0 text, 1 files)")
	assert.Contains(t, out, "views:   1")
}

func TestPutValidation(t *testing.T) {
	url := startServer(t)

	_, err := run(t, "--server", url, "put")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files provided")

	_, err = run(t, "--server", url, "put", "--text", "x", "file.txt")
	require.Error(t, err)

	_, err = run(t, "--server", url, "put", filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found or not accessible")
}
