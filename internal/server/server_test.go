package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func startServer(t *testing.T, root string, port int) *Server {
	t.Helper()
	s := New(arbor.NewLogger(), root)
	require.NoError(t, s.Start(port))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.WaitReady(ctx))
	return s
}

func TestServer_ServesFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "runner.html"), []byte("<html>runner</html>"), 0644))

	s := startServer(t, root, 0)

	resp, err := http.Get(s.URL() + "/runner.html")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>runner</html>", string(body))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestServer_MissingFile(t *testing.T) {
	s := startServer(t, t.TempDir(), 0)

	resp, err := http.Get(s.URL() + "/nope.js")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_SkipsBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	s := startServer(t, t.TempDir(), port)

	assert.Greater(t, s.Port(), port)
	assert.Equal(t, fmt.Sprintf("http://127.0.0.1:%d", s.Port()), s.URL())
}

func TestServer_ShutdownWithoutStart(t *testing.T) {
	s := New(arbor.NewLogger(), t.TempDir())
	assert.NoError(t, s.Shutdown(context.Background()))
	assert.Zero(t, s.Port())
}
