package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/orchestratord/internal/pipeline"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

// writeHomeConfig writes config.yaml into a fresh HOME and returns its path.
func writeHomeConfig(t *testing.T, content string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("GROQ_API_KEY", "")

	dir := filepath.Join(home, ".config", "orchestratord")
	require.NoError(t, os.MkdirAll(dir, 0700))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func waitHealthy(t *testing.T, base string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server at %s never became healthy", base)
}

func TestMainIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if goruntime.GOOS == "windows" {
		t.Skip("process tasks require cat")
	}

	port := freePort(t)
	path := writeHomeConfig(t, fmt.Sprintf(`
server:
  host: 127.0.0.1
  http_port: %d
  shutdown_timeout: 2s
runtime:
  driver: process
tasks:
  echo:
    command: ["cat", "{input}"]
logging:
  level: warn
`, port))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, path)
	}()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitHealthy(t, base)

	t.Run("tasks", func(t *testing.T) {
		resp, err := http.Get(base + "/api/v1/tasks")
		require.NoError(t, err)
		defer resp.Body.Close()

		var body struct {
			Tasks []string `json:"tasks"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, []string{"echo"}, body.Tasks)
	})

	t.Run("explicit plan", func(t *testing.T) {
		resp, err := http.Post(base+"/api/v1/runs", "application/json",
			strings.NewReader(`{"plan":["echo","echo"],"text":"  hello  "}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Run-ID"))

		var out pipeline.Response
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		require.False(t, out.Failed(), out.Error)
		assert.Equal(t, "hello", out.FinalResult)
		assert.Equal(t, 1, out.Outputs.Len())
	})

	t.Run("planning without api key", func(t *testing.T) {
		resp, err := http.Post(base+"/process_request", "application/json",
			strings.NewReader(`{"user_request":"clean it","text":"x"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var out pipeline.Response
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.True(t, strings.HasPrefix(out.Error, "planning failed: "), out.Error)
	})

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shutdown in time")
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	t.Run("path outside config dirs", func(t *testing.T) {
		writeHomeConfig(t, "")
		err := run(context.Background(), "/tmp/orchestratord-test.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load config")
	})

	t.Run("invalid driver", func(t *testing.T) {
		path := writeHomeConfig(t, "runtime:\n  driver: vm\n")
		err := run(context.Background(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "runtime driver")
	})

	t.Run("missing prompt file", func(t *testing.T) {
		path := writeHomeConfig(t, `
runtime:
  driver: process
planner:
  prompt_file: /nonexistent/prompt.txt
tasks:
  echo:
    command: ["cat", "{input}"]
`)
		err := run(context.Background(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load prompt template")
	})
}
