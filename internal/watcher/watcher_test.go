package watcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netmirror/internal/config"
	"netmirror/internal/logging"
)

//nolint:gochecknoinits // keep test output quiet
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

func TestWatchFiresOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netmirror.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0600))

	changed := make(chan struct{}, 4)
	w := New(path, func() { changed <- struct{}{} }).WithDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()

	// give fsnotify time to register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("version: 1\nwatch_config: true\n"), 0600))

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("change callback not called")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netmirror.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0600))

	changed := make(chan struct{}, 4)
	w := New(path, func() { changed <- struct{}{} }).WithDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0600))

	select {
	case <-changed:
		t.Fatal("callback fired for unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}

type fakeSetter struct {
	mu      sync.Mutex
	calls   int
	baseURL string
	token   string
	scheme  string
}

func (f *fakeSetter) SetCredentials(baseURL, token, scheme string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.baseURL, f.token, f.scheme = baseURL, token, scheme
}

func TestConfigReloader(t *testing.T) {
	for _, k := range []string{config.EnvUpstreamURL, config.EnvUpstreamToken, config.EnvDatabasePath, config.EnvListenAddr, config.EnvLogLevel} {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "netmirror.yaml")
	setter := &fakeSetter{}
	reload := ConfigReloader(path, setter)

	t.Run("applies credentials", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("upstream:\n  url: https://nb.example.com/api\n  auth_scheme: Bearer\nlog:\n  level: debug\n"), 0600))
		reload()
		assert.Equal(t, 1, setter.calls)
		assert.Equal(t, "https://nb.example.com/api", setter.baseURL)
		assert.Equal(t, "Bearer", setter.scheme)
	})

	t.Run("invalid file is ignored", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("sync:\n  commit_mode: eventual\n"), 0600))
		reload()
		assert.Equal(t, 1, setter.calls)
	})

	logging.SetLevel("error")
}
