package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebouncer_CollapsesBurst(t *testing.T) {
	calls := make(chan []string, 4)
	d := NewDebouncer(20*time.Millisecond, func(changed []string) {
		calls <- changed
	})
	defer d.Stop()

	d.Trigger("b.js")
	d.Trigger("a.js")
	d.Trigger("b.js")

	select {
	case changed := <-calls:
		require.Equal(t, []string{"a.js", "b.js"}, changed)
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never fired")
	}

	select {
	case changed := <-calls:
		t.Fatalf("unexpected second call with %v", changed)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	var mu sync.Mutex
	called := false
	d := NewDebouncer(50*time.Millisecond, func([]string) {
		mu.Lock()
		called = true
		mu.Unlock()
	})

	d.Trigger("a.js")
	d.Stop()
	d.Trigger("b.js")

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.False(t, called)
}

func TestNew_RequiresPaths(t *testing.T) {
	_, err := New(DefaultConfig())
	require.Error(t, err)
}

func TestWatcher_Ignored(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Paths = []string{dir}
	cfg.Ignore = []string{filepath.Join(dir, "app")}

	w, err := New(cfg)
	require.NoError(t, err)
	defer w.watcher.Close()

	require.True(t, w.ignored(filepath.Join(dir, "app", "js", "main.js")))
	require.True(t, w.ignored(filepath.Join(dir, "app")))
	require.False(t, w.ignored(filepath.Join(dir, "application.js")))
	require.True(t, w.hidden(filepath.Join(dir, ".main.js.swp")))
}

func TestWatcher_RebuildsOnChange(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "js"), 0o755))

	cfg := DefaultConfig()
	cfg.Paths = []string{src}
	cfg.Debounce = 20 * time.Millisecond

	w, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan []string, 8)
	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, func(_ context.Context, changed []string) error {
			changes <- changed
			return nil
		})
	}()

	target := filepath.Join(src, "js", "main.js")
	require.Eventually(t, func() bool {
		if err := os.WriteFile(target, []byte("console.log(1)"), 0o600); err != nil {
			return false
		}
		select {
		case changed := <-changes:
			return len(changed) > 0 && changed[0] == target
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
