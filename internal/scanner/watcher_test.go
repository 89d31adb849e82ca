package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/querypack"
)

func startWatcher(t *testing.T, root string) (*Watcher, <-chan WatchBatch) {
	t.Helper()
	cfg := testConfig(root)
	cfg.Performance.DebounceMs = 150
	s, store := newTestScanner(t, cfg, querypack.EmbeddedProvider{})
	w, err := NewWatcher(s, store, cfg, Options{Now: fixedNow})
	require.NoError(t, err)

	batches := make(chan WatchBatch, 8)
	w.OnBatch = func(b WatchBatch) { batches <- b }

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, w.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return w, batches
}

func nextBatch(t *testing.T, batches <-chan WatchBatch) WatchBatch {
	t.Helper()
	select {
	case b := <-batches:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("no batch flushed")
	}
	return WatchBatch{}
}

func TestWatcherRescansAndRemoves(t *testing.T) {
	root := writeTree(t, map[string]string{"shop/keep.txt": "x\n"})
	_, batches := startWatcher(t, root)

	cart := filepath.Join(root, "shop", "cart.go")
	require.NoError(t, os.WriteFile(cart, []byte(cartGo), 0o644))

	b := nextBatch(t, batches)
	require.NotNil(t, b.Result)
	assert.Equal(t, []string{"shop/cart.go"}, b.Result.Written)
	assert.FileExists(t, filepath.Join(root, ".agentmap", "shop", "cart.go.yaml"))

	require.NoError(t, os.Remove(cart))
	b = nextBatch(t, batches)
	assert.Equal(t, []string{"shop/cart.go"}, b.Removed)
	assert.Empty(t, b.Errors)
	assert.NoFileExists(t, filepath.Join(root, ".agentmap", "shop", "cart.go.yaml"))
}

func TestWatcherCoalescesWrites(t *testing.T) {
	root := t.TempDir()
	_, batches := startWatcher(t, root)

	cart := filepath.Join(root, "cart.go")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(cart, []byte(cartGo), 0o644))
	}
	b := nextBatch(t, batches)
	require.NotNil(t, b.Result)
	assert.Len(t, b.Result.Analyses, 1)
}

func TestWatcherReportsSkippedFiles(t *testing.T) {
	root := t.TempDir()
	_, batches := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0o644))

	b := nextBatch(t, batches)
	require.NotNil(t, b.Result)
	assert.Equal(t, []string{"notes.txt"}, b.Result.Skipped)
	assert.Equal(t, []string{"a.go"}, b.Result.Written)
}
