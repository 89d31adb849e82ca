package scanner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/anchor"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/storage"
)

// pendingEvent is the latest state seen for one path in the current window
type pendingEvent struct {
	abs    string
	remove bool
}

// WatchBatch is what one debounce window produced
type WatchBatch struct {
	Result  *ScanResult
	Removed []string
	Errors  []FileError
}

// Watcher rescans files as they change. Events are coalesced per path and
// flushed once no event has arrived for the debounce interval.
type Watcher struct {
	scanner  *Scanner
	store    storage.Sink
	debounce time.Duration
	opts     Options

	fsw     *fsnotify.Watcher
	pending map[uint64]pendingEvent

	// OnBatch receives every flushed batch; it runs on the watch loop
	OnBatch func(WatchBatch)
}

// NewWatcher watches the scanner's root. store receives deletions and may
// be nil when the scanner has none.
func NewWatcher(s *Scanner, store storage.Sink, cfg *config.Config, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, amerrors.NewIoError("watch", s.walker.Root(), err)
	}
	debounce := time.Duration(cfg.Performance.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = config.DefaultDebounceMs * time.Millisecond
	}
	w := &Watcher{
		scanner:  s,
		store:    store,
		debounce: debounce,
		opts:     opts,
		fsw:      fsw,
		pending:  map[uint64]pendingEvent{},
	}
	if err := w.addWatches(s.walker.Root()); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addWatches registers dir and every directory below it the walker keeps
func (w *Watcher) addWatches(dir string) error {
	visited := map[string]bool{}
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		real, err := filepath.EvalSymlinks(p)
		if err != nil || visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true
		if p != w.scanner.walker.Root() && w.scanner.walker.skipDir(p, w.scanner.walker.Rel(p)) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			debug.LogWatch("watch %s: %v", p, err)
		}
		return nil
	})
}

// Run processes events until ctx is cancelled. Events still pending at
// cancellation are dropped.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	debug.LogWatch("watching %s (debounce %s)", w.scanner.walker.Root(), w.debounce)
	for {
		select {
		case <-ctx.Done():
			if len(w.pending) > 0 {
				debug.LogWatch("dropping %d pending events", len(w.pending))
			}
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(ev) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			debug.LogWatch("watcher error: %v", err)
		case <-timer.C:
			w.flush(ctx)
		}
	}
}

// handle records ev and reports whether the debounce window restarts
func (w *Watcher) handle(ev fsnotify.Event) bool {
	abs := filepath.Clean(ev.Name)
	if filepath.Base(abs) == ".gitignore" {
		w.scanner.walker.Reset()
		return false
	}

	info, err := os.Stat(abs)
	if err != nil {
		// a path that is gone was removed or renamed away
		if _, ok := w.scanner.Supported(abs); ok && errors.Is(err, fs.ErrNotExist) {
			w.pending[xxhash.Sum64String(abs)] = pendingEvent{abs: abs, remove: true}
			return true
		}
		return false
	}
	if info.IsDir() {
		if ev.Op.Has(fsnotify.Create) {
			if err := w.addWatches(abs); err != nil {
				debug.LogWatch("watch new dir %s: %v", abs, err)
			}
		}
		return false
	}
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Remove) {
		return false
	}
	if !w.scanner.walker.Accept(abs, info.Size()) {
		return false
	}
	w.pending[xxhash.Sum64String(abs)] = pendingEvent{abs: abs}
	return true
}

// flush rescans changed files and drops anchors of removed ones
func (w *Watcher) flush(ctx context.Context) {
	if len(w.pending) == 0 {
		return
	}
	events := w.pending
	w.pending = map[uint64]pendingEvent{}

	var batch WatchBatch
	var files []File
	for _, ev := range events {
		rel := w.scanner.walker.Rel(ev.abs)
		if ev.remove {
			batch.Removed = append(batch.Removed, rel)
			continue
		}
		info, err := os.Stat(ev.abs)
		if err != nil {
			continue
		}
		files = append(files, File{Path: rel, Abs: ev.abs, Size: info.Size()})
	}
	sort.Strings(batch.Removed)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	if w.store != nil {
		for _, rel := range batch.Removed {
			err := w.store.Delete(ctx, anchor.FileID(rel))
			if err != nil && !errors.Is(err, amerrors.ErrAnchorNotFound) {
				batch.Errors = append(batch.Errors, newFileError(rel, "", err))
			}
		}
	}
	if len(files) > 0 {
		batch.Result = w.scanner.ScanFiles(ctx, files, w.opts)
	}
	debug.LogWatch("flushed %d events: %d rescanned, %d removed", len(events), len(files), len(batch.Removed))
	if w.OnBatch != nil {
		w.OnBatch(batch)
	}
}
