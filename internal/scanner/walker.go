// Package scanner walks source trees, analyzes files on a worker pool and
// keeps their anchors current: batch scans, a debounced filesystem watcher
// and a checker that validates stored anchors against file content.
package scanner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/cache"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
)

// decisionCacheSize bounds the remembered include/exclude decisions
const decisionCacheSize = 16384

// File is one walked file. Path is slash-separated and relative to the
// project root when the file lies below it.
type File struct {
	Path string
	Abs  string
	Size int64
}

// Walker lists the files of a tree that pass the ignore rules
type Walker struct {
	root      string
	include   []string
	exclude   []string
	gitignore bool
	maxSize   int64
	sidecar   string

	decisions *cache.LRU[uint64, bool]

	mu      sync.Mutex
	ignores map[string]*ignore.GitIgnore // by slash dir relative to root; nil = no file
}

// NewWalker creates a walker for cfg
func NewWalker(cfg *config.Config) (*Walker, error) {
	decisions, err := cache.NewLRU[uint64, bool](decisionCacheSize)
	if err != nil {
		return nil, err
	}
	root, err := filepath.Abs(cfg.Project.Root)
	if err != nil {
		return nil, amerrors.NewConfigError("project.root", cfg.Project.Root, err)
	}
	sidecar := cfg.Output.SidecarDir
	if sidecar == "" {
		sidecar = config.DefaultSidecarDir
	}
	if !filepath.IsAbs(sidecar) {
		sidecar = filepath.Join(root, sidecar)
	}
	return &Walker{
		root:      root,
		include:   cfg.Include,
		exclude:   cfg.Exclude,
		gitignore: cfg.RespectGitignore,
		maxSize:   cfg.Performance.MaxFileSizeBytes,
		sidecar:   filepath.Clean(sidecar),
		decisions: decisions,
		ignores:   map[string]*ignore.GitIgnore{},
	}, nil
}

// Root is the absolute project root
func (w *Walker) Root() string { return w.root }

// Rel returns the slash path of abs relative to the root, or abs itself
// for paths outside it
func (w *Walker) Rel(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// Walk expands paths (files or directories, relative to the working
// directory) into the files to analyze, sorted by path. Files named
// explicitly bypass include patterns but not excludes.
func (w *Walker) Walk(ctx context.Context, paths []string) ([]File, error) {
	if len(paths) == 0 {
		paths = []string{w.root}
	}
	seen := map[string]bool{}
	var files []File
	add := func(abs string, size int64) {
		if !seen[abs] {
			seen[abs] = true
			files = append(files, File{Path: w.Rel(abs), Abs: abs, Size: size})
		}
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, amerrors.NewIoError("resolve", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, amerrors.NewIoError("stat", p, err)
		}
		if !info.IsDir() {
			if w.acceptFile(w.Rel(abs), info.Size(), true) {
				add(abs, info.Size())
			}
			continue
		}
		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				debug.LogScan("walk %s: %v", p, err)
				return nil
			}
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			rel := w.Rel(p)
			if d.IsDir() {
				if p != abs && w.skipDir(p, rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if w.acceptFile(rel, info.Size(), false) {
				add(p, info.Size())
			}
			return nil
		})
		if err != nil {
			return files, err
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	debug.LogScan("walked %d paths: %d files", len(paths), len(files))
	return files, nil
}

func (w *Walker) skipDir(abs, rel string) bool {
	if filepath.Clean(abs) == w.sidecar || filepath.Base(abs) == ".git" {
		return true
	}
	for _, pattern := range w.exclude {
		// "**/dist/**" excludes the directory itself
		dirPattern := strings.TrimSuffix(pattern, "/**")
		if match(dirPattern, rel) || match(pattern, rel) {
			return true
		}
	}
	return w.ignored(rel, true)
}

// Reset forgets cached decisions and .gitignore files
func (w *Walker) Reset() {
	w.decisions.Purge()
	w.mu.Lock()
	w.ignores = map[string]*ignore.GitIgnore{}
	w.mu.Unlock()
}

// Accept reports whether a single path would be walked; the watcher uses
// it to filter events
func (w *Walker) Accept(abs string, size int64) bool {
	if strings.HasPrefix(filepath.Clean(abs), w.sidecar+string(filepath.Separator)) {
		return false
	}
	return w.acceptFile(w.Rel(abs), size, false)
}

// acceptFile applies size, binary extension, include, exclude and
// gitignore rules. Pattern decisions are cached by path hash.
func (w *Walker) acceptFile(rel string, size int64, explicit bool) bool {
	if w.maxSize > 0 && size > w.maxSize {
		debug.LogScan("skip %s: %d bytes over limit", rel, size)
		return false
	}
	if binaryByExtension(rel) {
		return false
	}
	key := xxhash.Sum64String(rel)
	if explicit {
		key = xxhash.Sum64String("!" + rel)
	}
	ok, _, _ := w.decisions.GetOrCreate(key, func() (bool, error) {
		return w.decide(rel, explicit), nil
	})
	return ok
}

func (w *Walker) decide(rel string, explicit bool) bool {
	if !explicit && len(w.include) > 0 {
		included := false
		for _, pattern := range w.include {
			if match(pattern, rel) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	for _, pattern := range w.exclude {
		if match(pattern, rel) {
			return false
		}
	}
	return !w.ignored(rel, false)
}

// ignored checks rel against the .gitignore of every ancestor directory,
// each matched relative to its own directory
func (w *Walker) ignored(rel string, isDir bool) bool {
	if !w.gitignore || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, "..") {
		return false
	}
	dir := path.Dir(rel)
	for {
		if gi := w.ignoreFile(dir); gi != nil {
			sub := rel
			if dir != "." {
				sub = strings.TrimPrefix(rel, dir+"/")
			}
			if gi.MatchesPath(sub) || isDir && gi.MatchesPath(sub+"/") {
				return true
			}
		}
		if dir == "." {
			return false
		}
		dir = path.Dir(dir)
	}
}

// ignoreFile loads and caches the .gitignore of a root-relative directory
func (w *Walker) ignoreFile(dir string) *ignore.GitIgnore {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gi, ok := w.ignores[dir]; ok {
		return gi
	}
	var gi *ignore.GitIgnore
	content, err := os.ReadFile(filepath.Join(w.root, filepath.FromSlash(dir), ".gitignore"))
	if err == nil {
		var lines []string
		for _, l := range strings.Split(string(content), "\n") {
			l = strings.TrimRight(l, "\r")
			if strings.TrimSpace(l) != "" && !strings.HasPrefix(l, "#") {
				lines = append(lines, l)
			}
		}
		gi = ignore.CompileIgnoreLines(lines...)
	} else if !errors.Is(err, fs.ErrNotExist) {
		debug.LogScan("read .gitignore in %s: %v", dir, err)
	}
	w.ignores[dir] = gi
	return gi
}

func match(pattern, rel string) bool {
	ok, err := doublestar.Match(pattern, rel)
	return err == nil && ok
}
