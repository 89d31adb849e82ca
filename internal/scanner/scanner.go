package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/anchor"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/lang"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/querypack"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/resolver"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/storage"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/version"
)

// FileError is a failure scoped to one file, or to one language when Path
// is empty
type FileError struct {
	Path     string             `json:"path,omitempty"`
	Language types.Language     `json:"lang,omitempty"`
	Kind     amerrors.ErrorType `json:"kind"`
	Message  string             `json:"message"`
	Err      error              `json:"-"`
}

func (e FileError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Language, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func (e FileError) Unwrap() error { return e.Err }

func newFileError(path string, tag types.Language, err error) FileError {
	return FileError{Path: path, Language: tag, Kind: amerrors.Kind(err), Message: err.Error(), Err: err}
}

// ScanResult summarizes one scan. Path lists are sorted.
type ScanResult struct {
	Analyses  []*types.FileAnalysis `json:"-"`
	Headers   []*types.AnchorHeader `json:"-"`
	Errors    []FileError           `json:"errors"`
	Written   []string              `json:"written"`
	Unchanged []string              `json:"unchanged"`
	Skipped   []string              `json:"skipped"`
	Canceled  bool                  `json:"canceled"`
	Duration  time.Duration         `json:"duration_ns"`
}

// Options tune one scan
type Options struct {
	// NoWrite analyzes without touching any sink
	NoWrite bool
	// Now stamps headers; nil means time.Now
	Now func() time.Time
}

// Scanner analyzes files on a pool of workers, one resolver.Analyzer (and
// therefore one parser per language) per worker.
type Scanner struct {
	cfg     *config.Config
	packs   *querypack.Manager
	store   storage.Store
	walker  *Walker
	workers int

	enabled  map[types.Language]bool
	disabled map[types.Language]bool
	langErrs []FileError
}

// New validates the query packs of the enabled languages and prepares a
// scanner. Languages whose packs fail to compile are disabled and reported
// with every scan. store may be nil, which implies Options.NoWrite.
func New(ctx context.Context, cfg *config.Config, packs *querypack.Manager, store storage.Store) (*Scanner, error) {
	walker, err := NewWalker(cfg)
	if err != nil {
		return nil, err
	}
	s := &Scanner{
		cfg:      cfg,
		packs:    packs,
		store:    store,
		walker:   walker,
		workers:  cfg.Workers(),
		disabled: map[types.Language]bool{},
	}

	var langs []types.Language
	if len(cfg.Languages) > 0 {
		s.enabled = map[types.Language]bool{}
		for _, name := range cfg.Languages {
			if tag, ok := lang.Normalize(name); ok {
				s.enabled[tag] = true
				langs = append(langs, tag)
			}
		}
	}
	if err := packs.Validate(ctx, langs); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for _, tag := range querypack.FailedLanguages(err) {
			s.disabled[tag] = true
		}
		var me *amerrors.MultiError
		if errors.As(err, &me) {
			for _, e := range me.Errors {
				s.langErrs = append(s.langErrs, newFileError("", languageOf(e), e))
			}
		} else {
			s.langErrs = append(s.langErrs, newFileError("", "", err))
		}
		debug.LogScan("disabled languages after validation: %v", querypack.FailedLanguages(err))
	}
	return s, nil
}

func languageOf(err error) types.Language {
	if failed := querypack.FailedLanguages(err); len(failed) > 0 {
		return failed[0]
	}
	return types.LangUnsupported
}

// Walker exposes the scanner's file filter
func (s *Scanner) Walker() *Walker { return s.walker }

// Supported reports whether path has an enabled, usable language
func (s *Scanner) Supported(path string) (types.Language, bool) {
	tag := lang.Detect(path)
	if tag == types.LangUnsupported || s.disabled[tag] {
		return tag, false
	}
	if s.enabled != nil && !s.enabled[tag] {
		return tag, false
	}
	return tag, true
}

// outcome is what one worker produced for one file
type outcome struct {
	path      string
	analysis  *types.FileAnalysis
	header    *types.AnchorHeader
	err       *FileError
	written   bool
	unchanged bool
	skipped   bool
}

// Scan walks paths and analyzes every file found. Errors scoped to one file
// are collected in the result; only walk failures are returned. A
// cancelled scan finishes the files in flight and reports Canceled.
func (s *Scanner) Scan(ctx context.Context, paths []string, opts Options) (*ScanResult, error) {
	start := time.Now()
	files, err := s.walker.Walk(ctx, paths)
	if err != nil && ctx.Err() == nil {
		return nil, err
	}
	res := s.ScanFiles(ctx, files, opts)
	res.Duration = time.Since(start)
	return res, nil
}

// ScanFiles analyzes already walked files
func (s *Scanner) ScanFiles(ctx context.Context, files []File, opts Options) *ScanResult {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if s.store == nil {
		opts.NoWrite = true
	}

	queue := make(chan File)
	outcomes := make([][]outcome, s.workers)
	// writes for files already taken from the queue are not cut short
	wctx := context.WithoutCancel(ctx)
	var g errgroup.Group

	g.Go(func() error {
		defer close(queue)
		for _, f := range files {
			select {
			case <-ctx.Done():
				return nil
			case queue <- f:
			}
		}
		return nil
	})
	for w := 0; w < s.workers; w++ {
		w := w
		g.Go(func() error {
			a := resolver.New(s.packs, resolver.OptionsFrom(s.cfg))
			defer a.Close()
			for f := range queue {
				outcomes[w] = append(outcomes[w], s.process(wctx, a, f, opts))
			}
			return nil
		})
	}
	_ = g.Wait()

	res := &ScanResult{Canceled: ctx.Err() != nil}
	res.Errors = append(res.Errors, s.langErrs...)
	var all []outcome
	for _, batch := range outcomes {
		all = append(all, batch...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].path < all[j].path })
	for _, o := range all {
		switch {
		case o.skipped:
			res.Skipped = append(res.Skipped, o.path)
		case o.err != nil && o.analysis == nil:
		default:
			res.Analyses = append(res.Analyses, o.analysis)
			res.Headers = append(res.Headers, o.header)
		}
		if o.err != nil {
			res.Errors = append(res.Errors, *o.err)
		}
		if o.written {
			res.Written = append(res.Written, o.path)
		}
		if o.unchanged {
			res.Unchanged = append(res.Unchanged, o.path)
		}
	}
	debug.LogScan("scanned %d files: %d written, %d unchanged, %d skipped, %d errors",
		len(files), len(res.Written), len(res.Unchanged), len(res.Skipped), len(res.Errors))
	return res
}

// process analyzes one file and writes its anchor when it changed
func (s *Scanner) process(ctx context.Context, a *resolver.Analyzer, f File, opts Options) outcome {
	o := outcome{path: f.Path}
	tag, ok := s.Supported(f.Path)
	if !ok {
		o.skipped = true
		return o
	}
	content, err := os.ReadFile(f.Abs)
	if err != nil {
		fe := newFileError(f.Path, tag, amerrors.NewIoError("read", f.Path, err))
		o.err = &fe
		return o
	}
	if binaryContent(content) {
		o.skipped = true
		return o
	}

	fa, err := a.Analyze(f.Path, content)
	if err != nil {
		fe := newFileError(f.Path, tag, err)
		o.err = &fe
		if fa == nil || amerrors.Kind(err) != amerrors.ErrorTypeParse {
			return o
		}
		// a parse failure still yields the file's empty analysis
	}
	h := anchor.Build(fa, anchor.BuildOptions{MinRefs: s.cfg.MinRefs, LineBudget: s.cfg.LineBudget, Now: opts.Now})
	if h.Config == nil {
		h.Config = map[string]string{}
	}
	h.Config["generator"] = version.Info()
	o.analysis, o.header = fa, h

	if s.store == nil {
		return o
	}
	if s.unchanged(ctx, f.Path, h, content) {
		o.unchanged = true
		return o
	}
	if opts.NoWrite {
		return o
	}
	if err := s.store.PutAnchor(ctx, h.FileID, h); err != nil {
		fe := newFileError(f.Path, tag, err)
		o.err = &fe
		return o
	}
	o.written = true
	return o
}

// unchanged reports whether the stored anchor already describes content:
// the primary store holds the same fingerprint and, when headers are
// embedded, the file carries one too.
func (s *Scanner) unchanged(ctx context.Context, path string, h *types.AnchorHeader, content []byte) bool {
	existing, err := s.store.Get(ctx, path)
	if err != nil || existing.FileFingerprint != h.FileFingerprint {
		return false
	}
	if s.cfg.Output.Mode == config.OutputEmbedded || s.cfg.Output.Mode == config.OutputBoth {
		embedded, err := anchor.DecodeContent(content)
		if err != nil || embedded.FileFingerprint != h.FileFingerprint {
			return false
		}
	}
	return true
}
