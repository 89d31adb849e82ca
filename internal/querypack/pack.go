// Package querypack supplies the compiled query programs and per-language
// resolver hooks the symbol analyzer runs against each parse tree.
package querypack

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/cache"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/cst"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/lang"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// DefaultCacheSize bounds the compiled-query cache
const DefaultCacheSize = 1024

// Pack is everything the analyzer needs for one language
type Pack struct {
	Language types.Language
	Grammar  cst.Grammar
	Defs     cst.Query
	Refs     cst.Query
	Imports  cst.Query
	Resolver SymbolResolver
}

// Query returns the compiled program of kind
func (p *Pack) Query(kind Kind) cst.Query {
	switch kind {
	case KindDefs:
		return p.Defs
	case KindRefs:
		return p.Refs
	case KindImports:
		return p.Imports
	}
	return nil
}

type cacheKey struct {
	Language types.Language
	Kind     Kind
	Hash     string
}

// Manager loads query programs from a provider and caches the compiled
// result keyed by (language, kind, content hash). It is safe for
// concurrent use.
type Manager struct {
	mu       sync.RWMutex
	provider Provider
	cache    *cache.LRU[cacheKey, cst.Query]
}

// NewManager creates a manager over provider with a cache of size entries
func NewManager(provider Provider, size int) (*Manager, error) {
	if provider == nil {
		provider = EmbeddedProvider{}
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := cache.NewLRU[cacheKey, cst.Query](size)
	if err != nil {
		return nil, amerrors.NewConfigError("queries.cache_size", fmt.Sprint(size), err)
	}
	return &Manager{provider: provider, cache: c}, nil
}

// Provider returns the active provider
func (m *Manager) Provider() Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.provider
}

// SetProvider swaps the provider and drops every cached program.
// Queries already handed out stay usable by their holders.
func (m *Manager) SetProvider(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provider = p
	m.cache.Purge()
	debug.LogQuery("provider switched to %s, cache cleared", p.Name())
}

// Stats reports the compiled-query cache counters
func (m *Manager) Stats() cache.Stats {
	return m.cache.Stats()
}

// Compile returns the compiled program for (lang, kind), compiling it on
// a cache miss.
func (m *Manager) Compile(tag types.Language, kind Kind) (cst.Query, error) {
	grammar, err := lang.Provider(tag)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	provider := m.provider
	m.mu.RUnlock()

	text, err := provider.Load(tag, kind)
	if err != nil {
		return nil, err
	}
	key := cacheKey{Language: tag, Kind: kind, Hash: cache.ContentHash(text)}

	q, hit, err := m.cache.GetOrCreate(key, func() (cst.Query, error) {
		q, err := grammar.NewQuery(text)
		if err != nil {
			return nil, amerrors.NewQueryCompileError(string(tag), string(kind), key.Hash, text, err)
		}
		return q, nil
	})
	if err != nil {
		return nil, err
	}
	if !hit {
		debug.LogQuery("compiled %s/%s (%s)", tag, kind, key.Hash)
	}
	return q, nil
}

// Pack assembles the three programs and the resolver for tag
func (m *Manager) Pack(tag types.Language) (*Pack, error) {
	grammar, err := lang.Provider(tag)
	if err != nil {
		return nil, err
	}
	resolver := ResolverFor(tag)
	if resolver == nil {
		return nil, fmt.Errorf("%w: no resolver for %q", amerrors.ErrUnsupportedLanguage, tag)
	}
	p := &Pack{Language: tag, Grammar: grammar, Resolver: resolver}
	for _, kind := range Kinds {
		q, err := m.Compile(tag, kind)
		if err != nil {
			return nil, err
		}
		switch kind {
		case KindDefs:
			p.Defs = q
		case KindRefs:
			p.Refs = q
		case KindImports:
			p.Imports = q
		}
	}
	return p, nil
}

// Validate compiles every (language, kind) pair once and reports all
// failures together. A nil error means every language is usable.
func (m *Manager) Validate(ctx context.Context, langs []types.Language) error {
	if len(langs) == 0 {
		langs = lang.All()
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, tag := range langs {
		for _, kind := range Kinds {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if _, err := m.Compile(tag, kind); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Stable order regardless of scheduling
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return amerrors.NewMultiError(errs).ErrorOrNil()
}

// FailedLanguages extracts the languages named by compile or provider
// errors inside err.
func FailedLanguages(err error) []types.Language {
	if err == nil {
		return nil
	}
	seen := map[types.Language]bool{}
	var visit func(error)
	visit = func(e error) {
		switch v := e.(type) {
		case *amerrors.MultiError:
			for _, inner := range v.Errors {
				visit(inner)
			}
		case *amerrors.QueryCompileError:
			seen[types.Language(v.Language)] = true
		case *amerrors.ProviderError:
			seen[types.Language(v.Language)] = true
		}
	}
	visit(err)

	out := make([]types.Language, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
