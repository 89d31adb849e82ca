package match

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// Type is the match algorithm
type Type string

const (
	TypeExact Type = "exact"
	TypeGlob  Type = "glob"
	TypeRegex Type = "regex"
	TypeFuzzy Type = "fuzzy"
)

// DefaultFuzzyThreshold is used when a fuzzy query carries no threshold
const DefaultFuzzyThreshold = 0.6

// ParseType converts a flag value
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeExact, TypeGlob, TypeRegex, TypeFuzzy:
		return t, nil
	case "":
		return TypeGlob, nil
	}
	return "", fmt.Errorf("unknown match type %q", s)
}

// Query is one search request
type Query struct {
	Pattern string
	Type    Type
	// Threshold is the minimum fuzzy base similarity
	Threshold float64
	Scope     Scope
}

// Result is one matched symbol
type Result struct {
	SymbolID   string       `json:"symbol_id"`
	FileID     string       `json:"file_id"`
	Path       string       `json:"path"`
	Language   string       `json:"lang"`
	Symbol     types.Symbol `json:"symbol"`
	Field      string       `json:"field"`
	Haystack   string       `json:"haystack"`
	Confidence float64      `json:"confidence"`
	Breakdown  Breakdown    `json:"breakdown"`
}

// better orders results by confidence desc, then symbol id asc
func better(a, b *Result) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.SymbolID < b.SymbolID
}

// Options configure a Matcher
type Options struct {
	CaseSensitive bool
	Weights       Weights
	// Workers bounds the parallel search; 0 uses every CPU
	Workers int
	// Cache is shared between matchers when set
	Cache *PatternCache
}

// OptionsFrom builds matcher options from configuration
func OptionsFrom(cfg *config.Config) (Options, error) {
	pc, err := NewPatternCache(cfg.Matcher.PatternCacheSize)
	if err != nil {
		return Options{}, err
	}
	return Options{
		CaseSensitive: cfg.Matcher.CaseSensitive,
		Weights:       WeightsFrom(cfg.Matcher.Weights),
		Workers:       cfg.Matcher.Workers,
		Cache:         pc,
	}, nil
}

// Matcher searches symbols of decoded anchors. It is safe for concurrent use.
type Matcher struct {
	caseSensitive bool
	weights       Weights
	workers       int
	cache         *PatternCache
}

// New creates a matcher
func New(opts Options) (*Matcher, error) {
	pc := opts.Cache
	if pc == nil {
		var err error
		if pc, err = NewPatternCache(DefaultPatternCacheSize); err != nil {
			return nil, err
		}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Matcher{
		caseSensitive: opts.CaseSensitive,
		weights:       opts.Weights,
		workers:       workers,
		cache:         pc,
	}, nil
}

// Cache returns the pattern cache
func (m *Matcher) Cache() *PatternCache {
	return m.cache
}

// prepared is a query compiled for one search
type prepared struct {
	q       Query
	needle  string
	pattern *CompiledPattern
}

func (m *Matcher) prepare(q Query) (*prepared, error) {
	if q.Type == "" {
		q.Type = TypeGlob
	}
	if q.Scope.Empty() {
		q.Scope = ScopeOf(ScopeNames)
	}
	if q.Type == TypeFuzzy && q.Threshold <= 0 {
		q.Threshold = DefaultFuzzyThreshold
	}
	p := &prepared{q: q, needle: q.Pattern}
	if !m.caseSensitive {
		p.needle = strings.ToLower(p.needle)
	}
	var err error
	switch q.Type {
	case TypeGlob:
		p.pattern, err = m.cache.Get(PatternGlob, p.needle)
	case TypeRegex:
		text := q.Pattern
		if !m.caseSensitive {
			text = "(?i)" + text
		}
		p.pattern, err = m.cache.Get(PatternRegex, text)
	case TypeExact, TypeFuzzy:
	default:
		err = fmt.Errorf("unknown match type %q", q.Type)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// base returns the match-type similarity of one haystack, and whether it
// qualifies at all
func (m *Matcher) base(p *prepared, haystack string) (float64, bool) {
	h := haystack
	if !m.caseSensitive {
		h = strings.ToLower(h)
	}
	switch p.q.Type {
	case TypeExact:
		return 1, h == p.needle
	case TypeGlob:
		return 1, p.pattern.MatchString(h)
	case TypeRegex:
		// case folding is carried by the (?i) flag
		return 1, p.pattern.MatchString(haystack)
	}
	s := fuzzySimilarity(p.needle, h)
	return s, s >= p.q.Threshold
}

// matchSymbol returns the best-ranked haystack of s, if any qualifies
func (m *Matcher) matchSymbol(p *prepared, h *types.AnchorHeader, path string, s *types.Symbol) (Result, bool) {
	var best Result
	found := false
	for _, c := range p.q.Scope.haystacks(path, s) {
		base, ok := m.base(p, c.text)
		if !ok {
			continue
		}
		b := rank(m.weights, base, p.q.Pattern, c.text, path, !m.caseSensitive)
		if found && b.Final <= best.Confidence {
			continue
		}
		found = true
		best = Result{
			FileID:     h.FileID,
			Path:       path,
			Language:   string(h.Language),
			Symbol:     *s,
			Field:      c.field,
			Haystack:   c.text,
			Confidence: b.Final,
			Breakdown:  b,
		}
	}
	if found {
		best.SymbolID = s.GlobalID(path).String()
	}
	return best, found
}

// scanHeader emits every matching symbol of h
func (m *Matcher) scanHeader(p *prepared, h *types.AnchorHeader, emit func(Result)) {
	path := h.Path()
	for i := range h.Symbols {
		if r, ok := m.matchSymbol(p, h, path, &h.Symbols[i]); ok {
			emit(r)
		}
	}
}

// Search returns every match sorted by confidence desc and deduped by
// symbol id. A cancelled search returns the matches found so far with the
// context error.
func (m *Matcher) Search(ctx context.Context, headers []*types.AnchorHeader, q Query) ([]Result, error) {
	p, err := m.prepare(q)
	if err != nil {
		return nil, err
	}
	parts := m.partition(headers)
	collected := make([][]Result, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	for w, part := range parts {
		w, part := w, part
		g.Go(func() error {
			for _, h := range part {
				if err := gctx.Err(); err != nil {
					return err
				}
				m.scanHeader(p, h, func(r Result) { collected[w] = append(collected[w], r) })
			}
			return nil
		})
	}
	err = g.Wait()

	var all []Result
	for _, rs := range collected {
		all = append(all, rs...)
	}
	out := dedupe(all)
	debug.LogMatch("search %q (%s): %d results over %d headers", q.Pattern, p.q.Type, len(out), len(headers))
	return out, err
}

// TopK returns the k best matches. Each worker keeps a bounded heap of its
// best k; the heaps are merged afterwards, so memory stays within k per
// worker.
func (m *Matcher) TopK(ctx context.Context, headers []*types.AnchorHeader, q Query, k int) ([]Result, error) {
	if k <= 0 {
		return nil, ctx.Err()
	}
	p, err := m.prepare(q)
	if err != nil {
		return nil, err
	}
	parts := m.partition(headers)
	heaps := make([]*boundedHeap, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	for w, part := range parts {
		w, part := w, part
		heaps[w] = newBoundedHeap(k)
		g.Go(func() error {
			for _, h := range part {
				if err := gctx.Err(); err != nil {
					return err
				}
				m.scanHeader(p, h, heaps[w].offer)
			}
			return nil
		})
	}
	err = g.Wait()

	var merged []Result
	for _, h := range heaps {
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
			break
		}
		merged = append(merged, h.items...)
	}
	out := dedupe(merged)
	if len(out) > k {
		out = out[:k]
	}
	return out, err
}

// partition splits headers into at most workers contiguous parts
func (m *Matcher) partition(headers []*types.AnchorHeader) [][]*types.AnchorHeader {
	n := min(m.workers, len(headers))
	if n == 0 {
		return nil
	}
	size := (len(headers) + n - 1) / n
	var parts [][]*types.AnchorHeader
	for start := 0; start < len(headers); start += size {
		parts = append(parts, headers[start:min(start+size, len(headers))])
	}
	return parts
}

// dedupe sorts results best first and keeps the first result per symbol id
func dedupe(rs []Result) []Result {
	sort.Slice(rs, func(i, j int) bool { return better(&rs[i], &rs[j]) })
	seen := make(map[string]bool, len(rs))
	out := rs[:0]
	for _, r := range rs {
		if seen[r.SymbolID] {
			continue
		}
		seen[r.SymbolID] = true
		out = append(out, r)
	}
	return out
}
