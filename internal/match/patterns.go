// Package match implements pattern search over anchor symbols: a shared
// compiled-pattern cache, exact/glob/regex/fuzzy matching, feature ranking
// and parallel top-k retrieval.
package match

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/cache"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
)

// PatternKind selects how pattern text is compiled
type PatternKind string

const (
	PatternGlob  PatternKind = "glob"
	PatternRegex PatternKind = "regex"
)

// DefaultPatternCacheSize is the pattern cache capacity when none is given
const DefaultPatternCacheSize = 1024

// CompiledPattern is a cached, ready-to-run pattern
type CompiledPattern struct {
	Kind   PatternKind
	Text   string
	Source string // the regular expression actually compiled
	re     *regexp.Regexp
}

// MatchString reports whether s matches the pattern
func (p *CompiledPattern) MatchString(s string) bool {
	return p.re.MatchString(s)
}

type patternKey struct {
	kind PatternKind
	text string
}

// PatternCache is a thread-safe LRU of compiled patterns keyed by
// (kind, text). Failed compilations are not cached.
type PatternCache struct {
	lru *cache.LRU[patternKey, *CompiledPattern]
}

// NewPatternCache creates a cache holding at most capacity patterns
func NewPatternCache(capacity int) (*PatternCache, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("pattern cache capacity must be >= 1, got %d", capacity)
	}
	lru, err := cache.NewLRU[patternKey, *CompiledPattern](capacity)
	if err != nil {
		return nil, err
	}
	return &PatternCache{lru: lru}, nil
}

// Get returns the compiled form of text, compiling and caching it on a miss
func (c *PatternCache) Get(kind PatternKind, text string) (*CompiledPattern, error) {
	p, hit, err := c.lru.GetOrCreate(patternKey{kind, text}, func() (*CompiledPattern, error) {
		return Compile(kind, text)
	})
	if err != nil {
		return nil, err
	}
	if !hit {
		debug.LogMatch("compiled %s pattern %q as %q", kind, text, p.Source)
	}
	return p, nil
}

// Stats snapshots the cache counters
func (c *PatternCache) Stats() cache.Stats {
	return c.lru.Stats()
}

// Clear drops every cached pattern
func (c *PatternCache) Clear() {
	c.lru.Purge()
}

// Compile builds a pattern without caching it
func Compile(kind PatternKind, text string) (*CompiledPattern, error) {
	src := text
	switch kind {
	case PatternGlob:
		src = GlobToRegex(text)
	case PatternRegex:
	default:
		return nil, fmt.Errorf("unknown pattern kind %q", kind)
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile %s pattern %q: %w", kind, text, err)
	}
	return &CompiledPattern{Kind: kind, Text: text, Source: src, re: re}, nil
}

// GlobToRegex converts a glob into an anchored regular expression.
// "*" matches within one path segment. "**" spans segments only when it is
// a whole segment ("**/x", "a/**/b", "a/**"), as in doublestar; elsewhere
// it behaves like "*". "?" matches one non-separator character and bracket
// classes are kept ("[!x]" negates). Everything else is literal.
func GlobToRegex(glob string) string {
	var b strings.Builder
	b.WriteByte('^')
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				segStart := i == 0 || glob[i-1] == '/'
				segEnd := i+2 == len(glob) || glob[i+2] == '/'
				switch {
				case segStart && segEnd && i+2 < len(glob):
					b.WriteString("(?:.*/)?")
					i += 2
				case segStart && segEnd:
					b.WriteString(".*")
					i++
				default:
					// inside a segment "**" is just "*"
					b.WriteString("[^/]*")
					i++
				}
				continue
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := classEnd(glob, i)
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : end]
			b.WriteByte('[')
			if strings.HasPrefix(class, "!") {
				b.WriteByte('^')
				class = class[1:]
			}
			b.WriteString(strings.ReplaceAll(class, `\`, `\\`))
			b.WriteByte(']')
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteByte('$')
	return b.String()
}

// classEnd returns the index of the "]" closing the class opened at i, or -1
func classEnd(glob string, i int) int {
	j := i + 1
	if j < len(glob) && glob[j] == '!' {
		j++
	}
	// a leading "]" is a literal member
	if j < len(glob) && glob[j] == ']' {
		j++
	}
	for ; j < len(glob); j++ {
		if glob[j] == ']' {
			return j
		}
	}
	return -1
}
