package match

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobToRegex(t *testing.T) {
	tests := []struct {
		glob string
		want string
	}{
		{"User*Service", `^User[^/]*Service$`},
		{"**/models/*.py", `^(?:.*/)?models/[^/]*\.py$`},
		{"src/**", `^src/.*$`},
		{"a/**/b", `^a/(?:.*/)?b$`},
		{"a/**b", `^a/[^/]*b$`},
		{"a**/b", `^a[^/]*/b$`},
		{"**", `^.*$`},
		{"get?", `^get[^/]$`},
		{"[A-Z]*", `^[A-Z][^/]*$`},
		{"[!_]*", `^[^_][^/]*$`},
		{"a+b(c)", `^a\+b\(c\)$`},
		{"open[", `^open\[$`},
	}
	for _, tt := range tests {
		t.Run(tt.glob, func(t *testing.T) {
			assert.Equal(t, tt.want, GlobToRegex(tt.glob))
		})
	}
}

func TestGlobMatching(t *testing.T) {
	p, err := Compile(PatternGlob, "User*Service")
	require.NoError(t, err)
	assert.True(t, p.MatchString("UserService"))
	assert.True(t, p.MatchString("UserManagementService"))
	assert.False(t, p.MatchString("Service"))
	assert.False(t, p.MatchString("User/Service"))

	p, err = Compile(PatternGlob, "**/handlers/*.go")
	require.NoError(t, err)
	assert.True(t, p.MatchString("handlers/user.go"))
	assert.True(t, p.MatchString("internal/api/handlers/user.go"))
	assert.False(t, p.MatchString("internal/api/handlers/v1/user.go"))

	p, err = Compile(PatternGlob, "a/**b")
	require.NoError(t, err)
	assert.True(t, p.MatchString("a/xb"))
	assert.True(t, p.MatchString("a/b"))
	assert.False(t, p.MatchString("a/x/yb"))

	p, err = Compile(PatternGlob, "a/**/b")
	require.NoError(t, err)
	assert.True(t, p.MatchString("a/b"))
	assert.True(t, p.MatchString("a/x/y/b"))
	assert.False(t, p.MatchString("a/xb"))
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile(PatternRegex, "(unclosed")
	assert.Error(t, err)
	_, err = Compile("wildcard", "x")
	assert.Error(t, err)

	_, err = NewPatternCache(0)
	assert.Error(t, err)
}

func TestPatternCacheAccounting(t *testing.T) {
	const capacity, inserted = 4, 10
	c, err := NewPatternCache(capacity)
	require.NoError(t, err)

	for i := 0; i < inserted; i++ {
		_, err := c.Get(PatternGlob, fmt.Sprintf("Pattern%d*", i))
		require.NoError(t, err)
	}
	// the last four are still cached
	reaccesses := 0
	for i := inserted - capacity; i < inserted; i++ {
		_, err := c.Get(PatternGlob, fmt.Sprintf("Pattern%d*", i))
		require.NoError(t, err)
		reaccesses++
	}

	s := c.Stats()
	assert.Equal(t, capacity, s.Size)
	assert.Equal(t, uint64(inserted-capacity), s.Evictions)
	assert.Equal(t, uint64(capacity), s.Hits)
	assert.Equal(t, uint64(inserted+reaccesses), s.Hits+s.Misses)

	c.Clear()
	assert.Equal(t, 0, c.Stats().Size)
}

func TestPatternCacheSeparatesKinds(t *testing.T) {
	c, err := NewPatternCache(8)
	require.NoError(t, err)

	g, err := c.Get(PatternGlob, "a.b")
	require.NoError(t, err)
	r, err := c.Get(PatternRegex, "a.b")
	require.NoError(t, err)

	assert.False(t, g.MatchString("axb"))
	assert.True(t, r.MatchString("axb"))
	assert.Equal(t, 2, c.Stats().Size)
}

func TestPatternCacheFailuresAreNotCached(t *testing.T) {
	c, err := NewPatternCache(8)
	require.NoError(t, err)
	_, err = c.Get(PatternRegex, "[")
	require.Error(t, err)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestPatternCacheConcurrent(t *testing.T) {
	c, err := NewPatternCache(16)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				p, err := c.Get(PatternGlob, fmt.Sprintf("Name%d*", (i+w)%32))
				if assert.NoError(t, err) {
					assert.NotNil(t, p)
				}
			}
		}(w)
	}
	wg.Wait()

	s := c.Stats()
	assert.Equal(t, uint64(8*200), s.Hits+s.Misses)
	assert.LessOrEqual(t, s.Size, 16)
}
