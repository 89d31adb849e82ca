package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/querypack"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/storage"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

const cartGo = `package shop

type Cart struct {
	items []int
}

func (c *Cart) Total() int {
	return sum(c.items)
}

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}
`

const helpersPy = `class Money:
    def __init__(self, cents):
        self.cents = cents


def format_money(m):
    return str(m.cents)
`

func shopTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"shop/cart.go":    cartGo,
		"shop/helpers.py": helpersPy,
		"README.md":       "# shop\n",
		".gitignore":      "gen/\n",
		"gen/out.go":      "package gen\n",
	})
}

func fixedNow() time.Time { return time.Unix(1700000000, 0) }

func newTestScanner(t *testing.T, cfg *config.Config, provider querypack.Provider) (*Scanner, *storage.Facade) {
	t.Helper()
	ctx := context.Background()
	packs, err := querypack.NewManager(provider, 64)
	require.NoError(t, err)
	store, err := storage.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	s, err := New(ctx, cfg, packs, store)
	require.NoError(t, err)
	return s, store
}

func TestScanWritesThenSkipsUnchanged(t *testing.T) {
	root := shopTree(t)
	cfg := testConfig(root)
	s, store := newTestScanner(t, cfg, querypack.EmbeddedProvider{})
	ctx := context.Background()

	res, err := s.Scan(ctx, nil, Options{Now: fixedNow})
	require.NoError(t, err)
	assert.False(t, res.Canceled)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{"shop/cart.go", "shop/helpers.py"}, res.Written)
	assert.Equal(t, []string{".gitignore", "README.md"}, res.Skipped)
	require.Len(t, res.Analyses, 2)
	assert.Equal(t, "shop/cart.go", res.Analyses[0].Path)
	assert.Equal(t, types.LangPython, res.Analyses[1].Language)

	h, err := store.Get(ctx, "shop/cart.go")
	require.NoError(t, err)
	assert.Equal(t, res.Headers[0].FileFingerprint, h.FileFingerprint)
	assert.True(t, strings.HasPrefix(h.Config["generator"], "agentmap/"))
	assert.FileExists(t, filepath.Join(root, ".agentmap", "shop", "cart.go.yaml"))

	again, err := s.Scan(ctx, nil, Options{Now: fixedNow})
	require.NoError(t, err)
	assert.Empty(t, again.Written)
	assert.Equal(t, []string{"shop/cart.go", "shop/helpers.py"}, again.Unchanged)
}

func TestScanNoWrite(t *testing.T) {
	root := shopTree(t)
	s, _ := newTestScanner(t, testConfig(root), querypack.EmbeddedProvider{})

	res, err := s.Scan(context.Background(), nil, Options{NoWrite: true})
	require.NoError(t, err)
	assert.Empty(t, res.Written)
	assert.Len(t, res.Analyses, 2)
	assert.NoDirExists(t, filepath.Join(root, ".agentmap"))
}

func TestScanEmbeddedMode(t *testing.T) {
	root := shopTree(t)
	cfg := testConfig(root)
	cfg.Output.Mode = config.OutputEmbedded
	cfg.Storage.Sink = config.SinkEmbedded
	s, _ := newTestScanner(t, cfg, querypack.EmbeddedProvider{})
	ctx := context.Background()

	res, err := s.Scan(ctx, []string{filepath.Join(root, "shop", "cart.go")}, Options{Now: fixedNow})
	require.NoError(t, err)
	assert.Equal(t, []string{"shop/cart.go"}, res.Written)

	content, err := os.ReadFile(filepath.Join(root, "shop", "cart.go"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "// agentmap:1")

	// the embedded header does not change the fingerprint
	again, err := s.Scan(ctx, []string{filepath.Join(root, "shop", "cart.go")}, Options{Now: fixedNow})
	require.NoError(t, err)
	assert.Equal(t, []string{"shop/cart.go"}, again.Unchanged)
}

// brokenProvider serves invalid programs for one language
type brokenProvider struct {
	querypack.EmbeddedProvider
	broken types.Language
}

func (p brokenProvider) Load(tag types.Language, kind querypack.Kind) (string, error) {
	if tag == p.broken {
		return "(no_such_node) @definition.class\n", nil
	}
	return p.EmbeddedProvider.Load(tag, kind)
}

func TestScanDisablesLanguageWithBadQueries(t *testing.T) {
	root := shopTree(t)
	cfg := testConfig(root)
	cfg.Languages = []string{"go", "py"}
	s, _ := newTestScanner(t, cfg, brokenProvider{broken: types.LangPython})

	res, err := s.Scan(context.Background(), nil, Options{Now: fixedNow})
	require.NoError(t, err)
	assert.Equal(t, []string{"shop/cart.go"}, res.Written)
	assert.Contains(t, res.Skipped, "shop/helpers.py")

	require.NotEmpty(t, res.Errors)
	for _, e := range res.Errors {
		assert.Empty(t, e.Path)
		assert.Equal(t, types.LangPython, e.Language)
		assert.Equal(t, amerrors.ErrorTypeQueryCompile, e.Kind)
	}
}

func TestScanLanguageFilter(t *testing.T) {
	root := shopTree(t)
	cfg := testConfig(root)
	cfg.Languages = []string{"python"}
	s, _ := newTestScanner(t, cfg, querypack.EmbeddedProvider{})

	res, err := s.Scan(context.Background(), nil, Options{NoWrite: true})
	require.NoError(t, err)
	require.Len(t, res.Analyses, 1)
	assert.Equal(t, "shop/helpers.py", res.Analyses[0].Path)
	assert.Contains(t, res.Skipped, "shop/cart.go")
}

func TestScanCanceled(t *testing.T) {
	root := shopTree(t)
	s, _ := newTestScanner(t, testConfig(root), querypack.EmbeddedProvider{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Scan(ctx, nil, Options{})
	require.NoError(t, err)
	assert.True(t, res.Canceled)
	assert.LessOrEqual(t, len(res.Written), 2)
}

func TestScanWithoutStore(t *testing.T) {
	root := shopTree(t)
	packs, err := querypack.NewManager(querypack.EmbeddedProvider{}, 16)
	require.NoError(t, err)
	s, err := New(context.Background(), testConfig(root), packs, nil)
	require.NoError(t, err)

	res, err := s.Scan(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.Len(t, res.Headers, 2)
	assert.Empty(t, res.Written)
	assert.Empty(t, res.Unchanged)
}

func TestSupported(t *testing.T) {
	packs, err := querypack.NewManager(querypack.EmbeddedProvider{}, 16)
	require.NoError(t, err)
	cfg := testConfig(t.TempDir())
	cfg.Languages = []string{"go"}
	s, err := New(context.Background(), cfg, packs, nil)
	require.NoError(t, err)

	tag, ok := s.Supported("a/b.go")
	assert.True(t, ok)
	assert.Equal(t, types.LangGo, tag)
	_, ok = s.Supported("a/b.py")
	assert.False(t, ok)
	_, ok = s.Supported("README")
	assert.False(t, ok)
}
