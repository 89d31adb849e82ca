package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/arch"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
)

const cartGo = `package shop

type Cart struct {
	items []int
}

func (c *Cart) Total() int {
	return len(c.items)
}

func NewCart() *Cart {
	return &Cart{}
}
`

const moneyPy = `class Money:
    def __init__(self, cents):
        self.cents = cents


def format_money(m):
    return str(m.cents)
`

func openShop(t *testing.T) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	for name, body := range map[string]string{
		"shop/cart.go":  cartGo,
		"shop/money.py": moneyPy,
	} {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	cfg := config.Default()
	cfg.Project = config.Project{Root: root, Name: "shop"}
	cfg.Performance.Workers = 2
	cfg.Matcher.Workers = 2
	e, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, root
}

func TestScanThenCheck(t *testing.T) {
	e, root := openShop(t)
	ctx := context.Background()

	res, err := e.Scan(ctx, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"shop/cart.go", "shop/money.py"}, res.Written)
	assert.FileExists(t, filepath.Join(root, ".agentmap", "shop", "cart.go.yaml"))

	sum, err := e.Check(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, sum.Valid, 2)
	assert.False(t, sum.HasIssues())

	stats := e.CacheStats()
	assert.Positive(t, stats.Queries.Size)
}

func TestScanNoWriteLeavesNoSidecars(t *testing.T) {
	e, root := openShop(t)
	res, err := e.Scan(context.Background(), nil, true)
	require.NoError(t, err)
	assert.Empty(t, res.Written)
	assert.Len(t, res.Headers, 2)
	assert.NoDirExists(t, filepath.Join(root, ".agentmap"))
}

func TestSearch(t *testing.T) {
	e, _ := openShop(t)
	ctx := context.Background()

	res, err := e.Search(ctx, SearchRequest{Pattern: "Cart", Type: "exact", Scope: "names"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "Cart", res.Results[0].Symbol.Name)
	assert.Equal(t, "shop/cart.go", res.Results[0].Path)

	top, err := e.Search(ctx, SearchRequest{Pattern: "*money*", Top: 1})
	require.NoError(t, err)
	assert.Len(t, top.Results, 1)

	sensitive := true
	none, err := e.Search(ctx, SearchRequest{Pattern: "cart", Type: "exact", Scope: "names", CaseSensitive: &sensitive})
	require.NoError(t, err)
	assert.Empty(t, none.Results)
}

func TestSearchRejectsBadInput(t *testing.T) {
	e, _ := openShop(t)
	_, err := e.Search(context.Background(), SearchRequest{Pattern: "x", Type: "soundex"})
	assert.True(t, amerrors.IsConfig(err))
	_, err = e.Search(context.Background(), SearchRequest{Pattern: "x", Scope: "colors"})
	assert.True(t, amerrors.IsConfig(err))
}

func TestExport(t *testing.T) {
	e, _ := openShop(t)
	now := func() time.Time { return time.Unix(1700000000, 0) }

	a, err := e.Export(context.Background(), ExportRequest{Detail: "basic", Now: now})
	require.NoError(t, err)
	assert.Equal(t, "shop", a.Metadata.Project)
	assert.Equal(t, int64(1700000000), a.Metadata.GeneratedAt)
	assert.Equal(t, 2, a.Metadata.Files)
	require.NotNil(t, a.Metrics)
	assert.Empty(t, a.Symbols)

	a, err = e.Export(context.Background(), ExportRequest{Now: now})
	require.NoError(t, err)
	assert.Equal(t, arch.DetailStandard.String(), a.Metadata.Detail)
	assert.NotEmpty(t, a.Symbols)

	e.Config().MinFiles = 5
	_, err = e.Export(context.Background(), ExportRequest{})
	assert.ErrorIs(t, err, arch.ErrTooFewFiles)
}
