package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/anchor"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

const cartSource = `package shop

type Cart struct {
	items []int
}

func (c *Cart) Total() int {
	return sum(c.items)
}

func sum(xs []int) int {
	return 0
}
`

func cartHeader(path, body string) *types.AnchorHeader {
	fa := &types.FileAnalysis{
		Path:        path,
		Language:    types.LangGo,
		Fingerprint: anchor.FileFingerprint([]byte(body)),
		Symbols: []types.Symbol{
			{
				ID: "S1", Kind: types.KindStruct, Name: "Cart",
				Range:       types.SourceRange{LineStart: 3, LineEnd: 5},
				Fingerprint: "11112222",
			},
			{
				ID: "M2", Kind: types.KindMethod, Name: "Total", Qualified: "Cart.Total", Owner: "S1",
				Range:       types.SourceRange{LineStart: 7, LineEnd: 9},
				References:  []types.SymbolReference{{Kind: types.RefCall, Target: "sum", AtLine: 8}},
				Edges:       []types.SymbolEdge{{Kind: types.EdgeCall, Target: "sum", AtLine: 8}},
				Fingerprint: "33334444",
			},
			{
				ID: "F3", Kind: types.KindFunction, Name: "sum",
				Range:       types.SourceRange{LineStart: 11, LineEnd: 13},
				Fingerprint: "55556666",
			},
		},
		Imports: []types.Import{{Source: "fmt", Line: 2}},
	}
	return anchor.Build(fa, anchor.BuildOptions{Now: func() time.Time { return time.Unix(1700000000, 0) }})
}

// flakySink fails the first n writes with an IoError
type flakySink struct {
	mu       sync.Mutex
	failures int
	calls    int
	stored   map[string]*types.AnchorHeader
}

func newFlakySink(failures int) *flakySink {
	return &flakySink{failures: failures, stored: map[string]*types.AnchorHeader{}}
}

func (f *flakySink) Name() string { return "flaky" }

func (f *flakySink) PutAnchor(_ context.Context, fileID string, h *types.AnchorHeader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return amerrors.NewIoError("write", fileID, errors.New("disk busy"))
	}
	f.stored[PathOf(fileID)] = h
	return nil
}

func (f *flakySink) Get(_ context.Context, path string) (*types.AnchorHeader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.stored[path]; ok {
		return h, nil
	}
	return nil, notFound(path)
}

func (f *flakySink) Delete(_ context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stored[PathOf(fileID)]; !ok {
		return notFound(PathOf(fileID))
	}
	delete(f.stored, PathOf(fileID))
	return nil
}

func (f *flakySink) List(context.Context, string) ([]string, error) {
	return nil, nil
}

func fastRetry(t *testing.T) {
	t.Helper()
	old := RetryBackoff
	RetryBackoff = time.Millisecond
	t.Cleanup(func() { RetryBackoff = old })
}

func TestPathOf(t *testing.T) {
	assert.Equal(t, "src/a.go", PathOf(anchor.FileID("src/a.go")))
	assert.Equal(t, "plain", PathOf("plain"))
}

func TestWriteRetriesOnce(t *testing.T) {
	fastRetry(t)
	ctx := context.Background()
	h := cartHeader("shop/cart.go", cartSource)

	once := newFlakySink(1)
	require.NoError(t, NewFacade(once).PutAnchor(ctx, h.FileID, h))
	assert.Equal(t, 2, once.calls)

	twice := newFlakySink(2)
	err := NewFacade(twice).PutAnchor(ctx, h.FileID, h)
	require.Error(t, err)
	assert.Equal(t, 2, twice.calls)
	var ioe *amerrors.IoError
	require.ErrorAs(t, err, &ioe)
	assert.True(t, ioe.Retried)
	assert.Equal(t, amerrors.ErrorTypeIO, amerrors.Kind(err))
}

func TestFacadeFansOut(t *testing.T) {
	fastRetry(t)
	ctx := context.Background()
	h := cartHeader("shop/cart.go", cartSource)

	primary, mirror := newFlakySink(0), newFlakySink(0)
	f := NewFacade(primary, mirror, primary)
	assert.Equal(t, "flaky+flaky", f.Name())

	require.NoError(t, f.PutAnchor(ctx, h.FileID, h))
	assert.Contains(t, mirror.stored, "shop/cart.go")

	got, err := f.Get(ctx, "shop/cart.go")
	require.NoError(t, err)
	assert.Equal(t, h.FileID, got.FileID)

	require.NoError(t, f.Delete(ctx, h.FileID))
	// deleting again is not an error
	require.NoError(t, f.Delete(ctx, h.FileID))

	_, err = f.Get(ctx, "shop/cart.go")
	assert.ErrorIs(t, err, amerrors.ErrAnchorNotFound)
}

func TestOpenDefaultIsSidecar(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Project.Root = root

	f, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "sidecar", f.Name())
	assert.Equal(t, "sidecar", f.Primary().Name())
}

func TestOpenBothWithSQLPrimary(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "cart.go"), []byte(cartSource), 0o644))
	cfg := config.Default()
	cfg.Project = config.Project{Root: root, Name: "shop"}
	cfg.Output.Mode = config.OutputBoth
	cfg.Storage.Sink = config.SinkSQL
	cfg.Storage.DSN = ":memory:"

	ctx := context.Background()
	f, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "sql+sidecar+embedded", f.Name())

	h := cartHeader("cart.go", cartSource)
	require.NoError(t, f.PutAnchor(ctx, h.FileID, h))

	ids, err := f.List(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, []string{h.FileID}, ids)

	assert.FileExists(t, filepath.Join(root, ".agentmap", "cart.go.yaml"))
	content, err := os.ReadFile(filepath.Join(root, "cart.go"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "// agentmap:1")
}

func TestOpenRejectsBadSQLDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Project.Root = t.TempDir()
	cfg.Storage.Sink = config.SinkSQL
	cfg.Storage.SQLDriver = "oracle"
	cfg.Storage.DSN = "x"

	_, err := Open(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, amerrors.IsConfig(err))
}
