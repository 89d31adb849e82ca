package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/querypack"
)

func TestCheckFindsMissingAndOutdated(t *testing.T) {
	root := shopTree(t)
	s, store := newTestScanner(t, testConfig(root), querypack.EmbeddedProvider{})
	ctx := context.Background()

	_, err := s.Scan(ctx, nil, Options{Now: fixedNow})
	require.NoError(t, err)

	checker, err := NewChecker(s, store)
	require.NoError(t, err)
	clean, err := checker.Check(ctx, nil)
	require.NoError(t, err)
	assert.False(t, clean.HasIssues())
	assert.Equal(t, []string{"shop/cart.go", "shop/helpers.py"}, clean.Valid)
	assert.Equal(t, []string{".gitignore", "README.md"}, clean.Skipped)

	require.NoError(t, os.Remove(filepath.Join(root, ".agentmap", "shop", "cart.go.yaml")))
	f, err := os.OpenFile(filepath.Join(root, "shop", "helpers.py"), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("\n\ndef extra():\n    return 1\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	summary, err := checker.Check(ctx, nil)
	require.NoError(t, err)
	assert.True(t, summary.HasIssues())
	assert.Equal(t, []string{"shop/cart.go"}, summary.Missing)
	assert.Equal(t, []string{"shop/helpers.py"}, summary.Outdated)
	assert.Empty(t, summary.Invalid)
	assert.Empty(t, summary.Valid)

	for _, r := range summary.Results {
		if r.Status == StatusOutdated {
			assert.NotEqual(t, r.Expected, r.Current)
		}
	}
}

func TestInlineScanThenCheckIsValid(t *testing.T) {
	root := writeTree(t, map[string]string{
		"run/run.go": "package run\n\nfunc Run() {   \n\tprintln(1)\n}\n",
	})
	cfg := testConfig(root)
	cfg.Output.Mode = config.OutputEmbedded
	cfg.Storage.Sink = config.SinkEmbedded
	cfg.Output.Inline = true
	s, store := newTestScanner(t, cfg, querypack.EmbeddedProvider{})
	ctx := context.Background()

	res, err := s.Scan(ctx, nil, Options{Now: fixedNow})
	require.NoError(t, err)
	require.Equal(t, []string{"run/run.go"}, res.Written)
	content, err := os.ReadFile(filepath.Join(root, "run", "run.go"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "func Run() {     // am:a=")

	checker, err := NewChecker(s, store)
	require.NoError(t, err)
	summary, err := checker.Check(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"run/run.go"}, summary.Valid)
	assert.False(t, summary.HasIssues())
}

func TestCheckInvalidSidecar(t *testing.T) {
	root := shopTree(t)
	s, store := newTestScanner(t, testConfig(root), querypack.EmbeddedProvider{})
	ctx := context.Background()

	_, err := s.Scan(ctx, nil, Options{Now: fixedNow})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".agentmap", "shop", "cart.go.yaml"), []byte("agentmap: [not, a, payload\n"), 0o644))

	checker, err := NewChecker(s, store)
	require.NoError(t, err)
	summary, err := checker.Check(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"shop/cart.go"}, summary.Invalid)
	assert.True(t, summary.HasIssues())
}

func TestSkippedIsNotAnIssue(t *testing.T) {
	root := writeTree(t, map[string]string{"notes.txt": "hello\n"})
	s, store := newTestScanner(t, testConfig(root), querypack.EmbeddedProvider{})
	checker, err := NewChecker(s, store)
	require.NoError(t, err)

	summary, err := checker.Check(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.txt"}, summary.Skipped)
	assert.False(t, summary.HasIssues())
}
