package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ordersGo = `package orders

type OrderRepository struct{}

func (r *OrderRepository) FindByID(id int) error {
	return nil
}
`

const pricingPy = `def price(order):
    return order.total
`

func project(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range map[string]string{
		"orders/repository.go": ordersGo,
		"pricing/price.py":     pricingPy,
		"notes.txt":            "not code\n",
	} {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

// run executes the CLI and returns stdout and the exit status
func run(t *testing.T, root string, args ...string) (string, int) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"agentmap", "--root", root}, args...))
	return out.String(), exitCode(err)
}

func TestScanExitCodes(t *testing.T) {
	root := project(t)

	out, code := run(t, root, "scan")
	assert.Equal(t, exitChanges, code, out)
	assert.Contains(t, out, "wrote orders/repository.go")
	assert.Contains(t, out, "2 written, 0 unchanged, 1 skipped")

	out, code = run(t, root, "scan")
	assert.Equal(t, exitOK, code, out)
	assert.Contains(t, out, "0 written, 2 unchanged")
}

func TestScanNoWriteJSON(t *testing.T) {
	root := project(t)
	out, code := run(t, root, "scan", "--no-write", "--json")
	assert.Equal(t, exitOK, code, out)

	var report struct {
		Written []string `json:"written"`
		Skipped []string `json:"skipped"`
		Caches  struct {
			Queries  map[string]any `json:"queries"`
			Patterns map[string]any `json:"patterns"`
		} `json:"caches"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Empty(t, report.Written)
	assert.Equal(t, []string{"notes.txt"}, report.Skipped)
	assert.Contains(t, report.Caches.Queries, "misses")
	assert.NoDirExists(t, filepath.Join(root, ".agentmap"))
}

func TestCheckFindsMissingAndOutdated(t *testing.T) {
	root := project(t)
	_, code := run(t, root, "scan")
	require.Equal(t, exitChanges, code)

	out, code := run(t, root, "check")
	assert.Equal(t, exitOK, code, out)

	require.NoError(t, os.Remove(filepath.Join(root, ".agentmap", "orders", "repository.go.yaml")))
	f, err := os.OpenFile(filepath.Join(root, "pricing", "price.py"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\n\ndef discount(order):\n    return 0\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, code = run(t, root, "check", "--json")
	assert.Equal(t, exitChanges, code, out)
	var sum struct {
		Missing  []string `json:"missing"`
		Outdated []string `json:"outdated"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, []string{"orders/repository.go"}, sum.Missing)
	assert.Equal(t, []string{"pricing/price.py"}, sum.Outdated)
}

func TestSearch(t *testing.T) {
	root := project(t)
	out, code := run(t, root, "search", "--type", "exact", "FindByID")
	assert.Equal(t, exitOK, code, out)
	assert.Contains(t, out, "orders/repository.go:5-7")
	assert.Contains(t, out, "1 matches in 2 files")

	_, code = run(t, root, "search")
	assert.Equal(t, exitConfig, code)
}

func TestExport(t *testing.T) {
	root := project(t)

	out, code := run(t, root, "export", "--format", "mermaid", "--out", "-")
	assert.Equal(t, exitOK, code, out)
	assert.True(t, strings.HasPrefix(out, "graph LR"), out)

	out, code = run(t, root, "export", "--format", "md", "--detail", "basic")
	assert.Equal(t, exitOK, code, out)
	body, err := os.ReadFile(filepath.Join(root, "architecture.md"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "## Layers")

	_, code = run(t, root, "export", "--format", "pdf")
	assert.Equal(t, exitConfig, code)
	_, code = run(t, root, "export", "--detail", "everything")
	assert.Equal(t, exitConfig, code)
}

func TestUsageErrorsExitWithConfigCode(t *testing.T) {
	root := project(t)
	for _, args := range [][]string{
		{"scan", "--bogus"},
		{"search", "--top", "many", "Order"},
		{"--nope", "scan"},
		{"frobnicate"},
	} {
		out, code := run(t, root, args...)
		assert.Equal(t, exitConfig, code, "%v: %s", args, out)
	}
	assert.NoDirExists(t, filepath.Join(root, ".agentmap"))

	_, code := run(t, root)
	assert.Equal(t, exitOK, code)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitChanges, exitCode(os.ErrNotExist))
}
