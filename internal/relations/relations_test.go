package relations

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

func sym(id string, kind types.SymbolKind, name string, line int, edges ...types.SymbolEdge) types.Symbol {
	return types.Symbol{
		ID:        id,
		Kind:      kind,
		Name:      name,
		Qualified: name,
		Range:     types.SourceRange{LineStart: line, LineEnd: line + 5},
		Edges:     edges,
	}
}

func edge(kind types.EdgeKind, target string, line int) types.SymbolEdge {
	return types.SymbolEdge{Kind: kind, Target: target, AtLine: line}
}

func TestGraphDedupe(t *testing.T) {
	g := NewGraph()
	assert.True(t, g.Add(Relationship{From: "a", To: "b", Kind: KindCall}))
	assert.False(t, g.Add(Relationship{From: "a", To: "b", Kind: KindCall, Line: 9}))
	assert.True(t, g.Add(Relationship{From: "a", To: "b", Kind: KindUsesType}))
	assert.True(t, g.Add(Relationship{From: "c", To: "b", Kind: KindCall}))

	assert.Equal(t, 3, g.Len())
	assert.Len(t, g.Outgoing("a"), 2)
	assert.Equal(t, []string{"a", "c"}, g.Incoming("b"))
	assert.Equal(t, []string{"a", "b", "c"}, g.Nodes())
	assert.Equal(t, map[Kind]int{KindCall: 2, KindUsesType: 1}, g.CountByKind())

	rels := g.Relationships()
	require.Len(t, rels, 3)
	assert.Equal(t, "a", rels[0].From)
	assert.Equal(t, KindCall, rels[0].Kind)
	assert.Equal(t, "c", rels[2].From)
}

func tsProject() []File {
	repo := File{
		Path:     "src/repo.ts",
		Language: types.LangTypeScript,
		Symbols: []types.Symbol{
			sym("C1", types.KindClass, "Repo", 1),
			{ID: "M2", Kind: types.KindMethod, Name: "find", Qualified: "Repo.find", Owner: "C1", Range: types.SourceRange{LineStart: 2, LineEnd: 4}},
		},
	}
	service := File{
		Path:     "src/service.ts",
		Language: types.LangTypeScript,
		Imports:  []types.Import{{Source: "./repo", ImportedNames: []string{"Repo"}, Line: 1}},
		Symbols: []types.Symbol{
			sym("I1", types.KindInterface, "Greeter", 3),
			sym("C2", types.KindClass, "UserService", 7,
				edge(types.EdgeImplement, "Greeter", 7),
				edge(types.EdgeUsesType, "./repo/Repo", 8),
				edge(types.EdgeCall, "./repo/Repo.find", 9),
				edge(types.EdgeCall, "console.log", 10),
			),
		},
	}
	return []File{service, repo}
}

func TestAnalyzeBindsAcrossFiles(t *testing.T) {
	res := NewAnalyzer(tsProject(), Options{}).Analyze()

	require.Len(t, res.Imports, 1)
	imp := res.Imports[0]
	assert.Equal(t, []string{"src/repo.ts"}, imp.Files)
	assert.Equal(t, "src/repo.ts:1:Repo", imp.Bindings["Repo"])

	svc := "src/service.ts:7:UserService"
	byTarget := map[string]Kind{}
	for _, r := range res.Graph.Outgoing(svc) {
		byTarget[r.To] = r.Kind
	}
	assert.Equal(t, KindImplements, byTarget["src/service.ts:3:Greeter"])
	assert.Equal(t, KindUsesType, byTarget["src/repo.ts:1:Repo"])
	assert.Equal(t, KindCall, byTarget["src/repo.ts:2:find"])

	assert.Equal(t, []string{"src/service.ts"}, res.Graph.Incoming("src/repo.ts"))

	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, "console.log", res.Unresolved[0].Target)
	assert.Equal(t, KindCall, res.Unresolved[0].Kind)
	assert.Equal(t, 1, res.Metrics.Unresolved)
}

func TestImportResolution(t *testing.T) {
	paths := []string{
		"app/__init__.py",
		"app/models.py",
		"app/views/home.py",
		"internal/store/store.go",
		"internal/store/cache.go",
		"src/lib.rs",
		"src/entities/mod.rs",
		"web/components/index.js",
		"lib/util/strings.py",
		"com/acme/User.java",
	}
	idx := newModuleIndex(paths, []string{"lib"})

	tests := []struct {
		name   string
		from   string
		lang   types.Language
		source string
		want   []string
	}{
		{"python relative", "app/views/home.py", types.LangPython, "..models", []string{"app/models.py"}},
		{"python package", "app/views/home.py", types.LangPython, "app", []string{"app/__init__.py"}},
		{"python absolute symbol", "app/views/home.py", types.LangPython, "app.models.User", []string{"app/models.py"}},
		{"python search path", "app/models.py", types.LangPython, "util.strings", []string{"lib/util/strings.py"}},
		{"go module path", "app/main.go", types.LangGo, "example.com/shop/internal/store", []string{"internal/store/store.go", "internal/store/cache.go"}},
		{"rust crate module", "src/lib.rs", types.LangRust, "crate::entities::User", []string{"src/entities/mod.rs"}},
		{"js directory index", "web/app.js", types.LangJavaScript, "./components", []string{"web/components/index.js"}},
		{"java class", "com/acme/App.java", types.LangJava, "com.acme.User", []string{"com/acme/User.java"}},
		{"external package", "app/models.py", types.LangPython, "requests", nil},
		{"self import excluded", "app/models.py", types.LangPython, ".models", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, idx.resolve(tt.from, tt.lang, tt.source))
		})
	}
}

func TestInheritanceAndEmbedding(t *testing.T) {
	files := []File{
		{
			Path:     "shop/user.go",
			Language: types.LangGo,
			Symbols: []types.Symbol{
				sym("S1", types.KindStruct, "Base", 3),
				sym("S2", types.KindStruct, "User", 10, types.SymbolEdge{
					Kind: types.EdgeInherit, Target: "Base", AtLine: 10,
					Metadata: map[string]string{"inheritance_type": "embed"},
				}),
			},
		},
		{
			Path:     "src/user.rs",
			Language: types.LangRust,
			Symbols: []types.Symbol{
				sym("S1", types.KindStruct, "Account", 1, edge(types.EdgeImplement, "std::fmt::Display", 8)),
			},
		},
	}
	res := NewAnalyzer(files, Options{}).Analyze()

	out := res.Graph.Outgoing("shop/user.go:10:User")
	require.Len(t, out, 1)
	assert.Equal(t, KindInherits, out[0].Kind)
	assert.Equal(t, "shop/user.go:3:Base", out[0].To)
	assert.Equal(t, "embed", out[0].Metadata["inheritance_type"])

	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, KindImplements, res.Unresolved[0].Kind)
	assert.Equal(t, "std::fmt::Display", res.Unresolved[0].Target)
}

func TestUniqueTypeFallback(t *testing.T) {
	files := []File{
		{Path: "a.py", Language: types.LangPython, Symbols: []types.Symbol{sym("C1", types.KindClass, "Model", 1)}},
		{Path: "b.py", Language: types.LangPython, Symbols: []types.Symbol{sym("C1", types.KindClass, "User", 1, edge(types.EdgeInherit, "db.Model", 1))}},
	}
	res := NewAnalyzer(files, Options{}).Analyze()
	out := res.Graph.Outgoing("b.py:1:User")
	require.Len(t, out, 1)
	assert.Equal(t, "a.py:1:Model", out[0].To)
}

func TestImportCycleAndMetrics(t *testing.T) {
	files := []File{
		{Path: "a/x.py", Language: types.LangPython, Imports: []types.Import{{Source: "b.y"}}, Symbols: []types.Symbol{sym("F1", types.KindFunction, "fx", 1)}},
		{Path: "b/y.py", Language: types.LangPython, Imports: []types.Import{{Source: "a.x"}}, Symbols: []types.Symbol{sym("F1", types.KindFunction, "fy", 1)}},
	}
	res := NewAnalyzer(files, Options{}).Analyze()

	require.Len(t, res.Cycles, 1)
	c := res.Cycles[0]
	assert.Equal(t, []string{"a/x.py", "b/y.py"}, c.Nodes)
	assert.Equal(t, SeverityMedium, c.Severity)
	assert.Equal(t, []Kind{KindImport}, c.Kinds)

	m := res.Metrics
	assert.Equal(t, 2, m.Files)
	assert.Equal(t, 2, m.Symbols)
	assert.Equal(t, 2, m.Relationships)
	assert.InDelta(t, 1.0, m.Coupling, 1e-9)
	assert.InDelta(t, 0.5, m.Cohesion, 1e-9)
	assert.Equal(t, 2, m.ByKind[KindImport])
}

func TestCycleSeverities(t *testing.T) {
	g := NewGraph()
	g.Add(Relationship{From: "A", To: "B", Kind: KindInherits})
	g.Add(Relationship{From: "B", To: "A", Kind: KindImplements})
	g.Add(Relationship{From: "f", To: "f", Kind: KindCall})
	g.Add(Relationship{From: "A", To: "f", Kind: KindCall})

	cycles := DetectCycles(g, 0, 0)
	require.Len(t, cycles, 2)
	assert.Equal(t, SeverityHigh, cycles[0].Severity)
	assert.Equal(t, []Kind{KindImplements, KindInherits}, cycles[0].Kinds)
	assert.Equal(t, []string{"f"}, cycles[1].Nodes)
	assert.Equal(t, SeverityLow, cycles[1].Severity)
}

func TestMixedKindCycles(t *testing.T) {
	g := NewGraph()
	g.Add(Relationship{From: "Child", To: "Base", Kind: KindInherits})
	g.Add(Relationship{From: "Base", To: "Child", Kind: KindCall})
	g.Add(Relationship{From: "x.py", To: "y.py", Kind: KindImport})
	g.Add(Relationship{From: "y.py", To: "x.py", Kind: KindUsesType})

	cycles := DetectCycles(g, 0, 0)
	require.Len(t, cycles, 2)
	assert.Equal(t, []string{"Base", "Child"}, cycles[0].Nodes)
	assert.Equal(t, []Kind{KindCall, KindInherits}, cycles[0].Kinds)
	assert.Equal(t, SeverityHigh, cycles[0].Severity)
	assert.Equal(t, []string{"x.py", "y.py"}, cycles[1].Nodes)
	assert.Equal(t, []Kind{KindImport, KindUsesType}, cycles[1].Kinds)
	assert.Equal(t, SeverityMedium, cycles[1].Severity)
}

func TestSeverityOf(t *testing.T) {
	assert.Equal(t, SeverityLow, severityOf([]Kind{KindCall, KindMemberAccess}))
	assert.Equal(t, SeverityMedium, severityOf([]Kind{KindCall, KindImport}))
	assert.Equal(t, SeverityHigh, severityOf([]Kind{KindImport, KindImplements}))
}

func TestCycleLimit(t *testing.T) {
	g := NewGraph()
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			g.Add(Relationship{From: fmt.Sprint(i), To: fmt.Sprint(j), Kind: KindCall})
		}
	}
	assert.Len(t, DetectCycles(g, 5, 7), 7)
}

// bruteCycles enumerates every elementary cycle up to maxLen by trying
// every sequence of distinct nodes that starts at its smallest node.
func bruteCycles(nodes []string, adj map[[2]string]bool, maxLen int) map[string]bool {
	out := map[string]bool{}
	var extend func(path []string, used map[string]bool)
	extend = func(path []string, used map[string]bool) {
		last := path[len(path)-1]
		if adj[[2]string{last, path[0]}] {
			out[strings.Join(path, ">")] = true
		}
		if len(path) == maxLen {
			return
		}
		for _, n := range nodes {
			if used[n] || n <= path[0] || !adj[[2]string{last, n}] {
				continue
			}
			used[n] = true
			extend(append(append([]string(nil), path...), n), used)
			delete(used, n)
		}
	}
	for _, n := range nodes {
		extend([]string{n}, map[string]bool{n: true})
	}
	return out
}

func TestCyclesMatchBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 40; round++ {
		n := 3 + rng.Intn(5)
		maxLen := 2 + rng.Intn(5)
		nodes := make([]string, n)
		for i := range nodes {
			nodes[i] = fmt.Sprintf("n%d", i)
		}
		g := NewGraph()
		adj := map[[2]string]bool{}
		for _, a := range nodes {
			for _, b := range nodes {
				if rng.Float64() < 0.3 {
					g.Add(Relationship{From: a, To: b, Kind: KindCall})
					adj[[2]string{a, b}] = true
				}
			}
		}

		got := map[string]bool{}
		for _, c := range DetectCycles(g, maxLen, 1<<20) {
			for i := range c.Nodes {
				require.True(t, adj[[2]string{c.Nodes[i], c.Nodes[(i+1)%len(c.Nodes)]}], "reported cycle %v is not in the graph", c.Nodes)
			}
			key := strings.Join(c.Nodes, ">")
			require.False(t, got[key], "cycle %s reported twice", key)
			got[key] = true
		}

		want := bruteCycles(nodes, adj, maxLen)
		gotKeys, wantKeys := keys(got), keys(want)
		assert.Equal(t, wantKeys, gotKeys, "round %d", round)
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestFromHeader(t *testing.T) {
	h := &types.AnchorHeader{FileID: "src/a.go@12345678", Language: types.LangGo, Symbols: []types.Symbol{sym("F1", types.KindFunction, "A", 1)}}
	f := FromHeader(h)
	assert.Equal(t, "src/a.go", f.Path)
	assert.Len(t, f.Symbols, 1)
}

func TestSplitLast(t *testing.T) {
	tests := []struct{ in, head, last string }{
		{"a.b.c", "a.b", "c"},
		{"std::fmt::Display", "std::fmt", "Display"},
		{"./repo/Repo", "./repo", "Repo"},
		{"plain", "", "plain"},
	}
	for _, tt := range tests {
		head, last := splitLast(tt.in)
		assert.Equal(t, tt.head, head, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
	assert.Equal(t, "a", firstSegment("a::b.c"))
}
