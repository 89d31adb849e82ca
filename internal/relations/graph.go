// Package relations assembles the cross-file relationship graph from per-file
// analyses: import resolution, symbol binding, cycles and coupling metrics.
package relations

import (
	"sort"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// Kind is the kind of a cross-file relationship
type Kind string

const (
	KindImport       Kind = "import"
	KindInherits     Kind = "inherits"
	KindImplements   Kind = "implements"
	KindCall         Kind = "call"
	KindOverride     Kind = "override"
	KindUsesType     Kind = "uses-type"
	KindMemberAccess Kind = "member-access"
)

// kindOf maps a per-file edge kind onto a relationship kind
func kindOf(k types.EdgeKind) Kind {
	switch k {
	case types.EdgeInherit:
		return KindInherits
	case types.EdgeImplement:
		return KindImplements
	case types.EdgeCall:
		return KindCall
	case types.EdgeOverride:
		return KindOverride
	case types.EdgeUsesType:
		return KindUsesType
	}
	return KindMemberAccess
}

// Relationship is one directed edge between two graph nodes. Nodes are
// symbol ids ("path:line:name") or, for imports, file paths.
type Relationship struct {
	From     string            `json:"from" yaml:"from"`
	To       string            `json:"to" yaml:"to"`
	Kind     Kind              `json:"kind" yaml:"kind"`
	Path     string            `json:"path" yaml:"path"`
	Line     int               `json:"line" yaml:"line"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

type relKey struct {
	from, to string
	kind     Kind
}

// Graph holds forward and reverse adjacency, deduped by (from, to, kind)
type Graph struct {
	forward map[string][]Relationship
	reverse map[string]map[string]bool
	seen    map[relKey]bool
	count   int
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		forward: make(map[string][]Relationship),
		reverse: make(map[string]map[string]bool),
		seen:    make(map[relKey]bool),
	}
}

// Add inserts r and reports whether it was new
func (g *Graph) Add(r Relationship) bool {
	k := relKey{r.From, r.To, r.Kind}
	if g.seen[k] {
		return false
	}
	g.seen[k] = true
	g.forward[r.From] = append(g.forward[r.From], r)
	if g.reverse[r.To] == nil {
		g.reverse[r.To] = make(map[string]bool)
	}
	g.reverse[r.To][r.From] = true
	g.count++
	return true
}

// Len returns the number of relationships
func (g *Graph) Len() int { return g.count }

// Outgoing returns the relationships leaving from, in insertion order
func (g *Graph) Outgoing(from string) []Relationship {
	return g.forward[from]
}

// Incoming returns the sorted sources of relationships into to
func (g *Graph) Incoming(to string) []string {
	out := make([]string, 0, len(g.reverse[to]))
	for from := range g.reverse[to] {
		out = append(out, from)
	}
	sort.Strings(out)
	return out
}

// Relationships returns every relationship ordered by (from, to, kind)
func (g *Graph) Relationships() []Relationship {
	out := make([]Relationship, 0, g.count)
	for _, rs := range g.forward {
		out = append(out, rs...)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Kind < b.Kind
	})
	return out
}

// CountByKind returns the number of relationships of each kind
func (g *Graph) CountByKind() map[Kind]int {
	out := make(map[Kind]int)
	for _, rs := range g.forward {
		for _, r := range rs {
			out[r.Kind]++
		}
	}
	return out
}

// Nodes returns every node that appears in a relationship, sorted
func (g *Graph) Nodes() []string {
	set := make(map[string]bool)
	for from, rs := range g.forward {
		set[from] = true
		for _, r := range rs {
			set[r.To] = true
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
