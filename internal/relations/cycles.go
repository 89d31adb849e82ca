package relations

import (
	"sort"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
)

// Severity ranks a dependency cycle
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Cycle is one elementary cycle, rotated to start at its smallest node
type Cycle struct {
	Nodes    []string `json:"nodes" yaml:"nodes"`
	Kinds    []Kind   `json:"kinds" yaml:"kinds"`
	Severity Severity `json:"severity" yaml:"severity"`
}

// severityOf ranks a cycle by the strongest kind among its edges
func severityOf(kinds []Kind) Severity {
	sev := SeverityLow
	for _, k := range kinds {
		switch k {
		case KindInherits, KindImplements:
			return SeverityHigh
		case KindImport:
			sev = SeverityMedium
		}
	}
	return sev
}

const (
	DefaultMaxCycleLength = 8
	DefaultMaxCycles      = 1000
)

// DetectCycles enumerates the elementary cycles of g up to maxLen nodes,
// stopping after limit cycles. One search covers every relationship kind,
// so a cycle may mix kinds; its severity follows the strongest of them.
// Each cycle is reported once.
func DetectCycles(g *Graph, maxLen, limit int) []Cycle {
	if maxLen <= 0 {
		maxLen = DefaultMaxCycleLength
	}
	if limit <= 0 {
		limit = DefaultMaxCycles
	}
	s := &cycleSearch{
		adj:    make(map[string][]string),
		kinds:  make(map[[2]string][]Kind),
		index:  make(map[string]int),
		maxLen: maxLen,
		limit:  limit,
		onPath: make(map[string]bool),
	}
	for _, r := range g.Relationships() {
		e := [2]string{r.From, r.To}
		if len(s.kinds[e]) == 0 {
			s.adj[r.From] = append(s.adj[r.From], r.To)
		}
		s.kinds[e] = append(s.kinds[e], r.Kind)
	}
	var nodes []string
	for n := range s.adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for i, n := range nodes {
		s.index[n] = i
	}

	for _, n := range nodes {
		if len(s.found) >= s.limit {
			debug.Log("RELATIONS", "cycle limit %d reached", limit)
			break
		}
		s.start = n
		s.visit(n)
	}
	return s.found
}

type cycleSearch struct {
	adj    map[string][]string
	kinds  map[[2]string][]Kind
	index  map[string]int
	maxLen int
	limit  int

	start  string
	path   []string
	onPath map[string]bool
	found  []Cycle
}

// visit extends the current path from v. Only nodes ordered after the start
// are entered, so every cycle is found exactly once, rooted at its smallest
// node.
func (s *cycleSearch) visit(v string) {
	s.path = append(s.path, v)
	s.onPath[v] = true
	defer func() {
		s.path = s.path[:len(s.path)-1]
		delete(s.onPath, v)
	}()

	for _, w := range s.adj[v] {
		if len(s.found) >= s.limit {
			return
		}
		if w == s.start {
			s.record()
			continue
		}
		idx, ok := s.index[w]
		if !ok || idx <= s.index[s.start] || s.onPath[w] || len(s.path) >= s.maxLen {
			continue
		}
		s.visit(w)
	}
}

func (s *cycleSearch) record() {
	nodes := append([]string(nil), s.path...)
	seen := make(map[Kind]bool)
	var kinds []Kind
	for i := range nodes {
		e := [2]string{nodes[i], nodes[(i+1)%len(nodes)]}
		for _, k := range s.kinds[e] {
			if !seen[k] {
				seen[k] = true
				kinds = append(kinds, k)
			}
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	s.found = append(s.found, Cycle{Nodes: nodes, Kinds: kinds, Severity: severityOf(kinds)})
}
