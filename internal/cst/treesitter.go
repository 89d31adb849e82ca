package cst

import (
	"errors"
	"fmt"
	"unsafe"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// tsGrammar adapts a tree-sitter language
type tsGrammar struct {
	name     string
	language *tree_sitter.Language
}

// NewTreeSitterGrammar wraps the pointer returned by a grammar binding's
// Language() function.
func NewTreeSitterGrammar(name string, languagePtr unsafe.Pointer) Grammar {
	return &tsGrammar{name: name, language: tree_sitter.NewLanguage(languagePtr)}
}

func (g *tsGrammar) Name() string { return g.name }

func (g *tsGrammar) NewParser() (Parser, error) {
	parser := tree_sitter.NewParser()
	if err := parser.SetLanguage(g.language); err != nil {
		parser.Close()
		return nil, fmt.Errorf("set language %s: %w", g.name, err)
	}
	return &tsParser{parser: parser, name: g.name}, nil
}

func (g *tsGrammar) NewQuery(pattern string) (Query, error) {
	query, qerr := tree_sitter.NewQuery(g.language, pattern)
	// The binding returns a typed nil *QueryError on success, so check the
	// concrete pointer before it is converted to an error interface.
	if qerr != nil {
		return nil, qerr
	}
	if query == nil {
		return nil, errors.New("query compilation returned no query")
	}
	return &tsQuery{query: query, names: query.CaptureNames()}, nil
}

type tsParser struct {
	parser *tree_sitter.Parser
	name   string
}

func (p *tsParser) Parse(src []byte) (Tree, error) {
	tree := p.parser.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("%s parser produced no tree", p.name)
	}
	return &tsTree{tree: tree}, nil
}

func (p *tsParser) Close() {
	p.parser.Close()
}

type tsTree struct {
	tree *tree_sitter.Tree
}

func (t *tsTree) RootNode() Node {
	return wrap(t.tree.RootNode())
}

func (t *tsTree) Close() {
	t.tree.Close()
}

type tsNode struct {
	n *tree_sitter.Node
}

// wrap keeps absent children as an untyped nil Node
func wrap(n *tree_sitter.Node) Node {
	if n == nil {
		return nil
	}
	return tsNode{n: n}
}

func (n tsNode) Kind() string    { return n.n.Kind() }
func (n tsNode) ChildCount() int { return int(n.n.ChildCount()) }
func (n tsNode) IsNamed() bool   { return n.n.IsNamed() }
func (n tsNode) IsError() bool   { return n.n.IsError() || n.n.IsMissing() }
func (n tsNode) ID() uintptr     { return n.n.Id() }
func (n tsNode) StartByte() int  { return int(n.n.StartByte()) }
func (n tsNode) EndByte() int    { return int(n.n.EndByte()) }
func (n tsNode) Parent() Node    { return wrap(n.n.Parent()) }

func (n tsNode) Child(i int) Node {
	if i < 0 {
		return nil
	}
	return wrap(n.n.Child(uint(i)))
}

func (n tsNode) ChildByFieldName(name string) Node {
	return wrap(n.n.ChildByFieldName(name))
}

func (n tsNode) Children() []Node {
	count := int(n.n.ChildCount())
	out := make([]Node, 0, count)
	for i := 0; i < count; i++ {
		if c := n.n.Child(uint(i)); c != nil {
			out = append(out, tsNode{n: c})
		}
	}
	return out
}

func (n tsNode) NamedChildren() []Node {
	count := int(n.n.ChildCount())
	out := make([]Node, 0, count)
	for i := 0; i < count; i++ {
		if c := n.n.Child(uint(i)); c != nil && c.IsNamed() {
			out = append(out, tsNode{n: c})
		}
	}
	return out
}

func (n tsNode) StartPosition() Point {
	p := n.n.StartPosition()
	return Point{Row: int(p.Row), Column: int(p.Column)}
}

func (n tsNode) EndPosition() Point {
	p := n.n.EndPosition()
	return Point{Row: int(p.Row), Column: int(p.Column)}
}

func (n tsNode) Utf8Text(src []byte) string {
	start, end := int(n.n.StartByte()), int(n.n.EndByte())
	if start < 0 || end > len(src) || start > end {
		return ""
	}
	return string(src[start:end])
}

type tsQuery struct {
	query *tree_sitter.Query
	names []string
}

func (q *tsQuery) CaptureNames() []string { return q.names }

func (q *tsQuery) Matches(root Node, src []byte) []Match {
	rn, ok := root.(tsNode)
	if !ok {
		return nil
	}
	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()

	var out []Match
	matches := qc.Matches(q.query, rn.n, src)
	for {
		m := matches.Next()
		if m == nil {
			break
		}
		match := Match{Pattern: int(m.PatternIndex), Captures: make([]Capture, 0, len(m.Captures))}
		for _, c := range m.Captures {
			node := c.Node
			match.Captures = append(match.Captures, Capture{
				Name: q.names[c.Index],
				Node: tsNode{n: &node},
			})
		}
		out = append(out, match)
	}
	return out
}

func (q *tsQuery) Close() {
	q.query.Close()
}
