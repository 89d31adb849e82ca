// Package cst is the minimal concrete-syntax-tree surface the analyzer
// depends on. The tree-sitter adapter in this package is the only
// implementation; tests may supply their own.
package cst

// Point is a zero-based row/column position
type Point struct {
	Row    int
	Column int
}

// Node is one CST node. Methods returning Node return nil (untyped) when
// the child does not exist.
type Node interface {
	Kind() string
	ChildCount() int
	Child(i int) Node
	ChildByFieldName(name string) Node
	Children() []Node
	NamedChildren() []Node
	Parent() Node
	StartPosition() Point
	EndPosition() Point
	StartByte() int
	EndByte() int
	Utf8Text(src []byte) string
	IsNamed() bool
	IsError() bool
	ID() uintptr
}

// Tree owns the nodes produced by one parse
type Tree interface {
	RootNode() Node
	Close()
}

// Capture is one named node inside a query match
type Capture struct {
	Name string
	Node Node
}

// Match is one query pattern match
type Match struct {
	Pattern  int
	Captures []Capture
}

// Query is a compiled match program
type Query interface {
	CaptureNames() []string
	// Matches runs the query over the subtree rooted at root
	Matches(root Node, src []byte) []Match
	Close()
}

// Parser is stateful and must not be shared between goroutines
type Parser interface {
	Parse(src []byte) (Tree, error)
	Close()
}

// Grammar produces parsers and compiled queries for one language.
// A Grammar is safe for concurrent use.
type Grammar interface {
	Name() string
	NewParser() (Parser, error)
	NewQuery(pattern string) (Query, error)
}

// Walk visits n and its descendants in pre-order. enter returns false to
// skip the children of a node; leave runs after the children.
func Walk(n Node, enter func(Node) bool, leave func(Node)) {
	if n == nil {
		return
	}
	if enter(n) {
		count := n.ChildCount()
		for i := 0; i < count; i++ {
			Walk(n.Child(i), enter, leave)
		}
	}
	if leave != nil {
		leave(n)
	}
}

// Text returns the source text of n, or "" for a nil node
func Text(n Node, src []byte) string {
	if n == nil {
		return ""
	}
	return n.Utf8Text(src)
}

// FindChild returns the first direct child of n whose kind is one of kinds
func FindChild(n Node, kinds ...string) Node {
	if n == nil {
		return nil
	}
	count := n.ChildCount()
	for i := 0; i < count; i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		for _, k := range kinds {
			if c.Kind() == k {
				return c
			}
		}
	}
	return nil
}

// FindDescendant returns the first descendant (pre-order) of n whose kind is one of kinds
func FindDescendant(n Node, kinds ...string) Node {
	var found Node
	Walk(n, func(c Node) bool {
		if found != nil {
			return false
		}
		if c != n {
			for _, k := range kinds {
				if c.Kind() == k {
					found = c
					return false
				}
			}
		}
		return true
	}, nil)
	return found
}
