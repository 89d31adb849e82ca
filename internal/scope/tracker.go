// Package scope tracks the stack of lexical frames enclosing the node
// currently being visited during a pre-order CST walk.
package scope

import (
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/cst"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// Classifier maps a CST node kind to the frame it opens
type Classifier func(nodeKind string) (types.FrameKind, bool)

type entry struct {
	frame  types.ScopeFrame
	nodeID uintptr
}

// Tracker holds the frame stack. The bottom frame is always the file frame.
// A Tracker is not safe for concurrent use; create one per walk.
type Tracker struct {
	classify Classifier
	stack    []entry
}

// NewTracker starts a stack containing only the file frame
func NewTracker(classify Classifier, file types.SourceRange) *Tracker {
	return &Tracker{
		classify: classify,
		stack:    []entry{{frame: types.ScopeFrame{Kind: types.FrameFile, Range: file}}},
	}
}

// RangeOf converts a node's positions into a SourceRange
func RangeOf(n cst.Node) types.SourceRange {
	return types.SourceRange{
		LineStart: n.StartPosition().Row + 1,
		LineEnd:   n.EndPosition().Row + 1,
		ByteStart: n.StartByte(),
		ByteEnd:   n.EndByte(),
	}
}

// Kind reports the frame kind node opens, if any. File-level nodes never
// open a second frame.
func (t *Tracker) Kind(node cst.Node) (types.FrameKind, bool) {
	if node == nil || t.classify == nil {
		return "", false
	}
	k, ok := t.classify(node.Kind())
	if !ok || k == types.FrameFile {
		return "", false
	}
	return k, true
}

// Enter pushes a frame for node when its kind opens one and reports
// whether it did.
func (t *Tracker) Enter(node cst.Node, name string) bool {
	k, ok := t.Kind(node)
	if !ok {
		return false
	}
	t.stack = append(t.stack, entry{
		frame:  types.ScopeFrame{Kind: k, Name: name, Range: RangeOf(node)},
		nodeID: node.ID(),
	})
	return true
}

// Exit pops the top frame when it belongs to node and reports whether it did
func (t *Tracker) Exit(node cst.Node) bool {
	if node == nil || len(t.stack) <= 1 {
		return false
	}
	top := t.stack[len(t.stack)-1]
	if top.nodeID != node.ID() {
		return false
	}
	t.stack = t.stack[:len(t.stack)-1]
	return true
}

// Depth returns the number of frames, the file frame included
func (t *Tracker) Depth() int {
	return len(t.stack)
}

// Current returns the innermost frame
func (t *Tracker) Current() types.ScopeFrame {
	return t.stack[len(t.stack)-1].frame
}

// Frames returns the enclosing path from the file frame inward with
// precedence never decreasing. A frame of lower precedence than one above
// it (a class declared inside a function) replaces the frames it is
// nested in, so the path reads as the nearest enclosing structure.
func (t *Tracker) Frames() []types.ScopeFrame {
	out := make([]types.ScopeFrame, 0, len(t.stack))
	for _, e := range t.stack {
		for len(out) > 1 && out[len(out)-1].Kind.Precedence() > e.frame.Kind.Precedence() {
			out = out[:len(out)-1]
		}
		out = append(out, e.frame)
	}
	return out
}

// FramesFor returns Frames extended with node's own frame when node opens
// one. name labels that frame.
func (t *Tracker) FramesFor(node cst.Node, name string) []types.ScopeFrame {
	frames := t.Frames()
	k, ok := t.Kind(node)
	if !ok {
		return frames
	}
	if top := t.stack[len(t.stack)-1]; top.nodeID == node.ID() {
		return frames
	}
	own := types.ScopeFrame{Kind: k, Name: name, Range: RangeOf(node)}
	for len(frames) > 1 && frames[len(frames)-1].Kind.Precedence() > k.Precedence() {
		frames = frames[:len(frames)-1]
	}
	return append(frames, own)
}

// FindEnclosing returns the nearest frame of kind
func (t *Tracker) FindEnclosing(kind types.FrameKind) (types.ScopeFrame, bool) {
	for i := len(t.stack) - 1; i >= 0; i-- {
		if t.stack[i].frame.Kind == kind {
			return t.stack[i].frame, true
		}
	}
	return types.ScopeFrame{}, false
}

// IsIn reports whether any enclosing frame has kind
func (t *Tracker) IsIn(kind types.FrameKind) bool {
	_, ok := t.FindEnclosing(kind)
	return ok
}

// InsideCallable reports whether a function-level frame encloses the
// current position
func (t *Tracker) InsideCallable() bool {
	for i := len(t.stack) - 1; i > 0; i-- {
		switch t.stack[i].frame.Kind {
		case types.FrameFunction, types.FrameMethod, types.FrameLambda:
			return true
		}
	}
	return false
}
