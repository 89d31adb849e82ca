package match

import (
	"fmt"
	"strings"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// ScopeKind names one searchable field family
type ScopeKind string

const (
	ScopeNames     ScopeKind = "names"
	ScopeKinds     ScopeKind = "kinds"
	ScopePaths     ScopeKind = "paths"
	ScopeRoles     ScopeKind = "roles"
	ScopeRelations ScopeKind = "relations"
	ScopeFrames    ScopeKind = "frames"
	ScopeAll       ScopeKind = "all"
)

// Scope selects which symbol fields a query is matched against
type Scope struct {
	Names     bool
	Kinds     bool
	Paths     bool
	Roles     bool
	Relations bool
	// Frames matches the names of enclosing frames of these kinds
	Frames []types.FrameKind
}

// ScopeOf builds a scope from field families. ScopeAll expands to names,
// kinds, paths, roles and relations.
func ScopeOf(kinds ...ScopeKind) Scope {
	var s Scope
	for _, k := range kinds {
		switch k {
		case ScopeNames:
			s.Names = true
		case ScopeKinds:
			s.Kinds = true
		case ScopePaths:
			s.Paths = true
		case ScopeRoles:
			s.Roles = true
		case ScopeRelations:
			s.Relations = true
		case ScopeAll:
			s.Names, s.Kinds, s.Paths, s.Roles, s.Relations = true, true, true, true, true
		}
	}
	return s
}

// FramesScope matches enclosing frames of kind
func FramesScope(kind types.FrameKind) Scope {
	return Scope{Frames: []types.FrameKind{kind}}
}

// ParseScope reads a comma separated list such as "names,roles,frames:class"
func ParseScope(spec string) (Scope, error) {
	var s Scope
	for _, part := range strings.Split(spec, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(part, string(ScopeFrames)+":"); ok {
			fk, valid := types.ParseFrameKind(rest)
			if !valid {
				return Scope{}, fmt.Errorf("unknown frame kind %q", rest)
			}
			s.Frames = append(s.Frames, fk)
			continue
		}
		switch k := ScopeKind(part); k {
		case ScopeNames, ScopeKinds, ScopePaths, ScopeRoles, ScopeRelations, ScopeAll:
			s = s.union(ScopeOf(k))
		default:
			return Scope{}, fmt.Errorf("unknown scope %q", part)
		}
	}
	return s, nil
}

// Empty reports whether the scope selects nothing
func (s Scope) Empty() bool {
	return !s.Names && !s.Kinds && !s.Paths && !s.Roles && !s.Relations && len(s.Frames) == 0
}

func (s Scope) union(o Scope) Scope {
	s.Names = s.Names || o.Names
	s.Kinds = s.Kinds || o.Kinds
	s.Paths = s.Paths || o.Paths
	s.Roles = s.Roles || o.Roles
	s.Relations = s.Relations || o.Relations
	s.Frames = append(s.Frames, o.Frames...)
	return s
}

type candidate struct {
	field string
	text  string
}

// haystacks lists the texts of sym the scope selects
func (s Scope) haystacks(path string, sym *types.Symbol) []candidate {
	var out []candidate
	add := func(field, text string) {
		if text != "" {
			out = append(out, candidate{field, text})
		}
	}
	if s.Names {
		add("name", sym.Name)
		if sym.Qualified != sym.Name {
			add("qualified", sym.Qualified)
		}
	}
	if s.Kinds {
		add("kind", string(sym.Kind))
	}
	if s.Paths {
		add("path", path)
	}
	if s.Roles {
		for _, r := range sym.Roles {
			add("role", r)
		}
	}
	if s.Relations {
		for _, e := range sym.Edges {
			add("edge:"+string(e.Kind), e.Target)
		}
		for _, r := range sym.References {
			add("ref:"+string(r.Kind), r.Target)
		}
	}
	for _, fk := range s.Frames {
		for _, f := range sym.Frames {
			if f.Kind == fk {
				add("frame:"+string(fk), f.Name)
			}
		}
	}
	return out
}
