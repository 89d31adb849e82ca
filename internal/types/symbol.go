package types

import (
	"fmt"
	"strconv"
	"strings"
)

// SymbolKind is the declared kind of a definition
type SymbolKind string

const (
	KindClass       SymbolKind = "class"
	KindInterface   SymbolKind = "interface"
	KindTrait       SymbolKind = "trait"
	KindStruct      SymbolKind = "struct"
	KindEnum        SymbolKind = "enum"
	KindFunction    SymbolKind = "function"
	KindMethod      SymbolKind = "method"
	KindConstructor SymbolKind = "constructor"
	KindField       SymbolKind = "field"
	KindProperty    SymbolKind = "property"
	KindVariable    SymbolKind = "variable"
	KindConstant    SymbolKind = "constant"
	KindModule      SymbolKind = "module"
	KindType        SymbolKind = "type"
)

// idPrefixes gives the letter used for short intra-file ids (C1, M2, F3)
var idPrefixes = map[SymbolKind]string{
	KindClass:       "C",
	KindInterface:   "I",
	KindTrait:       "T",
	KindStruct:      "S",
	KindEnum:        "E",
	KindFunction:    "F",
	KindMethod:      "M",
	KindConstructor: "M",
	KindField:       "D",
	KindProperty:    "P",
	KindVariable:    "V",
	KindConstant:    "K",
	KindModule:      "N",
	KindType:        "Y",
}

// IDPrefix returns the short-id letter for the kind
func (k SymbolKind) IDPrefix() string {
	if p, ok := idPrefixes[k]; ok {
		return p
	}
	return "X"
}

// IsClassLike reports whether members may be owned by a symbol of this kind
func (k SymbolKind) IsClassLike() bool {
	switch k {
	case KindClass, KindInterface, KindTrait, KindStruct, KindEnum:
		return true
	}
	return false
}

// IsCallable reports whether the kind has a body that can make calls
func (k SymbolKind) IsCallable() bool {
	switch k {
	case KindFunction, KindMethod, KindConstructor:
		return true
	}
	return false
}

// ParseSymbolKind maps a capture suffix such as "definition.class" onto a kind.
// Unknown names map to KindType so they still produce a symbol.
func ParseSymbolKind(s string) SymbolKind {
	s = strings.TrimPrefix(s, "definition.")
	switch s {
	case "class", "record", "annotation":
		return KindClass
	case "interface":
		return KindInterface
	case "trait":
		return KindTrait
	case "struct", "union":
		return KindStruct
	case "enum":
		return KindEnum
	case "function", "delegate":
		return KindFunction
	case "method":
		return KindMethod
	case "constructor":
		return KindConstructor
	case "field", "event":
		return KindField
	case "property":
		return KindProperty
	case "variable":
		return KindVariable
	case "constant":
		return KindConstant
	case "module", "namespace", "package":
		return KindModule
	}
	return KindType
}

// SymbolID is the global identity of a definition
type SymbolID struct {
	FilePath string
	Line     int
	Name     string
}

func (id SymbolID) String() string {
	return id.FilePath + ":" + strconv.Itoa(id.Line) + ":" + id.Name
}

// SourceRange carries both line (1-indexed, inclusive) and byte (0-indexed,
// end exclusive) coordinates.
type SourceRange struct {
	LineStart int `json:"ls" yaml:"line_start"`
	LineEnd   int `json:"le" yaml:"line_end"`
	ByteStart int `json:"bs" yaml:"byte_start"`
	ByteEnd   int `json:"be" yaml:"byte_end"`
}

// LineCount returns the number of lines covered
func (r SourceRange) LineCount() int {
	return r.LineEnd - r.LineStart + 1
}

// ByteLen returns the number of bytes covered
func (r SourceRange) ByteLen() int {
	return r.ByteEnd - r.ByteStart
}

// Contains reports whether line falls inside the range
func (r SourceRange) Contains(line int) bool {
	return line >= r.LineStart && line <= r.LineEnd
}

// Lines renders the range as "start-end"
func (r SourceRange) Lines() string {
	return fmt.Sprintf("%d-%d", r.LineStart, r.LineEnd)
}

// FrameKind is the kind of a lexical scope frame
type FrameKind string

const (
	FrameFile      FrameKind = "file"
	FrameModule    FrameKind = "module"
	FrameClass     FrameKind = "class"
	FrameInterface FrameKind = "interface"
	FrameTrait     FrameKind = "trait"
	FrameStruct    FrameKind = "struct"
	FrameEnum      FrameKind = "enum"
	FrameFunction  FrameKind = "function"
	FrameMethod    FrameKind = "method"
	FrameLambda    FrameKind = "lambda"
	FrameBlock     FrameKind = "block"
	FrameIf        FrameKind = "if"
	FrameLoop      FrameKind = "loop"
)

// Precedence orders frame kinds from outermost to innermost:
// file < module < class-like < function|method < lambda < block|if|loop.
func (k FrameKind) Precedence() int {
	switch k {
	case FrameFile:
		return 0
	case FrameModule:
		return 1
	case FrameClass, FrameInterface, FrameTrait, FrameStruct, FrameEnum:
		return 2
	case FrameFunction, FrameMethod:
		return 3
	case FrameLambda:
		return 4
	case FrameBlock, FrameIf, FrameLoop:
		return 5
	}
	return -1
}

// Valid reports whether k is a known frame kind
func (k FrameKind) Valid() bool {
	return k.Precedence() >= 0
}

// IsClassLike reports whether the frame is a type body
func (k FrameKind) IsClassLike() bool {
	return k.Precedence() == 2
}

// ParseFrameKind converts a string into a FrameKind
func ParseFrameKind(s string) (FrameKind, bool) {
	k := FrameKind(strings.ToLower(strings.TrimSpace(s)))
	return k, k.Valid()
}

// ScopeFrame is one entry of the enclosing-scope path
type ScopeFrame struct {
	Kind  FrameKind   `json:"k" yaml:"kind"`
	Name  string      `json:"n,omitempty" yaml:"name,omitempty"`
	Range SourceRange `json:"r" yaml:"range"`
}

// ReferenceKind classifies a textual use
type ReferenceKind string

const (
	RefImport ReferenceKind = "import"
	RefType   ReferenceKind = "type"
	RefCall   ReferenceKind = "call"
	RefRead   ReferenceKind = "read"
	RefWrite  ReferenceKind = "write"
	RefMember ReferenceKind = "member"
)

// SymbolReference is a fine-grained textual occurrence inside a symbol
type SymbolReference struct {
	Kind   ReferenceKind `json:"k" yaml:"kind"`
	Target string        `json:"t" yaml:"target"`
	AtLine int           `json:"l" yaml:"at_line"`
}

// EdgeKind classifies a structural relationship
type EdgeKind string

const (
	EdgeCall         EdgeKind = "call"
	EdgeInherit      EdgeKind = "inherit"
	EdgeImplement    EdgeKind = "implement"
	EdgeOverride     EdgeKind = "override"
	EdgeUsesType     EdgeKind = "uses-type"
	EdgeMemberAccess EdgeKind = "member-access"
)

// SymbolEdge is a directed structural edge from the owning symbol
type SymbolEdge struct {
	Kind     EdgeKind          `json:"k" yaml:"kind"`
	Target   string            `json:"t" yaml:"target"`
	AtLine   int               `json:"l" yaml:"at_line"`
	Metadata map[string]string `json:"m,omitempty" yaml:"metadata,omitempty"`
}

// IO effect tags
const (
	EffectNetwork  = "network"
	EffectFile     = "file"
	EffectDatabase = "database"
	EffectConsole  = "console"
	EffectMutation = "mutation"
)

// GuardInfo records side effects and invariants observed in a symbol body
type GuardInfo struct {
	IOEffects  []string `json:"io,omitempty" yaml:"io_effects,omitempty"`
	Invariants []string `json:"inv,omitempty" yaml:"invariants,omitempty"`
}

// Common role tags
const (
	RolePublic        = "public"
	RoleExported      = "exported"
	RoleAsync         = "async"
	RoleStatic        = "static"
	RoleAbstract      = "abstract"
	RoleDeclaration   = "declaration"
	RoleErrorHandling = "error-handling"
	RoleTest          = "test"
	RoleGenerator     = "generator"
)

// Symbol is one declared entity in a file
type Symbol struct {
	ID          string            `json:"id" yaml:"id"`
	Kind        SymbolKind        `json:"k" yaml:"kind"`
	Name        string            `json:"n" yaml:"name"`
	Qualified   string            `json:"q,omitempty" yaml:"qualified,omitempty"`
	Owner       string            `json:"o,omitempty" yaml:"owner,omitempty"`
	Range       SourceRange       `json:"r" yaml:"range"`
	Frames      []ScopeFrame      `json:"fr,omitempty" yaml:"frames,omitempty"`
	Roles       []string          `json:"ro,omitempty" yaml:"roles,omitempty"`
	References  []SymbolReference `json:"refs,omitempty" yaml:"references,omitempty"`
	Edges       []SymbolEdge      `json:"e,omitempty" yaml:"edges,omitempty"`
	Fingerprint string            `json:"fg" yaml:"fingerprint"`
	Guard       *GuardInfo        `json:"g,omitempty" yaml:"guard,omitempty"`
}

// HasRole reports whether the symbol carries role
func (s *Symbol) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AddRole adds role once
func (s *Symbol) AddRole(role string) {
	if !s.HasRole(role) {
		s.Roles = append(s.Roles, role)
	}
}

// AddEffect adds an IO effect once
func (s *Symbol) AddEffect(effect string) {
	if s.Guard == nil {
		s.Guard = &GuardInfo{}
	}
	for _, e := range s.Guard.IOEffects {
		if e == effect {
			return
		}
	}
	s.Guard.IOEffects = append(s.Guard.IOEffects, effect)
}

// GlobalID returns the (path, line, name) identity of the symbol
func (s *Symbol) GlobalID(path string) SymbolID {
	return SymbolID{FilePath: path, Line: s.Range.LineStart, Name: s.Name}
}
