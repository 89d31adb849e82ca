// Package arch turns a set of anchors into a project architecture summary
// (structure, symbols, relationships, layers and design patterns) and
// renders it in one of several document and graph formats.
package arch

import (
	"fmt"
	"strings"

	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/relations"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// Detail selects how much of the pipeline runs. Each level includes
// everything below it.
type Detail int

const (
	// DetailMinimal: metadata and file structure
	DetailMinimal Detail = iota
	// DetailBasic adds layers and counts
	DetailBasic
	// DetailStandard adds top-level symbols and patterns
	DetailStandard
	// DetailDetailed adds member symbols, relationships and cycles
	DetailDetailed
	// DetailComplete adds source snippets
	DetailComplete
)

var detailNames = []string{"minimal", "basic", "standard", "detailed", "complete"}

func (d Detail) String() string {
	if d < DetailMinimal || d > DetailComplete {
		return fmt.Sprintf("detail(%d)", int(d))
	}
	return detailNames[d]
}

// ParseDetail resolves a detail name; "" means standard
func ParseDetail(s string) (Detail, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DetailStandard, nil
	}
	for i, name := range detailNames {
		if name == s {
			return Detail(i), nil
		}
	}
	return 0, amerrors.NewConfigError("architecture.detail", s, fmt.Errorf("expected one of %s", strings.Join(detailNames, ", ")))
}

// DetailNames lists the accepted detail names in order
func DetailNames() []string { return append([]string(nil), detailNames...) }

// ProjectArchitecture is the exporter's document
type ProjectArchitecture struct {
	Metadata      Metadata                 `json:"metadata" yaml:"metadata"`
	Structure     Structure                `json:"structure" yaml:"structure"`
	Symbols       []SymbolInfo             `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	Relationships []relations.Relationship `json:"relationships,omitempty" yaml:"relationships,omitempty"`
	Cycles        []relations.Cycle        `json:"cycles,omitempty" yaml:"cycles,omitempty"`
	Metrics       *Metrics                 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Layers        []Layer                  `json:"layers,omitempty" yaml:"layers,omitempty"`
	Patterns      []Pattern                `json:"patterns,omitempty" yaml:"patterns,omitempty"`
}

type Metadata struct {
	Project     string         `json:"project" yaml:"project"`
	Generator   string         `json:"generator" yaml:"generator"`
	GeneratedAt int64          `json:"generated_at" yaml:"generated_at"`
	Detail      string         `json:"detail" yaml:"detail"`
	Files       int            `json:"files" yaml:"files"`
	Languages   map[string]int `json:"languages" yaml:"languages"`
}

type Structure struct {
	Files       []FileInfo      `json:"files" yaml:"files"`
	Directories []DirectoryInfo `json:"directories" yaml:"directories"`
}

type FileInfo struct {
	Path     string         `json:"path" yaml:"path"`
	Language types.Language `json:"language" yaml:"language"`
	Symbols  int            `json:"symbols" yaml:"symbols"`
	Imports  int            `json:"imports" yaml:"imports"`
	Layer    string         `json:"layer,omitempty" yaml:"layer,omitempty"`
}

type DirectoryInfo struct {
	Path  string `json:"path" yaml:"path"`
	Files int    `json:"files" yaml:"files"`
}

// SymbolInfo is one exported symbol. ID is the relationship graph node.
type SymbolInfo struct {
	ID        string           `json:"id" yaml:"id"`
	Name      string           `json:"name" yaml:"name"`
	Qualified string           `json:"qualified,omitempty" yaml:"qualified,omitempty"`
	Kind      types.SymbolKind `json:"kind" yaml:"kind"`
	File      string           `json:"file" yaml:"file"`
	Language  types.Language   `json:"language" yaml:"language"`
	Lines     string           `json:"lines" yaml:"lines"`
	Layer     string           `json:"layer,omitempty" yaml:"layer,omitempty"`
	Roles     []string         `json:"roles,omitempty" yaml:"roles,omitempty"`
	Snippet   string           `json:"snippet,omitempty" yaml:"snippet,omitempty"`
}

type Metrics struct {
	Files         int                    `json:"files" yaml:"files"`
	Symbols       int                    `json:"symbols" yaml:"symbols"`
	ByKind        map[string]int         `json:"by_kind" yaml:"by_kind"`
	Relationships int                    `json:"relationships" yaml:"relationships"`
	ByRelation    map[relations.Kind]int `json:"by_relation,omitempty" yaml:"by_relation,omitempty"`
	Cycles        int                    `json:"cycles" yaml:"cycles"`
	Unresolved    int                    `json:"unresolved" yaml:"unresolved"`
	Coupling      float64                `json:"coupling" yaml:"coupling"`
	Cohesion      float64                `json:"cohesion" yaml:"cohesion"`
}

// Layer groups the files assigned to one architectural layer
type Layer struct {
	Name  string   `json:"name" yaml:"name"`
	Files []string `json:"files" yaml:"files"`
}

// Pattern is one detected design pattern instance
type Pattern struct {
	Name       string   `json:"name" yaml:"name"`
	Symbol     string   `json:"symbol" yaml:"symbol"`
	File       string   `json:"file" yaml:"file"`
	Confidence float64  `json:"confidence" yaml:"confidence"`
	Evidence   []string `json:"evidence" yaml:"evidence"`
}
