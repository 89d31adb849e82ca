package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/anchor"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

const sidecarExt = ".yaml"

// SidecarDoc is the YAML document written next to the tree. Agentmap is
// the encoded header and the source of truth; the other sections are a
// readable projection of it.
type SidecarDoc struct {
	Version     int               `yaml:"version"`
	Source      string            `yaml:"source"`
	FileID      string            `yaml:"file_id"`
	Language    string            `yaml:"language"`
	SourceHash  string            `yaml:"source_hash"`
	Generator   string            `yaml:"generator,omitempty"`
	Config      map[string]string `yaml:"config,omitempty"`
	Regions     []Region          `yaml:"regions,omitempty"`
	Symbols     []types.Symbol    `yaml:"symbols,omitempty"`
	Imports     []types.Import    `yaml:"imports,omitempty"`
	UsageSlices []UsageSlice      `yaml:"usage_slices,omitempty"`
	CallGraph   []CallEdge        `yaml:"call_graph,omitempty"`
	Agentmap    string            `yaml:"agentmap"`
}

// Region is one top-level definition
type Region struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	Lines       [2]int `yaml:"lines,flow"`
	Fingerprint string `yaml:"fingerprint"`
}

// UsageSlice lists the lines a symbol of the file is referenced from
type UsageSlice struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Lines []int  `yaml:"lines,flow"`
}

// CallEdge is one call made by a symbol
type CallEdge struct {
	Caller string `yaml:"caller"`
	Callee string `yaml:"callee"`
	Line   int    `yaml:"line"`
}

// NewSidecarDoc projects h into its sidecar document
func NewSidecarDoc(h *types.AnchorHeader) (*SidecarDoc, error) {
	payload, err := anchor.Encode(h)
	if err != nil {
		return nil, err
	}
	doc := &SidecarDoc{
		Version:    h.Version,
		Source:     h.Path(),
		FileID:     h.FileID,
		Language:   string(h.Language),
		SourceHash: h.FileFingerprint,
		Generator:  h.Config["generator"],
		Config:     h.Config,
		Symbols:    h.Symbols,
		Imports:    h.Imports,
		Agentmap:   payload,
	}
	for _, s := range h.Symbols {
		if s.Owner == "" {
			doc.Regions = append(doc.Regions, Region{
				ID:          s.ID,
				Name:        s.Name,
				Kind:        string(s.Kind),
				Lines:       [2]int{s.Range.LineStart, s.Range.LineEnd},
				Fingerprint: s.Fingerprint,
			})
		}
		for _, e := range s.Edges {
			if e.Kind == types.EdgeCall {
				doc.CallGraph = append(doc.CallGraph, CallEdge{Caller: s.ID, Callee: e.Target, Line: e.AtLine})
			}
		}
	}
	doc.UsageSlices = usageSlices(h.Symbols)
	return doc, nil
}

// usageSlices collects, per symbol, the lines where another symbol of the
// same file refers to it by name or by a qualified name ending in it.
func usageSlices(symbols []types.Symbol) []UsageSlice {
	var out []UsageSlice
	for _, target := range symbols {
		seen := map[int]bool{}
		var lines []int
		for _, s := range symbols {
			if s.ID == target.ID {
				continue
			}
			for _, r := range s.References {
				if refersTo(r.Target, target.Name) && !seen[r.AtLine] {
					seen[r.AtLine] = true
					lines = append(lines, r.AtLine)
				}
			}
		}
		if len(lines) == 0 {
			continue
		}
		sort.Ints(lines)
		out = append(out, UsageSlice{ID: target.ID, Name: target.Name, Lines: lines})
	}
	return out
}

func refersTo(ref, name string) bool {
	if ref == name {
		return true
	}
	for _, sep := range []string{".", "::", "/", "->", "\\"} {
		if strings.HasSuffix(ref, sep+name) {
			return true
		}
	}
	return false
}

// SidecarSink writes <root>/<dir>/<path>.yaml per source file
type SidecarSink struct {
	root string
	dir  string
}

// NewSidecarSink creates a sidecar sink; an empty dir means
// config.DefaultSidecarDir
func NewSidecarSink(root, dir string) *SidecarSink {
	if dir == "" {
		dir = config.DefaultSidecarDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return &SidecarSink{root: root, dir: dir}
}

func (s *SidecarSink) Name() string { return "sidecar" }

// Dir is the directory sidecars are written under
func (s *SidecarSink) Dir() string { return s.dir }

// PathFor returns the sidecar file of a source path
func (s *SidecarSink) PathFor(path string) string {
	return filepath.Join(s.dir, filepath.FromSlash(path)+sidecarExt)
}

func (s *SidecarSink) PutAnchor(ctx context.Context, fileID string, h *types.AnchorHeader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := NewSidecarDoc(h)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return amerrors.NewCodecError("encode", h.Path(), err)
	}
	target := s.PathFor(PathOf(fileID))
	if err := writeFileAtomic(target, out, 0o644); err != nil {
		return amerrors.NewIoError("write", target, err)
	}
	debug.LogStore("sidecar %s (%d bytes)", target, len(out))
	return nil
}

func (s *SidecarSink) Get(ctx context.Context, path string) (*types.AnchorHeader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target := s.PathFor(path)
	data, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(path)
	}
	if err != nil {
		return nil, amerrors.NewIoError("read", target, err)
	}
	var doc SidecarDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, amerrors.NewCodecError("decode", target, err)
	}
	if doc.Agentmap == "" {
		return nil, amerrors.NewCodecError("decode", target, errors.New("sidecar has no agentmap payload"))
	}
	h, err := anchor.Decode(doc.Agentmap)
	if err != nil {
		return nil, withPath(err, target)
	}
	return h, nil
}

func (s *SidecarSink) Delete(ctx context.Context, fileID string) error {
	target := s.PathFor(PathOf(fileID))
	err := os.Remove(target)
	if errors.Is(err, fs.ErrNotExist) {
		return notFound(PathOf(fileID))
	}
	if err != nil {
		return amerrors.NewIoError("delete", target, err)
	}
	return nil
}

// List walks the sidecar directory. The project name is not part of the
// layout; one directory holds one project.
func (s *SidecarSink) List(ctx context.Context, _ string) ([]string, error) {
	var ids []string
	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || !strings.HasSuffix(p, sidecarExt) {
			return nil
		}
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		ids = append(ids, anchor.FileID(filepath.ToSlash(strings.TrimSuffix(rel, sidecarExt))))
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return nil, amerrors.NewIoError("list", s.dir, err)
	}
	sort.Strings(ids)
	return ids, ctx.Err()
}

// writeFileAtomic writes through a temp file in the target directory
func writeFileAtomic(target string, data []byte, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, target); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
