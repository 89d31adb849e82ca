package anchor

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// BuildOptions tunes header assembly
type BuildOptions struct {
	// MinRefs drops xrefs seen on fewer lines
	MinRefs int
	// LineBudget is recorded in the header config when analysis was truncated
	LineBudget int
	// Now stamps the header; tests pin it for deterministic output
	Now func() time.Time
}

// Build assembles the anchor header of one analyzed file
func Build(fa *types.FileAnalysis, opts BuildOptions) *types.AnchorHeader {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	h := &types.AnchorHeader{
		Version:         types.AnchorVersion,
		FileID:          FileID(fa.Path),
		FileFingerprint: fa.Fingerprint,
		Language:        fa.Language,
		Symbols:         fa.Symbols,
		Imports:         fa.Imports,
		Xrefs:           buildXrefs(fa.Symbols, opts.MinRefs),
		Index:           buildIndex(fa.Symbols),
		Timestamp:       now().Unix(),
	}
	if fa.Truncated {
		h.Config = map[string]string{
			"truncated":   "true",
			"line_budget": strconv.Itoa(opts.LineBudget),
		}
	}
	return h
}

func buildXrefs(symbols []types.Symbol, minRefs int) map[string][]types.Xref {
	type key struct {
		kind   types.ReferenceKind
		id     string
		target string
	}
	lines := map[key][]int{}
	var order []key
	for _, s := range symbols {
		for _, ref := range s.References {
			k := key{kind: ref.Kind, id: s.ID, target: ref.Target}
			if _, ok := lines[k]; !ok {
				order = append(order, k)
			}
			lines[k] = appendUnique(lines[k], ref.AtLine)
		}
	}

	out := map[string][]types.Xref{}
	for _, k := range order {
		l := lines[k]
		if len(l) < minRefs {
			continue
		}
		sort.Ints(l)
		out[string(k.kind)] = append(out[string(k.kind)], types.Xref{ID: k.id, Target: k.target, Lines: l})
	}
	for kind := range out {
		xs := out[kind]
		sort.SliceStable(xs, func(i, j int) bool {
			if xs[i].ID != xs[j].ID {
				return idLess(xs[i].ID, xs[j].ID)
			}
			return xs[i].Target < xs[j].Target
		})
	}
	return out
}

func appendUnique(lines []int, line int) []int {
	for _, l := range lines {
		if l == line {
			return lines
		}
	}
	return append(lines, line)
}

// idLess orders short ids by their numeric part ("C2" before "M10")
func idLess(a, b string) bool {
	na, errA := strconv.Atoi(a[min(1, len(a)):])
	nb, errB := strconv.Atoi(b[min(1, len(b)):])
	if errA != nil || errB != nil || na == nb {
		return a < b
	}
	return na < nb
}

func buildIndex(symbols []types.Symbol) types.AnchorIndex {
	idx := types.AnchorIndex{
		BySymbol: make(map[string][2]int, len(symbols)),
		ByType:   map[string][]int{},
	}
	for _, s := range symbols {
		idx.BySymbol[s.ID] = [2]int{s.Range.LineStart, s.Range.LineEnd}
		idx.ByType[string(s.Kind)] = append(idx.ByType[string(s.Kind)], s.Range.LineStart)
	}
	for k := range idx.ByType {
		sort.Ints(idx.ByType[k])
	}
	return idx
}

// Status is the outcome of validating a header against content
type Status int

const (
	Valid Status = iota
	Stale
)

func (s Status) String() string {
	if s == Valid {
		return "valid"
	}
	return "stale"
}

// Result carries the expected and recomputed fingerprints
type Result struct {
	Status   Status
	Expected string
	Current  string
}

// Validate recomputes the fingerprint of content with its header and
// inline anchors removed and compares it to the header's.
func Validate(h *types.AnchorHeader, content []byte) Result {
	canonical := Canonical(content)
	current := FileFingerprint(canonical)
	res := Result{Status: Stale, Expected: h.FileFingerprint, Current: current}

	want, ok := fingerprintDigest(h.FileFingerprint)
	if !ok {
		return res
	}
	var got string
	trimmed := bytes.TrimRight(canonical, "\n")
	if len(want) == 40 {
		sum := sha1.Sum(trimmed)
		got = hex.EncodeToString(sum[:])
	} else {
		sum := sha256.Sum256(trimmed)
		got = hex.EncodeToString(sum[:])
	}
	if got == want {
		res.Status = Valid
	}
	return res
}

// CheckIntegrity verifies that every id named by the header's xrefs, index
// and owners exists among its symbols, and that every range is ordered.
func CheckIntegrity(h *types.AnchorHeader) error {
	ids := make(map[string]bool, len(h.Symbols))
	for _, s := range h.Symbols {
		ids[s.ID] = true
	}
	for _, s := range h.Symbols {
		if s.Range.LineStart > s.Range.LineEnd {
			return fmt.Errorf("symbol %s has inverted range %s", s.ID, s.Range.Lines())
		}
		if s.Owner != "" && !ids[s.Owner] {
			return fmt.Errorf("symbol %s owner %s not found", s.ID, s.Owner)
		}
	}
	for kind, xs := range h.Xrefs {
		for _, x := range xs {
			if !ids[x.ID] {
				return fmt.Errorf("xref %s names unknown symbol %s", kind, x.ID)
			}
		}
	}
	for id := range h.Index.BySymbol {
		if !ids[id] {
			return fmt.Errorf("index names unknown symbol %s", id)
		}
	}
	return nil
}
