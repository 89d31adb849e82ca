package scanner

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/anchor"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/cache"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/storage"
)

// CheckStatus classifies one file's stored anchor
type CheckStatus string

const (
	StatusValid    CheckStatus = "valid"
	StatusMissing  CheckStatus = "missing"
	StatusOutdated CheckStatus = "outdated"
	StatusInvalid  CheckStatus = "invalid"
	StatusSkipped  CheckStatus = "skipped"
)

// CheckResult is the verdict for one file
type CheckResult struct {
	Path     string      `json:"path"`
	Status   CheckStatus `json:"status"`
	Expected string      `json:"expected,omitempty"`
	Current  string      `json:"current,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// CheckSummary groups results by status. Lists are sorted by path.
type CheckSummary struct {
	Results  []CheckResult `json:"results"`
	Valid    []string      `json:"valid"`
	Missing  []string      `json:"missing"`
	Outdated []string      `json:"outdated"`
	Invalid  []string      `json:"invalid"`
	Skipped  []string      `json:"skipped"`
	Duration time.Duration `json:"duration_ns"`
}

// HasIssues reports whether any file is missing, outdated or invalid.
// Skipped files are not issues.
func (s *CheckSummary) HasIssues() bool {
	return len(s.Missing)+len(s.Outdated)+len(s.Invalid) > 0
}

func (s *CheckSummary) add(r CheckResult) {
	s.Results = append(s.Results, r)
	switch r.Status {
	case StatusValid:
		s.Valid = append(s.Valid, r.Path)
	case StatusMissing:
		s.Missing = append(s.Missing, r.Path)
	case StatusOutdated:
		s.Outdated = append(s.Outdated, r.Path)
	case StatusInvalid:
		s.Invalid = append(s.Invalid, r.Path)
	case StatusSkipped:
		s.Skipped = append(s.Skipped, r.Path)
	}
}

// Checker validates stored anchors against current file content without
// writing anything
type Checker struct {
	scanner *Scanner
	store   storage.Source
	// content hash + fingerprint of files already found valid
	valid *cache.LRU[uint64, bool]
}

// NewChecker creates a checker reading anchors from store
func NewChecker(s *Scanner, store storage.Source) (*Checker, error) {
	valid, err := cache.NewLRU[uint64, bool](decisionCacheSize)
	if err != nil {
		return nil, err
	}
	return &Checker{scanner: s, store: store, valid: valid}, nil
}

// Check walks paths and classifies every file
func (c *Checker) Check(ctx context.Context, paths []string) (*CheckSummary, error) {
	start := time.Now()
	files, err := c.scanner.walker.Walk(ctx, paths)
	if err != nil {
		return nil, err
	}
	summary := &CheckSummary{}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.add(c.CheckFile(ctx, f))
	}
	summary.Duration = time.Since(start)
	debug.LogScan("checked %d files: %d missing, %d outdated, %d invalid",
		len(files), len(summary.Missing), len(summary.Outdated), len(summary.Invalid))
	return summary, nil
}

// CheckFile classifies one walked file
func (c *Checker) CheckFile(ctx context.Context, f File) CheckResult {
	res := CheckResult{Path: f.Path}
	if _, ok := c.scanner.Supported(f.Path); !ok {
		res.Status = StatusSkipped
		return res
	}
	content, err := os.ReadFile(f.Abs)
	if err != nil {
		res.Status, res.Reason = StatusInvalid, err.Error()
		return res
	}
	if binaryContent(content) {
		res.Status = StatusSkipped
		return res
	}

	h, err := c.store.Get(ctx, f.Path)
	switch {
	case errors.Is(err, amerrors.ErrAnchorNotFound):
		res.Status = StatusMissing
		return res
	case err != nil:
		res.Status, res.Reason = StatusInvalid, err.Error()
		return res
	}
	res.Expected = h.FileFingerprint

	key := xxhash.Sum64(content) ^ xxhash.Sum64String(h.FileFingerprint)
	if ok, _ := c.valid.Get(key); ok {
		res.Status, res.Current = StatusValid, h.FileFingerprint
		return res
	}
	if err := anchor.CheckIntegrity(h); err != nil {
		res.Status, res.Reason = StatusOutdated, err.Error()
		return res
	}
	v := anchor.Validate(h, content)
	res.Current = v.Current
	if v.Status != anchor.Valid {
		res.Status = StatusOutdated
		return res
	}
	c.valid.Add(key, true)
	res.Status = StatusValid
	return res
}
