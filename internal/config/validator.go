package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/lang"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

var (
	knownProfiles = []string{string(ProfileDefault), string(ProfileDevelopment), string(ProfileProduction), string(ProfileTesting)}
	knownModes    = []string{OutputSidecar, OutputEmbedded, OutputBoth}
	knownProvider = []string{ProviderEmbedded, ProviderFilesystem}
	knownSinks    = []string{SinkSidecar, SinkEmbedded, SinkSQL, SinkObject}
	knownDrivers  = []string{"sqlite", "pgx"}
	knownDetails  = []string{"minimal", "basic", "standard", "detailed", "complete"}
	knownFormats  = []string{"json", "yaml", "graphml", "dot", "mermaid", "csv", "html", "markdown", "plantuml", "d2", "cypher"}
)

// minChunkSize keeps anchor comment lines from degenerating into one byte each
const minChunkSize = 64

// Validator checks a Config and collects every failure
type Validator struct {
	errs []error
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns nil or a MultiError of ConfigErrors
func (v *Validator) Validate(cfg *Config) error {
	v.errs = nil

	v.oneOf("profile", string(cfg.Profile), knownProfiles)
	if cfg.Project.Root == "" {
		v.fail("project.root", "", errors.New("project root cannot be empty"))
	}

	for _, l := range cfg.Languages {
		if !lang.IsKnown(types.Language(l)) {
			v.fail("languages", l, fmt.Errorf("unknown language (known: %s)", strings.Join(lang.Names(), ", ")))
		}
	}
	for _, p := range cfg.Include {
		if !doublestar.ValidatePattern(p) {
			v.fail("include", p, errors.New("invalid glob pattern"))
		}
	}
	for _, p := range cfg.Exclude {
		if !doublestar.ValidatePattern(p) {
			v.fail("exclude", p, errors.New("invalid glob pattern"))
		}
	}

	v.nonNegative("line_budget", cfg.LineBudget)
	v.nonNegative("min_refs", cfg.MinRefs)
	v.nonNegative("min_files", cfg.MinFiles)
	v.nonNegative("performance.workers", cfg.Performance.Workers)
	v.nonNegative("performance.debounce_ms", cfg.Performance.DebounceMs)
	v.nonNegative("matcher.workers", cfg.Matcher.Workers)
	if cfg.Performance.MaxFileSizeBytes < 0 {
		v.fail("performance.max_file_size", fmt.Sprint(cfg.Performance.MaxFileSizeBytes), errors.New("must be >= 0"))
	}

	v.oneOf("output.mode", cfg.Output.Mode, knownModes)
	if cfg.Output.ChunkSize < minChunkSize {
		v.fail("output.chunk_size", fmt.Sprint(cfg.Output.ChunkSize), fmt.Errorf("must be >= %d", minChunkSize))
	}
	if cfg.Output.SidecarDir == "" {
		v.fail("output.sidecar_dir", "", errors.New("cannot be empty"))
	}

	v.oneOf("queries.provider", cfg.Queries.Provider, knownProvider)
	if cfg.Queries.Provider == ProviderFilesystem && cfg.Queries.Dir == "" {
		v.fail("queries.dir", "", errors.New("filesystem provider needs a directory"))
	}
	v.positive("queries.cache_size", cfg.Queries.CacheSize)
	v.positive("matcher.pattern_cache_size", cfg.Matcher.PatternCacheSize)

	w := cfg.Matcher.Weights
	for name, val := range map[string]float64{"prefix": w.Prefix, "camel_case": w.CamelCase, "snake_case": w.SnakeCase, "path": w.Path, "length": w.Length} {
		if val < 0 || val > 1 {
			v.fail("matcher.weights."+name, fmt.Sprint(val), errors.New("must be within [0,1]"))
		}
	}

	v.oneOf("storage.sink", cfg.Storage.Sink, knownSinks)
	if cfg.Storage.Sink == SinkSQL {
		v.oneOf("storage.driver", cfg.Storage.SQLDriver, knownDrivers)
		if cfg.Storage.DSN == "" {
			v.fail("storage.dsn", "", errors.New("sql sink needs a DSN"))
		}
	}
	if cfg.Storage.Sink == SinkObject {
		if cfg.Storage.Object.Endpoint == "" || cfg.Storage.Object.Bucket == "" {
			v.fail("storage.object", "", errors.New("object sink needs endpoint and bucket"))
		}
	}

	v.oneOf("architecture.detail", cfg.Architecture.Detail, knownDetails)
	v.oneOf("architecture.format", cfg.Architecture.Format, knownFormats)

	return amerrors.NewMultiError(v.errs).ErrorOrNil()
}

func (v *Validator) fail(field, value string, err error) {
	v.errs = append(v.errs, amerrors.NewConfigError(field, value, err))
}

func (v *Validator) oneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if a == value {
			return
		}
	}
	v.fail(field, value, fmt.Errorf("must be one of %s", strings.Join(allowed, ", ")))
}

func (v *Validator) nonNegative(field string, n int) {
	if n < 0 {
		v.fail(field, fmt.Sprint(n), errors.New("must be >= 0"))
	}
}

func (v *Validator) positive(field string, n int) {
	if n < 1 {
		v.fail(field, fmt.Sprint(n), errors.New("must be >= 1"))
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
