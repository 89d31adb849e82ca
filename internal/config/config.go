package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Profile selects a preset of defaults
type Profile string

const (
	ProfileDefault     Profile = "default"
	ProfileDevelopment Profile = "development"
	ProfileProduction  Profile = "production"
	ProfileTesting     Profile = "testing"
)

// Output modes
const (
	OutputSidecar  = "sidecar"
	OutputEmbedded = "embedded"
	OutputBoth     = "both"
)

// Query providers
const (
	ProviderEmbedded   = "embedded"
	ProviderFilesystem = "filesystem"
)

// Storage sinks
const (
	SinkSidecar  = "sidecar"
	SinkEmbedded = "embedded"
	SinkSQL      = "sql"
	SinkObject   = "object"
)

const (
	DefaultChunkSize        = 8192
	DefaultCacheSize        = 1024
	DefaultDebounceMs       = 200
	DefaultMaxFileSize      = 10 * 1024 * 1024
	DefaultSidecarDir       = ".agentmap"
	DefaultArchitectureFile = "architecture"
	ConfigFileName          = ".agentmap.kdl"
)

type Config struct {
	Version          int
	Profile          Profile
	Project          Project
	Languages        []string
	Include          []string
	Exclude          []string
	RespectGitignore bool
	LineBudget       int
	MinRefs          int
	MinFiles         int
	Track            Tracking
	Output           Output
	Queries          Queries
	Matcher          Matcher
	Performance      Performance
	Storage          Storage
	Architecture     Architecture
}

type Project struct {
	Root string
	Name string
}

// Tracking toggles optional reference extraction
type Tracking struct {
	Calls        bool
	MemberAccess bool
	Generics     bool
}

type Output struct {
	Mode       string // sidecar | embedded | both
	SidecarDir string
	ChunkSize  int
	Inline     bool // also write am: inline anchors next to definitions
}

type Queries struct {
	Provider  string // embedded | filesystem
	Dir       string // root of <lang>/<kind>.scm files for the filesystem provider
	CacheSize int
}

// Weights are the ranking feature weights
type Weights struct {
	Prefix    float64
	CamelCase float64
	SnakeCase float64
	Path      float64
	Length    float64
}

type Matcher struct {
	CaseSensitive    bool
	PatternCacheSize int
	Workers          int
	Weights          Weights
}

type Performance struct {
	Workers          int // 0 = auto-detect (NumCPU-1)
	DebounceMs       int
	MaxFileSizeBytes int64
}

type ObjectStore struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

type Storage struct {
	Sink      string // sidecar | embedded | sql | object
	SQLDriver string // sqlite | pgx
	DSN       string
	Object    ObjectStore
}

type Architecture struct {
	Detail string
	Format string
}

// DefaultWeights returns the standard ranking weights
func DefaultWeights() Weights {
	return Weights{Prefix: 0.3, CamelCase: 0.2, SnakeCase: 0.2, Path: 0.1, Length: 0.1}
}

// Default returns the default configuration rooted at the working directory
func Default() *Config {
	root, _ := os.Getwd()
	if root == "" {
		root = "."
	}
	return &Config{
		Version:          1,
		Profile:          ProfileDefault,
		Project:          Project{Root: root, Name: filepath.Base(root)},
		RespectGitignore: true,
		MinRefs:          1,
		MinFiles:         1,
		Track:            Tracking{Calls: true, MemberAccess: true, Generics: false},
		Output: Output{
			Mode:       OutputSidecar,
			SidecarDir: DefaultSidecarDir,
			ChunkSize:  DefaultChunkSize,
		},
		Queries: Queries{Provider: ProviderEmbedded, CacheSize: DefaultCacheSize},
		Matcher: Matcher{
			PatternCacheSize: DefaultCacheSize,
			Weights:          DefaultWeights(),
		},
		Performance: Performance{
			DebounceMs:       DefaultDebounceMs,
			MaxFileSizeBytes: DefaultMaxFileSize,
		},
		Storage:      Storage{Sink: SinkSidecar, SQLDriver: "sqlite"},
		Architecture: Architecture{Detail: "standard", Format: "json"},
		Exclude:      getDefaultExclusions(),
	}
}

// ApplyProfile overlays the preset for p onto cfg
func ApplyProfile(cfg *Config, p Profile) {
	cfg.Profile = p
	switch p {
	case ProfileDevelopment:
		cfg.Performance.Workers = 2
		cfg.Performance.DebounceMs = 100
		cfg.Track.Generics = true
	case ProfileProduction:
		cfg.Languages = nil
		cfg.Queries.CacheSize = 4 * DefaultCacheSize
		cfg.Matcher.PatternCacheSize = 4 * DefaultCacheSize
		cfg.Performance.DebounceMs = 500
	case ProfileTesting:
		cfg.Performance.Workers = 1
		cfg.Performance.DebounceMs = 20
		cfg.RespectGitignore = false
		cfg.Matcher.Workers = 1
	}
}

// Load builds the configuration for root: defaults, profile, .agentmap.kdl,
// .env and finally AGENTMAP_* environment variables. The result is validated.
func Load(root string) (*Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}

	cfg := Default()
	cfg.Project = Project{Root: absRoot, Name: filepath.Base(absRoot)}

	if err := LoadDotEnv(absRoot); err != nil {
		return nil, err
	}

	// The profile picks the preset the file and env layers override
	if p := os.Getenv(EnvProfile); p != "" {
		ApplyProfile(cfg, Profile(p))
	}

	if err := LoadKDL(absRoot, cfg); err != nil {
		return nil, err
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.Exclude = DeduplicatePatterns(append(cfg.Exclude,
		NewBuildArtifactDetector(absRoot).DetectOutputDirectories()...))

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Workers returns the effective worker count
func (c *Config) Workers() int {
	if c.Performance.Workers > 0 {
		return c.Performance.Workers
	}
	return max(1, runtime.NumCPU()-1)
}

// LanguageEnabled reports whether lang is enabled; an empty list enables all
func (c *Config) LanguageEnabled(lang string) bool {
	if len(c.Languages) == 0 {
		return true
	}
	for _, l := range c.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

func getDefaultExclusions() []string {
	return []string{
		"**/.git/**",
		"**/.agentmap/**",
		"**/node_modules/**",
		"**/vendor/**",
		"**/.venv/**",
		"**/venv/**",
		"**/__pycache__/**",
		"**/dist/**",
		"**/build/**",
		"**/target/**",
		"**/bin/**",
		"**/obj/**",
		"**/*.min.js",
		"**/*.bundle.js",
	}
}
