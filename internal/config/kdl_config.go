package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
)

// LoadKDL overlays .agentmap.kdl from projectRoot onto cfg. A missing file is not an error.
func LoadKDL(projectRoot string, cfg *Config) error {
	kdlPath := filepath.Join(projectRoot, ConfigFileName)

	content, err := os.ReadFile(kdlPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return amerrors.NewConfigError("file", kdlPath, err)
	}

	if err := parseKDL(string(content), cfg); err != nil {
		return amerrors.NewConfigError("file", kdlPath, err)
	}

	// Relative roots resolve against the directory holding the config file
	if cfg.Project.Root != "" && !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Clean(filepath.Join(projectRoot, cfg.Project.Root))
	}
	return nil
}

func parseKDL(content string, cfg *Config) error {
	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "profile":
			if s, ok := firstStringArg(n); ok {
				ApplyProfile(cfg, Profile(s))
			}
		case "project":
			for _, cn := range n.Children { // project { root "." name "foo" }
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "languages":
			cfg.Languages = collectStringArgs(n)
		case "include":
			cfg.Include = collectStringArgs(n)
		case "exclude":
			cfg.Exclude = append(cfg.Exclude, collectStringArgs(n)...)
		case "respect_gitignore":
			if b, ok := firstBoolArg(n); ok {
				cfg.RespectGitignore = b
			}
		case "line_budget":
			if v, ok := firstIntArg(n); ok {
				cfg.LineBudget = v
			}
		case "min_refs":
			if v, ok := firstIntArg(n); ok {
				cfg.MinRefs = v
			}
		case "min_files":
			if v, ok := firstIntArg(n); ok {
				cfg.MinFiles = v
			}
		case "track":
			for _, cn := range n.Children {
				b, ok := firstBoolArg(cn)
				if !ok {
					continue
				}
				switch nodeName(cn) {
				case "calls":
					cfg.Track.Calls = b
				case "member_access":
					cfg.Track.MemberAccess = b
				case "generics":
					cfg.Track.Generics = b
				}
			}
		case "output":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "mode":
					if s, ok := firstStringArg(cn); ok {
						cfg.Output.Mode = s
					}
				case "sidecar_dir":
					if s, ok := firstStringArg(cn); ok {
						cfg.Output.SidecarDir = s
					}
				case "chunk_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Output.ChunkSize = v
					}
				case "inline":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Output.Inline = b
					}
				}
			}
		case "queries":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "provider":
					if s, ok := firstStringArg(cn); ok {
						cfg.Queries.Provider = s
					}
				case "dir":
					if s, ok := firstStringArg(cn); ok {
						cfg.Queries.Dir = s
					}
				case "cache_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Queries.CacheSize = v
					}
				}
			}
		case "matcher":
			parseMatcherNode(n, cfg)
		case "performance":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "workers":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.Workers = v
					}
				case "debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.DebounceMs = v
					}
				case "max_file_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.MaxFileSizeBytes = int64(v)
					}
					if s, ok := firstStringArg(cn); ok {
						if sz, err := parseSize(s); err == nil {
							cfg.Performance.MaxFileSizeBytes = sz
						} else {
							return fmt.Errorf("performance.max_file_size %q: %w", s, err)
						}
					}
				}
			}
		case "storage":
			parseStorageNode(n, cfg)
		case "architecture":
			for _, cn := range n.Children {
				assignSimpleString(cn, "detail", func(v string) { cfg.Architecture.Detail = v })
				assignSimpleString(cn, "format", func(v string) { cfg.Architecture.Format = v })
			}
		default:
			log.Printf("WARNING: unknown node %q in %s ignored", nodeName(n), ConfigFileName)
		}
	}
	return nil
}

func parseMatcherNode(n *document.Node, cfg *Config) {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "case_sensitive":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Matcher.CaseSensitive = b
			}
		case "pattern_cache_size":
			if v, ok := firstIntArg(cn); ok {
				cfg.Matcher.PatternCacheSize = v
			}
		case "workers":
			if v, ok := firstIntArg(cn); ok {
				cfg.Matcher.Workers = v
			}
		case "weights":
			for _, wn := range cn.Children {
				v, ok := firstFloatArg(wn)
				if !ok {
					continue
				}
				switch nodeName(wn) {
				case "prefix":
					cfg.Matcher.Weights.Prefix = v
				case "camel_case":
					cfg.Matcher.Weights.CamelCase = v
				case "snake_case":
					cfg.Matcher.Weights.SnakeCase = v
				case "path":
					cfg.Matcher.Weights.Path = v
				case "length":
					cfg.Matcher.Weights.Length = v
				}
			}
		}
	}
}

func parseStorageNode(n *document.Node, cfg *Config) {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "sink":
			if s, ok := firstStringArg(cn); ok {
				cfg.Storage.Sink = s
			}
		case "driver":
			if s, ok := firstStringArg(cn); ok {
				cfg.Storage.SQLDriver = s
			}
		case "dsn":
			if s, ok := firstStringArg(cn); ok {
				cfg.Storage.DSN = s
			}
		case "object":
			for _, on := range cn.Children {
				assignSimpleString(on, "endpoint", func(v string) { cfg.Storage.Object.Endpoint = v })
				assignSimpleString(on, "bucket", func(v string) { cfg.Storage.Object.Bucket = v })
				assignSimpleString(on, "access_key", func(v string) { cfg.Storage.Object.AccessKey = v })
				assignSimpleString(on, "secret_key", func(v string) { cfg.Storage.Object.SecretKey = v })
				assignSimpleString(on, "region", func(v string) { cfg.Storage.Object.Region = v })
				if nodeName(on) == "use_ssl" {
					if b, ok := firstBoolArg(on); ok {
						cfg.Storage.Object.UseSSL = b
					}
				}
			}
		}
	}
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		log.Printf("WARNING: invalid float value for '%s' in KDL config, expected number but got %T", nodeName(n), n.Arguments[0].Value)
		return 0, false
	}
}

// collectStringArgs reads either inline arguments (include "a" "b") or a
// block of bare string nodes (include { "a"; "b" }).
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	if len(out) == 0 && len(n.Children) > 0 {
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}
