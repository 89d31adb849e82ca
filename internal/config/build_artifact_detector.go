// Build artifact detection from language-specific manifests.
// Cargo.toml, pyproject.toml, package.json and tsconfig.json are read to
// find generated-output directories that should never be analyzed.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// BuildArtifactDetector finds language-specific build output directories
type BuildArtifactDetector struct {
	projectRoot string
}

// NewBuildArtifactDetector creates a new build artifact detector
func NewBuildArtifactDetector(projectRoot string) *BuildArtifactDetector {
	return &BuildArtifactDetector{projectRoot: projectRoot}
}

// cargoManifest is the subset of Cargo.toml we care about
type cargoManifest struct {
	Build struct {
		TargetDir string `toml:"target-dir"`
	} `toml:"build"`
	Workspace struct {
		Exclude []string `toml:"exclude"`
	} `toml:"workspace"`
}

// pyprojectManifest is the subset of pyproject.toml we care about
type pyprojectManifest struct {
	Tool struct {
		Poetry struct {
			Build struct {
				TargetDir string `toml:"target-dir"`
			} `toml:"build"`
		} `toml:"poetry"`
		Hatch struct {
			Build struct {
				Directory string `toml:"directory"`
			} `toml:"build"`
		} `toml:"hatch"`
	} `toml:"tool"`
}

// DetectOutputDirectories returns glob patterns to exclude (e.g. "**/dist/**")
func (bad *BuildArtifactDetector) DetectOutputDirectories() []string {
	var patterns []string
	patterns = append(patterns, bad.detectRustOutputs()...)
	patterns = append(patterns, bad.detectPythonOutputs()...)
	patterns = append(patterns, bad.detectJavaScriptOutputs()...)
	return patterns
}

func (bad *BuildArtifactDetector) detectRustOutputs() []string {
	data, err := os.ReadFile(filepath.Join(bad.projectRoot, "Cargo.toml"))
	if err != nil {
		return nil
	}
	var cargo cargoManifest
	if toml.Unmarshal(data, &cargo) != nil {
		return nil
	}

	var patterns []string
	if cargo.Build.TargetDir != "" {
		patterns = append(patterns, dirPattern(cargo.Build.TargetDir))
	}
	for _, ex := range cargo.Workspace.Exclude {
		patterns = append(patterns, dirPattern(ex))
	}
	return patterns
}

func (bad *BuildArtifactDetector) detectPythonOutputs() []string {
	data, err := os.ReadFile(filepath.Join(bad.projectRoot, "pyproject.toml"))
	if err != nil {
		return nil
	}
	var py pyprojectManifest
	if toml.Unmarshal(data, &py) != nil {
		return nil
	}

	var patterns []string
	if d := py.Tool.Poetry.Build.TargetDir; d != "" {
		patterns = append(patterns, dirPattern(d))
	}
	if d := py.Tool.Hatch.Build.Directory; d != "" {
		patterns = append(patterns, dirPattern(d))
	}
	return patterns
}

func (bad *BuildArtifactDetector) detectJavaScriptOutputs() []string {
	var patterns []string

	if data, err := os.ReadFile(filepath.Join(bad.projectRoot, "package.json")); err == nil {
		var pkg struct {
			Scripts map[string]string `json:"scripts"`
		}
		if json.Unmarshal(data, &pkg) == nil {
			for _, script := range pkg.Scripts {
				parts := strings.Fields(script)
				for i, part := range parts {
					if (part == "--outDir" || part == "-outDir") && i+1 < len(parts) {
						patterns = append(patterns, dirPattern(strings.Trim(parts[i+1], "\"'")))
					}
				}
			}
		}
	}

	if data, err := os.ReadFile(filepath.Join(bad.projectRoot, "tsconfig.json")); err == nil {
		var ts struct {
			CompilerOptions struct {
				OutDir string `json:"outDir"`
			} `json:"compilerOptions"`
		}
		if json.Unmarshal(data, &ts) == nil && ts.CompilerOptions.OutDir != "" {
			patterns = append(patterns, dirPattern(ts.CompilerOptions.OutDir))
		}
	}
	return patterns
}

func dirPattern(dir string) string {
	dir = strings.TrimSuffix(strings.TrimPrefix(filepath.ToSlash(dir), "./"), "/")
	return "**/" + dir + "/**"
}

// DeduplicatePatterns removes duplicate exclusion patterns
func DeduplicatePatterns(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))

	for _, pattern := range patterns {
		if !seen[pattern] {
			seen[pattern] = true
			result = append(result, pattern)
		}
	}

	return result
}
