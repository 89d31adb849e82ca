package version

import (
	"crypto/sha256"
	"encoding/hex"
	"runtime/debug"
	"strings"
	"sync"
)

// Set with -ldflags "-X .../internal/version.Commit=..." on release builds.
var (
	Version = "0.3.0"
	Commit  = ""
	Date    = ""
)

// Info is the generator string stamped into anchors and exports
func Info() string {
	return "agentmap/" + Version
}

// Build describes the running binary
type Build struct {
	Version   string
	Commit    string
	Dirty     bool
	Date      string
	GoVersion string
}

var (
	current     Build
	currentOnce sync.Once
)

// Current reads the build once. Values missing from ldflags fall back to
// the VCS stamp the go tool embeds.
func Current() Build {
	currentOnce.Do(func() {
		current = readBuild(debug.ReadBuildInfo())
	})
	return current
}

func readBuild(info *debug.BuildInfo, ok bool) Build {
	b := Build{Version: Version, Commit: Commit, Date: Date}
	if !ok {
		return b
	}
	b.GoVersion = info.GoVersion
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.Date == "" {
				b.Date = s.Value
			}
		case "vcs.modified":
			b.Dirty = s.Value == "true"
		}
	}
	return b
}

// String renders the build for --version
func (b Build) String() string {
	var sb strings.Builder
	sb.WriteString(b.Version)
	if b.Commit != "" {
		commit := b.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		sb.WriteString(" (" + commit)
		if b.Dirty {
			sb.WriteString("+dirty")
		}
		sb.WriteString(")")
	}
	if b.Date != "" {
		sb.WriteString(" " + b.Date)
	}
	if b.GoVersion != "" {
		sb.WriteString(" " + b.GoVersion)
	}
	return sb.String()
}

// AnalyzerID identifies the analyzer that produced a stored anchor. The SQL
// sink keeps it per file row, so rows from another build can be re-scanned.
func (b Build) AnalyzerID() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{b.Version, b.Commit, b.GoVersion}, "\x00")))
	return hex.EncodeToString(sum[:8])
}
