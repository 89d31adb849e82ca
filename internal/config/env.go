package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
)

// Environment variables recognised by agentmap
const (
	EnvProfile            = "AGENTMAP_PROFILE"
	EnvLanguages          = "AGENTMAP_LANGUAGES"
	EnvInclude            = "AGENTMAP_INCLUDE"
	EnvExclude            = "AGENTMAP_EXCLUDE"
	EnvLineBudget         = "AGENTMAP_LINE_BUDGET"
	EnvMinRefs            = "AGENTMAP_MIN_REFS"
	EnvMinFiles           = "AGENTMAP_MIN_FILES"
	EnvTrackCalls         = "AGENTMAP_TRACK_CALLS"
	EnvTrackMemberAccess  = "AGENTMAP_TRACK_MEMBER_ACCESS"
	EnvTrackGenerics      = "AGENTMAP_TRACK_GENERICS"
	EnvStorageSink        = "AGENTMAP_STORAGE_SINK"
	EnvStorageDSN         = "AGENTMAP_STORAGE_DSN"
	EnvObjectAccessKey    = "AGENTMAP_OBJECT_ACCESS_KEY"
	EnvObjectSecretKey    = "AGENTMAP_OBJECT_SECRET_KEY"
	EnvQueryProvider      = "AGENTMAP_QUERY_PROVIDER"
	EnvQueryDir           = "AGENTMAP_QUERY_DIR"
	envListSeparatorChars = ",;"
)

// LoadDotEnv loads <root>/.env without overriding variables already set.
func LoadDotEnv(root string) error {
	path := filepath.Join(root, ".env")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return amerrors.NewConfigError("dotenv", path, err)
	}
	return nil
}

// ApplyEnv overlays AGENTMAP_* variables onto cfg. lookup is usually
// os.LookupEnv; tests pass a map-backed function.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	if v, ok := lookup(EnvProfile); ok && v != "" && Profile(v) != cfg.Profile {
		ApplyProfile(cfg, Profile(v))
	}
	if v, ok := lookup(EnvLanguages); ok {
		cfg.Languages = splitList(v)
	}
	if v, ok := lookup(EnvInclude); ok {
		cfg.Include = splitList(v)
	}
	if v, ok := lookup(EnvExclude); ok {
		cfg.Exclude = append(cfg.Exclude, splitList(v)...)
	}

	intVars := []struct {
		name string
		dst  *int
	}{
		{EnvLineBudget, &cfg.LineBudget},
		{EnvMinRefs, &cfg.MinRefs},
		{EnvMinFiles, &cfg.MinFiles},
	}
	for _, iv := range intVars {
		v, ok := lookup(iv.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, amerrors.NewConfigError(iv.name, v, fmt.Errorf("not an integer: %w", err)))
			continue
		}
		*iv.dst = n
	}

	boolVars := []struct {
		name string
		dst  *bool
	}{
		{EnvTrackCalls, &cfg.Track.Calls},
		{EnvTrackMemberAccess, &cfg.Track.MemberAccess},
		{EnvTrackGenerics, &cfg.Track.Generics},
	}
	for _, bv := range boolVars {
		v, ok := lookup(bv.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		b, err := parseBool(v)
		if err != nil {
			errs = append(errs, amerrors.NewConfigError(bv.name, v, err))
			continue
		}
		*bv.dst = b
	}

	if v, ok := lookup(EnvStorageSink); ok && v != "" {
		cfg.Storage.Sink = v
	}
	if v, ok := lookup(EnvStorageDSN); ok && v != "" {
		cfg.Storage.DSN = v
	}
	if v, ok := lookup(EnvObjectAccessKey); ok && v != "" {
		cfg.Storage.Object.AccessKey = v
	}
	if v, ok := lookup(EnvObjectSecretKey); ok && v != "" {
		cfg.Storage.Object.SecretKey = v
	}
	if v, ok := lookup(EnvQueryProvider); ok && v != "" {
		cfg.Queries.Provider = v
	}
	if v, ok := lookup(EnvQueryDir); ok && v != "" {
		cfg.Queries.Dir = v
	}

	return amerrors.NewMultiError(errs).ErrorOrNil()
}

func splitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return strings.ContainsRune(envListSeparatorChars, r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "on":
		return true, nil
	case "false", "no", "0", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

// parseSize handles size strings like "10MB", "500KB", "1GB"
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	numStr := s
	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		numStr = strings.TrimSuffix(s, "B")
	}

	num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}
