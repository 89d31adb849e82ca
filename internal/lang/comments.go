package lang

import "strings"

// CommentStyle is the line-comment syntax used to embed anchors
type CommentStyle struct {
	Prefix string
	Suffix string
}

// Wrap turns text into one comment line
func (c CommentStyle) Wrap(text string) string {
	if c.Suffix == "" {
		return c.Prefix + " " + text
	}
	return c.Prefix + " " + text + " " + c.Suffix
}

// Unwrap strips the comment markers from line. ok is false when line is
// not a comment in this style.
func (c CommentStyle) Unwrap(line string) (string, bool) {
	s := strings.TrimSpace(line)
	if !strings.HasPrefix(s, c.Prefix) {
		return "", false
	}
	s = strings.TrimPrefix(s, c.Prefix)
	if c.Suffix != "" {
		if !strings.HasSuffix(s, c.Suffix) {
			return "", false
		}
		s = strings.TrimSuffix(s, c.Suffix)
	}
	return strings.TrimSpace(s), true
}

var (
	slashComment = CommentStyle{Prefix: "//"}
	hashComment  = CommentStyle{Prefix: "#"}
	dashComment  = CommentStyle{Prefix: "--"}
	xmlComment   = CommentStyle{Prefix: "<!--", Suffix: "-->"}
)

// commentStyles covers the parsed languages plus the file types that may
// carry an embedded header without being analyzed.
var commentStyles = map[string]CommentStyle{
	"go": slashComment, "javascript": slashComment, "typescript": slashComment,
	"rust": slashComment, "java": slashComment, "csharp": slashComment,
	"cpp": slashComment, "php": slashComment, "zig": slashComment,
	"kotlin": slashComment, "swift": slashComment, "scala": slashComment,

	"python": hashComment, "shell": hashComment, "bash": hashComment,
	"ruby": hashComment, "yaml": hashComment, "toml": hashComment,
	"perl": hashComment, "r": hashComment,

	"sql": dashComment, "lua": dashComment, "haskell": dashComment,

	"html": xmlComment, "xml": xmlComment, "svg": xmlComment, "markdown": xmlComment,
}

// CommentFor returns the comment style for a language name or alias.
// Unknown names fall back to "//".
func CommentFor(name string) CommentStyle {
	key := strings.ToLower(strings.TrimSpace(name))
	if tag, ok := Normalize(key); ok {
		key = string(tag)
	}
	if c, ok := commentStyles[key]; ok {
		return c
	}
	return slashComment
}
