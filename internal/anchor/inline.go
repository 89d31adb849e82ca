package anchor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/lang"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// FormatInline renders a as the comment text "am:a=<id>;fg=<fp>;r=<L0-L1>"
// in the comment style of language.
func FormatInline(a types.InlineAnchor, language string) string {
	return lang.CommentFor(language).Wrap(inlineBody(a))
}

func inlineBody(a types.InlineAnchor) string {
	return fmt.Sprintf("am:a=%s;fg=%s;r=%d-%d", a.AnchorID, a.Fingerprint, a.LineStart, a.LineEnd)
}

const inlineSeparator = "  "

var (
	inlineRe = regexp.MustCompile(`am:([a-z]+=[^;\s]+(?:;[a-z]+=[^;\s]+)*)`)
	// trailingInlineRe matches exactly what ApplyInline appends: the
	// separator and one anchor comment at the end of the line
	trailingInlineRe = regexp.MustCompile(inlineSeparator + `(?://|#|--|<!--) am:[a-z]+=[^;\s]+(?:;[a-z]+=[^;\s]+)*(?: -->)?$`)
)

// ParseInline finds an inline anchor anywhere on line
func ParseInline(line string) (types.InlineAnchor, bool) {
	m := inlineRe.FindStringSubmatch(line)
	if m == nil {
		return types.InlineAnchor{}, false
	}
	var a types.InlineAnchor
	for _, pair := range strings.Split(m[1], ";") {
		key, value, _ := strings.Cut(pair, "=")
		switch key {
		case "a":
			a.AnchorID = value
		case "fg":
			a.Fingerprint = value
		case "r":
			start, end, ok := parseRange(value)
			if !ok {
				return types.InlineAnchor{}, false
			}
			a.LineStart, a.LineEnd = start, end
		}
	}
	if a.AnchorID == "" {
		return types.InlineAnchor{}, false
	}
	return a, true
}

// parseRange accepts "10-50" and "L10-L50"
func parseRange(s string) (int, int, bool) {
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, false
	}
	start, err1 := strconv.Atoi(strings.TrimPrefix(a, "L"))
	end, err2 := strconv.Atoi(strings.TrimPrefix(b, "L"))
	if err1 != nil || err2 != nil || start < 0 || end < start {
		return 0, 0, false
	}
	return start, end, true
}

// StripInline removes trailing inline anchor comments from every line
func StripInline(content []byte) []byte {
	if !strings.Contains(string(content), "am:a=") {
		return content
	}
	lines := splitLines(content)
	for i, l := range lines {
		cr := strings.HasSuffix(l, "\r")
		stripped := trailingInlineRe.ReplaceAllString(strings.TrimSuffix(l, "\r"), "")
		if cr {
			stripped += "\r"
		}
		lines[i] = stripped
	}
	return []byte(strings.Join(lines, "\n"))
}

// ApplyInline writes one trailing inline anchor per entry on the entry's
// first line, replacing any anchor already there. The line keeps its own
// trailing whitespace so StripInline restores it byte for byte. Entries
// outside the content are ignored.
func ApplyInline(content []byte, anchors []types.InlineAnchor, language string) []byte {
	lines := splitLines(StripInline(content))
	for _, a := range anchors {
		i := a.LineStart - 1
		if i < 0 || i >= len(lines) {
			continue
		}
		l := strings.TrimSuffix(lines[i], "\r")
		cr := len(l) != len(lines[i])
		l += inlineSeparator + FormatInline(a, language)
		if cr {
			l += "\r"
		}
		lines[i] = l
	}
	return []byte(strings.Join(lines, "\n"))
}

// InlineAnchors derives the inline anchors of every top-level symbol
func InlineAnchors(h *types.AnchorHeader) []types.InlineAnchor {
	var out []types.InlineAnchor
	for _, s := range h.Symbols {
		if s.Owner != "" {
			continue
		}
		out = append(out, types.InlineAnchor{
			AnchorID:    s.ID,
			Fingerprint: s.Fingerprint,
			LineStart:   s.Range.LineStart,
			LineEnd:     s.Range.LineEnd,
		})
	}
	return out
}
