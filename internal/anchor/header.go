package anchor

import (
	"fmt"
	"strconv"
	"strings"

	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/lang"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// Marker opens every header block
const Marker = "agentmap:1"

const (
	singleTag = "gz64:"
	chunkTag  = "gz64["
	totalTag  = "total-bytes:"
)

// FormatHeaderComments renders payload as comment lines in the style of
// language. Payloads longer than chunkSize are split into indexed chunks.
func FormatHeaderComments(payload, language string, chunkSize int) []string {
	style := lang.CommentFor(language)
	chunks := Chunk(payload, chunkSize)

	lines := make([]string, 0, len(chunks)+2)
	lines = append(lines, style.Wrap(Marker))
	if len(chunks) == 1 {
		lines = append(lines, style.Wrap(singleTag+" "+chunks[0]))
	} else {
		for i, c := range chunks {
			lines = append(lines, style.Wrap(fmt.Sprintf("gz64[%d/%d]: %s", i+1, len(chunks), c)))
		}
	}
	lines = append(lines, style.Wrap(fmt.Sprintf("%s %d sha1:%s", totalTag, len(payload), PayloadHash(payload))))
	return lines
}

// Block locates a header inside content. Start and End are zero-based
// line indexes, both inclusive.
type Block struct {
	Start      int
	End        int
	Payload    string
	TotalBytes int
	Hash       string
}

// commentPrefixes are tried in order when unwrapping a line of unknown style
var commentPrefixes = []string{"<!--", "//", "--", "#"}

// unwrapAny strips whichever comment markers surround line
func unwrapAny(line string) (string, bool) {
	s := strings.TrimSpace(line)
	for _, p := range commentPrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimPrefix(s, p)
			if p == "<!--" {
				s = strings.TrimSuffix(strings.TrimSpace(s), "-->")
			}
			return strings.TrimSpace(s), true
		}
	}
	return "", false
}

// splitLines splits on "\n" keeping any "\r" on each line. Content that
// ends with a newline yields a final empty element.
func splitLines(content []byte) []string {
	return strings.Split(string(content), "\n")
}

// FindHeader locates and reassembles the header block in content. When
// several marker lines exist the first well-formed block wins. It returns
// ErrNoAnchor when there is no marker line.
func FindHeader(content []byte) (*Block, error) {
	lines := splitLines(content)
	var firstErr error
	for i, line := range lines {
		if text, ok := unwrapAny(line); !ok || text != Marker {
			continue
		}
		b, err := parseBlock(lines, i)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, amerrors.ErrNoAnchor
}

// parseBlock reads the header whose marker sits on lines[start]
func parseBlock(lines []string, start int) (*Block, error) {
	b := &Block{Start: start, End: -1}
	chunks := map[int]string{}
	declared := 0
	for i := start + 1; i < len(lines) && b.End < 0; i++ {
		text, ok := unwrapAny(lines[i])
		if !ok {
			break
		}
		switch {
		case strings.HasPrefix(text, singleTag):
			chunks[1] = strings.TrimSpace(strings.TrimPrefix(text, singleTag))
			declared = 1
		case strings.HasPrefix(text, chunkTag):
			idx, total, chunk, err := parseChunkLine(text)
			if err != nil {
				return nil, amerrors.NewCodecError("decode", "", err)
			}
			if declared != 0 && declared != total {
				return nil, amerrors.NewCodecError("decode", "", fmt.Errorf("chunk count changed from %d to %d", declared, total))
			}
			declared = total
			chunks[idx] = chunk
		case strings.HasPrefix(text, totalTag):
			n, hash, err := parseTotalLine(text)
			if err != nil {
				return nil, amerrors.NewCodecError("decode", "", err)
			}
			b.TotalBytes, b.Hash, b.End = n, hash, i
		default:
			return nil, amerrors.NewCodecError("decode", "", fmt.Errorf("unexpected header line %d", i+1))
		}
	}
	if b.End < 0 {
		return nil, amerrors.NewCodecError("decode", "", fmt.Errorf("header at line %d has no %s line", start+1, totalTag))
	}
	if declared == 0 || len(chunks) != declared {
		return nil, amerrors.NewCodecError("decode", "", fmt.Errorf("expected %d chunks, found %d", declared, len(chunks)))
	}

	var sb strings.Builder
	for i := 1; i <= declared; i++ {
		chunk, ok := chunks[i]
		if !ok {
			return nil, amerrors.NewCodecError("decode", "", fmt.Errorf("missing chunk %d of %d", i, declared))
		}
		sb.WriteString(chunk)
	}
	b.Payload = sb.String()

	if len(b.Payload) != b.TotalBytes {
		return nil, amerrors.NewCodecError("decode", "", fmt.Errorf("payload is %d bytes, header says %d", len(b.Payload), b.TotalBytes))
	}
	if PayloadHash(b.Payload) != b.Hash {
		return nil, amerrors.NewCodecError("decode", "", fmt.Errorf("payload hash mismatch"))
	}
	return b, nil
}

// parseChunkLine reads "gz64[i/N]: <chunk>"
func parseChunkLine(text string) (idx, total int, chunk string, err error) {
	spec, rest, ok := strings.Cut(strings.TrimPrefix(text, chunkTag), "]:")
	if !ok {
		return 0, 0, "", fmt.Errorf("malformed chunk line")
	}
	a, b, ok := strings.Cut(spec, "/")
	if !ok {
		return 0, 0, "", fmt.Errorf("malformed chunk index %q", spec)
	}
	if idx, err = strconv.Atoi(a); err != nil {
		return 0, 0, "", fmt.Errorf("chunk index: %w", err)
	}
	if total, err = strconv.Atoi(b); err != nil {
		return 0, 0, "", fmt.Errorf("chunk count: %w", err)
	}
	if idx < 1 || idx > total {
		return 0, 0, "", fmt.Errorf("chunk index %d out of range 1..%d", idx, total)
	}
	return idx, total, strings.TrimSpace(rest), nil
}

// parseTotalLine reads "total-bytes: <n> sha1:<hex>"
func parseTotalLine(text string) (int, string, error) {
	fields := strings.Fields(strings.TrimPrefix(text, totalTag))
	if len(fields) != 2 || !strings.HasPrefix(fields[1], "sha1:") {
		return 0, "", fmt.Errorf("malformed %s line", totalTag)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", fmt.Errorf("total bytes: %w", err)
	}
	return n, strings.TrimPrefix(fields[1], "sha1:"), nil
}

// DecodeContent finds the header in content and decodes it
func DecodeContent(content []byte) (*types.AnchorHeader, error) {
	b, err := FindHeader(content)
	if err != nil {
		return nil, err
	}
	return Decode(b.Payload)
}

// StripHeader removes the header block from content, along with the blank
// separator line written before a block that ends the file. Content
// without a header is returned unchanged.
func StripHeader(content []byte) []byte {
	b, err := FindHeader(content)
	if err != nil {
		return content
	}
	lines := splitLines(content)
	start, end := b.Start, b.End

	atEOF := true
	for _, l := range lines[end+1:] {
		if strings.TrimSpace(l) != "" {
			atEOF = false
			break
		}
	}
	if atEOF && start > 0 && strings.TrimSpace(lines[start-1]) == "" {
		start--
	}

	kept := make([]string, 0, len(lines)-(end-start+1))
	kept = append(kept, lines[:start]...)
	kept = append(kept, lines[end+1:]...)
	return []byte(strings.Join(kept, "\n"))
}

// Canonical is the content the analyzer and the fingerprint see: no
// header block and no inline anchors.
func Canonical(content []byte) []byte {
	return StripInline(StripHeader(content))
}

// Embed replaces any header in content with headerLines, appended after
// one blank line at the end of the file.
func Embed(content []byte, headerLines []string) []byte {
	body := strings.TrimRight(string(StripHeader(content)), "\n")
	var sb strings.Builder
	sb.Grow(len(body) + 2 + len(headerLines)*64)
	if body != "" {
		sb.WriteString(body)
		sb.WriteString("\n\n")
	}
	for _, l := range headerLines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}
