package match

import (
	"path"
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
	"github.com/surgebase/porter2"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
)

// Weights scale the ranking features
type Weights struct {
	Prefix    float64 `json:"prefix"`
	CamelCase float64 `json:"camel_case"`
	SnakeCase float64 `json:"snake_case"`
	Path      float64 `json:"path"`
	Length    float64 `json:"length"`
}

// DefaultWeights returns prefix 0.3, camelCase 0.2, snake_case 0.2, path 0.1
// and length 0.1
func DefaultWeights() Weights {
	return WeightsFrom(config.DefaultWeights())
}

// WeightsFrom converts configured weights
func WeightsFrom(w config.Weights) Weights {
	return Weights{Prefix: w.Prefix, CamelCase: w.CamelCase, SnakeCase: w.SnakeCase, Path: w.Path, Length: w.Length}
}

// Breakdown is the per-result ranking detail. Every field is in [0,1].
type Breakdown struct {
	BaseSimilarity float64 `json:"base_similarity"`
	PrefixBonus    float64 `json:"prefix_bonus"`
	CamelCaseBonus float64 `json:"camel_case_bonus"`
	SnakeCaseBonus float64 `json:"snake_case_bonus"`
	PathProximity  float64 `json:"path_proximity"`
	LengthPenalty  float64 `json:"length_penalty"`
	Final          float64 `json:"final"`
}

// rank scores haystack against needle. base is the match-type similarity.
// Case folding is the caller's job so that token boundaries survive it.
func rank(w Weights, base float64, needle, haystack, file string, fold bool) Breakdown {
	n, h := needle, haystack
	if fold {
		n, h = strings.ToLower(n), strings.ToLower(h)
	}
	b := Breakdown{
		BaseSimilarity: clamp01(base),
		PrefixBonus:    prefixBonus(n, h),
		CamelCaseBonus: tokenShare(camelTokens(needle), camelTokens(haystack)),
		SnakeCaseBonus: tokenShare(snakeTokens(needle), snakeTokens(haystack)),
		PathProximity:  pathProximity(n, file, fold),
		LengthPenalty:  lengthPenalty(n, h),
	}
	b.Final = clamp01(b.BaseSimilarity +
		b.PrefixBonus*w.Prefix +
		b.CamelCaseBonus*w.CamelCase +
		b.SnakeCaseBonus*w.SnakeCase +
		b.PathProximity*w.Path -
		b.LengthPenalty*w.Length)
	return b
}

// fuzzySimilarity is Jaro-Winkler, falling back to normalized Levenshtein
func fuzzySimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	if s, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler); err == nil {
		return clamp01(float64(s))
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	return clamp01(1 - float64(edlib.LevenshteinDistance(a, b))/float64(longest))
}

func prefixBonus(needle, haystack string) float64 {
	if needle == "" || haystack == "" {
		return 0
	}
	if strings.HasPrefix(haystack, needle) {
		return clamp01(float64(len(needle)) / float64(len(haystack)))
	}
	common := 0
	for common < len(needle) && common < len(haystack) && needle[common] == haystack[common] {
		common++
	}
	return clamp01(float64(common)/float64(len(haystack))) / 2
}

func lengthPenalty(needle, haystack string) float64 {
	longest := max(len(needle), len(haystack))
	if longest == 0 {
		return 0
	}
	d := len(needle) - len(haystack)
	if d < 0 {
		d = -d
	}
	return float64(d) / float64(longest)
}

// pathProximity is 1 when the needle occurs in the file name and halves
// with each directory between the file and the segment it occurs in.
func pathProximity(needle, file string, fold bool) float64 {
	if needle == "" || file == "" {
		return 0
	}
	if fold {
		file = strings.ToLower(file)
	}
	segs := strings.Split(strings.Trim(path.Clean(strings.ReplaceAll(file, "\\", "/")), "/"), "/")
	score := 1.0
	for i := len(segs) - 1; i >= 0; i-- {
		if strings.Contains(segs[i], needle) {
			return score
		}
		score /= 2
	}
	return 0
}

// tokenShare is the fraction of needle tokens found among haystack tokens.
// Tokens match when their stems agree or the haystack token extends the
// needle token.
func tokenShare(needle, haystack []string) float64 {
	if len(needle) == 0 || len(haystack) == 0 {
		return 0
	}
	found := 0
	for _, n := range needle {
		for _, h := range haystack {
			if n == h || strings.HasPrefix(h, n) || porter2.Stem(n) == porter2.Stem(h) {
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(needle))
}

// camelTokens splits "parseHTTPRequest" into parse, http, request. Names
// without an inner case change yield no tokens.
func camelTokens(s string) []string {
	var out []string
	camel := false
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) {
		words := splitCamel(part)
		camel = camel || len(words) > 1
		out = append(out, words...)
	}
	if !camel {
		return nil
	}
	return lowerAll(out)
}

// snakeTokens splits on underscores and dashes; names without one yield none
func snakeTokens(s string) []string {
	if !strings.ContainsAny(s, "_-") {
		return nil
	}
	return lowerAll(strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' }))
}

func splitCamel(s string) []string {
	runes := []rune(s)
	var out []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := unicode.IsLower(prev) && unicode.IsUpper(cur) ||
			unicode.IsDigit(prev) != unicode.IsDigit(cur) ||
			// the last capital of an acronym starts the next word
			unicode.IsUpper(prev) && unicode.IsUpper(cur) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if boundary {
			out = append(out, string(runes[start:i]))
			start = i
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func lowerAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s != "" {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
