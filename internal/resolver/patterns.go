package resolver

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// signature matches a call target against a known library entry point
type signature struct {
	text   string
	effect string
	match  matchMode
}

type matchMode int

const (
	exact matchMode = iota
	prefix
	suffix
)

func (s signature) matches(target string) bool {
	switch s.match {
	case prefix:
		return strings.HasPrefix(target, s.text)
	case suffix:
		return strings.HasSuffix(target, s.text)
	}
	return target == s.text
}

// effectSignatures lists call targets with a known IO effect. Targets are
// compared after import-alias resolution.
var effectSignatures = []signature{
	// network
	{"net/http.", types.EffectNetwork, prefix},
	{"http.", types.EffectNetwork, prefix},
	{"net.Dial", types.EffectNetwork, prefix},
	{"requests.", types.EffectNetwork, prefix},
	{"urllib.", types.EffectNetwork, prefix},
	{"httpx.", types.EffectNetwork, prefix},
	{"socket.", types.EffectNetwork, prefix},
	{"fetch", types.EffectNetwork, exact},
	{"axios", types.EffectNetwork, prefix},
	{"reqwest::", types.EffectNetwork, prefix},
	{"HttpClient", types.EffectNetwork, prefix},
	{"curl_exec", types.EffectNetwork, exact},

	// file
	{"os.Open", types.EffectFile, prefix},
	{"os.Create", types.EffectFile, exact},
	{"os.ReadFile", types.EffectFile, exact},
	{"os.WriteFile", types.EffectFile, exact},
	{"os.Remove", types.EffectFile, prefix},
	{"os.MkdirAll", types.EffectFile, exact},
	{"io/ioutil.", types.EffectFile, prefix},
	{"ioutil.", types.EffectFile, prefix},
	{"open", types.EffectFile, exact},
	{"shutil.", types.EffectFile, prefix},
	{"fs.", types.EffectFile, prefix},
	{"std::fs::", types.EffectFile, prefix},
	{"fs::", types.EffectFile, prefix},
	{"File::", types.EffectFile, prefix},
	{"Files.", types.EffectFile, prefix},
	{"File.", types.EffectFile, prefix},
	{"fopen", types.EffectFile, exact},
	{"file_get_contents", types.EffectFile, exact},
	{"file_put_contents", types.EffectFile, exact},
	{"std.fs.", types.EffectFile, prefix},

	// database
	{"database/sql.", types.EffectDatabase, prefix},
	{"sql.Open", types.EffectDatabase, exact},
	{".Query", types.EffectDatabase, suffix},
	{".QueryRow", types.EffectDatabase, suffix},
	{".QueryContext", types.EffectDatabase, suffix},
	{".Exec", types.EffectDatabase, suffix},
	{".ExecContext", types.EffectDatabase, suffix},
	{".execute", types.EffectDatabase, suffix},
	{".executemany", types.EffectDatabase, suffix},
	{".cursor", types.EffectDatabase, suffix},
	{"sqlite3.", types.EffectDatabase, prefix},
	{"psycopg2.", types.EffectDatabase, prefix},
	{".executeQuery", types.EffectDatabase, suffix},
	{".executeUpdate", types.EffectDatabase, suffix},
	{".ExecuteReader", types.EffectDatabase, suffix},
	{".ExecuteNonQuery", types.EffectDatabase, suffix},
	{"PDO", types.EffectDatabase, exact},
	{"mysqli_query", types.EffectDatabase, exact},

	// console
	{"fmt.Print", types.EffectConsole, prefix},
	{"fmt.Fprint", types.EffectConsole, prefix},
	{"log.", types.EffectConsole, prefix},
	{"print", types.EffectConsole, exact},
	{"println", types.EffectConsole, exact},
	{"eprintln", types.EffectConsole, exact},
	{"eprint", types.EffectConsole, exact},
	{"console.", types.EffectConsole, prefix},
	{"System.out.", types.EffectConsole, prefix},
	{"System.err.", types.EffectConsole, prefix},
	{"Console.Write", types.EffectConsole, prefix},
	{"printf", types.EffectConsole, exact},
	{"puts", types.EffectConsole, exact},
	{"std::cout", types.EffectConsole, prefix},
	{"std.debug.print", types.EffectConsole, exact},
	{"var_dump", types.EffectConsole, exact},
	{"print_r", types.EffectConsole, exact},
}

// invariantCalls are assertion-style calls recorded as invariants
var invariantCalls = map[string]bool{
	"assert":                 true,
	"assert_eq":              true,
	"assert_ne":              true,
	"debug_assert":           true,
	"panic":                  true,
	"unreachable":            true,
	"invariant":              true,
	"Debug.Assert":           true,
	"Objects.requireNonNull": true,
	"std.debug.assert":       true,
}

var (
	errorHandlingRe = regexp.MustCompile(`\b(try|catch|except|rescue|recover)\b|err\s*!=\s*nil|\?\s*;|\.map_err\(|\bResult<`)
	generatorRe     = regexp.MustCompile(`\byield\b`)
	asyncRe         = regexp.MustCompile(`\b(async|await)\b`)
	invariantRe     = regexp.MustCompile(`^\s*(assert|raise|throw)\b`)
	testNameRe      = regexp.MustCompile(`^(Test[A-Z_0-9]|test_|test[A-Z]|Benchmark[A-Z])`)
)

const maxInvariantLen = 80

// annotate is the pattern pass: roles and guard info for callables,
// derived from keyword signatures in their text and from their references.
func (f *file) annotate() {
	topLevel := make(map[string]bool)
	for _, s := range f.symbols {
		if s.Owner == "" && !s.Kind.IsCallable() {
			topLevel[s.Name] = true
		}
	}

	for i := range f.symbols {
		s := &f.symbols[i]
		if !s.Kind.IsCallable() {
			continue
		}
		body := string(f.src[s.Range.ByteStart:s.Range.ByteEnd])
		if asyncRe.MatchString(body) {
			s.AddRole(types.RoleAsync)
		}
		if errorHandlingRe.MatchString(body) {
			s.AddRole(types.RoleErrorHandling)
		}
		if generatorRe.MatchString(body) {
			s.AddRole(types.RoleGenerator)
		}
		if testNameRe.MatchString(s.Name) {
			s.AddRole(types.RoleTest)
		}

		for _, ref := range s.References {
			switch ref.Kind {
			case types.RefCall:
				if effect := effectOf(ref.Target); effect != "" {
					s.AddEffect(effect)
				}
				if invariantCalls[strings.TrimSuffix(ref.Target, "!")] {
					f.addInvariant(s, ref.AtLine)
				}
			case types.RefWrite:
				if strings.Contains(ref.Target, ".") || topLevel[ref.Target] {
					s.AddEffect(types.EffectMutation)
				}
			}
		}
		for n, line := range strings.Split(body, "\n") {
			if invariantRe.MatchString(line) {
				f.addInvariant(s, s.Range.LineStart+n)
			}
		}
	}
}

func effectOf(target string) string {
	for _, sig := range effectSignatures {
		if sig.matches(target) {
			return sig.effect
		}
	}
	return ""
}

// addInvariant records the trimmed source line once
func (f *file) addInvariant(s *types.Symbol, line int) {
	text := strings.TrimSpace(sourceLine(f.src, line))
	if text == "" {
		return
	}
	text = truncate(text, maxInvariantLen)
	if s.Guard == nil {
		s.Guard = &types.GuardInfo{}
	}
	for _, have := range s.Guard.Invariants {
		if have == text {
			return
		}
	}
	s.Guard.Invariants = append(s.Guard.Invariants, text)
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func sourceLine(src []byte, line int) string {
	for i := 1; i < line; i++ {
		j := bytes.IndexByte(src, '\n')
		if j < 0 {
			return ""
		}
		src = src[j+1:]
	}
	if j := bytes.IndexByte(src, '\n'); j >= 0 {
		src = src[:j]
	}
	return string(src)
}
