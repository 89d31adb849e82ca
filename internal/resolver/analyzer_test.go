package resolver

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/anchor"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/querypack"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

func newAnalyzer(t *testing.T, opts Options) *Analyzer {
	t.Helper()
	m, err := querypack.NewManager(querypack.EmbeddedProvider{}, 64)
	require.NoError(t, err)
	a := New(m, opts)
	t.Cleanup(a.Close)
	return a
}

func defaultOptions() Options {
	return Options{Track: config.Tracking{Calls: true, MemberAccess: true}}
}

func symbolNamed(t *testing.T, fa *types.FileAnalysis, name string, kind types.SymbolKind) *types.Symbol {
	t.Helper()
	for i := range fa.Symbols {
		if fa.Symbols[i].Name == name && fa.Symbols[i].Kind == kind {
			return &fa.Symbols[i]
		}
	}
	t.Fatalf("no %s named %s in %v", kind, name, fa.Symbols)
	return nil
}

func hasEdge(s *types.Symbol, kind types.EdgeKind, target string) bool {
	for _, e := range s.Edges {
		if e.Kind == kind && e.Target == target {
			return true
		}
	}
	return false
}

func hasRef(s *types.Symbol, kind types.ReferenceKind, target string) bool {
	for _, r := range s.References {
		if r.Kind == kind && r.Target == target {
			return true
		}
	}
	return false
}

func effects(s *types.Symbol) []string {
	if s.Guard == nil {
		return nil
	}
	return s.Guard.IOEffects
}

const goSource = `package shop

import (
	"fmt"
	"os"
)

const MaxUsers = 10

type Base struct {
	ID int
}

type User struct {
	Base
	Name string
}

func (u *User) Greet() string {
	fmt.Println("hi", u.Name)
	return u.Name
}

func NewUser(name string) *User {
	if name == "" {
		panic("empty name")
	}
	u := &User{Name: name}
	u.Greet()
	return u
}

func save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}
`

func TestAnalyzeGo(t *testing.T) {
	a := newAnalyzer(t, defaultOptions())
	fa, err := a.Analyze("shop/user.go", []byte(goSource))
	require.NoError(t, err)

	assert.Equal(t, types.LangGo, fa.Language)
	assert.Equal(t, anchor.FileFingerprint([]byte(goSource)), fa.Fingerprint)
	assert.Len(t, fa.Imports, 2)
	assert.Empty(t, fa.Warnings)

	user := symbolNamed(t, fa, "User", types.KindStruct)
	assert.Equal(t, 14, user.Range.LineStart)
	assert.Equal(t, 17, user.Range.LineEnd)
	require.True(t, hasEdge(user, types.EdgeInherit, "Base"))
	for _, e := range user.Edges {
		if e.Kind == types.EdgeInherit {
			assert.Equal(t, "embed", e.Metadata["inheritance_type"])
		}
	}

	name := symbolNamed(t, fa, "Name", types.KindField)
	assert.Equal(t, user.ID, name.Owner)
	assert.Equal(t, "User.Name", name.Qualified)
	last := name.Frames[len(name.Frames)-1]
	assert.Equal(t, types.FrameStruct, last.Kind)
	assert.Equal(t, "User", last.Name)

	greet := symbolNamed(t, fa, "Greet", types.KindMethod)
	assert.Equal(t, user.ID, greet.Owner)
	assert.Equal(t, "User.Greet", greet.Qualified)
	assert.True(t, strings.HasPrefix(greet.ID, "M"))
	assert.Contains(t, greet.Roles, types.RoleExported)
	assert.True(t, hasEdge(greet, types.EdgeCall, "fmt.Println"))
	assert.True(t, hasRef(greet, types.RefMember, "u.Name"))
	assert.Contains(t, effects(greet), types.EffectConsole)
	assert.Len(t, greet.Fingerprint, 8)

	newUser := symbolNamed(t, fa, "NewUser", types.KindFunction)
	require.NotNil(t, newUser.Guard)
	assert.Contains(t, newUser.Guard.Invariants, `panic("empty name")`)
	assert.True(t, hasRef(newUser, types.RefWrite, "u"))
	assert.True(t, hasRef(newUser, types.RefType, "User"))

	save := symbolNamed(t, fa, "save", types.KindFunction)
	assert.Contains(t, effects(save), types.EffectFile)
	assert.Contains(t, save.Roles, types.RoleErrorHandling)
	assert.NotContains(t, save.Roles, types.RolePublic)

	symbolNamed(t, fa, "MaxUsers", types.KindConstant)
	assert.Contains(t, fa.Unresolved, "panic")
	assert.NotContains(t, fa.Unresolved, "fmt.Println")
}

func TestShortIDsAreUniqueAndOrdered(t *testing.T) {
	a := newAnalyzer(t, defaultOptions())
	fa, err := a.Analyze("shop/user.go", []byte(goSource))
	require.NoError(t, err)

	for i, s := range fa.Symbols {
		assert.Equal(t, s.Kind.IDPrefix()+strconv.Itoa(i+1), s.ID)
		if i > 0 {
			assert.GreaterOrEqual(t, s.Range.ByteStart, fa.Symbols[i-1].Range.ByteStart)
		}
		for j := 1; j < len(s.Frames); j++ {
			assert.GreaterOrEqual(t, s.Frames[j].Kind.Precedence(), s.Frames[j-1].Kind.Precedence())
		}
		assert.LessOrEqual(t, s.Range.LineStart, s.Range.LineEnd)
	}
}

const pythonSource = `import os
from typing import List


class User:
    def __init__(self, name):
        self.name = name

    def greet(self):
        print("hi " + self.name)


class Admin(User):
    def greet(self):
        assert self.name
        return os.path.join("a", self.name)

    def rows(self, db):
        try:
            yield db.execute("select 1")
        except Exception:
            raise


counter = 0
`

func TestAnalyzePython(t *testing.T) {
	a := newAnalyzer(t, defaultOptions())
	fa, err := a.Analyze("app/users.py", []byte(pythonSource))
	require.NoError(t, err)

	user := symbolNamed(t, fa, "User", types.KindClass)
	admin := symbolNamed(t, fa, "Admin", types.KindClass)
	assert.True(t, hasEdge(admin, types.EdgeInherit, "User"))

	var greets []*types.Symbol
	for i := range fa.Symbols {
		if fa.Symbols[i].Name == "greet" {
			greets = append(greets, &fa.Symbols[i])
		}
	}
	require.Len(t, greets, 2)
	assert.Equal(t, user.ID, greets[0].Owner)
	assert.Equal(t, admin.ID, greets[1].Owner)
	assert.Equal(t, "Admin.greet", greets[1].Qualified)
	assert.True(t, hasEdge(greets[1], types.EdgeOverride, "User.greet"))
	assert.False(t, hasEdge(greets[0], types.EdgeOverride, "User.greet"))
	assert.Contains(t, effects(greets[0]), types.EffectConsole)
	assert.True(t, hasRef(greets[1], types.RefCall, "os.path.join"))
	require.NotNil(t, greets[1].Guard)
	assert.Contains(t, greets[1].Guard.Invariants, "assert self.name")

	init := symbolNamed(t, fa, "__init__", types.KindMethod)
	assert.True(t, hasRef(init, types.RefWrite, "self.name"))
	assert.Contains(t, effects(init), types.EffectMutation)

	rows := symbolNamed(t, fa, "rows", types.KindMethod)
	assert.Contains(t, rows.Roles, types.RoleGenerator)
	assert.Contains(t, rows.Roles, types.RoleErrorHandling)
	assert.Contains(t, effects(rows), types.EffectDatabase)

	counter := symbolNamed(t, fa, "counter", types.KindVariable)
	assert.Empty(t, counter.Owner)
	assert.Equal(t, 25, counter.Range.LineStart)
}

const rustSource = `use std::fmt::Display;

pub struct User {
    name: String,
}

impl User {
    pub fn greet(&self) -> String {
        println!("hi");
        self.name.clone()
    }
}

impl Display for User {
    fn fmt(&self, f: &mut std::fmt::Formatter) -> std::fmt::Result {
        write!(f, "{}", self.name)
    }
}
`

func TestAnalyzeRust(t *testing.T) {
	a := newAnalyzer(t, defaultOptions())
	fa, err := a.Analyze("src/user.rs", []byte(rustSource))
	require.NoError(t, err)

	user := symbolNamed(t, fa, "User", types.KindStruct)
	assert.True(t, hasEdge(user, types.EdgeImplement, "std::fmt::Display"))
	assert.Contains(t, user.Roles, types.RolePublic)

	greet := symbolNamed(t, fa, "greet", types.KindMethod)
	assert.Equal(t, user.ID, greet.Owner)
	assert.Equal(t, "User::greet", greet.Qualified)
	assert.Contains(t, effects(greet), types.EffectConsole)

	fmtFn := symbolNamed(t, fa, "fmt", types.KindMethod)
	assert.Equal(t, user.ID, fmtFn.Owner)

	field := symbolNamed(t, fa, "name", types.KindField)
	assert.Equal(t, user.ID, field.Owner)
}

const tsSource = `import { Repo } from "./repo";

export interface Greeter {
  greet(): string;
}

export class UserService implements Greeter {
  constructor(private repo: Repo) {}

  async greet(): Promise<string> {
    const user = await this.repo.find();
    console.log(user);
    return user.name;
  }
}
`

func TestAnalyzeTypeScript(t *testing.T) {
	a := newAnalyzer(t, defaultOptions())
	fa, err := a.Analyze("src/service.ts", []byte(tsSource))
	require.NoError(t, err)

	greeter := symbolNamed(t, fa, "Greeter", types.KindInterface)
	svc := symbolNamed(t, fa, "UserService", types.KindClass)
	assert.Contains(t, svc.Roles, types.RoleExported)
	assert.True(t, hasEdge(svc, types.EdgeImplement, "Greeter"))

	var decl, impl *types.Symbol
	for i := range fa.Symbols {
		s := &fa.Symbols[i]
		if s.Name != "greet" {
			continue
		}
		if s.Owner == greeter.ID {
			decl = s
		} else if s.Owner == svc.ID {
			impl = s
		}
	}
	require.NotNil(t, decl)
	require.NotNil(t, impl)
	assert.Contains(t, decl.Roles, types.RoleDeclaration)
	assert.Contains(t, impl.Roles, types.RoleAsync)
	assert.True(t, hasEdge(impl, types.EdgeOverride, "Greeter.greet"))
	assert.Contains(t, effects(impl), types.EffectConsole)

	ctor := symbolNamed(t, fa, "constructor", types.KindMethod)
	assert.True(t, hasEdge(ctor, types.EdgeUsesType, fa.ImportMap()["Repo"]))

	for _, s := range fa.Symbols {
		assert.NotEqual(t, "user", s.Name, "locals inside methods are not symbols")
	}
}

func TestTrackingToggles(t *testing.T) {
	a := newAnalyzer(t, Options{})
	fa, err := a.Analyze("shop/user.go", []byte(goSource))
	require.NoError(t, err)

	greet := symbolNamed(t, fa, "Greet", types.KindMethod)
	assert.True(t, hasRef(greet, types.RefCall, "fmt.Println"))
	assert.False(t, hasEdge(greet, types.EdgeCall, "fmt.Println"))
	assert.False(t, hasEdge(greet, types.EdgeMemberAccess, "u.Name"))
}

func TestAnalyzeIgnoresEmbeddedAnchors(t *testing.T) {
	a := newAnalyzer(t, defaultOptions())
	plain, err := a.Analyze("shop/user.go", []byte(goSource))
	require.NoError(t, err)

	h := anchor.Build(plain, anchor.BuildOptions{})
	payload, err := anchor.Encode(h)
	require.NoError(t, err)
	content := anchor.Embed([]byte(goSource), anchor.FormatHeaderComments(payload, "go", anchor.DefaultChunkSize))
	content = anchor.ApplyInline(content, anchor.InlineAnchors(h), "go")

	again, err := a.Analyze("shop/user.go", content)
	require.NoError(t, err)
	assert.Equal(t, plain.Fingerprint, again.Fingerprint)
	assert.Equal(t, plain.Symbols, again.Symbols)
	assert.Equal(t, anchor.Valid, anchor.Validate(h, content).Status)
}

func TestAnalyzeDeterministic(t *testing.T) {
	a := newAnalyzer(t, defaultOptions())
	first, err := a.Analyze("app/users.py", []byte(pythonSource))
	require.NoError(t, err)
	second, err := a.Analyze("app/users.py", []byte(pythonSource))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLineBudget(t *testing.T) {
	a := newAnalyzer(t, Options{LineBudget: 12})
	fa, err := a.Analyze("app/users.py", []byte(pythonSource))
	require.NoError(t, err)

	assert.True(t, fa.Truncated)
	assert.Equal(t, 25, fa.Lines)
	for _, s := range fa.Symbols {
		assert.NotEqual(t, "Admin", s.Name)
		assert.LessOrEqual(t, s.Range.LineEnd, 12)
	}
	symbolNamed(t, fa, "User", types.KindClass)
}

func TestUnsupportedLanguage(t *testing.T) {
	a := newAnalyzer(t, defaultOptions())
	_, err := a.Analyze("README.md", []byte("# hi\n"))
	assert.True(t, errors.Is(err, amerrors.ErrUnsupportedLanguage))
}

func TestSyntaxErrorsBecomeWarnings(t *testing.T) {
	a := newAnalyzer(t, defaultOptions())
	fa, err := a.Analyze("bad.py", []byte("def ok():\n    return 1\n\ndef broken(:\n    pass\n"))
	require.NoError(t, err)
	assert.NotEmpty(t, fa.Warnings)
}

func TestLongInvariantKeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("a", 60) + strings.Repeat("é", 20)
	src := "def check(x):\n    assert x, \"" + msg + "\"\n"

	a := newAnalyzer(t, defaultOptions())
	fa, err := a.Analyze("app/check.py", []byte(src))
	require.NoError(t, err)
	check := symbolNamed(t, fa, "check", types.KindFunction)
	require.NotNil(t, check.Guard)
	require.Len(t, check.Guard.Invariants, 1)
	inv := check.Guard.Invariants[0]
	assert.True(t, utf8.ValidString(inv), inv)
	assert.LessOrEqual(t, len(inv), maxInvariantLen)
	assert.True(t, strings.HasSuffix(inv, "é"), inv)

	payload, err := anchor.Encode(anchor.Build(fa, anchor.BuildOptions{}))
	require.NoError(t, err)
	h, err := anchor.Decode(payload)
	require.NoError(t, err)
	decoded := h.SymbolByID(check.ID)
	require.NotNil(t, decoded)
	require.NotNil(t, decoded.Guard)
	assert.Equal(t, check.Guard.Invariants, decoded.Guard.Invariants)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "a", truncate("aé", 2))
	assert.Equal(t, "aé", truncate("aéb", 3))
	assert.Equal(t, "", truncate("é", 1))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, 0, countLines(nil))
	assert.Equal(t, 2, countLines([]byte("a\nb\n")))
	assert.Equal(t, "a\nb\n", string(firstLines([]byte("a\nb\nc\n"), 2)))
	assert.Equal(t, "a", string(firstLines([]byte("a"), 5)))
	assert.Equal(t, "  let x = 1", sourceLine([]byte("fn a() {\n  let x = 1\n}"), 2))

	assert.Equal(t, types.EffectNetwork, effectOf("requests.get"))
	assert.Equal(t, types.EffectDatabase, effectOf("db.QueryRow"))
	assert.Equal(t, "", effectOf("strings.ToLower"))
}
