package lang

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		path string
		want types.Language
	}{
		{"main.go", types.LangGo},
		{"pkg/app.TS", types.LangTypeScript},
		{"ui/view.tsx", types.LangTypeScript},
		{"src/lib.rs", types.LangRust},
		{"tool.py", types.LangPython},
		{"web/app.mjs", types.LangJavaScript},
		{"Foo.java", types.LangJava},
		{"Foo.cs", types.LangCSharp},
		{"x.h", types.LangCPP},
		{"index.php", types.LangPHP},
		{"build.zig", types.LangZig},
		{"README.md", types.LangUnsupported},
		{"Makefile", types.LangUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.path))
		})
	}
}

func TestNormalizeAliases(t *testing.T) {
	for alias, want := range map[string]types.Language{
		"ts": types.LangTypeScript, "tsx": types.LangTypeScript, "rs": types.LangRust,
		"golang": types.LangGo, "C#": types.LangCSharp, "c++": types.LangCPP, " python ": types.LangPython,
	} {
		got, ok := Normalize(alias)
		assert.True(t, ok, alias)
		assert.Equal(t, want, got, alias)
	}

	_, ok := Normalize("cobol")
	assert.False(t, ok)
	assert.False(t, IsKnown("cobol"))
	assert.True(t, IsKnown("ts"))
}

func TestNamesSortedAndComplete(t *testing.T) {
	names := Names()
	assert.Len(t, names, len(languages))
	assert.IsIncreasing(t, names)
}

func TestProviderUnsupported(t *testing.T) {
	_, err := Provider("cobol")
	require.Error(t, err)
	assert.True(t, errors.Is(err, amerrors.ErrUnsupportedLanguage))
}

func TestProviderParsesGo(t *testing.T) {
	g, err := Provider(types.LangGo)
	require.NoError(t, err)

	again, err := Provider(types.LangGo)
	require.NoError(t, err)
	assert.Same(t, g, again)

	p, err := g.NewParser()
	require.NoError(t, err)
	defer p.Close()

	tree, err := p.Parse([]byte("package main\n\nfunc main() {}\n"))
	require.NoError(t, err)
	defer tree.Close()
	assert.Equal(t, "source_file", tree.RootNode().Kind())
}

func TestCommentFor(t *testing.T) {
	assert.Equal(t, "//", CommentFor("rust").Prefix)
	assert.Equal(t, "#", CommentFor("py").Prefix)
	assert.Equal(t, "--", CommentFor("sql").Prefix)
	assert.Equal(t, "<!--", CommentFor("html").Prefix)
	assert.Equal(t, "//", CommentFor("unknown").Prefix)

	xml := CommentFor("xml")
	line := xml.Wrap("agentmap:1")
	assert.Equal(t, "<!-- agentmap:1 -->", line)
	text, ok := xml.Unwrap("  " + line)
	require.True(t, ok)
	assert.Equal(t, "agentmap:1", text)

	_, ok = CommentFor("go").Unwrap("package main")
	assert.False(t, ok)
}
