package arch

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/russross/blackfriday/v2"
)

// cell escapes s for a Markdown table cell
func cell(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}

// markdown renders a as a Markdown report
func markdown(a *ProjectArchitecture) []byte {
	var b bytes.Buffer
	title := a.Metadata.Project
	if title == "" {
		title = "Project"
	}
	fmt.Fprintf(&b, "# %s architecture\n\n", title)
	fmt.Fprintf(&b, "Generated by %s on %s (detail: %s).\n\n",
		a.Metadata.Generator, time.Unix(a.Metadata.GeneratedAt, 0).UTC().Format(time.RFC3339), a.Metadata.Detail)

	b.WriteString("## Languages\n\n| Language | Files |\n|---|---|\n")
	langs := make([]string, 0, len(a.Metadata.Languages))
	for l := range a.Metadata.Languages {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	for _, l := range langs {
		fmt.Fprintf(&b, "| %s | %s |\n", cell(l), humanize.Comma(int64(a.Metadata.Languages[l])))
	}

	if m := a.Metrics; m != nil {
		b.WriteString("\n## Metrics\n\n")
		fmt.Fprintf(&b, "- Files: %s\n- Symbols: %s\n", humanize.Comma(int64(m.Files)), humanize.Comma(int64(m.Symbols)))
		if m.Relationships > 0 || len(a.Relationships) > 0 {
			fmt.Fprintf(&b, "- Relationships: %s\n- Cycles: %d\n- Unresolved: %d\n- Coupling: %s\n- Cohesion: %s\n",
				humanize.Comma(int64(m.Relationships)), m.Cycles, m.Unresolved,
				humanize.FtoaWithDigits(m.Coupling, 2), humanize.FtoaWithDigits(m.Cohesion, 2))
		}
	}

	if len(a.Layers) > 0 {
		b.WriteString("\n## Layers\n\n")
		for _, l := range a.Layers {
			fmt.Fprintf(&b, "### %s\n\n", l.Name)
			for _, f := range l.Files {
				fmt.Fprintf(&b, "- `%s`\n", f)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n## Structure\n\n| Directory | Files |\n|---|---|\n")
	for _, d := range a.Structure.Directories {
		fmt.Fprintf(&b, "| `%s` | %d |\n", cell(d.Path), d.Files)
	}

	if len(a.Patterns) > 0 {
		b.WriteString("\n## Patterns\n\n| Pattern | Symbol | File | Confidence | Evidence |\n|---|---|---|---|---|\n")
		for _, p := range a.Patterns {
			fmt.Fprintf(&b, "| %s | %s | `%s` | %.2f | %s |\n",
				p.Name, cell(p.Symbol), cell(p.File), p.Confidence, cell(strings.Join(p.Evidence, "; ")))
		}
	}

	if len(a.Symbols) > 0 {
		b.WriteString("\n## Symbols\n\n| Name | Kind | File | Lines | Layer |\n|---|---|---|---|---|\n")
		for _, s := range a.Symbols {
			fmt.Fprintf(&b, "| %s | %s | `%s` | %s | %s |\n", cell(s.Name), s.Kind, cell(s.File), s.Lines, s.Layer)
		}
		for _, s := range a.Symbols {
			if s.Snippet == "" {
				continue
			}
			fmt.Fprintf(&b, "\n### %s (`%s`)\n\n```%s\n%s\n```\n", s.Name, s.File, s.Language, s.Snippet)
		}
	}

	if len(a.Relationships) > 0 {
		b.WriteString("\n## Relationships\n\n| From | Kind | To |\n|---|---|---|\n")
		for _, r := range a.Relationships {
			fmt.Fprintf(&b, "| `%s` | %s | `%s` |\n", cell(r.From), r.Kind, cell(r.To))
		}
	}
	if len(a.Cycles) > 0 {
		b.WriteString("\n## Cycles\n\n")
		for _, c := range a.Cycles {
			fmt.Fprintf(&b, "- **%s**: %s\n", c.Severity, strings.Join(c.Nodes, " → "))
		}
	}
	return b.Bytes()
}

var htmlPage = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} architecture</title>
<style>
body { font-family: -apple-system, Helvetica, Arial, sans-serif; max-width: 72rem; margin: 2rem auto; padding: 0 1rem; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: .25rem .5rem; text-align: left; }
code, pre { background: #f5f5f5; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// renderHTML wraps the Markdown report rendered to HTML in a page
func renderHTML(w io.Writer, a *ProjectArchitecture) error {
	// raw HTML inside names or paths is dropped, not rendered
	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.CommonHTMLFlags | blackfriday.SkipHTML,
	})
	body := blackfriday.Run(markdown(a),
		blackfriday.WithExtensions(blackfriday.CommonExtensions),
		blackfriday.WithRenderer(renderer))
	title := a.Metadata.Project
	if title == "" {
		title = "Project"
	}
	return htmlPage.Execute(w, struct {
		Title string
		Body  template.HTML
	}{title, template.HTML(body)})
}
