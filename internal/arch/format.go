package arch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
)

// Format is an output format of the exporter
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatGraphML  Format = "graphml"
	FormatDOT      Format = "dot"
	FormatMermaid  Format = "mermaid"
	FormatCSV      Format = "csv"
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
	FormatPlantUML Format = "plantuml"
	FormatD2       Format = "d2"
	FormatCypher   Format = "cypher"
)

// Formats lists every supported format
var Formats = []Format{
	FormatJSON, FormatYAML, FormatGraphML, FormatDOT, FormatMermaid, FormatCSV,
	FormatHTML, FormatMarkdown, FormatPlantUML, FormatD2, FormatCypher,
}

var formatAliases = map[string]Format{
	"yml": FormatYAML, "md": FormatMarkdown, "gv": FormatDOT, "graphviz": FormatDOT,
	"mmd": FormatMermaid, "puml": FormatPlantUML, "neo4j": FormatCypher, "htm": FormatHTML,
}

var extensions = map[Format]string{
	FormatJSON: ".json", FormatYAML: ".yaml", FormatGraphML: ".graphml", FormatDOT: ".dot",
	FormatMermaid: ".mmd", FormatCSV: ".csv", FormatHTML: ".html", FormatMarkdown: ".md",
	FormatPlantUML: ".puml", FormatD2: ".d2", FormatCypher: ".cypher",
}

// ParseFormat resolves a format name or alias; "" means JSON
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FormatJSON, nil
	}
	if f, ok := formatAliases[s]; ok {
		return f, nil
	}
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", amerrors.NewConfigError("architecture.format", s, fmt.Errorf("unknown format"))
}

// Extension is the conventional file extension of f
func (f Format) Extension() string { return extensions[f] }

// Render writes a in format f
func Render(w io.Writer, a *ProjectArchitecture, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(a); err != nil {
			return err
		}
		return enc.Close()
	case FormatCSV:
		return renderCSV(w, a)
	case FormatGraphML:
		return renderGraphML(w, newGraphView(a))
	case FormatDOT:
		return renderDOT(w, newGraphView(a))
	case FormatMermaid:
		return renderMermaid(w, newGraphView(a))
	case FormatPlantUML:
		return renderPlantUML(w, newGraphView(a))
	case FormatD2:
		return renderD2(w, newGraphView(a))
	case FormatCypher:
		return renderCypher(w, newGraphView(a))
	case FormatMarkdown:
		_, err := w.Write(markdown(a))
		return err
	case FormatHTML:
		return renderHTML(w, a)
	}
	return amerrors.NewConfigError("architecture.format", string(f), fmt.Errorf("unknown format"))
}

// renderCSV writes one row per file, symbol and relationship
func renderCSV(w io.Writer, a *ProjectArchitecture) error {
	cw := csv.NewWriter(w)
	rows := [][]string{{"record", "id", "name", "kind", "file", "language", "lines", "layer", "target"}}
	for _, f := range a.Structure.Files {
		rows = append(rows, []string{"file", f.Path, f.Path, "file", f.Path, string(f.Language), "", f.Layer, ""})
	}
	for _, s := range a.Symbols {
		rows = append(rows, []string{"symbol", s.ID, s.Name, string(s.Kind), s.File, string(s.Language), s.Lines, s.Layer, ""})
	}
	for _, r := range a.Relationships {
		rows = append(rows, []string{"relationship", r.From, "", string(r.Kind), r.Path, "", strconv.Itoa(r.Line), "", r.To})
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// node and edge are the format-neutral graph used by the diagram formats
type node struct {
	ID    string // safe identifier: n0, n1, ...
	Key   string // file path or symbol node id
	Label string
	Kind  string
	Group string // layer, or the file for symbols
}

type edge struct {
	From, To string
	Kind     string
}

type graphView struct {
	Title string
	Nodes []node
	Edges []edge
	index map[string]string
}

// newGraphView projects a onto nodes and edges. Files are always nodes;
// symbols and relationship endpoints are added when present.
func newGraphView(a *ProjectArchitecture) *graphView {
	g := &graphView{Title: a.Metadata.Project, index: map[string]string{}}
	if g.Title == "" {
		g.Title = "architecture"
	}
	for _, f := range a.Structure.Files {
		g.add(f.Path, f.Path, "file", f.Layer)
	}
	for _, s := range a.Symbols {
		g.add(s.ID, s.Name, string(s.Kind), s.File)
	}
	for _, r := range a.Relationships {
		from := g.add(r.From, lastPart(r.From), "external", "")
		to := g.add(r.To, lastPart(r.To), "external", "")
		g.Edges = append(g.Edges, edge{From: from, To: to, Kind: string(r.Kind)})
	}
	sort.SliceStable(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})
	return g
}

func (g *graphView) add(key, label, kind, group string) string {
	if id, ok := g.index[key]; ok {
		return id
	}
	id := "n" + strconv.Itoa(len(g.Nodes))
	g.index[key] = id
	g.Nodes = append(g.Nodes, node{ID: id, Key: key, Label: label, Kind: kind, Group: group})
	return id
}

// lastPart turns "path:line:name" into name
func lastPart(key string) string {
	if i := strings.LastIndex(key, ":"); i >= 0 && i < len(key)-1 {
		return key[i+1:]
	}
	return key
}
