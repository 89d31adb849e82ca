package arch

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

type graphML struct {
	XMLName xml.Name     `xml:"graphml"`
	XMLNS   string       `xml:"xmlns,attr"`
	Keys    []graphMLKey `xml:"key"`
	Graph   graphMLGraph `xml:"graph"`
}

type graphMLKey struct {
	ID   string `xml:"id,attr"`
	For  string `xml:"for,attr"`
	Name string `xml:"attr.name,attr"`
	Type string `xml:"attr.type,attr"`
}

type graphMLGraph struct {
	ID          string        `xml:"id,attr"`
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphMLNode `xml:"node"`
	Edges       []graphMLEdge `xml:"edge"`
}

type graphMLData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

type graphMLNode struct {
	ID   string        `xml:"id,attr"`
	Data []graphMLData `xml:"data"`
}

type graphMLEdge struct {
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphMLData `xml:"data"`
}

func renderGraphML(w io.Writer, g *graphView) error {
	doc := graphML{
		XMLNS: "http://graphml.graphdrawing.org/xmlns",
		Keys: []graphMLKey{
			{ID: "label", For: "node", Name: "label", Type: "string"},
			{ID: "kind", For: "node", Name: "kind", Type: "string"},
			{ID: "group", For: "node", Name: "group", Type: "string"},
			{ID: "key", For: "node", Name: "key", Type: "string"},
			{ID: "relation", For: "edge", Name: "relation", Type: "string"},
		},
		Graph: graphMLGraph{ID: g.Title, EdgeDefault: "directed"},
	}
	for _, n := range g.Nodes {
		doc.Graph.Nodes = append(doc.Graph.Nodes, graphMLNode{ID: n.ID, Data: []graphMLData{
			{Key: "label", Value: n.Label}, {Key: "kind", Value: n.Kind},
			{Key: "group", Value: n.Group}, {Key: "key", Value: n.Key},
		}})
	}
	for _, e := range g.Edges {
		doc.Graph.Edges = append(doc.Graph.Edges, graphMLEdge{Source: e.From, Target: e.To, Data: []graphMLData{{Key: "relation", Value: e.Kind}}})
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// quoted escapes s for double-quoted strings in DOT, D2 and PlantUML
func quoted(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s) + `"`
}

func renderDOT(w io.Writer, g *graphView) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph %s {\n", quoted(g.Title))
	bw.WriteString("  rankdir=LR;\n  node [shape=box, fontname=\"Helvetica\"];\n")
	for _, n := range g.Nodes {
		shape := "box"
		switch n.Kind {
		case "file":
			shape = "folder"
		case "external":
			shape = "ellipse"
		}
		fmt.Fprintf(bw, "  %s [label=%s, shape=%s];\n", n.ID, quoted(n.Label), shape)
	}
	for _, e := range g.Edges {
		fmt.Fprintf(bw, "  %s -> %s [label=%s];\n", e.From, e.To, quoted(e.Kind))
	}
	bw.WriteString("}\n")
	return bw.Flush()
}

// mermaidLabel drops characters Mermaid treats as syntax inside ["..."]
func mermaidLabel(s string) string {
	return strings.NewReplacer(`"`, "'", "[", "(", "]", ")", "\n", " ").Replace(s)
}

func renderMermaid(w io.Writer, g *graphView) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("graph LR\n")
	for _, n := range g.Nodes {
		fmt.Fprintf(bw, "  %s[\"%s\"]\n", n.ID, mermaidLabel(n.Label))
	}
	for _, e := range g.Edges {
		fmt.Fprintf(bw, "  %s -->|%s| %s\n", e.From, e.Kind, e.To)
	}
	return bw.Flush()
}

func renderPlantUML(w io.Writer, g *graphView) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "@startuml\ntitle %s\n", g.Title)
	for _, n := range g.Nodes {
		element := "component"
		switch n.Kind {
		case "file":
			element = "artifact"
		case "interface", "trait":
			element = "interface"
		case "external":
			element = "node"
		}
		fmt.Fprintf(bw, "%s %s as %s\n", element, quoted(n.Label), n.ID)
	}
	for _, e := range g.Edges {
		fmt.Fprintf(bw, "%s --> %s : %s\n", e.From, e.To, e.Kind)
	}
	bw.WriteString("@enduml\n")
	return bw.Flush()
}

func renderD2(w io.Writer, g *graphView) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "title: %s\ndirection: right\n", quoted(g.Title))
	for _, n := range g.Nodes {
		fmt.Fprintf(bw, "%s: %s\n", n.ID, quoted(n.Label))
		if n.Kind == "file" {
			fmt.Fprintf(bw, "%s.shape: page\n", n.ID)
		}
	}
	for _, e := range g.Edges {
		fmt.Fprintf(bw, "%s -> %s: %s\n", e.From, e.To, quoted(e.Kind))
	}
	return bw.Flush()
}

// cypherString escapes s for a single-quoted Cypher literal
func cypherString(s string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`).Replace(s) + "'"
}

// cypherLabel maps a node kind to a node label
func cypherLabel(kind string) string {
	switch kind {
	case "file":
		return "File"
	case "external":
		return "External"
	}
	return "Symbol"
}

// cypherRelType maps "uses-type" to USES_TYPE
func cypherRelType(kind string) string {
	return strings.ToUpper(strings.ReplaceAll(kind, "-", "_"))
}

func renderCypher(w io.Writer, g *graphView) error {
	bw := bufio.NewWriter(w)
	for _, n := range g.Nodes {
		fmt.Fprintf(bw, "MERGE (%s:%s {key: %s}) SET %s.name = %s, %s.kind = %s, %s.group = %s;\n",
			n.ID, cypherLabel(n.Kind), cypherString(n.Key),
			n.ID, cypherString(n.Label), n.ID, cypherString(n.Kind), n.ID, cypherString(n.Group))
	}
	keys := make(map[string]node, len(g.Nodes))
	for _, n := range g.Nodes {
		keys[n.ID] = n
	}
	for _, e := range g.Edges {
		from, to := keys[e.From], keys[e.To]
		fmt.Fprintf(bw, "MATCH (a:%s {key: %s}), (b:%s {key: %s}) MERGE (a)-[:%s]->(b);\n",
			cypherLabel(from.Kind), cypherString(from.Key), cypherLabel(to.Kind), cypherString(to.Key), cypherRelType(e.Kind))
	}
	return bw.Flush()
}
