package querypack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/lang"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// parseImports runs the embedded imports program over src
func parseImports(t *testing.T, tag types.Language, src string) []types.Import {
	t.Helper()
	m, err := NewManager(EmbeddedProvider{}, 8)
	require.NoError(t, err)
	p, err := m.Pack(tag)
	require.NoError(t, err)

	g, err := lang.Provider(tag)
	require.NoError(t, err)
	parser, err := g.NewParser()
	require.NoError(t, err)
	defer parser.Close()
	tree, err := parser.Parse([]byte(src))
	require.NoError(t, err)
	defer tree.Close()

	var out []types.Import
	for _, match := range p.Imports.Matches(tree.RootNode(), []byte(src)) {
		for _, c := range match.Captures {
			if c.Name == "import" {
				out = append(out, p.Resolver.ParseImport(c.Node, []byte(src))...)
			}
		}
	}
	return out
}

func TestGoImports(t *testing.T) {
	src := "package main\n\nimport (\n\t\"fmt\"\n\tlog \"github.com/sirupsen/logrus\"\n\t. \"strings\"\n)\n"
	imports := parseImports(t, types.LangGo, src)
	require.Len(t, imports, 3)

	assert.Equal(t, types.Import{Source: "fmt", Line: 4}, imports[0])
	assert.Equal(t, "log", imports[1].ModuleAlias)
	assert.Equal(t, "github.com/sirupsen/logrus", imports[1].Source)
	assert.True(t, imports[2].Wildcard)
}

func TestPythonImportsOnePerName(t *testing.T) {
	src := "import os, numpy as np\nfrom typing import List, Dict as D\nfrom pkg.mod import *\n"
	imports := parseImports(t, types.LangPython, src)
	require.Len(t, imports, 5)

	assert.Equal(t, "os", imports[0].Source)
	assert.Equal(t, "np", imports[1].ModuleAlias)
	assert.Equal(t, []string{"List"}, imports[2].ImportedNames)
	assert.Equal(t, "typing", imports[3].Source)
	assert.Equal(t, "D", imports[3].ModuleAlias)
	assert.True(t, imports[4].Wildcard)
	assert.Equal(t, 3, imports[4].Line)
}

func TestJavaScriptImports(t *testing.T) {
	src := "import React from 'react';\nimport * as path from 'path';\nimport { a, b as c } from './util';\nimport './side.css';\n"
	imports := parseImports(t, types.LangJavaScript, src)
	require.Len(t, imports, 5)

	assert.Equal(t, types.Import{Source: "react", ImportedNames: []string{"default"}, ModuleAlias: "React", Line: 1}, imports[0])
	assert.Equal(t, "path", imports[1].ModuleAlias)
	assert.Equal(t, []string{"a"}, imports[2].ImportedNames)
	assert.Equal(t, "c", imports[3].ModuleAlias)
	assert.Equal(t, "./side.css", imports[4].Source)
}

func TestRustUseTree(t *testing.T) {
	src := "use std::collections::HashMap;\nuse std::io::{self, Read as R};\nuse crate::model::*;\n"
	imports := parseImports(t, types.LangRust, src)
	require.Len(t, imports, 4)

	assert.Equal(t, "std::collections", imports[0].Source)
	assert.Equal(t, []string{"HashMap"}, imports[0].ImportedNames)
	assert.Equal(t, "std::io", imports[1].Source)
	assert.Empty(t, imports[1].ImportedNames)
	assert.Equal(t, "R", imports[2].ModuleAlias)
	assert.True(t, imports[3].Wildcard)
	assert.Equal(t, "crate::model", imports[3].Source)
}

func TestExpandUseTree(t *testing.T) {
	items := expandUseTree("", "a::{b, c::{d, e as f}}", "::")
	assert.Equal(t, []useItem{
		{path: "a::b"},
		{path: "a::c::d"},
		{path: "a::c::e", alias: "f"},
	}, items)

	items = expandUseTree("", `App\Models\{User, Post as P}`, "\\")
	assert.Equal(t, []useItem{
		{path: `App\Models\User`},
		{path: `App\Models\Post`, alias: "P"},
	}, items)
}

func TestPathImport(t *testing.T) {
	assert.Equal(t, types.Import{Source: "java.util", ImportedNames: []string{"List"}}, pathImport("java.util.List", ".", ""))
	assert.Equal(t, types.Import{Source: "java.util", Wildcard: true}, pathImport("java.util.*", ".", ""))
	assert.Equal(t, types.Import{Source: "std", ModuleAlias: "s"}, pathImport("std", "::", "s"))
}

func TestZigImport(t *testing.T) {
	imports := parseImports(t, types.LangZig, "const std = @import(\"std\");\nconst x = 5;\n")
	require.Len(t, imports, 1)
	assert.Equal(t, types.Import{Source: "std", ModuleAlias: "std", Line: 1}, imports[0])
}

func TestImportMapFromParsedImports(t *testing.T) {
	imports := parseImports(t, types.LangPython, "from app.models import User\n")
	require.Len(t, imports, 1)
	assert.Equal(t, map[string]string{"User": "app.models.User"}, imports[0].ToImportMap())
}
