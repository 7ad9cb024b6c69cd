package bundler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseImports(t *testing.T) {
	code := `import{a}from"./chunk-A.js";import "./side.js";const m = import("./chunk-B.js");const r = require("fs");export*from'./re.js'`

	imports := ParseImports(code)
	assert.Equal(t, []MetafileImport{
		{Path: "./chunk-A.js", Kind: ImportStatement},
		{Path: "./side.js", Kind: ImportStatement},
		{Path: "./chunk-B.js", Kind: DynamicImport},
		{Path: "fs", Kind: RequireCall},
		{Path: "./re.js", Kind: ImportStatement},
	}, imports)
}

func TestAssemble(t *testing.T) {
	files := []File{
		{Name: "main.js", Code: []byte(`import{a}from"./chunk-A.js";import"react";`)},
		{Name: "main.js.map", Code: []byte(`{}`)},
		{Name: "chunk-A.js", Code: []byte(`export const a=1;`)},
		{Name: "nested/page.js", Code: []byte(`import("../chunk-A.js")`)},
	}
	manifest := map[string][]string{"src/main.tsx": {"main.js", "chunk-A.js"}}

	result, err := Assemble(context.Background(), files, manifest)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"chunk-A.js", "main.js", "nested/page.js"}, result.OutputNames())
	assert.Equal(t, "main.js", result.Entrypoint)
	assert.Equal(t, manifest, result.EntrypointManifest)

	var total int64
	for _, o := range result.Outputs {
		total += o.Size
		assert.Equal(t, Hash(o.Code), o.Hash)
		assert.Equal(t, int64(len(o.Code)), o.Size)
	}
	assert.Equal(t, total, result.TotalSize)

	main := result.Outputs["main.js"]
	assert.True(t, main.IsEntry)
	assert.Equal(t, []byte(`{}`), main.Map)
	assert.False(t, result.Outputs["chunk-A.js"].IsEntry)

	assert.Equal(t, []string{"chunk-A.js"}, result.Metafile.LocalImports("main.js"))
	assert.Equal(t, []string{"chunk-A.js"}, result.Metafile.LocalImports("nested/page.js"))
	assert.Empty(t, result.Metafile.LocalImports("chunk-A.js"))

	imports := result.Metafile.Outputs["main.js"].Imports
	require.Len(t, imports, 2)
	assert.Equal(t, MetafileImport{Path: "react", Kind: ImportStatement, External: true}, imports[1])
}

func TestAssemble_EntryFlags(t *testing.T) {
	files := []File{
		{Name: "main.js", Code: []byte("a")},
		{Name: "chunk-A.js", Code: []byte("b")},
		{Name: "lazy.js", Code: []byte("c"), EntryReported: true},
		{Name: "page.js", Code: []byte("d"), IsEntry: true, EntryReported: true},
	}

	result, err := Assemble(context.Background(), files, nil)
	require.NoError(t, err)

	assert.True(t, result.Outputs["main.js"].IsEntry, "non-chunk names are entries when nothing was reported")
	assert.False(t, result.Outputs["chunk-A.js"].IsEntry)
	assert.False(t, result.Outputs["lazy.js"].IsEntry)
	assert.True(t, result.Outputs["page.js"].IsEntry)
}

func TestAssemble_TotalSizeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		contents := rapid.SliceOfN(rapid.SliceOf(rapid.Byte()), 0, 12).Draw(t, "contents")

		files := make([]File, len(contents))
		var want int64
		for i, c := range contents {
			files[i] = File{Name: fmt.Sprintf("chunk-%d.js", i), Code: c}
			want += int64(len(c))
		}

		result, err := Assemble(context.Background(), files, nil)
		if err != nil {
			t.Fatalf("assemble: %v", err)
		}

		var sum int64
		for _, o := range result.Outputs {
			sum += o.Size
		}
		if result.TotalSize != sum || sum != want {
			t.Fatalf("total size %d, sum of outputs %d, input bytes %d", result.TotalSize, sum, want)
		}
	})
}

func TestAssemble_Empty(t *testing.T) {
	result, err := Assemble(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Outputs)
	assert.NotNil(t, result.EntrypointManifest)
	assert.Zero(t, result.TotalSize)
}

func TestAssemble_DuplicateNames(t *testing.T) {
	files := []File{
		NormalizeFile(File{Name: "client-entry-A.js", Code: []byte("a")}, ""),
		NormalizeFile(File{Name: "client-entry-B.js", Code: []byte("b")}, ""),
	}
	_, err := Assemble(context.Background(), files, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate output main.js")
}

func TestAssemble_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Assemble(ctx, []File{{Name: "main.js", Code: []byte("x")}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMergeMetafileInputs(t *testing.T) {
	dst := NewMetafile()
	src := NewMetafile()
	src.Inputs["src/main.tsx"] = MetafileInput{Bytes: 10}

	mergeMetafileInputs(dst, src)
	assert.Equal(t, 10, dst.Inputs["src/main.tsx"].Bytes)

	mergeMetafileInputs(dst, nil)
	mergeMetafileInputs(nil, src)
}
