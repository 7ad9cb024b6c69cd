// Package proxyimports extracts chunk dependencies from generated proxy
// modules.
//
// A proxy module is the small file a backend emits per entrypoint that
// re-exports the entry's symbols from shared chunks, e.g.
//
//	import{Counter as A}from"./chunk-XYZ.js";import"./chunk-OTHER.js";export{A as default}
//
// The extraction is pattern based and deliberately narrow. It is not a
// JavaScript parser and only understands the statements backends generate
// for proxies. When two chunks bind the same local name the first chunk in
// import order is reported as the main chunk, which is a heuristic and not a
// guarantee.
package proxyimports

import (
	"path"
	"regexp"
	"strings"
)

// NoMain is the MainIndex when no chunk could be tied to an export
const NoMain = -1

var (
	// import { a, b as c } from "./chunk-X.js"  |  import "./chunk-X.js"
	chunkImportRegex = regexp.MustCompile(`\bimport\s*(?:\{([^}]*)\}\s*from\s*)?["']([^"']*chunk-[^"'/]*\.js)["']`)
	exportListRegex  = regexp.MustCompile(`\bexport\s*\{([^}]*)\}`)
	aliasRegex       = regexp.MustCompile(`([A-Za-z_$][\w$]*)\s+as\s+`)
	identRegex       = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)
)

// Result is what a proxy module reveals about its entrypoint
type Result struct {
	// Chunks are unique chunk basenames in first-seen order
	Chunks []string
	// MainIndex points at the chunk exporting the entry symbol, or NoMain
	MainIndex int
}

// Ordered returns the chunks with the main chunk first. Without a main chunk
// the discovery order is returned unchanged.
func (r Result) Ordered() []string {
	out := make([]string, 0, len(r.Chunks))
	if r.MainIndex <= 0 || r.MainIndex >= len(r.Chunks) {
		return append(out, r.Chunks...)
	}
	out = append(out, r.Chunks[r.MainIndex])
	out = append(out, r.Chunks[:r.MainIndex]...)
	return append(out, r.Chunks[r.MainIndex+1:]...)
}

type chunkImport struct {
	chunk    string
	bindings []string
}

// Extract inspects proxy module source
func Extract(src string) Result {
	imports := scanImports(src)

	res := Result{MainIndex: NoMain}
	index := map[string]int{}
	for _, imp := range imports {
		if _, ok := index[imp.chunk]; ok {
			continue
		}
		index[imp.chunk] = len(res.Chunks)
		res.Chunks = append(res.Chunks, imp.chunk)
	}

	for _, symbol := range ExportedSymbols(src) {
		for _, imp := range imports {
			if containsBinding(imp.bindings, symbol) {
				res.MainIndex = index[imp.chunk]
				return res
			}
		}
	}
	return res
}

// ExportedSymbols returns the local names the module exports. Aliased
// exports ("A as default") are preferred; plain names are only used when
// the export list has no alias at all.
func ExportedSymbols(src string) []string {
	var aliased, plain []string
	for _, m := range exportListRegex.FindAllStringSubmatch(src, -1) {
		for _, a := range aliasRegex.FindAllStringSubmatch(m[1], -1) {
			aliased = append(aliased, a[1])
		}
		for _, part := range strings.Split(m[1], ",") {
			part = strings.TrimSpace(part)
			if identRegex.MatchString(part) {
				plain = append(plain, part)
			}
		}
	}
	if len(aliased) > 0 {
		return aliased
	}
	return plain
}

func scanImports(src string) []chunkImport {
	var out []chunkImport
	for _, m := range chunkImportRegex.FindAllStringSubmatch(src, -1) {
		out = append(out, chunkImport{
			chunk:    path.Base(m[2]),
			bindings: localBindings(m[1]),
		})
	}
	return out
}

// localBindings returns every identifier of a binding list, both the
// imported and the local side of "x as y"
func localBindings(list string) []string {
	var names []string
	for _, part := range strings.Split(list, ",") {
		for _, f := range strings.Fields(part) {
			if f != "as" {
				names = append(names, f)
			}
		}
	}
	return names
}

func containsBinding(bindings []string, symbol string) bool {
	for _, b := range bindings {
		if b == symbol {
			return true
		}
	}
	return false
}
