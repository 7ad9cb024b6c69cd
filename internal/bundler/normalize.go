package bundler

import (
	"path"
	"regexp"
	"strings"
)

const (
	// ChunkPrefix marks shared chunk files emitted by every backend
	ChunkPrefix = "chunk-"

	// ClientEntryPrefix is the filename prefix of the generated client entry
	ClientEntryPrefix = "client-entry"
	// CanonicalEntryName is what the client entry is renamed to
	CanonicalEntryName = "main.js"

	// BuildIDEntryPrefix is the filename prefix of the generated build-id module
	BuildIDEntryPrefix = "build-id"
	// CanonicalBuildIDName is what the build-id module is renamed to
	CanonicalBuildIDName = "build-id.js"

	// ReloadEndpoint is the dev reload endpoint hardcoded in runtime code
	ReloadEndpoint = "/_lime/alive"

	// DefaultNestedDir is the nested output directory some backends create
	DefaultNestedDir = "dist"
)

// chunkImportQuirkRegex matches chunk imports carrying a bogus parent segment:
//
//	from "../chunk-X.js"   from "..chunk-X.js"
//	import("../chunk-X.js") import("..chunk-X.js")
//	import "../chunk-X.js"
//
// The segment is only bogus in files at the output root, where chunks are
// siblings. A file in a subdirectory reaches root chunks through "../".
var chunkImportQuirkRegex = regexp.MustCompile(`(\bfrom\s*|\bimport\s*\(\s*|\bimport\s*)(["'])\.\./?(chunk-[\w.-]*?\.js)(["'])`)

// reloadEndpointRegex only matches the endpoint right after a quote, so a
// rewritten URL never matches again.
var reloadEndpointRegex = regexp.MustCompile("([\"'`])" + regexp.QuoteMeta(ReloadEndpoint))

// FixChunkImports rewrites "../chunk-X.js" style specifiers to "./chunk-X.js".
// It must only be applied to root-level outputs.
func FixChunkImports(code string) string {
	return chunkImportQuirkRegex.ReplaceAllString(code, "${1}${2}./${3}${4}")
}

// RewriteBasePath points the reload endpoint below basePath
func RewriteBasePath(code, basePath string) string {
	basePath = strings.TrimRight(basePath, "/")
	if basePath == "" {
		return code
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return reloadEndpointRegex.ReplaceAllString(code, "${1}"+basePath+ReloadEndpoint)
}

// NormalizeCode applies every text correction for a root-level output in
// order. Applying it to its own output returns identical bytes.
func NormalizeCode(code []byte, basePath string) []byte {
	return NormalizeCodeAt(CanonicalEntryName, code, basePath)
}

// NormalizeCodeAt normalizes the code of the output called name. Chunk
// imports are only corrected when name sits at the output root.
func NormalizeCodeAt(name string, code []byte, basePath string) []byte {
	s := string(code)
	fixed := s
	if isRootLevel(name) {
		fixed = FixChunkImports(fixed)
	}
	fixed = RewriteBasePath(fixed, basePath)
	if fixed == s {
		return code
	}
	return []byte(fixed)
}

func isRootLevel(name string) bool {
	return path.Dir(toSlash(name)) == "."
}

// NormalizeName maps internal entry filenames to their canonical names.
// Only the base name is inspected; the directory is preserved.
func NormalizeName(name string) string {
	name = strings.TrimPrefix(path.Clean("/"+toSlash(name)), "/")
	dir, base := path.Split(name)
	if isSourcemap(base) {
		return NormalizeName(strings.TrimSuffix(name, ".map")) + ".map"
	}
	switch {
	case base == CanonicalEntryName, base == CanonicalBuildIDName:
		return name
	case strings.HasPrefix(base, ClientEntryPrefix):
		return dir + CanonicalEntryName
	case strings.HasPrefix(base, BuildIDEntryPrefix):
		return dir + CanonicalBuildIDName
	}
	return name
}

// IsChunk reports whether name is a shared chunk file
func IsChunk(name string) bool {
	return strings.HasPrefix(path.Base(toSlash(name)), ChunkPrefix)
}

func isSourcemap(name string) bool {
	return strings.HasSuffix(name, ".map")
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
