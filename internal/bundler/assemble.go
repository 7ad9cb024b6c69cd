package bundler

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// importRegex finds import specifiers of every flavor in generated code:
// static (`from "x"`), bare (`import "x"`), dynamic (`import("x")`) and
// `require("x")`. The first group tells the kinds apart.
var importRegex = regexp.MustCompile(`(\bfrom\s*|\bimport\s*\(\s*|\bimport\s*|\brequire\s*\(\s*)["']([^"'\n]+)["']`)

// ParseImports returns the import specifiers of code in source order
func ParseImports(code string) []MetafileImport {
	var imports []MetafileImport
	for _, m := range importRegex.FindAllStringSubmatch(code, -1) {
		lead := strings.TrimSpace(m[1])
		kind := ImportStatement
		switch {
		case strings.HasPrefix(lead, "require"):
			kind = RequireCall
		case strings.HasPrefix(lead, "import") && strings.HasSuffix(lead, "("):
			kind = DynamicImport
		}
		imports = append(imports, MetafileImport{Path: m[2], Kind: kind})
	}
	return imports
}

// resolveOutputRef resolves a relative specifier found in output from to an
// output name. Non-relative specifiers are returned unchanged.
func resolveOutputRef(from, ref string) string {
	if !strings.HasPrefix(ref, "./") && !strings.HasPrefix(ref, "../") {
		return ref
	}
	return strings.TrimPrefix(path.Clean(path.Join(path.Dir(from), ref)), "/")
}

// Assemble turns normalized files into a Result. Every file is hashed and
// parsed independently, so the work is spread over a bounded set of
// goroutines.
func Assemble(ctx context.Context, files []File, entryManifest map[string][]string) (*Result, error) {
	maps := map[string][]byte{}
	var code []File
	for _, f := range files {
		if isSourcemap(f.Name) {
			maps[strings.TrimSuffix(f.Name, ".map")] = f.Code
			continue
		}
		code = append(code, f)
	}

	names := make(map[string]bool, len(code))
	for _, f := range code {
		if names[f.Name] {
			return nil, fmt.Errorf("duplicate output %s after normalization", f.Name)
		}
		names[f.Name] = true
	}

	outputs := make([]*Output, len(code))
	metas := make([]MetafileOutput, len(code))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, f := range code {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			outputs[i] = &Output{
				Path:    f.Name,
				Code:    f.Code,
				Map:     maps[f.Name],
				Size:    int64(len(f.Code)),
				Hash:    Hash(f.Code),
				IsEntry: f.IsEntry || (!f.EntryReported && !IsChunk(f.Name)),
			}
			metas[i] = outputMeta(f, names)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Success:            true,
		Outputs:            make(map[string]*Output, len(outputs)),
		Metafile:           NewMetafile(),
		EntrypointManifest: entryManifest,
	}
	if result.EntrypointManifest == nil {
		result.EntrypointManifest = map[string][]string{}
	}
	for i, o := range outputs {
		result.Outputs[o.Path] = o
		result.Metafile.Outputs[o.Path] = metas[i]
		result.TotalSize += o.Size
		if path.Base(o.Path) == CanonicalEntryName && (result.Entrypoint == "" || o.Path == CanonicalEntryName) {
			result.Entrypoint = o.Path
		}
	}
	return result, nil
}

func outputMeta(f File, names map[string]bool) MetafileOutput {
	meta := MetafileOutput{Bytes: len(f.Code), Imports: []MetafileImport{}}
	for _, imp := range ParseImports(string(f.Code)) {
		resolved := resolveOutputRef(f.Name, imp.Path)
		if names[resolved] {
			imp.Path = resolved
		} else {
			imp.External = true
		}
		meta.Imports = append(meta.Imports, imp)
	}
	return meta
}

// mergeMetafileInputs copies backend-reported inputs into the assembled
// metafile
func mergeMetafileInputs(dst, src *Metafile) {
	if dst == nil || src == nil {
		return
	}
	for k, v := range src.Inputs {
		dst.Inputs[k] = v
	}
}
