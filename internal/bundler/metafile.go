package bundler

// ImportKind classifies an import edge in the build graph
type ImportKind string

const (
	ImportStatement ImportKind = "import-statement"
	DynamicImport   ImportKind = "dynamic-import"
	RequireCall     ImportKind = "require"
	URLImport       ImportKind = "url"
)

// Metafile is the backend-independent build graph
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput represents an input file in the metafile
type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
}

// MetafileImport represents an import in the metafile
type MetafileImport struct {
	Path     string     `json:"path"`
	Kind     ImportKind `json:"kind"`
	External bool       `json:"external,omitempty"`
}

// MetafileOutput represents an output file in the metafile
type MetafileOutput struct {
	Bytes      int              `json:"bytes"`
	Imports    []MetafileImport `json:"imports"`
	Exports    []string         `json:"exports,omitempty"`
	EntryPoint string           `json:"entryPoint,omitempty"`
}

// NewMetafile returns an empty metafile
func NewMetafile() *Metafile {
	return &Metafile{
		Inputs:  map[string]MetafileInput{},
		Outputs: map[string]MetafileOutput{},
	}
}

// LocalImports returns the import paths of an output that refer to other
// outputs of the same build, in reported order.
func (m *Metafile) LocalImports(name string) []string {
	if m == nil {
		return nil
	}
	out, ok := m.Outputs[name]
	if !ok {
		return nil
	}
	var deps []string
	seen := map[string]bool{}
	for _, imp := range out.Imports {
		if imp.External {
			continue
		}
		if _, ok := m.Outputs[imp.Path]; !ok || seen[imp.Path] {
			continue
		}
		seen[imp.Path] = true
		deps = append(deps, imp.Path)
	}
	return deps
}

// normalizeImportKind maps backend-specific kinds onto the generic set
func normalizeImportKind(kind string) ImportKind {
	switch kind {
	case "import-statement", "import":
		return ImportStatement
	case "dynamic-import":
		return DynamicImport
	case "require", "require-call", "require-resolve":
		return RequireCall
	default:
		return URLImport
	}
}
