package utils

import (
	"path/filepath"
	"strings"
)

// ImportCandidates lists where an imported document may live, in lookup
// order. Absolute specs and specs with a scheme are used as given;
// anything else is tried next to the importing file, then under each
// search directory.
func ImportCandidates(importer, spec string, searchPath []string) []string {
	if filepath.IsAbs(spec) || strings.Contains(spec, ":") {
		return []string{spec}
	}
	out := []string{filepath.Join(filepath.Dir(importer), spec)}
	for _, dir := range searchPath {
		if dir != "" {
			out = append(out, filepath.Join(dir, spec))
		}
	}
	return out
}

// ExtractNamespace derives the default namespace of an imported document:
// its base name up to the first dot, so "lib/math.flow.yaml" is "math".
func ExtractNamespace(spec string) string {
	name := filepath.Base(spec)
	if i := strings.Index(name, "."); i >= 0 {
		name = name[:i]
	}
	return name
}
