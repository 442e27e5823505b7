package utils

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestImportCandidates(t *testing.T) {
	importer := filepath.Join("proj", "main.yaml")
	tests := []struct {
		name string
		spec string
		path []string
		want []string
	}{
		{"relative", "lib.yaml", nil, []string{filepath.Join("proj", "lib.yaml")}},
		{"search path", "lib.yaml", []string{"/std", "", "/extra"},
			[]string{filepath.Join("proj", "lib.yaml"), filepath.Join("/std", "lib.yaml"), filepath.Join("/extra", "lib.yaml")}},
		{"absolute", "/abs/lib.yaml", []string{"/std"}, []string{"/abs/lib.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ImportCandidates(importer, tt.spec, tt.path); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ImportCandidates(%q) = %v, want %v", tt.spec, got, tt.want)
			}
		})
	}
}

func TestExtractNamespace(t *testing.T) {
	tests := map[string]string{
		"math.yaml":          "math",
		"lib/math.flow.yaml": "math",
		"shapes":             "shapes",
		"../up/vec_ops.json": "vec_ops",
	}
	for spec, want := range tests {
		if got := ExtractNamespace(spec); got != want {
			t.Errorf("ExtractNamespace(%q) = %q, want %q", spec, got, want)
		}
	}
}
