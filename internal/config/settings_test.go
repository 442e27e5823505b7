package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvCatalog, EnvFormat, EnvOutput, EnvLogLevel, EnvColor, EnvPath} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

// ----------------------------------------------------------------------------
// Parsing
// ----------------------------------------------------------------------------

func TestParseSettings_Defaults(t *testing.T) {
	s, err := ParseSettings([]byte("{}\n"), "/work/flowc.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Format != FormatYAML {
		t.Errorf("format = %q, want yaml", s.Format)
	}
	if s.Color != ColorAuto {
		t.Errorf("color = %q, want auto", s.Color)
	}
	if !s.Strict() {
		t.Error("strict_catalog should default to true")
	}
	if s.Level() != slog.LevelWarn {
		t.Errorf("level = %v, want warn", s.Level())
	}
}

func TestParseSettings_RelativePaths(t *testing.T) {
	data := `
catalog: [extra.yaml, /abs/ops.yaml]
search_path: [lib]
format: json
strict_catalog: false
log_level: debug
`
	s, err := ParseSettings([]byte(data), "/work/flowc.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{filepath.Join("/work", "extra.yaml"), "/abs/ops.yaml"}
	for i, w := range want {
		if s.Catalog[i] != w {
			t.Errorf("catalog[%d] = %q, want %q", i, s.Catalog[i], w)
		}
	}
	if s.SearchPath[0] != filepath.Join("/work", "lib") {
		t.Errorf("search_path = %v", s.SearchPath)
	}
	if s.Strict() {
		t.Error("strict_catalog: false was ignored")
	}
	if s.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", s.Level())
	}
}

func TestParseSettings_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"format", "format: xml\n", "unknown format"},
		{"color", "color: sometimes\n", "unknown color mode"},
		{"level", "log_level: loud\n", "unknown log level"},
		{"yaml", "format: [\n", "parsing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSettings([]byte(tt.data), "flowc.yaml")
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Discovery
// ----------------------------------------------------------------------------

func TestFindConfig_WalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := filepath.Join(root, ConfigFileName)
	if err := os.WriteFile(cfg, []byte("format: json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := FindConfig(nested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != cfg {
		t.Errorf("FindConfig = %q, want %q", got, cfg)
	}
}

func TestDiscover_EnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileNameAlt), []byte("format: json\nsearch_path: [lib]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvFormat, FormatProto)
	t.Setenv(EnvPath, "/one"+string(os.PathListSeparator)+"/two")
	t.Setenv(EnvColor, ColorNever)

	s, err := Discover(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Format != FormatProto {
		t.Errorf("format = %q, want proto", s.Format)
	}
	if s.Color != ColorNever {
		t.Errorf("color = %q, want never", s.Color)
	}
	want := []string{"/one", "/two", filepath.Join(dir, "lib")}
	if strings.Join(s.SearchPath, ",") != strings.Join(want, ",") {
		t.Errorf("search_path = %v, want %v", s.SearchPath, want)
	}
}

func TestDiscover_BadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvFormat, "png")
	if _, err := Discover(t.TempDir()); err == nil {
		t.Fatal("expected an error for an unknown format")
	}
}

func TestApplyEnv_SeesLaterChanges(t *testing.T) {
	clearEnv(t)
	s := Defaults()
	if err := s.ApplyEnv(); err != nil {
		t.Fatal(err)
	}
	if s.Format != FormatYAML {
		t.Fatalf("format = %q, want yaml", s.Format)
	}

	t.Setenv(EnvFormat, FormatJSON)
	s = Defaults()
	if err := s.ApplyEnv(); err != nil {
		t.Fatal(err)
	}
	if s.Format != FormatJSON {
		t.Errorf("format = %q after setting %s, want json", s.Format, EnvFormat)
	}

	t.Setenv(EnvFormat, "png")
	if err := Defaults().ApplyEnv(); err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("error = %v, want unknown format", err)
	}
}

func TestOutputPath(t *testing.T) {
	s := Defaults()
	if got := s.OutputPath("dir/prog.yaml"); got != "dir/prog.graph.yaml" {
		t.Errorf("OutputPath = %q", got)
	}
	s.Format = FormatSQLite
	if got := s.OutputPath("prog.json"); got != "prog.graph.db" {
		t.Errorf("OutputPath = %q", got)
	}
	s.Output = "out.db"
	if got := s.OutputPath("prog.json"); got != "out.db" {
		t.Errorf("OutputPath = %q", got)
	}
}
