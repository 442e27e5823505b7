// Package config holds flowc's names and the settings loaded from
// flowc.yaml and the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

// Settings is the content of flowc.yaml after defaults and environment
// overrides.
type Settings struct {
	// Catalog lists extra catalog files merged over the embedded default.
	// Relative paths are resolved against the settings file.
	Catalog []string `yaml:"catalog,omitempty"`

	// Format is the output format: yaml, json, proto or sqlite.
	Format string `yaml:"format,omitempty"`

	// Output is the output path. Empty means next to the input, with the
	// format's extension.
	Output string `yaml:"output,omitempty"`

	// SearchPath lists the directories imports are looked up in when they
	// are not next to the importing document.
	SearchPath []string `yaml:"search_path,omitempty"`

	LogLevel string `yaml:"log_level,omitempty"`

	// Color is auto, always or never.
	Color string `yaml:"color,omitempty"`

	// StrictCatalog fails resolver construction when a registered overload
	// set does not reproduce a catalog default.
	StrictCatalog *bool `yaml:"strict_catalog,omitempty"`

	// Path is the settings file, empty for defaults.
	Path string `yaml:"-"`
}

// Defaults returns the settings used without a flowc.yaml.
func Defaults() *Settings {
	s := &Settings{}
	s.setDefaults()
	return s
}

// LoadSettings reads and parses a flowc.yaml file.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseSettings(data, path)
}

// ParseSettings parses flowc.yaml content. The path is used for error
// messages and to resolve relative catalog and search paths.
func ParseSettings(data []byte, path string) (*Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	s.Path = path
	s.setDefaults()
	if err := s.validate(); err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	for i, c := range s.Catalog {
		if !filepath.IsAbs(c) {
			s.Catalog[i] = filepath.Join(dir, c)
		}
	}
	for i, p := range s.SearchPath {
		if !filepath.IsAbs(p) {
			s.SearchPath[i] = filepath.Join(dir, p)
		}
	}
	return &s, nil
}

// FindConfig searches for flowc.yaml starting from dir and walking up to
// parent directories. It returns "" and no error when there is none.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Discover loads the settings that apply to a document in dir and applies
// the environment overrides.
func Discover(dir string) (*Settings, error) {
	path, err := FindConfig(dir)
	if err != nil {
		return nil, err
	}
	s := Defaults()
	if path != "" {
		if s, err = LoadSettings(path); err != nil {
			return nil, err
		}
	}
	if err := s.ApplyEnv(); err != nil {
		return nil, err
	}
	return s, nil
}

// ApplyEnv overrides settings from FLOWC_* variables and FLOWPATH. Catalog
// files and search directories from the environment come first. The
// environment is read afresh on every call.
func (s *Settings) ApplyEnv() error {
	env.Load()
	if env.Has(EnvCatalog) {
		s.Catalog = append(splitList(env.Str(EnvCatalog)), s.Catalog...)
	}
	if env.Has(EnvPath) {
		s.SearchPath = append(splitList(env.Str(EnvPath)), s.SearchPath...)
	}
	s.Format = env.Str(EnvFormat, s.Format)
	s.Output = env.Str(EnvOutput, s.Output)
	s.LogLevel = env.Str(EnvLogLevel, s.LogLevel)
	s.Color = env.Str(EnvColor, s.Color)
	return s.validate()
}

func splitList(v string) []string {
	var out []string
	for _, p := range filepath.SplitList(v) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Settings) setDefaults() {
	if s.Format == "" {
		s.Format = FormatYAML
	}
	if s.LogLevel == "" {
		s.LogLevel = "warn"
	}
	if s.Color == "" {
		s.Color = ColorAuto
	}
	if s.StrictCatalog == nil {
		strict := true
		s.StrictCatalog = &strict
	}
}

func (s *Settings) validate() error {
	where := s.Path
	if where == "" {
		where = "settings"
	}
	if !contains(Formats, s.Format) {
		return fmt.Errorf("%s: unknown format %q (want one of %s)", where, s.Format, strings.Join(Formats, ", "))
	}
	switch s.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("%s: unknown color mode %q", where, s.Color)
	}
	if _, err := ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("%s: %w", where, err)
	}
	return nil
}

// Strict reports the strict_catalog setting.
func (s *Settings) Strict() bool { return s.StrictCatalog == nil || *s.StrictCatalog }

// Level is the parsed log level.
func (s *Settings) Level() slog.Level {
	l, _ := ParseLevel(s.LogLevel)
	return l
}

// OutputPath is the output file for the document at input.
func (s *Settings) OutputPath(input string) string {
	if s.Output != "" {
		return s.Output
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + FormatExtensions[s.Format]
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", name)
	}
	return l, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
