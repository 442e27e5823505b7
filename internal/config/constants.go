package config

// Settings file names, searched for in this order.
const (
	ConfigFileName    = "flowc.yaml"
	ConfigFileNameAlt = "flowc.yml"
)

// TreeFileExtensions are the recognized parse-tree document extensions.
var TreeFileExtensions = []string{".yaml", ".yml", ".json"}

// Output formats.
const (
	FormatYAML   = "yaml"
	FormatJSON   = "json"
	FormatProto  = "proto"
	FormatSQLite = "sqlite"
)

// Formats lists the output formats in the order they are documented.
var Formats = []string{FormatYAML, FormatJSON, FormatProto, FormatSQLite}

// FormatExtensions maps an output format to the extension of its default
// output file.
var FormatExtensions = map[string]string{
	FormatYAML:   ".graph.yaml",
	FormatJSON:   ".graph.json",
	FormatProto:  ".graph.pb",
	FormatSQLite: ".graph.db",
}

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Environment overrides.
const (
	EnvCatalog  = "FLOWC_CATALOG"
	EnvFormat   = "FLOWC_FORMAT"
	EnvOutput   = "FLOWC_OUTPUT"
	EnvLogLevel = "FLOWC_LOG_LEVEL"
	EnvColor    = "FLOWC_COLOR"
	EnvPath     = "FLOWPATH"
)
