package diagnostics

import (
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
)

// =============================================================================
// Source excerpts
// =============================================================================

const (
	ansiRed   = "\x1b[31m"
	ansiBold  = "\x1b[1m"
	ansiReset = "\x1b[0m"
)

// Formatter renders diagnostics with a caret-underlined source excerpt.
type Formatter struct {
	Color bool
}

// Format renders err against the source text it was raised for. Errors
// without a position (or without source) render as "Kind: message".
func Format(err error, source string) string {
	return Formatter{}.Format(err, source)
}

func (f Formatter) Format(err error, source string) string {
	d, ok := As(err)
	if !ok {
		return err.Error()
	}
	if d.Pos.IsZero() || source == "" {
		return string(d.Kind) + ": " + d.Message
	}

	lines := strings.Split(source, "\n")
	first := d.Pos.Line
	last := d.Pos.LastLine()
	if last > len(lines) || last < 1 {
		return d.Error()
	}

	var sb strings.Builder
	sb.WriteString(`File "`)
	sb.WriteString(d.Pos.File)
	sb.WriteString(`", `)
	if first == last {
		sb.WriteString("line " + strconv.Itoa(first))
	} else {
		sb.WriteString("lines " + strconv.Itoa(first) + "-" + strconv.Itoa(last))
	}
	sb.WriteString("\n")

	line := lines[last-1]
	sb.WriteString("    ")
	sb.WriteString(line)
	sb.WriteString("\n")

	prefix, width := underline(source, line, d.Pos.Start, d.Pos.End, first == last)
	sb.WriteString("    ")
	sb.WriteString(prefix)
	carets := strings.Repeat("^", width)
	if f.Color {
		carets = ansiRed + carets + ansiReset
	}
	sb.WriteString(carets)
	sb.WriteString("\n")

	msg := ">> " + d.Message + " <<"
	if f.Color {
		msg = ansiBold + ansiRed + msg + ansiReset
	}
	sb.WriteString(msg)
	return sb.String()
}

// underline computes the whitespace prefix (tabs kept) and caret count for
// the last line of a span. Start/End are offsets into source.
func underline(source, line string, start, end int, single bool) (string, int) {
	if end > len(source) {
		end = len(source)
	}
	if start < 0 || end < start {
		return "", 1
	}
	lineStart := strings.LastIndex(source[:end], "\n") + 1
	col := start - lineStart
	if !single || col < 0 {
		col = len(line) - len(strings.TrimLeft(line, " \t"))
	}
	if col > len(line) {
		col = len(line)
	}
	var prefix strings.Builder
	for _, c := range line[:col] {
		if c == '\t' {
			prefix.WriteRune('\t')
		} else {
			prefix.WriteRune(' ')
		}
	}
	width := end - lineStart - col
	if width < 1 {
		width = 1
	}
	return prefix.String(), width
}

// =============================================================================
// Color support detection
// =============================================================================

// ColorEnabled decides whether diagnostics written to f are colored. mode
// is one of "auto", "always" or "never".
func ColorEnabled(mode string, f *os.File) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	// NO_COLOR convention: https://no-color.org/
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
