package transcript

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ansiEscape matches CSI and OSC terminal escape sequences.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)

// NormalizeOutput prepares captured debugger output for matching.
// Line endings become LF, terminal escapes are dropped, and the text is
// NFC normalized. Leading and trailing whitespace is preserved.
func NormalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = ansiEscape.ReplaceAllString(s, "")
	return norm.NFC.String(s)
}
