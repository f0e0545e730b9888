//go:build !windows

package config

import (
	"os"
	"strings"
	"unicode"

	"golang.org/x/term"
)

// CleanFileName removes characters not allowed in produced file names. The
// set is the same on every platform so names do not depend on where the book
// was split.
func CleanFileName(in string) string {
	out := strings.TrimLeft(strings.TrimSpace(strings.Map(func(sym rune) rune {
		if unicode.IsControl(sym) || strings.ContainsRune(unsafeNameChars+string(os.PathListSeparator), sym) {
			return -1
		}
		return sym
	}, in)), ".")
	if len(out) == 0 {
		out = badFileName
	}
	return out
}

// EnableColorOutput checks if colorized output is possible.
func EnableColorOutput(stream *os.File) bool {
	return term.IsTerminal(int(stream.Fd()))
}
