package toc

import (
	"fmt"
	"strings"
)

type treeWriter struct {
	w *strings.Builder
}

func newTreeWriter() *treeWriter {
	return &treeWriter{w: &strings.Builder{}}
}

func (tw treeWriter) String() string {
	return tw.w.String()
}

func (tw treeWriter) line(prefix string, depth int, format string, args ...any) {
	tw.w.WriteString(prefix)
	for range depth {
		tw.w.WriteString("  ")
	}
	fmt.Fprintf(tw.w, format, args...)
	tw.w.WriteByte('\n')
}

// Print renders flattened contents as numbered indented list. Numbers are
// 1 based entry indexes.
func Print(entries []Entry) string {
	tw := newTreeWriter()
	for _, e := range entries {
		tw.line(fmt.Sprintf("%d. ", e.Index+1), e.Level-1, "%s (Level %d, href: %s)", e.Title, e.Level, e.Href)
	}
	return tw.String()
}

// PrintTree renders rebuilt contents forest, used for diagnostics.
func PrintTree(nodes []*Node) string {
	tw := newTreeWriter()
	var walk func(nodes []*Node, depth int)
	walk = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			tw.line("", depth, "%s [%s] -> %s", n.Title, n.ID, n.Href)
			walk(n.Children, depth+1)
		}
	}
	walk(nodes, 0)
	return tw.String()
}
