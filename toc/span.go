package toc

import (
	"fmt"
)

// Span is inclusive range of flattened entries which forms a section.
type Span struct {
	Start int
	End   int
}

// Len returns number of entries in the span.
func (s Span) Len() int {
	return s.End - s.Start + 1
}

// ResolveEnd returns index of the last entry belonging to the section which
// starts at start: the entry right before the next one with the same or
// smaller level, or the last entry.
func ResolveEnd(entries []Entry, start int) int {
	level := entries[start].Level
	for i := start + 1; i < len(entries); i++ {
		if entries[i].Level <= level {
			return i - 1
		}
	}
	return len(entries) - 1
}

// SpanOf returns section span for entry with given index.
func SpanOf(entries []Entry, start int) (Span, error) {
	if start < 0 || start >= len(entries) {
		return Span{}, fmt.Errorf("entry index %d is out of range [0, %d)", start, len(entries))
	}
	return Span{Start: start, End: ResolveEnd(entries, start)}, nil
}

// Documents returns canonical paths of documents referenced by span entries,
// each once and in contents order.
func Documents(entries []Entry, span Span) []string {
	seen := make(map[string]bool)
	var docs []string
	for _, e := range entries[span.Start : span.End+1] {
		if len(e.Href) == 0 || seen[e.Href] {
			continue
		}
		seen[e.Href] = true
		docs = append(docs, e.Href)
	}
	return docs
}
