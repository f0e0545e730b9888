// Package toc works with book table of contents: flattens nested contents
// into ordered entries, finds section boundaries and rebuilds scoped trees for
// produced books.
package toc

import (
	"slices"

	"esplit/href"
)

// Source is a node of table of contents as read from the book navigation
// document or NCX. Href is relative to the archive root.
type Source struct {
	Title    string
	Href     string
	Children []Source
}

// Entry is a single titled contents node in document order.
type Entry struct {
	// Index is position of entry in flattened list, assigned once and used to
	// address entries. Titles and hrefs may repeat.
	Index int
	// Level is 1 based nesting depth.
	Level int
	Title string
	// Href is canonical path of the document entry points to, may be empty.
	Href string
	// LastHref is the closest non empty Href at or after this entry.
	LastHref string
}

// Flatten walks contents in pre-order. Untitled nodes do not produce entries
// but their children are still visited one level deeper.
func Flatten(nodes []Source) []Entry {
	var entries []Entry
	var walk func(nodes []Source, level int)
	walk = func(nodes []Source, level int) {
		for _, n := range nodes {
			if len(n.Title) > 0 {
				entries = append(entries, Entry{
					Index: len(entries),
					Level: level,
					Title: n.Title,
					Href:  href.Canonicalize(n.Href, ""),
				})
			}
			walk(n.Children, level+1)
		}
	}
	walk(nodes, 1)

	last := ""
	for i := len(entries) - 1; i >= 0; i-- {
		if len(entries[i].Href) > 0 {
			last = entries[i].Href
		}
		entries[i].LastHref = last
	}
	return entries
}

// Levels returns distinct entry levels in ascending order.
func Levels(entries []Entry) []int {
	seen := make(map[int]bool)
	var levels []int
	for _, e := range entries {
		if !seen[e.Level] {
			seen[e.Level] = true
			levels = append(levels, e.Level)
		}
	}
	slices.Sort(levels)
	return levels
}

// AtLevel returns entries of requested level in document order.
func AtLevel(entries []Entry, level int) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}
