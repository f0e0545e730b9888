package toc

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrMalformedReference marks contents entries which cannot be used.
var ErrMalformedReference = errors.New("malformed reference")

// Node is a contents node of produced book. IDs are local to the book being
// produced and never taken from the source.
type Node struct {
	ID       string
	Title    string
	Href     string
	Children []*Node
}

// Depth returns depth of the forest, 0 for empty one.
func Depth(nodes []*Node) int {
	depth := 0
	for _, n := range nodes {
		depth = max(depth, Depth(n.Children)+1)
	}
	return depth
}

// Rebuild produces contents tree for the section described by span with the
// section entry at the top. When the section entry is alone at its level and
// its first descendant sits more than one level deeper, the gap is closed so
// descendants become direct children instead of hanging under empty levels.
func Rebuild(entries []Entry, span Span, log *zap.Logger) []*Node {
	section := entries[span.Start : span.End+1]
	baseline := section[0].Level

	shift := 0
	if len(section) >= 2 && section[1].Level > section[0].Level && soleAtLevel(section, section[0].Level) {
		shift = section[1].Level - section[0].Level - 1
	}

	type frame struct {
		list  *[]*Node
		depth int
	}

	var (
		roots []*Node
		stack = []frame{{list: &roots, depth: 1}}
		id    int
	)
	for i, e := range section {
		if len(e.Href) == 0 {
			log.Warn("Skipping contents entry", zap.Int("entry", e.Index+1), zap.String("title", e.Title), zap.Error(ErrMalformedReference))
			continue
		}

		level := e.Level
		if i > 0 && shift > 0 {
			level = max(baseline+1, level-shift)
		}
		depth := max(1, level-baseline+1)

		for len(stack) > 1 && stack[len(stack)-1].depth > depth {
			stack = stack[:len(stack)-1]
		}
		if top := &stack[len(stack)-1]; depth > top.depth {
			if list := *top.list; len(list) > 0 {
				stack = append(stack, frame{list: &list[len(list)-1].Children, depth: depth})
			} else {
				// parent was skipped, current list takes its place
				top.depth = depth
			}
		}

		id++
		node := &Node{
			ID:    fmt.Sprintf("navPoint-%d", id),
			Title: e.Title,
			Href:  e.Href,
		}
		top := stack[len(stack)-1]
		*top.list = append(*top.list, node)
	}
	return roots
}

func soleAtLevel(section []Entry, level int) bool {
	count := 0
	for _, e := range section {
		if e.Level == level {
			count++
		}
	}
	return count == 1
}
