package split

import (
	"fmt"
	"io"
	"slices"

	"esplit/prompt"
	"esplit/toc"
)

// Request carries answers known before any question is asked, usually from
// command line. Unset answers are asked when Asker is available, otherwise
// defaults are used.
type Request struct {
	// Level is contents level to split at, 0 when not set.
	Level int
	// Selection is raw selection, nil when not set.
	Selection *string
	// Navigation and NavigationIndex override configured defaults.
	Navigation      *bool
	NavigationIndex *int
	// Yes skips final confirmation.
	Yes bool
}

// Choice describes what to produce.
type Choice struct {
	Level           int
	Sections        []toc.Entry
	AddNavigation   bool
	NavigationIndex int
}

// Choose decides which sections are extracted. It returns nil choice when
// user declined to continue.
func Choose(entries []toc.Entry, req Request, defNav bool, defIndex int, ask prompt.Asker, out io.Writer) (*Choice, error) {
	levels := toc.Levels(entries)
	if len(levels) == 0 {
		return nil, fmt.Errorf("book has no table of contents: %w", ErrInvalidSelection)
	}

	c := &Choice{Level: req.Level, AddNavigation: defNav, NavigationIndex: defIndex}

	if ask != nil {
		fmt.Fprintf(out, "Table of contents:\n%s\n", toc.Print(entries))
	}

	switch {
	case c.Level > 0:
	case ask != nil && len(levels) > 1:
		level, err := ask.Level(levels)
		if err != nil {
			return nil, err
		}
		c.Level = level
	default:
		c.Level = levels[0]
	}
	if !slices.Contains(levels, c.Level) {
		return nil, fmt.Errorf("contents have no entries at level %d (available %v): %w", c.Level, levels, ErrInvalidSelection)
	}

	candidates := toc.AtLevel(entries, c.Level)
	if ask != nil {
		fmt.Fprintf(out, "Sections at level %d:\n", c.Level)
		for i, e := range candidates {
			fmt.Fprintf(out, "%d. %s\n", i+1, e.Title)
		}
	}

	input := ""
	switch {
	case req.Selection != nil:
		input = *req.Selection
	case ask != nil:
		s, err := ask.Selection(len(candidates))
		if err != nil {
			return nil, err
		}
		input = s
	}
	for _, n := range prompt.ParseSelection(input, len(candidates)) {
		c.Sections = append(c.Sections, candidates[n-1])
	}
	if len(c.Sections) == 0 {
		return nil, fmt.Errorf("nothing selected with %q: %w", input, ErrInvalidSelection)
	}

	switch {
	case req.Navigation != nil:
		c.AddNavigation = *req.Navigation
	case ask != nil:
		yes, err := ask.Confirm("Add table of contents page to reading order", c.AddNavigation)
		if err != nil {
			return nil, err
		}
		c.AddNavigation = yes
	}
	if c.AddNavigation {
		switch {
		case req.NavigationIndex != nil:
			c.NavigationIndex = *req.NavigationIndex
		case ask != nil:
			idx, err := ask.Index("Position of table of contents page in reading order", c.NavigationIndex)
			if err != nil {
				return nil, err
			}
			c.NavigationIndex = idx
		}
	}

	fmt.Fprintln(out, "Sections to extract:")
	for _, e := range c.Sections {
		fmt.Fprintln(out, Summary(entries, e))
	}
	if req.Yes || ask == nil {
		return c, nil
	}
	ok, err := ask.Confirm("Proceed", true)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return c, nil
}

// Summary describes section as single line with its first and last files.
func Summary(entries []toc.Entry, e toc.Entry) string {
	span, err := toc.SpanOf(entries, e.Index)
	if err != nil {
		return "- " + e.Title
	}
	// LastHref of entries without reference may point past the section
	last := ""
	for _, x := range entries[span.Start : span.End+1] {
		if len(x.Href) > 0 {
			last = x.LastHref
		}
	}
	if len(last) == 0 {
		return fmt.Sprintf("- %s (no files)", e.Title)
	}
	return fmt.Sprintf("- %s (Files %s till %s)", e.Title, e.LastHref, last)
}
