// Package resources finds everything a set of documents needs: images,
// stylesheets, fonts and whatever stylesheets reference in turn.
package resources

import (
	"errors"
	"sort"

	"github.com/maruel/natural"
	"go.uber.org/zap"

	"esplit/css"
	"esplit/epub"
	"esplit/href"
)

// Catalog gives access to source book items.
type Catalog interface {
	Item(path string) (*epub.Item, bool)
	Read(path string) ([]byte, error)
}

// Walker gathers resources transitively referenced from documents.
type Walker struct {
	cat Catalog
	log *zap.Logger
}

// NewWalker returns walker over catalog.
func NewWalker(cat Catalog, log *zap.Logger) *Walker {
	return &Walker{cat: cat, log: log}
}

// Gather returns non document items referenced from documents (canonical
// paths) directly or through stylesheets. Every item is returned once, in
// natural order of paths. Missing and broken items never stop the walk.
func (w *Walker) Gather(documents []string) []*epub.Item {
	var (
		seen  = make(map[string]bool)
		queue []*epub.Item
	)
	enqueue := func(ref, base string) {
		if href.IsExternal(ref) {
			return
		}
		p := href.Canonicalize(ref, base)
		if len(p) == 0 || seen[p] {
			return
		}
		seen[p] = true
		item, ok := w.cat.Item(p)
		if !ok {
			w.log.Debug("Referenced resource not found", zap.String("from", base), zap.String("href", ref), zap.String("path", p))
			return
		}
		switch item.Kind {
		case epub.KindDocument, epub.KindNavigation:
			return
		}
		if item.Unlisted {
			w.log.Debug("Referenced resource is missing from manifest, carrying it", zap.String("path", p), zap.String("media-type", item.MediaType))
		}
		queue = append(queue, item)
	}

	for _, doc := range documents {
		data, err := w.cat.Read(doc)
		if err != nil {
			w.log.Debug("Unable to read document", zap.String("path", doc), zap.Error(err))
			continue
		}
		for _, ref := range DocumentReferences(data) {
			enqueue(ref, doc)
		}
	}

	included := make(map[string]*epub.Item)
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		included[item.Path] = item

		if item.Kind != epub.KindStyle {
			continue
		}
		data, err := w.cat.Read(item.Path)
		if err != nil {
			w.log.Debug("Unable to read stylesheet", zap.String("path", item.Path), zap.Error(err))
			continue
		}
		refs, err := css.References(data)
		if err != nil {
			level := zap.WarnLevel
			if errors.Is(err, css.ErrNotText) {
				level = zap.DebugLevel
			}
			w.log.Log(level, "Unable to scan stylesheet, keeping it as is", zap.String("path", item.Path), zap.Error(err))
		}
		for _, ref := range refs {
			enqueue(ref.URL, item.Path)
		}
	}

	paths := make([]string, 0, len(included))
	for p := range included {
		paths = append(paths, p)
	}
	sort.Sort(natural.StringSlice(paths))

	items := make([]*epub.Item, 0, len(paths))
	for _, p := range paths {
		items = append(items, included[p])
	}
	return items
}
