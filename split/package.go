package split

import (
	"cmp"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"esplit/epub"
	"esplit/href"
	"esplit/resources"
	"esplit/toc"
)

// Options control how produced books are assembled.
type Options struct {
	// AddNavigation puts generated navigation document into reading order.
	AddNavigation bool
	// NavigationIndex is spine position of navigation document, clamped to
	// spine length.
	NavigationIndex int
	// FixZip removes data descriptors from produced archives.
	FixZip bool
	// CompressionLevel is deflate level for generated entries, -1 is default.
	CompressionLevel int
	// Verify re-reads produced archive and compares documents to source.
	Verify bool
}

// file is manifest entry of produced book.
type file struct {
	id         string
	path       string // canonical path inside archive
	mediaType  string
	properties string
	// generated is set for files produced here rather than carried from source
	generated bool
}

// pkg is in-memory description of the book being produced.
type pkg struct {
	title      string
	identifier string
	language   string
	authors    []string

	opfPath string
	ncxPath string
	navPath string

	documents []*file
	resources []*file
	spine     []*file
	cover     *file
	nav       *file
	ncx       *file
	nodes     []*toc.Node
}

// plan decides what goes into the book produced for section described by span.
func plan(book *epub.Book, entries []toc.Entry, span toc.Span, opts Options, log *zap.Logger) (*pkg, error) {
	root := entries[span.Start]

	p := &pkg{
		title:      root.Title,
		identifier: sectionIdentifier(book, root),
		language:   book.Metadata.Language,
		authors:    book.Metadata.Authors,
		nodes:      toc.Rebuild(entries, span, log),
	}
	if len(p.language) == 0 {
		p.language = "und"
	}

	ids := make(map[string]bool)
	taken := make(map[string]bool)

	// contents may point to images or other non document items, those are
	// carried as resources
	var targets []*epub.Item
	for _, doc := range toc.Documents(entries, span) {
		item, ok := book.Item(doc)
		if !ok {
			log.Warn("Section document is missing from book, skipping", zap.String("path", doc), zap.Error(ErrNotFound))
			continue
		}
		if item.Kind != epub.KindDocument {
			log.Debug("Contents entry does not point to a document", zap.String("path", doc), zap.Stringer("kind", item.Kind))
			targets = append(targets, item)
			continue
		}
		f := carried(item, ids)
		p.documents = append(p.documents, f)
		taken[f.path] = true
	}
	if len(p.documents) == 0 {
		return nil, fmt.Errorf("section %q has no documents: %w", root.Title, ErrNotFound)
	}

	var docPaths []string
	for _, f := range p.documents {
		docPaths = append(docPaths, f.path)
	}
	for _, item := range append(resources.NewWalker(book, log).Gather(docPaths), targets...) {
		if taken[item.Path] || item.Kind == epub.KindNavigation {
			continue
		}
		f := carried(item, ids)
		p.resources = append(p.resources, f)
		taken[f.path] = true
	}

	p.cover = findCover(book, p, ids, taken, log)

	dir := book.OPFDir()
	p.opfPath = freePath(dir, "content", ".opf", taken)
	p.ncxPath = freePath(dir, "toc", ".ncx", taken)
	p.navPath = freePath(dir, "nav", ".xhtml", taken)
	p.ncx = &file{id: uniqueID("ncx", ids), path: p.ncxPath, mediaType: "application/x-dtbncx+xml", generated: true}
	p.nav = &file{id: uniqueID("nav", ids), path: p.navPath, mediaType: "application/xhtml+xml", properties: "nav", generated: true}

	p.spine = readingOrder(book.Spine, p.documents)
	if opts.AddNavigation {
		at := min(max(opts.NavigationIndex, 0), len(p.spine))
		p.spine = append(p.spine[:at], append([]*file{p.nav}, p.spine[at:]...)...)
	}
	return p, nil
}

// readingOrder sorts documents by their position in source spine, documents
// missing from it follow in contents order.
func readingOrder(spine []string, docs []*file) []*file {
	pos := make(map[string]int, len(spine))
	for i, p := range spine {
		if _, ok := pos[p]; !ok {
			pos[p] = i
		}
	}
	order := slices.Clone(docs)
	slices.SortStableFunc(order, func(a, b *file) int {
		pa, oka := pos[a.path]
		pb, okb := pos[b.path]
		switch {
		case oka && okb:
			return cmp.Compare(pa, pb)
		case oka:
			return -1
		case okb:
			return 1
		}
		return 0
	})
	return order
}

// sectionIdentifier derives stable identifier from source book identity and
// section, so repeated splits produce the same identifiers.
func sectionIdentifier(book *epub.Book, root toc.Entry) string {
	source := book.Metadata.Identifier
	if len(source) == 0 {
		source = book.Metadata.Title
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "%s#%d#%s", source, root.Index, root.Title))
	return "urn:uuid:" + id.String()
}

func carried(item *epub.Item, ids map[string]bool) *file {
	id := item.ID
	if len(id) == 0 || ids[id] {
		id = uniqueID("item", ids)
	}
	ids[id] = true
	return &file{
		id:         id,
		path:       item.Path,
		mediaType:  item.MediaType,
		properties: dropProperties(item.Properties, "cover-image", "nav"),
	}
}

func uniqueID(base string, ids map[string]bool) string {
	id := base
	for i := 1; ids[id]; i++ {
		id = fmt.Sprintf("%s-%d", base, i)
	}
	ids[id] = true
	return id
}

func freePath(dir, base, ext string, taken map[string]bool) string {
	name := path.Join(dir, base+ext)
	for i := 1; taken[name]; i++ {
		name = path.Join(dir, fmt.Sprintf("%s-%d%s", base, i, ext))
	}
	taken[name] = true
	return name
}

func dropProperties(props string, drop ...string) string {
	var out []string
	for _, p := range strings.Fields(props) {
		keep := true
		for _, d := range drop {
			if p == d {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// findCover picks the first image of the first section document.
func findCover(book *epub.Book, p *pkg, ids, taken map[string]bool, log *zap.Logger) *file {
	first := p.documents[0].path
	data, err := book.Read(first)
	if err != nil {
		return nil
	}
	ref := resources.FirstImage(data)
	if len(ref) == 0 || href.IsExternal(ref) {
		return nil
	}
	target := href.Canonicalize(ref, first)
	for _, f := range p.resources {
		if f.path == target {
			f.properties = strings.TrimSpace(f.properties + " cover-image")
			return f
		}
	}
	item, ok := book.Item(target)
	if !ok || item.Kind != epub.KindImage {
		log.Debug("Cover image is not available", zap.String("document", first), zap.String("href", ref))
		return nil
	}
	f := carried(item, ids)
	f.properties = strings.TrimSpace(f.properties + " cover-image")
	p.resources = append(p.resources, f)
	taken[f.path] = true
	return f
}
