// Package epub reads book archives: container, package document, manifest,
// reading order, bibliographic metadata and table of contents. Book is
// immutable once opened and is safe for concurrent use.
package epub

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"esplit/archive"
	"esplit/href"
	"esplit/toc"
)

// maxEntrySize limits decompressed size of a single archive entry.
const maxEntrySize int64 = 256 * 1024 * 1024

// Item is manifest item of the book.
type Item struct {
	ID         string
	Path       string // canonical path inside archive
	MediaType  string
	Properties string
	Kind       Kind
	// Unlisted is set for archive files which are referenced from content but
	// missing from manifest.
	Unlisted bool
}

// Metadata is bibliographic information carried into produced books.
type Metadata struct {
	Title      string
	Identifier string
	Language   string
	Authors    []string
}

// Book is parsed source archive.
type Book struct {
	Path     string
	Version  string
	OPFPath  string
	Metadata Metadata
	// Spine is reading order as canonical document paths.
	Spine []string
	// TOC is normalized contents tree, hrefs are relative to archive root.
	TOC []toc.Source
	// TOCSource names where contents were taken from: "ncx", "nav" or "".
	TOCSource string

	ncxID   string
	items   []*Item
	byPath  map[string]*Item
	byID    map[string]*Item
	files   map[string][]byte
	names   []string
	rawName map[string]string
}

// Open reads and parses book archive. When cp is not nil it is used to decode
// entry names not marked as UTF-8.
func Open(name string, cp encoding.Encoding, log *zap.Logger) (*Book, error) {
	r, err := zip.OpenReader(name)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("unable to open archive: %w", err)
	}
	defer r.Close()

	b := &Book{
		Path:    name,
		byPath:  make(map[string]*Item),
		byID:    make(map[string]*Item),
		files:   make(map[string][]byte),
		rawName: make(map[string]string),
	}

	for _, f := range r.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		entry := f.Name
		if cp != nil && f.NonUTF8 {
			// forcing zip file name encoding
			if n, err := cp.NewDecoder().String(entry); err == nil {
				entry = n
			} else {
				n, _ = ianaindex.IANA.Name(cp)
				log.Warn("Unable to convert archive name from specified encoding",
					zap.String("charset", n), zap.String("path", entry), zap.Error(err))
			}
		}
		if !archive.IsSafePath(entry) {
			log.Warn("Skipping unsafe archive entry", zap.String("path", entry))
			continue
		}
		entry = canonicalName(entry)
		data, err := readEntry(f, maxEntrySize)
		if err != nil {
			return nil, err
		}
		if _, exists := b.files[entry]; exists {
			log.Warn("Duplicate archive entry, using first one", zap.String("path", entry))
			continue
		}
		b.files[entry] = data
		b.names = append(b.names, entry)
		b.rawName[entry] = f.Name
	}

	if err := b.checkDRM(); err != nil {
		return nil, err
	}
	if b.OPFPath, err = b.findPackage(); err != nil {
		return nil, err
	}
	if err := b.parsePackage(log); err != nil {
		return nil, err
	}
	b.parseTOC(log)
	return b, nil
}

func readEntry(f *zip.File, limit int64) ([]byte, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("archive entry %s too large: %d bytes (max %d)", f.Name, f.UncompressedSize64, limit)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("unable to open archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	// declared size may lie
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("unable to read archive entry %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("archive entry %s exceeds size limit (%d bytes)", f.Name, limit)
	}
	return data, nil
}

// Item returns item for canonical path. Files present in the archive but
// absent from manifest are returned as unlisted items, manifest items without
// archive entry are not returned.
func (b *Book) Item(p string) (*Item, bool) {
	data, ok := b.files[p]
	if !ok {
		return nil, false
	}
	if it, ok := b.byPath[p]; ok {
		return it, true
	}
	kind := classify("", p, data)
	if kind == KindNavigation || strings.HasPrefix(p, "META-INF/") || p == "mimetype" || p == b.OPFPath {
		return nil, false
	}
	return &Item{
		ID:        "",
		Path:      p,
		MediaType: sniffMediaType(data, mediaTypeForKind(kind, p)),
		Kind:      kind,
		Unlisted:  true,
	}, true
}

// Read returns decompressed content of archive entry.
func (b *Book) Read(p string) ([]byte, error) {
	data, ok := b.files[p]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return data, nil
}

// RawName returns entry name as stored in archive, it differs from canonical
// path when names were decoded from legacy code page.
func (b *Book) RawName(p string) (string, bool) {
	n, ok := b.rawName[p]
	return n, ok
}

// OPFDir returns directory of the package document, "" for archive root.
func (b *Book) OPFDir() string {
	if dir := path.Dir(b.OPFPath); dir != "." {
		return dir
	}
	return ""
}

// Resolve canonicalizes reference found in the package document.
func (b *Book) resolve(reference string) string {
	return href.Canonicalize(reference, b.OPFPath)
}

func mediaTypeForKind(kind Kind, name string) string {
	switch kind {
	case KindDocument:
		return "application/xhtml+xml"
	case KindStyle:
		return "text/css"
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".svg":
		return "image/svg+xml"
	case ".ttf":
		return "font/ttf"
	case ".otf":
		return "font/otf"
	case ".woff":
		return "font/woff"
	case ".woff2":
		return "font/woff2"
	case ".js":
		return "application/javascript"
	}
	return "application/octet-stream"
}
