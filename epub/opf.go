package epub

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

const containerPath = "META-INF/container.xml"

func newDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{
		CharsetReader: charset.NewReaderLabel,
		Entity:        htmlEntities,
		ValidateInput: false,
		Permissive:    true,
	}
	return doc
}

func (b *Book) readXML(name string) (*etree.Document, error) {
	data, err := b.Read(name)
	if err != nil {
		return nil, err
	}
	doc := newDocument()
	if err := doc.ReadFromBytes(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", name, err)
	}
	return doc, nil
}

// findPackage locates package document using container, falls back to the
// first .opf file in the archive.
func (b *Book) findPackage() (string, error) {
	if _, ok := b.files[containerPath]; ok {
		doc, err := b.readXML(containerPath)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidBook, err)
		}
		var fallback string
		for _, rf := range doc.FindElements("//rootfile") {
			full := strings.TrimSpace(rf.SelectAttrValue("full-path", ""))
			if len(full) == 0 {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(rf.SelectAttrValue("media-type", "")), "application/oebps-package+xml") {
				return canonicalName(full), nil
			}
			if len(fallback) == 0 {
				fallback = full
			}
		}
		if len(fallback) > 0 {
			return canonicalName(fallback), nil
		}
	}
	for _, name := range b.names {
		if strings.EqualFold(path.Ext(name), ".opf") {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: unable to locate package document", ErrInvalidBook)
}

func canonicalName(name string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(name, `\`, "/")), "/")
}

func (b *Book) parsePackage(log *zap.Logger) error {
	doc, err := b.readXML(b.OPFPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBook, err)
	}
	pkg := doc.SelectElement("package")
	if pkg == nil {
		return fmt.Errorf("%w: package document has no package element", ErrInvalidBook)
	}
	b.Version = strings.TrimSpace(pkg.SelectAttrValue("version", "2.0"))

	if md := pkg.SelectElement("metadata"); md != nil {
		b.Metadata = parseMetadata(md, pkg.SelectAttrValue("unique-identifier", ""))
	}

	manifest := pkg.SelectElement("manifest")
	if manifest == nil {
		return fmt.Errorf("%w: package document has no manifest", ErrInvalidBook)
	}
	for _, el := range manifest.SelectElements("item") {
		id := strings.TrimSpace(el.SelectAttrValue("id", ""))
		p := b.resolve(el.SelectAttrValue("href", ""))
		if len(p) == 0 {
			log.Debug("Manifest item without href, skipping", zap.String("id", id))
			continue
		}
		if _, exists := b.byPath[p]; exists {
			log.Debug("Duplicate manifest item, using first one", zap.String("id", id), zap.String("path", p))
			continue
		}
		mt := strings.TrimSpace(el.SelectAttrValue("media-type", ""))
		item := &Item{
			ID:         id,
			Path:       p,
			MediaType:  mt,
			Properties: strings.TrimSpace(el.SelectAttrValue("properties", "")),
			Kind:       classify(mt, p, b.files[p]),
		}
		if len(mt) == 0 || mt == "application/octet-stream" {
			item.MediaType = sniffMediaType(b.files[p], mediaTypeForKind(item.Kind, p))
		}
		if _, ok := b.files[p]; !ok {
			log.Debug("Manifest item is missing from archive", zap.String("id", id), zap.String("path", p))
		}
		b.items = append(b.items, item)
		b.byPath[p] = item
		if len(id) > 0 {
			b.byID[id] = item
		}
	}

	if spine := pkg.SelectElement("spine"); spine != nil {
		b.ncxID = strings.TrimSpace(spine.SelectAttrValue("toc", ""))
		for _, ref := range spine.SelectElements("itemref") {
			idref := strings.TrimSpace(ref.SelectAttrValue("idref", ""))
			item, ok := b.byID[idref]
			if !ok {
				log.Debug("Spine references unknown item", zap.String("idref", idref))
				continue
			}
			b.Spine = append(b.Spine, item.Path)
		}
	}
	return nil
}

func parseMetadata(md *etree.Element, uniqueID string) Metadata {
	var m Metadata
	if el := md.SelectElement("title"); el != nil {
		m.Title = strings.TrimSpace(el.Text())
	}
	for _, el := range md.SelectElements("identifier") {
		val := strings.TrimSpace(el.Text())
		if len(val) == 0 {
			continue
		}
		if len(uniqueID) > 0 && el.SelectAttrValue("id", "") == uniqueID {
			m.Identifier = val
			break
		}
		if len(m.Identifier) == 0 {
			m.Identifier = val
		}
	}
	if el := md.SelectElement("language"); el != nil {
		m.Language = strings.TrimSpace(el.Text())
	}
	for _, el := range md.SelectElements("creator") {
		if name := strings.TrimSpace(el.Text()); len(name) > 0 {
			m.Authors = append(m.Authors, name)
		}
	}
	return m
}
