package split

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"esplit/href"
	"esplit/toc"
)

const mimetypeContent = "application/epub+zip"

func writeXMLToZip(zw *zip.Writer, name string, doc *etree.Document) error {
	doc.Indent(2)
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return err
	}
	return writeDataToZip(zw, name, buf.Bytes())
}

func writeDataToZip(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func writeMimetype(zw *zip.Writer) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, mimetypeContent)
	return err
}

func writeContainer(zw *zip.Writer, opfPath string) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	container := doc.CreateElement("container")
	container.CreateAttr("version", "1.0")
	container.CreateAttr("xmlns", "urn:oasis:names:tc:opendocument:xmlns:container")

	rootfiles := container.CreateElement("rootfiles")
	rootfile := rootfiles.CreateElement("rootfile")
	rootfile.CreateAttr("full-path", opfPath)
	rootfile.CreateAttr("media-type", "application/oebps-package+xml")

	return writeXMLToZip(zw, "META-INF/container.xml", doc)
}

// reference returns escaped href of target relative to the generated file.
func reference(from, target string) string {
	return href.Escape(href.Relative(from, target))
}

func writeOPF(zw *zip.Writer, p *pkg, modified time.Time) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	pkgEl := doc.CreateElement("package")
	pkgEl.CreateAttr("xmlns", "http://www.idpf.org/2007/opf")
	pkgEl.CreateAttr("unique-identifier", "BookId")
	pkgEl.CreateAttr("version", "3.0")

	metadata := pkgEl.CreateElement("metadata")
	metadata.CreateAttr("xmlns:dc", "http://purl.org/dc/elements/1.1/")
	metadata.CreateAttr("xmlns:opf", "http://www.idpf.org/2007/opf")

	metadata.CreateElement("dc:title").SetText(p.title)

	dcIdentifier := metadata.CreateElement("dc:identifier")
	dcIdentifier.CreateAttr("id", "BookId")
	dcIdentifier.SetText(p.identifier)

	metadata.CreateElement("dc:language").SetText(p.language)

	for idx, author := range p.authors {
		creatorID := fmt.Sprintf("creator%d", idx)
		dcCreator := metadata.CreateElement("dc:creator")
		dcCreator.CreateAttr("id", creatorID)
		dcCreator.SetText(author)

		roleMeta := metadata.CreateElement("meta")
		roleMeta.CreateAttr("refines", "#"+creatorID)
		roleMeta.CreateAttr("property", "role")
		roleMeta.CreateAttr("scheme", "marc:relators")
		roleMeta.SetText("aut")
	}

	// older readers only know EPUB2 cover declaration
	if p.cover != nil {
		meta := metadata.CreateElement("meta")
		meta.CreateAttr("name", "cover")
		meta.CreateAttr("content", p.cover.id)
	}

	modifiedMeta := metadata.CreateElement("meta")
	modifiedMeta.CreateAttr("property", "dcterms:modified")
	modifiedMeta.SetText(modified.UTC().Format("2006-01-02T15:04:05Z"))

	manifest := pkgEl.CreateElement("manifest")
	addItem := func(f *file) {
		item := manifest.CreateElement("item")
		item.CreateAttr("id", f.id)
		item.CreateAttr("href", reference(p.opfPath, f.path))
		item.CreateAttr("media-type", f.mediaType)
		if len(f.properties) > 0 {
			item.CreateAttr("properties", f.properties)
		}
	}
	addItem(p.ncx)
	addItem(p.nav)
	for _, f := range p.documents {
		addItem(f)
	}
	for _, f := range p.resources {
		addItem(f)
	}

	spine := pkgEl.CreateElement("spine")
	spine.CreateAttr("toc", p.ncx.id)
	for _, f := range p.spine {
		spine.CreateElement("itemref").CreateAttr("idref", f.id)
	}

	return writeXMLToZip(zw, p.opfPath, doc)
}

func writeNCX(zw *zip.Writer, p *pkg) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	ncx := doc.CreateElement("ncx")
	ncx.CreateAttr("xmlns", "http://www.daisy.org/z3986/2005/ncx/")
	ncx.CreateAttr("version", "2005-1")

	head := ncx.CreateElement("head")

	metaUID := head.CreateElement("meta")
	metaUID.CreateAttr("name", "dtb:uid")
	metaUID.CreateAttr("content", p.identifier)

	metaDepth := head.CreateElement("meta")
	metaDepth.CreateAttr("name", "dtb:depth")
	metaDepth.CreateAttr("content", strconv.Itoa(max(1, toc.Depth(p.nodes))))

	docTitle := ncx.CreateElement("docTitle")
	docTitle.CreateElement("text").SetText(p.title)

	navMap := ncx.CreateElement("navMap")
	playOrder := 0
	buildNCXNavPoints(navMap, p.nodes, p.ncxPath, &playOrder)

	return writeXMLToZip(zw, p.ncxPath, doc)
}

func buildNCXNavPoints(parent *etree.Element, nodes []*toc.Node, from string, playOrder *int) {
	for _, n := range nodes {
		*playOrder++
		navPoint := parent.CreateElement("navPoint")
		navPoint.CreateAttr("id", n.ID)
		navPoint.CreateAttr("playOrder", strconv.Itoa(*playOrder))

		navLabel := navPoint.CreateElement("navLabel")
		navLabel.CreateElement("text").SetText(n.Title)

		navContent := navPoint.CreateElement("content")
		navContent.CreateAttr("src", reference(from, n.Href))

		buildNCXNavPoints(navPoint, n.Children, from, playOrder)
	}
}

func writeNav(zw *zip.Writer, p *pkg) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.CreateDirective("DOCTYPE html")

	html := doc.CreateElement("html")
	html.CreateAttr("xmlns", "http://www.w3.org/1999/xhtml")
	html.CreateAttr("xmlns:epub", "http://www.idpf.org/2007/ops")
	if p.language != "und" {
		html.CreateAttr("lang", p.language)
		html.CreateAttr("xml:lang", p.language)
	}

	head := html.CreateElement("head")
	head.CreateElement("meta").CreateAttr("charset", "utf-8")
	head.CreateElement("title").SetText(p.title)

	body := html.CreateElement("body")

	nav := body.CreateElement("nav")
	nav.CreateAttr("epub:type", "toc")
	nav.CreateAttr("id", "toc")
	nav.CreateAttr("role", "doc-toc")
	nav.CreateElement("h1").SetText(p.title)

	buildNavOL(nav, p.nodes, p.navPath)

	return writeXMLToZip(zw, p.navPath, doc)
}

func buildNavOL(parent *etree.Element, nodes []*toc.Node, from string) {
	if len(nodes) == 0 {
		return
	}
	ol := parent.CreateElement("ol")
	for _, n := range nodes {
		li := ol.CreateElement("li")
		a := li.CreateElement("a")
		a.CreateAttr("href", reference(from, n.Href))
		a.SetText(n.Title)
		buildNavOL(li, n.Children, from)
	}
}
