package epub

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"esplit/href"
	"esplit/toc"
)

// books are often produced by tools which use HTML named entities in XML
var htmlEntities = xml.HTMLEntity

// parseTOC reads contents from NCX when present, otherwise from navigation
// document. Problems are logged, book without contents is still usable.
func (b *Book) parseTOC(log *zap.Logger) {
	if p := b.ncxPath(); len(p) > 0 {
		nodes, err := b.parseNCX(p)
		if err == nil && len(nodes) > 0 {
			b.TOC, b.TOCSource = nodes, "ncx"
			return
		}
		if err != nil {
			log.Warn("Unable to parse NCX", zap.String("path", p), zap.Error(err))
		}
	}
	if p := b.navPath(); len(p) > 0 {
		nodes, err := b.parseNav(p)
		if err == nil && len(nodes) > 0 {
			b.TOC, b.TOCSource = nodes, "nav"
			return
		}
		if err != nil {
			log.Warn("Unable to parse navigation document", zap.String("path", p), zap.Error(err))
		}
	}
	log.Debug("Book has no table of contents")
}

func (b *Book) ncxPath() string {
	if it, ok := b.byID[b.ncxID]; ok && len(b.ncxID) > 0 {
		return it.Path
	}
	for _, it := range b.items {
		if it.Kind == KindNavigation {
			return it.Path
		}
	}
	return ""
}

func (b *Book) navPath() string {
	for _, it := range b.items {
		for _, prop := range strings.Fields(it.Properties) {
			if prop == "nav" {
				return it.Path
			}
		}
	}
	return ""
}

func (b *Book) parseNCX(name string) ([]toc.Source, error) {
	doc, err := b.readXML(name)
	if err != nil {
		return nil, err
	}
	root := doc.SelectElement("ncx")
	if root == nil {
		return nil, fmt.Errorf("%s: ncx element not found", name)
	}
	navMap := root.SelectElement("navMap")
	if navMap == nil {
		return nil, fmt.Errorf("%s: navMap element not found", name)
	}
	return convertNavPoints(navMap.SelectElements("navPoint"), name), nil
}

func convertNavPoints(points []*etree.Element, base string) []toc.Source {
	var nodes []toc.Source
	for _, np := range points {
		var node toc.Source
		if label := np.FindElement("navLabel/text"); label != nil {
			node.Title = collapseSpace(label.Text())
		}
		if content := np.SelectElement("content"); content != nil {
			node.Href = href.Canonicalize(content.SelectAttrValue("src", ""), base)
		}
		node.Children = convertNavPoints(np.SelectElements("navPoint"), base)
		nodes = append(nodes, node)
	}
	return nodes
}

func (b *Book) parseNav(name string) ([]toc.Source, error) {
	data, err := b.Read(name)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", name, err)
	}

	var nav *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if nav != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "nav" && hasToken(attr(n, "epub:type"), "toc") {
			nav = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	if nav == nil {
		return nil, fmt.Errorf("%s: toc navigation not found", name)
	}
	for c := nav.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "ol" {
			return convertList(c, name), nil
		}
	}
	return nil, nil
}

func convertList(ol *html.Node, base string) []toc.Source {
	var nodes []toc.Source
	for li := ol.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}
		var node toc.Source
		anchored := false
		for c := li.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.Data {
			case "a":
				if !anchored {
					anchored = true
					node.Href = href.Canonicalize(attr(c, "href"), base)
					node.Title = collapseSpace(textContent(c))
				}
			case "span":
				if len(node.Title) == 0 {
					node.Title = collapseSpace(textContent(c))
				}
			case "ol":
				node.Children = convertList(c, base)
			}
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasToken(list, token string) bool {
	for _, t := range strings.Fields(list) {
		if t == token {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
