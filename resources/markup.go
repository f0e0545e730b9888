package resources

import (
	"bytes"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"esplit/css"
)

// attributes which may point to archive resources
var referenceAttrs = map[string]bool{
	"src":        true,
	"href":       true,
	"xlink:href": true,
	"poster":     true,
}

// DocumentReferences returns raw references found in document markup in order
// of appearance: resource attributes, inline style attributes and style
// blocks. Markup errors are ignored, whatever was tokenized before is kept.
func DocumentReferences(data []byte) []string {
	var refs []string
	addCSS := func(text []byte) {
		found, _ := css.References(text)
		for _, r := range found {
			refs = append(refs, r.URL)
		}
	}

	z := html.NewTokenizer(bytes.NewReader(data))
	inStyle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return refs
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := z.TagName()
			inStyle = atom.Lookup(tn) == atom.Style
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				switch k := string(key); {
				case k == "style":
					addCSS(val)
				case referenceAttrs[k] && len(bytes.TrimSpace(val)) > 0:
					refs = append(refs, string(val))
				}
			}
		case html.TextToken:
			if inStyle {
				addCSS(z.Text())
			}
		case html.EndTagToken:
			inStyle = false
		}
	}
}

// FirstImage returns raw reference of the first img element or svg image
// element in document, "" when there is none.
func FirstImage(data []byte) string {
	z := html.NewTokenizer(bytes.NewReader(data))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := z.TagName()
			a := atom.Lookup(tn)
			if a != atom.Img && a != atom.Image {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				k := string(key)
				if (a == atom.Img && k == "src") || (a == atom.Image && (k == "href" || k == "xlink:href")) {
					if len(val) > 0 {
						return string(val)
					}
				}
			}
		}
	}
}
