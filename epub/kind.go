package epub

import (
	"path"
	"strings"

	"github.com/h2non/filetype"
)

// Kind is rough classification of archive items, it decides how item is
// treated when book is split.
type Kind int

const (
	KindOther Kind = iota
	KindDocument
	KindImage
	KindStyle
	KindFont
	KindNavigation
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindImage:
		return "image"
	case KindStyle:
		return "style"
	case KindFont:
		return "font"
	case KindNavigation:
		return "navigation"
	default:
		return "other"
	}
}

var fontMediaTypes = map[string]bool{
	"application/vnd.ms-opentype":   true,
	"application/font-woff":         true,
	"application/font-sfnt":         true,
	"application/x-font-ttf":        true,
	"application/x-font-truetype":   true,
	"application/x-font-opentype":   true,
	"application/x-font-otf":        true,
	"application/font-woff2":        true,
	"application/x-font-woff":       true,
	"application/vnd.ms-fontobject": true,
}

// classify decides item kind from declared media type, falling back to file
// extension and content sniffing when media type is missing or generic.
func classify(mediaType, name string, data []byte) Kind {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	switch {
	case mt == "application/xhtml+xml" || mt == "text/html" || mt == "application/x-dtbook+xml":
		return KindDocument
	case mt == "application/x-dtbncx+xml":
		return KindNavigation
	case mt == "text/css":
		return KindStyle
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case strings.HasPrefix(mt, "font/") || fontMediaTypes[mt]:
		return KindFont
	}

	switch strings.ToLower(path.Ext(name)) {
	case ".xhtml", ".html", ".htm":
		return KindDocument
	case ".ncx":
		return KindNavigation
	case ".css":
		return KindStyle
	}

	switch {
	case filetype.IsImage(data):
		return KindImage
	case filetype.IsFont(data):
		return KindFont
	}
	return KindOther
}

// sniffMediaType returns media type guessed from content, or fallback.
func sniffMediaType(data []byte, fallback string) string {
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	return fallback
}
