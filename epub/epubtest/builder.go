// Package epubtest builds small books for tests.
package epubtest

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

// File is a single archive entry.
type File struct {
	Name string
	Data []byte
	// Stored disables compression.
	Stored bool
	// NonUTF8 leaves name encoding flag unset.
	NonUTF8 bool
}

// Write creates archive name in dir and returns its full path.
func Write(t testing.TB, dir, name string, files []File) string {
	t.Helper()

	full := filepath.Join(dir, name)
	out, err := os.Create(full)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, f := range files {
		method := zip.Deflate
		if f.Stored {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: method, NonUTF8: f.NonUTF8})
		if err != nil {
			t.Fatalf("create entry %s: %v", f.Name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			t.Fatalf("write entry %s: %v", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return full
}

// Replace returns copy of files with entry name set to data, entry is
// appended when missing.
func Replace(files []File, name string, data []byte) []File {
	out := make([]File, 0, len(files)+1)
	found := false
	for _, f := range files {
		if f.Name == name {
			f.Data = data
			found = true
		}
		out = append(out, f)
	}
	if !found {
		out = append(out, File{Name: name, Data: data})
	}
	return out
}

// Remove returns copy of files without named entry.
func Remove(files []File, name string) []File {
	out := make([]File, 0, len(files))
	for _, f := range files {
		if f.Name != name {
			out = append(out, f)
		}
	}
	return out
}

// Identifier of the sample book.
const Identifier = "urn:uuid:6f1c1b52-3f7e-4d1a-9a37-0c3b1a2f4e11"

// Sample returns three chapter book. Chapter 3 has a subsection, main.css
// imports base.css which imports main.css back.
func Sample() []File {
	return []File{
		{Name: "mimetype", Data: []byte("application/epub+zip"), Stored: true},
		{Name: "META-INF/container.xml", Data: []byte(containerXML)},
		{Name: "OEBPS/content.opf", Data: []byte(packageXML)},
		{Name: "OEBPS/toc.ncx", Data: []byte(ncxXML)},
		{Name: "OEBPS/nav.xhtml", Data: []byte(navXHTML)},
		{Name: "OEBPS/Styles/main.css", Data: []byte(mainCSS)},
		{Name: "OEBPS/Styles/base.css", Data: []byte(baseCSS)},
		{Name: "OEBPS/Text/ch1.xhtml", Data: []byte(Chapter1)},
		{Name: "OEBPS/Text/ch2.xhtml", Data: []byte(Chapter2)},
		{Name: "OEBPS/Text/ch3.xhtml", Data: []byte(Chapter3)},
		{Name: "OEBPS/Images/cover.jpg", Data: []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00cover")},
		{Name: "OEBPS/Images/fig2.png", Data: []byte("\x89PNG\r\n\x1a\nfig2")},
		{Name: "OEBPS/Images/bg.png", Data: []byte("\x89PNG\r\n\x1a\nbg")},
		{Name: "OEBPS/Images/unused.png", Data: []byte("\x89PNG\r\n\x1a\nunused")},
		{Name: "OEBPS/Fonts/serif.ttf", Data: []byte("\x00\x01\x00\x00\x00font")},
	}
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const packageXML = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="BookId">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
    <dc:identifier id="isbn">978-0-00-000000-0</dc:identifier>
    <dc:identifier id="BookId">` + Identifier + `</dc:identifier>
    <dc:title>Sample Book</dc:title>
    <dc:language>en</dc:language>
    <dc:creator opf:role="aut">Jane Doe</dc:creator>
    <dc:creator>John Roe</dc:creator>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="main-css" href="Styles/main.css" media-type="text/css"/>
    <item id="base-css" href="Styles/base.css" media-type="text/css"/>
    <item id="ch1" href="Text/ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="Text/ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch3" href="Text/ch3.xhtml" media-type="application/xhtml+xml" properties="svg"/>
    <item id="cover" href="Images/cover.jpg" media-type="image/jpeg"/>
    <item id="fig2" href="Images/fig2.png" media-type="image/png"/>
    <item id="bg" href="Images/bg.png" media-type="image/png"/>
    <item id="unused" href="Images/unused.png" media-type="image/png"/>
    <item id="serif" href="Fonts/serif.ttf" media-type="application/x-font-ttf"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
    <itemref idref="ch3"/>
  </spine>
</package>`

const ncxXML = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head><meta name="dtb:uid" content="` + Identifier + `"/></head>
  <docTitle><text>Sample Book</text></docTitle>
  <navMap>
    <navPoint id="np1" playOrder="1">
      <navLabel><text>Chapter 1</text></navLabel>
      <content src="Text/ch1.xhtml"/>
    </navPoint>
    <navPoint id="np2" playOrder="2">
      <navLabel><text>Chapter 2</text></navLabel>
      <content src="Text/ch2.xhtml#start"/>
    </navPoint>
    <navPoint id="np3" playOrder="3">
      <navLabel><text>Chapter 3</text></navLabel>
      <content src="Text/ch3.xhtml"/>
      <navPoint id="np4" playOrder="4">
        <navLabel><text>Section 3.1</text></navLabel>
        <content src="Text/ch3.xhtml#s1"/>
      </navPoint>
    </navPoint>
  </navMap>
</ncx>`

const navXHTML = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Contents</title></head>
<body>
  <nav epub:type="toc" id="toc">
    <ol>
      <li><a href="Text/ch1.xhtml">Chapter 1</a></li>
      <li><a href="Text/ch2.xhtml#start">Chapter 2</a></li>
      <li><a href="Text/ch3.xhtml">Chapter 3</a>
        <ol><li><a href="Text/ch3.xhtml#s1">Section 3.1</a></li></ol>
      </li>
    </ol>
  </nav>
</body>
</html>`

const mainCSS = `@import "base.css";
body { background: url(../Images/bg.png) no-repeat; }
`

const baseCSS = `@import url("main.css");
@font-face { font-family: "Serif"; src: url('../Fonts/serif.ttf'); }
`

// Chapter documents of the sample book.
const (
	Chapter1 = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Chapter 1</title><link rel="stylesheet" type="text/css" href="../Styles/main.css"/></head>
<body><h1>Chapter 1</h1><p><img src="../Images/cover.jpg" alt="cover"/></p><p>First   chapter  text.</p></body>
</html>`

	Chapter2 = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Chapter 2</title><link rel="stylesheet" type="text/css" href="../Styles/main.css"/></head>
<body><h1 id="start">Chapter 2</h1><p><img src="../Images/fig2.png" alt=""/></p><p>Second chapter, <a href="ch1.xhtml">back</a>.</p></body>
</html>`

	Chapter3 = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Chapter 3</title><link rel="stylesheet" type="text/css" href="../Styles/main.css"/></head>
<body><h1>Chapter 3</h1><h2 id="s1">Section 3.1</h2><p>Third chapter.</p></body>
</html>`
)
