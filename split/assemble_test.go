package split

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/text/encoding/charmap"

	"esplit/epub"
	"esplit/epub/epubtest"
	"esplit/toc"
)

func setupTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller()))
}

func openBook(t *testing.T, files []epubtest.File) (*epub.Book, []toc.Entry) {
	t.Helper()
	name := epubtest.Write(t, t.TempDir(), "source.epub", files)
	book, err := epub.Open(name, nil, setupTestLogger(t))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	return book, toc.Flatten(book.TOC)
}

type archiveContent struct {
	names []string
	files map[string]*zip.File
	data  map[string][]byte
}

func readArchive(t *testing.T, name string) *archiveContent {
	t.Helper()
	r, err := zip.OpenReader(name)
	if err != nil {
		t.Fatalf("unable to open produced archive: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	c := &archiveContent{files: make(map[string]*zip.File), data: make(map[string][]byte)}
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		c.names = append(c.names, f.Name)
		c.files[f.Name] = f
		c.data[f.Name] = data
	}
	return c
}

func (c *archiveContent) opf(t *testing.T) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(c.data["OEBPS/content.opf"]); err != nil {
		t.Fatalf("parse OPF: %v", err)
	}
	pkg := doc.SelectElement("package")
	if pkg == nil {
		t.Fatal("OPF has no package element")
	}
	return pkg
}

func spineOf(pkg *etree.Element) []string {
	var ids []string
	for _, ref := range pkg.SelectElement("spine").SelectElements("itemref") {
		ids = append(ids, ref.SelectAttrValue("idref", ""))
	}
	return ids
}

func assemble(t *testing.T, book *epub.Book, entries []toc.Entry, index int, opts Options) *archiveContent {
	t.Helper()
	span, err := toc.SpanOf(entries, index)
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "out.epub")
	if err := Assemble(book, entries, span, out, t.TempDir(), opts, setupTestLogger(t)); err != nil {
		t.Fatalf("Assemble() error: %v", err)
	}
	return readArchive(t, out)
}

func TestAssemble_ThreeChapters(t *testing.T) {
	book, entries := openBook(t, epubtest.Sample())

	tests := []struct {
		index   int
		title   string
		present []string
		absent  []string
		nav     []string
	}{
		{
			index: 0,
			title: "Chapter 1",
			present: []string{
				"OEBPS/Text/ch1.xhtml", "OEBPS/Styles/main.css", "OEBPS/Styles/base.css",
				"OEBPS/Images/cover.jpg", "OEBPS/Images/bg.png", "OEBPS/Fonts/serif.ttf",
			},
			absent: []string{"OEBPS/Text/ch2.xhtml", "OEBPS/Text/ch3.xhtml", "OEBPS/Images/fig2.png", "OEBPS/Images/unused.png"},
			nav:    []string{"Chapter 1"},
		},
		{
			index:   1,
			title:   "Chapter 2",
			present: []string{"OEBPS/Text/ch2.xhtml", "OEBPS/Images/fig2.png", "OEBPS/Styles/main.css"},
			absent:  []string{"OEBPS/Text/ch1.xhtml", "OEBPS/Images/cover.jpg", "OEBPS/Images/unused.png"},
			nav:     []string{"Chapter 2"},
		},
		{
			index:   2,
			title:   "Chapter 3",
			present: []string{"OEBPS/Text/ch3.xhtml", "OEBPS/Styles/base.css"},
			absent:  []string{"OEBPS/Text/ch1.xhtml", "OEBPS/Text/ch2.xhtml", "OEBPS/Images/fig2.png"},
			nav:     []string{"Chapter 3", "Section 3.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			c := assemble(t, book, entries, tt.index, Options{CompressionLevel: -1, FixZip: true})

			if c.names[0] != "mimetype" || c.files["mimetype"].Method != zip.Store {
				t.Errorf("mimetype must be first stored entry, got %v", c.names[0])
			}
			if string(c.data["mimetype"]) != "application/epub+zip" {
				t.Errorf("mimetype = %q", c.data["mimetype"])
			}
			for _, n := range append([]string{"META-INF/container.xml", "OEBPS/content.opf", "OEBPS/toc.ncx", "OEBPS/nav.xhtml"}, tt.present...) {
				if _, ok := c.files[n]; !ok {
					t.Errorf("%s is missing", n)
				}
			}
			for _, n := range tt.absent {
				if _, ok := c.files[n]; ok {
					t.Errorf("%s must not be included", n)
				}
			}

			pkg := c.opf(t)
			if got := pkg.FindElement("metadata/title").Text(); got != tt.title {
				t.Errorf("title = %q, want %q", got, tt.title)
			}
			if got := len(pkg.FindElements("metadata/creator")); got != 2 {
				t.Errorf("%d creators, want 2", got)
			}
			if got := pkg.FindElement("metadata/language").Text(); got != "en" {
				t.Errorf("language = %q", got)
			}
			if spine := spineOf(pkg); len(spine) != 1 {
				t.Errorf("spine = %v, want single document", spine)
			}

			ncx := etree.NewDocument()
			if err := ncx.ReadFromBytes(c.data["OEBPS/toc.ncx"]); err != nil {
				t.Fatal(err)
			}
			var labels []string
			for _, el := range ncx.FindElements("//navLabel/text") {
				labels = append(labels, el.Text())
			}
			if !slices.Equal(labels, tt.nav) {
				t.Errorf("NCX labels = %v, want %v", labels, tt.nav)
			}
			if !strings.Contains(string(c.data["OEBPS/nav.xhtml"]), `epub:type="toc"`) {
				t.Error("navigation document has no toc nav")
			}
		})
	}
}

func TestAssemble_PreservesDocumentBytes(t *testing.T) {
	// single quoted attributes would not survive re-serialization
	chapter := strings.ReplaceAll(epubtest.Chapter1, `"`, `'`)
	files := epubtest.Replace(epubtest.Sample(), "OEBPS/Text/ch1.xhtml", []byte(chapter))
	book, entries := openBook(t, files)

	c := assemble(t, book, entries, 0, Options{CompressionLevel: 9, FixZip: true})

	if got := string(c.data["OEBPS/Text/ch1.xhtml"]); got != chapter {
		t.Errorf("document changed:\n%s\nwant\n%s", got, chapter)
	}

	src := readArchive(t, book.Path)
	if c.files["OEBPS/Text/ch1.xhtml"].CRC32 != src.files["OEBPS/Text/ch1.xhtml"].CRC32 {
		t.Error("document checksum differs from source")
	}
	// resources are carried with their content intact as well
	for _, n := range []string{"OEBPS/Images/cover.jpg", "OEBPS/Styles/main.css"} {
		if string(c.data[n]) != string(src.data[n]) {
			t.Errorf("%s content differs from source", n)
		}
	}
}

func TestAssemble_Navigation(t *testing.T) {
	book, entries := openBook(t, epubtest.Sample())

	tests := []struct {
		name  string
		opts  Options
		spine []string
	}{
		{"not added", Options{}, []string{"ch3"}},
		{"first", Options{AddNavigation: true, NavigationIndex: 0}, []string{"nav", "ch3"}},
		{"clamped", Options{AddNavigation: true, NavigationIndex: 5}, []string{"ch3", "nav"}},
		{"negative clamped", Options{AddNavigation: true, NavigationIndex: -3}, []string{"nav", "ch3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.CompressionLevel = -1
			c := assemble(t, book, entries, 2, tt.opts)
			if got := spineOf(c.opf(t)); !slices.Equal(got, tt.spine) {
				t.Errorf("spine = %v, want %v", got, tt.spine)
			}
		})
	}
}

func TestAssemble_Cover(t *testing.T) {
	book, entries := openBook(t, epubtest.Sample())

	pkg := assemble(t, book, entries, 0, Options{CompressionLevel: -1}).opf(t)
	meta := pkg.FindElement("metadata/meta[@name='cover']")
	if meta == nil || meta.SelectAttrValue("content", "") != "cover" {
		t.Fatalf("cover meta is missing or wrong: %v", meta)
	}
	item := pkg.FindElement("manifest/item[@id='cover']")
	if item == nil || item.SelectAttrValue("properties", "") != "cover-image" {
		t.Errorf("cover item is not marked: %v", item)
	}
	if href := item.SelectAttrValue("href", ""); href != "Images/cover.jpg" {
		t.Errorf("cover href = %q", href)
	}

	pkg = assemble(t, book, entries, 2, Options{CompressionLevel: -1}).opf(t)
	if pkg.FindElement("metadata/meta[@name='cover']") != nil {
		t.Error("section without images must not declare cover")
	}
}

func TestPlan_Identifier(t *testing.T) {
	log := setupTestLogger(t)
	book, entries := openBook(t, epubtest.Sample())

	ids := make(map[string]bool)
	for i := range 3 {
		span, _ := toc.SpanOf(entries, i)
		p1, err := plan(book, entries, span, Options{}, log)
		if err != nil {
			t.Fatal(err)
		}
		p2, _ := plan(book, entries, span, Options{}, log)
		if p1.identifier != p2.identifier {
			t.Errorf("identifier is not stable: %s != %s", p1.identifier, p2.identifier)
		}
		if !strings.HasPrefix(p1.identifier, "urn:uuid:") || p1.identifier == epubtest.Identifier {
			t.Errorf("unexpected identifier %s", p1.identifier)
		}
		ids[p1.identifier] = true
	}
	if len(ids) != 3 {
		t.Errorf("sections share identifiers: %v", ids)
	}
}

func TestPlan_DefaultLanguage(t *testing.T) {
	opf := strings.Replace(string(epubtest.Sample()[2].Data), "<dc:language>en</dc:language>", "", 1)
	book, entries := openBook(t, epubtest.Replace(epubtest.Sample(), "OEBPS/content.opf", []byte(opf)))

	span, _ := toc.SpanOf(entries, 0)
	p, err := plan(book, entries, span, Options{}, setupTestLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if p.language != "und" {
		t.Errorf("language = %q, want und", p.language)
	}
}

func TestAssemble_MissingDocument(t *testing.T) {
	files := epubtest.Remove(epubtest.Sample(), "OEBPS/Text/ch2.xhtml")
	book, entries := openBook(t, files)

	span, _ := toc.SpanOf(entries, 1)
	out := filepath.Join(t.TempDir(), "out.epub")
	err := Assemble(book, entries, span, out, t.TempDir(), Options{}, setupTestLogger(t))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Assemble() error = %v, want ErrNotFound", err)
	}
}

func TestAssemble_WorkFilesRemoved(t *testing.T) {
	book, entries := openBook(t, epubtest.Sample())
	work := t.TempDir()

	span, _ := toc.SpanOf(entries, 0)
	out := filepath.Join(t.TempDir(), "out.epub")
	if err := Assemble(book, entries, span, out, work, Options{CompressionLevel: -1, Verify: true}, setupTestLogger(t)); err != nil {
		t.Fatal(err)
	}
	left, _ := filepath.Glob(filepath.Join(work, "*"))
	if len(left) != 0 {
		t.Errorf("work files left behind: %v", left)
	}
}

func TestAssemble_DecodedNames(t *testing.T) {
	raw, err := charmap.CodePage866.NewEncoder().String("OEBPS/Text/глава.xhtml")
	if err != nil {
		t.Fatal(err)
	}
	ncx := strings.Replace(string(epubtest.Sample()[3].Data), "</navMap>", `<navPoint id="np5" playOrder="5">
      <navLabel><text>Глава</text></navLabel>
      <content src="Text/глава.xhtml"/>
    </navPoint>
  </navMap>`, 1)
	files := epubtest.Replace(epubtest.Sample(), "OEBPS/toc.ncx", []byte(ncx))
	files = append(files, epubtest.File{Name: raw, Data: []byte(epubtest.Chapter3), NonUTF8: true})

	name := epubtest.Write(t, t.TempDir(), "cp.epub", files)
	book, err := epub.Open(name, charmap.CodePage866, setupTestLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	entries := toc.Flatten(book.TOC)

	c := assemble(t, book, entries, 4, Options{CompressionLevel: -1, FixZip: true, Verify: true})
	if got := string(c.data["OEBPS/Text/глава.xhtml"]); got != epubtest.Chapter3 {
		t.Errorf("decoded document content = %q", got)
	}
}

// withPart appends contents entry "Part" pointing to Text/part.xhtml with
// given children, manifest items and spine references to the sample book.
func withPart(children, items, refs string, extra ...epubtest.File) []epubtest.File {
	sample := epubtest.Sample()
	opf := strings.Replace(string(sample[2].Data), "</manifest>", items+"\n  </manifest>", 1)
	opf = strings.Replace(opf, "</spine>", refs+"\n  </spine>", 1)
	ncx := strings.Replace(string(sample[3].Data), "</navMap>", `<navPoint id="np5" playOrder="5">
      <navLabel><text>Part</text></navLabel>
      <content src="Text/part.xhtml"/>`+children+`
    </navPoint>
  </navMap>`, 1)

	files := epubtest.Replace(sample, "OEBPS/content.opf", []byte(opf))
	files = epubtest.Replace(files, "OEBPS/toc.ncx", []byte(ncx))
	for _, f := range extra {
		files = epubtest.Replace(files, f.Name, f.Data)
	}
	return files
}

func TestAssemble_ImageContentsTarget(t *testing.T) {
	part := strings.Replace(epubtest.Chapter3, `<p>Third chapter.</p>`, `<p><img src="../Images/plate.svg" alt=""/></p>`, 1)
	files := withPart(`
      <navPoint id="np6" playOrder="6">
        <navLabel><text>Plate</text></navLabel>
        <content src="Images/plate.svg"/>
      </navPoint>`,
		`<item id="part" href="Text/part.xhtml" media-type="application/xhtml+xml"/>
    <item id="plate" href="Images/plate.svg" media-type="image/svg+xml"/>`,
		`<itemref idref="part"/>`,
		epubtest.File{Name: "OEBPS/Text/part.xhtml", Data: []byte(part)},
		epubtest.File{Name: "OEBPS/Images/plate.svg", Data: []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`)},
	)
	book, entries := openBook(t, files)

	c := assemble(t, book, entries, 4, Options{CompressionLevel: -1, FixZip: true, Verify: true})

	seen := make(map[string]bool)
	for _, n := range c.names {
		if seen[n] {
			t.Errorf("archive entry %s is stored more than once", n)
		}
		seen[n] = true
	}
	if !seen["OEBPS/Images/plate.svg"] {
		t.Error("image pointed to by contents is missing")
	}

	pkg := c.opf(t)
	hrefs := make(map[string]bool)
	for _, item := range pkg.FindElements("manifest/item") {
		h := item.SelectAttrValue("href", "")
		if hrefs[h] {
			t.Errorf("manifest lists %s more than once", h)
		}
		hrefs[h] = true
	}
	if spine := spineOf(pkg); !slices.Equal(spine, []string{"part"}) {
		t.Errorf("spine = %v, want only part document", spine)
	}
}

func TestAssemble_SpineOrder(t *testing.T) {
	doc := func(name string) epubtest.File {
		return epubtest.File{Name: "OEBPS/Text/" + name, Data: []byte(epubtest.Chapter3)}
	}
	// contents list second document first, reading order does not
	files := withPart(`
      <navPoint id="np6" playOrder="6">
        <navLabel><text>Later</text></navLabel>
        <content src="Text/b.xhtml"/>
      </navPoint>
      <navPoint id="np7" playOrder="7">
        <navLabel><text>Earlier</text></navLabel>
        <content src="Text/a.xhtml"/>
      </navPoint>`,
		`<item id="part" href="Text/part.xhtml" media-type="application/xhtml+xml"/>
    <item id="a" href="Text/a.xhtml" media-type="application/xhtml+xml"/>
    <item id="b" href="Text/b.xhtml" media-type="application/xhtml+xml"/>`,
		`<itemref idref="part"/>
    <itemref idref="a"/>
    <itemref idref="b"/>`,
		doc("part.xhtml"), doc("a.xhtml"), doc("b.xhtml"),
	)
	book, entries := openBook(t, files)

	c := assemble(t, book, entries, 4, Options{CompressionLevel: -1})
	if got := spineOf(c.opf(t)); !slices.Equal(got, []string{"part", "a", "b"}) {
		t.Errorf("spine = %v, want source reading order", got)
	}
}

func TestReadingOrder(t *testing.T) {
	docs := []*file{{path: "x"}, {path: "c"}, {path: "a"}, {path: "y"}}
	var got []string
	for _, f := range readingOrder([]string{"a", "b", "c"}, docs) {
		got = append(got, f.path)
	}
	if want := []string{"a", "c", "x", "y"}; !slices.Equal(got, want) {
		t.Errorf("readingOrder() = %v, want %v", got, want)
	}
}

func TestMerge_FailureRemovesOutput(t *testing.T) {
	book, _ := openBook(t, epubtest.Sample())
	dir := t.TempDir()

	broken := epubtest.Write(t, dir, "broken.zip", []epubtest.File{
		{Name: "mimetype", Data: []byte("application/epub+zip"), Stored: true},
		{Name: "../escape.xhtml", Data: []byte("x")},
	})
	notZip := filepath.Join(dir, "not.zip")
	if err := os.WriteFile(notZip, []byte("not an archive"), 0644); err != nil {
		t.Fatal(err)
	}

	for name, scratch := range map[string]string{"copy interrupted": broken, "unreadable work file": notZip} {
		t.Run(name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "out.epub")
			if err := merge(scratch, book, nil, out, true); err == nil {
				t.Fatal("merge() must fail")
			}
			if _, err := os.Stat(out); !os.IsNotExist(err) {
				t.Errorf("partial output left behind: %v", err)
			}
		})
	}
}
