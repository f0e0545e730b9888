package split

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/beevik/etree"
	fixzip "github.com/hidez8891/zip"
	"github.com/klauspost/compress/flate"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"esplit/archive"
	"esplit/epub"
	"esplit/toc"
)

// Assemble produces book for the section described by span and writes it to
// output. Work files are created in workDir and removed before returning.
func Assemble(book *epub.Book, entries []toc.Entry, span toc.Span, output, workDir string, opts Options, log *zap.Logger) error {
	p, err := plan(book, entries, span, opts, log)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(workDir, "section-*.epub")
	if err != nil {
		return fmt.Errorf("unable to create work file: %w", err)
	}
	scratch := tmp.Name()
	// clean temporary file
	defer os.Remove(scratch)

	pristine, err := writeScratch(tmp, book, p, opts, log)
	if err != nil {
		return fmt.Errorf("unable to write section %q: %w", p.title, err)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}
	if err := merge(scratch, book, pristine, output, opts.FixZip); err != nil {
		return fmt.Errorf("unable to write section %q: %w", p.title, err)
	}

	if opts.Verify {
		if err := verify(output, book, p); err != nil {
			return err
		}
	}
	log.Debug("Section assembled", zap.String("title", p.title), zap.String("output", output),
		zap.Int("documents", len(p.documents)), zap.Int("resources", len(p.resources)))
	return nil
}

// writeScratch serializes the whole package. It returns canonical paths of
// documents which should be taken from source archive verbatim.
func writeScratch(out *os.File, book *epub.Book, p *pkg, opts Options, log *zap.Logger) (map[string]bool, error) {
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	level := opts.CompressionLevel
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})

	if err := writeMimetype(zw); err != nil {
		return nil, fmt.Errorf("unable to write mimetype: %w", err)
	}
	if err := writeContainer(zw, p.opfPath); err != nil {
		return nil, fmt.Errorf("unable to write container: %w", err)
	}
	if err := writeOPF(zw, p, time.Now()); err != nil {
		return nil, fmt.Errorf("unable to write OPF: %w", err)
	}
	if err := writeNCX(zw, p); err != nil {
		return nil, fmt.Errorf("unable to write NCX: %w", err)
	}
	if err := writeNav(zw, p); err != nil {
		return nil, fmt.Errorf("unable to write NAV: %w", err)
	}

	for _, f := range p.resources {
		data, err := book.Read(f.path)
		if err != nil {
			return nil, fmt.Errorf("unable to read resource: %w", err)
		}
		if err := writeDataToZip(zw, f.path, data); err != nil {
			return nil, fmt.Errorf("unable to write resource %s: %w", f.path, err)
		}
	}

	pristine := make(map[string]bool)
	for _, f := range p.documents {
		data, err := book.Read(f.path)
		if err != nil {
			return nil, fmt.Errorf("unable to read document: %w", err)
		}
		// names decoded from legacy code page cannot be matched to source
		// entries, such documents keep their bytes here
		if raw, _ := book.RawName(f.path); raw == f.path {
			pristine[f.path] = true
			if clean, err := reserialize(data); err == nil {
				data = clean
			} else {
				log.Debug("Unable to parse document, storing it as is", zap.String("path", f.path), zap.Error(err))
			}
		}
		if err := writeDataToZip(zw, f.path, data); err != nil {
			return nil, fmt.Errorf("unable to write document %s: %w", f.path, err)
		}
	}

	// make sure buffers are flushed before continuing
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("unable to close work archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("unable to finalize work file: %w", err)
	}
	return pristine, nil
}

func reserialize(data []byte) ([]byte, error) {
	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{
		CharsetReader: charset.NewReaderLabel,
		Permissive:    true,
	}
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailure, err)
	}
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// merge copies work archive into output entry by entry without
// recompression. Documents listed in pristine are copied from source archive
// instead, so their content is exactly what source book had.
func merge(scratch string, book *epub.Book, pristine map[string]bool, output string, fixZip bool) (err error) {
	src, err := fixzip.OpenReader(book.Path)
	if err != nil {
		return fmt.Errorf("unable to read archive file (%s): %w", book.Path, err)
	}
	defer src.Close()

	originals := make(map[string]*fixzip.File, len(pristine))
	for _, f := range src.File {
		if pristine[f.Name] && originals[f.Name] == nil {
			originals[f.Name] = f
		}
	}

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("unable to create target file (%s): %w", output, err)
	}
	// never leave partially written book behind
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(output)
		}
	}()

	w := fixzip.NewWriter(out)
	err = archive.Walk(scratch, "", func(_ string, file *fixzip.File) error {
		if orig, ok := originals[file.Name]; ok {
			file = orig
		}
		if fixZip {
			// unset data descriptor flag.
			file.Flags &= ^fixzip.FlagDataDescriptor
		}
		// copy zip entry
		if err := w.CopyFile(file); err != nil {
			return fmt.Errorf("unable to write target file (%s): %w", output, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("unable to close target file (%s): %w", output, err)
	}
	return out.Close()
}

// verify compares documents of produced book with source ones.
func verify(output string, book *epub.Book, p *pkg) error {
	r, err := zip.OpenReader(output)
	if err != nil {
		return fmt.Errorf("unable to verify %s: %w", output, err)
	}
	defer r.Close()

	produced := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		produced[f.Name] = f
	}
	for _, d := range p.documents {
		f, ok := produced[d.path]
		if !ok {
			return fmt.Errorf("verification failed, %s: %w", d.path, ErrNotFound)
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("unable to verify %s: %w", d.path, err)
		}
		got, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("unable to verify %s: %w", d.path, err)
		}
		want, err := book.Read(d.path)
		if err != nil {
			return err
		}
		if blake3.Sum256(got) != blake3.Sum256(want) {
			return fmt.Errorf("verification failed, document %s differs from source", d.path)
		}
	}
	return nil
}
