package config

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"esplit/misc"
)

type ReporterConfig struct {
	Destination string `yaml:"destination" sanitize:"path_clean,assure_dir_exists_for_file" validate:"required,filepath"`
}

// Prepare creates initialized empty reporter.
func (conf *ReporterConfig) Prepare() (*Report, error) {
	f, err := os.Create(conf.Destination)
	if err != nil {
		if f, err = os.CreateTemp("", misc.GetAppName()+"-report.*.zip"); err != nil {
			return nil, fmt.Errorf("unable to create report: %w", err)
		}
	}
	dir, err := os.MkdirTemp("", misc.GetAppName()+"-r-")
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to create report work directory: %w", err)
	}
	return &Report{entries: make(map[string]entry), file: f, workDir: dir}, nil
}

type entry struct {
	source string // file entry was taken from, empty for generated data
	path   string // file read when report is finalized
	stamp  time.Time
	data   []byte
}

// Section describes a book produced from a single contents section.
type Section struct {
	Number int // 1 based contents entry number
	Title  string
	Output string
	// Tree is rebuilt contents of produced book.
	Tree string
}

// Report accumulates information necessary to prepare full debug report.
// Sections may be split in parallel, so all methods are safe for concurrent use.
type Report struct {
	mu      sync.Mutex
	entries map[string]entry
	file    *os.File
	// snapshots of produced books, removed on Close
	workDir string
}

// Close finalizes debug report.
func (r *Report) Close() error {
	if r == nil {
		// no report has been requested
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	defer func() {
		r.file.Close()
		r.file = nil
		if len(r.workDir) > 0 {
			os.RemoveAll(r.workDir)
		}
	}()
	return r.finalize()
}

// Name returns name of underlying file.
func (r *Report) Name() string {
	if r == nil || r.file == nil {
		return ""
	}
	if n, err := filepath.Abs(r.file.Name()); err == nil {
		return n
	}
	return r.file.Name()
}

// Store adds file which is read when report is finalized, logs are stored
// this way.
func (r *Report) Store(name, file string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, exists := r.entries[name]; exists && old.source != file {
		panic(fmt.Sprintf("Attempt to overwrite file in the report for [%s]: was %s, now %s", name, old.source, file))
	}
	e := entry{source: file, path: file}
	if p, err := filepath.Abs(file); err == nil {
		e.path = p
	}
	r.entries[name] = e
}

// StoreData adds data as a file under requested name.
func (r *Report) StoreData(name string, data []byte) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		panic(fmt.Sprintf("Attempt to overwrite data in the report for [%s]", name))
	}
	r.entries[name] = entry{data: data, stamp: time.Now()}
}

// StoreContents adds flattened contents listing of the source book.
func (r *Report) StoreContents(book, listing string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.add(path.Join(bookDir(book), "contents.txt"), entry{source: book, data: []byte(listing), stamp: time.Now()})
}

// StoreSection adds description of the produced book together with snapshot
// of its file taken at the time of a call.
func (r *Report) StoreSection(book string, s Section) error {
	if r == nil {
		return nil
	}

	snapshot, err := r.snapshot(s.Output)
	if err != nil {
		return fmt.Errorf("unable to store section %q: %w", s.Title, err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Section: %d. %s\nOutput: %s\n\n%s", s.Number, s.Title, s.Output, s.Tree)

	r.mu.Lock()
	defer r.mu.Unlock()

	base := path.Join(bookDir(book), "sections", fmt.Sprintf("%03d", s.Number))
	stamp := time.Now()
	r.add(base+".txt", entry{source: book, data: buf.Bytes(), stamp: stamp})
	r.add(base+filepath.Ext(s.Output), entry{source: s.Output, path: snapshot, stamp: stamp})
	return nil
}

// add stores entry, name is versioned with timestamp when already taken.
func (r *Report) add(name string, e entry) {
	if _, exists := r.entries[name]; exists {
		ext := path.Ext(name)
		name = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), e.stamp.UnixNano(), ext)
	}
	r.entries[name] = e
}

// snapshot copies file into report work directory, so later changes do not
// affect the report.
func (r *Report) snapshot(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", src)
	}

	out, err := os.CreateTemp(r.workDir, "*-"+filepath.Base(src))
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	if err := os.Chtimes(out.Name(), info.ModTime(), info.ModTime()); err != nil {
		return "", err
	}
	return out.Name(), nil
}

// bookDir names report directory of the source book. Books in different
// directories may share base name, so path hash is added.
func bookDir(book string) string {
	if abs, err := filepath.Abs(book); err == nil {
		book = abs
	}
	sum := blake3.Sum256([]byte(book))
	return fmt.Sprintf("books/%s-%x", filepath.Base(book), sum[:4])
}

// finalize creates the final archive (report) with all previously stored items.
func (r *Report) finalize() error {
	arc := zip.NewWriter(r.file)

	names, manifest := prepareManifest(r.entries)
	if err := saveFile(arc, "MANIFEST", time.Now(), manifest); err != nil {
		return err
	}

	// in the same order as in manifest
	for _, name := range names {
		e := r.entries[name]
		if e.data != nil {
			if err := saveFile(arc, name, e.stamp, bytes.NewReader(e.data)); err != nil {
				return err
			}
			continue
		}
		if err := saveStored(arc, name, e.path); err != nil {
			return err
		}
	}
	return arc.Close()
}

// saveStored puts file into the archive, absent files are ignored since logs
// may never be created.
func saveStored(arc *zip.Writer, name, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	return saveFile(arc, name, info.ModTime(), f)
}

func prepareManifest(entries map[string]entry) ([]string, *bytes.Buffer) {
	now := time.Now()

	buf := new(bytes.Buffer)
	if len(entries) == 0 {
		return nil, buf
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		e := entries[k]
		if e.stamp.IsZero() {
			e.stamp = now
		}
		source := e.source
		if len(source) == 0 {
			source = "-"
		}
		fmt.Fprintf(buf, "%s\t%s\t%s\n", e.stamp.UTC().Format(time.UnixDate), k, source)
	}
	return keys, buf
}

func saveFile(dst *zip.Writer, name string, t time.Time, src io.Reader) error {
	w, err := dst.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: t})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
