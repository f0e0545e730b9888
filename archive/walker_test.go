package archive

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	fixzip "github.com/hidez8891/zip"
)

func createTestArchive(t *testing.T, names ...string) string {
	t.Helper()

	zipPath := filepath.Join(t.TempDir(), "test.epub")
	zipFile, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("Failed to create zip file: %v", err)
	}
	defer zipFile.Close()

	w := zip.NewWriter(zipFile)
	for _, name := range names {
		method := zip.Deflate
		if name == "mimetype" {
			method = zip.Store
		}
		fw, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			t.Fatalf("Failed to create file %s in zip: %v", name, err)
		}
		if _, err := fw.Write([]byte("content of " + name)); err != nil {
			t.Fatalf("Failed to write content for %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
	return zipPath
}

func TestWalk(t *testing.T) {
	zipPath := createTestArchive(t,
		"mimetype",
		"META-INF/container.xml",
		"OEBPS/content.opf",
		"OEBPS/text/ch1.xhtml",
		"OEBPS/text/ch2.xhtml",
		"OEBPS/images/cover.jpg",
	)

	tests := []struct {
		name    string
		pattern string
		want    []string
	}{
		{"everything in stored order", "", []string{
			"mimetype", "META-INF/container.xml", "OEBPS/content.opf",
			"OEBPS/text/ch1.xhtml", "OEBPS/text/ch2.xhtml", "OEBPS/images/cover.jpg",
		}},
		{"text prefix", "OEBPS/text/", []string{"OEBPS/text/ch1.xhtml", "OEBPS/text/ch2.xhtml"}},
		{"no match", "nonexistent/", nil},
		{"case sensitive", "oebps/", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var visited []string
			err := Walk(zipPath, tt.pattern, func(archive string, file *fixzip.File) error {
				if archive != zipPath {
					t.Errorf("archive = %s, want %s", archive, zipPath)
				}
				visited = append(visited, file.Name)
				return nil
			})
			if err != nil {
				t.Fatalf("Walk() error = %v", err)
			}
			if !slices.Equal(visited, tt.want) {
				t.Errorf("visited %v, want %v", visited, tt.want)
			}
		})
	}
}

func TestWalk_EarlyTermination(t *testing.T) {
	zipPath := createTestArchive(t, "a.txt", "b.txt", "c.txt")

	var visited int
	stopErr := errors.New("stop walking")
	err := Walk(zipPath, "", func(archive string, file *fixzip.File) error {
		visited++
		if visited == 2 {
			return stopErr
		}
		return nil
	})

	if err != stopErr {
		t.Errorf("Walk() error = %v, want %v", err, stopErr)
	}
	if visited != 2 {
		t.Errorf("visited %d files, want 2 (early termination)", visited)
	}
}

func TestWalk_InvalidArchive(t *testing.T) {
	t.Run("nonexistent file", func(t *testing.T) {
		err := Walk("/nonexistent/file.zip", "", func(archive string, file *fixzip.File) error {
			return nil
		})
		if err == nil {
			t.Error("Expected error for nonexistent file")
		}
	})

	t.Run("invalid zip file", func(t *testing.T) {
		invalidZip := filepath.Join(t.TempDir(), "invalid.zip")
		if err := os.WriteFile(invalidZip, []byte("not a zip file"), 0644); err != nil {
			t.Fatalf("Failed to create invalid zip: %v", err)
		}
		err := Walk(invalidZip, "", func(archive string, file *fixzip.File) error {
			return nil
		})
		if err == nil {
			t.Error("Expected error for invalid zip file")
		}
	})

	t.Run("unsafe entry", func(t *testing.T) {
		zipPath := createTestArchive(t, "ok.txt", "../escape.txt")
		err := Walk(zipPath, "", func(archive string, file *fixzip.File) error {
			return nil
		})
		if err == nil {
			t.Error("Expected error for path traversal entry")
		}
	})
}

func TestWalk_RawCopy(t *testing.T) {
	zipPath := createTestArchive(t, "mimetype", "OEBPS/text/ch1.xhtml")

	outPath := filepath.Join(t.TempDir(), "copy.epub")
	out, err := os.Create(outPath)
	if err != nil {
		t.Fatal(err)
	}
	w := fixzip.NewWriter(out)
	err = Walk(zipPath, "", func(archive string, file *fixzip.File) error {
		file.Flags &= ^fixzip.FlagDataDescriptor
		return w.CopyFile(file)
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	out.Close()

	r, err := zip.OpenReader(outPath)
	if err != nil {
		t.Fatalf("copied archive is not readable: %v", err)
	}
	defer r.Close()

	if len(r.File) != 2 || r.File[0].Name != "mimetype" {
		t.Fatalf("unexpected copied entries")
	}
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Open(%s) error = %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("ReadAll(%s) error = %v", f.Name, err)
		}
		if string(data) != "content of "+f.Name {
			t.Errorf("%s content = %q", f.Name, data)
		}
	}
}

func TestIsSafePath(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"OEBPS/text/ch1.xhtml", true},
		{"mimetype", true},
		{"a..b/c", true},
		{"/etc/passwd", false},
		{`\windows\system32`, false},
		{"OEBPS/../../escape", false},
	}
	for _, tt := range tests {
		if got := IsSafePath(tt.name); got != tt.want {
			t.Errorf("IsSafePath(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
