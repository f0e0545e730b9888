package split

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/gosimple/slug"

	"esplit/config"
)

// NameValues are available for output name template expansion.
type NameValues struct {
	Title      string
	Number     int // 1 based position of section in contents
	Level      int
	BookTitle  string
	Authors    []string
	Language   string
	SourceFile string // source file name without extension
}

// OutputName turns section into relative output path. Without template
// section title is used. Expanded template may contain "/" for
// subdirectories, every path segment is cleaned separately.
func OutputName(tmpl string, v NameValues, ext string, transliterate bool) (string, error) {
	name := v.Title
	if len(tmpl) > 0 {
		t, err := template.New(config.OutputNameTemplateFieldName).Funcs(sprig.FuncMap()).Parse(tmpl)
		if err != nil {
			return "", fmt.Errorf("unable to parse template field %s: %w", config.OutputNameTemplateFieldName, err)
		}
		buf := new(bytes.Buffer)
		if err := t.Execute(buf, v); err != nil {
			return "", fmt.Errorf("unable to expand template field %s: %w", config.OutputNameTemplateFieldName, err)
		}
		name = buf.String()
	}

	var segments []string
	for seg := range strings.SplitSeq(strings.ReplaceAll(name, `\`, "/"), "/") {
		if len(strings.TrimSpace(seg)) == 0 {
			continue
		}
		if transliterate {
			seg = slug.Make(seg)
		}
		segments = append(segments, config.CleanFileName(seg))
	}
	if len(segments) == 0 {
		segments = append(segments, config.CleanFileName(""))
	}
	segments[len(segments)-1] += ext
	return filepath.Join(segments...), nil
}

// namer hands out output paths and keeps track of names already used in
// this run.
type namer struct {
	mu        sync.Mutex
	dir       string
	policy    string
	overwrite bool
	used      map[string]bool
	locks     map[string]*sync.Mutex
}

func newNamer(dir, policy string, overwrite bool) *namer {
	return &namer{dir: dir, policy: policy, overwrite: overwrite, used: make(map[string]bool), locks: make(map[string]*sync.Mutex)}
}

// claim returns full output path for name. Names repeated within a run get
// " (2)", " (3)" suffixes unless policy says otherwise. Existing files are
// refused without overwrite. Reused reports that earlier output of this run
// will be replaced.
func (n *namer) claim(name string) (full string, reused bool, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	candidate := name
	if n.policy != config.NameCollisionOverwrite {
		for i := 2; n.used[strings.ToLower(candidate)]; i++ {
			candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
		}
	}
	key := strings.ToLower(candidate)
	full = filepath.Join(n.dir, candidate)
	if n.used[key] {
		return full, true, nil
	}
	if !n.overwrite {
		if _, err := os.Stat(full); err == nil {
			return "", false, fmt.Errorf("output file already exists (%s), use --overwrite to replace it", full)
		}
	}
	n.used[key] = true
	return full, false, nil
}

// lock returns mutex guarding writes to output path, sections sharing name
// under overwrite policy must not write concurrently.
func (n *namer) lock(full string) *sync.Mutex {
	n.mu.Lock()
	defer n.mu.Unlock()

	m, ok := n.locks[full]
	if !ok {
		m = &sync.Mutex{}
		n.locks[full] = m
	}
	return m
}
