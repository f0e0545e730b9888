// Package href turns references found in book files into canonical archive
// paths: slash separated, relative to the archive root, percent-decoded,
// without fragment, query or dot segments. Two references name the same
// archive item exactly when their canonical paths are equal.
package href

import (
	"net/url"
	"path"
	"strings"
)

var externalSchemes = []string{"data:", "http:", "https:", "mailto:", "ftp:", "javascript:"}

// IsExternal reports whether reference points outside of the archive.
func IsExternal(reference string) bool {
	ref := strings.TrimSpace(reference)
	if strings.HasPrefix(ref, "//") {
		return true
	}
	lower := strings.ToLower(ref)
	for _, scheme := range externalSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

// Canonicalize resolves reference relative to the directory of base (itself a
// canonical path) and normalizes the result. Empty base means reference is
// already relative to the archive root. Empty reference and references which
// consist of a fragment only produce empty result. Leading ".." segments
// cannot climb above the archive root and are dropped. Fragment and query are
// cut before percent decoding, so escaped "#" and "?" remain in the path and
// canonical paths must not be canonicalized again.
func Canonicalize(reference, base string) string {
	ref := strings.TrimSpace(reference)
	if i := strings.IndexAny(ref, "#?"); i >= 0 {
		ref = ref[:i]
	}
	if len(ref) == 0 {
		return ""
	}
	if decoded, err := url.PathUnescape(ref); err == nil {
		ref = decoded
	}
	ref = strings.ReplaceAll(ref, `\`, "/")

	if len(base) > 0 && !strings.HasPrefix(ref, "/") {
		ref = path.Join(path.Dir(base), ref)
	}
	// rooting before cleaning eats any ".." which would escape the archive
	clean := strings.TrimPrefix(path.Clean("/"+ref), "/")
	if clean == "." {
		return ""
	}
	return clean
}

// Relative returns target expressed relative to the directory of base, both
// are canonical paths. It is used when generated files refer to carried ones.
func Relative(base, target string) string {
	dir := path.Dir(base)
	if dir == "." || dir == "" {
		return target
	}
	baseParts := strings.Split(dir, "/")
	targetParts := strings.Split(target, "/")

	common := 0
	for common < len(baseParts) && common < len(targetParts)-1 && baseParts[common] == targetParts[common] {
		common++
	}

	var parts []string
	for range len(baseParts) - common {
		parts = append(parts, "..")
	}
	parts = append(parts, targetParts[common:]...)
	return strings.Join(parts, "/")
}

// Escape percent-encodes canonical path for use as a reference in generated
// markup, keeping slashes.
func Escape(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}
