package css

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// Reference is a resource reference found in a stylesheet.
type Reference struct {
	URL string
	// Import is set for @import rules, such references point to other
	// stylesheets.
	Import bool
}

// ErrNotText is returned for data which cannot be a stylesheet.
var ErrNotText = errors.New("stylesheet is not valid UTF-8 text")

// References returns url() and @import references of a stylesheet or of an
// inline style attribute value in order of appearance. Empty references are
// dropped, duplicates are kept.
func References(data []byte) ([]Reference, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return nil, ErrNotText
	}

	var (
		refs     []Reference
		inImport bool
		inURLFn  bool
	)
	add := func(raw string) {
		if u := strings.TrimSpace(raw); len(u) > 0 {
			refs = append(refs, Reference{URL: u, Import: inImport})
		}
	}

	l := css.NewLexer(parse.NewInput(bytes.NewReader(data)))
	for {
		tt, text := l.Next()
		switch tt {
		case css.ErrorToken:
			if err := l.Err(); err != nil && !errors.Is(err, io.EOF) {
				return refs, fmt.Errorf("unable to scan stylesheet: %w", err)
			}
			return refs, nil
		case css.AtKeywordToken:
			inImport = strings.EqualFold(string(text), "@import")
		case css.SemicolonToken, css.LeftBraceToken, css.RightBraceToken:
			inImport = false
			inURLFn = false
		case css.URLToken:
			add(urlValue(string(text)))
			inImport = false
		case css.FunctionToken:
			// url( followed by a string token is lexed as a function
			inURLFn = strings.EqualFold(string(text), "url(")
		case css.StringToken:
			switch {
			case inURLFn:
				add(unquote(string(text)))
				inURLFn = false
				inImport = false
			case inImport:
				add(unquote(string(text)))
				inImport = false
			}
		case css.RightParenthesisToken:
			inURLFn = false
		}
	}
}

// urlValue strips url( prefix and ) suffix and unquotes what is left.
func urlValue(s string) string {
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, ")")
	return unquote(s)
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	if (s[0] == '"' && s[len(s)-1] == '"') ||
		(s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}
