package epub

import "errors"

var (
	// ErrDRMProtected is returned for books with encrypted content, font
	// obfuscation alone is not considered protection.
	ErrDRMProtected = errors.New("book is DRM protected")
	// ErrInvalidBook is returned when archive does not look like a book.
	ErrInvalidBook = errors.New("archive is not a valid epub")
	// ErrNotFound is returned when requested path is not in the archive.
	ErrNotFound = errors.New("not found in archive")
)
