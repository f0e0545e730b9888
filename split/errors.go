package split

import (
	"errors"

	"esplit/toc"
)

var (
	// ErrNotFound is returned when referenced document or resource is missing
	// from source archive.
	ErrNotFound = errors.New("not found in source book")
	// ErrInvalidSelection is returned when nothing could be selected for
	// splitting.
	ErrInvalidSelection = errors.New("invalid selection")
	// ErrMalformedReference marks contents entries which cannot be used.
	ErrMalformedReference = toc.ErrMalformedReference
	// ErrDecodeFailure is returned when document cannot be parsed.
	ErrDecodeFailure = errors.New("unable to decode")
)
