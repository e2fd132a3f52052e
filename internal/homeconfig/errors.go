package homeconfig

import "errors"

var (
	// ErrNoConfig indicates no home document has been stored yet.
	ErrNoConfig = errors.New("homeconfig: no stored config")

	// ErrInvalidDocument indicates a document that could not be parsed.
	ErrInvalidDocument = errors.New("homeconfig: invalid document")

	// ErrFetchFailed indicates the document could not be downloaded.
	ErrFetchFailed = errors.New("homeconfig: fetch failed")
)
