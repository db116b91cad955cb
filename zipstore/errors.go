package zipstore

import "errors"

var (
	// ErrNotAZip is returned in seekable mode when the source has no
	// end-of-central-directory record within the last 64KiB + fixed
	// header size, or when a central directory or local file header
	// signature does not match. In streaming mode a missing or invalid
	// local file header is taken as the end of the archive: ReadNextFile
	// reports false rather than returning this error.
	ErrNotAZip = errors.New("zipstore: not a zip archive")

	// ErrUnsupportedCompression is returned for any member whose
	// compression method is not "stored".
	ErrUnsupportedCompression = errors.New("zipstore: unsupported compression method (only stored is supported)")

	// ErrDataDescriptorNotFound is returned when a length-at-end member's
	// trailing data descriptor cannot be located before the source ends.
	ErrDataDescriptorNotFound = errors.New("zipstore: data descriptor not found for streamed member")

	// ErrNoCurrentEntry is returned by Storage methods called before
	// ReadNextFile has selected a member.
	ErrNoCurrentEntry = errors.New("zipstore: no current entry selected")
)
