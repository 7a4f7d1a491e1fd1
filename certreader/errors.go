package certreader

import "github.com/pkg/errors"

// Error taxonomy (spec.md §7, §4.6). ErrNoData, ErrInvalidData and
// ErrValueNotFound are kept as distinct sentinels so callers can errors.Is them
// individually rather than collapsing "absent" and "malformed" into
// one case.
var (
	ErrNoData         = errors.New("certreader: value not present")
	ErrInvalidData    = errors.New("certreader: malformed extension or field")
	ErrValueNotFound  = errors.New("certreader: requested index past end")
	ErrUnsupportedAlg = errors.New("certreader: unsupported algorithm")
)
