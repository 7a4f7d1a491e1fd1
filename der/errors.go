package der

import "github.com/pkg/errors"

// Error taxonomy for the decoder/encoder (spec.md §4.3, §4.4, §7).
var (
	ErrUnexpectedTag  = errors.New("der: unexpected tag")
	ErrLengthMismatch = errors.New("der: length mismatch")
	ErrPrematureEOF   = errors.New("der: premature end of input")
	ErrUnsupportedType = errors.New("der: unsupported schema type")
	ErrChoiceNoMatch  = errors.New("der: no CHOICE alternative matched")
	ErrInvalidValue   = errors.New("der: invalid value")
)
