package cms

import "github.com/pkg/errors"

// Error taxonomy for the SignedData engine (spec.md §4.7, §7).
var (
	ErrInvalidState         = errors.New("cms: operation invalid in current state")
	ErrMissingAction        = errors.New("cms: required collaborator state missing")
	ErrUnsupportedCmsObject = errors.New("cms: unsupported inner content type")
	ErrMalformed            = errors.New("cms: malformed SignedData structure")
	ErrNoSignedAttrs        = errors.New("cms: signer has no signedAttrs to hash")
	ErrSignerIndex          = errors.New("cms: signer index out of range")
)
