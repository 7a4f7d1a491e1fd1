// Package cms implements the resumable CMS SignedData build/parse
// state machine of spec.md §4.7/§4.8 on top of the schema-driven
// der/nav engine. The engine performs no cryptography itself: hashing
// and signing are small capability interfaces the caller supplies
// (package gostcap is the concrete default), following the teacher's
// cms.go shape but replacing its stdlib encoding/asn1 plumbing with
// the schema engine throughout.
package cms

import (
	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/der"
)

// StopReason is the cooperative-suspension point the state machine
// returns control to the caller at (spec.md §4.7/§4.8).
type StopReason int

const (
	Running StopReason = iota
	GotContent
	NeedHash
	BeginData
	EndData
	NeedSig
	Ready
)

func (s StopReason) String() string {
	switch s {
	case Running:
		return "Running"
	case GotContent:
		return "GotContent"
	case NeedHash:
		return "NeedHash"
	case BeginData:
		return "BeginData"
	case EndData:
		return "EndData"
	case NeedSig:
		return "NeedSig"
	case Ready:
		return "Ready"
	default:
		return "Unknown"
	}
}

// Hasher accumulates bytes and produces a digest; cms never hashes
// itself, only drives a caller-supplied Hasher at well-defined points.
type Hasher interface {
	Write(p []byte) (int, error)
	Sum() []byte
}

// HasherFactory produces fresh Hashers on demand — used by WriteContent
// on the build side, which takes one fresh Hasher per signer for the
// content hash. HashSignedAttrs takes a Hasher directly instead.
type HasherFactory interface {
	New() Hasher
}

type mode int

const (
	modeParse mode = iota
	modeBuild
)

// Context drives either a parse or a build of one SignedData message.
// It is single-owner and must not be used concurrently (spec.md §5).
type Context struct {
	mode       mode
	stopReason StopReason

	// --- parse-side state ---
	image            *der.Image
	contentInfo      *der.Value
	signedData       *der.Value
	contentOID       asn1schema.OID
	detached         bool
	hasher           Hasher
	streamedDigest   []byte
	externalDigest   []byte

	// --- build-side state ---
	buildContentType  asn1schema.OID
	digestAlgorithms  []asn1schema.OID
	signers           []*BuildSigner
	buildDetached     bool
	content           []byte
	contentWritten    bool
	buildCertificates [][]byte
}

// StopReason reports the current suspension point.
func (c *Context) StopReason() StopReason { return c.stopReason }
