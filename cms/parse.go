package cms

import (
	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/ber"
	"github.com/LdDl/ksba-go/der"
	"github.com/LdDl/ksba-go/dn"
	"github.com/LdDl/ksba-go/streamio"
	"github.com/pkg/errors"
)

// NewParser wraps a DER-encoded ContentInfo for a driven, stop-reason
// parse (spec.md §4.7 "Parse transitions"). buf must outlive the
// returned Context (spec.md §5 image/value-tree ownership).
func NewParser(buf []byte) *Context {
	return &Context{mode: modeParse, stopReason: Running, image: der.NewImage(buf)}
}

// NewParserFrom drains r to completion and wraps the result the same
// way NewParser does, for callers holding an io.Reader (spec.md §6)
// rather than an in-memory buffer.
func NewParserFrom(r streamio.Reader) (*Context, error) {
	buf, err := streamio.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "cms: reading stream")
	}
	return NewParser(buf), nil
}

// Step advances the parse state machine by one transition (spec.md
// §4.7/§4.8). Call it repeatedly, performing the action its returned
// StopReason implies (installing a hasher, streaming content) between
// calls, until it returns Ready.
func (c *Context) Step() (StopReason, error) {
	if c.mode != modeParse {
		return c.buildStep()
	}
	switch c.stopReason {
	case Running:
		return c.parseContentInfo()
	case GotContent:
		return c.parseSignedDataHeader()
	case NeedHash:
		return c.finishParse()
	case BeginData:
		return c.streamEContent()
	case EndData:
		return c.finishParse()
	default:
		return c.stopReason, errors.Wrapf(ErrInvalidState, "Step called in terminal state %s", c.stopReason)
	}
}

func (c *Context) parseContentInfo() (StopReason, error) {
	mod := asn1schema.DefaultModule
	schema, err := mod.Expand(asn1schema.ProdContentInfo)
	if err != nil {
		return c.stopReason, errors.Wrap(err, "cms: loading ContentInfo schema")
	}
	v, _, err := der.Decode(c.image, 0, schema, mod)
	if err != nil {
		return c.stopReason, errors.Wrap(ErrMalformed, err.Error())
	}
	oidVal := v.Child("contentType")
	if oidVal == nil || oidVal.IsAbsent() {
		return c.stopReason, errors.Wrap(ErrMalformed, "ContentInfo missing contentType")
	}
	oid, err := asn1schema.DecodeOID(oidVal.Content())
	if err != nil {
		return c.stopReason, errors.Wrap(err, "cms: decoding contentType OID")
	}
	if !oid.Equal(asn1schema.OIDSignedData) {
		return c.stopReason, errors.Wrapf(ErrUnsupportedCmsObject, "contentType %s", oid.String())
	}
	c.contentInfo = v
	c.contentOID = oid

	content := v.Child("content")
	if content == nil || content.IsAbsent() {
		return c.stopReason, errors.Wrap(ErrMalformed, "ContentInfo missing content")
	}
	inner := content.Unwrap()

	sdSchema, err := mod.Expand(asn1schema.ProdSignedData)
	if err != nil {
		return c.stopReason, errors.Wrap(err, "cms: loading SignedData schema")
	}
	sdImage := der.NewImage(inner.FullBytes())
	sd, _, err := der.Decode(sdImage, 0, sdSchema, mod)
	if err != nil {
		return c.stopReason, errors.Wrap(ErrMalformed, err.Error())
	}
	c.signedData = sd

	c.stopReason = GotContent
	return c.stopReason, nil
}

func (c *Context) parseSignedDataHeader() (StopReason, error) {
	encap := c.signedData.Child("encapContentInfo")
	if encap == nil || encap.IsAbsent() {
		return c.stopReason, errors.Wrap(ErrMalformed, "SignedData missing encapContentInfo")
	}
	eContent := encap.Child("eContent")
	if eContent == nil || eContent.IsAbsent() {
		c.detached = true
		c.stopReason = NeedHash
	} else {
		c.detached = false
		c.stopReason = BeginData
	}
	return c.stopReason, nil
}

// SetDetachedDigest supplies the externally computed content digest
// for a detached SignedData (no eContent to stream) before the
// NeedHash->Ready transition.
func (c *Context) SetDetachedDigest(digest []byte) {
	c.externalDigest = digest
}

// streamEContent feeds the encapsulated content through the installed
// Hasher (spec.md "the caller must install a hash function before the
// next call, which streams the eContent through the hash").
func (c *Context) streamEContent() (StopReason, error) {
	if c.hasher == nil {
		return c.stopReason, errors.Wrap(ErrMissingAction, "no hasher installed before BeginData->EndData")
	}
	encap := c.signedData.Child("encapContentInfo")
	eContent := encap.Child("eContent")
	content := eContent.Unwrap()
	if _, err := c.hasher.Write(content.Content()); err != nil {
		return c.stopReason, errors.Wrap(err, "cms: hashing eContent")
	}
	c.streamedDigest = c.hasher.Sum()
	c.stopReason = EndData
	return c.stopReason, nil
}

// InstallHasher supplies the Hasher used by the BeginData->EndData
// transition (spec.md "caller must install a hash function").
func (c *Context) InstallHasher(h Hasher) { c.hasher = h }

func (c *Context) finishParse() (StopReason, error) {
	if c.signedData.Child("signerInfos") == nil {
		return c.stopReason, errors.Wrap(ErrMalformed, "SignedData missing signerInfos")
	}
	c.stopReason = Ready
	return c.stopReason, nil
}

// ContentOID returns the outer SignedData content type, available from
// GotContent onward.
func (c *Context) ContentOID() asn1schema.OID { return c.contentOID }

// ContentDigest returns the digest computed over eContent (inline
// case, after EndData) or supplied via SetDetachedDigest (detached
// case, after NeedHash).
func (c *Context) ContentDigest() []byte {
	if c.detached {
		return c.externalDigest
	}
	return c.streamedDigest
}

// EContent returns the encapsulated content bytes, or (nil, false) if
// the signature is detached.
func (c *Context) EContent() ([]byte, bool) {
	encap := c.signedData.Child("encapContentInfo")
	eContent := encap.Child("eContent")
	if eContent == nil || eContent.IsAbsent() {
		return nil, false
	}
	return eContent.Unwrap().Content(), true
}

func (c *Context) signerInfo(idx int) (*der.Value, error) {
	infos := c.signedData.Child("signerInfos")
	if infos == nil || infos.IsAbsent() {
		return nil, errors.Wrap(ErrMalformed, "no signerInfos")
	}
	inner := infos.Unwrap()
	if idx < 0 || idx >= len(inner.Children) {
		return nil, errors.Wrapf(ErrMalformed, "signer index %d out of range", idx)
	}
	return inner.Children[idx], nil
}

// SignerCount returns the number of SignerInfo entries, available from
// Ready onward.
func (c *Context) SignerCount() int {
	infos := c.signedData.Child("signerInfos")
	if infos == nil || infos.IsAbsent() {
		return 0
	}
	return len(infos.Unwrap().Children)
}

// GetDigestAlgo returns signer idx's digestAlgorithm OID. Every signer
// index is supported, not only idx==0 (see DESIGN.md "Open Question
// decisions").
func (c *Context) GetDigestAlgo(idx int) (asn1schema.OID, error) {
	si, err := c.signerInfo(idx)
	if err != nil {
		return nil, err
	}
	algVal := si.Child("digestAlgorithm")
	oidVal := algVal.Child("algorithm")
	return asn1schema.DecodeOID(oidVal.Content())
}

// GetSignatureAlgo returns signer idx's signatureAlgorithm OID.
func (c *Context) GetSignatureAlgo(idx int) (asn1schema.OID, error) {
	si, err := c.signerInfo(idx)
	if err != nil {
		return nil, err
	}
	algVal := si.Child("signatureAlgorithm")
	oidVal := algVal.Child("algorithm")
	return asn1schema.DecodeOID(oidVal.Content())
}

// GetSignatureValue returns signer idx's raw signature bytes.
func (c *Context) GetSignatureValue(idx int) ([]byte, error) {
	si, err := c.signerInfo(idx)
	if err != nil {
		return nil, err
	}
	sig := si.Child("signature")
	if sig == nil || sig.IsAbsent() {
		return nil, errors.Wrap(ErrMalformed, "missing signature")
	}
	return sig.Content(), nil
}

// GetIssuerAndSerial returns signer idx's formatted issuer DN and raw
// serial number bytes.
func (c *Context) GetIssuerAndSerial(idx int) (issuerDN string, serial []byte, err error) {
	si, err := c.signerInfo(idx)
	if err != nil {
		return "", nil, err
	}
	sid := si.Child("sid")
	if sid == nil || sid.IsAbsent() {
		return "", nil, errors.Wrap(ErrMalformed, "missing sid")
	}
	issuer := sid.Child("issuer")
	serialVal := sid.Child("serialNumber")
	issuerDN, err = dn.Format(issuer)
	if err != nil {
		return "", nil, err
	}
	return issuerDN, serialVal.Content(), nil
}

// SignedAttrsForHashing returns signer idx's signedAttrs re-tagged with
// the universal SET tag (0x31) in place of the embedded [0] IMPLICIT
// tag, ready to feed to a Hasher — RFC 2630 §5.4's "SignerInfo" digest
// input, grounded on the teacher's cms.go byte-surgery technique.
func (c *Context) SignedAttrsForHashing(idx int) ([]byte, error) {
	si, err := c.signerInfo(idx)
	if err != nil {
		return nil, err
	}
	sa := si.Child("signedAttrs")
	if sa == nil || sa.IsAbsent() {
		return nil, errors.Wrap(ErrNoSignedAttrs, "signer has no signedAttrs")
	}
	return retagImplicitSetAsUniversalSet(sa.FullBytes()), nil
}

// Certificates decodes the optional certificates [0] IMPLICIT ANY span
// as a sequence of back-to-back Certificate TLVs (the common encoding;
// spec.md leaves the exact CertificateSet/CertificateChoices grammar
// out of scope and keeps it ANY-typed).
func (c *Context) Certificates() ([][]byte, error) {
	certsVal := c.signedData.Child("certificates")
	if certsVal == nil || certsVal.IsAbsent() {
		return nil, nil
	}
	content := certsVal.Content()
	var out [][]byte
	pos := 0
	for pos < len(content) {
		_, end, err := ber.TLVEnd(content, pos)
		if err != nil {
			return nil, errors.Wrap(err, "cms: scanning certificates span")
		}
		out = append(out, content[pos:end])
		pos = end
	}
	return out, nil
}
