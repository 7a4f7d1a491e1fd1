package cms

import (
	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/ber"
	"github.com/LdDl/ksba-go/der"
	"github.com/pkg/errors"
)

// NewBuilder starts a fresh build of one SignedData message (spec.md
// §4.8 "Build transitions"). Register at least one signer with
// AddSigner before the first Step call.
func NewBuilder() *Context {
	return &Context{mode: modeBuild, stopReason: Running}
}

// BuildSigner accumulates one SignerInfo's build-side state: the
// signer's certificate reference (issuer+serial, copied verbatim into
// the sid field), its declared digest/signature algorithms, and the
// slots filled in across the EndData -> NeedSig -> Ready transitions
// (signedAttrs by the EndData step, sigValue by SetSigValue).
type BuildSigner struct {
	issuerRDN     *der.Value // copied (via der.CopyTree) from the signer certificate's issuer Name
	serialNumber  []byte
	digestAlgo    asn1schema.OID
	sigAlgo       asn1schema.OID
	messageDigest []byte // pre-set for detached content, or filled at EndData
	signedAttrs   *der.Value
	sigValue      []byte
}

// AddSigner registers a signer for the message under construction,
// identified by its certificate's issuer/serialNumber (RFC 2630's
// IssuerAndSerialNumber SignerIdentifier choice — the only one
// spec.md's CMS module supports) and its declared algorithms. Returns
// the signer's index for later GetDigestAlgo/HashSignedAttrs/
// SetSigValue calls.
func (c *Context) AddSigner(cert *der.Value, digestAlgo, sigAlgo asn1schema.OID) (int, error) {
	if c.mode != modeBuild {
		return 0, errors.Wrap(ErrInvalidState, "AddSigner called on a parse Context")
	}
	if c.stopReason != Running {
		return 0, errors.Wrap(ErrInvalidState, "AddSigner must be called before the first Step")
	}
	tbs := cert.Child("tbsCertificate")
	if tbs == nil || tbs.IsAbsent() {
		return 0, errors.Wrap(ErrMalformed, "signer certificate missing tbsCertificate")
	}
	issuer := tbs.Child("issuer")
	serial := tbs.Child("serialNumber")
	if issuer == nil || serial == nil {
		return 0, errors.Wrap(ErrMalformed, "signer certificate missing issuer/serialNumber")
	}
	bs := &BuildSigner{
		issuerRDN:    der.CopyTree(issuer),
		serialNumber: append([]byte(nil), serial.Content()...),
		digestAlgo:   digestAlgo,
		sigAlgo:      sigAlgo,
	}
	c.signers = append(c.signers, bs)
	return len(c.signers) - 1, nil
}

// SetContentType sets the eContentType of the EncapsulatedContentInfo
// under construction. Defaults to id-data if never called.
func (c *Context) SetContentType(oid asn1schema.OID) {
	c.buildContentType = oid
}

// AddDigestAlgorithm registers a digestAlgorithms entry for the
// SignedData header. The common case is one entry equal to every
// signer's digest algorithm; spec.md permits the set to diverge from
// individual SignerInfo.digestAlgorithm values, so this is explicit.
func (c *Context) AddDigestAlgorithm(oid asn1schema.OID) {
	c.digestAlgorithms = append(c.digestAlgorithms, oid)
}

// SetDetached controls whether eContent is omitted from the encoded
// message (the signature then covers only a digest the caller computed
// out-of-band and supplies via SetMessageDigest).
func (c *Context) SetDetached(detached bool) {
	c.buildDetached = detached
}

// SetMessageDigest supplies signer idx's message digest directly, for
// detached mode where there is no eContent for Step to stream and hash
// itself.
func (c *Context) SetMessageDigest(idx int, digest []byte) error {
	if idx < 0 || idx >= len(c.signers) {
		return errors.Wrapf(ErrSignerIndex, "signer %d", idx)
	}
	c.signers[idx].messageDigest = digest
	return nil
}

// buildStep advances the build-side state machine (spec.md §4.8
// "Build transitions": Running -> GotContent -> (BeginData <-> EndData |
// EndData) -> NeedSig -> Ready). Step writes no bytes itself. The first
// call only checks that signers are registered and moves to GotContent;
// it does not itself decide detached vs. inline, which is the
// GotContent -> {BeginData|EndData} branch.
func (c *Context) buildStep() (StopReason, error) {
	switch c.stopReason {
	case Running:
		if len(c.signers) == 0 {
			return c.stopReason, errors.Wrap(ErrMissingAction, "no signers registered before first Step")
		}
		c.stopReason = GotContent
		return c.stopReason, nil
	case GotContent:
		if c.buildDetached {
			c.stopReason = EndData
		} else {
			c.stopReason = BeginData
		}
		return c.stopReason, nil
	case BeginData:
		if !c.contentWritten {
			return c.stopReason, errors.Wrap(ErrMissingAction, "WriteContent must be called before Step in BeginData")
		}
		c.stopReason = EndData
		return c.stopReason, nil
	case EndData:
		if err := c.buildSignedAttrs(); err != nil {
			return c.stopReason, err
		}
		c.stopReason = NeedSig
		return c.stopReason, nil
	case NeedSig:
		for i, s := range c.signers {
			if s.sigValue == nil {
				return c.stopReason, errors.Wrapf(ErrMissingAction, "signer %d has no SigValue set", i)
			}
		}
		c.stopReason = Ready
		return c.stopReason, nil
	default:
		return c.stopReason, errors.Wrapf(ErrInvalidState, "Step called in terminal state %s", c.stopReason)
	}
}

// WriteContent supplies the eContent bytes for an inline (non-detached)
// message and hashes them immediately with one fresh Hasher from
// hashers per signer, setting each signer's messageDigest; the signer's
// declared digest algorithm is not consulted.
func (c *Context) WriteContent(content []byte, hashers HasherFactory) error {
	if c.mode != modeBuild {
		return errors.Wrap(ErrInvalidState, "WriteContent called on a parse Context")
	}
	if c.stopReason != BeginData {
		return errors.Wrap(ErrInvalidState, "WriteContent only valid in BeginData")
	}
	c.content = content
	for _, s := range c.signers {
		h := hashers.New()
		if _, err := h.Write(content); err != nil {
			return errors.Wrap(err, "cms: hashing content for signer")
		}
		s.messageDigest = h.Sum()
	}
	c.contentWritten = true
	return nil
}

// buildSignedAttrs assembles each signer's signedAttrs SET (contentType,
// signingTime, messageDigest, in that order — the teacher's comment
// notes this ordering matches what OpenSSL produces) as a value tree
// ready for encoding, grounded on the teacher's createSignedAttributes.
func (c *Context) buildSignedAttrs() error {
	mod := asn1schema.DefaultModule
	schema, err := mod.Expand(asn1schema.ProdSignedAttributes)
	if err != nil {
		return errors.Wrap(err, "cms: loading SignedAttributes schema")
	}
	contentType := c.buildContentType
	if contentType == nil {
		contentType = asn1schema.OIDData
	}
	for _, s := range c.signers {
		if s.messageDigest == nil {
			return errors.Wrap(ErrMissingAction, "signer has no messageDigest at EndData (call WriteContent or SetMessageDigest)")
		}
		attrs, err := buildAttributeSet(schema, contentType, s.messageDigest)
		if err != nil {
			return err
		}
		s.signedAttrs = attrs
	}
	return nil
}

// HashSignedAttrs re-encodes signer idx's signedAttrs, substitutes the
// universal SET tag (0x31) for its embedded [0] IMPLICIT tag the way
// DER requires when hashing a SET OF for a signature (RFC 2630 §5.4),
// feeds it through hasher, and returns the digest. This is the
// byte-for-byte technique the teacher's createSignedAttributes used:
// marshal, copy, overwrite byte 0 with 0x31.
func (c *Context) HashSignedAttrs(idx int, hasher Hasher) ([]byte, error) {
	if idx < 0 || idx >= len(c.signers) {
		return nil, errors.Wrapf(ErrSignerIndex, "signer %d", idx)
	}
	s := c.signers[idx]
	if s.signedAttrs == nil {
		return nil, errors.Wrap(ErrInvalidState, "HashSignedAttrs called before EndData built signedAttrs")
	}
	encoded, err := der.Encode(s.signedAttrs)
	if err != nil {
		return nil, errors.Wrap(err, "cms: encoding signedAttrs")
	}
	forHashing := retagImplicitSetAsUniversalSet(encoded)
	if _, err := hasher.Write(forHashing); err != nil {
		return nil, errors.Wrap(err, "cms: hashing signedAttrs")
	}
	return hasher.Sum(), nil
}

// SetSigValue records signer idx's signature, computed by the caller
// over the digest HashSignedAttrs returned.
func (c *Context) SetSigValue(idx int, sig []byte) error {
	if idx < 0 || idx >= len(c.signers) {
		return errors.Wrapf(ErrSignerIndex, "signer %d", idx)
	}
	if c.stopReason != NeedSig {
		return errors.Wrap(ErrInvalidState, "SetSigValue only valid in NeedSig")
	}
	c.signers[idx].sigValue = sig
	return nil
}

// retagImplicitSetAsUniversalSet overwrites a DER SEQUENCE/SET's
// leading identifier octet with the universal SET tag (0x31),
// preserving the length and content octets unchanged. CMS's
// SignedAttributes is declared as a SET OF Attribute but appears in
// SignerInfo tagged [0] IMPLICIT; RFC 2630 requires the signature to
// be computed over the SET-tagged DER encoding, not the [0] form that
// is actually transmitted.
func retagImplicitSetAsUniversalSet(encoded []byte) []byte {
	out := append([]byte(nil), encoded...)
	if len(out) > 0 {
		out[0] = byte(ber.ClassUniversal) | 0x20 | byte(ber.TagSet)
	}
	return out
}

// buildAttributeSet constructs the SignedAttributes value tree
// (contentType, signingTime, messageDigest) against schema, storing
// fresh DER leaves for each attribute value.
func buildAttributeSet(schema *asn1schema.Node, contentType asn1schema.OID, messageDigest []byte) (*der.Value, error) {
	contentTypeAttr, err := buildAttribute(asn1schema.OIDAttributeContentType, der.StoreOID(contentType))
	if err != nil {
		return nil, err
	}
	signingTimeAttr, err := buildAttribute(asn1schema.OIDAttributeSigningTime, der.StoreUTCTimeNow())
	if err != nil {
		return nil, err
	}
	messageDigestAttr, err := buildAttribute(asn1schema.OIDAttributeMessageDigest, der.StoreOctetString(messageDigest))
	if err != nil {
		return nil, err
	}
	children := []*der.Value{contentTypeAttr, signingTimeAttr, messageDigestAttr}
	return der.StoreConstructed(schema, ber.ClassContextSpecific, 0, children), nil
}

// buildAttribute wraps one Attribute { type OBJECT IDENTIFIER, values
// SET OF ANY } with a single value.
func buildAttribute(oid asn1schema.OID, value *der.Value) (*der.Value, error) {
	oidLeaf := der.StoreOID(oid)
	valuesSet := der.StoreConstructed(nil, ber.ClassUniversal, ber.TagSet, []*der.Value{value})
	return der.StoreConstructed(nil, ber.ClassUniversal, ber.TagSequence, []*der.Value{oidLeaf, valuesSet}), nil
}
