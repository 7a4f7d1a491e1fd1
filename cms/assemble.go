package cms

import (
	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/ber"
	"github.com/LdDl/ksba-go/der"
	"github.com/pkg/errors"
)

// AddCertificate appends a raw, already-DER-encoded Certificate to the
// optional certificates [0] span carried in the message, for embedding
// the signer's own certificate or a chain alongside the signature.
func (c *Context) AddCertificate(certDER []byte) {
	c.buildCertificates = append(c.buildCertificates, certDER)
}

// Encode assembles and returns the final DER-encoded ContentInfo once
// the build has reached Ready — the counterpart to the teacher's
// asn1.Marshal(ContentInfo{...}) call at the end of Sign.
func (c *Context) Encode() ([]byte, error) {
	if c.mode != modeBuild {
		return nil, errors.Wrap(ErrInvalidState, "Encode called on a parse Context")
	}
	if c.stopReason != Ready {
		return nil, errors.Wrap(ErrInvalidState, "Encode only valid once Step has reached Ready")
	}

	eContentType := c.buildContentType
	if eContentType == nil {
		eContentType = asn1schema.OIDData
	}
	encapChildren := []*der.Value{der.StoreOID(eContentType)}
	if !c.buildDetached {
		eContent := der.StoreConstructed(nil, ber.ClassContextSpecific, 0, []*der.Value{der.StoreOctetString(c.content)})
		encapChildren = append(encapChildren, eContent)
	}
	encapContentInfo := der.StoreConstructed(nil, ber.ClassUniversal, ber.TagSequence, encapChildren)

	digestAlgos := make([]*der.Value, 0, len(c.digestAlgorithms))
	for _, oid := range c.digestAlgorithms {
		digestAlgos = append(digestAlgos, algorithmIdentifier(oid))
	}
	digestAlgorithmsSet := der.StoreConstructed(nil, ber.ClassUniversal, ber.TagSet, digestAlgos)

	signerInfos := make([]*der.Value, 0, len(c.signers))
	for _, s := range c.signers {
		si, err := encodeSignerInfo(s)
		if err != nil {
			return nil, err
		}
		signerInfos = append(signerInfos, si)
	}
	signerInfosSet := der.StoreConstructed(nil, ber.ClassUniversal, ber.TagSet, signerInfos)

	sdChildren := []*der.Value{
		der.StoreInteger(1),
		digestAlgorithmsSet,
		encapContentInfo,
	}
	if len(c.buildCertificates) > 0 {
		certsContent := make([]byte, 0)
		for _, certDER := range c.buildCertificates {
			certsContent = append(certsContent, certDER...)
		}
		certsValue, err := der.StoreRaw(nil, append(ber.WriteTL(ber.ClassContextSpecific, 0, true, len(certsContent)), certsContent...))
		if err != nil {
			return nil, errors.Wrap(err, "cms: building certificates span")
		}
		sdChildren = append(sdChildren, certsValue)
	}
	sdChildren = append(sdChildren, signerInfosSet)
	signedData := der.StoreConstructed(nil, ber.ClassUniversal, ber.TagSequence, sdChildren)

	signedDataBytes, err := der.Encode(signedData)
	if err != nil {
		return nil, errors.Wrap(err, "cms: encoding SignedData")
	}
	signedDataAny, err := der.StoreRaw(nil, signedDataBytes)
	if err != nil {
		return nil, err
	}
	content := der.StoreConstructed(nil, ber.ClassContextSpecific, 0, []*der.Value{signedDataAny})
	contentInfo := der.StoreConstructed(nil, ber.ClassUniversal, ber.TagSequence, []*der.Value{
		der.StoreOID(asn1schema.OIDSignedData),
		content,
	})
	return der.Encode(contentInfo)
}

func algorithmIdentifier(oid asn1schema.OID) *der.Value {
	return der.StoreConstructed(nil, ber.ClassUniversal, ber.TagSequence, []*der.Value{
		der.StoreOID(oid),
		der.StoreNull(),
	})
}

// encodeSignerInfo assembles one SignerInfo, embedding signedAttrs as
// built by buildSignedAttrs, which already carries the [0] IMPLICIT
// context-specific tag in place of the SET tag — the mirror image of
// retagImplicitSetAsUniversalSet used when hashing.
func encodeSignerInfo(s *BuildSigner) (*der.Value, error) {
	sid := der.StoreConstructed(nil, ber.ClassUniversal, ber.TagSequence, []*der.Value{
		s.issuerRDN,
		der.StoreIntegerBytes(s.serialNumber),
	})
	children := []*der.Value{
		der.StoreInteger(1),
		sid,
		algorithmIdentifier(s.digestAlgo),
	}
	if s.signedAttrs != nil {
		children = append(children, s.signedAttrs)
	}
	if s.sigValue == nil {
		return nil, errors.Wrap(ErrMissingAction, "signer missing SigValue at Encode")
	}
	children = append(children,
		algorithmIdentifier(s.sigAlgo),
		der.StoreOctetString(s.sigValue),
	)
	return der.StoreConstructed(nil, ber.ClassUniversal, ber.TagSequence, children), nil
}
