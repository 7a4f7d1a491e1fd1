package cms

import (
	"testing"

	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/ber"
	"github.com/LdDl/ksba-go/certreader"
	"github.com/LdDl/ksba-go/der"
	"github.com/LdDl/ksba-go/gostcap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tlv(class ber.Class, tag int, constructed bool, content []byte) []byte {
	return append(ber.WriteTL(class, tag, constructed, len(content)), content...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// buildMinimalCertificate mirrors certreader's own test fixture: a
// one-RDN "C=US" issuer/subject, an RSA-shaped SPKI, and no extensions,
// enough for AddSigner to pull issuer/serialNumber out of it.
func buildMinimalCertificate(t *testing.T, serial byte) []byte {
	t.Helper()

	cOID := []byte{0x06, 0x03, 0x55, 0x04, 0x06}
	cValue := tlv(ber.ClassUniversal, 19, false, []byte("US"))
	cAVA := tlv(ber.ClassUniversal, ber.TagSequence, true, concat(cOID, cValue))
	cRDN := tlv(ber.ClassUniversal, ber.TagSet, true, cAVA)
	name := tlv(ber.ClassUniversal, ber.TagSequence, true, cRDN)

	serialTLV := tlv(ber.ClassUniversal, ber.TagInteger, false, []byte{serial})
	rsaOID := []byte{0x06, 0x09, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x01, 0x01}
	nullParams := tlv(ber.ClassUniversal, ber.TagNull, false, nil)
	sigAlg := tlv(ber.ClassUniversal, ber.TagSequence, true, concat(rsaOID, nullParams))

	notBefore := tlv(ber.ClassUniversal, ber.TagUTCTime, false, []byte("250615120000Z"))
	notAfter := tlv(ber.ClassUniversal, ber.TagUTCTime, false, []byte("350615120000Z"))
	validity := tlv(ber.ClassUniversal, ber.TagSequence, true, concat(notBefore, notAfter))

	spkiAlg := tlv(ber.ClassUniversal, ber.TagSequence, true, concat(rsaOID, nullParams))
	spkiBits := tlv(ber.ClassUniversal, ber.TagBitString, false, []byte{0x00, 0x01, 0x02, 0x03})
	spki := tlv(ber.ClassUniversal, ber.TagSequence, true, concat(spkiAlg, spkiBits))

	tbsContent := concat(serialTLV, sigAlg, name, validity, name, spki)
	tbs := tlv(ber.ClassUniversal, ber.TagSequence, true, tbsContent)

	sigValue := tlv(ber.ClassUniversal, ber.TagBitString, false, []byte{0x00, 0xaa, 0xbb})
	certContent := concat(tbs, sigAlg, sigValue)
	return tlv(ber.ClassUniversal, ber.TagSequence, true, certContent)
}

// go test -timeout 30s -run ^TestBuildAndParseSignedDataRoundTrip$ github.com/LdDl/ksba-go/cms
func TestBuildAndParseSignedDataRoundTrip(t *testing.T) {
	certDER := buildMinimalCertificate(t, 0x01)
	cert, err := certreader.ReadDER(certDER)
	require.NoError(t, err)

	builder := NewBuilder()
	idx, err := builder.AddSigner(cert.Root(), gostcap.OIDGostR341112256, gostcap.OIDGostR341012256WithGostR341112256)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	builder.AddDigestAlgorithm(gostcap.OIDGostR341112256)
	builder.AddCertificate(certDER)

	reason, err := builder.Step()
	require.NoError(t, err)
	assert.Equal(t, GotContent, reason)

	reason, err = builder.Step()
	require.NoError(t, err)
	assert.Equal(t, BeginData, reason)

	err = builder.WriteContent([]byte("hello, signed world"), gostcap.HasherFactory{})
	require.NoError(t, err)

	reason, err = builder.Step()
	require.NoError(t, err)
	assert.Equal(t, EndData, reason)

	reason, err = builder.Step()
	require.NoError(t, err)
	assert.Equal(t, NeedSig, reason)

	digest, err := builder.HashSignedAttrs(idx, gostcap.NewHasher())
	require.NoError(t, err)
	assert.Len(t, digest, 32)

	err = builder.SetSigValue(idx, []byte{0x01, 0x02, 0x03, 0x04})
	require.NoError(t, err)

	reason, err = builder.Step()
	require.NoError(t, err)
	assert.Equal(t, Ready, reason)

	encoded, err := builder.Encode()
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)

	parser := NewParser(encoded)
	reason, err = parser.Step()
	require.NoError(t, err)
	assert.Equal(t, GotContent, reason)
	assert.True(t, parser.ContentOID().Equal(asn1schema.OIDSignedData))

	reason, err = parser.Step()
	require.NoError(t, err)
	assert.Equal(t, BeginData, reason)

	parser.InstallHasher(gostcap.NewHasher())
	reason, err = parser.Step()
	require.NoError(t, err)
	assert.Equal(t, EndData, reason)

	reason, err = parser.Step()
	require.NoError(t, err)
	assert.Equal(t, Ready, reason)

	assert.Equal(t, 1, parser.SignerCount())

	digestAlgo, err := parser.GetDigestAlgo(0)
	require.NoError(t, err)
	assert.True(t, digestAlgo.Equal(gostcap.OIDGostR341112256))

	issuerDN, serial, err := parser.GetIssuerAndSerial(0)
	require.NoError(t, err)
	assert.Equal(t, "C=US", issuerDN)
	assert.Equal(t, []byte{0x01}, serial)

	sigVal, err := parser.GetSignatureValue(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, sigVal)

	parsedDigest, err := parser.SignedAttrsForHashing(0)
	require.NoError(t, err)
	assert.Equal(t, byte(ber.TagSet)|0x20, parsedDigest[0])
}

// go test -timeout 30s -run ^TestRetagImplicitSetAsUniversalSet$ github.com/LdDl/ksba-go/cms
func TestRetagImplicitSetAsUniversalSet(t *testing.T) {
	implicitSet := der.StoreConstructed(nil, ber.ClassContextSpecific, 0, []*der.Value{der.StoreNull()})
	encoded, err := der.Encode(implicitSet)
	require.NoError(t, err)
	assert.Equal(t, byte(ber.ClassContextSpecific)|0x20, encoded[0])

	retagged := retagImplicitSetAsUniversalSet(encoded)
	assert.Equal(t, byte(ber.TagSet)|0x20, retagged[0])
	assert.Equal(t, encoded[1:], retagged[1:])
}

// go test -timeout 30s -run ^TestBuildRequiresSignerBeforeStep$ github.com/LdDl/ksba-go/cms
func TestBuildRequiresSignerBeforeStep(t *testing.T) {
	builder := NewBuilder()
	_, err := builder.Step()
	assert.ErrorIs(t, err, ErrMissingAction)
}

// go test -timeout 30s -run ^TestParseRejectsNonSignedData$ github.com/LdDl/ksba-go/cms
func TestParseRejectsNonSignedData(t *testing.T) {
	oid := tlv(ber.ClassUniversal, ber.TagOID, false, []byte{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x07, 0x01}) // id-data
	inner := tlv(ber.ClassUniversal, ber.TagOctetString, false, []byte("x"))
	content := tlv(ber.ClassContextSpecific, 0, true, inner)
	buf := tlv(ber.ClassUniversal, ber.TagSequence, true, concat(oid, content))

	parser := NewParser(buf)
	_, err := parser.Step()
	assert.ErrorIs(t, err, ErrUnsupportedCmsObject)
}
