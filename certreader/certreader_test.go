package certreader

import (
	"testing"

	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/ber"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMinimalCertificate assembles a DER-encoded Certificate with a
// one-RDN (C=US) issuer/subject, a validity period straddling the UTCTime 2049
// pivot is exercised separately, and one BasicConstraints extension —
// enough surface to drive every accessor in this package.
func buildMinimalCertificate(t *testing.T, notBeforeUTC, notAfterUTC string) []byte {
	t.Helper()

	cOID := []byte{0x06, 0x03, 0x55, 0x04, 0x06} // 2.5.4.6 (C)
	cValue := tlv(ber.ClassUniversal, 19, false, []byte("US"))
	cAVA := tlv(ber.ClassUniversal, ber.TagSequence, true, concat(cOID, cValue))
	cRDN := tlv(ber.ClassUniversal, ber.TagSet, true, cAVA)
	name := tlv(ber.ClassUniversal, ber.TagSequence, true, cRDN)

	serial := tlv(ber.ClassUniversal, ber.TagInteger, false, []byte{0x01})
	sigAlgOID := []byte{0x06, 0x09, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x01, 0x01}
	sigAlg := tlv(ber.ClassUniversal, ber.TagSequence, true, sigAlgOID)

	notBefore := tlv(ber.ClassUniversal, ber.TagUTCTime, false, []byte(notBeforeUTC))
	notAfter := tlv(ber.ClassUniversal, ber.TagUTCTime, false, []byte(notAfterUTC))
	validity := tlv(ber.ClassUniversal, ber.TagSequence, true, concat(notBefore, notAfter))

	rsaOID := []byte{0x06, 0x09, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x01, 0x01}
	nullParams := tlv(ber.ClassUniversal, ber.TagNull, false, nil)
	spkiAlg := tlv(ber.ClassUniversal, ber.TagSequence, true, concat(rsaOID, nullParams))
	bitStringContent := append([]byte{0x00}, 0x01, 0x02, 0x03)
	spkiBits := tlv(ber.ClassUniversal, ber.TagBitString, false, bitStringContent)
	spki := tlv(ber.ClassUniversal, ber.TagSequence, true, concat(spkiAlg, spkiBits))

	// BasicConstraints: SEQUENCE { cA BOOLEAN DEFAULT FALSE } -> cA=TRUE
	bcCA := tlv(ber.ClassUniversal, ber.TagBoolean, false, []byte{0xff})
	bcContent := tlv(ber.ClassUniversal, ber.TagSequence, true, bcCA)
	bcOID := []byte{0x06, 0x03, 0x55, 0x1d, 0x13} // 2.5.29.19
	bcCritical := tlv(ber.ClassUniversal, ber.TagBoolean, false, []byte{0xff})
	bcExtnValue := tlv(ber.ClassUniversal, ber.TagOctetString, false, bcContent)
	bcExt := tlv(ber.ClassUniversal, ber.TagSequence, true, concat(bcOID, bcCritical, bcExtnValue))
	extensionsInner := tlv(ber.ClassUniversal, ber.TagSequence, true, bcExt)
	extensionsField := tlv(ber.ClassContextSpecific, 3, true, extensionsInner)

	tbsContent := concat(serial, sigAlg, name, validity, name, spki, extensionsField)
	tbs := tlv(ber.ClassUniversal, ber.TagSequence, true, tbsContent)

	sigValue := tlv(ber.ClassUniversal, ber.TagBitString, false, []byte{0x00, 0xaa, 0xbb})
	certContent := concat(tbs, sigAlg, sigValue)
	return tlv(ber.ClassUniversal, ber.TagSequence, true, certContent)
}

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

func TestReadDERAndBasicAccessors(t *testing.T) {
	buf := buildMinimalCertificate(t, "250615120000Z", "350615120000Z")
	cert, err := ReadDER(buf)
	require.NoError(t, err)

	serial, err := cert.GetSerial()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01, 0x01}, serial)

	issuer, err := cert.GetIssuer(0)
	require.NoError(t, err)
	assert.Equal(t, "C=US", issuer)

	subject, err := cert.GetSubject(0)
	require.NoError(t, err)
	assert.Equal(t, "C=US", subject)
}

func TestGetValidityPivotsUTCTimeYear(t *testing.T) {
	buf := buildMinimalCertificate(t, "250615120000Z", "990615120000Z")
	cert, err := ReadDER(buf)
	require.NoError(t, err)

	nb, err := cert.GetValidity(NotBefore)
	require.NoError(t, err)
	assert.Equal(t, "20250615T120000", nb)

	na, err := cert.GetValidity(NotAfter)
	require.NoError(t, err)
	assert.Equal(t, "19990615T120000", na)
}

func TestIsCA(t *testing.T) {
	buf := buildMinimalCertificate(t, "250615120000Z", "350615120000Z")
	cert, err := ReadDER(buf)
	require.NoError(t, err)

	isCA, err := cert.IsCA()
	require.NoError(t, err)
	assert.True(t, isCA)
}

func TestGetKeyUsageNoData(t *testing.T) {
	buf := buildMinimalCertificate(t, "250615120000Z", "350615120000Z")
	cert, err := ReadDER(buf)
	require.NoError(t, err)

	_, err = cert.GetKeyUsage()
	assert.ErrorIs(t, err, ErrNoData)
}

func TestGetExtensionEnumeratorPastEnd(t *testing.T) {
	buf := buildMinimalCertificate(t, "250615120000Z", "350615120000Z")
	cert, err := ReadDER(buf)
	require.NoError(t, err)

	ext, err := cert.GetExtension(0)
	require.NoError(t, err)
	assert.Equal(t, asn1schema.OIDBasicConstraints, ext.OID)
	assert.True(t, ext.Critical)

	_, err = cert.GetExtension(1)
	assert.ErrorIs(t, err, ErrValueNotFound)
}

func TestIsSelfSigned(t *testing.T) {
	buf := buildMinimalCertificate(t, "250615120000Z", "350615120000Z")
	cert, err := ReadDER(buf)
	require.NoError(t, err)
	assert.True(t, cert.IsSelfSigned())
}

func TestHashReturnsTBSSpan(t *testing.T) {
	buf := buildMinimalCertificate(t, "250615120000Z", "350615120000Z")
	cert, err := ReadDER(buf)
	require.NoError(t, err)
	h := cert.Hash()
	assert.NotEmpty(t, h)
	assert.Equal(t, byte(ber.TagSequence), h[0]&0x1f)
}
