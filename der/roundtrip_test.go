package der

import (
	"testing"

	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/ber"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePrimitiveInteger(t *testing.T) {
	schema := &asn1schema.Node{Name: "serialNumber", Type: asn1schema.INTEGER}
	buf := []byte{0x02, 0x01, 0x2a} // INTEGER 42
	img := NewImage(buf)

	v, pos, err := Decode(img, 0, schema, asn1schema.DefaultModule)
	require.NoError(t, err)
	assert.Equal(t, len(buf), pos)
	assert.Equal(t, "serialNumber", v.FieldName)
	assert.Equal(t, []byte{0x2a}, v.Content())
	assert.Equal(t, buf, v.FullBytes())
}

func TestDecodeSequenceWithOptionalPresent(t *testing.T) {
	mod := asn1schema.DefaultModule
	schema, err := mod.Expand(asn1schema.ProdAlgorithmIdentifier)
	require.NoError(t, err)

	// AlgorithmIdentifier { algorithm OID, parameters ANY OPTIONAL }
	// OID 1.2.840.113549.1.1.1 (rsaEncryption) + NULL params.
	oidBytes := []byte{0x06, 0x09, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x01, 0x01}
	nullBytes := []byte{0x05, 0x00}
	content := append(append([]byte{}, oidBytes...), nullBytes...)
	full := append(ber.WriteTL(ber.ClassUniversal, ber.TagSequence, true, len(content)), content...)

	img := NewImage(full)
	v, pos, err := Decode(img, 0, schema, mod)
	require.NoError(t, err)
	assert.Equal(t, len(full), pos)

	alg := v.Child("algorithm")
	require.NotNil(t, alg)
	assert.False(t, alg.IsAbsent())
	oid, err := asn1schema.DecodeOID(alg.Content())
	require.NoError(t, err)
	assert.Equal(t, asn1schema.OIDRSAEncryption, oid)

	params := v.Child("parameters")
	require.NotNil(t, params)
	assert.False(t, params.IsAbsent())
}

func TestDecodeSequenceOptionalFieldAbsent(t *testing.T) {
	mod := asn1schema.DefaultModule
	schema, err := mod.Expand(asn1schema.ProdAlgorithmIdentifier)
	require.NoError(t, err)

	oidBytes := []byte{0x06, 0x09, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x01, 0x01}
	full := append(ber.WriteTL(ber.ClassUniversal, ber.TagSequence, true, len(oidBytes)), oidBytes...)

	img := NewImage(full)
	v, pos, err := Decode(img, 0, schema, mod)
	require.NoError(t, err)
	assert.Equal(t, len(full), pos)

	params := v.Child("parameters")
	require.NotNil(t, params)
	assert.True(t, params.IsAbsent())
}

func TestDecodeChoiceTime(t *testing.T) {
	mod := asn1schema.DefaultModule
	schema, err := mod.Expand("Time")
	require.NoError(t, err)

	utc := []byte("250101120000Z")
	full := append(ber.WriteTL(ber.ClassUniversal, ber.TagUTCTime, false, len(utc)), utc...)

	img := NewImage(full)
	v, pos, err := Decode(img, 0, schema, mod)
	require.NoError(t, err)
	assert.Equal(t, len(full), pos)
	assert.Equal(t, 0, v.ChoiceIndex)
	require.Len(t, v.Children, 1)
	assert.Equal(t, utc, v.Children[0].Content())
}

func TestDecodeImplicitTaggedBitString(t *testing.T) {
	mod := asn1schema.DefaultModule
	schema, err := mod.Expand(asn1schema.ProdTBSCertificate)
	require.NoError(t, err)
	issuerUID := schema.Children[7] // issuerUniqueID [1] IMPLICIT BIT STRING OPTIONAL
	require.Equal(t, "issuerUniqueID", issuerUID.Name)

	content := []byte{0x00, 0xff, 0x00} // unused-bits octet + payload
	full := append(ber.WriteTL(ber.ClassContextSpecific, 1, false, len(content)), content...)

	img := NewImage(full)
	v, pos, err := Decode(img, 0, issuerUID, mod)
	require.NoError(t, err)
	assert.Equal(t, len(full), pos)
	assert.Equal(t, ber.ClassContextSpecific, v.EffClass)
	assert.Equal(t, 1, v.EffTag)
	assert.Equal(t, content, v.Content())
}

func TestDecodeExplicitTaggedExtensions(t *testing.T) {
	mod := asn1schema.DefaultModule
	schema, err := mod.Expand(asn1schema.ProdTBSCertificate)
	require.NoError(t, err)
	extField := schema.Children[9] // extensions [3] EXPLICIT Extensions OPTIONAL
	require.Equal(t, "extensions", extField.Name)

	// Inner Extensions ::= SEQUENCE OF Extension, empty sequence.
	innerSeq := ber.WriteTL(ber.ClassUniversal, ber.TagSequence, true, 0)
	full := append(ber.WriteTL(ber.ClassContextSpecific, 3, true, len(innerSeq)), innerSeq...)

	img := NewImage(full)
	v, pos, err := Decode(img, 0, extField, mod)
	require.NoError(t, err)
	assert.Equal(t, len(full), pos)
	assert.Equal(t, ber.ClassContextSpecific, v.EffClass)
	assert.Equal(t, 3, v.EffTag)
	unwrapped := v.Unwrap()
	require.NotNil(t, unwrapped)
	assert.Empty(t, unwrapped.Children)
}

func TestEncodeRoundTripsUnmodifiedSequence(t *testing.T) {
	mod := asn1schema.DefaultModule
	schema, err := mod.Expand(asn1schema.ProdAlgorithmIdentifier)
	require.NoError(t, err)

	oidBytes := []byte{0x06, 0x09, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x01, 0x01}
	nullBytes := []byte{0x05, 0x00}
	content := append(append([]byte{}, oidBytes...), nullBytes...)
	full := append(ber.WriteTL(ber.ClassUniversal, ber.TagSequence, true, len(content)), content...)

	img := NewImage(full)
	v, _, err := Decode(img, 0, schema, mod)
	require.NoError(t, err)

	reEncoded, err := Encode(v)
	require.NoError(t, err)
	assert.Equal(t, full, reEncoded)
}

func TestStoreAndEncodeFreshAlgorithmIdentifier(t *testing.T) {
	algOID := StoreOID(asn1schema.OIDRSAEncryption)
	algOID.FieldName = "algorithm"
	params := StoreNull()
	params.FieldName = "parameters"

	v := StoreConstructed(nil, ber.ClassUniversal, ber.TagSequence, []*Value{algOID, params})
	out, err := Encode(v)
	require.NoError(t, err)

	img := NewImage(out)
	mod := asn1schema.DefaultModule
	schema, err := mod.Expand(asn1schema.ProdAlgorithmIdentifier)
	require.NoError(t, err)
	decoded, pos, err := Decode(img, 0, schema, mod)
	require.NoError(t, err)
	assert.Equal(t, len(out), pos)

	oid, err := asn1schema.DecodeOID(decoded.Child("algorithm").Content())
	require.NoError(t, err)
	assert.Equal(t, asn1schema.OIDRSAEncryption, oid)
}

func TestCopyTreeDetachesFromSourceImage(t *testing.T) {
	mod := asn1schema.DefaultModule
	schema, err := mod.Expand(asn1schema.ProdAlgorithmIdentifier)
	require.NoError(t, err)

	oidBytes := []byte{0x06, 0x09, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x01, 0x01}
	full := append(ber.WriteTL(ber.ClassUniversal, ber.TagSequence, true, len(oidBytes)), oidBytes...)

	img := NewImage(full)
	v, _, err := Decode(img, 0, schema, mod)
	require.NoError(t, err)

	clone := CopyTree(v)
	// Mutate the source buffer; the clone must be unaffected.
	for i := range full {
		full[i] = 0xff
	}
	reEncoded, err := Encode(clone)
	require.NoError(t, err)

	expected := append(ber.WriteTL(ber.ClassUniversal, ber.TagSequence, true, len(oidBytes)), oidBytes...)
	assert.Equal(t, expected, reEncoded)
}

func TestDecodeIndefiniteLengthOctetString(t *testing.T) {
	// Constructed, indefinite-length OCTET STRING containing two
	// primitive chunks, terminated by EOC — spec.md §4.2's
	// indefinite-length BER framing case.
	chunk1 := append(ber.WriteTL(ber.ClassUniversal, ber.TagOctetString, false, 2), []byte{0xaa, 0xbb}...)
	chunk2 := append(ber.WriteTL(ber.ClassUniversal, ber.TagOctetString, false, 1), []byte{0xcc}...)
	eoc := []byte{0x00, 0x00}
	inner := append(append(append([]byte{}, chunk1...), chunk2...), eoc...)
	outerHdr := ber.WriteTL(ber.ClassUniversal, ber.TagOctetString, true, ber.Indefinite)
	full := append(outerHdr, inner...)

	schema := &asn1schema.Node{Name: "eContent", Type: asn1schema.OCTET_STRING}
	img := NewImage(full)
	v, pos, err := Decode(img, 0, schema, asn1schema.DefaultModule)
	require.NoError(t, err)
	assert.Equal(t, len(full), pos)
	assert.True(t, v.Constructed)
	assert.Equal(t, len(inner)-2, v.Len)
}
