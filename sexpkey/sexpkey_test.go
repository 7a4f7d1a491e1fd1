package sexpkey

import (
	"math/big"
	"testing"

	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/ber"
	"github.com/LdDl/ksba-go/der"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildRSASPKI(t *testing.T, n, e *big.Int) *der.Value {
	t.Helper()
	raw, err := encodeRSASPKI(n, e)
	require.NoError(t, err)

	mod := asn1schema.DefaultModule
	schema, err := mod.Expand("SubjectPublicKeyInfo")
	require.NoError(t, err)
	img := der.NewImage(raw)
	v, pos, err := der.Decode(img, 0, schema, mod)
	require.NoError(t, err)
	require.Equal(t, len(raw), pos)
	return v
}

// TestRSAPublicKeyTripleRoundTrip exercises DER -> S-expression -> DER
// -> S-expression, asserting idempotence after the first conversion
// (spec.md §8's "triple round-trip" testable property).
func TestRSAPublicKeyTripleRoundTrip(t *testing.T) {
	n := big.NewInt(0).SetBytes([]byte{0x01, 0x00, 0x01, 0xab, 0xcd, 0xef})
	e := big.NewInt(65537)

	spki := buildRSASPKI(t, n, e)
	sexp1, err := PublicKeyToSexp(spki)
	require.NoError(t, err)

	der1, err := SexpToPublicKey(sexp1)
	require.NoError(t, err)

	mod := asn1schema.DefaultModule
	schema, err := mod.Expand("SubjectPublicKeyInfo")
	require.NoError(t, err)
	img2 := der.NewImage(der1)
	v2, pos2, err := der.Decode(img2, 0, schema, mod)
	require.NoError(t, err)
	assert.Equal(t, len(der1), pos2)

	sexp2, err := PublicKeyToSexp(v2)
	require.NoError(t, err)
	assert.Equal(t, sexp1, sexp2)

	der2, err := SexpToPublicKey(sexp2)
	require.NoError(t, err)
	assert.Equal(t, der1, der2)
}

func TestSigValToSexpRSA(t *testing.T) {
	sigBytes := []byte{0x00, 0xde, 0xad, 0xbe, 0xef}
	full := append(ber.WriteTL(ber.ClassUniversal, ber.TagBitString, false, len(sigBytes)), sigBytes...)
	img := der.NewImage(full)
	schema := &asn1schema.Node{Type: asn1schema.BIT_STRING}
	v, _, err := der.Decode(img, 0, schema, asn1schema.DefaultModule)
	require.NoError(t, err)

	sexp, err := SigValToSexp(asn1schema.OIDSHA1WithRSA, v)
	require.NoError(t, err)
	assert.Equal(t, "(sig-val (rsa (s #deadbeef#)))", sexp)
}

func TestUnknownAlgorithm(t *testing.T) {
	_, err := SexpToPublicKey("(public-key (elgamal (p #00#)))")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}
