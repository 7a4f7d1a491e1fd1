package nav

import (
	"testing"

	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/ber"
	"github.com/LdDl/ksba-go/der"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildAlgorithmIdentifierTree(t *testing.T) *der.Value {
	t.Helper()
	oidBytes := []byte{0x06, 0x09, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x01, 0x01}
	nullBytes := []byte{0x05, 0x00}
	content := append(append([]byte{}, oidBytes...), nullBytes...)
	full := append(ber.WriteTL(ber.ClassUniversal, ber.TagSequence, true, len(content)), content...)

	mod := asn1schema.DefaultModule
	schema, err := mod.Expand(asn1schema.ProdAlgorithmIdentifier)
	require.NoError(t, err)
	schema.Name = "algorithmIdentifier"

	img := der.NewImage(full)
	v, _, err := der.Decode(img, 0, schema, mod)
	require.NoError(t, err)
	return v
}

func TestFindDirectChild(t *testing.T) {
	v := buildAlgorithmIdentifierTree(t)
	found, err := Find(v, "algorithmIdentifier.algorithm")
	require.NoError(t, err)
	oid, err := asn1schema.DecodeOID(found.Content())
	require.NoError(t, err)
	assert.Equal(t, asn1schema.OIDRSAEncryption, oid)
}

func TestFindWildcard(t *testing.T) {
	v := buildAlgorithmIdentifierTree(t)
	found, err := Find(v, "algorithmIdentifier..algorithm")
	require.NoError(t, err)
	oid, err := asn1schema.DecodeOID(found.Content())
	require.NoError(t, err)
	assert.Equal(t, asn1schema.OIDRSAEncryption, oid)
}

func TestFindNotFound(t *testing.T) {
	v := buildAlgorithmIdentifierTree(t)
	_, err := Find(v, "algorithmIdentifier.nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompileEmptyPath(t *testing.T) {
	_, err := Compile("")
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestFindTypeValue(t *testing.T) {
	v := buildAlgorithmIdentifierTree(t)
	found, err := FindTypeValue(v, 0, asn1schema.OIDRSAEncryption)
	require.NoError(t, err)
	assert.Same(t, v, found)

	_, err = FindTypeValue(v, 1, asn1schema.OIDRSAEncryption)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = FindTypeValue(v, 0, asn1schema.OIDSHA1)
	assert.ErrorIs(t, err, ErrNotFound)
}
