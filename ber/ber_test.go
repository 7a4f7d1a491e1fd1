package ber

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadTLRoundTrip(t *testing.T) {
	cases := []struct {
		name        string
		class       Class
		tag         int
		constructed bool
		length      int
	}{
		{"short integer", ClassUniversal, TagInteger, false, 3},
		{"long sequence", ClassUniversal, TagSequence, true, 0x1234},
		{"context tag 0", ClassContextSpecific, 0, true, 16},
		{"empty octet string", ClassUniversal, TagOctetString, false, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := WriteTL(tc.class, tc.tag, tc.constructed, tc.length)
			hdr, err := ReadTL(encoded, 0)
			require.NoError(t, err)
			assert.Equal(t, tc.class, hdr.Class)
			assert.Equal(t, tc.tag, hdr.Tag)
			assert.Equal(t, tc.constructed, hdr.Constructed)
			assert.Equal(t, tc.length, hdr.ContentLen)
			assert.Equal(t, len(encoded), hdr.HeaderLen)
		})
	}
}

func TestIndefiniteLength(t *testing.T) {
	encoded := WriteTL(ClassUniversal, TagSequence, true, Indefinite)
	hdr, err := ReadTL(encoded, 0)
	require.NoError(t, err)
	assert.Equal(t, Indefinite, hdr.ContentLen)

	eoc := WriteTL(0, 0, false, 0)
	assert.Equal(t, []byte{0x00, 0x00}, eoc)
	assert.True(t, IsEndOfContents(eoc, 0))
}

func TestReadTLTruncated(t *testing.T) {
	_, err := ReadTL([]byte{}, 0)
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = ReadTL([]byte{0x02}, 0)
	assert.ErrorIs(t, err, ErrTruncated)

	// long-form length claims 3 length octets but only 1 is present
	_, err = ReadTL([]byte{0x30, 0x83, 0x01}, 0)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestReadTLLongForm(t *testing.T) {
	buf := []byte{0x30, 0x82, 0x01, 0x00}
	hdr, err := ReadTL(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 256, hdr.ContentLen)
	assert.Equal(t, 4, hdr.HeaderLen)
}

func TestReadTLHighTagNumberUnsupported(t *testing.T) {
	_, err := ReadTL([]byte{0x1f, 0x81, 0x00}, 0)
	assert.ErrorIs(t, err, ErrReservedTag)
}
