// Package ber implements the BER/DER tag-length framing primitives that
// every higher layer of ksba-go is built on: tag/length encoding and
// decoding, with class, constructed-flag and definite/indefinite length
// handling. It does not interpret content.
package ber

import "github.com/pkg/errors"

// Class is the ASN.1 tag class.
type Class byte

const (
	ClassUniversal       Class = 0x00
	ClassApplication     Class = 0x40
	ClassContextSpecific Class = 0x80
	ClassPrivate         Class = 0xc0
)

// Universal tag numbers used by the primitive/structured types named in
// spec.md §3.
const (
	TagBoolean         = 1
	TagInteger         = 2
	TagBitString       = 3
	TagOctetString     = 4
	TagNull            = 5
	TagOID             = 6
	TagUTF8String      = 12
	TagSequence        = 16
	TagSet             = 17
	TagPrintableString = 19
	TagIA5String       = 22
	TagUTCTime         = 23
	TagGeneralizedTime = 24
)

// Indefinite marks a BER length octet of 0x80 (indefinite-length form).
const Indefinite = -1

// Sentinel errors for the framing layer (spec.md §4.2).
var (
	ErrTruncated             = errors.New("ber: truncated input")
	ErrInvalidLengthEncoding = errors.New("ber: invalid length encoding")
	ErrReservedTag           = errors.New("ber: reserved tag number (0x1f continuation unsupported)")
)

// Header is the decoded form of one TLV header.
type Header struct {
	Class       Class
	Tag         int
	Constructed bool
	HeaderLen   int
	ContentLen  int // Indefinite if the length octet was 0x80
}

// ReadTL decodes one TLV header at buf[pos:]. It returns the header and
// does not validate that ContentLen bytes actually follow in buf — the
// caller checks that once it knows how far it is allowed to read.
func ReadTL(buf []byte, pos int) (Header, error) {
	if pos >= len(buf) {
		return Header{}, errors.Wrap(ErrTruncated, "reading identifier octet")
	}
	start := pos
	b := buf[pos]
	pos++

	class := Class(b & 0xc0)
	constructed := b&0x20 != 0
	tag := int(b & 0x1f)
	if tag == 0x1f {
		// High-tag-number form: not needed by any production named in
		// spec.md §3, and the schema never emits tag numbers above 30.
		return Header{}, errors.Wrap(ErrReservedTag, "high-tag-number form")
	}

	if pos >= len(buf) {
		return Header{}, errors.Wrap(ErrTruncated, "reading length octet")
	}
	lb := buf[pos]
	pos++

	var length int
	switch {
	case lb == 0x80:
		length = Indefinite
	case lb&0x80 == 0:
		length = int(lb)
	default:
		n := int(lb & 0x7f)
		if n > 4 {
			return Header{}, errors.Wrapf(ErrInvalidLengthEncoding, "length of length %d exceeds 4 bytes", n)
		}
		if pos+n > len(buf) {
			return Header{}, errors.Wrap(ErrTruncated, "reading long-form length octets")
		}
		length = 0
		for i := 0; i < n; i++ {
			length = length<<8 | int(buf[pos+i])
		}
		pos += n
		if length < 0 {
			return Header{}, errors.Wrap(ErrInvalidLengthEncoding, "length overflow")
		}
	}

	return Header{
		Class:       class,
		Tag:         tag,
		Constructed: constructed,
		HeaderLen:   pos - start,
		ContentLen:  length,
	}, nil
}

// WriteTL encodes one TLV header. A length of Indefinite writes the
// indefinite-length marker (0x80); a length of 0 always writes a
// definite zero length, for constructed values too. WriteTL(0,0,false,0)
// writes the 00 00 end-of-contents pseudo-header.
func WriteTL(class Class, tag int, constructed bool, length int) []byte {
	if tag == 0 && class == 0 && !constructed && length == 0 {
		return []byte{0x00, 0x00}
	}

	if tag > 30 {
		panic("ber: high-tag-number form unsupported")
	}

	var out []byte
	b := byte(class)
	if constructed {
		b |= 0x20
	}
	b |= byte(tag)
	out = append(out, b)

	if length == Indefinite {
		out = append(out, 0x80)
		return out
	}

	if length < 0x80 {
		out = append(out, byte(length))
		return out
	}

	var lenBytes []byte
	n := length
	for n > 0 {
		lenBytes = append([]byte{byte(n & 0xff)}, lenBytes...)
		n >>= 8
	}
	out = append(out, 0x80|byte(len(lenBytes)))
	out = append(out, lenBytes...)
	return out
}

// IsEndOfContents reports whether the header at buf[pos:] is the 00 00
// end-of-contents pseudo-TLV that terminates an indefinite-length value.
func IsEndOfContents(buf []byte, pos int) bool {
	return pos+1 < len(buf) && buf[pos] == 0x00 && buf[pos+1] == 0x00
}

// TLVEnd decodes the header at buf[pos:] and returns the absolute
// position immediately after the whole TLV — for a definite-length
// value that is pos+HeaderLen+ContentLen; for an indefinite-length
// value it recursively scans nested TLVs until the matching
// end-of-contents marker and includes it. hdr.ContentLen stays
// Indefinite in the indefinite case; callers recover the logical
// content length as end-pos-hdr.HeaderLen-2.
func TLVEnd(buf []byte, pos int) (hdr Header, end int, err error) {
	hdr, err = ReadTL(buf, pos)
	if err != nil {
		return Header{}, 0, err
	}
	if hdr.ContentLen != Indefinite {
		return hdr, pos + hdr.HeaderLen + hdr.ContentLen, nil
	}

	p := pos + hdr.HeaderLen
	for !IsEndOfContents(buf, p) {
		if p >= len(buf) {
			return Header{}, 0, errors.Wrap(ErrTruncated, "scanning indefinite-length content")
		}
		_, p, err = TLVEnd(buf, p)
		if err != nil {
			return Header{}, 0, err
		}
	}
	return hdr, p + 2, nil
}
