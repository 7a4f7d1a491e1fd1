package asn1schema

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// OID is a dotted-integer object identifier (spec.md GLOSSARY).
type OID []uint32

// ParseOID parses a dotted string like "1.2.840.113549.1.7.2".
func ParseOID(s string) (OID, error) {
	parts := strings.Split(s, ".")
	out := make(OID, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "asn1schema: invalid OID component %q", p)
		}
		out = append(out, uint32(v))
	}
	return out, nil
}

// MustOID is ParseOID, panicking on malformed literals — used for the
// package-level OID constants, which are fixed at build time.
func MustOID(s string) OID {
	oid, err := ParseOID(s)
	if err != nil {
		panic(err)
	}
	return oid
}

func (o OID) String() string {
	parts := make([]string, len(o))
	for i, v := range o {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ".")
}

// Equal reports whether o and other name the same OID.
func (o OID) Equal(other OID) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// Encode produces the DER content octets of the OID (not including the
// universal OID tag/length header).
func (o OID) Encode() []byte {
	if len(o) < 2 {
		return nil
	}
	out := []byte{byte(o[0]*40 + o[1])}
	for _, v := range o[2:] {
		out = append(out, encodeBase128(v)...)
	}
	return out
}

func encodeBase128(v uint32) []byte {
	if v == 0 {
		return []byte{0x00}
	}
	var out []byte
	for v > 0 {
		out = append([]byte{byte(v & 0x7f)}, out...)
		v >>= 7
	}
	for i := 0; i < len(out)-1; i++ {
		out[i] |= 0x80
	}
	return out
}

// DecodeOID decodes DER content octets (no tag/length) into an OID.
func DecodeOID(content []byte) (OID, error) {
	if len(content) == 0 {
		return nil, errors.New("asn1schema: empty OID content")
	}
	var out OID
	first := content[0]
	out = append(out, uint32(first/40), uint32(first%40))

	var v uint32
	for _, b := range content[1:] {
		v = v<<7 | uint32(b&0x7f)
		if b&0x80 == 0 {
			out = append(out, v)
			v = 0
		}
	}
	return out, nil
}

// OIDs of note (spec.md §6).
var (
	OIDData          = MustOID("1.2.840.113549.1.7.1")
	OIDSignedData    = MustOID("1.2.840.113549.1.7.2")
	OIDEnvelopedData = MustOID("1.2.840.113549.1.7.3")
	OIDDigestedData  = MustOID("1.2.840.113549.1.7.5")
	OIDEncryptedData = MustOID("1.2.840.113549.1.7.6")
	OIDAuthData      = MustOID("1.2.840.113549.1.9.16.1.2")

	OIDAttributeContentType   = MustOID("1.2.840.113549.1.9.3")
	OIDAttributeMessageDigest = MustOID("1.2.840.113549.1.9.4")
	OIDAttributeSigningTime   = MustOID("1.2.840.113549.1.9.5")

	OIDRSAEncryption      = MustOID("1.2.840.113549.1.1.1")
	OIDMD5WithRSA         = MustOID("1.2.840.113549.1.1.4")
	OIDSHA1WithRSA        = MustOID("1.3.14.3.2.29")
	OIDDSA                = MustOID("1.2.840.10040.4.1")
	OIDDSAWithSHA1        = MustOID("1.2.840.10040.4.3")
	OIDSHA1               = MustOID("1.3.14.3.2.26")

	OIDSubjectKeyIdentifier   = MustOID("2.5.29.14")
	OIDKeyUsage               = MustOID("2.5.29.15")
	OIDSubjectAltName         = MustOID("2.5.29.17")
	OIDIssuerAltName          = MustOID("2.5.29.18")
	OIDBasicConstraints       = MustOID("2.5.29.19")
	OIDCRLDistributionPoints  = MustOID("2.5.29.31")
	OIDCertificatePolicies    = MustOID("2.5.29.32")
	OIDAuthorityKeyIdentifier = MustOID("2.5.29.35")
)
