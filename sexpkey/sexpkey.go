// Package sexpkey bridges DER-encoded public keys and signature values
// to the canonical S-expression forms used by external cryptography
// collaborators (spec.md §6): "(public-key (rsa (n #...#)(e #...#)))"
// and "(sig-val (rsa (s #...#)))". It performs no cryptography itself —
// only syntax conversion, grounded on the teacher's RawValue-surgery
// style in cms.go and on ietf-cms/protocol.go's ANY-content handling.
package sexpkey

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/ber"
	"github.com/LdDl/ksba-go/der"
	"github.com/pkg/errors"
)

// ErrUnknownAlgorithm is returned when the AlgorithmIdentifier does not
// name one of the recognized algorithms (spec.md §6).
var ErrUnknownAlgorithm = errors.New("sexpkey: unknown algorithm")

// rsaPublicKey mirrors the inner SEQUENCE { n INTEGER, e INTEGER }
// carried inside subjectPublicKey for rsaEncryption keys.
type rsaPublicKey struct {
	N *big.Int
	E *big.Int
}

// PublicKeyToSexp converts a decoded SubjectPublicKeyInfo value into
// its canonical public-key S-expression.
func PublicKeyToSexp(spki *der.Value) (string, error) {
	algVal := spki.Child("algorithm")
	if algVal == nil || algVal.IsAbsent() {
		return "", errors.Wrap(ErrUnknownAlgorithm, "missing algorithm")
	}
	oidVal := algVal.Child("algorithm")
	oid, err := asn1schema.DecodeOID(oidVal.Content())
	if err != nil {
		return "", errors.Wrap(err, "sexpkey: decoding algorithm OID")
	}

	switch {
	case oid.Equal(asn1schema.OIDRSAEncryption):
		bits := spki.Child("subjectPublicKey")
		if bits == nil || bits.IsAbsent() {
			return "", errors.Wrap(ErrUnknownAlgorithm, "missing subjectPublicKey")
		}
		pub, err := decodeRSAPublicKeyBits(bits.Content())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(public-key (rsa (n #%s#)(e #%s#)))", hexDigits(pub.N), hexDigits(pub.E)), nil
	case oid.Equal(asn1schema.OIDDSA):
		bits := spki.Child("subjectPublicKey")
		if bits == nil || bits.IsAbsent() {
			return "", errors.Wrap(ErrUnknownAlgorithm, "missing subjectPublicKey")
		}
		y, err := decodeIntegerBits(bits.Content())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(public-key (dsa (y #%s#)))", hexDigits(y)), nil
	default:
		return "", errors.Wrapf(ErrUnknownAlgorithm, "OID %s", oid.String())
	}
}

// SigValToSexp converts a decoded signatureAlgorithm + signatureValue
// pair into the canonical signature-value S-expression.
func SigValToSexp(sigAlgOID asn1schema.OID, sigValue *der.Value) (string, error) {
	raw := decodeBitStringOctets(sigValue.Content())
	switch {
	case sigAlgOID.Equal(asn1schema.OIDRSAEncryption),
		sigAlgOID.Equal(asn1schema.OIDMD5WithRSA),
		sigAlgOID.Equal(asn1schema.OIDSHA1WithRSA):
		return fmt.Sprintf("(sig-val (rsa (s #%s#)))", bytesHex(raw)), nil
	case sigAlgOID.Equal(asn1schema.OIDDSA), sigAlgOID.Equal(asn1schema.OIDDSAWithSHA1):
		r, s, err := decodeDSASigValue(raw)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(sig-val (dsa (r #%s#)(s #%s#)))", hexDigits(r), hexDigits(s)), nil
	default:
		return "", errors.Wrapf(ErrUnknownAlgorithm, "OID %s", sigAlgOID.String())
	}
}

// SexpToPublicKey is the inverse of PublicKeyToSexp: given a canonical
// public-key S-expression, rebuild the DER SubjectPublicKeyInfo bytes.
// Only the algorithms recognized above round-trip; anything else
// surfaces ErrUnknownAlgorithm.
func SexpToPublicKey(sexp string) ([]byte, error) {
	if n, e, ok := parseRSAPublicSexp(sexp); ok {
		return encodeRSASPKI(n, e)
	}
	if y, ok := parseDSAPublicSexp(sexp); ok {
		return encodeDSASPKI(y)
	}
	return nil, errors.Wrap(ErrUnknownAlgorithm, "unrecognized public-key s-expression")
}

func decodeRSAPublicKeyBits(bitStringContent []byte) (*rsaPublicKey, error) {
	inner := decodeBitStringOctets(bitStringContent)
	hdr, err := ber.ReadTL(inner, 0)
	if err != nil || hdr.Class != ber.ClassUniversal || hdr.Tag != ber.TagSequence {
		return nil, errors.Wrap(ErrUnknownAlgorithm, "malformed RSAPublicKey")
	}
	body := inner[hdr.HeaderLen:]
	n, rest, err := readIntegerTLV(body)
	if err != nil {
		return nil, err
	}
	e, _, err := readIntegerTLV(rest)
	if err != nil {
		return nil, err
	}
	return &rsaPublicKey{N: n, E: e}, nil
}

func decodeIntegerBits(bitStringContent []byte) (*big.Int, error) {
	inner := decodeBitStringOctets(bitStringContent)
	return new(big.Int).SetBytes(inner), nil
}

func decodeDSASigValue(content []byte) (r, s *big.Int, err error) {
	hdr, err := ber.ReadTL(content, 0)
	if err != nil || hdr.Class != ber.ClassUniversal || hdr.Tag != ber.TagSequence {
		return nil, nil, errors.Wrap(ErrUnknownAlgorithm, "malformed DSA Dss-Sig-Value")
	}
	body := content[hdr.HeaderLen:]
	r, rest, err := readIntegerTLV(body)
	if err != nil {
		return nil, nil, err
	}
	s, _, err = readIntegerTLV(rest)
	if err != nil {
		return nil, nil, err
	}
	return r, s, nil
}

func readIntegerTLV(buf []byte) (*big.Int, []byte, error) {
	hdr, err := ber.ReadTL(buf, 0)
	if err != nil || hdr.Class != ber.ClassUniversal || hdr.Tag != ber.TagInteger {
		return nil, nil, errors.Wrap(ErrUnknownAlgorithm, "expected INTEGER")
	}
	content := buf[hdr.HeaderLen : hdr.HeaderLen+hdr.ContentLen]
	return new(big.Int).SetBytes(content), buf[hdr.HeaderLen+hdr.ContentLen:], nil
}

// decodeBitStringOctets drops the BIT STRING's leading unused-bits
// count octet, which is always 0 for the byte-aligned keys handled
// here.
func decodeBitStringOctets(content []byte) []byte {
	if len(content) == 0 {
		return nil
	}
	return content[1:]
}

func hexDigits(n *big.Int) string { return bytesHex(n.Bytes()) }

func bytesHex(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, digits[c>>4], digits[c&0xf])
	}
	return string(out)
}

func encodeRSASPKI(n, e *big.Int) ([]byte, error) {
	nTLV := encodeInteger(n)
	eTLV := encodeInteger(e)
	rsaSeq := append(append([]byte{}, nTLV...), eTLV...)
	rsaSeqTLV := append(ber.WriteTL(ber.ClassUniversal, ber.TagSequence, true, len(rsaSeq)), rsaSeq...)

	bitString := append([]byte{0x00}, rsaSeqTLV...)
	bitStringTLV := append(ber.WriteTL(ber.ClassUniversal, ber.TagBitString, false, len(bitString)), bitString...)

	algOIDTLV := append(ber.WriteTL(ber.ClassUniversal, ber.TagOID, false, len(asn1schema.OIDRSAEncryption.Encode())), asn1schema.OIDRSAEncryption.Encode()...)
	nullTLV := ber.WriteTL(ber.ClassUniversal, ber.TagNull, false, 0)
	algSeq := append(append([]byte{}, algOIDTLV...), nullTLV...)
	algSeqTLV := append(ber.WriteTL(ber.ClassUniversal, ber.TagSequence, true, len(algSeq)), algSeq...)

	spkiContent := append(append([]byte{}, algSeqTLV...), bitStringTLV...)
	return append(ber.WriteTL(ber.ClassUniversal, ber.TagSequence, true, len(spkiContent)), spkiContent...), nil
}

func encodeDSASPKI(y *big.Int) ([]byte, error) {
	yTLV := encodeInteger(y)
	bitString := append([]byte{0x00}, yTLV...)
	bitStringTLV := append(ber.WriteTL(ber.ClassUniversal, ber.TagBitString, false, len(bitString)), bitString...)

	algOIDTLV := append(ber.WriteTL(ber.ClassUniversal, ber.TagOID, false, len(asn1schema.OIDDSA.Encode())), asn1schema.OIDDSA.Encode()...)
	algSeqTLV := append(ber.WriteTL(ber.ClassUniversal, ber.TagSequence, true, len(algOIDTLV)), algOIDTLV...)

	spkiContent := append(append([]byte{}, algSeqTLV...), bitStringTLV...)
	return append(ber.WriteTL(ber.ClassUniversal, ber.TagSequence, true, len(spkiContent)), spkiContent...), nil
}

func encodeInteger(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) == 0 {
		b = []byte{0x00}
	}
	if b[0]&0x80 != 0 {
		b = append([]byte{0x00}, b...)
	}
	return append(ber.WriteTL(ber.ClassUniversal, ber.TagInteger, false, len(b)), b...)
}

// parseRSAPublicSexp extracts n/e from "(public-key (rsa (n #..#)(e #..#)))".
func parseRSAPublicSexp(sexp string) (n, e *big.Int, ok bool) {
	if !bytes.Contains([]byte(sexp), []byte("(rsa")) {
		return nil, nil, false
	}
	nHex, okN := extractHexField(sexp, "n")
	eHex, okE := extractHexField(sexp, "e")
	if !okN || !okE {
		return nil, nil, false
	}
	n, ok1 := new(big.Int).SetString(nHex, 16)
	e, ok2 := new(big.Int).SetString(eHex, 16)
	if !ok1 || !ok2 {
		return nil, nil, false
	}
	return n, e, true
}

func parseDSAPublicSexp(sexp string) (y *big.Int, ok bool) {
	if !bytes.Contains([]byte(sexp), []byte("(dsa")) {
		return nil, false
	}
	yHex, okY := extractHexField(sexp, "y")
	if !okY {
		return nil, false
	}
	y, parsed := new(big.Int).SetString(yHex, 16)
	return y, parsed
}

// extractHexField scans for "(name #hex#)" and returns the hex digits.
func extractHexField(sexp, name string) (string, bool) {
	needle := "(" + name + " #"
	i := bytes.Index([]byte(sexp), []byte(needle))
	if i < 0 {
		return "", false
	}
	start := i + len(needle)
	end := bytes.IndexByte([]byte(sexp[start:]), '#')
	if end < 0 {
		return "", false
	}
	return sexp[start : start+end], true
}
