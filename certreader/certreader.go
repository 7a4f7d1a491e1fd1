// Package certreader implements the read-only X.509 certificate
// accessors of spec.md §4.6 on top of the schema-driven der/nav
// engine: serial number, issuer/subject (plain DN and SAN/IAN
// alternative names), validity, public key and signature bridging via
// sexpkey, and the extension enumerator plus semantic extension
// accessors.
package certreader

import (
	"encoding/binary"

	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/der"
	"github.com/LdDl/ksba-go/dn"
	"github.com/LdDl/ksba-go/nav"
	"github.com/LdDl/ksba-go/sexpkey"
	"github.com/LdDl/ksba-go/streamio"
	"github.com/pkg/errors"
)

// Certificate owns a decoded Certificate value tree and the image it
// was decoded from. Its lifetime must not exceed the byte slice passed
// to ReadDER (spec.md §5 "every image is owned exclusively by exactly
// one value tree").
type Certificate struct {
	image *der.Image
	root  *der.Value
	tbs   *der.Value
}

// ReadDER decodes exactly one Certificate from buf (spec.md §4.6
// "read_der").
func ReadDER(buf []byte) (*Certificate, error) {
	mod := asn1schema.DefaultModule
	schema, err := mod.Expand(asn1schema.ProdCertificate)
	if err != nil {
		return nil, errors.Wrap(err, "certreader: loading Certificate schema")
	}
	img := der.NewImage(buf)
	v, _, err := der.Decode(img, 0, schema, mod)
	if err != nil {
		return nil, errors.Wrap(err, "certreader: decoding Certificate")
	}
	tbs := v.Child("tbsCertificate")
	if tbs == nil || tbs.IsAbsent() {
		return nil, errors.Wrap(ErrInvalidData, "missing tbsCertificate")
	}
	return &Certificate{image: img, root: v, tbs: tbs}, nil
}

// ReadFrom drains r to completion and decodes exactly one Certificate
// from the result (spec.md §6's stream contract, for callers holding an
// io.Reader rather than an in-memory buffer — e.g. an HTTP request body
// or a file already opened by the caller).
func ReadFrom(r streamio.Reader) (*Certificate, error) {
	buf, err := streamio.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "certreader: reading stream")
	}
	return ReadDER(buf)
}

// Root returns the decoded Certificate value tree, for packages (e.g.
// cms) that need to pull fields — issuer, serialNumber — out of a
// signer's certificate directly rather than through this package's own
// accessors.
func (c *Certificate) Root() *der.Value { return c.root }

// GetSerial returns the certificate's serial number as raw (minimal,
// possibly sign-padded) INTEGER content octets, wrapped in a
// length-prefixed binary: a 4-byte big-endian length followed by the
// octets themselves (spec.md §4.6 "get_serial").
func (c *Certificate) GetSerial() ([]byte, error) {
	serial := c.tbs.Child("serialNumber")
	if serial == nil || serial.IsAbsent() {
		return nil, errors.Wrap(ErrNoData, "serialNumber")
	}
	content := serial.Content()
	out := make([]byte, 4+len(content))
	binary.BigEndian.PutUint32(out[:4], uint32(len(content)))
	copy(out[4:], content)
	return out, nil
}

// GetIssuer returns index 0 as the formatted DN of the issuer RDN
// sequence, and indices 1.. as alternative names mined from
// IssuerAltName (spec.md §4.6 "get_issuer(idx)"); ErrValueNotFound past
// the end.
func (c *Certificate) GetIssuer(idx int) (string, error) {
	return c.name(c.tbs.Child("issuer"), asn1schema.OIDIssuerAltName, idx)
}

// GetSubject is GetIssuer's counterpart over the subject RDN sequence
// and SubjectAltName.
func (c *Certificate) GetSubject(idx int) (string, error) {
	return c.name(c.tbs.Child("subject"), asn1schema.OIDSubjectAltName, idx)
}

func (c *Certificate) name(rdnSeq *der.Value, altNameOID asn1schema.OID, idx int) (string, error) {
	if idx == 0 {
		if rdnSeq == nil || rdnSeq.IsAbsent() {
			return "", errors.Wrap(ErrNoData, "name")
		}
		return dn.Format(rdnSeq)
	}

	altVal, err := c.extensionValue(altNameOID)
	if err != nil {
		return "", err
	}
	names, err := decodeGeneralNames(altVal)
	if err != nil {
		return "", err
	}
	n := idx - 1
	if n >= len(names) {
		return "", errors.Wrapf(ErrValueNotFound, "alternative name index %d", idx)
	}
	return names[n], nil
}

// Validity selects notBefore or notAfter for GetValidity.
type Validity int

const (
	NotBefore Validity = iota
	NotAfter
)

// GetValidity fills a 15-character "YYYYMMDDThhmmss" timestamp (spec.md
// §4.6), pivoting two-digit UTCTime years at 2049 (00-49 -> 2000-2049,
// 50-99 -> 1950-1999).
func (c *Certificate) GetValidity(which Validity) (string, error) {
	validity := c.tbs.Child("validity")
	if validity == nil || validity.IsAbsent() {
		return "", errors.Wrap(ErrNoData, "validity")
	}
	var timeVal *der.Value
	switch which {
	case NotBefore:
		timeVal = validity.Child("notBefore")
	case NotAfter:
		timeVal = validity.Child("notAfter")
	}
	if timeVal == nil || timeVal.IsAbsent() {
		return "", errors.Wrap(ErrNoData, "validity field")
	}
	if len(timeVal.Children) != 1 {
		return "", errors.Wrap(ErrInvalidData, "Time CHOICE with no alternative selected")
	}
	return formatTime(timeVal.Children[0])
}

func formatTime(v *der.Value) (string, error) {
	raw := string(v.Content())
	switch {
	case len(raw) == 13 && raw[12] == 'Z': // UTCTime YYMMDDhhmmssZ
		yy := raw[0:2]
		year := pivotYear(yy)
		return year + raw[2:4] + raw[4:6] + "T" + raw[6:8] + raw[8:10] + raw[10:12], nil
	case len(raw) == 15 && raw[14] == 'Z': // GeneralizedTime YYYYMMDDhhmmssZ
		return raw[0:8] + "T" + raw[8:14], nil
	default:
		return "", errors.Wrapf(ErrInvalidData, "unrecognized time encoding %q", raw)
	}
}

func pivotYear(yy string) string {
	n := int((yy[0]-'0')*10 + (yy[1] - '0'))
	if n <= 49 {
		return "20" + yy
	}
	return "19" + yy
}

// GetPublicKey bridges subjectPublicKeyInfo to its canonical
// public-key S-expression via sexpkey.
func (c *Certificate) GetPublicKey() (string, error) {
	spki := c.tbs.Child("subjectPublicKeyInfo")
	if spki == nil || spki.IsAbsent() {
		return "", errors.Wrap(ErrNoData, "subjectPublicKeyInfo")
	}
	s, err := sexpkey.PublicKeyToSexp(spki)
	if err != nil {
		return "", errors.Wrap(err, "certreader: bridging public key")
	}
	return s, nil
}

// GetSigVal bridges signatureAlgorithm+signatureValue to its canonical
// sig-val S-expression via sexpkey.
func (c *Certificate) GetSigVal() (string, error) {
	algVal := c.root.Child("signatureAlgorithm")
	sigVal := c.root.Child("signatureValue")
	if algVal == nil || algVal.IsAbsent() || sigVal == nil || sigVal.IsAbsent() {
		return "", errors.Wrap(ErrNoData, "signatureAlgorithm/signatureValue")
	}
	oidVal := algVal.Child("algorithm")
	oid, err := asn1schema.DecodeOID(oidVal.Content())
	if err != nil {
		return "", errors.Wrap(err, "certreader: decoding signatureAlgorithm OID")
	}
	s, err := sexpkey.SigValToSexp(oid, sigVal)
	if err != nil {
		return "", errors.Wrap(err, "certreader: bridging signature value")
	}
	return s, nil
}

// Hash returns the raw TBSCertificate span — supplemented from
// libksba's cert.c, which exposes this as the fingerprint input for
// callers that hash it themselves; the core still performs no
// cryptography.
func (c *Certificate) Hash() []byte {
	return append([]byte{}, c.tbs.FullBytes()...)
}

// IsSelfSigned reports whether the issuer and subject RDN sequences
// have byte-identical DER encodings — a pure comparison, supplemented
// from libksba, that does not require chain validation.
func (c *Certificate) IsSelfSigned() bool {
	issuer := c.tbs.Child("issuer")
	subject := c.tbs.Child("subject")
	if issuer == nil || subject == nil || issuer.IsAbsent() || subject.IsAbsent() {
		return false
	}
	return string(issuer.FullBytes()) == string(subject.FullBytes())
}

// Find exposes the navigator over the decoded Certificate tree for
// callers that need an accessor this package does not provide.
func (c *Certificate) Find(path string) (*der.Value, error) {
	return nav.Find(c.root, path)
}
