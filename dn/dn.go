// Package dn formats a decoded X.501 Name (RDN sequence) as an RFC 2253
// distinguished-name string — the external collaborator named in
// spec.md §4.6/§6 for certificate issuer/subject rendering.
package dn

import (
	"strings"

	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/der"
	"github.com/pkg/errors"
)

// ErrUnsupportedAttr is returned by Format for an AttributeTypeAndValue
// with no attrType; an attrType with no known short name falls back to
// its dotted OID instead.
var ErrUnsupportedAttr = errors.New("dn: unsupported attribute type")

// shortNames maps the common X.501 attribute OIDs to their RFC 2253
// short forms.
var shortNames = map[string]string{
	"2.5.4.3":  "CN",
	"2.5.4.6":  "C",
	"2.5.4.7":  "L",
	"2.5.4.8":  "ST",
	"2.5.4.9":  "STREET",
	"2.5.4.10": "O",
	"2.5.4.11": "OU",
	"1.2.840.113549.1.9.1": "emailAddress",
}

// Format renders a decoded Name (SEQUENCE OF RDN, RDN = SET OF
// AttributeTypeAndValue) as "OU=...,O=...,C=..." — RDNs joined by
// "," in encoding order, attributes within a multi-valued RDN joined
// by "+". Unknown attribute OIDs fall back to their dotted form.
func Format(name *der.Value) (string, error) {
	if name == nil || name.IsAbsent() {
		return "", nil
	}
	var rdnParts []string
	for _, rdn := range name.Children {
		var avaParts []string
		for _, ava := range rdn.Children {
			s, err := formatAVA(ava)
			if err != nil {
				return "", err
			}
			avaParts = append(avaParts, s)
		}
		rdnParts = append(rdnParts, strings.Join(avaParts, "+"))
	}
	return strings.Join(rdnParts, ","), nil
}

func formatAVA(ava *der.Value) (string, error) {
	typeVal := ava.Child("attrType")
	valueVal := ava.Child("attrValue")
	if typeVal == nil || typeVal.IsAbsent() {
		return "", errors.Wrap(ErrUnsupportedAttr, "missing attrType")
	}
	oid, err := asn1schema.DecodeOID(typeVal.Content())
	if err != nil {
		return "", errors.Wrap(err, "dn: decoding attrType OID")
	}
	label, ok := shortNames[oid.String()]
	if !ok {
		label = oid.String()
	}
	value := decodeDirectoryString(valueVal)
	return label + "=" + escapeValue(value), nil
}

// decodeDirectoryString strips the ANY wrapper's own tag/length and
// returns the underlying string content — PrintableString, UTF8String
// and IA5String all carry their text as raw octets.
func decodeDirectoryString(v *der.Value) string {
	if v == nil || v.IsAbsent() {
		return ""
	}
	return string(v.Content())
}

// escapeValue applies the RFC 2253 §2.4 special-character escaping.
func escapeValue(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch r {
		case ',', '+', '"', '\\', '<', '>', ';':
			b.WriteByte('\\')
			b.WriteRune(r)
		case ' ':
			if i == 0 || i == len(s)-1 {
				b.WriteByte('\\')
			}
			b.WriteByte(' ')
		case '#':
			if i == 0 {
				b.WriteByte('\\')
			}
			b.WriteByte('#')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
