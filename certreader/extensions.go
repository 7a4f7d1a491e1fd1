package certreader

import (
	"strconv"
	"strings"

	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/der"
	"github.com/LdDl/ksba-go/dn"
	"github.com/pkg/errors"
)

// Extension is one decoded extension record yielded by GetExtension
// (spec.md §4.6 "get_extension(idx, &oid, &crit, &off, &len)").
type Extension struct {
	OID      asn1schema.OID
	Critical bool
	Value    *der.Value // extnValue's OCTET STRING content span
}

// GetExtension yields extensions in certificate order; ErrValueNotFound
// past the end.
func (c *Certificate) GetExtension(idx int) (Extension, error) {
	extensions := c.tbs.Child("extensions")
	if extensions == nil || extensions.IsAbsent() {
		return Extension{}, errors.Wrap(ErrValueNotFound, "no extensions present")
	}
	inner := extensions.Unwrap()
	if idx >= len(inner.Children) {
		return Extension{}, errors.Wrapf(ErrValueNotFound, "extension index %d", idx)
	}
	ext := inner.Children[idx]
	oidVal := ext.Child("extnID")
	critVal := ext.Child("critical")
	valVal := ext.Child("extnValue")
	if oidVal == nil || oidVal.IsAbsent() || valVal == nil || valVal.IsAbsent() {
		return Extension{}, errors.Wrapf(ErrInvalidData, "extension %d malformed", idx)
	}
	oid, err := asn1schema.DecodeOID(oidVal.Content())
	if err != nil {
		return Extension{}, errors.Wrapf(err, "extension %d: decoding extnID", idx)
	}
	crit := false
	if critVal != nil && !critVal.IsAbsent() && len(critVal.Content()) == 1 {
		crit = critVal.Content()[0] != 0x00
	}
	return Extension{OID: oid, Critical: crit, Value: valVal}, nil
}

// extensionValue returns the first extension's extnValue matching oid,
// or ErrNoData if none is present.
func (c *Certificate) extensionValue(oid asn1schema.OID) (*der.Value, error) {
	for i := 0; ; i++ {
		ext, err := c.GetExtension(i)
		if err != nil {
			return nil, errors.Wrap(ErrNoData, oid.String())
		}
		if ext.OID.Equal(oid) {
			return ext.Value, nil
		}
	}
}

// decodeExtensionAs decodes an extnValue's raw OCTET STRING content
// (itself a nested DER value) against production.
func decodeExtensionAs(extnValue *der.Value, production string) (*der.Value, error) {
	mod := asn1schema.DefaultModule
	schema, err := mod.Expand(production)
	if err != nil {
		return nil, err
	}
	content := extnValue.Content()
	img := der.NewImage(content)
	v, pos, err := der.Decode(img, 0, schema, mod)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidData, "decoding %s: %v", production, err)
	}
	if pos != len(content) {
		return nil, errors.Wrapf(ErrInvalidData, "%s: trailing bytes after extension content", production)
	}
	return v, nil
}

// IsCA reads BasicConstraints; returns (false, nil) if absent (spec.md
// §4.6 "returning (false,0) if absent").
func (c *Certificate) IsCA() (bool, error) {
	val, err := c.extensionValue(asn1schema.OIDBasicConstraints)
	if errors.Is(err, ErrNoData) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	bc, err := decodeExtensionAs(val, asn1schema.ProdBasicConstraints)
	if err != nil {
		return false, err
	}
	cA := bc.Child("cA")
	if cA == nil || cA.IsAbsent() {
		return false, nil
	}
	content := cA.Content()
	return len(content) == 1 && content[0] != 0x00, nil
}

// KeyUsage is the bit-set of spec.md §4.6 ("LSB is bit 0 of the BIT
// STRING as encoded").
type KeyUsage uint16

const (
	KeyUsageDigitalSignature KeyUsage = 1 << iota
	KeyUsageNonRepudiation
	KeyUsageKeyEncipherment
	KeyUsageDataEncipherment
	KeyUsageKeyAgreement
	KeyUsageKeyCertSign
	KeyUsageCRLSign
	KeyUsageEncipherOnly
	KeyUsageDecipherOnly
)

// GetKeyUsage reads the KeyUsage BIT STRING extension and projects it
// to the KeyUsage flag set.
func (c *Certificate) GetKeyUsage() (KeyUsage, error) {
	val, err := c.extensionValue(asn1schema.OIDKeyUsage)
	if err != nil {
		return 0, err
	}
	content := val.Content()
	if len(content) < 2 {
		return 0, errors.Wrap(ErrInvalidData, "KeyUsage BIT STRING too short")
	}
	bits := content[1:]
	var ku KeyUsage
	for bitIndex := 0; bitIndex < 9; bitIndex++ {
		byteIdx := bitIndex / 8
		if byteIdx >= len(bits) {
			break
		}
		// DER BIT STRING bit 0 is the MSB of the first content octet.
		mask := byte(0x80 >> uint(bitIndex%8))
		if bits[byteIdx]&mask != 0 {
			ku |= 1 << uint(bitIndex)
		}
	}
	return ku, nil
}

// GetCertPolicies reads CertificatePolicies and returns newline-separated
// "OID [qualifier]" lines (spec.md §4.6).
func (c *Certificate) GetCertPolicies() (string, error) {
	val, err := c.extensionValue(asn1schema.OIDCertificatePolicies)
	if err != nil {
		return "", err
	}
	policies, err := decodeExtensionAs(val, asn1schema.ProdCertificatePolicies)
	if err != nil {
		return "", err
	}
	var lines []string
	for _, pol := range policies.Children {
		oidVal := pol.Child("policyIdentifier")
		oid, err := asn1schema.DecodeOID(oidVal.Content())
		if err != nil {
			return "", errors.Wrap(err, "certreader: decoding policyIdentifier")
		}
		line := oid.String()
		if quals := pol.Child("policyQualifiers"); quals != nil && !quals.IsAbsent() {
			var qparts []string
			for _, q := range quals.Children {
				qoidVal := q.Child("policyQualifierId")
				qoid, err := asn1schema.DecodeOID(qoidVal.Content())
				if err == nil {
					qparts = append(qparts, qoid.String())
				}
			}
			if len(qparts) > 0 {
				line += " [" + strings.Join(qparts, ",") + "]"
			}
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

// AuthKeyID is the decoded AuthorityKeyIdentifier extension (spec.md
// §4.6 "get_auth_key_id returns keyIdentifier/name/serial").
type AuthKeyID struct {
	KeyIdentifier []byte
	Names         []string
	SerialNumber  []byte
}

// GetAuthKeyID reads the AuthorityKeyIdentifier extension.
func (c *Certificate) GetAuthKeyID() (AuthKeyID, error) {
	val, err := c.extensionValue(asn1schema.OIDAuthorityKeyIdentifier)
	if err != nil {
		return AuthKeyID{}, err
	}
	aki, err := decodeExtensionAs(val, asn1schema.ProdAuthorityKeyIdentifier)
	if err != nil {
		return AuthKeyID{}, err
	}
	var out AuthKeyID
	if kid := aki.Child("keyIdentifier"); kid != nil && !kid.IsAbsent() {
		out.KeyIdentifier = kid.Content()
	}
	if names := aki.Child("authorityCertIssuer"); names != nil && !names.IsAbsent() {
		out.Names, err = decodeGeneralNames(names)
		if err != nil {
			return AuthKeyID{}, err
		}
	}
	if serial := aki.Child("authorityCertSerialNumber"); serial != nil && !serial.IsAbsent() {
		out.SerialNumber = serial.Content()
	}
	return out, nil
}

// DistributionPoint is one entry yielded by GetCRLDistPoint.
type DistributionPoint struct {
	Names       []string
	ReasonFlags uint16
	IssuerNames []string
}

// GetCRLDistPoint enumerates distribution points with per-point names,
// reason flags, and issuer names; ErrValueNotFound past the end.
func (c *Certificate) GetCRLDistPoint(idx int) (DistributionPoint, error) {
	val, err := c.extensionValue(asn1schema.OIDCRLDistributionPoints)
	if err != nil {
		return DistributionPoint{}, err
	}
	points, err := decodeExtensionAs(val, asn1schema.ProdCRLDistributionPoints)
	if err != nil {
		return DistributionPoint{}, err
	}
	if idx >= len(points.Children) {
		return DistributionPoint{}, errors.Wrapf(ErrValueNotFound, "distribution point index %d", idx)
	}
	point := points.Children[idx]
	var out DistributionPoint

	if dpName := point.Child("distributionPoint"); dpName != nil && !dpName.IsAbsent() {
		choice := dpName.Unwrap()
		if len(choice.Children) == 1 {
			switch choice.ChoiceIndex {
			case 0: // fullName [0] IMPLICIT GeneralNames
				names, err := decodeGeneralNames(choice.Children[0])
				if err == nil {
					out.Names = names
				}
			case 1: // nameRelativeToCRLIssuer [1] IMPLICIT RDN
				if formatted, err := dn.Format(wrapAsName(choice.Children[0])); err == nil {
					out.Names = []string{formatted}
				}
			}
		}
	}
	if reasons := point.Child("reasons"); reasons != nil && !reasons.IsAbsent() {
		content := reasons.Content()
		if len(content) >= 2 {
			out.ReasonFlags = uint16(content[1])
			if len(content) >= 3 {
				out.ReasonFlags |= uint16(content[2]) << 8
			}
		}
	}
	if issuer := point.Child("cRLIssuer"); issuer != nil && !issuer.IsAbsent() {
		names, err := decodeGeneralNames(issuer)
		if err == nil {
			out.IssuerNames = names
		}
	}
	return out, nil
}

// wrapAsName lifts a single RDN (SET OF AttributeTypeAndValue) into a
// one-element Name (SEQUENCE OF RDN) so dn.Format can render it.
func wrapAsName(rdn *der.Value) *der.Value {
	return &der.Value{Children: []*der.Value{rdn}, Constructed: true}
}

// decodeGeneralNames renders each GeneralName in a GeneralNames value
// as a display string: directoryName via dn.Format, rfc822Name/dNSName/
// uniformResourceIdentifier as their raw IA5String text, iPAddress as
// dotted-decimal octets, registeredID as "oid:<dotted>", and otherName
// as "othername:<choice index>".
func decodeGeneralNames(names *der.Value) ([]string, error) {
	if names == nil || names.IsAbsent() {
		return nil, nil
	}
	seq := names.Unwrap()
	var out []string
	for _, gn := range seq.Children {
		s, err := formatGeneralName(gn)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func formatGeneralName(gn *der.Value) (string, error) {
	choice := gn
	if len(choice.Children) != 1 {
		return "", errors.Wrap(ErrInvalidData, "GeneralName with no alternative selected")
	}
	alt := choice.Children[0]
	// Alternative order mirrors the GeneralName production in
	// asn1schema/builtin.go: 0=otherName, 1=rfc822Name, 2=dNSName,
	// 3=directoryName, 4=uniformResourceIdentifier, 5=iPAddress,
	// 6=registeredID.
	switch choice.ChoiceIndex {
	case 1, 2, 4: // rfc822Name, dNSName, uniformResourceIdentifier
		return string(alt.Content()), nil
	case 3: // directoryName [4] EXPLICIT Name
		return dn.Format(alt.Unwrap())
	case 5: // iPAddress [7] IMPLICIT OCTET STRING
		return ipBytesToString(alt.Content()), nil
	case 6: // registeredID [8] IMPLICIT OID
		oid, err := asn1schema.DecodeOID(alt.Content())
		if err != nil {
			return "", err
		}
		return "oid:" + oid.String(), nil
	default:
		return "othername:" + strconv.Itoa(choice.ChoiceIndex), nil
	}
}

func ipBytesToString(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, ".")
}
