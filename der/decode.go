package der

import (
	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/ber"
	"github.com/pkg/errors"
)

// Decode binds image[pos:] to a clone of the schema subtree rooted at
// field, per spec.md §4.3. It returns the populated value and the
// position immediately following the consumed bytes.
func Decode(image *Image, pos int, field *asn1schema.Node, mod *asn1schema.Module) (*Value, int, error) {
	v, newPos, err := decodeInner(image, pos, field, mod)
	if v != nil && v.FieldName == "" {
		v.FieldName = field.Name
	}
	return v, newPos, err
}

func decodeInner(image *Image, pos int, node *asn1schema.Node, mod *asn1schema.Module) (*Value, int, error) {
	switch node.Type {
	case asn1schema.TYPE_REF:
		resolved, err := mod.Resolve(node.RefName)
		if err != nil {
			return nil, pos, err
		}
		return decodeInner(image, pos, resolved, mod)
	case asn1schema.TAGGED:
		return decodeTagged(image, pos, node, mod)
	case asn1schema.CHOICE:
		return decodeChoice(image, pos, node, mod)
	case asn1schema.SEQUENCE, asn1schema.SET:
		return decodeSequence(image, pos, node, mod)
	case asn1schema.SEQUENCE_OF, asn1schema.SET_OF:
		return decodeRepeated(image, pos, node, mod)
	case asn1schema.ANY:
		return decodeAny(image, pos, node, mod)
	default:
		return decodePrimitive(image, pos, node, mod)
	}
}

func decodePrimitive(image *Image, pos int, node *asn1schema.Node, _ *asn1schema.Module) (*Value, int, error) {
	uni, ok := node.Type.UniversalTag()
	if !ok {
		return nil, pos, errors.Wrapf(ErrUnsupportedType, "%s has no universal tag", node.Type)
	}
	hdr, end, err := ber.TLVEnd(image.Bytes, pos)
	if err != nil {
		return nil, pos, errors.Wrap(err, "reading primitive header")
	}
	if hdr.Class != ber.ClassUniversal || hdr.Tag != uni {
		return nil, pos, errors.Wrapf(ErrUnexpectedTag, "expected universal %s, got class=%#x tag=%d", node.Type, hdr.Class, hdr.Tag)
	}
	contentLen := logicalLen(hdr, pos, end)
	if pos+hdr.HeaderLen+contentLen > len(image.Bytes) {
		return nil, pos, errors.Wrap(ErrPrematureEOF, "primitive content exceeds image bounds")
	}
	return &Value{
		Schema: node, Image: image, Off: pos, NHdr: hdr.HeaderLen, Len: contentLen,
		EffClass: hdr.Class, EffTag: hdr.Tag, Constructed: hdr.Constructed, ChoiceIndex: -1,
	}, end, nil
}

func decodeAny(image *Image, pos int, node *asn1schema.Node, _ *asn1schema.Module) (*Value, int, error) {
	hdr, end, err := ber.TLVEnd(image.Bytes, pos)
	if err != nil {
		return nil, pos, errors.Wrap(err, "reading ANY header")
	}
	contentLen := logicalLen(hdr, pos, end)
	return &Value{
		Schema: node, Image: image, Off: pos, NHdr: hdr.HeaderLen, Len: contentLen,
		EffClass: hdr.Class, EffTag: hdr.Tag, Constructed: hdr.Constructed, ChoiceIndex: -1,
	}, end, nil
}

func logicalLen(hdr ber.Header, pos, end int) int {
	if hdr.ContentLen != ber.Indefinite {
		return hdr.ContentLen
	}
	return end - pos - hdr.HeaderLen - 2
}

// decodeTagged handles "[n] IMPLICIT T" / "[n] EXPLICIT T" (spec.md
// §4.1, §4.3 "implicit tags override... explicit tags are treated as a
// synthetic constructed wrapper").
func decodeTagged(image *Image, pos int, node *asn1schema.Node, mod *asn1schema.Module) (*Value, int, error) {
	inner := node.Element()
	if inner == nil {
		return nil, pos, errors.Wrap(ErrUnsupportedType, "TAGGED node without wrapped type")
	}

	hdr, err := ber.ReadTL(image.Bytes, pos)
	if err != nil {
		return nil, pos, errors.Wrap(err, "reading tagged header")
	}
	if hdr.Class != node.TagClass || hdr.Tag != node.TagNumber {
		return nil, pos, errors.Wrapf(ErrUnexpectedTag, "expected [%d] class=%#x, got class=%#x tag=%d", node.TagNumber, node.TagClass, hdr.Class, hdr.Tag)
	}

	if node.Implicit {
		// The inner type is decoded using this header's class/tag and
		// length; no separate inner TLV exists on the wire.
		_, end, err := ber.TLVEnd(image.Bytes, pos)
		if err != nil {
			return nil, pos, err
		}
		contentLen := logicalLen(hdr, pos, end)

		if inner.Type.IsConstructed() || inner.Type == asn1schema.ANY || inner.Type == asn1schema.CHOICE || inner.Type == asn1schema.TYPE_REF || inner.Type == asn1schema.TAGGED {
			v, err := decodeConstructedBody(image, pos, hdr.HeaderLen, contentLen, inner, mod)
			if err != nil {
				return nil, pos, err
			}
			v.EffClass, v.EffTag = hdr.Class, hdr.Tag
			return v, end, nil
		}

		// Implicitly-tagged primitive: record the span as-is; the
		// content is interpreted by accessors, not by further recursion.
		return &Value{
			Schema: node, Image: image, Off: pos, NHdr: hdr.HeaderLen, Len: contentLen,
			EffClass: hdr.Class, EffTag: hdr.Tag, Constructed: hdr.Constructed, ChoiceIndex: -1,
		}, end, nil
	}

	// EXPLICIT: this TLV's content is exactly one inner TLV.
	innerVal, afterInner, err := Decode(image, pos+hdr.HeaderLen, inner, mod)
	if err != nil {
		return nil, pos, errors.Wrap(err, "decoding explicit-tagged inner value")
	}
	_, end, err := ber.TLVEnd(image.Bytes, pos)
	if err != nil {
		return nil, pos, err
	}
	if afterInner != end {
		return nil, pos, errors.Wrapf(ErrLengthMismatch, "explicit tag [%d]: inner value ends at %d, wrapper ends at %d", node.TagNumber, afterInner, end)
	}
	contentLen := logicalLen(hdr, pos, end)
	return &Value{
		Schema: node, Image: image, Off: pos, NHdr: hdr.HeaderLen, Len: contentLen,
		EffClass: hdr.Class, EffTag: hdr.Tag, Constructed: true, ChoiceIndex: -1,
		Children: []*Value{innerVal},
	}, end, nil
}

// decodeConstructedBody decodes a constructed/ANY/CHOICE node's
// "insides" as though headerLen+contentLen describe its own framing,
// used when an IMPLICIT tag override replaces that node's own header.
func decodeConstructedBody(image *Image, pos, headerLen, contentLen int, node *asn1schema.Node, mod *asn1schema.Module) (*Value, int, error) {
	bodyStart := pos + headerLen
	bodyEnd := bodyStart + contentLen

	switch node.Type {
	case asn1schema.SEQUENCE, asn1schema.SET:
		children, err := decodeFields(image, bodyStart, bodyEnd, node, mod)
		if err != nil {
			return nil, pos, err
		}
		return &Value{Schema: node, Image: image, Off: pos, NHdr: headerLen, Len: contentLen, Constructed: true, ChoiceIndex: -1, Children: children}, nil
	case asn1schema.SEQUENCE_OF, asn1schema.SET_OF:
		children, err := decodeElements(image, bodyStart, bodyEnd, node, mod)
		if err != nil {
			return nil, pos, err
		}
		return &Value{Schema: node, Image: image, Off: pos, NHdr: headerLen, Len: contentLen, Constructed: true, ChoiceIndex: -1, Children: children}, nil
	case asn1schema.ANY:
		return &Value{Schema: node, Image: image, Off: pos, NHdr: headerLen, Len: contentLen, Constructed: true, ChoiceIndex: -1}, nil
	default:
		// TYPE_REF under an implicit override: resolve it and decode once
		// more against the same body span. An implicit tag over CHOICE or
		// TAGGED returns ErrUnsupportedType.
		resolved := node
		if node.Type == asn1schema.TYPE_REF {
			var err error
			resolved, err = mod.Resolve(node.RefName)
			if err != nil {
				return nil, pos, err
			}
			return decodeConstructedBody(image, pos, headerLen, contentLen, resolved, mod)
		}
		return nil, pos, errors.Wrapf(ErrUnsupportedType, "implicit tag over %s unsupported", node.Type)
	}
}

// decodeChoice selects the CHOICE alternative whose tag matches the
// next header (spec.md §4.3).
func decodeChoice(image *Image, pos int, node *asn1schema.Node, mod *asn1schema.Module) (*Value, int, error) {
	for i, alt := range node.Children {
		ok, err := matches(image, pos, alt, mod)
		if err != nil {
			return nil, pos, err
		}
		if !ok {
			continue
		}
		v, newPos, err := Decode(image, pos, alt, mod)
		if err != nil {
			return nil, pos, err
		}
		v.ChoiceIndex = i
		wrapper := &Value{
			Schema: node, Image: image, Off: v.Off, NHdr: v.NHdr, Len: v.Len,
			EffClass: v.EffClass, EffTag: v.EffTag, Constructed: v.Constructed,
			ChoiceIndex: i, Children: []*Value{v},
		}
		return wrapper, newPos, nil
	}
	if node.Optional {
		return &Value{Schema: node, Off: Absent, ChoiceIndex: -1}, pos, nil
	}
	return nil, pos, errors.Wrap(ErrChoiceNoMatch, "no alternative matched")
}

// decodeSequence walks SEQUENCE/SET children in schema order (spec.md
// §4.3): peek the next header and either match-and-consume, or, for an
// OPTIONAL/DEFAULT child whose tag does not match, mark absent and
// advance to the next schema child without consuming input.
func decodeSequence(image *Image, pos int, node *asn1schema.Node, mod *asn1schema.Module) (*Value, int, error) {
	hdr, end, err := ber.TLVEnd(image.Bytes, pos)
	if err != nil {
		return nil, pos, errors.Wrap(err, "reading SEQUENCE/SET header")
	}
	uni, _ := node.Type.UniversalTag()
	if hdr.Class != ber.ClassUniversal || hdr.Tag != uni {
		return nil, pos, errors.Wrapf(ErrUnexpectedTag, "expected %s, got class=%#x tag=%d", node.Type, hdr.Class, hdr.Tag)
	}
	contentLen := logicalLen(hdr, pos, end)
	bodyStart := pos + hdr.HeaderLen
	bodyEnd := bodyStart + contentLen

	children, err := decodeFields(image, bodyStart, bodyEnd, node, mod)
	if err != nil {
		return nil, pos, err
	}

	return &Value{
		Schema: node, Image: image, Off: pos, NHdr: hdr.HeaderLen, Len: contentLen,
		EffClass: hdr.Class, EffTag: hdr.Tag, Constructed: true, ChoiceIndex: -1, Children: children,
	}, end, nil
}

func decodeFields(image *Image, bodyStart, bodyEnd int, node *asn1schema.Node, mod *asn1schema.Module) ([]*Value, error) {
	children := make([]*Value, 0, len(node.Children))
	cur := bodyStart
	for _, field := range node.Children {
		if cur >= bodyEnd {
			if field.Optional {
				children = append(children, &Value{Schema: field, FieldName: field.Name, Off: Absent, ChoiceIndex: -1})
				continue
			}
			return nil, errors.Wrapf(ErrUnexpectedTag, "missing mandatory field %q", field.Name)
		}

		ok, err := matches(image, cur, field, mod)
		if err != nil {
			return nil, err
		}
		if !ok {
			if field.Optional {
				children = append(children, &Value{Schema: field, FieldName: field.Name, Off: Absent, ChoiceIndex: -1})
				continue
			}
			return nil, errors.Wrapf(ErrUnexpectedTag, "field %q: tag mismatch", field.Name)
		}

		v, newPos, err := Decode(image, cur, field, mod)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", field.Name)
		}
		children = append(children, v)
		cur = newPos
	}
	if cur != bodyEnd {
		return nil, errors.Wrapf(ErrLengthMismatch, "declared content end %d does not match consumed %d", bodyEnd, cur)
	}
	return children, nil
}

// decodeRepeated decodes SEQUENCE OF/SET OF: clone the element schema
// and append until parent length is consumed (spec.md §4.3).
func decodeRepeated(image *Image, pos int, node *asn1schema.Node, mod *asn1schema.Module) (*Value, int, error) {
	hdr, end, err := ber.TLVEnd(image.Bytes, pos)
	if err != nil {
		return nil, pos, errors.Wrap(err, "reading SEQUENCE OF/SET OF header")
	}
	uni, _ := node.Type.UniversalTag()
	if hdr.Class != ber.ClassUniversal || hdr.Tag != uni {
		return nil, pos, errors.Wrapf(ErrUnexpectedTag, "expected %s, got class=%#x tag=%d", node.Type, hdr.Class, hdr.Tag)
	}
	contentLen := logicalLen(hdr, pos, end)
	bodyStart := pos + hdr.HeaderLen
	bodyEnd := bodyStart + contentLen

	children, err := decodeElements(image, bodyStart, bodyEnd, node, mod)
	if err != nil {
		return nil, pos, err
	}

	return &Value{
		Schema: node, Image: image, Off: pos, NHdr: hdr.HeaderLen, Len: contentLen,
		EffClass: hdr.Class, EffTag: hdr.Tag, Constructed: true, ChoiceIndex: -1, Children: children,
	}, end, nil
}

func decodeElements(image *Image, bodyStart, bodyEnd int, node *asn1schema.Node, mod *asn1schema.Module) ([]*Value, error) {
	elem := node.Element()
	if elem == nil {
		return nil, errors.Wrap(ErrUnsupportedType, "SEQUENCE OF/SET OF without element type")
	}
	var children []*Value
	cur := bodyStart
	for cur < bodyEnd {
		v, newPos, err := Decode(image, cur, elem, mod)
		if err != nil {
			return nil, errors.Wrapf(err, "element %d", len(children))
		}
		children = append(children, v)
		cur = newPos
	}
	if cur != bodyEnd {
		return nil, errors.Wrap(ErrLengthMismatch, "repeated elements overran declared content")
	}
	return children, nil
}

// matches reports whether the header at image[pos:] is compatible with
// field without consuming it — used by decodeFields/decodeChoice to
// decide whether an OPTIONAL/DEFAULT field or CHOICE alternative is
// present.
func matches(image *Image, pos int, field *asn1schema.Node, mod *asn1schema.Module) (bool, error) {
	class, tag, multi, err := effectiveTags(field, mod)
	if err != nil {
		return false, err
	}
	if pos >= len(image.Bytes) {
		return false, nil
	}
	hdr, err := ber.ReadTL(image.Bytes, pos)
	if err != nil {
		return false, nil //nolint:nilerr // a malformed header here just means "does not match"; the real decode call surfaces the real error.
	}
	if multi != nil {
		for _, alt := range multi {
			if hdr.Class == alt.class && hdr.Tag == alt.tag {
				return true, nil
			}
		}
		return false, nil
	}
	return hdr.Class == class && hdr.Tag == tag, nil
}

type tagPair struct {
	class ber.Class
	tag   int
}

// effectiveTags computes the (class,tag) an encoded field/alternative
// would present on the wire. For CHOICE nodes it instead returns the
// full set of alternative tags via multi.
func effectiveTags(field *asn1schema.Node, mod *asn1schema.Module) (class ber.Class, tag int, multi []tagPair, err error) {
	switch field.Type {
	case asn1schema.TYPE_REF:
		resolved, rerr := mod.Resolve(field.RefName)
		if rerr != nil {
			return 0, 0, nil, rerr
		}
		return effectiveTags(resolved, mod)
	case asn1schema.TAGGED:
		return field.TagClass, field.TagNumber, nil, nil
	case asn1schema.CHOICE:
		var pairs []tagPair
		for _, alt := range field.Children {
			c, t, m, err := effectiveTags(alt, mod)
			if err != nil {
				return 0, 0, nil, err
			}
			if m != nil {
				pairs = append(pairs, m...)
			} else {
				pairs = append(pairs, tagPair{c, t})
			}
		}
		return 0, 0, pairs, nil
	default:
		uni, ok := field.Type.UniversalTag()
		if !ok {
			return 0, 0, nil, errors.Wrapf(ErrUnsupportedType, "%s has no intrinsic tag", field.Type)
		}
		return ber.ClassUniversal, uni, nil, nil
	}
}
