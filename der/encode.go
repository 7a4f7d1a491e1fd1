package der

import (
	"time"

	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/ber"
	"github.com/pkg/errors"
)

// Encode serializes a value tree back to DER bytes (spec.md §4.4). It
// walks Children when present and falls back to Content()/FullBytes()
// for leaf/absent nodes, so a tree that mixes freshly-built (Store*)
// nodes with nodes copied from another image round-trips correctly.
func Encode(v *Value) ([]byte, error) {
	if v == nil || v.IsAbsent() {
		return nil, nil
	}
	if v.store != nil {
		return append(append([]byte{}, v.storeHeader...), v.store...), nil
	}
	if len(v.Children) == 0 {
		return v.FullBytes(), nil
	}

	var content []byte
	for _, c := range v.Children {
		if c.IsAbsent() {
			continue
		}
		b, err := Encode(c)
		if err != nil {
			return nil, err
		}
		content = append(content, b...)
	}
	header := ber.WriteTL(v.EffClass, v.EffTag, true, len(content))
	return append(header, content...), nil
}

// mkLeaf builds a freshly-encoded leaf value holding header+content,
// independent of any source Image — used by the Store* mutators below.
func mkLeaf(schema *asn1schema.Node, class ber.Class, tag int, content []byte) *Value {
	header := ber.WriteTL(class, tag, false, len(content))
	return &Value{
		Schema: schema, EffClass: class, EffTag: tag, ChoiceIndex: -1,
		store: content, storeHeader: header, storeNHdr: len(header),
	}
}

// StoreOID builds a leaf value carrying oid's DER encoding, for use when
// constructing a SignedData/SignerInfo fragment from scratch rather than
// by copying one out of a decoded image (spec.md §4.4).
func StoreOID(oid asn1schema.OID) *Value {
	return mkLeaf(&asn1schema.Node{Type: asn1schema.OID}, ber.ClassUniversal, ber.TagOID, oid.Encode())
}

// StoreOctetString builds a leaf OCTET STRING value wrapping content.
func StoreOctetString(content []byte) *Value {
	return mkLeaf(&asn1schema.Node{Type: asn1schema.OCTET_STRING}, ber.ClassUniversal, ber.TagOctetString, content)
}

// StoreInteger builds a leaf INTEGER value from a big-endian,
// minimal two's-complement encoding of a non-negative n. Callers with
// values larger than fit in an int should build the byte form directly
// via StoreIntegerBytes.
func StoreInteger(n int64) *Value {
	return StoreIntegerBytes(minimalIntBytes(n))
}

// StoreIntegerBytes builds a leaf INTEGER value from pre-encoded,
// minimal DER content octets (e.g. a certificate serial number copied
// out of another structure).
func StoreIntegerBytes(content []byte) *Value {
	return mkLeaf(&asn1schema.Node{Type: asn1schema.INTEGER}, ber.ClassUniversal, ber.TagInteger, content)
}

// StoreUTCTime builds a leaf UTCTime value from t, in the YYMMDDHHMMSSZ
// form certreader's pivotYear expects on the way back in.
func StoreUTCTime(t time.Time) *Value {
	content := []byte(t.UTC().Format("060102150405") + "Z")
	return mkLeaf(&asn1schema.Node{Type: asn1schema.UTC_TIME}, ber.ClassUniversal, ber.TagUTCTime, content)
}

// StoreUTCTimeNow builds a leaf UTCTime value for the current instant —
// the signingTime signed attribute's value.
func StoreUTCTimeNow() *Value {
	return StoreUTCTime(time.Now())
}

func minimalIntBytes(n int64) []byte {
	if n == 0 {
		return []byte{0x00}
	}
	var out []byte
	v := uint64(n)
	for v > 0 {
		out = append([]byte{byte(v & 0xff)}, out...)
		v >>= 8
	}
	if out[0]&0x80 != 0 {
		out = append([]byte{0x00}, out...)
	}
	return out
}

// StoreNull builds a leaf NULL value — the common AlgorithmIdentifier
// parameters encoding for RSA/GOST algorithm OIDs that carry no params.
func StoreNull() *Value {
	return mkLeaf(&asn1schema.Node{Type: asn1schema.NULL}, ber.ClassUniversal, ber.TagNull, nil)
}

// StoreRaw wraps pre-built, already-DER-encoded full TLV bytes (header
// included) as a leaf value — used when splicing in an ANY-typed value
// (e.g. AlgorithmIdentifier.parameters, or a signature OCTET STRING)
// whose content was produced outside this package.
func StoreRaw(schema *asn1schema.Node, fullBytes []byte) (*Value, error) {
	hdr, err := ber.ReadTL(fullBytes, 0)
	if err != nil {
		return nil, errors.Wrap(err, "StoreRaw: invalid TLV")
	}
	return &Value{
		Schema: schema, EffClass: hdr.Class, EffTag: hdr.Tag, ChoiceIndex: -1,
		store: fullBytes[hdr.HeaderLen:], storeHeader: fullBytes[:hdr.HeaderLen], storeNHdr: hdr.HeaderLen,
	}, nil
}

// StoreConstructed builds a constructed (SEQUENCE/SET/explicit-tag)
// value out of already-built children, computing its own header from
// their encoded lengths.
func StoreConstructed(schema *asn1schema.Node, class ber.Class, tag int, children []*Value) *Value {
	return &Value{
		Schema: schema, EffClass: class, EffTag: tag, Constructed: true,
		ChoiceIndex: -1, Children: children,
	}
}
