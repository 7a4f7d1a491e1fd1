// Package der implements the byte-accurate DER decoder/encoder that
// binds a region of an input image to a cloned schema subtree
// (spec.md §4.3, §4.4), plus the tree-copy primitive used when building
// CMS structures out of fragments of other images.
package der

import (
	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/ber"
)

// Image is an immutable byte buffer owned alongside the value tree that
// decodes it (spec.md §3 "Image"). A Value's lifetime must not exceed
// its Image's.
type Image struct {
	Bytes []byte
}

// NewImage wraps a byte slice as an Image. The slice is borrowed, not
// copied — callers must not mutate it while a Value references it.
func NewImage(b []byte) *Image { return &Image{Bytes: b} }

// Absent is the sentinel offset recorded on a Value that is present in
// the schema but absent from the encoded image (spec.md §3 "off = -1").
const Absent = -1

// Value is one node of a decoded value tree: a structural clone of the
// schema subtree it was matched against, carrying the (off, nhdr, len,
// value_type) tuple of spec.md §3 at each non-absent node.
type Value struct {
	// Schema is the schema node this value was decoded against —
	// possibly a TAGGED or TYPE_REF wrapper; use EffClass/EffTag for the
	// tag actually seen on the wire.
	Schema *asn1schema.Node
	Image  *Image

	// FieldName is the name of the field this value occupies in its
	// parent (copied from the schema field node at decode time, since
	// Schema may be a TYPE_REF/TAGGED wrapper whose own Name differs).
	FieldName string

	Off         int // Absent if structurally present but not encoded
	NHdr        int
	Len         int
	EffClass    ber.Class
	EffTag      int
	Constructed bool

	// Children holds, depending on Schema.Type (after unwrapping
	// TYPE_REF/TAGGED): SEQUENCE/SET field values in schema order,
	// SEQUENCE_OF/SET_OF repeated elements, the single inner value for
	// TAGGED, or the single selected alternative for CHOICE.
	Children []*Value

	// ChoiceIndex is the index into the underlying CHOICE node's
	// Children that was selected, or -1 if this value is not a CHOICE.
	ChoiceIndex int

	// store holds bytes written by Store*/CopyTree; when non-nil it
	// takes precedence over Image for Content()/FullBytes().
	store       []byte
	storeNHdr   int
	storeHeader []byte
}

// IsAbsent reports whether this value is structurally present in the
// schema but was not encoded in the image (spec.md §3).
func (v *Value) IsAbsent() bool { return v == nil || (v.store == nil && v.Off == Absent) }

// Content returns the TLV content octets (no tag/length header).
func (v *Value) Content() []byte {
	if v == nil {
		return nil
	}
	if v.store != nil {
		return v.store
	}
	if v.Off == Absent || v.Image == nil {
		return nil
	}
	start := v.Off + v.NHdr
	return v.Image.Bytes[start : start+v.Len]
}

// FullBytes returns the complete TLV span (header + content).
func (v *Value) FullBytes() []byte {
	if v == nil {
		return nil
	}
	if v.store != nil {
		return append(append([]byte{}, v.storeHeader...), v.store...)
	}
	if v.Off == Absent || v.Image == nil {
		return nil
	}
	return v.Image.Bytes[v.Off : v.Off+v.NHdr+v.Len]
}

// Child looks up an immediate child by field name. Returns nil if no
// child carries that name (including when v itself is absent).
func (v *Value) Child(name string) *Value {
	if v == nil {
		return nil
	}
	for _, c := range v.Children {
		if c.FieldName == name {
			return c
		}
	}
	return nil
}

// Unwrap returns the first descendant reached by following single-child
// TAGGED wrappers — useful after decoding an EXPLICIT-tagged field to
// reach the wrapped value directly.
func (v *Value) Unwrap() *Value {
	cur := v
	for cur != nil && cur.Schema != nil && cur.Schema.Type == asn1schema.TAGGED && len(cur.Children) == 1 {
		cur = cur.Children[0]
	}
	return cur
}
