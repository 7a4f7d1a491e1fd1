// Package nav implements the path-addressed lookup over a decoded
// value tree (spec.md §4.5): a small dotted-segment DSL with ".." as an
// any-depth wildcard, plus a typed-value search (FindTypeValue) for the
// nth SEQUENCE whose first child is a given OID, such as a named
// attribute in a SET OF.
package nav

import (
	"strings"

	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/ber"
	"github.com/LdDl/ksba-go/der"
	"github.com/pkg/errors"
)

// Sentinel errors (spec.md §4.5, §7).
var (
	ErrEmptyPath    = errors.New("nav: empty path")
	ErrNotFound     = errors.New("nav: no node matched path")
	ErrInvalidMatch = errors.New("nav: invalid path match target")
)

// segment is one dot-separated path element. An empty Name marks a ".."
// wildcard: "match zero-or-more intermediate named nodes."
type segment struct {
	Name     string
	Wildcard bool
}

// Path is a compiled dotted path, ready to be matched against a tree
// with Find without re-parsing the string each call.
type Path struct {
	segments []segment
}

// Compile parses path into a Path once; repeated Find calls against the
// same path string should reuse the result (spec.md §4.5).
func Compile(path string) (Path, error) {
	if path == "" {
		return Path{}, ErrEmptyPath
	}
	parts := strings.Split(path, ".")
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			segs = append(segs, segment{Wildcard: true})
			continue
		}
		segs = append(segs, segment{Name: p})
	}
	return Path{segments: segs}, nil
}

// MustCompile is Compile, panicking on error — for fixed lookup paths
// compiled once and reused.
func MustCompile(path string) Path {
	p, err := Compile(path)
	if err != nil {
		panic(err)
	}
	return p
}

// Find interprets path as dot-separated segments (spec.md §4.5): a
// literal segment matches by node name at the current depth; ".."
// matches zero-or-more intermediate named nodes, greedily descending
// the first-child chain until a later segment matches, tie-broken
// first-child-first depth-first.
func Find(root *der.Value, path string) (*der.Value, error) {
	p, err := Compile(path)
	if err != nil {
		return nil, err
	}
	return p.Find(root)
}

// Find runs a pre-compiled Path against root.
func (p Path) Find(root *der.Value) (*der.Value, error) {
	if len(p.segments) == 0 {
		return nil, ErrEmptyPath
	}
	v := matchSegments(root, p.segments)
	if v == nil {
		return nil, errors.Wrapf(ErrNotFound, "path with %d segment(s)", len(p.segments))
	}
	return v, nil
}

// matchSegments consumes segs against v depth-first. The first segment
// is expected to name v itself (so callers pass the same root name the
// path starts with, mirroring how certreader's Certificate.Find
// addresses fields from a known top node).
func matchSegments(v *der.Value, segs []segment) *der.Value {
	if v == nil || len(segs) == 0 {
		return nil
	}
	head := segs[0]
	rest := segs[1:]

	if head.Wildcard {
		if len(rest) == 0 {
			return v
		}
		return matchWildcard(v, rest)
	}

	if v.FieldName != head.Name {
		return nil
	}
	if len(rest) == 0 {
		return v
	}
	return matchChildren(v, rest)
}

// matchChildren tries each child of v against segs in turn — segs[0]
// must match a child's name directly (no wildcard consumed yet).
func matchChildren(v *der.Value, segs []segment) *der.Value {
	head := segs[0]
	if head.Wildcard {
		return matchWildcard(v, segs[1:])
	}
	for _, c := range v.Children {
		if c.FieldName == head.Name {
			if len(segs) == 1 {
				return c
			}
			if r := matchChildren(c, segs[1:]); r != nil {
				return r
			}
		}
	}
	return nil
}

// matchWildcard implements ".." — greedily descend the first-child
// chain, at each depth trying the remaining segments (spec.md §4.5
// "greedily descending the first-child chain until a later segment
// matches; tie-break is first-child-first depth-first").
func matchWildcard(v *der.Value, rest []segment) *der.Value {
	if len(rest) == 0 {
		return v
	}
	cur := v
	for {
		if r := matchChildren(cur, rest); r != nil {
			return r
		}
		if len(cur.Children) == 0 {
			return nil
		}
		cur = cur.Children[0]
	}
}

// FindTypeValue searches node's descendants for a SEQUENCE whose first
// child is an OBJECT IDENTIFIER equal to oid, returning the nth match
// (0-indexed) — spec.md §4.5's typed-attribute lookup, e.g. for a
// named Attribute (such as messageDigest) in a SignerInfo's
// signedAttrs SET OF.
func FindTypeValue(root *der.Value, nth int, oid asn1schema.OID) (*der.Value, error) {
	count := 0
	found := findTypeValueRec(root, oid, &count, nth)
	if found == nil {
		return nil, errors.Wrapf(ErrNotFound, "SEQUENCE with OID %s (match #%d)", oid.String(), nth)
	}
	return found, nil
}

func findTypeValueRec(v *der.Value, oid asn1schema.OID, count *int, nth int) *der.Value {
	if v == nil || v.IsAbsent() {
		return nil
	}
	if v.Constructed && len(v.Children) > 0 {
		first := v.Children[0]
		if !first.IsAbsent() && first.EffClass == ber.ClassUniversal && first.EffTag == ber.TagOID {
			if got, err := asn1schema.DecodeOID(first.Content()); err == nil && got.Equal(oid) {
				if *count == nth {
					return v
				}
				*count++
			}
		}
	}
	for _, c := range v.Children {
		if r := findTypeValueRec(c, oid, count, nth); r != nil {
			return r
		}
	}
	return nil
}
