package asn1schema

import (
	"strconv"

	"github.com/LdDl/ksba-go/ber"
	"github.com/pkg/errors"
)

// Sentinel errors for the loader (spec.md §4.1).
var (
	ErrSchemaSyntax    = errors.New("asn1schema: syntax error")
	ErrSchemaReference = errors.New("asn1schema: unresolved type reference")
)

// Module is a parsed collection of named type assignments. It is
// immutable after Load and safe to share read-only between goroutines
// (spec.md §5).
type Module struct {
	Name        string
	productions map[string]*Node
	order       []string
}

// Production returns the named top-level type, or (nil,false).
func (m *Module) Production(name string) (*Node, bool) {
	n, ok := m.productions[name]
	return n, ok
}

// Expand resolves a named production for decoding. Per spec.md §4.1 the
// top-level reference is resolved eagerly; nested TYPE_REF nodes are
// left as-is and resolved lazily by the der package as it visits them,
// via (*Module).Production — this is what keeps recursive/cyclic
// productions from blowing the stack at load time.
func (m *Module) Expand(name string) (*Node, error) {
	n, ok := m.productions[name]
	if !ok {
		return nil, errors.Wrapf(ErrSchemaReference, "production %q", name)
	}
	return n, nil
}

// Resolve looks up a production by name for use by package der when it
// encounters a TYPE_REF node mid-decode.
func (m *Module) Resolve(refName string) (*Node, error) {
	n, ok := m.productions[refName]
	if !ok {
		return nil, errors.Wrapf(ErrSchemaReference, "reference %q", refName)
	}
	return n, nil
}

// Load parses a textual module description and returns its schema tree.
// Recognized constructs: named type assignments, the primitive types of
// spec.md §3, SEQUENCE/SET/CHOICE, SEQUENCE OF/SET OF, implicit/explicit
// tagging, OPTIONAL, DEFAULT, and references to other named productions.
func Load(moduleName, src string) (*Module, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, errors.Wrap(ErrSchemaSyntax, err.Error())
	}
	p := &parser{toks: toks}
	m := &Module{Name: moduleName, productions: map[string]*Node{}}

	for p.peek().kind != tokEOF {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokAssign); err != nil {
			return nil, err
		}
		node, err := p.parseType()
		if err != nil {
			return nil, err
		}
		node.Name = name
		if _, dup := m.productions[name]; dup {
			return nil, errors.Wrapf(ErrSchemaSyntax, "duplicate production %q", name)
		}
		m.productions[name] = node
		m.order = append(m.order, name)
	}

	return m, nil
}

// MustLoad is Load, panicking on error — used for the built-in
// Certificate/CMS modules compiled into the package, whose grammar is
// fixed at build time.
func MustLoad(moduleName, src string) *Module {
	m, err := Load(moduleName, src)
	if err != nil {
		panic(err)
	}
	return m
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekIs(kind tokenKind, text string) bool {
	t := p.peek()
	return t.kind == kind && (text == "" || t.text == text)
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind) error {
	if p.peek().kind != kind {
		return errors.Wrapf(ErrSchemaSyntax, "unexpected token %q at offset %d", p.peek().text, p.peek().pos)
	}
	p.next()
	return nil
}

func (p *parser) expectIdent() (string, error) {
	if p.peek().kind != tokIdent {
		return "", errors.Wrapf(ErrSchemaSyntax, "expected identifier, got %q at offset %d", p.peek().text, p.peek().pos)
	}
	return p.next().text, nil
}

// parseType parses one ASN.1 type expression.
func (p *parser) parseType() (*Node, error) {
	t := p.peek()

	if t.kind == tokLBracket {
		return p.parseTagged()
	}

	if t.kind != tokIdent {
		return nil, errors.Wrapf(ErrSchemaSyntax, "expected type, got %q at offset %d", t.text, t.pos)
	}

	switch t.text {
	case "INTEGER":
		p.next()
		return &Node{Type: INTEGER}, nil
	case "BOOLEAN":
		p.next()
		return &Node{Type: BOOLEAN}, nil
	case "NULL":
		p.next()
		return &Node{Type: NULL}, nil
	case "ANY":
		p.next()
		return &Node{Type: ANY}, nil
	case "BIT":
		p.next()
		if err := p.expectKeyword("STRING"); err != nil {
			return nil, err
		}
		return &Node{Type: BIT_STRING}, nil
	case "OCTET":
		p.next()
		if err := p.expectKeyword("STRING"); err != nil {
			return nil, err
		}
		return &Node{Type: OCTET_STRING}, nil
	case "OBJECT":
		p.next()
		if err := p.expectKeyword("IDENTIFIER"); err != nil {
			return nil, err
		}
		return &Node{Type: OID}, nil
	case "OID":
		p.next()
		return &Node{Type: OID}, nil
	case "UTF8String":
		p.next()
		return &Node{Type: UTF8_STRING}, nil
	case "PrintableString":
		p.next()
		return &Node{Type: PRINTABLE_STRING}, nil
	case "IA5String":
		p.next()
		return &Node{Type: IA5_STRING}, nil
	case "UTCTime":
		p.next()
		return &Node{Type: UTC_TIME}, nil
	case "GeneralizedTime":
		p.next()
		return &Node{Type: GENERALIZED_TIME}, nil
	case "SEQUENCE":
		p.next()
		return p.parseSequenceOrSet(SEQUENCE, SEQUENCE_OF)
	case "SET":
		p.next()
		return p.parseSequenceOrSet(SET, SET_OF)
	case "CHOICE":
		p.next()
		fields, err := p.parseFieldBlock()
		if err != nil {
			return nil, err
		}
		return &Node{Type: CHOICE, Children: fields}, nil
	default:
		// Type reference to another named production.
		p.next()
		return &Node{Type: TYPE_REF, RefName: t.text}, nil
	}
}

func (p *parser) expectKeyword(kw string) error {
	if p.peek().kind != tokIdent || p.peek().text != kw {
		return errors.Wrapf(ErrSchemaSyntax, "expected %q, got %q at offset %d", kw, p.peek().text, p.peek().pos)
	}
	p.next()
	return nil
}

func (p *parser) parseSequenceOrSet(plain, ofVariant Tag) (*Node, error) {
	if p.peekIs(tokIdent, "OF") {
		p.next()
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return &Node{Type: ofVariant, Children: []*Node{elem}}, nil
	}
	fields, err := p.parseFieldBlock()
	if err != nil {
		return nil, err
	}
	return &Node{Type: plain, Children: fields}, nil
}

func (p *parser) parseFieldBlock() ([]*Node, error) {
	if err := p.expect(tokLBrace); err != nil {
		return nil, err
	}
	var fields []*Node
	if p.peekIs(tokRBrace, "") {
		p.next()
		return fields, nil
	}
	for {
		field, err := p.parseField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
		if p.peekIs(tokComma, "") {
			p.next()
			continue
		}
		break
	}
	if err := p.expect(tokRBrace); err != nil {
		return nil, err
	}
	return fields, nil
}

func (p *parser) parseField() (*Node, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	typ, err := p.parseType()
	if err != nil {
		return nil, err
	}
	typ.Name = name

	if p.peekIs(tokIdent, "OPTIONAL") {
		p.next()
		typ.Optional = true
	}
	if p.peekIs(tokIdent, "DEFAULT") {
		p.next()
		val, err := p.parseDefaultValue()
		if err != nil {
			return nil, err
		}
		typ.HasDefault = true
		typ.Default = val
		typ.Optional = true // DEFAULT implies the field may be absent in the image
	}
	return typ, nil
}

// parseDefaultValue parses a small integer literal used as a DEFAULT
// value (spec.md's worked example is "version ... DEFAULT 0"). Larger
// default grammars (OID defaults, string defaults) are not needed by
// either built-in module and are rejected with ErrSchemaSyntax.
func (p *parser) parseDefaultValue() ([]byte, error) {
	if p.peek().kind != tokNumber {
		return nil, errors.Wrapf(ErrSchemaSyntax, "unsupported DEFAULT value %q at offset %d", p.peek().text, p.peek().pos)
	}
	text := p.next().text
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrSchemaSyntax, "invalid DEFAULT integer %q", text)
	}
	if v == 0 {
		return []byte{0x00}, nil
	}
	var out []byte
	n := v
	for n > 0 {
		out = append([]byte{byte(n & 0xff)}, out...)
		n >>= 8
	}
	return out, nil
}

// parseTagged parses "[n] IMPLICIT T", "[n] EXPLICIT T" or bare "[n] T".
// A bare tag with no IMPLICIT/EXPLICIT keyword is treated as IMPLICIT,
// since spec.md leaves the module grammar's default tagging mode
// unspecified.
func (p *parser) parseTagged() (*Node, error) {
	if err := p.expect(tokLBracket); err != nil {
		return nil, err
	}
	numTok := p.peek()
	class := ber.ClassContextSpecific
	if numTok.kind == tokIdent {
		// e.g. "[APPLICATION 1]" — not needed by the built-in modules,
		// but keep the grammar honest about the class keyword.
		switch numTok.text {
		case "APPLICATION":
			class = ber.ClassApplication
			p.next()
		case "UNIVERSAL":
			class = ber.ClassUniversal
			p.next()
		case "PRIVATE":
			class = ber.ClassPrivate
			p.next()
		}
	}
	if p.peek().kind != tokNumber {
		return nil, errors.Wrapf(ErrSchemaSyntax, "expected tag number, got %q at offset %d", p.peek().text, p.peek().pos)
	}
	num, err := strconv.Atoi(p.next().text)
	if err != nil {
		return nil, errors.Wrap(ErrSchemaSyntax, "invalid tag number")
	}
	if err := p.expect(tokRBracket); err != nil {
		return nil, err
	}

	implicit := true
	if p.peekIs(tokIdent, "IMPLICIT") {
		p.next()
		implicit = true
	} else if p.peekIs(tokIdent, "EXPLICIT") {
		p.next()
		implicit = false
	}

	inner, err := p.parseType()
	if err != nil {
		return nil, err
	}

	return &Node{
		Type:      TAGGED,
		TagClass:  class,
		TagNumber: num,
		Implicit:  implicit,
		Children:  []*Node{inner},
	}, nil
}
