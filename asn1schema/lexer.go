package asn1schema

import (
	"strings"

	"github.com/pkg/errors"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokLBrace
	tokRBrace
	tokLBracket
	tokRBracket
	tokComma
	tokAssign // ::=
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lexer tokenizes the restricted ASN.1 module grammar of spec.md §4.1:
// identifiers, integers, braces, brackets, commas and "::=". Comments
// starting with "--" run to end of line.
type lexer struct {
	src  string
	pos  int
	toks []token
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for {
		l.skipSpaceAndComments()
		if l.pos >= len(l.src) {
			l.toks = append(l.toks, token{kind: tokEOF, pos: l.pos})
			return l.toks, nil
		}
		start := l.pos
		c := l.src[l.pos]
		switch {
		case c == '{':
			l.toks = append(l.toks, token{kind: tokLBrace, text: "{", pos: start})
			l.pos++
		case c == '}':
			l.toks = append(l.toks, token{kind: tokRBrace, text: "}", pos: start})
			l.pos++
		case c == '[':
			l.toks = append(l.toks, token{kind: tokLBracket, text: "[", pos: start})
			l.pos++
		case c == ']':
			l.toks = append(l.toks, token{kind: tokRBracket, text: "]", pos: start})
			l.pos++
		case c == ',':
			l.toks = append(l.toks, token{kind: tokComma, text: ",", pos: start})
			l.pos++
		case c == ':':
			if strings.HasPrefix(l.src[l.pos:], "::=") {
				l.toks = append(l.toks, token{kind: tokAssign, text: "::=", pos: start})
				l.pos += 3
			} else {
				return nil, errors.Errorf("asn1schema: unexpected ':' at offset %d", start)
			}
		case isDigit(c):
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
			l.toks = append(l.toks, token{kind: tokNumber, text: l.src[start:l.pos], pos: start})
		case isIdentStart(c):
			for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
				l.pos++
			}
			l.toks = append(l.toks, token{kind: tokIdent, text: l.src[start:l.pos], pos: start})
		default:
			return nil, errors.Errorf("asn1schema: unexpected character %q at offset %d", c, start)
		}
	}
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			l.pos++
			continue
		}
		if strings.HasPrefix(l.src[l.pos:], "--") {
			idx := strings.IndexByte(l.src[l.pos:], '\n')
			if idx < 0 {
				l.pos = len(l.src)
			} else {
				l.pos += idx + 1
			}
			continue
		}
		break
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
