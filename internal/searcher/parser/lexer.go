package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokPhrase
	tokField
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
)

type token struct {
	kind   tokenKind
	text   string
	offset int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of query"
	case tokWord:
		return fmt.Sprintf("word %q", t.text)
	case tokPhrase:
		return fmt.Sprintf("phrase %q", t.text)
	case tokField:
		return fmt.Sprintf("field %q", t.text)
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokNot:
		return "NOT"
	}
	return "unknown token"
}

func isDelimiter(r rune) bool {
	return r == '"' || r == '(' || r == ')' || r == ':' || unicode.IsSpace(r)
}

// lex splits query into tokens. A word directly followed by ':' becomes a
// field token; a ':' with no word in front of it yields an empty field name
// so the parser can report it.
func lex(query string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(query) {
		r, size := utf8.DecodeRuneInString(query[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, offset: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, offset: i})
			i++
		case r == ':':
			tokens = append(tokens, token{kind: tokField, offset: i})
			i++
		case r == '"':
			end := strings.IndexByte(query[i+1:], '"')
			if end < 0 {
				return nil, parseErr(i, "unterminated quote")
			}
			tokens = append(tokens, token{kind: tokPhrase, text: query[i+1 : i+1+end], offset: i})
			i += end + 2
		default:
			start := i
			for i < len(query) {
				r, size := utf8.DecodeRuneInString(query[i:])
				if isDelimiter(r) {
					break
				}
				i += size
			}
			word := query[start:i]
			if i < len(query) && query[i] == ':' {
				tokens = append(tokens, token{kind: tokField, text: word, offset: start})
				i++
				continue
			}
			kind := tokWord
			switch word {
			case "AND":
				kind = tokAnd
			case "OR":
				kind = tokOr
			case "NOT":
				kind = tokNot
			}
			tokens = append(tokens, token{kind: kind, text: word, offset: start})
		}
	}
	return append(tokens, token{kind: tokEOF, offset: len(query)}), nil
}
