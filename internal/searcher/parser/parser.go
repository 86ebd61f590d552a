// Package parser turns query strings into expression trees.
//
// The syntax is the classic one: bare words, field:word, "quoted phrases",
// field:"phrase", field:( ... ) groups, parentheses and the upper-case
// operators AND, OR and NOT. Adjacent clauses are joined with AND. NOT binds
// tighter than AND, which binds tighter than OR.
package parser

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/analyzer"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// Parser parses queries with a fixed analyzer. It is safe for concurrent
// use.
type Parser struct {
	analyzer *analyzer.Analyzer
}

func New(a *analyzer.Analyzer) *Parser {
	return &Parser{analyzer: a}
}

// Parse parses query, applying defaultField to unqualified clauses. Words go
// through the analyzer: a word that yields no token is dropped, one token
// becomes a Term, several become a Phrase. A blank query, or one whose every
// clause was dropped, returns a nil Expr and no error. Malformed syntax
// returns a *errors.ParseError.
func (p *Parser) Parse(query, defaultField string) (Expr, error) {
	if defaultField == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "default field is required")
	}
	tokens, err := lex(query)
	if err != nil {
		return nil, err
	}
	st := &state{
		parser: p,
		query:  query,
		tokens: tokens,
		field:  defaultField,
	}
	if st.peek().kind == tokEOF {
		return nil, nil
	}
	expr, err := st.parseOr()
	if err != nil {
		return nil, err
	}
	if t := st.peek(); t.kind != tokEOF {
		if t.kind == tokRParen {
			return nil, parseErr(t.offset, "unbalanced ')'")
		}
		return nil, parseErr(t.offset, fmt.Sprintf("unexpected %s", t))
	}
	return expr, nil
}

// Parse is a convenience wrapper that parses with a.
func Parse(a *analyzer.Analyzer, query, defaultField string) (Expr, error) {
	return New(a).Parse(query, defaultField)
}

func parseErr(offset int, msg string) *apperrors.ParseError {
	return &apperrors.ParseError{Offset: offset, Message: msg}
}

type state struct {
	parser *Parser
	query  string
	tokens []token
	pos    int
	field  string
}

func (s *state) peek() token {
	return s.tokens[s.pos]
}

func (s *state) next() token {
	t := s.tokens[s.pos]
	if t.kind != tokEOF {
		s.pos++
	}
	return t
}

func (s *state) parseOr() (Expr, error) {
	first, err := s.parseAnd()
	if err != nil {
		return nil, err
	}
	clauses := []Expr{first}
	for s.peek().kind == tokOr {
		op := s.next()
		if !s.startsOperand() {
			return nil, s.missingOperand(op)
		}
		c, err := s.parseAnd()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	return newOr(clauses), nil
}

func (s *state) parseAnd() (Expr, error) {
	first, err := s.parseNot()
	if err != nil {
		return nil, err
	}
	clauses := []Expr{first}
	for {
		t := s.peek()
		if t.kind == tokAnd {
			s.next()
			if !s.startsOperand() {
				return nil, s.missingOperand(t)
			}
		} else if !s.startsOperand() {
			break
		}
		c, err := s.parseNot()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	return newAnd(clauses), nil
}

func (s *state) parseNot() (Expr, error) {
	t := s.peek()
	if t.kind != tokNot {
		return s.parsePrimary()
	}
	s.next()
	if !s.startsOperand() {
		return nil, s.missingOperand(t)
	}
	inner, err := s.parseNot()
	if err != nil {
		return nil, err
	}
	if inner == nil {
		return nil, nil
	}
	return &Not{Clause: inner}, nil
}

func (s *state) parsePrimary() (Expr, error) {
	t := s.next()
	switch t.kind {
	case tokWord:
		return s.analyze(s.field, t.text), nil
	case tokPhrase:
		return s.analyze(s.field, t.text), nil
	case tokLParen:
		return s.parseGroup(t, s.field)
	case tokField:
		if t.text == "" {
			return nil, parseErr(t.offset, "empty field name")
		}
		v := s.next()
		switch v.kind {
		case tokWord, tokPhrase:
			return s.analyze(t.text, v.text), nil
		case tokLParen:
			return s.parseGroup(v, t.text)
		default:
			return nil, parseErr(v.offset, fmt.Sprintf("missing value for field %q", t.text))
		}
	case tokRParen:
		return nil, parseErr(t.offset, "unbalanced ')'")
	case tokEOF:
		return nil, parseErr(t.offset, "missing operand")
	default:
		return nil, parseErr(t.offset, fmt.Sprintf("unexpected %s", t))
	}
}

func (s *state) parseGroup(open token, field string) (Expr, error) {
	if s.peek().kind == tokRParen {
		return nil, parseErr(s.peek().offset, "empty group")
	}
	saved := s.field
	s.field = field
	inner, err := s.parseOr()
	s.field = saved
	if err != nil {
		return nil, err
	}
	if s.peek().kind != tokRParen {
		return nil, parseErr(open.offset, "unclosed '('")
	}
	s.next()
	return inner, nil
}

// startsOperand reports whether the next token can begin a clause.
func (s *state) startsOperand() bool {
	switch s.peek().kind {
	case tokWord, tokPhrase, tokLParen, tokField, tokNot:
		return true
	}
	return false
}

func (s *state) missingOperand(op token) error {
	t := s.peek()
	if t.kind == tokEOF {
		return parseErr(t.offset, fmt.Sprintf("missing operand after %s", op))
	}
	return parseErr(t.offset, fmt.Sprintf("missing operand after %s, found %s", op, t))
}

// analyze runs text through the analyzer and returns nil when nothing is
// left of it.
func (s *state) analyze(field, text string) Expr {
	tokens := s.parser.analyzer.Tokens(text)
	switch len(tokens) {
	case 0:
		return nil
	case 1:
		return &Term{Field: field, Text: tokens[0].Text}
	}
	ph := &Phrase{
		Field:     field,
		Terms:     make([]string, len(tokens)),
		Positions: make([]int, len(tokens)),
	}
	base := tokens[0].Position
	for i, tok := range tokens {
		ph.Terms[i] = tok.Text
		ph.Positions[i] = tok.Position - base
	}
	return ph
}

func newAnd(clauses []Expr) Expr {
	kept := compact(clauses)
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &And{Clauses: kept}
}

func newOr(clauses []Expr) Expr {
	kept := compact(clauses)
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &Or{Clauses: kept}
}

func compact(clauses []Expr) []Expr {
	kept := clauses[:0]
	for _, c := range clauses {
		if c != nil {
			kept = append(kept, c)
		}
	}
	return kept
}
