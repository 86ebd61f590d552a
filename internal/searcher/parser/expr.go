package parser

import "strings"

// Expr is a parsed query. The set of implementations is closed: *Term,
// *Phrase, *And, *Or and *Not.
type Expr interface {
	String() string
	expr()
}

// Term matches documents containing Text in Field.
type Term struct {
	Field string
	Text  string
}

// Phrase matches documents where Terms occur in Field at the given
// relative Positions. Positions start at 0 and keep the gaps left by
// removed stop words.
type Phrase struct {
	Field     string
	Terms     []string
	Positions []int
}

// And matches documents matching every clause.
type And struct {
	Clauses []Expr
}

// Or matches documents matching at least one clause.
type Or struct {
	Clauses []Expr
}

// Not matches every live document that does not match Clause.
type Not struct {
	Clause Expr
}

func (*Term) expr()   {}
func (*Phrase) expr() {}
func (*And) expr()    {}
func (*Or) expr()     {}
func (*Not) expr()    {}

func (t *Term) String() string {
	return t.Field + ":" + t.Text
}

func (p *Phrase) String() string {
	var b strings.Builder
	b.WriteString(p.Field)
	b.WriteString(`:"`)
	for i, term := range p.Terms {
		if i > 0 {
			// A wider gap than one marks removed stop words.
			for gap := p.Positions[i] - p.Positions[i-1]; gap > 1; gap-- {
				b.WriteString(" ?")
			}
			b.WriteByte(' ')
		}
		b.WriteString(term)
	}
	b.WriteByte('"')
	return b.String()
}

func (a *And) String() string {
	return join(a.Clauses, " AND ")
}

func (o *Or) String() string {
	return join(o.Clauses, " OR ")
}

func (n *Not) String() string {
	return "NOT " + n.Clause.String()
}

func join(clauses []Expr, sep string) string {
	parts := make([]string, len(clauses))
	for i, c := range clauses {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// Describe renders expr for logs; a nil expression matches nothing.
func Describe(expr Expr) string {
	if expr == nil {
		return "<none>"
	}
	return expr.String()
}
