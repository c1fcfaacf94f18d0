package formulation

import (
	"strconv"
	"strings"
	"text/scanner"

	"github.com/kilianp07/gridopt/core/errs"
)

// node is an expression syntax tree node.
type node interface{ String() string }

type numNode struct{ v float64 }

type identNode struct{ name string }

type callNode struct {
	fn  string
	arg node
}

type negNode struct{ x node }

type binNode struct {
	op   rune
	l, r node
}

func (n numNode) String() string   { return strconv.FormatFloat(n.v, 'g', -1, 64) }
func (n identNode) String() string { return n.name }
func (n callNode) String() string  { return n.fn + "(" + n.arg.String() + ")" }
func (n negNode) String() string   { return "-(" + n.x.String() + ")" }
func (n binNode) String() string {
	op := string(n.op)
	if n.op == '^' {
		op = "**"
	}
	return "(" + n.l.String() + " " + op + " " + n.r.String() + ")"
}

// parser is a precedence-climbing parser over text/scanner tokens:
//
//	expr  = term { ("+" | "-") term }
//	term  = unary { ("*" | "/" | "@") unary }
//	unary = "-" unary | power
//	power = primary [ "**" unary ]
//	primary = number | ident | ident "(" expr ")" | "(" expr ")"
type parser struct {
	src  string
	s    scanner.Scanner
	tok  rune
	text string
	err  error
}

// parseExpr parses src into a syntax tree.
func parseExpr(src string) (node, error) {
	p := &parser{src: src}
	p.s.Init(strings.NewReader(src))
	p.s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats
	p.s.Error = func(_ *scanner.Scanner, msg string) {
		if p.err == nil {
			p.err = errs.Formulation(src, "", "%s", msg)
		}
	}
	p.next()
	if p.tok == scanner.EOF {
		return nil, errs.Formulation(src, "", "empty expression")
	}
	n := p.expr()
	if p.err == nil && p.tok != scanner.EOF {
		p.fail("unexpected %q", p.text)
	}
	if p.err != nil {
		return nil, p.err
	}
	return n, nil
}

func (p *parser) next() {
	p.tok = p.s.Scan()
	p.text = p.s.TokenText()
}

func (p *parser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = errs.Formulation(p.src, "", "at %s: "+format, append([]any{p.s.Position.String()}, args...)...)
	}
}

func (p *parser) expr() node {
	n := p.term()
	for p.err == nil && (p.tok == '+' || p.tok == '-') {
		op := p.tok
		p.next()
		n = binNode{op: op, l: n, r: p.term()}
	}
	return n
}

func (p *parser) term() node {
	n := p.unary()
	for p.err == nil && (p.tok == '*' || p.tok == '/' || p.tok == '@') {
		op := p.tok
		p.next()
		n = binNode{op: op, l: n, r: p.unary()}
	}
	return n
}

func (p *parser) unary() node {
	if p.tok == '-' {
		p.next()
		return negNode{x: p.unary()}
	}
	if p.tok == '+' {
		p.next()
		return p.unary()
	}
	return p.power()
}

// isPow reports whether the current '*' is the first half of "**".
func (p *parser) isPow() bool {
	return p.tok == '*' && p.s.Peek() == '*'
}

func (p *parser) power() node {
	n := p.primary()
	if p.err == nil && p.isPow() {
		p.next()
		p.next()
		n = binNode{op: '^', l: n, r: p.unary()}
	}
	return n
}

func (p *parser) primary() node {
	switch p.tok {
	case scanner.Int, scanner.Float:
		v, err := strconv.ParseFloat(p.text, 64)
		if err != nil {
			p.fail("bad number %q", p.text)
			return numNode{}
		}
		p.next()
		return numNode{v: v}
	case scanner.Ident:
		name := p.text
		p.next()
		if p.tok != '(' {
			return identNode{name: name}
		}
		if name != "sum" {
			p.fail("unknown function %q", name)
			return identNode{name: name}
		}
		p.next()
		arg := p.expr()
		if p.tok != ')' {
			p.fail("expected ) after %s argument", name)
			return arg
		}
		p.next()
		return callNode{fn: name, arg: arg}
	case '(':
		p.next()
		n := p.expr()
		if p.tok != ')' {
			p.fail("expected )")
			return n
		}
		p.next()
		return n
	case scanner.EOF:
		p.fail("unexpected end of expression")
	default:
		p.fail("unexpected %q", p.text)
	}
	return numNode{}
}

// idents returns the identifiers referenced by n, in order of appearance.
func idents(n node) []string {
	var out []string
	var walk func(node)
	walk = func(n node) {
		switch v := n.(type) {
		case identNode:
			out = append(out, v.name)
		case callNode:
			walk(v.arg)
		case negNode:
			walk(v.x)
		case binNode:
			walk(v.l)
			walk(v.r)
		}
	}
	walk(n)
	return out
}
