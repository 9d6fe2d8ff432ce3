// Package parser implements the recursive-descent / precedence-climbing
// parser of spec §4.2, grounded on pkgs/parser/parser.go for structure and
// original_source/delta/src/parser.rs for exact grammar and diagnostics.
package parser

import (
	"fmt"
	"strings"

	"github.com/aledsdavies/delta/internal/ast"
	"github.com/aledsdavies/delta/internal/diag"
	"github.com/aledsdavies/delta/internal/lexer"
	"github.com/aledsdavies/delta/internal/token"
)

// Parser walks a filtered token stream: Space and Comment tokens are
// dropped, NewLine/Tab are preserved so the grammar can see indentation
// directly.
type Parser struct {
	tokens []token.Token
	pos    int
	sink   *diag.Sink

	indentation int // current required indentation depth for block lines

	componentNames map[string]token.Token
}

func New(tokens []token.Token, sink *diag.Sink) *Parser {
	filtered := make([]token.Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Kind == token.Space || t.Kind == token.Comment {
			continue
		}
		filtered = append(filtered, t)
	}
	return &Parser{tokens: filtered, sink: sink, componentNames: map[string]token.Token{}}
}

// ParseProgram parses a whole program: a sequence of declarations
// separated by newlines.
func ParseProgram(tokens []token.Token, sink *diag.Sink) []ast.Expr {
	p := New(tokens, sink)
	var out []ast.Expr
	p.skipNewlines()
	for !p.atEnd() {
		out = append(out, p.declaration())
		p.skipNewlines()
	}
	return out
}

func (p *Parser) atEnd() bool { return p.peek().Kind == token.EOF }

func (p *Parser) peek() token.Token { return p.tokens[p.pos] }

func (p *Parser) peekAt(n int) token.Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) advance() token.Token {
	t := p.tokens[p.pos]
	if !p.atEnd() {
		p.pos++
	}
	return t
}

func (p *Parser) check(k token.Kind) bool { return p.peek().Kind == k }

func (p *Parser) matchKind(k token.Kind) bool {
	if p.check(k) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(k token.Kind, context string) (token.Token, bool) {
	if p.check(k) {
		return p.advance(), true
	}
	t := p.peek()
	p.sink.Add(diag.New(diag.CodeParseErr, fmt.Sprintf("expected %s %s, found %s", k, context, t.Kind)).
		At(t.Line, t.Column))
	p.advance() // resynchronize by one token
	return t, false
}

func (p *Parser) skipNewlines() {
	for p.check(token.NewLine) {
		p.advance()
	}
}

// matchesIndentation reports whether the upcoming tokens carry exactly
// p.indentation Tab tokens, without consuming them.
func (p *Parser) matchesIndentation() bool {
	for i := 0; i < p.indentation; i++ {
		if p.peekAt(i).Kind != token.Tab {
			return false
		}
	}
	return p.peekAt(p.indentation).Kind != token.Tab
}

func (p *Parser) consumeIndentation() {
	for i := 0; i < p.indentation; i++ {
		p.advance()
	}
}

// ---- declarations ----

func (p *Parser) declaration() ast.Expr {
	switch p.peek().Kind {
	case token.Component:
		return p.componentDecl()
	case token.Create:
		return p.createDecl()
	default:
		return p.expression()
	}
}

func (p *Parser) componentDecl() ast.Expr {
	tok := p.advance() // "component"
	nameTok, _ := p.expect(token.Identifier, "component name")
	if prev, exists := p.componentNames[nameTok.Lexeme]; exists {
		p.sink.Add(diag.New(diag.CodeTypeRedefinition,
			fmt.Sprintf("Component '%s' already defined at line %d", nameTok.Lexeme, prev.Line)).
			At(nameTok.Line, nameTok.Column))
	} else {
		p.componentNames[nameTok.Lexeme] = nameTok
	}
	p.expect(token.LBrace, "to open component body")

	var fields []ast.ComponentField
	for !p.check(token.RBrace) && !p.atEnd() {
		fnameTok, _ := p.expect(token.Identifier, "field name")
		ftype := p.typeName()
		fields = append(fields, ast.ComponentField{Name: fnameTok.Lexeme, Type: ftype})
		if !p.matchKind(token.Comma) {
			break
		}
	}
	p.expect(token.RBrace, "to close component body")

	return &ast.ComponentDef{base(tok), nameTok.Lexeme, fields}
}

func (p *Parser) typeName() string {
	switch p.peek().Kind {
	case token.TypeF32:
		p.advance()
		return "f32"
	case token.TypeI32:
		p.advance()
		return "i32"
	case token.TypeStr:
		p.advance()
		return "str"
	case token.Identifier:
		return p.advance().Lexeme
	}
	t := p.peek()
	p.sink.Add(diag.New(diag.CodeParseErr, "expected a type name").At(t.Line, t.Column))
	p.advance()
	return "i32"
}

func (p *Parser) createDecl() ast.Expr {
	tok := p.advance() // "create"
	p.expect(token.LBracket, "to open create's component list")
	var elems []ast.Expr
	for !p.check(token.RBracket) && !p.atEnd() {
		elems = append(elems, p.expression())
		if !p.matchKind(token.Comma) {
			break
		}
	}
	p.expect(token.RBracket, "to close create's component list")
	return &ast.Create{base(tok), &ast.ListLiteral{base(tok), elems}}
}

// ---- expression precedence chain ----

func (p *Parser) expression() ast.Expr { return p.assignment() }

func (p *Parser) assignment() ast.Expr {
	left := p.queryExpr()
	if p.check(token.Equals) {
		tok := p.advance()
		value := p.assignment()
		return &ast.Assignment{base(tok), left, value}
	}
	return left
}

func (p *Parser) queryExpr() ast.Expr {
	if p.check(token.Query) {
		return p.query()
	}
	return p.isExpr()
}

func (p *Parser) query() ast.Expr {
	tok := p.advance() // "query"
	p.matchKind(token.NewLine)
	p.indentation++
	var include, exclude []ast.QueryTerm
	for {
		if p.check(token.Not) {
			p.advance()
			name := p.advance().Lexeme
			exclude = append(exclude, ast.QueryTerm{Component: name})
		} else if p.check(token.Identifier) {
			name := p.advance().Lexeme
			alias := name
			if p.check(token.Identifier) {
				alias = p.advance().Lexeme
			}
			include = append(include, ast.QueryTerm{Component: name, Alias: alias})
		} else {
			break
		}
		if !p.matchKind(token.Comma) {
			break
		}
	}
	p.matchKind(token.NewLine)
	body := p.block()
	p.indentation--
	return &ast.Query{base(tok), include, exclude, body}
}

func (p *Parser) isExpr() ast.Expr {
	left := p.stringConcatExpr()
	if !p.check(token.Is) {
		return left
	}
	tok := p.advance()
	p.matchKind(token.NewLine)
	p.indentation++

	var arms []ast.IsArm
	for p.matchesIndentation() {
		p.consumeIndentation()
		arms = append(arms, p.isArm())
	}
	p.indentation--

	if len(arms) == 0 {
		p.sink.Add(diag.New(diag.CodeParseErr, "`is` block must have at least one arm").At(tok.Line, tok.Column))
	}
	return &ast.IsMatch{base(tok), left, arms}
}

func (p *Parser) isArm() ast.IsArm {
	var arm ast.IsArm
	switch {
	case p.check(token.Underscore):
		p.advance()
		arm.Kind = ast.PatternDefault
	case p.check(token.TagLiteral) && p.peekAt(1).Kind == token.Identifier:
		tagName := p.advance().Lexeme
		capture := p.advance().Lexeme
		arm.Kind = ast.PatternCaptureTag
		arm.TagName = tagName
		arm.Capture = capture
	case p.check(token.Identifier):
		arm.Kind = ast.PatternCapture
		arm.Capture = p.advance().Lexeme
	default:
		arm.Kind = ast.PatternExpr
		arm.PatternExpr = p.expression()
	}
	if p.matchKind(token.If) {
		arm.Guard = p.expression()
	}
	p.matchKind(token.NewLine)
	arm.Body = p.block()
	return arm
}

// stringConcatExpr folds a run of StringConcat-joined segments into one
// StringLiteral node (lexer §4.1's interpolation state machine).
func (p *Parser) stringConcatExpr() ast.Expr {
	if p.check(token.Text) {
		return p.interpolatedString()
	}
	return p.orExpr()
}

func (p *Parser) interpolatedString() ast.Expr {
	tok := p.peek()
	var parts []ast.StringPart
	first := p.advance() // Text
	parts = append(parts, ast.StringPart{Text: first.Lexeme})
	for p.check(token.StringConcat) {
		p.advance() // "{"
		expr := p.expression()
		p.matchKind(token.StringConcat) // "}"
		parts = append(parts, ast.StringPart{Expr: expr})
		if p.check(token.Text) {
			seg := p.advance()
			parts = append(parts, ast.StringPart{Text: seg.Lexeme})
		}
	}
	return &ast.StringLiteral{base(tok), parts}
}

func (p *Parser) orExpr() ast.Expr {
	left := p.andExpr()
	for p.check(token.Or) {
		tok := p.advance()
		right := p.andExpr()
		left = &ast.Binary{base(tok), ast.BinOr, left, right}
	}
	return left
}

func (p *Parser) andExpr() ast.Expr {
	left := p.equalityExpr()
	for p.check(token.And) {
		tok := p.advance()
		right := p.equalityExpr()
		left = &ast.Binary{base(tok), ast.BinAnd, left, right}
	}
	return left
}

func (p *Parser) equalityExpr() ast.Expr {
	left := p.comparisonExpr()
	for p.check(token.EqualsEquals) || p.check(token.BangEquals) || p.check(token.EqualsEqualsDot) || p.check(token.BangEqualsDot) {
		tok := p.advance()
		right := p.comparisonExpr()
		op := equalityOp(tok.Kind)
		left = &ast.Binary{base(tok), op, left, right}
	}
	return left
}

func equalityOp(k token.Kind) ast.BinaryOp {
	switch k {
	case token.EqualsEquals:
		return ast.BinEquals
	case token.BangEquals:
		return ast.BinNotEquals
	case token.EqualsEqualsDot:
		return ast.BinEqualsFloat
	default:
		return ast.BinNotEqualsFloat
	}
}

func (p *Parser) comparisonExpr() ast.Expr {
	left := p.termExpr()
	if op, ok := comparisonOp(p.peek().Kind); ok {
		tok := p.advance()
		right := p.termExpr()
		left = &ast.Binary{base(tok), op, left, right}
	}
	return left
}

func comparisonOp(k token.Kind) (ast.BinaryOp, bool) {
	switch k {
	case token.Less:
		return ast.BinLess, true
	case token.LessEquals:
		return ast.BinLessEquals, true
	case token.Greater:
		return ast.BinGreater, true
	case token.GreaterEquals:
		return ast.BinGreaterEquals, true
	case token.LessDot:
		return ast.BinLessFloat, true
	case token.LessEqualsDot:
		return ast.BinLessEqualsFloat, true
	case token.GreaterDot:
		return ast.BinGreaterFloat, true
	case token.GreaterEqualsDot:
		return ast.BinGreaterEqualsFloat, true
	}
	return 0, false
}

func (p *Parser) termExpr() ast.Expr {
	left := p.factorExpr()
	for {
		op, ok := termOp(p.peek().Kind)
		if !ok {
			break
		}
		tok := p.advance()
		right := p.factorExpr()
		left = &ast.Binary{base(tok), op, left, right}
	}
	return left
}

func termOp(k token.Kind) (ast.BinaryOp, bool) {
	switch k {
	case token.Plus:
		return ast.BinAdd, true
	case token.Minus:
		return ast.BinSub, true
	case token.PlusDot:
		return ast.BinAddFloat, true
	case token.MinusDot:
		return ast.BinSubFloat, true
	}
	return 0, false
}

func (p *Parser) factorExpr() ast.Expr {
	left := p.unaryExpr()
	for {
		op, ok := factorOp(p.peek().Kind)
		if !ok {
			break
		}
		tok := p.advance()
		right := p.unaryExpr()
		left = &ast.Binary{base(tok), op, left, right}
	}
	return left
}

func factorOp(k token.Kind) (ast.BinaryOp, bool) {
	switch k {
	case token.Star:
		return ast.BinMul, true
	case token.Slash:
		return ast.BinDiv, true
	case token.Percent:
		return ast.BinMod, true
	case token.StarDot:
		return ast.BinMulFloat, true
	case token.SlashDot:
		return ast.BinDivFloat, true
	case token.PercentDot:
		return ast.BinModFloat, true
	}
	return 0, false
}

func (p *Parser) unaryExpr() ast.Expr {
	if p.check(token.Bang) {
		tok := p.advance()
		operand := p.unaryExpr()
		return &ast.Unary{base(tok), ast.UnaryNot, operand}
	}
	if p.check(token.Minus) {
		tok := p.advance()
		operand := p.unaryExpr()
		return &ast.Unary{base(tok), ast.UnaryNegate, operand}
	}
	return p.callExpr()
}

// callExpr implements the pipe operator: "x | f a b" threads x as f's
// first argument (spec §4.2 "Policies").
func (p *Parser) callExpr() ast.Expr {
	left := p.primary()
	for p.check(token.Pipe) {
		p.advance()
		nameTok, _ := p.expect(token.Identifier, "after |")
		args := []ast.Expr{left}
		for p.startsPrimary() {
			args = append(args, p.primary())
		}
		left = &ast.Call{base(nameTok), nameTok.Lexeme, args}
	}
	return left
}

func (p *Parser) startsPrimary() bool {
	switch p.peek().Kind {
	case token.Integer, token.Float, token.Boolean, token.Text, token.TagLiteral,
		token.Identifier, token.ContextIdentifier, token.LParen, token.Backslash, token.LBracket:
		return true
	}
	return false
}

func (p *Parser) primary() ast.Expr {
	tok := p.peek()
	switch tok.Kind {
	case token.Integer:
		p.advance()
		v, err := lexer.ParseInt(tok.Lexeme)
		if err != nil {
			p.sink.Add(diag.New(diag.CodeSyntaxError, "invalid integer literal").At(tok.Line, tok.Column))
		}
		return &ast.IntLiteral{base(tok), v}
	case token.Float:
		p.advance()
		v, err := lexer.ParseFloat(tok.Lexeme)
		if err != nil {
			p.sink.Add(diag.New(diag.CodeSyntaxError, "invalid float literal").At(tok.Line, tok.Column))
		}
		return &ast.FloatLiteral{base(tok), v}
	case token.Boolean:
		p.advance()
		return &ast.BoolLiteral{base(tok), tok.Lexeme == "true"}
	case token.Text:
		return p.interpolatedString()
	case token.TagLiteral:
		p.advance()
		var payload ast.Expr
		if p.startsPrimary() {
			payload = p.stringConcatExpr()
		}
		return &ast.TagLiteral{base(tok), tok.Lexeme, payload}
	case token.LBracket:
		p.advance()
		var elems []ast.Expr
		for !p.check(token.RBracket) && !p.atEnd() {
			elems = append(elems, p.expression())
			if !p.matchKind(token.Comma) {
				break
			}
		}
		p.expect(token.RBracket, "to close list literal")
		return &ast.ListLiteral{base(tok), elems}
	case token.LParen:
		p.advance()
		inner := p.expression()
		p.expect(token.RParen, "to close grouping")
		return &ast.Grouping{base(tok), inner}
	case token.Backslash:
		p.advance()
		var params []string
		for p.check(token.Identifier) {
			params = append(params, p.advance().Lexeme)
		}
		p.matchKind(token.NewLine)
		body := p.block()
		return &ast.FunctionLiteral{base(tok), params, body}
	case token.ContextIdentifier:
		p.advance()
		field := strings.TrimPrefix(tok.Lexeme, "ctx.")
		if field == tok.Lexeme {
			field = ""
		}
		return &ast.ContextIdentifier{base(tok), field}
	case token.Identifier:
		return p.identifierPrimary()
	}

	p.sink.Add(diag.New(diag.CodeParseErr, fmt.Sprintf("unexpected token %s", tok.Kind)).At(tok.Line, tok.Column))
	p.advance()
	return &ast.IntLiteral{base(tok), 0}
}

// identifierPrimary handles: a bare identifier, a call (IDENT arg*), a
// component initializer (Ident{...}), and field access (ident.field).
func (p *Parser) identifierPrimary() ast.Expr {
	tok := p.advance()
	name := tok.Lexeme

	if p.check(token.LBrace) {
		p.advance()
		var fields []ast.FieldInit
		for !p.check(token.RBrace) && !p.atEnd() {
			fname, _ := p.expect(token.Identifier, "field name")
			value := p.expression()
			fields = append(fields, ast.FieldInit{Name: fname.Lexeme, Value: value})
			if !p.matchKind(token.Comma) {
				break
			}
		}
		p.expect(token.RBrace, "to close component initializer")
		return &ast.ComponentInit{base(tok), name, fields}
	}

	if p.check(token.Dot) {
		p.advance()
		field, _ := p.expect(token.Identifier, "after .")
		return &ast.FieldAccess{base(tok), name, field.Lexeme}
	}

	if p.startsPrimary() {
		var args []ast.Expr
		for p.startsPrimary() {
			args = append(args, p.primary())
		}
		return &ast.Call{base(tok), name, args}
	}

	return &ast.Identifier{base(tok), name}
}

// block parses a newline-delimited, indentation-governed sequence of
// expressions at the current indentation depth.
func (p *Parser) block() ast.Expr {
	tok := p.peek()
	var exprs []ast.Expr
	p.indentation++
	for p.matchesIndentation() {
		p.consumeIndentation()
		exprs = append(exprs, p.declaration())
		p.matchKind(token.NewLine)
	}
	p.indentation--
	if len(exprs) == 0 {
		return &ast.Block{base(tok), nil}
	}
	return &ast.Block{base(tok), exprs}
}

// base builds the position-carrying embed shared by every ast node.
func base(tok token.Token) ast.Node { return ast.Node{Tok: tok} }
