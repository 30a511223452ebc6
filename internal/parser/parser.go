// Package parser implements the recursive-descent parser for the textual
// tensor IR.
//
// The grammar is deliberately small: a module is a sequence of functions,
// a function body is a single dataflow block, and expressions are variable
// references, tuple literals, projections, shape literals, and operator
// calls. The parser resolves variable names to declarations as it goes;
// types are annotated on parameters and inferred for bindings by the
// builder's normalize step afterward.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tensir/tensir/internal/ir"
	"github.com/tensir/tensir/internal/lexer"
	"github.com/tensir/tensir/internal/types"
)

// Error is a parse error with its source position.
type Error struct {
	Message string
	Pos     lexer.Position
}

func (e Error) String() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// Parser parses textual IR into ir nodes.
type Parser struct {
	l         *lexer.Lexer
	errors    []Error
	curToken  lexer.Token
	peekToken lexer.Token

	// scope maps variable names to their declarations within the
	// function being parsed.
	scope map[string]*ir.VarDecl
}

// New creates a Parser reading tokens from l.
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}
	// Prime curToken and peekToken.
	p.nextToken()
	p.nextToken()
	return p
}

// Errors returns the parse errors collected so far, including lexical
// errors from the underlying lexer.
func (p *Parser) Errors() []Error {
	errs := make([]Error, 0, len(p.errors)+len(p.l.Errors()))
	for _, le := range p.l.Errors() {
		errs = append(errs, Error{Message: le.Message, Pos: le.Pos})
	}
	return append(errs, p.errors...)
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) curTokenIs(t lexer.TokenType) bool  { return p.curToken.Type == t }
func (p *Parser) peekTokenIs(t lexer.TokenType) bool { return p.peekToken.Type == t }

// expectPeek advances when the next token has the expected type and
// records an error otherwise.
func (p *Parser) expectPeek(t lexer.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, p.peekToken.Type)
	return false
}

func (p *Parser) errorf(format string, args ...any) {
	p.errors = append(p.errors, Error{
		Message: fmt.Sprintf(format, args...),
		Pos:     p.peekToken.Pos,
	})
}

func (p *Parser) errorfAt(pos lexer.Position, format string, args ...any) {
	p.errors = append(p.errors, Error{
		Message: fmt.Sprintf(format, args...),
		Pos:     pos,
	})
}

// ParseModule parses a whole module. A nil module is returned when any
// error was encountered.
func (p *Parser) ParseModule() (*ir.Module, error) {
	mod := ir.NewModule()
	for !p.curTokenIs(lexer.EOF) {
		if !p.curTokenIs(lexer.FN) {
			p.errorfAt(p.curToken.Pos, "expected fn, got %s", p.curToken.Type)
			p.synchronize()
			continue
		}
		fn := p.parseFunction()
		if fn != nil {
			mod.Add(fn)
		} else {
			p.synchronize()
		}
		p.nextToken()
	}
	if errs := p.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("parse failed: %s", errs[0])
	}
	return mod, nil
}

// synchronize skips tokens until the start of the next function, for
// error recovery across top-level declarations.
func (p *Parser) synchronize() {
	for !p.curTokenIs(lexer.EOF) && !p.peekTokenIs(lexer.FN) {
		p.nextToken()
	}
	p.nextToken()
}

// parseFunction parses "fn @name(params) -> type { block { ... } }".
// curToken is FN on entry and the closing RBRACE on successful exit.
func (p *Parser) parseFunction() *ir.Function {
	span := p.curToken.Pos
	if !p.expectPeek(lexer.GLOBAL) {
		return nil
	}
	name := p.curToken.Literal
	p.scope = make(map[string]*ir.VarDecl)

	if !p.expectPeek(lexer.LPAREN) {
		return nil
	}
	params := p.parseParams()
	if params == nil {
		return nil
	}

	if !p.expectPeek(lexer.ARROW) {
		return nil
	}
	p.nextToken()
	retType := p.parseType()
	if retType == nil {
		return nil
	}

	if !p.expectPeek(lexer.LBRACE) {
		return nil
	}
	body := p.parseBlock()
	if body == nil {
		return nil
	}
	if !p.expectPeek(lexer.RBRACE) {
		return nil
	}

	fn := ir.NewFunction(name, params, body, retType)
	fn.Span = span
	return fn
}

// parseParams parses the parameter list. curToken is LPAREN on entry and
// RPAREN on successful exit.
func (p *Parser) parseParams() []*ir.VarDecl {
	params := []*ir.VarDecl{}
	if p.peekTokenIs(lexer.RPAREN) {
		p.nextToken()
		return params
	}
	for {
		if !p.expectPeek(lexer.VARIDENT) {
			return nil
		}
		name := p.curToken.Literal
		if !p.expectPeek(lexer.COLON) {
			return nil
		}
		p.nextToken()
		typ := p.parseType()
		if typ == nil {
			return nil
		}
		if _, exists := p.scope[name]; exists {
			p.errorfAt(p.curToken.Pos, "duplicate parameter %%%s", name)
			return nil
		}
		decl := ir.NewVarDecl(name, typ, ir.KindParameter)
		p.scope[name] = decl
		params = append(params, decl)

		if p.peekTokenIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		if !p.expectPeek(lexer.RPAREN) {
			return nil
		}
		return params
	}
}

// parseType parses a structural type. curToken is the first token of the
// type on entry and its last token on exit.
func (p *Parser) parseType() types.Type {
	switch p.curToken.Type {
	case lexer.TENSOR:
		if !p.expectPeek(lexer.LBRACK) {
			return nil
		}
		if !p.expectPeek(lexer.LPAREN) {
			return nil
		}
		dims := p.parseDims()
		if dims == nil {
			return nil
		}
		if !p.expectPeek(lexer.COMMA) {
			return nil
		}
		dtype := p.parseDType()
		if dtype == types.DTypeUnknown {
			return nil
		}
		if !p.expectPeek(lexer.RBRACK) {
			return nil
		}
		return types.NewTensorType(dims, dtype)

	case lexer.TUPLE:
		if !p.expectPeek(lexer.LBRACK) {
			return nil
		}
		fields := []types.Type{}
		for {
			p.nextToken()
			field := p.parseType()
			if field == nil {
				return nil
			}
			fields = append(fields, field)
			if p.peekTokenIs(lexer.COMMA) {
				p.nextToken()
				continue
			}
			break
		}
		if !p.expectPeek(lexer.RBRACK) {
			return nil
		}
		return types.NewTupleType(fields...)

	case lexer.SHAPE:
		return &types.ShapeType{}

	case lexer.PRIM:
		if !p.expectPeek(lexer.LBRACK) {
			return nil
		}
		dtype := p.parseDType()
		if dtype == types.DTypeUnknown {
			return nil
		}
		if !p.expectPeek(lexer.RBRACK) {
			return nil
		}
		return &types.PrimType{DType: dtype}

	default:
		p.errorfAt(p.curToken.Pos, "expected type, got %s", p.curToken.Type)
		return nil
	}
}

// parseDims parses "( int, ... )" dimensions. curToken is LPAREN on entry
// and RPAREN on exit. An empty list is the scalar shape.
func (p *Parser) parseDims() []int64 {
	dims := []int64{}
	if p.peekTokenIs(lexer.RPAREN) {
		p.nextToken()
		return dims
	}
	for {
		if !p.expectPeek(lexer.INT) {
			return nil
		}
		d, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
		if err != nil || d < 0 {
			p.errorfAt(p.curToken.Pos, "invalid dimension %q", p.curToken.Literal)
			return nil
		}
		dims = append(dims, d)
		if p.peekTokenIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		if !p.expectPeek(lexer.RPAREN) {
			return nil
		}
		return dims
	}
}

// parseDType advances to and parses a dtype name.
func (p *Parser) parseDType() types.DType {
	if !p.expectPeek(lexer.IDENT) {
		return types.DTypeUnknown
	}
	dtype, ok := types.DTypeFromString(p.curToken.Literal)
	if !ok {
		p.errorfAt(p.curToken.Pos, "unknown dtype %q", p.curToken.Literal)
		return types.DTypeUnknown
	}
	return dtype
}

// parseBlock parses "block { bindings... return expr }". curToken is the
// function's LBRACE on entry; on exit it is the block's RBRACE.
func (p *Parser) parseBlock() *ir.DataflowBlock {
	if !p.expectPeek(lexer.BLOCK) {
		return nil
	}
	span := p.curToken.Pos
	if !p.expectPeek(lexer.LBRACE) {
		return nil
	}

	bindings := []*ir.Binding{}
	var ret ir.Expr
	for {
		switch {
		case p.peekTokenIs(lexer.RETURN):
			p.nextToken()
			p.nextToken()
			ret = p.parseExpr()
			if ret == nil {
				return nil
			}
			if !p.expectPeek(lexer.RBRACE) {
				return nil
			}
			return &ir.DataflowBlock{Bindings: bindings, Ret: ret, Span: span}

		case p.peekTokenIs(lexer.OUT), p.peekTokenIs(lexer.VARIDENT):
			binding := p.parseBinding()
			if binding == nil {
				return nil
			}
			bindings = append(bindings, binding)

		default:
			p.errorf("expected binding or return, got %s", p.peekToken.Type)
			return nil
		}
	}
}

// parseBinding parses "[out] %v = expr".
func (p *Parser) parseBinding() *ir.Binding {
	kind := ir.KindIntermediate
	if p.peekTokenIs(lexer.OUT) {
		p.nextToken()
		kind = ir.KindOutput
	}
	if !p.expectPeek(lexer.VARIDENT) {
		return nil
	}
	name := p.curToken.Literal
	pos := p.curToken.Pos
	if !p.expectPeek(lexer.ASSIGN) {
		return nil
	}
	p.nextToken()
	value := p.parseExpr()
	if value == nil {
		return nil
	}
	if _, exists := p.scope[name]; exists {
		p.errorfAt(pos, "variable %%%s rebound; bindings are single-assignment", name)
		return nil
	}
	decl := ir.NewVarDecl(name, nil, kind)
	p.scope[name] = decl
	return &ir.Binding{Var: decl, Value: value}
}

// parseExpr parses an expression. curToken is the first token of the
// expression on entry and its last token on exit.
func (p *Parser) parseExpr() ir.Expr {
	switch p.curToken.Type {
	case lexer.VARIDENT:
		return p.parseVarRef()
	case lexer.LPAREN:
		return p.parseTupleOrShape()
	case lexer.IDENT:
		return p.parseCall()
	default:
		p.errorfAt(p.curToken.Pos, "expected expression, got %s", p.curToken.Type)
		return nil
	}
}

// parseVarRef parses a variable reference with optional projections:
// %t, %t.0, %t.0.1.
func (p *Parser) parseVarRef() ir.Expr {
	decl, ok := p.scope[p.curToken.Literal]
	if !ok {
		p.errorfAt(p.curToken.Pos, "undefined variable %%%s", p.curToken.Literal)
		return nil
	}
	v := ir.NewVar(decl)
	v.Span = p.curToken.Pos
	var expr ir.Expr = v
	for p.peekTokenIs(lexer.DOT) {
		p.nextToken()
		// The lexer reads "1.0" in "%t.1.0" as one float literal; its two
		// digit groups are two projection indices.
		var indices []string
		if p.peekTokenIs(lexer.FLOATLIT) {
			p.nextToken()
			indices = strings.Split(p.curToken.Literal, ".")
		} else if p.expectPeek(lexer.INT) {
			indices = []string{p.curToken.Literal}
		} else {
			return nil
		}
		for _, lit := range indices {
			index, err := strconv.Atoi(lit)
			if err != nil || index < 0 {
				p.errorfAt(p.curToken.Pos, "invalid tuple index %q", p.curToken.Literal)
				return nil
			}
			tg := ir.NewTupleGet(expr, index)
			tg.Span = p.curToken.Pos
			expr = tg
		}
	}
	return expr
}

// parseTupleOrShape parses "( ... )": a shape literal when the elements
// are integers, a tuple construction otherwise. curToken is LPAREN on
// entry and RPAREN on exit.
func (p *Parser) parseTupleOrShape() ir.Expr {
	span := p.curToken.Pos
	if p.peekTokenIs(lexer.RPAREN) || p.peekTokenIs(lexer.INT) {
		dims := p.parseDims()
		if dims == nil {
			return nil
		}
		lit := ir.NewShapeLit(dims)
		lit.Span = span
		return lit
	}

	fields := []ir.Expr{}
	for {
		p.nextToken()
		field := p.parseExpr()
		if field == nil {
			return nil
		}
		fields = append(fields, field)
		if p.peekTokenIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		if !p.expectPeek(lexer.RPAREN) {
			return nil
		}
		tuple := ir.NewTuple(fields...)
		tuple.Span = span
		return tuple
	}
}

// parseCall parses "op(args) [{attr = "value", ...}]". curToken is the
// operator name on entry and the closing RPAREN or RBRACE on exit.
func (p *Parser) parseCall() ir.Expr {
	op := p.curToken.Literal
	span := p.curToken.Pos
	if !p.expectPeek(lexer.LPAREN) {
		return nil
	}
	args := []ir.Expr{}
	if p.peekTokenIs(lexer.RPAREN) {
		p.nextToken()
	} else {
		for {
			p.nextToken()
			arg := p.parseExpr()
			if arg == nil {
				return nil
			}
			args = append(args, arg)
			if p.peekTokenIs(lexer.COMMA) {
				p.nextToken()
				continue
			}
			if !p.expectPeek(lexer.RPAREN) {
				return nil
			}
			break
		}
	}
	call := ir.NewCall(op, args...)
	call.Span = span
	if p.peekTokenIs(lexer.LBRACE) {
		p.nextToken()
		call.Attrs = p.parseAttrs()
		if call.Attrs == nil {
			return nil
		}
	}
	return call
}

// parseAttrs parses '{ name = "value", ... }'. curToken is LBRACE on
// entry and RBRACE on exit.
func (p *Parser) parseAttrs() map[string]string {
	attrs := map[string]string{}
	for {
		if !p.expectPeek(lexer.IDENT) {
			return nil
		}
		name := p.curToken.Literal
		if !p.expectPeek(lexer.ASSIGN) {
			return nil
		}
		if !p.expectPeek(lexer.STRING) {
			return nil
		}
		attrs[name] = p.curToken.Literal
		if p.peekTokenIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		if !p.expectPeek(lexer.RBRACE) {
			return nil
		}
		return attrs
	}
}
