// Package parser turns a token.Token stream into an *ast.Block by
// recursive descent. The grammar and its precedence ladder are described
// in the language grammar this implements; the only state the parser
// carries across productions besides its token cursor is the set of
// declared type names, grown by each typedef and struct tag, used in parsePrimary to
// tell a declaration from a plain expression.
package parser

import (
	"fmt"

	"github.com/codeassociates/minic/ast"
	"github.com/codeassociates/minic/token"
)

// Error is a fatal syntax diagnostic: an unexpected token where a
// specific kind was required.
type Error struct {
	Pos token.Pos
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("error at %d:%d: %s", e.Pos.Row, e.Pos.Col, e.Msg)
}

var baseTypeNames = []string{"void", "char", "short", "int", "long", "float", "double"}

// Parser consumes a fixed token slice with one token of lookahead.
type Parser struct {
	toks []token.Token
	idx  int

	curToken  token.Token
	peekToken token.Token

	declaredTypes map[string]bool
}

// New builds a Parser over a complete token stream (including the
// trailing EOF token the lexer appends).
func New(toks []token.Token) *Parser {
	p := &Parser{toks: toks, declaredTypes: make(map[string]bool)}
	for _, name := range baseTypeNames {
		p.declaredTypes[name] = true
	}
	p.advance()
	p.advance()
	return p
}

func (p *Parser) advance() {
	p.curToken = p.peekToken
	if p.idx < len(p.toks) {
		p.peekToken = p.toks[p.idx]
		p.idx++
	} else if len(p.toks) > 0 {
		p.peekToken = p.toks[len(p.toks)-1]
	}
}

func (p *Parser) curIs(k token.Kind) bool { return p.curToken.Kind == k }
func (p *Parser) atEnd() bool             { return p.curIs(token.EOF) }

// expect requires the current token to have kind k, consumes it, and
// returns it. Any other current token is a fatal syntax error.
func (p *Parser) expect(k token.Kind, msg string) (token.Token, error) {
	if !p.curIs(k) {
		return token.Token{}, &Error{
			Pos: p.curToken.Pos,
			Msg: fmt.Sprintf("expected %s got %s: %s", k, p.curToken.Kind, msg),
		}
	}
	t := p.curToken
	p.advance()
	return t, nil
}

// ParseProgram parses the entire token stream as a sequence of top-level
// statements, the same production used for a brace-delimited block.
func (p *Parser) ParseProgram() (*ast.Block, error) {
	return p.parseBlockBody(p.curToken.Pos)
}

func (p *Parser) parseBlockBody(pos token.Pos) (*ast.Block, error) {
	block := &ast.Block{Pos: pos}
	for !p.curIs(token.RBRACE) && !p.atEnd() {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			block.Children = append(block.Children, stmt)
		}
	}
	return block, nil
}

func (p *Parser) parseStatement() (ast.Node, error) {
	switch p.curToken.Kind {
	case token.IF:
		return p.parseIf()
	case token.FOR:
		return p.parseFor()
	case token.RETURN:
		return p.parseReturn()
	default:
		return p.parseExpressionStatement()
	}
}

func requiresSemicolon(n ast.Node) bool {
	switch n.(type) {
	case *ast.Prototype, *ast.Block:
		return false
	default:
		return true
	}
}

func (p *Parser) parseExpressionStatement() (ast.Node, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if expr == nil || requiresSemicolon(expr) {
		if _, err := p.expect(token.SEMI, "expected semicolon after expression statement"); err != nil {
			return nil, err
		}
	}
	return expr, nil
}

func (p *Parser) parseIf() (ast.Node, error) {
	pos := p.curToken.Pos
	p.advance() // consume 'if'

	if _, err := p.expect(token.LPAREN, "expected left parenthesis before condition"); err != nil {
		return nil, err
	}
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN, "expected right parenthesis after condition"); err != nil {
		return nil, err
	}

	then, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, isBlock := then.(*ast.Block); !isBlock {
		if _, err := p.expect(token.SEMI, "expected semicolon after expression statement"); err != nil {
			return nil, err
		}
	}

	var elseNode ast.Node
	if p.curIs(token.ELSE) {
		p.advance()
		elseNode, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}

	return &ast.If{Pos: pos, Cond: cond, Then: then, Else: elseNode}, nil
}

func (p *Parser) parseFor() (ast.Node, error) {
	pos := p.curToken.Pos
	p.advance() // consume 'for'

	if _, err := p.expect(token.LPAREN, "expected left parenthesis before condition"); err != nil {
		return nil, err
	}
	initExpr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.SEMI, "expected semicolon after initializer"); err != nil {
		return nil, err
	}
	condExpr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.SEMI, "expected semicolon after condition"); err != nil {
		return nil, err
	}
	updateExpr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN, "expected right parenthesis after updation"); err != nil {
		return nil, err
	}

	body, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, isBlock := body.(*ast.Block); !isBlock {
		if _, err := p.expect(token.SEMI, "expected semicolon after expression statement"); err != nil {
			return nil, err
		}
	}

	return &ast.For{Pos: pos, Init: initExpr, Cond: condExpr, Update: updateExpr, Body: body}, nil
}

func (p *Parser) parseReturn() (ast.Node, error) {
	pos := p.curToken.Pos
	p.advance() // consume 'return'

	if p.curIs(token.SEMI) {
		p.advance()
		return &ast.Return{Pos: pos}, nil
	}

	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.SEMI, "expected semicolon after return statement"); err != nil {
		return nil, err
	}
	return &ast.Return{Pos: pos, Expr: expr}, nil
}

func (p *Parser) parseExpression() (ast.Node, error) { return p.parseAssignment() }

func (p *Parser) parseAssignment() (ast.Node, error) {
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.curIs(token.ASSIGN) {
		return node, nil
	}
	pos := p.curToken.Pos
	p.advance()

	rhs, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	switch target := node.(type) {
	case *ast.Identifier:
		return &ast.Assign{Pos: pos, TargetIdent: target, Expr: rhs}, nil
	case *ast.Alloc:
		return &ast.Assign{Pos: pos, TargetAlloc: target, Expr: rhs}, nil
	default:
		return nil, &Error{Pos: pos, Msg: "assignment target must be an identifier or a declaration"}
	}
}

// parseLeftAssoc implements one level of a left-associative binary
// operator precedence climb: parse with next, then fold in any run of
// operators at this level.
func (p *Parser) parseLeftAssoc(next func() (ast.Node, error), kinds ...token.Kind) (ast.Node, error) {
	node, err := next()
	if err != nil {
		return nil, err
	}
	for containsKind(kinds, p.curToken.Kind) {
		op := p.curToken
		p.advance()
		rhs, err := next()
		if err != nil {
			return nil, err
		}
		node = &ast.BinOp{Pos: op.Pos, Op: op.Kind, LHS: node, RHS: rhs}
	}
	return node, nil
}

func containsKind(kinds []token.Kind, k token.Kind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

func (p *Parser) parseOr() (ast.Node, error) {
	return p.parseLeftAssoc(p.parseAnd, token.OROR)
}

func (p *Parser) parseAnd() (ast.Node, error) {
	return p.parseLeftAssoc(p.parseEquality, token.ANDAND)
}

func (p *Parser) parseEquality() (ast.Node, error) {
	return p.parseLeftAssoc(p.parseComparison, token.BANGEQ, token.EQ)
}

// parseComparison also accepts == and != alongside the ordering
// operators. Because parseEquality calls this level for each operand,
// == and != are folded here and the equality level never sees them.
func (p *Parser) parseComparison() (ast.Node, error) {
	return p.parseLeftAssoc(p.parseAdditive, token.GT, token.GE, token.LT, token.LE, token.EQ, token.BANGEQ)
}

func (p *Parser) parseAdditive() (ast.Node, error) {
	return p.parseLeftAssoc(p.parseMultiplicative, token.PLUS, token.MINUS)
}

func (p *Parser) parseMultiplicative() (ast.Node, error) {
	return p.parseLeftAssoc(p.parseUnary, token.STAR, token.SLASH, token.PERCENT)
}

func (p *Parser) parseUnary() (ast.Node, error) {
	switch p.curToken.Kind {
	case token.BANG, token.MINUS:
		op := p.curToken
		p.advance()
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnOp{Pos: op.Pos, Op: op.Kind, Expr: expr}, nil

	case token.STAR:
		pos := p.curToken.Pos
		depth := 0
		for p.curIs(token.STAR) {
			p.advance()
			depth++
		}
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Ref{Pos: pos, Expr: expr, IsDeref: true, Depth: depth}, nil

	case token.AMP:
		pos := p.curToken.Pos
		p.advance()
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Ref{Pos: pos, Expr: expr, IsDeref: false}, nil

	default:
		return p.parseCall()
	}
}

func (p *Parser) parseCall() (ast.Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for p.curIs(token.LPAREN) {
		ident, ok := node.(*ast.Identifier)
		if !ok {
			return nil, &Error{Pos: p.curToken.Pos, Msg: "call target must be an identifier"}
		}
		pos := p.curToken.Pos
		p.advance() // consume '('

		call := &ast.Call{Pos: pos, Callee: ident.Name}
		if !p.curIs(token.RPAREN) {
			for {
				arg, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				call.Args = append(call.Args, arg)
				if p.curIs(token.COMMA) {
					p.advance()
					continue
				}
				break
			}
		}
		if _, err := p.expect(token.RPAREN, "expected right parenthesis after call identifier"); err != nil {
			return nil, err
		}
		node = call
	}

	return node, nil
}

// parsePrimary returns (nil, nil) when the current token starts no
// primary production. This is not an error: the for-statement grammar
// relies on it to represent an absent init/cond/update clause.
func (p *Parser) parsePrimary() (ast.Node, error) {
	switch p.curToken.Kind {
	case token.IDENT:
		text := p.curToken.Payload.String()
		pos := p.curToken.Pos
		p.advance()

		if p.curIs(token.IDENT) || (p.declaredTypes[text] && p.curIs(token.STAR)) {
			return p.parseAlloc(text, pos)
		}

		var index ast.Node
		if p.curIs(token.LBRACKET) {
			p.advance()
			idx, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBRACKET, "expected right square bracket after index expression"); err != nil {
				return nil, err
			}
			index = idx
		}
		return &ast.Identifier{Pos: pos, Name: text, Index: index}, nil

	case token.STRUCT:
		p.advance()
		return p.parseStruct()

	case token.TYPEDEF:
		p.advance()
		return p.parseTypedef()

	case token.INT:
		pos, v := p.curToken.Pos, p.curToken.Payload.Int()
		p.advance()
		return &ast.Integer{Pos: pos, Value: v, BitWidth: 32}, nil

	case token.CHAR:
		pos, v := p.curToken.Pos, p.curToken.Payload.Int()
		p.advance()
		return &ast.Integer{Pos: pos, Value: v, BitWidth: 8}, nil

	case token.FLOAT:
		pos, v := p.curToken.Pos, p.curToken.Payload.Float()
		p.advance()
		return &ast.Float{Pos: pos, Value: v}, nil

	case token.STRING:
		pos, text := p.curToken.Pos, p.curToken.Payload.String()
		p.advance()
		return &ast.String{Pos: pos, Text: text}, nil

	case token.LBRACE:
		pos := p.curToken.Pos
		p.advance()
		block, err := p.parseBlockBody(pos)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RBRACE, "expected closing right brace"); err != nil {
			return nil, err
		}
		return block, nil
	}

	return nil, nil
}

// parseAlloc parses the declarator that follows a type name: an optional
// run of '*' and the declared name, then an optional array extent, then
// either nothing (a trailing semicolon is left to the caller) or a
// parameter list turning this into a Prototype, in which case
// parsePrototype consumes a forward-declaration semicolon itself.
func (p *Parser) parseAlloc(typeName string, pos token.Pos) (ast.Node, error) {
	var name string
	ptrDepth := 0

	switch {
	case p.curIs(token.IDENT):
		name = p.curToken.Payload.String()
		p.advance()
	case p.curIs(token.STAR):
		for p.curIs(token.STAR) {
			p.advance()
			ptrDepth++
		}
		nameTok, err := p.expect(token.IDENT, "expected identifier after pointer declarator")
		if err != nil {
			return nil, err
		}
		name = nameTok.Payload.String()
	default:
		return nil, &Error{
			Pos: p.curToken.Pos,
			Msg: fmt.Sprintf("expected identifier or '*' in declaration, got %s", p.curToken.Kind),
		}
	}

	var arraySize ast.Node
	if p.curIs(token.LBRACKET) {
		p.advance()
		sz, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RBRACKET, "expected right square bracket after array index expression"); err != nil {
			return nil, err
		}
		arraySize = sz
	}

	alloc := &ast.Alloc{Pos: pos, TypeName: typeName, Name: name, PtrDepth: ptrDepth, ArraySize: arraySize}

	if p.curIs(token.LPAREN) {
		p.advance()
		return p.parsePrototype(alloc)
	}
	return alloc, nil
}

func (p *Parser) parsePrototype(returnAlloc *ast.Alloc) (ast.Node, error) {
	pos := returnAlloc.Pos
	var params []*ast.Alloc
	isVarargs := false

	if !p.curIs(token.RPAREN) {
		for {
			if p.curIs(token.ELLIPSIS) {
				isVarargs = true
				p.advance()
				break
			}
			paramTypeTok, err := p.expect(token.IDENT, "expected parameter type")
			if err != nil {
				return nil, err
			}
			paramNode, err := p.parseAlloc(paramTypeTok.Payload.String(), paramTypeTok.Pos)
			if err != nil {
				return nil, err
			}
			param, ok := paramNode.(*ast.Alloc)
			if !ok {
				return nil, &Error{Pos: paramTypeTok.Pos, Msg: "expected a parameter declaration"}
			}
			params = append(params, param)
			if p.curIs(token.COMMA) {
				p.advance()
				continue
			}
			break
		}
	}

	if _, err := p.expect(token.RPAREN, "expected right parenthesis after function definition"); err != nil {
		return nil, err
	}

	var body *ast.Block
	if p.curIs(token.SEMI) {
		p.advance()
	} else {
		if _, err := p.expect(token.LBRACE, "expected left brace"); err != nil {
			return nil, err
		}
		blockPos := p.curToken.Pos
		b, err := p.parseBlockBody(blockPos)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RBRACE, "expected right brace"); err != nil {
			return nil, err
		}
		body = b
	}

	return &ast.Prototype{
		Pos: pos, ReturnAlloc: returnAlloc, Name: returnAlloc.Name,
		Params: params, IsVarargs: isVarargs, Body: body,
	}, nil
}

// parseStruct parses either a variable declaration of a named struct
// (`struct Tag name;`) or a new struct type definition
// (`struct Tag { field; ... }`). Like a typedef, the tag is added to
// declaredTypes, so later `Tag *name` declarations parse without the
// `struct` keyword.
func (p *Parser) parseStruct() (ast.Node, error) {
	pos := p.curToken.Pos
	nameTok, err := p.expect(token.IDENT, "expected struct identifier")
	if err != nil {
		return nil, err
	}
	name := nameTok.Payload.String()
	p.declaredTypes[name] = true

	if p.curIs(token.IDENT) {
		return p.parseAlloc(name, pos)
	}

	if _, err := p.expect(token.LBRACE, "expected left brace"); err != nil {
		return nil, err
	}

	var fields []*ast.Alloc
	for {
		fieldTypeTok, err := p.expect(token.IDENT, "expected field type")
		if err != nil {
			return nil, err
		}
		fieldNode, err := p.parseAlloc(fieldTypeTok.Payload.String(), fieldTypeTok.Pos)
		if err != nil {
			return nil, err
		}
		field, ok := fieldNode.(*ast.Alloc)
		if !ok {
			return nil, &Error{Pos: fieldTypeTok.Pos, Msg: "expected a field declaration"}
		}
		fields = append(fields, field)
		if _, err := p.expect(token.SEMI, "expected semicolon after field"); err != nil {
			return nil, err
		}
		if p.curIs(token.RBRACE) {
			break
		}
	}
	if _, err := p.expect(token.RBRACE, "expected right brace"); err != nil {
		return nil, err
	}

	return &ast.Struct{Pos: pos, Name: name, Fields: fields}, nil
}

// parseTypedef reads an optional leading 'struct' keyword, the aliased
// type's declarator, and registers the new name in declaredTypes so
// later declarations can use it. It does not consume the trailing
// semicolon; that is the expression-statement caller's job.
func (p *Parser) parseTypedef() (ast.Node, error) {
	pos := p.curToken.Pos
	if p.curIs(token.STRUCT) {
		p.advance()
	}
	typeTok, err := p.expect(token.IDENT, "expected type name after typedef")
	if err != nil {
		return nil, err
	}

	allocNode, err := p.parseAlloc(typeTok.Payload.String(), typeTok.Pos)
	if err != nil {
		return nil, err
	}
	alloc, ok := allocNode.(*ast.Alloc)
	if !ok {
		return nil, &Error{Pos: typeTok.Pos, Msg: "expected a declaration after typedef"}
	}
	p.declaredTypes[alloc.Name] = true

	return &ast.Typedef{Pos: pos, Alloc: alloc}, nil
}
