// Package parser builds an internal/lang/ast syntax tree from a token
// stream produced by internal/lang/lexer — a hand-written recursive-
// descent parser over the guest language's restricted grammar.
package parser

import (
	"fmt"

	"pytrace/internal/lang/ast"
	"pytrace/internal/lang/lexer"
	"pytrace/internal/lang/token"
)

// Parser consumes a token stream and produces an *ast.Module.
type Parser struct {
	tokens []token.Token
	pos    int
}

// Parse tokenizes and parses source in one call.
func Parse(source string) (*ast.Module, error) {
	toks, err := lexer.New(source).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &Parser{tokens: toks}
	return p.parseModule()
}

func (p *Parser) cur() token.Token  { return p.tokens[p.pos] }
func (p *Parser) peekAt(n int) token.Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) advance() token.Token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expect(tt token.Type) (token.Token, error) {
	if p.cur().Type != tt {
		return token.Token{}, fmt.Errorf("line %d: expected %s, got %s %q", p.cur().Line, tt, p.cur().Type, p.cur().Literal)
	}
	return p.advance(), nil
}

func (p *Parser) skipNewlines() {
	for p.cur().Type == token.NEWLINE {
		p.advance()
	}
}

func (p *Parser) parseModule() (*ast.Module, error) {
	p.skipNewlines()
	body, err := p.parseStatements(func() bool { return p.cur().Type == token.EOF })
	if err != nil {
		return nil, err
	}
	return &ast.Module{Body: &ast.Block{Statements: body}}, nil
}

func (p *Parser) parseStatements(stop func() bool) ([]ast.Node, error) {
	var stmts []ast.Node
	for !stop() {
		p.skipNewlines()
		if stop() {
			break
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		p.skipNewlines()
	}
	return stmts, nil
}

// parseBlock parses `: NEWLINE INDENT stmt+ DEDENT`.
func (p *Parser) parseBlock() (*ast.Block, error) {
	if _, err := p.expect(token.COLON); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.NEWLINE); err != nil {
		return nil, err
	}
	p.skipNewlines()
	if _, err := p.expect(token.INDENT); err != nil {
		return nil, err
	}
	stmts, err := p.parseStatements(func() bool { return p.cur().Type == token.DEDENT || p.cur().Type == token.EOF })
	if err != nil {
		return nil, err
	}
	if p.cur().Type == token.DEDENT {
		p.advance()
	}
	return &ast.Block{Statements: stmts}, nil
}

func (p *Parser) parseStatement() (ast.Node, error) {
	switch p.cur().Type {
	case token.IF:
		return p.parseIf()
	case token.WHILE:
		return p.parseWhile()
	case token.FOR:
		return p.parseFor()
	case token.DEF:
		return p.parseFuncDef()
	case token.CLASS:
		return p.parseClassDef()
	case token.RETURN:
		return p.parseReturn()
	case token.PASS:
		t := p.advance()
		return &ast.Pass{LineNo: t.Line}, nil
	case token.BREAK:
		t := p.advance()
		return &ast.Break{LineNo: t.Line}, nil
	case token.CONTINUE:
		t := p.advance()
		return &ast.Continue{LineNo: t.Line}, nil
	default:
		return p.parseSimple()
	}
}

func (p *Parser) parseIf() (ast.Node, error) {
	line := p.advance().Line // IF
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	node := &ast.If{LineNo: line, Cond: cond, Then: then}

	p.skipNewlines()
	switch p.cur().Type {
	case token.ELIF:
		elifNode, err := p.parseIf() // elif behaves like a nested if in the else branch
		if err != nil {
			return nil, err
		}
		node.Else = &ast.Block{Statements: []ast.Node{elifNode}}
	case token.ELSE:
		p.advance()
		elseBlock, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		node.Else = elseBlock
	}
	return node, nil
}

func (p *Parser) parseWhile() (ast.Node, error) {
	line := p.advance().Line
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.While{LineNo: line, Cond: cond, Body: body}, nil
}

func (p *Parser) parseFor() (ast.Node, error) {
	line := p.advance().Line
	target, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.IN); err != nil {
		return nil, err
	}
	iterable, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.For{LineNo: line, Target: target.Literal, Iterable: iterable, Body: body}, nil
}

func (p *Parser) parseFuncDef() (*ast.FuncDef, error) {
	line := p.advance().Line
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var params []string
	for p.cur().Type != token.RPAREN {
		id, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		params = append(params, id.Literal)
		if p.cur().Type == token.COMMA {
			p.advance()
		}
	}
	p.advance() // RPAREN
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FuncDef{LineNo: line, Name: name.Literal, Params: params, Body: body}, nil
}

func (p *Parser) parseClassDef() (ast.Node, error) {
	line := p.advance().Line
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.COLON); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.NEWLINE); err != nil {
		return nil, err
	}
	p.skipNewlines()
	if _, err := p.expect(token.INDENT); err != nil {
		return nil, err
	}

	var methods []*ast.FuncDef
	for p.cur().Type != token.DEDENT && p.cur().Type != token.EOF {
		p.skipNewlines()
		if p.cur().Type == token.DEDENT || p.cur().Type == token.EOF {
			break
		}
		if p.cur().Type == token.PASS {
			p.advance()
			p.skipNewlines()
			continue
		}
		method, err := p.parseFuncDef()
		if err != nil {
			return nil, err
		}
		methods = append(methods, method)
		p.skipNewlines()
	}
	if p.cur().Type == token.DEDENT {
		p.advance()
	}
	return &ast.ClassDef{LineNo: line, Name: name.Literal, Methods: methods}, nil
}

func (p *Parser) parseReturn() (ast.Node, error) {
	line := p.advance().Line
	if p.cur().Type == token.NEWLINE || p.cur().Type == token.EOF {
		return &ast.Return{LineNo: line}, nil
	}
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.Return{LineNo: line, Value: value}, nil
}

// parseSimple parses an assignment or a bare expression statement.
func (p *Parser) parseSimple() (ast.Node, error) {
	line := p.cur().Line
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.cur().Type == token.ASSIGN {
		p.advance()
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.Assign{LineNo: line, Target: x, Value: value}, nil
	}
	return &ast.ExprStmt{LineNo: line, X: x}, nil
}

// --- Expressions, precedence climbing ---

// parseExpr parses an or-expression, then optionally a trailing ternary
// `Then if Cond else Else` wrapping it as the Then branch.
func (p *Parser) parseExpr() (ast.Node, error) {
	x, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur().Type == token.IF {
		line := p.advance().Line
		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.ELSE); err != nil {
			return nil, err
		}
		elseVal, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.IfExp{LineNo: line, Cond: cond, Then: x, Else: elseVal}, nil
	}
	return x, nil
}

func (p *Parser) parseOr() (ast.Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur().Type == token.OR {
		line := p.advance().Line
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.BoolOp{LineNo: line, Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.cur().Type == token.AND {
		line := p.advance().Line
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ast.BoolOp{LineNo: line, Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (ast.Node, error) {
	if p.cur().Type == token.NOT {
		line := p.advance().Line
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{LineNo: line, Op: "not", X: x}, nil
	}
	return p.parseComparison()
}

var compareOps = map[token.Type]string{
	token.EQ: "==", token.NEQ: "!=", token.LT: "<", token.LTE: "<=", token.GT: ">", token.GTE: ">=",
}

func (p *Parser) parseComparison() (ast.Node, error) {
	left, err := p.parseArith()
	if err != nil {
		return nil, err
	}
	if op, ok := compareOps[p.cur().Type]; ok {
		line := p.advance().Line
		right, err := p.parseArith()
		if err != nil {
			return nil, err
		}
		return &ast.Compare{LineNo: line, Op: op, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) parseArith() (ast.Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.cur().Type == token.PLUS || p.cur().Type == token.MINUS {
		t := p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{LineNo: t.Line, Op: string(t.Type), Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseTerm() (ast.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur().Type == token.STAR || p.cur().Type == token.SLASH || p.cur().Type == token.PERCENT {
		t := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{LineNo: t.Line, Op: string(t.Type), Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Node, error) {
	if p.cur().Type == token.MINUS || p.cur().Type == token.PLUS {
		t := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{LineNo: t.Line, Op: string(t.Type), X: x}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (ast.Node, error) {
	x, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Type {
		case token.LPAREN:
			line := p.advance().Line
			var args []ast.Node
			for p.cur().Type != token.RPAREN {
				arg, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.cur().Type == token.COMMA {
					p.advance()
				}
			}
			p.advance() // RPAREN
			x = &ast.Call{LineNo: line, Fn: x, Args: args}
		case token.LBRACKET:
			line := p.advance().Line
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBRACKET); err != nil {
				return nil, err
			}
			x = &ast.Index{LineNo: line, X: x, Key: key}
		case token.DOT:
			line := p.advance().Line
			name, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			x = &ast.Attribute{LineNo: line, X: x, Name: name.Literal}
		default:
			return x, nil
		}
	}
}

func (p *Parser) parseAtom() (ast.Node, error) {
	t := p.cur()
	switch t.Type {
	case token.INT:
		p.advance()
		var v int64
		fmt.Sscanf(t.Literal, "%d", &v)
		return &ast.IntLit{LineNo: t.Line, Value: v}, nil
	case token.FLOAT:
		p.advance()
		var v float64
		fmt.Sscanf(t.Literal, "%g", &v)
		return &ast.FloatLit{LineNo: t.Line, Value: v}, nil
	case token.STRING:
		p.advance()
		return &ast.StringLit{LineNo: t.Line, Value: t.Literal}, nil
	case token.TRUE:
		p.advance()
		return &ast.BoolLit{LineNo: t.Line, Value: true}, nil
	case token.FALSE:
		p.advance()
		return &ast.BoolLit{LineNo: t.Line, Value: false}, nil
	case token.NONE:
		p.advance()
		return &ast.NoneLit{LineNo: t.Line}, nil
	case token.IDENT:
		p.advance()
		return &ast.Ident{LineNo: t.Line, Name: t.Literal}, nil
	case token.LPAREN:
		p.advance()
		first, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.cur().Type == token.COMMA {
			elems := []ast.Node{first}
			for p.cur().Type == token.COMMA {
				p.advance()
				if p.cur().Type == token.RPAREN {
					break
				}
				next, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				elems = append(elems, next)
			}
			if _, err := p.expect(token.RPAREN); err != nil {
				return nil, err
			}
			return &ast.TupleLit{LineNo: t.Line, Elements: elems}, nil
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return first, nil
	case token.LBRACKET:
		return p.parseListLit()
	case token.LBRACE:
		return p.parseDictOrSetLit()
	default:
		return nil, fmt.Errorf("line %d: unexpected token %s %q", t.Line, t.Type, t.Literal)
	}
}

func (p *Parser) parseListLit() (ast.Node, error) {
	line := p.advance().Line // [
	var elems []ast.Node
	for p.cur().Type != token.RBRACKET {
		el, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, el)
		if p.cur().Type == token.COMMA {
			p.advance()
		}
	}
	p.advance() // ]
	return &ast.ListLit{LineNo: line, Elements: elems}, nil
}

func (p *Parser) parseDictOrSetLit() (ast.Node, error) {
	line := p.advance().Line // {
	if p.cur().Type == token.RBRACE {
		p.advance()
		return &ast.DictLit{LineNo: line}, nil
	}

	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.cur().Type == token.COLON {
		p.advance()
		firstVal, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		entries := []ast.DictEntry{{Key: first, Value: firstVal}}
		for p.cur().Type == token.COMMA {
			p.advance()
			if p.cur().Type == token.RBRACE {
				break
			}
			k, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.COLON); err != nil {
				return nil, err
			}
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			entries = append(entries, ast.DictEntry{Key: k, Value: v})
		}
		if _, err := p.expect(token.RBRACE); err != nil {
			return nil, err
		}
		return &ast.DictLit{LineNo: line, Entries: entries}, nil
	}

	elems := []ast.Node{first}
	for p.cur().Type == token.COMMA {
		p.advance()
		if p.cur().Type == token.RBRACE {
			break
		}
		el, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, el)
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return &ast.SetLit{LineNo: line, Elements: elems}, nil
}
