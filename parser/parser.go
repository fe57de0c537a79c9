// ==============================================================================================
// FILE: parser/parser.go
// ==============================================================================================
// PACKAGE: parser
// PURPOSE: Recursive-descent statement grammar plus a Pratt expression parser, turning a token
//          stream into an AST. Desugars "for" into "while", "with" into "try/finally", and
//          resolves each Identifier's Scope (local/global/cell) in a post-parse pass so the
//          compiler never has to re-discover lexical scoping.
// ==============================================================================================

package parser

import (
	"strconv"

	"wings/ast"
	"wings/lexer"
	"wings/token"
	"wings/wingserr"
)

const (
	_ int = iota
	LOWEST
	TERNARY
	LOGICAL_OR
	LOGICAL_AND
	NOT
	EQUALS
	LESSGREATER
	BITOR
	BITXOR
	BITAND
	SHIFT
	SUM
	PRODUCT
	PREFIX
	POWER
	CALL
	INDEX
)

var precedences = map[token.Type]int{
	token.OR:       LOGICAL_OR,
	token.AND:      LOGICAL_AND,
	token.EQ:       EQUALS,
	token.NOT_EQ:   EQUALS,
	token.LT:       LESSGREATER,
	token.GT:       LESSGREATER,
	token.LT_EQ:    LESSGREATER,
	token.GT_EQ:    LESSGREATER,
	token.IN:       LESSGREATER,
	token.IS:       LESSGREATER,
	token.NOT:      LESSGREATER,
	token.PIPE:     BITOR,
	token.CARET:    BITXOR,
	token.AMP:      BITAND,
	token.SHL:      SHIFT,
	token.SHR:      SHIFT,
	token.PLUS:     SUM,
	token.MINUS:    SUM,
	token.STAR:     PRODUCT,
	token.SLASH:    PRODUCT,
	token.PERCENT:  PRODUCT,
	token.POW:      POWER,
	token.LPAREN:   CALL,
	token.LBRACKET: INDEX,
	token.DOT:      CALL,
}

type (
	prefixParseFn func() ast.Expression
	infixParseFn  func(ast.Expression) ast.Expression
)

type Parser struct {
	l      *lexer.Lexer
	errs   wingserr.Errors

	curToken  token.Token
	peekToken token.Token

	prefixParseFns map[token.Type]prefixParseFn
	infixParseFns  map[token.Type]infixParseFn
}

func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}

	p.prefixParseFns = make(map[token.Type]prefixParseFn)
	p.registerPrefix(token.IDENT, p.parseIdentifier)
	p.registerPrefix(token.INT, p.parseIntegerLiteral)
	p.registerPrefix(token.FLOAT, p.parseFloatLiteral)
	p.registerPrefix(token.STRING, p.parseStringLiteral)
	p.registerPrefix(token.TRUE, p.parseBooleanLiteral)
	p.registerPrefix(token.FALSE, p.parseBooleanLiteral)
	p.registerPrefix(token.NONE, p.parseNoneLiteral)
	p.registerPrefix(token.MINUS, p.parsePrefixExpression)
	p.registerPrefix(token.NOT, p.parsePrefixExpression)
	p.registerPrefix(token.TILDE, p.parsePrefixExpression)
	p.registerPrefix(token.LPAREN, p.parseGroupedOrTuple)
	p.registerPrefix(token.LBRACKET, p.parseListLiteralOrComp)
	p.registerPrefix(token.LBRACE, p.parseDictOrSetLiteralOrComp)
	p.registerPrefix(token.LAMBDA, p.parseLambdaLiteral)

	p.infixParseFns = make(map[token.Type]infixParseFn)
	for _, t := range []token.Type{token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT,
		token.POW, token.EQ, token.NOT_EQ, token.LT, token.GT, token.LT_EQ, token.GT_EQ,
		token.AMP, token.PIPE, token.CARET, token.SHL, token.SHR, token.IN} {
		p.registerInfix(t, p.parseInfixExpression)
	}
	p.registerInfix(token.IS, p.parseIsExpression)
	p.registerInfix(token.NOT, p.parseNotInExpression)
	p.registerInfix(token.AND, p.parseBoolOpExpression)
	p.registerInfix(token.OR, p.parseBoolOpExpression)
	p.registerInfix(token.LPAREN, p.parseCallExpression)
	p.registerInfix(token.LBRACKET, p.parseIndexOrSliceExpression)
	p.registerInfix(token.DOT, p.parseAttributeExpression)

	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) registerPrefix(t token.Type, fn prefixParseFn) { p.prefixParseFns[t] = fn }
func (p *Parser) registerInfix(t token.Type, fn infixParseFn)   { p.infixParseFns[t] = fn }

func (p *Parser) Errors() *wingserr.Errors { return &p.errs }

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) curIs(t token.Type) bool  { return p.curToken.Type == t }
func (p *Parser) peekIs(t token.Type) bool { return p.peekToken.Type == t }

func (p *Parser) expect(t token.Type) bool {
	if p.peekIs(t) {
		p.nextToken()
		return true
	}
	p.errs.Addf(wingserr.KindParse, p.peekToken.Pos(), "expected next token to be %s, got %s instead", t, p.peekToken.Type)
	return false
}

// skipNewlines consumes any run of blank NEWLINE tokens, used between
// statements where an empty logical line carries no meaning.
func (p *Parser) skipNewlines() {
	for p.curIs(token.NEWLINE) {
		p.nextToken()
	}
}

func (p *Parser) peekPrecedence() int {
	if pr, ok := precedences[p.peekToken.Type]; ok {
		return pr
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if pr, ok := precedences[p.curToken.Type]; ok {
		return pr
	}
	return LOWEST
}

// ParseProgram parses the whole token stream, returning the Program root and
// running the capture-resolution pass over every function body it found.
func (p *Parser) ParseProgram() *ast.Program {
	program := &ast.Program{}
	p.skipNewlines()
	for !p.curIs(token.EOF) {
		start := p.curToken
		stmt := p.parseStatement()
		if stmt != nil {
			program.Statements = append(program.Statements, stmt)
		}
		if p.curToken == start {
			p.nextToken() // a malformed statement consumed nothing; step past it
		}
		p.skipNewlines()
	}
	resolveCaptures(program)
	return program
}

func (p *Parser) parseStatement() ast.Statement {
	switch p.curToken.Type {
	case token.IF:
		return p.parseIfStatement()
	case token.WHILE:
		return p.parseWhileStatement()
	case token.FOR:
		return p.parseForStatement()
	case token.BREAK:
		s := &ast.BreakStatement{Token: p.curToken}
		p.endSimpleStatement()
		return s
	case token.CONTINUE:
		s := &ast.ContinueStatement{Token: p.curToken}
		p.endSimpleStatement()
		return s
	case token.PASS:
		s := &ast.PassStatement{Token: p.curToken}
		p.endSimpleStatement()
		return s
	case token.DEF:
		return p.parseFunctionDefStatement()
	case token.CLASS:
		return p.parseClassDefStatement()
	case token.RETURN:
		return p.parseReturnStatement()
	case token.TRY:
		return p.parseTryStatement()
	case token.RAISE:
		return p.parseRaiseStatement()
	case token.WITH:
		return p.parseWithStatement()
	case token.IMPORT:
		return p.parseImportStatement()
	case token.FROM:
		return p.parseImportFromStatement()
	case token.GLOBAL:
		return p.parseGlobalStatement()
	case token.NONLOCAL:
		return p.parseNonlocalStatement()
	default:
		return p.parseExpressionOrAssignStatement()
	}
}

func (p *Parser) endSimpleStatement() {
	if p.peekIs(token.NEWLINE) || p.peekIs(token.EOF) {
		p.nextToken()
	}
}

// parseBlock expects the current token to be COLON, consumes NEWLINE INDENT,
// parses statements until DEDENT, and leaves curToken on the DEDENT.
func (p *Parser) parseBlock() *ast.BlockStatement {
	block := &ast.BlockStatement{Token: p.curToken}
	if !p.curIs(token.COLON) {
		p.errs.Addf(wingserr.KindParse, p.curToken.Pos(), "expected %s, got %s instead", token.COLON, p.curToken.Type)
		return block
	}
	if !p.expect(token.NEWLINE) {
		return block
	}
	if !p.expect(token.INDENT) {
		return block
	}
	p.nextToken()
	p.skipNewlines()
	for !p.curIs(token.DEDENT) && !p.curIs(token.EOF) {
		stmt := p.parseStatement()
		if stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
		p.skipNewlines()
	}
	return block
}

func (p *Parser) parseIfStatement() ast.Statement {
	stmt := &ast.IfStatement{Token: p.curToken}
	for {
		p.nextToken()
		cond := p.parseExpression(LOWEST)
		p.nextToken()
		body := p.parseBlock()
		stmt.Clauses = append(stmt.Clauses, ast.IfClause{Condition: cond, Body: body})
		if p.curIs(token.DEDENT) {
			p.nextToken()
		}
		if p.curIs(token.ELIF) {
			continue
		}
		break
	}
	if p.curIs(token.ELSE) {
		p.nextToken()
		stmt.Else = p.parseBlock()
		if p.curIs(token.DEDENT) {
			p.nextToken()
		}
	}
	return stmt
}

func (p *Parser) parseWhileStatement() ast.Statement {
	stmt := &ast.WhileStatement{Token: p.curToken}
	p.nextToken()
	stmt.Condition = p.parseExpression(LOWEST)
	p.nextToken()
	stmt.Body = p.parseBlock()
	if p.curIs(token.DEDENT) {
		p.nextToken()
	}
	if p.curIs(token.ELSE) {
		p.nextToken()
		stmt.Else = p.parseBlock()
		if p.curIs(token.DEDENT) {
			p.nextToken()
		}
	}
	return stmt
}

// parseForStatement desugars "for target in iter: body" into:
//   __it = iter(<iter>)
//   while True:
//       try: target = next(__it)
//       except StopIteration: break
//       body
// expressed directly as WhileStatement + helper calls so the vm never needs
// a dedicated for-loop opcode, matching spec.md's "for" iteration protocol.
func (p *Parser) parseForStatement() ast.Statement {
	tok := p.curToken
	p.nextToken()
	target := p.parseExpression(LESSGREATER)
	if !p.expect(token.IN) {
		return nil
	}
	p.nextToken()
	iter := p.parseExpression(LOWEST)
	p.nextToken()
	body := p.parseBlock()
	if p.curIs(token.DEDENT) {
		p.nextToken()
	}
	var elseBlock *ast.BlockStatement
	if p.curIs(token.ELSE) {
		p.nextToken()
		elseBlock = p.parseBlock()
		if p.curIs(token.DEDENT) {
			p.nextToken()
		}
	}
	return desugarFor(tok, target, iter, body, elseBlock)
}

func (p *Parser) parseFunctionDefStatement() ast.Statement {
	stmt := &ast.FunctionDefStatement{Token: p.curToken}
	if !p.expect(token.IDENT) {
		return nil
	}
	stmt.Name = p.curToken.Literal
	if !p.expect(token.LPAREN) {
		return nil
	}
	stmt.Parameters = p.parseParameters()
	p.nextToken()
	stmt.Body = p.parseBlock()
	if p.curIs(token.DEDENT) {
		p.nextToken()
	}
	return stmt
}

func (p *Parser) parseParameters() *ast.Parameters {
	params := &ast.Parameters{Defaults: map[string]ast.Expression{}, StarArg: "", DoubleStarArg: ""}
	if p.peekIs(token.RPAREN) {
		p.nextToken()
		return params
	}
	p.nextToken()
	for {
		if p.curIs(token.STAR) {
			p.nextToken()
			params.StarArg = p.curToken.Literal
		} else if p.curIs(token.POW) {
			p.nextToken()
			params.DoubleStarArg = p.curToken.Literal
		} else {
			name := p.curToken.Literal
			params.Names = append(params.Names, name)
			if p.peekIs(token.ASSIGN) {
				p.nextToken()
				p.nextToken()
				params.Defaults[name] = p.parseExpression(LOWEST)
			}
		}
		if !p.peekIs(token.COMMA) {
			break
		}
		p.nextToken()
		p.nextToken()
	}
	if !p.expect(token.RPAREN) {
		return nil
	}
	return params
}

func (p *Parser) parseClassDefStatement() ast.Statement {
	stmt := &ast.ClassDefStatement{Token: p.curToken}
	if !p.expect(token.IDENT) {
		return nil
	}
	stmt.Name = p.curToken.Literal
	if p.peekIs(token.LPAREN) {
		p.nextToken()
		if !p.peekIs(token.RPAREN) {
			p.nextToken()
			stmt.Bases = append(stmt.Bases, p.parseExpression(LOWEST))
			for p.peekIs(token.COMMA) {
				p.nextToken()
				p.nextToken()
				stmt.Bases = append(stmt.Bases, p.parseExpression(LOWEST))
			}
		}
		if !p.expect(token.RPAREN) {
			return nil
		}
	}
	p.nextToken()
	stmt.Body = p.parseBlock()
	if p.curIs(token.DEDENT) {
		p.nextToken()
	}
	return stmt
}

func (p *Parser) parseReturnStatement() ast.Statement {
	stmt := &ast.ReturnStatement{Token: p.curToken}
	if p.peekIs(token.NEWLINE) || p.peekIs(token.EOF) || p.peekIs(token.DEDENT) {
		p.nextToken()
		return stmt
	}
	p.nextToken()
	stmt.ReturnValue = p.parseExpression(LOWEST)
	p.endSimpleStatement()
	return stmt
}

func (p *Parser) parseTryStatement() ast.Statement {
	stmt := &ast.TryStatement{Token: p.curToken}
	p.nextToken()
	stmt.Body = p.parseBlock()
	if p.curIs(token.DEDENT) {
		p.nextToken()
	}
	for p.curIs(token.EXCEPT) {
		clause := ast.ExceptClause{}
		if !p.peekIs(token.COLON) {
			p.nextToken()
			clause.Types = append(clause.Types, p.parseExpression(LOWEST))
			for p.peekIs(token.COMMA) {
				p.nextToken()
				p.nextToken()
				clause.Types = append(clause.Types, p.parseExpression(LOWEST))
			}
			if p.peekIs(token.AS) {
				p.nextToken()
				p.nextToken()
				clause.Name = p.curToken.Literal
			}
		}
		p.nextToken()
		clause.Body = p.parseBlock()
		stmt.Excepts = append(stmt.Excepts, clause)
		if p.curIs(token.DEDENT) {
			p.nextToken()
		}
	}
	if p.curIs(token.ELSE) {
		p.nextToken()
		stmt.Else = p.parseBlock()
		if p.curIs(token.DEDENT) {
			p.nextToken()
		}
	}
	if p.curIs(token.FINALLY) {
		p.nextToken()
		stmt.Finally = p.parseBlock()
		if p.curIs(token.DEDENT) {
			p.nextToken()
		}
	}
	return stmt
}

func (p *Parser) parseRaiseStatement() ast.Statement {
	stmt := &ast.RaiseStatement{Token: p.curToken}
	if p.peekIs(token.NEWLINE) || p.peekIs(token.EOF) {
		p.nextToken()
		return stmt
	}
	p.nextToken()
	stmt.Value = p.parseExpression(LOWEST)
	p.endSimpleStatement()
	return stmt
}

// parseWithStatement fully desugars "with ctx as name: body" into
//   name = ctx.__enter__()
//   try:
//       body
//   finally:
//       ctx.__exit__()
// matching the dunder-dispatch protocol spec.md uses for operator overloading,
// so the vm/compiler never need a dedicated WithStatement or opcode.
func (p *Parser) parseWithStatement() ast.Statement {
	tok := p.curToken
	p.nextToken()
	ctx := p.parseExpression(LOWEST)
	var asName string
	if p.peekIs(token.AS) {
		p.nextToken()
		p.nextToken()
		asName = p.curToken.Literal
	}
	p.nextToken()
	body := p.parseBlock()
	if p.curIs(token.DEDENT) {
		p.nextToken()
	}
	return desugarWith(tok, ctx, asName, body)
}

func (p *Parser) parseImportStatement() ast.Statement {
	stmt := &ast.ImportStatement{Token: p.curToken}
	if !p.expect(token.IDENT) {
		return nil
	}
	stmt.Name = p.curToken.Literal
	if p.peekIs(token.AS) {
		p.nextToken()
		p.nextToken()
		stmt.Alias = p.curToken.Literal
	}
	p.endSimpleStatement()
	return stmt
}

func (p *Parser) parseImportFromStatement() ast.Statement {
	stmt := &ast.ImportFromStatement{Token: p.curToken, Aliases: map[string]string{}}
	if !p.expect(token.IDENT) {
		return nil
	}
	stmt.Module = p.curToken.Literal
	if !p.expect(token.IMPORT) {
		return nil
	}
	p.nextToken()
	for {
		name := p.curToken.Literal
		stmt.Names = append(stmt.Names, name)
		if p.peekIs(token.AS) {
			p.nextToken()
			p.nextToken()
			stmt.Aliases[name] = p.curToken.Literal
		}
		if !p.peekIs(token.COMMA) {
			break
		}
		p.nextToken()
		p.nextToken()
	}
	p.endSimpleStatement()
	return stmt
}

func (p *Parser) parseGlobalStatement() ast.Statement {
	stmt := &ast.GlobalStatement{Token: p.curToken}
	p.nextToken()
	stmt.Names = append(stmt.Names, p.curToken.Literal)
	for p.peekIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		stmt.Names = append(stmt.Names, p.curToken.Literal)
	}
	p.endSimpleStatement()
	return stmt
}

func (p *Parser) parseNonlocalStatement() ast.Statement {
	stmt := &ast.NonlocalStatement{Token: p.curToken}
	p.nextToken()
	stmt.Names = append(stmt.Names, p.curToken.Literal)
	for p.peekIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		stmt.Names = append(stmt.Names, p.curToken.Literal)
	}
	p.endSimpleStatement()
	return stmt
}

// parseExpressionOrAssignStatement parses an expression, then checks for a
// following "=" or augmented-assignment operator to turn it into an
// AssignStatement.
func (p *Parser) parseExpressionOrAssignStatement() ast.Statement {
	tok := p.curToken
	expr := p.parseExpression(LOWEST)

	if isAssignOp(p.peekToken.Type) {
		op := p.peekToken.Literal
		p.nextToken()
		p.nextToken()
		value := p.parseExpression(LOWEST)
		p.endSimpleStatement()
		return &ast.AssignStatement{Token: tok, Target: expr, Op: op, Value: value}
	}

	p.endSimpleStatement()
	return &ast.ExpressionStatement{Token: tok, Expression: expr}
}

func isAssignOp(t token.Type) bool {
	switch t {
	case token.ASSIGN, token.PLUS_EQ, token.MINUS_EQ, token.STAR_EQ, token.SLASH_EQ:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (p *Parser) parseExpression(precedence int) ast.Expression {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.errs.Addf(wingserr.KindParse, p.curToken.Pos(), "no prefix parse function for %s", p.curToken.Type)
		return nil
	}
	left := prefix()

	for !p.peekIs(token.NEWLINE) && !p.peekIs(token.EOF) && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return left
		}
		p.nextToken()
		left = infix(left)
	}

	if p.peekIs(token.IF) && precedence < TERNARY {
		left = p.parseTernary(left)
	}
	return left
}

func (p *Parser) parseTernary(consequence ast.Expression) ast.Expression {
	tok := p.peekToken
	p.nextToken()
	p.nextToken()
	cond := p.parseExpression(TERNARY)
	if !p.expect(token.ELSE) {
		return nil
	}
	p.nextToken()
	alt := p.parseExpression(TERNARY)
	return &ast.TernaryExpression{Token: tok, Condition: cond, Consequence: consequence, Alternative: alt}
}

func (p *Parser) parseIdentifier() ast.Expression {
	return &ast.Identifier{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseIntegerLiteral() ast.Expression {
	lit := &ast.IntegerLiteral{Token: p.curToken}
	val, err := strconv.ParseInt(p.curToken.Literal, 0, 64)
	if err != nil {
		p.errs.Addf(wingserr.KindParse, p.curToken.Pos(), "could not parse %q as integer", p.curToken.Literal)
		return nil
	}
	lit.Value = val
	return lit
}

func (p *Parser) parseFloatLiteral() ast.Expression {
	lit := &ast.FloatLiteral{Token: p.curToken}
	val, err := strconv.ParseFloat(p.curToken.Literal, 64)
	if err != nil {
		p.errs.Addf(wingserr.KindParse, p.curToken.Pos(), "could not parse %q as float", p.curToken.Literal)
		return nil
	}
	lit.Value = val
	return lit
}

func (p *Parser) parseStringLiteral() ast.Expression {
	return &ast.StringLiteral{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseBooleanLiteral() ast.Expression {
	return &ast.BooleanLiteral{Token: p.curToken, Value: p.curToken.Type == token.TRUE}
}

func (p *Parser) parseNoneLiteral() ast.Expression {
	return &ast.NoneLiteral{Token: p.curToken}
}

func (p *Parser) parsePrefixExpression() ast.Expression {
	exp := &ast.PrefixExpression{Token: p.curToken, Operator: p.curToken.Literal}
	p.nextToken()
	exp.Right = p.parseExpression(PREFIX)
	return exp
}

func (p *Parser) parseGroupedOrTuple() ast.Expression {
	tok := p.curToken
	if p.peekIs(token.RPAREN) {
		p.nextToken()
		return &ast.TupleLiteral{Token: tok}
	}
	p.nextToken()
	first := p.parseExpression(LOWEST)
	if p.peekIs(token.COMMA) {
		elems := []ast.Expression{first}
		for p.peekIs(token.COMMA) {
			p.nextToken()
			if p.peekIs(token.RPAREN) {
				break
			}
			p.nextToken()
			elems = append(elems, p.parseExpression(LOWEST))
		}
		if !p.expect(token.RPAREN) {
			return nil
		}
		return &ast.TupleLiteral{Token: tok, Elements: elems}
	}
	if !p.expect(token.RPAREN) {
		return nil
	}
	return first
}

func (p *Parser) parseListLiteralOrComp() ast.Expression {
	tok := p.curToken
	if p.peekIs(token.RBRACKET) {
		p.nextToken()
		return &ast.ListLiteral{Token: tok}
	}
	p.nextToken()
	first := p.parseExpression(LOWEST)
	if p.peekIs(token.FOR) {
		return p.parseComprehensionTail(tok, first, nil, "list")
	}
	elems := []ast.Expression{first}
	for p.peekIs(token.COMMA) {
		p.nextToken()
		if p.peekIs(token.RBRACKET) {
			break
		}
		p.nextToken()
		elems = append(elems, p.parseExpression(LOWEST))
	}
	if !p.expect(token.RBRACKET) {
		return nil
	}
	return &ast.ListLiteral{Token: tok, Elements: elems}
}

func (p *Parser) parseDictOrSetLiteralOrComp() ast.Expression {
	tok := p.curToken
	if p.peekIs(token.RBRACE) {
		p.nextToken()
		return &ast.DictLiteral{Token: tok}
	}
	p.nextToken()
	firstKey := p.parseExpression(LOWEST)
	if p.peekIs(token.COLON) {
		p.nextToken()
		p.nextToken()
		firstVal := p.parseExpression(LOWEST)
		if p.peekIs(token.FOR) {
			return p.parseComprehensionTail(tok, firstKey, firstVal, "dict")
		}
		dict := &ast.DictLiteral{Token: tok, Pairs: []ast.DictPair{{Key: firstKey, Value: firstVal}}}
		for p.peekIs(token.COMMA) {
			p.nextToken()
			if p.peekIs(token.RBRACE) {
				break
			}
			p.nextToken()
			k := p.parseExpression(LOWEST)
			if !p.expect(token.COLON) {
				return nil
			}
			p.nextToken()
			v := p.parseExpression(LOWEST)
			dict.Pairs = append(dict.Pairs, ast.DictPair{Key: k, Value: v})
		}
		if !p.expect(token.RBRACE) {
			return nil
		}
		return dict
	}
	if p.peekIs(token.FOR) {
		return p.parseComprehensionTail(tok, firstKey, nil, "set")
	}
	set := &ast.SetLiteral{Token: tok, Elements: []ast.Expression{firstKey}}
	for p.peekIs(token.COMMA) {
		p.nextToken()
		if p.peekIs(token.RBRACE) {
			break
		}
		p.nextToken()
		set.Elements = append(set.Elements, p.parseExpression(LOWEST))
	}
	if !p.expect(token.RBRACE) {
		return nil
	}
	return set
}

func (p *Parser) parseComprehensionTail(tok token.Token, element, valueElement ast.Expression, kind string) ast.Expression {
	comp := &ast.ListCompExpression{Token: tok, Element: element, ValueElement: valueElement, Kind: kind}
	for p.peekIs(token.FOR) {
		p.nextToken() // at FOR
		p.nextToken()
		target := p.parseExpression(LESSGREATER)
		if !p.expect(token.IN) {
			return nil
		}
		p.nextToken()
		iter := p.parseExpression(TERNARY)
		clause := ast.CompClause{Target: target, Iter: iter}
		for p.peekIs(token.IF) {
			p.nextToken()
			p.nextToken()
			clause.Ifs = append(clause.Ifs, p.parseExpression(TERNARY))
		}
		comp.Clauses = append(comp.Clauses, clause)
	}
	var closer token.Type
	switch kind {
	case "list":
		closer = token.RBRACKET
	default:
		closer = token.RBRACE
	}
	if !p.expect(closer) {
		return nil
	}
	return comp
}

func (p *Parser) parseLambdaLiteral() ast.Expression {
	tok := p.curToken
	params := &ast.Parameters{Defaults: map[string]ast.Expression{}}
	p.nextToken()
	if !p.curIs(token.COLON) {
		for {
			name := p.curToken.Literal
			params.Names = append(params.Names, name)
			if !p.peekIs(token.COMMA) {
				break
			}
			p.nextToken()
			p.nextToken()
		}
		if !p.expect(token.COLON) {
			return nil
		}
	}
	p.nextToken()
	body := p.parseExpression(LOWEST)
	block := &ast.BlockStatement{Token: tok, Statements: []ast.Statement{
		&ast.ReturnStatement{Token: tok, ReturnValue: body},
	}}
	return &ast.FunctionLiteral{Token: tok, Parameters: params, Body: block}
}

func (p *Parser) parseInfixExpression(left ast.Expression) ast.Expression {
	exp := &ast.InfixExpression{Token: p.curToken, Operator: p.curToken.Literal, Left: left}
	precedence := p.curPrecedence()
	p.nextToken()
	exp.Right = p.parseExpression(precedence)
	return exp
}

// parseIsExpression handles both "is" and the two-token "is not": curToken
// is IS on entry; a following NOT is consumed here rather than left for the
// generic loop, since "is not" is a single operator, not "is" followed by a
// standalone unary "not" applied to the right operand.
func (p *Parser) parseIsExpression(left ast.Expression) ast.Expression {
	tok := p.curToken
	operator := "is"
	if p.peekIs(token.NOT) {
		p.nextToken()
		operator = "is not"
	}
	precedence := LESSGREATER
	p.nextToken()
	right := p.parseExpression(precedence)
	return &ast.InfixExpression{Token: tok, Operator: operator, Left: left, Right: right}
}

// parseNotInExpression handles the two-token "not in" operator reached via
// NOT's infix registration: curToken is NOT on entry, and it must be followed
// by IN (a standalone unary "not" is only ever a prefix, registered
// separately, so this path is only taken once "not" has already been found
// in infix position, i.e. after a left operand).
func (p *Parser) parseNotInExpression(left ast.Expression) ast.Expression {
	tok := p.curToken
	if !p.expect(token.IN) {
		return nil
	}
	precedence := LESSGREATER
	p.nextToken()
	right := p.parseExpression(precedence)
	return &ast.InfixExpression{Token: tok, Operator: "not in", Left: left, Right: right}
}

func (p *Parser) parseBoolOpExpression(left ast.Expression) ast.Expression {
	exp := &ast.BoolOpExpression{Token: p.curToken, Operator: p.curToken.Literal, Left: left}
	precedence := p.curPrecedence()
	p.nextToken()
	exp.Right = p.parseExpression(precedence)
	return exp
}

func (p *Parser) parseCallExpression(fn ast.Expression) ast.Expression {
	exp := &ast.CallExpression{Token: p.curToken, Function: fn}
	if p.peekIs(token.RPAREN) {
		p.nextToken()
		return exp
	}
	p.nextToken()
	for {
		if p.curIs(token.STAR) {
			p.nextToken()
			exp.StarArg = p.parseExpression(LOWEST)
		} else if p.curIs(token.POW) {
			p.nextToken()
			exp.DoubleStarArg = p.parseExpression(LOWEST)
		} else if p.curIs(token.IDENT) && p.peekIs(token.ASSIGN) {
			name := p.curToken.Literal
			p.nextToken()
			p.nextToken()
			exp.KwargNames = append(exp.KwargNames, name)
			exp.KwargValues = append(exp.KwargValues, p.parseExpression(LOWEST))
		} else {
			exp.Arguments = append(exp.Arguments, p.parseExpression(LOWEST))
		}
		if !p.peekIs(token.COMMA) {
			break
		}
		p.nextToken()
		p.nextToken()
	}
	if !p.expect(token.RPAREN) {
		return nil
	}
	return exp
}

func (p *Parser) parseIndexOrSliceExpression(left ast.Expression) ast.Expression {
	tok := p.curToken
	if p.peekIs(token.COLON) {
		return p.parseSliceRest(tok, left, nil)
	}
	p.nextToken()
	first := p.parseExpression(LOWEST)
	if p.peekIs(token.COLON) {
		return p.parseSliceRest(tok, left, first)
	}
	if !p.expect(token.RBRACKET) {
		return nil
	}
	return &ast.IndexExpression{Token: tok, Left: left, Index: first}
}

func (p *Parser) parseSliceRest(tok token.Token, left ast.Expression, start ast.Expression) ast.Expression {
	slice := &ast.SliceExpression{Token: tok, Left: left, Start: start}
	p.nextToken() // consume ':'
	if !p.peekIs(token.COLON) && !p.peekIs(token.RBRACKET) {
		p.nextToken()
		slice.Stop = p.parseExpression(LOWEST)
	}
	if p.peekIs(token.COLON) {
		p.nextToken()
		if !p.peekIs(token.RBRACKET) {
			p.nextToken()
			slice.Step = p.parseExpression(LOWEST)
		}
	}
	if !p.expect(token.RBRACKET) {
		return nil
	}
	return slice
}

func (p *Parser) parseAttributeExpression(left ast.Expression) ast.Expression {
	exp := &ast.AttributeExpression{Token: p.curToken, Left: left}
	if !p.expect(token.IDENT) {
		return nil
	}
	exp.Name = p.curToken.Literal
	return exp
}
