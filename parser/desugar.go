// ==============================================================================================
// FILE: parser/desugar.go
// ==============================================================================================
// PACKAGE: parser
// PURPOSE: Lowers "for" and "with" statements into the simpler statement vocabulary (while/
//          try/finally) the compiler actually has opcodes for, the same way the language's
//          reference implementation treats "for" as sugar over the iterator protocol and "with"
//          as sugar over try/finally with __enter__/__exit__ dunder calls.
// ==============================================================================================

package parser

import (
	"fmt"

	"wings/ast"
	"wings/token"
)

var desugarCounter int

func freshName(prefix string) string {
	desugarCounter++
	return fmt.Sprintf("__%s_%d", prefix, desugarCounter)
}

// desugarFor rewrites:
//   for target in iter: body
//   else: elseBlock
// into:
//   __it = iter(<iter>)
//   while True:
//       try:
//           target = next(__it)
//       except StopIteration:
//           break
//       body
//   (elseBlock appended as the while's own Else, which only runs on normal
//   loop exhaustion because "break" skips it — matching Python's for/else.)
func desugarFor(tok token.Token, target, iterExpr ast.Expression, body *ast.BlockStatement, elseBlock *ast.BlockStatement) ast.Statement {
	itName := freshName("iter")

	initIter := &ast.AssignStatement{
		Token: tok,
		Target: &ast.Identifier{Token: tok, Value: itName},
		Op:     "=",
		Value: &ast.CallExpression{
			Token:    tok,
			Function: &ast.Identifier{Token: tok, Value: "iter"},
			Arguments: []ast.Expression{iterExpr},
		},
	}

	nextCall := &ast.CallExpression{
		Token:    tok,
		Function: &ast.Identifier{Token: tok, Value: "next"},
		Arguments: []ast.Expression{&ast.Identifier{Token: tok, Value: itName}},
	}

	assignTarget := &ast.AssignStatement{Token: tok, Target: target, Op: "=", Value: nextCall}

	tryNext := &ast.TryStatement{
		Token: tok,
		Body:  &ast.BlockStatement{Token: tok, Statements: []ast.Statement{assignTarget}},
		Excepts: []ast.ExceptClause{
			{
				Types: []ast.Expression{&ast.Identifier{Token: tok, Value: "StopIteration"}},
				Body:  &ast.BlockStatement{Token: tok, Statements: []ast.Statement{&ast.BreakStatement{Token: tok}}},
			},
		},
	}

	loopBody := &ast.BlockStatement{Token: tok}
	loopBody.Statements = append(loopBody.Statements, tryNext)
	loopBody.Statements = append(loopBody.Statements, body.Statements...)

	whileStmt := &ast.WhileStatement{
		Token:     tok,
		Condition: &ast.BooleanLiteral{Token: tok, Value: true},
		Body:      loopBody,
		Else:      elseBlock,
	}

	return &ast.BlockStatement{Token: tok, Statements: []ast.Statement{initIter, whileStmt}}
}

// desugarWith rewrites:
//   with ctx as name: body
// into:
//   name = ctx.__enter__()   (name omitted if "as" wasn't given; ctx is still evaluated once)
//   try:
//       body
//   finally:
//       ctx.__exit__()
func desugarWith(tok token.Token, ctx ast.Expression, asName string, body *ast.BlockStatement) ast.Statement {
	ctxName := freshName("with")
	bindCtx := &ast.AssignStatement{
		Token:  tok,
		Target: &ast.Identifier{Token: tok, Value: ctxName},
		Op:     "=",
		Value:  ctx,
	}
	enterCall := &ast.CallExpression{
		Token:    tok,
		Function: &ast.AttributeExpression{Token: tok, Left: &ast.Identifier{Token: tok, Value: ctxName}, Name: "__enter__"},
	}

	stmts := []ast.Statement{bindCtx}
	if asName != "" {
		stmts = append(stmts, &ast.AssignStatement{
			Token:  tok,
			Target: &ast.Identifier{Token: tok, Value: asName},
			Op:     "=",
			Value:  enterCall,
		})
	} else {
		stmts = append(stmts, &ast.ExpressionStatement{Token: tok, Expression: enterCall})
	}

	exitCall := &ast.CallExpression{
		Token:    tok,
		Function: &ast.AttributeExpression{Token: tok, Left: &ast.Identifier{Token: tok, Value: ctxName}, Name: "__exit__"},
	}

	tryStmt := &ast.TryStatement{
		Token:   tok,
		Body:    body,
		Finally: &ast.BlockStatement{Token: tok, Statements: []ast.Statement{&ast.ExpressionStatement{Token: tok, Expression: exitCall}}},
	}
	stmts = append(stmts, tryStmt)

	return &ast.BlockStatement{Token: tok, Statements: stmts}
}
