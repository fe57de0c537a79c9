// ==============================================================================================
// FILE: parser/resolve.go
// ==============================================================================================
// PACKAGE: parser
// PURPOSE: Post-parse capture-resolution pass. Classifies every Identifier as local, global, or
//          a closure cell so the compiler never has to re-derive lexical scoping from scratch.
//
//          Simplification: rather than computing the precise per-name free-variable set for each
//          closure, any function whose body contains a nested "def"/lambda boxes ALL of its own
//          locals as cells. This trades a little performance (every local in such a function is
//          an extra pointer indirection) for a resolution pass simple enough to get right without
//          a compiler to test it against; see DESIGN.md.
// ==============================================================================================

package parser

import "wings/ast"

type scopeFrame struct {
	locals        map[string]bool
	globalDecls   map[string]bool
	nonlocalDecls map[string]bool
	hasNestedFunc bool
	freeNames     map[string]bool // names this frame reads/writes that live in an ancestor frame
	parent        *scopeFrame
}

func newFrame(parent *scopeFrame) *scopeFrame {
	return &scopeFrame{
		locals:        map[string]bool{},
		globalDecls:   map[string]bool{},
		nonlocalDecls: map[string]bool{},
		freeNames:     map[string]bool{},
		parent:        parent,
	}
}

// resolveCaptures runs the two-pass (declare, then resolve) algorithm over
// the whole program, treating the top level as the global frame.
func resolveCaptures(program *ast.Program) {
	global := newFrame(nil)
	collectLocals(program.Statements, global)
	resolveStatements(program.Statements, global)
}

// ---------------------------------------------------------------------------
// Pass 1: collect every name this frame binds, without crossing into nested
// function/lambda bodies (those get their own frame in pass 2).
// ---------------------------------------------------------------------------

func collectLocals(stmts []ast.Statement, f *scopeFrame) {
	for _, s := range stmts {
		collectLocalsStmt(s, f)
	}
}

func collectLocalsStmt(stmt ast.Statement, f *scopeFrame) {
	switch s := stmt.(type) {
	case *ast.AssignStatement:
		if id, ok := s.Target.(*ast.Identifier); ok {
			f.locals[id.Value] = true
		}
		markNestedFuncExpr(s.Value, f)
	case *ast.BlockStatement:
		collectLocals(s.Statements, f)
	case *ast.IfStatement:
		for _, c := range s.Clauses {
			collectLocals(c.Body.Statements, f)
		}
		if s.Else != nil {
			collectLocals(s.Else.Statements, f)
		}
	case *ast.WhileStatement:
		collectLocals(s.Body.Statements, f)
		if s.Else != nil {
			collectLocals(s.Else.Statements, f)
		}
	case *ast.TryStatement:
		collectLocals(s.Body.Statements, f)
		for _, ex := range s.Excepts {
			if ex.Name != "" {
				f.locals[ex.Name] = true
			}
			collectLocals(ex.Body.Statements, f)
		}
		if s.Else != nil {
			collectLocals(s.Else.Statements, f)
		}
		if s.Finally != nil {
			collectLocals(s.Finally.Statements, f)
		}
	case *ast.FunctionDefStatement:
		f.locals[s.Name] = true
		f.hasNestedFunc = true
	case *ast.ClassDefStatement:
		f.locals[s.Name] = true
	case *ast.ImportStatement:
		name := s.Name
		if s.Alias != "" {
			name = s.Alias
		}
		f.locals[name] = true
	case *ast.ImportFromStatement:
		for _, n := range s.Names {
			bound := n
			if alias, ok := s.Aliases[n]; ok {
				bound = alias
			}
			f.locals[bound] = true
		}
	case *ast.GlobalStatement:
		for _, n := range s.Names {
			f.globalDecls[n] = true
		}
	case *ast.NonlocalStatement:
		for _, n := range s.Names {
			f.nonlocalDecls[n] = true
		}
	case *ast.ExpressionStatement:
		markNestedFuncExpr(s.Expression, f)
	case *ast.ReturnStatement:
		if s.ReturnValue != nil {
			markNestedFuncExpr(s.ReturnValue, f)
		}
	case *ast.RaiseStatement:
		if s.Value != nil {
			markNestedFuncExpr(s.Value, f)
		}
	}
}

// markNestedFuncExpr flags hasNestedFunc when a lambda appears anywhere
// inside an expression, however deeply nested in calls/literals/operators.
// Comprehensions are compiled inline, so they only bind their loop targets
// here and do not set the flag themselves.
func markNestedFuncExpr(expr ast.Expression, f *scopeFrame) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *ast.FunctionLiteral:
		f.hasNestedFunc = true
	case *ast.ListCompExpression:
		for _, c := range e.Clauses {
			bindCompTarget(c.Target, f)
		}
		markNestedFuncExpr(e.Element, f)
		if e.ValueElement != nil {
			markNestedFuncExpr(e.ValueElement, f)
		}
		for _, c := range e.Clauses {
			markNestedFuncExpr(c.Iter, f)
			for _, cond := range c.Ifs {
				markNestedFuncExpr(cond, f)
			}
		}
	case *ast.CallExpression:
		markNestedFuncExpr(e.Function, f)
		for _, a := range e.Arguments {
			markNestedFuncExpr(a, f)
		}
		for _, v := range e.KwargValues {
			markNestedFuncExpr(v, f)
		}
		markNestedFuncExpr(e.StarArg, f)
		markNestedFuncExpr(e.DoubleStarArg, f)
	case *ast.PrefixExpression:
		markNestedFuncExpr(e.Right, f)
	case *ast.InfixExpression:
		markNestedFuncExpr(e.Left, f)
		markNestedFuncExpr(e.Right, f)
	case *ast.BoolOpExpression:
		markNestedFuncExpr(e.Left, f)
		markNestedFuncExpr(e.Right, f)
	case *ast.TernaryExpression:
		markNestedFuncExpr(e.Condition, f)
		markNestedFuncExpr(e.Consequence, f)
		markNestedFuncExpr(e.Alternative, f)
	case *ast.IndexExpression:
		markNestedFuncExpr(e.Left, f)
		markNestedFuncExpr(e.Index, f)
	case *ast.SliceExpression:
		markNestedFuncExpr(e.Left, f)
		markNestedFuncExpr(e.Start, f)
		markNestedFuncExpr(e.Stop, f)
		markNestedFuncExpr(e.Step, f)
	case *ast.AttributeExpression:
		markNestedFuncExpr(e.Left, f)
	case *ast.TupleLiteral:
		for _, el := range e.Elements {
			markNestedFuncExpr(el, f)
		}
	case *ast.ListLiteral:
		for _, el := range e.Elements {
			markNestedFuncExpr(el, f)
		}
	case *ast.SetLiteral:
		for _, el := range e.Elements {
			markNestedFuncExpr(el, f)
		}
	case *ast.DictLiteral:
		for _, p := range e.Pairs {
			markNestedFuncExpr(p.Key, f)
			markNestedFuncExpr(p.Value, f)
		}
	}
}

// ---------------------------------------------------------------------------
// Pass 2: assign Scope to every Identifier.
// ---------------------------------------------------------------------------

func classify(name string, f *scopeFrame) ast.Scope {
	if f.globalDecls[name] {
		return ast.ScopeGlobal
	}
	if f.nonlocalDecls[name] {
		f.freeNames[name] = true
		return ast.ScopeCell
	}
	if f.locals[name] {
		if f.hasNestedFunc {
			return ast.ScopeCell
		}
		return ast.ScopeLocal
	}
	if f.parent == nil {
		return ast.ScopeGlobal
	}
	for anc := f.parent; anc != nil; anc = anc.parent {
		if anc.locals[name] {
			f.freeNames[name] = true
			return ast.ScopeCell
		}
	}
	return ast.ScopeGlobal
}

func resolveStatements(stmts []ast.Statement, f *scopeFrame) {
	for _, s := range stmts {
		resolveStatement(s, f)
	}
}

func resolveStatement(stmt ast.Statement, f *scopeFrame) {
	switch s := stmt.(type) {
	case *ast.ExpressionStatement:
		resolveExpr(s.Expression, f)
	case *ast.AssignStatement:
		resolveExpr(s.Target, f)
		resolveExpr(s.Value, f)
	case *ast.BlockStatement:
		resolveStatements(s.Statements, f)
	case *ast.IfStatement:
		for _, c := range s.Clauses {
			resolveExpr(c.Condition, f)
			resolveStatements(c.Body.Statements, f)
		}
		if s.Else != nil {
			resolveStatements(s.Else.Statements, f)
		}
	case *ast.WhileStatement:
		resolveExpr(s.Condition, f)
		resolveStatements(s.Body.Statements, f)
		if s.Else != nil {
			resolveStatements(s.Else.Statements, f)
		}
	case *ast.BreakStatement, *ast.ContinueStatement, *ast.PassStatement:
		// no identifiers
	case *ast.FunctionDefStatement:
		s.NameScope = classify(s.Name, f)
		s.UsesCells, s.FreeNames = resolveFunctionBody(s.Parameters, s.Body, f)
	case *ast.ClassDefStatement:
		s.NameScope = classify(s.Name, f)
		for _, b := range s.Bases {
			resolveExpr(b, f)
		}
		s.UsesCells, s.FreeNames = resolveFunctionBody(&ast.Parameters{}, s.Body, f)
	case *ast.ReturnStatement:
		if s.ReturnValue != nil {
			resolveExpr(s.ReturnValue, f)
		}
	case *ast.TryStatement:
		resolveStatements(s.Body.Statements, f)
		for i := range s.Excepts {
			ex := &s.Excepts[i]
			for _, t := range ex.Types {
				resolveExpr(t, f)
			}
			if ex.Name != "" {
				ex.NameScope = classify(ex.Name, f)
			}
			resolveStatements(ex.Body.Statements, f)
		}
		if s.Else != nil {
			resolveStatements(s.Else.Statements, f)
		}
		if s.Finally != nil {
			resolveStatements(s.Finally.Statements, f)
		}
	case *ast.RaiseStatement:
		if s.Value != nil {
			resolveExpr(s.Value, f)
		}
	case *ast.ImportStatement, *ast.ImportFromStatement, *ast.GlobalStatement, *ast.NonlocalStatement:
		// bindings only, no expressions to resolve
	}
}

// resolveFunctionBody resolves one function/lambda body in its own child
// frame and reports (a) whether that frame ended up needing to box its own
// locals/params as cells (true whenever the body itself contains a nested
// def/lambda) and (b) the names it reads/writes that live in an ancestor
// frame (its free variables) — the compiler needs both, since a
// CompiledFunction carries only names, never resolved per-identifier Scope
// values.
func resolveFunctionBody(params *ast.Parameters, body *ast.BlockStatement, f *scopeFrame) (usesCells bool, freeNames []string) {
	child := newFrame(f)
	for _, n := range params.Names {
		child.locals[n] = true
	}
	if params.StarArg != "" {
		child.locals[params.StarArg] = true
	}
	if params.DoubleStarArg != "" {
		child.locals[params.DoubleStarArg] = true
	}
	for _, d := range params.Defaults {
		resolveExpr(d, f) // defaults evaluate in the *defining* scope
	}
	collectLocals(body.Statements, child)
	resolveStatements(body.Statements, child)
	for n := range child.freeNames {
		freeNames = append(freeNames, n)
	}
	return child.hasNestedFunc, freeNames
}

func resolveExpr(expr ast.Expression, f *scopeFrame) {
	switch e := expr.(type) {
	case *ast.Identifier:
		e.Scope = classify(e.Value, f)
	case *ast.PrefixExpression:
		resolveExpr(e.Right, f)
	case *ast.InfixExpression:
		resolveExpr(e.Left, f)
		resolveExpr(e.Right, f)
	case *ast.BoolOpExpression:
		resolveExpr(e.Left, f)
		resolveExpr(e.Right, f)
	case *ast.TernaryExpression:
		resolveExpr(e.Condition, f)
		resolveExpr(e.Consequence, f)
		resolveExpr(e.Alternative, f)
	case *ast.CallExpression:
		resolveExpr(e.Function, f)
		for _, a := range e.Arguments {
			resolveExpr(a, f)
		}
		for _, v := range e.KwargValues {
			resolveExpr(v, f)
		}
		if e.StarArg != nil {
			resolveExpr(e.StarArg, f)
		}
		if e.DoubleStarArg != nil {
			resolveExpr(e.DoubleStarArg, f)
		}
	case *ast.IndexExpression:
		resolveExpr(e.Left, f)
		resolveExpr(e.Index, f)
	case *ast.SliceExpression:
		resolveExpr(e.Left, f)
		if e.Start != nil {
			resolveExpr(e.Start, f)
		}
		if e.Stop != nil {
			resolveExpr(e.Stop, f)
		}
		if e.Step != nil {
			resolveExpr(e.Step, f)
		}
	case *ast.AttributeExpression:
		resolveExpr(e.Left, f)
	case *ast.TupleLiteral:
		for _, el := range e.Elements {
			resolveExpr(el, f)
		}
	case *ast.ListLiteral:
		for _, el := range e.Elements {
			resolveExpr(el, f)
		}
	case *ast.SetLiteral:
		for _, el := range e.Elements {
			resolveExpr(el, f)
		}
	case *ast.DictLiteral:
		for _, p := range e.Pairs {
			resolveExpr(p.Key, f)
			resolveExpr(p.Value, f)
		}
	case *ast.FunctionLiteral:
		e.UsesCells, e.FreeNames = resolveFunctionBody(e.Parameters, e.Body, f)
	case *ast.ListCompExpression:
		// Comprehension targets bind into the enclosing function scope,
		// the same as a "for" statement's target — a deliberate
		// simplification over Python 3's separate comprehension scope;
		// see DESIGN.md.
		for _, c := range e.Clauses {
			bindCompTarget(c.Target, f)
		}
		for _, c := range e.Clauses {
			resolveExpr(c.Iter, f)
			for _, cond := range c.Ifs {
				resolveExpr(cond, f)
			}
		}
		resolveExpr(e.Element, f)
		if e.ValueElement != nil {
			resolveExpr(e.ValueElement, f)
		}
	}
}

func bindCompTarget(target ast.Expression, f *scopeFrame) {
	switch t := target.(type) {
	case *ast.Identifier:
		f.locals[t.Value] = true
	case *ast.TupleLiteral:
		for _, el := range t.Elements {
			bindCompTarget(el, f)
		}
	}
}
