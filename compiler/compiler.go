// ==============================================================================================
// FILE: compiler/compiler.go
// ==============================================================================================
// PACKAGE: compiler
// PURPOSE: Walks the AST (after parser.resolveCaptures has classified every Identifier) and
//          emits bytecode. Local/global/cell variables are all looked up by name at run time
//          (the name is interned into the constant pool and referenced by index) rather than by
//          a statically computed slot, trading a map lookup per access for a much simpler and
//          safer-to-write compiler; see DESIGN.md.
// ==============================================================================================

package compiler

import (
	"wings/ast"
	"wings/code"
	"wings/object"
	"wings/token"
	"wings/wingserr"
)

type loopContext struct {
	breakJumps    []int
	continueTarget int
	continuePatch []int // continue jumps needing the final continue target backpatched
}

// scope holds the instruction buffer and bookkeeping for one function body
// being compiled; Compiler keeps a stack of these so nested def/lambda
// bodies compile independently before being assembled into a CompiledFunction.
type scope struct {
	instructions code.Instructions
	lines        *code.LineTable
	lastOp       code.Opcode
	lastPos      int
	prevOp       code.Opcode
	prevPos      int
	loops        []*loopContext
}

type Compiler struct {
	constants    []object.Object
	constIndex   map[string]int // dedup for name/string constants by Inspect()+Type
	scopes       []*scope
	errs         wingserr.Errors
}

func New() *Compiler {
	c := &Compiler{constIndex: map[string]int{}}
	c.pushScope()
	return c
}

func (c *Compiler) Errors() *wingserr.Errors { return &c.errs }

func (c *Compiler) pushScope() {
	c.scopes = append(c.scopes, &scope{lines: &code.LineTable{}})
}

func (c *Compiler) popScope() *scope {
	s := c.scopes[len(c.scopes)-1]
	c.scopes = c.scopes[:len(c.scopes)-1]
	return s
}

func (c *Compiler) cur() *scope { return c.scopes[len(c.scopes)-1] }

// Compile compiles a whole program into its top-level CompiledFunction.
func (c *Compiler) Compile(program *ast.Program) (*object.CompiledFunction, error) {
	for _, stmt := range program.Statements {
		c.compileStatement(stmt)
	}
	c.emit(program.Pos(), code.OpReturnNone)
	if c.errs.HasErrors() {
		return nil, &c.errs
	}
	s := c.cur()
	return &object.CompiledFunction{
		Instructions: s.instructions,
		Lines:        s.lines,
		Constants:    c.constants,
		Name:         "<module>",
		StarArgIndex: -1,
		DoubleStarArgIndex: -1,
	}, nil
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (c *Compiler) addConstant(obj object.Object) int {
	c.constants = append(c.constants, obj)
	return len(c.constants) - 1
}

func (c *Compiler) nameConstant(name string) int {
	key := "name:" + name
	if idx, ok := c.constIndex[key]; ok {
		return idx
	}
	idx := c.addConstant(&object.String{Value: name})
	c.constIndex[key] = idx
	return idx
}

func (c *Compiler) emit(pos token.Position, op code.Opcode, operands ...int) int {
	ins := code.Make(op, operands...)
	s := c.cur()
	newPos := len(s.instructions)
	s.lines.Add(newPos, pos)
	s.instructions = append(s.instructions, ins...)
	s.prevOp, s.prevPos = s.lastOp, s.lastPos
	s.lastOp, s.lastPos = op, newPos
	return newPos
}

func (c *Compiler) currentPos() int { return len(c.cur().instructions) }

func (c *Compiler) patchJump(pos int, target int) {
	s := c.cur()
	op := code.Opcode(s.instructions[pos])
	newIns := code.Make(op, target)
	copy(s.instructions[pos:], newIns)
}

func (c *Compiler) emitLoad(pos token.Position, id *ast.Identifier) {
	idx := c.nameConstant(id.Value)
	switch id.Scope {
	case ast.ScopeLocal:
		c.emit(pos, code.OpLoadLocal, idx)
	case ast.ScopeCell:
		c.emit(pos, code.OpLoadCell, idx)
	default:
		c.emit(pos, code.OpLoadGlobal, idx)
	}
}

func (c *Compiler) emitStore(pos token.Position, id *ast.Identifier) {
	idx := c.nameConstant(id.Value)
	switch id.Scope {
	case ast.ScopeLocal:
		c.emit(pos, code.OpDefineLocal, idx)
	case ast.ScopeCell:
		c.emit(pos, code.OpStoreCell, idx)
	default:
		c.emit(pos, code.OpStoreGlobal, idx)
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) compileStatements(stmts []ast.Statement) {
	for _, s := range stmts {
		c.compileStatement(s)
	}
}

func (c *Compiler) compileStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.ExpressionStatement:
		c.compileExpression(s.Expression)
		c.emit(s.Pos(), code.OpPop)
	case *ast.AssignStatement:
		c.compileAssign(s)
	case *ast.BlockStatement:
		// Only reached for desugared for/with splices; compile inline,
		// no new scope.
		c.compileStatements(s.Statements)
	case *ast.IfStatement:
		c.compileIf(s)
	case *ast.WhileStatement:
		c.compileWhile(s)
	case *ast.BreakStatement:
		c.compileBreak(s)
	case *ast.ContinueStatement:
		c.compileContinue(s)
	case *ast.PassStatement:
		// no-op
	case *ast.FunctionDefStatement:
		c.compileFunctionDef(s)
	case *ast.ClassDefStatement:
		c.compileClassDef(s)
	case *ast.ReturnStatement:
		if s.ReturnValue != nil {
			c.compileExpression(s.ReturnValue)
			c.emit(s.Pos(), code.OpReturnValue)
		} else {
			c.emit(s.Pos(), code.OpReturnNone)
		}
	case *ast.TryStatement:
		c.compileTry(s)
	case *ast.RaiseStatement:
		if s.Value != nil {
			c.compileExpression(s.Value)
		} else {
			c.emit(s.Pos(), code.OpNone)
		}
		c.emit(s.Pos(), code.OpRaise)
	case *ast.ImportStatement:
		name := c.nameConstant(s.Name)
		c.emit(s.Pos(), code.OpImport, name)
		bound := s.Name
		if s.Alias != "" {
			bound = s.Alias
		}
		c.emitStore(s.Pos(), &ast.Identifier{Value: bound, Scope: ast.ScopeGlobal})
	case *ast.ImportFromStatement:
		mod := c.nameConstant(s.Module)
		for _, n := range s.Names {
			c.emit(s.Pos(), code.OpImportFrom, mod, c.nameConstant(n))
			bound := n
			if alias, ok := s.Aliases[n]; ok {
				bound = alias
			}
			c.emitStore(s.Pos(), &ast.Identifier{Value: bound, Scope: ast.ScopeGlobal})
		}
	case *ast.GlobalStatement, *ast.NonlocalStatement:
		// purely a compile-time scoping directive, already consumed by
		// parser.resolveCaptures
	default:
		c.errs.Addf(wingserr.KindCompile, stmt.Pos(), "unsupported statement %T", stmt)
	}
}

func (c *Compiler) compileAssign(s *ast.AssignStatement) {
	if s.Op != "=" {
		// augmented assignment: target = target <op> value
		binOp := s.Op[:len(s.Op)-1]
		c.compileExpression(s.Target)
		c.compileExpression(s.Value)
		c.emitBinOp(s.Pos(), binOp)
		c.storeTo(s.Target, s.Pos())
		return
	}
	c.compileExpression(s.Value)
	c.storeTo(s.Target, s.Pos())
}

func (c *Compiler) storeTo(target ast.Expression, pos token.Position) {
	switch t := target.(type) {
	case *ast.Identifier:
		c.emitStore(pos, t)
	case *ast.IndexExpression:
		c.compileExpression(t.Left)
		c.compileExpression(t.Index)
		// stack: value, left, index -> need value on top after left/index
		// rearrange by compiling left/index first, value pushed earlier;
		// vm's OpSetIndex pops (index, left, value) in that order, see vm.go
		c.emit(pos, code.OpSetIndex)
	case *ast.AttributeExpression:
		c.compileExpression(t.Left)
		c.emit(pos, code.OpSetAttr, c.nameConstant(t.Name))
	default:
		c.errs.Addf(wingserr.KindCompile, pos, "invalid assignment target %T", target)
	}
}

func (c *Compiler) compileIf(s *ast.IfStatement) {
	var endJumps []int
	for i, clause := range s.Clauses {
		c.compileExpression(clause.Condition)
		jumpFalse := c.emit(clause.Condition.Pos(), code.OpJumpIfFalse, 0)
		c.compileStatements(clause.Body.Statements)
		if i < len(s.Clauses)-1 || s.Else != nil {
			endJumps = append(endJumps, c.emit(s.Pos(), code.OpJump, 0))
		}
		c.patchJump(jumpFalse, c.currentPos())
	}
	if s.Else != nil {
		c.compileStatements(s.Else.Statements)
	}
	for _, j := range endJumps {
		c.patchJump(j, c.currentPos())
	}
}

func (c *Compiler) compileWhile(s *ast.WhileStatement) {
	lc := &loopContext{}
	c.cur().loops = append(c.cur().loops, lc)

	condPos := c.currentPos()
	lc.continueTarget = condPos
	c.compileExpression(s.Condition)
	exitJump := c.emit(s.Pos(), code.OpJumpIfFalse, 0)
	c.compileStatements(s.Body.Statements)
	c.emit(s.Pos(), code.OpJump, condPos)
	c.patchJump(exitJump, c.currentPos())

	if s.Else != nil {
		c.compileStatements(s.Else.Statements)
	}

	loops := c.cur().loops
	c.cur().loops = loops[:len(loops)-1]
	for _, j := range lc.breakJumps {
		c.patchJump(j, c.currentPos())
	}
}

func (c *Compiler) compileBreak(s *ast.BreakStatement) {
	loops := c.cur().loops
	if len(loops) == 0 {
		c.errs.Addf(wingserr.KindCompile, s.Pos(), "'break' outside loop")
		return
	}
	lc := loops[len(loops)-1]
	j := c.emit(s.Pos(), code.OpJump, 0)
	lc.breakJumps = append(lc.breakJumps, j)
}

func (c *Compiler) compileContinue(s *ast.ContinueStatement) {
	loops := c.cur().loops
	if len(loops) == 0 {
		c.errs.Addf(wingserr.KindCompile, s.Pos(), "'continue' outside loop")
		return
	}
	lc := loops[len(loops)-1]
	c.emit(s.Pos(), code.OpJump, lc.continueTarget)
}

// compileFunctionDef compiles the body in its own scope, producing a
// CompiledFunction constant, then emits OpMakeFunction (which the vm uses to
// bind the current free-variable cells) followed by a store into the
// enclosing scope's binding for the function's name.
func (c *Compiler) compileFunctionDef(s *ast.FunctionDefStatement) {
	fn := c.compileFunctionLiteral(s.Name, s.Parameters, s.Body, s.UsesCells, s.FreeNames, s.Pos())
	idx := c.addConstant(fn)
	c.emit(s.Pos(), code.OpMakeFunction, idx)
	c.emitStore(s.Pos(), &ast.Identifier{Value: s.Name, Scope: s.NameScope})
}

func (c *Compiler) compileClassDef(s *ast.ClassDefStatement) {
	for _, b := range s.Bases {
		c.compileExpression(b)
	}
	bodyFn := c.compileFunctionLiteral(s.Name+".<body>", &ast.Parameters{}, s.Body, s.UsesCells, s.FreeNames, s.Pos())
	idx := c.addConstant(bodyFn)
	c.emit(s.Pos(), code.OpMakeClass, idx, len(s.Bases))
	c.emitStore(s.Pos(), &ast.Identifier{Value: s.Name, Scope: s.NameScope})
}

// compileTry emits a try/except/finally frame. OpSetupTry's operand is the
// offset of the first except-matching sequence; the vm pushes a handler
// frame there and pops it (OpPopTry) once the body completes normally.
func (c *Compiler) compileTry(s *ast.TryStatement) {
	setup := c.emit(s.Pos(), code.OpSetupTry, 0)
	c.compileStatements(s.Body.Statements)
	c.emit(s.Pos(), code.OpPopTry)
	if s.Else != nil {
		c.compileStatements(s.Else.Statements)
	}
	doneJump := c.emit(s.Pos(), code.OpJump, 0)
	c.patchJump(setup, c.currentPos())

	// The vm pushes the active exception as a value onto the stack before
	// entering the handler sequence (OpPushExcInfo); each except clause
	// below is responsible for popping it, either into a bound name or by
	// discarding it.
	c.emit(s.Pos(), code.OpPushExcInfo)
	var nextJumps []int
	for _, ex := range s.Excepts {
		var bodyJump int
		hasTypes := len(ex.Types) > 0
		if hasTypes {
			var matchJumps []int
			for _, t := range ex.Types {
				c.emit(s.Pos(), code.OpDup) // duplicate the active exception, leave the original below
				c.compileExpression(t)
				c.emit(s.Pos(), code.OpExceptionMatches) // pops (exc copy, type), pushes bool
				matchJumps = append(matchJumps, c.emit(s.Pos(), code.OpJumpIfTrue, 0))
			}
			bodyJump = c.emit(s.Pos(), code.OpJump, 0)
			for _, j := range matchJumps {
				c.patchJump(j, c.currentPos())
			}
		}
		if ex.Name != "" {
			c.emitStore(s.Pos(), &ast.Identifier{Value: ex.Name, Scope: ex.NameScope})
		} else {
			c.emit(s.Pos(), code.OpPop)
		}
		c.compileStatements(ex.Body.Statements)
		c.emit(s.Pos(), code.OpPopExcInfo)
		nextJumps = append(nextJumps, c.emit(s.Pos(), code.OpJump, 0))
		if len(ex.Types) > 0 {
			c.patchJump(bodyJump, c.currentPos())
		}
	}
	c.emit(s.Pos(), code.OpRaise) // no handler matched: re-raise
	for _, j := range nextJumps {
		c.patchJump(j, c.currentPos())
	}
	c.patchJump(doneJump, c.currentPos())
	if s.Finally != nil {
		c.compileStatements(s.Finally.Statements)
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (c *Compiler) compileExpression(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.IntegerLiteral:
		c.emit(e.Pos(), code.OpConstant, c.addConstant(&object.Int{Value: e.Value}))
	case *ast.FloatLiteral:
		c.emit(e.Pos(), code.OpConstant, c.addConstant(&object.Float{Value: e.Value}))
	case *ast.StringLiteral:
		c.emit(e.Pos(), code.OpConstant, c.addConstant(&object.String{Value: e.Value}))
	case *ast.BooleanLiteral:
		if e.Value {
			c.emit(e.Pos(), code.OpTrue)
		} else {
			c.emit(e.Pos(), code.OpFalse)
		}
	case *ast.NoneLiteral:
		c.emit(e.Pos(), code.OpNone)
	case *ast.Identifier:
		c.emitLoad(e.Pos(), e)
	case *ast.TupleLiteral:
		for _, el := range e.Elements {
			c.compileExpression(el)
		}
		c.emit(e.Pos(), code.OpBuildTuple, len(e.Elements))
	case *ast.ListLiteral:
		for _, el := range e.Elements {
			c.compileExpression(el)
		}
		c.emit(e.Pos(), code.OpBuildList, len(e.Elements))
	case *ast.SetLiteral:
		for _, el := range e.Elements {
			c.compileExpression(el)
		}
		c.emit(e.Pos(), code.OpBuildSet, len(e.Elements))
	case *ast.DictLiteral:
		for _, p := range e.Pairs {
			c.compileExpression(p.Key)
			c.compileExpression(p.Value)
		}
		c.emit(e.Pos(), code.OpBuildDict, len(e.Pairs))
	case *ast.PrefixExpression:
		c.compileExpression(e.Right)
		switch e.Operator {
		case "-":
			c.emit(e.Pos(), code.OpNeg)
		case "not":
			c.emit(e.Pos(), code.OpNot)
		case "~":
			c.emit(e.Pos(), code.OpBitNot)
		}
	case *ast.InfixExpression:
		// "<" and "<=" have no dedicated opcode: a < b compiles as b > a so
		// the vm only needs to implement greater-than/greater-or-equal.
		if e.Operator == "<" || e.Operator == "<=" {
			c.compileExpression(e.Right)
			c.compileExpression(e.Left)
		} else {
			c.compileExpression(e.Left)
			c.compileExpression(e.Right)
		}
		c.emitBinOp(e.Pos(), e.Operator)
	case *ast.BoolOpExpression:
		c.compileExpression(e.Left)
		// The conditional jumps pop their operand, so the left value is
		// duplicated first: it stays on the stack as the result when the
		// jump is taken and is popped before the right side otherwise.
		if e.Operator == "and" {
			c.emit(e.Pos(), code.OpDup)
			j := c.emit(e.Pos(), code.OpJumpIfFalse, 0)
			c.emit(e.Pos(), code.OpPop)
			c.compileExpression(e.Right)
			c.patchJump(j, c.currentPos())
		} else {
			c.emit(e.Pos(), code.OpDup)
			j := c.emit(e.Pos(), code.OpJumpIfTrue, 0)
			c.emit(e.Pos(), code.OpPop)
			c.compileExpression(e.Right)
			c.patchJump(j, c.currentPos())
		}
	case *ast.TernaryExpression:
		c.compileExpression(e.Condition)
		elseJump := c.emit(e.Pos(), code.OpJumpIfFalse, 0)
		c.compileExpression(e.Consequence)
		doneJump := c.emit(e.Pos(), code.OpJump, 0)
		c.patchJump(elseJump, c.currentPos())
		c.compileExpression(e.Alternative)
		c.patchJump(doneJump, c.currentPos())
	case *ast.CallExpression:
		c.compileCall(e)
	case *ast.IndexExpression:
		c.compileExpression(e.Left)
		c.compileExpression(e.Index)
		c.emit(e.Pos(), code.OpGetIndex)
	case *ast.SliceExpression:
		c.compileExpression(e.Left)
		c.compileSliceComponent(e.Start, e.Pos())
		c.compileSliceComponent(e.Stop, e.Pos())
		c.compileSliceComponent(e.Step, e.Pos())
		c.emit(e.Pos(), code.OpGetSlice)
	case *ast.AttributeExpression:
		c.compileExpression(e.Left)
		c.emit(e.Pos(), code.OpGetAttr, c.nameConstant(e.Name))
	case *ast.FunctionLiteral:
		fn := c.compileFunctionLiteral(e.Name, e.Parameters, e.Body, e.UsesCells, e.FreeNames, e.Pos())
		c.emit(e.Pos(), code.OpMakeFunction, c.addConstant(fn))
	case *ast.ListCompExpression:
		c.compileComprehension(e)
	case nil:
		c.errs.Addf(wingserr.KindCompile, token.Position{}, "missing expression")
	default:
		c.errs.Addf(wingserr.KindCompile, expr.Pos(), "unsupported expression %T", expr)
	}
}

func (c *Compiler) compileSliceComponent(e ast.Expression, pos token.Position) {
	if e == nil {
		c.emit(pos, code.OpNone)
		return
	}
	c.compileExpression(e)
}

func (c *Compiler) emitBinOp(pos token.Position, op string) {
	switch op {
	case "+":
		c.emit(pos, code.OpAdd)
	case "-":
		c.emit(pos, code.OpSub)
	case "*":
		c.emit(pos, code.OpMul)
	case "/":
		c.emit(pos, code.OpDiv)
	case "%":
		c.emit(pos, code.OpMod)
	case "**":
		c.emit(pos, code.OpPow)
	case "&":
		c.emit(pos, code.OpBitAnd)
	case "|":
		c.emit(pos, code.OpBitOr)
	case "^":
		c.emit(pos, code.OpBitXor)
	case "<<":
		c.emit(pos, code.OpShl)
	case ">>":
		c.emit(pos, code.OpShr)
	case "==":
		c.emit(pos, code.OpEqual)
	case "!=":
		c.emit(pos, code.OpNotEqual)
	case ">", "<":
		c.emit(pos, code.OpGreaterThan)
	case ">=", "<=":
		c.emit(pos, code.OpGreaterEqual)
	case "in":
		c.emit(pos, code.OpContains)
	case "not in":
		c.emit(pos, code.OpContains)
		c.emit(pos, code.OpNot)
	case "is":
		c.emit(pos, code.OpIs)
	case "is not":
		c.emit(pos, code.OpIs)
		c.emit(pos, code.OpNot)
	default:
		c.errs.Addf(wingserr.KindCompile, pos, "unknown operator %q", op)
	}
}

func (c *Compiler) compileCall(e *ast.CallExpression) {
	c.compileExpression(e.Function)
	for _, a := range e.Arguments {
		c.compileExpression(a)
	}
	if len(e.KwargNames) == 0 {
		c.emit(e.Pos(), code.OpCall, len(e.Arguments))
		return
	}
	for _, v := range e.KwargValues {
		c.compileExpression(v)
	}
	namesIdx := c.addConstant(kwargNamesTuple(e.KwargNames))
	c.emit(e.Pos(), code.OpCallKw, len(e.Arguments), namesIdx)
}

func kwargNamesTuple(names []string) *object.Tuple {
	elems := make([]object.Object, len(names))
	for i, n := range names {
		elems[i] = &object.String{Value: n}
	}
	return &object.Tuple{Elements: elems}
}

// compileFunctionLiteral compiles a def/lambda/class body in a fresh scope
// and returns the resulting CompiledFunction constant. Free variables are
// recorded by name so the vm's OpMakeFunction can snapshot the matching
// cells from the currently executing frame.
func (c *Compiler) compileFunctionLiteral(name string, params *ast.Parameters, body *ast.BlockStatement, usesCells bool, freeNames []string, pos token.Position) *object.CompiledFunction {
	c.pushScope()
	c.compileStatements(body.Statements)
	c.emit(pos, code.OpReturnNone)
	s := c.popScope()

	starIdx, dstarIdx := -1, -1
	defaults := make([]object.Object, 0, len(params.Names))
	for i, n := range params.Names {
		if d, ok := params.Defaults[n]; ok {
			defaults = append(defaults, c.evalConstDefault(d))
		}
		_ = i
	}
	if params.StarArg != "" {
		starIdx = len(params.Names)
	}
	if params.DoubleStarArg != "" {
		dstarIdx = len(params.Names)
		if params.StarArg != "" {
			dstarIdx++
		}
	}

	return &object.CompiledFunction{
		Instructions:       s.instructions,
		Lines:              s.lines,
		Constants:          c.constants,
		NumParams:          len(params.Names),
		ParamNames:         append(append([]string{}, params.Names...), starArgAndKwargNames(params)...),
		Defaults:           defaults,
		StarArgIndex:       starIdx,
		DoubleStarArgIndex: dstarIdx,
		Name:               name,
		ParamsAreCells:     usesCells,
		FreeNames:          freeNames,
	}
}

func starArgAndKwargNames(params *ast.Parameters) []string {
	var extra []string
	if params.StarArg != "" {
		extra = append(extra, params.StarArg)
	}
	if params.DoubleStarArg != "" {
		extra = append(extra, params.DoubleStarArg)
	}
	return extra
}

// evalConstDefault only supports literal default expressions (the common
// case); any other default expression is not evaluated, and the parameter's
// default becomes None.
func (c *Compiler) evalConstDefault(e ast.Expression) object.Object {
	switch v := e.(type) {
	case *ast.IntegerLiteral:
		return &object.Int{Value: v.Value}
	case *ast.FloatLiteral:
		return &object.Float{Value: v.Value}
	case *ast.StringLiteral:
		return &object.String{Value: v.Value}
	case *ast.BooleanLiteral:
		return object.NativeBool(v.Value)
	case *ast.NoneLiteral:
		return object.None
	default:
		return object.None
	}
}

// compileComprehension lowers [elem for t in it if cond ...] into bytecode
// that builds the result container inline, without a helper function — a
// nested while-style loop per clause, driven by the iterator protocol
// (iter/next/StopIteration) the same way a desugared "for" statement is.
func (c *Compiler) compileComprehension(e *ast.ListCompExpression) {
	switch e.Kind {
	case "list":
		c.emit(e.Pos(), code.OpBuildList, 0)
	case "set":
		c.emit(e.Pos(), code.OpBuildSet, 0)
	case "dict":
		c.emit(e.Pos(), code.OpBuildDict, 0)
	}
	c.compileCompClauses(e, 0)
}

func (c *Compiler) compileCompClauses(e *ast.ListCompExpression, idx int) {
	if idx == len(e.Clauses) {
		c.emit(e.Pos(), code.OpDup) // keep the container on the stack under the new element
		switch e.Kind {
		case "list", "set":
			c.compileExpression(e.Element)
		case "dict":
			c.compileExpression(e.Element)
			c.compileExpression(e.ValueElement)
		}
		c.emit(e.Pos(), code.OpCompAppend, compAppendTag(e.Kind))
		return
	}
	clause := e.Clauses[idx]
	c.compileExpression(clause.Iter)
	c.emit(e.Pos(), code.OpGetIter)
	loopStart := c.currentPos()
	exitJump := c.emit(e.Pos(), code.OpForIter, 0)
	c.storeTo(clause.Target, e.Pos())
	for _, cond := range clause.Ifs {
		c.compileExpression(cond)
		skip := c.emit(e.Pos(), code.OpJumpIfFalse, 0)
		c.compileCompClauses(e, idx+1)
		c.patchJump(skip, c.currentPos())
	}
	if len(clause.Ifs) == 0 {
		c.compileCompClauses(e, idx+1)
	}
	c.emit(e.Pos(), code.OpJump, loopStart)
	c.patchJump(exitJump, c.currentPos())
	c.emit(e.Pos(), code.OpPop) // drop the exhausted iterator
}

func compAppendTag(kind string) int {
	switch kind {
	case "list":
		return 0
	case "set":
		return 1
	case "dict":
		return 2
	}
	return 0
}

