package parser

import (
	"testing"

	"wings/ast"
	"wings/lexer"
)

func parseProgram(t *testing.T, src string) *ast.Program {
	t.Helper()
	p := New(lexer.New(src))
	program := p.ParseProgram()
	if p.Errors().HasErrors() {
		t.Fatalf("parse errors for %q: %s", src, p.Errors().Error())
	}
	return program
}

func TestParseAssignStatement(t *testing.T) {
	program := parseProgram(t, "x = 1 + 2\n")
	if len(program.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(program.Statements))
	}
	stmt, ok := program.Statements[0].(*ast.AssignStatement)
	if !ok {
		t.Fatalf("expected *ast.AssignStatement, got %T", program.Statements[0])
	}
	ident, ok := stmt.Target.(*ast.Identifier)
	if !ok || ident.Value != "x" {
		t.Fatalf("expected target identifier 'x', got %#v", stmt.Target)
	}
	infix, ok := stmt.Value.(*ast.InfixExpression)
	if !ok || infix.Operator != "+" {
		t.Fatalf("expected infix '+', got %#v", stmt.Value)
	}
}

func TestParseIfElifElse(t *testing.T) {
	src := "if a:\n    x = 1\nelif b:\n    x = 2\nelse:\n    x = 3\n"
	program := parseProgram(t, src)
	stmt, ok := program.Statements[0].(*ast.IfStatement)
	if !ok {
		t.Fatalf("expected *ast.IfStatement, got %T", program.Statements[0])
	}
	if len(stmt.Clauses) != 2 {
		t.Fatalf("expected 2 if/elif clauses, got %d", len(stmt.Clauses))
	}
	if stmt.Else == nil {
		t.Fatal("expected an else block")
	}
}

func TestParseWhileStatement(t *testing.T) {
	program := parseProgram(t, "while x < 10:\n    x = x + 1\n")
	stmt, ok := program.Statements[0].(*ast.WhileStatement)
	if !ok {
		t.Fatalf("expected *ast.WhileStatement, got %T", program.Statements[0])
	}
	if len(stmt.Body.Statements) != 1 {
		t.Fatalf("expected 1 statement in while body, got %d", len(stmt.Body.Statements))
	}
}

// "for" is desugared by the parser into an iterator-protocol while loop
// (see parser/desugar.go), so it surfaces here as a BlockStatement wrapping
// an "__it = iter(...)" assignment followed by the generated while loop.
func TestParseForStatementDesugarsToWhileOverIterator(t *testing.T) {
	program := parseProgram(t, "for i in range(3):\n    pass\n")
	block, ok := program.Statements[0].(*ast.BlockStatement)
	if !ok {
		t.Fatalf("expected desugared *ast.BlockStatement, got %T", program.Statements[0])
	}
	if len(block.Statements) != 2 {
		t.Fatalf("expected 2 statements (iter init + while), got %d", len(block.Statements))
	}
	if _, ok := block.Statements[0].(*ast.AssignStatement); !ok {
		t.Fatalf("expected iterator-init assign first, got %T", block.Statements[0])
	}
	whileStmt, ok := block.Statements[1].(*ast.WhileStatement)
	if !ok {
		t.Fatalf("expected a while loop second, got %T", block.Statements[1])
	}
	if len(whileStmt.Body.Statements) == 0 {
		t.Fatal("expected the while body to carry the loop's try/next and original body")
	}
}

func TestParseFunctionDefWithDefaultsAndVarargs(t *testing.T) {
	program := parseProgram(t, "def greet(name, greeting=\"hi\", *args, **kwargs):\n    return greeting\n")
	stmt, ok := program.Statements[0].(*ast.FunctionDefStatement)
	if !ok {
		t.Fatalf("expected *ast.FunctionDefStatement, got %T", program.Statements[0])
	}
	if stmt.Name != "greet" {
		t.Fatalf("expected function name 'greet', got %q", stmt.Name)
	}
	if len(stmt.Parameters.Names) != 2 {
		t.Fatalf("expected 2 positional params, got %d", len(stmt.Parameters.Names))
	}
	if _, ok := stmt.Parameters.Defaults["greeting"]; !ok {
		t.Fatal("expected a default for 'greeting'")
	}
	if stmt.Parameters.StarArg == "" {
		t.Fatal("expected a *args name")
	}
	if stmt.Parameters.DoubleStarArg == "" {
		t.Fatal("expected a **kwargs name")
	}
}

func TestParseClassDefWithBase(t *testing.T) {
	program := parseProgram(t, "class Dog(Animal):\n    def speak(self):\n        return \"woof\"\n")
	stmt, ok := program.Statements[0].(*ast.ClassDefStatement)
	if !ok {
		t.Fatalf("expected *ast.ClassDefStatement, got %T", program.Statements[0])
	}
	if stmt.Name != "Dog" {
		t.Fatalf("expected class name 'Dog', got %q", stmt.Name)
	}
	if len(stmt.Bases) != 1 {
		t.Fatalf("expected 1 base class, got %d", len(stmt.Bases))
	}
	base, ok := stmt.Bases[0].(*ast.Identifier)
	if !ok || base.Value != "Animal" {
		t.Fatalf("expected base class 'Animal', got %#v", stmt.Bases[0])
	}
}

func TestParseTryExceptFinally(t *testing.T) {
	src := "try:\n    risky()\nexcept ValueError as e:\n    handle(e)\nfinally:\n    cleanup()\n"
	program := parseProgram(t, src)
	stmt, ok := program.Statements[0].(*ast.TryStatement)
	if !ok {
		t.Fatalf("expected *ast.TryStatement, got %T", program.Statements[0])
	}
	if len(stmt.Excepts) != 1 {
		t.Fatalf("expected 1 except clause, got %d", len(stmt.Excepts))
	}
	if stmt.Excepts[0].Name != "e" {
		t.Fatalf("expected bound name 'e', got %q", stmt.Excepts[0].Name)
	}
	if stmt.Finally == nil {
		t.Fatal("expected a finally block")
	}
}

func TestParseRaiseStatement(t *testing.T) {
	program := parseProgram(t, "raise ValueError(\"bad\")\n")
	stmt, ok := program.Statements[0].(*ast.RaiseStatement)
	if !ok {
		t.Fatalf("expected *ast.RaiseStatement, got %T", program.Statements[0])
	}
	if stmt.Value == nil {
		t.Fatal("expected a raised expression")
	}
}

func TestParseBareRaiseReraises(t *testing.T) {
	src := "try:\n    risky()\nexcept:\n    raise\n"
	program := parseProgram(t, src)
	stmt := program.Statements[0].(*ast.TryStatement)
	raise, ok := stmt.Excepts[0].Body.Statements[0].(*ast.RaiseStatement)
	if !ok {
		t.Fatalf("expected *ast.RaiseStatement, got %T", stmt.Excepts[0].Body.Statements[0])
	}
	if raise.Value != nil {
		t.Fatal("expected a bare raise with no value")
	}
}

func TestParseListTupleDictSetLiterals(t *testing.T) {
	program := parseProgram(t, "x = [1, 2]\ny = (1, 2)\nz = {\"a\": 1}\nw = {1, 2}\n")
	if _, ok := program.Statements[0].(*ast.AssignStatement).Value.(*ast.ListLiteral); !ok {
		t.Fatal("expected list literal")
	}
	if _, ok := program.Statements[1].(*ast.AssignStatement).Value.(*ast.TupleLiteral); !ok {
		t.Fatal("expected tuple literal")
	}
	if _, ok := program.Statements[2].(*ast.AssignStatement).Value.(*ast.DictLiteral); !ok {
		t.Fatal("expected dict literal")
	}
	if _, ok := program.Statements[3].(*ast.AssignStatement).Value.(*ast.SetLiteral); !ok {
		t.Fatal("expected set literal")
	}
}

func TestParseTernaryExpression(t *testing.T) {
	program := parseProgram(t, "x = a if cond else b\n")
	assign := program.Statements[0].(*ast.AssignStatement)
	if _, ok := assign.Value.(*ast.TernaryExpression); !ok {
		t.Fatalf("expected *ast.TernaryExpression, got %T", assign.Value)
	}
}

func TestParseLambdaExpression(t *testing.T) {
	program := parseProgram(t, "f = lambda x, y: x + y\n")
	assign := program.Statements[0].(*ast.AssignStatement)
	lit, ok := assign.Value.(*ast.FunctionLiteral)
	if !ok {
		t.Fatalf("expected *ast.FunctionLiteral, got %T", assign.Value)
	}
	if len(lit.Parameters.Names) != 2 {
		t.Fatalf("expected 2 lambda params, got %d", len(lit.Parameters.Names))
	}
}

func TestParseCallWithKeywordArguments(t *testing.T) {
	program := parseProgram(t, "print(1, 2, sep=\"-\")\n")
	exprStmt := program.Statements[0].(*ast.ExpressionStatement)
	call, ok := exprStmt.Expression.(*ast.CallExpression)
	if !ok {
		t.Fatalf("expected *ast.CallExpression, got %T", exprStmt.Expression)
	}
	if len(call.Arguments) != 2 {
		t.Fatalf("expected 2 positional args, got %d", len(call.Arguments))
	}
	if len(call.KwargNames) != 1 || call.KwargNames[0] != "sep" {
		t.Fatalf("expected 1 keyword arg named 'sep', got %v", call.KwargNames)
	}
}

func TestParseAttributeAndIndexChain(t *testing.T) {
	program := parseProgram(t, "x = a.b[0].c\n")
	assign := program.Statements[0].(*ast.AssignStatement)
	outer, ok := assign.Value.(*ast.AttributeExpression)
	if !ok {
		t.Fatalf("expected outer *ast.AttributeExpression, got %T", assign.Value)
	}
	if outer.Name != "c" {
		t.Fatalf("expected outer attribute 'c', got %q", outer.Name)
	}
	if _, ok := outer.Left.(*ast.IndexExpression); !ok {
		t.Fatalf("expected index expression under the attribute, got %T", outer.Left)
	}
}

func TestParseSliceExpression(t *testing.T) {
	program := parseProgram(t, "x = a[1:3]\n")
	assign := program.Statements[0].(*ast.AssignStatement)
	slice, ok := assign.Value.(*ast.SliceExpression)
	if !ok {
		t.Fatalf("expected *ast.SliceExpression, got %T", assign.Value)
	}
	if _, ok := slice.Left.(*ast.Identifier); !ok {
		t.Fatalf("expected the sliced operand to be an identifier, got %T", slice.Left)
	}
}

func TestParseListComprehension(t *testing.T) {
	program := parseProgram(t, "x = [i * 2 for i in range(5) if i > 0]\n")
	assign := program.Statements[0].(*ast.AssignStatement)
	comp, ok := assign.Value.(*ast.ListCompExpression)
	if !ok {
		t.Fatalf("expected *ast.ListCompExpression, got %T", assign.Value)
	}
	if len(comp.Clauses) != 1 {
		t.Fatalf("expected 1 comprehension clause, got %d", len(comp.Clauses))
	}
	if len(comp.Clauses[0].Ifs) != 1 {
		t.Fatalf("expected 1 'if' filter on the comprehension, got %d", len(comp.Clauses[0].Ifs))
	}
}

func TestParseBoolOpShortCircuitsStayBoolOp(t *testing.T) {
	program := parseProgram(t, "x = a and b or c\n")
	assign := program.Statements[0].(*ast.AssignStatement)
	if _, ok := assign.Value.(*ast.BoolOpExpression); !ok {
		t.Fatalf("expected *ast.BoolOpExpression, got %T", assign.Value)
	}
}

func TestParseNotInAndIsNot(t *testing.T) {
	program := parseProgram(t, "x = a not in b\ny = a is not b\nz = a in b\nw = a is b\n")
	cases := []struct {
		idx int
		op  string
	}{
		{0, "not in"}, {1, "is not"}, {2, "in"}, {3, "is"},
	}
	for _, c := range cases {
		assign := program.Statements[c.idx].(*ast.AssignStatement)
		infix, ok := assign.Value.(*ast.InfixExpression)
		if !ok || infix.Operator != c.op {
			t.Fatalf("statement %d: expected infix %q, got %#v", c.idx, c.op, assign.Value)
		}
	}
}

func TestParseNotInRequiresIn(t *testing.T) {
	p := New(lexer.New("x = a not b\n"))
	p.ParseProgram()
	if !p.Errors().HasErrors() {
		t.Fatalf("expected a parse error for 'not' without a following 'in'")
	}
}

func TestParseImportAndImportFrom(t *testing.T) {
	program := parseProgram(t, "import math\nfrom collections import deque\n")
	imp, ok := program.Statements[0].(*ast.ImportStatement)
	if !ok {
		t.Fatalf("expected *ast.ImportStatement, got %T", program.Statements[0])
	}
	if imp.Name != "math" {
		t.Fatalf("expected import name 'math', got %q", imp.Name)
	}
	from, ok := program.Statements[1].(*ast.ImportFromStatement)
	if !ok {
		t.Fatalf("expected *ast.ImportFromStatement, got %T", program.Statements[1])
	}
	if from.Module != "collections" || len(from.Names) != 1 || from.Names[0] != "deque" {
		t.Fatalf("unexpected import-from shape: %#v", from)
	}
}

func TestParseSyntaxErrorRecordsDiagnostic(t *testing.T) {
	p := New(lexer.New("def (:\n"))
	p.ParseProgram()
	if !p.Errors().HasErrors() {
		t.Fatal("expected a parse error for a malformed function definition")
	}
}
