package compiler

import (
	"strings"
	"testing"

	"wings/code"
	"wings/gc"
	"wings/lexer"
	"wings/object"
	"wings/parser"
	"wings/vm"
)

func compileSrc(t *testing.T, src string) *object.CompiledFunction {
	t.Helper()
	l := lexer.New(src)
	p := parser.New(l)
	program := p.ParseProgram()
	if p.Errors().HasErrors() {
		t.Fatalf("parse errors for %q: %s", src, p.Errors().Error())
	}
	c := New()
	fn, err := c.Compile(program)
	if err != nil {
		t.Fatalf("compile error for %q: %v", src, err)
	}
	if c.Errors().HasErrors() {
		t.Fatalf("compile errors for %q: %s", src, c.Errors().Error())
	}
	return fn
}

// run compiles and executes src end to end, the cheapest way to pin down
// what a compiled opcode sequence actually does without hand-decoding it.
func run(t *testing.T, src string) object.Object {
	t.Helper()
	fn := compileSrc(t, src)
	globals := object.NewAttrTable(nil)
	collector := gc.New(nopRoot{}, 0, object.NewException(object.RuntimeErrorClass, "oom"))
	machine := vm.New(globals, collector)
	result, err := machine.Run(fn)
	if err != nil {
		t.Fatalf("run error for %q: %v", src, err)
	}
	return result
}

type nopRoot struct{}

func (nopRoot) GCRoots() []object.Object { return nil }

func disasm(fn *object.CompiledFunction) string {
	return code.Disassemble(fn.Instructions)
}

func TestCompileConstantFoldsIntoOpConstant(t *testing.T) {
	fn := compileSrc(t, "return 42\n")
	if len(fn.Constants) != 1 {
		t.Fatalf("expected 1 constant, got %d", len(fn.Constants))
	}
	i, ok := fn.Constants[0].(*object.Int)
	if !ok || i.Value != 42 {
		t.Fatalf("expected constant 42, got %#v", fn.Constants[0])
	}
	if !strings.Contains(disasm(fn), "OpConstant") {
		t.Fatalf("expected OpConstant in disassembly:\n%s", disasm(fn))
	}
}

func TestCompileArithmeticEmitsBinOp(t *testing.T) {
	fn := compileSrc(t, "return 1 + 2 * 3\n")
	dis := disasm(fn)
	if !strings.Contains(dis, "OpMul") || !strings.Contains(dis, "OpAdd") {
		t.Fatalf("expected OpMul before OpAdd (precedence), got:\n%s", dis)
	}
	if strings.Index(dis, "OpMul") > strings.Index(dis, "OpAdd") {
		t.Fatalf("expected OpMul emitted before OpAdd:\n%s", dis)
	}
}

func TestCompileLessThanSwapsToGreaterThan(t *testing.T) {
	fn := compileSrc(t, "return 1 < 2\n")
	dis := disasm(fn)
	if !strings.Contains(dis, "OpGreaterThan") {
		t.Fatalf("expected '<' to compile via OpGreaterThan with swapped operands, got:\n%s", dis)
	}
	if strings.Contains(dis, "OpLessThan") {
		t.Fatalf("there is no OpLessThan opcode; compiler should never emit one:\n%s", dis)
	}
}

func TestCompileNotInEmitsContainsThenNot(t *testing.T) {
	fn := compileSrc(t, "return x not in y\n")
	dis := disasm(fn)
	if !strings.Contains(dis, "OpContains") || !strings.Contains(dis, "OpNot") {
		t.Fatalf("expected OpContains followed by OpNot, got:\n%s", dis)
	}
	if strings.Index(dis, "OpContains") > strings.Index(dis, "OpNot") {
		t.Fatalf("expected OpContains emitted before OpNot:\n%s", dis)
	}
}

func TestCompileIsNotEmitsIsThenNot(t *testing.T) {
	fn := compileSrc(t, "return x is not y\n")
	dis := disasm(fn)
	if !strings.Contains(dis, "OpIs") || !strings.Contains(dis, "OpNot") {
		t.Fatalf("expected OpIs followed by OpNot, got:\n%s", dis)
	}
	if strings.Index(dis, "OpIs") > strings.Index(dis, "OpNot") {
		t.Fatalf("expected OpIs emitted before OpNot:\n%s", dis)
	}
}

func TestCompileAndRunNotInIsNot(t *testing.T) {
	result := run(t, "xs = [1, 2, 3]\nreturn 5 not in xs\n")
	if b, ok := result.(*object.Bool); !ok || !b.Value {
		t.Fatalf("expected True for '5 not in [1,2,3]', got %#v", result)
	}

	result = run(t, "x = None\nreturn x is not None\n")
	if b, ok := result.(*object.Bool); !ok || b.Value {
		t.Fatalf("expected False for 'None is not None', got %#v", result)
	}
}

func TestCompileIfEmitsConditionalJump(t *testing.T) {
	fn := compileSrc(t, "if x:\n    y = 1\nelse:\n    y = 2\n")
	dis := disasm(fn)
	if !strings.Contains(dis, "OpJumpIfFalse") {
		t.Fatalf("expected OpJumpIfFalse for an if/else, got:\n%s", dis)
	}
	if !strings.Contains(dis, "OpJump ") && !strings.Contains(dis, "OpJump[") {
		t.Fatalf("expected an unconditional OpJump past the else branch, got:\n%s", dis)
	}
}

func TestCompileAndRunArithmetic(t *testing.T) {
	result := run(t, "return 2 + 3 * 4\n")
	i, ok := result.(*object.Int)
	if !ok || i.Value != 14 {
		t.Fatalf("expected 14, got %#v", result)
	}
}

func TestCompileAndRunFunctionCall(t *testing.T) {
	result := run(t, "def add(a, b):\n    return a + b\nreturn add(3, 4)\n")
	i, ok := result.(*object.Int)
	if !ok || i.Value != 7 {
		t.Fatalf("expected 7, got %#v", result)
	}
}

func TestCompileAndRunClosureCapturesFreeVariable(t *testing.T) {
	src := `
def make_adder(n):
    def adder(x):
        return x + n
    return adder

add5 = make_adder(5)
return add5(10)
`
	result := run(t, src)
	i, ok := result.(*object.Int)
	if !ok || i.Value != 15 {
		t.Fatalf("expected 15, got %#v", result)
	}
}

func TestCompileAndRunWhileLoopAccumulates(t *testing.T) {
	src := `
total = 0
i = 0
while i < 5:
    total = total + i
    i = i + 1
return total
`
	result := run(t, src)
	i, ok := result.(*object.Int)
	if !ok || i.Value != 10 {
		t.Fatalf("expected 10, got %#v", result)
	}
}

func TestCompileAndRunClassInstantiation(t *testing.T) {
	src := `
class Point:
    def __init__(self, x, y):
        self.x = x
        self.y = y

p = Point(1, 2)
return p.x + p.y
`
	result := run(t, src)
	i, ok := result.(*object.Int)
	if !ok || i.Value != 3 {
		t.Fatalf("expected 3, got %#v", result)
	}
}

func TestCompileFunctionDefRecordsParamNames(t *testing.T) {
	fn := compileSrc(t, "def greet(name):\n    return name\nreturn greet\n")
	var codeConst *object.CompiledFunction
	for _, c := range fn.Constants {
		if cf, ok := c.(*object.CompiledFunction); ok {
			codeConst = cf
		}
	}
	if codeConst == nil {
		t.Fatal("expected the nested function body to appear as a constant")
	}
	if codeConst.NumParams != 1 || codeConst.ParamNames[0] != "name" {
		t.Fatalf("unexpected param metadata: %#v", codeConst)
	}
}

func TestCompileSyntaxErrorNeverReachesCompiler(t *testing.T) {
	l := lexer.New("def (:\n")
	p := parser.New(l)
	program := p.ParseProgram()
	if !p.Errors().HasErrors() {
		t.Fatal("expected the parser itself to report this as malformed")
	}
	c := New()
	// Compiling a program the parser already flagged as broken should not
	// panic; the compiler only needs to degrade gracefully, since callers
	// are expected to check parser errors first.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("compiler panicked on a malformed program: %v", r)
		}
	}()
	c.Compile(program)
}
