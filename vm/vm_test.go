package vm

import (
	"testing"

	"wings/compiler"
	"wings/gc"
	"wings/lexer"
	"wings/object"
	"wings/parser"
)

type nopRoot struct{}

func (nopRoot) GCRoots() []object.Object { return nil }

// newMachine builds a bare VM with only the native exception classes bound
// into globals by name (no builtins package involved, since builtins itself
// imports vm); that's enough to exercise try/except against the vm's own
// natively raised exceptions (ZeroDivisionError, IndexError, KeyError, ...).
func newMachine(t *testing.T) *VM {
	t.Helper()
	globals := object.NewAttrTable(nil)
	for _, class := range []*object.Class{
		object.ZeroDivisionErrorClass,
		object.IndexErrorClass,
		object.KeyErrorClass,
		object.TypeErrorClass,
		object.RuntimeErrorClass,
		object.AttributeErrorClass,
	} {
		globals.Set(class.Name, class)
	}
	collector := gc.New(nopRoot{}, 0, object.NewException(object.RuntimeErrorClass, "oom"))
	return New(globals, collector)
}

func run(t *testing.T, machine *VM, src string) object.Object {
	t.Helper()
	l := lexer.New(src)
	p := parser.New(l)
	program := p.ParseProgram()
	if p.Errors().HasErrors() {
		t.Fatalf("parse errors for %q: %s", src, p.Errors().Error())
	}
	c := compiler.New()
	fn, err := c.Compile(program)
	if err != nil || c.Errors().HasErrors() {
		t.Fatalf("compile errors for %q: %v / %s", src, err, c.Errors().Error())
	}
	result, runErr := machine.Run(fn)
	if runErr != nil {
		t.Fatalf("run error for %q: %v", src, runErr)
	}
	return result
}

func TestArithmeticOperators(t *testing.T) {
	cases := map[string]int64{
		"return 2 + 3":  5,
		"return 7 - 2":  5,
		"return 3 * 4":  12,
		"return 7 % 2":  1,
		"return 2 ** 5": 32,
	}
	for src, want := range cases {
		result := run(t, newMachine(t), src+"\n")
		i, ok := result.(*object.Int)
		if !ok || i.Value != want {
			t.Fatalf("%q: got %#v, want %d", src, result, want)
		}
	}
}

func TestDivisionProducesFloat(t *testing.T) {
	result := run(t, newMachine(t), "return 7 / 2\n")
	f, ok := result.(*object.Float)
	if !ok || f.Value != 3.5 {
		t.Fatalf("expected 3.5, got %#v", result)
	}
}

func TestComparisonAndLessThanViaSwappedOperands(t *testing.T) {
	result := run(t, newMachine(t), "return 1 < 2\n")
	b, ok := result.(*object.Bool)
	if !ok || !b.Value {
		t.Fatalf("expected true, got %#v", result)
	}

	result = run(t, newMachine(t), "return 2 < 1\n")
	b, ok = result.(*object.Bool)
	if !ok || b.Value {
		t.Fatalf("expected false, got %#v", result)
	}
}

func TestBooleanShortCircuitAndOr(t *testing.T) {
	result := run(t, newMachine(t), "def boom():\n    return 1 / 0\nreturn False and boom()\n")
	b, ok := result.(*object.Bool)
	if !ok || b.Value {
		t.Fatalf("expected 'and' to short-circuit on a falsy left side, got %#v", result)
	}

	result = run(t, newMachine(t), "def boom():\n    return 1 / 0\nreturn True or boom()\n")
	b, ok = result.(*object.Bool)
	if !ok || !b.Value {
		t.Fatalf("expected 'or' to short-circuit on a truthy left side, got %#v", result)
	}
}

func TestListIndexAndSlice(t *testing.T) {
	result := run(t, newMachine(t), "xs = [1, 2, 3, 4, 5]\nreturn xs[1:3]\n")
	lst, ok := result.(*object.List)
	if !ok || len(lst.Elements) != 2 {
		t.Fatalf("expected a 2-element slice, got %#v", result)
	}
	if lst.Elements[0].(*object.Int).Value != 2 || lst.Elements[1].(*object.Int).Value != 3 {
		t.Fatalf("unexpected slice contents: %#v", lst.Elements)
	}
}

func TestNegativeListIndex(t *testing.T) {
	result := run(t, newMachine(t), "xs = [1, 2, 3]\nreturn xs[-1]\n")
	i, ok := result.(*object.Int)
	if !ok || i.Value != 3 {
		t.Fatalf("expected 3, got %#v", result)
	}
}

func TestDictLiteralAndIndex(t *testing.T) {
	result := run(t, newMachine(t), "d = {\"a\": 1, \"b\": 2}\nreturn d[\"b\"]\n")
	i, ok := result.(*object.Int)
	if !ok || i.Value != 2 {
		t.Fatalf("expected 2, got %#v", result)
	}
}

func TestZeroDivisionErrorCaughtByExcept(t *testing.T) {
	src := `
caught = False
try:
    x = 1 / 0
except ZeroDivisionError:
    caught = True
return caught
`
	result := run(t, newMachine(t), src)
	b, ok := result.(*object.Bool)
	if !ok || !b.Value {
		t.Fatalf("expected ZeroDivisionError to be caught, got %#v", result)
	}
}

func TestIndexErrorPropagatesUncaught(t *testing.T) {
	globals := object.NewAttrTable(nil)
	collector := gc.New(nopRoot{}, 0, object.NewException(object.RuntimeErrorClass, "oom"))
	machine := New(globals, collector)

	l := lexer.New("xs = [1]\nreturn xs[5]\n")
	p := parser.New(l)
	program := p.ParseProgram()
	c := compiler.New()
	fn, _ := c.Compile(program)
	_, err := machine.Run(fn)
	if err == nil {
		t.Fatal("expected an uncaught IndexError")
	}
	exc := machine.CurrentException()
	inst, ok := exc.(*object.Instance)
	if !ok || inst.Class.Name != "IndexError" {
		t.Fatalf("expected the current exception to be IndexError, got %#v", exc)
	}
}

func TestExceptClauseRunsOnlyMatchingHandler(t *testing.T) {
	src := `
caught_zero = False
caught_index = False
try:
    x = 1 / 0
except IndexError:
    caught_index = True
except ZeroDivisionError:
    caught_zero = True
return [caught_zero, caught_index]
`
	result := run(t, newMachine(t), src)
	lst := result.(*object.List)
	if !lst.Elements[0].(*object.Bool).Value {
		t.Fatal("expected the matching ZeroDivisionError handler to run")
	}
	if lst.Elements[1].(*object.Bool).Value {
		t.Fatal("did not expect the IndexError handler (wrong type) to run")
	}
}

func TestFunctionCallAndRecursion(t *testing.T) {
	src := `
def fact(n):
    if n < 2:
        return 1
    return n * fact(n - 1)
return fact(6)
`
	result := run(t, newMachine(t), src)
	i, ok := result.(*object.Int)
	if !ok || i.Value != 720 {
		t.Fatalf("expected 720, got %#v", result)
	}
}

func TestRecursionLimitRaisesRuntimeError(t *testing.T) {
	machine := newMachine(t)
	machine.RecursionLimit = 10
	l := lexer.New("def loop(n):\n    return loop(n + 1)\nreturn loop(0)\n")
	p := parser.New(l)
	program := p.ParseProgram()
	c := compiler.New()
	fn, _ := c.Compile(program)
	_, err := machine.Run(fn)
	if err == nil {
		t.Fatal("expected exceeding RecursionLimit to raise an error")
	}
}

func TestClassAttributeAccessAndMethodBinding(t *testing.T) {
	src := `
class Counter:
    def __init__(self, start):
        self.value = start
    def bump(self):
        self.value = self.value + 1
        return self.value

c = Counter(0)
c.bump()
c.bump()
return c.bump()
`
	result := run(t, newMachine(t), src)
	i, ok := result.(*object.Int)
	if !ok || i.Value != 3 {
		t.Fatalf("expected 3, got %#v", result)
	}
}

func TestClosureCellsAreSharedNotCopied(t *testing.T) {
	src := `
def make_counter():
    count = 0
    def increment():
        nonlocal count
        count = count + 1
        return count
    return increment

inc = make_counter()
inc()
inc()
return inc()
`
	result := run(t, newMachine(t), src)
	i, ok := result.(*object.Int)
	if !ok || i.Value != 3 {
		t.Fatalf("expected 3, got %#v", result)
	}
}

func TestGCRootsIncludesGlobals(t *testing.T) {
	machine := newMachine(t)
	run(t, machine, "xs = [1, 2, 3]\nreturn xs\n")
	roots := machine.GCRoots()
	if len(roots) == 0 {
		t.Fatal("expected GCRoots to report at least the globals table's contents")
	}
}

func TestIsTruthyAcrossTypes(t *testing.T) {
	machine := newMachine(t)
	cases := []struct {
		val  object.Object
		want bool
	}{
		{&object.Int{Value: 0}, false},
		{&object.Int{Value: 1}, true},
		{&object.List{Elements: nil}, false},
		{&object.List{Elements: []object.Object{&object.Int{Value: 1}}}, true},
		{&object.String{Value: ""}, false},
		{&object.String{Value: "x"}, true},
		{object.None, false},
		{object.True, true},
	}
	for _, c := range cases {
		got, err := machine.IsTruthy(c.val)
		if err != nil {
			t.Fatalf("IsTruthy(%#v) errored: %v", c.val, err)
		}
		if got != c.want {
			t.Fatalf("IsTruthy(%#v) = %v, want %v", c.val, got, c.want)
		}
	}
}
