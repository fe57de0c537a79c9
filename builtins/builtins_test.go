// ==============================================================================================
// FILE: builtins/builtins_test.go
// ==============================================================================================
// PURPOSE: Exercises the native builtins and the bootstrap script (enumerate, zip, filter, map,
//          sum, max, min, sorted, ...) against a bare vm+globals pair, the same wiring host.Context
//          does, without going through the host package (builtins must stay host-independent).
// ==============================================================================================

package builtins

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wings/compiler"
	"wings/gc"
	"wings/lexer"
	"wings/object"
	"wings/parser"
	"wings/vm"
)

type nopRoot struct{}

func (nopRoot) GCRoots() []object.Object { return nil }

// eval compiles and runs src as a script returning the value of its final
// "return" statement, against a fresh context with builtins installed.
func eval(t *testing.T, src string, out *bytes.Buffer) object.Object {
	t.Helper()
	globals := object.NewAttrTable(nil)
	collector := gc.New(nopRoot{}, 0, object.NewException(object.RuntimeErrorClass, "oom"))
	machine := vm.New(globals, collector)

	var sink io.Writer
	if out != nil {
		sink = out
	}
	require.NoError(t, Install(globals, machine, sink))

	l := lexer.New(src)
	p := parser.New(l)
	program := p.ParseProgram()
	require.False(t, p.Errors().HasErrors(), "parse errors: %s", p.Errors().Error())

	c := compiler.New()
	fn, err := c.Compile(program)
	require.NoError(t, err)
	require.False(t, c.Errors().HasErrors(), "compile errors: %s", c.Errors().Error())

	result, err := machine.Run(fn)
	require.NoError(t, err)
	return result
}

func TestBuiltins_LenAcrossTypes(t *testing.T) {
	result := eval(t, `return len([1, 2, 3])`, nil)
	assert.EqualValues(t, 3, result.(*object.Int).Value)

	result = eval(t, `return len("hello")`, nil)
	assert.EqualValues(t, 5, result.(*object.Int).Value)

	result = eval(t, `return len({"a": 1, "b": 2})`, nil)
	assert.EqualValues(t, 2, result.(*object.Int).Value)
}

func TestBuiltins_LenFallsBackToDunder(t *testing.T) {
	src := `
class Box:
    def __init__(self, n):
        self.n = n
    def __len__(self):
        return self.n

return len(Box(7))
`
	result := eval(t, src, nil)
	assert.EqualValues(t, 7, result.(*object.Int).Value)
}

func TestBuiltins_Print(t *testing.T) {
	var out bytes.Buffer
	eval(t, `print("a", "b", sep="-", end="!")`, &out)
	assert.Equal(t, "a-b!", out.String())
}

func TestBuiltins_TypeAndIsinstance(t *testing.T) {
	result := eval(t, `return isinstance(5, int)`, nil)
	assert.True(t, result.(*object.Bool).Value)

	result = eval(t, `return isinstance("x", (int, float))`, nil)
	assert.False(t, result.(*object.Bool).Value)
}

func TestBuiltins_ReprAndStr(t *testing.T) {
	result := eval(t, `return repr("hi")`, nil)
	assert.Equal(t, `"hi"`, result.(*object.String).Value)

	result = eval(t, `return str(5)`, nil)
	assert.Equal(t, "5", result.(*object.String).Value)
}

func TestBuiltins_ContainerConstructorsConsumeIterables(t *testing.T) {
	result := eval(t, `return list(range(3))`, nil)
	lst, ok := result.(*object.List)
	require.True(t, ok)
	require.Len(t, lst.Elements, 3)
	assert.EqualValues(t, 2, lst.Elements[2].(*object.Int).Value)

	result = eval(t, `return tuple([1, 2])`, nil)
	tup, ok := result.(*object.Tuple)
	require.True(t, ok)
	assert.Len(t, tup.Elements, 2)
}

func TestBuiltins_GetattrSetattrHasattr(t *testing.T) {
	src := `
class Box:
    pass

b = Box()
setattr(b, "value", 42)
found = hasattr(b, "value")
missing = hasattr(b, "nope")
return [found, missing, getattr(b, "value")]
`
	result := eval(t, src, nil)
	lst := result.(*object.List)
	assert.True(t, lst.Elements[0].(*object.Bool).Value)
	assert.False(t, lst.Elements[1].(*object.Bool).Value)
	assert.EqualValues(t, 42, lst.Elements[2].(*object.Int).Value)
}

func TestBootstrap_Enumerate(t *testing.T) {
	src := `
pairs = []
for i, v in enumerate(["a", "b"]):
    pairs = pairs + [[i, v]]
return pairs
`
	result := eval(t, src, nil)
	lst := result.(*object.List)
	require.Len(t, lst.Elements, 2)
	first := lst.Elements[0].(*object.List)
	assert.EqualValues(t, 0, first.Elements[0].(*object.Int).Value)
	assert.Equal(t, "a", first.Elements[1].(*object.String).Value)
}

func TestBootstrap_MapFilterSum(t *testing.T) {
	src := `
doubled = map(lambda x: x * 2, [1, 2, 3])
evens = filter(lambda x: x % 2 == 0, [1, 2, 3, 4])
return [sum(doubled), sum(evens)]
`
	result := eval(t, src, nil)
	lst := result.(*object.List)
	assert.EqualValues(t, 12, lst.Elements[0].(*object.Int).Value)
	assert.EqualValues(t, 6, lst.Elements[1].(*object.Int).Value)
}

func TestBootstrap_SortedAndReversed(t *testing.T) {
	result := eval(t, `return sorted([3, 1, 2])`, nil)
	lst := result.(*object.List)
	require.Len(t, lst.Elements, 3)
	assert.EqualValues(t, 1, lst.Elements[0].(*object.Int).Value)
	assert.EqualValues(t, 2, lst.Elements[1].(*object.Int).Value)
	assert.EqualValues(t, 3, lst.Elements[2].(*object.Int).Value)

	result = eval(t, `return list(reversed([1, 2, 3]))`, nil)
	lst = result.(*object.List)
	assert.EqualValues(t, 3, lst.Elements[0].(*object.Int).Value)
}

func TestBootstrap_MaxMinDivmod(t *testing.T) {
	result := eval(t, `return [max(1, 5, 3), min(1, 5, 3)]`, nil)
	lst := result.(*object.List)
	assert.EqualValues(t, 5, lst.Elements[0].(*object.Int).Value)
	assert.EqualValues(t, 1, lst.Elements[1].(*object.Int).Value)

	result = eval(t, `return divmod(7, 2)`, nil)
	tup := result.(*object.Tuple)
	assert.EqualValues(t, 3, tup.Elements[0].(*object.Int).Value)
	assert.EqualValues(t, 1, tup.Elements[1].(*object.Int).Value)
}

func TestBuiltins_ExceptionConstructorSetsMessageAndArgs(t *testing.T) {
	src := `
e = ValueError("bad value", 2)
return [str(e), e.message, e.args]
`
	result := eval(t, src, nil)
	lst := result.(*object.List)
	assert.Equal(t, "bad value", lst.Elements[0].(*object.String).Value)
	assert.Equal(t, "bad value", lst.Elements[1].(*object.String).Value)
	args := lst.Elements[2].(*object.Tuple)
	require.Len(t, args.Elements, 2)
	assert.EqualValues(t, 2, args.Elements[1].(*object.Int).Value)
}

func TestBuiltins_RaiseAndCatchConstructedException(t *testing.T) {
	src := `
caught = None
try:
    raise ValueError("nope")
except ValueError as e:
    caught = e.message
return caught
`
	result := eval(t, src, nil)
	assert.Equal(t, "nope", result.(*object.String).Value)
}

func TestBootstrap_SortedWithCustomKeyAndReverse(t *testing.T) {
	result := eval(t, `return sorted(["bb", "a", "ccc"], key=lambda s: len(s))`, nil)
	lst := result.(*object.List)
	require.Len(t, lst.Elements, 3)
	assert.Equal(t, "a", lst.Elements[0].(*object.String).Value)
	assert.Equal(t, "bb", lst.Elements[1].(*object.String).Value)
	assert.Equal(t, "ccc", lst.Elements[2].(*object.String).Value)

	result = eval(t, `return sorted([1, 3, 2], reverse=True)`, nil)
	lst = result.(*object.List)
	assert.EqualValues(t, 3, lst.Elements[0].(*object.Int).Value)
	assert.EqualValues(t, 1, lst.Elements[2].(*object.Int).Value)
}

func TestBuiltins_NextRaisesStopIteration(t *testing.T) {
	src := `
it = iter([1])
next(it)
stopped = False
try:
    next(it)
except StopIteration:
    stopped = True
return stopped
`
	result := eval(t, src, nil)
	assert.True(t, result.(*object.Bool).Value)
}

func TestBuiltins_StrSplit(t *testing.T) {
	result := eval(t, `return "a,b,,c".split(",")`, nil)
	lst := result.(*object.List)
	require.Len(t, lst.Elements, 3)
	assert.Equal(t, "a", lst.Elements[0].(*object.String).Value)
	assert.Equal(t, "b", lst.Elements[1].(*object.String).Value)
	assert.Equal(t, "c", lst.Elements[2].(*object.String).Value)

	result = eval(t, `return "  a  b   c  ".split()`, nil)
	lst = result.(*object.List)
	require.Len(t, lst.Elements, 3)
	assert.Equal(t, "a", lst.Elements[0].(*object.String).Value)
	assert.Equal(t, "c", lst.Elements[2].(*object.String).Value)

	result = eval(t, `return "a,b,c".split(",", 1)`, nil)
	lst = result.(*object.List)
	require.Len(t, lst.Elements, 2)
	assert.Equal(t, "a", lst.Elements[0].(*object.String).Value)
	assert.Equal(t, "b,c", lst.Elements[1].(*object.String).Value)
}

func TestBuiltins_StrStripVariants(t *testing.T) {
	result := eval(t, `return "  hello  ".strip()`, nil)
	assert.Equal(t, "hello", result.(*object.String).Value)

	result = eval(t, `return "  hello  ".lstrip()`, nil)
	assert.Equal(t, "hello  ", result.(*object.String).Value)

	result = eval(t, `return "  hello  ".rstrip()`, nil)
	assert.Equal(t, "  hello", result.(*object.String).Value)

	result = eval(t, `return "xxhelloxx".strip("x")`, nil)
	assert.Equal(t, "hello", result.(*object.String).Value)
}

func TestBuiltins_StrJoin(t *testing.T) {
	result := eval(t, `return "-".join(["a", "b", "c"])`, nil)
	assert.Equal(t, "a-b-c", result.(*object.String).Value)

	result = eval(t, `return ",".join([])`, nil)
	assert.Equal(t, "", result.(*object.String).Value)
}

func TestBuiltins_StrJoinRejectsNonStringElements(t *testing.T) {
	src := `
caught = None
try:
    ",".join([1, 2])
except TypeError as e:
    caught = e.message
return caught
`
	result := eval(t, src, nil)
	assert.Equal(t, "sequence item must be a string", result.(*object.String).Value)
}

func TestBuiltins_StrFormatAutoAndManualIndexing(t *testing.T) {
	result := eval(t, `return "{} and {}".format("a", "b")`, nil)
	assert.Equal(t, "a and b", result.(*object.String).Value)

	result = eval(t, `return "{1} before {0}".format("a", "b")`, nil)
	assert.Equal(t, "b before a", result.(*object.String).Value)
}

func TestBuiltins_StrFormatRejectsMixedNumbering(t *testing.T) {
	src := `
caught = None
try:
    "{} {0}".format("a", "b")
except ValueError as e:
    caught = e.message
return caught
`
	result := eval(t, src, nil)
	assert.Equal(t, "Cannot switch from automatic field numbering to manual field specification", result.(*object.String).Value)
}

func TestBuiltins_StrFormatIndexOutOfRange(t *testing.T) {
	src := `
caught = False
try:
    "{1}".format("a")
except IndexError:
    caught = True
return caught
`
	result := eval(t, src, nil)
	assert.True(t, result.(*object.Bool).Value)
}
