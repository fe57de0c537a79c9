// ==============================================================================================
// FILE: host/host_test.go
// ==============================================================================================
// PURPOSE: End-to-end coverage of the embedding surface: compile, invoke, exchange values,
//          raise/catch, and drive the collector through a Context the way a host program would,
//          without reaching into compiler/vm/object internals.
// ==============================================================================================

package host

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wings/object"
)

func newTestContext(t *testing.T) (*Context, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	ctx, err := NewContext(Config{Print: &out})
	require.NoError(t, err)
	return ctx, &out
}

func run(t *testing.T, ctx *Context, src string) object.Object {
	t.Helper()
	fn, err := ctx.Compile(src, ModeExec)
	require.NoError(t, err)
	result, err := ctx.Invoke(fn, nil, nil)
	require.NoError(t, err)
	return result
}

func TestContext_FibonacciRecursion(t *testing.T) {
	ctx, _ := newTestContext(t)
	src := `
def fib(n):
    if n < 2:
        return n
    return fib(n - 1) + fib(n - 2)

return fib(10)
`
	result := run(t, ctx, src)
	i, ok := result.(*object.Int)
	require.True(t, ok, "expected *object.Int, got %T (%s)", result, result.Inspect())
	assert.EqualValues(t, 55, i.Value)
}

func TestContext_EvalMode(t *testing.T) {
	ctx, _ := newTestContext(t)
	fn, err := ctx.Compile("1 + 2 * 3", ModeEval)
	require.NoError(t, err)
	result, err := ctx.Invoke(fn, nil, nil)
	require.NoError(t, err)
	i, ok := result.(*object.Int)
	require.True(t, ok)
	assert.EqualValues(t, 7, i.Value)
}

func TestContext_PrintWritesToConfiguredSink(t *testing.T) {
	ctx, out := newTestContext(t)
	run(t, ctx, `print("hello", "world")`)
	assert.Equal(t, "hello world\n", out.String())
}

func TestContext_ClassesAndMethods(t *testing.T) {
	ctx, _ := newTestContext(t)
	src := `
class Counter:
    def __init__(self, start):
        self.value = start

    def bump(self, by):
        self.value = self.value + by
        return self.value

c = Counter(10)
c.bump(5)
return c.bump(1)
`
	result := run(t, ctx, src)
	i, ok := result.(*object.Int)
	require.True(t, ok)
	assert.EqualValues(t, 16, i.Value)
}

func TestContext_UncaughtExceptionCarriesTraceback(t *testing.T) {
	ctx, _ := newTestContext(t)
	fn, err := ctx.Compile(`raise ValueError("boom")`, ModeExec)
	require.NoError(t, err)
	_, invokeErr := ctx.Invoke(fn, nil, nil)
	require.Error(t, invokeErr)

	exc := ctx.CurrentException()
	require.NotNil(t, exc)
	inst, ok := exc.(*object.Instance)
	require.True(t, ok)
	assert.Equal(t, "ValueError", inst.Class.Name)

	tb := ctx.FormatTraceback()
	assert.Contains(t, tb, "ValueError")
}

func TestContext_CaughtExceptionDoesNotPropagate(t *testing.T) {
	ctx, _ := newTestContext(t)
	src := `
caught = False
try:
    raise KeyError("missing")
except KeyError as e:
    caught = True
return caught
`
	result := run(t, ctx, src)
	b, ok := result.(*object.Bool)
	require.True(t, ok)
	assert.True(t, b.Value)
}

func TestContext_GetAttrSetAttrGetItemSetItem(t *testing.T) {
	ctx, _ := newTestContext(t)
	src := `
class Box:
    def __init__(self):
        self.items = [1, 2, 3]

b = Box()
return b
`
	boxed := run(t, ctx, src)

	items, err := ctx.GetAttr(boxed, "items")
	require.NoError(t, err)

	first, err := ctx.GetItem(items, NewInt(0))
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.(*object.Int).Value)

	require.NoError(t, ctx.SetItem(items, NewInt(0), NewInt(99)))
	updated, err := ctx.GetItem(items, NewInt(0))
	require.NoError(t, err)
	assert.EqualValues(t, 99, updated.(*object.Int).Value)

	require.NoError(t, ctx.SetAttr(boxed, "label", NewString("crate")))
	label, err := ctx.GetAttr(boxed, "label")
	require.NoError(t, err)
	assert.Equal(t, "crate", label.(*object.String).Value)
}

func TestContext_Iterate(t *testing.T) {
	ctx, _ := newTestContext(t)
	list := run(t, ctx, `return [10, 20, 30]`)

	it, err := ctx.Iterate(list)
	require.NoError(t, err)

	var got []int64
	for {
		val, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, val.(*object.Int).Value)
	}
	assert.Equal(t, []int64{10, 20, 30}, got)
}

func TestContext_Raise(t *testing.T) {
	ctx, _ := newTestContext(t)
	exc, err := ctx.Raise("TypeError", "bad value")
	require.NoError(t, err)
	inst, ok := exc.(*object.Instance)
	require.True(t, ok)
	assert.Equal(t, "TypeError", inst.Class.Name)

	_, err = ctx.Raise("NotAClass", "nope")
	assert.Error(t, err)
}

func TestContext_ProtectKeepsValueAcrossCollection(t *testing.T) {
	ctx, _ := newTestContext(t)
	val := run(t, ctx, `return [1, 2, 3]`)
	ctx.Protect(val)
	ctx.Collect()

	roots := ctx.GCRoots()
	found := false
	for _, r := range roots {
		if r == val {
			found = true
		}
	}
	assert.True(t, found, "protected value should appear in GC roots")

	ctx.Unprotect(val)
}

func TestContext_RecursionLimitRaisesRecursionError(t *testing.T) {
	ctx, err := NewContext(Config{RecursionLimit: 5})
	require.NoError(t, err)
	fn, err := ctx.Compile(`
def loop(n):
    return loop(n + 1)
return loop(0)
`, ModeExec)
	require.NoError(t, err)
	_, invokeErr := ctx.Invoke(fn, nil, nil)
	require.Error(t, invokeErr)
	assert.True(t, strings.Contains(invokeErr.Error(), "Recursion") || strings.Contains(invokeErr.Error(), "recursion"))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/wings.yaml"
	content := "max_allocs: 1000\ngc_factor: 1.5\nrecursion_limit: 250\nimport_path:\n  - /tmp/scripts\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.MaxAllocs)
	assert.Equal(t, 1.5, cfg.GCFactor)
	assert.Equal(t, 250, cfg.RecursionLimit)
	assert.Equal(t, []string{"/tmp/scripts"}, cfg.ImportPath)
}
