// ==============================================================================================
// FILE: host/host.go
// ==============================================================================================
// PACKAGE: host
// PURPOSE: The embedding surface a Go program drives the interpreter through: build a Context,
//          compile source into a callable, invoke it, exchange values, and drive the collector —
//          without reaching into compiler/vm/object internals directly.
// ==============================================================================================

package host

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"wings/builtins"
	"wings/compiler"
	"wings/gc"
	"wings/lexer"
	"wings/modhost"
	"wings/object"
	"wings/parser"
	"wings/vm"
)

// CompileMode selects whether source is compiled as a sequence of
// statements (a module/script body) or as a single expression (the repl's
// "evaluate this line and show me the result" mode).
type CompileMode int

const (
	ModeExec CompileMode = iota
	ModeEval
)

// Config configures a Context's resource limits and I/O. The zero Config is
// a usable, permissive default: no allocation cap, the default GC trigger
// factor, a generous recursion limit, stdout for print, and no import path.
type Config struct {
	MaxAllocs      int
	GCFactor       float64
	RecursionLimit int
	Print          io.Writer
	ImportPath     []string
	Logger         *logrus.Logger
}

// Context is one isolated interpreter session: its own globals, object
// heap, collector, and module cache. Per spec.md §5 a Context is strictly
// single-threaded; distinct Contexts may be driven concurrently from
// separate host goroutines.
type Context struct {
	ID         string
	cfg        Config
	globals    *object.AttrTable
	machine    *vm.VM
	collector  *gc.Collector
	modules    *modhost.Host
	log        *logrus.Logger
	protected  map[object.Object]struct{}
}

// NewContext builds a ready-to-use Context: installs the builtins bootstrap
// (class hierarchy, native functions, exception tree) into a fresh globals
// table, wires the collector with this Context as its root, and points the
// vm's importer at a per-Context modhost.Host seeded from cfg.ImportPath.
func NewContext(cfg Config) (*Context, error) {
	if cfg.Print == nil {
		cfg.Print = os.Stdout
	}
	if cfg.RecursionLimit <= 0 {
		cfg.RecursionLimit = 1000
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	ctx := &Context{
		ID:        uuid.NewString(),
		cfg:       cfg,
		globals:   object.NewAttrTable(nil),
		log:       log,
		protected: make(map[object.Object]struct{}),
	}

	memErr := object.NewException(object.RuntimeErrorClass, "out of memory: allocation cap exceeded")
	ctx.collector = gc.New(ctx, cfg.MaxAllocs, memErr)
	if cfg.GCFactor > 0 {
		ctx.collector.SetTriggerFactor(cfg.GCFactor)
	}

	ctx.machine = vm.New(ctx.globals, ctx.collector)
	ctx.machine.RecursionLimit = cfg.RecursionLimit

	if err := builtins.Install(ctx.globals, ctx.machine, cfg.Print); err != nil {
		return nil, fmt.Errorf("host: installing builtins: %w", err)
	}

	ctx.modules = modhost.New(ctx.machine, ctx.globals, cfg.ImportPath, log)
	ctx.machine.SetImporter(ctx.modules.Import)

	log.WithField("context", ctx.ID).Info("context created")
	return ctx, nil
}

// GCRoots implements gc.Root: the vm's own live graph, plus anything the
// host has separately Protect()ed against collection (a value the host is
// holding outside any script variable, e.g. between two Invoke calls).
func (ctx *Context) GCRoots() []object.Object {
	roots := ctx.machine.GCRoots()
	for obj := range ctx.protected {
		roots = append(roots, obj)
	}
	return roots
}

// Compile parses and compiles src per mode, returning a callable bound to
// this Context's globals. ModeEval wraps src as a single return expression,
// so "1 + 2" compiles to a function that returns 3 rather than one whose
// body is a bare (and discarded) expression statement.
func (ctx *Context) Compile(src string, mode CompileMode) (*object.Function, error) {
	if mode == ModeEval {
		src = "return (" + src + ")"
	}
	l := lexer.New(src)
	p := parser.New(l)
	program := p.ParseProgram()
	if p.Errors().HasErrors() {
		return nil, fmt.Errorf("host: %s", p.Errors().Error())
	}
	c := compiler.New()
	cf, err := c.Compile(program)
	if err != nil {
		return nil, fmt.Errorf("host: %w", err)
	}
	if c.Errors().HasErrors() {
		return nil, fmt.Errorf("host: %s", c.Errors().Error())
	}
	return &object.Function{Code: cf, Globals: ctx.globals}, nil
}

// Invoke calls fn (ordinarily the result of Compile, or a function/method
// value read back out of script state) with args/kwargs and runs it to
// completion, returning its result or the Go error wrapping an uncaught
// script exception's traceback.
func (ctx *Context) Invoke(fn *object.Function, args []object.Object, kwargs map[string]object.Object) (object.Object, error) {
	return ctx.machine.Call(fn, args, kwargs)
}

// Globals exposes the context's top-level namespace directly, for a host
// that wants to read back or seed a global without going through Invoke.
func (ctx *Context) Globals() *object.AttrTable { return ctx.globals }

// GetAttr, SetAttr, GetItem and SetItem expose the object protocol's
// attribute and item access from host Go code, the same dispatch an
// OpGetAttr/OpGetIndex bytecode instruction would perform.
func (ctx *Context) GetAttr(obj object.Object, name string) (object.Object, error) {
	return ctx.machine.GetAttr(obj, name)
}

func (ctx *Context) SetAttr(obj object.Object, name string, val object.Object) error {
	return ctx.machine.SetAttr(obj, name, val)
}

func (ctx *Context) GetItem(obj, key object.Object) (object.Object, error) {
	return ctx.machine.Index(obj, key)
}

func (ctx *Context) SetItem(obj, key, val object.Object) error {
	return ctx.machine.SetIndex(obj, key, val)
}

// Iterator is the host-facing cursor Iterate returns: repeated Next calls
// walk obj the same way a script "for" loop would, including falling back
// to a custom __iter__/__next__ pair.
type Iterator struct {
	ctx *Context
	it  object.Object
}

// Next advances the iterator. ok is false once exhausted.
func (hi *Iterator) Next() (object.Object, bool, error) {
	return hi.ctx.machine.Next(hi.it)
}

// Iterate returns a host-facing Iterator over obj.
func (ctx *Context) Iterate(obj object.Object) (*Iterator, error) {
	it, err := ctx.machine.Iter(obj)
	if err != nil {
		return nil, err
	}
	return &Iterator{ctx: ctx, it: it}, nil
}

// Raise constructs and returns (not throws — there is no active frame to
// unwind from host Go code) an exception instance of the named built-in
// class, for a host that wants to hand a script callback an error value
// shaped the way a native raise would produce.
func (ctx *Context) Raise(kind, msg string) (object.Object, error) {
	class, ok := ctx.globals.Get(kind)
	if !ok {
		return nil, fmt.Errorf("host: no such exception class %q", kind)
	}
	exceptionClass, ok := class.(*object.Class)
	if !ok || !exceptionClass.IsSubclassOf(object.BaseException) {
		return nil, fmt.Errorf("host: %q is not an exception class", kind)
	}
	return object.NewException(exceptionClass, msg), nil
}

// CurrentException returns the script-level exception object from the most
// recent raise the vm processed (caught or not), nil if none has occurred.
func (ctx *Context) CurrentException() object.Object {
	return ctx.machine.CurrentException()
}

// FormatTraceback renders the traceback captured for the most recent
// uncaught exception.
func (ctx *Context) FormatTraceback() string {
	return ctx.machine.FormatTraceback()
}

// RegisterModule installs a process-wide native module loader, available to
// every Context (including ones created before this call), per spec.md §5's
// "native-module-loader registry a host can register before creating any
// context."
func (ctx *Context) RegisterModule(name string, loader modhost.ModuleLoader) {
	modhost.RegisterNative(name, loader)
}

// SetImportPath replaces the directories this Context's module host
// searches for "<dir>/<name>.py" source modules.
func (ctx *Context) SetImportPath(paths []string) {
	ctx.cfg.ImportPath = paths
	ctx.modules.SetImportPath(paths)
}

// Import resolves name through this Context's module host directly, for a
// host that wants to pre-load a module without a script "import" statement.
func (ctx *Context) Import(name string) error {
	_, err := ctx.modules.Import(name)
	return err
}

// Protect keeps obj alive across collections even if nothing in the script
// graph references it (a value the host is holding between two Invoke
// calls); Unprotect releases it back to ordinary reachability.
func (ctx *Context) Protect(obj object.Object)   { ctx.protected[obj] = struct{}{} }
func (ctx *Context) Unprotect(obj object.Object) { delete(ctx.protected, obj) }

// Collect forces an immediate, synchronous collection cycle.
func (ctx *Context) Collect() { ctx.collector.ForceCollect() }

// ==============================================================================================
// VALUE CONSTRUCTORS
// ==============================================================================================

func NewInt(v int64) object.Object     { return &object.Int{Value: v} }
func NewFloat(v float64) object.Object { return &object.Float{Value: v} }
func NewBool(v bool) object.Object     { return object.NativeBool(v) }
func NewString(v string) object.Object { return &object.String{Value: v} }

func NewList(elems ...object.Object) object.Object {
	return &object.List{Elements: elems}
}

func NewTuple(elems ...object.Object) object.Object {
	return &object.Tuple{Elements: elems}
}

func NewDict() *object.Dict { return object.NewDict() }
func NewSet() *object.Set   { return object.NewSet() }

// None is the interpreter's singleton null value.
var None = object.None
