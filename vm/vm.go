// ==============================================================================================
// FILE: vm/vm.go
// ==============================================================================================
// PACKAGE: vm
// PURPOSE: The stack-machine interpreter. Fetches and executes the bytecode the compiler
//          produces: call protocol (positional/default/*args/**kwargs binding), operator
//          dispatch, the iterator protocol, and exception propagation. Exceptions travel as
//          explicit frame-unwind state rather than Go panic/recover, the same way the teacher's
//          evaluator threaded *object.Error values back up through plain return values instead of
//          using Go's own error-handling primitives for script-level failures.
// ==============================================================================================

package vm

import (
	"fmt"

	"wings/code"
	"wings/gc"
	"wings/object"
	"wings/wingserr"
)

const maxFrames = 1024
const stackSize = 4096

// Frame is one activation record: the function being executed, its
// instruction pointer, and its name-keyed local/cell bindings.
type Frame struct {
	fn      *object.CompiledFunction
	globals *object.AttrTable
	locals  map[string]object.Object
	cells   map[string]*object.Cell
	ip      int
	funcObj *object.Function
}

func newFrame(fn *object.Function, globals *object.AttrTable) *Frame {
	return &Frame{
		fn:      fn.Code,
		globals: globals,
		locals:  map[string]object.Object{},
		cells:   map[string]*object.Cell{},
		funcObj: fn,
	}
}

func (f *Frame) instructions() code.Instructions { return f.fn.Instructions }

// excHandler is a pushed try/except target: the bytecode offset of its
// handler sequence and the operand-stack depth to restore to when unwinding.
type excHandler struct {
	handlerIP  int
	stackDepth int
	frameDepth int
}

// VM executes compiled bytecode against a shared global attribute table and
// object heap, reporting script-level failures as *object.Instance
// exceptions rather than Go errors.
type VM struct {
	globals    *object.AttrTable
	gc         *gc.Collector
	stack      []object.Object
	sp         int
	frames     []*Frame
	frameIdx   int
	handlers   []excHandler
	activeExc  object.Object
	traceback  wingserr.Traceback
	RecursionLimit int

	// Importer resolves "import name" / "from name import ..." to a Module;
	// nil means the context never installed a module host, in which case
	// both import opcodes raise ImportError. Set via SetImporter, normally
	// by host.Context wiring up a modhost.Host.
	Importer func(name string) (*object.Module, error)
}

// SetImporter installs the module resolver OpImport/OpImportFrom call.
func (vm *VM) SetImporter(importer func(name string) (*object.Module, error)) {
	vm.Importer = importer
}

// New builds a VM with a fresh global attribute table; callers embedding the
// interpreter normally get one from host.Context instead of calling this
// directly.
func New(globals *object.AttrTable, collector *gc.Collector) *VM {
	return &VM{
		globals:        globals,
		gc:             collector,
		stack:          make([]object.Object, stackSize),
		frames:         make([]*Frame, maxFrames),
		RecursionLimit: 1000,
	}
}

func (vm *VM) push(obj object.Object) error {
	if vm.sp >= stackSize {
		return vm.newRuntimeError("stack overflow")
	}
	vm.stack[vm.sp] = obj
	vm.sp++
	return nil
}

func (vm *VM) pop() object.Object {
	vm.sp--
	obj := vm.stack[vm.sp]
	vm.stack[vm.sp] = nil
	return obj
}

func (vm *VM) top() object.Object { return vm.stack[vm.sp-1] }

func (vm *VM) currentFrame() *Frame { return vm.frames[vm.frameIdx-1] }

func (vm *VM) pushFrame(f *Frame) error {
	if vm.frameIdx >= maxFrames || vm.frameIdx >= vm.RecursionLimit {
		return vm.newRuntimeError("maximum recursion depth exceeded")
	}
	vm.frames[vm.frameIdx] = f
	vm.frameIdx++
	return nil
}

func (vm *VM) popFrame() *Frame {
	vm.frameIdx--
	f := vm.frames[vm.frameIdx]
	vm.frames[vm.frameIdx] = nil
	return f
}

// Run executes a top-level compiled module function to completion against
// the vm's own global namespace.
func (vm *VM) Run(fn *object.CompiledFunction) (object.Object, error) {
	return vm.RunModule(fn, vm.globals)
}

// RunModule executes fn to completion against globals instead of the vm's
// own globals, the way importing a source file runs its top-level code
// against a fresh per-module namespace that only inherits from the shared
// builtins table rather than polluting (or reading from) the importing
// script's globals.
func (vm *VM) RunModule(fn *object.CompiledFunction, globals *object.AttrTable) (object.Object, error) {
	top := &object.Function{Code: fn, Globals: globals}
	frame := newFrame(top, globals)
	if err := vm.pushFrame(frame); err != nil {
		return nil, err
	}
	return vm.runLoop()
}

// runLoop is the main fetch/decode/execute cycle; it returns either the
// top-level function's return value, or a Go error wrapping an unhandled
// script exception (its traceback is captured in vm.traceback).
func (vm *VM) runLoop() (object.Object, error) {
	for vm.frameIdx > 0 {
		frame := vm.currentFrame()
		ins := frame.instructions()
		if frame.ip >= len(ins) {
			vm.popFrame()
			if err := vm.push(object.None); err != nil {
				return nil, err
			}
			continue
		}
		op := code.Opcode(ins[frame.ip])
		operands, width := code.ReadOperands(op, ins[frame.ip+1:])
		frame.ip += 1 + width

		result, err := vm.execute(op, operands, frame)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}
	if vm.sp > 0 {
		return vm.pop(), nil
	}
	return object.None, nil
}

// execute runs a single instruction. A non-nil returned Object signals the
// whole program finished (only reachable when the outermost frame returns).
func (vm *VM) execute(op code.Opcode, operands []int, frame *Frame) (object.Object, error) {
	switch op {
	case code.OpConstant:
		return nil, vm.push(frame.fn.Constants[operands[0]])
	case code.OpNone:
		return nil, vm.push(object.None)
	case code.OpTrue:
		return nil, vm.push(object.True)
	case code.OpFalse:
		return nil, vm.push(object.False)
	case code.OpPop:
		vm.pop()
		return nil, nil
	case code.OpDup:
		return nil, vm.push(vm.top())

	case code.OpAdd, code.OpSub, code.OpMul, code.OpDiv, code.OpMod, code.OpPow,
		code.OpBitAnd, code.OpBitOr, code.OpBitXor, code.OpShl, code.OpShr:
		return nil, vm.execBinaryOp(op)

	case code.OpEqual, code.OpNotEqual, code.OpGreaterThan, code.OpGreaterEqual:
		return nil, vm.execComparison(op)
	case code.OpContains:
		return nil, vm.execContains()
	case code.OpIs:
		right := vm.pop()
		left := vm.pop()
		return nil, vm.push(object.NativeBool(left == right))

	case code.OpNeg:
		return nil, vm.execNeg()
	case code.OpNot:
		v := vm.pop()
		b, err := vm.truthy(v)
		if err != nil {
			return nil, err
		}
		return nil, vm.push(object.NativeBool(!b))
	case code.OpBitNot:
		return nil, vm.execBitNot()

	case code.OpLoadLocal:
		name := vm.constName(frame, operands[0])
		val, ok := frame.locals[name]
		if !ok {
			return nil, vm.raiseNameError(name)
		}
		return nil, vm.push(val)
	case code.OpDefineLocal, code.OpStoreLocal:
		name := vm.constName(frame, operands[0])
		frame.locals[name] = vm.pop()
		return nil, nil
	case code.OpLoadGlobal:
		name := vm.constName(frame, operands[0])
		val, ok := frame.globals.Get(name)
		if !ok {
			return nil, vm.raiseNameError(name)
		}
		return nil, vm.push(val)
	case code.OpStoreGlobal:
		name := vm.constName(frame, operands[0])
		frame.globals.Set(name, vm.pop())
		return nil, nil
	case code.OpLoadCell, code.OpLoadFree:
		name := vm.constName(frame, operands[0])
		cell, ok := frame.cells[name]
		if !ok {
			return nil, vm.raiseNameError(name)
		}
		return nil, vm.push(cell.Value)
	case code.OpStoreCell:
		name := vm.constName(frame, operands[0])
		val := vm.pop()
		if cell, ok := frame.cells[name]; ok {
			cell.Value = val
		} else {
			frame.cells[name] = object.NewCell(val)
		}
		return nil, nil

	case code.OpBuildTuple:
		n := operands[0]
		elems := vm.popN(n)
		return nil, vm.push(&object.Tuple{Elements: elems})
	case code.OpBuildList:
		n := operands[0]
		elems := vm.popN(n)
		lst := &object.List{Elements: elems}
		vm.track(lst)
		return nil, vm.push(lst)
	case code.OpBuildSet:
		n := operands[0]
		elems := vm.popN(n)
		s := object.NewSet()
		for _, e := range elems {
			if err := s.Add(e); err != nil {
				return nil, vm.raiseTypeError("%s", err.Error())
			}
		}
		vm.track(s)
		return nil, vm.push(s)
	case code.OpBuildDict:
		n := operands[0]
		d := object.NewDict()
		pairs := vm.popN(2 * n)
		for i := 0; i < len(pairs); i += 2 {
			k, v := pairs[i], pairs[i+1]
			if err := d.Set(k, v); err != nil {
				return nil, vm.raiseTypeError("%s", err.Error())
			}
		}
		vm.track(d)
		return nil, vm.push(d)

	case code.OpGetIndex:
		idx := vm.pop()
		left := vm.pop()
		val, err := vm.getIndex(left, idx)
		if err != nil {
			return nil, err
		}
		return nil, vm.push(val)
	case code.OpSetIndex:
		idx := vm.pop()
		left := vm.pop()
		val := vm.pop()
		if err := vm.setIndex(left, idx, val); err != nil {
			return nil, err
		}
		return nil, nil
	case code.OpGetSlice:
		step := vm.pop()
		stop := vm.pop()
		start := vm.pop()
		left := vm.pop()
		val, err := vm.getSlice(left, start, stop, step)
		if err != nil {
			return nil, err
		}
		return nil, vm.push(val)
	case code.OpGetAttr:
		name := vm.constName(frame, operands[0])
		left := vm.pop()
		val, err := vm.getAttr(left, name)
		if err != nil {
			return nil, err
		}
		return nil, vm.push(val)
	case code.OpSetAttr:
		name := vm.constName(frame, operands[0])
		left := vm.pop()
		val := vm.pop()
		if err := vm.setAttr(left, name, val); err != nil {
			return nil, err
		}
		return nil, nil

	case code.OpJump:
		frame.ip = operands[0]
		return nil, nil
	case code.OpJumpIfFalse:
		cond := vm.pop()
		b, err := vm.truthy(cond)
		if err != nil {
			return nil, err
		}
		if !b {
			frame.ip = operands[0]
		}
		return nil, nil
	case code.OpJumpIfTrue:
		cond := vm.pop()
		b, err := vm.truthy(cond)
		if err != nil {
			return nil, err
		}
		if b {
			frame.ip = operands[0]
		}
		return nil, nil

	case code.OpCall:
		return nil, vm.execCall(operands[0], nil)
	case code.OpCallKw:
		names := vm.constAt(frame, operands[1]).(*object.Tuple)
		kwNames := make([]string, len(names.Elements))
		for i, n := range names.Elements {
			kwNames[i] = n.(*object.String).Value
		}
		return nil, vm.execCall(operands[0], kwNames)

	case code.OpReturnValue:
		val := vm.pop()
		vm.popFrame()
		if vm.frameIdx == 0 {
			return val, nil
		}
		return nil, vm.push(val)
	case code.OpReturnNone:
		vm.popFrame()
		if vm.frameIdx == 0 {
			return object.None, nil
		}
		return nil, vm.push(object.None)

	case code.OpMakeFunction:
		cf := vm.constAt(frame, operands[0]).(*object.CompiledFunction)
		fn := &object.Function{Code: cf, Free: vm.captureFree(cf, frame), Globals: frame.globals}
		vm.track(fn)
		return nil, vm.push(fn)
	case code.OpMakeClass:
		cf := vm.constAt(frame, operands[0]).(*object.CompiledFunction)
		numBases := operands[1]
		bases := vm.popN(numBases)
		var base *object.Class
		if len(bases) > 0 {
			if b, ok := bases[0].(*object.Class); ok {
				base = b
			}
		}
		class := object.NewClass(cf.Name, base)
		bodyFn := &object.Function{Code: cf, Free: vm.captureFree(cf, frame), Globals: frame.globals}
		if err := vm.execClassBody(bodyFn, class.Attrs); err != nil {
			return nil, err
		}
		vm.track(class)
		return nil, vm.push(class)

	case code.OpGetIter:
		return nil, vm.execGetIter()
	case code.OpForIter:
		return nil, vm.execForIter(operands[0], frame)

	case code.OpSetupTry:
		vm.handlers = append(vm.handlers, excHandler{
			handlerIP:  operands[0],
			stackDepth: vm.sp,
			frameDepth: vm.frameIdx,
		})
		return nil, nil
	case code.OpPopTry:
		if len(vm.handlers) > 0 {
			vm.handlers = vm.handlers[:len(vm.handlers)-1]
		}
		return nil, nil
	case code.OpRaise:
		excVal := vm.pop()
		return nil, vm.raise(excVal)
	case code.OpPushExcInfo:
		return nil, vm.push(vm.activeExc)
	case code.OpPopExcInfo:
		vm.activeExc = nil
		return nil, nil
	case code.OpExceptionMatches:
		typ := vm.pop()
		excVal := vm.pop()
		return nil, vm.push(object.NativeBool(vm.exceptionMatches(excVal, typ)))

	case code.OpImport:
		name := vm.constName(frame, operands[0])
		mod, err := vm.resolveImport(name)
		if err != nil {
			return nil, err
		}
		return nil, vm.push(mod)
	case code.OpImportFrom:
		modName := vm.constName(frame, operands[0])
		attr := vm.constName(frame, operands[1])
		mod, err := vm.resolveImport(modName)
		if err != nil {
			return nil, err
		}
		val, ok := mod.Attrs.Get(attr)
		if !ok {
			return nil, vm.raiseFromBuiltin(&object.BuiltinError{Class: object.ImportErrorClass,
				Msg: fmt.Sprintf("cannot import name '%s' from '%s'", attr, modName)})
		}
		return nil, vm.push(val)

	case code.OpCompAppend:
		return nil, vm.execCompAppend(operands[0])
	case code.OpBuildStringFmt:
		return nil, vm.newRuntimeError("str.format is implemented by the builtins package, not the vm")

	default:
		return nil, vm.newRuntimeError("unknown opcode %s", op)
	}
}

func (vm *VM) popN(n int) []object.Object {
	out := make([]object.Object, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = vm.pop()
	}
	return out
}

func (vm *VM) constName(frame *Frame, idx int) string {
	return frame.fn.Constants[idx].(*object.String).Value
}

func (vm *VM) constAt(frame *Frame, idx int) object.Object {
	return frame.fn.Constants[idx]
}

// captureFree snapshots, from the currently executing frame, the cells a
// newly created function or class body closes over. A name with no cell yet
// (e.g. an outer local that hasn't been assigned) gets a fresh empty one the
// outer frame starts sharing too, so a later outer assignment is still seen.
func (vm *VM) captureFree(cf *object.CompiledFunction, frame *Frame) []*object.Cell {
	free := make([]*object.Cell, len(cf.FreeNames))
	for i, n := range cf.FreeNames {
		if cell, ok := frame.cells[n]; ok {
			free[i] = cell
		} else {
			free[i] = object.NewCell(object.None)
			frame.cells[n] = free[i]
		}
	}
	return free
}

func (vm *VM) track(obj object.Object) {
	if vm.gc != nil {
		vm.gc.Track(obj)
	}
}

// GCRoots implements gc.Root: the live operand stack, every active frame's
// locals/cells/closure, the shared globals, and whatever exception is
// mid-unwind. host.Context embeds this as its own GCRoots, adding anything
// the host side has separately protected.
func (vm *VM) GCRoots() []object.Object {
	roots := make([]object.Object, 0, vm.sp+16)
	for i := 0; i < vm.sp; i++ {
		roots = append(roots, vm.stack[i])
	}
	for i := 0; i < vm.frameIdx; i++ {
		f := vm.frames[i]
		for _, v := range f.locals {
			roots = append(roots, v)
		}
		for _, c := range f.cells {
			roots = append(roots, c)
		}
		if f.funcObj != nil {
			roots = append(roots, f.funcObj)
		}
	}
	roots = append(roots, vm.globals.Values()...)
	if vm.activeExc != nil {
		roots = append(roots, vm.activeExc)
	}
	return roots
}

// IsTruthy exposes the vm's truthiness rule to native builtins (bool(), and
// / or short-circuit helpers) that aren't a bytecode OpJumpIfFalse site.
func (vm *VM) IsTruthy(obj object.Object) (bool, error) { return vm.truthy(obj) }

// truthy implements native fast-path truthiness, falling back to a custom
// __bool__ (or, failing that, __len__) for an Instance that defines one.
func (vm *VM) truthy(obj object.Object) (bool, error) {
	if inst, ok := obj.(*object.Instance); ok {
		if boolFn, ok := vm.TryGetAttr(inst, "__bool__"); ok {
			result, err := vm.callValueSync(boolFn, nil, nil)
			if err != nil {
				return false, err
			}
			return vm.IsTruthy(result)
		}
		if lenFn, ok := vm.TryGetAttr(inst, "__len__"); ok {
			result, err := vm.callValueSync(lenFn, nil, nil)
			if err != nil {
				return false, err
			}
			return vm.IsTruthy(result)
		}
		return true, nil
	}
	return isTruthy(obj), nil
}

func isTruthy(obj object.Object) bool {
	switch v := obj.(type) {
	case *object.Bool:
		return v.Value
	case *object.NoneType:
		return false
	case *object.Int:
		return v.Value != 0
	case *object.Float:
		return v.Value != 0
	case *object.String:
		return v.Value != ""
	case *object.List:
		return len(v.Elements) != 0
	case *object.Tuple:
		return len(v.Elements) != 0
	case *object.Dict:
		return v.Len() != 0
	case *object.Set:
		return v.Len() != 0
	}
	return true
}

func (vm *VM) newRuntimeError(format string, args ...interface{}) error {
	return fmt.Errorf("vm: %s", fmt.Sprintf(format, args...))
}

// resolveImport delegates to the installed Importer, raising ImportError
// (a catchable script exception, not a Go-level vm fault) either when no
// importer was installed or when the importer itself reports failure.
func (vm *VM) resolveImport(name string) (*object.Module, error) {
	if vm.Importer == nil {
		return nil, vm.raiseFromBuiltin(&object.BuiltinError{Class: object.ImportErrorClass,
			Msg: fmt.Sprintf("no module named '%s'", name)})
	}
	mod, err := vm.Importer(name)
	if err != nil {
		if _, ok := err.(*object.BuiltinError); ok {
			return nil, vm.raiseFromBuiltin(err)
		}
		return nil, vm.raiseFromBuiltin(&object.BuiltinError{Class: object.ImportErrorClass, Msg: err.Error()})
	}
	return mod, nil
}
