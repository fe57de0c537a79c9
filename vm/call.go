// ==============================================================================================
// FILE: vm/call.go
// ==============================================================================================
// PACKAGE: vm
// PURPOSE: The call protocol: argument binding (positional/default/*args/**kwargs) against a
//          CompiledFunction's parameter table, dispatch across the callable kinds the vm knows
//          about (Function, Builtin, BoundMethod, Class), class-body execution, and the native
//          iterator protocol OpGetIter/OpForIter drive.
// ==============================================================================================

package vm

import (
	"wings/code"
	"wings/object"
)

// execCall pops argCount positional arguments and (if kwNames is non-empty)
// one keyword value per name, then the callee itself, and dispatches it.
func (vm *VM) execCall(argCount int, kwNames []string) error {
	var kwargs map[string]object.Object
	if len(kwNames) > 0 {
		kwVals := vm.popN(len(kwNames))
		kwargs = make(map[string]object.Object, len(kwNames))
		for i, n := range kwNames {
			kwargs[n] = kwVals[i]
		}
	}
	args := vm.popN(argCount)
	callee := vm.pop()
	return vm.callValue(callee, args, kwargs)
}

// callValue dispatches a call across the callable object kinds. For a script
// Function it pushes a new Frame and lets the main loop run its body; for
// everything else it completes synchronously and pushes the result itself.
func (vm *VM) callValue(callee object.Object, args []object.Object, kwargs map[string]object.Object) error {
	switch fn := callee.(type) {
	case *object.Function:
		return vm.pushCallFrame(fn, args, kwargs)
	case *object.Builtin:
		result, err := fn.Fn(args, kwargs)
		if err != nil {
			return vm.raiseFromBuiltin(err)
		}
		return vm.push(result)
	case *object.BoundMethod:
		return vm.callValue(fn.Method, append([]object.Object{fn.Receiver}, args...), kwargs)
	case *object.Class:
		return vm.instantiate(fn, args, kwargs)
	}
	return vm.raiseTypeError("'%s' object is not callable", callee.Type())
}

// pushCallFrame binds args/kwargs against fn and pushes its activation
// record; raised bindArgs failures are reported as pushCallFrame's own error
// (nil if a handler already caught and redirected execution).
func (vm *VM) pushCallFrame(fn *object.Function, args []object.Object, kwargs map[string]object.Object) error {
	locals, raised, err := vm.bindArgs(fn.Code, args, kwargs)
	if raised {
		return err
	}
	frame := newFrame(fn, fn.Globals)
	for i, n := range fn.Code.FreeNames {
		frame.cells[n] = fn.Free[i]
	}
	if fn.Code.ParamsAreCells {
		for name, val := range locals {
			frame.cells[name] = object.NewCell(val)
		}
	} else {
		frame.locals = locals
	}
	return vm.pushFrame(frame)
}

// bindArgs binds positional and keyword arguments against cf's parameter
// table. raised reports whether argument mismatch raised a TypeError: when
// true, err is vm.raise's own return value (nil if a handler already caught
// it and redirected execution, non-nil if it propagated as a fatal error) and
// the caller must not proceed with the call.
func (vm *VM) bindArgs(cf *object.CompiledFunction, args []object.Object, kwargs map[string]object.Object) (locals map[string]object.Object, raised bool, err error) {
	n := cf.NumParams
	posNames := cf.ParamNames[:n]
	defaultsStart := n - len(cf.Defaults)

	locals = make(map[string]object.Object, len(cf.ParamNames))
	for i := 0; i < n && i < len(args); i++ {
		locals[posNames[i]] = args[i]
	}
	var extraPos []object.Object
	if len(args) > n {
		extraPos = append(extraPos, args[n:]...)
	}

	// kwargs is consumed from a copy; whatever's left after matching named
	// parameters either fills **kwargs or is rejected as unexpected.
	remaining := make(map[string]object.Object, len(kwargs))
	for k, v := range kwargs {
		remaining[k] = v
	}

	for i := 0; i < n; i++ {
		name := posNames[i]
		if _, ok := locals[name]; ok {
			continue
		}
		if v, ok := remaining[name]; ok {
			locals[name] = v
			delete(remaining, name)
			continue
		}
		if i >= defaultsStart {
			locals[name] = cf.Defaults[i-defaultsStart]
			continue
		}
		return nil, true, vm.raiseTypeError("%s() missing required argument: '%s'", cf.Name, name)
	}

	if cf.StarArgIndex >= 0 {
		locals[cf.ParamNames[cf.StarArgIndex]] = &object.Tuple{Elements: extraPos}
	} else if len(extraPos) > 0 {
		return nil, true, vm.raiseTypeError("%s() takes %d positional argument(s) but %d were given", cf.Name, n, len(args))
	}

	if cf.DoubleStarArgIndex >= 0 {
		d := object.NewDict()
		for k, v := range remaining {
			d.Set(&object.String{Value: k}, v)
		}
		locals[cf.ParamNames[cf.DoubleStarArgIndex]] = d
	} else {
		for k := range remaining {
			return nil, true, vm.raiseTypeError("%s() got an unexpected keyword argument '%s'", cf.Name, k)
		}
	}

	return locals, false, nil
}

// instantiate builds a new Instance and runs its __init__ (if the class
// defines one) with the instance bound as the receiver.
func (vm *VM) instantiate(class *object.Class, args []object.Object, kwargs map[string]object.Object) error {
	inst := object.NewInstance(class)
	vm.track(inst)
	init, ok := class.Attrs.Get("__init__")
	if !ok {
		if len(args) > 0 || len(kwargs) > 0 {
			return vm.raiseTypeError("%s() takes no arguments", class.Name)
		}
		return vm.push(inst)
	}
	if _, err := vm.callValueSync(init, append([]object.Object{inst}, args...), kwargs); err != nil {
		return err
	}
	return vm.push(inst)
}

// execClassBody executes a class body's compiled function and copies every
// binding it produced (methods, class-level assignments) into attrs, the
// class's own attribute table.
func (vm *VM) execClassBody(bodyFn *object.Function, attrs *object.AttrTable) error {
	baseDepth := vm.frameIdx
	baseSp := vm.sp
	if err := vm.pushCallFrame(bodyFn, nil, nil); err != nil {
		return err
	}
	frame := vm.currentFrame()
	if err := vm.drainTo(baseDepth); err != nil {
		return err
	}
	if vm.sp > baseSp {
		vm.pop() // the class body's own trailing return value, unused
	}
	for name, val := range frame.locals {
		attrs.Set(name, val)
	}
	for name, cell := range frame.cells {
		attrs.Set(name, cell.Value)
	}
	return nil
}

// execGetIter pops an iterable and pushes an iterator over it: a snapshot
// Iterator for the native containers, or, for a custom object, whatever its
// __iter__ method returns.
func (vm *VM) execGetIter() error {
	val := vm.pop()
	it, err := vm.newIterator(val)
	if err != nil {
		return err
	}
	return vm.push(it)
}

func (vm *VM) newIterator(val object.Object) (object.Object, error) {
	switch v := val.(type) {
	case *object.Iterator:
		return v, nil
	case *object.List:
		return object.NewIterator(append([]object.Object{}, v.Elements...)), nil
	case *object.Tuple:
		return object.NewIterator(append([]object.Object{}, v.Elements...)), nil
	case *object.Set:
		return object.NewIterator(v.Values()), nil
	case *object.Dict:
		return object.NewIterator(v.Keys()), nil
	case *object.String:
		runes := []rune(v.Value)
		elems := make([]object.Object, len(runes))
		for i, r := range runes {
			elems[i] = &object.String{Value: string(r)}
		}
		return object.NewIterator(elems), nil
	case *object.Instance:
		iterFn, err := vm.getAttr(v, "__iter__")
		if err != nil {
			return nil, err
		}
		return vm.callValueSync(iterFn, nil, nil)
	}
	return nil, vm.raiseTypeError("'%s' object is not iterable", val.Type())
}

// execForIter peeks the iterator on top of the stack: on success it pushes
// the next value (leaving the iterator beneath it for the next iteration);
// on exhaustion it leaves the iterator in place and jumps to exitTarget,
// which the compiler always points at the OpPop that discards it.
func (vm *VM) execForIter(exitTarget int, frame *Frame) error {
	switch it := vm.top().(type) {
	case *object.Iterator:
		val, ok := it.Next()
		if !ok {
			frame.ip = exitTarget
			return nil
		}
		return vm.push(val)
	case *object.Instance:
		nextFn, err := vm.getAttr(it, "__next__")
		if err != nil {
			return err
		}
		val, excVal, err := vm.callValueCatching(nextFn, nil, nil)
		if err != nil {
			return err
		}
		if excVal != nil {
			if vm.exceptionMatches(excVal, object.StopIteration) {
				frame.ip = exitTarget
				return nil
			}
			return vm.raise(excVal)
		}
		return vm.push(val)
	}
	return vm.raiseTypeError("'%s' object is not an iterator", vm.top().Type())
}

// callValueSync calls callee (any callable kind) to completion and returns
// its result directly, for call sites (__init__, __iter__) that aren't a
// bytecode OpCall and need the value back rather than pushed onto the stack.
func (vm *VM) callValueSync(callee object.Object, args []object.Object, kwargs map[string]object.Object) (object.Object, error) {
	switch fn := callee.(type) {
	case *object.Builtin:
		result, err := fn.Fn(args, kwargs)
		if err != nil {
			return nil, vm.raiseFromBuiltin(err)
		}
		return result, nil
	case *object.BoundMethod:
		return vm.callValueSync(fn.Method, append([]object.Object{fn.Receiver}, args...), kwargs)
	case *object.Function:
		baseDepth := vm.frameIdx
		baseSp := vm.sp
		if err := vm.pushCallFrame(fn, args, kwargs); err != nil {
			return nil, err
		}
		if err := vm.drainTo(baseDepth); err != nil {
			return nil, err
		}
		if vm.sp > baseSp {
			return vm.pop(), nil
		}
		return object.None, nil
	}
	return nil, vm.raiseTypeError("'%s' object is not callable", callee.Type())
}

// callValueCatching is callValueSync's except-aware sibling, used by
// execForIter's __next__ protocol: rather than letting an unhandled
// StopIteration (or any other exception) propagate past this call, it
// reports the exception value directly so the caller can test it without a
// real try/except frame in the bytecode.
func (vm *VM) callValueCatching(callee object.Object, args []object.Object, kwargs map[string]object.Object) (result object.Object, excVal object.Object, err error) {
	baseDepth := vm.frameIdx
	baseSp := vm.sp
	vm.handlers = append(vm.handlers, excHandler{handlerIP: -1, stackDepth: baseSp, frameDepth: baseDepth})
	handlerCount := len(vm.handlers)

	sentinelFired := func() (object.Object, object.Object, error, bool) {
		if len(vm.handlers) >= handlerCount {
			return nil, nil, nil, false
		}
		// our sentinel handler fired: the exception unwound down to exactly
		// this call (frame.ip on the caller's frame was left pointing at
		// our bogus handlerIP, but execForIter always overwrites it before
		// resuming that frame) and activeExc now holds the raised value.
		exc := vm.activeExc
		vm.activeExc = nil
		return nil, exc, nil, true
	}

	if err := vm.callValueInto(callee, args, kwargs); err != nil {
		return nil, nil, err
	}
	if r, e, err, fired := sentinelFired(); fired {
		return r, e, err
	}
	if err := vm.drainTo(baseDepth); err != nil {
		return nil, nil, err
	}
	if r, e, err, fired := sentinelFired(); fired {
		return r, e, err
	}
	vm.handlers = vm.handlers[:handlerCount-1]
	if vm.sp > baseSp {
		return vm.pop(), nil, nil
	}
	return object.None, nil, nil
}

// callValueInto is callValue without the Class/instantiate case (not needed
// by __next__/__iter__ call sites), used as callValueCatching's first step
// before draining the nested frame stack.
func (vm *VM) callValueInto(callee object.Object, args []object.Object, kwargs map[string]object.Object) error {
	switch fn := callee.(type) {
	case *object.Builtin:
		result, err := fn.Fn(args, kwargs)
		if err != nil {
			return vm.raiseFromBuiltin(err)
		}
		return vm.push(result)
	case *object.BoundMethod:
		return vm.callValueInto(fn.Method, append([]object.Object{fn.Receiver}, args...), kwargs)
	case *object.Function:
		return vm.pushCallFrame(fn, args, kwargs)
	}
	return vm.raiseTypeError("'%s' object is not callable", callee.Type())
}

// Call invokes any callable value with the given arguments and returns its
// result, for native builtins that need to call back into script code (a
// sort key, a map/filter callback, a comparison) without going through a
// bytecode OpCall.
func (vm *VM) Call(callee object.Object, args []object.Object, kwargs map[string]object.Object) (object.Object, error) {
	return vm.callValueSync(callee, args, kwargs)
}

// Iter returns an iterator over val: a snapshot Iterator for a native
// container, or the result of calling a custom __iter__.
func (vm *VM) Iter(val object.Object) (object.Object, error) {
	return vm.newIterator(val)
}

// Next advances it. ok is false when the iterator is exhausted (a raised
// StopIteration was caught, not propagated); err is non-nil for any other
// failure, including one that propagated past an unrelated exception.
func (vm *VM) Next(it object.Object) (val object.Object, ok bool, err error) {
	switch v := it.(type) {
	case *object.Iterator:
		val, ok = v.Next()
		return val, ok, nil
	case *object.Instance:
		nextFn, err := vm.getAttr(v, "__next__")
		if err != nil {
			return nil, false, err
		}
		result, excVal, err := vm.callValueCatching(nextFn, nil, nil)
		if err != nil {
			return nil, false, err
		}
		if excVal != nil {
			if vm.exceptionMatches(excVal, object.StopIteration) {
				return nil, false, nil
			}
			return nil, false, vm.raise(excVal)
		}
		return result, true, nil
	}
	return nil, false, vm.raiseTypeError("'%s' object is not an iterator", it.Type())
}

// drainTo runs the main fetch/execute cycle until the frame stack is back
// down to depth; it's how the synchronous call helpers above finish a nested
// script call before handing its result back to non-bytecode Go code.
func (vm *VM) drainTo(depth int) error {
	for vm.frameIdx > depth {
		f := vm.currentFrame()
		ins := f.instructions()
		if f.ip >= len(ins) {
			vm.popFrame()
			if vm.frameIdx >= depth {
				vm.push(object.None)
			}
			continue
		}
		op := code.Opcode(ins[f.ip])
		operands, width := code.ReadOperands(op, ins[f.ip+1:])
		f.ip += 1 + width
		result, err := vm.execute(op, operands, f)
		if err != nil {
			return err
		}
		if result != nil {
			return vm.push(result)
		}
	}
	return nil
}
