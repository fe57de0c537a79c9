// ==============================================================================================
// FILE: vm/exceptions.go
// ==============================================================================================
// PACKAGE: vm
// PURPOSE: Exception construction and the unwind protocol. A raised exception looks for the
//          nearest pushed try handler (vm.handlers) and jumps the owning frame straight to its
//          except-dispatch sequence; with nothing left to catch it, it becomes a Go error carrying
//          a traceback, the same way a script-level failure surfaces to host.Context.Invoke.
// ==============================================================================================

package vm

import (
	"fmt"

	"wings/object"
	"wings/wingserr"
)

// raise is the single place that actually propagates an exception: it either
// finds a handler and resumes execution there, or runs out of handlers and
// turns the exception into a terminal Go error.
func (vm *VM) raise(excVal object.Object) error {
	for len(vm.handlers) > 0 {
		h := vm.handlers[len(vm.handlers)-1]
		vm.handlers = vm.handlers[:len(vm.handlers)-1]

		for vm.frameIdx > h.frameDepth {
			vm.popFrame()
		}
		for vm.sp > h.stackDepth {
			vm.pop()
		}
		vm.activeExc = excVal
		vm.currentFrame().ip = h.handlerIP
		return nil
	}

	if vm.frameIdx > 0 {
		f := vm.currentFrame()
		vm.traceback.Push(wingserr.Frame{FuncName: f.fn.Name, Pos: f.fn.Lines.PositionFor(f.ip)})
	}
	vm.activeExc = excVal
	return fmt.Errorf("%s\n%s: %s", vm.traceback.String(), exceptionClassName(excVal), object.ExceptionMessage(excVal))
}

// CurrentException returns the exception object from the most recent raise,
// caught or not: a try/except clause reads it while its handler runs, and
// host.Context.CurrentException exposes the same value after Invoke returns
// an error, so the host can inspect the script-level exception directly
// instead of parsing the Go error's message.
func (vm *VM) CurrentException() object.Object { return vm.activeExc }

// FormatTraceback renders the accumulated traceback from the most recent
// uncaught exception, empty if none has propagated out of the vm yet.
func (vm *VM) FormatTraceback() string { return vm.traceback.String() }

func exceptionClassName(excVal object.Object) string {
	if inst, ok := excVal.(*object.Instance); ok {
		return inst.Class.Name
	}
	return string(excVal.Type())
}

// exceptionMatches implements the isinstance-style check an `except Type:`
// clause needs: excVal matches typ if excVal is an instance of typ or any of
// typ's subclasses.
func (vm *VM) exceptionMatches(excVal, typ object.Object) bool {
	inst, ok := excVal.(*object.Instance)
	if !ok {
		return false
	}
	class, ok := typ.(*object.Class)
	if !ok {
		return false
	}
	return inst.Class.IsSubclassOf(class)
}

func (vm *VM) raiseNameError(name string) error {
	return vm.raise(object.NewException(object.NameErrorClass, fmt.Sprintf("name '%s' is not defined", name)))
}

func (vm *VM) raiseTypeError(format string, args ...interface{}) error {
	return vm.raise(object.NewException(object.TypeErrorClass, fmt.Sprintf(format, args...)))
}

func (vm *VM) raiseZeroDivision() error {
	return vm.raise(object.NewException(object.ZeroDivisionErrorClass, "division by zero"))
}

func (vm *VM) raiseIndexError(format string, args ...interface{}) error {
	return vm.raise(object.NewException(object.IndexErrorClass, fmt.Sprintf(format, args...)))
}

func (vm *VM) raiseKeyError(key object.Object) error {
	return vm.raise(object.NewException(object.KeyErrorClass, key.Inspect()))
}

func (vm *VM) raiseAttributeError(receiver object.Object, name string) error {
	return vm.raise(object.NewException(object.AttributeErrorClass,
		fmt.Sprintf("'%s' object has no attribute '%s'", receiver.Type(), name)))
}

func (vm *VM) raiseRuntimeError(format string, args ...interface{}) error {
	return vm.raise(object.NewException(object.RuntimeErrorClass, fmt.Sprintf(format, args...)))
}

func (vm *VM) raiseStopIteration() error {
	return vm.raise(object.NewException(object.StopIteration, "iteration has stopped"))
}

// raiseFromBuiltin converts a Go error returned by a Builtin call into the
// requested script exception class, defaulting to RuntimeError when the
// builtin didn't ask for a specific one.
func (vm *VM) raiseFromBuiltin(err error) error {
	if be, ok := err.(*object.BuiltinError); ok {
		return vm.raise(object.NewException(be.Class, be.Msg))
	}
	return vm.raiseRuntimeError("%s", err.Error())
}
