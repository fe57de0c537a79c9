// ==============================================================================================
// FILE: object/exceptions.go
// ==============================================================================================
// PACKAGE: object
// PURPOSE: The built-in exception hierarchy. These are ordinary Class/Instance values (see
//          class.go) so script code can subclass them, catch them by type with the vm's
//          OpExceptionMatches, and inspect them with plain attribute access; nothing about
//          exception handling needs a separate runtime representation.
// ==============================================================================================

package object

// NewExceptionClass builds one exception type, chained to base in the class
// hierarchy the same way any script-level subclass would be.
func NewExceptionClass(name string, base *Class) *Class {
	return NewClass(name, base)
}

// The built-in exception tree. Host code and the builtins bootstrap register
// further subclasses (e.g. a module's own error types) onto these.
var (
	BaseException      = NewExceptionClass("BaseException", nil)
	ExceptionClass     = NewExceptionClass("Exception", BaseException)
	TypeErrorClass     = NewExceptionClass("TypeError", ExceptionClass)
	NameErrorClass     = NewExceptionClass("NameError", ExceptionClass)
	IndexErrorClass    = NewExceptionClass("IndexError", ExceptionClass)
	KeyErrorClass      = NewExceptionClass("KeyError", ExceptionClass)
	AttributeErrorClass = NewExceptionClass("AttributeError", ExceptionClass)
	ValueErrorClass    = NewExceptionClass("ValueError", ExceptionClass)
	ZeroDivisionErrorClass = NewExceptionClass("ZeroDivisionError", ExceptionClass)
	RuntimeErrorClass  = NewExceptionClass("RuntimeError", ExceptionClass)
	ImportErrorClass   = NewExceptionClass("ImportError", ExceptionClass)
	StopIteration      = NewExceptionClass("StopIteration", ExceptionClass)
	RecursionErrorClass = NewExceptionClass("RecursionError", RuntimeErrorClass)
)

// NewException builds an instance of class carrying a single "args" tuple,
// the way the reference interpreter's BaseException.__init__ does, plus a
// "message" attribute most builtins and the repl's traceback printer read
// directly instead of unpacking args.
func NewException(class *Class, message string) *Instance {
	inst := NewInstance(class)
	inst.Attrs.Set("message", &String{Value: message})
	inst.Attrs.Set("args", &Tuple{Elements: []Object{&String{Value: message}}})
	return inst
}

// BuiltinError is how a Builtin's Go-level error return requests a specific
// script-level exception class instead of the vm's default RuntimeError,
// e.g. `next()` on an exhausted iterator raising StopIteration rather than a
// generic failure.
type BuiltinError struct {
	Class *Class
	Msg   string
}

func (e *BuiltinError) Error() string { return e.Msg }

// ExceptionMessage reads back the message an exception instance was built
// with, or "" if obj isn't shaped like one.
func ExceptionMessage(obj Object) string {
	inst, ok := obj.(*Instance)
	if !ok {
		return ""
	}
	if v, ok := inst.Attrs.Get("message"); ok {
		if s, ok := v.(*String); ok {
			return s.Value
		}
	}
	return ""
}
