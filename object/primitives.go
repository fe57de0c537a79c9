// ==============================================================================================
// FILE: object/primitives.go
// ==============================================================================================
// PACKAGE: object
// PURPOSE: Classes for the native payload types (int, float, str, list, ...), so attribute
//          lookup on a primitive value (x.__len__, x.__class__) falls through to a real Class
//          the same way it does for an Instance. The builtins package fills these classes'
//          attribute tables with native dunder methods at bootstrap time; this file only
//          allocates the classes and the Type -> Class lookup table.
// ==============================================================================================

package object

var (
	ObjectClass   = NewClass("object", nil)
	IntClass      = NewClass("int", ObjectClass)
	FloatClass    = NewClass("float", ObjectClass)
	BoolClass     = NewClass("bool", ObjectClass)
	StrClass      = NewClass("str", ObjectClass)
	NoneClass     = NewClass("NoneType", ObjectClass)
	TupleClass    = NewClass("tuple", ObjectClass)
	ListClass     = NewClass("list", ObjectClass)
	DictClass     = NewClass("dict", ObjectClass)
	SetClass      = NewClass("set", ObjectClass)
	SliceClass    = NewClass("slice", ObjectClass)
	IteratorClass = NewClass("iterator", ObjectClass)
	FunctionClass = NewClass("function", ObjectClass)
	ModuleClass   = NewClass("module", ObjectClass)
	CodeClass     = NewClass("code", ObjectClass)
	TypeClass     = NewClass("type", ObjectClass)
)

// classOf maps a value to the class attribute lookups on it fall through to.
// An Instance carries its own class pointer (see class.go); every other
// Object kind, Class included (its class is type), has exactly one class,
// held here.
func classOf(obj Object) *Class {
	switch obj.(type) {
	case *Int:
		return IntClass
	case *Float:
		return FloatClass
	case *Bool:
		return BoolClass
	case *String:
		return StrClass
	case *NoneType:
		return NoneClass
	case *Tuple:
		return TupleClass
	case *List:
		return ListClass
	case *Dict:
		return DictClass
	case *Set:
		return SetClass
	case *Slice:
		return SliceClass
	case *Iterator:
		return IteratorClass
	case *Function, *Builtin, *BoundMethod:
		return FunctionClass
	case *Module:
		return ModuleClass
	case *CompiledFunction:
		return CodeClass
	}
	return nil
}

// ClassOf returns the class a value's attribute lookups chain to: its own
// Class for an Instance, itself for a Class, or the shared primitive class
// for every native payload type.
func ClassOf(obj Object) *Class {
	switch v := obj.(type) {
	case *Instance:
		return v.Class
	case *Class:
		return TypeClass
	}
	return classOf(obj)
}

// GetPrimitiveAttr looks up name on the class chain for a non-Instance,
// non-Class, non-Module value (the vm's getAttr calls this as its fallback
// for every other Object kind).
func GetPrimitiveAttr(obj Object, name string) (Object, bool) {
	class := classOf(obj)
	if class == nil {
		return nil, false
	}
	return class.Attrs.Get(name)
}
