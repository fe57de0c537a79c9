// ==============================================================================================
// FILE: object/object.go
// ==============================================================================================
// PACKAGE: object
// PURPOSE: Runtime value representation. Every value the vm manipulates implements Object;
//          GC-managed composite values additionally implement Traceable so the collector can
//          walk their references.
// ==============================================================================================

package object

import (
	"fmt"
	"hash/fnv"
	"strings"

	"wings/code"
)

type Type string

const (
	INT_OBJ       Type = "int"
	FLOAT_OBJ     Type = "float"
	BOOL_OBJ      Type = "bool"
	STRING_OBJ    Type = "str"
	NONE_OBJ      Type = "NoneType"
	TUPLE_OBJ     Type = "tuple"
	LIST_OBJ      Type = "list"
	DICT_OBJ      Type = "dict"
	SET_OBJ       Type = "set"
	FUNCTION_OBJ  Type = "function"
	BUILTIN_OBJ   Type = "builtin_function"
	CLASS_OBJ     Type = "type"
	INSTANCE_OBJ  Type = "instance"
	BOUND_METHOD_OBJ Type = "bound_method"
	EXCEPTION_OBJ Type = "exception"
	MODULE_OBJ    Type = "module"
	CODE_OBJ      Type = "code"
	CELL_OBJ      Type = "cell"
	ITERATOR_OBJ  Type = "iterator"
	SLICE_OBJ     Type = "slice"
)

// Object is the base interface every runtime value implements.
type Object interface {
	Type() Type
	Inspect() string
}

// Traceable is implemented by every Object the gc must walk for live
// references when tracing the object graph from the roots.
type Traceable interface {
	Refs() []Object
}

// ==============================================================================================
// PRIMITIVES
// ==============================================================================================

type Int struct {
	Value int64
}

func (i *Int) Type() Type      { return INT_OBJ }
func (i *Int) Inspect() string { return fmt.Sprintf("%d", i.Value) }
func (i *Int) HashKey() HashKey { return HashKey{Type: INT_OBJ, Value: uint64(i.Value)} }

type Float struct {
	Value float64
}

func (f *Float) Type() Type      { return FLOAT_OBJ }
func (f *Float) Inspect() string { return fmt.Sprintf("%g", f.Value) }

type Bool struct {
	Value bool
}

func (b *Bool) Type() Type      { return BOOL_OBJ }
func (b *Bool) Inspect() string { return fmt.Sprintf("%t", b.Value) }
func (b *Bool) HashKey() HashKey {
	var v uint64
	if b.Value {
		v = 1
	}
	return HashKey{Type: BOOL_OBJ, Value: v}
}

type String struct {
	Value string
}

func (s *String) Type() Type      { return STRING_OBJ }
func (s *String) Inspect() string { return s.Value }
func (s *String) HashKey() HashKey {
	h := fnv.New64a()
	h.Write([]byte(s.Value))
	return HashKey{Type: STRING_OBJ, Value: h.Sum64()}
}

type NoneType struct{}

func (n *NoneType) Type() Type      { return NONE_OBJ }
func (n *NoneType) Inspect() string { return "None" }

// None, True and False are process-wide singletons; the vm and builtins
// compare against them by pointer identity for "is"/truthiness.
var (
	None  = &NoneType{}
	True  = &Bool{Value: true}
	False = &Bool{Value: false}
)

func NativeBool(b bool) *Bool {
	if b {
		return True
	}
	return False
}

// ==============================================================================================
// HASHING
// ==============================================================================================

type HashKey struct {
	Type  Type
	Value uint64
}

type Hashable interface {
	HashKey() HashKey
}

type DictPair struct {
	Key   Object
	Value Object
}

// ==============================================================================================
// COMPOSITES
// ==============================================================================================

type Tuple struct {
	Elements []Object
}

func (t *Tuple) Type() Type { return TUPLE_OBJ }
func (t *Tuple) Inspect() string {
	return "(" + joinInspect(t.Elements) + ")"
}
func (t *Tuple) Refs() []Object { return t.Elements }

type List struct {
	Elements []Object
}

func (l *List) Type() Type { return LIST_OBJ }
func (l *List) Inspect() string {
	return "[" + joinInspect(l.Elements) + "]"
}
func (l *List) Refs() []Object { return l.Elements }

type Dict struct {
	Pairs map[HashKey]DictPair
	order []HashKey // insertion order, mirrors the reference interpreter's ordered dict
}

func NewDict() *Dict {
	return &Dict{Pairs: make(map[HashKey]DictPair)}
}

func (d *Dict) Type() Type { return DICT_OBJ }
func (d *Dict) Inspect() string {
	parts := []string{}
	for _, k := range d.order {
		pair, ok := d.Pairs[k]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", pair.Key.Inspect(), pair.Value.Inspect()))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (d *Dict) Refs() []Object {
	refs := make([]Object, 0, len(d.Pairs)*2)
	for _, p := range d.Pairs {
		refs = append(refs, p.Key, p.Value)
	}
	return refs
}

func (d *Dict) Set(key Object, value Object) error {
	h, ok := key.(Hashable)
	if !ok {
		return fmt.Errorf("unhashable type: %s", key.Type())
	}
	hk := h.HashKey()
	if _, exists := d.Pairs[hk]; !exists {
		d.order = append(d.order, hk)
	}
	d.Pairs[hk] = DictPair{Key: key, Value: value}
	return nil
}

func (d *Dict) Get(key Object) (Object, bool) {
	h, ok := key.(Hashable)
	if !ok {
		return nil, false
	}
	pair, ok := d.Pairs[h.HashKey()]
	if !ok {
		return nil, false
	}
	return pair.Value, true
}

func (d *Dict) Delete(key Object) bool {
	h, ok := key.(Hashable)
	if !ok {
		return false
	}
	hk := h.HashKey()
	if _, ok := d.Pairs[hk]; !ok {
		return false
	}
	delete(d.Pairs, hk)
	for i, k := range d.order {
		if k == hk {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return true
}

func (d *Dict) Len() int { return len(d.Pairs) }

// Keys returns the dict's keys in insertion order.
func (d *Dict) Keys() []Object {
	keys := make([]Object, 0, len(d.order))
	for _, k := range d.order {
		if p, ok := d.Pairs[k]; ok {
			keys = append(keys, p.Key)
		}
	}
	return keys
}

type Set struct {
	Elements map[HashKey]Object
	order    []HashKey
}

func NewSet() *Set {
	return &Set{Elements: make(map[HashKey]Object)}
}

func (s *Set) Type() Type { return SET_OBJ }
func (s *Set) Inspect() string {
	parts := []string{}
	for _, k := range s.order {
		if el, ok := s.Elements[k]; ok {
			parts = append(parts, el.Inspect())
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (s *Set) Refs() []Object {
	refs := make([]Object, 0, len(s.Elements))
	for _, v := range s.Elements {
		refs = append(refs, v)
	}
	return refs
}

func (s *Set) Add(value Object) error {
	h, ok := value.(Hashable)
	if !ok {
		return fmt.Errorf("unhashable type: %s", value.Type())
	}
	hk := h.HashKey()
	if _, exists := s.Elements[hk]; !exists {
		s.order = append(s.order, hk)
	}
	s.Elements[hk] = value
	return nil
}

func (s *Set) Contains(value Object) bool {
	h, ok := value.(Hashable)
	if !ok {
		return false
	}
	_, ok = s.Elements[h.HashKey()]
	return ok
}

func (s *Set) Len() int { return len(s.Elements) }

// Values returns the set's elements in insertion order.
func (s *Set) Values() []Object {
	vals := make([]Object, 0, len(s.order))
	for _, k := range s.order {
		if v, ok := s.Elements[k]; ok {
			vals = append(vals, v)
		}
	}
	return vals
}

type Slice struct {
	Start, Stop, Step Object // each is *Int or None
}

func (s *Slice) Type() Type      { return SLICE_OBJ }
func (s *Slice) Inspect() string { return "slice(...)" }

// ==============================================================================================
// CALLABLES
// ==============================================================================================

// CompiledFunction is the code-object produced by the compiler for a def or
// lambda body: constants, bytecode, and the local variable name table.
type CompiledFunction struct {
	Instructions code.Instructions
	Lines        *code.LineTable
	Constants    []Object
	NumLocals    int
	NumParams    int
	ParamNames   []string
	Defaults     []Object
	StarArgIndex int // -1 if absent
	DoubleStarArgIndex int // -1 if absent
	Name         string
	FreeNames    []string // names captured from an enclosing scope, in cell order
	ParamsAreCells bool   // true if this function's own locals/params must be bound as Cells
}

func (cf *CompiledFunction) Type() Type      { return CODE_OBJ }
func (cf *CompiledFunction) Inspect() string { return fmt.Sprintf("<code %s>", cf.Name) }

// Function is a CompiledFunction bound to the cells it closed over at
// definition time.
type Function struct {
	Code  *CompiledFunction
	Free  []*Cell
	Globals *AttrTable
}

func (f *Function) Type() Type      { return FUNCTION_OBJ }
func (f *Function) Inspect() string { return fmt.Sprintf("<function %s>", f.Code.Name) }
func (f *Function) Refs() []Object {
	refs := make([]Object, 0, len(f.Free))
	for _, c := range f.Free {
		refs = append(refs, c.Value)
	}
	return refs
}

type BuiltinFn func(args []Object, kwargs map[string]Object) (Object, error)

type Builtin struct {
	Name string
	Fn   BuiltinFn
}

func (b *Builtin) Type() Type      { return BUILTIN_OBJ }
func (b *Builtin) Inspect() string { return fmt.Sprintf("<built-in function %s>", b.Name) }

// BoundMethod pairs an instance with one of its class's functions so calling
// it implicitly supplies "self" as the first argument.
type BoundMethod struct {
	Receiver Object
	Method   Object // *Function or *Builtin
}

func (bm *BoundMethod) Type() Type      { return BOUND_METHOD_OBJ }
func (bm *BoundMethod) Inspect() string { return "<bound method>" }
func (bm *BoundMethod) Refs() []Object  { return []Object{bm.Receiver, bm.Method} }

// Module wraps a namespace of top-level bindings produced by executing an
// imported source file, or a host-registered native package.
type Module struct {
	Name  string
	Attrs *AttrTable
}

func (m *Module) Type() Type      { return MODULE_OBJ }
func (m *Module) Inspect() string { return fmt.Sprintf("<module %s>", m.Name) }
func (m *Module) Refs() []Object  { return m.Attrs.Values() }

func joinInspect(objs []Object) string {
	parts := make([]string, len(objs))
	for i, o := range objs {
		parts[i] = o.Inspect()
	}
	return strings.Join(parts, ", ")
}
