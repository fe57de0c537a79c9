// ==============================================================================================
// FILE: vm/ops.go
// ==============================================================================================
// PACKAGE: vm
// PURPOSE: Operator, indexing, and attribute-access dispatch, split out of the main fetch/execute
//          loop the same way the teacher's evaluator split evalIntegerInfix/evalFloatInfix/
//          evalStringInfix/evalBooleanInfix out of evalInfixExpression.
// ==============================================================================================

package vm

import (
	"strings"

	"wings/code"
	"wings/object"
)

func (vm *VM) execBinaryOp(op code.Opcode) error {
	right := vm.pop()
	left := vm.pop()

	li, lIsInt := left.(*object.Int)
	ri, rIsInt := right.(*object.Int)
	if lIsInt && rIsInt {
		return vm.push2(vm.intBinOp(op, li, ri))
	}
	lf, lIsFloat := asFloat(left)
	rf, rIsFloat := asFloat(right)
	if (lIsFloat || lIsInt) && (rIsFloat || rIsInt) {
		return vm.push2(vm.floatBinOp(op, lf, rf))
	}
	ls, lIsStr := left.(*object.String)
	rs, rIsStr := right.(*object.String)
	if lIsStr && rIsStr && op == code.OpAdd {
		return vm.push(&object.String{Value: ls.Value + rs.Value})
	}
	if lIsStr && op == code.OpMul && rIsInt {
		return vm.push(&object.String{Value: repeatString(ls.Value, int(ri.Value))})
	}
	ll, lIsList := left.(*object.List)
	rl, rIsList := right.(*object.List)
	if lIsList && rIsList && op == code.OpAdd {
		out := append(append([]object.Object{}, ll.Elements...), rl.Elements...)
		res := &object.List{Elements: out}
		vm.track(res)
		return vm.push(res)
	}
	return vm.raiseTypeError("unsupported operand type(s) for %s: '%s' and '%s'", op, left.Type(), right.Type())
}

func (vm *VM) push2(obj object.Object, err error) error {
	if err != nil {
		return err
	}
	return vm.push(obj)
}

func asFloat(obj object.Object) (float64, bool) {
	switch v := obj.(type) {
	case *object.Float:
		return v.Value, true
	case *object.Int:
		return float64(v.Value), true
	}
	return 0, false
}

func repeatString(s string, n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func (vm *VM) intBinOp(op code.Opcode, l, r *object.Int) (object.Object, error) {
	switch op {
	case code.OpAdd:
		return &object.Int{Value: l.Value + r.Value}, nil
	case code.OpSub:
		return &object.Int{Value: l.Value - r.Value}, nil
	case code.OpMul:
		return &object.Int{Value: l.Value * r.Value}, nil
	case code.OpDiv:
		if r.Value == 0 {
			return nil, vm.raiseZeroDivision()
		}
		return &object.Float{Value: float64(l.Value) / float64(r.Value)}, nil
	case code.OpMod:
		if r.Value == 0 {
			return nil, vm.raiseZeroDivision()
		}
		m := l.Value % r.Value
		if (m < 0) != (r.Value < 0) && m != 0 {
			m += r.Value
		}
		return &object.Int{Value: m}, nil
	case code.OpPow:
		return &object.Int{Value: intPow(l.Value, r.Value)}, nil
	case code.OpBitAnd:
		return &object.Int{Value: l.Value & r.Value}, nil
	case code.OpBitOr:
		return &object.Int{Value: l.Value | r.Value}, nil
	case code.OpBitXor:
		return &object.Int{Value: l.Value ^ r.Value}, nil
	case code.OpShl:
		return &object.Int{Value: l.Value << uint(r.Value)}, nil
	case code.OpShr:
		return &object.Int{Value: l.Value >> uint(r.Value)}, nil
	}
	return nil, vm.raiseTypeError("unsupported integer operator %s", op)
}

func intPow(base, exp int64) int64 {
	if exp < 0 {
		return 0
	}
	result := int64(1)
	for i := int64(0); i < exp; i++ {
		result *= base
	}
	return result
}

func (vm *VM) floatBinOp(op code.Opcode, l, r float64) (object.Object, error) {
	switch op {
	case code.OpAdd:
		return &object.Float{Value: l + r}, nil
	case code.OpSub:
		return &object.Float{Value: l - r}, nil
	case code.OpMul:
		return &object.Float{Value: l * r}, nil
	case code.OpDiv:
		if r == 0 {
			return nil, vm.raiseZeroDivision()
		}
		return &object.Float{Value: l / r}, nil
	}
	return nil, vm.raiseTypeError("unsupported float operator %s", op)
}

func (vm *VM) execComparison(op code.Opcode) error {
	right := vm.pop()
	left := vm.pop()

	if op == code.OpEqual || op == code.OpNotEqual {
		eq := objectsEqual(left, right)
		if op == code.OpNotEqual {
			eq = !eq
		}
		return vm.push(object.NativeBool(eq))
	}

	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if lok && rok {
		var result bool
		if op == code.OpGreaterThan {
			result = lf > rf
		} else {
			result = lf >= rf
		}
		return vm.push(object.NativeBool(result))
	}
	ls, lIsStr := left.(*object.String)
	rs, rIsStr := right.(*object.String)
	if lIsStr && rIsStr {
		var result bool
		if op == code.OpGreaterThan {
			result = ls.Value > rs.Value
		} else {
			result = ls.Value >= rs.Value
		}
		return vm.push(object.NativeBool(result))
	}
	return vm.raiseTypeError("'%s' not supported between instances of '%s' and '%s'", op, left.Type(), right.Type())
}

func objectsEqual(left, right object.Object) bool {
	if left.Type() != right.Type() {
		lf, lok := asFloat(left)
		rf, rok := asFloat(right)
		if lok && rok {
			return lf == rf
		}
		return false
	}
	switch l := left.(type) {
	case *object.Int:
		return l.Value == right.(*object.Int).Value
	case *object.Float:
		return l.Value == right.(*object.Float).Value
	case *object.String:
		return l.Value == right.(*object.String).Value
	case *object.Bool:
		return l.Value == right.(*object.Bool).Value
	case *object.NoneType:
		return true
	case *object.Tuple:
		r := right.(*object.Tuple)
		if len(l.Elements) != len(r.Elements) {
			return false
		}
		for i := range l.Elements {
			if !objectsEqual(l.Elements[i], r.Elements[i]) {
				return false
			}
		}
		return true
	}
	return left == right
}

// execContains implements `value in container`: the stack holds value then
// container (container on top), matching the compiler's left/right emit
// order for the "in" operator.
func (vm *VM) execContains() error {
	container := vm.pop()
	value := vm.pop()
	switch c := container.(type) {
	case *object.List:
		for _, el := range c.Elements {
			if objectsEqual(el, value) {
				return vm.push(object.True)
			}
		}
		return vm.push(object.False)
	case *object.Tuple:
		for _, el := range c.Elements {
			if objectsEqual(el, value) {
				return vm.push(object.True)
			}
		}
		return vm.push(object.False)
	case *object.Set:
		return vm.push(object.NativeBool(c.Contains(value)))
	case *object.Dict:
		_, ok := c.Get(value)
		return vm.push(object.NativeBool(ok))
	case *object.String:
		sub, ok := value.(*object.String)
		if !ok {
			return vm.raiseTypeError("'in <string>' requires string as left operand, not %s", value.Type())
		}
		return vm.push(object.NativeBool(strings.Contains(c.Value, sub.Value)))
	case *object.Instance:
		containsFn, err := vm.getAttr(c, "__contains__")
		if err != nil {
			return err
		}
		result, err := vm.callValueSync(containsFn, []object.Object{value}, nil)
		if err != nil {
			return err
		}
		b, err := vm.truthy(result)
		if err != nil {
			return err
		}
		return vm.push(object.NativeBool(b))
	}
	return vm.raiseTypeError("argument of type '%s' is not iterable", container.Type())
}

func (vm *VM) execNeg() error {
	val := vm.pop()
	switch v := val.(type) {
	case *object.Int:
		return vm.push(&object.Int{Value: -v.Value})
	case *object.Float:
		return vm.push(&object.Float{Value: -v.Value})
	}
	return vm.raiseTypeError("bad operand type for unary -: '%s'", val.Type())
}

func (vm *VM) execBitNot() error {
	val := vm.pop()
	if v, ok := val.(*object.Int); ok {
		return vm.push(&object.Int{Value: ^v.Value})
	}
	return vm.raiseTypeError("bad operand type for unary ~: '%s'", val.Type())
}

func (vm *VM) getIndex(left, idx object.Object) (object.Object, error) {
	switch l := left.(type) {
	case *object.List:
		i, ok := idx.(*object.Int)
		if !ok {
			return nil, vm.raiseTypeError("list indices must be integers, not %s", idx.Type())
		}
		pos := normalizeIndex(i.Value, len(l.Elements))
		if pos < 0 || pos >= len(l.Elements) {
			return nil, vm.raiseIndexError("list index out of range")
		}
		return l.Elements[pos], nil
	case *object.Tuple:
		i, ok := idx.(*object.Int)
		if !ok {
			return nil, vm.raiseTypeError("tuple indices must be integers, not %s", idx.Type())
		}
		pos := normalizeIndex(i.Value, len(l.Elements))
		if pos < 0 || pos >= len(l.Elements) {
			return nil, vm.raiseIndexError("tuple index out of range")
		}
		return l.Elements[pos], nil
	case *object.Dict:
		val, ok := l.Get(idx)
		if !ok {
			if _, hashable := idx.(object.Hashable); !hashable {
				return nil, vm.raiseTypeError("unhashable type: '%s'", idx.Type())
			}
			return nil, vm.raiseKeyError(idx)
		}
		return val, nil
	case *object.String:
		i, ok := idx.(*object.Int)
		if !ok {
			return nil, vm.raiseTypeError("string indices must be integers, not %s", idx.Type())
		}
		runes := []rune(l.Value)
		pos := normalizeIndex(i.Value, len(runes))
		if pos < 0 || pos >= len(runes) {
			return nil, vm.raiseIndexError("string index out of range")
		}
		return &object.String{Value: string(runes[pos])}, nil
	}
	return nil, vm.raiseTypeError("'%s' object is not subscriptable", left.Type())
}

func (vm *VM) setIndex(left, idx, val object.Object) error {
	switch l := left.(type) {
	case *object.List:
		i, ok := idx.(*object.Int)
		if !ok {
			return vm.raiseTypeError("list indices must be integers, not %s", idx.Type())
		}
		pos := normalizeIndex(i.Value, len(l.Elements))
		if pos < 0 || pos >= len(l.Elements) {
			return vm.raiseIndexError("list assignment index out of range")
		}
		l.Elements[pos] = val
		return nil
	case *object.Dict:
		if err := l.Set(idx, val); err != nil {
			return vm.raiseTypeError("%s", err.Error())
		}
		return nil
	}
	return vm.raiseTypeError("'%s' object does not support item assignment", left.Type())
}

func normalizeIndex(i int64, length int) int {
	if i < 0 {
		return int(i) + length
	}
	return int(i)
}

func (vm *VM) getSlice(left, start, stop, step object.Object) (object.Object, error) {
	var elems []object.Object
	switch l := left.(type) {
	case *object.List:
		elems = l.Elements
	case *object.Tuple:
		elems = l.Elements
	case *object.String:
		runes := []rune(l.Value)
		s, e, st := sliceBounds(start, stop, step, len(runes))
		var out []rune
		for i := s; (st > 0 && i < e) || (st < 0 && i > e); i += st {
			out = append(out, runes[i])
		}
		return &object.String{Value: string(out)}, nil
	default:
		return nil, vm.raiseTypeError("'%s' object is not sliceable", left.Type())
	}
	s, e, st := sliceBounds(start, stop, step, len(elems))
	var out []object.Object
	for i := s; (st > 0 && i < e) || (st < 0 && i > e); i += st {
		out = append(out, elems[i])
	}
	if _, ok := left.(*object.Tuple); ok {
		return &object.Tuple{Elements: out}, nil
	}
	res := &object.List{Elements: out}
	vm.track(res)
	return res, nil
}

func sliceBounds(start, stop, step object.Object, length int) (s, e, st int) {
	st = 1
	if iv, ok := step.(*object.Int); ok {
		st = int(iv.Value)
	}
	if st == 0 {
		st = 1
	}
	if st > 0 {
		s, e = 0, length
	} else {
		s, e = length-1, -1
	}
	if iv, ok := start.(*object.Int); ok {
		s = clampIndex(int(iv.Value), length)
	}
	if iv, ok := stop.(*object.Int); ok {
		e = clampIndex(int(iv.Value), length)
	}
	return
}

func clampIndex(i, length int) int {
	if i < 0 {
		i += length
	}
	if i < 0 {
		i = 0
	}
	if i > length {
		i = length
	}
	return i
}

// GetAttr and SetAttr expose attribute access to native builtins (getattr,
// setattr, hasattr) that aren't a bytecode OpGetAttr/OpSetAttr site.
func (vm *VM) GetAttr(left object.Object, name string) (object.Object, error) {
	return vm.getAttr(left, name)
}

func (vm *VM) SetAttr(left object.Object, name string, val object.Object) error {
	return vm.setAttr(left, name, val)
}

// Index and SetIndex expose item access (left[idx], left[idx] = val) to the
// host embedding surface, which needs the same get/set-item protocol a
// bytecode OpGetIndex/OpSetIndex site uses but from outside any running frame.
func (vm *VM) Index(left, idx object.Object) (object.Object, error) {
	return vm.getIndex(left, idx)
}

func (vm *VM) SetIndex(left, idx, val object.Object) error {
	return vm.setIndex(left, idx, val)
}

func (vm *VM) getAttr(left object.Object, name string) (object.Object, error) {
	if val, ok := vm.TryGetAttr(left, name); ok {
		return val, nil
	}
	return nil, vm.raiseAttributeError(left, name)
}

// TryGetAttr is getAttr without the raise: native builtins (getattr,
// hasattr) use it directly so a missing attribute doesn't risk unwinding to
// whatever try/except handler happens to be active in the calling script.
func (vm *VM) TryGetAttr(left object.Object, name string) (object.Object, bool) {
	if name == "__class__" {
		if class := object.ClassOf(left); class != nil {
			return class, true
		}
	}
	switch l := left.(type) {
	case *object.Instance:
		if val, ok := l.Attrs.Get(name); ok {
			return bindIfFunction(val, l), true
		}
	case *object.Class:
		if val, ok := l.Attrs.Get(name); ok {
			return val, true
		}
	case *object.Module:
		if val, ok := l.Attrs.Get(name); ok {
			return val, true
		}
	default:
		if val, ok := object.GetPrimitiveAttr(left, name); ok {
			return bindIfFunction(val, left), true
		}
	}
	return nil, false
}

func bindIfFunction(val object.Object, receiver object.Object) object.Object {
	switch val.(type) {
	case *object.Function, *object.Builtin:
		return &object.BoundMethod{Receiver: receiver, Method: val}
	}
	return val
}

func (vm *VM) setAttr(left object.Object, name string, val object.Object) error {
	switch l := left.(type) {
	case *object.Instance:
		l.Attrs.Set(name, val)
		return nil
	case *object.Class:
		l.Attrs.Set(name, val)
		return nil
	case *object.Module:
		l.Attrs.Set(name, val)
		return nil
	}
	return vm.raiseTypeError("'%s' object has no attributes", left.Type())
}

func (vm *VM) execCompAppend(kind int) error {
	// Stack (top last): ..., container, dup(container), element   (list/set)
	//                    ..., container, dup(container), key, value (dict)
	var key, val object.Object
	if kind == 2 {
		val = vm.pop()
		key = vm.pop()
	} else {
		val = vm.pop()
	}
	container := vm.pop() // the OpDup'd reference; original container stays on stack below
	switch kind {
	case 0:
		l := container.(*object.List)
		l.Elements = append(l.Elements, val)
	case 1:
		s := container.(*object.Set)
		if err := s.Add(val); err != nil {
			return vm.raiseTypeError("%s", err.Error())
		}
	case 2:
		d := container.(*object.Dict)
		if err := d.Set(key, val); err != nil {
			return vm.raiseTypeError("%s", err.Error())
		}
	}
	return nil
}
