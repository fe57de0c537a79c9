package object

import "testing"

func TestAttrTableSetNeverTouchesParent(t *testing.T) {
	parent := NewAttrTable(nil)
	parent.Set("x", &Int{Value: 1})
	child := NewAttrTable(parent)
	child.Set("x", &Int{Value: 2})

	gotChild, ok := child.Get("x")
	if !ok || gotChild.(*Int).Value != 2 {
		t.Fatalf("expected child's own 'x' = 2, got %#v", gotChild)
	}
	gotParent, ok := parent.Get("x")
	if !ok || gotParent.(*Int).Value != 1 {
		t.Fatalf("expected parent's 'x' to stay 1 after child write, got %#v", gotParent)
	}
}

func TestAttrTableGetWalksParentChain(t *testing.T) {
	grandparent := NewAttrTable(nil)
	grandparent.Set("shared", &String{Value: "from grandparent"})
	parent := NewAttrTable(grandparent)
	child := NewAttrTable(parent)

	val, ok := child.Get("shared")
	if !ok || val.(*String).Value != "from grandparent" {
		t.Fatalf("expected inherited lookup to reach the grandparent, got %#v", val)
	}
}

func TestAttrTableDeleteOnlyAffectsOwn(t *testing.T) {
	parent := NewAttrTable(nil)
	parent.Set("x", &Int{Value: 1})
	child := NewAttrTable(parent)

	if child.Delete("x") {
		t.Fatal("expected Delete to fail for a name only the parent owns")
	}
	if _, ok := parent.Get("x"); !ok {
		t.Fatal("parent's own attribute should survive a failed child delete")
	}

	child.Set("x", &Int{Value: 2})
	if !child.Delete("x") {
		t.Fatal("expected Delete to succeed once child has its own 'x'")
	}
	// Deleting the child's copy should unshadow the parent's.
	val, ok := child.Get("x")
	if !ok || val.(*Int).Value != 1 {
		t.Fatalf("expected the parent's 'x' to show through after deleting the shadow, got %#v", val)
	}
}

func TestAttrTableOwnNamesExcludesInherited(t *testing.T) {
	parent := NewAttrTable(nil)
	parent.Set("inherited", &Int{Value: 1})
	child := NewAttrTable(parent)
	child.Set("own", &Int{Value: 2})

	names := child.OwnNames()
	if len(names) != 1 || names[0] != "own" {
		t.Fatalf("expected OwnNames to report only 'own', got %v", names)
	}
}

func TestClassIsSubclassOf(t *testing.T) {
	base := NewClass("Animal", nil)
	mid := NewClass("Mammal", base)
	leaf := NewClass("Dog", mid)

	if !leaf.IsSubclassOf(base) {
		t.Fatal("expected Dog to be a subclass of Animal through Mammal")
	}
	if !leaf.IsSubclassOf(leaf) {
		t.Fatal("expected a class to be a subclass of itself")
	}
	if base.IsSubclassOf(leaf) {
		t.Fatal("did not expect Animal to be a subclass of Dog")
	}
}

func TestInstanceAttrsChainToClass(t *testing.T) {
	class := NewClass("Box", nil)
	class.Attrs.Set("label", &String{Value: "default"})
	inst := NewInstance(class)

	val, ok := inst.Attrs.Get("label")
	if !ok || val.(*String).Value != "default" {
		t.Fatalf("expected instance to inherit class attribute, got %#v", val)
	}

	inst.Attrs.Set("label", &String{Value: "overridden"})
	instVal, _ := inst.Attrs.Get("label")
	classVal, _ := class.Attrs.Get("label")
	if instVal.(*String).Value != "overridden" {
		t.Fatalf("expected instance's own label to be overridden, got %#v", instVal)
	}
	if classVal.(*String).Value != "default" {
		t.Fatalf("class attribute should be unaffected by instance override, got %#v", classVal)
	}
}

func TestExceptionHierarchyChaining(t *testing.T) {
	if !ZeroDivisionErrorClass.IsSubclassOf(ExceptionClass) {
		t.Fatal("expected ZeroDivisionError to descend from Exception")
	}
	if !ExceptionClass.IsSubclassOf(BaseException) {
		t.Fatal("expected Exception to descend from BaseException")
	}
	if !RecursionErrorClass.IsSubclassOf(RuntimeErrorClass) {
		t.Fatal("expected RecursionError to descend from RuntimeError")
	}
	if ZeroDivisionErrorClass.IsSubclassOf(RuntimeErrorClass) {
		t.Fatal("ZeroDivisionError should not descend from RuntimeError")
	}
}

func TestNewExceptionSetsMessageAndArgs(t *testing.T) {
	exc := NewException(ValueErrorClass, "bad value")
	if ExceptionMessage(exc) != "bad value" {
		t.Fatalf("expected message 'bad value', got %q", ExceptionMessage(exc))
	}
	args, ok := exc.Attrs.Get("args")
	if !ok {
		t.Fatal("expected an 'args' attribute")
	}
	tup, ok := args.(*Tuple)
	if !ok || len(tup.Elements) != 1 {
		t.Fatalf("expected a 1-element args tuple, got %#v", args)
	}
}

func TestExceptionMessageOnNonInstanceIsEmpty(t *testing.T) {
	if msg := ExceptionMessage(&Int{Value: 1}); msg != "" {
		t.Fatalf("expected empty message for a non-exception object, got %q", msg)
	}
}

func TestClassOfPrimitives(t *testing.T) {
	cases := []struct {
		val   Object
		class *Class
	}{
		{&Int{Value: 1}, IntClass},
		{&Float{Value: 1.5}, FloatClass},
		{True, BoolClass},
		{&String{Value: "x"}, StrClass},
		{None, NoneClass},
		{&List{}, ListClass},
		{&Tuple{}, TupleClass},
		{&Dict{}, DictClass},
	}
	for _, c := range cases {
		if got := ClassOf(c.val); got != c.class {
			t.Fatalf("ClassOf(%#v) = %v, want %v", c.val, got, c.class)
		}
	}
}

func TestClassOfInstanceReturnsOwnClass(t *testing.T) {
	class := NewClass("Widget", nil)
	inst := NewInstance(class)
	if got := ClassOf(inst); got != class {
		t.Fatalf("expected ClassOf(instance) to return its own class, got %v", got)
	}
}

func TestClassOfClassReturnsTypeClass(t *testing.T) {
	class := NewClass("Widget", nil)
	if got := ClassOf(class); got != TypeClass {
		t.Fatalf("expected ClassOf(class) to return TypeClass, got %v", got)
	}
}

func TestGetPrimitiveAttrFallsThroughToClass(t *testing.T) {
	IntClass.Attrs.Set("__test_marker__", &String{Value: "present"})
	val, ok := GetPrimitiveAttr(&Int{Value: 5}, "__test_marker__")
	if !ok || val.(*String).Value != "present" {
		t.Fatalf("expected a marker attribute registered on IntClass to be visible, got %#v", val)
	}
	IntClass.Attrs.Delete("__test_marker__")
}

func TestBuiltinErrorCarriesClassAndMessage(t *testing.T) {
	err := &BuiltinError{Class: TypeErrorClass, Msg: "bad type"}
	if err.Error() != "bad type" {
		t.Fatalf("expected Error() to return the message, got %q", err.Error())
	}
}
