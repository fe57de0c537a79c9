// ==============================================================================================
// FILE: builtins/strings.go
// ==============================================================================================
// PACKAGE: builtins
// PURPOSE: Native str methods (split, strip/lstrip/rstrip, join; format lives in format.go since
//          it needs its own field-spec grammar), grounded on
//          _examples/original_source/wings/lib.cpp's str_split/str_lstrip/str_rstrip/str_strip/
//          str_join. registerStringMethods wires them onto object.StrClass.Attrs the same way
//          registerListMethods wires list's mutating methods.
// ==============================================================================================

package builtins

import (
	"fmt"
	"math"
	"strings"

	"wings/object"
	"wings/vm"
)

// registerStringMethods fills in str's native methods. format needs machine
// to stringify non-string arguments via __str__, so every method here takes
// the same shape for consistency even though most don't touch the vm.
func registerStringMethods(machine *vm.VM) {
	set := func(name string, fn object.BuiltinFn) {
		object.StrClass.Attrs.Set(name, &object.Builtin{Name: name, Fn: fn})
	}
	set("split", biStrSplit)
	set("strip", biStrStrip)
	set("lstrip", biStrLStrip)
	set("rstrip", biStrRStrip)
	set("join", biStrJoin(machine))
	set("format", biStrFormat(machine))
}

// whitespaceChars is the char class str_split falls back to splitting on
// when no separator is given, matching StringSplitChar's " \t\n\r\v\f".
const whitespaceChars = " \t\n\r\v\f"

func selfString(args []object.Object, name string) (string, error) {
	if len(args) == 0 {
		return "", &object.BuiltinError{Class: object.TypeErrorClass, Msg: name + "() missing self argument"}
	}
	s, ok := args[0].(*object.String)
	if !ok {
		return "", &object.BuiltinError{Class: object.TypeErrorClass,
			Msg: fmt.Sprintf("'%s' object has no attribute '%s'", args[0].Type(), name)}
	}
	return s.Value, nil
}

// biStrSplit mirrors str_split: an optional separator (defaulting to
// whitespaceChars) and an optional maxsplit (defaulting to -1, unlimited).
// A negative sep-based match still drops empty leading tokens the way
// StringSplit does, matching the original rather than Python's str.split.
func biStrSplit(args []object.Object, kwargs map[string]object.Object) (object.Object, error) {
	if len(args) < 1 || len(args) > 3 {
		return nil, &object.BuiltinError{Class: object.TypeErrorClass, Msg: "split() takes 1 to 3 arguments"}
	}
	self, err := selfString(args, "split")
	if err != nil {
		return nil, err
	}

	maxSplit := -1
	if len(args) == 3 {
		n, ok := args[2].(*object.Int)
		if !ok {
			return nil, &object.BuiltinError{Class: object.TypeErrorClass, Msg: "split(): maxsplit must be an int"}
		}
		maxSplit = int(n.Value)
	}
	if maxSplit < 0 {
		maxSplit = math.MaxInt32
	}

	var parts []string
	if len(args) >= 2 && args[1] != object.None {
		sep, ok := args[1].(*object.String)
		if !ok {
			return nil, &object.BuiltinError{Class: object.TypeErrorClass, Msg: "split(): sep must be a string"}
		}
		parts = splitOnSep(self, sep.Value, maxSplit)
	} else {
		parts = splitOnChars(self, whitespaceChars, maxSplit)
	}

	elems := make([]object.Object, len(parts))
	for i, p := range parts {
		elems[i] = &object.String{Value: p}
	}
	return &object.List{Elements: elems}, nil
}

// splitOnSep is StringSplit ported directly: empty tokens between two
// adjacent separators are dropped rather than kept.
func splitOnSep(s, sep string, maxSplit int) []string {
	var buf []string
	for maxSplit > 0 {
		idx := strings.Index(s, sep)
		if idx < 0 {
			break
		}
		if idx > 0 {
			buf = append(buf, s[:idx])
		}
		s = s[idx+len(sep):]
		maxSplit--
	}
	if s != "" {
		buf = append(buf, s)
	}
	return buf
}

// splitOnChars is StringSplitChar ported directly: splits on any byte in
// chars, dropping runs of consecutive separator bytes rather than emitting
// empty tokens between them.
func splitOnChars(s, chars string, maxSplit int) []string {
	var buf []string
	last := 0
	for maxSplit > 0 {
		next := strings.IndexAny(s[last:], chars)
		if next < 0 {
			break
		}
		next += last
		if next > last {
			buf = append(buf, s[last:next])
		}
		last = next + 1
		maxSplit--
	}
	if last < len(s) {
		buf = append(buf, s[last:])
	}
	return buf
}

// stripArgs resolves the receiver string and an optional chars argument,
// defaulting to a single space the way str_strip/str_lstrip/str_rstrip do
// rather than the full whitespace set.
func stripArgs(args []object.Object, name string) (string, string, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", "", &object.BuiltinError{Class: object.TypeErrorClass, Msg: name + "() takes 1 or 2 arguments"}
	}
	self, err := selfString(args, name)
	if err != nil {
		return "", "", err
	}
	chars := " "
	if len(args) == 2 && args[1] != object.None {
		cs, ok := args[1].(*object.String)
		if !ok {
			return "", "", &object.BuiltinError{Class: object.TypeErrorClass, Msg: name + "(): chars must be a string"}
		}
		chars = cs.Value
	}
	return self, chars, nil
}

func biStrStrip(args []object.Object, kwargs map[string]object.Object) (object.Object, error) {
	s, chars, err := stripArgs(args, "strip")
	if err != nil {
		return nil, err
	}
	return &object.String{Value: strings.Trim(s, chars)}, nil
}

func biStrLStrip(args []object.Object, kwargs map[string]object.Object) (object.Object, error) {
	s, chars, err := stripArgs(args, "lstrip")
	if err != nil {
		return nil, err
	}
	return &object.String{Value: strings.TrimLeft(s, chars)}, nil
}

func biStrRStrip(args []object.Object, kwargs map[string]object.Object) (object.Object, error) {
	s, chars, err := stripArgs(args, "rstrip")
	if err != nil {
		return nil, err
	}
	return &object.String{Value: strings.TrimRight(s, chars)}, nil
}

// biStrJoin mirrors str_join: the receiver is the separator, the sole
// argument an iterable whose elements must all be strings.
func biStrJoin(machine *vm.VM) object.BuiltinFn {
	return func(args []object.Object, kwargs map[string]object.Object) (object.Object, error) {
		if len(args) != 2 {
			return nil, argCountErr("join", 2, len(args))
		}
		sep, err := selfString(args, "join")
		if err != nil {
			return nil, err
		}
		items, err := drain(machine, args[1])
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		for i, item := range items {
			s, ok := item.(*object.String)
			if !ok {
				return nil, &object.BuiltinError{Class: object.TypeErrorClass, Msg: "sequence item must be a string"}
			}
			if i > 0 {
				b.WriteString(sep)
			}
			b.WriteString(s.Value)
		}
		return &object.String{Value: b.String()}, nil
	}
}
