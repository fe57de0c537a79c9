// ==============================================================================================
// FILE: builtins/format.go
// ==============================================================================================
// PACKAGE: builtins
// PURPOSE: str.format's field-spec grammar. The template scan itself (splitting literal text from
//          {...} fields) is done by hand the same way str_format in
//          _examples/original_source/wings/lib.cpp walks the format string char by char; the part
//          that actually varies in shape -- what's inside the braces, either nothing (auto
//          indexing) or a field number (manual indexing) -- is parsed with participle rather than
//          a second hand-rolled scanner, the way golangee-dyml/parser builds its grammars on field
//          structs tagged with `parser:"..."`.
// ==============================================================================================

package builtins

import (
	"github.com/alecthomas/participle/v2"

	"wings/object"
	"wings/vm"
)

// fieldSpec is the grammar for the text between a format field's braces.
// Index is nil for "{}" (auto numbering) and set for "{N}" (manual).
type fieldSpec struct {
	Index *int `parser:"@Int?"`
}

var fieldSpecParser = participle.MustBuild(&fieldSpec{})

// fieldMode tracks whether a format string has committed to auto or manual
// field numbering, mirroring str_format's Mode enum: once set, every
// remaining field must agree or the format call raises.
type fieldMode int

const (
	fieldModeNone fieldMode = iota
	fieldModeAuto
	fieldModeManual
)

func biStrFormat(machine *vm.VM) object.BuiltinFn {
	return func(args []object.Object, kwargs map[string]object.Object) (object.Object, error) {
		if len(args) < 1 {
			return nil, &object.BuiltinError{Class: object.TypeErrorClass, Msg: "format() missing self argument"}
		}
		self, err := selfString(args, "format")
		if err != nil {
			return nil, err
		}
		return formatString(machine, self, args[1:])
	}
}

func formatString(machine *vm.VM, tmpl string, values []object.Object) (object.Object, error) {
	runes := []rune(tmpl)
	var out []rune
	mode := fieldModeNone
	autoIndex := 0

	for i := 0; i < len(runes); i++ {
		if runes[i] != '{' {
			out = append(out, runes[i])
			continue
		}

		j := i + 1
		for j < len(runes) && runes[j] != '}' {
			j++
		}
		if j >= len(runes) {
			return nil, &object.BuiltinError{Class: object.ValueErrorClass, Msg: "Invalid format string"}
		}
		inner := string(runes[i+1 : j])
		i = j

		var spec fieldSpec
		if err := fieldSpecParser.ParseString("", inner, &spec); err != nil {
			return nil, &object.BuiltinError{Class: object.ValueErrorClass, Msg: "Invalid format string"}
		}

		var index int
		if spec.Index == nil {
			if mode == fieldModeManual {
				return nil, &object.BuiltinError{Class: object.ValueErrorClass,
					Msg: "Cannot switch from manual field numbering to automatic field specification"}
			}
			mode = fieldModeAuto
			index = autoIndex
			autoIndex++
		} else {
			if mode == fieldModeAuto {
				return nil, &object.BuiltinError{Class: object.ValueErrorClass,
					Msg: "Cannot switch from automatic field numbering to manual field specification"}
			}
			mode = fieldModeManual
			index = *spec.Index
		}

		if index < 0 || index >= len(values) {
			return nil, &object.BuiltinError{Class: object.IndexErrorClass, Msg: "replacement index out of range for format()"}
		}

		s, err := stringifyForFormat(machine, values[index])
		if err != nil {
			return nil, err
		}
		out = append(out, []rune(s)...)
	}

	return &object.String{Value: string(out)}, nil
}

// stringifyForFormat converts a value the same way str() does (honoring a
// user-defined __str__), reusing biStr rather than duplicating its dunder
// lookup so the two stay in sync.
func stringifyForFormat(machine *vm.VM, val object.Object) (string, error) {
	result, err := biStr(machine)([]object.Object{val}, nil)
	if err != nil {
		return "", err
	}
	return result.(*object.String).Value, nil
}
