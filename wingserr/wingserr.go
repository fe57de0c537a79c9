// ==============================================================================================
// FILE: wingserr/wingserr.go
// ==============================================================================================
// PACKAGE: wingserr
// PURPOSE: Go-level error plumbing distinct from script-level exceptions. A CodeError is a
//          lex/parse/compile-time failure that never makes it into a running vm; it is an
//          ordinary Go error, stack-annotated with github.com/pkg/errors so host callers and logs
//          get a useful trace. Once code is running, failures are object.Instance values raised
//          through the vm's exception machinery, not Go errors — see raise in vm/exceptions.go.
// ==============================================================================================

package wingserr

import (
	"fmt"

	"github.com/pkg/errors"

	"wings/token"
)

// Kind distinguishes which phase produced a CodeError, so the host can
// decide whether a failure is a syntax problem vs. an internal compiler
// invariant violation.
type Kind int

const (
	KindLex Kind = iota
	KindParse
	KindCompile
)

func (k Kind) String() string {
	switch k {
	case KindLex:
		return "lex error"
	case KindParse:
		return "parse error"
	case KindCompile:
		return "compile error"
	default:
		return "error"
	}
}

// CodeError is a single diagnostic at a source position, produced before a
// script ever starts running.
type CodeError struct {
	Kind Kind
	Pos  token.Position
	Msg  string
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("%s at line %d: %s", e.Kind, e.Pos.Line, e.Msg)
}

// New wraps a CodeError with a stack trace via pkg/errors, so the host's
// logging layer can print %+v for a full Go-level backtrace in addition to
// the source position carried by the CodeError itself.
func New(kind Kind, pos token.Position, format string, args ...interface{}) error {
	return errors.WithStack(&CodeError{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// Errors aggregates every CodeError accumulated during a lex/parse/compile
// pass so the host can report them all at once instead of stopping at the
// first one.
type Errors struct {
	items []error
}

func (es *Errors) Add(err error) {
	es.items = append(es.items, err)
}

func (es *Errors) Addf(kind Kind, pos token.Position, format string, args ...interface{}) {
	es.Add(New(kind, pos, format, args...))
}

func (es *Errors) HasErrors() bool { return len(es.items) > 0 }

func (es *Errors) All() []error { return es.items }

func (es *Errors) Error() string {
	if len(es.items) == 0 {
		return ""
	}
	msg := es.items[0].Error()
	if len(es.items) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(es.items)-1)
	}
	return msg
}

// Frame is one entry of a runtime traceback: the source position and the
// enclosing function name active when an exception propagated through it.
type Frame struct {
	FuncName string
	Pos      token.Position
}

// Traceback is the ordered call-stack snapshot attached to a raised
// exception, innermost frame first.
type Traceback struct {
	Frames []Frame
}

func (tb *Traceback) Push(f Frame) {
	tb.Frames = append(tb.Frames, f)
}

func (tb *Traceback) String() string {
	out := "Traceback (most recent call last):\n"
	for i := len(tb.Frames) - 1; i >= 0; i-- {
		f := tb.Frames[i]
		out += fmt.Sprintf("  line %d, in %s\n", f.Pos.Line, f.FuncName)
	}
	return out
}
