// Package valid type-checks a parsed module. CheckModule either accepts or
// reports a single diagnostic pinned to a source region; it never modifies
// the module.
package valid

import (
	"fmt"

	"github.com/bvisness/wasm-validate/wasm"
)

// Error is a validation diagnostic.
type Error struct {
	At  *wasm.Region
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.At, e.Msg)
}

// Rule violations unwind to the API boundary by panicking with an *Error;
// catch turns that back into a return value.

func errorAt(at *wasm.Region, format string, args ...any) {
	panic(&Error{At: at, Msg: fmt.Sprintf(format, args...)})
}

func require(b bool, at *wasm.Region, format string, args ...any) {
	if !b {
		errorAt(at, format, args...)
	}
}

func catch(err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(*Error); ok {
			*err = e
			return
		}
		panic(r)
	}
}
