package wasm

import "fmt"

// Source positions and regions. Binary positions have no line; the byte
// offset lives in Column and Line is -1, which prints as a hex offset.

type Pos struct {
	File   string
	Line   int
	Column int
}

type Region struct {
	Left  Pos
	Right Pos
}

// Phrase is a piece of AST annotated with the source region it came from.
type Phrase[T any] struct {
	At *Region
	It T
}

// Annotate wraps a payload with its region.
func Annotate[T any](it T, at *Region) *Phrase[T] {
	return &Phrase[T]{At: at, It: it}
}

var NoRegion = &Region{}

func (p Pos) String() string {
	if p.Line == -1 {
		return fmt.Sprintf("0x%x", p.Column)
	}
	return fmt.Sprintf("%d.%d", p.Line, p.Column)
}

func (r *Region) String() string {
	if r == nil || *r == (Region{}) {
		return "(unknown region)"
	}
	s := r.Left.File + ":" + r.Left.String()
	if r.Right != r.Left {
		s += "-" + r.Right.String()
	}
	return s
}
