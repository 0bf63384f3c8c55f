package wasm

import (
	"fmt"
	"strings"
)

// Value and composite types for the function-references profile.
//
// ValType is a closed union: NumType, a RefType, or BotType. BotType is the
// checker's placeholder for an unknown slot below unreachable code; it never
// appears in a module's declarations.

type ValType interface {
	valType()
	String() string
}

type NumType int

const (
	I32 NumType = iota
	I64
	F32
	F64
)

func (NumType) valType() {}

func (t NumType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return "?num"
}

// Size returns the byte width of a numeric value.
func (t NumType) Size() uint32 {
	switch t {
	case I32, F32:
		return 4
	default:
		return 8
	}
}

type RefType interface {
	ValType
	refType()
}

type (
	// AnyRefType is the top of the reference hierarchy.
	AnyRefType struct{}
	// NullRefType is the type of ref.null, below every nullable reference.
	NullRefType struct{}
	// FuncRefType covers references to functions of any type.
	FuncRefType struct{}
	// DefRefType is a reference to a specific defined type.
	DefRefType struct {
		Nul Nullability
		Idx uint32
	}
)

func (AnyRefType) valType()  {}
func (AnyRefType) refType()  {}
func (NullRefType) valType() {}
func (NullRefType) refType() {}
func (FuncRefType) valType() {}
func (FuncRefType) refType() {}
func (DefRefType) valType()  {}
func (DefRefType) refType()  {}

func (AnyRefType) String() string  { return "anyref" }
func (NullRefType) String() string { return "nullref" }
func (FuncRefType) String() string { return "funcref" }

func (t DefRefType) String() string {
	if t.Nul == Nullable {
		return fmt.Sprintf("(ref null %d)", t.Idx)
	}
	return fmt.Sprintf("(ref %d)", t.Idx)
}

type BotType struct{}

func (BotType) valType()       {}
func (BotType) String() string { return "bot" }

type Nullability int

const (
	NonNullable Nullability = iota
	Nullable
)

type Mutability int

const (
	Immutable Mutability = iota
	Mutable
)

// Defaultable reports whether t has a canonical zero value: all numeric
// types and every reference that admits null.
func Defaultable(t ValType) bool {
	switch t := t.(type) {
	case NumType:
		return true
	case DefRefType:
		return t.Nul == Nullable
	case AnyRefType, NullRefType, FuncRefType:
		return true
	}
	return false
}

type FuncType struct {
	Ins  []ValType
	Outs []ValType
}

func (ft FuncType) String() string {
	return StackString(ft.Ins) + " -> " + StackString(ft.Outs)
}

// DefType is a definable type. The only form at this profile is a function
// type; the union leaves room for more.
type DefType interface {
	defType()
}

type FuncDefType struct {
	FuncType
}

func (FuncDefType) defType() {}

type Limits struct {
	Min uint64
	Max *uint64
}

type TableType struct {
	Lim  Limits
	Elem RefType
}

type MemoryType struct {
	Lim Limits
}

type GlobalType struct {
	T   ValType
	Mut Mutability
}

// StackString renders a list of value types the way diagnostics quote stack
// shapes, e.g. "[i32 f64]".
func StackString(ts []ValType) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, t := range ts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.String())
	}
	b.WriteByte(']')
	return b.String()
}
