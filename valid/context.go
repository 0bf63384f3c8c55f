package valid

import (
	"github.com/bvisness/wasm-validate/free"
	"github.com/bvisness/wasm-validate/wasm"
)

// Context is the indexed environment a check runs in. It is assembled by
// the module driver and never mutated once a checker holds it; block entry
// derives extended copies.
type Context struct {
	Types    []wasm.DefType
	Funcs    []uint32 // type indices
	Tables   []wasm.TableType
	Memories []wasm.MemoryType
	Globals  []wasm.GlobalType
	Elems    []wasm.RefType
	Datas    []struct{} // data segments carry no type, only existence
	Locals   []wasm.ValType
	Results  []wasm.ValType
	Labels   [][]wasm.ValType // innermost first
	Refs     free.Set

	cfg Config
}

func lookup[T any](category string, xs []T, x wasm.Var) T {
	if uint64(x.It) >= uint64(len(xs)) {
		errorAt(x.At, "unknown %s %d", category, x.It)
	}
	return xs[x.It]
}

func (c *Context) typeAt(x wasm.Var) wasm.DefType      { return lookup("type", c.Types, x) }
func (c *Context) funcAt(x wasm.Var) uint32            { return lookup("function", c.Funcs, x) }
func (c *Context) tableAt(x wasm.Var) wasm.TableType   { return lookup("table", c.Tables, x) }
func (c *Context) memoryAt(x wasm.Var) wasm.MemoryType { return lookup("memory", c.Memories, x) }
func (c *Context) globalAt(x wasm.Var) wasm.GlobalType { return lookup("global", c.Globals, x) }
func (c *Context) elemAt(x wasm.Var) wasm.RefType      { return lookup("elem segment", c.Elems, x) }
func (c *Context) localAt(x wasm.Var) wasm.ValType     { return lookup("local", c.Locals, x) }
func (c *Context) labelAt(x wasm.Var) []wasm.ValType   { return lookup("label", c.Labels, x) }

func (c *Context) dataAt(x wasm.Var) {
	lookup("data segment", c.Datas, x)
}

// funcTypeAt resolves a type index to its function type. Defined types are
// all function types at this profile.
func (c *Context) funcTypeAt(x wasm.Var) wasm.FuncType {
	dt := c.typeAt(x)
	ft, ok := dt.(wasm.FuncDefType)
	require(ok, x.At, "type mismatch: type %d is not a function type", x.It)
	return ft.FuncType
}

// funcTypeOf is funcTypeAt for an already-resolved type index.
func (c *Context) funcTypeOf(x uint32, at *wasm.Region) wasm.FuncType {
	return c.funcTypeAt(wasm.Annotate(x, at))
}

// withLabel derives the context for a block whose branch target expects ts.
func (c *Context) withLabel(ts []wasm.ValType) *Context {
	c2 := *c
	c2.Labels = append([][]wasm.ValType{ts}, c.Labels...)
	return &c2
}

// withLocals prepends let-bound locals.
func (c *Context) withLocals(ts []wasm.ValType) *Context {
	c2 := *c
	c2.Locals = append(append([]wasm.ValType{}, ts...), c.Locals...)
	return &c2
}
