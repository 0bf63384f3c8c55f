// Package free collects the indices an AST fragment refers to, one set per
// index space. The validator uses the Funcs set of a module's element
// segments to gate ref.func.
package free

import "github.com/bvisness/wasm-validate/wasm"

type Set map[uint32]struct{}

func (s Set) Has(x uint32) bool {
	_, ok := s[x]
	return ok
}

func (s Set) add(x uint32) Set {
	if s == nil {
		s = make(Set)
	}
	s[x] = struct{}{}
	return s
}

func (s Set) union(t Set) Set {
	for x := range t {
		s = s.add(x)
	}
	return s
}

// Vars holds the referenced indices of every index space.
type Vars struct {
	Types    Set
	Funcs    Set
	Tables   Set
	Memories Set
	Globals  Set
	Elems    Set
	Datas    Set
	Locals   Set
	Labels   Set
}

func (v Vars) union(w Vars) Vars {
	return Vars{
		Types:    v.Types.union(w.Types),
		Funcs:    v.Funcs.union(w.Funcs),
		Tables:   v.Tables.union(w.Tables),
		Memories: v.Memories.union(w.Memories),
		Globals:  v.Globals.union(w.Globals),
		Elems:    v.Elems.union(w.Elems),
		Datas:    v.Datas.union(w.Datas),
		Locals:   v.Locals.union(w.Locals),
		Labels:   v.Labels.union(w.Labels),
	}
}

// List projects each element of xs through f and unions the results.
func List[T any](f func(T) Vars, xs []T) Vars {
	var v Vars
	for _, x := range xs {
		v = v.union(f(x))
	}
	return v
}

func types(x wasm.Var) Vars  { return Vars{Types: Set{}.add(x.It)} }
func funcs(x wasm.Var) Vars  { return Vars{Funcs: Set{}.add(x.It)} }
func tables(x wasm.Var) Vars { return Vars{Tables: Set{}.add(x.It)} }
func globals(x wasm.Var) Vars { return Vars{Globals: Set{}.add(x.It)} }
func elems(x wasm.Var) Vars  { return Vars{Elems: Set{}.add(x.It)} }
func datas(x wasm.Var) Vars  { return Vars{Datas: Set{}.add(x.It)} }
func locals(x wasm.Var) Vars { return Vars{Locals: Set{}.add(x.It)} }
func labels(x wasm.Var) Vars { return Vars{Labels: Set{}.add(x.It)} }

func memoryZero() Vars { return Vars{Memories: Set{}.add(0)} }

// Block is the free variables of a nested instruction sequence: label 0
// refers to the block itself, so outer label indices shift down by one.
func Block(es []wasm.Instr) Vars {
	v := List(Instr, es)
	shifted := Set{}
	for x := range v.Labels {
		if x > 0 {
			shifted = shifted.add(x - 1)
		}
	}
	v.Labels = shifted
	return v
}

func Instr(e wasm.Instr) Vars {
	switch op := e.It.(type) {
	case wasm.Block:
		return Block(op.Es)
	case wasm.Loop:
		return Block(op.Es)
	case wasm.If:
		return Block(op.Then).union(Block(op.Else))
	case wasm.Let:
		return Block(op.Es)
	case wasm.Br:
		return labels(op.X)
	case wasm.BrIf:
		return labels(op.X)
	case wasm.BrTable:
		return List(labels, op.Xs).union(labels(op.X))
	case wasm.BrOnNull:
		return labels(op.X)
	case wasm.Call:
		return funcs(op.X)
	case wasm.CallIndirect:
		return tables(op.X).union(types(op.Y))
	case wasm.FuncBind:
		return types(op.X)
	case wasm.LocalGet:
		return locals(op.X)
	case wasm.LocalSet:
		return locals(op.X)
	case wasm.LocalTee:
		return locals(op.X)
	case wasm.GlobalGet:
		return globals(op.X)
	case wasm.GlobalSet:
		return globals(op.X)
	case wasm.TableGet:
		return tables(op.X)
	case wasm.TableSet:
		return tables(op.X)
	case wasm.TableSize:
		return tables(op.X)
	case wasm.TableGrow:
		return tables(op.X)
	case wasm.TableFill:
		return tables(op.X)
	case wasm.TableCopy:
		return tables(op.X).union(tables(op.Y))
	case wasm.TableInit:
		return tables(op.X).union(elems(op.Y))
	case wasm.ElemDrop:
		return elems(op.X)
	case wasm.Load, wasm.Store, wasm.MemorySize, wasm.MemoryGrow,
		wasm.MemoryFill, wasm.MemoryCopy:
		return memoryZero()
	case wasm.MemoryInit:
		return memoryZero().union(datas(op.X))
	case wasm.DataDrop:
		return datas(op.X)
	case wasm.RefFunc:
		return funcs(op.X)
	}
	return Vars{}
}

func Const(c wasm.ConstExpr) Vars {
	return List(Instr, c.It)
}

func Elem(seg wasm.ElemSegment) Vars {
	v := List(Const, seg.It.EInit)
	if mode, ok := seg.It.EMode.It.(wasm.Active); ok {
		v = v.union(tables(mode.Index)).union(Const(mode.Offset))
	}
	return v
}
