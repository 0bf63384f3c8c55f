package valid

import (
	"github.com/bvisness/wasm-validate/free"
	"github.com/bvisness/wasm-validate/match"
	"github.com/bvisness/wasm-validate/utils"
	"github.com/bvisness/wasm-validate/wasm"
)

// Config toggles the profile restrictions that are "(yet)" in their
// diagnostics. The zero value is the restricted profile.
type Config struct {
	MultipleMemories bool
	MultipleResults  bool
}

// CheckModule validates m under the default profile. It returns nil on
// acceptance and a single *Error otherwise.
func CheckModule(m wasm.Module) error {
	return CheckModuleWith(m, Config{})
}

// CheckModuleWith validates m under cfg.
func CheckModuleWith(m wasm.Module, cfg Config) (err error) {
	defer catch(&err)
	checkModule(m, cfg)
	return nil
}

// Constant expressions (initializers and offsets).

func isConstInstr(c *Context, e wasm.Instr) bool {
	switch op := e.It.(type) {
	case wasm.RefNull, wasm.RefFunc, wasm.Const:
		return true
	case wasm.GlobalGet:
		return c.globalAt(op.X).Mut == wasm.Immutable
	}
	return false
}

func checkConst(c *Context, expr wasm.ConstExpr, t wasm.ValType) {
	for _, e := range expr.It {
		require(isConstInstr(c, e), e.At, "constant expression required")
	}
	checkBlock(c, expr.It, []wasm.ValType{t}, expr.At)
}

// Declarations.

func checkFunc(c *Context, f wasm.Func) {
	ft := c.funcTypeAt(f.It.FType)
	locals := make([]wasm.ValType, 0, len(ft.Ins)+len(f.It.Locals))
	locals = append(locals, ft.Ins...)
	for _, l := range f.It.Locals {
		checkValType(c, l.It, l.At)
		require(wasm.Defaultable(l.It), l.At, "non-defaultable local type")
		locals = append(locals, l.It)
	}
	c2 := *c
	c2.Locals = locals
	c2.Results = ft.Outs
	c2.Labels = [][]wasm.ValType{ft.Outs}
	checkBlock(&c2, f.It.Body, ft.Outs, f.At)
}

func checkTable(c *Context, t wasm.Table) {
	checkTableType(c, t.It.TType, t.At)
}

func checkMemory(c *Context, m wasm.Memory) {
	checkMemoryType(c, m.It.MType, m.At)
}

func checkGlobal(c *Context, g wasm.Global) {
	checkGlobalType(c, g.It.GType, g.At)
	checkConst(c, g.It.GInit, g.It.GType.T)
}

func checkElem(c *Context, seg wasm.ElemSegment) {
	checkRefType(c, seg.It.EType, seg.At)
	for _, init := range seg.It.EInit {
		checkConst(c, init, seg.It.EType)
	}
	switch mode := seg.It.EMode.It.(type) {
	case wasm.Passive, wasm.Declarative:
		// nothing beyond the inits
	case wasm.Active:
		tt := c.tableAt(mode.Index)
		require(match.RefTypes(c.Types, nil, seg.It.EType, tt.Elem), seg.At,
			"type mismatch: element segment's type does not match table's element type")
		checkConst(c, mode.Offset, wasm.I32)
	}
}

func checkData(c *Context, seg wasm.DataSegment) {
	switch mode := seg.It.DMode.It.(type) {
	case wasm.Passive:
	case wasm.Active:
		c.memoryAt(mode.Index)
		checkConst(c, mode.Offset, wasm.I32)
	case wasm.Declarative:
		// The front end cannot produce this shape; reaching it means a
		// broken parser, not an invalid module.
		utils.Assert(false, "declarative data segment")
	}
}

func checkStart(c *Context, x wasm.Var) {
	ft := c.funcTypeOf(c.funcAt(x), x.At)
	require(len(ft.Ins) == 0 && len(ft.Outs) == 0, x.At,
		"start function must not have parameters or results")
}

// Imports extend the environments of the context they are checked in.

func checkImport(c *Context, im wasm.Import) {
	switch desc := im.It.Desc.It.(type) {
	case wasm.FuncImport:
		c.funcTypeAt(desc.X)
		c.Funcs = append(c.Funcs, desc.X.It)
	case wasm.TableImport:
		checkTableType(c, desc.T, im.At)
		c.Tables = append(c.Tables, desc.T)
	case wasm.MemoryImport:
		checkMemoryType(c, desc.T, im.At)
		c.Memories = append(c.Memories, desc.T)
	case wasm.GlobalImport:
		checkGlobalType(c, desc.T, im.At)
		c.Globals = append(c.Globals, desc.T)
	}
}

func checkExport(c *Context, seen map[string]struct{}, ex wasm.Export) {
	switch desc := ex.It.Desc.It.(type) {
	case wasm.FuncExport:
		c.funcAt(desc.X)
	case wasm.TableExport:
		c.tableAt(desc.X)
	case wasm.MemoryExport:
		c.memoryAt(desc.X)
	case wasm.GlobalExport:
		c.globalAt(desc.X)
	}
	_, dup := seen[ex.It.Name]
	require(!dup, ex.At, "duplicate export name")
	seen[ex.It.Name] = struct{}{}
}

// checkModule assembles contexts in three phases and dispatches every
// declaration checker. Phasing matters: global initializers may refer to
// imported globals, to declared functions (through ref.func), and to the
// declared globals that precede them; function bodies see everything.
func checkModule(m wasm.Module, cfg Config) {
	types := make([]wasm.DefType, len(m.It.Types))
	for i, td := range m.It.Types {
		types[i] = td.It
	}

	c0 := &Context{
		Types: types,
		Refs:  free.List(free.Elem, m.It.Elems).Funcs,
		cfg:   cfg,
	}
	for _, im := range m.It.Imports {
		checkImport(c0, im)
	}

	c1 := *c0
	c1.Funcs = appendFrom(c0.Funcs, m.It.Funcs, func(f wasm.Func) uint32 { return f.It.FType.It })
	c1.Tables = appendFrom(c0.Tables, m.It.Tables, func(t wasm.Table) wasm.TableType { return t.It.TType })
	c1.Memories = appendFrom(c0.Memories, m.It.Memories, func(t wasm.Memory) wasm.MemoryType { return t.It.MType })
	c1.Elems = appendFrom(nil, m.It.Elems, func(s wasm.ElemSegment) wasm.RefType { return s.It.EType })
	c1.Datas = make([]struct{}, len(m.It.Datas))

	c := c1
	c.Globals = appendFrom(c0.Globals, m.It.Globals, func(g wasm.Global) wasm.GlobalType { return g.It.GType })

	for i, td := range m.It.Types {
		checkDefType(&c1, types[i], td.At)
	}
	// Each global's initializer sees imported globals plus the globals
	// declared before it, so the check threads an extending context.
	cg := c1
	cg.Globals = append([]wasm.GlobalType{}, c0.Globals...)
	for _, g := range m.It.Globals {
		checkGlobal(&cg, g)
		cg.Globals = append(cg.Globals, g.It.GType)
	}
	for _, t := range m.It.Tables {
		checkTable(&c1, t)
	}
	for _, mem := range m.It.Memories {
		checkMemory(&c1, mem)
	}
	for _, seg := range m.It.Elems {
		checkElem(&c1, seg)
	}
	for _, seg := range m.It.Datas {
		checkData(&c1, seg)
	}
	if m.It.Start != nil {
		checkStart(&c1, m.It.Start)
	}
	for _, f := range m.It.Funcs {
		checkFunc(&c, f)
	}
	seen := make(map[string]struct{}, len(m.It.Exports))
	for _, ex := range m.It.Exports {
		checkExport(&c, seen, ex)
	}
	if !cfg.MultipleMemories {
		require(len(c.Memories) <= 1, m.At, "multiple memories are not allowed (yet)")
	}
}

func appendFrom[T, U any](base []U, xs []T, f func(T) U) []U {
	out := make([]U, 0, len(base)+len(xs))
	out = append(out, base...)
	for _, x := range xs {
		out = append(out, f(x))
	}
	return out
}
