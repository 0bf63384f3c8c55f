package valid

import (
	"github.com/bvisness/wasm-validate/utils"
	"github.com/bvisness/wasm-validate/wasm"
)

// Well-formedness of types in a context. The only obligation beyond shape
// is that every concrete reference resolves to a defined type and that
// limits fit their index range.

func checkValType(c *Context, t wasm.ValType, at *wasm.Region) {
	if rt, ok := t.(wasm.RefType); ok {
		checkRefType(c, rt, at)
	}
}

func checkRefType(c *Context, t wasm.RefType, at *wasm.Region) {
	if dr, ok := t.(wasm.DefRefType); ok {
		lookup("type", c.Types, wasm.Annotate(dr.Idx, at))
	}
}

func checkFuncType(c *Context, ft wasm.FuncType, at *wasm.Region) {
	for _, t := range ft.Ins {
		checkValType(c, t, at)
	}
	for _, t := range ft.Outs {
		checkValType(c, t, at)
	}
}

func checkDefType(c *Context, dt wasm.DefType, at *wasm.Region) {
	switch dt := dt.(type) {
	case wasm.FuncDefType:
		checkFuncType(c, dt.FuncType, at)
	default:
		utils.Assert(false, "unknown def type")
	}
}

func checkLimits(lim wasm.Limits, rangeMax uint64, at *wasm.Region, msg string) {
	require(utils.LeU(lim.Min, rangeMax), at, "%s", msg)
	if lim.Max != nil {
		require(utils.LeU(*lim.Max, rangeMax), at, "%s", msg)
		require(utils.LeU(lim.Min, *lim.Max), at,
			"size minimum must not be greater than maximum")
	}
}

func checkTableType(c *Context, tt wasm.TableType, at *wasm.Region) {
	checkLimits(tt.Lim, 1<<32, at, "table size must be at most 2^32")
	checkRefType(c, tt.Elem, at)
	require(wasm.Defaultable(tt.Elem), at, "non-defaultable element type")
}

func checkMemoryType(c *Context, mt wasm.MemoryType, at *wasm.Region) {
	checkLimits(mt.Lim, 1<<16, at,
		"memory size must be at most 65536 pages (4GiB)")
}

func checkGlobalType(c *Context, gt wasm.GlobalType, at *wasm.Region) {
	checkValType(c, gt.T, at)
}
