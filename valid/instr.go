package valid

import (
	"slices"

	"github.com/bvisness/wasm-validate/match"
	"github.com/bvisness/wasm-validate/wasm"
)

// checkInstr computes the stack contract of one instruction. It receives
// the inferred stack so far so that it can peek at operands whose contract
// is not closed-form (select without annotation, call_ref, func.bind,
// br_on_null, ref.as_non_null, br_table).
func checkInstr(c *Context, e wasm.Instr, s infStack) opType {
	switch op := e.It.(type) {
	case wasm.Unreachable:
		return poly(nil, nil)

	case wasm.Nop:
		return fixed(nil, nil)

	case wasm.Drop:
		t := peek(0, s)
		return fixed(ts(t), nil)

	case wasm.Select:
		if op.Ts != nil {
			checkSelectArity(len(*op.Ts), e.At)
			tt := (*op.Ts)[0]
			checkValType(c, tt, e.At)
			return fixed(ts(tt, tt, wasm.I32), ts(tt))
		}
		t := peek(1, s)
		require(isNumOrBot(t), e.At,
			"type mismatch: instruction requires numeric type but stack has %s", t)
		return fixed(ts(t, t, wasm.I32), ts(t))

	case wasm.Block:
		checkArity(c, len(op.Ts), e.At)
		checkBlock(c.withLabel(op.Ts), op.Es, op.Ts, e.At)
		return fixed(nil, op.Ts)

	case wasm.Loop:
		checkArity(c, len(op.Ts), e.At)
		checkBlock(c.withLabel(nil), op.Es, op.Ts, e.At)
		return fixed(nil, op.Ts)

	case wasm.If:
		checkArity(c, len(op.Ts), e.At)
		checkBlock(c.withLabel(op.Ts), op.Then, op.Ts, e.At)
		checkBlock(c.withLabel(op.Ts), op.Else, op.Ts, e.At)
		return fixed(ts(wasm.I32), op.Ts)

	case wasm.Let:
		checkArity(c, len(op.Ts), e.At)
		lts := make([]wasm.ValType, len(op.Locals))
		for i, l := range op.Locals {
			checkValType(c, l.It, l.At)
			lts[i] = l.It
		}
		checkBlock(c.withLocals(lts).withLabel(op.Ts), op.Es, op.Ts, e.At)
		return fixed(lts, op.Ts)

	case wasm.Br:
		return poly(c.labelAt(op.X), nil)

	case wasm.BrIf:
		lts := c.labelAt(op.X)
		return fixed(append(slices.Clone(lts), wasm.I32), lts)

	case wasm.BrTable:
		n := len(c.labelAt(op.X))
		shape := make([]wasm.ValType, n)
		for i := range n {
			shape[i] = peek(n-i, s)
		}
		checkStack(c, shape, c.labelAt(op.X), op.X.At)
		for _, x := range op.Xs {
			checkStack(c, shape, c.labelAt(x), x.At)
		}
		return poly(append(slices.Clone(shape), wasm.I32), nil)

	case wasm.BrOnNull:
		lts := c.labelAt(op.X)
		switch t := peek(0, s).(type) {
		case wasm.BotType:
			return poly(nil, nil)
		case wasm.DefRefType:
			ins := append(slices.Clone(lts), wasm.DefRefType{Nul: wasm.Nullable, Idx: t.Idx})
			outs := append(slices.Clone(lts), wasm.DefRefType{Nul: wasm.NonNullable, Idx: t.Idx})
			return fixed(ins, outs)
		default:
			errorAt(e.At, "type mismatch: expected reference type but stack has %s", t)
		}

	case wasm.Return:
		return poly(c.Results, nil)

	case wasm.Call:
		ft := c.funcTypeOf(c.funcAt(op.X), op.X.At)
		return fixed(ft.Ins, ft.Outs)

	case wasm.CallRef:
		switch t := peek(0, s).(type) {
		case wasm.BotType:
			return poly(nil, nil)
		case wasm.DefRefType:
			ft := c.funcTypeOf(t.Idx, e.At)
			return fixed(append(slices.Clone(ft.Ins), t), ft.Outs)
		default:
			errorAt(e.At, "type mismatch: expected function reference but stack has %s", t)
		}

	case wasm.CallIndirect:
		tt := c.tableAt(op.X)
		require(match.RefTypes(c.Types, nil, tt.Elem, wasm.FuncRefType{}), op.X.At,
			"type mismatch: table %d's element type is not a function reference", op.X.It)
		ft := c.funcTypeAt(op.Y)
		return fixed(append(slices.Clone(ft.Ins), wasm.I32), ft.Outs)

	case wasm.ReturnCallRef:
		switch t := peek(0, s).(type) {
		case wasm.BotType:
			return poly(nil, nil)
		case wasm.DefRefType:
			ft := c.funcTypeOf(t.Idx, e.At)
			require(match.StackTypes(c.Types, nil, ft.Outs, c.Results), e.At,
				"type mismatch: callee returns %s but caller expects %s",
				wasm.StackString(ft.Outs), wasm.StackString(c.Results))
			return poly(append(slices.Clone(ft.Ins), t), nil)
		default:
			errorAt(e.At, "type mismatch: expected function reference but stack has %s", t)
		}

	case wasm.FuncBind:
		target := c.funcTypeAt(op.X)
		switch t := peek(0, s).(type) {
		case wasm.BotType:
			return poly(nil, ts(wasm.DefRefType{Nul: wasm.NonNullable, Idx: op.X.It}))
		case wasm.DefRefType:
			ft := c.funcTypeOf(t.Idx, e.At)
			require(len(ft.Ins) >= len(target.Ins), e.At,
				"type mismatch: function has fewer parameters than bound type %d", op.X.It)
			split := len(ft.Ins) - len(target.Ins)
			bound := wasm.FuncType{Ins: ft.Ins[split:], Outs: ft.Outs}
			require(match.FuncTypes(c.Types, nil, bound, target), e.At,
				"type mismatch: function does not match bound type %d", op.X.It)
			ins := append(slices.Clone(ft.Ins[:split]), t)
			return fixed(ins, ts(wasm.DefRefType{Nul: wasm.NonNullable, Idx: op.X.It}))
		default:
			errorAt(e.At, "type mismatch: expected function reference but stack has %s", t)
		}

	case wasm.LocalGet:
		return fixed(nil, ts(c.localAt(op.X)))

	case wasm.LocalSet:
		return fixed(ts(c.localAt(op.X)), nil)

	case wasm.LocalTee:
		t := c.localAt(op.X)
		return fixed(ts(t), ts(t))

	case wasm.GlobalGet:
		return fixed(nil, ts(c.globalAt(op.X).T))

	case wasm.GlobalSet:
		gt := c.globalAt(op.X)
		require(gt.Mut == wasm.Mutable, op.X.At, "global is immutable")
		return fixed(ts(gt.T), nil)

	case wasm.TableGet:
		tt := c.tableAt(op.X)
		return fixed(ts(wasm.I32), ts(tt.Elem))

	case wasm.TableSet:
		tt := c.tableAt(op.X)
		return fixed(ts(wasm.I32, tt.Elem), nil)

	case wasm.TableSize:
		c.tableAt(op.X)
		return fixed(nil, ts(wasm.I32))

	case wasm.TableGrow:
		tt := c.tableAt(op.X)
		return fixed(ts(tt.Elem, wasm.I32), ts(wasm.I32))

	case wasm.TableFill:
		tt := c.tableAt(op.X)
		return fixed(ts(wasm.I32, tt.Elem, wasm.I32), nil)

	case wasm.TableCopy:
		dst := c.tableAt(op.X)
		src := c.tableAt(op.Y)
		require(match.RefTypes(c.Types, nil, src.Elem, dst.Elem), e.At,
			"type mismatch: table %d's element type does not match table %d's",
			op.Y.It, op.X.It)
		return fixed(ts(wasm.I32, wasm.I32, wasm.I32), nil)

	case wasm.TableInit:
		tt := c.tableAt(op.X)
		et := c.elemAt(op.Y)
		require(match.RefTypes(c.Types, nil, et, tt.Elem), e.At,
			"type mismatch: element segment %d's type does not match table %d's element type",
			op.Y.It, op.X.It)
		return fixed(ts(wasm.I32, wasm.I32, wasm.I32), nil)

	case wasm.ElemDrop:
		c.elemAt(op.X)
		return fixed(nil, nil)

	case wasm.Load:
		var sz *wasm.PackSize
		if op.Op.Sz != nil {
			sz = &op.Op.Sz.Size
		}
		checkMemOp(c, op.Op.MemOp, sz, e.At)
		return fixed(ts(wasm.I32), ts(op.Op.Ty))

	case wasm.Store:
		checkMemOp(c, op.Op.MemOp, op.Op.Sz, e.At)
		return fixed(ts(wasm.I32, op.Op.Ty), nil)

	case wasm.MemorySize:
		c.memoryAt(memZero(e.At))
		return fixed(nil, ts(wasm.I32))

	case wasm.MemoryGrow:
		c.memoryAt(memZero(e.At))
		return fixed(ts(wasm.I32), ts(wasm.I32))

	case wasm.MemoryFill:
		c.memoryAt(memZero(e.At))
		return fixed(ts(wasm.I32, wasm.I32, wasm.I32), nil)

	case wasm.MemoryCopy:
		c.memoryAt(memZero(e.At))
		return fixed(ts(wasm.I32, wasm.I32, wasm.I32), nil)

	case wasm.MemoryInit:
		c.memoryAt(memZero(e.At))
		c.dataAt(op.X)
		return fixed(ts(wasm.I32, wasm.I32, wasm.I32), nil)

	case wasm.DataDrop:
		c.dataAt(op.X)
		return fixed(nil, nil)

	case wasm.RefNull:
		return fixed(nil, ts(wasm.NullRefType{}))

	case wasm.RefIsNull:
		t := peek(0, s)
		require(isRefOrBot(t), e.At,
			"type mismatch: expected reference type but stack has %s", t)
		return fixed(ts(t), ts(wasm.I32))

	case wasm.RefAsNonNull:
		switch t := peek(0, s).(type) {
		case wasm.BotType:
			return poly(nil, nil)
		case wasm.DefRefType:
			in := wasm.DefRefType{Nul: wasm.Nullable, Idx: t.Idx}
			out := wasm.DefRefType{Nul: wasm.NonNullable, Idx: t.Idx}
			return fixed(ts(in), ts(out))
		default:
			errorAt(e.At, "type mismatch: expected reference type but stack has %s", t)
		}

	case wasm.RefFunc:
		tyIdx := c.funcAt(op.X)
		require(c.Refs.Has(op.X.It), op.X.At,
			"undeclared function reference %d", op.X.It)
		return fixed(nil, ts(wasm.DefRefType{Nul: wasm.NonNullable, Idx: tyIdx}))

	case wasm.Const:
		return fixed(nil, ts(op.Val.Type))

	case wasm.Test:
		return fixed(ts(op.Op.Type), ts(wasm.I32))

	case wasm.Compare:
		return fixed(ts(op.Op.Type, op.Op.Type), ts(wasm.I32))

	case wasm.Unary:
		return fixed(ts(op.Op.Type), ts(op.Op.Type))

	case wasm.Binary:
		return fixed(ts(op.Op.Type, op.Op.Type), ts(op.Op.Type))

	case wasm.Convert:
		from, to := convertTypes(op.Op, e.At)
		return fixed(ts(from), ts(to))
	}

	errorAt(e.At, "unknown instruction")
	panic("unreachable")
}

// checkSeq folds the contracts of a straight-line sequence into the stack
// it produces.
func checkSeq(c *Context, es []wasm.Instr) infStack {
	if len(es) == 0 {
		return closed(nil)
	}
	s := checkSeq(c, es[:len(es)-1])
	e := es[len(es)-1]
	ot := checkInstr(c, e, s)
	return push(ot.outs, pop(c, ot.ins, s, e.At))
}

// checkBlock requires a sequence to produce exactly ts on top of whatever
// lay below when it was entered.
func checkBlock(c *Context, es []wasm.Instr, ts []wasm.ValType, at *wasm.Region) {
	s := checkSeq(c, es)
	s2 := pop(c, closed(ts), s, at)
	require(len(s2.ts) == 0, at,
		"type mismatch: block requires %s but stack has %s",
		wasm.StackString(ts), s.String())
}

// checkArity enforces the single-result profile restriction at block
// boundaries.
func checkArity(c *Context, n int, at *wasm.Region) {
	if c.cfg.MultipleResults {
		return
	}
	require(n <= 1, at, "invalid result arity, larger than 1 is not (yet) allowed")
}

// checkSelectArity: an annotated select must name exactly one type.
func checkSelectArity(n int, at *wasm.Region) {
	if n == 0 {
		errorAt(at, "invalid result arity, 0 is not (yet) allowed")
	}
	require(n == 1, at, "invalid result arity, larger than 1 is not (yet) allowed")
}

// checkMemOp validates an access descriptor: memory 0 must exist, a packed
// size must be narrower than the operand, and the alignment must not exceed
// the accessed size.
func checkMemOp(c *Context, op wasm.MemOp, sz *wasm.PackSize, at *wasm.Region) {
	c.memoryAt(memZero(at))
	size := op.Ty.Size()
	if sz != nil {
		require(op.Ty == wasm.I64 || *sz != wasm.Pack32, at, "memory size too big")
		size = sz.Bytes()
	}
	require(op.Align < 32 && 1<<op.Align <= size, at,
		"alignment must not be larger than natural")
}

// convertTypes is the conversion table: which (family, op) pairs are real,
// and what they convert between.
func convertTypes(op wasm.CvtOp, at *wasm.Region) (from, to wasm.NumType) {
	type conv struct{ from, to wasm.NumType }
	var cv conv
	ok := true
	switch op.Op {
	case wasm.CvtWrapI64:
		cv, ok = conv{wasm.I64, wasm.I32}, op.Type == wasm.I32
	case wasm.CvtExtendSI32, wasm.CvtExtendUI32:
		cv, ok = conv{wasm.I32, wasm.I64}, op.Type == wasm.I64
	case wasm.CvtTruncSF32, wasm.CvtTruncUF32:
		cv, ok = conv{wasm.F32, op.Type}, op.Type == wasm.I32 || op.Type == wasm.I64
	case wasm.CvtTruncSF64, wasm.CvtTruncUF64:
		cv, ok = conv{wasm.F64, op.Type}, op.Type == wasm.I32 || op.Type == wasm.I64
	case wasm.CvtConvertSI32, wasm.CvtConvertUI32:
		cv, ok = conv{wasm.I32, op.Type}, op.Type == wasm.F32 || op.Type == wasm.F64
	case wasm.CvtConvertSI64, wasm.CvtConvertUI64:
		cv, ok = conv{wasm.I64, op.Type}, op.Type == wasm.F32 || op.Type == wasm.F64
	case wasm.CvtDemoteF64:
		cv, ok = conv{wasm.F64, wasm.F32}, op.Type == wasm.F32
	case wasm.CvtPromoteF32:
		cv, ok = conv{wasm.F32, wasm.F64}, op.Type == wasm.F64
	case wasm.CvtReinterpretInt:
		switch op.Type {
		case wasm.F32:
			cv = conv{wasm.I32, wasm.F32}
		case wasm.F64:
			cv = conv{wasm.I64, wasm.F64}
		default:
			ok = false
		}
	case wasm.CvtReinterpretFloat:
		switch op.Type {
		case wasm.I32:
			cv = conv{wasm.F32, wasm.I32}
		case wasm.I64:
			cv = conv{wasm.F64, wasm.I64}
		default:
			ok = false
		}
	default:
		ok = false
	}
	require(ok, at, "invalid conversion")
	return cv.from, cv.to
}

func ts(types ...wasm.ValType) []wasm.ValType {
	return types
}

func memZero(at *wasm.Region) wasm.Var {
	return wasm.Annotate(uint32(0), at)
}

func isNumOrBot(t wasm.ValType) bool {
	switch t.(type) {
	case wasm.NumType, wasm.BotType:
		return true
	}
	return false
}

func isRefOrBot(t wasm.ValType) bool {
	switch t.(type) {
	case wasm.RefType, wasm.BotType:
		return true
	}
	return false
}
