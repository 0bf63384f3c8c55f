package binary

import "github.com/bvisness/wasm-validate/wasm"

// numericInstr maps the contiguous numeric opcode space. The opcode fully
// determines the family and kind; no immediates follow.
func numericInstr(b byte) (wasm.Instr_, bool) {
	test := func(t wasm.NumType) (wasm.Instr_, bool) {
		return wasm.Test{Op: wasm.TestOp{Type: t, Op: wasm.TestEqz}}, true
	}
	rel := func(t wasm.NumType, k wasm.RelOpKind) (wasm.Instr_, bool) {
		return wasm.Compare{Op: wasm.RelOp{Type: t, Op: k}}, true
	}
	un := func(t wasm.NumType, k wasm.UnOpKind) (wasm.Instr_, bool) {
		return wasm.Unary{Op: wasm.UnOp{Type: t, Op: k}}, true
	}
	bin := func(t wasm.NumType, k wasm.BinOpKind) (wasm.Instr_, bool) {
		return wasm.Binary{Op: wasm.BinOp{Type: t, Op: k}}, true
	}
	cvt := func(t wasm.NumType, k wasm.CvtOpKind) (wasm.Instr_, bool) {
		return wasm.Convert{Op: wasm.CvtOp{Type: t, Op: k}}, true
	}

	switch b {
	case 0x45:
		return test(wasm.I32)
	case 0x46, 0x47, 0x48, 0x49, 0x4A, 0x4B, 0x4C, 0x4D, 0x4E, 0x4F:
		return rel(wasm.I32, intRelKinds[b-0x46])
	case 0x50:
		return test(wasm.I64)
	case 0x51, 0x52, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59, 0x5A:
		return rel(wasm.I64, intRelKinds[b-0x51])
	case 0x5B, 0x5C, 0x5D, 0x5E, 0x5F, 0x60:
		return rel(wasm.F32, floatRelKinds[b-0x5B])
	case 0x61, 0x62, 0x63, 0x64, 0x65, 0x66:
		return rel(wasm.F64, floatRelKinds[b-0x61])

	case 0x67, 0x68, 0x69:
		return un(wasm.I32, intUnKinds[b-0x67])
	case 0x6A, 0x6B, 0x6C, 0x6D, 0x6E, 0x6F,
		0x70, 0x71, 0x72, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78:
		return bin(wasm.I32, intBinKinds[b-0x6A])
	case 0x79, 0x7A, 0x7B:
		return un(wasm.I64, intUnKinds[b-0x79])
	case 0x7C, 0x7D, 0x7E, 0x7F,
		0x80, 0x81, 0x82, 0x83, 0x84, 0x85, 0x86, 0x87, 0x88, 0x89, 0x8A:
		return bin(wasm.I64, intBinKinds[b-0x7C])

	case 0x8B, 0x8C, 0x8D, 0x8E, 0x8F, 0x90, 0x91:
		return un(wasm.F32, floatUnKinds[b-0x8B])
	case 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98:
		return bin(wasm.F32, floatBinKinds[b-0x92])
	case 0x99, 0x9A, 0x9B, 0x9C, 0x9D, 0x9E, 0x9F:
		return un(wasm.F64, floatUnKinds[b-0x99])
	case 0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5, 0xA6:
		return bin(wasm.F64, floatBinKinds[b-0xA0])

	case 0xA7:
		return cvt(wasm.I32, wasm.CvtWrapI64)
	case 0xA8:
		return cvt(wasm.I32, wasm.CvtTruncSF32)
	case 0xA9:
		return cvt(wasm.I32, wasm.CvtTruncUF32)
	case 0xAA:
		return cvt(wasm.I32, wasm.CvtTruncSF64)
	case 0xAB:
		return cvt(wasm.I32, wasm.CvtTruncUF64)
	case 0xAC:
		return cvt(wasm.I64, wasm.CvtExtendSI32)
	case 0xAD:
		return cvt(wasm.I64, wasm.CvtExtendUI32)
	case 0xAE:
		return cvt(wasm.I64, wasm.CvtTruncSF32)
	case 0xAF:
		return cvt(wasm.I64, wasm.CvtTruncUF32)
	case 0xB0:
		return cvt(wasm.I64, wasm.CvtTruncSF64)
	case 0xB1:
		return cvt(wasm.I64, wasm.CvtTruncUF64)
	case 0xB2:
		return cvt(wasm.F32, wasm.CvtConvertSI32)
	case 0xB3:
		return cvt(wasm.F32, wasm.CvtConvertUI32)
	case 0xB4:
		return cvt(wasm.F32, wasm.CvtConvertSI64)
	case 0xB5:
		return cvt(wasm.F32, wasm.CvtConvertUI64)
	case 0xB6:
		return cvt(wasm.F32, wasm.CvtDemoteF64)
	case 0xB7:
		return cvt(wasm.F64, wasm.CvtConvertSI32)
	case 0xB8:
		return cvt(wasm.F64, wasm.CvtConvertUI32)
	case 0xB9:
		return cvt(wasm.F64, wasm.CvtConvertSI64)
	case 0xBA:
		return cvt(wasm.F64, wasm.CvtConvertUI64)
	case 0xBB:
		return cvt(wasm.F64, wasm.CvtPromoteF32)
	case 0xBC:
		return cvt(wasm.I32, wasm.CvtReinterpretFloat)
	case 0xBD:
		return cvt(wasm.I64, wasm.CvtReinterpretFloat)
	case 0xBE:
		return cvt(wasm.F32, wasm.CvtReinterpretInt)
	case 0xBF:
		return cvt(wasm.F64, wasm.CvtReinterpretInt)

	case 0xC0:
		return un(wasm.I32, wasm.UnExtendS8)
	case 0xC1:
		return un(wasm.I32, wasm.UnExtendS16)
	case 0xC2:
		return un(wasm.I64, wasm.UnExtendS8)
	case 0xC3:
		return un(wasm.I64, wasm.UnExtendS16)
	case 0xC4:
		return un(wasm.I64, wasm.UnExtendS32)
	}
	return nil, false
}

var intRelKinds = [...]wasm.RelOpKind{
	wasm.RelEq, wasm.RelNe,
	wasm.RelLtS, wasm.RelLtU, wasm.RelGtS, wasm.RelGtU,
	wasm.RelLeS, wasm.RelLeU, wasm.RelGeS, wasm.RelGeU,
}

var floatRelKinds = [...]wasm.RelOpKind{
	wasm.RelEq, wasm.RelNe, wasm.RelLt, wasm.RelGt, wasm.RelLe, wasm.RelGe,
}

var intUnKinds = [...]wasm.UnOpKind{wasm.UnClz, wasm.UnCtz, wasm.UnPopcnt}

var intBinKinds = [...]wasm.BinOpKind{
	wasm.BinAdd, wasm.BinSub, wasm.BinMul,
	wasm.BinDivS, wasm.BinDivU, wasm.BinRemS, wasm.BinRemU,
	wasm.BinAnd, wasm.BinOr, wasm.BinXor,
	wasm.BinShl, wasm.BinShrS, wasm.BinShrU, wasm.BinRotl, wasm.BinRotr,
}

var floatUnKinds = [...]wasm.UnOpKind{
	wasm.UnAbs, wasm.UnNeg, wasm.UnCeil, wasm.UnFloor,
	wasm.UnTrunc, wasm.UnNearest, wasm.UnSqrt,
}

var floatBinKinds = [...]wasm.BinOpKind{
	wasm.BinAdd, wasm.BinSub, wasm.BinMul, wasm.BinDiv,
	wasm.BinMin, wasm.BinMax, wasm.BinCopySign,
}
