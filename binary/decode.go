// Package binary decodes the WebAssembly binary format, with the typed
// function-references extensions, into the syntactic AST. Every decoded
// phrase carries the byte range it came from.
package binary

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/bvisness/wasm-validate/wasm"
	"github.com/jcalabro/leb128"
)

// Section ids.
const (
	secCustom byte = iota
	secType
	secImport
	secFunc
	secTable
	secMemory
	secGlobal
	secExport
	secStart
	secElem
	secCode
	secData
	secDataCount
)

// Value type encodings. Negative type codes share space with the s33 block
// type encoding.
const (
	tcI32     = -0x01 // 0x7F
	tcI64     = -0x02 // 0x7E
	tcF32     = -0x03 // 0x7D
	tcF64     = -0x04 // 0x7C
	tcFuncRef = -0x10 // 0x70
	tcAnyRef  = -0x11 // 0x6F
	tcNullRef = -0x12 // 0x6E
	tcRef     = -0x13 // 0x6D, concrete heap type follows
	tcOptRef  = -0x14 // 0x6C, concrete heap type follows
	tcEmpty   = -0x40 // 0x40, block types only
	tcFunc    = -0x20 // 0x60, function type definitions
)

const maxFuncLocals = 1 << 20

// DecodeModule decodes a complete binary module. The name attributes
// regions in diagnostics.
func DecodeModule(name string, b []byte) (m wasm.Module, err error) {
	defer catch(&err)
	s := &stream{name: name, b: b}
	s.expect([]byte{0x00, 'a', 's', 'm'}, "magic number")
	s.expect([]byte{0x01, 0x00, 0x00, 0x00}, "version number")

	var it wasm.Module_
	var bodies []codeEntry
	var dataCount *uint32
	lastSec := secCustom
	for !s.eos() {
		pos := s.pos
		id := s.readByte()
		size := s.u32()
		end := s.pos + int(size)
		s.check(int(size))
		if id != secCustom {
			s.require(id <= secDataCount, pos, "malformed section id")
			s.require(sectionRank(lastSec) < sectionRank(id), pos, "unexpected section")
			lastSec = id
		}

		switch id {
		case secCustom:
			s.name_()
			s.pos = end
		case secType:
			it.Types = vec(s, func(s *stream) wasm.TypeDef {
				return at(s, func(s *stream) wasm.DefType { return s.defType() })
			})
			s.types = it.Types
		case secImport:
			it.Imports = vec(s, func(s *stream) wasm.Import {
				return at(s, func(s *stream) wasm.Import_ { return s.import_() })
			})
		case secFunc:
			// Bodies arrive in the code section; remember the types and
			// zip at the end.
			it.Funcs = vec(s, func(s *stream) wasm.Func {
				return at(s, func(s *stream) wasm.Func_ {
					return wasm.Func_{FType: s.var_()}
				})
			})
		case secTable:
			it.Tables = vec(s, func(s *stream) wasm.Table {
				return at(s, func(s *stream) wasm.Table_ {
					return wasm.Table_{TType: s.tableType()}
				})
			})
		case secMemory:
			it.Memories = vec(s, func(s *stream) wasm.Memory {
				return at(s, func(s *stream) wasm.Memory_ {
					return wasm.Memory_{MType: s.memoryType()}
				})
			})
		case secGlobal:
			it.Globals = vec(s, func(s *stream) wasm.Global {
				return at(s, func(s *stream) wasm.Global_ {
					gt := s.globalType()
					return wasm.Global_{GType: gt, GInit: s.constExpr()}
				})
			})
		case secExport:
			it.Exports = vec(s, func(s *stream) wasm.Export {
				return at(s, func(s *stream) wasm.Export_ { return s.export() })
			})
		case secStart:
			it.Start = s.var_()
		case secElem:
			it.Elems = vec(s, func(s *stream) wasm.ElemSegment {
				return at(s, func(s *stream) wasm.ElemSegment_ { return s.elemSegment() })
			})
		case secCode:
			bodies = vec(s, func(s *stream) codeEntry { return s.codeEntry() })
		case secData:
			it.Datas = vec(s, func(s *stream) wasm.DataSegment {
				return at(s, func(s *stream) wasm.DataSegment_ { return s.dataSegment() })
			})
		case secDataCount:
			n := s.u32()
			dataCount = &n
		}
		s.require(s.pos == end, pos, "section size mismatch")
	}

	s.require(len(bodies) == len(it.Funcs), 0,
		"function and code section have inconsistent lengths")
	for i, f := range it.Funcs {
		f.It.Locals = bodies[i].locals
		f.It.Body = bodies[i].body
	}
	if dataCount != nil {
		s.require(int(*dataCount) == len(it.Datas), 0,
			"data count and data section have inconsistent lengths")
	}
	return wasm.Annotate(it, s.region(0, s.len())), nil
}

// sectionRank orders the non-custom sections; DataCount sits between the
// element and code sections.
func sectionRank(id byte) int {
	switch id {
	case secDataCount:
		return int(secElem) + 1
	case secCode:
		return int(secElem) + 2
	case secData:
		return int(secElem) + 3
	default:
		return int(id)
	}
}

// Integers.

func (s *stream) u64() uint64 {
	pos := s.pos
	v, err := leb128.DecodeU64(s)
	if err != nil {
		s.errorAt(pos, "malformed LEB128 integer")
	}
	s.require(s.pos-pos > 0, pos, "unexpected end of section or function")
	return v
}

func (s *stream) u32() uint32 {
	pos := s.pos
	v := s.u64()
	s.require(v <= math.MaxUint32, pos, "integer too large")
	return uint32(v)
}

func (s *stream) s64() int64 {
	pos := s.pos
	v, err := leb128.DecodeS64(s)
	if err != nil {
		s.errorAt(pos, "malformed LEB128 integer")
	}
	s.require(s.pos-pos > 0, pos, "unexpected end of section or function")
	return v
}

func (s *stream) s33() int64 {
	pos := s.pos
	v := s.s64()
	s.require(v >= -(1<<32) && v < 1<<32, pos, "integer too large")
	return v
}

func (s *stream) f32() float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(s.readBytes(4)))
}

func (s *stream) f64() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(s.readBytes(8)))
}

// Generic values.

func vec[T any](s *stream, f func(s *stream) T) []T {
	pos := s.pos
	n := s.u32()
	s.require(int64(n) <= int64(s.len()-s.pos), pos, "length out of bounds")
	res := make([]T, n)
	for i := range res {
		res[i] = f(s)
	}
	return res
}

func opt[T any](s *stream, b bool, f func(s *stream) T) *T {
	if !b {
		return nil
	}
	v := f(s)
	return &v
}

func at[T any](s *stream, f func(s *stream) T) *wasm.Phrase[T] {
	left := s.pos
	x := f(s)
	return wasm.Annotate(x, s.region(left, s.pos))
}

func (s *stream) var_() wasm.Var {
	return at(s, func(s *stream) uint32 { return s.u32() })
}

func (s *stream) name_() string {
	pos := s.pos
	bs := s.readBytes(int(s.u32()))
	s.require(utf8.Valid(bs), pos, "malformed UTF-8 encoding")
	return string(bs)
}

// Types.

func (s *stream) typeCode() int64 {
	pos := s.pos
	v := s.s64()
	s.require(v >= -0x40 && v < 0, pos, "malformed type code")
	return v
}

func (s *stream) valType() wasm.ValType {
	pos := s.pos
	switch tc := s.typeCode(); tc {
	case tcI32:
		return wasm.I32
	case tcI64:
		return wasm.I64
	case tcF32:
		return wasm.F32
	case tcF64:
		return wasm.F64
	default:
		return s.refTypeCont(tc, pos)
	}
}

func (s *stream) refType() wasm.RefType {
	pos := s.pos
	return s.refTypeCont(s.typeCode(), pos)
}

// refTypeCont finishes a reference type whose leading code is already read.
func (s *stream) refTypeCont(tc int64, pos int) wasm.RefType {
	switch tc {
	case tcFuncRef:
		return wasm.FuncRefType{}
	case tcAnyRef:
		return wasm.AnyRefType{}
	case tcNullRef:
		return wasm.NullRefType{}
	case tcRef:
		return wasm.DefRefType{Nul: wasm.NonNullable, Idx: s.heapType()}
	case tcOptRef:
		return wasm.DefRefType{Nul: wasm.Nullable, Idx: s.heapType()}
	}
	s.errorAt(pos, "malformed value type")
	panic("unreachable")
}

// heapType reads the type index after a ref/optref code. Only concrete
// types can follow at this profile.
func (s *stream) heapType() uint32 {
	pos := s.pos
	v := s.s33()
	s.require(v >= 0, pos, "malformed heap type")
	return uint32(v)
}

func (s *stream) defType() wasm.DefType {
	pos := s.pos
	s.require(s.typeCode() == tcFunc, pos, "malformed type definition")
	ins := vec(s, (*stream).valType)
	outs := vec(s, (*stream).valType)
	return wasm.FuncDefType{FuncType: wasm.FuncType{Ins: ins, Outs: outs}}
}

func (s *stream) limits() wasm.Limits {
	pos := s.pos
	flag := s.readByte()
	s.require(flag <= 0x01, pos, "malformed limits flag")
	min := uint64(s.u32())
	max := opt(s, flag == 0x01, func(s *stream) uint64 { return uint64(s.u32()) })
	return wasm.Limits{Min: min, Max: max}
}

func (s *stream) tableType() wasm.TableType {
	et := s.refType()
	return wasm.TableType{Lim: s.limits(), Elem: et}
}

func (s *stream) memoryType() wasm.MemoryType {
	return wasm.MemoryType{Lim: s.limits()}
}

func (s *stream) globalType() wasm.GlobalType {
	t := s.valType()
	pos := s.pos
	mut := s.readByte()
	s.require(mut <= 0x01, pos, "malformed mutability")
	m := wasm.Immutable
	if mut == 0x01 {
		m = wasm.Mutable
	}
	return wasm.GlobalType{T: t, Mut: m}
}

// blockType resolves a block's result types. A type index refers to the
// type section, which always precedes code; blocks with parameters have no
// place in the AST, so they are rejected here.
func (s *stream) blockType() []wasm.ValType {
	pos := s.pos
	v := s.s33()
	if v >= 0 {
		s.require(int64(len(s.types)) > v, pos, "unknown type %d", v)
		ft, ok := s.types[v].It.(wasm.FuncDefType)
		s.require(ok && len(ft.Ins) == 0, pos, "illegal block type")
		return ft.Outs
	}
	if v == tcEmpty {
		return nil
	}
	return []wasm.ValType{s.refTypeContOrNum(v, pos)}
}

func (s *stream) refTypeContOrNum(tc int64, pos int) wasm.ValType {
	switch tc {
	case tcI32:
		return wasm.I32
	case tcI64:
		return wasm.I64
	case tcF32:
		return wasm.F32
	case tcF64:
		return wasm.F64
	}
	return s.refTypeCont(tc, pos)
}

// Imports, exports, segments.

func (s *stream) import_() wasm.Import_ {
	module := s.name_()
	name := s.name_()
	desc := at(s, func(s *stream) wasm.ImportDesc {
		pos := s.pos
		switch s.readByte() {
		case 0x00:
			return wasm.FuncImport{X: s.var_()}
		case 0x01:
			return wasm.TableImport{T: s.tableType()}
		case 0x02:
			return wasm.MemoryImport{T: s.memoryType()}
		case 0x03:
			return wasm.GlobalImport{T: s.globalType()}
		}
		s.errorAt(pos, "malformed import kind")
		panic("unreachable")
	})
	return wasm.Import_{Module: module, Name: name, Desc: desc}
}

func (s *stream) export() wasm.Export_ {
	name := s.name_()
	desc := at(s, func(s *stream) wasm.ExportDesc {
		pos := s.pos
		switch s.readByte() {
		case 0x00:
			return wasm.FuncExport{X: s.var_()}
		case 0x01:
			return wasm.TableExport{X: s.var_()}
		case 0x02:
			return wasm.MemoryExport{X: s.var_()}
		case 0x03:
			return wasm.GlobalExport{X: s.var_()}
		}
		s.errorAt(pos, "malformed export kind")
		panic("unreachable")
	})
	return wasm.Export_{Name: name, Desc: desc}
}

// elemSegment decodes the eight element segment formats. Bit 0 picks
// passive/declarative over active, bit 1 means an explicit table index
// (active) or declarative (otherwise), bit 2 switches funcidx lists to
// expression lists.
func (s *stream) elemSegment() wasm.ElemSegment_ {
	pos := s.pos
	flags := s.u32()
	s.require(flags <= 7, pos, "malformed element segment kind")

	var mode wasm.SegmentMode
	switch {
	case flags&0x01 == 0:
		var index wasm.Var
		if flags&0x02 != 0 {
			index = s.var_()
		} else {
			index = wasm.Annotate(uint32(0), s.region(pos, s.pos))
		}
		offset := s.constExpr()
		mode = wasm.Annotate[wasm.SegmentMode_](
			wasm.Active{Index: index, Offset: offset}, s.region(pos, s.pos))
	case flags&0x02 != 0:
		mode = wasm.Annotate[wasm.SegmentMode_](wasm.Declarative{}, s.region(pos, s.pos))
	default:
		mode = wasm.Annotate[wasm.SegmentMode_](wasm.Passive{}, s.region(pos, s.pos))
	}

	etype := wasm.RefType(wasm.FuncRefType{})
	var inits []wasm.ConstExpr
	if flags&0x04 == 0 {
		// elemkind + function indices, lowered to ref.func expressions.
		if flags != 0 {
			kpos := s.pos
			s.require(s.readByte() == 0x00, kpos, "malformed element kind")
		}
		inits = vec(s, func(s *stream) wasm.ConstExpr {
			return at(s, func(s *stream) []wasm.Instr {
				x := s.var_()
				return []wasm.Instr{wasm.Annotate[wasm.Instr_](wasm.RefFunc{X: x}, x.At)}
			})
		})
	} else {
		if flags != 4 {
			etype = s.refType()
		}
		inits = vec(s, (*stream).constExpr)
	}
	return wasm.ElemSegment_{EType: etype, EInit: inits, EMode: mode}
}

func (s *stream) dataSegment() wasm.DataSegment_ {
	pos := s.pos
	flags := s.u32()
	s.require(flags <= 2, pos, "malformed data segment kind")

	var mode wasm.SegmentMode
	if flags == 1 {
		mode = wasm.Annotate[wasm.SegmentMode_](wasm.Passive{}, s.region(pos, s.pos))
	} else {
		var index wasm.Var
		if flags == 2 {
			index = s.var_()
		} else {
			index = wasm.Annotate(uint32(0), s.region(pos, s.pos))
		}
		offset := s.constExpr()
		mode = wasm.Annotate[wasm.SegmentMode_](
			wasm.Active{Index: index, Offset: offset}, s.region(pos, s.pos))
	}
	init := vec(s, func(s *stream) byte { return s.readByte() })
	return wasm.DataSegment_{DInit: init, DMode: mode}
}

type codeEntry struct {
	locals []wasm.Local
	body   []wasm.Instr
}

func (s *stream) codeEntry() codeEntry {
	pos := s.pos
	size := s.u32()
	end := s.pos + int(size)
	s.check(int(size))

	total := 0
	groups := vec(s, func(s *stream) []wasm.Local {
		n := int(s.u32())
		total += n
		s.require(total <= maxFuncLocals, pos, "too many locals")
		l := at(s, func(s *stream) wasm.ValType { return s.valType() })
		locals := make([]wasm.Local, n)
		for i := range locals {
			locals[i] = l
		}
		return locals
	})
	var locals []wasm.Local
	for _, g := range groups {
		locals = append(locals, g...)
	}

	body := s.instrBlock(0x0B)
	s.require(s.pos == end, pos, "code entry size mismatch")
	return codeEntry{locals: locals, body: body}
}

// Instructions.

func (s *stream) constExpr() wasm.ConstExpr {
	return at(s, func(s *stream) []wasm.Instr { return s.instrBlock(0x0B) })
}

// instrBlock reads instructions up to (and consuming) a terminator, which
// is either end or, inside an if, possibly else.
func (s *stream) instrBlock(terminators ...byte) []wasm.Instr {
	var es []wasm.Instr
	for {
		b, ok := s.peekByte()
		if !ok {
			s.errorAt(s.pos, "unexpected end of section or function")
		}
		for _, t := range terminators {
			if b == t {
				s.pos++
				s.lastTerminator = b
				return es
			}
		}
		es = append(es, at(s, func(s *stream) wasm.Instr_ { return s.instr() }))
	}
}

func (s *stream) instr() wasm.Instr_ {
	pos := s.pos
	b := s.readByte()
	switch b {
	case 0x00:
		return wasm.Unreachable{}
	case 0x01:
		return wasm.Nop{}
	case 0x02:
		ts := s.blockType()
		return wasm.Block{Ts: ts, Es: s.instrBlock(0x0B)}
	case 0x03:
		ts := s.blockType()
		return wasm.Loop{Ts: ts, Es: s.instrBlock(0x0B)}
	case 0x04:
		ts := s.blockType()
		then := s.instrBlock(0x05, 0x0B)
		var els []wasm.Instr
		if s.lastTerminator == 0x05 {
			els = s.instrBlock(0x0B)
		}
		return wasm.If{Ts: ts, Then: then, Else: els}
	case 0x0C:
		return wasm.Br{X: s.var_()}
	case 0x0D:
		return wasm.BrIf{X: s.var_()}
	case 0x0E:
		xs := vec(s, (*stream).var_)
		return wasm.BrTable{Xs: xs, X: s.var_()}
	case 0x0F:
		return wasm.Return{}
	case 0x10:
		return wasm.Call{X: s.var_()}
	case 0x11:
		y := s.var_()
		x := s.var_()
		return wasm.CallIndirect{X: x, Y: y}
	case 0x14:
		return wasm.CallRef{}
	case 0x15:
		return wasm.ReturnCallRef{}
	case 0x16:
		return wasm.FuncBind{X: s.var_()}
	case 0x17:
		ts := s.blockType()
		locals := vec(s, func(s *stream) wasm.Local {
			return at(s, func(s *stream) wasm.ValType { return s.valType() })
		})
		return wasm.Let{Ts: ts, Locals: locals, Es: s.instrBlock(0x0B)}
	case 0x1A:
		return wasm.Drop{}
	case 0x1B:
		return wasm.Select{}
	case 0x1C:
		ts := vec(s, (*stream).valType)
		return wasm.Select{Ts: &ts}
	case 0x20:
		return wasm.LocalGet{X: s.var_()}
	case 0x21:
		return wasm.LocalSet{X: s.var_()}
	case 0x22:
		return wasm.LocalTee{X: s.var_()}
	case 0x23:
		return wasm.GlobalGet{X: s.var_()}
	case 0x24:
		return wasm.GlobalSet{X: s.var_()}
	case 0x25:
		return wasm.TableGet{X: s.var_()}
	case 0x26:
		return wasm.TableSet{X: s.var_()}

	case 0x28, 0x29, 0x2A, 0x2B, 0x2C, 0x2D, 0x2E, 0x2F,
		0x30, 0x31, 0x32, 0x33, 0x34, 0x35:
		return s.loadInstr(b)
	case 0x36, 0x37, 0x38, 0x39, 0x3A, 0x3B, 0x3C, 0x3D, 0x3E:
		return s.storeInstr(b)

	case 0x3F:
		s.zeroByte()
		return wasm.MemorySize{}
	case 0x40:
		s.zeroByte()
		return wasm.MemoryGrow{}

	case 0x41:
		return wasm.Const{Val: wasm.Value{Type: wasm.I32, I32: int32(s.s64())}}
	case 0x42:
		return wasm.Const{Val: wasm.Value{Type: wasm.I64, I64: s.s64()}}
	case 0x43:
		return wasm.Const{Val: wasm.Value{Type: wasm.F32, F32: s.f32()}}
	case 0x44:
		return wasm.Const{Val: wasm.Value{Type: wasm.F64, F64: s.f64()}}

	case 0xD0:
		return wasm.RefNull{}
	case 0xD1:
		return wasm.RefIsNull{}
	case 0xD2:
		return wasm.RefFunc{X: s.var_()}
	case 0xD3:
		return wasm.RefAsNonNull{}
	case 0xD4:
		return wasm.BrOnNull{X: s.var_()}

	case 0xFC:
		return s.miscInstr(pos)
	}
	if in, ok := numericInstr(b); ok {
		return in
	}
	s.errorAt(pos, "illegal opcode 0x%02x", b)
	panic("unreachable")
}

func (s *stream) miscInstr(pos int) wasm.Instr_ {
	switch n := s.u32(); n {
	case 8:
		x := s.var_()
		s.zeroByte()
		return wasm.MemoryInit{X: x}
	case 9:
		return wasm.DataDrop{X: s.var_()}
	case 10:
		s.zeroByte()
		s.zeroByte()
		return wasm.MemoryCopy{}
	case 11:
		s.zeroByte()
		return wasm.MemoryFill{}
	case 12:
		y := s.var_()
		x := s.var_()
		return wasm.TableInit{X: x, Y: y}
	case 13:
		return wasm.ElemDrop{X: s.var_()}
	case 14:
		x := s.var_()
		y := s.var_()
		return wasm.TableCopy{X: x, Y: y}
	case 15:
		return wasm.TableGrow{X: s.var_()}
	case 16:
		return wasm.TableSize{X: s.var_()}
	case 17:
		return wasm.TableFill{X: s.var_()}
	default:
		s.errorAt(pos, "illegal opcode 0xfc %d", n)
		panic("unreachable")
	}
}

func (s *stream) zeroByte() {
	pos := s.pos
	s.require(s.readByte() == 0x00, pos, "zero byte expected")
}

func (s *stream) memOp(ty wasm.NumType) wasm.MemOp {
	align := s.u32()
	offset := s.u32()
	return wasm.MemOp{Ty: ty, Align: align, Offset: offset}
}

func (s *stream) loadInstr(b byte) wasm.Instr_ {
	var ty wasm.NumType
	var sz *wasm.LoadPack
	pack := func(t wasm.NumType, size wasm.PackSize, ext wasm.Extension) {
		ty = t
		sz = &wasm.LoadPack{Size: size, Ext: ext}
	}
	switch b {
	case 0x28:
		ty = wasm.I32
	case 0x29:
		ty = wasm.I64
	case 0x2A:
		ty = wasm.F32
	case 0x2B:
		ty = wasm.F64
	case 0x2C:
		pack(wasm.I32, wasm.Pack8, wasm.SignExt)
	case 0x2D:
		pack(wasm.I32, wasm.Pack8, wasm.ZeroExt)
	case 0x2E:
		pack(wasm.I32, wasm.Pack16, wasm.SignExt)
	case 0x2F:
		pack(wasm.I32, wasm.Pack16, wasm.ZeroExt)
	case 0x30:
		pack(wasm.I64, wasm.Pack8, wasm.SignExt)
	case 0x31:
		pack(wasm.I64, wasm.Pack8, wasm.ZeroExt)
	case 0x32:
		pack(wasm.I64, wasm.Pack16, wasm.SignExt)
	case 0x33:
		pack(wasm.I64, wasm.Pack16, wasm.ZeroExt)
	case 0x34:
		pack(wasm.I64, wasm.Pack32, wasm.SignExt)
	case 0x35:
		pack(wasm.I64, wasm.Pack32, wasm.ZeroExt)
	}
	return wasm.Load{Op: wasm.LoadOp{MemOp: s.memOp(ty), Sz: sz}}
}

func (s *stream) storeInstr(b byte) wasm.Instr_ {
	var ty wasm.NumType
	var sz *wasm.PackSize
	pack := func(t wasm.NumType, size wasm.PackSize) {
		ty = t
		sz = &size
	}
	switch b {
	case 0x36:
		ty = wasm.I32
	case 0x37:
		ty = wasm.I64
	case 0x38:
		ty = wasm.F32
	case 0x39:
		ty = wasm.F64
	case 0x3A:
		pack(wasm.I32, wasm.Pack8)
	case 0x3B:
		pack(wasm.I32, wasm.Pack16)
	case 0x3C:
		pack(wasm.I64, wasm.Pack8)
	case 0x3D:
		pack(wasm.I64, wasm.Pack16)
	case 0x3E:
		pack(wasm.I64, wasm.Pack32)
	}
	return wasm.Store{Op: wasm.StoreOp{MemOp: s.memOp(ty), Sz: sz}}
}
