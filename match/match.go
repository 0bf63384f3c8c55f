// Package match decides subtyping for the function-references profile.
//
// Every relation takes the module's defined types, so that a concrete
// reference can be resolved, and an assumption list. The assumption list is
// the variance context for recursive definitions; at this profile no rule
// recurses through a type index, so callers pass nil, but the parameter is
// part of the interface.
package match

import "github.com/bvisness/wasm-validate/wasm"

// Assumption records a pair of type indices already taken to be related.
type Assumption struct {
	X, Y uint32
}

// ValTypes reports whether t matches (is usable where u is expected).
// BotType matches everything; otherwise equal types match, and references
// relate under RefTypes.
func ValTypes(types []wasm.DefType, ass []Assumption, t, u wasm.ValType) bool {
	if (t == wasm.BotType{}) {
		return true
	}
	if t == u {
		return true
	}
	rt, ok1 := t.(wasm.RefType)
	ru, ok2 := u.(wasm.RefType)
	return ok1 && ok2 && RefTypes(types, ass, rt, ru)
}

// RefTypes decides reference subtyping:
//
//	t <: t
//	nullref <: (ref null x)
//	(ref null? x) <: (ref null x)
//	(ref null? x) <: funcref      when x is a function type
//	t <: anyref
func RefTypes(types []wasm.DefType, ass []Assumption, t, u wasm.RefType) bool {
	if t == u {
		return true
	}
	if (u == wasm.AnyRefType{}) {
		return true
	}
	switch u := u.(type) {
	case wasm.DefRefType:
		if u.Nul != wasm.Nullable {
			return false
		}
		if (t == wasm.NullRefType{}) {
			return true
		}
		td, ok := t.(wasm.DefRefType)
		return ok && td.Idx == u.Idx
	case wasm.FuncRefType:
		td, ok := t.(wasm.DefRefType)
		if !ok {
			return false
		}
		_, isFunc := resolve(types, td.Idx).(wasm.FuncDefType)
		return isFunc
	}
	return false
}

// FuncTypes matches function types with equal arities, contravariant in
// inputs and covariant in outputs. Element-wise the only variance admitted
// is nullability: two elements match when they are equal or when a
// non-null reference stands where the nullable reference to the same
// defined type is expected.
func FuncTypes(types []wasm.DefType, ass []Assumption, t, u wasm.FuncType) bool {
	elems := func(ts, us []wasm.ValType) bool {
		if len(ts) != len(us) {
			return false
		}
		for i := range ts {
			td, ok1 := ts[i].(wasm.DefRefType)
			ud, ok2 := us[i].(wasm.DefRefType)
			if ts[i] != us[i] && !(ok1 && ok2 && td.Idx == ud.Idx && ud.Nul == wasm.Nullable) {
				return false
			}
		}
		return true
	}
	return elems(u.Ins, t.Ins) && elems(t.Outs, u.Outs)
}

// StackTypes matches two stack shapes of equal length element-wise.
func StackTypes(types []wasm.DefType, ass []Assumption, ts, us []wasm.ValType) bool {
	if len(ts) != len(us) {
		return false
	}
	for i := range ts {
		if !ValTypes(types, ass, ts[i], us[i]) {
			return false
		}
	}
	return true
}

// DefTypes matches two defined types.
func DefTypes(types []wasm.DefType, ass []Assumption, t, u wasm.DefType) bool {
	tf, ok1 := t.(wasm.FuncDefType)
	uf, ok2 := u.(wasm.FuncDefType)
	return ok1 && ok2 && FuncTypes(types, ass, tf.FuncType, uf.FuncType)
}

func resolve(types []wasm.DefType, x uint32) wasm.DefType {
	if uint64(x) >= uint64(len(types)) {
		return nil
	}
	return types[x]
}
