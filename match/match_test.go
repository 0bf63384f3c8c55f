package match_test

import (
	"testing"

	"github.com/bvisness/wasm-validate/match"
	"github.com/bvisness/wasm-validate/wasm"
	"github.com/stretchr/testify/require"
)

var types = []wasm.DefType{
	wasm.FuncDefType{FuncType: wasm.FuncType{
		Ins:  []wasm.ValType{wasm.I32},
		Outs: []wasm.ValType{wasm.I32},
	}},
}

func defRef(nul wasm.Nullability, idx uint32) wasm.RefType {
	return wasm.DefRefType{Nul: nul, Idx: idx}
}

func TestValTypes(t *testing.T) {
	t.Run("reflexivity", func(t *testing.T) {
		for _, v := range []wasm.ValType{
			wasm.I32, wasm.I64, wasm.F32, wasm.F64,
			wasm.AnyRefType{}, wasm.NullRefType{}, wasm.FuncRefType{},
			defRef(wasm.Nullable, 0), defRef(wasm.NonNullable, 0),
		} {
			require.True(t, match.ValTypes(types, nil, v, v), "%s", v)
		}
	})

	t.Run("bottom matches everything", func(t *testing.T) {
		for _, v := range []wasm.ValType{
			wasm.I32, wasm.F64, wasm.AnyRefType{}, defRef(wasm.NonNullable, 0),
		} {
			require.True(t, match.ValTypes(types, nil, wasm.BotType{}, v))
			require.False(t, match.ValTypes(types, nil, v, wasm.BotType{}))
		}
	})

	t.Run("numeric types do not cross", func(t *testing.T) {
		require.False(t, match.ValTypes(types, nil, wasm.I32, wasm.I64))
		require.False(t, match.ValTypes(types, nil, wasm.I32, wasm.F32))
	})

	t.Run("numerics and references do not cross", func(t *testing.T) {
		require.False(t, match.ValTypes(types, nil, wasm.I32, wasm.AnyRefType{}))
		require.False(t, match.ValTypes(types, nil, wasm.AnyRefType{}, wasm.I32))
	})
}

func TestRefTypes(t *testing.T) {
	t.Run("everything below anyref", func(t *testing.T) {
		for _, v := range []wasm.RefType{
			wasm.NullRefType{}, wasm.FuncRefType{},
			defRef(wasm.Nullable, 0), defRef(wasm.NonNullable, 0),
		} {
			require.True(t, match.RefTypes(types, nil, v, wasm.AnyRefType{}))
			require.False(t, match.RefTypes(types, nil, wasm.AnyRefType{}, v))
		}
	})

	t.Run("null below nullable def refs", func(t *testing.T) {
		require.True(t, match.RefTypes(types, nil, wasm.NullRefType{}, defRef(wasm.Nullable, 0)))
		require.False(t, match.RefTypes(types, nil, wasm.NullRefType{}, defRef(wasm.NonNullable, 0)))
	})

	t.Run("nullability widens, never narrows", func(t *testing.T) {
		require.True(t, match.RefTypes(types, nil,
			defRef(wasm.NonNullable, 0), defRef(wasm.Nullable, 0)))
		require.False(t, match.RefTypes(types, nil,
			defRef(wasm.Nullable, 0), defRef(wasm.NonNullable, 0)))
	})

	t.Run("def refs with distinct indices are unrelated", func(t *testing.T) {
		types2 := append(types, types[0])
		require.False(t, match.RefTypes(types2, nil,
			defRef(wasm.Nullable, 0), defRef(wasm.Nullable, 1)))
	})

	t.Run("function defs below funcref", func(t *testing.T) {
		require.True(t, match.RefTypes(types, nil, defRef(wasm.NonNullable, 0), wasm.FuncRefType{}))
		require.True(t, match.RefTypes(types, nil, defRef(wasm.Nullable, 0), wasm.FuncRefType{}))
		require.False(t, match.RefTypes(types, nil, wasm.FuncRefType{}, defRef(wasm.Nullable, 0)))
		// An unresolvable index is not a function.
		require.False(t, match.RefTypes(types, nil, defRef(wasm.Nullable, 9), wasm.FuncRefType{}))
	})
}

func TestFuncTypes(t *testing.T) {
	i32i32 := wasm.FuncType{
		Ins:  []wasm.ValType{wasm.I32},
		Outs: []wasm.ValType{wasm.I32},
	}
	require.True(t, match.FuncTypes(types, nil, i32i32, i32i32))

	wider := wasm.FuncType{
		Ins:  []wasm.ValType{wasm.I32, wasm.I32},
		Outs: []wasm.ValType{wasm.I32},
	}
	require.False(t, match.FuncTypes(types, nil, i32i32, wider))

	// Inputs are contravariant: accepting a nullable ref serves where a
	// non-null one is expected.
	accNullable := wasm.FuncType{Ins: []wasm.ValType{defRef(wasm.Nullable, 0)}}
	accNonNull := wasm.FuncType{Ins: []wasm.ValType{defRef(wasm.NonNullable, 0)}}
	require.True(t, match.FuncTypes(types, nil, accNullable, accNonNull))
	require.False(t, match.FuncTypes(types, nil, accNonNull, accNullable))

	// Outputs are covariant.
	retNullable := wasm.FuncType{Outs: []wasm.ValType{defRef(wasm.Nullable, 0)}}
	retNonNull := wasm.FuncType{Outs: []wasm.ValType{defRef(wasm.NonNullable, 0)}}
	require.True(t, match.FuncTypes(types, nil, retNonNull, retNullable))
	require.False(t, match.FuncTypes(types, nil, retNullable, retNonNull))
}

func TestStackTypes(t *testing.T) {
	require.True(t, match.StackTypes(types, nil, nil, nil))
	require.True(t, match.StackTypes(types, nil,
		[]wasm.ValType{wasm.I32, wasm.BotType{}},
		[]wasm.ValType{wasm.I32, wasm.F64}))
	require.False(t, match.StackTypes(types, nil,
		[]wasm.ValType{wasm.I32},
		[]wasm.ValType{wasm.I32, wasm.I32}))
}

func TestDefTypes(t *testing.T) {
	require.True(t, match.DefTypes(types, nil, types[0], types[0]))
}
