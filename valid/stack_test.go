package valid

import (
	"testing"

	"github.com/bvisness/wasm-validate/wasm"
	"github.com/stretchr/testify/require"
)

func TestPeek(t *testing.T) {
	s := infStack{ts: []wasm.ValType{wasm.I64, wasm.I32}}
	require.Equal(t, wasm.ValType(wasm.I32), peek(0, s))
	require.Equal(t, wasm.ValType(wasm.I64), peek(1, s))
	require.Equal(t, wasm.ValType(wasm.BotType{}), peek(2, s))

	open := infStack{open: true}
	require.Equal(t, wasm.ValType(wasm.BotType{}), peek(0, open))
}

func TestPop(t *testing.T) {
	c := &Context{}

	t.Run("closed stack keeps its prefix", func(t *testing.T) {
		s := infStack{ts: []wasm.ValType{wasm.F32, wasm.I32}}
		res := pop(c, closed([]wasm.ValType{wasm.I32}), s, wasm.NoRegion)
		require.False(t, res.open)
		require.Equal(t, []wasm.ValType{wasm.F32}, res.ts)
	})

	t.Run("open stack widens missing slots", func(t *testing.T) {
		s := infStack{open: true, ts: []wasm.ValType{wasm.I32}}
		res := pop(c, closed([]wasm.ValType{wasm.I64, wasm.I32}), s, wasm.NoRegion)
		require.True(t, res.open)
		require.Empty(t, res.ts)
	})

	t.Run("closed underflow fails", func(t *testing.T) {
		err := checkErr(func() {
			pop(c, closed([]wasm.ValType{wasm.I32}), closed(nil), wasm.NoRegion)
		})
		require.ErrorContains(t, err,
			"type mismatch: operator requires [i32] but stack has []")
	})

	t.Run("mismatched slot fails", func(t *testing.T) {
		s := infStack{ts: []wasm.ValType{wasm.I64}}
		err := checkErr(func() {
			pop(c, closed([]wasm.ValType{wasm.I32}), s, wasm.NoRegion)
		})
		require.ErrorContains(t, err,
			"type mismatch: operator requires [i32] but stack has [i64]")
	})

	t.Run("pop does not alias the residue", func(t *testing.T) {
		s := infStack{ts: []wasm.ValType{wasm.F32, wasm.I32}}
		res := pop(c, closed([]wasm.ValType{wasm.I32}), s, wasm.NoRegion)
		_ = push(closed([]wasm.ValType{wasm.I64}), res)
		require.Equal(t, []wasm.ValType{wasm.F32, wasm.I32}, s.ts)
	})
}

func TestPush(t *testing.T) {
	res := push(closed([]wasm.ValType{wasm.I32}), infStack{ts: []wasm.ValType{wasm.F64}})
	require.False(t, res.open)
	require.Equal(t, []wasm.ValType{wasm.F64, wasm.I32}, res.ts)

	res = push(infStack{open: true}, closed(nil))
	require.True(t, res.open)
}

func TestInferStackString(t *testing.T) {
	require.Equal(t, "[]", infStack{}.String())
	require.Equal(t, "[i32 f64]",
		infStack{ts: []wasm.ValType{wasm.I32, wasm.F64}}.String())
	require.Equal(t, "[... i32]",
		infStack{open: true, ts: []wasm.ValType{wasm.I32}}.String())
}

func checkErr(f func()) (err error) {
	defer catch(&err)
	f()
	return nil
}
