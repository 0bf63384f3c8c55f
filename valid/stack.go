package valid

import (
	"slices"
	"strings"

	"github.com/bvisness/wasm-validate/match"
	"github.com/bvisness/wasm-validate/utils"
	"github.com/bvisness/wasm-validate/wasm"
)

// The inferred stack: a known tail of value types (top at the end) plus a
// flag saying whether an arbitrary unknown prefix lies below it. The open
// form models the stack under unreachable code.

type infStack struct {
	open bool
	ts   []wasm.ValType
}

// opType is an instruction's stack contract.
type opType struct {
	ins  infStack
	outs infStack
}

func closed(ts []wasm.ValType) infStack {
	return infStack{false, ts}
}

// fixed is the ts1 --> ts2 contract.
func fixed(ins, outs []wasm.ValType) opType {
	return opType{closed(ins), closed(outs)}
}

// poly is the ts1 -->... ts2 contract of stack-polymorphic instructions.
func poly(ins, outs []wasm.ValType) opType {
	return opType{infStack{true, ins}, infStack{true, outs}}
}

func (s infStack) String() string {
	var b strings.Builder
	b.WriteByte('[')
	if s.open {
		b.WriteString("...")
		if len(s.ts) > 0 {
			b.WriteByte(' ')
		}
	}
	for i, t := range s.ts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.String())
	}
	b.WriteByte(']')
	return b.String()
}

// peek returns the i-th type from the top. Below a known tail with an open
// prefix the answer is always BotType, so peeking never fails.
func peek(i int, s infStack) wasm.ValType {
	if i >= len(s.ts) {
		return wasm.BotType{}
	}
	return s.ts[len(s.ts)-1-i]
}

// checkStack requires the actual types to match the expected ones slot for
// slot.
func checkStack(c *Context, actual, expected []wasm.ValType, at *wasm.Region) {
	ok := len(actual) == len(expected)
	if ok {
		for i := range actual {
			if !match.ValTypes(c.Types, nil, actual[i], expected[i]) {
				ok = false
				break
			}
		}
	}
	require(ok, at, "type mismatch: operator requires %s but stack has %s",
		wasm.StackString(expected), wasm.StackString(actual))
}

// pop consumes ins from the top of s and returns the residue. When s is
// open, slots the known tail cannot supply are widened to BotType; when it
// is closed, they are missing and the match fails.
func pop(c *Context, ins infStack, s infStack, at *wasm.Region) infStack {
	n1 := len(ins.ts)
	n2 := len(s.ts)
	n := utils.Min(n1, n2)
	n3 := 0
	if s.open {
		n3 = n1 - n
	}
	actual := make([]wasm.ValType, 0, n3+n)
	for range n3 {
		actual = append(actual, wasm.BotType{})
	}
	actual = append(actual, s.ts[n2-n:]...)
	checkStack(c, actual, ins.ts, at)
	if s.open {
		return infStack{true, nil}
	}
	return infStack{false, slices.Clone(s.ts[:n2-n])}
}

// push places outs above the residue.
func push(outs infStack, s infStack) infStack {
	return infStack{
		open: outs.open || s.open,
		ts:   append(slices.Clone(s.ts), outs.ts...),
	}
}
