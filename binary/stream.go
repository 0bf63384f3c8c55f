package binary

import (
	"fmt"
	"io"

	"github.com/bvisness/wasm-validate/wasm"
)

// Error is a decode diagnostic.
type Error struct {
	At  *wasm.Region
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.At, e.Msg)
}

// The decoding stream: a byte slice with a cursor. Decode errors unwind by
// panicking with an *Error; DecodeModule recovers them.

type stream struct {
	name string
	b    []byte
	pos  int

	// types is the decoded type section, needed to resolve block types
	// while decoding code.
	types []wasm.TypeDef
	// lastTerminator records which terminator closed the last instrBlock,
	// so if can tell else from end.
	lastTerminator byte
}

// Read hands the stream to leb128 one byte at a time, so that integer
// decoding advances the cursor exactly as far as the encoding reaches.
var _ io.Reader = &stream{}

func (s *stream) Read(p []byte) (int, error) {
	if len(p) == 0 || s.eos() {
		return 0, io.EOF
	}
	p[0] = s.b[s.pos]
	s.pos++
	return 1, nil
}

func (s *stream) len() int {
	return len(s.b)
}

func (s *stream) eos() bool {
	return s.pos == s.len()
}

func (s *stream) position(pos int) wasm.Pos {
	return wasm.Pos{File: s.name, Line: -1, Column: pos}
}

func (s *stream) region(left, right int) *wasm.Region {
	return &wasm.Region{Left: s.position(left), Right: s.position(right)}
}

func (s *stream) errorAt(pos int, format string, args ...any) {
	panic(&Error{
		At:  s.region(pos, pos),
		Msg: fmt.Sprintf(format, args...),
	})
}

func (s *stream) require(b bool, pos int, format string, args ...any) {
	if !b {
		s.errorAt(pos, format, args...)
	}
}

func (s *stream) check(n int) {
	if s.pos+n > s.len() {
		s.errorAt(s.len(), "unexpected end of section or function")
	}
}

func (s *stream) readByte() byte {
	s.check(1)
	b := s.b[s.pos]
	s.pos++
	return b
}

func (s *stream) peekByte() (byte, bool) {
	if s.eos() {
		return 0, false
	}
	return s.b[s.pos], true
}

func (s *stream) readBytes(n int) []byte {
	s.check(n)
	bs := s.b[s.pos : s.pos+n]
	s.pos += n
	return bs
}

func (s *stream) expect(expected []byte, thing string) {
	pos := s.pos
	actual := s.readBytes(len(expected))
	for i := range expected {
		if actual[i] != expected[i] {
			s.errorAt(pos, "malformed %s", thing)
		}
	}
}

func catch(err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(*Error); ok {
			*err = e
			return
		}
		panic(r)
	}
}
