package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Writer accumulates a function/main chunk's byte stream with little
// helper methods mirroring the original BytecodeBuilder's push_* family
// (original_source/delta/src/codegen.rs).
type Writer struct {
	Bytes []byte
}

func (w *Writer) Len() int { return len(w.Bytes) }

func (w *Writer) Byte(b byte) { w.Bytes = append(w.Bytes, b) }

func (w *Writer) Op(op Op) { w.Byte(byte(op)) }

func (w *Writer) U16(v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	w.Bytes = append(w.Bytes, buf[:]...)
}

func (w *Writer) I16(v int16) { w.U16(uint16(v)) }

func (w *Writer) I32(v int32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	w.Bytes = append(w.Bytes, buf[:]...)
}

func (w *Writer) F32(v float32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], math.Float32bits(v))
	w.Bytes = append(w.Bytes, buf[:]...)
}

// String writes a u8-length-prefixed string, erroring if it exceeds 255
// bytes (spec §4.4 "Limits").
func (w *Writer) String(s string) error {
	if len(s) > 255 {
		return fmt.Errorf("string literal %q exceeds 255 bytes", s)
	}
	w.Byte(byte(len(s)))
	w.Bytes = append(w.Bytes, s...)
	return nil
}

// ReservePlaceholder writes a two-byte zero placeholder and returns its
// byte offset, to be patched later by PatchJump.
func (w *Writer) ReservePlaceholder() int {
	pos := len(w.Bytes)
	w.U16(0)
	return pos
}

// PatchJump writes the signed offset from the position immediately after
// the placeholder to the current end of the buffer, matching the original
// compiler's "offset = len(bytes) - (placeholder + 2)" (spec §4.4 "Jumps").
func (w *Writer) PatchJump(placeholder int) error {
	offset := len(w.Bytes) - (placeholder + 2)
	if offset < -32768 || offset > 32767 {
		return fmt.Errorf("jump offset %d out of i16 range", offset)
	}
	binary.BigEndian.PutUint16(w.Bytes[placeholder:placeholder+2], uint16(int16(offset)))
	return nil
}

// PatchJumpTo patches a reserved placeholder to jump to an arbitrary
// already-known target offset, for back-edges where the target precedes
// the placeholder (PatchJump only patches to the buffer's current end).
func (w *Writer) PatchJumpTo(placeholder, target int) error {
	offset := target - (placeholder + 2)
	if offset < -32768 || offset > 32767 {
		return fmt.Errorf("jump offset %d out of i16 range", offset)
	}
	binary.BigEndian.PutUint16(w.Bytes[placeholder:placeholder+2], uint16(int16(offset)))
	return nil
}

// PatchAbsolute writes an absolute 16-bit offset at a previously reserved
// placeholder, used for function-signature start offsets.
func (w *Writer) PatchAbsolute(placeholder int, value uint16) {
	binary.BigEndian.PutUint16(w.Bytes[placeholder:placeholder+2], value)
}

// Reader walks a bytecode buffer with the same big-endian, PC-relative
// conventions as Writer.
type Reader struct {
	Bytes []byte
	PC    int
}

func NewReader(b []byte) *Reader { return &Reader{Bytes: b} }

func (r *Reader) AtEnd() bool { return r.PC >= len(r.Bytes) }

func (r *Reader) Byte() byte {
	b := r.Bytes[r.PC]
	r.PC++
	return b
}

func (r *Reader) Op() Op { return Op(r.Byte()) }

func (r *Reader) U16() uint16 {
	v := binary.BigEndian.Uint16(r.Bytes[r.PC : r.PC+2])
	r.PC += 2
	return v
}

func (r *Reader) I16() int16 { return int16(r.U16()) }

func (r *Reader) I32() int32 {
	v := binary.BigEndian.Uint32(r.Bytes[r.PC : r.PC+4])
	r.PC += 4
	return int32(v)
}

func (r *Reader) F32() float32 {
	v := binary.BigEndian.Uint32(r.Bytes[r.PC : r.PC+4])
	r.PC += 4
	return math.Float32frombits(v)
}

func (r *Reader) String() string {
	n := int(r.Byte())
	s := string(r.Bytes[r.PC : r.PC+n])
	r.PC += n
	return s
}

// JumpTarget returns the absolute byte offset a jump's 16-bit operand
// resolves to, relative to the byte immediately after the operand (spec
// §4.5 "Numeric operands are big-endian... relative to the byte position
// immediately after the offset itself.").
func JumpTarget(pcAfterOperand int, offset int16) int {
	return pcAfterOperand + int(offset)
}
