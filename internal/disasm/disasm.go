// Package disasm renders compiled bytecode back into a readable listing,
// grounded on original_source/delta/src/disassembler.rs and the teacher's
// own preference for a plain io.Writer-based text renderer over a
// structured return value.
package disasm

import (
	"fmt"
	"io"

	"github.com/aledsdavies/delta/internal/bytecode"
)

// Disassemble writes one line per instruction in the "%04d\t%s" format
// (SPEC_FULL §12 "Disassembler output format"), operands rendered inline
// after the mnemonic, over the raw instruction bytes of a single chunk.
func Disassemble(w io.Writer, code []byte) error {
	r := bytecode.NewReader(code)
	for !r.AtEnd() {
		pc := r.PC
		op := r.Op()
		line, err := operandString(r, op)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%04d\t%s%s\n", pc, op, line); err != nil {
			return err
		}
	}
	return nil
}

// Program parses a compiled bytecode blob's header so each section can be
// disassembled in isolation (spec §6 "Bytecode file layout").
func Program(w io.Writer, program []byte) error {
	r := bytecode.NewReader(program)
	layouts := bytecode.ReadComponentHeader(r)
	for _, l := range layouts {
		if _, err := fmt.Fprintf(w, "; component %d %q (%d bytes)\n", l.ID, l.Name, l.Size); err != nil {
			return err
		}
	}
	sigs := bytecode.ReadFunctionTable(r)

	mainStart := r.PC
	mainEnd := len(program)
	if len(sigs) > 0 {
		mainEnd = int(sigs[0].StartPC)
	}
	if _, err := fmt.Fprintln(w, "; main"); err != nil {
		return err
	}
	if err := Disassemble(w, program[mainStart:mainEnd]); err != nil {
		return err
	}

	for i, sig := range sigs {
		end := len(program)
		if i+1 < len(sigs) {
			end = int(sigs[i+1].StartPC)
		}
		if _, err := fmt.Fprintf(w, "; function %q (arity=%d locals=%d)\n", sig.Name, sig.Arity, sig.LocalCount); err != nil {
			return err
		}
		if err := Disassemble(w, program[sig.StartPC:end]); err != nil {
			return err
		}
	}
	return nil
}

func operandString(r *bytecode.Reader, op bytecode.Op) (string, error) {
	switch op {
	case bytecode.OpPushInteger:
		return fmt.Sprintf(" %d", r.I32()), nil
	case bytecode.OpPushFloat:
		return fmt.Sprintf(" %g", r.F32()), nil
	case bytecode.OpPushString, bytecode.OpPushSimpleTag, bytecode.OpGetForeignValue,
		bytecode.OpGetContextValue, bytecode.OpSetContextValue:
		return fmt.Sprintf(" %q", r.String()), nil
	case bytecode.OpPushTag:
		return fmt.Sprintf(" %q", r.String()), nil
	case bytecode.OpPushList:
		return fmt.Sprintf(" count=%d", r.I32()), nil
	case bytecode.OpPushComponent:
		id := r.Byte()
		count := r.Byte()
		return fmt.Sprintf(" id=%d fields=%d", id, count), nil
	case bytecode.OpGetLocalValue, bytecode.OpSetLocalValue:
		return fmt.Sprintf(" slot=%d", r.Byte()), nil
	case bytecode.OpGetFieldValue, bytecode.OpSetFieldValue:
		slot := r.Byte()
		field := r.Byte()
		return fmt.Sprintf(" slot=%d field=%d", slot, field), nil
	case bytecode.OpJump, bytecode.OpJumpIfTrue, bytecode.OpJumpIfFalse, bytecode.OpSetNextComponentColumnOrJump:
		offset := r.I16()
		target := bytecode.JumpTarget(r.PC, offset)
		return fmt.Sprintf(" offset=%d -> %04d", offset, target), nil
	case bytecode.OpFunction:
		idx := r.Byte()
		arity := r.Byte()
		return fmt.Sprintf(" chunk=%d arity=%d", idx, arity), nil
	case bytecode.OpCall:
		argc := r.Byte()
		isGlobal := r.Byte()
		slot := r.Byte()
		name := r.String()
		return fmt.Sprintf(" argc=%d global=%d slot=%d name=%q", argc, isGlobal, slot, name), nil
	case bytecode.OpCallForeign:
		idx := r.Byte()
		argc := r.Byte()
		name := r.String()
		return fmt.Sprintf(" idx=%d argc=%d name=%q", idx, argc, name), nil
	case bytecode.OpContextQuery:
		endOffset := r.I16()
		end := bytecode.JumpTarget(r.PC, endOffset)
		includeCount := r.Byte()
		var terms string
		for i := byte(0); i < includeCount; i++ {
			id := r.Byte()
			slot := r.Byte()
			alias := r.String()
			terms += fmt.Sprintf(" +%d:%s@slot%d", id, alias, slot)
		}
		excludeCount := r.Byte()
		for i := byte(0); i < excludeCount; i++ {
			id := r.Byte()
			name := r.String()
			terms += fmt.Sprintf(" -%d:%s", id, name)
		}
		return fmt.Sprintf(" end=%04d%s", end, terms), nil
	default:
		return "", nil
	}
}
