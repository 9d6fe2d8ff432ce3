// Package codegen implements the single-pass bytecode emitter of spec
// §4.4, grounded line-for-line on original_source/delta/src/codegen.rs.
package codegen

import (
	"fmt"

	"github.com/aledsdavies/delta/internal/ast"
	"github.com/aledsdavies/delta/internal/bytecode"
	"github.com/aledsdavies/delta/internal/diag"
	"github.com/aledsdavies/delta/internal/types"
)

// scope is the stack-allocated state of spec §4.4: a byte buffer plus a
// name -> local-slot environment. Entering a function body clones the
// environment (outer names stay visible) but resets locals to restart
// slot numbering at 0; entering a block snapshots and restores both so
// block-local bindings do not leak.
type scope struct {
	writer  *bytecode.Writer
	env     map[string]byte
	nextLoc byte
}

func newScope(w *bytecode.Writer) *scope {
	return &scope{writer: w, env: map[string]byte{}}
}

func (s *scope) clone(w *bytecode.Writer) *scope {
	env := make(map[string]byte, len(s.env))
	for k, v := range s.env {
		env[k] = v
	}
	return &scope{writer: w, env: env}
}

func (s *scope) snapshot() (map[string]byte, byte) {
	env := make(map[string]byte, len(s.env))
	for k, v := range s.env {
		env[k] = v
	}
	return env, s.nextLoc
}

func (s *scope) restore(env map[string]byte, next byte) {
	s.env = env
	s.nextLoc = next
}

func (s *scope) define(name string) byte {
	slot := s.nextLoc
	s.env[name] = slot
	s.nextLoc++
	return slot
}

// function is a reserved chunk: its index is assigned before the body is
// recursed into, so nested function literals get distinct indices.
type function struct {
	name       string
	writer     bytecode.Writer
	localCount byte
	arity      byte
}

// Generator emits one program's bytecode (spec §4.4 "Output assembly").
type Generator struct {
	sink     *diag.Sink
	checker  *types.Checker
	main     *bytecode.Writer
	funcs    []*function
	sig      *bytecode.Writer
	layouts  []bytecode.ComponentLayout
	err      error
}

// fail records the first error encountered during emission; subsequent
// emit calls keep running (so later errors don't mask the first) but
// Generate reports failure once any has been recorded.
func (g *Generator) fail(err error) {
	if err != nil && g.err == nil {
		g.err = err
	}
}

func NewGenerator(sink *diag.Sink, checker *types.Checker) *Generator {
	return &Generator{
		sink:    sink,
		checker: checker,
		main:    &bytecode.Writer{},
		sig:     &bytecode.Writer{},
	}
}

// Generate runs only when the checker's sink is empty (spec §4.3
// "Code generation runs only if no diagnostics were produced."). It
// returns the fully assembled bytecode blob.
func Generate(exprs []ast.Expr, checker *types.Checker, sink *diag.Sink) ([]byte, error) {
	if !sink.Empty() {
		return nil, fmt.Errorf("refusing to generate code: %d diagnostics pending", sink.Len())
	}
	g := NewGenerator(sink, checker)
	g.buildLayouts()

	s := newScope(g.main)
	for _, e := range exprs {
		if _, ok := e.(*ast.ComponentDef); ok {
			continue
		}
		g.emit(s, e)
	}
	s.writer.Op(bytecode.OpReturn)

	if g.err != nil {
		return nil, g.err
	}
	return g.assemble()
}

// buildLayouts converts the checker's registered components into the
// bytecode package's ComponentLayout shape, ordered by assigned id.
func (g *Generator) buildLayouts() {
	g.layouts = make([]bytecode.ComponentLayout, len(g.checker.Components))
	for _, info := range g.checker.Components {
		fields := make([]bytecode.FieldLayout, len(info.FieldOrder))
		for i, name := range info.FieldOrder {
			fields[i] = bytecode.FieldLayout{Name: name, TypeID: fieldTypeID(info.FieldTypes[name])}
		}
		g.layouts[info.ID] = bytecode.NewComponentLayout(info.ID, info.Name, fields)
	}
}

func fieldTypeID(t types.Type) byte {
	switch types.Display(t) {
	case "bool":
		return bytecode.FieldBool
	case "int":
		return bytecode.FieldI32
	case "float":
		return bytecode.FieldF32
	default:
		return bytecode.FieldString
	}
}

func (g *Generator) layoutByName(name string) *bytecode.ComponentLayout {
	for i := range g.layouts {
		if g.layouts[i].Name == name {
			return &g.layouts[i]
		}
	}
	return nil
}

// assemble produces: component header, function-signature table (start
// offsets patched to absolute positions once known), the main chunk
// (starting immediately after the signature table, so no separate
// main-offset field is needed), then each function's chunk back to back
// in index order (spec §6 "Bytecode file layout").
func (g *Generator) assemble() ([]byte, error) {
	out := &bytecode.Writer{}
	if err := bytecode.WriteComponentHeader(out, g.layouts); err != nil {
		return nil, err
	}

	sigs := make([]bytecode.FunctionSignature, len(g.funcs))
	for i, fn := range g.funcs {
		sigs[i] = bytecode.FunctionSignature{Name: fn.name, Arity: fn.arity, LocalCount: fn.localCount}
	}
	sigTableStart := out.Len()
	if err := bytecode.WriteFunctionTable(out, sigs); err != nil {
		return nil, err
	}

	out.Bytes = append(out.Bytes, g.main.Bytes...)

	offsets := make([]int, len(g.funcs))
	cursor := out.Len()
	for i, fn := range g.funcs {
		offsets[i] = cursor
		cursor += len(fn.writer.Bytes)
	}
	for i, fn := range g.funcs {
		out.Bytes = append(out.Bytes, fn.writer.Bytes...)
		if offsets[i] > 0xFFFF {
			return nil, fmt.Errorf("function %s start offset exceeds u16 range", fn.name)
		}
	}
	patchFunctionStartOffsets(out, sigTableStart, offsets)

	return out.Bytes, nil
}

// patchFunctionStartOffsets re-walks the already-written signature table
// to find each StartPC field's byte position, then patches in the real
// absolute offset now that every chunk's length is known.
func patchFunctionStartOffsets(out *bytecode.Writer, sigTableStart int, offsets []int) {
	r := &bytecode.Reader{Bytes: out.Bytes, PC: sigTableStart}
	count := int(r.Byte())
	for i := 0; i < count; i++ {
		r.String()
		r.Byte() // arity
		r.Byte() // local count
		placeholder := r.PC
		r.U16() // skip over the placeholder, advancing PC past it
		out.PatchAbsolute(placeholder, uint16(offsets[i]))
	}
}

// emit lowers expr into s.writer, leaving its runtime value on the stack.
func (g *Generator) emit(s *scope, expr ast.Expr) {
	switch e := expr.(type) {
	case *ast.BoolLiteral:
		if e.Value {
			s.writer.Op(bytecode.OpPushTrue)
		} else {
			s.writer.Op(bytecode.OpPushFalse)
		}
	case *ast.IntLiteral:
		s.writer.Op(bytecode.OpPushInteger)
		s.writer.I32(e.Value)
	case *ast.FloatLiteral:
		s.writer.Op(bytecode.OpPushFloat)
		s.writer.F32(e.Value)
	case *ast.StringLiteral:
		g.emitString(s, e)
	case *ast.TagLiteral:
		if e.Payload != nil {
			g.emit(s, e.Payload)
			s.writer.Op(bytecode.OpPushTag)
		} else {
			s.writer.Op(bytecode.OpPushSimpleTag)
		}
		g.fail(s.writer.String(e.Name))
	case *ast.ListLiteral:
		for _, el := range e.Elements {
			g.emit(s, el)
		}
		s.writer.Op(bytecode.OpPushList)
		s.writer.I32(int32(len(e.Elements)))
	case *ast.Grouping:
		g.emit(s, e.Inner)
	case *ast.Identifier:
		if slot, ok := s.env[e.Name]; ok {
			s.writer.Op(bytecode.OpGetLocalValue)
			s.writer.Byte(slot)
		} else {
			s.writer.Op(bytecode.OpGetForeignValue)
			g.fail(s.writer.String(e.Name))
		}
	case *ast.ContextIdentifier:
		s.writer.Op(bytecode.OpGetContextValue)
		g.fail(s.writer.String(e.Field))
	case *ast.FieldAccess:
		if slot, ok := s.env[e.Target]; ok {
			s.writer.Op(bytecode.OpGetFieldValue)
			s.writer.Byte(slot)
			fieldIdx := g.fieldIndex(e.Target, e.Field)
			s.writer.Byte(fieldIdx)
		}
	case *ast.Assignment:
		g.emitAssignment(s, e)
	case *ast.Unary:
		g.emit(s, e.Operand)
		switch e.Op {
		case ast.UnaryNegate:
			s.writer.Op(bytecode.OpNegation)
		case ast.UnaryNot:
			s.writer.Op(bytecode.OpNot)
		}
	case *ast.Binary:
		g.emitBinary(s, e)
	case *ast.ComponentInit:
		g.emitComponentInit(s, e)
	case *ast.Call:
		g.emitCall(s, e)
	case *ast.FunctionLiteral:
		g.emitFunctionLiteral(s, e)
	case *ast.Block:
		g.emitBlock(s, e)
	case *ast.IsMatch:
		g.emitIsMatch(s, e)
	case *ast.Query:
		g.emitQuery(s, e)
	case *ast.Create:
		g.emit(s, e.Components)
		s.writer.Op(bytecode.OpCreate)
	case *ast.ComponentDef:
		// Layout already folded into g.layouts; nothing to emit.
	}
}

func (g *Generator) emitString(s *scope, e *ast.StringLiteral) {
	first := true
	for _, p := range e.Parts {
		if p.Expr != nil {
			g.emit(s, p.Expr)
		} else {
			s.writer.Op(bytecode.OpPushString)
			g.fail(s.writer.String(p.Text))
		}
		if !first {
			s.writer.Op(bytecode.OpStringConcat)
		}
		first = false
	}
	if len(e.Parts) == 0 {
		s.writer.Op(bytecode.OpPushString)
		g.fail(s.writer.String(""))
	}
}

// fieldIndex resolves a field name to its position within whichever
// registered component declares it. The checker does not thread a
// component type back onto FieldAccess targets, so this scans the
// layout table rather than looking the binding up by name; fields are
// expected to be uniquely named across components in practice.
func (g *Generator) fieldIndex(targetIdent, field string) byte {
	_ = targetIdent
	for _, layout := range g.layouts {
		for i, f := range layout.Fields {
			if f.Name == field {
				return byte(i)
			}
		}
	}
	return 0
}

func (g *Generator) emitAssignment(s *scope, e *ast.Assignment) {
	if lit, ok := e.Value.(*ast.FunctionLiteral); ok {
		if ident, ok := e.Target.(*ast.Identifier); ok {
			g.emitFunctionLiteralNamed(s, lit, ident.Name)
			slot, ok := s.env[ident.Name]
			if !ok {
				slot = s.define(ident.Name)
			}
			s.writer.Op(bytecode.OpSetLocalValue)
			s.writer.Byte(slot)
			return
		}
	}
	g.emit(s, e.Value)
	switch target := e.Target.(type) {
	case *ast.Identifier:
		slot, ok := s.env[target.Name]
		if !ok {
			slot = s.define(target.Name)
		}
		s.writer.Op(bytecode.OpSetLocalValue)
		s.writer.Byte(slot)
	case *ast.ContextIdentifier:
		s.writer.Op(bytecode.OpSetContextValue)
		g.fail(s.writer.String(target.Field))
	case *ast.FieldAccess:
		if slot, ok := s.env[target.Target]; ok {
			s.writer.Op(bytecode.OpSetFieldValue)
			s.writer.Byte(slot)
			s.writer.Byte(g.fieldIndex(target.Target, target.Field))
		}
	}
}

func (g *Generator) isFloatExpr(e ast.Expr) bool {
	return types.Display(g.checker.ResolvedType(e)) == "float"
}

func (g *Generator) emitBinary(s *scope, e *ast.Binary) {
	g.emit(s, e.Left)
	g.emit(s, e.Right)
	switch e.Op {
	case ast.BinAdd:
		s.writer.Op(bytecode.OpIntegerAdd)
	case ast.BinSub:
		s.writer.Op(bytecode.OpIntegerSub)
	case ast.BinMul:
		s.writer.Op(bytecode.OpIntegerMul)
	case ast.BinDiv:
		s.writer.Op(bytecode.OpIntegerDiv)
	case ast.BinMod:
		s.writer.Op(bytecode.OpIntegerMod)
	case ast.BinAddFloat:
		s.writer.Op(bytecode.OpFloatAdd)
	case ast.BinSubFloat:
		s.writer.Op(bytecode.OpFloatSub)
	case ast.BinMulFloat:
		s.writer.Op(bytecode.OpFloatMul)
	case ast.BinDivFloat:
		s.writer.Op(bytecode.OpFloatDiv)
	case ast.BinModFloat:
		s.writer.Op(bytecode.OpFloatMod)
	case ast.BinLess:
		s.writer.Op(bytecode.OpIntegerLessThan)
	case ast.BinLessEquals:
		s.writer.Op(bytecode.OpIntegerLessThanEquals)
	case ast.BinGreater:
		// greater-than lowers as LessThanEquals; Not (spec §4.5).
		s.writer.Op(bytecode.OpIntegerLessThanEquals)
		s.writer.Op(bytecode.OpNot)
	case ast.BinGreaterEquals:
		s.writer.Op(bytecode.OpIntegerLessThan)
		s.writer.Op(bytecode.OpNot)
	case ast.BinLessFloat:
		s.writer.Op(bytecode.OpFloatLessThan)
	case ast.BinLessEqualsFloat:
		s.writer.Op(bytecode.OpFloatLessThanEquals)
	case ast.BinGreaterFloat:
		s.writer.Op(bytecode.OpFloatLessThanEquals)
		s.writer.Op(bytecode.OpNot)
	case ast.BinGreaterEqualsFloat:
		s.writer.Op(bytecode.OpFloatLessThan)
		s.writer.Op(bytecode.OpNot)
	case ast.BinEquals, ast.BinEqualsFloat:
		s.writer.Op(bytecode.OpEquals)
	case ast.BinNotEquals, ast.BinNotEqualsFloat:
		s.writer.Op(bytecode.OpEquals)
		s.writer.Op(bytecode.OpNot)
	case ast.BinAnd:
		s.writer.Op(bytecode.OpBooleanAnd)
	case ast.BinOr:
		s.writer.Op(bytecode.OpBooleanOr)
	case ast.BinStringConcat:
		s.writer.Op(bytecode.OpStringConcat)
	}
}

func (g *Generator) emitComponentInit(s *scope, e *ast.ComponentInit) {
	layout := g.layoutByName(e.Name)
	var id byte
	if layout != nil {
		id = layout.ID
	}
	// Ambiguity resolution #2 (spec §9 / SPEC_FULL §13): the emitted id is
	// always the registered type id, never a hardcoded 0.
	ordered := e.Fields
	if layout != nil {
		ordered = reorderFields(e.Fields, layout)
	}
	for _, f := range ordered {
		g.emit(s, f.Value)
	}
	s.writer.Op(bytecode.OpPushComponent)
	s.writer.Byte(id)
	s.writer.Byte(byte(len(ordered)))
}

func reorderFields(fields []ast.FieldInit, layout *bytecode.ComponentLayout) []ast.FieldInit {
	byName := map[string]ast.FieldInit{}
	for _, f := range fields {
		byName[f.Name] = f
	}
	out := make([]ast.FieldInit, 0, len(layout.Fields))
	for _, lf := range layout.Fields {
		if f, ok := byName[lf.Name]; ok {
			out = append(out, f)
		}
	}
	return out
}

func (g *Generator) emitCall(s *scope, e *ast.Call) {
	switch e.Callee {
	case "get_list_element_at_index":
		for _, a := range e.Args {
			g.emit(s, a)
		}
		s.writer.Op(bytecode.OpGetListElementAtIndex)
		return
	case "get_array_length":
		for _, a := range e.Args {
			g.emit(s, a)
		}
		s.writer.Op(bytecode.OpGetArrayLength)
		return
	case "append":
		for _, a := range e.Args {
			g.emit(s, a)
		}
		s.writer.Op(bytecode.OpArrayAppend)
		return
	case "log":
		for _, a := range e.Args {
			g.emit(s, a)
		}
		s.writer.Op(bytecode.OpLog)
		return
	}

	for _, a := range e.Args {
		g.emit(s, a)
	}
	if slot, ok := s.env[e.Callee]; ok {
		s.writer.Op(bytecode.OpCall)
		s.writer.Byte(byte(len(e.Args)))
		s.writer.Byte(0) // is_global = false
		s.writer.Byte(slot)
		g.fail(s.writer.String(e.Callee))
		return
	}
	s.writer.Op(bytecode.OpCallForeign)
	s.writer.Byte(0) // index operand unused: the VM dispatches foreign calls by name
	s.writer.Byte(byte(len(e.Args)))
	g.fail(s.writer.String(e.Callee))
}

// emitFunctionLiteral reserves a chunk index before recursing into the
// body, so nested function literals get distinct indices, then
// emits a Function(chunk_index, arity) opcode into the outer stream and
// (when the literal is the value of a named assignment handled by the
// caller) leaves the callable for a subsequent SetLocalValue.
func (g *Generator) emitFunctionLiteral(s *scope, e *ast.FunctionLiteral) {
	g.emitFunctionLiteralNamed(s, e, fmt.Sprintf("fn%d", len(g.funcs)))
}

// emitFunctionLiteralNamed lowers a function literal under the given name,
// used so `RunFunction` can look a directly-assigned function up by its
// own source identifier (e.g. `add = \x y` followed by an indented body)
// instead of a
// synthetic "fnN" chunk label.
func (g *Generator) emitFunctionLiteralNamed(s *scope, e *ast.FunctionLiteral, name string) {
	fn := &function{name: name, arity: byte(len(e.Params))}
	idx := len(g.funcs)
	g.funcs = append(g.funcs, fn)

	fs := s.clone(&fn.writer)
	for _, p := range e.Params {
		fs.define(p)
	}
	g.emit(fs, e.Body)
	fn.writer.Op(bytecode.OpReturn)
	fn.localCount = fs.nextLoc

	s.writer.Op(bytecode.OpFunction)
	s.writer.Byte(byte(idx))
	s.writer.Byte(fn.arity)
}

func (g *Generator) emitBlock(s *scope, e *ast.Block) {
	env, next := s.snapshot()
	for i, sub := range e.Exprs {
		g.emit(s, sub)
		// Every statement except the last is evaluated for its side
		// effects only; the last expression's value is the block's value.
		_ = i
	}
	s.restore(env, next)
}

// emitIsMatch lowers pattern matching (spec §4.4 "Pattern match
// lowering"): the scrutinee is evaluated once into a local slot (reused if
// it is already a bound identifier, ambiguity resolution #1), then each
// arm tests and jumps to the next arm on failure, ending with a jump past
// the match on success.
func (g *Generator) emitIsMatch(s *scope, e *ast.IsMatch) {
	var scrutineeSlot byte
	if ident, ok := e.Scrutinee.(*ast.Identifier); ok {
		if slot, bound := s.env[ident.Name]; bound {
			scrutineeSlot = slot
		} else {
			g.emit(s, e.Scrutinee)
			scrutineeSlot = s.define("$scrutinee")
			s.writer.Op(bytecode.OpSetLocalValue)
			s.writer.Byte(scrutineeSlot)
		}
	} else {
		g.emit(s, e.Scrutinee)
		scrutineeSlot = s.define("$scrutinee")
		s.writer.Op(bytecode.OpSetLocalValue)
		s.writer.Byte(scrutineeSlot)
	}

	var endJumps []int
	for i, arm := range e.Arms {
		isLast := i == len(e.Arms)-1
		var failJump = -1

		env, next := s.snapshot()

		switch arm.Kind {
		case ast.PatternExpr:
			s.writer.Op(bytecode.OpGetLocalValue)
			s.writer.Byte(scrutineeSlot)
			g.emit(s, arm.PatternExpr)
			s.writer.Op(bytecode.OpEquals)
			s.writer.Op(bytecode.OpJumpIfFalse)
			failJump = s.writer.ReservePlaceholder()
		case ast.PatternCapture:
			s.env[arm.Capture] = scrutineeSlot
		case ast.PatternCaptureTag:
			s.writer.Op(bytecode.OpGetLocalValue)
			s.writer.Byte(scrutineeSlot)
			s.writer.Op(bytecode.OpGetTagName)
			s.writer.Op(bytecode.OpPushString)
			g.fail(s.writer.String(arm.TagName))
			s.writer.Op(bytecode.OpEquals)
			s.writer.Op(bytecode.OpJumpIfFalse)
			failJump = s.writer.ReservePlaceholder()
			s.writer.Op(bytecode.OpGetLocalValue)
			s.writer.Byte(scrutineeSlot)
			s.writer.Op(bytecode.OpGetTagPayload)
			payloadSlot := s.define(arm.Capture)
			s.writer.Op(bytecode.OpSetLocalValue)
			s.writer.Byte(payloadSlot)
		case ast.PatternDefault:
			// no test; always matches.
		}

		if arm.Guard != nil {
			g.emit(s, arm.Guard)
			s.writer.Op(bytecode.OpJumpIfFalse)
			guardFail := s.writer.ReservePlaceholder()
			g.emit(s, arm.Body)
			if !isLast {
				s.writer.Op(bytecode.OpJump)
				endJumps = append(endJumps, s.writer.ReservePlaceholder())
			}
			g.fail(s.writer.PatchJump(guardFail))
		} else {
			g.emit(s, arm.Body)
			if !isLast {
				s.writer.Op(bytecode.OpJump)
				endJumps = append(endJumps, s.writer.ReservePlaceholder())
			}
		}

		s.restore(env, next)
		if failJump >= 0 {
			g.fail(s.writer.PatchJump(failJump))
		}
	}

	for _, j := range endJumps {
		g.fail(s.writer.PatchJump(j))
	}
}

// emitQuery lowers spec §4.4 "Query lowering": ContextQuery with a
// patchable end offset and include/exclude lists, then a loop of
// SetNextComponentColumnOrJump / body / back-jump. Each include term's
// alias is allocated a local slot before the header is written so the
// slot number can be baked into the instruction stream; the VM binds
// each matched row into that same slot on every iteration.
func (g *Generator) emitQuery(s *scope, e *ast.Query) {
	env, next := s.snapshot()
	aliasSlots := make([]byte, len(e.Include))
	for i, inc := range e.Include {
		aliasSlots[i] = s.define(inc.Alias)
	}

	s.writer.Op(bytecode.OpContextQuery)
	endPlaceholder := s.writer.ReservePlaceholder()

	s.writer.Byte(byte(len(e.Include)))
	includeIDs := make([]byte, len(e.Include))
	for i, inc := range e.Include {
		layout := g.layoutByName(inc.Component)
		var id byte
		if layout != nil {
			id = layout.ID
		}
		includeIDs[i] = id
		s.writer.Byte(id)
		s.writer.Byte(aliasSlots[i])
		g.fail(s.writer.String(inc.Alias))
	}
	s.writer.Byte(byte(len(e.Exclude)))
	for _, exc := range e.Exclude {
		layout := g.layoutByName(exc.Component)
		var id byte
		if layout != nil {
			id = layout.ID
		}
		s.writer.Byte(id)
		g.fail(s.writer.String(exc.Component))
	}

	loopStart := s.writer.Len()
	s.writer.Op(bytecode.OpSetNextComponentColumnOrJump)
	bodyEndPlaceholder := s.writer.ReservePlaceholder()

	g.emit(s, e.Body)

	s.writer.Op(bytecode.OpJump)
	backPlaceholder := s.writer.ReservePlaceholder()
	g.fail(s.writer.PatchJumpTo(backPlaceholder, loopStart))

	g.fail(s.writer.PatchJump(bodyEndPlaceholder))
	s.restore(env, next)
	g.fail(s.writer.PatchJump(endPlaceholder))
}
