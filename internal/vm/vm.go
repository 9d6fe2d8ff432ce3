// Package vm implements the stack machine that executes compiled delta
// bytecode (spec §4.6), grounded on original_source/delta/src/vm.rs.
package vm

import (
	"fmt"

	"github.com/aledsdavies/delta/internal/bytecode"
	"github.com/aledsdavies/delta/internal/ecs"
)

// Program is the loaded, ready-to-run form of one compiled unit: the
// component layouts it declares, its function table, and the main plus
// per-function instruction streams (spec §6 "Bytecode file layout").
type Program struct {
	Layouts    []bytecode.ComponentLayout
	Funcs      []bytecode.FunctionSignature
	Main       []byte
	FuncChunks [][]byte
}

// Load parses a compiled bytecode blob into a Program ready for Run.
func Load(blob []byte) *Program {
	r := bytecode.NewReader(blob)
	layouts := bytecode.ReadComponentHeader(r)
	sigs := bytecode.ReadFunctionTable(r)

	mainStart := r.PC
	mainEnd := len(blob)
	if len(sigs) > 0 {
		mainEnd = int(sigs[0].StartPC)
	}
	chunks := make([][]byte, len(sigs))
	for i, sig := range sigs {
		end := len(blob)
		if i+1 < len(sigs) {
			end = int(sigs[i+1].StartPC)
		}
		chunks[i] = blob[sig.StartPC:end]
	}
	return &Program{Layouts: layouts, Funcs: sigs, Main: blob[mainStart:mainEnd], FuncChunks: chunks}
}

// Context is the embedding host's foreign surface (spec §6 "Foreign
// context contract"): named value providers readable from delta code as
// bare identifiers, and named callables invocable from it. Values are
// recomputed on every read rather than cached, mirroring the original
// Context::get_value closure semantics.
type Context struct {
	Values map[string]func() Value
	Funcs  map[string]func(args []Value) (Value, error)
	Log    func(Value)
}

func NewContext() *Context {
	return &Context{Values: map[string]func() Value{}, Funcs: map[string]func(args []Value) (Value, error){}}
}

// PersistentData is the state an embedder carries across reloads: the
// monotonic entity id counter, the ECS world, and the ambient context
// map `ctx.*` assignments read and write (spec §6 "Persistent data").
type PersistentData struct {
	Entities *ecs.EntityManager
	World    *ecs.World
	Ambient  map[string]Value
}

func NewPersistentData() *PersistentData {
	return &PersistentData{Entities: ecs.NewEntityManager(), World: ecs.NewWorld(), Ambient: map[string]Value{}}
}

// Metadata are the counters SPEC_FULL §12 asks a run to report back,
// useful for tests and for a --debug CLI run to print.
type Metadata struct {
	InstructionsExecuted int
	JumpsPerformed        int
	BytesRead             int
	StackAllocations      int
	MaxStackHeight        int
}

type frame struct {
	returnPC   int
	stackBase  int
	chunk      []byte
	usingFunc  bool
	funcIndex  int
}

// pendingMutation queues a Create/Destroy issued while one or more
// queries are iterating, applied only once the outermost query ends
// (spec §4.7 "Deferred structural changes").
type pendingMutation struct {
	destroy  bool
	entity   uint32
	creating []Value // component values to insert under fresh entity ids
}

// queryCursor is the live iteration state of one ContextQuery, advanced
// by each SetNextComponentColumnOrJump the loop body executes. It binds
// the matched row of each include component into the local slot codegen
// reserved for that alias, in the same frame the query appears in.
type queryCursor struct {
	entities []uint32
	index    int
	columns  []*ecs.Column
	ids      []byte
	slots    []byte
	stackBase int
}

// VM is one run's mutable execution state: value stack, call frames, the
// entity-component world, and the foreign context it was given.
type VM struct {
	program *Program
	Data    *PersistentData
	Ctx     *Context
	Meta    Metadata

	stack    []Value
	frames   []frame
	cursors  []*queryCursor
	deferred []pendingMutation
}

// New builds a VM for program, registering its component layouts into
// data.World so Insert/Query/Destroy have a Column to operate on (spec §6
// "Bytecode file layout" component header, original_source/delta/src/
// vm.rs's read_component_data). On a reload, a layout registered at an
// id whose column has the same row size keeps that column's rows.
func New(program *Program, data *PersistentData, ctx *Context) *VM {
	for _, l := range program.Layouts {
		data.World.Register(l)
	}
	return &VM{program: program, Data: data, Ctx: ctx}
}

func (vm *VM) push(v Value) {
	vm.stack = append(vm.stack, v)
	vm.Meta.StackAllocations++
	if len(vm.stack) > vm.Meta.MaxStackHeight {
		vm.Meta.MaxStackHeight = len(vm.stack)
	}
}

func (vm *VM) pop() Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

// Run executes the main chunk to completion and returns the final
// top-of-stack value, if any was left (an empty program leaves none).
// Each call starts with a fresh stack; Data (the ECS world, the ambient
// context map) persists across calls.
func (vm *VM) Run() (Value, error) {
	vm.stack = nil
	vm.frames = []frame{{chunk: vm.program.Main, stackBase: 0}}
	return vm.runToCompletion()
}

// RunFunction executes one function chunk directly with args bound to its
// parameters, bypassing the main chunk entirely.
func (vm *VM) RunFunction(name string, args []Value) (Value, error) {
	idx := -1
	for i, sig := range vm.program.Funcs {
		if sig.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Value{}, fmt.Errorf("undefined function: %s", name)
	}
	vm.stack = nil
	vm.frames = nil
	for _, a := range args {
		vm.push(a)
	}
	if err := vm.call(idx, len(args)); err != nil {
		return Value{}, err
	}
	return vm.runToCompletion()
}

func (vm *VM) runToCompletion() (Value, error) {
	if err := vm.loop(); err != nil {
		return Value{}, err
	}
	vm.flushDeferred()
	if len(vm.stack) == 0 {
		return Value{}, nil
	}
	return vm.stack[len(vm.stack)-1], nil
}

func (vm *VM) loop() error {
	for len(vm.frames) > 0 {
		fi := len(vm.frames) - 1
		f := &vm.frames[fi]
		r := &bytecode.Reader{Bytes: f.chunk, PC: f.returnPC}
		if r.AtEnd() {
			vm.frames = vm.frames[:len(vm.frames)-1]
			continue
		}
		op := r.Op()
		vm.Meta.InstructionsExecuted++
		halt, err := vm.exec(op, r, f)
		// A Call may have grown vm.frames into a new array.
		f = &vm.frames[fi]
		f.returnPC = r.PC
		vm.Meta.BytesRead += r.PC
		if err != nil {
			return err
		}
		if halt {
			vm.popFrame(f)
		}
	}
	return nil
}

// popFrame removes the current frame. For a function call, it also
// collapses the call's argument/local slots back down to a single
// return value, so the caller sees exactly one new value where its
// arguments used to be.
func (vm *VM) popFrame(f *frame) {
	vm.frames = vm.frames[:len(vm.frames)-1]
	if !f.usingFunc {
		return
	}
	var result Value
	if len(vm.stack) > f.stackBase {
		result = vm.stack[len(vm.stack)-1]
	}
	vm.stack = vm.stack[:f.stackBase]
	vm.push(result)
}

// exec dispatches one opcode. halt reports whether the current frame's
// chunk ended (Return) and should be popped.
func (vm *VM) exec(op bytecode.Op, r *bytecode.Reader, f *frame) (bool, error) {
	switch op {
	case bytecode.OpPushTrue:
		vm.push(Bool(true))
	case bytecode.OpPushFalse:
		vm.push(Bool(false))
	case bytecode.OpPushInteger:
		vm.push(Int(r.I32()))
	case bytecode.OpPushFloat:
		vm.push(Float(r.F32()))
	case bytecode.OpPushString:
		vm.push(Str(r.String()))
	case bytecode.OpPushSimpleTag:
		vm.push(Value{Kind: KindTag, Tag: &TagValue{Name: r.String()}})
	case bytecode.OpPushTag:
		payload := vm.pop()
		name := r.String()
		vm.push(Value{Kind: KindTag, Tag: &TagValue{Name: name, Payload: &payload}})
	case bytecode.OpPushList:
		n := int(r.I32())
		elems := make([]Value, n)
		for i := n - 1; i >= 0; i-- {
			elems[i] = vm.pop()
		}
		vm.push(Value{Kind: KindList, List: elems})
	case bytecode.OpPushComponent:
		id := r.Byte()
		count := int(r.Byte())
		fields := make([]Value, count)
		for i := count - 1; i >= 0; i-- {
			fields[i] = vm.pop()
		}
		layout := vm.layout(id)
		vm.push(Value{Kind: KindComponent, Comp: &ComponentValue{TypeID: id, Layout: layout, Fields: fields}})

	case bytecode.OpIntegerAdd:
		vm.binInt(func(a, b int32) int32 { return a + b })
	case bytecode.OpIntegerSub:
		vm.binInt(func(a, b int32) int32 { return a - b })
	case bytecode.OpIntegerMul:
		vm.binInt(func(a, b int32) int32 { return a * b })
	case bytecode.OpIntegerDiv:
		b := vm.pop()
		a := vm.pop()
		if b.I == 0 {
			vm.push(Int(0)) // totality: division by zero yields 0 (spec §4.2)
		} else {
			vm.push(Int(a.I / b.I))
		}
	case bytecode.OpIntegerMod:
		b := vm.pop()
		a := vm.pop()
		if b.I == 0 {
			vm.push(Int(0))
		} else {
			vm.push(Int(a.I % b.I))
		}
	case bytecode.OpIntegerLessThan:
		vm.binIntBool(func(a, b int32) bool { return a < b })
	case bytecode.OpIntegerLessThanEquals:
		vm.binIntBool(func(a, b int32) bool { return a <= b })

	case bytecode.OpFloatAdd:
		vm.binFloat(func(a, b float32) float32 { return a + b })
	case bytecode.OpFloatSub:
		vm.binFloat(func(a, b float32) float32 { return a - b })
	case bytecode.OpFloatMul:
		vm.binFloat(func(a, b float32) float32 { return a * b })
	case bytecode.OpFloatDiv:
		b := vm.pop()
		a := vm.pop()
		if b.F == 0 {
			vm.push(Float(0)) // totality: division by zero yields 0.0 (spec §4.2)
		} else {
			vm.push(Float(a.F / b.F))
		}
	case bytecode.OpFloatMod:
		b := vm.pop()
		a := vm.pop()
		if b.F == 0 {
			vm.push(Float(0))
		} else {
			vm.push(Float(float32(modFloat(float64(a.F), float64(b.F)))))
		}
	case bytecode.OpFloatLessThan:
		vm.binFloatBool(func(a, b float32) bool { return a < b })
	case bytecode.OpFloatLessThanEquals:
		vm.binFloatBool(func(a, b float32) bool { return a <= b })

	case bytecode.OpStringConcat:
		b := vm.pop()
		a := vm.pop()
		vm.push(Str(a.String() + b.String()))
	case bytecode.OpBooleanAnd:
		b := vm.pop()
		a := vm.pop()
		vm.push(Bool(a.B && b.B))
	case bytecode.OpBooleanOr:
		b := vm.pop()
		a := vm.pop()
		vm.push(Bool(a.B || b.B))
	case bytecode.OpEquals:
		b := vm.pop()
		a := vm.pop()
		vm.push(Bool(Equals(a, b)))
	case bytecode.OpNegation:
		a := vm.pop()
		if a.Kind == KindFloat {
			vm.push(Float(-a.F))
		} else {
			vm.push(Int(-a.I))
		}
	case bytecode.OpNot:
		a := vm.pop()
		vm.push(Bool(!a.B))

	case bytecode.OpGetLocalValue:
		slot := int(r.Byte())
		vm.push(vm.stack[f.stackBase+slot])
	case bytecode.OpSetLocalValue:
		slot := int(r.Byte())
		v := vm.pop()
		idx := f.stackBase + slot
		for idx >= len(vm.stack) {
			vm.stack = append(vm.stack, Value{})
		}
		vm.stack[idx] = v
		vm.push(v)
	case bytecode.OpGetForeignValue:
		name := r.String()
		provider, ok := vm.Ctx.Values[name]
		if !ok {
			return false, fmt.Errorf("undefined foreign value: %s", name)
		}
		vm.push(provider())
	case bytecode.OpGetContextValue:
		name := r.String()
		vm.push(vm.Data.Ambient[name])
	case bytecode.OpSetContextValue:
		name := r.String()
		v := vm.pop()
		vm.Data.Ambient[name] = v
		vm.push(v)
	case bytecode.OpGetFieldValue:
		slot := int(r.Byte())
		field := int(r.Byte())
		comp := vm.stack[f.stackBase+slot]
		vm.push(comp.Comp.Fields[field])
	case bytecode.OpSetFieldValue:
		slot := int(r.Byte())
		field := int(r.Byte())
		v := vm.pop()
		comp := vm.stack[f.stackBase+slot]
		comp.Comp.Fields[field] = v
		if len(vm.cursors) == 0 {
			return false, fmt.Errorf("trying to update component value without active query")
		}
		cur := vm.cursors[len(vm.cursors)-1]
		col := vm.findCursorColumn(cur, comp.Comp.TypeID)
		if col == nil {
			return false, fmt.Errorf("no column for component %d in active query", comp.Comp.TypeID)
		}
		entity := cur.entities[cur.index]
		row := EncodeRow(col.Layout, comp.Comp.Fields)
		vm.Data.World.Insert(comp.Comp.TypeID, entity, row)
		vm.push(v)

	case bytecode.OpGetListElementAtIndex:
		idx := vm.pop()
		list := vm.pop()
		if int(idx.I) < 0 || int(idx.I) >= len(list.List) {
			return false, fmt.Errorf("list index %d out of range (len %d)", idx.I, len(list.List))
		}
		vm.push(list.List[idx.I])
	case bytecode.OpGetArrayLength:
		list := vm.pop()
		vm.push(Int(int32(len(list.List))))
	case bytecode.OpArrayAppend:
		elem := vm.pop()
		list := vm.pop()
		vm.push(Value{Kind: KindList, List: append(append([]Value{}, list.List...), elem)})
	case bytecode.OpLog:
		v := vm.pop()
		if vm.Ctx.Log != nil {
			vm.Ctx.Log(v)
		}
		vm.push(v)

	case bytecode.OpGetTagName:
		v := vm.pop()
		vm.push(Str(v.Tag.Name))
	case bytecode.OpGetTagPayload:
		v := vm.pop()
		if v.Tag.Payload == nil {
			vm.push(Value{})
		} else {
			vm.push(*v.Tag.Payload)
		}

	case bytecode.OpJump:
		off := r.I16()
		r.PC = bytecode.JumpTarget(r.PC, off)
		vm.Meta.JumpsPerformed++
	case bytecode.OpJumpIfTrue:
		off := r.I16()
		if vm.pop().B {
			r.PC = bytecode.JumpTarget(r.PC, off)
			vm.Meta.JumpsPerformed++
		}
	case bytecode.OpJumpIfFalse:
		off := r.I16()
		if !vm.pop().B {
			r.PC = bytecode.JumpTarget(r.PC, off)
			vm.Meta.JumpsPerformed++
		}
	case bytecode.OpReturn:
		return true, nil

	case bytecode.OpFunction:
		idx := int(r.Byte())
		arity := r.Byte()
		_ = arity
		vm.push(Value{Kind: KindInt, I: int32(idx)}) // callable reference: chunk index
	case bytecode.OpCall:
		argc := int(r.Byte())
		_ = r.Byte() // is_global, reserved for a future module system
		slot := r.Byte()
		_ = r.String() // callee name, kept for error messages/disassembly
		idx := int(vm.stack[f.stackBase+int(slot)].I)
		return false, vm.call(idx, argc)
	case bytecode.OpCallForeign:
		_ = r.Byte() // resolved-index hint, unused: dispatch is by name
		argc := int(r.Byte())
		name := r.String()
		fn, ok := vm.Ctx.Funcs[name]
		if !ok {
			return false, fmt.Errorf("undefined foreign function: %s", name)
		}
		args := make([]Value, argc)
		for i := argc - 1; i >= 0; i-- {
			args[i] = vm.pop()
		}
		result, err := fn(args)
		if err != nil {
			return false, err
		}
		vm.push(result)

	case bytecode.OpContextQuery:
		if len(vm.cursors) > 0 {
			return false, fmt.Errorf("nested query: only one active query is permitted at a time")
		}
		vm.beginQuery(r, f)
	case bytecode.OpSetNextComponentColumnOrJump:
		vm.advanceQuery(r, f)
	case bytecode.OpCreate:
		v := vm.pop()
		vm.queueCreate(v)
		vm.push(v)
	case bytecode.OpDestroy:
		v := vm.pop()
		vm.queueDestroy(uint32(v.I))

	default:
		return false, fmt.Errorf("unimplemented opcode %s", op)
	}
	return false, nil
}

func (vm *VM) layout(id byte) bytecode.ComponentLayout {
	for _, l := range vm.program.Layouts {
		if l.ID == id {
			return l
		}
	}
	return bytecode.ComponentLayout{ID: id}
}

func (vm *VM) binInt(f func(a, b int32) int32) {
	b := vm.pop()
	a := vm.pop()
	vm.push(Int(f(a.I, b.I)))
}

func (vm *VM) binIntBool(f func(a, b int32) bool) {
	b := vm.pop()
	a := vm.pop()
	vm.push(Bool(f(a.I, b.I)))
}

func (vm *VM) binFloat(f func(a, b float32) float32) {
	b := vm.pop()
	a := vm.pop()
	vm.push(Float(f(a.F, b.F)))
}

func (vm *VM) binFloatBool(f func(a, b float32) bool) {
	b := vm.pop()
	a := vm.pop()
	vm.push(Bool(f(a.F, b.F)))
}

func modFloat(a, b float64) float64 {
	for a >= b {
		a -= b
	}
	for a < 0 {
		a += b
	}
	return a
}

// call invokes the function chunk at idx with argc arguments already on
// the stack, pushing a new frame whose stack base sits below the args so
// OpGetLocalValue slot 0 is the first parameter.
func (vm *VM) call(idx int, argc int) error {
	if idx < 0 || idx >= len(vm.program.FuncChunks) {
		return fmt.Errorf("call to undefined function chunk %d", idx)
	}
	base := len(vm.stack) - argc
	vm.frames = append(vm.frames, frame{chunk: vm.program.FuncChunks[idx], stackBase: base, usingFunc: true, funcIndex: idx})
	return nil
}

// queueCreate/queueDestroy defer structural world changes until the
// outermost active query finishes (spec §4.7 "Deferred structural
// changes"); outside any query they apply immediately.
func (vm *VM) queueCreate(v Value) {
	if len(vm.cursors) > 0 {
		vm.deferred = append(vm.deferred, pendingMutation{creating: flattenComponents(v)})
		return
	}
	vm.applyCreate(flattenComponents(v))
}

func (vm *VM) queueDestroy(entity uint32) {
	if len(vm.cursors) > 0 {
		vm.deferred = append(vm.deferred, pendingMutation{destroy: true, entity: entity})
		return
	}
	vm.Data.World.Destroy(entity)
}

func flattenComponents(v Value) []Value {
	if v.Kind == KindList {
		return v.List
	}
	return []Value{v}
}

func (vm *VM) applyCreate(components []Value) {
	entity := vm.Data.Entities.New()
	for _, c := range components {
		if c.Kind != KindComponent {
			continue
		}
		row := EncodeRow(c.Comp.Layout, c.Comp.Fields)
		vm.Data.World.Insert(c.Comp.TypeID, entity, row)
	}
}

// flushDeferred drains destructions before creations, matching the
// original VM's two-queue order (spec §4.6 "Query execution").
func (vm *VM) flushDeferred() {
	pending := vm.deferred
	vm.deferred = nil
	for _, m := range pending {
		if m.destroy {
			vm.Data.World.Destroy(m.entity)
		}
	}
	for _, m := range pending {
		if !m.destroy {
			vm.applyCreate(m.creating)
		}
	}
}

// beginQuery reads a ContextQuery instruction's include/exclude lists,
// computes the matching entity set via World.Query, and pushes a cursor
// that the loop's SetNextComponentColumnOrJump instructions drive. It
// does not itself bind any row or jump: the loop body immediately
// following in the instruction stream is the cursor's first
// SetNextComponentColumnOrJump (spec §4.7 "Query").
func (vm *VM) beginQuery(r *bytecode.Reader, f *frame) {
	r.I16() // end-of-construct offset, unused here: the loop's SetNextComponentColumnOrJump carries its own exit offset

	includeCount := int(r.Byte())
	ids := make([]byte, includeCount)
	slots := make([]byte, includeCount)
	for i := 0; i < includeCount; i++ {
		ids[i] = r.Byte()
		slots[i] = r.Byte()
		r.String() // alias name, kept for disassembly only
	}
	excludeCount := int(r.Byte())
	excludeIDs := make([]byte, excludeCount)
	for i := 0; i < excludeCount; i++ {
		excludeIDs[i] = r.Byte()
		r.String()
	}

	result := vm.Data.World.Query(ids, excludeIDs)
	vm.cursors = append(vm.cursors, &queryCursor{
		entities:  result.Entities,
		index:     -1,
		columns:   result.Columns,
		ids:       ids,
		slots:     slots,
		stackBase: f.stackBase,
	})
}

// advanceQuery moves the active cursor to its next matching entity,
// binding each include component's row into its reserved local slot; if
// the cursor is exhausted it pops itself, flushes deferred structural
// changes when it was the outermost query, and jumps past the loop using
// the offset this instruction carries.
func (vm *VM) advanceQuery(r *bytecode.Reader, f *frame) {
	offset := r.I16()
	cur := vm.cursors[len(vm.cursors)-1]
	cur.index++
	if cur.index >= len(cur.entities) {
		vm.cursors = vm.cursors[:len(vm.cursors)-1]
		if len(vm.cursors) == 0 {
			vm.flushDeferred()
		}
		r.PC = bytecode.JumpTarget(r.PC, offset)
		vm.Meta.JumpsPerformed++
		return
	}
	entity := cur.entities[cur.index]
	for i, col := range cur.columns {
		row := col.Get(entity)
		fields := DecodeRow(col.Layout, row)
		comp := Value{Kind: KindComponent, Comp: &ComponentValue{TypeID: cur.ids[i], Layout: col.Layout, Fields: fields}}
		idx := cur.stackBase + int(cur.slots[i])
		for idx >= len(vm.stack) {
			vm.stack = append(vm.stack, Value{})
		}
		vm.stack[idx] = comp
	}
}

// findCursorColumn returns the column cur was given for the component
// type id, so a field write-back lands in the same column the bound row
// was read from (original_source/delta/src/vm.rs's SetFieldValue handler).
func (vm *VM) findCursorColumn(cur *queryCursor, id byte) *ecs.Column {
	for i, colID := range cur.ids {
		if colID == id {
			return cur.columns[i]
		}
	}
	return nil
}
