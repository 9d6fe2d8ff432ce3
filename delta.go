// Package delta is the root façade over the compiler and runtime: an
// embedder builds a Context declaring its foreign values and functions,
// a PersistentData to carry world state across reloads, and a Program to
// compile and run source text against them (original_source/delta/src/
// program.rs, lib.rs).
package delta

import (
	"github.com/aledsdavies/delta/internal/types"
	"github.com/aledsdavies/delta/internal/vm"
)

// PersistentData is the state an embedder keeps across Program.Reload
// calls: the entity id counter, the ECS world, and the ambient `ctx.*`
// map delta code reads and writes with ContextIdentifier expressions.
type PersistentData = vm.PersistentData

var NewPersistentData = vm.NewPersistentData

// Value is the runtime value type exchanged across the foreign context
// boundary: RunFunction arguments, AddValue/AddFunction results, and the
// value a run produces.
type Value = vm.Value

// Value constructors, re-exported so an embedder never imports internal/vm
// directly to build arguments for AddValue/AddFunction/RunFunction.
var (
	Bool  = vm.Bool
	Int   = vm.Int
	Float = vm.Float
	Str   = vm.Str
)

// Context is the embedding host's foreign surface (spec §6 "Foreign
// context contract"): named values and functions delta source can
// reference, each declared once with the type the checker should assume
// and the implementation the VM should call. Values are recomputed on
// every read, never cached, matching the original Context::get_value
// closure semantics.
type Context struct {
	runtime    *vm.Context
	valueTypes map[string]types.Type
	funcTypes  map[string]types.Type
}

func NewContext() *Context {
	return &Context{
		runtime:    vm.NewContext(),
		valueTypes: map[string]types.Type{},
		funcTypes:  map[string]types.Type{},
	}
}

// AddValue declares a foreign value of the given type, provided by fn.
// fn is called once per read, not memoized (spec §6).
func (c *Context) AddValue(name string, typ types.Type, fn func() Value) {
	c.valueTypes[name] = typ
	c.runtime.Values[name] = fn
}

// AddFunction declares a foreign function of the given type, implemented
// by fn. The function's param/return types are used only for checking;
// arity is whatever len(typ.Args)-1 says it is.
func (c *Context) AddFunction(name string, typ types.Type, fn func(args []Value) (Value, error)) {
	c.funcTypes[name] = typ
	c.runtime.Funcs[name] = fn
}

// SetLog installs the function the `log` built-in calls with each logged
// value. Without one, logged values are discarded silently.
func (c *Context) SetLog(fn func(Value)) { c.runtime.Log = fn }

func (c *Context) valueTypeEnv() map[string]types.Type { return c.valueTypes }
func (c *Context) funcTypeEnv() map[string]types.Type  { return c.funcTypes }

// Arguments are a single compile/run invocation's configuration (spec
// §6, SPEC_FULL §10.3): a source path and the two flags the CLI exposes.
type Arguments struct {
	SourcePath string
	Debug      bool
	NoRun      bool
}

// CompilationMetadata reports what Program.Compile produced (SPEC_FULL
// §12 "Metadata counters", original_source/delta/src/lib.rs).
type CompilationMetadata struct {
	Bytecode                 []byte
	BytecodeLength           int
	DisassembledInstructions []string
}

// ExecutionMetadata reports what one Program.Run/RunFunction call cost.
type ExecutionMetadata struct {
	InstructionsExecuted int
	JumpsPerformed       int
	BytesRead            int
	StackAllocations     int
	MaxStackHeight       int
}

func executionMetadataFrom(m vm.Metadata) ExecutionMetadata {
	return ExecutionMetadata{
		InstructionsExecuted: m.InstructionsExecuted,
		JumpsPerformed:       m.JumpsPerformed,
		BytesRead:            m.BytesRead,
		StackAllocations:     m.StackAllocations,
		MaxStackHeight:       m.MaxStackHeight,
	}
}

// ProgramMetadata is the combined compile+execute report a Program keeps
// up to date after every Compile/Run/RunFunction call.
type ProgramMetadata struct {
	Compilation CompilationMetadata
	Execution   ExecutionMetadata
}
