package delta

import (
	"os"
	"strings"

	"github.com/aledsdavies/delta/internal/codegen"
	"github.com/aledsdavies/delta/internal/diag"
	"github.com/aledsdavies/delta/internal/disasm"
	"github.com/aledsdavies/delta/internal/lexer"
	"github.com/aledsdavies/delta/internal/parser"
	"github.com/aledsdavies/delta/internal/token"
	"github.com/aledsdavies/delta/internal/types"
	"github.com/aledsdavies/delta/internal/vm"
)

// Program drives one source text through compile and run, keeping the
// compiled bytecode, its VM, and the caller's PersistentData alive across
// repeated Reload/Run calls (original_source/delta/src/program.rs).
type Program struct {
	ctx    *Context
	data   *PersistentData
	source string
	debug  bool

	Metadata ProgramMetadata
	IsValid  bool

	program *vm.Program
	machine *vm.VM
}

// New creates a Program bound to ctx's foreign surface and data's world
// state. Call Reload before Run.
func New(ctx *Context, data *PersistentData, debug bool) *Program {
	return &Program{ctx: ctx, data: data, debug: debug}
}

// Reload replaces the source text and recompiles, returning the
// resulting diagnostics sink (empty if compilation succeeded).
func (p *Program) Reload(source string) *diag.Sink {
	p.source = source
	sink, _ := p.Compile()
	return sink
}

// Compile lexes, parses, type-checks and (if the checker produced no
// diagnostics) generates bytecode for the current source text, building
// or refreshing the Program's VM. A non-empty sink means compilation
// failed; the returned bytecode is nil in that case.
func (p *Program) Compile() (*diag.Sink, []byte) {
	sink := diag.NewSink()

	tokens := lexer.Lex([]byte(p.source))
	var clean []token.Token
	for _, t := range tokens {
		if t.Kind == token.SyntaxErr {
			sink.Add(diag.New(diag.CodeSyntaxError, t.Lexeme).At(t.Line, t.Column))
			continue
		}
		clean = append(clean, t)
	}

	exprs := parser.ParseProgram(clean, sink)
	if !sink.Empty() {
		p.IsValid = false
		return sink, nil
	}

	checker := types.NewChecker(sink, p.ctx.valueTypeEnv(), p.ctx.funcTypeEnv())
	checker.CheckProgram(exprs)
	if !sink.Empty() {
		p.IsValid = false
		return sink, nil
	}

	code, err := codegen.Generate(exprs, checker, sink)
	if err != nil || !sink.Empty() {
		p.IsValid = false
		return sink, nil
	}

	var compMeta CompilationMetadata
	compMeta.Bytecode = code
	compMeta.BytecodeLength = len(code)
	if p.debug {
		var b strings.Builder
		_ = disasm.Program(&b, code)
		compMeta.DisassembledInstructions = strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	}
	p.Metadata = ProgramMetadata{Compilation: compMeta}

	p.program = vm.Load(code)
	p.machine = vm.New(p.program, p.data, p.ctx.runtime)
	p.IsValid = true
	return sink, code
}

// Run executes the main chunk to completion, returning whatever value it
// left on the stack. Run is a no-op returning the zero Value if Compile
// has not yet succeeded.
func (p *Program) Run() (Value, error) {
	if p.machine == nil {
		return Value{}, nil
	}
	result, err := p.machine.Run()
	p.Metadata.Execution = executionMetadataFrom(p.machine.Meta)
	return result, err
}

// RunFunction looks up name in the compiled function table and executes
// its chunk directly with args already bound to its parameters, bypassing
// the main chunk.
func (p *Program) RunFunction(name string, args []Value) (Value, error) {
	if p.machine == nil {
		return Value{}, nil
	}
	result, err := p.machine.RunFunction(name, args)
	p.Metadata.Execution = executionMetadataFrom(p.machine.Meta)
	return result, err
}

// ReadSource reads a delta source file from disk, wrapping any failure in
// a CodeFileErr Error rather than a bare os.PathError (SPEC_FULL §10.4).
func ReadSource(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", diag.Wrap(diag.CodeFileErr, "failed to read source file", err).WithContext("path", path)
	}
	return string(content), nil
}
