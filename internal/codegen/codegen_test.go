package codegen

import (
	"testing"

	"github.com/aledsdavies/delta/internal/diag"
	"github.com/aledsdavies/delta/internal/lexer"
	"github.com/aledsdavies/delta/internal/parser"
	"github.com/aledsdavies/delta/internal/types"
	"github.com/aledsdavies/delta/internal/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compileAndRun drives source all the way through the real pipeline
// (lexer -> parser -> checker -> codegen -> vm) and executes the result,
// the way Program.Compile/Run does at the root package.
func compileAndRun(t *testing.T, source string, data *vm.PersistentData) vm.Value {
	t.Helper()
	sink := diag.NewSink()
	exprs := parser.ParseProgram(lexer.Lex([]byte(source)), sink)
	require.True(t, sink.Empty(), "parse diagnostics: %v", sink.Errors())

	checker := types.NewChecker(sink, nil, nil)
	checker.CheckProgram(exprs)
	require.True(t, sink.Empty(), "check diagnostics: %v", sink.Errors())

	code, err := Generate(exprs, checker, sink)
	require.NoError(t, err)
	require.True(t, sink.Empty())

	program := vm.Load(code)
	if data == nil {
		data = vm.NewPersistentData()
	}
	machine := vm.New(program, data, vm.NewContext())
	v, err := machine.Run()
	require.NoError(t, err)
	return v
}

func TestGenerateIntegerArithmetic(t *testing.T) {
	v := compileAndRun(t, "2 + 3 * 4", nil)
	assert.Equal(t, vm.Int(14), v)
}

func TestGenerateGreaterThanLowersToLessThanEqualsNot(t *testing.T) {
	v := compileAndRun(t, "5 > 3", nil)
	assert.Equal(t, vm.Bool(true), v)
	v = compileAndRun(t, "3 > 5", nil)
	assert.Equal(t, vm.Bool(false), v)
}

func TestGenerateFunctionLiteralIsCallableByItsSourceName(t *testing.T) {
	sink := diag.NewSink()
	exprs := parser.ParseProgram(lexer.Lex([]byte("add = \\v1 v2\n\tv1 + v2\n0")), sink)
	require.True(t, sink.Empty())
	checker := types.NewChecker(sink, nil, nil)
	checker.CheckProgram(exprs)
	require.True(t, sink.Empty())
	code, err := Generate(exprs, checker, sink)
	require.NoError(t, err)

	program := vm.Load(code)
	machine := vm.New(program, vm.NewPersistentData(), vm.NewContext())
	_, err = machine.Run()
	require.NoError(t, err)

	v, err := machine.RunFunction("add", []vm.Value{vm.Int(10), vm.Int(32)})
	require.NoError(t, err)
	assert.Equal(t, vm.Int(42), v)
}

func TestGenerateComponentCreateAndQueryRoundTrip(t *testing.T) {
	data := vm.NewPersistentData()
	source := "component Position { x i32, y i32 }\n\n" +
		"create [Position{x 1, y 2}]\n\n" +
		"query Position p\n\t\tp.x"
	v := compileAndRun(t, source, data)
	assert.Equal(t, vm.Int(1), v)
}

func TestGenerateFieldWriteInsideQueryPersists(t *testing.T) {
	data := vm.NewPersistentData()
	source := "component Position { x i32, y i32 }\n\n" +
		"create [Position{x 1, y 2}]\n\n" +
		"query Position p\n\t\tp.x = p.x + 41"
	v := compileAndRun(t, source, data)
	assert.Equal(t, vm.Int(42), v)

	// Re-query the same persistent world: a second, independent
	// compilation must observe the write-back, not just the first run's
	// in-flight stack value.
	v = compileAndRun(t, "component Position { x i32, y i32 }\nquery Position p\n\t\tp.x", data)
	assert.Equal(t, vm.Int(42), v)
}

func TestGenerateInterpolatedStringConcatenatesSegments(t *testing.T) {
	v := compileAndRun(t, `"sum={1 + 2}!"`, nil)
	assert.Equal(t, vm.Str("sum=3!"), v)
}
