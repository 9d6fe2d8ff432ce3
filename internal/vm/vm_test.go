package vm

import (
	"testing"

	"github.com/aledsdavies/delta/internal/codegen"
	"github.com/aledsdavies/delta/internal/diag"
	"github.com/aledsdavies/delta/internal/lexer"
	"github.com/aledsdavies/delta/internal/parser"
	"github.com/aledsdavies/delta/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compile drives source through the real lexer/parser/checker/codegen
// pipeline and loads the result, the way program.go's Compile does.
func compile(t *testing.T, source string) *Program {
	t.Helper()
	sink := diag.NewSink()
	exprs := parser.ParseProgram(lexer.Lex([]byte(source)), sink)
	require.True(t, sink.Empty(), "parse diagnostics: %v", sink.Errors())

	checker := types.NewChecker(sink, nil, nil)
	checker.CheckProgram(exprs)
	require.True(t, sink.Empty(), "check diagnostics: %v", sink.Errors())

	code, err := codegen.Generate(exprs, checker, sink)
	require.NoError(t, err)
	require.True(t, sink.Empty())
	return Load(code)
}

func TestRunExecutesArithmeticAndReportsMetadata(t *testing.T) {
	program := compile(t, "1 + 2 * 3")
	machine := New(program, NewPersistentData(), NewContext())
	v, err := machine.Run()
	require.NoError(t, err)
	assert.Equal(t, Int(7), v)
	assert.Greater(t, machine.Meta.InstructionsExecuted, 0)
}

func TestSetFieldValueInsideQueryWritesBackToColumn(t *testing.T) {
	data := NewPersistentData()
	program := compile(t, "component Position { x i32, y i32 }\n\n"+
		"create [Position{x 1, y 2}]\n\n"+
		"query Position p\n\t\tp.x = p.x + 41")
	machine := New(program, data, NewContext())
	v, err := machine.Run()
	require.NoError(t, err)
	assert.Equal(t, Int(42), v)

	layout := program.Layouts[0]
	row := data.World.Get(layout.ID, 0)
	require.NotNil(t, row)
	fields := DecodeRow(layout, row)
	assert.Equal(t, Int(42), fields[0])
}

func TestSetFieldValueOutsideAnyQueryReturnsAnError(t *testing.T) {
	program := compile(t, "component Position { x i32 }\nsetX = \\p\n\tp.x = 99\n0")
	machine := New(program, NewPersistentData(), NewContext())
	_, err := machine.Run()
	require.NoError(t, err)

	layout := program.Layouts[0]
	comp := Value{Kind: KindComponent, Comp: &ComponentValue{TypeID: layout.ID, Layout: layout, Fields: []Value{Int(1)}}}
	_, err = machine.RunFunction("setX", []Value{comp})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "active query")
}

func TestNestedQueryIsRejected(t *testing.T) {
	data := NewPersistentData()
	program := compile(t, "component Position { x i32 }\ncomponent Health { v i32 }\n\n"+
		"create [Position{x 1}]\n\n"+
		"query Position p\n\t\tquery Health h\n\t\t\t\th.v")
	machine := New(program, data, NewContext())
	_, err := machine.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested query")
}

func TestRunFunctionBindsArgumentsToLocalSlots(t *testing.T) {
	program := compile(t, "add = \\a b\n\ta + b\n0")
	machine := New(program, NewPersistentData(), NewContext())
	_, err := machine.Run()
	require.NoError(t, err)

	v, err := machine.RunFunction("add", []Value{Int(19), Int(23)})
	require.NoError(t, err)
	assert.Equal(t, Int(42), v)
}

func TestRunFunctionUndefinedNameReturnsAnError(t *testing.T) {
	program := compile(t, "0")
	machine := New(program, NewPersistentData(), NewContext())
	_, err := machine.RunFunction("missing", nil)
	assert.Error(t, err)
}
